package service

import (
	"context"
	"strconv"
	"sync"

	"github.com/viewtube/backend/internal/model"
	"github.com/viewtube/backend/internal/storage"
	"gorm.io/gorm"
)

// fakeUserRepo is an in-memory UserRepository. The mutex makes the
// conditional rotation atomic, mirroring the single-statement UPDATE the
// real repository issues.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uint]*model.User

	createErr error
	updateErr error
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[uint]*model.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uint) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByIDSanitized(ctx context.Context, id uint) (*model.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Password = ""
	user.RefreshToken = nil
	return user, nil
}

func (r *fakeUserRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == identifier || user.Email == identifier {
			copied := *user
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = uint(len(r.users) + 1)
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) UpdateRefreshToken(ctx context.Context, id uint, token *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	user, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.RefreshToken = token
	return nil
}

func (r *fakeUserRepo) RotateRefreshToken(ctx context.Context, id uint, oldToken, newToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return false, nil
	}
	if user.RefreshToken == nil || *user.RefreshToken != oldToken {
		return false, nil
	}
	user.RefreshToken = &newToken
	return true, nil
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, id uint, hashedPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Password = hashedPassword
	return nil
}

func (r *fakeUserRepo) UpdateFullName(ctx context.Context, id uint, fullName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.FullName = fullName
	return nil
}

func (r *fakeUserRepo) UpdateAvatar(ctx context.Context, id uint, url, objectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Avatar = url
	user.AvatarID = objectID
	return nil
}

func (r *fakeUserRepo) UpdateCoverImage(ctx context.Context, id uint, url, objectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.CoverImage = url
	user.CoverImageID = objectID
	return nil
}

func (r *fakeUserRepo) storedRefreshToken(id uint) *string {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil
	}
	return user.RefreshToken
}

// fakeObjectStore records uploads and deletes without touching a network.
type fakeObjectStore struct {
	mu        sync.Mutex
	uploads   []string
	deletes   []string
	uploadErr error
	deleteErr error
	nextID    int
}

func (s *fakeObjectStore) Upload(ctx context.Context, localPath string) (storage.RemoteRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return storage.RemoteRef{}, s.uploadErr
	}
	s.nextID++
	s.uploads = append(s.uploads, localPath)
	id := "obj-" + strconv.Itoa(s.nextID)
	return storage.RemoteRef{URL: "https://assets.example.com/" + id, ID: id}, nil
}

func (s *fakeObjectStore) Delete(ctx context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, remoteID)
	return nil
}

func (s *fakeObjectStore) deletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deletes))
	copy(out, s.deletes)
	return out
}
