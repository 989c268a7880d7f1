package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewtube/backend/config"
	"github.com/viewtube/backend/internal/constants"
	"github.com/viewtube/backend/internal/middleware"
	"github.com/viewtube/backend/internal/model"
	"github.com/viewtube/backend/internal/service"
	"github.com/viewtube/backend/internal/storage"
	"gorm.io/gorm"
)

// memoryUserRepo backs the handlers in these tests without a database.
type memoryUserRepo struct {
	mu    sync.Mutex
	users map[uint]*model.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[uint]*model.User)}
}

func (r *memoryUserRepo) GetByID(ctx context.Context, id uint) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *memoryUserRepo) GetByIDSanitized(ctx context.Context, id uint) (*model.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Password = ""
	user.RefreshToken = nil
	return user, nil
}

func (r *memoryUserRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
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

func (r *memoryUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memoryUserRepo) UpdateRefreshToken(ctx context.Context, id uint, token *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.RefreshToken = token
	return nil
}

func (r *memoryUserRepo) RotateRefreshToken(ctx context.Context, id uint, oldToken, newToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.RefreshToken == nil || *user.RefreshToken != oldToken {
		return false, nil
	}
	user.RefreshToken = &newToken
	return true, nil
}

func (r *memoryUserRepo) UpdatePassword(ctx context.Context, id uint, hashedPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Password = hashedPassword
	return nil
}

func (r *memoryUserRepo) UpdateFullName(ctx context.Context, id uint, fullName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.FullName = fullName
	return nil
}

func (r *memoryUserRepo) UpdateAvatar(ctx context.Context, id uint, url, objectID string) error {
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

func (r *memoryUserRepo) UpdateCoverImage(ctx context.Context, id uint, url, objectID string) error {
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

// memoryObjectStore keeps uploads out of the network entirely.
type memoryObjectStore struct {
	mu     sync.Mutex
	nextID int
}

func (s *memoryObjectStore) Upload(ctx context.Context, localPath string) (storage.RemoteRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := "obj-" + strconv.Itoa(s.nextID)
	return storage.RemoteRef{URL: "https://assets.example.com/" + id, ID: id}, nil
}

func (s *memoryObjectStore) Delete(ctx context.Context, remoteID string) error { return nil }

type authFixture struct {
	engine *gin.Engine
	repo   *memoryUserRepo
	tokens *service.TokenService
}

func newAuthTestServer(t *testing.T) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		JWT: config.JWTConfig{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		Upload: config.UploadConfig{TempDir: t.TempDir()},
	}

	repo := newMemoryUserRepo()
	store := &memoryObjectStore{}
	hasher := service.NewPasswordHasher()
	tokens := service.NewTokenService(cfg.JWT)
	uploader := service.NewUploadService(store)
	sessions := service.NewSessionService(repo, hasher, tokens)
	users := service.NewUserService(repo, hasher, uploader, store)

	authHandler := NewAuthHandler(sessions, users, cfg)
	userHandler := NewUserHandler(users, cfg)
	authMw := middleware.NewAuthMiddleware(tokens, repo)

	engine := gin.New()
	group := engine.Group("/api/v1/users")
	group.POST("/register", authHandler.Register)
	group.POST("/login", authHandler.Login)
	group.POST("/refresh", authHandler.Refresh)
	group.POST("/logout", authMw.RequireAuth(), authHandler.Logout)
	group.GET("/me", authMw.RequireAuth(), userHandler.Me)

	return &authFixture{engine: engine, repo: repo, tokens: tokens}
}

func multipartRegisterBody(t *testing.T, username, email string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	require.NoError(t, writer.WriteField("username", username))
	require.NoError(t, writer.WriteField("email", email))
	require.NoError(t, writer.WriteField("fullName", "Test Person"))
	require.NoError(t, writer.WriteField("password", "password1234"))

	avatar, err := writer.CreateFormFile("avatar", "avatar.png")
	require.NoError(t, err)
	_, err = avatar.Write([]byte("fake avatar bytes"))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (f *authFixture) register(t *testing.T, username, email string) {
	t.Helper()
	body, contentType := multipartRegisterBody(t, username, email)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (f *authFixture) login(t *testing.T, identifier, password string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func cookieByName(res *http.Response, name string) *http.Cookie {
	for _, cookie := range res.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestAuthFlow_RegisterAndLogin(t *testing.T) {
	fixture := newAuthTestServer(t)
	fixture.register(t, "carol", "carol@example.com")

	w := fixture.login(t, "carol", "password1234")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := w.Result()
	access := cookieByName(res, constants.CookieAccessToken)
	refresh := cookieByName(res, constants.CookieRefreshToken)

	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.NotEmpty(t, access.Value)
	assert.NotEmpty(t, refresh.Value)

	for _, cookie := range []*http.Cookie{access, refresh} {
		assert.True(t, cookie.HttpOnly, "token cookies must be httpOnly")
		assert.True(t, cookie.Secure, "token cookies must be secure")
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.Positive(t, cookie.MaxAge)
	}
}

func TestAuthFlow_RegisterDuplicateUsername(t *testing.T) {
	fixture := newAuthTestServer(t)
	fixture.register(t, "carol", "carol@example.com")

	body, contentType := multipartRegisterBody(t, "carol", "other@example.com")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	fixture.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthFlow_RegisterWithoutAvatar(t *testing.T) {
	fixture := newAuthTestServer(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("username", "dave"))
	require.NoError(t, writer.WriteField("email", "dave@example.com"))
	require.NoError(t, writer.WriteField("fullName", "Dave Example"))
	require.NoError(t, writer.WriteField("password", "password1234"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	w := httptest.NewRecorder()
	fixture.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthFlow_LoginWrongPassword(t *testing.T) {
	fixture := newAuthTestServer(t)
	fixture.register(t, "carol", "carol@example.com")

	w := fixture.login(t, "carol", "wrongpassword")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies(), "no session cookies on failed login")
}

func TestAuthFlow_RefreshRotatesCookies(t *testing.T) {
	fixture := newAuthTestServer(t)
	fixture.register(t, "carol", "carol@example.com")

	loginRes := fixture.login(t, "carol", "password1234").Result()
	refreshCookie := cookieByName(loginRes, constants.CookieRefreshToken)
	require.NotNil(t, refreshCookie)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	req.AddCookie(refreshCookie)

	w := httptest.NewRecorder()
	fixture.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rotated := cookieByName(w.Result(), constants.CookieRefreshToken)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refreshCookie.Value, rotated.Value)

	// Replaying the consumed cookie fails and clears the session cookies
	replay := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	replay.AddCookie(refreshCookie)

	w2 := httptest.NewRecorder()
	fixture.engine.ServeHTTP(w2, replay)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)

	cleared := cookieByName(w2.Result(), constants.CookieRefreshToken)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestAuthFlow_RefreshViaBodyField(t *testing.T) {
	fixture := newAuthTestServer(t)
	fixture.register(t, "carol", "carol@example.com")

	loginRes := fixture.login(t, "carol", "password1234").Result()
	refreshCookie := cookieByName(loginRes, constants.CookieRefreshToken)
	require.NotNil(t, refreshCookie)

	payload, err := json.Marshal(map[string]string{"refresh_token": refreshCookie.Value})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	fixture.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAuthFlow_RefreshWithoutToken(t *testing.T) {
	fixture := newAuthTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	w := httptest.NewRecorder()
	fixture.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthFlow_LogoutClearsSession(t *testing.T) {
	fixture := newAuthTestServer(t)
	fixture.register(t, "carol", "carol@example.com")

	loginRes := fixture.login(t, "carol", "password1234").Result()
	accessCookie := cookieByName(loginRes, constants.CookieAccessToken)
	refreshCookie := cookieByName(loginRes, constants.CookieRefreshToken)
	require.NotNil(t, accessCookie)
	require.NotNil(t, refreshCookie)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
	req.AddCookie(accessCookie)

	w := httptest.NewRecorder()
	fixture.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, name := range []string{constants.CookieAccessToken, constants.CookieRefreshToken} {
		cleared := cookieByName(w.Result(), name)
		require.NotNil(t, cleared, "expected %s to be cleared", name)
		assert.Empty(t, cleared.Value)
		assert.Negative(t, cleared.MaxAge)
	}

	// The stored session is gone: the old refresh token is dead
	replay := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	replay.AddCookie(refreshCookie)

	w2 := httptest.NewRecorder()
	fixture.engine.ServeHTTP(w2, replay)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestAuthFlow_MeReturnsSanitizedUser(t *testing.T) {
	fixture := newAuthTestServer(t)
	fixture.register(t, "carol", "carol@example.com")

	loginRes := fixture.login(t, "carol", "password1234").Result()
	accessCookie := cookieByName(loginRes, constants.CookieAccessToken)
	require.NotNil(t, accessCookie)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(accessCookie)

	w := httptest.NewRecorder()
	fixture.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))

	assert.Equal(t, "carol", envelope.Data["username"])
	assert.NotContains(t, envelope.Data, "password")
	assert.NotContains(t, envelope.Data, "refresh_token")
}
