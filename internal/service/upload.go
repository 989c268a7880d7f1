package service

import (
	"context"
	"os"

	apperrors "github.com/viewtube/backend/internal/errors"
	"github.com/viewtube/backend/internal/storage"
	ctxutil "github.com/viewtube/backend/pkg/context"
	"github.com/viewtube/backend/pkg/logger"
)

// UploadService commits staged files to the remote object store. The local
// staged file is released on every exit path; the previous remote copy of
// a replaced asset is removed best-effort after the new one is live.
type UploadService struct {
	store storage.ObjectStore
}

func NewUploadService(store storage.ObjectStore) *UploadService {
	return &UploadService{store: store}
}

// Commit runs one upload transaction. previous may be nil for a first
// upload; when set, the old remote object is deleted after a successful
// replace, and a failure there is logged but not returned — the new asset
// is already authoritative.
func (s *UploadService) Commit(ctx context.Context, localPath string, previous *storage.RemoteRef) (storage.RemoteRef, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "Commit")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	if localPath == "" {
		return storage.RemoteRef{}, apperrors.ErrInvalidInput
	}

	// The staged file is released whether the upload succeeds, fails, or
	// the request times out mid-flight.
	defer s.removeLocal(ctx, localPath)

	ref, err := s.store.Upload(ctx, localPath)
	if err != nil {
		logger.ErrorWithContext(ctx, "Remote upload failed").
			String("local_path", localPath).
			Err(err).
			Log()
		return storage.RemoteRef{}, apperrors.WrapError(apperrors.ErrUploadFailed, err)
	}

	logger.InfoWithContext(ctx, "Asset uploaded").
		String("remote_id", ref.ID).
		Log()

	if previous != nil && previous.ID != "" {
		if err := s.store.Delete(ctx, previous.ID); err != nil {
			logger.WarnWithContext(ctx, "Failed to delete superseded remote asset").
				String("remote_id", previous.ID).
				Err(err).
				Log()
		}
	}

	return ref, nil
}

func (s *UploadService) removeLocal(ctx context.Context, localPath string) {
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		logger.WarnWithContext(ctx, "Failed to remove staged file").
			String("local_path", localPath).
			Err(err).
			Log()
	}
}
