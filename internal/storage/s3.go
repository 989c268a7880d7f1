package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	appcfg "github.com/viewtube/backend/config"
	"github.com/viewtube/backend/pkg/circuit"
	"github.com/viewtube/backend/pkg/logger"
	"go.uber.org/zap"
)

// RemoteRef is a durable reference to an object in the remote store.
type RemoteRef struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// ObjectStore is the narrow contract the upload transaction consumes.
// Upload pushes a local file and returns its durable reference; Delete
// removes an object by its key.
type ObjectStore interface {
	Upload(ctx context.Context, localPath string) (RemoteRef, error)
	Delete(ctx context.Context, remoteID string) error
}

// S3Store implements ObjectStore against any S3-compatible service
// (AWS S3, MinIO, DigitalOcean Spaces, Cloudflare R2). A circuit breaker
// fails uploads fast while the store is known to be down instead of
// holding every request for the full SDK timeout.
type S3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
	breaker   *circuit.Breaker
}

// NewS3Store creates an object store from app config.
func NewS3Store(cfg *appcfg.Config) (*S3Store, error) {
	ctx := context.Background()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.Region),
	}
	if cfg.Storage.AccessKey != "" && cfg.Storage.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Storage.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true // MinIO and friends require path-style addressing
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	publicURL := cfg.Storage.PublicURL
	if publicURL == "" {
		if cfg.Storage.Endpoint != "" {
			publicURL = strings.TrimSuffix(cfg.Storage.Endpoint, "/") + "/" + cfg.Storage.Bucket
		} else {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Storage.Bucket, cfg.Storage.Region)
		}
	}

	logger.GetLogger().Info("Object storage initialized",
		zap.String("bucket", cfg.Storage.Bucket),
		zap.String("region", cfg.Storage.Region),
		zap.String("endpoint", cfg.Storage.Endpoint),
	)

	return &S3Store{
		client:    client,
		bucket:    cfg.Storage.Bucket,
		publicURL: publicURL,
		breaker:   circuit.NewBreaker("object-store", circuit.DefaultConfig(), logger.GetLogger()),
	}, nil
}

// ObjectKey derives a unique object key preserving the original extension.
func ObjectKey(localPath string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(localPath))
}

// ObjectURL returns the public URL for a stored object key.
func (s *S3Store) ObjectURL(key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(s.publicURL, "/"), key)
}

// Upload pushes the file at localPath to the bucket under a fresh key.
func (s *S3Store) Upload(ctx context.Context, localPath string) (RemoteRef, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return RemoteRef{}, fmt.Errorf("failed to open staged file: %w", err)
	}
	defer file.Close()

	key := ObjectKey(localPath)
	err = s.breaker.Do(func() error {
		_, putErr := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   file,
		})
		return putErr
	})
	if err != nil {
		return RemoteRef{}, fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return RemoteRef{URL: s.ObjectURL(key), ID: key}, nil
}

// Delete removes an object by key.
func (s *S3Store) Delete(ctx context.Context, remoteID string) error {
	err := s.breaker.Do(func() error {
		_, delErr := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(remoteID),
		})
		return delErr
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", remoteID, err)
	}

	return nil
}
