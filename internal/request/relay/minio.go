package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOConfig holds the object storage settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
	Prefixes  Prefixes
}

// MinIORelay stores files in an S3 compatible bucket and marks every object
// public-read so the returned link opens without credentials.
type MinIORelay struct {
	client    *minio.Client
	bucket    string
	publicURL string
	prefixes  Prefixes
	logger    *zap.Logger
}

// NewMinIORelay connects a client for cfg.
func NewMinIORelay(cfg MinIOConfig, logger *zap.Logger) (*MinIORelay, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("minio endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinIORelay{client: client, bucket: cfg.Bucket, publicURL: publicURL, prefixes: cfg.Prefixes, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (r *MinIORelay) EnsureBucket(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	r.logger.Info("Bucket created", zap.String("bucket", r.bucket))
	return nil
}

func (r *MinIORelay) Store(ctx context.Context, up Upload, dest Destination) (string, error) {
	prefix, err := r.prefixes.Prefix(dest)
	if err != nil {
		return "", err
	}
	objectName := objectKey(prefix, up.Filename)

	size := up.Size
	if size <= 0 {
		size = -1
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = r.client.PutObject(ctx, r.bucket, objectName, up.Reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", up.Filename, err)
	}

	r.logger.Debug("Object stored", zap.String("object", objectName), zap.String("destination", string(dest)))
	return joinURL(r.publicURL, r.bucket, objectName), nil
}

func objectKey(prefix, filename string) string {
	return fmt.Sprintf("%s/%s_%s", prefix, uuid.New().String()[:8], SafeName(filename))
}
