// Package objectstore wraps the S3 compatible bucket that keeps post images.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	coreconfig "github.com/m3rciful/linephoto/core/config"
	"github.com/m3rciful/linephoto/core/logger"
)

const defaultRegion = "us-east-1"

// MaxSignedURLTTL is the longest expiry S3 accepts for presigned requests.
const MaxSignedURLTTL = 7 * 24 * time.Hour

// Store puts and signs objects inside a single bucket.
type Store struct {
	client     *minio.Client
	bucket     string
	region     string
	publicBase string
}

// Connect builds a minio client from configuration. No network call is made.
func Connect(cfg coreconfig.StorageConfig) (*Store, error) {
	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if endpoint == "" {
		return nil, fmt.Errorf("objectstore: empty endpoint")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: init client: %w", err)
	}
	return New(client, cfg.Bucket, region, cfg.PublicBaseURL), nil
}

// New wraps an existing client.
func New(client *minio.Client, bucket, region, publicBase string) *Store {
	return &Store{
		client:     client,
		bucket:     bucket,
		region:     region,
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("objectstore: bucket lookup: %w", err)
	}
	if exists {
		logger.SVCStorage.Info("bucket ready",
			slog.String("event", "bucket.ensure"),
			slog.String("bucket", s.bucket),
			slog.String("status", "ok"),
		)
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("objectstore: make bucket: %w", err)
	}
	logger.SVCStorage.Info("bucket created",
		slog.String("event", "bucket.ensure"),
		slog.String("bucket", s.bucket),
		slog.String("status", "ok"),
	)
	return nil
}

// Put uploads data to path, replacing any existing object.
func (s *Store) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", path, err)
	}
	return nil
}

// SignedURL returns a presigned GET link for path. ttl is clamped to MaxSignedURLTTL.
func (s *Store) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > MaxSignedURLTTL {
		ttl = MaxSignedURLTTL
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("objectstore: sign %s: %w", path, err)
	}
	return u.String(), nil
}

// PublicURL returns the unsigned link for path, or "" when no public base is configured.
func (s *Store) PublicURL(path string) string {
	if s.publicBase == "" {
		return ""
	}
	return s.publicBase + "/" + s.bucket + "/" + strings.TrimLeft(path, "/")
}

// Remove deletes the object at path.
func (s *Store) Remove(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("objectstore: remove %s: %w", path, err)
	}
	return nil
}

func splitEndpoint(raw string, useSSL bool) (string, bool) {
	endpoint := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimRight(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimRight(strings.TrimPrefix(endpoint, "http://"), "/"), false
	}
	return strings.TrimRight(endpoint, "/"), useSSL
}
