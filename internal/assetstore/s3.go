package assetstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kozaktomas/ar-marker/internal/config"
)

// S3Store stores assets in an S3-compatible bucket.
type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	baseURL    string

	mu          sync.Mutex
	bucketReady bool // set once the bucket is known to exist
}

// NewS3Store creates a store from asset store configuration.
func NewS3Store(cfg config.AssetStoreConfig) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	baseURL := cfg.PublicURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + endpoint + "/" + bucket
	}

	return &S3Store{
		client:     client,
		bucketName: bucket,
		region:     region,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// ensureBucket creates the bucket on first use. Only success is remembered,
// so a failed check is retried by the next upload.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.bucketReady = true
	return nil
}

// Upload stores the asset under a fresh object key.
func (s *S3Store) Upload(ctx context.Context, u Upload) (Object, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return Object{}, &UploadError{Kind: u.Kind, Err: fmt.Errorf("ensure bucket: %w", err)}
	}

	key := ObjectKey(u)
	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(u.Data), int64(len(u.Data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, &UploadError{Kind: u.Kind, Err: err}
	}

	return Object{URL: s.objectURL(key), AssetID: key}, nil
}

// Delete removes an object by key.
func (s *S3Store) Delete(ctx context.Context, assetID string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, assetID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", assetID, err)
	}
	return nil
}

// Ping verifies the credentials by checking the bucket.
func (s *S3Store) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucketName)
	}
	return nil
}

func (s *S3Store) objectURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}
