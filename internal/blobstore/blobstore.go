// Package blobstore stores raw image bytes in an S3-compatible bucket.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// ErrObjectNotFound is returned by Get for a missing object.
	ErrObjectNotFound = errors.New("object not found")
	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrAccessDenied is returned when the credentials lack permission.
	ErrAccessDenied = errors.New("access denied")
)

// Store is a blob store backed by MinIO or any S3-compatible service.
type Store struct {
	client *minio.Client
	cfg    config.BlobConfig
}

// New connects to the blob endpoint and creates the bucket if it does not exist.
func New(ctx context.Context, cfg config.BlobConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	s := &Store{client: client, cfg: cfg}
	if err := s.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucketExists(ctx context.Context) error {
	if s.cfg.Bucket == "" {
		return errors.New("bucket name is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket %s exists: %w", s.cfg.Bucket, translateError(err))
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{})
	if err != nil {
		// Another instance may have created it in the meantime.
		if resp := minio.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", s.cfg.Bucket, translateError(err))
	}
	return nil
}

// Put uploads data under path, overwriting any existing object, and returns the path.
func (s *Store) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", path, translateError(err))
	}
	return path, nil
}

// Get downloads the object stored under path.
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	reader, err := s.client.GetObject(ctx, s.cfg.Bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", path, translateError(err))
	}
	defer reader.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", path, translateError(err))
	}
	return data, nil
}

// PublicURL returns the URL the object is reachable at.
func (s *Store) PublicURL(path string) string {
	return s.cfg.ObjectURL(path)
}

// translateError maps S3 error codes to the package's sentinel errors.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey":
		return fmt.Errorf("%w: %s", ErrObjectNotFound, resp.Message)
	case "NoSuchBucket":
		return fmt.Errorf("%w: %s", ErrBucketNotFound, resp.Message)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %s", ErrAccessDenied, resp.Message)
	default:
		return err
	}
}
