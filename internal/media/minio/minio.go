// Package minio keeps media in an S3-compatible bucket.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ButyrinIA/blog/internal/media"
)

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base browsers reach the endpoint at. Defaults to
	// http(s)://Endpoint.
	PublicURL string
}

type Store struct {
	client *minio.Client
	bucket string
	base   string
}

// New connects and creates the bucket when it does not exist.
func New(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", opts.Bucket, err)
		}
	}

	base := opts.PublicURL
	if base == "" {
		scheme := "http://"
		if opts.UseSSL {
			scheme = "https://"
		}
		base = scheme + opts.Endpoint
	}
	base = strings.TrimSuffix(base, "/")

	return &Store{client: client, bucket: opts.Bucket, base: base}, nil
}

func (s *Store) Save(ctx context.Context, contentType string, data []byte, ext string) (string, error) {
	key := media.NewKey(ext)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if !media.ValidKey(key) {
		return fmt.Errorf("%w: %q", media.ErrInvalidKey, key)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return s.base + "/" + s.bucket + "/" + key
}
