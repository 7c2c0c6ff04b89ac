package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Scheme prefixes object references accepted by ParseURI.
const Scheme = "s3://"

// ErrNotFound is returned when the referenced object does not exist.
var ErrNotFound = errors.New("object not found")

// Config addresses an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Store reads and writes catalog objects on S3-compatible storage.
type Store struct {
	client *minio.Client
}

// New creates a Store. Credentials are static; an empty endpoint is an error.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("objectstore: endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore client: %w", err)
	}
	return &Store{client: client}, nil
}

// Ref names one object.
type Ref struct {
	Bucket string
	Key    string
}

func (r Ref) String() string { return Scheme + r.Bucket + "/" + r.Key }

// IsURI reports whether src is an object reference rather than a path.
func IsURI(src string) bool { return strings.HasPrefix(src, Scheme) }

// ParseURI splits s3://bucket/key/with/slashes.
func ParseURI(src string) (Ref, error) {
	if !IsURI(src) {
		return Ref{}, fmt.Errorf("objectstore: %q is not an %s uri", src, Scheme)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(src, Scheme), "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Ref{}, fmt.Errorf("objectstore: %q needs a bucket and an object key", src)
	}
	return Ref{Bucket: bucket, Key: key}, nil
}

// Get reads a whole object. Missing buckets or keys yield ErrNotFound.
func (s *Store) Get(ctx context.Context, ref Ref) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, ref.Bucket, ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrap(ref, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrap(ref, err)
	}
	return data, nil
}

// Put writes data under ref, creating the bucket when it does not exist.
func (s *Store) Put(ctx context.Context, ref Ref, data []byte, contentType string) error {
	exists, err := s.client.BucketExists(ctx, ref.Bucket)
	if err != nil {
		return fmt.Errorf("objectstore: bucket %s: %w", ref.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, ref.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("objectstore: make bucket %s: %w", ref.Bucket, err)
		}
	}
	_, err = s.client.PutObject(ctx, ref.Bucket, ref.Key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", ref, err)
	}
	return nil
}

func wrap(ref Ref, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return fmt.Errorf("objectstore: get %s: %w", ref, err)
}
