package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config contains the information required to talk to an object store.
type Config struct {
	Provider  string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// PutOptions carries the per-object headers written alongside the body.
type PutOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// Client represents the capabilities the pipeline expects from a bucket.
type Client interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) error
	Remove(ctx context.Context, key string) error
	// RemovePrefix deletes every object whose key starts with prefix and
	// returns how many were removed.
	RemovePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

// New creates an object store client based on the given configuration.
// "s3" and "r2" are S3-compatible endpoints served by the minio client.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "minio", "s3", "r2":
		return newMinioClient(cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}

type minioClient struct {
	client *minio.Client
	bucket string
}

func newMinioClient(cfg Config) (Client, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &minioClient{client: cl, bucket: cfg.Bucket}, nil
}

func (m *minioClient) Put(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		UserMetadata: opts.Metadata,
	})
	return err
}

func (m *minioClient) Remove(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *minioClient) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("refusing to remove an empty prefix")
	}

	listed := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var listErr error
	count := 0
	toRemove := make(chan minio.ObjectInfo)
	go func() {
		defer close(toRemove)
		for obj := range listed {
			if obj.Err != nil {
				listErr = obj.Err
				continue
			}
			count++
			toRemove <- obj
		}
	}()

	// RemoveObjects must be drained completely so the lister goroutine exits.
	var removeErr error
	for rerr := range m.client.RemoveObjects(ctx, m.bucket, toRemove, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil && removeErr == nil {
			removeErr = fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	if removeErr != nil {
		return 0, removeErr
	}
	if listErr != nil {
		return 0, fmt.Errorf("list %s: %w", prefix, listErr)
	}
	return count, nil
}

func (m *minioClient) Close() error {
	return nil
}
