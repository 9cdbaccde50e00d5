package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/mediapipe/pkg/metrics"
	"github.com/your-org/mediapipe/pkg/storage/objectstore"
)

// Artifact is an object written to the store. The pipeline only keeps the
// URL, never a handle to the object.
type Artifact struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// StorageError reports a failed object write.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Uploader writes local files to the object store under caller-chosen keys.
type Uploader struct {
	store         objectstore.Client
	publicBaseURL string
	cacheControl  string
	concurrency   int
	logger        *zap.Logger
}

type Params struct {
	Store         objectstore.Client
	PublicBaseURL string
	CacheControl  string
	Concurrency   int
	Logger        *zap.Logger
}

// New constructs an Uploader.
func New(p Params) *Uploader {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	logr := p.Logger
	if logr == nil {
		logr = zap.NewNop()
	}
	return &Uploader{
		store:         p.Store,
		publicBaseURL: strings.TrimRight(p.PublicBaseURL, "/"),
		cacheControl:  p.CacheControl,
		concurrency:   concurrency,
		logger:        logr,
	}
}

// URL returns the public URL of key.
func (u *Uploader) URL(key string) string {
	return u.publicBaseURL + "/" + key
}

// UploadFile streams the file at path to key. An empty contentType is
// derived from the file extension.
func (u *Uploader) UploadFile(ctx context.Context, path, key, contentType string) (Artifact, error) {
	if contentType == "" {
		contentType = ContentTypeFor(path)
	}

	f, err := os.Open(path)
	if err != nil {
		metrics.UploadFailures.Inc()
		return Artifact{}, &StorageError{Key: key, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		metrics.UploadFailures.Inc()
		return Artifact{}, &StorageError{Key: key, Err: err}
	}

	if err := u.store.Put(ctx, key, f, info.Size(), objectstore.PutOptions{
		ContentType:  contentType,
		CacheControl: u.cacheControl,
	}); err != nil {
		metrics.UploadFailures.Inc()
		return Artifact{}, &StorageError{Key: key, Err: err}
	}

	metrics.ObjectsUploaded.WithLabelValues(contentType).Inc()
	metrics.BytesUploaded.Add(float64(info.Size()))
	u.logger.Debug("object uploaded",
		zap.String("key", key),
		zap.String("content_type", contentType),
		zap.Int64("size_bytes", info.Size()),
	)

	return Artifact{Key: key, URL: u.URL(key), ContentType: contentType}, nil
}

// UploadDir uploads every regular file directly inside dir to
// prefix/{name}. Uploads run concurrently; the first failure cancels the
// rest and is returned. Artifacts are returned sorted by key.
func (u *Uploader) UploadDir(ctx context.Context, dir, prefix string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &StorageError{Key: prefix, Err: fmt.Errorf("read dir %s: %w", dir, err)}
	}

	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
		}
	}

	artifacts := make([]Artifact, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, name := range files {
		g.Go(func() error {
			a, err := u.UploadFile(gctx, filepath.Join(dir, name), prefix+"/"+name, "")
			if err != nil {
				return err
			}
			artifacts[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Key < artifacts[j].Key })
	return artifacts, nil
}

// ContentTypeFor maps a file name to the content type stored with it.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
