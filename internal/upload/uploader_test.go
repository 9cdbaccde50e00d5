package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/mediapipe/pkg/storage/objectstore"
)

const cacheControl = "public, max-age=31536000, immutable"

func newTestUploader(t *testing.T, store objectstore.Client) *Uploader {
	t.Helper()
	return New(Params{
		Store:         store,
		PublicBaseURL: "https://cdn.example.com/",
		CacheControl:  cacheControl,
		Concurrency:   2,
		Logger:        zaptest.NewLogger(t),
	})
}

// failingStore rejects the Puts fail returns an error for.
type failingStore struct {
	objectstore.Client
	fail func(key string) error
}

func (s failingStore) Put(ctx context.Context, key string, reader io.Reader, size int64, opts objectstore.PutOptions) error {
	if err := s.fail(key); err != nil {
		return err
	}
	return s.Client.Put(ctx, key, reader, size, opts)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestUploadFileSetsHeaders(t *testing.T) {
	store := objectstore.NewMemory()
	u := newTestUploader(t, store)
	src := writeFile(t, t.TempDir(), "thumb.jpg", "jpeg-bytes")

	a, err := u.UploadFile(context.Background(), src, "media/u1/posts/r/thumb.jpg", "")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/media/u1/posts/r/thumb.jpg", a.URL)
	assert.Equal(t, "image/jpeg", a.ContentType)

	obj, ok := store.Get("media/u1/posts/r/thumb.jpg")
	require.True(t, ok)
	assert.Equal(t, "jpeg-bytes", string(obj.Data))
	assert.Equal(t, "image/jpeg", obj.ContentType)
	assert.Equal(t, cacheControl, obj.CacheControl)
}

func TestUploadFileMissingSource(t *testing.T) {
	u := newTestUploader(t, objectstore.NewMemory())

	_, err := u.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.ts"), "k", "")

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "k", serr.Key)
}

func TestUploadDir(t *testing.T) {
	store := objectstore.NewMemory()
	u := newTestUploader(t, store)

	dir := t.TempDir()
	writeFile(t, dir, "master.m3u8", "#EXTM3U")
	writeFile(t, dir, "stream_0.m3u8", "#EXTM3U")
	writeFile(t, dir, "section_0_000.ts", "ts")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	artifacts, err := u.UploadDir(context.Background(), dir, "media/u1/posts/r")
	require.NoError(t, err)
	require.Len(t, artifacts, 3)
	assert.Equal(t, "media/u1/posts/r/master.m3u8", artifacts[0].Key)
	assert.Equal(t, "media/u1/posts/r/section_0_000.ts", artifacts[1].Key)

	assert.Equal(t, []string{
		"media/u1/posts/r/master.m3u8",
		"media/u1/posts/r/section_0_000.ts",
		"media/u1/posts/r/stream_0.m3u8",
	}, store.Keys())

	obj, _ := store.Get("media/u1/posts/r/section_0_000.ts")
	assert.Equal(t, "video/mp2t", obj.ContentType)
	obj, _ = store.Get("media/u1/posts/r/master.m3u8")
	assert.Equal(t, "application/vnd.apple.mpegurl", obj.ContentType)
}

func TestUploadDirFailsAsAWhole(t *testing.T) {
	store := failingStore{Client: objectstore.NewMemory(), fail: func(key string) error {
		if strings.HasSuffix(key, ".ts") {
			return errors.New("bucket unavailable")
		}
		return nil
	}}
	u := newTestUploader(t, store)

	dir := t.TempDir()
	writeFile(t, dir, "master.m3u8", "#EXTM3U")
	writeFile(t, dir, "section_0_000.ts", "ts")

	artifacts, err := u.UploadDir(context.Background(), dir, "p")
	require.Error(t, err)
	assert.Nil(t, artifacts)

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "p/section_0_000.ts", serr.Key)
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"master.m3u8":  "application/vnd.apple.mpegurl",
		"section.ts":   "video/mp2t",
		"thumb.JPG":    "image/jpeg",
		"picture.jpeg": "image/jpeg",
		"master.mp4":   "video/mp4",
		"unknown.bin":  "application/octet-stream",
		"no-extension": "application/octet-stream",
	}
	for name, want := range cases {
		assert.Equal(t, want, ContentTypeFor(name), name)
	}
}
