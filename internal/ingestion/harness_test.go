package ingestion

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/mediapipe/internal/layout"
	"github.com/your-org/mediapipe/internal/media"
	"github.com/your-org/mediapipe/internal/media/mediatest"
	"github.com/your-org/mediapipe/internal/posts"
	"github.com/your-org/mediapipe/internal/progress"
	"github.com/your-org/mediapipe/internal/upload"
	"github.com/your-org/mediapipe/pkg/storage/objectstore"
)

const publicBase = "https://cdn.example.com"

type publishedEvent struct {
	key       string
	eventType string
	payload   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, key, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{key: key, eventType: eventType, payload: payload})
	return p.err
}

func (p *recordingPublisher) Close(context.Context) error { return nil }

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type harness struct {
	svc       *Service
	store     *objectstore.Memory
	posts     *posts.Memory
	progress  *progress.Memory
	encoder   *mediatest.Encoder
	prober    *mediatest.Prober
	publisher *recordingPublisher
	layout    layout.Layout
	workRoot  string
	sourceDir string
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	deliveryMode string
}

func withMP4Delivery() harnessOption {
	return func(c *harnessConfig) { c.deliveryMode = "mp4" }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{deliveryMode: "hls"}
	for _, opt := range opts {
		opt(&cfg)
	}

	logr := zaptest.NewLogger(t)
	store := objectstore.NewMemory()
	uploader := upload.New(upload.Params{
		Store:         store,
		PublicBaseURL: publicBase,
		CacheControl:  "public, max-age=31536000, immutable",
		Concurrency:   4,
		Logger:        logr,
	})
	enc := &mediatest.Encoder{}
	prober := &mediatest.Prober{Meta: map[string]media.ProbedMetadata{}}
	tracker := progress.NewMemory(time.Minute, 100)
	t.Cleanup(func() { tracker.Close() })

	var transcoder media.VideoTranscoder = media.NewAdaptiveTranscoder(enc, uploader, "veryfast", logr)
	if cfg.deliveryMode == "mp4" {
		transcoder = media.NewProgressiveTranscoder(enc, uploader, "veryfast", logr)
	}

	h := &harness{
		store:     store,
		posts:     posts.NewMemory(),
		progress:  tracker,
		encoder:   enc,
		prober:    prober,
		publisher: &recordingPublisher{},
		layout:    layout.New("media", "posts"),
		workRoot:  filepath.Join(t.TempDir(), "work"),
		sourceDir: t.TempDir(),
	}
	h.svc = NewService(Params{
		Prober:         prober,
		Thumbnails:     media.NewThumbnailExtractor(enc),
		Sprites:        media.NewSpriteSheetGenerator(enc, uploader, 100, logr),
		Transcoder:     transcoder,
		Images:         media.NewImageNormalizer(1080, 90),
		Uploader:       uploader,
		Store:          store,
		Posts:          h.posts,
		Progress:       tracker,
		Publisher:      h.publisher,
		Layout:         h.layout,
		TempDir:        h.workRoot,
		ThumbnailWidth: 1080,
		Logger:         logr,
	})
	// Storage ids run s1, s2, ... in call order.
	var seq atomic.Int32
	h.svc.newID = func() string { return fmt.Sprintf("s%d", seq.Add(1)) }
	return h
}

// video writes a fake source file and registers its probe result.
func (h *harness) video(t *testing.T, name string, meta media.ProbedMetadata) media.Asset {
	t.Helper()
	path := filepath.Join(h.sourceDir, name)
	require.NoError(t, os.WriteFile(path, []byte("fake video "+name), 0o644))
	h.prober.Meta[name] = meta
	return media.Asset{Path: path, MIMEType: "video/mp4"}
}

// image writes a real PNG so the normaliser can decode it.
func (h *harness) image(t *testing.T, name string, width, height int) media.Asset {
	t.Helper()
	path := filepath.Join(h.sourceDir, name)
	require.NoError(t, imaging.Save(imaging.New(width, height, color.NRGBA{G: 128, A: 255}), path))
	return media.Asset{Path: path, MIMEType: "image/png"}
}

func (h *harness) requireNoLocalFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.sourceDir)
	require.NoError(t, err)
	require.Empty(t, entries, "upload sources left behind")

	entries, err = os.ReadDir(h.workRoot)
	if err == nil {
		require.Empty(t, entries, "work dirs left behind")
	}
}

// failingPosts rejects every Create with err.
type failingPosts struct {
	posts.Store
	err error
}

func (s failingPosts) Create(context.Context, *posts.Record) error {
	return &posts.PersistenceError{Op: "create", Err: s.err}
}

func positioned(assets ...media.Asset) []media.Asset {
	for i := range assets {
		assets[i].Position = i
	}
	return assets
}

func argValue(args media.Args, flag string) string {
	v, _ := mediatest.ArgValue(args, flag)
	return v
}
