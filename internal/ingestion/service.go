package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/mediapipe/internal/layout"
	"github.com/your-org/mediapipe/internal/media"
	"github.com/your-org/mediapipe/internal/posts"
	"github.com/your-org/mediapipe/internal/progress"
	"github.com/your-org/mediapipe/pkg/metrics"
	"github.com/your-org/mediapipe/pkg/storage/objectstore"
	"github.com/your-org/mediapipe/pkg/tracing"
)

const (
	// MaxAssets bounds the number of files in one upload.
	MaxAssets = 10

	// Items share this much of the progress bar; saving takes the rest.
	itemsShare = 90.0

	placeholderWidth  = 1080
	placeholderHeight = 1920
)

// Service drives uploads through probing, encoding, upload and
// persistence.
type Service struct {
	prober         media.Prober
	thumbnails     *media.ThumbnailExtractor
	sprites        *media.SpriteSheetGenerator
	transcoder     media.VideoTranscoder
	images         *media.ImageNormalizer
	uploader       media.ArtifactUploader
	store          objectstore.Client
	posts          posts.Store
	progress       progress.Tracker
	publisher      EventPublisher
	layout         layout.Layout
	tempDir        string
	thumbnailWidth int
	validate       *validator.Validate
	tracer         trace.Tracer
	logger         *zap.Logger
	// newID names the work dir and object prefix of one ingestion.
	newID func() string

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

type Params struct {
	Prober         media.Prober
	Thumbnails     *media.ThumbnailExtractor
	Sprites        *media.SpriteSheetGenerator
	Transcoder     media.VideoTranscoder
	Images         *media.ImageNormalizer
	Uploader       media.ArtifactUploader
	Store          objectstore.Client
	Posts          posts.Store
	Progress       progress.Tracker
	Publisher      EventPublisher
	Layout         layout.Layout
	TempDir        string
	ThumbnailWidth int
	Logger         *zap.Logger
}

// IngestRequest is one upload: an ordered batch of assets plus post fields.
type IngestRequest struct {
	RequestID      string        `validate:"omitempty,max=64,safeid"`
	OwnerID        string        `validate:"required,max=128,safeid"`
	Description    string        `validate:"max=5000"`
	BrandName      string        `validate:"max=256"`
	BrandURL       string        `validate:"omitempty,url"`
	CommercialType string        `validate:"max=128"`
	Assets         []media.Asset `validate:"min=1,max=10"`
}

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NewService constructs an ingestion Service.
func NewService(p Params) *Service {
	v := validator.New()
	// Ids end up in object keys and local paths.
	_ = v.RegisterValidation("safeid", func(fl validator.FieldLevel) bool {
		return safeID.MatchString(fl.Field().String())
	})

	thumbWidth := p.ThumbnailWidth
	if thumbWidth <= 0 {
		thumbWidth = 1080
	}
	logr := p.Logger
	if logr == nil {
		logr = zap.NewNop()
	}

	return &Service{
		prober:         p.Prober,
		thumbnails:     p.Thumbnails,
		sprites:        p.Sprites,
		transcoder:     p.Transcoder,
		images:         p.Images,
		uploader:       p.Uploader,
		store:          p.Store,
		posts:          p.Posts,
		progress:       p.Progress,
		publisher:      p.Publisher,
		layout:         p.Layout,
		tempDir:        p.TempDir,
		thumbnailWidth: thumbWidth,
		validate:       v,
		tracer:         otel.Tracer("mediapipe/ingestion"),
		logger:         logr,
		newID:          uuid.NewString,
	}
}

// Ingest processes every asset in order and persists one post. Any item
// failure fails the whole request and nothing is persisted. Local files,
// including the uploaded sources, are removed on every path. Processing
// is detached from ctx cancellation so an abandoned request still runs to
// completion.
//
// RequestID only keys progress. Work dirs and object keys use an id
// generated per call, so a retried upload never shares them with an
// attempt that is still running.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (rec *posts.Record, err error) {
	ctx = context.WithoutCancel(ctx)
	defer s.removeSources(req.Assets)

	if !s.begin() {
		return nil, ErrServiceClosed
	}
	defer s.inflight.Done()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if verr := s.validate.Struct(req); verr != nil {
		return nil, &ValidationError{Err: verr}
	}

	storageID := s.newID()
	logr := s.logger.With(
		zap.String("upload_id", req.RequestID),
		zap.String("storage_id", storageID),
		zap.String("owner_id", req.OwnerID),
		zap.Int("items", len(req.Assets)),
	)

	workDir := filepath.Join(s.tempDir, storageID)
	defer s.removeWorkDir(workDir, logr)

	ctx, span := s.tracer.Start(ctx, "ingestion.ingest", trace.WithAttributes(
		attribute.String("upload_id", req.RequestID),
		attribute.String("owner_id", req.OwnerID),
		attribute.Int("items", len(req.Assets)),
	))
	defer func() { tracing.Finish(span, err) }()

	metrics.IngestionsInFlight.Inc()
	defer metrics.IngestionsInFlight.Dec()

	postType := postTypeFor(req.Assets)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			s.setProgress(req.RequestID, progress.StageFailed, 0)
			logr.Error("ingestion failed", zap.Error(err))
		}
		metrics.IngestionsTotal.WithLabelValues(outcome, string(postType)).Inc()
	}()

	s.setProgress(req.RequestID, progress.StageReceived, 0)
	logr.Info("ingestion started", zap.String("post_type", string(postType)))

	entries := make(posts.MediaEntries, 0, len(req.Assets))
	for i, asset := range req.Assets {
		run := &itemRun{
			svc:       s,
			requestID: req.RequestID,
			storageID: storageID,
			index:     i,
			total:     len(req.Assets),
			prefix:    s.layout.ItemPrefix(req.OwnerID, storageID, i, len(req.Assets)),
			workDir:   filepath.Join(workDir, fmt.Sprintf("item_%d", i)),
			logger:    logr.With(zap.Int("item", i)),
		}
		if err := os.MkdirAll(run.workDir, 0o755); err != nil {
			return nil, &StageError{Item: i, Stage: progress.StageReceived, Err: err}
		}

		entry, err := classify(asset).produce(ctx, run)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		run.logger.Info("item ready", zap.String("type", string(entry.Type)), zap.String("url", entry.URL))
	}

	rec = buildRecord(req, postType, entries)

	s.setProgress(req.RequestID, progress.StageSaving, itemsShare)
	if err := s.posts.Create(ctx, rec); err != nil {
		metrics.StageFailures.WithLabelValues(string(progress.StageSaving)).Inc()
		return nil, &StageError{Item: -1, Stage: progress.StageSaving, Err: err}
	}
	s.setProgress(req.RequestID, progress.StageCompleted, 100)

	s.publish(ctx, rec.ID, EventPostCreated, PostCreatedEvent{
		PostID:       rec.ID,
		OwnerID:      rec.OwnerID,
		UploadID:     req.RequestID,
		PostType:     string(rec.PostType),
		VideoURL:     rec.VideoURL,
		ThumbnailURL: rec.ThumbnailURL,
		MediaCount:   len(rec.MediaURLs),
		IsCommercial: rec.IsCommercial,
		CreatedAt:    rec.CreatedAt,
	}, logr)

	logr.Info("ingestion completed", zap.String("post_id", rec.ID))
	return rec, nil
}

// Progress returns the progress of an upload, or progress.Unknown.
func (s *Service) Progress(ctx context.Context, uploadID string) progress.Snapshot {
	snap, err := s.progress.Get(ctx, uploadID)
	if err != nil {
		s.logger.Warn("read progress failed", zap.String("upload_id", uploadID), zap.Error(err))
		return progress.Unknown
	}
	return snap
}

// Close stops accepting ingestions, waits for running ones until ctx is
// done and then releases underlying resources.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	var errs []error
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("drain ingestions: %w", ctx.Err()))
	}

	if s.publisher != nil {
		errs = append(errs, s.publisher.Close(ctx))
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// begin registers an ingestion unless the service is closing.
func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

func postTypeFor(assets []media.Asset) posts.PostType {
	if len(assets) == 1 && assets[0].IsVideo() {
		return posts.PostTypeVideo
	}
	return posts.PostTypeCarousel
}

func buildRecord(req IngestRequest, postType posts.PostType, entries posts.MediaEntries) *posts.Record {
	first := entries[0]

	width, height := placeholderWidth, placeholderHeight
	if first.Type == posts.MediaTypeVideo {
		width, height = first.Width, first.Height
	}

	return &posts.Record{
		ID:               uuid.NewString(),
		OwnerID:          req.OwnerID,
		VideoURL:         first.URL,
		ThumbnailURL:     first.Thumbnail,
		SpriteURL:        posts.StringPtr(first.Sprite),
		SpriteParts:      first.SpriteParts,
		MediaURLs:        entries,
		PostType:         postType,
		Description:      req.Description,
		BrandName:        posts.StringPtr(req.BrandName),
		BrandURL:         posts.StringPtr(req.BrandURL),
		CommercialType:   posts.StringPtr(req.CommercialType),
		IsCommercial:     isCommercial(req.CommercialType),
		Width:            width,
		Height:           height,
		ProcessingStatus: posts.StatusCompleted,
	}
}

// setProgress is fire-and-forget: a tracker outage must not fail uploads.
func (s *Service) setProgress(id string, stage progress.Stage, percent float64) {
	if s.progress == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.progress.Set(ctx, id, stage, percent); err != nil {
		s.logger.Warn("update progress failed",
			zap.String("upload_id", id),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
	}
}

// publish logs failures only: the record is already durable.
func (s *Service) publish(ctx context.Context, key, eventType string, payload any, logr *zap.Logger) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, key, eventType, payload); err != nil {
		logr.Error("publish event failed", zap.String("event_type", eventType), zap.Error(err))
	}
}

func (s *Service) removeSources(assets []media.Asset) {
	for _, a := range assets {
		if a.Path == "" {
			continue
		}
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove upload source failed", zap.String("path", a.Path), zap.Error(err))
		}
	}
}

func (s *Service) removeWorkDir(dir string, logr *zap.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logr.Warn("remove work dir failed", zap.String("path", dir), zap.Error(err))
	}
}
