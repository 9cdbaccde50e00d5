package ingestion

import (
	"context"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/mediapipe/internal/layout"
	"github.com/your-org/mediapipe/internal/media"
	"github.com/your-org/mediapipe/internal/posts"
	"github.com/your-org/mediapipe/internal/progress"
	"github.com/your-org/mediapipe/pkg/metrics"
	"github.com/your-org/mediapipe/pkg/tracing"
)

// item is one asset of a batch. Each variant turns its asset into the
// artifacts of one media entry.
type item interface {
	produce(ctx context.Context, run *itemRun) (posts.MediaEntry, error)
}

type videoItem struct {
	asset media.Asset
}

type imageItem struct {
	asset media.Asset
}

func classify(asset media.Asset) item {
	if asset.IsVideo() {
		return videoItem{asset: asset}
	}
	return imageItem{asset: asset}
}

// Share of the per-item progress budget reached when each stage starts.
const (
	videoProbeAt     = 0.00
	videoThumbnailAt = 0.05
	videoTranscodeAt = 0.10
	videoSpritesAt   = 0.80
	videoUploadAt    = 0.95
	imageUploadAt    = 0.50
)

func (v videoItem) produce(ctx context.Context, run *itemRun) (posts.MediaEntry, error) {
	s := run.svc

	var meta *media.ProbedMetadata
	err := run.stage(ctx, progress.StageProbing, videoProbeAt, func(ctx context.Context) error {
		m, err := s.prober.Probe(ctx, v.asset.Path)
		meta = m
		return err
	})
	if err != nil {
		return posts.MediaEntry{}, err
	}
	run.logger.Info("video probed",
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
		zap.Int("rotation", meta.Rotation),
		zap.Float64("duration", meta.Duration),
		zap.Bool("has_audio", meta.HasAudio),
	)

	thumbPath := filepath.Join(run.workDir, layout.Thumbnail)
	err = run.stage(ctx, progress.StageThumbnail, videoThumbnailAt, func(ctx context.Context) error {
		return s.thumbnails.Extract(ctx, v.asset.Path, thumbPath, s.thumbnailWidth)
	})
	if err != nil {
		return posts.MediaEntry{}, err
	}

	var videoURL string
	err = run.stage(ctx, progress.StageTranscoding, videoTranscodeAt, func(ctx context.Context) error {
		url, err := s.transcoder.Transcode(ctx, media.TranscodeRequest{
			Source:    v.asset.Path,
			OutputDir: filepath.Join(run.workDir, "bundle"),
			ID:        run.storageID,
			KeyPrefix: run.prefix,
			HasAudio:  meta.HasAudio,
			Width:     meta.Width,
			Height:    meta.Height,
			OnProgress: func(percent float64) {
				run.report(progress.StageTranscoding, videoTranscodeAt+(videoSpritesAt-videoTranscodeAt)*percent/100)
			},
		})
		videoURL = url
		return err
	})
	if err != nil {
		return posts.MediaEntry{}, err
	}

	var sprites *media.SpriteSet
	err = run.stage(ctx, progress.StageSprites, videoSpritesAt, func(ctx context.Context) error {
		set, err := s.sprites.Generate(ctx, media.SpriteRequest{
			Source:    v.asset.Path,
			OutputDir: filepath.Join(run.workDir, "sprites"),
			ID:        run.storageID,
			KeyPrefix: run.prefix,
			Duration:  meta.Duration,
		})
		sprites = set
		return err
	})
	if err != nil {
		return posts.MediaEntry{}, err
	}

	var thumbURL string
	err = run.stage(ctx, progress.StageUploading, videoUploadAt, func(ctx context.Context) error {
		a, err := s.uploader.UploadFile(ctx, thumbPath, s.layout.Key(run.prefix, layout.Thumbnail), "image/jpeg")
		thumbURL = a.URL
		return err
	})
	if err != nil {
		return posts.MediaEntry{}, err
	}

	return posts.MediaEntry{
		URL:         videoURL,
		Type:        posts.MediaTypeVideo,
		Thumbnail:   thumbURL,
		Sprite:      sprites.FirstURL(),
		SpriteParts: sprites.Count(),
		Width:       meta.Width,
		Height:      meta.Height,
		Duration:    meta.Duration,
	}, nil
}

func (i imageItem) produce(ctx context.Context, run *itemRun) (posts.MediaEntry, error) {
	s := run.svc

	imagePath := filepath.Join(run.workDir, layout.Image)
	var info *media.ImageInfo
	err := run.stage(ctx, progress.StageProbing, videoProbeAt, func(ctx context.Context) error {
		res, err := s.images.Normalize(ctx, i.asset.Path, imagePath)
		info = res
		return err
	})
	if err != nil {
		return posts.MediaEntry{}, err
	}

	var imageURL string
	err = run.stage(ctx, progress.StageUploading, imageUploadAt, func(ctx context.Context) error {
		a, err := s.uploader.UploadFile(ctx, imagePath, s.layout.Key(run.prefix, layout.Image), "image/jpeg")
		imageURL = a.URL
		return err
	})
	if err != nil {
		return posts.MediaEntry{}, err
	}

	return posts.MediaEntry{
		URL:       imageURL,
		Type:      posts.MediaTypeImage,
		Thumbnail: imageURL,
		Width:     info.Width,
		Height:    info.Height,
	}, nil
}

// itemRun carries the per-item context every stage needs.
type itemRun struct {
	svc       *Service
	requestID string
	storageID string
	index     int
	total     int
	prefix    string
	workDir   string
	logger    *zap.Logger
}

// report maps the item-local fraction onto the request-wide percentage.
// Items share the first 90 percent; persisting takes the rest.
func (r *itemRun) report(stage progress.Stage, fraction float64) {
	percent := (float64(r.index) + fraction) / float64(r.total) * itemsShare
	r.svc.setProgress(r.requestID, stage, percent)
}

// stage runs fn as one traced, timed pipeline stage. Failures come back
// as a *StageError naming this item.
func (r *itemRun) stage(ctx context.Context, stage progress.Stage, fraction float64, fn func(context.Context) error) error {
	r.report(stage, fraction)

	ctx, span := r.svc.tracer.Start(ctx, "ingestion."+string(stage), trace.WithAttributes(
		attribute.String("upload_id", r.requestID),
		attribute.Int("item", r.index),
	))
	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	tracing.Finish(span, err)

	if err != nil {
		metrics.StageFailures.WithLabelValues(string(stage)).Inc()
		return &StageError{Item: r.index, Stage: stage, Err: err}
	}
	return nil
}
