package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/mediapipe/internal/ingestion"
	"github.com/your-org/mediapipe/internal/layout"
	"github.com/your-org/mediapipe/internal/media"
	"github.com/your-org/mediapipe/internal/posts"
	"github.com/your-org/mediapipe/internal/progress"
	"github.com/your-org/mediapipe/internal/upload"
	"github.com/your-org/mediapipe/pkg/config"
	"github.com/your-org/mediapipe/pkg/database"
	"github.com/your-org/mediapipe/pkg/kafka"
	"github.com/your-org/mediapipe/pkg/logger"
	"github.com/your-org/mediapipe/pkg/metrics"
	"github.com/your-org/mediapipe/pkg/storage/objectstore"
	"github.com/your-org/mediapipe/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.Environment)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  tracing.ParseAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.PostsTopic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})

	store, err := objectstore.New(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logr.Fatal("init object store", zap.Error(err))
	}

	uploader := upload.New(upload.Params{
		Store:         store,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		CacheControl:  cfg.Storage.CacheControl,
		Concurrency:   cfg.Upload.Concurrency,
		Logger:        logr,
	})

	encoder := media.NewFFmpegEncoder(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath, logr)

	var transcoder media.VideoTranscoder
	switch strings.ToLower(cfg.Pipeline.DeliveryMode) {
	case "hls", "":
		transcoder = media.NewAdaptiveTranscoder(encoder, uploader, cfg.FFmpeg.Preset, logr)
	case "mp4":
		transcoder = media.NewProgressiveTranscoder(encoder, uploader, cfg.FFmpeg.Preset, logr)
	default:
		logr.Fatal("unknown delivery mode", zap.String("mode", cfg.Pipeline.DeliveryMode))
	}

	tracker, closeTracker := newTracker(cfg, logr)
	defer closeTracker()

	postStore, closePosts := newPostStore(ctx, cfg, logr)
	defer closePosts()

	service := ingestion.NewService(ingestion.Params{
		Prober:         media.NewFFprobe(cfg.FFmpeg.FFprobePath),
		Thumbnails:     media.NewThumbnailExtractor(encoder),
		Sprites:        media.NewSpriteSheetGenerator(encoder, uploader, cfg.Pipeline.SpriteSegment, logr),
		Transcoder:     transcoder,
		Images:         media.NewImageNormalizer(cfg.Pipeline.ImageMaxWidth, cfg.Pipeline.ImageJPEGQuality),
		Uploader:       uploader,
		Store:          store,
		Posts:          postStore,
		Progress:       tracker,
		Publisher:      producer,
		Layout:         layout.New(cfg.Pipeline.KeyRoot, cfg.Pipeline.KeyCollection),
		TempDir:        filepath.Join(cfg.Pipeline.TempDir, "work"),
		ThumbnailWidth: cfg.Pipeline.ThumbnailWidth,
		Logger:         logr,
	})

	handler := ingestion.NewHTTPHandler(ingestion.HTTPParams{
		Service:      service,
		Logger:       logr,
		MaxSizeBytes: cfg.Upload.MaxSizeBytes,
		FormMemBytes: cfg.Upload.MultipartMemBytes,
		MaxFiles:     cfg.Upload.MaxFiles,
		StagingDir:   filepath.Join(cfg.Pipeline.TempDir, "incoming"),
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Info("metrics server starting", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("metrics server failed", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logr.Error("metrics server shutdown failed", zap.Error(err))
		}
		if err := service.Close(shutdownCtx); err != nil {
			logr.Error("service shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("ingestion service starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("delivery_mode", cfg.Pipeline.DeliveryMode),
		zap.String("progress_backend", cfg.Progress.Backend),
		zap.String("database_backend", cfg.Database.Backend),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Fatal("http server failed", zap.Error(err))
	}
	<-done
	logr.Info("ingestion service stopped")
}

func newTracker(cfg *config.Config, logr *zap.Logger) (progress.Tracker, func()) {
	switch strings.ToLower(cfg.Progress.Backend) {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return progress.NewRedis(client, cfg.Progress.TTL), func() {
			if err := client.Close(); err != nil {
				logr.Warn("close redis failed", zap.Error(err))
			}
		}
	case "memory", "":
		mem := progress.NewMemory(cfg.Progress.TTL, cfg.Progress.Capacity)
		return mem, func() { mem.Close() } //nolint:errcheck
	default:
		logr.Fatal("unknown progress backend", zap.String("backend", cfg.Progress.Backend))
		return nil, nil
	}
}

func newPostStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (posts.Store, func()) {
	switch strings.ToLower(cfg.Database.Backend) {
	case "postgres", "":
		db, err := database.Open(ctx, database.Config{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			LogQueries:   cfg.Database.LogQueries,
		}, logr)
		if err != nil {
			logr.Fatal("open database", zap.Error(err))
		}
		return posts.NewRepository(db), func() {
			if err := db.Close(); err != nil {
				logr.Warn("close database failed", zap.Error(err))
			}
		}
	case "memory":
		logr.Warn("posts are kept in memory and lost on restart")
		return posts.NewMemory(), func() {}
	default:
		logr.Fatal("unknown database backend", zap.String("backend", cfg.Database.Backend))
		return nil, nil
	}
}
