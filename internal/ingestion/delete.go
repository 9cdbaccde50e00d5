package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/mediapipe/internal/posts"
	"github.com/your-org/mediapipe/pkg/metrics"
	"github.com/your-org/mediapipe/pkg/tracing"
)

// DeletePost removes every stored object of a post and then its row. The
// storage prefix of each item is recovered from its URL, so no manifest of
// produced keys is needed. The row is only deleted once storage is clean.
func (s *Service) DeletePost(ctx context.Context, postID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "ingestion.delete", trace.WithAttributes(
		attribute.String("post_id", postID),
	))
	defer func() { tracing.Finish(span, err) }()

	rec, err := s.posts.Get(ctx, postID)
	if err != nil {
		return err
	}
	logr := s.logger.With(zap.String("post_id", postID), zap.String("owner_id", rec.OwnerID))

	prefixes, thumbKeys := s.storedLocations(rec)
	if len(prefixes) == 0 {
		logr.Warn("post has no recognisable storage prefix")
	}

	removed := 0
	for _, prefix := range prefixes {
		n, err := s.store.RemovePrefix(ctx, prefix+"/")
		removed += n
		metrics.ObjectsDeleted.Add(float64(n))
		if err != nil {
			return fmt.Errorf("remove objects under %s: %w", prefix, err)
		}
	}
	for _, key := range thumbKeys {
		if err := s.store.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove thumbnail %s: %w", key, err)
		}
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		return err
	}

	s.publish(ctx, postID, EventPostDeleted, PostDeletedEvent{
		PostID:         postID,
		OwnerID:        rec.OwnerID,
		ObjectsRemoved: removed,
		DeletedAt:      time.Now().UTC(),
	}, logr)

	logr.Info("post deleted", zap.Int("objects_removed", removed), zap.Int("prefixes", len(prefixes)))
	return nil
}

// storedLocations derives the item prefixes and thumbnail keys of rec.
// URLs that do not follow the key layout are skipped rather than guessed.
func (s *Service) storedLocations(rec *posts.Record) (prefixes, thumbKeys []string) {
	seenPrefix := map[string]bool{}
	addPrefix := func(url string) {
		if p, ok := s.layout.PrefixFromURL(url); ok && !seenPrefix[p] {
			seenPrefix[p] = true
			prefixes = append(prefixes, p)
		}
	}

	seenThumb := map[string]bool{}
	addThumb := func(url string) {
		key, ok := s.layout.ObjectKey(url)
		if ok && !seenThumb[key] {
			seenThumb[key] = true
			thumbKeys = append(thumbKeys, key)
		}
	}

	addPrefix(rec.VideoURL)
	addThumb(rec.ThumbnailURL)
	for _, entry := range rec.MediaURLs {
		addPrefix(entry.URL)
		addThumb(entry.Thumbnail)
	}
	return prefixes, thumbKeys
}
