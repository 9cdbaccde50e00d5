package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion metrics
var (
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediapipe_ingestions_total",
			Help: "Total number of ingestion requests by outcome and post type",
		},
		[]string{"outcome", "post_type"},
	)

	IngestionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediapipe_ingestions_in_flight",
			Help: "Number of ingestion requests currently being processed",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediapipe_stage_duration_seconds",
			Help:    "Duration of a pipeline stage for a single item",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediapipe_stage_failures_total",
			Help: "Total number of items that failed, by stage",
		},
		[]string{"stage"},
	)
)

// Storage metrics
var (
	ObjectsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediapipe_objects_uploaded_total",
			Help: "Total number of objects written to the object store",
		},
		[]string{"content_type"},
	)

	BytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediapipe_bytes_uploaded_total",
			Help: "Total number of bytes written to the object store",
		},
	)

	UploadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediapipe_upload_failures_total",
			Help: "Total number of failed object writes",
		},
	)

	ObjectsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediapipe_objects_deleted_total",
			Help: "Total number of objects removed when posts are deleted",
		},
	)
)

// Event metrics
var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediapipe_events_published_total",
			Help: "Total number of post events handed to Kafka, by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)
)

// Sprite metrics
var (
	SpriteParts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediapipe_sprite_parts",
			Help:    "Number of sprite sheet parts generated per video",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
