package progress

import (
	"context"
	"math"
)

// Stage names the pipeline step a request is in.
type Stage string

const (
	StageReceived    Stage = "received"
	StageProbing     Stage = "probing"
	StageThumbnail   Stage = "thumbnail"
	StageTranscoding Stage = "transcoding"
	StageSprites     Stage = "sprites"
	StageUploading   Stage = "uploading"
	StageSaving      Stage = "saving"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
	StageUnknown     Stage = "unknown"
)

// Snapshot is what progress queries return.
type Snapshot struct {
	Stage   Stage   `json:"stage"`
	Percent float64 `json:"percent"`
}

// Unknown is returned for ids the tracker has never seen or has evicted.
var Unknown = Snapshot{Stage: StageUnknown, Percent: 0}

// Tracker stores per-request progress. Percentages never go down: Set
// keeps the larger of the stored and the new value, while the stage is
// always replaced.
type Tracker interface {
	Set(ctx context.Context, id string, stage Stage, percent float64) error
	Get(ctx context.Context, id string) (Snapshot, error)
}

func clamp(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
