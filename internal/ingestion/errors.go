package ingestion

import (
	"errors"
	"fmt"

	"github.com/your-org/mediapipe/internal/progress"
)

// ErrServiceClosed is returned by Ingest once shutdown has begun.
var ErrServiceClosed = errors.New("ingestion service is shutting down")

// StageError records which item failed and in which stage.
type StageError struct {
	Item  int
	Stage progress.Stage
	Err   error
}

func (e *StageError) Error() string {
	if e.Item < 0 {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("item %d %s: %v", e.Item+1, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ValidationError wraps a rejected ingest request.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
