package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
	"go.uber.org/zap"
)

// Args is an ffmpeg argument list placed after "-i <input>".
type Args []string

// GetStrArguments implements transcoder.Options.
func (a Args) GetStrArguments() []string {
	return a
}

// Job is a single ffmpeg invocation.
type Job struct {
	Input  string
	Output string
	Args   Args
	// OnProgress receives the completion percentage (0-100) when known.
	OnProgress func(percent float64)
}

// Encoder runs ffmpeg jobs.
type Encoder interface {
	Encode(ctx context.Context, job Job) error
}

// FFmpegEncoder runs jobs through the ffmpeg binary.
type FFmpegEncoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

// NewFFmpegEncoder constructs an FFmpegEncoder.
func NewFFmpegEncoder(ffmpegPath, ffprobePath string, logger *zap.Logger) *FFmpegEncoder {
	return &FFmpegEncoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}
}

// Encode starts ffmpeg and blocks until the progress stream closes. A
// non-zero exit is an EncodeError even when ffmpeg left output behind.
func (e *FFmpegEncoder) Encode(ctx context.Context, job Job) error {
	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return &EncodeError{Op: "prepare", Output: job.Output, Err: err}
	}

	run := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   e.ffmpegPath,
			FfprobeBinPath:  e.ffprobePath,
		}).
		Input(job.Input).
		Output(job.Output).
		WithContext(&ctx)

	e.logger.Debug("ffmpeg starting",
		zap.String("input", job.Input),
		zap.String("output", job.Output),
		zap.String("args", strings.Join(job.Args, " ")),
	)

	progress, err := run.Start(job.Args)
	if err != nil {
		return &EncodeError{Op: "ffmpeg", Output: job.Output, Err: err}
	}

	for p := range progress {
		if job.OnProgress != nil {
			job.OnProgress(p.GetProgress())
		}
	}

	if err := ctx.Err(); err != nil {
		return &EncodeError{Op: "ffmpeg", Output: job.Output, Err: err}
	}

	// The progress channel closes only after the process has been waited on.
	cmd := run.GetRunningCmdInstance()
	if cmd == nil || cmd.ProcessState == nil {
		return &EncodeError{Op: "ffmpeg", Output: job.Output, Err: errNoExitStatus}
	}
	if !cmd.ProcessState.Success() {
		return &EncodeError{Op: "ffmpeg", Output: job.Output, Err: fmt.Errorf("ffmpeg %s", cmd.ProcessState)}
	}
	return nil
}

var (
	errEmptyOutput  = errors.New("output missing or empty")
	errNoExitStatus = errors.New("ffmpeg exit status unavailable")
)

// verifyOutput checks that ffmpeg left a non-empty file at path.
func verifyOutput(op, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &EncodeError{Op: op, Output: path, Err: fmt.Errorf("%w: %v", errEmptyOutput, err)}
	}
	if info.IsDir() || info.Size() == 0 {
		return &EncodeError{Op: op, Output: path, Err: errEmptyOutput}
	}
	return nil
}
