package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/your-org/mediapipe/internal/layout"
)

const progressiveMaxWidth = 1080

// ProgressiveTranscoder produces a single faststart MP4 instead of an HLS
// bundle.
type ProgressiveTranscoder struct {
	encoder  Encoder
	uploader ArtifactUploader
	preset   string
	logger   *zap.Logger
}

func NewProgressiveTranscoder(encoder Encoder, uploader ArtifactUploader, preset string, logger *zap.Logger) *ProgressiveTranscoder {
	if preset == "" {
		preset = "veryfast"
	}
	return &ProgressiveTranscoder{
		encoder:  encoder,
		uploader: uploader,
		preset:   preset,
		logger:   logger,
	}
}

// MP4Args returns the arguments for a width-capped H.264 MP4.
func MP4Args(preset string, width int, hasAudio bool) Args {
	if width <= 0 || width > progressiveMaxWidth {
		width = progressiveMaxWidth
	}
	args := Args{
		"-y",
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", "23",
		"-maxrate", "4M",
		"-bufsize", "8M",
		"-vf", fmt.Sprintf("scale=%d:-2", even(width)),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	}
	if hasAudio {
		return append(args, "-c:a", "aac", "-b:a", audioBitrate, "-ar", audioSampleRate)
	}
	return append(args, "-an")
}

func (t *ProgressiveTranscoder) Transcode(ctx context.Context, req TranscodeRequest) (string, error) {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", &EncodeError{Op: "transcode", Output: req.OutputDir, Err: err}
	}

	out := filepath.Join(req.OutputDir, layout.MasterMP4)
	t.logger.Info("transcoding progressive mp4",
		zap.String("id", req.ID),
		zap.Int("source_width", req.Width),
		zap.Bool("has_audio", req.HasAudio),
	)

	err := t.encoder.Encode(ctx, Job{
		Input:      req.Source,
		Output:     out,
		Args:       MP4Args(t.preset, req.Width, req.HasAudio),
		OnProgress: req.OnProgress,
	})
	if err != nil {
		return "", wrapEncode("transcode", out, err)
	}
	if err := verifyOutput("transcode", out); err != nil {
		return "", err
	}

	a, err := t.uploader.UploadFile(ctx, out, req.KeyPrefix+"/"+layout.MasterMP4, "video/mp4")
	if err != nil {
		return "", err
	}
	return a.URL, nil
}
