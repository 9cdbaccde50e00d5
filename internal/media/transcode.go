package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/mediapipe/internal/layout"
)

const (
	gopSize         = "48"
	segmentSeconds  = "6"
	audioBitrate    = "128k"
	audioSampleRate = "44100"
	endList         = "#EXT-X-ENDLIST"
)

type TranscodeRequest struct {
	Source    string
	OutputDir string
	ID        string
	KeyPrefix string
	HasAudio  bool
	Width     int
	Height    int
	// OnProgress receives the encoder's completion percentage.
	OnProgress func(percent float64)
}

// VideoTranscoder encodes a source video, uploads the result under
// KeyPrefix and returns the URL players start from.
type VideoTranscoder interface {
	Transcode(ctx context.Context, req TranscodeRequest) (string, error)
}

// AdaptiveTranscoder produces a three-tier HLS bundle in one ffmpeg pass.
type AdaptiveTranscoder struct {
	encoder  Encoder
	uploader ArtifactUploader
	preset   string
	logger   *zap.Logger
}

func NewAdaptiveTranscoder(encoder Encoder, uploader ArtifactUploader, preset string, logger *zap.Logger) *AdaptiveTranscoder {
	if preset == "" {
		preset = "veryfast"
	}
	return &AdaptiveTranscoder{
		encoder:  encoder,
		uploader: uploader,
		preset:   preset,
		logger:   logger,
	}
}

// HLSArgs builds the single-pass HLS arguments for tiers. Without audio no
// audio stream is mapped and the variant map lists video streams only.
func HLSArgs(outputDir, preset string, tiers []RenditionTier, hasAudio bool) Args {
	args := Args{
		"-y",
		"-preset", preset,
		"-g", gopSize,
		"-sc_threshold", "0",
		"-hls_time", segmentSeconds,
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outputDir, layout.SegmentPattern),
	}

	variants := make([]string, 0, len(tiers))
	for i, tier := range tiers {
		idx := strconv.Itoa(i)
		if hasAudio {
			args = append(args, "-map", "0:a:0")
		}
		args = append(args,
			"-map", "0:v:0",
			"-s:v:"+idx, tier.Resolution(),
			"-c:v:"+idx, "libx264",
			"-b:v:"+idx, tier.Bitrate,
			"-maxrate:v:"+idx, tier.MaxRate,
			"-bufsize:v:"+idx, tier.BufSize,
		)
		if hasAudio {
			variants = append(variants, fmt.Sprintf("v:%d,a:%d", i, i))
		} else {
			variants = append(variants, fmt.Sprintf("v:%d", i))
		}
	}

	if hasAudio {
		args = append(args, "-c:a", "aac", "-b:a", audioBitrate, "-ar", audioSampleRate)
	}

	return append(args,
		"-var_stream_map", strings.Join(variants, " "),
		"-master_pl_name", layout.MasterPlaylist,
		"-f", "hls",
	)
}

// Transcode encodes req.Source, checks that every playlist was finalised
// and uploads the bundle. The master URL is only returned after every file
// of the bundle is in the store.
func (t *AdaptiveTranscoder) Transcode(ctx context.Context, req TranscodeRequest) (string, error) {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", &EncodeError{Op: "transcode", Output: req.OutputDir, Err: err}
	}

	tiers := Ladder(req.Width, req.Height)
	t.logger.Info("transcoding adaptive bundle",
		zap.String("id", req.ID),
		zap.String("high", tiers[0].Resolution()),
		zap.String("medium", tiers[1].Resolution()),
		zap.String("low", tiers[2].Resolution()),
		zap.Bool("has_audio", req.HasAudio),
	)

	err := t.encoder.Encode(ctx, Job{
		Input:      req.Source,
		Output:     filepath.Join(req.OutputDir, layout.StreamPlaylistPattern),
		Args:       HLSArgs(req.OutputDir, t.preset, tiers, req.HasAudio),
		OnProgress: req.OnProgress,
	})
	if err != nil {
		return "", wrapEncode("transcode", req.OutputDir, err)
	}
	if err := verifyBundle(req.OutputDir, len(tiers)); err != nil {
		return "", err
	}

	if _, err := t.uploader.UploadDir(ctx, req.OutputDir, req.KeyPrefix); err != nil {
		return "", err
	}
	return t.uploader.URL(req.KeyPrefix + "/" + layout.MasterPlaylist), nil
}

var errIncompletePlaylist = errors.New("playlist not finalised")

// verifyBundle checks the master manifest and that each tier playlist was
// closed with EXT-X-ENDLIST, which ffmpeg only writes on a clean finish.
func verifyBundle(dir string, tiers int) error {
	if err := verifyOutput("transcode", filepath.Join(dir, layout.MasterPlaylist)); err != nil {
		return err
	}
	for i := 0; i < tiers; i++ {
		p := filepath.Join(dir, layout.StreamPlaylist(i))
		body, err := os.ReadFile(p)
		if err != nil {
			return &EncodeError{Op: "transcode", Output: p, Err: err}
		}
		if !bytes.Contains(body, []byte(endList)) {
			return &EncodeError{Op: "transcode", Output: p, Err: errIncompletePlaylist}
		}
	}
	return nil
}
