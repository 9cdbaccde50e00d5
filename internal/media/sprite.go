package media

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/mediapipe/internal/layout"
	"github.com/your-org/mediapipe/pkg/metrics"
)

const (
	// DefaultSpriteSegment is the window covered by one sprite part.
	DefaultSpriteSegment = 100

	spriteFilter = "fps=1,scale=200:360:force_original_aspect_ratio=decrease,pad=200:360:(ow-iw)/2:(oh-ih)/2:black,tile=10x10"
)

// SpriteSet lists the uploaded sprite parts in order. Part n covers
// seconds [n*segment, (n+1)*segment).
type SpriteSet struct {
	URLs []string
}

// FirstURL returns the URL of part 0.
func (s SpriteSet) FirstURL() string {
	if len(s.URLs) == 0 {
		return ""
	}
	return s.URLs[0]
}

func (s SpriteSet) Count() int {
	return len(s.URLs)
}

// SpritePartURL derives the URL of part n from the URL of part 0 by
// replacing the trailing index.
func SpritePartURL(firstURL string, n int) string {
	const suffix = "_0.jpg"
	if !strings.HasSuffix(firstURL, suffix) {
		return firstURL
	}
	return strings.TrimSuffix(firstURL, suffix) + "_" + strconv.Itoa(n) + ".jpg"
}

// SpritePartCount is max(1, ceil(duration/segment)). An unknown duration
// yields one part.
func SpritePartCount(duration float64, segment int) int {
	if segment <= 0 {
		segment = DefaultSpriteSegment
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 1
	}
	n := int(math.Ceil(duration / float64(segment)))
	if n < 1 {
		return 1
	}
	return n
}

// SpriteArgs returns the ffmpeg arguments that render part n.
func SpriteArgs(n, segment int) Args {
	return Args{
		"-y",
		"-ss", strconv.Itoa(n * segment),
		"-t", strconv.Itoa(segment),
		"-vf", spriteFilter,
		"-frames:v", "1",
		"-q:v", "2",
	}
}

type SpriteRequest struct {
	Source    string
	OutputDir string
	ID        string
	KeyPrefix string
	Duration  float64
}

// SpriteSheetGenerator renders scrubber sprite sheets, one tiled JPEG per
// time window.
type SpriteSheetGenerator struct {
	encoder  Encoder
	uploader ArtifactUploader
	segment  int
	logger   *zap.Logger
}

func NewSpriteSheetGenerator(encoder Encoder, uploader ArtifactUploader, segment int, logger *zap.Logger) *SpriteSheetGenerator {
	if segment <= 0 {
		segment = DefaultSpriteSegment
	}
	return &SpriteSheetGenerator{
		encoder:  encoder,
		uploader: uploader,
		segment:  segment,
		logger:   logger,
	}
}

// Generate encodes the parts one after another. Each finished part is
// uploaded while the next one encodes and its local file is removed once
// the upload is done. The first encode or upload failure stops the
// remaining parts and fails the call. No part file is left on disk when
// Generate returns.
func (g *SpriteSheetGenerator) Generate(ctx context.Context, req SpriteRequest) (*SpriteSet, error) {
	parts := SpritePartCount(req.Duration, g.segment)
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, &EncodeError{Op: "sprite", Output: req.OutputDir, Err: err}
	}

	paths := make([]string, parts)
	for n := range paths {
		paths[n] = filepath.Join(req.OutputDir, layout.SpritePart(req.ID, n))
	}
	defer g.removeLeftovers(paths)

	urls := make([]string, parts)
	uploads, uctx := errgroup.WithContext(ctx)

	var encodeErr error
	for n := 0; n < parts; n++ {
		if uctx.Err() != nil {
			break
		}

		path := paths[n]
		err := g.encoder.Encode(uctx, Job{Input: req.Source, Output: path, Args: SpriteArgs(n, g.segment)})
		if err == nil {
			err = verifyOutput("sprite", path)
		}
		if err != nil {
			encodeErr = wrapEncode("sprite", path, err)
			break
		}

		uploads.Go(func() error {
			a, err := g.uploader.UploadFile(uctx, path, req.KeyPrefix+"/"+filepath.Base(path), "image/jpeg")
			if err != nil {
				return err
			}
			urls[n] = a.URL
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				g.logger.Warn("remove sprite part failed", zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}

	// Upload failures take precedence: they cancel uctx, which is usually
	// what made a later encode fail.
	if err := uploads.Wait(); err != nil {
		return nil, err
	}
	if encodeErr != nil {
		return nil, encodeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, &EncodeError{Op: "sprite", Output: req.OutputDir, Err: err}
	}

	metrics.SpriteParts.Observe(float64(parts))
	g.logger.Debug("sprite sheets uploaded",
		zap.String("id", req.ID),
		zap.Int("parts", parts),
		zap.Float64("duration", req.Duration),
	)
	return &SpriteSet{URLs: urls}, nil
}

func (g *SpriteSheetGenerator) removeLeftovers(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.logger.Warn("remove sprite part failed", zap.String("path", p), zap.Error(err))
		}
	}
}
