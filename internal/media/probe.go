package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/vansante/go-ffprobe.v2"
)

// Asset is one uploaded file of a batch.
type Asset struct {
	Path     string
	MIMEType string
	Position int
}

// IsVideo reports whether the declared MIME type is a video type.
func (a Asset) IsVideo() bool {
	return strings.HasPrefix(strings.ToLower(a.MIMEType), "video/")
}

// ProbedMetadata describes a video in display orientation: Width and
// Height are already swapped for 90/270 degree rotations.
type ProbedMetadata struct {
	Width    int
	Height   int
	Duration float64
	Rotation int
	HasAudio bool
}

// Prober inspects a media file without decoding it.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbedMetadata, error)
}

// FFprobe reads container and stream metadata with the ffprobe binary.
type FFprobe struct {
	probe func(ctx context.Context, path string) (*ffprobe.ProbeData, error)
}

// NewFFprobe constructs an FFprobe using the binary at bin. The binary path
// is process-wide in the underlying library.
func NewFFprobe(bin string) *FFprobe {
	if bin != "" {
		ffprobe.SetFFProbeBinPath(bin)
	}
	return &FFprobe{probe: func(ctx context.Context, path string) (*ffprobe.ProbeData, error) {
		return ffprobe.ProbeURL(ctx, path)
	}}
}

func (p *FFprobe) Probe(ctx context.Context, path string) (*ProbedMetadata, error) {
	data, err := p.probe(ctx, path)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}

	meta, err := metadataFromProbe(data)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	return meta, nil
}

func metadataFromProbe(data *ffprobe.ProbeData) (*ProbedMetadata, error) {
	if data == nil {
		return nil, errors.New("empty ffprobe result")
	}

	var video *ffprobe.Stream
	hasAudio := false
	for _, s := range data.Streams {
		if s == nil {
			continue
		}
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			hasAudio = true
		}
	}
	if video == nil {
		return nil, errors.New("no video stream")
	}
	if video.Width <= 0 || video.Height <= 0 {
		return nil, fmt.Errorf("invalid video dimensions %dx%d", video.Width, video.Height)
	}

	meta := &ProbedMetadata{
		Width:    video.Width,
		Height:   video.Height,
		Duration: parseSeconds(video.Duration),
		Rotation: streamRotation(video),
		HasAudio: hasAudio,
	}
	// The container duration also covers audio that outlasts the picture.
	if meta.Duration <= 0 && data.Format != nil {
		meta.Duration = sanitizeSeconds(data.Format.DurationSeconds)
	}
	if meta.Rotation == 90 || meta.Rotation == 270 {
		meta.Width, meta.Height = meta.Height, meta.Width
	}
	return meta, nil
}

// streamRotation reads the legacy rotate tag first and falls back to the
// display matrix side data. The result is normalised to 0, 90, 180 or 270.
func streamRotation(s *ffprobe.Stream) int {
	if v, err := s.TagList.GetString("rotate"); err == nil {
		if deg, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return normalizeRotation(deg)
		}
	}
	for _, sd := range s.SideDataList {
		if dm, ok := sd.Data.(*ffprobe.SideDataDisplayMatrix); ok && dm.Rotation != 0 {
			return normalizeRotation(dm.Rotation)
		}
	}
	return 0
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

func parseSeconds(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return sanitizeSeconds(v)
}

func sanitizeSeconds(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
