package media

import (
	"fmt"
	"math"
)

// RenditionTier is one quality level of the adaptive ladder.
type RenditionTier struct {
	Name    string
	Width   int
	Height  int
	Bitrate string
	MaxRate string
	BufSize string
}

// Resolution formats the tier size as WxH.
func (t RenditionTier) Resolution() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

type tierPolicy struct {
	name      string
	shortSide int
	bitrate   string
	maxRate   string
	bufSize   string
}

var ladderPolicy = []tierPolicy{
	{name: "high", shortSide: 1080, bitrate: "2500k", maxRate: "3000k", bufSize: "4000k"},
	{name: "medium", shortSide: 720, bitrate: "1200k", maxRate: "1500k", bufSize: "2000k"},
	{name: "low", shortSide: 480, bitrate: "600k", maxRate: "800k", bufSize: "1000k"},
}

// Ladder derives the three tiers from the display dimensions of the source.
// The short side is fixed per tier and the long side follows the source
// aspect ratio; both are rounded up to even values for yuv420p.
func Ladder(width, height int) []RenditionTier {
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	portrait := height > width
	ratio := float64(width) / float64(height)

	tiers := make([]RenditionTier, 0, len(ladderPolicy))
	for _, p := range ladderPolicy {
		var w, h int
		if portrait {
			w = p.shortSide
			h = int(math.Round(float64(w) / ratio))
		} else {
			h = p.shortSide
			w = int(math.Round(float64(h) * ratio))
		}
		tiers = append(tiers, RenditionTier{
			Name:    p.name,
			Width:   even(w),
			Height:  even(h),
			Bitrate: p.bitrate,
			MaxRate: p.maxRate,
			BufSize: p.bufSize,
		})
	}
	return tiers
}

func even(v int) int {
	if v%2 != 0 {
		return v + 1
	}
	return v
}
