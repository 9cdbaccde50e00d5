package media

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLadderLandscape(t *testing.T) {
	tiers := Ladder(1920, 1080)
	require.Len(t, tiers, 3)

	assert.Equal(t, "1920x1080", tiers[0].Resolution())
	assert.Equal(t, "1280x720", tiers[1].Resolution())
	assert.Equal(t, "854x480", tiers[2].Resolution())

	assert.Equal(t, []string{"high", "medium", "low"}, []string{tiers[0].Name, tiers[1].Name, tiers[2].Name})
	assert.Equal(t, "2500k", tiers[0].Bitrate)
	assert.Equal(t, "3000k", tiers[0].MaxRate)
	assert.Equal(t, "4000k", tiers[0].BufSize)
	assert.Equal(t, "600k", tiers[2].Bitrate)
	assert.Equal(t, "1000k", tiers[2].BufSize)
}

func TestLadderPortrait(t *testing.T) {
	tiers := Ladder(1080, 1920)

	assert.Equal(t, "1080x1920", tiers[0].Resolution())
	assert.Equal(t, "720x1280", tiers[1].Resolution())
	assert.Equal(t, "480x854", tiers[2].Resolution())
}

func TestLadderSquareIsTreatedAsLandscape(t *testing.T) {
	tiers := Ladder(500, 500)
	assert.Equal(t, "1080x1080", tiers[0].Resolution())
	assert.Equal(t, "480x480", tiers[2].Resolution())
}

func TestLadderFallsBackOnInvalidInput(t *testing.T) {
	assert.Equal(t, Ladder(1920, 1080), Ladder(0, 0))
	assert.Equal(t, Ladder(1920, 1080), Ladder(-5, 720))
}

func TestLadderEvenAndAspectPreserving(t *testing.T) {
	sizes := [][2]int{
		{1920, 1080}, {1080, 1920}, {1280, 720}, {720, 1280},
		{640, 480}, {480, 640}, {1440, 1080}, {1000, 333},
		{333, 1000}, {3840, 2160}, {1081, 1921}, {719, 405},
		{2560, 1080}, {1, 2}, {17, 9},
	}
	for _, size := range sizes {
		w, h := size[0], size[1]
		srcRatio := float64(w) / float64(h)
		for _, tier := range Ladder(w, h) {
			assert.Zero(t, tier.Width%2, "%dx%d -> %s", w, h, tier.Resolution())
			assert.Zero(t, tier.Height%2, "%dx%d -> %s", w, h, tier.Resolution())

			// Rounding to the nearest pixel and then to an even value moves
			// the long side by at most 1.5 pixels.
			if h > w {
				assert.LessOrEqual(t, math.Abs(float64(tier.Height)-float64(tier.Width)/srcRatio), 1.5)
			} else {
				assert.LessOrEqual(t, math.Abs(float64(tier.Width)-float64(tier.Height)*srcRatio), 1.5)
			}
		}
	}
}
