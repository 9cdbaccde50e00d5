package media

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageNormalizerDownscalesToJPEG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "upload.png")
	require.NoError(t, imaging.Save(imaging.New(2160, 3840, color.NRGBA{R: 200, A: 255}), src))

	dst := filepath.Join(dir, "out", "image.jpg")
	info, err := NewImageNormalizer(1080, 90).Normalize(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1080, info.Width)
	assert.Equal(t, 1920, info.Height)

	format, err := imaging.FormatFromFilename(dst)
	require.NoError(t, err)
	assert.Equal(t, imaging.JPEG, format)

	decoded, err := imaging.Open(dst)
	require.NoError(t, err)
	assert.Equal(t, 1080, decoded.Bounds().Dx())
}

func TestImageNormalizerKeepsSmallImages(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.jpg")
	require.NoError(t, imaging.Save(imaging.New(640, 480, color.White), src))

	info, err := NewImageNormalizer(0, 0).Normalize(context.Background(), src, filepath.Join(dir, "image.jpg"))
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 480, info.Height)
}

func TestImageNormalizerRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0o644))

	_, err := NewImageNormalizer(1080, 90).Normalize(context.Background(), src, filepath.Join(dir, "image.jpg"))

	var perr *ProbeError
	require.ErrorAs(t, err, &perr)
}

func TestArgsAreTranscoderOptions(t *testing.T) {
	args := Args{"-y", "-vf", "scale=1:2", "-an"}
	assert.Equal(t, []string{"-y", "-vf", "scale=1:2", "-an"}, args.GetStrArguments())
}
