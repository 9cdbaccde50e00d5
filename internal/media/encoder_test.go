package media_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/mediapipe/internal/media"
	"github.com/your-org/mediapipe/internal/upload"
	"github.com/your-org/mediapipe/pkg/storage/objectstore"
)

// stubTools writes shell stand-ins for ffmpeg and ffprobe. The ffmpeg stub
// writes "partial" to its last argument and exits with exitCode.
func stubTools(t *testing.T, exitCode string) (ffmpegPath, ffprobePath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs need a POSIX shell")
	}
	dir := t.TempDir()
	ffmpegPath = filepath.Join(dir, "ffmpeg")
	ffprobePath = filepath.Join(dir, "ffprobe")

	ffmpeg := "#!/bin/sh\nfor last; do :; done\nprintf partial > \"$last\"\nexit " + exitCode + "\n"
	ffprobe := "#!/bin/sh\necho '{\"format\":{\"duration\":\"1.0\"},\"streams\":[]}'\n"
	require.NoError(t, os.WriteFile(ffmpegPath, []byte(ffmpeg), 0o755))
	require.NoError(t, os.WriteFile(ffprobePath, []byte(ffprobe), 0o755))
	return ffmpegPath, ffprobePath
}

func sourceFile(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "in.mp4")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0o644))
	return src
}

func TestFFmpegEncoderSucceeds(t *testing.T) {
	ffmpegPath, ffprobePath := stubTools(t, "0")
	enc := media.NewFFmpegEncoder(ffmpegPath, ffprobePath, zaptest.NewLogger(t))

	dst := filepath.Join(t.TempDir(), "nested", "thumb.jpg")
	err := media.NewThumbnailExtractor(enc).Extract(context.Background(), sourceFile(t), dst, 320)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))
}

func TestFFmpegNonZeroExitFailsThumbnail(t *testing.T) {
	ffmpegPath, ffprobePath := stubTools(t, "1")
	enc := media.NewFFmpegEncoder(ffmpegPath, ffprobePath, zaptest.NewLogger(t))

	dst := filepath.Join(t.TempDir(), "thumb.jpg")
	err := media.NewThumbnailExtractor(enc).Extract(context.Background(), sourceFile(t), dst, 320)

	var encErr *media.EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "ffmpeg", encErr.Op)
	assert.Contains(t, encErr.Error(), "exit status 1")
}

func TestFFmpegNonZeroExitUploadsNothing(t *testing.T) {
	ffmpegPath, ffprobePath := stubTools(t, "1")
	enc := media.NewFFmpegEncoder(ffmpegPath, ffprobePath, zaptest.NewLogger(t))
	store := objectstore.NewMemory()
	uploader := upload.New(upload.Params{
		Store:         store,
		PublicBaseURL: "https://cdn.example.com",
		Concurrency:   2,
		Logger:        zaptest.NewLogger(t),
	})

	url, err := media.NewProgressiveTranscoder(enc, uploader, "veryfast", zaptest.NewLogger(t)).
		Transcode(context.Background(), media.TranscodeRequest{
			Source:    sourceFile(t),
			OutputDir: t.TempDir(),
			ID:        "r",
			KeyPrefix: "media/u/posts/r",
			Width:     640,
			Height:    360,
		})

	var encErr *media.EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Empty(t, url)
	assert.Empty(t, store.Keys())
}
