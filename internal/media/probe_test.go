package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/vansante/go-ffprobe.v2"
)

func probeJSON(width, height int, rotateTag string, withAudio bool) string {
	tags := ""
	if rotateTag != "" {
		tags = fmt.Sprintf(`,"tags":{"rotate":%q}`, rotateTag)
	}
	audio := ""
	if withAudio {
		audio = `,{"codec_type":"audio","codec_name":"aac"}`
	}
	return fmt.Sprintf(`{
		"streams":[{"codec_type":"video","width":%d,"height":%d,"duration":"12.5"%s}%s],
		"format":{"duration":"45.120000"}
	}`, width, height, tags, audio)
}

func decodeProbe(t *testing.T, raw string) *ffprobe.ProbeData {
	t.Helper()
	var data ffprobe.ProbeData
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return &data
}

func TestMetadataRotationSwap(t *testing.T) {
	cases := []struct {
		rotate       string
		wantW        int
		wantH        int
		wantRotation int
	}{
		{"", 1920, 1080, 0},
		{"0", 1920, 1080, 0},
		{"180", 1920, 1080, 180},
		{"-180", 1920, 1080, 180},
		{"90", 1080, 1920, 90},
		{"-90", 1080, 1920, 270},
		{"270", 1080, 1920, 270},
		{"-270", 1080, 1920, 90},
	}
	for _, tc := range cases {
		t.Run("rotate="+tc.rotate, func(t *testing.T) {
			meta, err := metadataFromProbe(decodeProbe(t, probeJSON(1920, 1080, tc.rotate, true)))
			require.NoError(t, err)
			assert.Equal(t, tc.wantW, meta.Width)
			assert.Equal(t, tc.wantH, meta.Height)
			assert.Equal(t, tc.wantRotation, meta.Rotation)
		})
	}
}

func TestMetadataDisplayMatrix(t *testing.T) {
	raw := `{
		"streams":[{"codec_type":"video","width":1920,"height":1080,
			"side_data_list":[{"side_data_type":"Display Matrix","rotation":-90}]}],
		"format":{"duration":"3.0"}
	}`
	meta, err := metadataFromProbe(decodeProbe(t, raw))
	require.NoError(t, err)
	assert.Equal(t, 1080, meta.Width)
	assert.Equal(t, 1920, meta.Height)
	assert.Equal(t, 270, meta.Rotation)
	assert.False(t, meta.HasAudio)
}

func TestMetadataDurationPrefersVideoStream(t *testing.T) {
	meta, err := metadataFromProbe(decodeProbe(t, probeJSON(640, 480, "", true)))
	require.NoError(t, err)
	assert.InDelta(t, 12.5, meta.Duration, 1e-9)
	assert.True(t, meta.HasAudio)

	// Audio running past a sprite window boundary must not add an empty
	// sprite part.
	raw := `{"streams":[{"codec_type":"video","width":640,"height":480,"duration":"99.900000"},
		{"codec_type":"audio","duration":"100.200000"}],"format":{"duration":"100.200000"}}`
	meta, err = metadataFromProbe(decodeProbe(t, raw))
	require.NoError(t, err)
	assert.InDelta(t, 99.9, meta.Duration, 1e-9)
	assert.Equal(t, 1, SpritePartCount(meta.Duration, DefaultSpriteSegment))
}

func TestMetadataDurationFallsBackToFormat(t *testing.T) {
	raw := `{"streams":[{"codec_type":"video","width":640,"height":480}],"format":{"duration":"7.25"}}`
	meta, err := metadataFromProbe(decodeProbe(t, raw))
	require.NoError(t, err)
	assert.InDelta(t, 7.25, meta.Duration, 1e-9)
	assert.False(t, meta.HasAudio)

	raw = `{"streams":[{"codec_type":"video","width":640,"height":480,"duration":"N/A"}],"format":{}}`
	meta, err = metadataFromProbe(decodeProbe(t, raw))
	require.NoError(t, err)
	assert.Zero(t, meta.Duration)
}

func TestMetadataRejectsInputWithoutVideo(t *testing.T) {
	_, err := metadataFromProbe(decodeProbe(t, `{"streams":[{"codec_type":"audio"}],"format":{"duration":"1"}}`))
	require.Error(t, err)

	_, err = metadataFromProbe(decodeProbe(t, `{"streams":[{"codec_type":"video","width":0,"height":0}]}`))
	require.Error(t, err)

	_, err = metadataFromProbe(nil)
	require.Error(t, err)
}

func TestFFprobeWrapsFailures(t *testing.T) {
	p := &FFprobe{probe: func(context.Context, string) (*ffprobe.ProbeData, error) {
		return nil, errors.New("exit status 1")
	}}

	_, err := p.Probe(context.Background(), "/tmp/in.mp4")

	var perr *ProbeError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "/tmp/in.mp4", perr.Path)
}

func TestFFprobeRunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub needs a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\ncat <<'JSON'\n" + probeJSON(1280, 720, "90", false) + "\nJSON\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	meta, err := NewFFprobe(bin).Probe(context.Background(), "in.mov")
	require.NoError(t, err)
	assert.Equal(t, 720, meta.Width)
	assert.Equal(t, 1280, meta.Height)
	assert.Equal(t, 90, meta.Rotation)
	assert.False(t, meta.HasAudio)
}
