// Package mediatest provides in-process stand-ins for ffmpeg and ffprobe.
package mediatest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/your-org/mediapipe/internal/layout"
	"github.com/your-org/mediapipe/internal/media"
)

// Encoder writes plausible output files instead of running ffmpeg. HLS jobs
// (output ending in the stream playlist pattern) produce a master playlist plus three
// finalised tier playlists and one segment per tier.
type Encoder struct {
	mu   sync.Mutex
	jobs []media.Job

	// Fail, when set, is consulted before each job. A non-nil result is
	// returned without writing anything.
	Fail func(job media.Job) error
	// SkipOutput makes successful jobs write nothing, like an ffmpeg run
	// that exited early.
	SkipOutput bool
}

func (e *Encoder) Encode(ctx context.Context, job media.Job) error {
	e.mu.Lock()
	e.jobs = append(e.jobs, job)
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Fail != nil {
		if err := e.Fail(job); err != nil {
			return err
		}
	}
	if job.OnProgress != nil {
		job.OnProgress(50)
		job.OnProgress(100)
	}
	if e.SkipOutput {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return err
	}
	if strings.HasSuffix(job.Output, layout.StreamPlaylistPattern) {
		return writeBundle(filepath.Dir(job.Output))
	}
	return os.WriteFile(job.Output, []byte("fake "+filepath.Base(job.Output)), 0o644)
}

// Jobs returns a copy of every job received so far.
func (e *Encoder) Jobs() []media.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]media.Job(nil), e.jobs...)
}

func writeBundle(dir string) error {
	master := "#EXTM3U\n"
	for i := 0; i < 3; i++ {
		master += fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d\nstream_%d.m3u8\n", (3-i)*1000000, i)
		playlist := fmt.Sprintf("#EXTM3U\n#EXTINF:6.0,\nsection_%d_000.ts\n#EXT-X-ENDLIST\n", i)
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("stream_%d.m3u8", i)), []byte(playlist), 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("section_%d_000.ts", i)), []byte("ts"), 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dir, "master.m3u8"), []byte(master), 0o644)
}

// ArgValue returns the argument following flag in args, if present.
func ArgValue(args media.Args, flag string) (string, bool) {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

// Prober answers from a table keyed by file base name.
type Prober struct {
	mu     sync.Mutex
	Meta   map[string]media.ProbedMetadata
	probed []string
}

func (p *Prober) Probe(_ context.Context, path string) (*media.ProbedMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, path)

	meta, ok := p.Meta[filepath.Base(path)]
	if !ok {
		return nil, &media.ProbeError{Path: path, Err: fmt.Errorf("no video stream")}
	}
	return &meta, nil
}

// Probed lists the paths probed so far.
func (p *Prober) Probed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.probed...)
}
