package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/mediapipe/internal/upload"
)

// ArtifactUploader is the subset of the uploader the generators need.
type ArtifactUploader interface {
	UploadFile(ctx context.Context, path, key, contentType string) (upload.Artifact, error)
	UploadDir(ctx context.Context, dir, prefix string) ([]upload.Artifact, error)
	URL(key string) string
}

// ThumbnailExtractor grabs the first frame of a video as a JPEG.
type ThumbnailExtractor struct {
	encoder Encoder
}

func NewThumbnailExtractor(encoder Encoder) *ThumbnailExtractor {
	return &ThumbnailExtractor{encoder: encoder}
}

// ThumbnailArgs returns the ffmpeg arguments for a thumbnail width pixels
// wide. The height keeps the aspect ratio and is rounded to an even value.
func ThumbnailArgs(width int) Args {
	return Args{
		"-y",
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		"-q:v", "2",
	}
}

// Extract writes the thumbnail of src to dst.
func (x *ThumbnailExtractor) Extract(ctx context.Context, src, dst string, width int) error {
	if err := x.encoder.Encode(ctx, Job{Input: src, Output: dst, Args: ThumbnailArgs(width)}); err != nil {
		return wrapEncode("thumbnail", dst, err)
	}
	return verifyOutput("thumbnail", dst)
}

func wrapEncode(op, output string, err error) error {
	var encErr *EncodeError
	if errors.As(err, &encErr) {
		return err
	}
	return &EncodeError{Op: op, Output: output, Err: err}
}
