package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ImageInfo is the result of normalising an uploaded image.
type ImageInfo struct {
	Width  int
	Height int
}

// ImageNormalizer re-encodes uploaded images as orientation-corrected JPEGs
// no wider than MaxWidth.
type ImageNormalizer struct {
	maxWidth int
	quality  int
}

func NewImageNormalizer(maxWidth, quality int) *ImageNormalizer {
	if maxWidth <= 0 {
		maxWidth = 1080
	}
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &ImageNormalizer{maxWidth: maxWidth, quality: quality}
}

// Normalize decodes src (JPEG, PNG, GIF, BMP, TIFF or WebP), applies the
// EXIF orientation and writes a JPEG to dst.
func (n *ImageNormalizer) Normalize(ctx context.Context, src, dst string) (*ImageInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ProbeError{Path: src, Err: fmt.Errorf("decode image: %w", err)}
	}

	if img.Bounds().Dx() > n.maxWidth {
		img = imaging.Resize(img, n.maxWidth, 0, imaging.Lanczos)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, &EncodeError{Op: "image", Output: dst, Err: err}
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(n.quality)); err != nil {
		return nil, &EncodeError{Op: "image", Output: dst, Err: err}
	}

	b := img.Bounds()
	return &ImageInfo{Width: b.Dx(), Height: b.Dy()}, nil
}
