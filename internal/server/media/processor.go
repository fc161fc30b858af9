// Package media performs format-aware image optimization and thumbnail
// derivation on finalized uploads. Processing is best-effort: callers fall
// back to the original bytes on any failure.
package media

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// ThumbnailSizes is the fixed set of derived resolutions, longest-edge
// constrained.
var ThumbnailSizes = []int{200, 400, 800}

// OptimizeOptions control re-encoding.
type OptimizeOptions struct {
	// PreserveMetadata keeps EXIF and friends by skipping the re-encode;
	// decoding and re-encoding inherently strips embedded metadata.
	PreserveMetadata bool
}

const jpegQuality = 85

// Processor re-encodes raster images and derives thumbnails.
type Processor struct{}

// NewProcessor constructs a Processor.
func NewProcessor() *Processor { return &Processor{} }

// SupportedFormat reports whether the content type is one of the raster
// formats the processor re-encodes.
func SupportedFormat(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif":
		return true
	}
	return false
}

func formatFor(contentType string) (imaging.Format, error) {
	switch contentType {
	case "image/jpeg":
		return imaging.JPEG, nil
	case "image/png":
		return imaging.PNG, nil
	case "image/gif":
		return imaging.GIF, nil
	}
	return 0, fmt.Errorf("unsupported content type %q", contentType)
}

// Optimize re-encodes the image near-losslessly in its own format. Embedded
// metadata is dropped unless preservation is requested, in which case the
// original bytes are returned untouched.
func (p *Processor) Optimize(data []byte, contentType string, opts OptimizeOptions) ([]byte, error) {
	if opts.PreserveMetadata {
		return data, nil
	}
	// A GIF re-encode keeps only the first frame, so animated sources pass
	// through untouched. Thumbnails are stills and still derive from GIFs.
	if contentType == "image/gif" {
		return data, nil
	}
	format, err := formatFor(contentType)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DeriveThumbnails produces one variant per requested size, constrained by
// the longest edge and never upscaled: sizes at or above the source's
// longest edge are skipped. Variants are encoded in the source format with
// Lanczos resampling.
func (p *Processor) DeriveThumbnails(data []byte, contentType string, sizes []int) (map[int][]byte, error) {
	format, err := formatFor(contentType)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	longest := bounds.Dx()
	if bounds.Dy() > longest {
		longest = bounds.Dy()
	}

	out := make(map[int][]byte, len(sizes))
	for _, size := range sizes {
		if size <= 0 || size >= longest {
			continue
		}
		thumb := imaging.Fit(img, size, size, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, thumb, format, imaging.JPEGQuality(jpegQuality)); err != nil {
			return nil, fmt.Errorf("encode %dpx variant: %w", size, err)
		}
		out[size] = buf.Bytes()
	}
	return out, nil
}
