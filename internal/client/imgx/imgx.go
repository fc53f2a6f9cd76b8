// Package imgx prepares raw images for attachment storage: oversized photos
// are downscaled and everything is re-encoded as JPEG under a byte budget.
package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ErrBadImage wraps any decode failure; callers skip the offending image and
// continue with the rest of a batch.
var ErrBadImage = errors.New("unreadable image data")

const (
	// MaxDimension is the longest allowed edge after normalization.
	MaxDimension = 1920
	// MaxEncodedBytes is the byte budget for an encoded attachment.
	MaxEncodedBytes = 512 * 1024
)

// qualityLadder is tried top to bottom until the encoded size fits the
// budget. The lowest rung is used even when it still exceeds the budget.
var qualityLadder = []int{85, 75, 65, 55, 45}

// Normalize decodes data, downscales it so that no edge exceeds maxDim, and
// re-encodes it as JPEG, stepping down quality until the result is within
// maxBytes.
func Normalize(data []byte, maxDim, maxBytes int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	img = scaleDown(img, maxDim)

	var buf bytes.Buffer
	for _, q := range qualityLadder {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
		if buf.Len() <= maxBytes {
			break
		}
	}
	return buf.Bytes(), nil
}

// Validate reports whether data decodes back into an image. Used to verify a
// written attachment file before trusting the save.
func Validate(data []byte) error {
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return nil
}

func scaleDown(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
