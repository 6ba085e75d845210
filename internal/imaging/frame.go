package imaging

import (
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// ErrNotDecoded is returned when pixels are requested from an EncodedFile
// payload that the decode pipeline could not turn into a raster.
var ErrNotDecoded = errors.New("image payload is not decoded")

// FrameCount returns the number of frames in p: 0 for an EncodedFile, 1 for
// a Still.
func FrameCount(p imagecell.Payload) int {
	switch p := p.(type) {
	case imagecell.Still:
		return 1
	case imagecell.Animated:
		return len(p.Frames)
	}
	return 0
}

// Dimensions returns the declared raster size of p. ok is false for an
// EncodedFile, whose size is unknown until decoded.
func Dimensions(p imagecell.Payload) (width, height uint32, ok bool) {
	switch p := p.(type) {
	case imagecell.Still:
		return p.Width, p.Height, true
	case imagecell.Animated:
		return p.Width, p.Height, true
	}
	return 0, 0, false
}

// FrameImage wraps frame index of p as an *image.NRGBA without copying the
// pixels. The returned image shares memory with the payload and must not be
// modified.
//
// For a Still, any index selects the single frame. An Animated payload with
// no frames yields imagecell.ErrEmptyAnimation.
func FrameImage(p imagecell.Payload, index int) (*image.NRGBA, error) {
	var (
		pix  []byte
		w, h uint32
	)
	switch p := p.(type) {
	case imagecell.Still:
		pix, w, h = p.Data, p.Width, p.Height
	case imagecell.Animated:
		if len(p.Frames) == 0 {
			return nil, imagecell.ErrEmptyAnimation
		}
		if index < 0 || index >= len(p.Frames) {
			return nil, fmt.Errorf("frame %d out of range (0-%d)", index, len(p.Frames)-1)
		}
		pix, w, h = p.Frames[index], p.Width, p.Height
	default:
		return nil, ErrNotDecoded
	}

	need := int(w) * int(h) * 4
	if len(pix) < need {
		return nil, fmt.Errorf("frame %d: %d bytes for %dx%d rgba", index, len(pix), w, h)
	}
	return &image.NRGBA{
		Pix:    pix[:need],
		Stride: int(w) * 4,
		Rect:   image.Rect(0, 0, int(w), int(h)),
	}, nil
}
