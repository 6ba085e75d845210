// Package codec decodes image files into RGBA8 frames for imagecell.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// Format names reported by DetectFormat.
const (
	FormatGIF  = "gif"
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
	FormatWebP = "webp"
)

// DefaultMaxPixels bounds width*height of a single decoded frame.
const DefaultMaxPixels = 64 * 1024 * 1024

// ErrTooLarge is returned when an image exceeds the configured pixel limit.
var ErrTooLarge = errors.New("image exceeds pixel limit")

// errAPNG is reported for animated PNGs; their frames are not decoded and
// callers fall back to the default image.
var errAPNG = errors.New("animated png frames are not supported")

// Codec implements imagecell.RasterCodec with the decoders registered with
// the standard image package (GIF, PNG, JPEG) and golang.org/x/image (BMP,
// TIFF, WebP). Pixels are converted to non-premultiplied RGBA8.
//
// Codec has no mutable state and is safe for concurrent use.
type Codec struct {
	maxPixels int
}

// Option configures a Codec.
type Option func(*Codec)

// WithMaxPixels sets the largest width*height accepted for a frame. Values
// <= 0 keep the default.
func WithMaxPixels(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxPixels = n
		}
	}
}

// New creates a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ imagecell.RasterCodec = (*Codec)(nil)

// DetectFormat identifies the container from its leading bytes.
//
// GIFs are reported as animated when they hold more than one image, or when
// their block structure cannot be walked (so that a damaged animation still
// goes through the animated path and its fallback). PNGs are animated when an
// acTL chunk precedes the image data.
func (c *Codec) DetectFormat(data []byte) (imagecell.Format, bool) {
	switch {
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return imagecell.Format{Name: FormatGIF, Animated: gifIsAnimated(data)}, true
	case bytes.HasPrefix(data, pngSignature):
		return imagecell.Format{Name: FormatPNG, Animated: pngIsAnimated(data)}, true
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return imagecell.Format{Name: FormatJPEG}, true
	case bytes.HasPrefix(data, []byte("BM")) && len(data) >= 26:
		return imagecell.Format{Name: FormatBMP}, true
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return imagecell.Format{Name: FormatTIFF}, true
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return imagecell.Format{Name: FormatWebP}, true
	}
	return imagecell.Format{}, false
}

// DecodeStill decodes the first (or only) image in data.
func (c *Codec) DecodeStill(data []byte) (imagecell.Frame, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return imagecell.Frame{}, &imagecell.CodecError{Op: "decode_still", Err: err}
	}
	if err := c.checkSize(cfg.Width, cfg.Height); err != nil {
		return imagecell.Frame{}, &imagecell.CodecError{Op: "decode_still", Format: format, Err: err}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return imagecell.Frame{}, &imagecell.CodecError{Op: "decode_still", Format: format, Err: err}
	}
	return toFrame(img, 0), nil
}

// DecodeAnimated decodes every frame of an animated GIF, composited onto the
// logical screen the way a viewer would show them.
func (c *Codec) DecodeAnimated(data []byte) ([]imagecell.Frame, error) {
	format, ok := c.DetectFormat(data)
	if !ok {
		return nil, &imagecell.CodecError{Op: "decode_animated", Err: errors.New("unknown format")}
	}
	switch format.Name {
	case FormatGIF:
		frames, err := c.decodeGIF(data)
		if err != nil {
			return nil, &imagecell.CodecError{Op: "decode_animated", Format: FormatGIF, Err: err}
		}
		return frames, nil
	case FormatPNG:
		return nil, &imagecell.CodecError{Op: "decode_animated", Format: FormatPNG, Err: errAPNG}
	default:
		return nil, &imagecell.CodecError{Op: "decode_animated", Format: format.Name,
			Err: fmt.Errorf("%s has no animation support", format.Name)}
	}
}

func (c *Codec) decodeGIF(data []byte) ([]imagecell.Frame, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(g.Image) == 0 {
		return nil, imagecell.ErrEmptyAnimation
	}

	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	if err := c.checkSize(w, h); err != nil {
		return nil, err
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	frames := make([]imagecell.Frame, 0, len(g.Image))
	for i, src := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		var previous *image.NRGBA
		if disposal == gif.DisposalPrevious {
			previous = imaging.Clone(canvas)
		}

		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)

		var delay time.Duration
		if i < len(g.Delay) {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		frames = append(frames, toFrame(canvas, delay))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return frames, nil
}

func (c *Codec) checkSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", w, h)
	}
	if w > c.maxPixels/h {
		return fmt.Errorf("%dx%d: %w", w, h, ErrTooLarge)
	}
	return nil
}

// toFrame copies img into a tightly packed non-premultiplied RGBA8 buffer.
func toFrame(img image.Image, delay time.Duration) imagecell.Frame {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return imagecell.Frame{
		Pix:    nrgba.Pix,
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Delay:  delay,
	}
}
