package imagecell

import (
	"log/slog"
	"time"
)

// Format is a container format recognised by a RasterCodec.
type Format struct {
	Name string
	// Animated is set when the data may carry several frames, e.g. a GIF or
	// a PNG with an animation control chunk.
	Animated bool
}

// Frame is one decoded RGBA8 raster. Delay is zero for stills.
type Frame struct {
	Pix    []byte
	Width  uint32
	Height uint32
	Delay  time.Duration
}

// RasterCodec detects and decodes encoded image files. Failures are returned
// as errors, preferably *CodecError; implementations must not panic.
type RasterCodec interface {
	DetectFormat(data []byte) (Format, bool)
	DecodeStill(data []byte) (Frame, error)
	DecodeAnimated(data []byte) ([]Frame, error)
}

// Decoder normalizes EncodedFile payloads into Still or Animated rasters.
// It holds no mutable state and may be used from several goroutines.
type Decoder struct {
	codec  RasterCodec
	logger *slog.Logger
}

// NewDecoder returns a Decoder using codec. A nil logger means
// slog.Default().
func NewDecoder(codec RasterCodec, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{codec: codec, logger: logger}
}

// Normalize decodes p when it is an EncodedFile in a recognised format.
//
// Animated formats are decoded frame by frame; if that fails a warning is
// logged and the data is decoded as a single still instead. If the still
// decode fails too, or the format is unknown, the EncodedFile is returned
// unchanged. Still and Animated payloads are returned as they are, so
// Normalize is idempotent. It never fails.
func (d *Decoder) Normalize(p Payload) Payload {
	enc, ok := p.(EncodedFile)
	if !ok {
		return p
	}

	format, ok := d.codec.DetectFormat(enc.Data)
	if !ok {
		return enc
	}

	if format.Animated {
		anim, err := d.decodeAnimated(enc.Data)
		if err == nil {
			return anim
		}
		d.logger.Warn("unable to decode animation, trying as single frame",
			"format", format.Name, "bytes", len(enc.Data), "error", err)
	}

	return d.decodeStill(format, enc)
}

func (d *Decoder) decodeAnimated(data []byte) (Payload, error) {
	frames, err := d.codec.DecodeAnimated(data)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrEmptyAnimation
	}
	anim := Animated{
		Width:     frames[0].Width,
		Height:    frames[0].Height,
		Durations: make([]time.Duration, 0, len(frames)),
		Frames:    make([][]byte, 0, len(frames)),
	}
	for _, f := range frames {
		anim.Durations = append(anim.Durations, f.Delay)
		anim.Frames = append(anim.Frames, f.Pix)
	}
	return anim, nil
}

func (d *Decoder) decodeStill(format Format, enc EncodedFile) Payload {
	frame, err := d.codec.DecodeStill(enc.Data)
	if err != nil {
		d.logger.Debug("keeping encoded file", "format", format.Name, "error", err)
		return enc
	}
	return Still{Data: frame.Pix, Width: frame.Width, Height: frame.Height}
}
