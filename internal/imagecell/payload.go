package imagecell

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Kind names a Payload variant. It is also the discriminator used in the
// JSON encoding.
type Kind string

const (
	KindEncodedFile Kind = "encoded_file"
	KindStill       Kind = "still"
	KindAnimated    Kind = "animated"
)

// Payload is the raster content of an image. It is one of EncodedFile,
// Still or Animated; the set is closed.
type Payload interface {
	Kind() Kind
	String() string
	sealed()
}

// EncodedFile holds the original file bytes, format not yet determined.
type EncodedFile struct {
	Data []byte
}

// Still is a single RGBA8 raster. len(Data) is expected to equal
// Width*Height*4; this is not checked.
type Still struct {
	Data   []byte
	Width  uint32
	Height uint32
}

// Animated is a sequence of RGBA8 frames of the declared size. Durations and
// Frames have the same length; Durations[i] is how long Frames[i] is shown.
type Animated struct {
	Width     uint32
	Height    uint32
	Durations []time.Duration
	Frames    [][]byte
}

func (EncodedFile) Kind() Kind { return KindEncodedFile }
func (Still) Kind() Kind       { return KindStill }
func (Animated) Kind() Kind    { return KindAnimated }

func (EncodedFile) sealed() {}
func (Still) sealed()       {}
func (Animated) sealed()    {}

func (p EncodedFile) String() string {
	return fmt.Sprintf("EncodedFile{data_of_len: %d}", len(p.Data))
}

func (p Still) String() string {
	return fmt.Sprintf("Still{data_of_len: %d, width: %d, height: %d}", len(p.Data), p.Width, p.Height)
}

func (p Animated) String() string {
	return fmt.Sprintf("Animated{frames_of_len: %d, width: %d, height: %d, durations: %v}",
		len(p.Frames), p.Width, p.Height, p.Durations)
}

// ComputeHash returns the SHA-256 digest of the payload's raster bytes.
//
// For Animated only the frame bytes contribute, in stored order; durations
// and geometry do not. Two payloads with the same bytes but different
// declared dimensions therefore hash equal.
func ComputeHash(p Payload) [32]byte {
	h := sha256.New()
	switch p := p.(type) {
	case EncodedFile:
		h.Write(p.Data)
	case Still:
		h.Write(p.Data)
	case Animated:
		for _, frame := range p.Frames {
			h.Write(frame)
		}
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// FootprintBytes approximates the memory held by the payload.
//
// Animated is estimated as len(Frames)*len(Frames[0]), which assumes every
// frame has the size of the first one. It returns ErrEmptyAnimation when
// there are no frames.
func FootprintBytes(p Payload) (int, error) {
	switch p := p.(type) {
	case EncodedFile:
		return len(p.Data), nil
	case Still:
		return len(p.Data), nil
	case Animated:
		if len(p.Frames) == 0 {
			return 0, ErrEmptyAnimation
		}
		return len(p.Frames) * len(p.Frames[0]), nil
	}
	return 0, nil
}

// PayloadEqual reports whether a and b are the same variant with equal
// contents.
func PayloadEqual(a, b Payload) bool {
	switch a := a.(type) {
	case EncodedFile:
		b, ok := b.(EncodedFile)
		return ok && bytes.Equal(a.Data, b.Data)
	case Still:
		b, ok := b.(Still)
		return ok && a.Width == b.Width && a.Height == b.Height && bytes.Equal(a.Data, b.Data)
	case Animated:
		b, ok := b.(Animated)
		if !ok || a.Width != b.Width || a.Height != b.Height {
			return false
		}
		if !slices.Equal(a.Durations, b.Durations) || len(a.Frames) != len(b.Frames) {
			return false
		}
		for i := range a.Frames {
			if !bytes.Equal(a.Frames[i], b.Frames[i]) {
				return false
			}
		}
		return true
	}
	return a == nil && b == nil
}

type payloadWire struct {
	Kind      Kind            `json:"kind"`
	Data      []byte          `json:"data,omitempty"`
	Width     uint32          `json:"width,omitempty"`
	Height    uint32          `json:"height,omitempty"`
	Durations []time.Duration `json:"durations,omitempty"`
	Frames    [][]byte        `json:"frames,omitempty"`
}

func (p EncodedFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadWire{Kind: KindEncodedFile, Data: p.Data})
}

func (p Still) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadWire{Kind: KindStill, Data: p.Data, Width: p.Width, Height: p.Height})
}

func (p Animated) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadWire{
		Kind:      KindAnimated,
		Width:     p.Width,
		Height:    p.Height,
		Durations: p.Durations,
		Frames:    p.Frames,
	})
}

// UnmarshalPayload decodes the JSON form written by the variants'
// MarshalJSON methods.
func UnmarshalPayload(data []byte) (Payload, error) {
	var w payloadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	switch w.Kind {
	case KindEncodedFile:
		return EncodedFile{Data: w.Data}, nil
	case KindStill:
		return Still{Data: w.Data, Width: w.Width, Height: w.Height}, nil
	case KindAnimated:
		if len(w.Durations) != len(w.Frames) {
			return nil, &ValidationError{
				Kind:   MalformedPayload,
				Field:  "durations",
				Detail: fmt.Sprintf("%d durations for %d frames", len(w.Durations), len(w.Frames)),
			}
		}
		return Animated{Width: w.Width, Height: w.Height, Durations: w.Durations, Frames: w.Frames}, nil
	default:
		return nil, &ValidationError{Kind: MalformedPayload, Field: "kind", Detail: fmt.Sprintf("unknown kind %q", w.Kind)}
	}
}
