package imagecell

import (
	"errors"
	"fmt"
)

// ErrEmptyAnimation is returned when an operation needs at least one frame of
// an Animated payload and there is none.
var ErrEmptyAnimation = errors.New("imagecell: animation has no frames")

// ValidationKind identifies why a value was rejected.
type ValidationKind int

const (
	// InvalidNumber means a coordinate component was NaN.
	InvalidNumber ValidationKind = iota
	// HashMismatch means a deserialized image carried a hash that does not
	// match its payload bytes.
	HashMismatch
	// MalformedPayload means a deserialized payload was structurally invalid.
	MalformedPayload
)

func (k ValidationKind) String() string {
	switch k {
	case InvalidNumber:
		return "invalid number"
	case HashMismatch:
		return "hash mismatch"
	case MalformedPayload:
		return "malformed payload"
	default:
		return fmt.Sprintf("ValidationKind(%d)", int(k))
	}
}

// ValidationError reports a value that cannot be represented, either at
// construction or while deserializing. It is always surfaced to the caller.
type ValidationError struct {
	Kind   ValidationKind
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	msg := "imagecell: " + e.Kind.String()
	if e.Field != "" {
		msg += " in " + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// CodecError wraps a format detection or frame decode failure reported by a
// RasterCodec. The Decoder recovers from these locally.
type CodecError struct {
	Op     string // "detect", "decode_still" or "decode_animated"
	Format string
	Err    error
}

func (e *CodecError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("codec %s (%s): %v", e.Op, e.Format, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}
