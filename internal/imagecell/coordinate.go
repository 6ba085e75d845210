package imagecell

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Coordinate is a texture coordinate within an image. (0,0) is the top-left
// of the image and (1,1) the bottom-right by convention; the range is not
// enforced. Components are never NaN once constructed.
//
// Coordinate is comparable with ==.
type Coordinate struct {
	x float32
	y float32
}

// NewCoordinate validates x and y and returns the coordinate.
//
// Either component being NaN yields a *ValidationError of kind InvalidNumber.
// Infinite values are accepted; callers are expected to avoid them.
func NewCoordinate(x, y float32) (Coordinate, error) {
	if isNaN(x) {
		return Coordinate{}, &ValidationError{Kind: InvalidNumber, Field: "x", Detail: "NaN"}
	}
	if isNaN(y) {
		return Coordinate{}, &ValidationError{Kind: InvalidNumber, Field: "y", Detail: "NaN"}
	}
	return Coordinate{x: x, y: y}, nil
}

// MustCoordinate is like NewCoordinate but panics on NaN. It is meant for
// constants and values computed from finite integers.
func MustCoordinate(x, y float32) Coordinate {
	c, err := NewCoordinate(x, y)
	if err != nil {
		panic(err)
	}
	return c
}

// X returns the horizontal component.
func (c Coordinate) X() float32 { return c.x }

// Y returns the vertical component.
func (c Coordinate) Y() float32 { return c.y }

func (c Coordinate) String() string {
	return fmt.Sprintf("(%g,%g)", c.x, c.y)
}

func isNaN(v float32) bool {
	return v != v
}

type coordinateWire struct {
	X json.RawMessage `json:"x"`
	Y json.RawMessage `json:"y"`
}

// MarshalJSON writes finite components as numbers. JSON has no literal for
// infinities, so those are written as the strings "+Inf" and "-Inf".
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal(coordinateWire{
		X: encodeComponent(c.x),
		Y: encodeComponent(c.y),
	})
}

// UnmarshalJSON accepts numbers and the strings produced by MarshalJSON. A
// NaN component is rejected with a *ValidationError.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var w coordinateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	x, err := decodeComponent("x", w.X)
	if err != nil {
		return err
	}
	y, err := decodeComponent("y", w.Y)
	if err != nil {
		return err
	}
	v, err := NewCoordinate(x, y)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func encodeComponent(v float32) json.RawMessage {
	f := float64(v)
	switch {
	case math.IsInf(f, 1):
		return json.RawMessage(`"+Inf"`)
	case math.IsInf(f, -1):
		return json.RawMessage(`"-Inf"`)
	case math.IsNaN(f):
		// unreachable for constructed values
		return json.RawMessage(`"NaN"`)
	}
	return json.RawMessage(strconv.FormatFloat(f, 'g', -1, 32))
}

func decodeComponent(field string, raw json.RawMessage) (float32, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("coordinate: missing %s", field)
	}
	var f float32
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("coordinate %s: %w", field, err)
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, &ValidationError{Kind: InvalidNumber, Field: field, Detail: strconv.Quote(s)}
	}
	return float32(v), nil
}
