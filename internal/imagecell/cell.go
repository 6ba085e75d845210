package imagecell

import (
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
)

// OptionalID is a protocol identifier that may be absent. The zero value is
// absent. OptionalID is comparable with ==, so two absent ids are equal.
type OptionalID struct {
	Value uint32
	Set   bool
}

// NoID is the absent OptionalID.
var NoID = OptionalID{}

// SomeID returns a present OptionalID.
func SomeID(v uint32) OptionalID {
	return OptionalID{Value: v, Set: true}
}

func (o OptionalID) String() string {
	if !o.Set {
		return "none"
	}
	return strconv.FormatUint(uint64(o.Value), 10)
}

func (o OptionalID) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *OptionalID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = NoID
		return nil
	}
	var v uint32
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = SomeID(v)
	return nil
}

// Layer is the render layer a z-index falls into.
type Layer int

const (
	// LayerBelowBackground is drawn under text and under cells with a
	// non-default background colour.
	LayerBelowBackground Layer = iota
	// LayerBelowText is drawn under text but over cell backgrounds.
	LayerBelowText
	// LayerAboveText is drawn over text.
	LayerAboveText
)

func (l Layer) String() string {
	switch l {
	case LayerBelowBackground:
		return "below_background"
	case LayerBelowText:
		return "below_text"
	default:
		return "above_text"
	}
}

// LayerFor classifies a z-index.
func LayerFor(z int32) Layer {
	switch {
	case z < math.MinInt32/2:
		return LayerBelowBackground
	case z < 0:
		return LayerBelowText
	default:
		return LayerAboveText
	}
}

// Placement carries the render order, pixel offset and protocol identifiers
// of a Cell. The zero value is the default placement.
type Placement struct {
	ZIndex      int32
	OffsetX     uint32
	OffsetY     uint32
	ImageID     uint32
	PlacementID OptionalID
}

// Cell is one grid cell's view into a shared image: the texture window it
// shows, its render order and the protocol placement it belongs to.
//
// A Cell is never modified; a changed placement means a new Cell.
type Cell struct {
	topLeft     Coordinate
	bottomRight Coordinate
	image       *ImageData
	placement   Placement
}

// NewCell returns a cell with the default placement.
func NewCell(topLeft, bottomRight Coordinate, image *ImageData) *Cell {
	return NewPlacedCell(topLeft, bottomRight, image, Placement{})
}

// NewPlacedCell returns a cell with the given placement.
func NewPlacedCell(topLeft, bottomRight Coordinate, image *ImageData, p Placement) *Cell {
	return &Cell{
		topLeft:     topLeft,
		bottomRight: bottomRight,
		image:       image,
		placement:   p,
	}
}

// TopLeft is the texture coordinate of the cell's top-left corner.
func (c *Cell) TopLeft() Coordinate { return c.topLeft }

// BottomRight is the texture coordinate of the cell's bottom-right corner.
func (c *Cell) BottomRight() Coordinate { return c.bottomRight }

// Image returns the shared image.
func (c *Cell) Image() *ImageData { return c.image }

// ZIndex returns the render order. Negative values render beneath the text
// layer; values below math.MinInt32/2 also render beneath cells with a
// non-default background colour; zero and above render over text.
func (c *Cell) ZIndex() int32 { return c.placement.ZIndex }

// Layer classifies ZIndex.
func (c *Cell) Layer() Layer { return LayerFor(c.placement.ZIndex) }

// DisplayOffset is the pixel offset from the cell's top-left at which the
// image is drawn.
func (c *Cell) DisplayOffset() (x, y uint32) {
	return c.placement.OffsetX, c.placement.OffsetY
}

// ImageID is the protocol-level image number.
func (c *Cell) ImageID() uint32 { return c.placement.ImageID }

// PlacementID is the protocol-level placement number, if any.
func (c *Cell) PlacementID() OptionalID { return c.placement.PlacementID }

// Placement returns all placement attributes.
func (c *Cell) Placement() Placement { return c.placement }

// MatchesPlacement reports whether the cell belongs to the placement
// (imageID, placementID). Both must match exactly; NoID only matches NoID.
func (c *Cell) MatchesPlacement(imageID uint32, placementID OptionalID) bool {
	return c.placement.ImageID == imageID && c.placement.PlacementID == placementID
}

// Equal reports full structural equality, coordinates included. Images are
// compared with ImageData.Equal.
func (c *Cell) Equal(o *Cell) bool {
	if c == o {
		return true
	}
	if c == nil || o == nil {
		return false
	}
	return c.topLeft == o.topLeft &&
		c.bottomRight == o.bottomRight &&
		c.placement == o.placement &&
		c.image.Equal(o.image)
}

// SortByZ orders cells for drawing, lowest z-index first. Cells with equal
// z-index keep their relative order.
func SortByZ(cells []*Cell) {
	sort.SliceStable(cells, func(i, j int) bool {
		return cells[i].placement.ZIndex < cells[j].placement.ZIndex
	})
}

type cellWire struct {
	TopLeft       Coordinate `json:"top_left"`
	BottomRight   Coordinate `json:"bottom_right"`
	Image         *ImageData `json:"image"`
	ZIndex        int32      `json:"z_index"`
	DisplayOffset [2]uint32  `json:"display_offset"`
	ImageID       uint32     `json:"image_id"`
	PlacementID   OptionalID `json:"placement_id"`
}

func (c *Cell) MarshalJSON() ([]byte, error) {
	return json.Marshal(cellWire{
		TopLeft:       c.topLeft,
		BottomRight:   c.bottomRight,
		Image:         c.image,
		ZIndex:        c.placement.ZIndex,
		DisplayOffset: [2]uint32{c.placement.OffsetX, c.placement.OffsetY},
		ImageID:       c.placement.ImageID,
		PlacementID:   c.placement.PlacementID,
	})
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	var w cellWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Image == nil {
		return errors.New("cell: missing image")
	}
	*c = Cell{
		topLeft:     w.TopLeft,
		bottomRight: w.BottomRight,
		image:       w.Image,
		placement: Placement{
			ZIndex:      w.ZIndex,
			OffsetX:     w.DisplayOffset[0],
			OffsetY:     w.DisplayOffset[1],
			ImageID:     w.ImageID,
			PlacementID: w.PlacementID,
		},
	}
	return nil
}
