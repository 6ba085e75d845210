package imaging

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent (0=gray, 100=vivid)
	L int `json:"l"` // Lightness: 0-100 percent (0=black, 50=normal, 100=white)
}

// ColorResult contains a color value in multiple representations.
//
// Coverage is the mean alpha of the sampled pixels (0-1). A cell whose
// window is fully transparent has Coverage 0 and its colour is black.
type ColorResult struct {
	Hex      string   `json:"hex"` // Hex format "#RRGGBB"
	RGB      RGBColor `json:"rgb"`
	HSL      HSLColor `json:"hsl"`
	Coverage float64  `json:"coverage"`
}

// CellColor computes the average colour a cell shows, for terminals that
// cannot draw images and fill the cell background instead.
//
// Pixels are averaged in linear RGB, weighted by alpha, so a half
// transparent red pixel counts half as much as an opaque one. Parts of the
// window outside the image count as transparent.
//
// Parameters:
//   - cell: The cell whose texture window is sampled.
//   - frame: Frame index for animated images; ignored for stills.
//
// Returns an error if the image is not decoded or the window is empty.
func CellColor(cell *imagecell.Cell, frame int) (*ColorResult, error) {
	src, region, err := cellSource(cell, frame)
	if err != nil {
		return nil, err
	}

	var r, g, b, weight float64
	total := region.Dx() * region.Dy()
	visible := region.Intersect(src.Bounds())
	for y := visible.Min.Y; y < visible.Max.Y; y++ {
		for x := visible.Min.X; x < visible.Max.X; x++ {
			px := src.NRGBAAt(x, y)
			if px.A == 0 {
				continue
			}
			a := float64(px.A) / 255
			lr, lg, lb := colorful.Color{
				R: float64(px.R) / 255,
				G: float64(px.G) / 255,
				B: float64(px.B) / 255,
			}.LinearRgb()
			r += lr * a
			g += lg * a
			b += lb * a
			weight += a
		}
	}

	if weight == 0 {
		return newColorResult(colorful.Color{}, 0), nil
	}
	avg := colorful.LinearRgb(r/weight, g/weight, b/weight).Clamped()
	return newColorResult(avg, weight/float64(total)), nil
}

// ColorFrequency represents a color and its occurrence frequency in a cell.
type ColorFrequency struct {
	Hex        string   `json:"hex"`        // Hex color "#RRGGBB" (quantized)
	Percentage float64  `json:"percentage"` // Percentage of opaque pixels with this color (0-100)
	RGB        RGBColor `json:"rgb"`        // RGB components (quantized)
}

// CellPalette extracts the count most common colours in a cell's window,
// most common first.
//
// # Color Quantization
//
// Components are quantized by dividing by 16 and rounding down, so colors
// within 16 units of each other (per component) are grouped together.
// Fully transparent pixels are skipped.
func CellPalette(cell *imagecell.Cell, frame int, count int) ([]ColorFrequency, error) {
	src, region, err := cellSource(cell, frame)
	if err != nil {
		return nil, err
	}

	counts := make(map[RGBColor]int)
	opaque := 0
	visible := region.Intersect(src.Bounds())
	for y := visible.Min.Y; y < visible.Max.Y; y++ {
		for x := visible.Min.X; x < visible.Max.X; x++ {
			px := src.NRGBAAt(x, y)
			if px.A == 0 {
				continue
			}
			counts[RGBColor{R: px.R / 16 * 16, G: px.G / 16 * 16, B: px.B / 16 * 16}]++
			opaque++
		}
	}

	colors := make([]ColorFrequency, 0, len(counts))
	for c, n := range counts {
		colors = append(colors, ColorFrequency{
			Hex:        fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B),
			Percentage: float64(n) / float64(opaque) * 100,
			RGB:        c,
		})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Percentage != colors[j].Percentage {
			return colors[i].Percentage > colors[j].Percentage
		}
		return colors[i].Hex < colors[j].Hex
	})

	if count > 0 && len(colors) > count {
		colors = colors[:count]
	}
	return colors, nil
}

func cellSource(cell *imagecell.Cell, frame int) (*image.NRGBA, image.Rectangle, error) {
	src, err := FrameImage(cell.Image().Payload(), frame)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	region, err := CellRegion(cell, src.Bounds().Dx(), src.Bounds().Dy())
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	return src, region, nil
}

func newColorResult(c colorful.Color, coverage float64) *ColorResult {
	r, g, b := c.RGB255()
	h, s, l := c.Hsl()
	return &ColorResult{
		Hex:      strings.ToUpper(c.Hex()),
		RGB:      RGBColor{R: r, G: g, B: b},
		HSL:      HSLColor{H: int(math.Round(h)) % 360, S: int(math.Round(s * 100)), L: int(math.Round(l * 100))},
		Coverage: coverage,
	}
}
