package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// ErrEmptyWindow is returned for a cell whose texture window covers no
// pixels.
var ErrEmptyWindow = errors.New("cell texture window is empty")

// CellPreview contains the rendered contents of one cell.
type CellPreview struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Frame       int    `json:"frame"`
	Layer       string `json:"layer"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// CellRegion maps a cell's texture window onto the pixel grid of a
// width x height image.
//
// Texture coordinates are scaled and rounded to the nearest pixel, so cells
// produced by SliceGrid tile the image without gaps or overlap. The result
// may extend past the image bounds when coordinates fall outside [0,1].
func CellRegion(cell *imagecell.Cell, width, height int) (image.Rectangle, error) {
	tl, br := cell.TopLeft(), cell.BottomRight()
	for _, v := range []float32{tl.X(), tl.Y(), br.X(), br.Y()} {
		if math.IsInf(float64(v), 0) {
			return image.Rectangle{}, fmt.Errorf("texture coordinate %v: %w", v, ErrEmptyWindow)
		}
	}

	// image.Rect would swap inverted corners, so compare before building it.
	x0, y0 := scale(tl.X(), width), scale(tl.Y(), height)
	x1, y1 := scale(br.X(), width), scale(br.Y(), height)
	if x1 <= x0 || y1 <= y0 {
		return image.Rectangle{}, fmt.Errorf("window %v-%v: %w", tl, br, ErrEmptyWindow)
	}
	return image.Rect(x0, y0, x1, y1), nil
}

func scale(v float32, size int) int {
	return int(math.Round(float64(v) * float64(size)))
}

// RenderCell draws what cell shows of frame into a cellWidth x cellHeight
// image.
//
// The texture window is cut out of the frame (parts outside the image are
// transparent), scaled to the cell size and shifted by the cell's display
// offset. Values <= 0 for cellWidth or cellHeight keep the window's native
// pixel size.
func RenderCell(cell *imagecell.Cell, frame int, cellWidth, cellHeight int) (*image.NRGBA, error) {
	src, err := FrameImage(cell.Image().Payload(), frame)
	if err != nil {
		return nil, err
	}

	region, err := CellRegion(cell, src.Bounds().Dx(), src.Bounds().Dy())
	if err != nil {
		return nil, err
	}

	window := imaging.New(region.Dx(), region.Dy(), color.NRGBA{})
	if visible := region.Intersect(src.Bounds()); !visible.Empty() {
		piece := imaging.Crop(src, visible)
		window = imaging.Paste(window, piece, visible.Min.Sub(region.Min))
	}

	if cellWidth <= 0 || cellHeight <= 0 {
		cellWidth, cellHeight = region.Dx(), region.Dy()
	}
	if window.Bounds().Dx() != cellWidth || window.Bounds().Dy() != cellHeight {
		window = imaging.Resize(window, cellWidth, cellHeight, imaging.Lanczos)
	}

	offX, offY := cell.DisplayOffset()
	if offX == 0 && offY == 0 {
		return window, nil
	}
	out := imaging.New(cellWidth, cellHeight, color.NRGBA{})
	return imaging.Paste(out, window, image.Pt(int(offX), int(offY))), nil
}

// PreviewCell renders cell like RenderCell and encodes the result as a
// base64 PNG.
func PreviewCell(cell *imagecell.Cell, frame int, cellWidth, cellHeight int) (*CellPreview, error) {
	img, err := RenderCell(cell, frame, cellWidth, cellHeight)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode cell preview: %w", err)
	}

	return &CellPreview{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		Frame:       frame,
		Layer:       cell.Layer().String(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
