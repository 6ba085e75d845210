package imaging

import (
	"errors"
	"fmt"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// MaxGridCells bounds the number of cells one placement may be sliced into.
const MaxGridCells = 1 << 16

// ErrTooManyCells is returned when a grid would exceed MaxGridCells.
var ErrTooManyCells = errors.New("grid exceeds cell limit")

// checkGrid rejects grids larger than MaxGridCells. Each side is checked
// first so the product cannot overflow.
func checkGrid(cols, rows int) error {
	if cols > MaxGridCells || rows > MaxGridCells || cols*rows > MaxGridCells {
		return fmt.Errorf("%w: %dx%d > %d cells", ErrTooManyCells, cols, rows, MaxGridCells)
	}
	return nil
}

// SliceGrid carves img into a cols x rows grid of cells, returned in
// row-major order. Cell (col,row) shows the texture window
// [col/cols, row/rows] - [(col+1)/cols, (row+1)/rows]. Every cell shares img
// and carries placement p.
func SliceGrid(img *imagecell.ImageData, cols, rows int, p imagecell.Placement) ([]*imagecell.Cell, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("invalid grid %dx%d: cols and rows must be positive", cols, rows)
	}
	if err := checkGrid(cols, rows); err != nil {
		return nil, err
	}

	cells := make([]*imagecell.Cell, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			tl := imagecell.MustCoordinate(fraction(col, cols), fraction(row, rows))
			br := imagecell.MustCoordinate(fraction(col+1, cols), fraction(row+1, rows))
			cells = append(cells, imagecell.NewPlacedCell(tl, br, img, p))
		}
	}
	return cells, nil
}

// SliceByCellSize carves img into cells of cellWidth x cellHeight pixels,
// the way a terminal lays an image out from the cursor position. The last
// column and row may extend past the image; their texture coordinates then
// exceed 1 and the overhang renders transparent.
//
// It returns the cells in row-major order along with the grid size.
func SliceByCellSize(img *imagecell.ImageData, cellWidth, cellHeight int, p imagecell.Placement) (cells []*imagecell.Cell, cols, rows int, err error) {
	if cellWidth <= 0 || cellHeight <= 0 {
		return nil, 0, 0, fmt.Errorf("invalid cell size %dx%d", cellWidth, cellHeight)
	}
	w, h, ok := Dimensions(img.Payload())
	if !ok {
		return nil, 0, 0, ErrNotDecoded
	}
	if w == 0 || h == 0 {
		return nil, 0, 0, fmt.Errorf("image has no pixels (%dx%d)", w, h)
	}

	cols = ceilDiv(int(w), cellWidth)
	rows = ceilDiv(int(h), cellHeight)
	if err := checkGrid(cols, rows); err != nil {
		return nil, 0, 0, err
	}
	cells = make([]*imagecell.Cell, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			tl := imagecell.MustCoordinate(
				fraction(col*cellWidth, int(w)), fraction(row*cellHeight, int(h)))
			br := imagecell.MustCoordinate(
				fraction((col+1)*cellWidth, int(w)), fraction((row+1)*cellHeight, int(h)))
			cells = append(cells, imagecell.NewPlacedCell(tl, br, img, p))
		}
	}
	return cells, cols, rows, nil
}

func fraction(n, d int) float32 {
	return float32(float64(n) / float64(d))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
