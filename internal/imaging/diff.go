package imaging

import (
	"fmt"
	"math"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// FrameDiffResult describes how one cell's window differs between two frames
// of an animation.
type FrameDiffResult struct {
	SimilarityScore  float64 `json:"similarity_score"`
	PixelsDifferent  int     `json:"pixels_different"`
	TotalPixels      int     `json:"total_pixels"`
	AverageColorDiff float64 `json:"average_color_diff"`
}

// Changed reports whether any pixel of the window differs noticeably.
func (r *FrameDiffResult) Changed() bool { return r.PixelsDifferent > 0 }

// pixelThreshold is the mean per-channel difference above which a pixel
// counts as changed.
const pixelThreshold = 10

// CompareFrames compares what cell shows in frameA and frameB.
//
// Channels (alpha included) are compared pixel by pixel over the part of the
// window that lies inside the image; the overhang is transparent in every
// frame and never differs. A window entirely outside the image yields a
// similarity of 1.
func CompareFrames(cell *imagecell.Cell, frameA, frameB int) (*FrameDiffResult, error) {
	a, region, err := cellSource(cell, frameA)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frameA, err)
	}
	b, err := FrameImage(cell.Image().Payload(), frameB)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frameB, err)
	}

	visible := region.Intersect(a.Bounds())
	total := visible.Dx() * visible.Dy()
	if total == 0 {
		return &FrameDiffResult{SimilarityScore: 1}, nil
	}

	different := 0
	var totalDiff float64
	for y := visible.Min.Y; y < visible.Max.Y; y++ {
		for x := visible.Min.X; x < visible.Max.X; x++ {
			pa, pb := a.NRGBAAt(x, y), b.NRGBAAt(x, y)
			diff := float64(absDiff(pa.R, pb.R)+absDiff(pa.G, pb.G)+
				absDiff(pa.B, pb.B)+absDiff(pa.A, pb.A)) / 4
			totalDiff += diff
			if diff > pixelThreshold {
				different++
			}
		}
	}

	return &FrameDiffResult{
		SimilarityScore:  math.Round((1-float64(different)/float64(total))*1000) / 1000,
		PixelsDifferent:  different,
		TotalPixels:      total,
		AverageColorDiff: math.Round(totalDiff/float64(total)*100) / 100,
	}, nil
}

// ChangedCells returns the indexes of the cells whose window differs between
// frameA and frameB, in the order given. A terminal uses it to redraw only
// those cells when an animation advances.
func ChangedCells(cells []*imagecell.Cell, frameA, frameB int) ([]int, error) {
	var changed []int
	for i, c := range cells {
		r, err := CompareFrames(c, frameA, frameB)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		if r.Changed() {
			changed = append(changed, i)
		}
	}
	return changed, nil
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
