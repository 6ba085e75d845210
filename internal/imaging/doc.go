// Package imaging turns stored images into terminal cells and renders what
// each cell shows.
//
// It sits between the image store and the server: SliceGrid and
// SliceByCellSize carve an image into imagecell.Cell values, RenderCell and
// PreviewCell draw a single cell's texture window, and CellColor and
// CellPalette summarise a cell for terminals that cannot draw pixels.
//
// # Coordinate System
//
// Cells address their image in texture space, where (0,0) is the top-left
// corner of the image and (1,1) the bottom-right. A window is mapped to
// pixels by scaling and rounding to the nearest pixel, so:
//   - (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//   - Neighbouring cells from SliceGrid share an edge and never overlap
//   - Parts of a window beyond the image render as transparent pixels
//
// # Frames
//
// Pixel operations take a frame index. It selects a frame of an animated
// image and is ignored for a still. Images the decode pipeline left as
// encoded files have no pixels; operations on them return ErrNotDecoded.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Everything else is
// stateless and reads payloads without modifying them, so it may run
// concurrently on shared images.
//
// # Color Representation
//
// Colors are returned in multiple formats for flexibility:
//   - Hex: 6-character format "#RRGGBB" (alpha excluded)
//   - RGB: 8-bit components (0-255)
//   - HSL: Hue (0-360), Saturation (0-100), Lightness (0-100)
package imaging
