// Package imagecell models terminal cells that display image data.
//
// An image placed on the terminal grid usually spans several cells. The
// decoded raster is held once, in an ImageData, and every covered cell gets
// a Cell that points at it and records which part of the image it shows.
//
// # Texture Coordinates
//
// A Cell's window into its image is given by two Coordinates, top-left and
// bottom-right. (0,0) is the top-left of the image and (1,1) the
// bottom-right. Components are float32 and never NaN.
//
// # Payloads
//
// ImageData wraps one of three payload variants:
//   - EncodedFile: the original file bytes, not (yet) decoded
//   - Still: one RGBA8 raster
//   - Animated: RGBA8 frames with per-frame durations
//
// A Decoder turns an EncodedFile into one of the other two by delegating to
// a RasterCodec, falling back to a simpler representation on any failure.
//
// # Identity
//
// Every ImageData has a process-unique id from an IDAllocator and a SHA-256
// hash of its raster bytes, computed once. Stores use the hash to
// deduplicate and the id as a handle.
//
// # Render Order
//
// Cells carry a z-index. Negative values render beneath text; values below
// math.MinInt32/2 render beneath non-default cell backgrounds as well.
//
// # Thread Safety
//
// ImageData and Cell are immutable after construction and may be read from
// any goroutine. IDAllocator is safe for concurrent use.
package imagecell
