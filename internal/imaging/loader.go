package imaging

import (
	"fmt"
	"os"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// DefaultMaxFileBytes bounds the size of a file ImageCache will read.
const DefaultMaxFileBytes = 64 << 20

// ImageCache provides thread-safe caching of image files read from disk.
//
// The cache stores the raw file contents keyed by path and hands them out as
// imagecell.EncodedFile payloads, ready for the decode pipeline. Once a file
// is loaded, subsequent Load() calls for the same path return the cached
// bytes without disk I/O.
//
// ImageCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Cached files remain in memory until explicitly removed via Evict() or
// Clear(). Decoded pixels are not kept here; they live in the image store.
//
// # Example Usage
//
//	cache := imaging.NewImageCache(0)
//	payload, err := cache.Load("/path/to/image.gif")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	id, err := st.Ingest(payload.Data)
type ImageCache struct {
	mu       sync.RWMutex
	files    map[string][]byte
	maxBytes int64
}

// NewImageCache creates an empty cache that refuses files larger than
// maxBytes. A value <= 0 selects DefaultMaxFileBytes.
func NewImageCache(maxBytes int64) *ImageCache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	return &ImageCache{
		files:    make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

// Load retrieves a file from the cache or reads it from disk if not cached.
//
// Parameters:
//   - path: Absolute or relative file path. Any format is accepted; the
//     bytes are not inspected here.
//
// Returns:
//   - imagecell.EncodedFile: The file contents. The slice is shared with the
//     cache and must not be modified.
//   - error: Non-nil if the file cannot be read or exceeds the size limit.
//
// The file is cached using the exact path string provided. Different paths to
// the same file (e.g., relative vs absolute) result in separate cache entries.
func (c *ImageCache) Load(path string) (imagecell.EncodedFile, error) {
	c.mu.RLock()
	if data, ok := c.files[path]; ok {
		c.mu.RUnlock()
		return imagecell.EncodedFile{Data: data}, nil
	}
	c.mu.RUnlock()

	stat, err := os.Stat(path)
	if err != nil {
		return imagecell.EncodedFile{}, fmt.Errorf("failed to stat image: %w", err)
	}
	if stat.IsDir() {
		return imagecell.EncodedFile{}, fmt.Errorf("failed to open image: %s is a directory", path)
	}
	if stat.Size() > c.maxBytes {
		return imagecell.EncodedFile{}, fmt.Errorf("image %s is %s, limit is %s",
			path, humanize.IBytes(uint64(stat.Size())), humanize.IBytes(uint64(c.maxBytes)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return imagecell.EncodedFile{}, fmt.Errorf("failed to read image: %w", err)
	}

	c.mu.Lock()
	c.files[path] = data
	c.mu.Unlock()

	return imagecell.EncodedFile{Data: data}, nil
}

// Len reports the number of cached files.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// Clear removes all files from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.files = make(map[string][]byte)
	c.mu.Unlock()
}

// Evict removes a specific file from the cache by its path. If the path is
// not cached, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.files, path)
	c.mu.Unlock()
}

// ImageInfo contains metadata about an image held by the store.
type ImageInfo struct {
	// ID is the process-unique image id.
	ID uint64 `json:"id"`

	// Hash is the hex SHA-256 content hash.
	Hash string `json:"hash"`

	// Kind is the payload variant: "encoded_file", "still" or "animated".
	Kind string `json:"kind"`

	// Width and Height are zero for an undecoded file.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Frames is 0 for an undecoded file and 1 for a still.
	Frames int `json:"frames"`

	// DurationMS is the total animation length in milliseconds.
	DurationMS int64 `json:"duration_ms,omitempty"`

	// Footprint is the payload size in bytes and in human-readable form.
	FootprintBytes int    `json:"footprint_bytes"`
	Footprint      string `json:"footprint"`
}

// Describe returns metadata about img without copying pixel data.
//
// Returns imagecell.ErrEmptyAnimation for an animation without frames.
func Describe(img *imagecell.ImageData) (*ImageInfo, error) {
	n, err := img.FootprintBytes()
	if err != nil {
		return nil, err
	}

	p := img.Payload()
	info := &ImageInfo{
		ID:             img.ID(),
		Hash:           img.HashHex(),
		Kind:           string(p.Kind()),
		Frames:         FrameCount(p),
		FootprintBytes: n,
		Footprint:      humanize.IBytes(uint64(n)),
	}
	if w, h, ok := Dimensions(p); ok {
		info.Width, info.Height = int(w), int(h)
	}
	if anim, ok := p.(imagecell.Animated); ok {
		for _, d := range anim.Durations {
			info.DurationMS += d.Milliseconds()
		}
	}
	return info, nil
}
