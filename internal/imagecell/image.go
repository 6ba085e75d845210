package imagecell

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// IDAllocator hands out image ids. Ids are strictly increasing for the
// lifetime of the allocator and are never reused, even after the image that
// held one is dropped. The zero value is ready to use; the first id is 1.
//
// The returned value is an opaque identifier: a later call yields a greater
// id, and nothing else about event ordering can be inferred from it.
type IDAllocator struct {
	last atomic.Uint64
}

// Next returns a fresh id.
func (a *IDAllocator) Next() uint64 {
	return a.last.Add(1)
}

// Observe records an id this allocator's owner issued by other means, so
// that Next never returns it or anything below it.
func (a *IDAllocator) Observe(id uint64) {
	for {
		cur := a.last.Load()
		if id <= cur || a.last.CompareAndSwap(cur, id) {
			return
		}
	}
}

// defaultIDs is the process-wide allocator used by NewImageData. It is
// initialised once at startup and never reset.
var defaultIDs IDAllocator

// DefaultIDs returns the process-wide allocator.
func DefaultIDs() *IDAllocator {
	return &defaultIDs
}

// ImageData is an immutable, content-hashed raster payload shared by every
// Cell that displays part of it. It never refers back to those cells.
//
// The byte slices reachable through Payload are shared; callers must treat
// them as read-only.
type ImageData struct {
	id      uint64
	hash    [32]byte
	payload Payload
}

// NewImageData wraps p using the process-wide id allocator.
func NewImageData(p Payload) *ImageData {
	return NewImageDataWithIDs(&defaultIDs, p)
}

// NewImageDataWithIDs wraps p, taking its id from ids. The hash is computed
// here and never again.
func NewImageDataWithIDs(ids *IDAllocator, p Payload) *ImageData {
	if p == nil {
		p = EncodedFile{}
	}
	return &ImageData{
		id:      ids.Next(),
		hash:    ComputeHash(p),
		payload: p,
	}
}

// NewImageDataFromRaw wraps undecoded file bytes.
func NewImageDataFromRaw(data []byte) *ImageData {
	return NewImageData(EncodedFile{Data: data})
}

// ID returns the process-unique id.
func (d *ImageData) ID() uint64 { return d.id }

// Hash returns the content digest.
func (d *ImageData) Hash() [32]byte { return d.hash }

// HashHex returns the content digest as lowercase hex.
func (d *ImageData) HashHex() string { return hex.EncodeToString(d.hash[:]) }

// Payload returns the raster content.
func (d *ImageData) Payload() Payload { return d.payload }

// FootprintBytes is FootprintBytes of the payload.
func (d *ImageData) FootprintBytes() (int, error) {
	return FootprintBytes(d.payload)
}

// Equal reports whether d and o have the same id, hash and payload.
func (d *ImageData) Equal(o *ImageData) bool {
	if d == o {
		return true
	}
	if d == nil || o == nil {
		return false
	}
	return d.id == o.id && d.hash == o.hash && PayloadEqual(d.payload, o.payload)
}

func (d *ImageData) String() string {
	return fmt.Sprintf("ImageData{id: %d, hash: %s, data: %v}", d.id, d.HashHex()[:12], d.payload)
}

type imageDataWire struct {
	ID      uint64          `json:"id"`
	Hash    string          `json:"hash"`
	Payload json.RawMessage `json:"payload"`
}

func (d *ImageData) MarshalJSON() ([]byte, error) {
	p, err := json.Marshal(d.payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(imageDataWire{ID: d.id, Hash: d.HashHex(), Payload: p})
}

// UnmarshalJSON restores an image as serialized, id included. The hash is
// recomputed and must match the serialized one. No allocator is touched: a
// decoded id may come from another process, and stores give restored images
// ids of their own.
func (d *ImageData) UnmarshalJSON(data []byte) error {
	var w imageDataWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p, err := UnmarshalPayload(w.Payload)
	if err != nil {
		return err
	}
	hash := ComputeHash(p)
	if got := hex.EncodeToString(hash[:]); got != w.Hash {
		return &ValidationError{Kind: HashMismatch, Field: "hash", Detail: fmt.Sprintf("payload hashes to %s", got)}
	}
	*d = ImageData{id: w.ID, hash: hash, payload: p}
	return nil
}
