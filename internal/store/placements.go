package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// ErrPlacementMismatch is returned when a cell passed to Place does not
// belong to the placement being registered.
var ErrPlacementMismatch = errors.New("store: cell does not match placement")

type placementKey struct {
	imageID     uint32
	placementID imagecell.OptionalID
}

type placement struct {
	key     placementKey
	storeID uint64
	cells   []*imagecell.Cell
	seq     uint64
}

// Placements tracks which cells show which image on screen. Every placement
// holds one store reference on its image, so displayed images are never
// evicted.
type Placements struct {
	store *Store

	mu      sync.RWMutex
	entries map[placementKey]*placement
	seq     uint64
}

// NewPlacements returns an empty registry backed by s.
func NewPlacements(s *Store) *Placements {
	return &Placements{store: s, entries: make(map[placementKey]*placement)}
}

// Place registers cells as placement (imageID, placementID), replacing any
// previous placement with the same ids. All cells must show the same stored
// image and match the placement ids.
func (p *Placements) Place(imageID uint32, placementID imagecell.OptionalID, cells []*imagecell.Cell) error {
	if len(cells) == 0 {
		return errors.New("store: placement has no cells")
	}
	img := cells[0].Image()
	for i, c := range cells {
		if !c.MatchesPlacement(imageID, placementID) {
			return fmt.Errorf("%w: cell %d has %d/%v, want %d/%v", ErrPlacementMismatch,
				i, c.ImageID(), c.PlacementID(), imageID, placementID)
		}
		if c.Image() != img {
			return fmt.Errorf("%w: cell %d shows a different image", ErrPlacementMismatch, i)
		}
	}
	if err := p.store.Retain(img.ID()); err != nil {
		return err
	}

	key := placementKey{imageID, placementID}
	p.mu.Lock()
	old := p.entries[key]
	p.seq++
	p.entries[key] = &placement{
		key:     key,
		storeID: img.ID(),
		cells:   append([]*imagecell.Cell(nil), cells...),
		seq:     p.seq,
	}
	p.mu.Unlock()

	if old != nil {
		return p.store.Release(old.storeID)
	}
	return nil
}

// Find returns the cells of placement (imageID, placementID).
func (p *Placements) Find(imageID uint32, placementID imagecell.OptionalID) ([]*imagecell.Cell, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[placementKey{imageID, placementID}]
	if !ok {
		return nil, false
	}
	return append([]*imagecell.Cell(nil), e.cells...), true
}

// Delete removes placement (imageID, placementID) and returns the number of
// cells that were showing it.
func (p *Placements) Delete(imageID uint32, placementID imagecell.OptionalID) (int, error) {
	p.mu.Lock()
	e, ok := p.entries[placementKey{imageID, placementID}]
	if ok {
		delete(p.entries, e.key)
	}
	p.mu.Unlock()

	if !ok {
		return 0, nil
	}
	return len(e.cells), p.store.Release(e.storeID)
}

// DeleteImage removes every placement with the given protocol image id,
// whatever its placement id, and returns how many were removed.
func (p *Placements) DeleteImage(imageID uint32) (int, error) {
	p.mu.Lock()
	var gone []*placement
	for k, e := range p.entries {
		if k.imageID == imageID {
			gone = append(gone, e)
			delete(p.entries, k)
		}
	}
	p.mu.Unlock()

	var errs []error
	for _, e := range gone {
		if err := p.store.Release(e.storeID); err != nil {
			errs = append(errs, err)
		}
	}
	return len(gone), errors.Join(errs...)
}

// Clear removes every placement.
func (p *Placements) Clear() error {
	p.mu.Lock()
	gone := p.entries
	p.entries = make(map[placementKey]*placement)
	p.mu.Unlock()

	var errs []error
	for _, e := range gone {
		if err := p.store.Release(e.storeID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of placements.
func (p *Placements) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// All returns every placed cell in render order: by z-index, and for equal
// z-index in the order the placements were made.
func (p *Placements) All() []*imagecell.Cell {
	var cells []*imagecell.Cell
	for _, e := range p.ordered() {
		cells = append(cells, e.cells...)
	}
	imagecell.SortByZ(cells)
	return cells
}

// ordered returns the placements in the order they were made.
func (p *Placements) ordered() []*placement {
	p.mu.RLock()
	out := make([]*placement, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
