package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// placedCells returns n side-by-side cells of img with placement p.
func placedCells(img *imagecell.ImageData, n int, p imagecell.Placement) []*imagecell.Cell {
	cells := make([]*imagecell.Cell, n)
	for i := range cells {
		x0 := float32(i) / float32(n)
		x1 := float32(i+1) / float32(n)
		cells[i] = imagecell.NewPlacedCell(
			imagecell.MustCoordinate(x0, 0), imagecell.MustCoordinate(x1, 1), img, p)
	}
	return cells
}

func TestPlacements_PlaceAndFind(t *testing.T) {
	s := newTestStore(t)
	img, err := s.Put(still(1, 4))
	require.NoError(t, err)

	p := NewPlacements(s)
	pl := imagecell.Placement{ImageID: 10, PlacementID: imagecell.SomeID(1)}
	require.NoError(t, p.Place(10, imagecell.SomeID(1), placedCells(img, 3, pl)))

	cells, ok := p.Find(10, imagecell.SomeID(1))
	require.True(t, ok)
	assert.Len(t, cells, 3)
	assert.Equal(t, 1, s.Refs(img.ID()))

	_, ok = p.Find(10, imagecell.NoID)
	assert.False(t, ok, "NoID is a distinct placement")
}

func TestPlacements_PlaceValidates(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Put(still(1, 1))
	require.NoError(t, err)
	b, err := s.Put(still(2, 1))
	require.NoError(t, err)
	p := NewPlacements(s)

	pl := imagecell.Placement{ImageID: 1}
	assert.Error(t, p.Place(1, imagecell.NoID, nil))
	assert.ErrorIs(t, p.Place(2, imagecell.NoID, placedCells(a, 1, pl)), ErrPlacementMismatch)

	mixed := append(placedCells(a, 1, pl), placedCells(b, 1, pl)...)
	assert.ErrorIs(t, p.Place(1, imagecell.NoID, mixed), ErrPlacementMismatch)

	require.NoError(t, s.Evict(b.ID()))
	assert.ErrorIs(t, p.Place(1, imagecell.NoID, placedCells(b, 1, pl)), ErrNotFound)

	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0, s.Refs(a.ID()))
}

func TestPlacements_Replace(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Put(still(1, 1))
	require.NoError(t, err)
	b, err := s.Put(still(2, 1))
	require.NoError(t, err)
	p := NewPlacements(s)

	pl := imagecell.Placement{ImageID: 5}
	require.NoError(t, p.Place(5, imagecell.NoID, placedCells(a, 1, pl)))
	require.NoError(t, p.Place(5, imagecell.NoID, placedCells(b, 2, pl)))

	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 0, s.Refs(a.ID()), "replaced placement releases its image")
	assert.Equal(t, 1, s.Refs(b.ID()))
}

func TestPlacements_Delete(t *testing.T) {
	s := newTestStore(t)
	img, err := s.Put(still(1, 1))
	require.NoError(t, err)
	p := NewPlacements(s)

	for _, id := range []imagecell.OptionalID{imagecell.NoID, imagecell.SomeID(1), imagecell.SomeID(2)} {
		pl := imagecell.Placement{ImageID: 3, PlacementID: id}
		require.NoError(t, p.Place(3, id, placedCells(img, 2, pl)))
	}
	assert.Equal(t, 3, s.Refs(img.ID()))

	n, err := p.Delete(3, imagecell.SomeID(1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Refs(img.ID()))

	n, err = p.Delete(3, imagecell.SomeID(1))
	require.NoError(t, err)
	assert.Zero(t, n, "deleting twice is a no-op")

	removed, err := p.DeleteImage(3)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0, s.Refs(img.ID()))
}

func TestPlacements_AllInRenderOrder(t *testing.T) {
	s := newTestStore(t)
	img, err := s.Put(still(1, 1))
	require.NoError(t, err)
	p := NewPlacements(s)

	place := func(imageID uint32, z int32) {
		pl := imagecell.Placement{ImageID: imageID, ZIndex: z}
		require.NoError(t, p.Place(imageID, imagecell.NoID, placedCells(img, 1, pl)))
	}
	place(1, 5)
	place(2, -1)
	place(3, 5)
	place(4, math.MinInt32/2-1)

	var got []uint32
	for _, c := range p.All() {
		got = append(got, c.ImageID())
	}
	assert.Equal(t, []uint32{4, 2, 1, 3}, got)
}

func TestPlacements_Clear(t *testing.T) {
	s := newTestStore(t)
	img, err := s.Put(still(1, 1))
	require.NoError(t, err)
	p := NewPlacements(s)

	pl := imagecell.Placement{ImageID: 1}
	require.NoError(t, p.Place(1, imagecell.NoID, placedCells(img, 4, pl)))
	require.NoError(t, p.Clear())
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0, s.Refs(img.ID()))
}
