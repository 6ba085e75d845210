package store

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenDB_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "snapshots.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	// schema init is idempotent
	require.NoError(t, initSchema(db))
	assert.FileExists(t, path)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	src := newTestStore(t)
	srcPlacements := NewPlacements(src)

	anim, err := src.Put(imagecell.Animated{
		Width: 1, Height: 1,
		Durations: []time.Duration{30 * time.Millisecond, 70 * time.Millisecond},
		Frames:    [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}},
	})
	require.NoError(t, err)
	plain, err := src.Put(still(9, 2))
	require.NoError(t, err)
	_, err = src.Put(imagecell.EncodedFile{Data: []byte("opaque")})
	require.NoError(t, err)

	over := imagecell.Placement{ZIndex: 3, OffsetX: 2, OffsetY: 1, ImageID: 7, PlacementID: imagecell.SomeID(9)}
	under := imagecell.Placement{ZIndex: -4, ImageID: 8}
	require.NoError(t, srcPlacements.Place(7, imagecell.SomeID(9), placedCells(anim, 3, over)))
	require.NoError(t, srcPlacements.Place(8, imagecell.NoID, []*imagecell.Cell{
		imagecell.NewPlacedCell(
			imagecell.MustCoordinate(-0.5, float32(math.Inf(-1))),
			imagecell.MustCoordinate(1.5, float32(math.Inf(1))),
			plain, under),
	}))

	info, err := SaveSnapshot(ctx, db, src, srcPlacements)
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 3, info.Images)
	assert.Equal(t, 4, info.Cells)

	dst := newTestStore(t)
	dstPlacements := NewPlacements(dst)
	loaded, err := LoadSnapshot(ctx, db, dst, dstPlacements, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, loaded)

	assert.Equal(t, 3, dst.Stats().Images)
	assert.Equal(t, 2, dstPlacements.Len())

	want := srcPlacements.All()
	got := dstPlacements.All()
	require.Len(t, got, len(want))
	for i := range want {
		assertSameCell(t, want[i], got[i])
	}

	// placements hold the only references after loading
	for _, img := range []*imagecell.ImageData{anim, plain} {
		restored, ok := dst.Lookup(img.Hash())
		require.True(t, ok)
		assert.Equal(t, 1, dst.Refs(restored.ID()))
	}
}

// assertSameCell compares two cells by window, placement and image content.
// Image ids are per store and not compared.
func assertSameCell(t *testing.T, want, got *imagecell.Cell) {
	t.Helper()
	assert.Equal(t, want.TopLeft(), got.TopLeft())
	assert.Equal(t, want.BottomRight(), got.BottomRight())
	assert.Equal(t, want.Placement(), got.Placement())
	assert.Equal(t, want.Image().Hash(), got.Image().Hash())
	assert.True(t, imagecell.PayloadEqual(want.Image().Payload(), got.Image().Payload()))
}

func TestSnapshot_LoadAfterRestart(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	before := newTestStore(t)
	img, err := before.Put(still(3, 2))
	require.NoError(t, err)
	p := NewPlacements(before)
	pl := imagecell.Placement{ImageID: 5}
	require.NoError(t, p.Place(5, imagecell.NoID, placedCells(img, 2, pl)))
	info, err := SaveSnapshot(ctx, db, before, p)
	require.NoError(t, err)

	// A new process starts its ids over and has already stored an
	// unrelated image under the id the snapshot recorded.
	after := newTestStore(t)
	other, err := after.Put(still(4, 2))
	require.NoError(t, err)
	require.Equal(t, img.ID(), other.ID())

	afterPlacements := NewPlacements(after)
	_, err = LoadSnapshot(ctx, db, after, afterPlacements, info.ID)
	require.NoError(t, err)

	cells, ok := afterPlacements.Find(5, imagecell.NoID)
	require.True(t, ok)
	require.Len(t, cells, 2)
	restored := cells[0].Image()
	assert.Equal(t, img.Hash(), restored.Hash())
	assert.Greater(t, restored.ID(), other.ID())
	assert.Equal(t, 1, after.Refs(restored.ID()))
	assert.Equal(t, 0, after.Refs(other.ID()))

	got, ok := after.Get(restored.ID())
	require.True(t, ok)
	assert.Same(t, restored, got)
}

func TestSnapshot_LoadReusesStoredContent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	src := newTestStore(t)
	img, err := src.Put(still(1, 1))
	require.NoError(t, err)
	p := NewPlacements(src)
	pl := imagecell.Placement{ImageID: 1}
	require.NoError(t, p.Place(1, imagecell.NoID, placedCells(img, 1, pl)))

	info, err := SaveSnapshot(ctx, db, src, p)
	require.NoError(t, err)

	// loading into the same store keeps the existing image
	_, err = LoadSnapshot(ctx, db, src, p, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Stats().Images)
	assert.Equal(t, 1, src.Refs(img.ID()))

	cells, ok := p.Find(1, imagecell.NoID)
	require.True(t, ok)
	assert.Same(t, img, cells[0].Image())
}

func TestSnapshot_LatestAndList(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := newTestStore(t)
	p := NewPlacements(s)
	first, err := SaveSnapshot(ctx, db, s, p)
	require.NoError(t, err)

	_, err = s.Put(still(4, 1))
	require.NoError(t, err)
	second, err := SaveSnapshot(ctx, db, s, p)
	require.NoError(t, err)

	list, err := ListSnapshots(ctx, db)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	latest, err := LoadSnapshot(ctx, db, newTestStore(t), NewPlacements(newTestStore(t)), "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestSnapshot_Missing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := newTestStore(t)

	_, err := LoadSnapshot(ctx, db, s, NewPlacements(s), "")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = LoadSnapshot(ctx, db, s, NewPlacements(s), "no-such-id")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSnapshot_RejectsTamperedImage(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := newTestStore(t)
	_, err := s.Put(still(1, 1))
	require.NoError(t, err)
	info, err := SaveSnapshot(ctx, db, s, NewPlacements(s))
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE snapshot_images SET image = replace(image, '"hash":"', '"hash":"00')`)
	require.NoError(t, err)

	dst := newTestStore(t)
	_, err = LoadSnapshot(ctx, db, dst, NewPlacements(dst), info.ID)
	var verr *imagecell.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, imagecell.HashMismatch, verr.Kind)
	assert.Equal(t, 0, dst.Stats().Images)
}
