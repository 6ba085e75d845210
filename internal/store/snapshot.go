package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ironsheep/imagecell/internal/imagecell"
)

// ErrNoSnapshot is returned by LoadSnapshot when the database holds no
// matching snapshot.
var ErrNoSnapshot = errors.New("store: no snapshot")

// SnapshotInfo describes a saved snapshot.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Images    int       `json:"images"`
	Cells     int       `json:"cells"`
}

// OpenDB opens (creating if needed) the snapshot database at path. Use
// ":memory:" for a private in-memory database.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			images INTEGER NOT NULL,
			cells INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snapshot_images (
			snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			hash TEXT NOT NULL,
			image BLOB NOT NULL,
			PRIMARY KEY (snapshot_id, hash)
		);

		CREATE TABLE IF NOT EXISTS snapshot_cells (
			snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			image_hash TEXT NOT NULL,
			top_left_x REAL NOT NULL,
			top_left_y REAL NOT NULL,
			bottom_right_x REAL NOT NULL,
			bottom_right_y REAL NOT NULL,
			z_index INTEGER NOT NULL,
			offset_x INTEGER NOT NULL,
			offset_y INTEGER NOT NULL,
			image_id INTEGER NOT NULL,
			placement_id INTEGER,
			PRIMARY KEY (snapshot_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);
	`)
	return err
}

// withTx executes fn within a transaction, rolling back on error.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveSnapshot writes every image in s and every placed cell in p to db as a
// new snapshot.
func SaveSnapshot(ctx context.Context, db *sql.DB, s *Store, p *Placements) (SnapshotInfo, error) {
	images := s.All()
	placed := p.ordered()

	info := SnapshotInfo{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Images:    len(images),
	}
	for _, e := range placed {
		info.Cells += len(e.cells)
	}

	err := withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (id, created_at, images, cells) VALUES (?, ?, ?, ?)`,
			info.ID, info.CreatedAt.Unix(), info.Images, info.Cells); err != nil {
			return err
		}

		for _, img := range images {
			data, err := json.Marshal(img)
			if err != nil {
				return fmt.Errorf("image %d: %w", img.ID(), err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO snapshot_images (snapshot_id, hash, image) VALUES (?, ?, ?)`,
				info.ID, img.HashHex(), data); err != nil {
				return err
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO snapshot_cells (
				snapshot_id, seq, image_hash,
				top_left_x, top_left_y, bottom_right_x, bottom_right_y,
				z_index, offset_x, offset_y, image_id, placement_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		seq := 0
		for _, e := range placed {
			for _, c := range e.cells {
				pl := c.Placement()
				var placementID sql.NullInt64
				if pl.PlacementID.Set {
					placementID = sql.NullInt64{Int64: int64(pl.PlacementID.Value), Valid: true}
				}
				if _, err := stmt.ExecContext(ctx,
					info.ID, seq, c.Image().HashHex(),
					float64(c.TopLeft().X()), float64(c.TopLeft().Y()),
					float64(c.BottomRight().X()), float64(c.BottomRight().Y()),
					pl.ZIndex, pl.OffsetX, pl.OffsetY, pl.ImageID, placementID); err != nil {
					return err
				}
				seq++
			}
		}
		return nil
	})
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return info, nil
}

// ListSnapshots returns saved snapshots, newest first.
func ListSnapshots(ctx context.Context, db *sql.DB) ([]SnapshotInfo, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, created_at, images, cells FROM snapshots ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var created int64
		if err := rows.Scan(&info.ID, &created, &info.Images, &info.Cells); err != nil {
			return nil, err
		}
		info.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// LoadSnapshot restores snapshot id (the newest one if id is empty) into s
// and replaces every placement in p with the saved ones.
//
// Images are linked to cells by content hash. Restored images get fresh ids
// from s, and images whose content is already stored are reused. Image data
// is checked against its recorded hash.
func LoadSnapshot(ctx context.Context, db *sql.DB, s *Store, p *Placements, id string) (SnapshotInfo, error) {
	info, err := findSnapshot(ctx, db, id)
	if err != nil {
		return SnapshotInfo{}, err
	}

	byHash, err := loadImages(ctx, db, s, info.ID)
	// loadImages pins what it restored so the budget cannot evict it before
	// the placements take their own references.
	defer func() {
		for _, img := range byHash {
			_ = s.Release(img.ID())
		}
	}()
	if err != nil {
		return SnapshotInfo{}, err
	}
	groups, err := loadCells(ctx, db, info.ID, byHash)
	if err != nil {
		return SnapshotInfo{}, err
	}

	if err := p.Clear(); err != nil {
		return SnapshotInfo{}, err
	}
	for _, g := range groups {
		if err := p.Place(g.key.imageID, g.key.placementID, g.cells); err != nil {
			return SnapshotInfo{}, fmt.Errorf("failed to restore placement %d/%v: %w",
				g.key.imageID, g.key.placementID, err)
		}
	}
	return info, nil
}

func findSnapshot(ctx context.Context, db *sql.DB, id string) (SnapshotInfo, error) {
	query := `SELECT id, created_at, images, cells FROM snapshots WHERE id = ?`
	args := []any{id}
	if id == "" {
		query = `SELECT id, created_at, images, cells FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT 1`
		args = nil
	}

	var info SnapshotInfo
	var created int64
	err := db.QueryRowContext(ctx, query, args...).Scan(&info.ID, &created, &info.Images, &info.Cells)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotInfo{}, ErrNoSnapshot
	}
	if err != nil {
		return SnapshotInfo{}, err
	}
	info.CreatedAt = time.Unix(created, 0).UTC()
	return info, nil
}

func loadImages(ctx context.Context, db *sql.DB, s *Store, snapshotID string) (map[string]*imagecell.ImageData, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT hash, image FROM snapshot_images WHERE snapshot_id = ? ORDER BY rowid`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*imagecell.ImageData)
	for rows.Next() {
		var hash string
		var data []byte
		if err := rows.Scan(&hash, &data); err != nil {
			return out, err
		}
		var img imagecell.ImageData
		if err := json.Unmarshal(data, &img); err != nil {
			return out, fmt.Errorf("image %s: %w", hash, err)
		}
		if img.HashHex() != hash {
			return out, fmt.Errorf("image %s: stored under hash of different content", hash)
		}
		stored, err := s.Restore(&img)
		if err != nil {
			return out, fmt.Errorf("image %s: %w", hash, err)
		}
		if err := s.Retain(stored.ID()); err != nil {
			return out, err
		}
		out[hash] = stored
	}
	return out, rows.Err()
}

type cellGroup struct {
	key   placementKey
	cells []*imagecell.Cell
}

func loadCells(ctx context.Context, db *sql.DB, snapshotID string, images map[string]*imagecell.ImageData) ([]*cellGroup, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT image_hash, top_left_x, top_left_y, bottom_right_x, bottom_right_y,
			z_index, offset_x, offset_y, image_id, placement_id
		FROM snapshot_cells WHERE snapshot_id = ? ORDER BY seq`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*cellGroup
	index := make(map[placementKey]*cellGroup)
	for rows.Next() {
		var (
			hash           string
			x1, y1, x2, y2 float64
			pl             imagecell.Placement
			placementID    sql.NullInt64
		)
		if err := rows.Scan(&hash, &x1, &y1, &x2, &y2,
			&pl.ZIndex, &pl.OffsetX, &pl.OffsetY, &pl.ImageID, &placementID); err != nil {
			return nil, err
		}
		if placementID.Valid {
			pl.PlacementID = imagecell.SomeID(uint32(placementID.Int64))
		}

		img, ok := images[hash]
		if !ok {
			return nil, fmt.Errorf("cell references unknown image %s", hash)
		}
		tl, err := imagecell.NewCoordinate(float32(x1), float32(y1))
		if err != nil {
			return nil, err
		}
		br, err := imagecell.NewCoordinate(float32(x2), float32(y2))
		if err != nil {
			return nil, err
		}

		key := placementKey{pl.ImageID, pl.PlacementID}
		g, ok := index[key]
		if !ok {
			g = &cellGroup{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.cells = append(g.cells, imagecell.NewPlacedCell(tl, br, img, pl))
	}
	return groups, rows.Err()
}
