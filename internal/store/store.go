// Package store keeps decoded images shared between terminal cells.
//
// Images are addressed by content hash, so the same picture sent twice is
// stored once. Images referenced by a placement are pinned; the rest are kept
// in least-recently-used order and evicted once their total footprint exceeds
// the byte budget.
package store

import (
	"container/list"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/imagecell/internal/imagecell"
)

const (
	// DefaultBudgetBytes is the footprint kept for unreferenced images.
	DefaultBudgetBytes = 256 << 20
	// DefaultMaxInputBytes bounds a single encoded input.
	DefaultMaxInputBytes = 64 << 20
	// DefaultWorkers is the IngestAll concurrency.
	DefaultWorkers = 4
)

var (
	ErrNotFound      = errors.New("store: image not found")
	ErrInUse         = errors.New("store: image is referenced")
	ErrNotRetained   = errors.New("store: image has no references")
	ErrInputTooLarge = errors.New("store: input exceeds size limit")
)

type entry struct {
	img       *imagecell.ImageData
	footprint int64
	refs      int
	// elem is the entry's position in the LRU list while refs == 0.
	elem *list.Element
	// raw lists the hashes of encoded inputs that decoded to this image.
	raw [][32]byte
}

// Stats is a snapshot of store usage.
type Stats struct {
	Images      int    `json:"images"`
	Referenced  int    `json:"referenced"`
	UsedBytes   int64  `json:"used_bytes"`
	BudgetBytes int64  `json:"budget_bytes"`
	Used        string `json:"used"`
	Budget      string `json:"budget"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
}

// Option configures a Store.
type Option func(*Store)

// WithBudget sets the byte budget for unreferenced images. Referenced images
// are never evicted and may push usage past the budget.
func WithBudget(bytes int64) Option {
	return func(s *Store) {
		if bytes > 0 {
			s.budget = bytes
		}
	}
}

// WithMaxInputBytes bounds the size of encoded input accepted by Ingest.
func WithMaxInputBytes(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxInput = n
		}
	}
}

// WithWorkers sets how many inputs IngestAll decodes at once.
func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithIDs makes the store allocate image ids from ids instead of the
// process-wide allocator.
func WithIDs(ids *imagecell.IDAllocator) Option {
	return func(s *Store) { s.ids = ids }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is a content-addressed image store. It is safe for concurrent use.
type Store struct {
	decoder  *imagecell.Decoder
	ids      *imagecell.IDAllocator
	logger   *slog.Logger
	budget   int64
	maxInput int
	workers  int

	mu      sync.Mutex
	byHash  map[[32]byte]*entry
	byID    map[uint64]*entry
	rawHash map[[32]byte]*entry
	lru     *list.List // unreferenced entries, most recent at the front
	used    int64

	hits, misses, evictions uint64
}

// New returns an empty store that normalizes input with decoder.
func New(decoder *imagecell.Decoder, opts ...Option) *Store {
	s := &Store{
		decoder:  decoder,
		ids:      imagecell.DefaultIDs(),
		logger:   slog.Default(),
		budget:   DefaultBudgetBytes,
		maxInput: DefaultMaxInputBytes,
		workers:  DefaultWorkers,
		byHash:   make(map[[32]byte]*entry),
		byID:     make(map[uint64]*entry),
		rawHash:  make(map[[32]byte]*entry),
		lru:      list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest decodes raw and stores the result, returning the existing image if
// the same content is already present. Bytes seen before skip the decode.
//
// Input the decoder cannot handle is stored as an EncodedFile.
func (s *Store) Ingest(raw []byte) (*imagecell.ImageData, error) {
	if len(raw) > s.maxInput {
		return nil, fmt.Errorf("%w: %s > %s", ErrInputTooLarge,
			humanize.IBytes(uint64(len(raw))), humanize.IBytes(uint64(s.maxInput)))
	}
	key := sha256.Sum256(raw)

	s.mu.Lock()
	if e, ok := s.rawHash[key]; ok {
		s.hits++
		s.touch(e)
		s.mu.Unlock()
		return e.img, nil
	}
	s.mu.Unlock()

	payload := s.decoder.Normalize(imagecell.EncodedFile{Data: raw})
	img, err := s.put(payload, &key)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("image ingested",
		"id", img.ID(), "kind", payload.Kind(), "input", humanize.IBytes(uint64(len(raw))))
	return img, nil
}

// IngestAll ingests inputs concurrently and returns the images in input
// order. The first failure cancels the remaining work.
func (s *Store) IngestAll(ctx context.Context, inputs [][]byte) ([]*imagecell.ImageData, error) {
	out := make([]*imagecell.ImageData, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, raw := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := s.Ingest(raw)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores an already built payload, deduplicating by content hash.
func (s *Store) Put(p imagecell.Payload) (*imagecell.ImageData, error) {
	return s.put(p, nil)
}

func (s *Store) put(p imagecell.Payload, raw *[32]byte) (*imagecell.ImageData, error) {
	n, err := imagecell.FootprintBytes(p)
	if err != nil {
		return nil, err
	}
	hash := imagecell.ComputeHash(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byHash[hash]
	if ok {
		s.hits++
		s.touch(e)
	} else {
		s.misses++
		e = &entry{img: imagecell.NewImageDataWithIDs(s.ids, p), footprint: int64(n)}
		s.add(e)
	}
	if raw != nil {
		if _, seen := s.rawHash[*raw]; !seen {
			s.rawHash[*raw] = e
			e.raw = append(e.raw, *raw)
		}
	}
	s.evict(e)
	return e.img, nil
}

// Restore adds an image read from outside this process, such as a
// snapshot. Its serialized id belongs to the process that wrote it, so the
// image is stored under a fresh id from the store's allocator; hash and
// payload are kept. If the same content is already present, that image is
// returned instead.
func (s *Store) Restore(img *imagecell.ImageData) (*imagecell.ImageData, error) {
	return s.put(img.Payload(), nil)
}

// Get returns the image with the given id.
func (s *Store) Get(id uint64) (*imagecell.ImageData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	s.touch(e)
	return e.img, true
}

// Lookup returns the image with the given content hash.
func (s *Store) Lookup(hash [32]byte) (*imagecell.ImageData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byHash[hash]
	if !ok {
		return nil, false
	}
	s.touch(e)
	return e.img, true
}

// Retain pins an image so it is never evicted. Each Retain must be paired
// with a Release.
func (s *Store) Retain(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if e.refs == 0 {
		s.lru.Remove(e.elem)
		e.elem = nil
	}
	e.refs++
	return nil
}

// Release drops a reference taken by Retain. An image without references
// becomes eligible for eviction.
func (s *Store) Release(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if e.refs == 0 {
		return fmt.Errorf("%w: id %d", ErrNotRetained, id)
	}
	e.refs--
	if e.refs == 0 {
		e.elem = s.lru.PushFront(e)
		s.evict(nil)
	}
	return nil
}

// Refs returns the number of references held on an image.
func (s *Store) Refs(id uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		return e.refs
	}
	return 0
}

// Evict removes an unreferenced image immediately.
func (s *Store) Evict(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if e.refs > 0 {
		return fmt.Errorf("%w: id %d has %d references", ErrInUse, id, e.refs)
	}
	s.remove(e)
	return nil
}

// All returns every stored image ordered by id.
func (s *Store) All() []*imagecell.ImageData {
	s.mu.Lock()
	out := make([]*imagecell.ImageData, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e.img)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Stats reports current usage.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Images:      len(s.byID),
		UsedBytes:   s.used,
		BudgetBytes: s.budget,
		Used:        humanize.IBytes(uint64(s.used)),
		Budget:      humanize.IBytes(uint64(s.budget)),
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
	}
	for _, e := range s.byID {
		if e.refs > 0 {
			st.Referenced++
		}
	}
	return st
}

// add indexes a new unreferenced entry. s.mu must be held.
func (s *Store) add(e *entry) {
	s.byHash[e.img.Hash()] = e
	s.byID[e.img.ID()] = e
	e.elem = s.lru.PushFront(e)
	s.used += e.footprint
}

// remove drops an unreferenced entry from every index. s.mu must be held.
func (s *Store) remove(e *entry) {
	if e.elem != nil {
		s.lru.Remove(e.elem)
		e.elem = nil
	}
	delete(s.byHash, e.img.Hash())
	delete(s.byID, e.img.ID())
	for _, k := range e.raw {
		delete(s.rawHash, k)
	}
	s.used -= e.footprint
}

// touch marks an unreferenced entry as recently used. s.mu must be held.
func (s *Store) touch(e *entry) {
	if e.elem != nil {
		s.lru.MoveToFront(e.elem)
	}
}

// evict drops least recently used unreferenced entries until usage fits the
// budget. keep is never evicted. s.mu must be held.
func (s *Store) evict(keep *entry) {
	for el := s.lru.Back(); el != nil && s.used > s.budget; {
		e := el.Value.(*entry)
		el = el.Prev()
		if e == keep {
			continue
		}
		s.remove(e)
		s.evictions++
		s.logger.Debug("image evicted",
			"id", e.img.ID(), "footprint", humanize.IBytes(uint64(e.footprint)))
	}
}
