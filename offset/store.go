// Package offset persists how far each commit log segment has been consumed,
// so a restarted agent skips records the sink already accepted.
package offset

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/commitlog-cdc/encoding"
	"github.com/maxpert/commitlog-cdc/event"
	"github.com/rs/zerolog/log"
)

// Key prefixes for Pebble storage
const (
	prefixSegment = "/segment/" // /segment/{segment base name} -> SegmentOffset
	keyLatest     = "/latest"   // last position passed to MarkProcessed
)

// Pebble configuration constants. Writes are small and infrequent compared to
// a data store, so the memtable is kept modest.
const (
	memTableSize                = 4 << 20 // 4MB
	memTableStopWritesThreshold = 4
	l0CompactionThreshold       = 2
	l0StopWritesThreshold       = 12
)

var ErrClosed = errors.New("offset store is closed")

// SegmentOffset is the committed state of one segment
type SegmentOffset struct {
	Segment   string `msgpack:"segment"`
	Offset    int64  `msgpack:"offset"`   // Highest committed offset, -1 when none
	Complete  bool   `msgpack:"complete"` // Every record was accepted
	UpdatedAt int64  `msgpack:"updated_at"`
}

// Store is a Pebble-backed offset store. It is safe for concurrent use by
// every shard processor.
type Store struct {
	db   *pebble.DB
	path string

	// In-memory copy of every segment entry
	segments   map[string]SegmentOffset
	segmentsMu sync.RWMutex

	// Serializes read-modify-write of a segment entry
	writeMu sync.Mutex

	closed atomic.Bool
}

// Open creates or opens the store under dir
func Open(dir string) (*Store, error) {
	path := filepath.Join(dir, "offsets")

	opts := &pebble.Options{
		MemTableSize:                memTableSize,
		MemTableStopWritesThreshold: memTableStopWritesThreshold,
		L0CompactionThreshold:       l0CompactionThreshold,
		L0StopWritesThreshold:       l0StopWritesThreshold,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open offset store at %s: %w", path, err)
	}

	s := &Store{
		db:       db,
		path:     path,
		segments: make(map[string]SegmentOffset),
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load offsets: %w", err)
	}

	return s, nil
}

// load reads every segment entry into memory
func (s *Store) load() error {
	prefix := []byte(prefixSegment)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	complete := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		var entry SegmentOffset
		if err := encoding.Unmarshal(val, &entry); err != nil {
			return fmt.Errorf("corrupted offset entry %s: %w", iter.Key(), err)
		}
		s.segments[entry.Segment] = entry
		if entry.Complete {
			complete++
		}
	}

	if err := iter.Error(); err != nil {
		return err
	}

	if len(s.segments) > 0 {
		log.Info().
			Int("segments", len(s.segments)).
			Int("complete", complete).
			Str("path", s.path).
			Msg("Loaded committed offsets")
	}
	return nil
}

// MarkProcessed commits pos as the highest accepted offset of its segment.
// Offsets never move backwards.
func (s *Store) MarkProcessed(pos event.Position) error {
	if s.closed.Load() {
		return ErrClosed
	}

	name := pos.SegmentName()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	// Close may have won the lock since the first check
	if s.closed.Load() {
		return ErrClosed
	}

	entry, ok := s.get(name)
	if !ok {
		entry = SegmentOffset{Segment: name, Offset: -1}
	}
	if entry.Complete || pos.Offset <= entry.Offset {
		return nil
	}
	entry.Offset = pos.Offset
	entry.UpdatedAt = time.Now().UnixMilli()

	latest, err := encoding.Marshal(&pos)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := s.setEntry(batch, entry); err != nil {
		return err
	}
	if err := batch.Set([]byte(keyLatest), latest, nil); err != nil {
		return fmt.Errorf("failed to write latest position: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit offset: %w", err)
	}

	s.put(entry)
	return nil
}

// MarkSegmentComplete records that every record of segment was accepted
func (s *Store) MarkSegmentComplete(segment string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	name := filepath.Base(segment)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}

	entry, ok := s.get(name)
	if !ok {
		entry = SegmentOffset{Segment: name, Offset: -1}
	}
	if entry.Complete {
		return nil
	}
	entry.Complete = true
	entry.UpdatedAt = time.Now().UnixMilli()

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := s.setEntry(batch, entry); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit segment completion: %w", err)
	}

	s.put(entry)
	log.Debug().Str("segment", name).Msg("Segment committed as complete")
	return nil
}

// Get returns the committed state of a segment, by path or base name
func (s *Store) Get(segment string) (SegmentOffset, bool, error) {
	if s.closed.Load() {
		return SegmentOffset{}, false, ErrClosed
	}
	entry, ok := s.get(filepath.Base(segment))
	return entry, ok, nil
}

// IsProcessed reports whether the record at pos was already accepted
func (s *Store) IsProcessed(pos event.Position) (bool, error) {
	entry, ok, err := s.Get(pos.Segment)
	if err != nil || !ok {
		return false, err
	}
	return entry.Complete || pos.Offset <= entry.Offset, nil
}

// Latest returns the last position committed by MarkProcessed
func (s *Store) Latest() (event.Position, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return event.Position{}, false, ErrClosed
	}

	val, closer, err := s.db.Get([]byte(keyLatest))
	if err == pebble.ErrNotFound {
		return event.Position{}, false, nil
	}
	if err != nil {
		return event.Position{}, false, err
	}
	defer closer.Close()

	var pos event.Position
	if err := encoding.Unmarshal(val, &pos); err != nil {
		return event.Position{}, false, fmt.Errorf("corrupted latest position: %w", err)
	}
	return pos, true, nil
}

// Segments returns every known segment entry ordered by name
func (s *Store) Segments() []SegmentOffset {
	s.segmentsMu.RLock()
	out := make([]SegmentOffset, 0, len(s.segments))
	for _, entry := range s.segments {
		out = append(out, entry)
	}
	s.segmentsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment })
	return out
}

// Forget drops the entry of a segment that no longer exists anywhere
func (s *Store) Forget(segment string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	name := filepath.Base(segment)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}

	if err := s.db.Delete([]byte(prefixSegment+name), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete offset of %s: %w", name, err)
	}

	s.segmentsMu.Lock()
	delete(s.segments, name)
	s.segmentsMu.Unlock()
	return nil
}

// Close closes the Pebble database
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Close()
}

func (s *Store) get(name string) (SegmentOffset, bool) {
	s.segmentsMu.RLock()
	defer s.segmentsMu.RUnlock()
	entry, ok := s.segments[name]
	return entry, ok
}

func (s *Store) put(entry SegmentOffset) {
	s.segmentsMu.Lock()
	s.segments[entry.Segment] = entry
	s.segmentsMu.Unlock()
}

func (s *Store) setEntry(batch *pebble.Batch, entry SegmentOffset) error {
	val, err := encoding.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal offset: %w", err)
	}
	if err := batch.Set([]byte(prefixSegment+entry.Segment), val, nil); err != nil {
		return fmt.Errorf("failed to write offset: %w", err)
	}
	return nil
}

// prefixUpperBound returns the upper bound for a prefix scan
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil
}
