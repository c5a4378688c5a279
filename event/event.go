// Package event defines what segment readers hand to the dispatch queues.
package event

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/maxpert/commitlog-cdc/row"
)

// Kind tags an Event variant
type Kind uint8

const (
	KindChange Kind = iota
	KindTombstone
	KindSegmentEnd
)

func (k Kind) String() string {
	switch k {
	case KindChange:
		return "change"
	case KindTombstone:
		return "tombstone"
	case KindSegmentEnd:
		return "segment_end"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Position locates an event in the commit log
type Position struct {
	Segment string
	Offset  int64
}

// SegmentName is the base file name of the segment, the part that identifies
// it across directories
func (p Position) SegmentName() string {
	return filepath.Base(p.Segment)
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.SegmentName(), p.Offset)
}

// Operation is the kind of row change
type Operation string

const (
	OpInsert Operation = "c"
	OpUpdate Operation = "u"
	OpDelete Operation = "d"
)

// SourceInfo says where a record came from
type SourceInfo struct {
	Cluster   string
	Position  Position
	Keyspace  string
	Table     string
	Snapshot  bool
	Timestamp time.Time // Write time of the mutation
}

// Event is anything a queue carries
type Event interface {
	Kind() Kind
	Position() Position
}

// Record is an Event that becomes a published message
type Record interface {
	Event
	Source() SourceInfo
}

// ChangeRecord is an insert, update or delete of one row
type ChangeRecord struct {
	Info        SourceInfo
	Before      *row.Row // nil when unknown
	After       *row.Row // nil for deletes
	Op          Operation
	LastInBatch bool
}

func (c *ChangeRecord) Kind() Kind         { return KindChange }
func (c *ChangeRecord) Position() Position { return c.Info.Position }
func (c *ChangeRecord) Source() SourceInfo { return c.Info }

// Key returns the primary-identity cells of the record's row
func (c *ChangeRecord) Key() *row.Row {
	if c.After != nil {
		return c.After.Primary()
	}
	if c.Before != nil {
		return c.Before.Primary()
	}
	return row.NewRow()
}

// TombstoneRecord marks a deleted row by its identity
type TombstoneRecord struct {
	Info SourceInfo
	Key  *row.Row
}

// NewTombstone builds a tombstone carrying only the primary-identity cells of r
func NewTombstone(source SourceInfo, r *row.Row) *TombstoneRecord {
	key := row.NewRow()
	if r != nil {
		key = r.Primary()
	}
	return &TombstoneRecord{Info: source, Key: key}
}

func (t *TombstoneRecord) Kind() Kind         { return KindTombstone }
func (t *TombstoneRecord) Position() Position { return t.Info.Position }
func (t *TombstoneRecord) Source() SourceInfo { return t.Info }

// SegmentEnd follows the last record read from a segment. It is never
// published; it tells the dispatcher the segment can be finalized.
type SegmentEnd struct {
	Segment string
	Offset  int64
	Success bool // False when the reader gave up on the segment
}

func (s *SegmentEnd) Kind() Kind { return KindSegmentEnd }

func (s *SegmentEnd) Position() Position {
	return Position{Segment: s.Segment, Offset: s.Offset}
}
