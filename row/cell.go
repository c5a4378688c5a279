// Package row holds the decoded state of a table row as seen by one mutation.
package row

import (
	"fmt"
	"time"

	"github.com/maxpert/commitlog-cdc/codec"
)

// ColumnKind is the role a column plays in the table's primary key
type ColumnKind uint8

const (
	Regular ColumnKind = iota
	Partition
	Clustering
)

func (k ColumnKind) String() string {
	switch k {
	case Partition:
		return "partition"
	case Clustering:
		return "clustering"
	default:
		return "regular"
	}
}

// Primary reports whether the column is part of the row's identity
func (k ColumnKind) Primary() bool {
	return k == Partition || k == Clustering
}

// ParseColumnKind parses a configured kind; empty means regular
func ParseColumnKind(s string) (ColumnKind, error) {
	switch s {
	case "", "regular":
		return Regular, nil
	case "partition":
		return Partition, nil
	case "clustering":
		return Clustering, nil
	default:
		return Regular, fmt.Errorf("unknown column kind %q", s)
	}
}

// Column is table metadata for one column
type Column struct {
	Name string
	Type codec.Type
	Kind ColumnKind
}

func (c Column) Primary() bool {
	return c.Kind.Primary()
}

// Cell is one column of a row. A cell with Deleted set is an explicit
// deletion of that column; a column the mutation did not touch has no cell.
type Cell struct {
	Name       string
	Value      any
	Kind       ColumnKind
	Deleted    bool
	DeletionTS int64 // Microseconds, set when Deleted
}

func (c Cell) Primary() bool {
	return c.Kind.Primary()
}

// Copy returns a cell whose value shares no memory with c
func (c Cell) Copy() Cell {
	c.Value = copyValue(c.Value)
	return c
}

func (c Cell) String() string {
	if c.Deleted {
		return fmt.Sprintf("%s=<deleted@%d>", c.Name, c.DeletionTS)
	}
	return fmt.Sprintf("%s=%s", c.Name, formatValue(c.Value))
}

func copyValue(v any) any {
	switch val := v.(type) {
	case []byte:
		if val == nil {
			return val
		}
		out := make([]byte, len(val))
		copy(out, val)
		return out
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = copyValue(e)
		}
		return out
	case []codec.MapEntry:
		if val == nil {
			return val
		}
		out := make([]codec.MapEntry, len(val))
		for i, e := range val {
			out[i] = codec.MapEntry{Key: copyValue(e.Key), Value: copyValue(e.Value)}
		}
		return out
	default:
		// Remaining decoded values (strings, numbers, time.Time) are immutable
		return v
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case []byte:
		return fmt.Sprintf("0x%x", val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []codec.MapEntry:
		s := "{"
		for i, e := range val {
			if i > 0 {
				s += ", "
			}
			s += formatValue(e.Key) + ": " + formatValue(e.Value)
		}
		return s + "}"
	case []any:
		s := "["
		for i, e := range val {
			if i > 0 {
				s += ", "
			}
			s += formatValue(e)
		}
		return s + "]"
	default:
		return fmt.Sprint(val)
	}
}
