// Package schema resolves the column metadata of a table. The metadata decides
// which codec decodes each raw cell and which columns form the primary key.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/maxpert/commitlog-cdc/codec"
	"github.com/maxpert/commitlog-cdc/row"
)

// ErrUnknownTable is returned for a table the provider has no metadata for
var ErrUnknownTable = errors.New("unknown table")

// TableID names a table within a keyspace
type TableID struct {
	Keyspace string
	Table    string
}

func (t TableID) String() string {
	return t.Keyspace + "." + t.Table
}

// ParseTableID parses "keyspace.table"
func ParseTableID(s string) (TableID, error) {
	ks, table, ok := strings.Cut(s, ".")
	if !ok || ks == "" || table == "" {
		return TableID{}, fmt.Errorf("invalid table name %q, want keyspace.table", s)
	}
	return TableID{Keyspace: ks, Table: table}, nil
}

// Provider returns the columns of a table in declaration order
type Provider interface {
	ColumnsOf(id TableID) ([]row.Column, error)
}

// Static serves metadata declared up front. Tables can be replaced at runtime
// when a schema change is observed.
type Static struct {
	mu     sync.RWMutex
	tables map[TableID][]row.Column
}

func NewStatic() *Static {
	return &Static{tables: make(map[TableID][]row.Column)}
}

// FromConfig builds a Static provider from configured tables
func FromConfig(tables []cfg.TableConfiguration) (*Static, error) {
	s := NewStatic()
	for _, table := range tables {
		id := TableID{Keyspace: table.Keyspace, Table: table.Table}
		cols := make([]row.Column, 0, len(table.Columns))
		for _, col := range table.Columns {
			typ, err := codec.ParseType(col.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", id, col.Name, err)
			}
			kind, err := row.ParseColumnKind(col.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", id, col.Name, err)
			}
			cols = append(cols, row.Column{Name: col.Name, Type: typ, Kind: kind})
		}
		if err := s.Put(id, cols); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put declares or replaces the columns of a table
func (s *Static) Put(id TableID, cols []row.Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("%s: no columns", id)
	}

	seen := make(map[string]struct{}, len(cols))
	primary := false
	for _, col := range cols {
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("%s: duplicate column %q", id, col.Name)
		}
		seen[col.Name] = struct{}{}
		primary = primary || col.Kind == row.Partition
	}
	if !primary {
		return fmt.Errorf("%s: no partition key column", id)
	}

	s.mu.Lock()
	s.tables[id] = append([]row.Column(nil), cols...)
	s.mu.Unlock()
	return nil
}

// Drop forgets a table
func (s *Static) Drop(id TableID) {
	s.mu.Lock()
	delete(s.tables, id)
	s.mu.Unlock()
}

func (s *Static) ColumnsOf(id TableID) ([]row.Column, error) {
	s.mu.RLock()
	cols, ok := s.tables[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, id)
	}
	return append([]row.Column(nil), cols...), nil
}

// Tables lists the declared tables
func (s *Static) Tables() []TableID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TableID, 0, len(s.tables))
	for id := range s.tables {
		out = append(out, id)
	}
	return out
}
