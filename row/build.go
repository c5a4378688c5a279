package row

import (
	"fmt"

	"github.com/maxpert/commitlog-cdc/codec"
	"github.com/rs/zerolog/log"
)

// Build decodes the raw cell buffers a mutation touched into a row, in
// column order. A nil buffer is a column deletion. Columns present in raw but
// unknown to cols are skipped with a warning; a buffer that fails to decode
// fails the whole row.
func Build(cols []Column, raw map[string][]byte, reg *codec.Registry) (*Row, error) {
	r := NewRow()
	known := 0
	for _, col := range cols {
		buf, ok := raw[col.Name]
		if !ok {
			continue
		}
		known++

		if buf == nil {
			r.Add(Cell{Name: col.Name, Kind: col.Kind, Deleted: true})
			continue
		}

		value, err := reg.Decode(col.Type, buf)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		r.Add(Cell{Name: col.Name, Value: value, Kind: col.Kind})
	}

	if known != len(raw) {
		for name := range raw {
			if !hasColumn(cols, name) {
				log.Warn().Str("column", name).Msg("Skipping column missing from table metadata")
			}
		}
	}
	return r, nil
}

// Schema describes a row of the given table as a struct. Primary key fields
// are required; every other field is optional.
func Schema(table string, cols []Column, reg *codec.Registry) (codec.Schema, error) {
	s := codec.Schema{
		Type:   codec.SchemaStruct,
		Name:   table,
		Fields: make([]codec.Field, 0, len(cols)),
	}
	for _, col := range cols {
		fs, err := reg.SchemaFor(col.Type)
		if err != nil {
			return codec.Schema{}, fmt.Errorf("column %s: %w", col.Name, err)
		}
		fs.Optional = !col.Primary()
		s.Fields = append(s.Fields, codec.Field{Name: col.Name, Schema: fs})
	}
	return s, nil
}

func hasColumn(cols []Column, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}
