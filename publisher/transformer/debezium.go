// Package transformer provides implementations of the publisher.Transformer
// interface. Importing it registers the "debezium" format.
package transformer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/maxpert/commitlog-cdc/codec"
	"github.com/maxpert/commitlog-cdc/event"
	"github.com/maxpert/commitlog-cdc/publisher"
	"github.com/maxpert/commitlog-cdc/row"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// ConnectorName is reported in the source block of every message
const ConnectorName = "commitlog-cdc"

func init() {
	publisher.RegisterTransformer("debezium", func(cfg.SinkConfiguration) publisher.Transformer {
		return NewDebeziumTransformer(codec.NewRegistry())
	})
}

// DebeziumTransformer encodes records as Debezium JSON with embedded schema,
// the format Kafka Connect's JsonConverter reads with schemas enabled.
//
// Keys hold the primary key columns. Values hold the change envelope:
// before/after row images, op ("c", "u", "d"), ts_ms and a source block
// locating the record in the commit log. Tombstones have a nil value.
//
// Schemas are built once per table and column layout and cached.
type DebeziumTransformer struct {
	connectorName string
	registry      *codec.Registry
	schemaCache   *xsync.MapOf[uint64, *tableSchemas]
	now           func() time.Time
}

// NewDebeziumTransformer creates a transformer that derives field schemas
// from reg
func NewDebeziumTransformer(reg *codec.Registry) *DebeziumTransformer {
	return &DebeziumTransformer{
		connectorName: ConnectorName,
		registry:      reg,
		schemaCache:   xsync.NewMapOf[uint64, *tableSchemas](),
		now:           time.Now,
	}
}

type tableSchemas struct {
	key   *debeziumSchema
	value *debeziumSchema
}

// debeziumSchema is a Kafka Connect schema. Field is set for struct members,
// Items for arrays, Keys and Values for maps.
type debeziumSchema struct {
	Type     string           `json:"type"`
	Name     string           `json:"name,omitempty"`
	Optional bool             `json:"optional"`
	Field    string           `json:"field,omitempty"`
	Fields   []debeziumSchema `json:"fields,omitempty"`
	Items    *debeziumSchema  `json:"items,omitempty"`
	Keys     *debeziumSchema  `json:"keys,omitempty"`
	Values   *debeziumSchema  `json:"values,omitempty"`
}

type debeziumMessage struct {
	Schema  *debeziumSchema `json:"schema"`
	Payload any             `json:"payload"`
}

type debeziumPayload struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
	Op     string         `json:"op"`
	TsMs   int64          `json:"ts_ms"`
	Source debeziumSource `json:"source"`
}

type debeziumSource struct {
	Connector string `json:"connector"`
	Name      string `json:"name"`
	TsMs      int64  `json:"ts_ms"`
	Snapshot  string `json:"snapshot"`
	Keyspace  string `json:"keyspace"`
	Table     string `json:"table"`
	File      string `json:"file"`
	Pos       int64  `json:"pos"`
}

// Transform encodes rec. cols must describe rec's table.
func (d *DebeziumTransformer) Transform(rec event.Record, cols []row.Column) ([]byte, []byte, error) {
	src := rec.Source()

	schemas, err := d.getOrBuildSchemas(src.Keyspace, src.Table, cols)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build schema: %w", err)
	}

	var keyRow *row.Row
	switch r := rec.(type) {
	case *event.ChangeRecord:
		keyRow = r.Key()
	case *event.TombstoneRecord:
		keyRow = r.Key
	default:
		return nil, nil, fmt.Errorf("unsupported record kind %s", rec.Kind())
	}
	if keyRow.Len() == 0 {
		return nil, nil, fmt.Errorf("record at %s has no primary key cells", rec.Position())
	}

	key, err := json.Marshal(debeziumMessage{
		Schema:  schemas.key,
		Payload: publisher.RowValues(keyRow),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	change, ok := rec.(*event.ChangeRecord)
	if !ok {
		return key, nil, nil
	}

	value, err := json.Marshal(debeziumMessage{
		Schema:  schemas.value,
		Payload: d.payload(change),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return key, value, nil
}

func (d *DebeziumTransformer) payload(change *event.ChangeRecord) debeziumPayload {
	src := change.Source()
	now := d.now()

	sourceTs := src.Timestamp
	if sourceTs.IsZero() {
		sourceTs = now
	}

	return debeziumPayload{
		Before: publisher.RowValues(change.Before),
		After:  publisher.RowValues(change.After),
		Op:     mapOperation(change.Op),
		TsMs:   now.UnixMilli(),
		Source: debeziumSource{
			Connector: d.connectorName,
			Name:      src.Cluster,
			TsMs:      sourceTs.UnixMilli(),
			Snapshot:  strconv.FormatBool(src.Snapshot),
			Keyspace:  src.Keyspace,
			Table:     src.Table,
			File:      src.Position.SegmentName(),
			Pos:       src.Position.Offset,
		},
	}
}

func mapOperation(op event.Operation) string {
	switch op {
	case event.OpInsert, event.OpUpdate, event.OpDelete:
		return string(op)
	default:
		log.Warn().Str("operation", string(op)).Msg("Unknown CDC operation, defaulting to update")
		return string(event.OpUpdate)
	}
}

// getOrBuildSchemas returns the cached schemas of a table, keyed by its name
// and column layout so that a schema change builds new ones
func (d *DebeziumTransformer) getOrBuildSchemas(keyspace, table string, cols []row.Column) (*tableSchemas, error) {
	id := layoutHash(keyspace, table, cols)
	if cached, ok := d.schemaCache.Load(id); ok {
		return cached, nil
	}

	schemas, err := d.buildSchemas(keyspace, table, cols)
	if err != nil {
		return nil, err
	}
	d.schemaCache.Store(id, schemas)
	return schemas, nil
}

func (d *DebeziumTransformer) buildSchemas(keyspace, table string, cols []row.Column) (*tableSchemas, error) {
	qualified := keyspace + "." + table

	rowSchema, err := row.Schema(qualified+".Value", cols, d.registry)
	if err != nil {
		return nil, err
	}

	keySchema := &debeziumSchema{Type: "struct", Name: qualified + ".Key"}
	valueFields := make([]debeziumSchema, 0, len(rowSchema.Fields))
	for i, f := range rowSchema.Fields {
		field := toDebezium(f.Schema)
		field.Field = f.Name
		valueFields = append(valueFields, field)
		if cols[i].Primary() {
			keySchema.Fields = append(keySchema.Fields, field)
		}
	}
	if len(keySchema.Fields) == 0 {
		return nil, fmt.Errorf("table %s has no primary key columns", qualified)
	}

	rowStruct := func(field string) debeziumSchema {
		return debeziumSchema{
			Type:     "struct",
			Name:     rowSchema.Name,
			Optional: true,
			Field:    field,
			Fields:   valueFields,
		}
	}

	value := &debeziumSchema{
		Type: "struct",
		Name: qualified + ".Envelope",
		Fields: []debeziumSchema{
			rowStruct("before"),
			rowStruct("after"),
			{Type: "string", Field: "op"},
			{Type: "int64", Field: "ts_ms", Optional: true},
			{
				Type:  "struct",
				Name:  "io.commitlog.cdc.Source",
				Field: "source",
				Fields: []debeziumSchema{
					{Type: "string", Field: "connector"},
					{Type: "string", Field: "name"},
					{Type: "int64", Field: "ts_ms"},
					{Type: "string", Field: "snapshot", Optional: true},
					{Type: "string", Field: "keyspace"},
					{Type: "string", Field: "table"},
					{Type: "string", Field: "file"},
					{Type: "int64", Field: "pos"},
				},
			},
		},
	}

	return &tableSchemas{key: keySchema, value: value}, nil
}

// toDebezium maps a decoded value schema onto Kafka Connect schema types
func toDebezium(s codec.Schema) debeziumSchema {
	out := debeziumSchema{Name: s.Name, Optional: s.Optional}

	switch s.Type {
	case codec.SchemaBoolean:
		out.Type = "boolean"
	case codec.SchemaInt8:
		out.Type = "int8"
	case codec.SchemaInt16:
		out.Type = "int16"
	case codec.SchemaInt32:
		out.Type = "int32"
	case codec.SchemaInt64:
		out.Type = "int64"
	case codec.SchemaFloat32:
		out.Type = "float"
	case codec.SchemaFloat64:
		out.Type = "double"
	case codec.SchemaBytes:
		out.Type = "bytes"
	case codec.SchemaDecimal:
		out.Type = "string"
		out.Name = "decimal"
	case codec.SchemaTimestamp:
		out.Type = "int64"
		out.Name = "org.apache.kafka.connect.data.Timestamp"
	case codec.SchemaArray, codec.SchemaSet:
		out.Type = "array"
		if s.Elem != nil {
			items := toDebezium(*s.Elem)
			out.Items = &items
		}
	case codec.SchemaMap:
		out.Type = "map"
		if s.Key != nil && s.Value != nil {
			keys, values := toDebezium(*s.Key), toDebezium(*s.Value)
			out.Keys, out.Values = &keys, &values
		}
	case codec.SchemaStruct:
		out.Type = "struct"
		for _, f := range s.Fields {
			field := toDebezium(f.Schema)
			field.Field = f.Name
			out.Fields = append(out.Fields, field)
		}
	default:
		out.Type = "string"
	}
	return out
}

func layoutHash(keyspace, table string, cols []row.Column) uint64 {
	h := xxhash.New()
	h.WriteString(keyspace)
	h.WriteString(".")
	h.WriteString(table)
	for _, c := range cols {
		h.WriteString("|")
		h.WriteString(c.Name)
		h.WriteString(":")
		h.WriteString(c.Type.String())
		h.WriteString(":")
		h.WriteString(c.Kind.String())
	}
	return h.Sum64()
}
