package codec

// SchemaType is the canonical shape of a decoded value
type SchemaType int

const (
	SchemaBoolean SchemaType = iota
	SchemaInt8
	SchemaInt16
	SchemaInt32
	SchemaInt64
	SchemaFloat32
	SchemaFloat64
	SchemaString
	SchemaBytes
	SchemaDecimal
	SchemaTimestamp
	SchemaArray
	SchemaSet
	SchemaMap
	SchemaStruct
)

var schemaTypeNames = [...]string{
	SchemaBoolean:   "boolean",
	SchemaInt8:      "int8",
	SchemaInt16:     "int16",
	SchemaInt32:     "int32",
	SchemaInt64:     "int64",
	SchemaFloat32:   "float32",
	SchemaFloat64:   "float64",
	SchemaString:    "string",
	SchemaBytes:     "bytes",
	SchemaDecimal:   "decimal",
	SchemaTimestamp: "timestamp",
	SchemaArray:     "array",
	SchemaSet:       "set",
	SchemaMap:       "map",
	SchemaStruct:    "struct",
}

func (s SchemaType) String() string {
	if s < 0 || int(s) >= len(schemaTypeNames) {
		return "unknown"
	}
	return schemaTypeNames[s]
}

// Schema describes a decoded value. Name is set for logical types (inet,
// uuid, point...) and for struct schemas.
type Schema struct {
	Type     SchemaType
	Name     string
	Optional bool
	Elem     *Schema
	Key      *Schema
	Value    *Schema
	Fields   []Field
}

// Field is one named member of a struct schema
type Field struct {
	Name   string
	Schema Schema
}

// Logical reports whether the schema names a logical type over its physical shape
func (s Schema) Logical() bool {
	return s.Name != "" && s.Type != SchemaStruct
}
