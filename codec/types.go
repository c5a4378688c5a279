// Package codec decodes serialized CQL cell values into canonical Go values
// and describes them with a driver-independent schema.
package codec

import (
	"fmt"
	"strings"
)

// Kind tags a CQL native or collection type
type Kind int

const (
	KindUnknown Kind = iota
	KindASCII
	KindBigint
	KindBlob
	KindBoolean
	KindCounter
	KindDate
	KindDecimal
	KindDouble
	KindFloat
	KindInet
	KindInt
	KindSmallint
	KindText
	KindTime
	KindTimestamp
	KindTimeUUID
	KindTinyint
	KindUUID
	KindVarchar
	KindVarint
	KindPoint
	KindList
	KindSet
	KindMap
)

var kindNames = [...]string{
	KindUnknown:   "unknown",
	KindASCII:     "ascii",
	KindBigint:    "bigint",
	KindBlob:      "blob",
	KindBoolean:   "boolean",
	KindCounter:   "counter",
	KindDate:      "date",
	KindDecimal:   "decimal",
	KindDouble:    "double",
	KindFloat:     "float",
	KindInet:      "inet",
	KindInt:       "int",
	KindSmallint:  "smallint",
	KindText:      "text",
	KindTime:      "time",
	KindTimestamp: "timestamp",
	KindTimeUUID:  "timeuuid",
	KindTinyint:   "tinyint",
	KindUUID:      "uuid",
	KindVarchar:   "varchar",
	KindVarint:    "varint",
	KindPoint:     "point",
	KindList:      "list",
	KindSet:       "set",
	KindMap:       "map",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a CQL type name, case-insensitively
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if Kind(k) != KindUnknown && n == name {
			return Kind(k), true
		}
	}
	return KindUnknown, false
}

// IsCollection reports whether values of this kind hold nested elements
func (k Kind) IsCollection() bool {
	return k == KindList || k == KindSet || k == KindMap
}

// Type describes a column type. Elem is set for list and set, Key and Value
// for map.
type Type struct {
	Kind  Kind
	Elem  *Type
	Key   *Type
	Value *Type
}

func Native(k Kind) Type {
	return Type{Kind: k}
}

func ListOf(elem Type) Type {
	return Type{Kind: KindList, Elem: &elem}
}

func SetOf(elem Type) Type {
	return Type{Kind: KindSet, Elem: &elem}
}

func MapOf(key, value Type) Type {
	return Type{Kind: KindMap, Key: &key, Value: &value}
}

// String renders the type in CQL syntax
func (t Type) String() string {
	switch t.Kind {
	case KindList, KindSet:
		if t.Elem == nil {
			return t.Kind.String()
		}
		return fmt.Sprintf("%s<%s>", t.Kind, t.Elem)
	case KindMap:
		if t.Key == nil || t.Value == nil {
			return t.Kind.String()
		}
		return fmt.Sprintf("map<%s, %s>", t.Key, t.Value)
	default:
		return t.Kind.String()
	}
}

// Equal compares two types structurally
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	return equalRef(t.Elem, o.Elem) && equalRef(t.Key, o.Key) && equalRef(t.Value, o.Value)
}

func equalRef(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// MapEntry is one decoded map element. Maps decode to []MapEntry so that
// keys of any decoded type keep their serialized order.
type MapEntry struct {
	Key   any
	Value any
}
