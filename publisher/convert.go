package publisher

import (
	"fmt"
	"math"
	"time"

	"github.com/maxpert/commitlog-cdc/codec"
	"github.com/maxpert/commitlog-cdc/row"
)

// RowValues converts the cells of r into a column -> value map that JSON and
// msgpack encoders accept. A deleted cell maps to nil. Returns nil for a nil row.
func RowValues(r *row.Row) map[string]any {
	if r == nil {
		return nil
	}
	out := make(map[string]any, r.Len())
	for _, c := range r.Cells() {
		if c.Deleted {
			out[c.Name] = nil
			continue
		}
		out[c.Name] = ConvertValue(c.Value)
	}
	return out
}

// ConvertValue converts one decoded cell value.
//   - timestamps become epoch milliseconds
//   - maps with text keys become objects, other maps a list of key/value pairs
//   - NaN and infinities become their string names
func ConvertValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UnixMilli()
	case float32:
		return convertFloat(float64(val), v)
	case float64:
		return convertFloat(val, v)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ConvertValue(e)
		}
		return out
	case []codec.MapEntry:
		return convertMap(val)
	default:
		return v
	}
}

func convertFloat(f float64, orig any) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return orig
	}
}

func convertMap(entries []codec.MapEntry) any {
	textKeys := true
	for _, e := range entries {
		if _, ok := e.Key.(string); !ok {
			textKeys = false
			break
		}
	}

	if textKeys {
		out := make(map[string]any, len(entries))
		for _, e := range entries {
			out[e.Key.(string)] = ConvertValue(e.Value)
		}
		return out
	}

	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{
			"key":   ConvertValue(e.Key),
			"value": ConvertValue(e.Value),
		}
	}
	return out
}

// Topic builds the destination topic of a table
func Topic(prefix, keyspace, table string) string {
	if prefix == "" {
		return fmt.Sprintf("%s.%s", keyspace, table)
	}
	return fmt.Sprintf("%s.%s.%s", prefix, keyspace, table)
}
