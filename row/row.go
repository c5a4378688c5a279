package row

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/maxpert/commitlog-cdc/codec"
)

// Row is an insertion-ordered set of cells keyed by column name.
// A Row is not safe for concurrent mutation; records hand rows between
// goroutines only after they are fully built.
type Row struct {
	cells []Cell
	index map[string]int
}

func NewRow(cells ...Cell) *Row {
	r := &Row{
		cells: make([]Cell, 0, len(cells)),
		index: make(map[string]int, len(cells)),
	}
	for _, c := range cells {
		r.Add(c)
	}
	return r
}

// Add inserts c, or replaces the cell of the same name in place
func (r *Row) Add(c Cell) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[c.Name]; ok {
		r.cells[i] = c
		return
	}
	r.index[c.Name] = len(r.cells)
	r.cells = append(r.cells, c)
}

// Remove deletes the named cell; removing an absent name is a no-op
func (r *Row) Remove(name string) {
	i, ok := r.index[name]
	if !ok {
		return
	}
	r.cells = append(r.cells[:i], r.cells[i+1:]...)
	delete(r.index, name)
	for j := i; j < len(r.cells); j++ {
		r.index[r.cells[j].Name] = j
	}
}

func (r *Row) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

func (r *Row) Get(name string) (Cell, bool) {
	i, ok := r.index[name]
	if !ok {
		return Cell{}, false
	}
	return r.cells[i], true
}

// Cells returns the cells in insertion order
func (r *Row) Cells() []Cell {
	out := make([]Cell, len(r.cells))
	copy(out, r.cells)
	return out
}

func (r *Row) Names() []string {
	out := make([]string, len(r.cells))
	for i, c := range r.cells {
		out[i] = c.Name
	}
	return out
}

func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.cells)
}

// Primary returns a new row holding copies of the partition and clustering
// cells, in order
func (r *Row) Primary() *Row {
	out := NewRow()
	for _, c := range r.cells {
		if c.Primary() {
			out.Add(c.Copy())
		}
	}
	return out
}

// Copy returns a deep copy; mutating either row or any cell value never
// affects the other
func (r *Row) Copy() *Row {
	out := &Row{
		cells: make([]Cell, len(r.cells)),
		index: make(map[string]int, len(r.cells)),
	}
	for i, c := range r.cells {
		out.cells[i] = c.Copy()
		out.index[c.Name] = i
	}
	return out
}

// Equal compares cell sets; insertion order is ignored
func (r *Row) Equal(o *Row) bool {
	if r == nil || o == nil {
		return r == o
	}
	if len(r.cells) != len(o.cells) {
		return false
	}
	for _, c := range r.cells {
		oc, ok := o.Get(c.Name)
		if !ok || !cellEqual(c, oc) {
			return false
		}
	}
	return true
}

// Hash is consistent with Equal: equal rows hash equally regardless of order
func (r *Row) Hash() uint64 {
	var sum uint64
	d := xxhash.New()
	for _, c := range r.cells {
		d.Reset()
		hashCell(d, c)
		sum += d.Sum64()
	}
	return sum
}

func (r *Row) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range r.cells {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.String())
	}
	b.WriteByte('}')
	return b.String()
}

func cellEqual(a, b Cell) bool {
	return a.Name == b.Name &&
		a.Kind == b.Kind &&
		a.Deleted == b.Deleted &&
		a.DeletionTS == b.DeletionTS &&
		valueEqual(a.Value, b.Value)
}

// valueEqual agrees with hashValue: floats compare by bit pattern, so NaN
// equals itself and +0 differs from -0
func valueEqual(a, b any) bool {
	switch va := a.(type) {
	case float32:
		vb, ok := b.(float32)
		return ok && float32Bits(va) == float32Bits(vb)
	case float64:
		vb, ok := b.(float64)
		return ok && float64Bits(va) == float64Bits(vb)
	case time.Time:
		vb, ok := b.(time.Time)
		return ok && va.Equal(vb)
	case []byte:
		vb, ok := b.([]byte)
		return ok && bytes.Equal(va, vb)
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !valueEqual(va[i], vb[i]) {
				return false
			}
		}
		return true
	case []codec.MapEntry:
		vb, ok := b.([]codec.MapEntry)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !valueEqual(va[i].Key, vb[i].Key) || !valueEqual(va[i].Value, vb[i].Value) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// NaNs collapse to one canonical pattern
func float32Bits(f float32) uint32 {
	if math.IsNaN(float64(f)) {
		return 0x7fc00000
	}
	return math.Float32bits(f)
}

func float64Bits(f float64) uint64 {
	if math.IsNaN(f) {
		return 0x7ff8000000000000
	}
	return math.Float64bits(f)
}

func hashCell(d *xxhash.Digest, c Cell) {
	var buf [8]byte
	d.WriteString(c.Name)
	d.Write([]byte{byte(c.Kind), boolByte(c.Deleted)})
	binary.BigEndian.PutUint64(buf[:], uint64(c.DeletionTS))
	d.Write(buf[:])
	hashValue(d, c.Value)
}

// hashValue writes a type-tagged encoding of v
func hashValue(d *xxhash.Digest, v any) {
	var buf [8]byte
	putUint := func(tag byte, u uint64) {
		binary.BigEndian.PutUint64(buf[:], u)
		d.Write([]byte{tag})
		d.Write(buf[:])
	}

	switch val := v.(type) {
	case nil:
		d.Write([]byte{0})
	case bool:
		d.Write([]byte{1, boolByte(val)})
	case int8:
		putUint(2, uint64(val))
	case int16:
		putUint(3, uint64(val))
	case int32:
		putUint(4, uint64(val))
	case int64:
		putUint(5, uint64(val))
	case float32:
		putUint(6, uint64(float32Bits(val)))
	case float64:
		putUint(7, float64Bits(val))
	case string:
		putUint(8, uint64(len(val)))
		d.WriteString(val)
	case []byte:
		putUint(9, uint64(len(val)))
		d.Write(val)
	case time.Time:
		putUint(10, uint64(val.UnixNano()))
	case []any:
		putUint(11, uint64(len(val)))
		for _, e := range val {
			hashValue(d, e)
		}
	case []codec.MapEntry:
		putUint(12, uint64(len(val)))
		for _, e := range val {
			hashValue(d, e.Key)
			hashValue(d, e.Value)
		}
	default:
		d.Write([]byte{255})
		d.WriteString(formatValue(val))
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
