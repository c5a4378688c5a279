package codec

import "encoding/binary"

// Collections are encoded as an int32 element count followed by int32
// length-prefixed elements. A negative length is a null element.

type listDecoder struct {
	registry *Registry
	set      bool
}

func (d *listDecoder) Decode(t Type, raw []byte) (any, error) {
	if t.Elem == nil {
		return nil, invalid(t, raw, "missing element type")
	}

	r := collectionReader{t: t, raw: raw}
	n, err := r.count()
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := r.element(d.registry, *t.Elem)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *listDecoder) Schema(t Type) Schema {
	s := Schema{Type: SchemaArray}
	if d.set {
		s.Type = SchemaSet
	}
	if t.Elem != nil {
		if elem, err := d.registry.SchemaFor(*t.Elem); err == nil {
			s.Elem = &elem
		}
	}
	return s
}

type mapDecoder struct {
	registry *Registry
}

func (d *mapDecoder) Decode(t Type, raw []byte) (any, error) {
	if t.Key == nil || t.Value == nil {
		return nil, invalid(t, raw, "missing key or value type")
	}

	r := collectionReader{t: t, raw: raw}
	n, err := r.count()
	if err != nil {
		return nil, err
	}

	out := make([]MapEntry, 0, n)
	for i := 0; i < n; i++ {
		k, err := r.element(d.registry, *t.Key)
		if err != nil {
			return nil, err
		}
		v, err := r.element(d.registry, *t.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, MapEntry{Key: k, Value: v})
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *mapDecoder) Schema(t Type) Schema {
	s := Schema{Type: SchemaMap}
	if t.Key != nil {
		if key, err := d.registry.SchemaFor(*t.Key); err == nil {
			s.Key = &key
		}
	}
	if t.Value != nil {
		if value, err := d.registry.SchemaFor(*t.Value); err == nil {
			s.Value = &value
		}
	}
	return s
}

type collectionReader struct {
	t   Type
	raw []byte
	pos int
}

func (r *collectionReader) int32() (int32, error) {
	if len(r.raw)-r.pos < 4 {
		return 0, invalid(r.t, r.raw, "truncated at offset %d", r.pos)
	}
	v := int32(binary.BigEndian.Uint32(r.raw[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *collectionReader) count() (int, error) {
	n, err := r.int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, invalid(r.t, r.raw, "negative element count %d", n)
	}
	// Every element needs at least its 4-byte length prefix
	if int64(n)*4 > int64(len(r.raw)-r.pos) {
		return 0, invalid(r.t, r.raw, "element count %d exceeds buffer", n)
	}
	return int(n), nil
}

func (r *collectionReader) element(registry *Registry, t Type) (any, error) {
	size, err := r.int32()
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, nil
	}
	if int(size) > len(r.raw)-r.pos {
		return nil, invalid(r.t, r.raw, "element of %d bytes at offset %d overruns buffer", size, r.pos)
	}

	elem := r.raw[r.pos : r.pos+int(size)]
	r.pos += int(size)
	return registry.Decode(t, elem)
}

func (r *collectionReader) done() error {
	if r.pos != len(r.raw) {
		return invalid(r.t, r.raw, "%d trailing bytes", len(r.raw)-r.pos)
	}
	return nil
}
