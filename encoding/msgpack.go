// Package encoding is the single place msgpack is configured. Offset store
// entries are encoded through Marshal and Unmarshal so that every record on
// disk round-trips with the same options.
package encoding

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes v to msgpack. Struct fields use their msgpack tags, or the
// field name when untagged.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack data into v. Strings decode as Go strings when
// the target is an interface.
func Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}
