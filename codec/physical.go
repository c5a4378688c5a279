package codec

import (
	"encoding/binary"
	"math"
	"math/big"
	"strings"
	"unicode/utf8"
)

// Fixed-width and variable-length scalar decoders for the native protocol
// encodings. Multi-byte integers are big-endian.

func fixed(t Type, raw []byte, size int) error {
	if len(raw) != size {
		return invalid(t, raw, "expected %d bytes", size)
	}
	return nil
}

type asciiDecoder struct{}

func (asciiDecoder) Decode(t Type, raw []byte) (any, error) {
	for i, b := range raw {
		if b >= utf8.RuneSelf {
			return nil, invalid(t, raw, "non-ascii byte 0x%02x at %d", b, i)
		}
	}
	return string(raw), nil
}

func (asciiDecoder) Schema(Type) Schema { return Schema{Type: SchemaString} }

type textDecoder struct{}

func (textDecoder) Decode(t Type, raw []byte) (any, error) {
	if !utf8.Valid(raw) {
		return nil, invalid(t, raw, "invalid utf-8")
	}
	return string(raw), nil
}

func (textDecoder) Schema(Type) Schema { return Schema{Type: SchemaString} }

type blobDecoder struct{}

func (blobDecoder) Decode(_ Type, raw []byte) (any, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (blobDecoder) Schema(Type) Schema { return Schema{Type: SchemaBytes} }

type booleanDecoder struct{}

func (booleanDecoder) Decode(t Type, raw []byte) (any, error) {
	if err := fixed(t, raw, 1); err != nil {
		return nil, err
	}
	return raw[0] != 0, nil
}

func (booleanDecoder) Schema(Type) Schema { return Schema{Type: SchemaBoolean} }

type tinyintDecoder struct{}

func (tinyintDecoder) Decode(t Type, raw []byte) (any, error) {
	if err := fixed(t, raw, 1); err != nil {
		return nil, err
	}
	return int8(raw[0]), nil
}

func (tinyintDecoder) Schema(Type) Schema { return Schema{Type: SchemaInt8} }

type smallintDecoder struct{}

func (smallintDecoder) Decode(t Type, raw []byte) (any, error) {
	if err := fixed(t, raw, 2); err != nil {
		return nil, err
	}
	return int16(binary.BigEndian.Uint16(raw)), nil
}

func (smallintDecoder) Schema(Type) Schema { return Schema{Type: SchemaInt16} }

type intDecoder struct{}

func (intDecoder) Decode(t Type, raw []byte) (any, error) {
	if err := fixed(t, raw, 4); err != nil {
		return nil, err
	}
	return int32(binary.BigEndian.Uint32(raw)), nil
}

func (intDecoder) Schema(Type) Schema { return Schema{Type: SchemaInt32} }

// bigintDecoder also serves counter and is the physical layer of timestamp and time
type bigintDecoder struct{}

func (bigintDecoder) Decode(t Type, raw []byte) (any, error) {
	if err := fixed(t, raw, 8); err != nil {
		return nil, err
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

func (bigintDecoder) Schema(Type) Schema { return Schema{Type: SchemaInt64} }

type floatDecoder struct{}

func (floatDecoder) Decode(t Type, raw []byte) (any, error) {
	if err := fixed(t, raw, 4); err != nil {
		return nil, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(raw)), nil
}

func (floatDecoder) Schema(Type) Schema { return Schema{Type: SchemaFloat32} }

type doubleDecoder struct{}

func (doubleDecoder) Decode(t Type, raw []byte) (any, error) {
	if err := fixed(t, raw, 8); err != nil {
		return nil, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
}

func (doubleDecoder) Schema(Type) Schema { return Schema{Type: SchemaFloat64} }

// dateDecoder decodes an unsigned day count centred on 2^31 (the epoch) into
// signed days since 1970-01-01
type dateDecoder struct{}

func (dateDecoder) Decode(t Type, raw []byte) (any, error) {
	if err := fixed(t, raw, 4); err != nil {
		return nil, err
	}
	return int32(int64(binary.BigEndian.Uint32(raw)) - (1 << 31)), nil
}

func (dateDecoder) Schema(Type) Schema { return Schema{Type: SchemaInt32, Name: "date"} }

// varintDecoder decodes an arbitrary-precision two's complement integer into
// its decimal string
type varintDecoder struct{}

func (varintDecoder) Decode(t Type, raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, invalid(t, raw, "empty varint")
	}
	return twosComplement(raw).String(), nil
}

func (varintDecoder) Schema(Type) Schema { return Schema{Type: SchemaString, Name: "varint"} }

// decimalDecoder decodes a 4-byte scale followed by a varint unscaled value
// into a plain decimal string
type decimalDecoder struct{}

func (decimalDecoder) Decode(t Type, raw []byte) (any, error) {
	if len(raw) < 5 {
		return nil, invalid(t, raw, "expected scale and unscaled value")
	}
	scale := int32(binary.BigEndian.Uint32(raw[:4]))
	return formatDecimal(twosComplement(raw[4:]), int(scale)), nil
}

func (decimalDecoder) Schema(Type) Schema { return Schema{Type: SchemaDecimal} }

func twosComplement(raw []byte) *big.Int {
	n := new(big.Int).SetBytes(raw)
	if len(raw) > 0 && raw[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(raw))*8))
	}
	return n
}

func formatDecimal(unscaled *big.Int, scale int) string {
	if unscaled.Sign() == 0 && scale <= 0 {
		return "0"
	}

	neg := unscaled.Sign() < 0
	digits := new(big.Int).Abs(unscaled).String()

	switch {
	case scale <= 0:
		digits += strings.Repeat("0", -scale)
	case len(digits) > scale:
		digits = digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	default:
		digits = "0." + strings.Repeat("0", scale-len(digits)) + digits
	}

	if neg {
		return "-" + digits
	}
	return digits
}
