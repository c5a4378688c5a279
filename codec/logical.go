package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// FormatFunc converts a value produced by a physical decoder into the
// canonical value of a logical type
type FormatFunc func(t Type, physical any) (any, error)

// Logical layers a named type on a physical decoder: bytes are decoded by
// Physical, then converted by Format. Its schema is its own, not Physical's.
type Logical struct {
	Name       string
	SchemaType SchemaType
	Physical   Decoder
	Format     FormatFunc
}

func (l *Logical) Decode(t Type, raw []byte) (any, error) {
	v, err := l.Physical.Decode(t, raw)
	if err != nil {
		return nil, err
	}
	if l.Format == nil {
		return v, nil
	}
	return l.Format(t, v)
}

func (l *Logical) Schema(Type) Schema {
	return Schema{Type: l.SchemaType, Name: l.Name}
}

const nanosPerDay = int64(24 * time.Hour)

var (
	// TimestampDecoder decodes milliseconds since the epoch into a UTC time.Time
	TimestampDecoder = &Logical{
		Name:       "timestamp",
		SchemaType: SchemaTimestamp,
		Physical:   bigintDecoder{},
		Format: func(_ Type, v any) (any, error) {
			return time.UnixMilli(v.(int64)).UTC(), nil
		},
	}

	// TimeDecoder decodes nanoseconds since midnight
	TimeDecoder = &Logical{
		Name:       "time",
		SchemaType: SchemaInt64,
		Physical:   bigintDecoder{},
		Format: func(t Type, v any) (any, error) {
			nanos := v.(int64)
			if nanos < 0 || nanos >= nanosPerDay {
				return nil, &DeserializationError{Type: t, Length: 8, Reason: fmt.Sprintf("time of day out of range: %d", nanos)}
			}
			return nanos, nil
		},
	}

	// InetDecoder formats a 4 or 16 byte address as text
	InetDecoder = &Logical{
		Name:       "inet",
		SchemaType: SchemaString,
		Physical:   blobDecoder{},
		Format: func(t Type, v any) (any, error) {
			b := v.([]byte)
			if len(b) != net.IPv4len && len(b) != net.IPv6len {
				return nil, invalid(t, b, "expected 4 or 16 bytes")
			}
			return net.IP(b).String(), nil
		},
	}

	// UUIDDecoder formats 16 bytes as a canonical uuid string
	UUIDDecoder = &Logical{
		Name:       "uuid",
		SchemaType: SchemaString,
		Physical:   blobDecoder{},
		Format:     formatUUID(false),
	}

	// TimeUUIDDecoder is UUIDDecoder restricted to version 1 uuids
	TimeUUIDDecoder = &Logical{
		Name:       "timeuuid",
		SchemaType: SchemaString,
		Physical:   blobDecoder{},
		Format:     formatUUID(true),
	}

	// PointDecoder formats a 21-byte WKB point as WKT
	PointDecoder = &Logical{
		Name:       "point",
		SchemaType: SchemaString,
		Physical:   blobDecoder{},
		Format:     formatPoint,
	}
)

func formatUUID(timeBased bool) FormatFunc {
	return func(t Type, v any) (any, error) {
		b := v.([]byte)
		id, err := uuid.FromBytes(b)
		if err != nil {
			return nil, invalid(t, b, "%v", err)
		}
		if timeBased && id.Version() != 1 {
			return nil, invalid(t, b, "expected version 1 uuid, got version %d", id.Version())
		}
		return id.String(), nil
	}
}

const (
	wkbPointLen  = 21
	wkbPointType = 1
)

func formatPoint(t Type, v any) (any, error) {
	b := v.([]byte)
	if len(b) != wkbPointLen {
		return nil, invalid(t, b, "expected %d bytes", wkbPointLen)
	}

	var order binary.ByteOrder
	switch b[0] {
	case 0:
		order = binary.BigEndian
	case 1:
		order = binary.LittleEndian
	default:
		return nil, invalid(t, b, "unknown byte order %d", b[0])
	}

	if geomType := order.Uint32(b[1:5]); geomType != wkbPointType {
		return nil, invalid(t, b, "expected point geometry, got type %d", geomType)
	}

	x := math.Float64frombits(order.Uint64(b[5:13]))
	y := math.Float64frombits(order.Uint64(b[13:21]))
	return "POINT (" + strconv.FormatFloat(x, 'f', -1, 64) + " " + strconv.FormatFloat(y, 'f', -1, 64) + ")", nil
}
