package codec

import (
	"errors"
	"sync"

	"github.com/maxpert/commitlog-cdc/telemetry"
	"github.com/rs/zerolog/log"
)

// Decoder turns a serialized cell value into its canonical Go value
type Decoder interface {
	// Decode decodes raw, which is never nil
	Decode(t Type, raw []byte) (any, error)
	// Schema describes the values Decode returns for t
	Schema(t Type) Schema
}

// Registry maps type kinds to decoders. Decoders are registered at startup;
// afterwards the registry is only read and is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	decoders map[Kind]Decoder
}

// NewRegistry returns a registry with every built-in decoder registered
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[Kind]Decoder)}
	registerBuiltins(r)
	return r
}

// Register installs d for kind, replacing any previous decoder
func (r *Registry) Register(kind Kind, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[kind] = d
}

func (r *Registry) lookup(t Type) (Decoder, error) {
	r.mu.RLock()
	d, ok := r.decoders[t.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedTypeError{Type: t}
	}
	return d, nil
}

// Decode decodes raw as t. A nil buffer is a null cell and decodes to nil.
func (r *Registry) Decode(t Type, raw []byte) (any, error) {
	if raw == nil {
		return nil, nil
	}

	d, err := r.lookup(t)
	if err != nil {
		return nil, err
	}

	v, err := d.Decode(t, raw)
	if err != nil {
		var desErr *DeserializationError
		if errors.As(err, &desErr) {
			telemetry.DeserializationFailuresTotal.With(t.Kind.String()).Inc()
			log.Debug().Err(err).Str("type", t.String()).Int("length", len(raw)).Msg("Deserialization failed")
		}
		return nil, err
	}
	return v, nil
}

// SchemaFor describes the values Decode returns for t
func (r *Registry) SchemaFor(t Type) (Schema, error) {
	d, err := r.lookup(t)
	if err != nil {
		return Schema{}, err
	}
	s := d.Schema(t)
	s.Optional = true
	return s, nil
}

func registerBuiltins(r *Registry) {
	r.Register(KindASCII, asciiDecoder{})
	r.Register(KindText, textDecoder{})
	r.Register(KindVarchar, textDecoder{})
	r.Register(KindBlob, blobDecoder{})
	r.Register(KindBoolean, booleanDecoder{})
	r.Register(KindTinyint, tinyintDecoder{})
	r.Register(KindSmallint, smallintDecoder{})
	r.Register(KindInt, intDecoder{})
	r.Register(KindBigint, bigintDecoder{})
	r.Register(KindCounter, bigintDecoder{})
	r.Register(KindFloat, floatDecoder{})
	r.Register(KindDouble, doubleDecoder{})
	r.Register(KindDate, dateDecoder{})
	r.Register(KindVarint, varintDecoder{})
	r.Register(KindDecimal, decimalDecoder{})

	r.Register(KindTimestamp, TimestampDecoder)
	r.Register(KindTime, TimeDecoder)
	r.Register(KindInet, InetDecoder)
	r.Register(KindUUID, UUIDDecoder)
	r.Register(KindTimeUUID, TimeUUIDDecoder)
	r.Register(KindPoint, PointDecoder)

	r.Register(KindList, &listDecoder{registry: r})
	r.Register(KindSet, &listDecoder{registry: r, set: true})
	r.Register(KindMap, &mapDecoder{registry: r})
}
