package codec

import "fmt"

// DeserializationError reports a buffer whose length or structure does not
// match the declared type
type DeserializationError struct {
	Type   Type
	Length int
	Reason string
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("failed to deserialize %s from %d bytes: %s", e.Type, e.Length, e.Reason)
}

// UnsupportedTypeError reports a type with no registered decoder
type UnsupportedTypeError struct {
	Type Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("no decoder registered for type %s", e.Type)
}

func invalid(t Type, raw []byte, format string, args ...any) error {
	return &DeserializationError{Type: t, Length: len(raw), Reason: fmt.Sprintf(format, args...)}
}
