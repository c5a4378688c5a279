package processor

import (
	"errors"
	"fmt"

	"github.com/maxpert/commitlog-cdc/event"
)

var (
	// ErrSinkUnavailable means no sink can accept records; retrying will not help
	ErrSinkUnavailable = errors.New("sink unavailable")
	// ErrTransient means the sink rejected a record but a later attempt may succeed
	ErrTransient = errors.New("transient sink error")
)

// SinkEmissionError stops a dispatch cycle. Records from Position onwards in
// the drained batch were not emitted; their offsets were not committed, so
// they are read again after a restart.
type SinkEmissionError struct {
	Position  event.Position
	Emitted   int // Records emitted earlier in the same cycle
	Abandoned int // Events of the batch left unprocessed, including the failed one
	Err       error
}

func (e *SinkEmissionError) Error() string {
	return fmt.Sprintf("sink emission failed at %s after %d records (%d abandoned): %v",
		e.Position, e.Emitted, e.Abandoned, e.Err)
}

func (e *SinkEmissionError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure may succeed if retried
func (e *SinkEmissionError) Transient() bool {
	return errors.Is(e.Err, ErrTransient)
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrSinkUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
