package publisher

import (
	"errors"
	"fmt"

	"github.com/maxpert/commitlog-cdc/processor"
)

// ErrSinkClosed is returned by a sink used after Close
var ErrSinkClosed = errors.New("sink closed")

// permanentError marks a sink failure that retrying cannot fix
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the emitter fails the record without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// classify maps a final publish failure onto the dispatcher's error classes
func classify(topic string, err error, attempts int) error {
	switch {
	case errors.Is(err, ErrSinkClosed):
		return fmt.Errorf("%w: %s: %w", processor.ErrSinkUnavailable, topic, err)
	case IsPermanent(err):
		return fmt.Errorf("publish to %s rejected: %w", topic, err)
	default:
		return fmt.Errorf("%w: exhausted %d attempts for topic %s: %w", processor.ErrTransient, attempts, topic, err)
	}
}
