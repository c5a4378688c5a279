package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/maxpert/commitlog-cdc/publisher"
	"github.com/rs/zerolog/log"
)

func init() {
	// Accepts and logs every message; useful for dry runs
	publisher.RegisterSink("mock", func(cfg.SinkConfiguration) (publisher.Sink, error) {
		return &MockSink{LogMessages: true}, nil
	})
}

var errMockPublish = errors.New("mock publish failure")

// MockSink records published messages in memory
type MockSink struct {
	Messages    []MockMessage
	PublishErr  error // Returned by every Publish when set
	FailTimes   int   // Publish calls that fail with FailErr before the sink recovers
	FailErr     error
	LogMessages bool

	mu     sync.Mutex
	closed bool
}

// MockMessage represents a published message
type MockMessage struct {
	Topic string
	Key   []byte
	Value []byte
}

func (m *MockSink) Publish(ctx context.Context, topic string, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return publisher.ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.PublishErr != nil {
		return m.PublishErr
	}
	if m.FailTimes > 0 {
		m.FailTimes--
		if m.FailErr != nil {
			return m.FailErr
		}
		return errMockPublish
	}

	m.Messages = append(m.Messages, MockMessage{Topic: topic, Key: key, Value: value})
	if m.LogMessages {
		log.Debug().Str("topic", topic).Bytes("key", key).Int("bytes", len(value)).Msg("Mock sink received message")
	}
	return nil
}

// Snapshot returns a copy of the recorded messages
func (m *MockSink) Snapshot() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMessage(nil), m.Messages...)
}

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Reset clears recorded messages and reopens the sink
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = nil
	m.closed = false
}
