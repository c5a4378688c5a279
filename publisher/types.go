package publisher

import (
	"context"

	"github.com/maxpert/commitlog-cdc/event"
	"github.com/maxpert/commitlog-cdc/row"
)

// Sink represents a destination for change records (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends one message and returns once the sink acknowledged it.
	// A nil value is a tombstone.
	Publish(ctx context.Context, topic string, key, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Transformer converts records to sink-specific messages
type Transformer interface {
	// Transform encodes rec. cols are the table's columns in declaration
	// order. A TombstoneRecord yields a nil value.
	Transform(rec event.Record, cols []row.Column) (key, value []byte, err error)
}

// Filter determines whether records of a table are published
type Filter interface {
	Match(keyspace, table string) bool
}
