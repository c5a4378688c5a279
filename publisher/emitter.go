package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maxpert/commitlog-cdc/event"
	"github.com/maxpert/commitlog-cdc/processor"
	"github.com/maxpert/commitlog-cdc/schema"
	"github.com/maxpert/commitlog-cdc/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// Default timeout of one sink round trip
	DefaultTimeout = 10 * time.Second
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Attempts per message before the record fails
	DefaultMaxRetries = 10
)

// EmitterConfig configures an Emitter
type EmitterConfig struct {
	Name               string          // Sink name, used in logs and metrics
	Sink               Sink            // Destination sink
	Transformer        Transformer     // Record encoder
	Filter             Filter          // Table filter
	Schema             schema.Provider // Table metadata
	TopicPrefix        string          // Topic prefix (e.g., "cdc")
	Timeout            time.Duration   // Per-publish timeout
	RetryInitial       time.Duration   // Initial retry delay
	RetryMax           time.Duration   // Max retry delay
	RetryMultiplier    float64         // Backoff multiplier
	MaxRetries         int             // Attempts per message
	TombstonesOnDelete bool            // Follow every delete with a nil-valued message
}

// Emitter publishes records to one sink. It implements processor.Emitter.
//
// Delivery is at-least-once: a record is acknowledged only after the sink
// accepted every message derived from it. Filtered records are acknowledged
// without publishing.
type Emitter struct {
	config EmitterConfig

	stopCh    chan struct{}
	closeOnce sync.Once
}

var _ processor.Emitter = (*Emitter)(nil)

// NewEmitter validates config and applies defaults
func NewEmitter(config EmitterConfig) (*Emitter, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("emitter name is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Transformer == nil {
		return nil, fmt.Errorf("transformer is required")
	}
	if config.Filter == nil {
		return nil, fmt.Errorf("filter is required")
	}
	if config.Schema == nil {
		return nil, fmt.Errorf("schema provider is required")
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	return &Emitter{
		config: config,
		stopCh: make(chan struct{}),
	}, nil
}

// Emit transforms rec and publishes it, retrying with exponential backoff.
// The returned error wraps processor.ErrTransient when retries ran out, or
// processor.ErrSinkUnavailable when the sink is gone.
func (e *Emitter) Emit(ctx context.Context, rec event.Record) error {
	src := rec.Source()

	if !e.config.Filter.Match(src.Keyspace, src.Table) {
		telemetry.RecordsFilteredTotal.Inc()
		log.Debug().
			Str("sink", e.config.Name).
			Str("keyspace", src.Keyspace).
			Str("table", src.Table).
			Msg("Record filtered")
		return nil
	}

	table := schema.TableID{Keyspace: src.Keyspace, Table: src.Table}
	cols, err := e.config.Schema.ColumnsOf(table)
	if err != nil {
		return fmt.Errorf("failed to get schema for %s: %w", table, err)
	}

	key, value, err := e.config.Transformer.Transform(rec, cols)
	if err != nil {
		return fmt.Errorf("failed to transform record at %s: %w", rec.Position(), err)
	}

	topic := Topic(e.config.TopicPrefix, src.Keyspace, src.Table)
	if err := e.publishWithRetry(ctx, topic, key, value); err != nil {
		return err
	}

	if change, ok := rec.(*event.ChangeRecord); ok && change.Op == event.OpDelete && e.config.TombstonesOnDelete {
		if err := e.publishWithRetry(ctx, topic, key, nil); err != nil {
			return err
		}
	}

	return nil
}

// publishWithRetry publishes with exponential backoff until the sink accepts,
// the error is permanent, attempts run out, or the emitter is closed
func (e *Emitter) publishWithRetry(ctx context.Context, topic string, key, value []byte) error {
	delay := e.config.RetryInitial
	attempts := 0

	for {
		err := e.publish(ctx, topic, key, value)
		if err == nil {
			return nil
		}

		attempts++
		if IsPermanent(err) || errors.Is(err, ErrSinkClosed) || attempts >= e.config.MaxRetries {
			return classify(topic, err, attempts)
		}

		telemetry.PublishRetriesTotal.With(e.config.Name).Inc()
		log.Warn().
			Err(err).
			Str("sink", e.config.Name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish record, retrying")

		if !e.sleep(ctx, delay) {
			return fmt.Errorf("%w: %s: emitter stopped during retry: %w", processor.ErrSinkUnavailable, topic, err)
		}

		delay = time.Duration(float64(delay) * e.config.RetryMultiplier)
		if delay > e.config.RetryMax {
			delay = e.config.RetryMax
		}
	}
}

func (e *Emitter) publish(ctx context.Context, topic string, key, value []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	if err := e.config.Sink.Publish(pubCtx, topic, key, value); err != nil {
		return err
	}
	telemetry.PublishDurationSeconds.With(e.config.Name).Observe(time.Since(start).Seconds())
	return nil
}

// sleep sleeps for d, returning false if the emitter was closed or ctx is done
func (e *Emitter) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-e.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close interrupts pending retries and closes the sink
func (e *Emitter) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.stopCh)
		err = e.config.Sink.Close()
		log.Info().Str("sink", e.config.Name).Msg("Emitter closed")
	})
	return err
}
