// Package processor drains event queues into a sink and finalizes consumed
// commit log segments.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/commitlog-cdc/event"
	"github.com/maxpert/commitlog-cdc/queue"
	"github.com/maxpert/commitlog-cdc/telemetry"
	"github.com/rs/zerolog/log"
)

// Emitter delivers one record to the sink, returning once the sink accepted it
type Emitter interface {
	Emit(ctx context.Context, rec event.Record) error
}

// Finalizer applies the segment lifecycle policy to a drained segment
type Finalizer interface {
	Finalize(segment string, success bool) error
}

// OffsetTracker commits positions so a restart resumes after them
type OffsetTracker interface {
	MarkProcessed(pos event.Position) error
	MarkSegmentComplete(segment string) error
}

// DefaultPollInterval bounds how long a cycle waits for events
const DefaultPollInterval = time.Second

// Config configures a Processor
type Config struct {
	Shard        int
	Queue        *queue.Queue
	Emitter      Emitter
	Finalizer    Finalizer
	Offsets      OffsetTracker
	PollInterval time.Duration // Wait per cycle for events before returning empty
}

// Processor is the single consumer of one queue
type Processor struct {
	config Config
	shard  string

	cancel      context.CancelFunc
	doneCh      chan struct{}
	running     atomic.Bool
	lifecycleMu sync.Mutex

	errMu sync.Mutex
	err   error
}

func New(config Config) (*Processor, error) {
	if config.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if config.Emitter == nil {
		return nil, fmt.Errorf("emitter is required")
	}
	if config.Finalizer == nil {
		return nil, fmt.Errorf("finalizer is required")
	}
	if config.Offsets == nil {
		return nil, fmt.Errorf("offset tracker is required")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &Processor{
		config: config,
		shard:  strconv.Itoa(config.Shard),
		cancel: func() {},
		doneCh: make(chan struct{}),
	}, nil
}

// Process runs one cycle: it waits up to the poll interval for events and
// handles every event drained, in order. Records are emitted exactly once per
// cycle; a SegmentEnd commits the segment as complete and then finalizes it.
// The first emission failure stops the cycle with a *SinkEmissionError.
//
// A cancelled ctx starts no cycle and interrupts the wait. Once a batch is
// drained it is handled to the end (or to the first failure), so shutdown
// never abandons an event mid-emission.
func (p *Processor) Process(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	events, err := p.config.Queue.Poll(ctx, p.config.PollInterval)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		telemetry.CycleDurationSeconds.With(p.shard).Observe(time.Since(start).Seconds())
	}()

	emitCtx := context.WithoutCancel(ctx)
	emitted := 0
	for i, e := range events {
		switch ev := e.(type) {
		case *event.SegmentEnd:
			if err := p.completeSegment(ev); err != nil {
				return err
			}

		case event.Record:
			if err := p.config.Emitter.Emit(emitCtx, ev); err != nil {
				telemetry.EmitFailuresTotal.With(failureClass(err)).Inc()
				emitErr := &SinkEmissionError{
					Position:  ev.Position(),
					Emitted:   emitted,
					Abandoned: len(events) - i,
					Err:       err,
				}
				log.Error().
					Err(err).
					Str("shard", p.shard).
					Str("position", ev.Position().String()).
					Int("abandoned", emitErr.Abandoned).
					Msg("Sink rejected record, stopping cycle")
				return emitErr
			}
			emitted++
			telemetry.RecordsEmittedTotal.With(ev.Kind().String()).Inc()

			if change, ok := ev.(*event.ChangeRecord); ok && change.LastInBatch {
				if err := p.config.Offsets.MarkProcessed(change.Position()); err != nil {
					// The record is delivered; a stale offset only means redelivery after restart
					log.Warn().
						Err(err).
						Str("position", change.Position().String()).
						Msg("Failed to commit offset - records may be redelivered")
				}
			}

		default:
			log.Warn().Str("shard", p.shard).Str("kind", e.Kind().String()).Msg("Dropping unknown event")
		}
	}

	log.Debug().Str("shard", p.shard).Int("events", len(events)).Int("emitted", emitted).Msg("Dispatch cycle complete")
	return nil
}

// completeSegment commits the segment before touching the file, so a
// lifecycle failure leaves the file behind without it being replayed
func (p *Processor) completeSegment(end *event.SegmentEnd) error {
	if end.Success {
		if err := p.config.Offsets.MarkSegmentComplete(end.Segment); err != nil {
			return fmt.Errorf("failed to commit segment %s: %w", end.Segment, err)
		}
		telemetry.SegmentsCompletedTotal.Inc()
	}

	if err := p.config.Finalizer.Finalize(end.Segment, end.Success); err != nil {
		log.Error().
			Err(err).
			Str("segment", end.Segment).
			Bool("success", end.Success).
			Msg("Failed to finalize CommitLog file, leaving it in place")
	}
	return nil
}

// Run loops cycles until ctx is done, the queue is closed and drained, or a
// cycle fails
func (p *Processor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := p.Process(ctx)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrClosed):
			return nil
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return nil
		default:
			return err
		}
	}
}

// Start runs the processor in a goroutine
func (p *Processor) Start() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.running.Load() {
		return
	}

	p.running.Store(true)
	p.doneCh = make(chan struct{})
	p.setErr(nil)

	log.Info().Str("shard", p.shard).Msg("Starting queue processor")

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	done := p.doneCh
	go func() {
		defer close(done)
		defer cancel()
		if err := p.Run(ctx); err != nil {
			p.setErr(err)
			log.Error().Err(err).Str("shard", p.shard).Msg("Queue processor stopped on error")
		}
	}()
}

// interrupt tells a running processor to start no further cycle without
// waiting for the in-flight one
func (p *Processor) interrupt() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	p.cancel()
}

// Stop waits for the in-flight cycle to finish and stops the processor.
// Events still queued stay queued.
func (p *Processor) Stop() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.running.Load() {
		return
	}

	log.Info().Str("shard", p.shard).Msg("Stopping queue processor")

	p.cancel()
	<-p.doneCh
	p.running.Store(false)

	log.Info().Str("shard", p.shard).Msg("Queue processor stopped")
}

// Done is closed when the running processor exits, by Stop or on error
func (p *Processor) Done() <-chan struct{} {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	return p.doneCh
}

// Err returns the error that stopped the processor, if any
func (p *Processor) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Processor) setErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	p.err = err
}
