package processor

import (
	"context"
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

// PipelineConfig configures a Pipeline. Emitter, Finalizer and Offsets are
// shared by every shard and must be safe for concurrent use.
type PipelineConfig struct {
	Shards       int
	Capacity     int
	MaxBatch     int
	PollInterval time.Duration
	Emitter      Emitter
	Finalizer    Finalizer
	Offsets      OffsetTracker
}

// Pipeline runs independent queue/processor pairs. Order is preserved within
// a shard only.
type Pipeline struct {
	queues     []*queue.Queue
	processors []*Processor

	started  atomic.Bool
	failOnce sync.Once
	failed   chan struct{}
}

func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.Shards < 1 {
		return nil, fmt.Errorf("shards must be >= 1")
	}
	if config.Capacity < 1 {
		return nil, fmt.Errorf("queue capacity must be >= 1")
	}

	p := &Pipeline{
		queues:     make([]*queue.Queue, config.Shards),
		processors: make([]*Processor, config.Shards),
		failed:     make(chan struct{}),
	}

	for i := 0; i < config.Shards; i++ {
		q := queue.New(config.Capacity, config.MaxBatch)
		proc, err := New(Config{
			Shard:        i,
			Queue:        q,
			Emitter:      config.Emitter,
			Finalizer:    config.Finalizer,
			Offsets:      config.Offsets,
			PollInterval: config.PollInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("shard %d: %w", i, err)
		}
		p.queues[i] = q
		p.processors[i] = proc
	}

	return p, nil
}

// Shards returns the number of shards
func (p *Pipeline) Shards() int {
	return len(p.queues)
}

// Shard returns the queue a segment reader feeds
func (p *Pipeline) Shard(i int) *queue.Queue {
	return p.queues[i]
}

// Enqueue hands e to a shard, blocking while that shard is full
func (p *Pipeline) Enqueue(ctx context.Context, shard int, e event.Event) error {
	if shard < 0 || shard >= len(p.queues) {
		return fmt.Errorf("shard %d out of range [0, %d)", shard, len(p.queues))
	}
	if err := p.queues[shard].Enqueue(ctx, e); err != nil {
		return err
	}
	telemetry.EventsEnqueuedTotal.With(strconv.Itoa(shard), e.Kind().String()).Inc()
	return nil
}

// Start starts every shard processor
func (p *Pipeline) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i, proc := range p.processors {
		proc.Start()
		go p.watch(i, proc)
	}
	log.Info().Int("shards", len(p.processors)).Msg("Pipeline started")
}

func (p *Pipeline) watch(shard int, proc *Processor) {
	<-proc.Done()
	if err := proc.Err(); err != nil {
		log.Error().Err(err).Int("shard", shard).Msg("Shard failed")
		p.failOnce.Do(func() { close(p.failed) })
	}
}

// Failed is closed when any shard stops on error
func (p *Pipeline) Failed() <-chan struct{} {
	return p.failed
}

// Err returns the first shard error found, if any
func (p *Pipeline) Err() error {
	for i, proc := range p.processors {
		if err := proc.Err(); err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
	}
	return nil
}

// Stop signals every shard, closes the queues to release blocked readers and
// waits for each processor to finish its in-flight cycle. No shard starts a
// new cycle once Stop is called; undrained events are left to be re-read
// from their segments.
func (p *Pipeline) Stop() {
	for _, proc := range p.processors {
		proc.interrupt()
	}
	for _, q := range p.queues {
		q.Close()
	}
	if !p.started.Load() {
		return
	}
	for _, proc := range p.processors {
		proc.Stop()
	}
	log.Info().Msg("Pipeline stopped")
}

// QueueStats reports per-shard depth for the metrics collector
func (p *Pipeline) QueueStats() []telemetry.QueueStats {
	out := make([]telemetry.QueueStats, len(p.queues))
	for i, q := range p.queues {
		out[i] = telemetry.QueueStats{Shard: i, Depth: q.Len(), Capacity: q.TotalCapacity()}
	}
	return out
}
