package telemetry

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// QueueStats is a point-in-time view of one shard queue
type QueueStats struct {
	Shard    int
	Depth    int
	Capacity int
}

// QueueLister lists the queues to sample
type QueueLister interface {
	QueueStats() []QueueStats
}

// Backlog describes the segments not yet consumed
type Backlog struct {
	Pending int
	Oldest  time.Time // Creation time of the oldest pending segment, zero when none
}

// BacklogFunc samples the segment backlog
type BacklogFunc func() (Backlog, error)

// MetricsCollector periodically samples queue depth and segment backlog into
// gauges
type MetricsCollector struct {
	lister   QueueLister
	backlog  BacklogFunc
	interval time.Duration
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a collector sampling lister every interval.
// backlog may be nil.
func NewMetricsCollector(lister QueueLister, backlog BacklogFunc, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		lister:   lister,
		backlog:  backlog,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector. Safe to call more than once.
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopCh) })
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.lister != nil {
		for _, stats := range mc.lister.QueueStats() {
			shard := strconv.Itoa(stats.Shard)
			QueueDepth.With(shard).Set(float64(stats.Depth))
			QueueCapacity.With(shard).Set(float64(stats.Capacity))
		}
	}

	if mc.backlog == nil {
		return
	}
	b, err := mc.backlog()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to sample segment backlog")
		return
	}
	SegmentsPending.Set(float64(b.Pending))
	SegmentBacklogSeconds.Set(backlogAge(b, mc.now()).Seconds())
}

// backlogAge is how long the oldest pending segment has waited
func backlogAge(b Backlog, now time.Time) time.Duration {
	if b.Pending == 0 || b.Oldest.IsZero() || b.Oldest.After(now) {
		return 0
	}
	return now.Sub(b.Oldest)
}
