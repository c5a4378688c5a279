package telemetry

var (
	// CycleBuckets for one dispatch cycle (drain + emit)
	CycleBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	// PublishBuckets for one sink round trip
	PublishBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}
)

// Ingestion Metrics
var (
	// EventsEnqueuedTotal counts events accepted by a shard queue, by shard and event kind
	EventsEnqueuedTotal CounterVec = noopCounterVec{}

	// QueueDepth tracks queued events by shard
	QueueDepth GaugeVec = noopGaugeVec{}

	// QueueCapacity tracks configured capacity by shard
	QueueCapacity GaugeVec = noopGaugeVec{}

	// DeserializationFailuresTotal counts cell buffers that failed to decode, by CQL type
	DeserializationFailuresTotal CounterVec = noopCounterVec{}
)

// Emission Metrics
var (
	// RecordsEmittedTotal counts records accepted by the sink, by kind (change, tombstone)
	RecordsEmittedTotal CounterVec = noopCounterVec{}

	// RecordsFilteredTotal counts records skipped by the table filter
	RecordsFilteredTotal Counter = NoopStat{}

	// EmitFailuresTotal counts sink rejections by class (transient, unavailable, other)
	EmitFailuresTotal CounterVec = noopCounterVec{}

	// CycleDurationSeconds measures dispatch cycle latency by shard
	CycleDurationSeconds HistogramVec = noopHistogramVec{}

	// PublishRetriesTotal counts failed publish attempts that were retried, by sink
	PublishRetriesTotal CounterVec = noopCounterVec{}

	// PublishDurationSeconds measures successful sink publishes by sink
	PublishDurationSeconds HistogramVec = noopHistogramVec{}
)

// Segment Lifecycle Metrics
var (
	// SegmentsFinalizedTotal counts segments by lifecycle action (archive, delete, compress, error)
	SegmentsFinalizedTotal CounterVec = noopCounterVec{}

	// SegmentsCompletedTotal counts segments whose offsets were committed as complete
	SegmentsCompletedTotal Counter = NoopStat{}

	// SegmentsPending tracks segments waiting in the cdc directory
	SegmentsPending Gauge = NoopStat{}

	// SegmentBacklogSeconds is the age of the oldest pending segment
	SegmentBacklogSeconds Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	EventsEnqueuedTotal = NewCounterVec(
		"events_enqueued_total",
		"Events accepted by a shard queue",
		[]string{"shard", "kind"},
	)
	QueueDepth = NewGaugeVec(
		"queue_depth",
		"Events waiting in a shard queue",
		[]string{"shard"},
	)
	QueueCapacity = NewGaugeVec(
		"queue_capacity",
		"Configured capacity of a shard queue",
		[]string{"shard"},
	)
	DeserializationFailuresTotal = NewCounterVec(
		"deserialization_failures_total",
		"Cell buffers that failed to decode",
		[]string{"type"},
	)

	RecordsEmittedTotal = NewCounterVec(
		"records_emitted_total",
		"Records accepted by the sink",
		[]string{"kind"},
	)
	RecordsFilteredTotal = NewCounter(
		"records_filtered_total",
		"Records skipped by the table filter",
	)
	EmitFailuresTotal = NewCounterVec(
		"emit_failures_total",
		"Sink rejections by class",
		[]string{"class"},
	)
	CycleDurationSeconds = NewHistogramVec(
		"cycle_duration_seconds",
		"Dispatch cycle duration in seconds",
		[]string{"shard"},
		CycleBuckets,
	)
	PublishRetriesTotal = NewCounterVec(
		"publish_retries_total",
		"Failed publish attempts that were retried",
		[]string{"sink"},
	)
	PublishDurationSeconds = NewHistogramVec(
		"publish_duration_seconds",
		"Sink publish duration in seconds",
		[]string{"sink"},
		PublishBuckets,
	)

	SegmentsFinalizedTotal = NewCounterVec(
		"segments_finalized_total",
		"Segments finalized by lifecycle action",
		[]string{"action"},
	)
	SegmentsCompletedTotal = NewCounter(
		"segments_completed_total",
		"Segments committed as fully processed",
	)
	SegmentsPending = NewGauge(
		"segments_pending",
		"Segments waiting in the cdc directory",
	)
	SegmentBacklogSeconds = NewGauge(
		"segment_backlog_seconds",
		"Age of the oldest pending segment in seconds",
	)
}
