package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// CommitLogConfiguration controls where segments are read from and what
// happens to them once consumed
type CommitLogConfiguration struct {
	CDCDir        string `toml:"cdc_dir"`        // Directory the database hard-links CDC segments into
	ArchiveDir    string `toml:"archive_dir"`    // Destination for archive and compress policies
	ErrorDir      string `toml:"error_dir"`      // Destination for segments that failed to read
	Policy        string `toml:"policy"`         // "archive", "delete" or "compress"
	ArchiveRetain int    `toml:"archive_retain"` // Segments kept in archive_dir (0 = unlimited)
}

// QueueConfiguration controls the sharded event queues
type QueueConfiguration struct {
	Shards         int `toml:"shards"`           // Independent queue/processor pairs
	Capacity       int `toml:"capacity"`         // Events per shard before producers block
	MaxBatchSize   int `toml:"max_batch_size"`   // Events drained per cycle (0 = all available)
	PollIntervalMS int `toml:"poll_interval_ms"` // Wait per cycle before re-checking shutdown
}

// OffsetConfiguration controls the committed-position store
type OffsetConfiguration struct {
	Dir string `toml:"dir"`
}

// SinkConfiguration describes where change records are published
type SinkConfiguration struct {
	Name            string   `toml:"name"`
	Type            string   `toml:"type"`   // "kafka", "nats"
	Format          string   `toml:"format"` // "debezium"
	Brokers         []string `toml:"brokers"`
	NatsURL         string   `toml:"nats_url"`
	ClientID        string   `toml:"client_id"`
	Compression     string   `toml:"compression"`      // kafka: "none", "gzip", "snappy", "lz4", "zstd"
	RequiredAcks    string   `toml:"required_acks"`    // kafka: "all", "one", "none"
	BatchTimeoutMS  int      `toml:"batch_timeout_ms"` // kafka: wait for a batch to fill
	TopicPrefix     string   `toml:"topic_prefix"`
	TimeoutMS       int      `toml:"timeout_ms"`
	RetryInitialMS  int      `toml:"retry_initial_ms"`
	RetryMaxMS      int      `toml:"retry_max_ms"`
	RetryMultiplier float64  `toml:"retry_multiplier"`
	MaxRetries      int      `toml:"max_retries"` // Attempts per message before the cycle fails
	FilterTables    []string `toml:"filter_tables"`
	FilterKeyspaces []string `toml:"filter_keyspaces"`

	// Publish a nil-valued message after each delete so compacted topics drop
	// the key. Disable when the reader emits tombstone records itself.
	TombstonesOnDelete bool `toml:"tombstones_on_delete"`
}

// ColumnConfiguration declares one column of a statically configured table
type ColumnConfiguration struct {
	Name string `toml:"name"`
	Type string `toml:"type"` // CQL type, e.g. "map<text, int>"
	Kind string `toml:"kind"` // "partition", "clustering" or "regular"
}

// TableConfiguration declares the columns of one table
type TableConfiguration struct {
	Keyspace string                `toml:"keyspace"`
	Table    string                `toml:"table"`
	Columns  []ColumnConfiguration `toml:"columns"`
}

// SchemaConfiguration controls table metadata lookup
type SchemaConfiguration struct {
	CacheSize int                  `toml:"cache_size"`
	Tables    []TableConfiguration `toml:"tables"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// AdminConfiguration controls the admin HTTP API, served next to /metrics on
// the prometheus bind address
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Secret  string `toml:"secret"` // Required in X-CDC-Secret or as a bearer token when set
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID      uint64 `toml:"node_id"`
	ClusterName string `toml:"cluster_name"`

	CommitLog  CommitLogConfiguration  `toml:"commit_log"`
	Queue      QueueConfiguration      `toml:"queue"`
	Offsets    OffsetConfiguration     `toml:"offsets"`
	Sink       SinkConfiguration       `toml:"sink"`
	Schema     SchemaConfiguration     `toml:"schema"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	CDCDirFlag     = flag.String("cdc-dir", "", "CDC segment directory (overrides config)")
	OffsetDirFlag  = flag.String("offset-dir", "", "Offset store directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
)

// Default configuration
var Config = &Configuration{
	NodeID:      0, // Auto-generate
	ClusterName: "cassandra",

	CommitLog: CommitLogConfiguration{
		CDCDir:     "./cdc_raw",
		ArchiveDir: "./cdc-data/archive",
		ErrorDir:   "./cdc-data/error",
		Policy:     "archive",
	},

	Queue: QueueConfiguration{
		Shards:         1,
		Capacity:       8192,
		MaxBatchSize:   0,
		PollIntervalMS: 1000,
	},

	Offsets: OffsetConfiguration{
		Dir: "./cdc-data/offsets",
	},

	Sink: SinkConfiguration{
		Name:            "default",
		Type:            "kafka",
		Format:          "debezium",
		Brokers:         []string{"localhost:9092"},
		TimeoutMS:       10000,
		RetryInitialMS:  100,
		RetryMaxMS:      30000,
		RetryMultiplier: 2.0,
		MaxRetries:      10,

		TombstonesOnDelete: true,
	},

	Schema: SchemaConfiguration{
		CacheSize: 1024,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Bind:    "0.0.0.0:9090",
	},

	Admin: AdminConfiguration{
		Enabled: false,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *CDCDirFlag != "" {
		Config.CommitLog.CDCDir = *CDCDirFlag
	}
	if *OffsetDirFlag != "" {
		Config.Offsets.Dir = *OffsetDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	for _, dir := range []string{Config.CommitLog.ArchiveDir, Config.CommitLog.ErrorDir, Config.Offsets.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("commitlog-cdc")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.CommitLog.CDCDir == "" {
		return fmt.Errorf("cdc directory is required")
	}

	switch Config.CommitLog.Policy {
	case "archive", "compress":
		if Config.CommitLog.ArchiveDir == "" {
			return fmt.Errorf("archive directory is required for policy %s", Config.CommitLog.Policy)
		}
	case "delete":
	default:
		return fmt.Errorf("invalid commit log policy: %s", Config.CommitLog.Policy)
	}

	if Config.CommitLog.ArchiveRetain < 0 {
		return fmt.Errorf("archive retain must be >= 0")
	}

	// Consumed segments must leave the watched directory
	if Config.CommitLog.ArchiveDir != "" && samePath(Config.CommitLog.ArchiveDir, Config.CommitLog.CDCDir) {
		return fmt.Errorf("archive directory must differ from cdc directory")
	}
	if Config.CommitLog.ErrorDir != "" && samePath(Config.CommitLog.ErrorDir, Config.CommitLog.CDCDir) {
		return fmt.Errorf("error directory must differ from cdc directory")
	}

	if Config.Queue.Shards < 1 {
		return fmt.Errorf("queue shards must be >= 1")
	}

	if Config.Queue.Capacity < 1 {
		return fmt.Errorf("queue capacity must be >= 1")
	}

	if Config.Queue.MaxBatchSize < 0 {
		return fmt.Errorf("queue max batch size must be >= 0")
	}

	if Config.Queue.PollIntervalMS < 1 {
		return fmt.Errorf("queue poll interval must be >= 1ms")
	}

	if Config.Offsets.Dir == "" {
		return fmt.Errorf("offset directory is required")
	}

	if err := validateSink(&Config.Sink); err != nil {
		return err
	}

	if Config.Schema.CacheSize < 0 {
		return fmt.Errorf("schema cache size must be >= 0")
	}

	for _, table := range Config.Schema.Tables {
		if table.Keyspace == "" || table.Table == "" {
			return fmt.Errorf("schema table requires keyspace and table")
		}
		if len(table.Columns) == 0 {
			return fmt.Errorf("schema table %s.%s has no columns", table.Keyspace, table.Table)
		}
		for _, col := range table.Columns {
			if col.Name == "" || col.Type == "" {
				return fmt.Errorf("schema table %s.%s has a column without name or type", table.Keyspace, table.Table)
			}
			switch col.Kind {
			case "", "partition", "clustering", "regular":
			default:
				return fmt.Errorf("invalid column kind %q in %s.%s", col.Kind, table.Keyspace, table.Table)
			}
		}
	}

	if Config.Logging.Format != "" && Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	if Config.Prometheus.Enabled && Config.Prometheus.Bind == "" {
		return fmt.Errorf("prometheus bind address is required when enabled")
	}

	if Config.Admin.Enabled && Config.Prometheus.Bind == "" {
		return fmt.Errorf("admin API requires the prometheus bind address")
	}

	return nil
}

func validateSink(sink *SinkConfiguration) error {
	switch sink.Type {
	case "kafka":
		if len(sink.Brokers) == 0 {
			return fmt.Errorf("sink %q: kafka requires at least one broker", sink.Name)
		}
	case "nats":
		if sink.NatsURL == "" {
			return fmt.Errorf("sink %q: nats requires nats_url", sink.Name)
		}
	case "":
		return fmt.Errorf("sink type is required")
	}

	if sink.Format == "" {
		return fmt.Errorf("sink %q: format is required", sink.Name)
	}

	if sink.TimeoutMS < 0 || sink.BatchTimeoutMS < 0 {
		return fmt.Errorf("sink %q: timeouts must be >= 0", sink.Name)
	}

	if sink.RetryInitialMS < 0 || sink.RetryMaxMS < 0 || sink.RetryMultiplier < 0 || sink.MaxRetries < 0 {
		return fmt.Errorf("sink %q: retry settings must be >= 0", sink.Name)
	}

	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
