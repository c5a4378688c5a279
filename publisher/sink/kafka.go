// Package sink provides publisher.Sink implementations. Importing it
// registers the "kafka", "nats" and "mock" sink types.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/maxpert/commitlog-cdc/publisher"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaBatchBytes   = 1 << 20 // 1MB
	DefaultKafkaBatchTimeout = 10 * time.Millisecond
)

func init() {
	publisher.RegisterSink("kafka", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		kafkaConfig := DefaultKafkaConfig(config.Brokers)
		kafkaConfig.ClientID = config.ClientID
		if config.BatchTimeoutMS > 0 {
			kafkaConfig.BatchTimeout = time.Duration(config.BatchTimeoutMS) * time.Millisecond
		}

		var err error
		if kafkaConfig.Compression, err = ParseCompression(config.Compression); err != nil {
			return nil, err
		}
		if kafkaConfig.RequiredAcks, err = ParseRequiredAcks(config.RequiredAcks); err != nil {
			return nil, err
		}
		return NewKafkaSink(kafkaConfig)
	})
}

// KafkaConfig holds configuration for KafkaSink
type KafkaConfig struct {
	Brokers          []string
	ClientID         string
	BatchBytes       int64
	BatchTimeout     time.Duration // Upper bound a write waits for its batch to fill
	Compression      kafka.Compression
	RequiredAcks     kafka.RequiredAcks
	AutoCreateTopics bool
}

// DefaultKafkaConfig returns a KafkaConfig that waits for all in-sync replicas
func DefaultKafkaConfig(brokers []string) KafkaConfig {
	return KafkaConfig{
		Brokers:          brokers,
		BatchBytes:       DefaultKafkaBatchBytes,
		BatchTimeout:     DefaultKafkaBatchTimeout,
		RequiredAcks:     kafka.RequireAll,
		AutoCreateTopics: true,
	}
}

// KafkaSink publishes each message synchronously. Messages with the same key
// land on the same partition, so per-row order survives.
type KafkaSink struct {
	writer *kafka.Writer
	closed atomic.Bool
}

func NewKafkaSink(config KafkaConfig) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}
	if config.BatchBytes <= 0 {
		config.BatchBytes = DefaultKafkaBatchBytes
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = DefaultKafkaBatchTimeout
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchBytes:             config.BatchBytes,
		BatchTimeout:           config.BatchTimeout,
		Compression:            config.Compression,
		RequiredAcks:           config.RequiredAcks,
		AllowAutoTopicCreation: config.AutoCreateTopics,
		// Retries belong to the emitter
		MaxAttempts: 1,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Debug().Str("sink", "kafka").Msgf(msg, args...)
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Warn().Str("sink", "kafka").Msgf(msg, args...)
		}),
	}
	if config.ClientID != "" {
		writer.Transport = &kafka.Transport{ClientID: config.ClientID}
	}

	return &KafkaSink{writer: writer}, nil
}

// ParseCompression maps a configured codec name onto kafka-go's codecs.
// Empty or "none" disables compression.
func ParseCompression(name string) (kafka.Compression, error) {
	switch name {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown kafka compression: %q", name)
	}
}

// ParseRequiredAcks maps "all" (default), "one" or "none"
func ParseRequiredAcks(name string) (kafka.RequiredAcks, error) {
	switch name {
	case "", "all":
		return kafka.RequireAll, nil
	case "one":
		return kafka.RequireOne, nil
	case "none":
		return kafka.RequireNone, nil
	default:
		return 0, fmt.Errorf("unknown kafka required acks: %q", name)
	}
}

// Publish writes one message and waits for the configured acks.
// A nil value is a tombstone for log compaction.
func (k *KafkaSink) Publish(ctx context.Context, topic string, key, value []byte) error {
	if k.closed.Load() {
		return publisher.ErrSinkClosed
	}

	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return classifyKafkaError(err)
	}
	return nil
}

// classifyKafkaError marks broker errors Kafka reports as non-retriable
func classifyKafkaError(err error) error {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil {
				err = e
				break
			}
		}
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) && !kerr.Temporary() {
		return publisher.Permanent(err)
	}
	return err
}

// Close flushes pending writes. Publish fails with ErrSinkClosed afterwards.
func (k *KafkaSink) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	return k.writer.Close()
}
