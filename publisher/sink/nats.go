package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/maxpert/commitlog-cdc/publisher"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

const (
	// Retention of the streams the sink creates
	DefaultStreamMaxAge = 24 * time.Hour
	// Window in which JetStream drops a message whose id it already stored
	DefaultDuplicateWindow = 2 * time.Minute
)

func init() {
	publisher.RegisterSink("nats", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		if config.NatsURL == "" {
			return nil, fmt.Errorf("nats sink requires nats_url")
		}
		return NewNatsSink(config.NatsURL, config.ClientID)
	})
}

// NatsSink implements the Sink interface for NATS JetStream publishing.
// One stream is created per subject on first use. Each message carries an id
// derived from its content, so a record replayed after a restart is dropped
// by JetStream when it lands inside the duplicate window.
type NatsSink struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	streams *xsync.MapOf[string, struct{}]
	closed  atomic.Bool
}

// NewNatsSink connects to url and creates a JetStream context. name labels
// the connection on the server and may be empty.
func NewNatsSink(url, name string) (*NatsSink, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("sink", "nats").Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("sink", "nats").Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	}
	if name != "" {
		opts = append(opts, nats.Name(name))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NatsSink{nc: nc, js: js, streams: xsync.NewMapOf[string, struct{}]()}, nil
}

// Publish sends one message to JetStream and waits for the ack.
// The record key travels in the "key" header.
func (n *NatsSink) Publish(ctx context.Context, topic string, key, value []byte) error {
	if n.closed.Load() {
		return publisher.ErrSinkClosed
	}

	if err := n.ensureStream(ctx, topic); err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: topic,
		Data:    value,
		Header:  nats.Header{"key": []string{string(key)}},
	}

	if _, err := n.js.PublishMsg(ctx, msg, jetstream.WithMsgID(messageID(topic, key, value))); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return fmt.Errorf("failed to publish to %s: %w: %w", topic, publisher.ErrSinkClosed, err)
		}
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (n *NatsSink) ensureStream(ctx context.Context, topic string) error {
	if _, ok := n.streams.Load(topic); ok {
		return nil
	}

	streamName := sanitizeStreamName(topic)
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{topic},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     DefaultStreamMaxAge,
		Duplicates: DefaultDuplicateWindow,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	n.streams.Store(topic, struct{}{})
	return nil
}

// Close releases the NATS connection
func (n *NatsSink) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// messageID identifies a message by content
func messageID(topic string, key, value []byte) string {
	h := xxhash.New()
	h.WriteString(topic)
	h.Write([]byte{0})
	h.Write(key)
	h.Write([]byte{0})
	if value == nil {
		h.WriteString("tombstone")
	} else {
		h.Write(value)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// sanitizeStreamName converts a subject to a valid JetStream stream name
func sanitizeStreamName(topic string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '/', '\\':
			return '_'
		}
		return r
	}, topic)
}
