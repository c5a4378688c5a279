package publisher

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/maxpert/commitlog-cdc/schema"
	"github.com/rs/zerolog/log"
)

// SinkFactory builds a Sink for a sink section
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

// TransformerFactory builds the Transformer of a format
type TransformerFactory func(cfg.SinkConfiguration) Transformer

// factoryTable is a name-keyed set of factories, filled by init functions
// of the sink and transformer packages
type factoryTable[F any] struct {
	mu sync.RWMutex
	m  map[string]F
}

func (t *factoryTable[F]) register(name string, f F) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[string]F)
	}
	t.m[name] = f
}

func (t *factoryTable[F]) lookup(name string) (F, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.m[name]
	return f, ok
}

func (t *factoryTable[F]) names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.m))
	for k := range t.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	sinkFactories        factoryTable[SinkFactory]
	transformerFactories factoryTable[TransformerFactory]
)

// RegisterSink makes a sink type available to FromConfig
func RegisterSink(sinkType string, factory SinkFactory) {
	sinkFactories.register(sinkType, factory)
}

// RegisterTransformer makes a format available to FromConfig
func RegisterTransformer(format string, factory TransformerFactory) {
	transformerFactories.register(format, factory)
}

// SinkTypes lists the registered sink types
func SinkTypes() []string { return sinkFactories.names() }

// Formats lists the registered transformer formats
func Formats() []string { return transformerFactories.names() }

// FromConfig builds the sink, transformer and filter a sink configuration
// names and wires them into an Emitter
func FromConfig(config cfg.SinkConfiguration, provider schema.Provider) (*Emitter, error) {
	trans, err := createTransformer(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transformer: %w", err)
	}

	filter, err := NewGlobFilter(config.FilterTables, config.FilterKeyspaces)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter: %w", err)
	}

	snk, err := createSink(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink: %w", err)
	}

	emitter, err := NewEmitter(EmitterConfig{
		Name:               config.Name,
		Sink:               snk,
		Transformer:        trans,
		Filter:             filter,
		Schema:             provider,
		TopicPrefix:        config.TopicPrefix,
		Timeout:            time.Duration(config.TimeoutMS) * time.Millisecond,
		RetryInitial:       time.Duration(config.RetryInitialMS) * time.Millisecond,
		RetryMax:           time.Duration(config.RetryMaxMS) * time.Millisecond,
		RetryMultiplier:    config.RetryMultiplier,
		MaxRetries:         config.MaxRetries,
		TombstonesOnDelete: config.TombstonesOnDelete,
	})
	if err != nil {
		snk.Close()
		return nil, fmt.Errorf("failed to create emitter: %w", err)
	}

	log.Info().
		Str("sink", config.Name).
		Str("type", config.Type).
		Str("format", config.Format).
		Str("topic_prefix", config.TopicPrefix).
		Msg("Configured CDC sink")

	return emitter, nil
}

func createSink(config cfg.SinkConfiguration) (Sink, error) {
	factory, ok := sinkFactories.lookup(config.Type)
	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}
	return factory(config)
}

func createTransformer(config cfg.SinkConfiguration) (Transformer, error) {
	factory, ok := transformerFactories.lookup(config.Format)
	if !ok {
		return nil, fmt.Errorf("unknown format: %s", config.Format)
	}
	return factory(config), nil
}
