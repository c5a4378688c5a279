// Package publisher delivers change records to external systems.
//
// An Emitter sits behind the queue processors. For each record it:
//
//  1. drops it if the table does not match the sink's GlobFilter
//  2. looks up the table's columns through a schema.Provider
//  3. encodes key and value with a Transformer (see publisher/transformer)
//  4. publishes to "{prefix}.{keyspace}.{table}" on a Sink (see publisher/sink),
//     retrying with exponential backoff
//
// Deletes are optionally followed by a tombstone, a message with the same key
// and a nil value, so that compacted Kafka topics drop the key.
//
// Sinks and transformers register themselves by name:
//
//	import (
//		_ "github.com/maxpert/commitlog-cdc/publisher/sink"
//		_ "github.com/maxpert/commitlog-cdc/publisher/transformer"
//	)
//
//	emitter, err := publisher.FromConfig(cfg.Config.Sink, provider)
//
// Error classes:
//
//   - retries exhausted: wraps processor.ErrTransient
//   - sink closed or emitter stopped: wraps processor.ErrSinkUnavailable
//   - errors marked with Permanent, schema and transform failures: returned as is
package publisher
