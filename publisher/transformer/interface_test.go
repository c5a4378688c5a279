package transformer

import "github.com/maxpert/commitlog-cdc/publisher"

// Compile-time interface verification
var _ publisher.Transformer = (*DebeziumTransformer)(nil)
