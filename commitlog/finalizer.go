package commitlog

import (
	"fmt"
	"os"

	"github.com/maxpert/commitlog-cdc/telemetry"
	"github.com/rs/zerolog/log"
)

// Policy decides what happens to a segment once every record read from it has
// been accepted by the sink
type Policy string

const (
	PolicyArchive  Policy = "archive"  // Move into the archive directory
	PolicyDelete   Policy = "delete"   // Delete segment and index
	PolicyCompress Policy = "compress" // zstd into the archive directory
)

// ParsePolicy validates a policy name from configuration
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyArchive, PolicyDelete, PolicyCompress:
		return p, nil
	default:
		return "", fmt.Errorf("unknown commit log policy: %q", s)
	}
}

// FinalizerConfig configures a Finalizer
type FinalizerConfig struct {
	Policy        Policy
	ArchiveDir    string // Required for archive and compress
	ErrorDir      string // Segments the reader failed on; empty leaves them in place
	ArchiveRetain int    // Segments, plain or compressed, kept in ArchiveDir (0 = unlimited)
}

// Finalizer applies the configured lifecycle action to fully consumed segments
type Finalizer struct {
	config FinalizerConfig
}

// NewFinalizer validates config and creates the target directories
func NewFinalizer(config FinalizerConfig) (*Finalizer, error) {
	if config.Policy == "" {
		config.Policy = PolicyArchive
	}
	if _, err := ParsePolicy(string(config.Policy)); err != nil {
		return nil, err
	}
	if config.Policy != PolicyDelete && config.ArchiveDir == "" {
		return nil, fmt.Errorf("archive directory is required for policy %s", config.Policy)
	}
	if config.ArchiveRetain < 0 {
		return nil, fmt.Errorf("archive retain must be >= 0")
	}

	for _, dir := range []string{config.ArchiveDir, config.ErrorDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &Finalizer{config: config}, nil
}

// Finalize archives, compresses or deletes a segment the reader fully drained.
// Segments the reader failed on go to the error directory instead.
func (f *Finalizer) Finalize(segment string, success bool) error {
	if !success {
		if f.config.ErrorDir == "" {
			log.Warn().Str("file", segment).Msg("CommitLog processing failed, leaving file in place")
			return nil
		}
		if err := Move(segment, f.config.ErrorDir); err != nil {
			return err
		}
		telemetry.SegmentsFinalizedTotal.With("error").Inc()
		return nil
	}

	var err error
	switch f.config.Policy {
	case PolicyDelete:
		err = Delete(segment)
	case PolicyCompress:
		err = Compress(segment, f.config.ArchiveDir)
	default:
		err = Move(segment, f.config.ArchiveDir)
	}
	if err != nil {
		return err
	}
	telemetry.SegmentsFinalizedTotal.With(string(f.config.Policy)).Inc()

	if f.config.Policy != PolicyDelete && f.config.ArchiveRetain > 0 {
		if _, err := Prune(f.config.ArchiveDir, f.config.ArchiveRetain); err != nil {
			// Archive retention is housekeeping, the segment itself is finalized
			log.Warn().Err(err).Str("dir", f.config.ArchiveDir).Msg("Failed to prune archived CommitLog files")
		}
	}
	return nil
}
