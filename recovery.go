package main

import (
	"path/filepath"

	"github.com/maxpert/commitlog-cdc/commitlog"
	"github.com/maxpert/commitlog-cdc/offset"
	"github.com/maxpert/commitlog-cdc/processor"
	"github.com/rs/zerolog/log"
)

// segmentState is the part of the offset store recovery needs
type segmentState interface {
	Get(segment string) (offset.SegmentOffset, bool, error)
	Segments() []offset.SegmentOffset
	Forget(segment string) error
}

// recoverSegments finalizes segments left in cdcDir that were committed as
// complete before the agent stopped, then forgets complete entries whose
// segment has already left cdcDir. Failures are logged; a segment that could
// not be finalized is retried on the next start.
func recoverSegments(cdcDir string, store segmentState, finalizer processor.Finalizer) (finalized, forgotten int) {
	paths, err := commitlog.ListSegments(cdcDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cdcDir).Msg("Cannot list segments for recovery")
		return 0, 0
	}

	present := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		present[filepath.Base(path)] = struct{}{}

		entry, ok, err := store.Get(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Cannot read committed offsets")
			continue
		}
		if !ok || !entry.Complete {
			continue
		}

		if err := finalizer.Finalize(path, true); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to finalize recovered segment")
			continue
		}
		delete(present, filepath.Base(path))
		finalized++
	}

	for _, entry := range store.Segments() {
		if !entry.Complete {
			continue
		}
		if _, ok := present[entry.Segment]; ok {
			continue
		}
		if err := store.Forget(entry.Segment); err != nil {
			log.Warn().Err(err).Str("segment", entry.Segment).Msg("Failed to forget finalized segment")
			continue
		}
		forgotten++
	}

	if finalized > 0 || forgotten > 0 {
		log.Info().
			Int("finalized", finalized).
			Int("forgotten", forgotten).
			Msg("Recovered segments from previous run")
	}
	return finalized, forgotten
}
