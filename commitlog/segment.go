// Package commitlog names, orders and finalizes commit log segment files.
//
// A segment is named CommitLog-<version>-<timestamp>.log and its companion
// index CommitLog-<version>-<timestamp>_cdc.idx. The timestamp group totally
// orders segments; two names with the same timestamp are the same segment
// regardless of version. Segment and index are independent files, so every
// lifecycle operation treats the index as best effort.
package commitlog

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind selects which filename pattern an operation applies
type Kind int

const (
	SegmentKind Kind = iota
	IndexKind
)

const (
	segmentExt  = ".log"
	indexSuffix = "_cdc.idx"
)

var (
	segmentPattern = regexp.MustCompile(`^CommitLog-\d+-(\d+)\.log$`)
	indexPattern   = regexp.MustCompile(`^CommitLog-\d+-(\d+)_cdc\.idx$`)
)

func (k Kind) String() string {
	if k == IndexKind {
		return "index"
	}
	return "segment"
}

func (k Kind) pattern() *regexp.Regexp {
	if k == IndexKind {
		return indexPattern
	}
	return segmentPattern
}

// IsSegment reports whether the base name of path matches the segment pattern
func IsSegment(path string) bool {
	return segmentPattern.MatchString(filepath.Base(path))
}

// ParseTimestamp extracts the ordering timestamp from a segment or index name.
// Only the base name of a path is inspected.
func ParseTimestamp(name string, kind Kind) (int64, error) {
	base := filepath.Base(name)
	m := kind.pattern().FindStringSubmatch(base)
	if m == nil {
		return 0, &NotASegmentError{Name: name, Kind: kind}
	}

	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// Digit group overflows int64
		return 0, &NotASegmentError{Name: name, Kind: kind}
	}
	return ts, nil
}

// Compare orders two segment (or index) names by timestamp.
// Identical names compare equal without being parsed.
// Returns -1 if a is older, 0 if they are the same segment, 1 if a is newer.
func Compare(a, b string, kind Kind) (int, error) {
	if a == b {
		return 0, nil
	}

	tsA, err := ParseTimestamp(a, kind)
	if err != nil {
		return 0, err
	}
	tsB, err := ParseTimestamp(b, kind)
	if err != nil {
		return 0, err
	}

	switch {
	case tsA < tsB:
		return -1, nil
	case tsA > tsB:
		return 1, nil
	default:
		return 0, nil
	}
}

// Sort orders paths in place from oldest to newest.
// Fails without modifying paths if any entry does not match kind.
func Sort(paths []string, kind Kind) error {
	stamps := make(map[string]int64, len(paths))
	for _, p := range paths {
		ts, err := ParseTimestamp(p, kind)
		if err != nil {
			return err
		}
		stamps[p] = ts
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return stamps[paths[i]] < stamps[paths[j]]
	})
	return nil
}

// ListSegments returns the segment files in dir, oldest first
func ListSegments(dir string) ([]string, error) {
	return list(dir, SegmentKind)
}

// ListIndexes returns the index files in dir, oldest first
func ListIndexes(dir string) ([]string, error) {
	return list(dir, IndexKind)
}

func list(dir string, kind Kind) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &InvalidDirectoryError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &InvalidDirectoryError{Path: dir}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &InvalidDirectoryError{Path: dir, Err: err}
	}

	pattern := kind.pattern()
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !pattern.MatchString(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	// Every entry matched the pattern, Sort cannot fail here
	_ = Sort(paths, kind)
	return paths, nil
}

// IndexPath returns the companion index path of a segment
func IndexPath(segmentPath string) string {
	dir, base := filepath.Split(segmentPath)
	return filepath.Join(dir, strings.TrimSuffix(base, segmentExt)+indexSuffix)
}
