package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter filters records by keyspace and table glob patterns
type GlobFilter struct {
	tableGlobs    []glob.Glob
	keyspaceGlobs []glob.Glob
}

// NewGlobFilter compiles the table and keyspace patterns. An empty list
// matches everything. A table pattern containing a dot is matched against
// "keyspace.table".
func NewGlobFilter(tablePatterns, keyspacePatterns []string) (*GlobFilter, error) {
	tables, err := compileGlobs("table", tablePatterns)
	if err != nil {
		return nil, err
	}
	keyspaces, err := compileGlobs("keyspace", keyspacePatterns)
	if err != nil {
		return nil, err
	}
	return &GlobFilter{tableGlobs: tables, keyspaceGlobs: keyspaces}, nil
}

func compileGlobs(kind string, patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, len(patterns))
	for i, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", kind, pattern, err)
		}
		globs[i] = g
	}
	return globs, nil
}

// Match returns true if keyspace and table match the configured patterns
func (f *GlobFilter) Match(keyspace, table string) bool {
	if !matchAny(f.keyspaceGlobs, keyspace) {
		return false
	}
	if len(f.tableGlobs) == 0 {
		return true
	}

	qualified := keyspace + "." + table
	for _, g := range f.tableGlobs {
		if g.Match(table) || g.Match(qualified) {
			return true
		}
	}
	return false
}

func matchAny(globs []glob.Glob, s string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
