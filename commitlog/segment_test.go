package commitlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0644))
	return path
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want int64
	}{
		{"CommitLog-6-123.log", SegmentKind, 123},
		{"CommitLog-7-1700000000000.log", SegmentKind, 1700000000000},
		{"/var/lib/cassandra/cdc_raw/CommitLog-6-42.log", SegmentKind, 42},
		{"CommitLog-6-123_cdc.idx", IndexKind, 123},
		{"relative/CommitLog-6-9_cdc.idx", IndexKind, 9},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tc.name, tc.kind)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ts)
		})
	}
}

func TestParseTimestamp_NotASegment(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
	}{
		{"CommitLog-6-123.txt", SegmentKind},
		{"CommitLog-6-123xlog", SegmentKind},
		{"commitlog-6-123.log", SegmentKind},
		{"CommitLog-6-.log", SegmentKind},
		{"CommitLog-a-123.log", SegmentKind},
		{"CommitLog-6-123.log.zst", SegmentKind},
		{"CommitLog-6-99999999999999999999.log", SegmentKind},
		{"CommitLog-6-123.log", IndexKind},
		{"CommitLog-6-123_cdc.idx", SegmentKind},
		{"", SegmentKind},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTimestamp(tc.name, tc.kind)
			var notSegment *NotASegmentError
			require.ErrorAs(t, err, &notSegment)
			assert.Equal(t, tc.name, notSegment.Name)
			assert.Equal(t, tc.kind, notSegment.Kind)
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"CommitLog-6-1.log", "CommitLog-6-2.log", -1},
		{"CommitLog-6-2.log", "CommitLog-6-1.log", 1},
		{"CommitLog-6-10.log", "CommitLog-6-9.log", 1},
		{"CommitLog-6-5.log", "CommitLog-7-5.log", 0},
		{"CommitLog-6-5.log", "CommitLog-6-5.log", 0},
		{"/a/CommitLog-6-5.log", "/b/CommitLog-6-6.log", -1},
	}

	for _, tc := range tests {
		got, err := Compare(tc.a, tc.b, SegmentKind)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s vs %s", tc.a, tc.b)
	}
}

func TestCompare_IdenticalWithoutParsing(t *testing.T) {
	got, err := Compare("not-a-segment", "not-a-segment", SegmentKind)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = Compare("not-a-segment", "CommitLog-6-1.log", SegmentKind)
	var notSegment *NotASegmentError
	assert.ErrorAs(t, err, &notSegment)
}

func TestCompare_TotalOrder(t *testing.T) {
	names := []string{
		"CommitLog-6-300.log",
		"CommitLog-6-1.log",
		"CommitLog-6-20.log",
		"CommitLog-6-4000.log",
	}

	for _, a := range names {
		for _, b := range names {
			ab, err := Compare(a, b, SegmentKind)
			require.NoError(t, err)
			ba, err := Compare(b, a, SegmentKind)
			require.NoError(t, err)
			assert.Equal(t, -ab, ba, "antisymmetry for %s, %s", a, b)
		}
	}
}

func TestSort(t *testing.T) {
	paths := []string{
		"/d/CommitLog-6-300_cdc.idx",
		"/d/CommitLog-6-1_cdc.idx",
		"/d/CommitLog-6-20_cdc.idx",
	}
	require.NoError(t, Sort(paths, IndexKind))
	assert.Equal(t, []string{
		"/d/CommitLog-6-1_cdc.idx",
		"/d/CommitLog-6-20_cdc.idx",
		"/d/CommitLog-6-300_cdc.idx",
	}, paths)

	bad := []string{"/d/CommitLog-6-2.log", "/d/junk"}
	assert.Error(t, Sort(bad, SegmentKind))
	assert.Equal(t, []string{"/d/CommitLog-6-2.log", "/d/junk"}, bad)
}

func TestListSegmentsAndIndexes(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "CommitLog-6-30.log")
	touch(t, dir, "CommitLog-6-10.log")
	touch(t, dir, "CommitLog-6-10_cdc.idx")
	touch(t, dir, "CommitLog-6-20.log")
	touch(t, dir, "README.txt")
	touch(t, dir, "CommitLog-6-40.log.zst")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "CommitLog-6-50.log"), 0755))

	segments, err := ListSegments(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "CommitLog-6-10.log"),
		filepath.Join(dir, "CommitLog-6-20.log"),
		filepath.Join(dir, "CommitLog-6-30.log"),
	}, segments)

	indexes, err := ListIndexes(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "CommitLog-6-10_cdc.idx")}, indexes)
}

func TestListSegments_EmptyDir(t *testing.T) {
	segments, err := ListSegments(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestListSegments_InvalidDirectory(t *testing.T) {
	dir := t.TempDir()
	file := touch(t, dir, "CommitLog-6-1.log")

	_, err := ListSegments(file)
	var invalid *InvalidDirectoryError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, file, invalid.Path)
	assert.Nil(t, invalid.Err)

	_, err = ListIndexes(filepath.Join(dir, "missing"))
	require.ErrorAs(t, err, &invalid)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestIndexPath(t *testing.T) {
	assert.Equal(t, "CommitLog-6-123_cdc.idx", IndexPath("CommitLog-6-123.log"))
	assert.Equal(t,
		filepath.Join("/var/lib/cassandra.d/cdc_raw", "CommitLog-6-123_cdc.idx"),
		IndexPath("/var/lib/cassandra.d/cdc_raw/CommitLog-6-123.log"))
}
