package commitlog

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMove_SegmentAndIndex(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	segment := touch(t, src, "CommitLog-6-123.log")
	touch(t, src, "CommitLog-6-123_cdc.idx")

	require.NoError(t, Move(segment, dest))

	destSegments, err := ListSegments(dest)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "CommitLog-6-123.log")}, destSegments)

	destIndexes, err := ListIndexes(dest)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "CommitLog-6-123_cdc.idx")}, destIndexes)

	srcSegments, err := ListSegments(src)
	require.NoError(t, err)
	assert.Empty(t, srcSegments)
	srcIndexes, err := ListIndexes(src)
	require.NoError(t, err)
	assert.Empty(t, srcIndexes)
}

func TestMove_WithoutIndex(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	segment := touch(t, src, "CommitLog-6-7.log")

	require.NoError(t, Move(segment, dest))
	assert.FileExists(t, filepath.Join(dest, "CommitLog-6-7.log"))
	assert.NoFileExists(t, segment)
}

func TestMove_ReplacesExisting(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	segment := touch(t, src, "CommitLog-6-7.log")
	require.NoError(t, os.WriteFile(filepath.Join(dest, "CommitLog-6-7.log"), []byte("stale"), 0644))

	require.NoError(t, Move(segment, dest))

	data, err := os.ReadFile(filepath.Join(dest, "CommitLog-6-7.log"))
	require.NoError(t, err)
	assert.Equal(t, "CommitLog-6-7.log", string(data))
}

func TestMove_NotASegmentIsNoop(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	other := touch(t, src, "notes.txt")

	require.NoError(t, Move(other, dest))
	assert.FileExists(t, other)
	assert.NoFileExists(t, filepath.Join(dest, "notes.txt"))
}

func TestMove_MissingSegment(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	err := Move(filepath.Join(src, "CommitLog-6-1.log"), dest)
	var fsErr *FilesystemOperationError
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, "move", fsErr.Op)
	assert.Equal(t, dest, fsErr.Dest)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMove_IndexFailureDoesNotRollBack(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory replacement semantics differ on windows")
	}

	src := t.TempDir()
	dest := t.TempDir()
	segment := touch(t, src, "CommitLog-6-8.log")
	touch(t, src, "CommitLog-6-8_cdc.idx")

	// A non-empty directory with the index name blocks the index rename
	blocker := filepath.Join(dest, "CommitLog-6-8_cdc.idx")
	require.NoError(t, os.Mkdir(blocker, 0755))
	touch(t, blocker, "keep")

	require.NoError(t, Move(segment, dest))
	assert.FileExists(t, filepath.Join(dest, "CommitLog-6-8.log"))
	assert.FileExists(t, filepath.Join(src, "CommitLog-6-8_cdc.idx"))
}

func TestDelete_SegmentAndIndex(t *testing.T) {
	dir := t.TempDir()
	segment := touch(t, dir, "CommitLog-6-5.log")
	index := touch(t, dir, "CommitLog-6-5_cdc.idx")

	require.NoError(t, Delete(segment))
	assert.NoFileExists(t, segment)
	assert.NoFileExists(t, index)
}

func TestDelete_WithoutIndex(t *testing.T) {
	dir := t.TempDir()
	segment := touch(t, dir, "CommitLog-6-5.log")

	require.NoError(t, Delete(segment))
	assert.NoFileExists(t, segment)
}

func TestDelete_NotASegmentIsNoop(t *testing.T) {
	dir := t.TempDir()
	other := touch(t, dir, "CommitLog-6-5.log.bak")

	require.NoError(t, Delete(other))
	assert.FileExists(t, other)
}

func TestDelete_MissingSegment(t *testing.T) {
	err := Delete(filepath.Join(t.TempDir(), "CommitLog-6-5.log"))
	var fsErr *FilesystemOperationError
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, "delete", fsErr.Op)
}

func TestCompress(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	segment := filepath.Join(src, "CommitLog-6-77.log")
	payload := []byte("mutation frames mutation frames mutation frames")
	require.NoError(t, os.WriteFile(segment, payload, 0644))
	touch(t, src, "CommitLog-6-77_cdc.idx")

	require.NoError(t, Compress(segment, dest))
	assert.NoFileExists(t, segment)
	assert.FileExists(t, filepath.Join(dest, "CommitLog-6-77_cdc.idx"))

	compressed, err := os.ReadFile(filepath.Join(dest, "CommitLog-6-77.log"+CompressedExt))
	require.NoError(t, err)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)

	// Compressed archives are not live segments
	segments, err := ListSegments(dest)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"CommitLog-6-1.log", "CommitLog-6-2.log", "CommitLog-6-3.log", "CommitLog-6-4.log"} {
		touch(t, dir, name)
	}
	touch(t, dir, "CommitLog-6-1_cdc.idx")

	deleted, err := Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := ListSegments(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "CommitLog-6-3.log"),
		filepath.Join(dir, "CommitLog-6-4.log"),
	}, remaining)
	assert.NoFileExists(t, filepath.Join(dir, "CommitLog-6-1_cdc.idx"))

	deleted, err = Prune(dir, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	_, err = Prune(dir, -1)
	assert.Error(t, err)
}

func TestPrune_CompressedArchives(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "CommitLog-6-1.log"+CompressedExt)
	touch(t, dir, "CommitLog-6-1_cdc.idx")
	touch(t, dir, "CommitLog-6-2.log")
	touch(t, dir, "CommitLog-6-3.log"+CompressedExt)
	notes := touch(t, dir, "notes.txt"+CompressedExt)

	deleted, err := Prune(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	assert.NoFileExists(t, filepath.Join(dir, "CommitLog-6-1.log"+CompressedExt))
	assert.NoFileExists(t, filepath.Join(dir, "CommitLog-6-1_cdc.idx"))
	assert.NoFileExists(t, filepath.Join(dir, "CommitLog-6-2.log"))
	assert.FileExists(t, filepath.Join(dir, "CommitLog-6-3.log"+CompressedExt))
	assert.FileExists(t, notes)
}
