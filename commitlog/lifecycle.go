package commitlog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// CompressedExt is appended to segments archived by Compress
const CompressedExt = ".zst"

// Move moves a segment into destDir, replacing a file of the same name.
// Names that are not segments are skipped with a warning. The companion index
// is moved afterwards on a best-effort basis: a failure there is logged and
// does not undo the segment move.
func Move(segmentPath, destDir string) error {
	if !IsSegment(segmentPath) {
		log.Warn().
			Str("file", segmentPath).
			Msg("Cannot move file because it does not appear to be a CommitLog")
		return nil
	}

	dest := filepath.Join(destDir, filepath.Base(segmentPath))
	if err := moveFile(segmentPath, dest); err != nil {
		log.Warn().
			Err(err).
			Str("file", segmentPath).
			Str("dest_dir", destDir).
			Msg("Failed to move CommitLog file")
		return &FilesystemOperationError{Op: "move", Path: segmentPath, Dest: destDir, Err: err}
	}
	log.Info().Str("file", segmentPath).Str("dest_dir", destDir).Msg("Moved CommitLog file")

	moveIndex(segmentPath, destDir)
	return nil
}

// Delete removes a segment and, if present, its index.
// Names that are not segments are skipped with a warning, like Move.
// Index deletion failures are logged only.
func Delete(segmentPath string) error {
	if !IsSegment(segmentPath) {
		log.Warn().
			Str("file", segmentPath).
			Msg("Cannot delete file because it does not appear to be a CommitLog")
		return nil
	}

	if err := os.Remove(segmentPath); err != nil {
		log.Warn().Err(err).Str("file", segmentPath).Msg("Failed to delete CommitLog file")
		return &FilesystemOperationError{Op: "delete", Path: segmentPath, Err: err}
	}
	log.Info().Str("file", segmentPath).Msg("Deleted CommitLog file")

	removeIndex(segmentPath)
	return nil
}

// removeIndex deletes the index of segmentPath if it exists, logging failures
func removeIndex(segmentPath string) {
	indexPath := IndexPath(segmentPath)
	if !exists(indexPath) {
		return
	}
	if err := os.Remove(indexPath); err != nil {
		log.Warn().Err(err).Str("file", indexPath).Msg("Failed to delete CommitLog index file")
		return
	}
	log.Info().Str("file", indexPath).Msg("Deleted CommitLog index file")
}

// Compress writes a zstd-compressed copy of a segment into destDir as
// <name>.zst, removes the original and moves the index alongside it.
func Compress(segmentPath, destDir string) error {
	if !IsSegment(segmentPath) {
		log.Warn().
			Str("file", segmentPath).
			Msg("Cannot compress file because it does not appear to be a CommitLog")
		return nil
	}

	dest := filepath.Join(destDir, filepath.Base(segmentPath)+CompressedExt)
	if err := compressFile(segmentPath, dest); err != nil {
		log.Warn().Err(err).Str("file", segmentPath).Str("dest_dir", destDir).Msg("Failed to compress CommitLog file")
		return &FilesystemOperationError{Op: "compress", Path: segmentPath, Dest: destDir, Err: err}
	}
	if err := os.Remove(segmentPath); err != nil {
		log.Warn().Err(err).Str("file", segmentPath).Msg("Failed to remove CommitLog file after compression")
		return &FilesystemOperationError{Op: "compress", Path: segmentPath, Dest: destDir, Err: err}
	}
	log.Info().Str("file", segmentPath).Str("dest", dest).Msg("Compressed CommitLog file")

	moveIndex(segmentPath, destDir)
	return nil
}

// Prune deletes the oldest archived segments in dir, plain or compressed,
// so that at most keep remain. Returns the number of segments deleted.
func Prune(dir string, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be >= 0, got %d", keep)
	}

	archived, err := listArchived(dir)
	if err != nil {
		return 0, err
	}
	if len(archived) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, path := range archived[:len(archived)-keep] {
		if err := deleteArchived(path); err != nil {
			return deleted, err
		}
		deleted++
	}

	log.Debug().Str("dir", dir).Int("deleted", deleted).Int("kept", keep).Msg("Pruned archived CommitLog files")
	return deleted, nil
}

// listArchived returns the segments and compressed segments in dir, oldest
// first
func listArchived(dir string) ([]string, error) {
	paths, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &InvalidDirectoryError{Path: dir, Err: err}
	}
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), CompressedExt)
		if ok && entry.Type().IsRegular() && IsSegment(name) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return archivedTimestamp(paths[i]) < archivedTimestamp(paths[j])
	})
	return paths, nil
}

func archivedTimestamp(path string) int64 {
	ts, _ := ParseTimestamp(strings.TrimSuffix(path, CompressedExt), SegmentKind)
	return ts
}

func deleteArchived(path string) error {
	segment, compressed := strings.CutSuffix(path, CompressedExt)
	if !compressed {
		return Delete(path)
	}

	if err := os.Remove(path); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to delete compressed CommitLog file")
		return &FilesystemOperationError{Op: "delete", Path: path, Err: err}
	}
	log.Info().Str("file", path).Msg("Deleted compressed CommitLog file")

	removeIndex(segment)
	return nil
}

// moveIndex moves the index of segmentPath into destDir if it exists
func moveIndex(segmentPath, destDir string) {
	indexPath := IndexPath(segmentPath)
	if !exists(indexPath) {
		return
	}

	if err := moveFile(indexPath, filepath.Join(destDir, filepath.Base(indexPath))); err != nil {
		log.Warn().
			Err(err).
			Str("file", indexPath).
			Str("dest_dir", destDir).
			Msg("Failed to move CommitLog index file")
		return
	}
	log.Info().Str("file", indexPath).Str("dest_dir", destDir).Msg("Moved CommitLog index file")
}

// moveFile renames src to dest, replacing dest. Falls back to copy and remove
// when src and dest live on different filesystems.
func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFile copies src to a temporary file next to dest and renames it into
// place, so dest is either the old file or the complete new one.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func compressFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("file", path).Msg("Failed to stat CommitLog index file")
	}
	return false
}
