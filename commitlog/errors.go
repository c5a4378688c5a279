package commitlog

import "fmt"

// NotASegmentError is returned when a filename does not match the commit log
// naming pattern required by the caller
type NotASegmentError struct {
	Name string
	Kind Kind
}

func (e *NotASegmentError) Error() string {
	return fmt.Sprintf("%s does not appear to be a commit log %s", e.Name, e.Kind)
}

// InvalidDirectoryError is returned when a listing is requested on a path that
// is not a directory
type InvalidDirectoryError struct {
	Path string
	Err  error // Stat error, nil when the path exists but is a file
}

func (e *InvalidDirectoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("given directory does not exist: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("given path is not a directory: %s", e.Path)
}

func (e *InvalidDirectoryError) Unwrap() error {
	return e.Err
}

// FilesystemOperationError wraps an OS level failure while moving, compressing
// or deleting a segment file
type FilesystemOperationError struct {
	Op   string // "move", "delete" or "compress"
	Path string
	Dest string // Destination directory, empty for deletes
	Err  error
}

func (e *FilesystemOperationError) Error() string {
	if e.Dest != "" {
		return fmt.Sprintf("failed to %s commit log %s to %s: %v", e.Op, e.Path, e.Dest, e.Err)
	}
	return fmt.Sprintf("failed to %s commit log %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemOperationError) Unwrap() error {
	return e.Err
}
