package mount

import "errors"

var (
	// ErrUnsupportedFilesystem is returned for filesystem types with no
	// registered creation tool.
	ErrUnsupportedFilesystem = errors.New("unsupported filesystem type")

	// ErrFormat is returned when the filesystem creation tool fails.
	ErrFormat = errors.New("format failed")

	// ErrMount is returned when a mount or bind mount cannot be acquired.
	ErrMount = errors.New("mount failed")
)
