// Package disk creates raw disk images and binds them to loop devices.
package disk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/onkernel/bootimg/lib/system"
)

// Image is a raw disk image file with an MBR partition table.
type Image struct {
	Path      string
	SizeBytes int64
}

// sfdiskScript is the partition layout fed to sfdisk on stdin:
// a DOS (MBR) label with a single Linux partition starting at sector 2048,
// spanning the rest of the device, flagged bootable.
const sfdiskScript = "label: dos\nstart=2048, type=83, bootable\n"

// Allocator creates zero-filled disk image files and writes their
// partition tables.
type Allocator struct {
	runner system.Runner
	logger *slog.Logger
}

func NewAllocator(runner system.Runner, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{runner: runner, logger: logger}
}

// Allocate creates a file of exactly sizeMiB MiB at path and writes a
// single-partition MBR table into it. On any failure the partial file is
// removed so no orphan artifact remains.
func (a *Allocator) Allocate(ctx context.Context, path string, sizeMiB int64) (*Image, error) {
	if sizeMiB <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d MiB", ErrAllocation, sizeMiB)
	}

	sizeBytes := sizeMiB << 20
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create image file: %w", ErrAllocation, err)
	}

	// Truncate produces a sparse file: every byte reads back zero without
	// writing sizeMiB of data up front.
	if err := f.Truncate(sizeBytes); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: size image file: %w", ErrAllocation, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: close image file: %w", ErrAllocation, err)
	}

	a.logger.InfoContext(ctx, "allocated disk image", "path", path, "size_mib", sizeMiB)

	if _, err := a.runner.Run(ctx, system.Cmd{
		Path:  "sfdisk",
		Args:  []string{path},
		Stdin: strings.NewReader(sfdiskScript),
	}); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: write partition table: %w", ErrAllocation, err)
	}

	return &Image{Path: path, SizeBytes: sizeBytes}, nil
}
