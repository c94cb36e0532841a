// Package mount formats partitions and manages mount lifecycle, including
// the chroot bind mounts the bootstrap stage needs.
package mount

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/onkernel/bootimg/lib/system"
	"github.com/samber/lo"
)

// Handle is a live mount. Child handles are bind mounts acquired under it;
// children are always released before the parent.
type Handle struct {
	Target   string
	Device   string
	children []*Handle
	released bool
}

// Children returns the child bind-mount handles in acquisition order.
func (h *Handle) Children() []*Handle {
	return append([]*Handle(nil), h.children...)
}

// mkfsTools maps supported filesystem types to their creation tool.
var mkfsTools = map[string]string{
	"ext2": "mkfs.ext2",
	"ext3": "mkfs.ext3",
	"ext4": "mkfs.ext4",
}

// SupportedFilesystems returns the filesystem types Format accepts, sorted.
func SupportedFilesystems() []string {
	types := lo.Keys(mkfsTools)
	sort.Strings(types)
	return types
}

// Provisioner formats and mounts filesystems through host tools.
type Provisioner struct {
	runner system.Runner
	logger *slog.Logger
}

func NewProvisioner(runner system.Runner, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{runner: runner, logger: logger}
}

// Format creates a filesystem of the given type on the partition device.
func (p *Provisioner) Format(ctx context.Context, device, fsType string) error {
	tool, ok := mkfsTools[fsType]
	if !ok {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFilesystem,
			fsType, strings.Join(SupportedFilesystems(), ", "))
	}

	if _, err := p.runner.Run(ctx, system.Cmd{Path: tool, Args: []string{device}}); err != nil {
		return fmt.Errorf("%w: %s on %s: %w", ErrFormat, fsType, device, err)
	}

	p.logger.InfoContext(ctx, "formatted partition", "device", device, "fs", fsType)
	return nil
}

// Mount mounts a device at target, creating the mount point if absent.
func (p *Provisioner) Mount(ctx context.Context, device, target string) (*Handle, error) {
	if err := os.MkdirAll(target, 0755); err != nil {
		return nil, fmt.Errorf("%w: create mount point: %w", ErrMount, err)
	}

	if _, err := p.runner.Run(ctx, system.Cmd{Path: "mount", Args: []string{device, target}}); err != nil {
		return nil, fmt.Errorf("%w: %s at %s: %w", ErrMount, device, target, err)
	}

	return &Handle{Target: target, Device: device}, nil
}

// Bind bind-mounts a host directory (e.g. /dev) to the same path under the
// parent mount and records it as a child of the parent handle.
func (p *Provisioner) Bind(ctx context.Context, parent *Handle, hostPath string) (*Handle, error) {
	target := filepath.Join(parent.Target, strings.TrimPrefix(hostPath, "/"))
	if err := os.MkdirAll(target, 0755); err != nil {
		return nil, fmt.Errorf("%w: create bind target: %w", ErrMount, err)
	}

	if _, err := p.runner.Run(ctx, system.Cmd{Path: "mount", Args: []string{"--bind", hostPath, target}}); err != nil {
		return nil, fmt.Errorf("%w: bind %s at %s: %w", ErrMount, hostPath, target, err)
	}

	child := &Handle{Target: target, Device: hostPath}
	parent.children = append(parent.children, child)
	return child, nil
}

// ReleaseChildren unmounts every child bind mount of the handle in reverse
// acquisition order. Releases are best-effort: a failed child is logged and
// does not stop the remaining ones.
func (p *Provisioner) ReleaseChildren(ctx context.Context, h *Handle) {
	for i := len(h.children) - 1; i >= 0; i-- {
		p.release(ctx, h.children[i])
	}
}

// Unmount releases the handle exactly once: children first, in reverse
// order, then the mount itself. Child failures are logged and skipped; the
// error from the handle's own umount, if any, is returned.
func (p *Provisioner) Unmount(ctx context.Context, h *Handle) error {
	p.ReleaseChildren(ctx, h)
	return p.release(ctx, h)
}

func (p *Provisioner) release(ctx context.Context, h *Handle) error {
	if h.released {
		return nil
	}
	h.released = true

	if _, err := p.runner.Run(ctx, system.Cmd{Path: "umount", Args: []string{h.Target}}); err != nil {
		p.logger.WarnContext(ctx, "umount failed", "target", h.Target, "error", err)
		return fmt.Errorf("umount %s: %w", h.Target, err)
	}
	return nil
}
