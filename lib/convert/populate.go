package convert

import (
	"context"
	"fmt"

	"github.com/onkernel/bootimg/lib/mount"
	"github.com/onkernel/bootimg/lib/oci"
	"github.com/onkernel/bootimg/lib/system"
)

// populate unpacks the rootfs archive into the mounted partition. The
// system tar preserves permissions, ownership, symlinks and device nodes,
// which an unprivileged in-process extractor cannot. A failure leaves a
// partial tree behind; the caller treats that as invalidating the image.
func (m *manager) populate(ctx context.Context, archive *oci.RootfsArchive, h *mount.Handle) error {
	m.logger.InfoContext(ctx, "extracting rootfs", "archive", archive.Path, "target", h.Target)

	if _, err := m.runner.Run(ctx, system.Cmd{
		Path: "tar",
		Args: []string{"--numeric-owner", "-xpf", archive.Path, "-C", h.Target},
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return nil
}
