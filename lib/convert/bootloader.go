package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/onkernel/bootimg/lib/mount"
	"github.com/onkernel/bootimg/lib/system"
)

// extlinuxConf is the boot menu written into the image: one default entry,
// a 3 second timeout, root on the first disk partition, console on the
// primary display and on serial at 115200 baud.
const extlinuxConf = `DEFAULT linux
TIMEOUT 30
PROMPT 1

LABEL linux
    MENU LABEL Boot Linux
    LINUX /vmlinuz
    INITRD /initrd.img
    APPEND root=/dev/sda1 rw console=tty0 console=ttyS0,115200n8
`

// mbrBootCodeSize is the boot-code prefix of the first sector. The bytes
// from here to the 512-byte boundary hold the partition table and must
// survive the boot-sector write.
const mbrBootCodeSize = 440

// installBootloader puts the extlinux files and boot menu into the mounted
// filesystem. It must run before unmount; writeBootSector depends on these
// files already being inside the partition.
func (m *manager) installBootloader(ctx context.Context, h *mount.Handle) error {
	extDir := filepath.Join(h.Target, "boot", "extlinux")
	if err := os.MkdirAll(extDir, 0755); err != nil {
		return fmt.Errorf("%w: create boot directory: %w", ErrBootloader, err)
	}

	if _, err := m.runner.Run(ctx, system.Cmd{
		Path: "extlinux",
		Args: []string{"--install", extDir},
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrBootloader, err)
	}

	if err := os.WriteFile(filepath.Join(extDir, "extlinux.conf"), []byte(extlinuxConf), 0644); err != nil {
		return fmt.Errorf("%w: write boot config: %w", ErrBootloader, err)
	}
	return nil
}

// writeBootSector overwrites the first 440 bytes of the flat image file
// with legacy boot code, preserving the partition table that follows. Must
// run only after the filesystem is unmounted and the loop device detached.
func writeBootSector(imagePath, mbrPath string) error {
	blob, err := os.ReadFile(mbrPath)
	if err != nil {
		return fmt.Errorf("%w: read boot code blob: %w", ErrBootloader, err)
	}
	if len(blob) < mbrBootCodeSize {
		return fmt.Errorf("%w: boot code blob %s is %d bytes, need %d", ErrBootloader, mbrPath, len(blob), mbrBootCodeSize)
	}

	f, err := os.OpenFile(imagePath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: open image: %w", ErrBootloader, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(blob[:mbrBootCodeSize], 0); err != nil {
		return fmt.Errorf("%w: write boot code: %w", ErrBootloader, err)
	}
	return nil
}
