package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/onkernel/bootimg/lib/mount"
	"github.com/onkernel/bootimg/lib/system"
)

// debianMarkers signal an apt-managed distribution under the mounted root.
var debianMarkers = []string{"etc/debian_version", "etc/apt/sources.list"}

const installScriptName = "install_kernel.sh"

const installScript = `#!/bin/sh
set -e
export DEBIAN_FRONTEND=noninteractive
apt-get update
apt-get install -y linux-image-generic systemd-sysv
apt-get install -y extlinux syslinux-common
`

// fallbackInit is written to sbin/init when the image provides none: mount
// the virtual filesystems, print a banner, drop to a shell.
const fallbackInit = `#!/bin/sh
mount -t proc proc /proc
mount -t sysfs sysfs /sys
mount -t devtmpfs devtmpfs /dev
echo "bootimg: system booted"
exec /bin/sh
`

// detectPackageManaged reports whether the mounted root looks like an
// apt-managed distribution that can take a kernel package install.
func detectPackageManaged(root string) bool {
	for _, marker := range debianMarkers {
		if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
			return true
		}
	}
	return false
}

// installKernel runs a non-interactive kernel and init package install in a
// chroot of the mounted root, with /dev, /proc and /sys bound underneath
// it. The binds are released, children before parent, before returning.
func (m *manager) installKernel(ctx context.Context, h *mount.Handle) error {
	if !detectPackageManaged(h.Target) {
		m.logger.InfoContext(ctx, "no package manager metadata, skipping kernel install", "root", h.Target)
		return nil
	}

	for _, host := range []string{"/dev", "/proc", "/sys"} {
		if _, err := m.prov.Bind(ctx, h, host); err != nil {
			m.prov.ReleaseChildren(ctx, h)
			return err
		}
	}
	defer m.prov.ReleaseChildren(ctx, h)

	scriptPath := filepath.Join(h.Target, installScriptName)
	if err := os.WriteFile(scriptPath, []byte(installScript), 0755); err != nil {
		return fmt.Errorf("write install script: %w", err)
	}
	defer os.Remove(scriptPath)

	m.logger.InfoContext(ctx, "installing kernel and init in chroot", "root", h.Target)
	_, err := m.runner.Run(ctx, system.Cmd{
		Path: "chroot",
		Args: []string{h.Target, "/" + installScriptName},
	})
	return err
}

// ensureInit writes the fallback init if the image has no executable at the
// conventional init path.
func (m *manager) ensureInit(ctx context.Context, root string) error {
	initPath := filepath.Join(root, "sbin", "init")
	if _, err := os.Lstat(initPath); err == nil {
		return nil
	}

	m.logger.InfoContext(ctx, "no init in image, writing minimal init", "path", initPath)
	if err := os.MkdirAll(filepath.Dir(initPath), 0755); err != nil {
		return fmt.Errorf("create init directory: %w", err)
	}
	if err := os.WriteFile(initPath, []byte(fallbackInit), 0755); err != nil {
		return fmt.Errorf("write init: %w", err)
	}
	return nil
}
