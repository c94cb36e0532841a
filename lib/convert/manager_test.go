package convert

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/onkernel/bootimg/lib/oci"
	"github.com/onkernel/bootimg/lib/paths"
	"github.com/onkernel/bootimg/lib/system"
	"github.com/onkernel/bootimg/lib/system/systemtest"
	"github.com/stretchr/testify/require"
)

type fakeExporter struct {
	err     error
	exports int
}

func (f *fakeExporter) Export(ctx context.Context, ref *oci.NormalizedRef, destDir string) (*oci.RootfsArchive, error) {
	f.exports++
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(destDir, "rootfs.tar")
	if err := os.WriteFile(path, []byte("rootfs"), 0644); err != nil {
		return nil, err
	}
	return &oci.RootfsArchive{Path: path, Ref: ref.String()}, nil
}

// newTestManager builds a manager over a scripted runner: losetup answers
// with a fake loop device whose partition node exists, and an MBR blob is
// staged for the finalize stage.
func newTestManager(t *testing.T) (*manager, *systemtest.Runner, *paths.Paths) {
	t.Helper()

	runner := systemtest.New()
	loopDev := filepath.Join(t.TempDir(), "loop0")
	require.NoError(t, os.WriteFile(loopDev, nil, 0644))
	require.NoError(t, os.WriteFile(loopDev+"p1", nil, 0644))
	runner.Handle("losetup", func(_ context.Context, cmd system.Cmd) ([]byte, error) {
		if cmd.Args[0] == "-d" {
			return nil, nil
		}
		return []byte(loopDev + "\n"), nil
	})

	mbrPath := filepath.Join(t.TempDir(), "mbr.bin")
	require.NoError(t, os.WriteFile(mbrPath, bytes.Repeat([]byte{0xFA}, 440), 0644))

	p := paths.New(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr, err := NewManager(p, Config{MBRPath: mbrPath}, runner, &fakeExporter{}, logger, nil)
	require.NoError(t, err)
	return mgr.(*manager), runner, p
}

// commandIndex returns the position of the first recorded command starting
// with prefix, or -1.
func commandIndex(lines []string, prefix string) int {
	for i, line := range lines {
		if len(line) >= len(prefix) && line[:len(prefix)] == prefix {
			return i
		}
	}
	return -1
}

func TestConvertSuccess(t *testing.T) {
	m, runner, p := newTestManager(t)

	res := m.Convert(context.Background(), Request{
		ImageRef:   "alpine:latest",
		SizeMiB:    1024,
		Filesystem: "ext4",
	})

	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, "docker.io/library/alpine:latest", res.ImageRef)
	require.Equal(t, int64(1024), res.SizeMiB)
	require.Equal(t, p.Artifact(DefaultOutputName), res.OutputPath)
	require.Empty(t, res.Stage)

	info, err := os.Stat(res.OutputPath)
	require.NoError(t, err)
	require.Equal(t, int64(1024)<<20, info.Size())

	// Boot code was written into the flat file.
	f, err := os.Open(res.OutputPath)
	require.NoError(t, err)
	defer f.Close()
	head := make([]byte, 440)
	_, err = io.ReadFull(f, head)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0xFA}, 440), head)

	// Stage ordering: partition, attach, format, mount, populate,
	// bootloader, then unmount before detach.
	lines := runner.CommandLines()
	order := []string{"sfdisk", "losetup -P", "mkfs.ext4", "mount ", "tar ", "extlinux ", "umount ", "losetup -d"}
	last := -1
	for _, prefix := range order {
		idx := commandIndex(lines, prefix)
		require.Greater(t, idx, last, "expected %q after previous stage in %v", prefix, lines)
		last = idx
	}

	// The scratch workspace is gone; the artifact is listed.
	_, err = os.Stat(p.Workspace("bootable_system"))
	require.True(t, os.IsNotExist(err))

	artifacts, err := m.ListArtifacts(context.Background())
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.Equal(t, DefaultOutputName, artifacts[0].Filename)
	require.Equal(t, int64(1024), artifacts[0].SizeMiB)
}

func TestConvertAppliesDefaults(t *testing.T) {
	m, _, _ := newTestManager(t)

	res := m.Convert(context.Background(), Request{ImageRef: "alpine"})
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, int64(DefaultSizeMiB), res.SizeMiB)
	require.Equal(t, DefaultFilesystem, res.Filesystem)
	require.Equal(t, DefaultOutputName, filepath.Base(res.OutputPath))
}

func TestConvertUnsupportedFilesystem(t *testing.T) {
	m, runner, _ := newTestManager(t)

	res := m.Convert(context.Background(), Request{
		ImageRef:   "alpine:latest",
		SizeMiB:    64,
		Filesystem: "btrfs",
	})

	require.Equal(t, StatusError, res.Status)
	require.Equal(t, StageFormat, res.Stage)
	require.Contains(t, res.Detail, "unsupported filesystem type")

	// The loop device acquired before the failure must be detached.
	require.NotEmpty(t, loopDevice(runner), "expected a losetup -d call in %v", runner.CommandLines())
}

func TestConvertExtractionFailureReleasesEverything(t *testing.T) {
	m, runner, _ := newTestManager(t)
	runner.Fail("tar", "tar: Unexpected EOF in archive")

	res := m.Convert(context.Background(), Request{ImageRef: "alpine:latest", SizeMiB: 64})

	require.Equal(t, StatusError, res.Status)
	require.Equal(t, StagePopulate, res.Stage)
	require.Contains(t, res.Command, "tar ")
	require.Equal(t, "tar: Unexpected EOF in archive", res.Detail)

	// Cleanup still released the mount before the loop device.
	lines := runner.CommandLines()
	umountIdx := commandIndex(lines, "umount ")
	detachIdx := commandIndex(lines, "losetup -d")
	require.GreaterOrEqual(t, umountIdx, 0)
	require.Greater(t, detachIdx, umountIdx)
}

func TestConvertAllocationFailureLeavesNoArtifact(t *testing.T) {
	m, runner, p := newTestManager(t)
	runner.Fail("sfdisk", "sfdisk: cannot open")

	res := m.Convert(context.Background(), Request{ImageRef: "alpine:latest", SizeMiB: 64})

	require.Equal(t, StatusError, res.Status)
	require.Equal(t, StageAllocate, res.Stage)
	require.Equal(t, "sfdisk: cannot open", res.Detail)
	require.Contains(t, res.Command, "sfdisk")

	_, err := os.Stat(p.Artifact(DefaultOutputName))
	require.True(t, os.IsNotExist(err))

	// Nothing was acquired, so nothing needed detaching.
	require.Equal(t, -1, commandIndex(runner.CommandLines(), "losetup -d"))
}

func TestConvertValidation(t *testing.T) {
	m, runner, _ := newTestManager(t)

	tests := []struct {
		name string
		req  Request
	}{
		{"missing ref", Request{}},
		{"negative size", Request{ImageRef: "alpine", SizeMiB: -1}},
		{"path in output name", Request{ImageRef: "alpine", OutputName: "../escape.img"}},
		{"wrong extension", Request{ImageRef: "alpine", OutputName: "disk.qcow2"}},
		{"bad reference", Request{ImageRef: "UPPER CASE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Convert(context.Background(), tt.req)
			require.Equal(t, StatusError, res.Status)
			require.Equal(t, StageValidate, res.Stage)
		})
	}

	// Validation failures never reach the host tools.
	require.Empty(t, runner.Calls())
}

func TestConvertExportFailure(t *testing.T) {
	m, runner, _ := newTestManager(t)
	m.exporter = &fakeExporter{err: errors.New("manifest unknown")}

	res := m.Convert(context.Background(), Request{ImageRef: "alpine:latest", SizeMiB: 64})

	require.Equal(t, StatusError, res.Status)
	require.Equal(t, StageExport, res.Stage)
	require.Empty(t, res.Command)
	require.Empty(t, runner.Calls())
}

func TestConvertRejectsInFlightDuplicate(t *testing.T) {
	m, _, _ := newTestManager(t)

	require.True(t, m.claim(DefaultOutputName))
	defer m.unclaim(DefaultOutputName)

	res := m.Convert(context.Background(), Request{ImageRef: "alpine:latest", SizeMiB: 64})
	require.Equal(t, StatusError, res.Status)
	require.Equal(t, StageValidate, res.Stage)
	require.Contains(t, res.Detail, "already in flight")
}

func TestConvertKernelInstallFailureIsNonFatal(t *testing.T) {
	m, runner, p := newTestManager(t)
	runner.Fail("chroot", "E: Unable to locate package linux-image-generic")

	// Debian metadata inside the mounted root makes the bootstrap stage
	// attempt the chroot install.
	mnt := p.MountPoint("bootable_system")
	require.NoError(t, os.MkdirAll(filepath.Join(mnt, "etc"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(mnt, "etc", "debian_version"), []byte("12.0\n"), 0644))

	res := m.Convert(context.Background(), Request{ImageRef: "alpine:latest", SizeMiB: 64})

	require.Equal(t, StatusSuccess, res.Status)
	require.Empty(t, res.Stage)
	require.GreaterOrEqual(t, commandIndex(runner.CommandLines(), "chroot "), 0)
}

func TestConvertRemovesRootfsArchive(t *testing.T) {
	m, _, p := newTestManager(t)

	res := m.Convert(context.Background(), Request{ImageRef: "alpine:latest", SizeMiB: 64})
	require.Equal(t, StatusSuccess, res.Status)

	_, err := os.Stat(filepath.Join(p.Workspace("bootable_system"), "rootfs.tar"))
	require.True(t, os.IsNotExist(err))
}

// loopDevice digs the attached loop device path out of the recorded calls.
func loopDevice(runner *systemtest.Runner) string {
	for _, c := range runner.Calls() {
		if c.Path == "losetup" && c.Args[0] == "-d" {
			return c.Args[1]
		}
	}
	return ""
}
