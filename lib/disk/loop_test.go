package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onkernel/bootimg/lib/system/systemtest"
	"github.com/stretchr/testify/require"
)

// fakeLoopDevice scripts losetup to return a path under the test tempdir
// and creates the matching partition node so Acquire's poll succeeds.
func fakeLoopDevice(t *testing.T, runner *systemtest.Runner) string {
	t.Helper()
	loopDev := filepath.Join(t.TempDir(), "loop0")
	require.NoError(t, os.WriteFile(loopDev, nil, 0644))
	require.NoError(t, os.WriteFile(loopDev+"p1", nil, 0644))
	runner.Reply("losetup", loopDev+"\n")
	return loopDev
}

func TestAcquireReturnsBinding(t *testing.T) {
	runner := systemtest.New()
	loopDev := fakeLoopDevice(t, runner)

	b := NewBinder(runner, nil)
	binding, err := b.Acquire(context.Background(), &Image{Path: "/tmp/disk.img"})
	require.NoError(t, err)
	require.Equal(t, loopDev, binding.LoopDevice)
	require.Equal(t, loopDev+"p1", binding.Partition)
}

func TestAcquireFailsWhenPartitionNeverAppears(t *testing.T) {
	runner := systemtest.New()
	runner.Reply("losetup", "/dev/loop9\n")

	b := NewBinder(runner, nil)
	b.WaitAttempts = 2
	b.WaitInterval = time.Millisecond

	_, err := b.Acquire(context.Background(), &Image{Path: "/tmp/disk.img"})
	require.ErrorIs(t, err, ErrBind)

	// The failed bind must still detach the device it attached.
	lines := runner.CommandLines()
	require.Contains(t, lines, "losetup -d /dev/loop9")
}

func TestAcquireFailsOnEmptyLosetupOutput(t *testing.T) {
	runner := systemtest.New()
	runner.Reply("losetup", "\n")

	b := NewBinder(runner, nil)
	_, err := b.Acquire(context.Background(), &Image{Path: "/tmp/disk.img"})
	require.ErrorIs(t, err, ErrBind)
}

func TestDetachIsIdempotent(t *testing.T) {
	runner := systemtest.New()
	fakeLoopDevice(t, runner)

	b := NewBinder(runner, nil)
	binding, err := b.Acquire(context.Background(), &Image{Path: "/tmp/disk.img"})
	require.NoError(t, err)

	require.NoError(t, binding.Detach(context.Background()))
	require.NoError(t, binding.Detach(context.Background()))

	detaches := 0
	for _, line := range runner.CommandLines() {
		if line == "losetup -d "+binding.LoopDevice {
			detaches++
		}
	}
	require.Equal(t, 1, detaches)
}

func TestPartitionDevice(t *testing.T) {
	tests := []struct {
		device   string
		expected string
	}{
		{"/dev/loop0", "/dev/loop0p1"},
		{"/dev/nvme0n1", "/dev/nvme0n1p1"},
		{"/dev/mmcblk0", "/dev/mmcblk0p1"},
		{"/dev/sda", "/dev/sda1"},
	}

	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			require.Equal(t, tt.expected, partitionDevice(tt.device, 1))
		})
	}
}
