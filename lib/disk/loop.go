package disk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/onkernel/bootimg/lib/system"
)

// Binding is an image file attached as a loop device, together with the
// device node of its one partition.
type Binding struct {
	LoopDevice string
	Partition  string

	runner   system.Runner
	released bool
}

// Binder attaches disk images to loop devices.
type Binder struct {
	runner system.Runner
	logger *slog.Logger

	// Partition node creation after losetup -P is asynchronous; Acquire
	// polls for it with these bounds.
	WaitAttempts int
	WaitInterval time.Duration
}

func NewBinder(runner system.Runner, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{
		runner:       runner,
		logger:       logger,
		WaitAttempts: 10,
		WaitInterval: 100 * time.Millisecond,
	}
}

// Acquire attaches the image to the next free loop device with partition
// scanning and waits for the first partition node to appear.
func (b *Binder) Acquire(ctx context.Context, img *Image) (*Binding, error) {
	out, err := b.runner.Run(ctx, system.Cmd{
		Path: "losetup",
		Args: []string{"-P", "--find", "--show", img.Path},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: attach: %w", ErrBind, err)
	}

	loopDev := strings.TrimSpace(string(out))
	if loopDev == "" {
		return nil, fmt.Errorf("%w: losetup returned no device", ErrBind)
	}

	binding := &Binding{
		LoopDevice: loopDev,
		Partition:  partitionDevice(loopDev, 1),
		runner:     b.runner,
	}

	if err := b.waitForPartition(ctx, binding.Partition); err != nil {
		if derr := binding.Detach(ctx); derr != nil {
			b.logger.WarnContext(ctx, "detach after failed bind", "device", loopDev, "error", derr)
		}
		return nil, err
	}

	b.logger.InfoContext(ctx, "bound loop device", "device", loopDev, "partition", binding.Partition)
	return binding, nil
}

func (b *Binder) waitForPartition(ctx context.Context, node string) error {
	for attempt := 0; attempt < b.WaitAttempts; attempt++ {
		if _, err := os.Stat(node); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for %s: %w", ErrBind, node, ctx.Err())
		case <-time.After(b.WaitInterval):
		}
	}
	return fmt.Errorf("%w: partition node %s did not appear after %d attempts", ErrBind, node, b.WaitAttempts)
}

// Detach releases the loop device. Calling it again after a successful or
// failed release is a no-op.
func (binding *Binding) Detach(ctx context.Context) error {
	if binding.released {
		return nil
	}
	binding.released = true

	if _, err := binding.runner.Run(ctx, system.Cmd{
		Path: "losetup",
		Args: []string{"-d", binding.LoopDevice},
	}); err != nil {
		return fmt.Errorf("detach %s: %w", binding.LoopDevice, err)
	}
	return nil
}

// partitionDevice derives the partition node name for a block device.
// Loop and nvme style devices take a "p" separator (/dev/loop0p1).
func partitionDevice(device string, index int) string {
	name := strings.TrimPrefix(device, "/dev/")
	if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		return fmt.Sprintf("%sp%d", device, index)
	}
	return fmt.Sprintf("%s%d", device, index)
}
