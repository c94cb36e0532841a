// Package convert turns a container image into a bootable raw disk image:
// allocate and partition the image file, bind it as a loop device, format
// and mount the partition, populate it from the exported rootfs, bootstrap
// a kernel and init, install the bootloader, and release every acquired OS
// resource in reverse order whatever the outcome.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/onkernel/bootimg/lib/disk"
	"github.com/onkernel/bootimg/lib/mount"
	"github.com/onkernel/bootimg/lib/oci"
	"github.com/onkernel/bootimg/lib/paths"
	"github.com/onkernel/bootimg/lib/system"
	"go.opentelemetry.io/otel/metric"
)

// Manager handles conversion lifecycle operations.
type Manager interface {
	// Convert runs the full pipeline. Operational failures are reported in
	// the Result, never as a returned error.
	Convert(ctx context.Context, req Request) *Result

	// ListArtifacts returns the finished images in the output directory.
	ListArtifacts(ctx context.Context) ([]Artifact, error)

	// PurgeArtifacts removes everything from the output directory and
	// recreates it empty.
	PurgeArtifacts(ctx context.Context) (*PurgeResult, error)
}

// Config holds conversion settings.
type Config struct {
	// MBRPath locates the 440-byte legacy boot-code blob.
	MBRPath string

	// DefaultSizeMiB is used when a request leaves the disk size unset.
	DefaultSizeMiB int64

	// LoopWaitAttempts and LoopWaitInterval bound the poll for the loop
	// partition node; zero values keep the binder defaults.
	LoopWaitAttempts int
	LoopWaitInterval time.Duration
}

type manager struct {
	paths    *paths.Paths
	cfg      Config
	runner   system.Runner
	exporter oci.Exporter

	allocator *disk.Allocator
	binder    *disk.Binder
	prov      *mount.Provisioner

	logger  *slog.Logger
	metrics *Metrics

	// Conversions sharing an output filename would race on the same path;
	// the second request is rejected instead.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewManager creates a conversion manager.
func NewManager(p *paths.Paths, cfg Config, runner system.Runner, exporter oci.Exporter, logger *slog.Logger, meter metric.Meter) (Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultSizeMiB <= 0 {
		cfg.DefaultSizeMiB = DefaultSizeMiB
	}

	var metrics *Metrics
	if meter != nil {
		var err error
		metrics, err = NewMetrics(meter)
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
	}

	binder := disk.NewBinder(runner, logger)
	if cfg.LoopWaitAttempts > 0 {
		binder.WaitAttempts = cfg.LoopWaitAttempts
	}
	if cfg.LoopWaitInterval > 0 {
		binder.WaitInterval = cfg.LoopWaitInterval
	}

	return &manager{
		paths:     p,
		cfg:       cfg,
		runner:    runner,
		exporter:  exporter,
		allocator: disk.NewAllocator(runner, logger),
		binder:    binder,
		prov:      mount.NewProvisioner(runner, logger),
		logger:    logger,
		metrics:   metrics,
		inFlight:  make(map[string]struct{}),
	}, nil
}

func (m *manager) withDefaults(req Request) Request {
	if req.OutputName == "" {
		req.OutputName = DefaultOutputName
	}
	if req.SizeMiB == 0 {
		req.SizeMiB = m.cfg.DefaultSizeMiB
	}
	if req.Filesystem == "" {
		req.Filesystem = DefaultFilesystem
	}
	return req
}

func validateRequest(req Request) error {
	if req.ImageRef == "" {
		return errors.New("image reference is required")
	}
	if req.SizeMiB <= 0 {
		return fmt.Errorf("disk size must be positive, got %d MiB", req.SizeMiB)
	}
	if req.OutputName != filepath.Base(req.OutputName) {
		return fmt.Errorf("output name must be a bare filename, got %q", req.OutputName)
	}
	if filepath.Ext(req.OutputName) != ArtifactExt {
		return fmt.Errorf("output name must end in %s, got %q", ArtifactExt, req.OutputName)
	}
	return nil
}

func (m *manager) Convert(ctx context.Context, req Request) *Result {
	req = m.withDefaults(req)
	res := &Result{Status: StatusError, ImageRef: req.ImageRef, Filesystem: req.Filesystem}

	start := time.Now()
	defer func() {
		m.metrics.RecordConversion(ctx, res.Status, res.Stage, time.Since(start))
	}()

	if err := validateRequest(req); err != nil {
		return m.endStage(ctx, res, StageValidate, err)
	}
	ref, err := oci.ParseNormalizedRef(req.ImageRef)
	if err != nil {
		return m.endStage(ctx, res, StageValidate, fmt.Errorf("invalid image reference %q: %w", req.ImageRef, err))
	}
	res.ImageRef = ref.String()

	if !m.claim(req.OutputName) {
		return m.endStage(ctx, res, StageValidate, ErrInFlight)
	}
	defer m.unclaim(req.OutputName)

	workName := strings.TrimSuffix(req.OutputName, ArtifactExt)
	workDir := m.paths.Workspace(workName)
	defer os.RemoveAll(workDir)

	// Every acquisition from the loop device onward pushes a releaser;
	// the stack unwinds on every exit path.
	guards := newGuardStack(m.logger)
	defer guards.Unwind(ctx)

	archive, err := m.exporter.Export(ctx, ref, workDir)
	if err != nil {
		return m.endStage(ctx, res, StageExport, err)
	}
	defer func() {
		if err := archive.Remove(); err != nil {
			m.logger.WarnContext(ctx, "remove rootfs archive", "path", archive.Path, "error", err)
		}
	}()

	if err := os.MkdirAll(m.paths.Conversions(), 0755); err != nil {
		return m.endStage(ctx, res, StageAllocate, fmt.Errorf("create output directory: %w", err))
	}
	img, err := m.allocator.Allocate(ctx, m.paths.Artifact(req.OutputName), req.SizeMiB)
	if err != nil {
		return m.endStage(ctx, res, StageAllocate, err)
	}

	binding, err := m.binder.Acquire(ctx, img)
	if err != nil {
		return m.endStage(ctx, res, StageBind, err)
	}
	guards.Push("loop device", binding.Detach)

	if err := m.prov.Format(ctx, binding.Partition, req.Filesystem); err != nil {
		return m.endStage(ctx, res, StageFormat, err)
	}

	handle, err := m.prov.Mount(ctx, binding.Partition, m.paths.MountPoint(workName))
	if err != nil {
		return m.endStage(ctx, res, StageMount, err)
	}
	guards.Push("root mount", func(ctx context.Context) error {
		return m.prov.Unmount(ctx, handle)
	})

	if err := m.populate(ctx, archive, handle); err != nil {
		return m.endStage(ctx, res, StagePopulate, err)
	}

	if err := m.installKernel(ctx, handle); err != nil {
		if r := m.endStage(ctx, res, StageBootstrap, err); r != nil {
			return r
		}
	}
	if err := m.ensureInit(ctx, handle.Target); err != nil {
		return m.endStage(ctx, res, StageInit, err)
	}

	if err := m.installBootloader(ctx, handle); err != nil {
		return m.endStage(ctx, res, StageBootloader, err)
	}

	// The boot sector goes into the flat file, so the filesystem must be
	// unmounted and the loop device detached before writing it.
	guards.Unwind(ctx)

	if err := writeBootSector(img.Path, m.cfg.MBRPath); err != nil {
		return m.endStage(ctx, res, StageFinalize, err)
	}

	info, err := os.Stat(img.Path)
	if err != nil {
		return m.endStage(ctx, res, StageFinalize, fmt.Errorf("stat output image: %w", err))
	}

	res.Status = StatusSuccess
	res.OutputPath = img.Path
	res.SizeMiB = info.Size() >> 20
	res.Message = fmt.Sprintf("converted %s to bootable %s", res.ImageRef, req.OutputName)
	m.logger.InfoContext(ctx, "conversion complete",
		"ref", res.ImageRef,
		"output", img.Path,
		"size", datasize.ByteSize(info.Size()).HumanReadable(),
		"duration", time.Since(start).Round(time.Millisecond))
	return res
}

// endStage routes a stage failure through the criticality table: a fatal
// stage yields the terminal error result, a best-effort stage yields nil
// after logging a warning and the pipeline continues.
func (m *manager) endStage(ctx context.Context, res *Result, stage Stage, err error) *Result {
	if stageCriticality[stage] == BestEffort {
		m.logger.WarnContext(ctx, "stage failed, continuing", "stage", stage, "error", err)
		return nil
	}
	return m.fail(ctx, res, stage, err)
}

// fail converts a stage error into the structured error result, lifting the
// command line and diagnostic output when the failure came from a host tool.
func (m *manager) fail(ctx context.Context, res *Result, stage Stage, err error) *Result {
	m.logger.ErrorContext(ctx, "conversion failed", "stage", stage, "error", err)

	res.Status = StatusError
	res.Stage = stage
	res.Detail = err.Error()

	var cmdErr *system.CommandError
	if errors.As(err, &cmdErr) {
		res.Command = cmdErr.Command
		if cmdErr.Output != "" {
			res.Detail = cmdErr.Output
		}
	}
	return res
}

func (m *manager) claim(outputName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[outputName]; busy {
		return false
	}
	m.inFlight[outputName] = struct{}{}
	return true
}

func (m *manager) unclaim(outputName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, outputName)
}
