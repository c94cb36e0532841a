package providers

import (
	"context"
	"log/slog"
	"os"

	"github.com/onkernel/bootimg/cmd/api/config"
	"github.com/onkernel/bootimg/lib/convert"
	"github.com/onkernel/bootimg/lib/oci"
	"github.com/onkernel/bootimg/lib/paths"
	"github.com/onkernel/bootimg/lib/system"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ProvideContext provides a base context
func ProvideContext() context.Context {
	return context.Background()
}

// ProvideLogger provides a structured logger
func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// ProvideConfig provides the application configuration
func ProvideConfig() *config.Config {
	return config.Load()
}

// ProvidePaths provides the data directory layout
func ProvidePaths(cfg *config.Config) *paths.Paths {
	return paths.New(cfg.DataDir)
}

// ProvideRunner provides the host command runner
func ProvideRunner(logger *slog.Logger) system.Runner {
	return system.NewRunner(logger)
}

// ProvideExporter provides the rootfs exporter
func ProvideExporter(logger *slog.Logger) oci.Exporter {
	return oci.NewExporter(logger)
}

// ProvideMeter provides the meter for conversion metrics
func ProvideMeter() metric.Meter {
	return otel.Meter("github.com/onkernel/bootimg")
}

// ProvideConvertManager provides the conversion manager
func ProvideConvertManager(cfg *config.Config, p *paths.Paths, runner system.Runner, exporter oci.Exporter, logger *slog.Logger, meter metric.Meter) (convert.Manager, error) {
	return convert.NewManager(p, convert.Config{
		MBRPath:          cfg.MBRBinPath,
		DefaultSizeMiB:   cfg.DefaultDiskSizeMiB(),
		LoopWaitAttempts: cfg.LoopWaitAttempts,
		LoopWaitInterval: cfg.LoopWaitInterval,
	}, runner, exporter, logger, meter)
}
