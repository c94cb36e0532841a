package oci

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// RootfsArchive is a transient tar holding the flattened container
// filesystem. It is deleted once extraction completes or the pipeline aborts.
type RootfsArchive struct {
	Path string
	Ref  string
}

// Remove deletes the archive file. A missing file is not an error, so the
// pipeline can call this unconditionally.
func (a *RootfsArchive) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exporter produces a rootfs archive for an image reference.
type Exporter interface {
	Export(ctx context.Context, ref *NormalizedRef, destDir string) (*RootfsArchive, error)
}

type registryExporter struct {
	logger *slog.Logger
}

// NewExporter creates an Exporter that pulls from the image's registry and
// flattens all layers into a single tar, equivalent to exporting a created
// container's filesystem.
func NewExporter(logger *slog.Logger) Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &registryExporter{logger: logger}
}

var unsafeRefChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// archiveName derives a filename for the exported tar from the reference.
func archiveName(ref *NormalizedRef) string {
	return unsafeRefChars.ReplaceAllString(ref.String(), "_") + ".tar"
}

func (e *registryExporter) Export(ctx context.Context, ref *NormalizedRef, destDir string) (*RootfsArchive, error) {
	parsed, err := name.ParseReference(ref.String())
	if err != nil {
		return nil, fmt.Errorf("parse reference: %w", err)
	}

	e.logger.InfoContext(ctx, "pulling image", "ref", ref.String())
	img, err := remote.Image(parsed,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
		remote.WithPlatform(v1.Platform{OS: "linux", Architecture: runtime.GOARCH}),
	)
	if err != nil {
		return nil, fmt.Errorf("pull image: %w", err)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	archivePath := filepath.Join(destDir, archiveName(ref))
	f, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	// mutate.Extract flattens all layers, applying whiteouts, into one tar.
	rc := mutate.Extract(img)
	n, err := io.Copy(f, rc)
	rc.Close()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("export rootfs: %w", err)
	}

	e.logger.InfoContext(ctx, "exported rootfs", "ref", ref.String(), "bytes", n)
	return &RootfsArchive{Path: archivePath, Ref: ref.String()}, nil
}
