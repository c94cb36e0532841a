package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"
)

func (m *manager) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	entries, err := os.ReadDir(m.paths.Conversions())
	if err != nil {
		if os.IsNotExist(err) {
			return []Artifact{}, nil
		}
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	images := lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return !e.IsDir() && filepath.Ext(e.Name()) == ArtifactExt
	})

	artifacts := make([]Artifact, 0, len(images))
	for _, e := range images {
		info, err := e.Info()
		if err != nil {
			// Raced with a concurrent purge; skip.
			continue
		}
		artifacts = append(artifacts, Artifact{
			Filename: e.Name(),
			Path:     m.paths.Artifact(e.Name()),
			SizeMiB:  info.Size() >> 20,
		})
	}
	return artifacts, nil
}

func (m *manager) PurgeArtifacts(ctx context.Context) (*PurgeResult, error) {
	dir := m.paths.Conversions()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	if len(entries) == 0 {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
		return &PurgeResult{Status: StatusInfo, Message: "no artifacts to clean up"}, nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("remove output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("recreate output directory: %w", err)
	}

	m.logger.InfoContext(ctx, "purged artifacts", "count", len(entries))
	return &PurgeResult{Status: StatusSuccess, Message: fmt.Sprintf("removed %d artifacts", len(entries))}, nil
}
