// Package paths centralizes the on-disk layout under the data directory.
package paths

import "path/filepath"

// Paths resolves locations under the data directory.
//
// Layout:
//
//	<dataDir>/conversions/          finished .img artifacts
//	<dataDir>/work/<name>/          per-conversion scratch (archive, mount point)
type Paths struct {
	dataDir string
}

func New(dataDir string) *Paths {
	return &Paths{dataDir: dataDir}
}

// DataDir returns the root data directory.
func (p *Paths) DataDir() string { return p.dataDir }

// Conversions returns the directory holding finished image artifacts.
func (p *Paths) Conversions() string {
	return filepath.Join(p.dataDir, "conversions")
}

// Artifact returns the path of a finished image by filename.
func (p *Paths) Artifact(name string) string {
	return filepath.Join(p.Conversions(), name)
}

// Workspace returns the scratch directory for one in-flight conversion.
func (p *Paths) Workspace(name string) string {
	return filepath.Join(p.dataDir, "work", name)
}

// MountPoint returns the mount point inside a conversion workspace.
func (p *Paths) MountPoint(name string) string {
	return filepath.Join(p.Workspace(name), "mnt")
}
