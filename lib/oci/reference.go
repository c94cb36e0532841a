// Package oci acquires container filesystem snapshots: it normalizes image
// references and exports a flattened rootfs tar from a registry.
package oci

import (
	"github.com/distribution/reference"
)

// NormalizedRef is a validated and normalized OCI image reference.
// Examples:
//   - "alpine" -> "docker.io/library/alpine:latest"
//   - "alpine:3.18" -> "docker.io/library/alpine:3.18"
//   - "alpine@sha256:abc..." -> "docker.io/library/alpine@sha256:abc..."
type NormalizedRef struct {
	raw      string
	isDigest bool
}

// ParseNormalizedRef validates and normalizes a user-provided image
// reference, defaulting the registry to docker.io and the tag to latest.
func ParseNormalizedRef(s string) (*NormalizedRef, error) {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return nil, err
	}

	if canonical, ok := named.(reference.Canonical); ok {
		return &NormalizedRef{raw: canonical.String(), isDigest: true}, nil
	}

	// Tagged reference; add :latest if missing.
	tagged := reference.TagNameOnly(named)
	return &NormalizedRef{raw: tagged.String()}, nil
}

// String returns the full normalized reference.
func (r *NormalizedRef) String() string { return r.raw }

// IsDigest reports whether the reference pins a digest (@sha256:...).
func (r *NormalizedRef) IsDigest() bool { return r.isDigest }
