package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/onkernel/bootimg/lib/system/systemtest"
	"github.com/stretchr/testify/require"
)

func TestAllocateExactSize(t *testing.T) {
	runner := systemtest.New()
	a := NewAllocator(runner, nil)

	path := filepath.Join(t.TempDir(), "disk.img")
	img, err := a.Allocate(context.Background(), path, 1024)
	require.NoError(t, err)
	require.Equal(t, path, img.Path)
	require.Equal(t, int64(1024)<<20, img.SizeBytes)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(1024)<<20, info.Size())
}

func TestAllocatePartitionScript(t *testing.T) {
	runner := systemtest.New()
	a := NewAllocator(runner, nil)

	path := filepath.Join(t.TempDir(), "disk.img")
	_, err := a.Allocate(context.Background(), path, 16)
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "sfdisk", calls[0].Path)
	require.Equal(t, []string{path}, calls[0].Args)
	require.NotNil(t, calls[0].Stdin)
}

func TestAllocateRejectsNonPositiveSize(t *testing.T) {
	runner := systemtest.New()
	a := NewAllocator(runner, nil)

	_, err := a.Allocate(context.Background(), filepath.Join(t.TempDir(), "disk.img"), 0)
	require.ErrorIs(t, err, ErrAllocation)
	require.Empty(t, runner.Calls())
}

func TestAllocateRemovesPartialFileOnPartitionFailure(t *testing.T) {
	runner := systemtest.New()
	runner.Fail("sfdisk", "sfdisk: cannot open")
	a := NewAllocator(runner, nil)

	path := filepath.Join(t.TempDir(), "disk.img")
	_, err := a.Allocate(context.Background(), path, 16)
	require.ErrorIs(t, err, ErrAllocation)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
