package convert

import "errors"

var (
	// ErrInFlight is returned when a conversion targeting the same output
	// filename is already running.
	ErrInFlight = errors.New("conversion already in flight for this output file")

	// ErrExtraction is returned when the rootfs archive cannot be unpacked
	// into the mounted partition.
	ErrExtraction = errors.New("rootfs extraction failed")

	// ErrBootloader is returned when bootloader files or boot-sector code
	// cannot be installed.
	ErrBootloader = errors.New("bootloader install failed")
)
