package disk

import "errors"

var (
	// ErrAllocation is returned when the image file or its partition table
	// cannot be created.
	ErrAllocation = errors.New("disk allocation failed")

	// ErrBind is returned when the image cannot be attached as a loop
	// device, or its partition node never appears.
	ErrBind = errors.New("loop device bind failed")
)
