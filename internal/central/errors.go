package central

import "github.com/pkg/errors"

var (
	// ErrInvalidCategory is returned for a category outside the supported set.
	ErrInvalidCategory = errors.New("central: invalid category")
	// ErrInvalidIndex is returned when an index is not in the discovery registry.
	ErrInvalidIndex = errors.New("central: index out of range")
	// ErrNoDevice is returned by Info when the category's slot is empty.
	ErrNoDevice = errors.New("central: no device")
	// ErrNotReady is returned when the radio has not been enabled.
	ErrNotReady = errors.New("central: radio not ready")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("central: manager closed")
	// ErrRegistryFull is the discovery list overflow.
	ErrRegistryFull = errors.New("central: discovery list overflow")

	errDuplicate = errors.New("central: peripheral already listed")
)
