//go:build !linux

package gpio

import "errors"

// ErrNotSupported is returned on platforms without the GPIO character device.
var ErrNotSupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns ErrNotSupported on non-Linux platforms.
func NewRealReader(chipName string, pinOn, pinOff int) (*RealReader, error) {
	return nil, ErrNotSupported
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read() (bool, bool, error) {
	return false, false, ErrNotSupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}
