//go:build !linux

package cec

import "time"

// DefaultQueryTimeout bounds how long ActiveSource waits for an answer.
const DefaultQueryTimeout = 500 * time.Millisecond

// RealConnection is not available on non-Linux platforms.
type RealConnection struct{}

// Open returns an error on non-Linux platforms.
func Open(cfg Config) (*RealConnection, error) {
	return nil, ErrNotSupported
}

// ActiveSource is not implemented on non-Linux platforms.
func (c *RealConnection) ActiveSource() LogicalAddress {
	return LogicalAddressUnknown
}

// LogicalAddress is not implemented on non-Linux platforms.
func (c *RealConnection) LogicalAddress() LogicalAddress {
	return LogicalAddressBroadcast
}

// PowerOn is not implemented on non-Linux platforms.
func (c *RealConnection) PowerOn(target LogicalAddress) error {
	return ErrNotSupported
}

// Standby is not implemented on non-Linux platforms.
func (c *RealConnection) Standby(target LogicalAddress) error {
	return ErrNotSupported
}

// Close is not implemented on non-Linux platforms.
func (c *RealConnection) Close() error {
	return nil
}
