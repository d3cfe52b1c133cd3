package cec

import "sync"

// FakeConnection is a test double that records bus commands.
// Safe for concurrent use: tests inspect it while the controller drives it.
type FakeConnection struct {
	mu sync.Mutex

	// Active is returned by ActiveSource.
	Active LogicalAddress

	// Self is returned by LogicalAddress.
	Self LogicalAddress

	// PowerOnError, if set, will be returned by PowerOn (after recording the call).
	PowerOnError error

	// StandbyError, if set, will be returned by Standby (after recording the call).
	StandbyError error

	powerOns      []LogicalAddress
	standbys      []LogicalAddress
	activeQueries int
	closed        bool
}

// NewFakeConnection creates a FakeConnection owning Playback 1 with the given
// active source.
func NewFakeConnection(active LogicalAddress) *FakeConnection {
	return &FakeConnection{
		Active: active,
		Self:   LogicalAddressPlayback1,
	}
}

// ActiveSource returns the scripted active source.
func (f *FakeConnection) ActiveSource() LogicalAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeQueries++
	return f.Active
}

// LogicalAddress returns the scripted own address.
func (f *FakeConnection) LogicalAddress() LogicalAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Self
}

// PowerOn records the target.
func (f *FakeConnection) PowerOn(target LogicalAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.powerOns = append(f.powerOns, target)
	return f.PowerOnError
}

// Standby records the target.
func (f *FakeConnection) Standby(target LogicalAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.standbys = append(f.standbys, target)
	return f.StandbyError
}

// Close marks the connection as closed.
func (f *FakeConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// SetActive changes the scripted active source.
func (f *FakeConnection) SetActive(a LogicalAddress) {
	f.mu.Lock()
	f.Active = a
	f.mu.Unlock()
}

// PowerOns returns the targets of all PowerOn calls.
func (f *FakeConnection) PowerOns() []LogicalAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LogicalAddress(nil), f.powerOns...)
}

// Standbys returns the targets of all Standby calls.
func (f *FakeConnection) Standbys() []LogicalAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LogicalAddress(nil), f.standbys...)
}

// ActiveQueries returns how many times ActiveSource was called.
func (f *FakeConnection) ActiveQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeQueries
}

// Closed reports whether Close was called.
func (f *FakeConnection) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded calls.
func (f *FakeConnection) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powerOns = nil
	f.standbys = nil
	f.activeQueries = 0
	f.closed = false
	f.PowerOnError = nil
	f.StandbyError = nil
}
