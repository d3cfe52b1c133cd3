package cec

import "sync"

// reply is a message the transport must send in response to bus traffic.
type reply struct {
	destination LogicalAddress
	opcode      Opcode
	params      []byte
}

// sourceTracker follows active-source ownership from bus traffic and decides
// the follower replies this device owes. Safe for concurrent use: the receive
// goroutine feeds it while the controller queries it.
type sourceTracker struct {
	mu         sync.Mutex
	self       LogicalAddress
	physAddr   uint16
	active     LogicalAddress
	selfActive bool

	// answered is poked whenever some device announces itself as active source.
	answered chan struct{}
}

func newSourceTracker() *sourceTracker {
	return &sourceTracker{
		self:     LogicalAddressBroadcast,
		physAddr: PhysicalAddressInvalid,
		active:   LogicalAddressUnknown,
		answered: make(chan struct{}, 1),
	}
}

func (t *sourceTracker) setAddresses(self LogicalAddress, physAddr uint16) {
	t.mu.Lock()
	t.self = self
	t.physAddr = physAddr
	if t.selfActive {
		t.active = self
	}
	t.mu.Unlock()
}

func (t *sourceTracker) logicalAddress() LogicalAddress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.self
}

func (t *sourceTracker) physicalAddress() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.physAddr
}

func (t *sourceTracker) current() LogicalAddress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *sourceTracker) isSelfActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selfActive
}

// claim marks this device as active source and returns the announcement.
func (t *sourceTracker) claim() reply {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.claimLocked()
}

func (t *sourceTracker) claimLocked() reply {
	t.selfActive = true
	t.active = t.self
	return reply{
		destination: LogicalAddressBroadcast,
		opcode:      OpcodeActiveSource,
		params:      physicalAddressBytes(t.physAddr),
	}
}

// followPath handles a new routing target: ours means we become active source.
func (t *sourceTracker) followPathLocked(pa uint16) []reply {
	if pa == t.physAddr && pa != PhysicalAddressInvalid {
		return []reply{t.claimLocked()}
	}
	if t.selfActive {
		t.selfActive = false
		t.active = LogicalAddressUnknown
	}
	return nil
}

// drainAnswered discards a stale announcement before a fresh query.
func (t *sourceTracker) drainAnswered() {
	select {
	case <-t.answered:
	default:
	}
}

func (t *sourceTracker) poke() {
	select {
	case t.answered <- struct{}{}:
	default:
	}
}

// observe updates tracking from one inbound command and returns owed replies.
func (t *sourceTracker) observe(cmd Command) []reply {
	if cmd.Poll {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	toSelf := cmd.Destination == t.self && !cmd.Broadcast()

	switch cmd.Opcode {
	case OpcodeActiveSource:
		if cmd.Initiator == t.self {
			return nil
		}
		t.active = cmd.Initiator
		t.selfActive = false
		t.poke()

	case OpcodeInactiveSource:
		if t.active == cmd.Initiator {
			t.active = LogicalAddressUnknown
		}

	case OpcodeSetStreamPath:
		if pa, ok := physicalAddressAt(cmd.Parameters, 0); ok {
			return t.followPathLocked(pa)
		}

	case OpcodeRoutingChange:
		if pa, ok := physicalAddressAt(cmd.Parameters, 2); ok {
			return t.followPathLocked(pa)
		}

	case OpcodeRoutingInformation:
		if pa, ok := physicalAddressAt(cmd.Parameters, 0); ok {
			return t.followPathLocked(pa)
		}

	case OpcodeRequestActiveSource:
		if t.selfActive {
			return []reply{{
				destination: LogicalAddressBroadcast,
				opcode:      OpcodeActiveSource,
				params:      physicalAddressBytes(t.physAddr),
			}}
		}

	case OpcodeStandby:
		if toSelf || cmd.Broadcast() {
			t.selfActive = false
			if t.active == t.self || cmd.Broadcast() {
				t.active = LogicalAddressUnknown
			}
		}

	case OpcodeGiveDevicePowerStatus:
		if toSelf {
			return []reply{{destination: cmd.Initiator, opcode: OpcodeReportPowerStatus, params: []byte{powerStatusOn}}}
		}

	case OpcodeMenuRequest:
		if toSelf {
			return []reply{{destination: cmd.Initiator, opcode: OpcodeMenuStatus, params: []byte{menuStateActivated}}}
		}
	}
	return nil
}
