//go:build linux

package cec

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// pollTimeoutMs bounds how long the receive goroutine takes to notice Close.
	pollTimeoutMs = 200

	// receiveTimeoutMs bounds a single CEC_RECEIVE once poll reported data.
	receiveTimeoutMs = 100

	// DefaultQueryTimeout bounds how long ActiveSource waits for an answer.
	DefaultQueryTimeout = 500 * time.Millisecond
)

// RealConnection talks to a kernel CEC adapter through its character device.
type RealConnection struct {
	fd     int
	cfg    Config
	source *sourceTracker

	queryTimeout time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open configures the adapter at cfg.Port and claims a logical address.
// The callbacks in cfg may fire before Open returns.
func Open(cfg Config) (*RealConnection, error) {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}

	fd, err := unix.Open(cfg.Port, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}

	c := &RealConnection{
		fd:           fd,
		cfg:          cfg,
		source:       newSourceTracker(),
		queryTimeout: DefaultQueryTimeout,
		done:         make(chan struct{}),
	}

	if err := c.configure(); err != nil {
		unix.Close(fd)
		return nil, err
	}

	c.wg.Add(1)
	go c.receiveLoop()

	c.logf(LogLevelNotice, "%s: logical address %s, physical address %s",
		cfg.Port, c.source.logicalAddress(), FormatPhysicalAddress(c.source.physicalAddress()))

	if cfg.ActivateSource {
		if err := c.announce(); err != nil {
			c.logf(LogLevelWarning, "activate source: %v", err)
		}
	}

	return c, nil
}

// configure sets the adapter mode and claims the logical address.
func (c *RealConnection) configure() error {
	var caps cecCaps
	if err := ioctl(c.fd, ioctlAdapGetCaps, unsafe.Pointer(&caps)); err != nil {
		return fmt.Errorf("query adapter capabilities: %w", err)
	}
	if caps.capabilities&capTransmit == 0 {
		return fmt.Errorf("adapter %s cannot transmit", cString(caps.name[:]))
	}

	mode := uint32(modeInitiator | modeFollower)
	if err := ioctl(c.fd, ioctlSetMode, unsafe.Pointer(&mode)); err != nil {
		return fmt.Errorf("set initiator/follower mode: %w", err)
	}

	var addrs cecLogAddrs
	if caps.capabilities&capLogAddrs != 0 {
		// Drop whatever a previous owner claimed, then claim ours.
		var reset cecLogAddrs
		if err := ioctl(c.fd, ioctlAdapSetLogAddrs, unsafe.Pointer(&reset)); err != nil {
			return fmt.Errorf("clear logical addresses: %w", err)
		}
		want, err := buildLogAddrs(c.cfg.DeviceName, c.cfg.DeviceType)
		if err != nil {
			return err
		}
		addrs = want
		if err := ioctl(c.fd, ioctlAdapSetLogAddrs, unsafe.Pointer(&addrs)); err != nil {
			return fmt.Errorf("claim %s logical address: %w", c.cfg.DeviceType, err)
		}
	} else if err := ioctl(c.fd, ioctlAdapGetLogAddrs, unsafe.Pointer(&addrs)); err != nil {
		return fmt.Errorf("read logical addresses: %w", err)
	}

	var physAddr uint16
	if err := ioctl(c.fd, ioctlAdapGetPhysAddr, unsafe.Pointer(&physAddr)); err != nil {
		return fmt.Errorf("read physical address: %w", err)
	}

	c.source.setAddresses(addrs.firstLogicalAddress(), physAddr)
	return nil
}

// ActiveSource returns the current active source. Unless this device holds
// active-source status it asks the bus and waits up to the query timeout.
func (c *RealConnection) ActiveSource() LogicalAddress {
	if c.source.isSelfActive() {
		return c.source.logicalAddress()
	}

	c.source.drainAnswered()
	if err := c.transmit(LogicalAddressBroadcast, OpcodeRequestActiveSource, nil); err != nil {
		c.logf(LogLevelWarning, "request active source: %v", err)
		return c.source.current()
	}

	timer := time.NewTimer(c.queryTimeout)
	defer timer.Stop()
	select {
	case <-c.source.answered:
	case <-timer.C:
		c.logf(LogLevelDebug, "no active source answered within %v", c.queryTimeout)
	case <-c.done:
	}
	return c.source.current()
}

// LogicalAddress returns the claimed logical address.
func (c *RealConnection) LogicalAddress() LogicalAddress {
	return c.source.logicalAddress()
}

// PowerOn sends Image View On to target.
func (c *RealConnection) PowerOn(target LogicalAddress) error {
	if err := c.transmit(target, OpcodeImageViewOn, nil); err != nil {
		return err
	}
	if c.cfg.ActivateSource {
		return c.announce()
	}
	return nil
}

// Standby sends Standby to target.
func (c *RealConnection) Standby(target LogicalAddress) error {
	return c.transmit(target, OpcodeStandby, nil)
}

// Close stops the receive goroutine and releases the adapter.
func (c *RealConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		if cerr := unix.Close(c.fd); cerr != nil {
			err = fmt.Errorf("close %s: %w", c.cfg.Port, cerr)
		}
	})
	return err
}

// announce claims active-source status on the bus.
func (c *RealConnection) announce() error {
	r := c.source.claim()
	return c.transmit(r.destination, r.opcode, r.params)
}

func (c *RealConnection) transmit(destination LogicalAddress, op Opcode, params []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	frame, err := encodeFrame(c.source.logicalAddress(), destination, op, params)
	if err != nil {
		return err
	}

	var msg cecMsg
	msg.len = uint32(len(frame))
	copy(msg.msg[:], frame)

	c.logf(LogLevelTraffic, ">> %s", formatFrame(frame))
	if err := ioctl(c.fd, ioctlTransmit, unsafe.Pointer(&msg)); err != nil {
		return fmt.Errorf("transmit %s to %s: %w", op, destination, err)
	}
	if msg.txStatus&txStatusOK == 0 {
		return fmt.Errorf("transmit %s to %s: %w", op, destination, txStatusError(msg.txStatus))
	}
	return nil
}

func (c *RealConnection) receiveLoop() {
	defer c.wg.Done()

	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN | unix.POLLPRI}}
	for {
		select {
		case <-c.done:
			return
		default:
		}

		n, err := unix.Poll(fds, pollTimeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			c.logf(LogLevelError, "poll %s: %v", c.cfg.Port, err)
			return
		}
		if n == 0 {
			continue
		}

		if fds[0].Revents&unix.POLLPRI != 0 {
			c.dequeueEvent()
		}
		if fds[0].Revents&unix.POLLIN != 0 {
			c.receive()
		}
	}
}

func (c *RealConnection) receive() {
	var msg cecMsg
	msg.timeout = receiveTimeoutMs
	if err := ioctl(c.fd, ioctlReceive, unsafe.Pointer(&msg)); err != nil {
		if err != unix.ETIMEDOUT && err != unix.EAGAIN {
			c.logf(LogLevelWarning, "receive: %v", err)
		}
		return
	}
	if msg.rxStatus&rxStatusOK == 0 {
		c.logf(LogLevelDebug, "receive: rx status 0x%02x", msg.rxStatus)
		return
	}

	frame := msg.msg[:msg.len]
	c.logf(LogLevelTraffic, "<< %s", formatFrame(frame))

	cmd, err := decodeFrame(frame)
	if err != nil {
		c.logf(LogLevelWarning, "decode %s: %v", formatFrame(frame), err)
		return
	}

	if c.cfg.OnCommand != nil {
		c.cfg.OnCommand(cmd)
	}

	for _, r := range c.source.observe(cmd) {
		if err := c.transmit(r.destination, r.opcode, r.params); err != nil {
			c.logf(LogLevelWarning, "reply to %s: %v", cmd.Opcode, err)
		}
	}
}

func (c *RealConnection) dequeueEvent() {
	var ev cecEvent
	if err := ioctl(c.fd, ioctlDequeueEvent, unsafe.Pointer(&ev)); err != nil {
		if err != unix.EAGAIN {
			c.logf(LogLevelWarning, "dequeue event: %v", err)
		}
		return
	}

	switch ev.event {
	case eventStateChange:
		physAddr, mask := ev.stateChange()
		c.source.setAddresses(maskLogicalAddress(mask), physAddr)
		c.logf(LogLevelNotice, "adapter state changed: logical address %s, physical address %s",
			maskLogicalAddress(mask), FormatPhysicalAddress(physAddr))
	case eventLostMsgs:
		c.logf(LogLevelWarning, "adapter dropped %d messages", ev.raw[0])
	case eventPinHPDLow, eventPinHPDHigh:
		c.logf(LogLevelDebug, "hotplug detect event %d", ev.event)
	default:
		c.logf(LogLevelAll, "adapter event %d", ev.event)
	}
}

func (c *RealConnection) logf(level LogLevel, format string, args ...any) {
	if c.cfg.OnLog == nil {
		return
	}
	c.cfg.OnLog(LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}
