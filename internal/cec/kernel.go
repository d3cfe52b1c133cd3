//go:build linux

package cec

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CEC ioctl constants derived from the upstream Linux kernel UAPI header
// (include/uapi/linux/cec.h). The ioctl numbers use the generic _IOC layout
// (arm, arm64, x86).
const (
	ioctlType = 'a'

	iocWrite = 1
	iocRead  = 2
)

// cecCaps mirrors struct cec_caps (76 bytes).
type cecCaps struct {
	driver            [32]byte
	name              [32]byte
	availableLogAddrs uint32
	capabilities      uint32
	version           uint32
}

// cecMsg mirrors struct cec_msg (56 bytes with tail padding).
type cecMsg struct {
	txTs          uint64
	rxTs          uint64
	len           uint32
	timeout       uint32
	sequence      uint32
	flags         uint32
	msg           [maxFrameLength]byte
	reply         uint8
	rxStatus      uint8
	txStatus      uint8
	txArbLostCnt  uint8
	txNackCnt     uint8
	txLowDriveCnt uint8
	txErrorCnt    uint8
}

// cecLogAddrs mirrors struct cec_log_addrs (92 bytes with tail padding).
type cecLogAddrs struct {
	logAddr           [4]uint8
	logAddrMask       uint16
	cecVersion        uint8
	numLogAddrs       uint8
	vendorID          uint32
	flags             uint32
	osdName           [15]byte
	primaryDeviceType [4]uint8
	logAddrType       [4]uint8
	allDeviceTypes    [4]uint8
	features          [4][12]uint8
}

// cecEvent mirrors struct cec_event (80 bytes). The union is kept raw.
type cecEvent struct {
	ts    uint64
	event uint32
	flags uint32
	raw   [16]uint32
}

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | ioctlType<<8 | nr
}

var (
	ioctlAdapGetCaps     = ioc(iocRead|iocWrite, 0, unsafe.Sizeof(cecCaps{}))
	ioctlAdapGetPhysAddr = ioc(iocRead, 1, unsafe.Sizeof(uint16(0)))
	ioctlAdapGetLogAddrs = ioc(iocRead, 3, unsafe.Sizeof(cecLogAddrs{}))
	ioctlAdapSetLogAddrs = ioc(iocRead|iocWrite, 4, unsafe.Sizeof(cecLogAddrs{}))
	ioctlTransmit        = ioc(iocRead|iocWrite, 5, unsafe.Sizeof(cecMsg{}))
	ioctlReceive         = ioc(iocRead|iocWrite, 6, unsafe.Sizeof(cecMsg{}))
	ioctlDequeueEvent    = ioc(iocRead|iocWrite, 7, unsafe.Sizeof(cecEvent{}))
	ioctlSetMode         = ioc(iocWrite, 9, unsafe.Sizeof(uint32(0)))
)

// Adapter capabilities (CEC_CAP_*).
const (
	capPhysAddr = 1 << 0
	capLogAddrs = 1 << 1
	capTransmit = 1 << 2
)

// Modes (CEC_MODE_*).
const (
	modeInitiator = 0x1
	modeFollower  = 0x1 << 4
)

// Logical address configuration (CEC_LOG_ADDR_*, CEC_OP_*).
const (
	logAddrInvalid          = 0xff
	logAddrsFlAllowUnregFbk = 1 << 0
	cecVersion14            = 5
	vendorIDNone            = 0xffffffff
)

// Status bits (CEC_TX_STATUS_*, CEC_RX_STATUS_*).
const (
	txStatusOK         = 1 << 0
	txStatusArbLost    = 1 << 1
	txStatusNack       = 1 << 2
	txStatusLowDrive   = 1 << 3
	txStatusFailed     = 1 << 4
	txStatusMaxRetries = 1 << 5
	txStatusAborted    = 1 << 6
	txStatusTimeout    = 1 << 7

	rxStatusOK = 1 << 0
)

// Events (CEC_EVENT_*).
const (
	eventStateChange = 1
	eventLostMsgs    = 2
	eventPinHPDLow   = 5
	eventPinHPDHigh  = 6
)

// kernelDeviceType maps a DeviceType to the primary device type, the logical
// address type and the CEC 2.0 all-device-types bit.
func kernelDeviceType(t DeviceType) (prim, addrType, all uint8, err error) {
	switch t {
	case DeviceTypePlayback:
		return 4, 3, 0x10, nil
	case DeviceTypeRecording:
		return 1, 1, 0x40, nil
	case DeviceTypeTuner:
		return 3, 2, 0x20, nil
	case DeviceTypeAudioSystem:
		return 5, 4, 0x08, nil
	default:
		return 0, 0, 0, fmt.Errorf("cec: unsupported device type %s", t)
	}
}

// buildLogAddrs fills the claim request for a single logical address.
func buildLogAddrs(name string, t DeviceType) (cecLogAddrs, error) {
	var la cecLogAddrs
	prim, addrType, all, err := kernelDeviceType(t)
	if err != nil {
		return la, err
	}
	la.cecVersion = cecVersion14
	la.numLogAddrs = 1
	la.vendorID = vendorIDNone
	la.flags = logAddrsFlAllowUnregFbk
	copy(la.osdName[:], TruncateOSDName(name))
	la.primaryDeviceType[0] = prim
	la.logAddrType[0] = addrType
	la.allDeviceTypes[0] = all
	return la, nil
}

// firstLogicalAddress returns the claimed address, or broadcast (unregistered)
// if nothing was claimed.
func (la *cecLogAddrs) firstLogicalAddress() LogicalAddress {
	if la.numLogAddrs == 0 || la.logAddr[0] == logAddrInvalid {
		return LogicalAddressBroadcast
	}
	return LogicalAddress(la.logAddr[0])
}

// maskLogicalAddress returns the lowest address set in a log_addr_mask.
func maskLogicalAddress(mask uint16) LogicalAddress {
	for i := 0; i < 15; i++ {
		if mask&(1<<i) != 0 {
			return LogicalAddress(i)
		}
	}
	return LogicalAddressBroadcast
}

// stateChange unpacks struct cec_event_state_change from the union
// (little-endian: phys_addr in the low half-word, log_addr_mask in the high).
func (e *cecEvent) stateChange() (physAddr uint16, mask uint16) {
	return uint16(e.raw[0] & 0xffff), uint16(e.raw[0] >> 16)
}

func txStatusError(status uint8) error {
	switch {
	case status&txStatusNack != 0:
		return errors.New("not acknowledged")
	case status&txStatusArbLost != 0:
		return errors.New("arbitration lost")
	case status&txStatusLowDrive != 0:
		return errors.New("low drive detected")
	case status&txStatusTimeout != 0:
		return errors.New("timed out")
	case status&txStatusAborted != 0:
		return errors.New("aborted")
	case status&txStatusMaxRetries != 0:
		return errors.New("max retries reached")
	case status&txStatusFailed != 0:
		return errors.New("transmit error")
	default:
		return fmt.Errorf("tx status 0x%02x", status)
	}
}

// ioctl issues a single request against the adapter, retrying on EINTR.
func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
