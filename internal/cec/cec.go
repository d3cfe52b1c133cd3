// Package cec provides an HDMI-CEC bus connection with hardware abstraction.
// The real implementation drives the Linux kernel CEC framework (/dev/cecN).
// The fake implementation allows testing without an adapter.
package cec

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by connections.
var (
	ErrNotSupported = errors.New("cec: not supported on this platform (requires Linux)")
	ErrClosed       = errors.New("cec: connection closed")
)

// DefaultPort is the adapter opened when no port is configured.
const DefaultPort = "/dev/cec0"

// Connection is an open session on the CEC bus.
type Connection interface {
	// ActiveSource returns the device currently holding active-source status,
	// or LogicalAddressUnknown if nobody claims it.
	ActiveSource() LogicalAddress

	// LogicalAddress returns the address the bus assigned to this device.
	LogicalAddress() LogicalAddress

	// PowerOn asks the target device to power on (Image View On).
	PowerOn(target LogicalAddress) error

	// Standby asks the target device to enter standby.
	Standby(target LogicalAddress) error

	// Close releases the adapter.
	Close() error
}

// Config describes the bus session to open.
type Config struct {
	// Port is the adapter device path, e.g. /dev/cec0.
	Port string

	// DeviceName is advertised as the OSD name. The transport truncates it to
	// MaxOSDNameLength; callers pass it untruncated.
	DeviceName string

	// DeviceType is the role this device claims on the bus.
	DeviceType DeviceType

	// ActivateSource makes the device announce itself as active source after
	// opening and after every power-on request.
	ActivateSource bool

	// OnCommand receives every inbound bus command. Called from the transport's
	// receive goroutine; must not block or call back into the connection.
	OnCommand func(Command)

	// OnLog receives transport diagnostics. Same rules as OnCommand.
	OnLog func(LogMessage)
}

// LogicalAddress is a bus-assigned role identifier.
type LogicalAddress int

const (
	LogicalAddressUnknown     LogicalAddress = -1
	LogicalAddressTV          LogicalAddress = 0
	LogicalAddressRecording1  LogicalAddress = 1
	LogicalAddressRecording2  LogicalAddress = 2
	LogicalAddressTuner1      LogicalAddress = 3
	LogicalAddressPlayback1   LogicalAddress = 4
	LogicalAddressAudioSystem LogicalAddress = 5
	LogicalAddressTuner2      LogicalAddress = 6
	LogicalAddressTuner3      LogicalAddress = 7
	LogicalAddressPlayback2   LogicalAddress = 8
	LogicalAddressRecording3  LogicalAddress = 9
	LogicalAddressTuner4      LogicalAddress = 10
	LogicalAddressPlayback3   LogicalAddress = 11
	LogicalAddressBackup1     LogicalAddress = 12
	LogicalAddressBackup2     LogicalAddress = 13
	LogicalAddressSpecific    LogicalAddress = 14
	// LogicalAddressBroadcast doubles as "unregistered" when used as initiator.
	LogicalAddressBroadcast LogicalAddress = 15
)

var logicalAddressNames = [...]string{
	"TV",
	"Recording 1",
	"Recording 2",
	"Tuner 1",
	"Playback 1",
	"Audio",
	"Tuner 2",
	"Tuner 3",
	"Playback 2",
	"Recording 3",
	"Tuner 4",
	"Playback 3",
	"Backup 1",
	"Backup 2",
	"Specific",
	"Broadcast",
}

func (a LogicalAddress) String() string {
	if a >= 0 && int(a) < len(logicalAddressNames) {
		return logicalAddressNames[a]
	}
	return "Unknown"
}

// Valid reports whether a is a real bus address (0..15).
func (a LogicalAddress) Valid() bool {
	return a >= LogicalAddressTV && a <= LogicalAddressBroadcast
}

// DeviceType is the primary role a device claims.
type DeviceType int

const (
	DeviceTypeTV DeviceType = iota
	DeviceTypeRecording
	DeviceTypeReserved
	DeviceTypeTuner
	DeviceTypePlayback
	DeviceTypeAudioSystem
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeTV:
		return "tv"
	case DeviceTypeRecording:
		return "recording"
	case DeviceTypeTuner:
		return "tuner"
	case DeviceTypePlayback:
		return "playback"
	case DeviceTypeAudioSystem:
		return "audio"
	default:
		return fmt.Sprintf("devicetype(%d)", int(t))
	}
}

// Opcode is a CEC message opcode.
type Opcode uint8

const (
	OpcodeFeatureAbort          Opcode = 0x00
	OpcodeImageViewOn           Opcode = 0x04
	OpcodeTextViewOn            Opcode = 0x0D
	OpcodeStandby               Opcode = 0x36
	OpcodeUserControlPressed    Opcode = 0x44
	OpcodeUserControlReleased   Opcode = 0x45
	OpcodeGiveOSDName           Opcode = 0x46
	OpcodeSetOSDName            Opcode = 0x47
	OpcodeRoutingChange         Opcode = 0x80
	OpcodeRoutingInformation    Opcode = 0x81
	OpcodeActiveSource          Opcode = 0x82
	OpcodeGivePhysicalAddress   Opcode = 0x83
	OpcodeReportPhysicalAddress Opcode = 0x84
	OpcodeRequestActiveSource   Opcode = 0x85
	OpcodeSetStreamPath         Opcode = 0x86
	OpcodeDeviceVendorID        Opcode = 0x87
	OpcodeGiveDeviceVendorID    Opcode = 0x8C
	OpcodeMenuRequest           Opcode = 0x8D
	OpcodeMenuStatus            Opcode = 0x8E
	OpcodeGiveDevicePowerStatus Opcode = 0x8F
	OpcodeReportPowerStatus     Opcode = 0x90
	OpcodeInactiveSource        Opcode = 0x9D
	OpcodeCECVersion            Opcode = 0x9E
	OpcodeGetCECVersion         Opcode = 0x9F
	OpcodeAbort                 Opcode = 0xFF
)

var opcodeNames = map[Opcode]string{
	OpcodeFeatureAbort:          "feature abort",
	OpcodeImageViewOn:           "image view on",
	OpcodeTextViewOn:            "text view on",
	OpcodeStandby:               "standby",
	OpcodeUserControlPressed:    "user control pressed",
	OpcodeUserControlReleased:   "user control released",
	OpcodeGiveOSDName:           "give osd name",
	OpcodeSetOSDName:            "set osd name",
	OpcodeRoutingChange:         "routing change",
	OpcodeRoutingInformation:    "routing information",
	OpcodeActiveSource:          "active source",
	OpcodeGivePhysicalAddress:   "give physical address",
	OpcodeReportPhysicalAddress: "report physical address",
	OpcodeRequestActiveSource:   "request active source",
	OpcodeSetStreamPath:         "set stream path",
	OpcodeDeviceVendorID:        "device vendor id",
	OpcodeGiveDeviceVendorID:    "give device vendor id",
	OpcodeMenuRequest:           "menu request",
	OpcodeMenuStatus:            "menu status",
	OpcodeGiveDevicePowerStatus: "give device power status",
	OpcodeReportPowerStatus:     "report power status",
	OpcodeInactiveSource:        "inactive source",
	OpcodeCECVersion:            "cec version",
	OpcodeGetCECVersion:         "get cec version",
	OpcodeAbort:                 "abort",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opcode 0x%02x", uint8(o))
}

// Command is one decoded bus frame.
type Command struct {
	Initiator   LogicalAddress
	Destination LogicalAddress
	// Poll is set for header-only frames, which carry no opcode.
	Poll       bool
	Opcode     Opcode
	Parameters []byte
}

// Broadcast reports whether the command was addressed to every device.
func (c Command) Broadcast() bool {
	return c.Destination == LogicalAddressBroadcast
}

// LogLevel is the severity of a transport diagnostic.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarning
	LogLevelNotice
	LogLevelTraffic
	LogLevelDebug
	LogLevelAll
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarning:
		return "warning"
	case LogLevelNotice:
		return "notice"
	case LogLevelTraffic:
		return "traffic"
	case LogLevelDebug:
		return "debug"
	case LogLevelAll:
		return "all"
	default:
		return fmt.Sprintf("loglevel(%d)", int(l))
	}
}

// LogMessage is a diagnostic emitted by the transport.
type LogMessage struct {
	Time    time.Time
	Level   LogLevel
	Message string
}
