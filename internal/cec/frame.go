package cec

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxOSDNameLength is the longest OSD name the bus can carry, in bytes.
const MaxOSDNameLength = 14

// maxFrameLength is the header byte, the opcode and up to 14 operands.
const maxFrameLength = 16

// PhysicalAddressInvalid marks an adapter with no HDMI sink attached.
const PhysicalAddressInvalid uint16 = 0xFFFF

// Power status operands for Report Power Status.
const (
	powerStatusOn      byte = 0x00
	menuStateActivated byte = 0x00
)

var errShortFrame = errors.New("cec: empty frame")

// TruncateOSDName cuts name to MaxOSDNameLength bytes without splitting a
// UTF-8 sequence.
func TruncateOSDName(name string) string {
	if len(name) <= MaxOSDNameLength {
		return name
	}
	cut := MaxOSDNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// FormatPhysicalAddress renders a physical address as a.b.c.d.
func FormatPhysicalAddress(pa uint16) string {
	if pa == PhysicalAddressInvalid {
		return "f.f.f.f"
	}
	return fmt.Sprintf("%x.%x.%x.%x", pa>>12, (pa>>8)&0xf, (pa>>4)&0xf, pa&0xf)
}

// encodeFrame builds the wire bytes for a message.
func encodeFrame(initiator, destination LogicalAddress, op Opcode, params []byte) ([]byte, error) {
	if !initiator.Valid() || !destination.Valid() {
		return nil, fmt.Errorf("cec: invalid address %d->%d", initiator, destination)
	}
	if 2+len(params) > maxFrameLength {
		return nil, fmt.Errorf("cec: %s: %d operands exceed frame size", op, len(params))
	}
	frame := make([]byte, 0, 2+len(params))
	frame = append(frame, byte(initiator)<<4|byte(destination), byte(op))
	frame = append(frame, params...)
	return frame, nil
}

// decodeFrame parses received wire bytes.
func decodeFrame(frame []byte) (Command, error) {
	if len(frame) == 0 {
		return Command{}, errShortFrame
	}
	if len(frame) > maxFrameLength {
		return Command{}, fmt.Errorf("cec: frame of %d bytes exceeds %d", len(frame), maxFrameLength)
	}
	cmd := Command{
		Initiator:   LogicalAddress(frame[0] >> 4),
		Destination: LogicalAddress(frame[0] & 0xf),
	}
	if len(frame) == 1 {
		cmd.Poll = true
		return cmd, nil
	}
	cmd.Opcode = Opcode(frame[1])
	if len(frame) > 2 {
		cmd.Parameters = append([]byte(nil), frame[2:]...)
	}
	return cmd, nil
}

// physicalAddressAt reads a two-byte physical address operand.
func physicalAddressAt(params []byte, offset int) (uint16, bool) {
	if len(params) < offset+2 {
		return 0, false
	}
	return uint16(params[offset])<<8 | uint16(params[offset+1]), true
}

func physicalAddressBytes(pa uint16) []byte {
	return []byte{byte(pa >> 8), byte(pa)}
}

// formatFrame renders frame bytes the way cec-ctl does: 40:04.
func formatFrame(frame []byte) string {
	parts := make([]string, len(frame))
	for i, b := range frame {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}
