// Package mpegts contains functions to decode MPEG-TS packet headers.
package mpegts

import (
	"encoding/binary"
	"fmt"

	"github.com/bluenviron/tsloss/pkg/bits"
)

const (
	// PacketSize is the size of a MPEG-TS packet.
	PacketSize = 188

	// SyncByte is the first byte of every MPEG-TS packet.
	SyncByte = 0x47

	// MaxPID is the greatest PID that fits into 13 bits.
	MaxPID = 0x1FFF

	headerSize = 4
)

// Header is the header of a MPEG-TS packet.
type Header struct {
	SyncByte                  uint8
	TransportErrorIndicator   bool
	PayloadUnitStartIndicator bool
	TransportPriority         bool
	PID                       uint16
	ScramblingControl         uint8
	AdaptationFieldControl    uint8
	ContinuityCounter         uint8
}

// BitOrder is the order in which header fields are packed.
type BitOrder int

// bit orders.
const (
	// fields are packed from the most significant bit of the first byte,
	// as in ISO/IEC 13818-1.
	BitOrderMSBFirst BitOrder = iota

	// fields are packed from the least significant bit of a little-endian
	// 32-bit word, as with bit-field structs compiled for little-endian hosts.
	BitOrderLSBFirst
)

// String implements fmt.Stringer.
func (o BitOrder) String() string {
	switch o {
	case BitOrderMSBFirst:
		return "msb"
	case BitOrderLSBFirst:
		return "lsb"
	}
	return fmt.Sprintf("unknown (%d)", int(o))
}

// ParseBitOrder parses a bit order.
func ParseBitOrder(s string) (BitOrder, error) {
	switch s {
	case "msb":
		return BitOrderMSBFirst, nil
	case "lsb":
		return BitOrderLSBFirst, nil
	}
	return 0, fmt.Errorf("invalid bit order '%s'", s)
}

// LSB-first field positions.
const (
	lsbSyncShift     = 0
	lsbTEIShift      = 8
	lsbPUSIShift     = 9
	lsbPriorityShift = 10
	lsbPIDShift      = 11
	lsbTSCShift      = 24
	lsbAFCShift      = 26
	lsbCCShift       = 28
)

// Unmarshal decodes the header at the beginning of buf.
func (o BitOrder) Unmarshal(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, fmt.Errorf("buffer is too short")
	}

	switch o {
	case BitOrderMSBFirst:
		return unmarshalMSBFirst(buf)

	case BitOrderLSBFirst:
		w := binary.LittleEndian.Uint32(buf)
		return Header{
			SyncByte:                  uint8(w >> lsbSyncShift),
			TransportErrorIndicator:   ((w >> lsbTEIShift) & 0x01) != 0,
			PayloadUnitStartIndicator: ((w >> lsbPUSIShift) & 0x01) != 0,
			TransportPriority:         ((w >> lsbPriorityShift) & 0x01) != 0,
			PID:                       uint16((w >> lsbPIDShift) & MaxPID),
			ScramblingControl:         uint8((w >> lsbTSCShift) & 0x03),
			AdaptationFieldControl:    uint8((w >> lsbAFCShift) & 0x03),
			ContinuityCounter:         uint8((w >> lsbCCShift) & 0x0F),
		}, nil
	}

	return Header{}, fmt.Errorf("unsupported bit order: %v", o)
}

func unmarshalMSBFirst(buf []byte) (Header, error) {
	var h Header
	pos := 0

	h.SyncByte, _ = bits.ReadUint8(buf, &pos)
	h.TransportErrorIndicator, _ = bits.ReadFlag(buf, &pos)
	h.PayloadUnitStartIndicator, _ = bits.ReadFlag(buf, &pos)
	h.TransportPriority, _ = bits.ReadFlag(buf, &pos)
	h.PID, _ = bits.ReadUint16(buf, &pos, 13)

	tmp, _ := bits.ReadBits(buf, &pos, 2)
	h.ScramblingControl = uint8(tmp)

	tmp, _ = bits.ReadBits(buf, &pos, 2)
	h.AdaptationFieldControl = uint8(tmp)

	tmp, err := bits.ReadBits(buf, &pos, 4)
	if err != nil {
		return Header{}, err
	}
	h.ContinuityCounter = uint8(tmp)

	return h, nil
}

// Marshal encodes a header at the beginning of buf.
// The rest of buf is left untouched.
func (o BitOrder) Marshal(h Header, buf []byte) error {
	if len(buf) < headerSize {
		return fmt.Errorf("buffer is too short")
	}
	if h.PID > MaxPID {
		return fmt.Errorf("invalid PID: %d", h.PID)
	}
	if h.ContinuityCounter > 0x0F {
		return fmt.Errorf("invalid continuity counter: %d", h.ContinuityCounter)
	}
	if h.ScramblingControl > 0x03 || h.AdaptationFieldControl > 0x03 {
		return fmt.Errorf("invalid 2-bit field")
	}

	switch o {
	case BitOrderMSBFirst:
		clear(buf[:headerSize])
		pos := 0
		bits.WriteBits(buf, &pos, uint64(h.SyncByte), 8)
		bits.WriteFlag(buf, &pos, h.TransportErrorIndicator)
		bits.WriteFlag(buf, &pos, h.PayloadUnitStartIndicator)
		bits.WriteFlag(buf, &pos, h.TransportPriority)
		bits.WriteBits(buf, &pos, uint64(h.PID), 13)
		bits.WriteBits(buf, &pos, uint64(h.ScramblingControl), 2)
		bits.WriteBits(buf, &pos, uint64(h.AdaptationFieldControl), 2)
		bits.WriteBits(buf, &pos, uint64(h.ContinuityCounter), 4)
		return nil

	case BitOrderLSBFirst:
		w := uint32(h.SyncByte)<<lsbSyncShift |
			boolBit(h.TransportErrorIndicator)<<lsbTEIShift |
			boolBit(h.PayloadUnitStartIndicator)<<lsbPUSIShift |
			boolBit(h.TransportPriority)<<lsbPriorityShift |
			uint32(h.PID)<<lsbPIDShift |
			uint32(h.ScramblingControl)<<lsbTSCShift |
			uint32(h.AdaptationFieldControl)<<lsbAFCShift |
			uint32(h.ContinuityCounter)<<lsbCCShift
		binary.LittleEndian.PutUint32(buf, w)
		return nil
	}

	return fmt.Errorf("unsupported bit order: %v", o)
}

func boolBit(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
