package mpegts

import (
	"fmt"
)

// Buffer is a sequence of MPEG-TS packets stored contiguously.
// It implements ccloss.Records.
type Buffer struct {
	buf   []byte
	order BitOrder
}

// NewBuffer allocates a Buffer.
// The length of buf must be a multiple of PacketSize.
func NewBuffer(buf []byte, order BitOrder) (*Buffer, error) {
	if (len(buf) % PacketSize) != 0 {
		return nil, fmt.Errorf("buffer length %d is not a multiple of %d", len(buf), PacketSize)
	}

	switch order {
	case BitOrderMSBFirst, BitOrderLSBFirst:
	default:
		return nil, fmt.Errorf("unsupported bit order: %v", order)
	}

	return &Buffer{
		buf:   buf,
		order: order,
	}, nil
}

// Len returns the number of packets.
func (b *Buffer) Len() int {
	return len(b.buf) / PacketSize
}

// Packet returns the i-th packet.
func (b *Buffer) Packet(i int) []byte {
	return b.buf[i*PacketSize : (i+1)*PacketSize]
}

// Header decodes the header of the i-th packet.
func (b *Buffer) Header(i int) Header {
	h, _ := b.order.Unmarshal(b.Packet(i))
	return h
}

// At returns the PID and the continuity counter of the i-th packet.
func (b *Buffer) At(i int) (uint16, uint8) {
	h := b.Header(i)
	return h.PID, h.ContinuityCounter
}
