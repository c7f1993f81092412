// Package rtpreorderer contains a filter that reorders RTP packets.
package rtpreorderer

import (
	"github.com/pion/rtp"
)

const (
	bufferSize = 64
)

// Reorderer filters incoming RTP packets, in order to
// - order packets
// - remove duplicate packets
type Reorderer struct {
	initialized    bool
	expectedSeqNum uint16
	buffer         [bufferSize]*rtp.Packet
	absPos         uint16
}

// Process processes a RTP packet.
// It returns the packets that are ready to be consumed, in order.
func (r *Reorderer) Process(pkt *rtp.Packet) []*rtp.Packet {
	if !r.initialized {
		r.initialized = true
		r.expectedSeqNum = pkt.SequenceNumber + 1
		return []*rtp.Packet{pkt}
	}

	relPos := pkt.SequenceNumber - r.expectedSeqNum

	// packet is a duplicate or has been sent
	// before the first packet processed by Reorderer.
	if relPos > 0xFFF {
		return nil
	}

	// buffer is full. return pending packets and the current one.
	if relPos >= bufferSize {
		ret := append(r.pending(), pkt)
		r.expectedSeqNum = pkt.SequenceNumber + 1
		return ret
	}

	// there's a missing packet. wait for it.
	if relPos != 0 {
		p := (r.absPos + relPos) & (bufferSize - 1)

		// current packet is a duplicate.
		if r.buffer[p] != nil {
			return nil
		}

		r.buffer[p] = pkt
		return nil
	}

	count := uint16(1)
	for {
		p := (r.absPos + count) & (bufferSize - 1)
		if r.buffer[p] == nil {
			break
		}
		count++
	}

	ret := make([]*rtp.Packet, count)
	ret[0] = pkt

	r.absPos++
	r.absPos &= (bufferSize - 1)

	for i := uint16(1); i < count; i++ {
		ret[i], r.buffer[r.absPos] = r.buffer[r.absPos], nil
		r.absPos++
		r.absPos &= (bufferSize - 1)
	}

	r.expectedSeqNum = pkt.SequenceNumber + count

	return ret
}

// Flush returns the packets that are still waiting for a missing packet, in order.
func (r *Reorderer) Flush() []*rtp.Packet {
	ret := r.pending()

	if len(ret) != 0 {
		r.expectedSeqNum = ret[len(ret)-1].SequenceNumber + 1
	}

	return ret
}

func (r *Reorderer) pending() []*rtp.Packet {
	var ret []*rtp.Packet

	for i := uint16(1); i < bufferSize; i++ {
		p := (r.absPos + i) & (bufferSize - 1)
		if r.buffer[p] != nil {
			ret = append(ret, r.buffer[p])
			r.buffer[p] = nil
		}
	}

	return ret
}
