// Package rtplossdetector detects lost RTP packets from sequence numbers.
package rtplossdetector

import (
	"github.com/pion/rtp"
)

// LossDetector detects lost packets.
type LossDetector struct {
	initialized    bool
	expectedSeqNum uint16
}

// Process processes a RTP packet.
// It returns the number of packets lost between the previous packet and this one.
func (d *LossDetector) Process(pkt *rtp.Packet) uint64 {
	seq := pkt.SequenceNumber

	if !d.initialized {
		d.initialized = true
		d.expectedSeqNum = seq + 1
		return 0
	}

	diff := uint64(seq - d.expectedSeqNum)
	d.expectedSeqNum = seq + 1
	return diff
}
