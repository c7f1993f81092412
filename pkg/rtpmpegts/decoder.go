// Package rtpmpegts contains a RTP/MPEG-TS decoder and encoder.
// Specification: RFC2250
package rtpmpegts

import (
	"fmt"

	"github.com/pion/rtp"

	"github.com/bluenviron/tsloss/pkg/mpegts"
)

// PayloadType is the static payload type of MPEG-TS.
const PayloadType = 33

// Decoder is a RTP/MPEG-TS decoder.
type Decoder struct {
	// bit order of packet headers.
	// It defaults to BitOrderMSBFirst.
	BitOrder mpegts.BitOrder
}

// Decode decodes MPEG-TS packets from a RTP packet.
// Returned packets share memory with the RTP payload.
func (d *Decoder) Decode(pkt *rtp.Packet) ([][]byte, error) {
	if len(pkt.Payload) == 0 {
		return nil, fmt.Errorf("empty MPEG-TS payload")
	}

	buf, err := mpegts.NewBuffer(pkt.Payload, d.BitOrder)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	ret := make([][]byte, buf.Len())

	for i := range ret {
		if h := buf.Header(i); h.SyncByte != mpegts.SyncByte {
			return nil, fmt.Errorf("missing sync byte in packet %d: got 0x%02x", i, h.SyncByte)
		}
		ret[i] = buf.Packet(i)
	}

	return ret, nil
}
