package rtpmpegts

import (
	"crypto/rand"
	"fmt"

	"github.com/pion/rtp"

	"github.com/bluenviron/tsloss/pkg/mpegts"
)

const (
	rtpVersion            = 2
	defaultPayloadMaxSize = 7 * mpegts.PacketSize
)

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// Encoder is a RTP/MPEG-TS encoder.
type Encoder struct {
	// SSRC of packets (optional).
	// It defaults to a random value.
	SSRC *uint32

	// initial sequence number of packets (optional).
	// It defaults to a random value.
	InitialSequenceNumber *uint16

	// maximum size of packet payloads (optional).
	// It defaults to 1316 (7 MPEG-TS packets).
	PayloadMaxSize int

	sequenceNumber uint16
}

// Init initializes the encoder.
func (e *Encoder) Init() error {
	if e.SSRC == nil {
		v, err := randUint32()
		if err != nil {
			return err
		}
		e.SSRC = &v
	}
	if e.InitialSequenceNumber == nil {
		v, err := randUint32()
		if err != nil {
			return err
		}
		v2 := uint16(v)
		e.InitialSequenceNumber = &v2
	}
	if e.PayloadMaxSize == 0 {
		e.PayloadMaxSize = defaultPayloadMaxSize
	}
	if e.PayloadMaxSize < mpegts.PacketSize {
		return fmt.Errorf("maximum payload size must be at least %d", mpegts.PacketSize)
	}

	e.sequenceNumber = *e.InitialSequenceNumber
	return nil
}

// Encode encodes MPEG-TS packets into RTP packets.
func (e *Encoder) Encode(tsPackets [][]byte) ([]*rtp.Packet, error) {
	for _, pkt := range tsPackets {
		if len(pkt) != mpegts.PacketSize {
			return nil, fmt.Errorf("invalid MPEG-TS packet size: %d", len(pkt))
		}
	}

	perRTPPacket := e.PayloadMaxSize / mpegts.PacketSize
	var rets []*rtp.Packet

	for len(tsPackets) > 0 {
		n := min(perRTPPacket, len(tsPackets))

		payload := make([]byte, 0, n*mpegts.PacketSize)
		for _, pkt := range tsPackets[:n] {
			payload = append(payload, pkt...)
		}
		tsPackets = tsPackets[n:]

		rets = append(rets, &rtp.Packet{
			Header: rtp.Header{
				Version:        rtpVersion,
				PayloadType:    PayloadType,
				SequenceNumber: e.sequenceNumber,
				SSRC:           *e.SSRC,
			},
			Payload: payload,
		})
		e.sequenceNumber++
	}

	return rets, nil
}
