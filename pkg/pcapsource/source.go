// Package pcapsource reads MPEG-TS streams from packet captures.
package pcapsource

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"

	"github.com/bluenviron/tsloss/pkg/mpegts"
	"github.com/bluenviron/tsloss/pkg/rtpmpegts"
)

const (
	pcapngMagic = 0x0A0D0D0A

	retryPeriod = time.Millisecond
)

// Writer receives the packets extracted from a capture.
// It is implemented by monitor.Monitor.
type Writer interface {
	WriteTS(buf []byte) bool
	WriteRTP(pkt *rtp.Packet) bool
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Stats are source statistics.
type Stats struct {
	// captured frames.
	Frames uint64
	// UDP datagrams that matched the port.
	Datagrams uint64
	// datagrams that contained raw MPEG-TS packets.
	TSDatagrams uint64
	// datagrams that contained RTP packets.
	RTPDatagrams uint64
	// datagrams that could not be decoded.
	Discarded uint64
}

// Source reads UDP datagrams that contain MPEG-TS packets
// from a pcap or pcapng capture.
type Source struct {
	// capture.
	R io.Reader

	// UDP destination port of the stream.
	// Zero means any port.
	Port int

	// payload type of RTP packets.
	// It defaults to 33.
	PayloadType uint8

	// called when a datagram cannot be decoded (optional).
	OnDecodeError func(error)

	frames       atomic.Uint64
	datagrams    atomic.Uint64
	tsDatagrams  atomic.Uint64
	rtpDatagrams atomic.Uint64
	discarded    atomic.Uint64
}

func (s *Source) openReader() (packetReader, error) {
	br := bufio.NewReader(s.R)

	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("unable to read capture header: %w", err)
	}

	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("invalid pcapng capture: %w", err)
		}
		return r, nil
	}

	r, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("invalid pcap capture: %w", err)
	}
	return r, nil
}

// Run reads the capture until its end and routes extracted packets to w.
// When w is full, writes are retried until they succeed or ctx is canceled.
func (s *Source) Run(ctx context.Context, w Writer) error {
	if s.PayloadType == 0 {
		s.PayloadType = rtpmpegts.PayloadType
	}
	if s.OnDecodeError == nil {
		s.OnDecodeError = func(error) {}
	}

	r, err := s.openReader()
	if err != nil {
		return err
	}

	linkType := r.LinkType()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, _, err := r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		s.frames.Add(1)

		pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{
			Lazy:   true,
			NoCopy: true,
		})

		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}

		if s.Port != 0 && int(udp.DstPort) != s.Port {
			continue
		}

		s.datagrams.Add(1)

		err = s.processDatagram(ctx, udp.Payload, w)
		if err != nil {
			return err
		}
	}
}

func (s *Source) processDatagram(ctx context.Context, payload []byte, w Writer) error {
	if len(payload) != 0 && (len(payload)%mpegts.PacketSize) == 0 && payload[0] == mpegts.SyncByte {
		s.tsDatagrams.Add(1)

		for i := 0; i < len(payload); i += mpegts.PacketSize {
			buf := append([]byte(nil), payload[i:i+mpegts.PacketSize]...)

			err := retry(ctx, func() bool { return w.WriteTS(buf) })
			if err != nil {
				return err
			}
		}
		return nil
	}

	var pkt rtp.Packet
	err := pkt.Unmarshal(payload)
	if err != nil {
		s.discard(fmt.Errorf("datagram is neither MPEG-TS nor RTP: %w", err))
		return nil
	}

	if pkt.PayloadType != s.PayloadType {
		s.discard(fmt.Errorf("unexpected RTP payload type: %d", pkt.PayloadType))
		return nil
	}

	// the payload references the capture buffer.
	pkt.Payload = append([]byte(nil), pkt.Payload...)
	pkt.PayloadType = rtpmpegts.PayloadType

	s.rtpDatagrams.Add(1)
	return retry(ctx, func() bool { return w.WriteRTP(&pkt) })
}

func (s *Source) discard(err error) {
	s.discarded.Add(1)
	s.OnDecodeError(err)
}

func retry(ctx context.Context, cb func() bool) error {
	for !cb() {
		select {
		case <-time.After(retryPeriod):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stats returns statistics.
func (s *Source) Stats() Stats {
	return Stats{
		Frames:       s.frames.Load(),
		Datagrams:    s.datagrams.Load(),
		TSDatagrams:  s.tsDatagrams.Load(),
		RTPDatagrams: s.rtpDatagrams.Load(),
		Discarded:    s.discarded.Load(),
	}
}
