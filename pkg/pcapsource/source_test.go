package pcapsource

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/tsloss/pkg/ccloss"
	"github.com/bluenviron/tsloss/pkg/monitor"
	"github.com/bluenviron/tsloss/pkg/mpegts"
	"github.com/bluenviron/tsloss/pkg/rtpmpegts"
)

func udpFrame(t *testing.T, dstPort uint16, payload []byte) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{192, 168, 0, 1},
		DstIP:    net.IP{192, 168, 0, 2},
	}
	udp := &layers.UDP{
		SrcPort: 40000,
		DstPort: layers.UDPPort(dstPort),
	}
	err := udp.SetNetworkLayerForChecksum(ip)
	require.NoError(t, err)

	buf := gopacket.NewSerializeBuffer()
	err = gopacket.SerializeLayers(buf, gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}, eth, ip, udp, gopacket.Payload(payload))
	require.NoError(t, err)

	return buf.Bytes()
}

func writeCapture(t *testing.T, frames [][]byte) []byte {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	err := w.WriteFileHeader(65536, layers.LinkTypeEthernet)
	require.NoError(t, err)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, f := range frames {
		err = w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(f),
			Length:        len(f),
		}, f)
		require.NoError(t, err)
	}

	return buf.Bytes()
}

func tsPackets(t *testing.T, recs []ccloss.Record) [][]byte {
	var buf bytes.Buffer
	w := &mpegts.Writer{W: &buf}
	for _, r := range recs {
		err := w.WritePacket(mpegts.Header{
			SyncByte:               mpegts.SyncByte,
			PID:                    r.PID,
			AdaptationFieldControl: 1,
			ContinuityCounter:      r.Counter,
		})
		require.NoError(t, err)
	}

	data := buf.Bytes()
	ret := make([][]byte, len(recs))
	for i := range ret {
		ret[i] = data[i*mpegts.PacketSize : (i+1)*mpegts.PacketSize]
	}
	return ret
}

func runMonitor(t *testing.T, s *Source) *monitor.Monitor {
	m := &monitor.Monitor{}
	err := m.Initialize()
	require.NoError(t, err)
	m.Start()

	err = s.Run(context.Background(), m)
	require.NoError(t, err)

	m.Close()
	return m
}

func TestSourceRawTS(t *testing.T) {
	pkts := tsPackets(t, []ccloss.Record{
		{PID: 3, Counter: 0},
		{PID: 3, Counter: 1},
		{PID: 4, Counter: 1},
		{PID: 5, Counter: 0},
		{PID: 4, Counter: 3},
		{PID: 3, Counter: 0},
	})

	capture := writeCapture(t, [][]byte{
		udpFrame(t, 1234, bytes.Join(pkts[:3], nil)),
		udpFrame(t, 9999, []byte{1, 2, 3}),
		udpFrame(t, 1234, bytes.Join(pkts[3:], nil)),
	})

	s := &Source{
		R:    bytes.NewReader(capture),
		Port: 1234,
	}
	m := runMonitor(t, s)

	require.Equal(t, []ccloss.Loss{
		{PID: 3, Count: 14},
		{PID: 4, Count: 1},
	}, m.Losses())

	require.Equal(t, Stats{
		Frames:      3,
		Datagrams:   2,
		TSDatagrams: 2,
	}, s.Stats())
}

func TestSourceRTP(t *testing.T) {
	var recs []ccloss.Record
	for i := 0; i < 21; i++ {
		recs = append(recs, ccloss.Record{PID: 256, Counter: uint8(i % 16)})
	}

	ssrc := uint32(1)
	seq := uint16(100)
	enc := &rtpmpegts.Encoder{SSRC: &ssrc, InitialSequenceNumber: &seq}
	err := enc.Init()
	require.NoError(t, err)

	rtpPkts, err := enc.Encode(tsPackets(t, recs))
	require.NoError(t, err)
	require.Len(t, rtpPkts, 3)

	var frames [][]byte
	for i, pkt := range rtpPkts {
		if i == 1 {
			continue
		}
		pkt.PayloadType = 96
		byts, err := pkt.Marshal()
		require.NoError(t, err)
		frames = append(frames, udpFrame(t, 5004, byts))
	}

	var decodeErrors []string

	s := &Source{
		R:           bytes.NewReader(writeCapture(t, frames)),
		Port:        5004,
		PayloadType: 96,
		OnDecodeError: func(err error) {
			decodeErrors = append(decodeErrors, err.Error())
		},
	}
	m := runMonitor(t, s)

	require.Empty(t, decodeErrors)
	require.Equal(t, []ccloss.Loss{{PID: 256, Count: 7}}, m.Losses())
	require.Equal(t, uint64(1), m.Stats().RTPPacketsLost)
	require.Equal(t, uint64(2), s.Stats().RTPDatagrams)
}

func TestSourceDiscard(t *testing.T) {
	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 8, SequenceNumber: 1},
		Payload: []byte{1, 2, 3},
	}
	byts, err := pkt.Marshal()
	require.NoError(t, err)

	var decodeErrors []string

	s := &Source{
		R: bytes.NewReader(writeCapture(t, [][]byte{udpFrame(t, 5004, byts)})),
		OnDecodeError: func(err error) {
			decodeErrors = append(decodeErrors, err.Error())
		},
	}
	runMonitor(t, s)

	require.Equal(t, []string{"unexpected RTP payload type: 8"}, decodeErrors)
	require.Equal(t, uint64(1), s.Stats().Discarded)
}

type fullOnceWriter struct {
	calls int
	ts    [][]byte
}

func (w *fullOnceWriter) WriteTS(buf []byte) bool {
	w.calls++
	if w.calls == 1 {
		return false
	}
	w.ts = append(w.ts, buf)
	return true
}

func (w *fullOnceWriter) WriteRTP(*rtp.Packet) bool {
	return true
}

func TestSourceRetry(t *testing.T) {
	pkts := tsPackets(t, []ccloss.Record{{PID: 1, Counter: 0}})

	s := &Source{
		R: bytes.NewReader(writeCapture(t, [][]byte{udpFrame(t, 1234, pkts[0])})),
	}

	w := &fullOnceWriter{}
	err := s.Run(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, 2, w.calls)
	require.Equal(t, pkts, w.ts)
}

func TestSourceCanceled(t *testing.T) {
	pkts := tsPackets(t, []ccloss.Record{{PID: 1, Counter: 0}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Source{
		R: bytes.NewReader(writeCapture(t, [][]byte{udpFrame(t, 1234, pkts[0])})),
	}
	err := s.Run(ctx, &fullOnceWriter{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSourceInvalidCapture(t *testing.T) {
	s := &Source{R: bytes.NewReader([]byte{1, 2})}
	err := s.Run(context.Background(), &fullOnceWriter{})
	require.Error(t, err)
}
