package main

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcmpegts "github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/tsloss/pkg/mpegts"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	return out.String(), err
}

func TestGenerateAndScan(t *testing.T) {
	dir := t.TempDir()

	for _, order := range []string{"msb", "lsb"} {
		t.Run(order, func(t *testing.T) {
			path := filepath.Join(dir, "ref_"+order+".ts")

			_, err := runCmd(t, "generate", path, "--bit-order", order)
			require.NoError(t, err)

			out, err := runCmd(t, "scan", path, "--bit-order", order, "--check-sync")
			require.NoError(t, err)
			require.Equal(t, "PID 3 has 14 lost packets\n"+
				"PID 4 has 1 lost packets\n", out)
		})
	}
}

func TestScanRepeatedReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.ts")

	_, err := runCmd(t, "generate", path, "--count", "3")
	require.NoError(t, err)

	out, err := runCmd(t, "scan", path, "--json", "--parallelism", "4", "--min-chunk", "2")
	require.NoError(t, err)

	var r report
	err = json.Unmarshal([]byte(out), &r)
	require.NoError(t, err)

	// repetitions are joined by a 0 -> 0 gap for PID 3, a 3 -> 1 gap for PID 4
	// and a 0 -> 0 gap for PID 5.
	require.Equal(t, []reportLoss{
		{PID: 3, Lost: 3*14 + 2*15},
		{PID: 4, Lost: 3*1 + 2*13},
		{PID: 5, Lost: 2 * 15},
	}, r.Losses)
	require.Equal(t, uint64(18), r.Packets)
	require.Equal(t, uint64(18*188), r.Bytes)
	require.Equal(t, 3, r.PIDsObserved)
	require.NotEmpty(t, r.RunID)
}

func TestScanParallelMatchesSequential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "random.ts")

	_, err := runCmd(t, "generate", path, "--random", "--packets", "20000", "--pids", "50", "--loss", "0.02")
	require.NoError(t, err)

	seq, err := runCmd(t, "scan", path, "--sequential")
	require.NoError(t, err)
	require.NotEmpty(t, seq)

	par, err := runCmd(t, "scan", path, "--parallelism", "8", "--min-chunk", "100")
	require.NoError(t, err)
	require.Equal(t, seq, par)
}

func TestScanErrors(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "broken.ts")
	err := os.WriteFile(path, make([]byte, 200), 0o644)
	require.NoError(t, err)

	_, err = runCmd(t, "scan", path)
	require.EqualError(t, err, path+": truncated packet 1: 12 of 188 bytes")

	path = filepath.Join(dir, "nosync.ts")
	err = os.WriteFile(path, make([]byte, 188), 0o644)
	require.NoError(t, err)

	_, err = runCmd(t, "scan", path, "--check-sync")
	require.EqualError(t, err, path+": missing sync byte in packet 0: got 0x00")

	_, err = runCmd(t, "scan", path, "--bit-order", "middle")
	require.EqualError(t, err, "invalid bit order 'middle'")

	_, err = runCmd(t, "--log-level", "loud", "scan", path)
	require.EqualError(t, err, "invalid log level 'loud'")

	path = filepath.Join(dir, "ref.ts")
	_, err = runCmd(t, "generate", path)
	require.NoError(t, err)

	_, err = runCmd(t, "scan", path, "--sequential", "--pid-count", "4")
	require.EqualError(t, err, "worker scanning records [0, 6) failed: PID 4 is out of range [0, 4)")
}

func TestScanTracks(t *testing.T) {
	track := &mcmpegts.Track{
		Codec: &mcmpegts.CodecH264{},
	}

	var muxed bytes.Buffer
	w := &mcmpegts.Writer{
		W:      &muxed,
		Tracks: []*mcmpegts.Track{track},
	}
	err := w.Initialize()
	require.NoError(t, err)

	for i := range 10 {
		err = w.WriteH264(track, int64(i)*3000, int64(i)*3000, [][]byte{
			append([]byte{0x65}, bytes.Repeat([]byte{0x01}, 1000)...), // IDR
		})
		require.NoError(t, err)
	}

	buf, err := mpegts.NewBuffer(muxed.Bytes(), mpegts.BitOrderMSBFirst)
	require.NoError(t, err)

	// drop the third packet of the video track
	var data []byte
	videoPackets := 0
	for i := range buf.Len() {
		if buf.Header(i).PID == track.PID {
			videoPackets++
			if videoPackets == 3 {
				continue
			}
		}
		data = append(data, buf.Packet(i)...)
	}
	require.Greater(t, videoPackets, 3)

	path := filepath.Join(t.TempDir(), "h264.ts")
	err = os.WriteFile(path, data, 0o644)
	require.NoError(t, err)

	out, err := runCmd(t, "scan", path, "--tracks", "--check-sync")
	require.NoError(t, err)
	require.Equal(t, "PID 256 (H264) has 1 lost packets\n", out)

	out, err = runCmd(t, "scan", path, "--tracks", "--json")
	require.NoError(t, err)

	var r report
	err = json.Unmarshal([]byte(out), &r)
	require.NoError(t, err)
	require.Equal(t, []reportLoss{{PID: 256, Lost: 1, Codec: "H264"}}, r.Losses)
}

func TestScanEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ts")
	err := os.WriteFile(path, nil, 0o644)
	require.NoError(t, err)

	out, err := runCmd(t, "scan", path)
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestPcap(t *testing.T) {
	dir := t.TempDir()

	tsPath := filepath.Join(dir, "ref.ts")
	_, err := runCmd(t, "generate", tsPath)
	require.NoError(t, err)

	ts, err := os.ReadFile(tsPath)
	require.NoError(t, err)

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 5004}
	err = udp.SetNetworkLayerForChecksum(ip)
	require.NoError(t, err)

	sb := gopacket.NewSerializeBuffer()
	err = gopacket.SerializeLayers(sb, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		eth, ip, udp, gopacket.Payload(ts))
	require.NoError(t, err)

	var capture bytes.Buffer
	w := pcapgo.NewWriter(&capture)
	err = w.WriteFileHeader(65536, layers.LinkTypeEthernet)
	require.NoError(t, err)
	err = w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(sb.Bytes()),
		Length:        len(sb.Bytes()),
	}, sb.Bytes())
	require.NoError(t, err)

	pcapPath := filepath.Join(dir, "ref.pcap")
	err = os.WriteFile(pcapPath, capture.Bytes(), 0o644)
	require.NoError(t, err)

	sdpPath := filepath.Join(dir, "ref.sdp")
	err = os.WriteFile(sdpPath, []byte("v=0\r\n"+
		"o=- 0 0 IN IP4 10.0.0.1\r\n"+
		"s=Stream\r\n"+
		"c=IN IP4 10.0.0.2\r\n"+
		"t=0 0\r\n"+
		"m=video 5004 RTP/AVP 33\r\n"), 0o644)
	require.NoError(t, err)

	out, err := runCmd(t, "pcap", pcapPath, "--sdp", sdpPath)
	require.NoError(t, err)
	require.Equal(t, "PID 3 has 14 lost packets\n"+
		"PID 4 has 1 lost packets\n", out)

	out, err = runCmd(t, "pcap", pcapPath, "--port", "6000")
	require.NoError(t, err)
	require.Equal(t, "", out)
}
