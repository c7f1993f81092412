package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluenviron/tsloss/pkg/bytecounter"
	"github.com/bluenviron/tsloss/pkg/monitor"
	"github.com/bluenviron/tsloss/pkg/mpegts"
	"github.com/bluenviron/tsloss/pkg/pcapsource"
)

type pcapConf struct {
	port        int
	payloadType uint8
	sdpPath     string
	bitOrder    string
	bufferSize  int
	reorder     bool
	json        bool
}

func newPcapCmd() *cobra.Command {
	var conf pcapConf

	cmd := &cobra.Command{
		Use:   "pcap FILE",
		Short: "Count lost packets of a MPEG-TS stream carried by UDP inside a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			return runPcap(ctx, cmd.OutOrStdout(), args[0], &conf)
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&conf.port, "port", 0, "UDP destination port of the stream (0 = any)")
	fl.Uint8Var(&conf.payloadType, "payload-type", 33, "RTP payload type of the stream")
	fl.StringVar(&conf.sdpPath, "sdp", "", "SDP file that describes the stream (overrides port and payload type)")
	fl.StringVar(&conf.bitOrder, "bit-order", "msb", "bit order of packet headers (msb, lsb)")
	fl.IntVar(&conf.bufferSize, "buffer-size", 1024, "size of the analyzer queue (power of two)")
	fl.BoolVar(&conf.reorder, "reorder", false, "reorder RTP packets by sequence number before counting losses")
	fl.BoolVar(&conf.json, "json", false, "print a JSON report")

	return cmd
}

func runPcap(ctx context.Context, out io.Writer, path string, conf *pcapConf) error {
	order, err := mpegts.ParseBitOrder(conf.bitOrder)
	if err != nil {
		return err
	}

	if conf.sdpPath != "" {
		byts, err := os.ReadFile(conf.sdpPath)
		if err != nil {
			return err
		}

		info, err := pcapsource.ParseSDP(byts)
		if err != nil {
			return err
		}

		conf.port = info.Port
		conf.payloadType = info.PayloadType
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bc := bytecounter.New(f, nil)

	m := &monitor.Monitor{
		BitOrder:   order,
		BufferSize: conf.bufferSize,
		ReorderRTP: conf.reorder,
		OnPacketsLost: func(ctx *monitor.OnPacketsLostCtx) {
			slog.Debug("packets lost",
				"pid", ctx.PID,
				"lost", ctx.Lost,
				"cc", ctx.ContinuityCounter)
		},
		OnRTPPacketsLost: func(lost uint64) {
			slog.Debug("RTP packets lost", "lost", lost)
		},
		OnDecodeError: func(err error) {
			slog.Warn("decode error", "error", err)
		},
	}
	err = m.Initialize()
	if err != nil {
		return err
	}

	m.Start()

	src := &pcapsource.Source{
		R:           bc,
		Port:        conf.port,
		PayloadType: conf.payloadType,
		OnDecodeError: func(err error) {
			slog.Warn("datagram discarded", "error", err)
		},
	}

	slog.Info("reading capture", "file", path, "port", conf.port, "payload_type", conf.payloadType)

	start := time.Now()
	err = src.Run(ctx, m)
	m.Close()
	if err != nil {
		return err
	}

	stats := m.Stats()
	srcStats := src.Stats()

	r := newReport(path, m.Losses(), nil)
	r.Bytes = bc.BytesReceived()
	r.Packets = stats.Packets
	r.DurationMS = time.Since(start).Milliseconds()
	r.Extra = map[string]any{
		"frames":           srcStats.Frames,
		"datagrams":        srcStats.Datagrams,
		"discarded":        srcStats.Discarded,
		"rtp_packets_lost": stats.RTPPacketsLost,
		"decode_errors":    stats.DecodeErrors,
	}

	slog.Info("capture completed",
		"datagrams", srcStats.Datagrams,
		"packets", stats.Packets,
		"lost", stats.PacketsLost,
		"rtp_lost", stats.RTPPacketsLost)

	return r.write(out, conf.json)
}
