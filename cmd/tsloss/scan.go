package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluenviron/tsloss/pkg/bytecounter"
	"github.com/bluenviron/tsloss/pkg/ccloss"
	"github.com/bluenviron/tsloss/pkg/mpegts"
)

type scanConf struct {
	parallelism  int
	minChunkSize int
	pidCount     int
	bitOrder     string
	sequential   bool
	checkSync    bool
	tracks       bool
	json         bool
}

func newScanCmd() *cobra.Command {
	var conf scanConf

	cmd := &cobra.Command{
		Use:   "scan FILE",
		Short: "Count lost packets of every PID of a MPEG-TS file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.OutOrStdout(), args[0], &conf)
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&conf.parallelism, "parallelism", 0, "maximum number of workers (0 = number of CPUs)")
	fl.IntVar(&conf.minChunkSize, "min-chunk", 0, "minimum number of packets scanned by a worker (0 = default)")
	fl.IntVar(&conf.pidCount, "pid-count", ccloss.DefaultPIDCount, "number of distinct PIDs")
	fl.StringVar(&conf.bitOrder, "bit-order", "msb", "bit order of packet headers (msb, lsb)")
	fl.BoolVar(&conf.sequential, "sequential", false, "scan with a single worker")
	fl.BoolVar(&conf.checkSync, "check-sync", false, "fail if a packet doesn't start with a sync byte")
	fl.BoolVar(&conf.tracks, "tracks", false, "print the codec of every PID")
	fl.BoolVar(&conf.json, "json", false, "print a JSON report")

	return cmd
}

func runScan(out io.Writer, path string, conf *scanConf) error {
	order, err := mpegts.ParseBitOrder(conf.bitOrder)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bc := bytecounter.New(f, nil)

	r := &mpegts.Reader{
		R:         bc,
		BitOrder:  order,
		CheckSync: conf.checkSync,
	}

	buf, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if conf.sequential {
		conf.parallelism = 1
	}

	s := &ccloss.Scanner{
		PIDCount:     conf.pidCount,
		Parallelism:  conf.parallelism,
		MinChunkSize: conf.minChunkSize,
		OnChunk: func(ctx *ccloss.ChunkCtx) {
			slog.Debug("chunk scanned",
				"offset", ctx.Offset,
				"length", ctx.Length,
				"duration", ctx.Duration)
		},
	}
	err = s.Initialize()
	if err != nil {
		return err
	}

	slog.Info("scanning",
		"file", path,
		"bytes", bc.BytesReceived(),
		"packets", buf.Len(),
		"parallelism", s.Parallelism,
		"bit_order", order)

	start := time.Now()

	table, err := s.ScanParallel(buf)
	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	var codecs map[uint16]string
	if conf.tracks {
		codecs, err = readTrackCodecs(path)
		if err != nil {
			slog.Warn("unable to read tracks", "error", err)
		}
	}

	rep := newReport(path, table.Losses(), codecs)
	rep.Bytes = bc.BytesReceived()
	rep.Packets = uint64(buf.Len())
	rep.PIDsObserved = table.Observed()
	rep.DurationMS = elapsed.Milliseconds()

	slog.Info("scan completed",
		"pids", rep.PIDsObserved,
		"lost", rep.TotalLost,
		"duration", elapsed)

	return rep.write(out, conf.json)
}
