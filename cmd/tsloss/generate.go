package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/bluenviron/tsloss/pkg/ccloss"
	"github.com/bluenviron/tsloss/pkg/mpegts"
)

// records of the reference stream.
var referenceTable = []ccloss.Record{
	{PID: 3, Counter: 0},
	{PID: 3, Counter: 1},
	{PID: 4, Counter: 1},
	{PID: 5, Counter: 0},
	{PID: 4, Counter: 3},
	{PID: 3, Counter: 0},
}

type generateConf struct {
	count    int
	random   bool
	packets  int
	pids     int
	loss     float64
	seed     uint64
	bitOrder string
}

func newGenerateCmd() *cobra.Command {
	var conf generateConf

	cmd := &cobra.Command{
		Use:   "generate FILE",
		Short: "Write a synthetic MPEG-TS file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runGenerate(args[0], &conf)
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&conf.count, "count", 1, "number of repetitions of the reference table")
	fl.BoolVar(&conf.random, "random", false, "write a random stream instead of the reference table")
	fl.IntVar(&conf.packets, "packets", 100000, "number of packets of the random stream")
	fl.IntVar(&conf.pids, "pids", 16, "number of PIDs of the random stream")
	fl.Float64Var(&conf.loss, "loss", 0.01, "probability of a gap before every packet of the random stream")
	fl.Uint64Var(&conf.seed, "seed", 1, "seed of the random stream")
	fl.StringVar(&conf.bitOrder, "bit-order", "msb", "bit order of packet headers (msb, lsb)")

	return cmd
}

func generateRecords(conf *generateConf) ([]ccloss.Record, error) {
	if !conf.random {
		if conf.count < 0 {
			return nil, fmt.Errorf("invalid count: %d", conf.count)
		}

		ret := make([]ccloss.Record, 0, len(referenceTable)*conf.count)
		for range conf.count {
			ret = append(ret, referenceTable...)
		}
		return ret, nil
	}

	if conf.pids <= 0 || conf.pids > mpegts.MaxPID+1 {
		return nil, fmt.Errorf("invalid PID count: %d", conf.pids)
	}
	if conf.packets < 0 {
		return nil, fmt.Errorf("invalid packet count: %d", conf.packets)
	}

	r := rand.New(rand.NewPCG(conf.seed, conf.seed))
	next := make([]uint8, conf.pids)
	ret := make([]ccloss.Record, conf.packets)

	for i := range ret {
		pid := r.IntN(conf.pids)
		if r.Float64() < conf.loss {
			next[pid] += uint8(1 + r.IntN(15))
		}

		ret[i] = ccloss.Record{
			PID:     uint16(pid),
			Counter: next[pid] & 0x0F,
		}
		next[pid]++
	}

	return ret, nil
}

func runGenerate(path string, conf *generateConf) error {
	order, err := mpegts.ParseBitOrder(conf.bitOrder)
	if err != nil {
		return err
	}

	recs, err := generateRecords(conf)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	w := &mpegts.Writer{W: bw, BitOrder: order}

	for _, rec := range recs {
		err = w.WritePacket(mpegts.Header{
			SyncByte:               mpegts.SyncByte,
			PID:                    rec.PID,
			AdaptationFieldControl: 1,
			ContinuityCounter:      rec.Counter,
		})
		if err != nil {
			return err
		}
	}

	err = bw.Flush()
	if err != nil {
		return err
	}

	slog.Info("stream written", "file", path, "packets", len(recs), "bit_order", order)
	return f.Close()
}
