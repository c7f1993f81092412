package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/bluenviron/tsloss/pkg/ccloss"
)

type reportLoss struct {
	PID   uint16 `json:"pid"`
	Lost  uint64 `json:"lost"`
	Codec string `json:"codec,omitempty"`
}

type report struct {
	RunID        string         `json:"run_id"`
	File         string         `json:"file"`
	Bytes        uint64         `json:"bytes"`
	Packets      uint64         `json:"packets"`
	PIDsObserved int            `json:"pids_observed,omitempty"`
	TotalLost    uint64         `json:"total_lost"`
	Losses       []reportLoss   `json:"losses"`
	DurationMS   int64          `json:"duration_ms"`
	Extra        map[string]any `json:"extra,omitempty"`
}

func newReport(file string, losses []ccloss.Loss, codecs map[uint16]string) *report {
	r := &report{
		RunID:  uuid.New().String(),
		File:   file,
		Losses: []reportLoss{},
	}

	for _, l := range losses {
		r.Losses = append(r.Losses, reportLoss{
			PID:   l.PID,
			Lost:  l.Count,
			Codec: codecs[l.PID],
		})
		r.TotalLost += l.Count
	}

	return r
}

func (r *report) write(w io.Writer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	for _, l := range r.Losses {
		var err error
		if l.Codec != "" {
			_, err = fmt.Fprintf(w, "PID %d (%s) has %d lost packets\n", l.PID, l.Codec, l.Lost)
		} else {
			_, err = fmt.Fprintf(w, "PID %d has %d lost packets\n", l.PID, l.Lost)
		}
		if err != nil {
			return err
		}
	}

	return nil
}
