// Package monitor contains a continuity monitor for live MPEG-TS streams.
package monitor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"

	"github.com/bluenviron/tsloss/internal/asyncprocessor"
	"github.com/bluenviron/tsloss/pkg/ccloss"
	"github.com/bluenviron/tsloss/pkg/mpegts"
	"github.com/bluenviron/tsloss/pkg/rtplossdetector"
	"github.com/bluenviron/tsloss/pkg/rtpmpegts"
	"github.com/bluenviron/tsloss/pkg/rtpreorderer"
)

// OnPacketsLostCtx is the context of OnPacketsLost.
type OnPacketsLostCtx struct {
	PID uint16
	// number of packets lost before the current one.
	Lost uint64
	// continuity counter of the current packet.
	ContinuityCounter uint8
}

// Stats are monitor statistics.
type Stats struct {
	// MPEG-TS packets processed.
	Packets uint64
	// MPEG-TS packets lost, according to continuity counters.
	PacketsLost uint64
	// RTP packets lost, according to sequence numbers.
	RTPPacketsLost uint64
	// writes that found the queue full.
	QueueFull uint64
	// packets that could not be decoded.
	DecodeErrors uint64
}

type item struct {
	ts  []byte
	rtp *rtp.Packet
}

// Monitor tracks continuity counters of a live stream.
// Packets are written by a routine and analyzed by another one.
type Monitor struct {
	// number of distinct PIDs.
	// It defaults to 8192.
	PIDCount int

	// bit order of packet headers.
	// It defaults to BitOrderMSBFirst.
	BitOrder mpegts.BitOrder

	// size of the queue between writers and the analyzer.
	// It must be a power of two. It defaults to 1024.
	BufferSize int

	// reorder RTP packets by sequence number before analyzing them.
	// Packets still waiting for a missing one are analyzed by Close.
	ReorderRTP bool

	//
	// callbacks (all optional). They are called by the analyzing routine.
	//
	// called when MPEG-TS packets are lost.
	OnPacketsLost func(*OnPacketsLostCtx)
	// called when RTP packets are lost.
	OnRTPPacketsLost func(uint64)
	// called when there's a non-fatal decoding error.
	OnDecodeError func(error)

	table      *ccloss.Table
	tableMutex sync.Mutex
	rtpDecoder *rtpmpegts.Decoder
	rtpLoss    *rtplossdetector.LossDetector
	reorderer  *rtpreorderer.Reorderer
	processor  *asyncprocessor.Processor[item]

	packets        atomic.Uint64
	packetsLost    atomic.Uint64
	rtpPacketsLost atomic.Uint64
	queueFull      atomic.Uint64
	decodeErrors   atomic.Uint64
}

// Initialize initializes Monitor.
func (m *Monitor) Initialize() error {
	if m.PIDCount == 0 {
		m.PIDCount = ccloss.DefaultPIDCount
	}
	if m.PIDCount < 0 {
		return fmt.Errorf("invalid PID count: %d", m.PIDCount)
	}
	if m.BufferSize == 0 {
		m.BufferSize = 1024
	}
	if m.OnPacketsLost == nil {
		m.OnPacketsLost = func(*OnPacketsLostCtx) {}
	}
	if m.OnRTPPacketsLost == nil {
		m.OnRTPPacketsLost = func(uint64) {}
	}
	if m.OnDecodeError == nil {
		m.OnDecodeError = func(error) {}
	}

	m.table = ccloss.NewTable(m.PIDCount)

	m.rtpDecoder = &rtpmpegts.Decoder{
		BitOrder: m.BitOrder,
	}

	m.rtpLoss = &rtplossdetector.LossDetector{}

	if m.ReorderRTP {
		m.reorderer = &rtpreorderer.Reorderer{}
	}

	m.processor = &asyncprocessor.Processor[item]{
		BufferSize: m.BufferSize,
		Process:    m.process,
	}
	return m.processor.Initialize()
}

// Start starts the analyzing routine.
func (m *Monitor) Start() {
	m.processor.Start()
}

// Close waits until queued packets are analyzed and stops the analyzing routine.
func (m *Monitor) Close() {
	m.processor.Close()

	if m.reorderer != nil {
		for _, pkt := range m.reorderer.Flush() {
			m.processRTPOrdered(pkt)
		}
	}
}

// WriteTS queues a MPEG-TS packet.
// buf must not be modified after the call.
// It returns false if the queue is full and the packet was not queued.
func (m *Monitor) WriteTS(buf []byte) bool {
	return m.push(item{ts: buf})
}

// WriteRTP queues a RTP packet that contains MPEG-TS packets.
// It returns false if the queue is full and the packet was not queued.
func (m *Monitor) WriteRTP(pkt *rtp.Packet) bool {
	return m.push(item{rtp: pkt})
}

func (m *Monitor) push(it item) bool {
	ok := m.processor.Push(it)
	if !ok {
		m.queueFull.Add(1)
	}
	return ok
}

func (m *Monitor) process(it item) error {
	if it.rtp != nil {
		m.processRTP(it.rtp)
	} else {
		m.processTS(it.ts)
	}
	return nil
}

func (m *Monitor) processRTP(pkt *rtp.Packet) {
	if pkt.PayloadType != rtpmpegts.PayloadType {
		m.decodeError(fmt.Errorf("unexpected payload type: %d", pkt.PayloadType))
		return
	}

	if m.reorderer == nil {
		m.processRTPOrdered(pkt)
		return
	}

	for _, ordered := range m.reorderer.Process(pkt) {
		m.processRTPOrdered(ordered)
	}
}

func (m *Monitor) processRTPOrdered(pkt *rtp.Packet) {
	lost := m.rtpLoss.Process(pkt)
	if lost != 0 {
		m.rtpPacketsLost.Add(lost)
		m.OnRTPPacketsLost(lost)
	}

	tsPackets, err := m.rtpDecoder.Decode(pkt)
	if err != nil {
		m.decodeError(err)
		return
	}

	for _, buf := range tsPackets {
		m.processTS(buf)
	}
}

func (m *Monitor) processTS(buf []byte) {
	if len(buf) != mpegts.PacketSize {
		m.decodeError(fmt.Errorf("invalid MPEG-TS packet size: %d", len(buf)))
		return
	}

	h, err := m.BitOrder.Unmarshal(buf)
	if err != nil {
		m.decodeError(err)
		return
	}

	if h.SyncByte != mpegts.SyncByte {
		m.decodeError(fmt.Errorf("missing sync byte: got 0x%02x", h.SyncByte))
		return
	}

	if int(h.PID) >= m.PIDCount {
		m.decodeError(fmt.Errorf("PID %d is out of range [0, %d)", h.PID, m.PIDCount))
		return
	}

	m.tableMutex.Lock()
	lost := m.table.Observe(h.PID, h.ContinuityCounter)
	m.tableMutex.Unlock()

	m.packets.Add(1)

	if lost != 0 {
		m.packetsLost.Add(lost)
		m.OnPacketsLost(&OnPacketsLostCtx{
			PID:               h.PID,
			Lost:              lost,
			ContinuityCounter: h.ContinuityCounter,
		})
	}
}

func (m *Monitor) decodeError(err error) {
	m.decodeErrors.Add(1)
	m.OnDecodeError(err)
}

// Stats returns statistics.
func (m *Monitor) Stats() Stats {
	return Stats{
		Packets:        m.packets.Load(),
		PacketsLost:    m.packetsLost.Load(),
		RTPPacketsLost: m.rtpPacketsLost.Load(),
		QueueFull:      m.queueFull.Load(),
		DecodeErrors:   m.decodeErrors.Load(),
	}
}

// Losses returns the PIDs that lost at least one packet, in ascending order.
func (m *Monitor) Losses() []ccloss.Loss {
	m.tableMutex.Lock()
	defer m.tableMutex.Unlock()
	return m.table.Losses()
}
