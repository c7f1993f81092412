// Package ccloss estimates packet loss from 4-bit continuity counters.
//
// Every packet carries a stream identifier (PID) and a counter that is
// incremented by one, modulo 16, for each packet of the same PID.
// Gaps between consecutive counters of a PID are the number of packets
// that were lost in between.
package ccloss

const (
	// DefaultPIDCount is the number of distinct 13-bit PIDs.
	DefaultPIDCount = 8192

	counterModulo = 16
)

// WrapGap returns the number of counter values skipped between
// previous and current, that is (current - previous - 1) mod 16.
// It returns 0 when current immediately follows previous.
func WrapGap(current uint8, previous uint8) uint8 {
	return (current - previous - 1) & (counterModulo - 1)
}

// Record is a decoded packet record.
type Record struct {
	PID     uint16
	Counter uint8
}

// Records is a sequence of packet records.
type Records interface {
	// Len returns the number of records.
	Len() int

	// At returns the PID and the continuity counter of the i-th record.
	At(i int) (pid uint16, cc uint8)
}

// RecordSlice is a Records made of decoded records.
type RecordSlice []Record

// Len implements Records.
func (s RecordSlice) Len() int {
	return len(s)
}

// At implements Records.
func (s RecordSlice) At(i int) (uint16, uint8) {
	return s[i].PID, s[i].Counter
}

// Loss is the number of packets lost by a PID.
type Loss struct {
	PID   uint16
	Count uint64
}
