package ccloss

import (
	"fmt"
)

// State is the state of a single PID inside a region of records.
type State struct {
	// number of packets lost between observations of the region.
	Count uint64

	// first counter observed in the region.
	InitialCounter uint8

	// last counter observed in the region.
	LastCounter uint8

	// whether the PID has been observed at all.
	Set bool
}

// Table contains a State for each PID.
// PIDs are used as indexes into a dense array.
type Table struct {
	states []State
}

// NewTable allocates a Table able to hold pidCount PIDs.
func NewTable(pidCount int) *Table {
	return &Table{
		states: make([]State, pidCount),
	}
}

// Len returns the number of PIDs the table can hold.
func (t *Table) Len() int {
	return len(t.states)
}

// State returns the state of a PID.
func (t *Table) State(pid uint16) State {
	return t.states[t.index(pid)]
}

func (t *Table) index(pid uint16) int {
	if int(pid) >= len(t.states) {
		panic(fmt.Sprintf("PID %d is out of range [0, %d)", pid, len(t.states)))
	}
	return int(pid)
}

// Observe processes the counter of a record that follows
// all the records observed so far.
// It returns the number of packets lost before the record.
func (t *Table) Observe(pid uint16, cc uint8) uint64 {
	st := &t.states[t.index(pid)]
	if cc >= counterModulo {
		panic(fmt.Sprintf("continuity counter %d is out of range [0, %d)", cc, counterModulo))
	}

	if !st.Set {
		st.Set = true
		st.InitialCounter = cc
		st.LastCounter = cc
		st.Count = 0
		return 0
	}

	lost := uint64(WrapGap(cc, st.LastCounter))
	st.Count += lost
	st.LastCounter = cc
	return lost
}

// Merge merges into t the table of the region that immediately follows t's region.
// The boundary gap is computed between the last counter of t
// and the first counter of the following region.
func (t *Table) Merge(next *Table) {
	if len(t.states) != len(next.states) {
		panic(fmt.Sprintf("cannot merge tables of different size (%d and %d)",
			len(t.states), len(next.states)))
	}

	for i := range t.states {
		n := &next.states[i]
		if !n.Set {
			continue
		}

		st := &t.states[i]
		if !st.Set {
			*st = *n
			continue
		}

		st.Count += n.Count + uint64(WrapGap(n.InitialCounter, st.LastCounter))
		st.LastCounter = n.LastCounter
	}
}

// Losses returns the PIDs that lost at least one packet, in ascending order.
func (t *Table) Losses() []Loss {
	var ret []Loss

	for i, st := range t.states {
		if st.Set && st.Count > 0 {
			ret = append(ret, Loss{
				PID:   uint16(i),
				Count: st.Count,
			})
		}
	}

	return ret
}

// Total returns the number of packets lost by all PIDs.
func (t *Table) Total() uint64 {
	n := uint64(0)
	for _, st := range t.states {
		n += st.Count
	}
	return n
}

// Observed returns the number of PIDs that have been observed.
func (t *Table) Observed() int {
	n := 0
	for _, st := range t.states {
		if st.Set {
			n++
		}
	}
	return n
}

// Scan processes records sequentially.
// Every PID must be lower than pidCount.
func Scan(records Records, pidCount int) *Table {
	t := NewTable(pidCount)
	scanRange(t, records, 0, records.Len())
	return t
}

func scanRange(t *Table, records Records, offset int, length int) {
	for i := offset; i < offset+length; i++ {
		t.Observe(records.At(i))
	}
}
