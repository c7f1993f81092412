package ccloss

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ChunkCtx is the context of OnChunk.
type ChunkCtx struct {
	// index of the first record of the chunk.
	Offset int
	// number of records of the chunk.
	Length int
	// time spent scanning the chunk.
	Duration time.Duration
}

// WorkerError is returned when a worker fails.
type WorkerError struct {
	Offset int
	Length int
	Value  any
	Stack  []byte
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker scanning records [%d, %d) failed: %v",
		e.Offset, e.Offset+e.Length, e.Value)
}

// Scanner scans records, sequentially or in parallel.
type Scanner struct {
	// number of distinct PIDs.
	// It defaults to 8192.
	PIDCount int

	// maximum number of concurrent workers.
	// It defaults to runtime.NumCPU().
	Parallelism int

	// records below this size are scanned by a single worker.
	// It defaults to 4096.
	MinChunkSize int

	// called after a worker has scanned a chunk (optional).
	// It may be called concurrently from multiple routines.
	OnChunk func(*ChunkCtx)

	sem *semaphore.Weighted
}

// Initialize initializes Scanner.
func (s *Scanner) Initialize() error {
	if s.PIDCount == 0 {
		s.PIDCount = DefaultPIDCount
	}
	if s.PIDCount < 0 || s.PIDCount > DefaultPIDCount*8 {
		return fmt.Errorf("invalid PID count: %d", s.PIDCount)
	}
	if s.Parallelism == 0 {
		s.Parallelism = runtime.NumCPU()
	}
	if s.Parallelism < 0 {
		return fmt.Errorf("invalid parallelism: %d", s.Parallelism)
	}
	if s.MinChunkSize == 0 {
		s.MinChunkSize = 4096
	}
	if s.MinChunkSize < 0 {
		return fmt.Errorf("invalid minimum chunk size: %d", s.MinChunkSize)
	}
	if s.OnChunk == nil {
		s.OnChunk = func(*ChunkCtx) {}
	}

	// the calling routine is a worker too.
	s.sem = semaphore.NewWeighted(int64(s.Parallelism - 1))

	return nil
}

// Scan scans records sequentially.
// It panics if a PID is out of range.
func (s *Scanner) Scan(records Records) *Table {
	t := NewTable(s.PIDCount)
	s.scanChunk(t, records, 0, records.Len())
	return t
}

// ScanParallel scans records by splitting them into halves
// that are scanned concurrently and then merged.
// The result is the same as the one of Scan.
func (s *Scanner) ScanParallel(records Records) (*Table, error) {
	return s.scanSplit(records, 0, records.Len(), s.Parallelism)
}

func (s *Scanner) scanSplit(records Records, offset int, length int, budget int) (*Table, error) {
	if length <= s.MinChunkSize || budget <= 1 {
		return s.scanWorker(records, offset, length)
	}

	leftLength := length / 2
	rightBudget := budget / 2

	var right *Table
	rightScan := func() error {
		var err error
		right, err = s.scanSplit(records, offset+leftLength, length-leftLength, rightBudget)
		return err
	}

	var g errgroup.Group
	spawned := s.sem.TryAcquire(1)
	if spawned {
		g.Go(func() error {
			defer s.sem.Release(1)
			return rightScan()
		})
	}

	left, err := s.scanSplit(records, offset, leftLength, budget-rightBudget)

	var rightErr error
	if spawned {
		rightErr = g.Wait()
	} else if err == nil {
		rightErr = rightScan()
	}

	if err != nil {
		return nil, err
	}
	if rightErr != nil {
		return nil, rightErr
	}

	left.Merge(right)
	return left, nil
}

func (s *Scanner) scanWorker(records Records, offset int, length int) (t *Table, err error) {
	defer func() {
		if v := recover(); v != nil {
			t = nil
			err = &WorkerError{
				Offset: offset,
				Length: length,
				Value:  v,
				Stack:  debug.Stack(),
			}
		}
	}()

	t = NewTable(s.PIDCount)
	s.scanChunk(t, records, offset, length)
	return t, nil
}

func (s *Scanner) scanChunk(t *Table, records Records, offset int, length int) {
	start := time.Now()
	scanRange(t, records, offset, length)

	s.OnChunk(&ChunkCtx{
		Offset:   offset,
		Length:   length,
		Duration: time.Since(start),
	})
}
