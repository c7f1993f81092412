// Package bytecounter contains a io.Reader wrapper that counts read bytes.
package bytecounter

import (
	"io"
	"sync/atomic"
)

// ByteCounter is a io.Reader wrapper that counts read bytes.
type ByteCounter struct {
	r        io.Reader
	received *uint64
}

// New allocates a ByteCounter.
// The counter is allocated when nil.
func New(r io.Reader, received *uint64) *ByteCounter {
	if received == nil {
		received = new(uint64)
	}

	return &ByteCounter{
		r:        r,
		received: received,
	}
}

// Read implements io.Reader.
func (bc *ByteCounter) Read(p []byte) (int, error) {
	n, err := bc.r.Read(p)
	atomic.AddUint64(bc.received, uint64(n))
	return n, err
}

// BytesReceived returns the number of bytes read.
func (bc *ByteCounter) BytesReceived() uint64 {
	return atomic.LoadUint64(bc.received)
}
