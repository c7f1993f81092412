// Package asyncprocessor contains an asynchronous processor.
package asyncprocessor

import (
	"context"
	"fmt"

	"github.com/bluenviron/tsloss/pkg/ringbuffer"
)

// Processor is an asynchronous queue processor
// that allows to detach the routine that is reading a stream
// from the routine that is analyzing it.
type Processor[T any] struct {
	// size of the queue. It must be a power of two.
	BufferSize int

	// called in the processing routine for every queued item.
	// When it returns an error, processing stops.
	Process func(T) error

	// called in the processing routine when processing stops because of an error.
	OnError func(context.Context, error)

	running   bool
	buffer    *ringbuffer.RingBuffer[T]
	ctx       context.Context
	ctxCancel func()

	done chan struct{}
}

// Initialize initializes the processor.
func (w *Processor[T]) Initialize() error {
	var err error
	w.buffer, err = ringbuffer.New[T](uint64(w.BufferSize))
	if err != nil {
		return fmt.Errorf("invalid buffer size %d: %w", w.BufferSize, err)
	}

	if w.OnError == nil {
		w.OnError = func(context.Context, error) {}
	}

	w.ctx, w.ctxCancel = context.WithCancel(context.Background())
	w.done = make(chan struct{})

	return nil
}

// Close closes the processor.
// Items that were queued before Close are processed before returning.
func (w *Processor[T]) Close() {
	w.ctxCancel()
	w.buffer.Close()

	if w.running {
		<-w.done
	}
}

// Start starts the processor.
func (w *Processor[T]) Start() {
	w.running = true
	go w.run()
}

func (w *Processor[T]) run() {
	defer close(w.done)

	err := w.runInner()
	if err != nil {
		w.OnError(w.ctx, err)
	}
}

func (w *Processor[T]) runInner() error {
	for {
		item, ok := w.buffer.Pull()
		if !ok {
			return nil
		}

		err := w.Process(item)
		if err != nil {
			return err
		}
	}
}

// Push pushes an item to the queue.
// It returns false if the queue is full.
func (w *Processor[T]) Push(item T) bool {
	return w.buffer.Push(item)
}
