// Package ringchan provides a bounded channel that never blocks producers.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
// Producers never block: when the buffer is full the oldest element is dropped
// to make room. Consumers read from C() like from any channel.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	rc.Close()
//	for v := range rc.C() {
//	    fmt.Println(v) // 7, 8, 9
//	}
//
// Sends after Close are discarded and reported as not delivered.
type RingChannel[T any] struct {
	mu     sync.Mutex // serializes producers with Close
	ch     chan T
	closed bool

	written atomic.Int64
	dropped atomic.Int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It returns false only when the channel is closed.
func (rc *RingChannel[T]) Send(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return false
	}

	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return true
		default:
		}

		// Full: a consumer may have drained in between, so the drop is optional.
		select {
		case <-rc.ch:
			rc.dropped.Add(1)
		default:
		}
	}
}

// TrySend inserts v only if there is room.
func (rc *RingChannel[T]) TrySend(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return false
	}
	select {
	case rc.ch <- v:
		rc.written.Add(1)
		return true
	default:
		return false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int { return len(rc.ch) }

// Cap returns the capacity.
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Close closes the receive side. It is safe to call more than once.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}

// Metrics is a snapshot of the channel counters.
type Metrics struct {
	Written int64
	Dropped int64
}

// Metrics returns the current counters.
func (rc *RingChannel[T]) Metrics() Metrics {
	return Metrics{
		Written: rc.written.Load(),
		Dropped: rc.dropped.Load(),
	}
}
