package presentation

import (
	"github.com/srg/blebeacon/internal/observation"
	"github.com/srg/blebeacon/internal/outcome"
	"github.com/srg/blebeacon/internal/ringchan"
)

// DefaultStreamCapacity is the number of entries a StreamSink buffers for a
// slow consumer before it starts dropping the oldest.
const DefaultStreamCapacity = 256

// StreamSink exposes coordinator output as a channel of entries. It never
// blocks the producer.
type StreamSink struct {
	entries *ringchan.RingChannel[Entry]
}

// NewStreamSink creates a StreamSink. capacity <= 0 selects DefaultStreamCapacity.
func NewStreamSink(capacity int) *StreamSink {
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	return &StreamSink{entries: ringchan.New[Entry](capacity)}
}

// Entries returns the receive side of the stream. It is closed by Close.
func (s *StreamSink) Entries() <-chan Entry {
	return s.entries.C()
}

// Dropped returns how many entries were lost to a slow consumer.
func (s *StreamSink) Dropped() int64 {
	return s.entries.Metrics().Dropped
}

// Close ends the stream. Later output is discarded.
func (s *StreamSink) Close() {
	s.entries.Close()
}

func (s *StreamSink) Outcome(o outcome.Outcome) {
	s.entries.Send(Entry{Kind: EntryOutcome, Outcome: o})
}

func (s *StreamSink) Batch(n int) {
	s.entries.Send(Entry{Kind: EntryBatch, BatchSize: n})
}

func (s *StreamSink) Observation(obs observation.PeerObservation) {
	s.entries.Send(Entry{Kind: EntryObservation, Observation: obs})
}
