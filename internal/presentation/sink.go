// Package presentation holds the append-only sinks the coordinator reports
// outcomes and peer observations to.
package presentation

import (
	"github.com/srg/blebeacon/internal/observation"
	"github.com/srg/blebeacon/internal/outcome"
)

// Sink receives coordinator output in emission order. Implementations must not
// block for long and must not call back into the coordinator.
type Sink interface {
	Outcome(o outcome.Outcome)
	Batch(n int)
	Observation(obs observation.PeerObservation)
}

// EntryKind tags an Entry.
type EntryKind int

const (
	EntryOutcome EntryKind = iota
	EntryBatch
	EntryObservation
)

// Entry is one item of sink output, used where output is passed around as values.
type Entry struct {
	Kind        EntryKind
	Outcome     outcome.Outcome
	BatchSize   int
	Observation observation.PeerObservation
}

// Line renders the entry as a human readable line.
func (e Entry) Line() string {
	switch e.Kind {
	case EntryOutcome:
		return e.Outcome.Line()
	case EntryBatch:
		return observation.BatchHeader(e.BatchSize)
	default:
		return e.Observation.Line()
	}
}

// Apply replays the entry on s.
func (e Entry) Apply(s Sink) {
	switch e.Kind {
	case EntryOutcome:
		s.Outcome(e.Outcome)
	case EntryBatch:
		s.Batch(e.BatchSize)
	default:
		s.Observation(e.Observation)
	}
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Outcome(outcome.Outcome)                 {}
func (discard) Batch(int)                               {}
func (discard) Observation(observation.PeerObservation) {}

// Multi fans output out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

type multi []Sink

func (m multi) Outcome(o outcome.Outcome) {
	for _, s := range m {
		s.Outcome(o)
	}
}

func (m multi) Batch(n int) {
	for _, s := range m {
		s.Batch(n)
	}
}

func (m multi) Observation(obs observation.PeerObservation) {
	for _, s := range m {
		s.Observation(obs)
	}
}
