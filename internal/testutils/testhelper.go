package testutils

import (
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/blebeacon/internal/observation"
	"github.com/srg/blebeacon/internal/outcome"
	"github.com/srg/blebeacon/internal/presentation"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger so failing
// tests show the coordinator's decisions.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// RecordingSink is a presentation.Sink that keeps every entry in memory.
type RecordingSink struct {
	mu      sync.Mutex
	entries []presentation.Entry
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Outcome(o outcome.Outcome) {
	s.append(presentation.Entry{Kind: presentation.EntryOutcome, Outcome: o})
}

func (s *RecordingSink) Batch(n int) {
	s.append(presentation.Entry{Kind: presentation.EntryBatch, BatchSize: n})
}

func (s *RecordingSink) Observation(obs observation.PeerObservation) {
	s.append(presentation.Entry{Kind: presentation.EntryObservation, Observation: obs})
}

func (s *RecordingSink) append(e presentation.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Entries returns a copy of everything recorded so far.
func (s *RecordingSink) Entries() []presentation.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]presentation.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Outcomes returns the recorded outcomes only.
func (s *RecordingSink) Outcomes() []outcome.Outcome {
	var out []outcome.Outcome
	for _, e := range s.Entries() {
		if e.Kind == presentation.EntryOutcome {
			out = append(out, e.Outcome)
		}
	}
	return out
}

// Observations returns the recorded observations only.
func (s *RecordingSink) Observations() []observation.PeerObservation {
	var out []observation.PeerObservation
	for _, e := range s.Entries() {
		if e.Kind == presentation.EntryObservation {
			out = append(out, e.Observation)
		}
	}
	return out
}

// Text renders the recorded entries the way the text sink would, without colors.
func (s *RecordingSink) Text() string {
	var b strings.Builder
	for _, e := range s.Entries() {
		b.WriteString(e.Line())
		b.WriteByte('\n')
	}
	return b.String()
}
