package presentation

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blebeacon/internal/observation"
	"github.com/srg/blebeacon/internal/outcome"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// JSONSink writes one JSON object per line. Keys keep a fixed order so the
// stream stays diffable.
type JSONSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger *logrus.Logger
}

// NewJSONSink creates a JSONSink writing to w.
func NewJSONSink(w io.Writer, logger *logrus.Logger) *JSONSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &JSONSink{enc: json.NewEncoder(w), logger: logger}
}

func (s *JSONSink) Outcome(o outcome.Outcome) {
	rec := orderedmap.New[string, any]()
	rec.Set("type", "outcome")
	rec.Set("role", o.Role.String())
	rec.Set("kind", o.Kind.String())
	if o.Failed() {
		rec.Set("reason", o.Reason.String())
		rec.Set("fatal", o.Fatal())
	} else {
		rec.Set("tx_power", o.EffectiveTxPower)
	}
	rec.Set("line", o.Line())
	s.encode(rec)
}

func (s *JSONSink) Batch(n int) {
	rec := orderedmap.New[string, any]()
	rec.Set("type", "batch")
	rec.Set("size", n)
	s.encode(rec)
}

func (s *JSONSink) Observation(obs observation.PeerObservation) {
	rec := orderedmap.New[string, any]()
	rec.Set("type", "observation")
	rec.Set("seq", obs.Seq)
	rec.Set("address", obs.Address)
	// absent fields are encoded as null, never as "" or 0
	rec.Set("name", obs.DeviceName)
	rec.Set("tx_power", obs.TxPower)
	rec.Set("rssi", obs.RSSI)
	rec.Set("batch", obs.Batch)
	rec.Set("received_at", obs.ReceivedAt.UTC().Format(time.RFC3339Nano))
	s.encode(rec)
}

func (s *JSONSink) encode(rec *orderedmap.OrderedMap[string, any]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(rec); err != nil {
		s.logger.WithError(err).Warn("Failed to write JSON record")
	}
}
