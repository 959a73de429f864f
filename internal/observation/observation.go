// Package observation turns raw scan receptions into peer observations.
package observation

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/srg/blebeacon/internal/radio"
)

// PeerObservation is one sighting of a peer. DeviceName and TxPower are nil
// when the advertisement did not carry them; a nil TxPower is distinct from a
// tx power of 0 dBm. Repeated sightings of the same peer are distinct observations.
type PeerObservation struct {
	Seq        uint64
	Address    string
	DeviceName *string
	TxPower    *int8
	RSSI       int8
	ReceivedAt time.Time
	Batch      bool
}

// Name returns the device name or "unknown".
func (o PeerObservation) Name() string {
	if o.DeviceName == nil {
		return "unknown"
	}
	return *o.DeviceName
}

// Line renders the observation as "TX: <tx> RX: <rssi> from <name|unknown>.".
func (o PeerObservation) Line() string {
	tx := "unknown"
	if o.TxPower != nil {
		tx = fmt.Sprintf("%d", *o.TxPower)
	}
	return fmt.Sprintf("TX: %s RX: %d from %s.", tx, o.RSSI, o.Name())
}

// BatchHeader is the line printed ahead of the observations of one batch.
func BatchHeader(n int) string {
	return fmt.Sprintf("Received %d batch results:", n)
}

// Aggregator converts raw results into observations, stamping each with a
// sequence number that increases across calls. It is safe for concurrent use.
type Aggregator struct {
	seq atomic.Uint64
	now func() time.Time
}

// NewAggregator creates an Aggregator. A nil clock defaults to time.Now; it
// stamps results that arrive without a reception time.
func NewAggregator(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{now: now}
}

// OnSingleResult converts one reception.
func (a *Aggregator) OnSingleResult(raw radio.RawResult) PeerObservation {
	return a.convert(raw, false)
}

// OnBatchResults converts a batch 1:1, preserving order. No filtering is applied.
func (a *Aggregator) OnBatchResults(raws []radio.RawResult) []PeerObservation {
	out := make([]PeerObservation, len(raws))
	for i, raw := range raws {
		out[i] = a.convert(raw, true)
	}
	return out
}

func (a *Aggregator) convert(raw radio.RawResult, batch bool) PeerObservation {
	obs := PeerObservation{
		Seq:        a.seq.Add(1),
		Address:    raw.Address,
		RSSI:       clampInt8(raw.RSSI),
		ReceivedAt: raw.ReceivedAt,
		Batch:      batch,
	}
	if obs.ReceivedAt.IsZero() {
		obs.ReceivedAt = a.now()
	}

	if raw.Record.HasDeviceName() {
		name := raw.Record.DeviceName
		obs.DeviceName = &name
	}
	if raw.Record.HasTxPower() {
		tx := clampInt8(raw.Record.TxPowerLevel)
		obs.TxPower = &tx
	}

	return obs
}

func clampInt8(v int) int8 {
	switch {
	case v > math.MaxInt8:
		return math.MaxInt8
	case v < math.MinInt8:
		return math.MinInt8
	default:
		return int8(v)
	}
}
