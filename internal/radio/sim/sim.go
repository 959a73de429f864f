// Package sim is an in-memory radio.Capability. It plays scripted peers, lets
// tests inject receptions and failures, and records every call it receives.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blebeacon/internal/advertise"
	"github.com/srg/blebeacon/internal/groutine"
	"github.com/srg/blebeacon/internal/radio"
)

// Peer is a simulated remote device. TxPower nil means the peer does not
// advertise its tx power.
type Peer struct {
	Address string
	Name    string
	TxPower *int
	RSSI    int
	Service advertise.ServiceID // zero means advertise.DefaultServiceID
}

// Options describe the simulated radio's behavior.
type Options struct {
	Ready       bool
	GrantEnable bool
	// EffectiveTxPower overrides the power reported on advertise start; nil
	// reports the nominal level of the requested TxPower.
	EffectiveTxPower *int
	AdvertiseFailure int // raw code reported instead of a start; 0 for success
	ScanFailure      int
	StopAdvertiseErr error
	StopScanErr      error
	Peers            []Peer
	// ScanInterval > 0 emits every matching peer once per interval while scanning.
	ScanInterval time.Duration
	// BatchSize > 0 buffers receptions and delivers them as a batch once that
	// many are pending.
	BatchSize int
	// Latency delays every event delivery.
	Latency time.Duration
}

// Call is one recorded Capability invocation.
type Call struct {
	Op    string
	Token radio.Token
}

type delivery struct {
	sink radio.EventSink
	ev   radio.Event
}

type scanSession struct {
	token   radio.Token
	filter  advertise.ServiceID
	sink    radio.EventSink
	cancel  context.CancelFunc
	pending []radio.RawResult
}

// Radio is the simulated capability. Events are delivered in order from a
// single goroutine started by New and stopped by Close.
type Radio struct {
	logger *logrus.Logger
	now    func() time.Time

	mu        sync.Mutex
	opts      Options
	calls     []Call
	advertise radio.Token
	scan      *scanSession

	deliveries chan delivery
	stop       context.CancelFunc
}

// New creates a Radio and starts its delivery goroutine.
func New(opts Options, logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Radio{
		logger:     logger,
		now:        time.Now,
		opts:       opts,
		deliveries: make(chan delivery, 256),
		stop:       cancel,
	}
	groutine.Go(ctx, "sim-deliver", r.deliverLoop)
	return r
}

func (r *Radio) deliverLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-r.deliveries:
			if r.opts.Latency > 0 {
				time.Sleep(r.opts.Latency)
			}
			d.sink.Deliver(d.ev)
		}
	}
}

// Close stops scanning and the delivery goroutine. Undelivered events are lost.
func (r *Radio) Close() {
	r.mu.Lock()
	if r.scan != nil {
		r.scan.cancel()
		r.scan = nil
	}
	r.mu.Unlock()
	r.stop()
}

// post must be called with mu held so events keep their causal order.
func (r *Radio) post(sink radio.EventSink, ev radio.Event) {
	select {
	case r.deliveries <- delivery{sink: sink, ev: ev}:
	default:
		r.logger.WithField("event", ev).Warn("Simulated radio queue full, dropping event")
	}
}

func (r *Radio) record(op string, token radio.Token) {
	r.calls = append(r.calls, Call{Op: op, Token: token})
}

func (r *Radio) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("IsReady", radio.Token{})
	return r.opts.Ready
}

func (r *Radio) RequestEnable(sink radio.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("RequestEnable", radio.Token{})
	if r.opts.GrantEnable {
		r.opts.Ready = true
	}
	r.post(sink, radio.EnableResult{Granted: r.opts.GrantEnable})
}

func (r *Radio) StartAdvertise(token radio.Token, cfg advertise.Config, sink radio.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("StartAdvertise", token)
	if r.opts.AdvertiseFailure != 0 {
		r.post(sink, radio.AdvertiseStartFailed{Token: token, Code: r.opts.AdvertiseFailure})
		return
	}

	tx := int(cfg.TxPower.DBm())
	if r.opts.EffectiveTxPower != nil {
		tx = *r.opts.EffectiveTxPower
	}
	r.advertise = token
	r.logger.WithFields(logrus.Fields{"token": token, "tx_power": tx}).Debug("Simulated advertise started")
	r.post(sink, radio.AdvertiseStarted{Token: token, EffectiveTxPower: tx})
}

func (r *Radio) StopAdvertise(token radio.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("StopAdvertise", token)
	if r.advertise == token {
		r.advertise = radio.Token{}
	}
	return r.opts.StopAdvertiseErr
}

func (r *Radio) StartScan(token radio.Token, filter advertise.ServiceID, sink radio.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("StartScan", token)
	if r.opts.ScanFailure != 0 {
		r.post(sink, radio.ScanFailed{Token: token, Code: r.opts.ScanFailure})
		return
	}
	if r.scan != nil {
		r.scan.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.scan = &scanSession{token: token, filter: filter, sink: sink, cancel: cancel}
	if r.opts.ScanInterval > 0 {
		groutine.Go(ctx, "sim-scan-"+token.String(), func(ctx context.Context) {
			r.emitPeers(ctx, token)
		})
	}
}

func (r *Radio) emitPeers(ctx context.Context, token radio.Token) {
	ticker := time.NewTicker(r.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.scan != nil && r.scan.token == token {
				for _, p := range r.opts.Peers {
					if p.matches(r.scan.filter) {
						r.receive(p.rawResult(r.now()))
					}
				}
			}
			r.mu.Unlock()
		}
	}
}

func (r *Radio) StopScan(token radio.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("StopScan", token)
	if r.scan != nil && r.scan.token == token {
		r.scan.cancel()
		r.scan = nil
	}
	return r.opts.StopScanErr
}

func (r *Radio) FlushPendingScanResults(token radio.Token) []radio.RawResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("FlushPendingScanResults", token)
	if r.scan == nil || r.scan.token != token {
		return nil
	}
	pending := r.scan.pending
	r.scan.pending = nil
	return pending
}

// Inject feeds receptions to the running scan as if they were heard over the
// air; they are subject to batching like scripted peers. It reports whether a
// scan was running.
func (r *Radio) Inject(results ...radio.RawResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scan == nil {
		return false
	}
	for _, raw := range results {
		r.receive(raw)
	}
	return true
}

// FailScan ends the running scan with code, as a stack would after a start.
func (r *Radio) FailScan(code int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scan == nil {
		return false
	}
	r.post(r.scan.sink, radio.ScanFailed{Token: r.scan.token, Code: code})
	r.scan.cancel()
	r.scan = nil
	return true
}

// receive must be called with mu held and a scan running.
func (r *Radio) receive(raw radio.RawResult) {
	s := r.scan
	if r.opts.BatchSize <= 0 {
		r.post(s.sink, radio.ScanResult{Token: s.token, Result: raw})
		return
	}

	s.pending = append(s.pending, raw)
	if len(s.pending) >= r.opts.BatchSize {
		r.post(s.sink, radio.BatchScanResults{Token: s.token, Results: s.pending})
		s.pending = nil
	}
}

// SetReady flips the radio availability, e.g. to simulate the user turning it off.
func (r *Radio) SetReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Ready = ready
}

// Calls returns the recorded calls in order.
func (r *Radio) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ops returns the names of the recorded calls, skipping IsReady polls.
func (r *Radio) Ops() []string {
	var ops []string
	for _, c := range r.Calls() {
		if c.Op != "IsReady" {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

// Scanning reports whether a scan session is running.
func (r *Radio) Scanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scan != nil
}

func (p Peer) matches(filter advertise.ServiceID) bool {
	service := p.Service
	if service.IsZero() {
		service = advertise.DefaultServiceID
	}
	return service == filter
}

func (p Peer) rawResult(at time.Time) radio.RawResult {
	record := &radio.ScanRecord{
		DeviceName:   p.Name,
		TxPowerLevel: radio.TxPowerNotPresent,
	}
	if p.TxPower != nil {
		record.TxPowerLevel = *p.TxPower
	}
	return radio.RawResult{
		Address:    p.Address,
		RSSI:       p.RSSI,
		Record:     record,
		ReceivedAt: at,
	}
}
