// Package coordinator runs the advertise and scan roles in lockstep with the
// host's foreground lifecycle.
//
// The Coordinator owns the radio state and one session per role. Host signals
// (OnForeground, OnBackground) and radio events (through Deliver and Run, or
// Dispatch) may arrive concurrently from different goroutines; a single mutex
// serializes every transition. Radio events carry the token of the start
// request that produced them, and events whose token or session state no longer
// matches are dropped: they are late callbacks racing a stop.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blebeacon/internal/advertise"
	"github.com/srg/blebeacon/internal/observation"
	"github.com/srg/blebeacon/internal/outcome"
	"github.com/srg/blebeacon/internal/presentation"
	"github.com/srg/blebeacon/internal/radio"
)

// DefaultIngressBuffer is the number of radio events queued ahead of Run.
const DefaultIngressBuffer = 128

// ErrAlreadyRunning is returned by a second concurrent call to Run.
var ErrAlreadyRunning = errors.New("coordinator is already running")

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPolicy overrides advertise.DefaultPolicy.
func WithPolicy(p advertise.Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithIngressBuffer sets the capacity of the event queue.
func WithIngressBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.ingressSize = n
		}
	}
}

// WithClock sets the clock used to stamp observations that arrive without a
// reception time.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithTransitionHook registers fn to observe every session transition. fn runs
// with the coordinator locked and must not call back into it.
func WithTransitionHook(fn func(Transition)) Option {
	return func(c *Coordinator) { c.hook = fn }
}

// Coordinator is the advertise/scan lifecycle state machine.
type Coordinator struct {
	mu sync.Mutex

	radio      radio.Capability
	sink       presentation.Sink
	logger     *logrus.Logger
	policy     advertise.Policy
	aggregator *observation.Aggregator
	tokens     radio.TokenSource
	hook       func(Transition)
	now        func() time.Time

	radioState        RadioState
	pendingForeground bool
	config            advertise.Config
	advSession        session
	scanSession       session

	ingressSize int
	ingress     chan radio.Event
	running     atomic.Bool
	done        chan struct{}
}

// New creates a Coordinator driving capability and reporting to sink.
func New(capability radio.Capability, sink presentation.Sink, opts ...Option) *Coordinator {
	if sink == nil {
		sink = presentation.Discard
	}

	c := &Coordinator{
		radio:       capability,
		sink:        sink,
		logger:      logrus.New(),
		policy:      advertise.DefaultPolicy(),
		ingressSize: DefaultIngressBuffer,
		advSession:  session{role: radio.RoleAdvertise},
		scanSession: session{role: radio.RoleScan},
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.aggregator = observation.NewAggregator(c.now)
	c.ingress = make(chan radio.Event, c.ingressSize)
	return c
}

// OnForeground starts both roles, or asks for the radio to be enabled first
// and starts them once it is. Roles that are already running are left alone.
func (c *Coordinator) OnForeground() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.WithField("radio_state", c.radioState).Debug("Foregrounded")

	if c.radio.IsReady() {
		c.setRadioState(RadioReady)
	} else if c.radioState == RadioReady {
		c.setRadioState(RadioDisabled)
	}

	if c.radioState != RadioReady {
		c.pendingForeground = true
		if c.radioState != RadioEnabling {
			c.setRadioState(RadioEnabling)
			c.logger.Info("Radio not ready, requesting enable")
			c.radio.RequestEnable(c)
		}
		return
	}

	c.startSessions()
}

// OnRadioReady records that the radio became usable and resumes a foreground
// that was waiting for it.
func (c *Coordinator) OnRadioReady() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setRadioState(RadioReady)
	if c.pendingForeground {
		c.startSessions()
	}
}

// OnRadioEnableDenied reports the fatal RadioUnavailable outcome. Both roles
// stay idle; the host is expected to end the foreground session.
func (c *Coordinator) OnRadioEnableDenied() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setRadioState(RadioDisabled)
	c.pendingForeground = false
	c.emit(outcome.NewStartFailed(radio.RoleAdvertise, outcome.RadioUnavailable))
}

// OnBackground stops every running role. Buffered scan results are flushed to
// the sink before the scan role stops. Calling it while both roles are idle
// does nothing.
func (c *Coordinator) OnBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("Backgrounded")

	if c.pendingForeground {
		c.pendingForeground = false
		c.logger.Debug("Cancelled foreground waiting for radio")
	}

	c.stopAdvertise()
	c.stopScan()
}

// OnAdvertiseStarted confirms the advertise start issued with token.
func (c *Coordinator) OnAdvertiseStarted(token radio.Token, effectiveTxPower int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accepts(&c.advSession, token, "advertise started") {
		return
	}
	if c.advSession.state == Active {
		c.logger.WithField("token", token).Debug("Duplicate advertise start confirmation")
		return
	}

	c.transition(&c.advSession, Active)
	c.emit(outcome.NewStarted(radio.RoleAdvertise, effectiveTxPower))
}

// OnAdvertiseStartFailed classifies and reports an advertise failure. The
// session returns to idle and is not retried.
func (c *Coordinator) OnAdvertiseStartFailed(token radio.Token, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accepts(&c.advSession, token, "advertise start failed") {
		return
	}

	c.transition(&c.advSession, Idle)
	c.fail(outcome.NewStartFailed(radio.RoleAdvertise, outcome.ClassifyAdvertiseFailure(code)))
}

// OnScanResult forwards one reception of the scan session issued with token.
func (c *Coordinator) OnScanResult(token radio.Token, raw radio.RawResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accepts(&c.scanSession, token, "scan result") {
		return
	}

	c.confirmScan()
	c.sink.Observation(c.aggregator.OnSingleResult(raw))
}

// OnBatchScanResults forwards a batch of receptions in order.
func (c *Coordinator) OnBatchScanResults(token radio.Token, raws []radio.RawResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accepts(&c.scanSession, token, "batch scan results") {
		return
	}

	c.confirmScan()
	c.forwardBatch(raws)
}

// OnScanFailed classifies and reports a scan failure. The advertise role is
// not affected.
func (c *Coordinator) OnScanFailed(token radio.Token, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accepts(&c.scanSession, token, "scan failed") {
		return
	}

	c.transition(&c.scanSession, Idle)
	c.fail(outcome.NewStartFailed(radio.RoleScan, outcome.ClassifyScanFailure(code)))
}

// Deliver queues a radio event for Run. It implements radio.EventSink. After
// Run has returned, events are dropped.
func (c *Coordinator) Deliver(ev radio.Event) {
	select {
	case c.ingress <- ev:
	case <-c.done:
		c.logger.WithField("event", eventName(ev)).Debug("Dropping radio event after shutdown")
	}
}

// Run applies queued radio events in arrival order until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.ingress:
			c.Dispatch(ev)
		}
	}
}

// Dispatch applies one radio event synchronously.
func (c *Coordinator) Dispatch(ev radio.Event) {
	switch e := ev.(type) {
	case radio.EnableResult:
		if e.Granted {
			c.OnRadioReady()
		} else {
			c.OnRadioEnableDenied()
		}
	case radio.AdvertiseStarted:
		c.OnAdvertiseStarted(e.Token, e.EffectiveTxPower)
	case radio.AdvertiseStartFailed:
		c.OnAdvertiseStartFailed(e.Token, e.Code)
	case radio.ScanResult:
		c.OnScanResult(e.Token, e.Result)
	case radio.BatchScanResults:
		c.OnBatchScanResults(e.Token, e.Results)
	case radio.ScanFailed:
		c.OnScanFailed(e.Token, e.Code)
	default:
		c.logger.WithField("event", eventName(ev)).Warn("Ignoring unknown radio event")
	}
}

// RadioState returns the current radio state.
func (c *Coordinator) RadioState() RadioState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radioState
}

// AdvertiseState returns the state of the advertise role.
func (c *Coordinator) AdvertiseState() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advSession.state
}

// ScanState returns the state of the scan role.
func (c *Coordinator) ScanState() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanSession.state
}

// Config returns the advertise configuration of the latest activation.
func (c *Coordinator) Config() advertise.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// startSessions must be called with mu held and the radio ready.
func (c *Coordinator) startSessions() {
	c.pendingForeground = false

	if c.advSession.state == Idle {
		c.config = advertise.Build(c.policy)
		c.advSession.token = c.tokens.Next(radio.RoleAdvertise)
		c.transition(&c.advSession, Starting)
		c.logger.WithFields(logrus.Fields{
			"token":    c.advSession.token,
			"mode":     c.config.Mode,
			"tx_power": c.config.TxPower,
			"service":  c.config.ServiceID,
		}).Info("Starting advertise")
		c.radio.StartAdvertise(c.advSession.token, c.config, c)
	} else {
		c.logger.WithField("state", c.advSession.state).Debug("Advertise already running")
	}

	if c.scanSession.state == Idle {
		filter := advertise.Build(c.policy).ServiceID
		c.scanSession.token = c.tokens.Next(radio.RoleScan)
		c.transition(&c.scanSession, Starting)
		c.logger.WithFields(logrus.Fields{
			"token":   c.scanSession.token,
			"service": filter,
		}).Info("Starting scan")
		c.radio.StartScan(c.scanSession.token, filter, c)
	} else {
		c.logger.WithField("state", c.scanSession.state).Debug("Scan already running")
	}
}

func (c *Coordinator) stopAdvertise() {
	s := &c.advSession
	if !s.state.running() {
		return
	}

	c.transition(s, Stopping)
	if err := c.radio.StopAdvertise(s.token); err != nil {
		c.logger.WithError(err).WithField("token", s.token).Warn("Stop advertise failed")
		c.emit(outcome.NewStopFailed(radio.RoleAdvertise, outcome.ClassifyError(err)))
	}
	c.transition(s, Idle)
}

func (c *Coordinator) stopScan() {
	s := &c.scanSession
	if !s.state.running() {
		return
	}

	c.transition(s, Stopping)
	if pending := c.radio.FlushPendingScanResults(s.token); len(pending) > 0 {
		c.logger.WithField("count", len(pending)).Debug("Flushed pending scan results")
		c.forwardBatch(pending)
	}
	if err := c.radio.StopScan(s.token); err != nil {
		c.logger.WithError(err).WithField("token", s.token).Warn("Stop scan failed")
		c.emit(outcome.NewStopFailed(radio.RoleScan, outcome.ClassifyError(err)))
	}
	c.transition(s, Idle)
}

func (c *Coordinator) confirmScan() {
	if c.scanSession.state == Starting {
		c.transition(&c.scanSession, Active)
	}
}

func (c *Coordinator) forwardBatch(raws []radio.RawResult) {
	c.sink.Batch(len(raws))
	for _, obs := range c.aggregator.OnBatchResults(raws) {
		c.sink.Observation(obs)
	}
}

// accepts reports whether an event for token may be applied to s.
func (c *Coordinator) accepts(s *session, token radio.Token, event string) bool {
	if token == s.token && s.state.running() {
		return true
	}

	c.logger.WithFields(logrus.Fields{
		"event":         event,
		"token":         token,
		"current_token": s.token,
		"state":         s.state,
	}).Debug("Dropping unexpected radio event")
	return false
}

// fail reports a failure outcome and, when the radio itself is gone, marks it
// disabled so the next foreground asks for it again.
func (c *Coordinator) fail(o outcome.Outcome) {
	if o.Fatal() {
		c.setRadioState(RadioDisabled)
	}
	c.emit(o)
}

func (c *Coordinator) emit(o outcome.Outcome) {
	entry := c.logger.WithFields(logrus.Fields{
		"role":    o.Role,
		"outcome": o.Kind,
	})
	if o.Failed() {
		entry.WithField("reason", o.Reason).Warn(o.Line())
	} else {
		entry.Info(o.Line())
	}
	c.sink.Outcome(o)
}

func (c *Coordinator) transition(s *session, to SessionState) {
	t := Transition{Role: s.role, From: s.state, To: to, Token: s.token}
	s.state = to

	c.logger.WithFields(logrus.Fields{
		"role":  t.Role,
		"from":  t.From,
		"to":    t.To,
		"token": t.Token,
	}).Debug("Session transition")

	if c.hook != nil {
		c.hook(t)
	}
}

func (c *Coordinator) setRadioState(s RadioState) {
	if c.radioState == s {
		return
	}
	c.logger.WithFields(logrus.Fields{
		"from": c.radioState,
		"to":   s,
	}).Debug("Radio state change")
	c.radioState = s
}

func eventName(ev radio.Event) string {
	switch ev.(type) {
	case radio.EnableResult:
		return "enable_result"
	case radio.AdvertiseStarted:
		return "advertise_started"
	case radio.AdvertiseStartFailed:
		return "advertise_start_failed"
	case radio.ScanResult:
		return "scan_result"
	case radio.BatchScanResults:
		return "batch_scan_results"
	case radio.ScanFailed:
		return "scan_failed"
	default:
		return "unknown"
	}
}
