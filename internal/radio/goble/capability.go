package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/blebeacon/internal/advertise"
	"github.com/srg/blebeacon/internal/groutine"
	"github.com/srg/blebeacon/internal/outcome"
	"github.com/srg/blebeacon/internal/radio"
	"github.com/srg/blebeacon/internal/ringchan"
)

const (
	// DefaultStartGrace is how long an advertise call must run without error
	// before the start is reported as confirmed.
	DefaultStartGrace = 200 * time.Millisecond

	// DefaultBatchSize bounds the results kept between two batch deliveries;
	// older results are overwritten.
	DefaultBatchSize uint32 = 256

	// DefaultStopTimeout bounds how long a stop waits for the radio call to return.
	DefaultStopTimeout = 2 * time.Second
)

// Options tune the capability. Zero fields select the defaults.
type Options struct {
	StartGrace time.Duration
	// BatchWindow > 0 buffers scan results and delivers them as one batch per window.
	BatchWindow time.Duration
	BatchSize   uint32
	StopTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.StartGrace <= 0 {
		o.StartGrace = DefaultStartGrace
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	return o
}

// sessionEvents bounds the events a session queues for its sink; the oldest
// are dropped when the sink falls behind.
const sessionEvents = 256

// session is one running advertise or scan call. Its events are queued and
// handed to the sink by a separate goroutine, so the radio call never blocks
// on the sink and a stop only waits for the radio.
type session struct {
	token  radio.Token
	cancel context.CancelFunc
	done   chan struct{}
	events *ringchan.RingChannel[radio.Event]

	drainMu sync.Mutex
	pending mpmc.RichOverlappedRingBuffer[radio.RawResult] // nil unless batching
}

// drain empties the batch buffer in reception order.
func (s *session) drain(logger *logrus.Logger) []radio.RawResult {
	if s.pending == nil {
		return nil
	}

	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	var out []radio.RawResult
	for !s.pending.IsEmpty() {
		raw, err := s.pending.Dequeue()
		if err != nil {
			logger.WithError(err).Warn("Batch buffer dequeue failed")
			break
		}
		out = append(out, raw)
	}
	return out
}

// Capability is a radio.Capability backed by a go-ble device. The device is
// opened lazily on first use and shared by both roles.
type Capability struct {
	logger *logrus.Logger
	opts   Options

	mu  sync.Mutex
	dev Device

	sessions *hashmap.Map[uint64, *session]
}

// New creates a Capability. A nil logger defaults to logrus.New().
func New(opts Options, logger *logrus.Logger) *Capability {
	if logger == nil {
		logger = logrus.New()
	}
	return &Capability{
		logger:   logger,
		opts:     opts.withDefaults(),
		sessions: hashmap.New[uint64, *session](),
	}
}

// device returns the shared device, opening it if needed. A failed open is
// retried on the next call.
func (c *Capability) device() (Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return c.dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	c.logger.Debug("BLE device opened")
	c.dev = dev
	return dev, nil
}

// IsReady reports whether the BLE device can be opened.
func (c *Capability) IsReady() bool {
	_, err := c.device()
	if err != nil {
		c.logger.WithError(err).Debug("BLE device not ready")
	}
	return err == nil
}

// RequestEnable retries opening the device; the host stack offers no consent
// flow, so the answer is whether the adapter is usable now.
func (c *Capability) RequestEnable(sink radio.EventSink) {
	groutine.Go(context.Background(), "ble-enable", func(context.Context) {
		_, err := c.device()
		if err != nil {
			c.logger.WithError(err).Warn("BLE adapter unavailable")
		}
		sink.Deliver(radio.EnableResult{Granted: err == nil})
	})
}

func (c *Capability) StartAdvertise(token radio.Token, cfg advertise.Config, sink radio.EventSink) {
	logger := c.logger.WithField("token", token)

	fail := func(code int, reason string) {
		logger.WithField("code", code).Warn(reason)
		groutine.Go(context.Background(), "advertise-failed", func(context.Context) {
			sink.Deliver(radio.AdvertiseStartFailed{Token: token, Code: code})
		})
	}

	if !cfg.FitsLegacyPayload() {
		fail(outcome.AdvertiseFailedDataTooLarge, fmt.Sprintf("Advertise payload is %d bytes, limit %d", cfg.PayloadLength(), advertise.MaxLegacyPayload))
		return
	}
	if c.active(radio.RoleAdvertise) {
		fail(outcome.AdvertiseFailedAlreadyStarted, "Advertise already running")
		return
	}
	uuid, err := ble.Parse(cfg.ServiceID.String())
	if err != nil {
		fail(outcome.AdvertiseFailedInternalError, "Invalid service UUID")
		return
	}
	dev, err := c.device()
	if err != nil {
		fail(failureCode(radio.RoleAdvertise, err), "BLE device unavailable")
		return
	}

	name := ""
	if cfg.IncludeDeviceName {
		name = cfg.DeviceName
	}
	packet, err := buildAdvertising(cfg, name, uuid)
	if err != nil {
		fail(outcome.AdvertiseFailedDataTooLarge, err.Error())
		return
	}

	var advertiseOn func(ctx context.Context) error
	if pa, ok := dev.(PacketAdvertiser); ok {
		advertiseOn = func(ctx context.Context) error { return pa.AdvertisePacket(ctx, packet) }
	} else {
		// name and service lists only, always connectable
		if !cfg.Connectable || cfg.IncludeTxPower {
			fail(outcome.AdvertiseFailedFeatureUnsupported, "Device only advertises connectable name and services")
			return
		}
		logger.WithField("mode", cfg.Mode).Debug("Advertising interval left to the platform")
		advertiseOn = func(ctx context.Context) error { return dev.AdvertiseNameAndServices(ctx, name, uuid) }
	}

	s, ctx := c.open(token, sink)
	groutine.Go(ctx, "advertise-"+token.String(), func(ctx context.Context) {
		defer close(s.done)
		defer s.events.Close()
		c.runAdvertise(ctx, s, cfg, advertiseOn)
	})
}

func (c *Capability) runAdvertise(ctx context.Context, s *session, cfg advertise.Config, advertiseOn func(context.Context) error) {
	logger := c.logger.WithField("token", s.token)
	txPower := int(cfg.TxPower.DBm())

	radioCtx := ctx
	if timeout := cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		radioCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	groutine.Go(radioCtx, "advertise-radio", func(ctx context.Context) {
		errCh <- advertiseOn(ctx)
	})

	grace := time.NewTimer(c.opts.StartGrace)
	defer grace.Stop()

	started := func() {
		logger.WithField("tx_power", txPower).Debug("Advertising")
		s.events.Send(radio.AdvertiseStarted{Token: s.token, EffectiveTxPower: txPower})
	}

	select {
	case err := <-errCh:
		if timedOut(ctx, radioCtx) {
			// the time limit ran out before the grace period
			started()
		}
		c.advertiseEnded(ctx, radioCtx, s, err)
		return
	case <-grace.C:
		started()
	}

	c.advertiseEnded(ctx, radioCtx, s, <-errCh)
}

// timedOut reports whether radioCtx hit the advertising time limit while the
// session itself is still running.
func timedOut(ctx, radioCtx context.Context) bool {
	return ctx.Err() == nil && errors.Is(radioCtx.Err(), context.DeadlineExceeded)
}

// advertiseEnded reports an advertise call that returned on its own. Returns
// caused by a stop are not failures, and neither is the time limit.
func (c *Capability) advertiseEnded(ctx, radioCtx context.Context, s *session, err error) {
	if ctx.Err() != nil {
		return
	}
	c.sessions.Del(s.token.Seq)

	logger := c.logger.WithField("token", s.token)
	if timedOut(ctx, radioCtx) {
		logger.Info("Advertising time limit reached")
		return
	}

	code := failureCode(radio.RoleAdvertise, err)
	logger.WithError(err).WithField("code", code).Warn("Advertising ended unexpectedly")
	s.events.Send(radio.AdvertiseStartFailed{Token: s.token, Code: code})
}

func (c *Capability) StopAdvertise(token radio.Token) error {
	return c.stop(token)
}

func (c *Capability) StartScan(token radio.Token, filter advertise.ServiceID, sink radio.EventSink) {
	logger := c.logger.WithField("token", token)

	fail := func(code int, reason string) {
		logger.WithField("code", code).Warn(reason)
		groutine.Go(context.Background(), "scan-failed", func(context.Context) {
			sink.Deliver(radio.ScanFailed{Token: token, Code: code})
		})
	}

	if c.active(radio.RoleScan) {
		fail(outcome.ScanFailedAlreadyStarted, "Scan already running")
		return
	}
	want, err := ble.Parse(filter.String())
	if err != nil {
		fail(outcome.ScanFailedInternalError, "Invalid service UUID")
		return
	}
	dev, err := c.device()
	if err != nil {
		fail(failureCode(radio.RoleScan, err), "BLE device unavailable")
		return
	}

	s, ctx := c.open(token, sink)
	if c.opts.BatchWindow > 0 {
		s.pending = mpmc.NewOverlappedRingBuffer[radio.RawResult](c.opts.BatchSize)
		groutine.Go(ctx, "scan-batch-"+token.String(), func(ctx context.Context) {
			c.pumpBatches(ctx, s)
		})
	}

	handler := func(adv ble.Advertisement) {
		if !advertises(adv, want) {
			return
		}
		raw := ToRawResult(adv, time.Now())
		if s.pending == nil {
			s.events.Send(radio.ScanResult{Token: token, Result: raw})
			return
		}
		if overwrites, err := s.pending.EnqueueM(raw); err != nil {
			logger.WithError(err).Warn("Batch buffer enqueue failed")
		} else if overwrites > 0 {
			logger.WithField("overwritten", overwrites).Debug("Batch buffer full, dropped oldest results")
		}
	}

	groutine.Go(ctx, "scan-"+token.String(), func(ctx context.Context) {
		defer close(s.done)
		defer s.events.Close()
		logger.WithField("service", filter).Debug("Scanning")

		err := dev.Scan(ctx, true, handler)
		if ctx.Err() != nil {
			return
		}
		c.sessions.Del(token.Seq)

		code := failureCode(radio.RoleScan, err)
		logger.WithError(err).WithField("code", code).Warn("Scan ended unexpectedly")
		s.events.Send(radio.ScanFailed{Token: token, Code: code})
	})
}

func (c *Capability) pumpBatches(ctx context.Context, s *session) {
	ticker := time.NewTicker(c.opts.BatchWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if batch := s.drain(c.logger); len(batch) > 0 {
				s.events.Send(radio.BatchScanResults{Token: s.token, Results: batch})
			}
		}
	}
}

func (c *Capability) StopScan(token radio.Token) error {
	return c.stop(token)
}

// FlushPendingScanResults returns the results buffered for the next batch.
func (c *Capability) FlushPendingScanResults(token radio.Token) []radio.RawResult {
	s, ok := c.sessions.Get(token.Seq)
	if !ok {
		return nil
	}
	return s.drain(c.logger)
}

// Close stops every session and releases the device.
func (c *Capability) Close() error {
	var tokens []radio.Token
	c.sessions.Range(func(_ uint64, s *session) bool {
		tokens = append(tokens, s.token)
		return true
	})
	for _, token := range tokens {
		if err := c.stop(token); err != nil {
			c.logger.WithError(err).Warn("Failed to stop session on close")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return nil
	}
	err := NormalizeError(c.dev.Stop())
	c.dev = nil
	return err
}

// open registers a session for token and starts handing its events to sink.
func (c *Capability) open(token radio.Token, sink radio.EventSink) (*session, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		token:  token,
		cancel: cancel,
		done:   make(chan struct{}),
		events: ringchan.New[radio.Event](sessionEvents),
	}
	c.sessions.Set(token.Seq, s)

	groutine.Go(ctx, "events-"+token.String(), func(ctx context.Context) {
		defer cancel()
		for ev := range s.events.C() {
			// a stopped session reports nothing more
			if ctx.Err() != nil {
				continue
			}
			sink.Deliver(ev)
		}
		if dropped := s.events.Metrics().Dropped; dropped > 0 {
			c.logger.WithFields(logrus.Fields{"token": token, "dropped": dropped}).Debug("Sink fell behind, events were dropped")
		}
	})
	return s, ctx
}

func (c *Capability) active(role radio.Role) bool {
	found := false
	c.sessions.Range(func(_ uint64, s *session) bool {
		found = s.token.Role == role
		return !found
	})
	return found
}

// stop cancels the session and waits for its radio call to return. Events
// still queued for the sink are discarded.
func (c *Capability) stop(token radio.Token) error {
	s, ok := c.sessions.Get(token.Seq)
	if !ok {
		// already ended on its own, or never started
		c.logger.WithField("token", token).Debug("Stop for inactive session")
		return nil
	}
	c.sessions.Del(token.Seq)
	s.cancel()

	select {
	case <-s.done:
		c.logger.WithField("token", token).Debug("Session stopped")
		return nil
	case <-time.After(c.opts.StopTimeout):
		return fmt.Errorf("stopping %s: radio did not return within %s", token, c.opts.StopTimeout)
	}
}
