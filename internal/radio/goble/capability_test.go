package goble_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
	"github.com/srg/blebeacon/internal/advertise"
	"github.com/srg/blebeacon/internal/coordinator"
	"github.com/srg/blebeacon/internal/outcome"
	"github.com/srg/blebeacon/internal/radio"
	"github.com/srg/blebeacon/internal/radio/goble"
	"github.com/srg/blebeacon/internal/testutils"
	"github.com/srg/blebeacon/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const peerService = "52dcaf8e-2d15-11e5-b345-feff819cdc9f"

type CapabilityTestSuite struct {
	suite.Suite

	originalFactory func() (goble.Device, error)
	helper          *testutils.TestHelper
	device          *mocks.MockDevice
	tokens          radio.TokenSource
	events          chan radio.Event
	sink            radio.EventSink
}

func (suite *CapabilityTestSuite) SetupSuite() {
	suite.originalFactory = goble.DeviceFactory
}

func (suite *CapabilityTestSuite) TearDownSuite() {
	goble.DeviceFactory = suite.originalFactory
}

func (suite *CapabilityTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.device = &mocks.MockDevice{}
	suite.device.On("Stop").Return(nil).Maybe()
	goble.DeviceFactory = func() (goble.Device, error) { return suite.device, nil }

	suite.events = make(chan radio.Event, 32)
	suite.sink = radio.EventSinkFunc(func(ev radio.Event) { suite.events <- ev })
}

func (suite *CapabilityTestSuite) newCapability(opts goble.Options) *goble.Capability {
	if opts.StartGrace == 0 {
		opts.StartGrace = 10 * time.Millisecond
	}
	c := goble.New(opts, suite.helper.Logger)
	suite.T().Cleanup(func() { _ = c.Close() })
	return c
}

func (suite *CapabilityTestSuite) next() radio.Event {
	select {
	case ev := <-suite.events:
		return ev
	case <-time.After(2 * time.Second):
		suite.FailNow("no radio event delivered")
		return nil
	}
}

func (suite *CapabilityTestSuite) assertNoEvent() {
	select {
	case ev := <-suite.events:
		suite.Failf("unexpected event", "%#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func (suite *CapabilityTestSuite) TestAdvertiseConfirmedAfterGrace() {
	advertised := make(chan goble.Advertising, 1)
	suite.device.On("AdvertisePacket", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			advertised <- args.Get(1).(goble.Advertising)
			mocks.BlockUntilDone(args)
		}).
		Return(context.Canceled)

	c := suite.newCapability(goble.Options{})
	token := suite.tokens.Next(radio.RoleAdvertise)
	policy := advertise.DefaultPolicy()
	policy.DeviceName = "peerA"

	c.StartAdvertise(token, advertise.Build(policy), suite.sink)

	suite.Equal(radio.AdvertiseStarted{Token: token, EffectiveTxPower: 1}, suite.next())
	a := <-advertised
	suite.False(a.Connectable)
	suite.Equal(time.Second, a.Interval)
	packet := adv.NewRawPacket(a.Data)
	suite.Equal("peerA", packet.LocalName())
	suite.Equal([]byte{0x01}, packet.Field(0x0A), "tx power level 1 dBm")
	suite.Require().Len(packet.UUIDs(), 1)
	suite.True(packet.UUIDs()[0].Equal(ble.MustParse(peerService)))
	suite.Empty(a.ScanResponse)

	suite.NoError(c.StopAdvertise(token))
	suite.assertNoEvent()
	suite.device.AssertNotCalled(suite.T(), "AdvertiseNameAndServices", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *CapabilityTestSuite) TestAdvertiseEarlyErrorIsAFailure() {
	suite.device.On("AdvertisePacket", mock.Anything, mock.Anything).
		Return(errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"))

	c := suite.newCapability(goble.Options{StartGrace: time.Second})
	token := suite.tokens.Next(radio.RoleAdvertise)

	c.StartAdvertise(token, advertise.Build(advertise.DefaultPolicy()), suite.sink)

	suite.Equal(radio.AdvertiseStartFailed{Token: token, Code: outcome.CodeRadioUnavailable}, suite.next())
	suite.NoError(c.StopAdvertise(token), "stopping an ended session is a no-op")
}

func (suite *CapabilityTestSuite) TestOversizePayloadIsRejected() {
	c := suite.newCapability(goble.Options{})
	token := suite.tokens.Next(radio.RoleAdvertise)
	policy := advertise.DefaultPolicy()
	policy.DeviceName = strings.Repeat("n", advertise.MaxDeviceNameLength+1)

	c.StartAdvertise(token, advertise.Build(policy), suite.sink)

	suite.Equal(radio.AdvertiseStartFailed{Token: token, Code: outcome.AdvertiseFailedDataTooLarge}, suite.next())
	suite.device.AssertNotCalled(suite.T(), "AdvertisePacket", mock.Anything, mock.Anything)
}

func (suite *CapabilityTestSuite) TestAdvertiseTimeLimitEndsQuietly() {
	deadlines := make(chan bool, 1)
	ended := make(chan struct{})
	suite.device.On("AdvertisePacket", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			_, ok := args.Get(0).(context.Context).Deadline()
			deadlines <- ok
			mocks.BlockUntilDone(args)
			close(ended)
		}).
		Return(context.DeadlineExceeded)

	c := suite.newCapability(goble.Options{})
	token := suite.tokens.Next(radio.RoleAdvertise)
	policy := advertise.DefaultPolicy()
	policy.Timeout = 60 * time.Millisecond

	c.StartAdvertise(token, advertise.Build(policy), suite.sink)

	suite.Equal(radio.AdvertiseStarted{Token: token, EffectiveTxPower: 1}, suite.next())
	suite.True(<-deadlines, "the radio call MUST carry the time limit")
	select {
	case <-ended:
	case <-time.After(time.Second):
		suite.FailNow("advertising did not end at the time limit")
	}
	suite.assertNoEvent()
	suite.NoError(c.StopAdvertise(token))
}

func (suite *CapabilityTestSuite) TestNameOnlyDeviceRejectsSettingsItCannotApply() {
	goble.DeviceFactory = func() (goble.Device, error) { return mocks.NameOnlyDevice{Device: suite.device}, nil }

	tests := []struct {
		name   string
		policy func(*advertise.Policy)
	}{
		{"non-connectable", func(p *advertise.Policy) { p.IncludeTxPower = false }},
		{"tx power level", func(p *advertise.Policy) { p.Connectable = true }},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			c := suite.newCapability(goble.Options{})
			token := suite.tokens.Next(radio.RoleAdvertise)
			policy := advertise.DefaultPolicy()
			tt.policy(&policy)

			c.StartAdvertise(token, advertise.Build(policy), suite.sink)

			suite.Equal(radio.AdvertiseStartFailed{Token: token, Code: outcome.AdvertiseFailedFeatureUnsupported}, suite.next())
		})
	}
	suite.device.AssertNotCalled(suite.T(), "AdvertiseNameAndServices", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *CapabilityTestSuite) TestNameOnlyDeviceAdvertisesConnectable() {
	goble.DeviceFactory = func() (goble.Device, error) { return mocks.NameOnlyDevice{Device: suite.device}, nil }
	names := make(chan string, 1)
	suite.device.On("AdvertiseNameAndServices", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			uuids := args.Get(2).([]ble.UUID)
			suite.Len(uuids, 1)
			names <- args.String(1)
			mocks.BlockUntilDone(args)
		}).
		Return(context.Canceled)

	c := suite.newCapability(goble.Options{})
	token := suite.tokens.Next(radio.RoleAdvertise)
	policy := advertise.DefaultPolicy()
	policy.Connectable = true
	policy.IncludeTxPower = false
	policy.DeviceName = "peerA"

	c.StartAdvertise(token, advertise.Build(policy), suite.sink)

	suite.Equal(radio.AdvertiseStarted{Token: token, EffectiveTxPower: 1}, suite.next())
	suite.Equal("peerA", <-names)
	suite.NoError(c.StopAdvertise(token))
}

func (suite *CapabilityTestSuite) TestSecondAdvertiseIsAlreadyStarted() {
	suite.device.On("AdvertisePacket", mock.Anything, mock.Anything).
		Run(mocks.BlockUntilDone).
		Return(context.Canceled)

	c := suite.newCapability(goble.Options{})
	first := suite.tokens.Next(radio.RoleAdvertise)
	second := suite.tokens.Next(radio.RoleAdvertise)
	cfg := advertise.Build(advertise.DefaultPolicy())

	c.StartAdvertise(first, cfg, suite.sink)
	suite.Equal(radio.AdvertiseStarted{Token: first, EffectiveTxPower: 1}, suite.next())

	c.StartAdvertise(second, cfg, suite.sink)
	suite.Equal(radio.AdvertiseStartFailed{Token: second, Code: outcome.AdvertiseFailedAlreadyStarted}, suite.next())
}

func (suite *CapabilityTestSuite) TestScanDeliversMatchingPeersOnly() {
	matching := testutils.NewAdvertisementBuilder().
		WithName("peerA").
		WithAddress("11:22:33:44:55:66").
		WithRSSI(-42).
		WithTxPower(4).
		WithServices(peerService).
		Build()
	overflow := testutils.NewAdvertisementBuilder().
		WithAddress("22:22:22:22:22:22").
		WithOverflowServices(peerService).
		Build()
	other := testutils.NewAdvertisementBuilder().
		WithName("heart-rate").
		WithServices("180D").
		Build()

	suite.device.On("Scan", mock.Anything, true, mock.Anything).
		Run(func(args mock.Arguments) {
			h := args.Get(2).(ble.AdvHandler)
			h(other)
			h(matching)
			h(overflow)
			mocks.BlockUntilDone(args)
		}).
		Return(context.Canceled)

	c := suite.newCapability(goble.Options{})
	token := suite.tokens.Next(radio.RoleScan)

	c.StartScan(token, advertise.DefaultServiceID, suite.sink)

	first, ok := suite.next().(radio.ScanResult)
	suite.Require().True(ok)
	suite.Equal(token, first.Token)
	suite.Equal("11:22:33:44:55:66", first.Result.Address)
	suite.Equal(-42, first.Result.RSSI)
	suite.Equal("peerA", first.Result.Record.DeviceName)
	suite.Equal(4, first.Result.Record.TxPowerLevel)

	second, ok := suite.next().(radio.ScanResult)
	suite.Require().True(ok)
	suite.Equal("22:22:22:22:22:22", second.Result.Address)
	suite.False(second.Result.Record.HasTxPower())
	suite.False(second.Result.Record.HasDeviceName())

	suite.NoError(c.StopScan(token))
	suite.assertNoEvent()
}

func (suite *CapabilityTestSuite) TestFlushReturnsBufferedBatch() {
	fed := make(chan struct{})
	suite.device.On("Scan", mock.Anything, true, mock.Anything).
		Run(func(args mock.Arguments) {
			h := args.Get(2).(ble.AdvHandler)
			for _, rssi := range []int{-40, -55, -70} {
				h(testutils.NewAdvertisementBuilder().WithRSSI(rssi).WithServices(peerService).Build())
			}
			close(fed)
			mocks.BlockUntilDone(args)
		}).
		Return(nil)

	c := suite.newCapability(goble.Options{BatchWindow: time.Hour})
	token := suite.tokens.Next(radio.RoleScan)
	c.StartScan(token, advertise.DefaultServiceID, suite.sink)
	<-fed

	flushed := c.FlushPendingScanResults(token)

	suite.Require().Len(flushed, 3)
	for i, want := range []int{-40, -55, -70} {
		suite.Equal(want, flushed[i].RSSI)
	}
	suite.Empty(c.FlushPendingScanResults(token), "flush drains the buffer")
	suite.NoError(c.StopScan(token))
	suite.Nil(c.FlushPendingScanResults(token), "unknown token has nothing pending")
	suite.assertNoEvent()
}

func (suite *CapabilityTestSuite) TestBatchWindowDeliversBatches() {
	suite.device.On("Scan", mock.Anything, true, mock.Anything).
		Run(func(args mock.Arguments) {
			h := args.Get(2).(ble.AdvHandler)
			h(testutils.NewAdvertisementBuilder().WithName("peerA").WithServices(peerService).Build())
			h(testutils.NewAdvertisementBuilder().WithName("peerB").WithServices(peerService).Build())
			mocks.BlockUntilDone(args)
		}).
		Return(nil)

	c := suite.newCapability(goble.Options{BatchWindow: 20 * time.Millisecond})
	token := suite.tokens.Next(radio.RoleScan)
	c.StartScan(token, advertise.DefaultServiceID, suite.sink)

	batch, ok := suite.next().(radio.BatchScanResults)
	suite.Require().True(ok)
	suite.Equal(token, batch.Token)
	suite.Require().Len(batch.Results, 2)
	suite.Equal("peerA", batch.Results[0].Record.DeviceName)
	suite.Equal("peerB", batch.Results[1].Record.DeviceName)
}

func (suite *CapabilityTestSuite) TestScanErrorIsReported() {
	suite.device.On("Scan", mock.Anything, true, mock.Anything).
		Return(errors.New("hci: command disallowed"))

	c := suite.newCapability(goble.Options{})
	token := suite.tokens.Next(radio.RoleScan)
	c.StartScan(token, advertise.DefaultServiceID, suite.sink)

	suite.Equal(radio.ScanFailed{Token: token, Code: outcome.ScanFailedInternalError}, suite.next())
}

func (suite *CapabilityTestSuite) TestSecondScanIsAlreadyStarted() {
	suite.device.On("Scan", mock.Anything, true, mock.Anything).
		Run(mocks.BlockUntilDone).
		Return(nil)

	c := suite.newCapability(goble.Options{})
	first := suite.tokens.Next(radio.RoleScan)
	second := suite.tokens.Next(radio.RoleScan)

	c.StartScan(first, advertise.DefaultServiceID, suite.sink)
	c.StartScan(second, advertise.DefaultServiceID, suite.sink)

	suite.Equal(radio.ScanFailed{Token: second, Code: outcome.ScanFailedAlreadyStarted}, suite.next())
}

// scanForever feeds a matching advertisement every millisecond until the scan
// is cancelled.
func scanForever(args mock.Arguments) {
	ctx := args.Get(0).(context.Context)
	h := args.Get(2).(ble.AdvHandler)
	a := testutils.NewAdvertisementBuilder().WithName("peerA").WithServices(peerService).Build()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
			h(a)
		}
	}
}

func (suite *CapabilityTestSuite) TestStopDoesNotWaitForBlockedSink() {
	suite.device.On("Scan", mock.Anything, true, mock.Anything).
		Run(scanForever).
		Return(context.Canceled)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	suite.T().Cleanup(func() { close(release) })
	blocked := radio.EventSinkFunc(func(radio.Event) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	c := suite.newCapability(goble.Options{StopTimeout: 500 * time.Millisecond})
	token := suite.tokens.Next(radio.RoleScan)
	c.StartScan(token, advertise.DefaultServiceID, blocked)
	<-entered

	start := time.Now()
	suite.NoError(c.StopScan(token))
	suite.Less(time.Since(start), 250*time.Millisecond)
}

func (suite *CapabilityTestSuite) TestBackgroundWithFullIngressStopsCleanly() {
	suite.device.On("AdvertisePacket", mock.Anything, mock.Anything).
		Run(mocks.BlockUntilDone).
		Return(context.Canceled)
	suite.device.On("Scan", mock.Anything, true, mock.Anything).
		Run(scanForever).
		Return(context.Canceled)

	c := suite.newCapability(goble.Options{StopTimeout: 500 * time.Millisecond})
	out := testutils.NewRecordingSink()
	coord := coordinator.New(c, out,
		coordinator.WithLogger(suite.helper.Logger),
		coordinator.WithIngressBuffer(1),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = coord.Run(ctx) }()

	coord.OnForeground()
	suite.Eventually(func() bool { return len(out.Observations()) > 10 }, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	coord.OnBackground()
	suite.Less(time.Since(start), 250*time.Millisecond)

	for _, o := range out.Outcomes() {
		suite.NotEqual(outcome.StopFailed, o.Kind, o.Line())
	}
	suite.Equal(coordinator.Idle, coord.ScanState())
	suite.Equal(coordinator.Idle, coord.AdvertiseState())
}

func (suite *CapabilityTestSuite) TestUnavailableAdapter() {
	goble.DeviceFactory = func() (goble.Device, error) {
		return nil, errors.New("can't init hci: no devices available")
	}

	c := suite.newCapability(goble.Options{})
	suite.False(c.IsReady())

	c.RequestEnable(suite.sink)
	suite.Equal(radio.EnableResult{Granted: false}, suite.next())

	token := suite.tokens.Next(radio.RoleScan)
	c.StartScan(token, advertise.DefaultServiceID, suite.sink)
	suite.Equal(radio.ScanFailed{Token: token, Code: outcome.CodeRadioUnavailable}, suite.next())
}

func (suite *CapabilityTestSuite) TestEnableGrantedWhenAdapterOpens() {
	c := suite.newCapability(goble.Options{})

	c.RequestEnable(suite.sink)

	suite.Equal(radio.EnableResult{Granted: true}, suite.next())
	suite.True(c.IsReady())
}

func TestCapabilityTestSuite(t *testing.T) {
	suite.Run(t, new(CapabilityTestSuite))
}
