package outcome_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/blebeacon/internal/outcome"
	"github.com/srg/blebeacon/internal/radio"
	"github.com/stretchr/testify/assert"
)

func TestClassifyAdvertiseFailure(t *testing.T) {
	tests := []struct {
		code int
		want outcome.FailureReason
	}{
		{outcome.AdvertiseFailedDataTooLarge, outcome.DataTooLarge},
		{outcome.AdvertiseFailedTooManyAdvertisers, outcome.TooManyAdvertisers},
		{outcome.AdvertiseFailedAlreadyStarted, outcome.AlreadyStarted},
		{outcome.AdvertiseFailedInternalError, outcome.InternalError},
		{outcome.AdvertiseFailedFeatureUnsupported, outcome.FeatureUnsupported},
		{outcome.CodeRadioUnavailable, outcome.RadioUnavailable},
		{0, outcome.Unknown(0)},
		{42, outcome.Unknown(42)},
		{-7, outcome.Unknown(-7)},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, outcome.ClassifyAdvertiseFailure(tt.code))
		})
	}
}

func TestClassifyScanFailure(t *testing.T) {
	tests := []struct {
		code int
		want outcome.FailureReason
	}{
		{outcome.ScanFailedAlreadyStarted, outcome.AlreadyStarted},
		{outcome.ScanFailedApplicationRegistrationFailed, outcome.AppRegistrationFailed},
		{outcome.ScanFailedInternalError, outcome.InternalError},
		{outcome.ScanFailedFeatureUnsupported, outcome.FeatureUnsupported},
		{outcome.CodeRadioUnavailable, outcome.RadioUnavailable},
		{5, outcome.Unknown(5)},
		{1 << 20, outcome.Unknown(1 << 20)},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, outcome.ClassifyScanFailure(tt.code))
		})
	}
}

func TestClassificationIsTotal(t *testing.T) {
	for code := -1000; code <= 1000; code++ {
		adv := outcome.ClassifyAdvertiseFailure(code)
		scan := outcome.ClassifyScanFailure(code)

		if adv.Kind == outcome.KindUnknown {
			assert.Equal(t, code, adv.Code)
		}
		if scan.Kind == outcome.KindUnknown {
			assert.Equal(t, code, scan.Code)
		}
	}
}

func TestOnlyRadioUnavailableIsFatal(t *testing.T) {
	assert.True(t, outcome.RadioUnavailable.Fatal())
	for _, r := range []outcome.FailureReason{
		outcome.AlreadyStarted, outcome.DataTooLarge, outcome.FeatureUnsupported,
		outcome.InternalError, outcome.TooManyAdvertisers, outcome.AppRegistrationFailed,
		outcome.Unknown(99),
	} {
		assert.False(t, r.Fatal(), r.String())
	}
}

func TestOutcomeLine(t *testing.T) {
	tests := []struct {
		name string
		o    outcome.Outcome
		want string
	}{
		{"advertise started", outcome.NewStarted(radio.RoleAdvertise, 9), "Started advertising at 9dBm."},
		{"advertise already started", outcome.NewStartFailed(radio.RoleAdvertise, outcome.AlreadyStarted), "Advertise failed: already started."},
		{"advertise too many", outcome.NewStartFailed(radio.RoleAdvertise, outcome.TooManyAdvertisers), "Advertise failed: too many advertisers."},
		{"scan registration", outcome.NewStartFailed(radio.RoleScan, outcome.AppRegistrationFailed), "Scan failed: app registration failed."},
		{"scan unknown", outcome.NewStartFailed(radio.RoleScan, outcome.Unknown(77)), "Scan failed: unknown error (code 77)."},
		{"stop advertise", outcome.NewStopFailed(radio.RoleAdvertise, outcome.InternalError), "Stop advertising failed: internal error."},
		{"stop scan", outcome.NewStopFailed(radio.RoleScan, outcome.FeatureUnsupported), "Stop scanning failed: feature unsupported."},
		{"fatal", outcome.NewStartFailed(radio.RoleAdvertise, outcome.RadioUnavailable), "Bluetooth is unavailable."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.o.Line())
		})
	}
}

func TestOutcomeFlags(t *testing.T) {
	started := outcome.NewStarted(radio.RoleAdvertise, 1)
	assert.False(t, started.Failed())
	assert.False(t, started.Fatal())
	assert.Equal(t, "advertise started{1}", started.String())

	failed := outcome.NewStartFailed(radio.RoleScan, outcome.Unknown(3))
	assert.True(t, failed.Failed())
	assert.False(t, failed.Fatal())
	assert.Equal(t, "scan start_failed{unknown(3)}", failed.String())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, outcome.RadioUnavailable, outcome.ClassifyError(fmt.Errorf("stop: %w", radio.ErrBluetoothOff)))
	assert.Equal(t, outcome.FeatureUnsupported, outcome.ClassifyError(radio.ErrUnsupported))
	assert.Equal(t, outcome.InternalError, outcome.ClassifyError(errors.New("boom")))
}
