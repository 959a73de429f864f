package goble_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/blebeacon/internal/observation"
	"github.com/srg/blebeacon/internal/radio"
	"github.com/srg/blebeacon/internal/radio/goble"
	"github.com/srg/blebeacon/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectIsError error
	}{
		{"darwin bluetooth off", fmt.Errorf("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), radio.ErrBluetoothOff},
		{"generic bluetooth off", fmt.Errorf("Bluetooth is turned off"), radio.ErrBluetoothOff},
		{"linux without adapter", fmt.Errorf("can't init hci: no devices available: (hci0: can't down device: no such device)"), radio.ErrBluetoothOff},
		{"unsupported", fmt.Errorf("extended advertising not supported"), radio.ErrUnsupported},
		{"passes through context canceled", context.Canceled, context.Canceled},
		{"already normalized", fmt.Errorf("wrapped: %w", radio.ErrBluetoothOff), radio.ErrBluetoothOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := goble.NormalizeError(tt.err)
			require.Error(t, got)
			assert.ErrorIs(t, got, tt.expectIsError)
			assert.Contains(t, got.Error(), tt.err.Error(), "original message is preserved")
		})
	}

	assert.NoError(t, goble.NormalizeError(nil))
	other := errors.New("something else")
	assert.Same(t, other, goble.NormalizeError(other))
}

func TestToRawResult(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	adv := testutils.NewAdvertisementBuilder().
		FromJSON(`{"name": "peerA", "address": "aa:bb:cc:dd:ee:ff", "rssi": -61, "txPower": %d, "services": ["180F"]}`, 9).
		Build()

	raw := goble.ToRawResult(adv, at)

	assert.Equal(t, "aa:bb:cc:dd:ee:ff", raw.Address)
	assert.Equal(t, -61, raw.RSSI)
	assert.Equal(t, at, raw.ReceivedAt)
	require.NotNil(t, raw.Record)
	assert.Equal(t, "peerA", raw.Record.DeviceName)
	assert.Equal(t, 9, raw.Record.TxPowerLevel)
	assert.Len(t, raw.Record.Services, 1)
}

func TestToRawResultWithoutOptionalFields(t *testing.T) {
	raw := goble.ToRawResult(testutils.NewAdvertisementBuilder().Build(), time.Now())

	assert.False(t, raw.Record.HasDeviceName())
	assert.False(t, raw.Record.HasTxPower())
	assert.Empty(t, raw.Record.Services)
}

func TestToRawResultTxPowerPresence(t *testing.T) {
	tests := []struct {
		name    string
		adv     ble.Advertisement
		present bool
		want    int
	}{
		{
			name: "raw data without tx field",
			adv:  testutils.NewAdvertisementBuilder().WithName("peerA").BuildRaw([]byte{0x06, 0x09, 'p', 'e', 'e', 'r', 'A'}, nil),
		},
		{
			name:    "raw data with 0 dBm",
			adv:     testutils.NewAdvertisementBuilder().BuildRaw([]byte{0x02, 0x0A, 0x00}, nil),
			present: true,
			want:    0,
		},
		{
			name:    "tx field in scan response",
			adv:     testutils.NewAdvertisementBuilder().BuildRaw([]byte{0x02, 0x01, 0x06}, []byte{0x02, 0x0A, 0xF4}),
			present: true,
			want:    -12,
		},
		{
			name: "stack without raw data reports 0",
			adv:  testutils.NewAdvertisementBuilder().WithName("peerA").Build(),
		},
		{
			name:    "stack without raw data reports a level",
			adv:     testutils.NewAdvertisementBuilder().WithTxPower(4).Build(),
			present: true,
			want:    4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := goble.ToRawResult(tt.adv, time.Now())

			require.NotNil(t, raw.Record)
			assert.Equal(t, tt.present, raw.Record.HasTxPower())
			obs := observation.NewAggregator(time.Now).OnSingleResult(raw)
			if !tt.present {
				assert.Nil(t, obs.TxPower)
				assert.Contains(t, obs.Line(), "TX: unknown")
				return
			}
			assert.Equal(t, tt.want, raw.Record.TxPowerLevel)
			require.NotNil(t, obs.TxPower)
			assert.EqualValues(t, tt.want, *obs.TxPower)
		})
	}
}
