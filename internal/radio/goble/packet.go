package goble

import (
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/srg/blebeacon/internal/advertise"
)

const adTypeTxPower = 0x0A

// HCI advertising types.
const (
	advInd        = 0x00 // connectable, scannable
	advScanInd    = 0x02 // scannable
	advNonconnInd = 0x03
)

// Advertising interval bounds, in 0.625ms units.
const (
	intervalUnit = 625 * time.Microsecond
	minInterval  = 0x0020
	maxInterval  = 0x4000
)

// buildAdvertising lays out the advertising data for cfg: flags, the service,
// the optional tx power level and the name, which moves to the scan response
// when the advertising data is full.
func buildAdvertising(cfg advertise.Config, name string, service ble.UUID) (Advertising, error) {
	data, err := adv.NewPacket(
		adv.Flags(adv.FlagGeneralDiscoverable|adv.FlagLEOnly),
		adv.AllUUID(service),
	)
	if err != nil {
		return Advertising{}, fmt.Errorf("advertising data: %w", err)
	}
	if cfg.IncludeTxPower {
		if err := data.Append(adv.Raw([]byte{2, adTypeTxPower, byte(cfg.TxPower.DBm())})); err != nil {
			return Advertising{}, fmt.Errorf("tx power level: %w", err)
		}
	}

	scanResponse, _ := adv.NewPacket()
	if name != "" && data.Append(adv.CompleteName(name)) != nil {
		if err := scanResponse.Append(adv.CompleteName(name)); err != nil {
			return Advertising{}, fmt.Errorf("local name %q: %w", name, err)
		}
	}

	return Advertising{
		Connectable:  cfg.Connectable,
		Interval:     cfg.Mode.Interval(),
		Data:         data.Bytes(),
		ScanResponse: scanResponse.Bytes(),
	}, nil
}

// advertisingParameters maps a to the HCI advertising parameters: type from
// connectability, interval in controller units, all three channels.
func advertisingParameters(a Advertising) cmd.LESetAdvertisingParameters {
	typ := uint8(advNonconnInd)
	switch {
	case a.Connectable:
		typ = advInd
	case len(a.ScanResponse) > 0:
		typ = advScanInd
	}

	interval := a.Interval / intervalUnit
	if interval < minInterval {
		interval = minInterval
	}
	if interval > maxInterval {
		interval = maxInterval
	}

	return cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin: uint16(interval),
		AdvertisingIntervalMax: uint16(interval),
		AdvertisingType:        typ,
		AdvertisingChannelMap:  0x7,
	}
}
