package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
	"github.com/srg/blebeacon/internal/radio"
)

// rawAdvertisement is implemented by stacks that keep the received advertising
// data (linux hci).
type rawAdvertisement interface {
	Data() []byte
	ScanResponse() []byte
}

// advertises reports whether a lists want among its complete, overflow or
// solicited service UUIDs.
func advertises(a ble.Advertisement, want ble.UUID) bool {
	for _, list := range [][]ble.UUID{a.Services(), a.OverflowService(), a.SolicitedService()} {
		for _, u := range list {
			if u.Equal(want) {
				return true
			}
		}
	}
	return false
}

// txPowerLevel returns the advertised tx power, or radio.TxPowerNotPresent.
// go-ble reports a missing field as 0, so presence is read from the raw data
// when the stack keeps it. Otherwise 0 cannot be told apart from absence and
// counts as absent.
func txPowerLevel(a ble.Advertisement) int {
	if r, ok := a.(rawAdvertisement); ok {
		if pwr, present := txPowerField(adv.NewRawPacket(r.Data(), r.ScanResponse())); present {
			return pwr
		}
		return radio.TxPowerNotPresent
	}
	if pwr := a.TxPowerLevel(); pwr != 0 {
		return pwr
	}
	return radio.TxPowerNotPresent
}

// txPowerField reads the one-byte tx power level structure. Packet.TxPower
// expects the structure header in the field data and never matches.
func txPowerField(p *adv.Packet) (int, bool) {
	b := p.Field(adTypeTxPower)
	if len(b) != 1 {
		return 0, false
	}
	return int(int8(b[0])), true
}

// ToRawResult converts a go-ble advertisement into a radio.RawResult.
func ToRawResult(a ble.Advertisement, receivedAt time.Time) radio.RawResult {
	services := a.Services()
	record := &radio.ScanRecord{
		DeviceName:   a.LocalName(),
		TxPowerLevel: txPowerLevel(a),
		Services:     make([]string, len(services)),
	}
	for i, u := range services {
		record.Services[i] = u.String()
	}

	var addr string
	if at := a.Addr(); at != nil {
		addr = at.String()
	}

	return radio.RawResult{
		Address:    addr,
		RSSI:       a.RSSI(),
		Record:     record,
		ReceivedAt: receivedAt,
	}
}
