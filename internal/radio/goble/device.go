// Package goble implements radio.Capability on top of the go-ble stack.
package goble

import (
	"context"
	"time"

	"github.com/go-ble/ble"
)

// Device is the part of ble.Device the capability drives. Every ble.Device
// satisfies it.
type Device interface {
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Stop() error
}

// PacketAdvertiser is implemented by devices that accept prebuilt advertising
// data and parameters. Devices without it can only advertise connectable name
// and service lists.
type PacketAdvertiser interface {
	AdvertisePacket(ctx context.Context, a Advertising) error
}

// Advertising is one legacy advertisement as handed to the controller.
type Advertising struct {
	Connectable  bool
	Interval     time.Duration
	Data         []byte
	ScanResponse []byte
}

// DeviceFactory creates the platform device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = func() (Device, error) {
	return newPlatformDevice()
}
