//go:build linux

package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble/linux"
)

// hciDevice drives advertising through raw HCI commands so the advertising
// type and interval follow the configuration.
type hciDevice struct {
	*linux.Device
}

func newPlatformDevice() (Device, error) {
	dev, err := linux.NewDevice()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &hciDevice{Device: dev}, nil
}

// AdvertisePacket advertises a until ctx is done or the HCI transport closes.
func (d *hciDevice) AdvertisePacket(ctx context.Context, a Advertising) error {
	params := advertisingParameters(a)
	if err := d.HCI.Send(&params, nil); err != nil {
		return fmt.Errorf("set advertising parameters: %w", err)
	}
	if err := d.HCI.SetAdvertisement(a.Data, a.ScanResponse); err != nil {
		return fmt.Errorf("set advertising data: %w", err)
	}
	if err := d.HCI.Advertise(); err != nil {
		return fmt.Errorf("enable advertising: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-d.HCI.Done():
		return d.HCI.Error()
	}
	if err := d.HCI.StopAdvertising(); err != nil {
		return fmt.Errorf("disable advertising: %w", err)
	}
	return ctx.Err()
}
