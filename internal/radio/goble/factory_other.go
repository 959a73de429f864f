//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/srg/blebeacon/internal/radio"
)

func newPlatformDevice() (Device, error) {
	return nil, fmt.Errorf("%w: no BLE stack for %s", radio.ErrUnsupported, runtime.GOOS)
}
