package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blebeacon/internal/outcome"
	"github.com/srg/blebeacon/internal/radio"
)

// NormalizeError maps known go-ble error strings to the radio sentinel errors.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, radio.ErrBluetoothOff) || errors.Is(err, radio.ErrUnsupported) {
		return err
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", radio.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "powered off"):
		return fmt.Errorf("%w: %v", radio.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "can't init hci"),
		containsIgnoreCase(msg, "no devices available"):
		return fmt.Errorf("%w: %v", radio.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "not supported"),
		containsIgnoreCase(msg, "unsupported"):
		return fmt.Errorf("%w: %v", radio.ErrUnsupported, err)
	default:
		return err
	}
}

// failureCode converts a stack error into the platform failure code of role.
func failureCode(role radio.Role, err error) int {
	err = NormalizeError(err)
	switch {
	case errors.Is(err, radio.ErrBluetoothOff):
		return outcome.CodeRadioUnavailable
	case errors.Is(err, radio.ErrUnsupported):
		if role == radio.RoleScan {
			return outcome.ScanFailedFeatureUnsupported
		}
		return outcome.AdvertiseFailedFeatureUnsupported
	default:
		if role == radio.RoleScan {
			return outcome.ScanFailedInternalError
		}
		return outcome.AdvertiseFailedInternalError
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
