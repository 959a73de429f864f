package main

import (
	"errors"

	"github.com/srg/blebeacon/internal/radio"
)

// Command-level errors
var (
	// ErrRadioUnavailable ends a run whose radio was turned off, could not be
	// enabled, or went away while advertising or scanning.
	ErrRadioUnavailable = errors.New("bluetooth is unavailable")
)

// FormatUserError turns an error returned by a command into the message printed
// to the user.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, ErrRadioUnavailable), errors.Is(err, radio.ErrBluetoothOff):
		return "Bluetooth is unavailable. Turn the adapter on and try again."
	case errors.Is(err, radio.ErrUnsupported):
		return "Bluetooth LE advertising and scanning are not supported on this platform. Use --radio sim to try the simulated radio."
	default:
		return err.Error()
	}
}
