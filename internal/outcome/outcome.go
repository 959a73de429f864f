package outcome

import (
	"errors"
	"fmt"

	"github.com/srg/blebeacon/internal/radio"
)

// OutcomeKind tags the Outcome union.
//
//nolint:revive // OutcomeKind reads better than Kind at call sites, Kind is taken by FailureReason
type OutcomeKind int

const (
	Started OutcomeKind = iota
	StartFailed
	StopFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case Started:
		return "started"
	case StartFailed:
		return "start_failed"
	case StopFailed:
		return "stop_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the classified result of a start or stop request of one role.
// EffectiveTxPower is meaningful for Started, Reason for the failure kinds.
type Outcome struct {
	Kind             OutcomeKind
	Role             radio.Role
	EffectiveTxPower int
	Reason           FailureReason
}

// NewStarted builds a Started outcome.
func NewStarted(role radio.Role, effectiveTxPower int) Outcome {
	return Outcome{Kind: Started, Role: role, EffectiveTxPower: effectiveTxPower}
}

// NewStartFailed builds a StartFailed outcome.
func NewStartFailed(role radio.Role, reason FailureReason) Outcome {
	return Outcome{Kind: StartFailed, Role: role, Reason: reason}
}

// NewStopFailed builds a StopFailed outcome.
func NewStopFailed(role radio.Role, reason FailureReason) Outcome {
	return Outcome{Kind: StopFailed, Role: role, Reason: reason}
}

// Failed reports whether the outcome is a failure of either kind.
func (o Outcome) Failed() bool { return o.Kind != Started }

// Fatal reports whether the outcome ends the foreground session.
func (o Outcome) Fatal() bool { return o.Failed() && o.Reason.Fatal() }

// Line renders the outcome as the sentence shown to the user.
func (o Outcome) Line() string {
	if o.Fatal() {
		return "Bluetooth is unavailable."
	}

	switch o.Kind {
	case Started:
		if o.Role == radio.RoleScan {
			return "Started scanning."
		}
		return fmt.Sprintf("Started advertising at %ddBm.", o.EffectiveTxPower)
	case StartFailed:
		if o.Role == radio.RoleScan {
			return fmt.Sprintf("Scan failed: %s.", o.Reason.Text())
		}
		return fmt.Sprintf("Advertise failed: %s.", o.Reason.Text())
	default:
		if o.Role == radio.RoleScan {
			return fmt.Sprintf("Stop scanning failed: %s.", o.Reason.Text())
		}
		return fmt.Sprintf("Stop advertising failed: %s.", o.Reason.Text())
	}
}

func (o Outcome) String() string {
	if o.Kind == Started {
		return fmt.Sprintf("%s %s{%d}", o.Role, o.Kind, o.EffectiveTxPower)
	}
	return fmt.Sprintf("%s %s{%s}", o.Role, o.Kind, o.Reason)
}

// ClassifyError maps an error returned by a synchronous Capability call.
func ClassifyError(err error) FailureReason {
	switch {
	case errors.Is(err, radio.ErrBluetoothOff):
		return RadioUnavailable
	case errors.Is(err, radio.ErrUnsupported):
		return FeatureUnsupported
	default:
		return InternalError
	}
}
