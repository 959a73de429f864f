// Package radio defines the boundary between the lifecycle coordinator and a
// BLE radio stack able to advertise and scan at the same time.
//
// A Capability never blocks: start requests return immediately and their
// completions, scan results and failures arrive later as Event values handed to
// the EventSink passed with the request. Implementations deliver those events
// from their own goroutines, never from inside a Capability call.
package radio

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/srg/blebeacon/internal/advertise"
)

// Errors reported by Capability implementations.
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnsupported  = errors.New("unsupported")
	ErrUnknownToken = errors.New("unknown session token")
)

// Role names one of the two concurrent radio roles.
type Role int

const (
	RoleAdvertise Role = iota
	RoleScan
)

func (r Role) String() string {
	switch r {
	case RoleAdvertise:
		return "advertise"
	case RoleScan:
		return "scan"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Token identifies one start request of one role. Every event produced for that
// request carries the same token so the coordinator can correlate completions
// with the session that issued them, and drop the ones that arrive after the
// session moved on.
type Token struct {
	Role Role
	Seq  uint64
}

func (t Token) String() string {
	return fmt.Sprintf("%s#%d", t.Role, t.Seq)
}

// IsZero reports whether the token was never issued.
func (t Token) IsZero() bool { return t.Seq == 0 }

// TokenSource issues unique tokens. The zero value is ready to use.
type TokenSource struct {
	seq atomic.Uint64
}

// Next returns a fresh token for role.
func (s *TokenSource) Next(role Role) Token {
	return Token{Role: role, Seq: s.seq.Add(1)}
}

// EventSink receives asynchronous radio events.
type EventSink interface {
	Deliver(ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ev Event)

// Deliver calls f(ev).
func (f EventSinkFunc) Deliver(ev Event) { f(ev) }

// Capability is the advertise/scan hardware abstraction consumed by the coordinator.
type Capability interface {
	// IsReady reports whether the radio is powered and usable.
	IsReady() bool

	// RequestEnable asks the platform to enable the radio. The answer arrives as
	// an EnableResult event.
	RequestEnable(sink EventSink)

	// StartAdvertise begins advertising cfg. Completion arrives as
	// AdvertiseStarted or AdvertiseStartFailed carrying token.
	StartAdvertise(token Token, cfg advertise.Config, sink EventSink)

	// StopAdvertise stops the advertise session issued with token. Stopping a
	// session that has not confirmed its start is allowed.
	StopAdvertise(token Token) error

	// StartScan begins scanning for peers advertising filter. Results and
	// failures arrive as ScanResult, BatchScanResults or ScanFailed carrying token.
	StartScan(token Token, filter advertise.ServiceID, sink EventSink)

	// StopScan stops the scan session issued with token.
	StopScan(token Token) error

	// FlushPendingScanResults hands back the results the stack buffered for
	// batch delivery and has not delivered yet, in reception order.
	FlushPendingScanResults(token Token) []RawResult
}
