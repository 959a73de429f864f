package coordinator

import (
	"fmt"

	"github.com/srg/blebeacon/internal/radio"
)

// RadioState tracks the availability of the radio as seen by the coordinator.
type RadioState int

const (
	RadioUnavailable RadioState = iota // not checked yet, or no adapter
	RadioDisabled                      // enable denied or radio reported off
	RadioEnabling                      // enable request in flight
	RadioReady
)

var radioStateNames = []string{"unavailable", "disabled", "enabling", "ready"}

func (s RadioState) String() string {
	if s < 0 || int(s) >= len(radioStateNames) {
		return fmt.Sprintf("radio_state(%d)", int(s))
	}
	return radioStateNames[s]
}

// SessionState is the lifecycle state of one role.
type SessionState int

const (
	Idle SessionState = iota
	Starting
	Active
	Stopping
)

var sessionStateNames = []string{"idle", "starting", "active", "stopping"}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(sessionStateNames) {
		return fmt.Sprintf("session_state(%d)", int(s))
	}
	return sessionStateNames[s]
}

// running reports whether the session holds radio resources.
func (s SessionState) running() bool {
	return s == Starting || s == Active
}

// Transition describes one session state change.
type Transition struct {
	Role  radio.Role
	From  SessionState
	To    SessionState
	Token radio.Token
}

func (t Transition) String() string {
	return fmt.Sprintf("%s: %s->%s", t.Role, t.From, t.To)
}

type session struct {
	role  radio.Role
	state SessionState
	token radio.Token
}
