// Package advertise derives the immutable advertise configuration used for one
// activation of the advertise role from a small set of policy knobs.
package advertise

import (
	"fmt"
	"time"
)

// Mode selects the advertising interval trade-off.
type Mode int

const (
	ModeLowPower Mode = iota
	ModeBalanced
	ModeLowLatency
)

var modeNames = []string{"low_power", "balanced", "low_latency"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Interval returns the nominal advertising interval for the mode.
func (m Mode) Interval() time.Duration {
	switch m {
	case ModeBalanced:
		return 250 * time.Millisecond
	case ModeLowLatency:
		return 100 * time.Millisecond
	default:
		return 1000 * time.Millisecond
	}
}

// ParseMode maps a config/flag spelling to a Mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("invalid advertise mode %q (must be one of %v)", s, modeNames)
}

// TxPowerLevel is the requested transmit power class.
type TxPowerLevel int

const (
	TxPowerUltraLow TxPowerLevel = iota
	TxPowerLow
	TxPowerMedium
	TxPowerHigh
)

var txPowerNames = []string{"ultra_low", "low", "medium", "high"}

func (p TxPowerLevel) String() string {
	if p < 0 || int(p) >= len(txPowerNames) {
		return fmt.Sprintf("tx_power(%d)", int(p))
	}
	return txPowerNames[p]
}

// DBm returns the nominal radiated power of the level.
func (p TxPowerLevel) DBm() int8 {
	switch p {
	case TxPowerUltraLow:
		return -21
	case TxPowerLow:
		return -15
	case TxPowerHigh:
		return 1
	default:
		return -7
	}
}

// ParseTxPowerLevel maps a config/flag spelling to a TxPowerLevel.
func ParseTxPowerLevel(s string) (TxPowerLevel, error) {
	for i, name := range txPowerNames {
		if s == name {
			return TxPowerLevel(i), nil
		}
	}
	return 0, fmt.Errorf("invalid tx power level %q (must be one of %v)", s, txPowerNames)
}

// Policy holds the knobs an activation's Config is derived from.
type Policy struct {
	Mode              Mode
	Connectable       bool
	Timeout           time.Duration // 0 = advertise until stopped
	TxPower           TxPowerLevel
	IncludeDeviceName bool
	IncludeTxPower    bool
	ServiceID         ServiceID
	DeviceName        string
}

// DefaultPolicy favors detection range: infrequent advertising at high power, no
// connections, no time limit.
// NOTE: high tx power is kept together with low power mode even though some
// stacks may treat the pair as contradictory.
func DefaultPolicy() Policy {
	return Policy{
		Mode:              ModeLowPower,
		Connectable:       false,
		Timeout:           0,
		TxPower:           TxPowerHigh,
		IncludeDeviceName: true,
		IncludeTxPower:    true,
		ServiceID:         DefaultServiceID,
	}
}

// Config is the advertise configuration of a single activation. It is a value
// type and is never mutated after Build.
type Config struct {
	Mode              Mode
	Connectable       bool
	TimeoutMillis     uint32
	TxPower           TxPowerLevel
	IncludeDeviceName bool
	IncludeTxPower    bool
	ServiceID         ServiceID
	DeviceName        string
}

// Build maps a policy to a Config. Timeouts are truncated to milliseconds and
// clamped to the uint32 range; a zero ServiceID falls back to DefaultServiceID.
func Build(p Policy) Config {
	serviceID := p.ServiceID
	if serviceID.IsZero() {
		serviceID = DefaultServiceID
	}

	return Config{
		Mode:              p.Mode,
		Connectable:       p.Connectable,
		TimeoutMillis:     timeoutMillis(p.Timeout),
		TxPower:           p.TxPower,
		IncludeDeviceName: p.IncludeDeviceName,
		IncludeTxPower:    p.IncludeTxPower,
		ServiceID:         serviceID,
		DeviceName:        p.DeviceName,
	}
}

func timeoutMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}

// Timeout returns the advertising time limit, 0 meaning unbounded.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}
