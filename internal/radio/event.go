package radio

import "time"

// TxPowerNotPresent is the value stacks report when an advertisement carries no
// tx power level.
const TxPowerNotPresent = 127

// ScanRecord is the parsed advertising data of one received packet. An empty
// DeviceName means no name was advertised. TxPowerLevel 0 is a real 0 dBm level;
// an absent level must be set to TxPowerNotPresent.
type ScanRecord struct {
	DeviceName   string
	TxPowerLevel int
	Services     []string
}

// HasDeviceName reports whether the record carried a local name.
func (r *ScanRecord) HasDeviceName() bool { return r != nil && r.DeviceName != "" }

// HasTxPower reports whether the record carried a tx power level.
func (r *ScanRecord) HasTxPower() bool { return r != nil && r.TxPowerLevel != TxPowerNotPresent }

// RawResult is one reception reported by the scan role. Record is nil when the
// stack could not parse the advertising data.
type RawResult struct {
	Address    string
	RSSI       int
	Record     *ScanRecord
	ReceivedAt time.Time
}

// Event is the closed set of asynchronous notifications a Capability emits.
type Event interface {
	isEvent()
}

// EnableResult answers a RequestEnable call.
type EnableResult struct {
	Granted bool
}

// AdvertiseStarted confirms an advertise start. EffectiveTxPower is the power
// actually in use, which may differ from the requested level.
type AdvertiseStarted struct {
	Token            Token
	EffectiveTxPower int
}

// AdvertiseStartFailed reports a raw advertise failure code.
type AdvertiseStartFailed struct {
	Token Token
	Code  int
}

// ScanResult delivers a single reception.
type ScanResult struct {
	Token  Token
	Result RawResult
}

// BatchScanResults delivers receptions buffered by the stack, in reception order.
type BatchScanResults struct {
	Token   Token
	Results []RawResult
}

// ScanFailed reports a raw scan failure code.
type ScanFailed struct {
	Token Token
	Code  int
}

func (EnableResult) isEvent()         {}
func (AdvertiseStarted) isEvent()     {}
func (AdvertiseStartFailed) isEvent() {}
func (ScanResult) isEvent()           {}
func (BatchScanResults) isEvent()     {}
func (ScanFailed) isEvent()           {}
