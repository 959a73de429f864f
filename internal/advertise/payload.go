package advertise

// MaxLegacyPayload is the size limit of legacy (BLE 4.x) advertising data and
// of the scan response.
const MaxLegacyPayload = 31

// Advertising data structures are encoded as [len][type][data...].
const (
	adHeaderLen    = 2
	flagsDataLen   = 1
	uuid128DataLen = 16
	txPowerDataLen = 1
)

// MaxDeviceNameLength is the longest local name a legacy scan response holds.
const MaxDeviceNameLength = MaxLegacyPayload - adHeaderLen

// PayloadLength returns the size in bytes of the advertising data this config
// produces: flags, the complete 128-bit service list, the optional tx power
// level and the complete local name when it still fits. A name that does not
// fit is carried by the scan response.
func (c Config) PayloadLength() int {
	n := c.fixedPayloadLength()
	if name := c.nameLength(); name > 0 && n+name <= MaxLegacyPayload {
		n += name
	}
	return n
}

// ScanResponseLength returns the size in bytes of the scan response. It only
// carries a local name that did not fit the advertising data.
func (c Config) ScanResponseLength() int {
	if name := c.nameLength(); name > 0 && c.fixedPayloadLength()+name > MaxLegacyPayload {
		return name
	}
	return 0
}

// FitsLegacyPayload reports whether the advertising data and scan response fit
// a legacy advertisement.
func (c Config) FitsLegacyPayload() bool {
	return c.PayloadLength() <= MaxLegacyPayload && c.ScanResponseLength() <= MaxLegacyPayload
}

func (c Config) fixedPayloadLength() int {
	n := adHeaderLen + flagsDataLen
	n += adHeaderLen + uuid128DataLen
	if c.IncludeTxPower {
		n += adHeaderLen + txPowerDataLen
	}
	return n
}

func (c Config) nameLength() int {
	if !c.IncludeDeviceName || c.DeviceName == "" {
		return 0
	}
	return adHeaderLen + len(c.DeviceName)
}
