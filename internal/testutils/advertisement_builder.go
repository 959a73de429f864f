package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/blebeacon/internal/testutils/mocks"
)

// AdvertisementBuilder builds mocked ble.Advertisement values with a fluent API.
// Fields that are not set read the way go-ble reports them when absent: empty
// name, no services, tx power 0.
type AdvertisementBuilder struct {
	name        string
	address     string
	rssi        int
	services    []string
	overflow    []string
	solicited   []string
	manufData   []byte
	txPower     *int
	connectable bool
}

// NewAdvertisementBuilder creates a builder for a non-connectable advertisement
// received at -50 dBm.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{rssi: -50}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// WithServices adds complete-list service UUIDs. UUIDs can be in short form
// (e.g., "180D") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.services = append(b.services, uuids...)
	return b
}

// WithOverflowServices adds UUIDs the peer moved to the overflow area.
func (b *AdvertisementBuilder) WithOverflowServices(uuids ...string) *AdvertisementBuilder {
	b.overflow = append(b.overflow, uuids...)
	return b
}

// WithSolicitedServices adds solicited service UUIDs.
func (b *AdvertisementBuilder) WithSolicitedServices(uuids ...string) *AdvertisementBuilder {
	b.solicited = append(b.solicited, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.manufData = data
	return b
}

func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.txPower = &power
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.connectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	var data struct {
		Name        *string  `json:"name"`
		Address     *string  `json:"address"`
		RSSI        *int     `json:"rssi"`
		Services    []string `json:"services"`
		TxPower     *int     `json:"txPower"`
		Connectable *bool    `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}

	if data.Name != nil {
		b.name = *data.Name
	}
	if data.Address != nil {
		b.address = *data.Address
	}
	if data.RSSI != nil {
		b.rssi = *data.RSSI
	}
	b.services = append(b.services, data.Services...)
	b.txPower = data.TxPower
	if data.Connectable != nil {
		b.connectable = *data.Connectable
	}
	return b
}

// Build creates a MockAdvertisement. Every accessor has an expectation, so
// code under test may read any field.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}

	addr := &mocks.MockAddr{}
	addr.On("String").Return(b.address).Maybe()

	txPower := 0
	if b.txPower != nil {
		txPower = *b.txPower
	}

	adv.On("Addr").Return(addr).Maybe()
	adv.On("LocalName").Return(b.name).Maybe()
	adv.On("RSSI").Return(b.rssi).Maybe()
	adv.On("ManufacturerData").Return(b.manufData).Maybe()
	adv.On("ServiceData").Return([]ble.ServiceData(nil)).Maybe()
	adv.On("Services").Return(parseUUIDs(b.services)).Maybe()
	adv.On("OverflowService").Return(parseUUIDs(b.overflow)).Maybe()
	adv.On("SolicitedService").Return(parseUUIDs(b.solicited)).Maybe()
	adv.On("Connectable").Return(b.connectable).Maybe()
	adv.On("TxPowerLevel").Return(txPower).Maybe()

	return adv
}

// BuildRaw creates a MockRawAdvertisement that also exposes the received
// advertising data and scan response, the way the linux stack does.
func (b *AdvertisementBuilder) BuildRaw(data, scanResponse []byte) *mocks.MockRawAdvertisement {
	raw := &mocks.MockRawAdvertisement{MockAdvertisement: b.Build()}
	raw.On("Data").Return(data).Maybe()
	raw.On("ScanResponse").Return(scanResponse).Maybe()
	return raw
}

func parseUUIDs(ss []string) []ble.UUID {
	out := make([]ble.UUID, 0, len(ss))
	for _, s := range ss {
		out = append(out, ble.MustParse(s))
	}
	return out
}
