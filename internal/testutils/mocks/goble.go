package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/blebeacon/internal/radio/goble"
	"github.com/stretchr/testify/mock"
)

// MockAddr is a testify mock of ble.Addr.
type MockAddr struct {
	mock.Mock
}

func (m *MockAddr) String() string {
	return m.Called().String(0)
}

// MockAdvertisement is a testify mock of ble.Advertisement.
type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockAdvertisement) ManufacturerData() []byte {
	if v := m.Called().Get(0); v != nil {
		return v.([]byte)
	}
	return nil
}

func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	if v := m.Called().Get(0); v != nil {
		return v.([]ble.ServiceData)
	}
	return nil
}

func (m *MockAdvertisement) Services() []ble.UUID {
	if v := m.Called().Get(0); v != nil {
		return v.([]ble.UUID)
	}
	return nil
}

func (m *MockAdvertisement) OverflowService() []ble.UUID {
	if v := m.Called().Get(0); v != nil {
		return v.([]ble.UUID)
	}
	return nil
}

func (m *MockAdvertisement) TxPowerLevel() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Connectable() bool {
	return m.Called().Bool(0)
}

func (m *MockAdvertisement) SolicitedService() []ble.UUID {
	if v := m.Called().Get(0); v != nil {
		return v.([]ble.UUID)
	}
	return nil
}

func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	if v := m.Called().Get(0); v != nil {
		return v.(ble.Addr)
	}
	return nil
}

// MockRawAdvertisement is a MockAdvertisement that also exposes the received
// advertising data, like the linux stack does.
type MockRawAdvertisement struct {
	*MockAdvertisement
}

func (m *MockRawAdvertisement) Data() []byte {
	if v := m.Called().Get(0); v != nil {
		return v.([]byte)
	}
	return nil
}

func (m *MockRawAdvertisement) ScanResponse() []byte {
	if v := m.Called().Get(0); v != nil {
		return v.([]byte)
	}
	return nil
}

// MockDevice is a testify mock of the go-ble device calls the radio backend
// makes. Blocking calls return when their context is done unless the
// expectation returns first.
type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error {
	return m.Called(ctx, name, uuids).Error(0)
}

func (m *MockDevice) AdvertisePacket(ctx context.Context, a goble.Advertising) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

func (m *MockDevice) Stop() error {
	return m.Called().Error(0)
}

// NameOnlyDevice hides AdvertisePacket, leaving the name and service
// advertising every go-ble device has.
type NameOnlyDevice struct {
	goble.Device
}

// BlockUntilDone is a mock Run function that waits for the context argument.
func BlockUntilDone(args mock.Arguments) {
	<-args.Get(0).(context.Context).Done()
}
