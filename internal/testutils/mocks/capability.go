// Package mocks holds testify mocks for the radio boundary and go-ble types.
package mocks

import (
	"sync"

	"github.com/srg/blebeacon/internal/advertise"
	"github.com/srg/blebeacon/internal/radio"
	"github.com/stretchr/testify/mock"
)

// MockCapability is a testify mock of radio.Capability. Besides recording
// calls it remembers the tokens and sinks passed with start requests so tests
// can play the radio stack's side.
type MockCapability struct {
	mock.Mock

	mu         sync.Mutex
	tokens     map[radio.Role]radio.Token
	sinks      map[radio.Token]radio.EventSink
	enableSink radio.EventSink
}

// NewMockCapability returns a mock that reports ready and accepts every call.
func NewMockCapability(ready bool) *MockCapability {
	return (&MockCapability{}).WithDefaults(ready)
}

// WithDefaults registers catch-all expectations. testify matches expectations
// in registration order, so specific ones must be set up before calling it.
func (m *MockCapability) WithDefaults(ready bool) *MockCapability {
	m.On("IsReady").Return(ready).Maybe()
	m.On("RequestEnable", mock.Anything).Return().Maybe()
	m.On("StartAdvertise", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("StopAdvertise", mock.Anything).Return(nil).Maybe()
	m.On("StartScan", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("StopScan", mock.Anything).Return(nil).Maybe()
	m.On("FlushPendingScanResults", mock.Anything).Return(nil).Maybe()
	return m
}

func (m *MockCapability) IsReady() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockCapability) RequestEnable(sink radio.EventSink) {
	m.mu.Lock()
	m.enableSink = sink
	m.mu.Unlock()
	m.Called(sink)
}

func (m *MockCapability) StartAdvertise(token radio.Token, cfg advertise.Config, sink radio.EventSink) {
	m.remember(token, sink)
	m.Called(token, cfg, sink)
}

func (m *MockCapability) StopAdvertise(token radio.Token) error {
	args := m.Called(token)
	return args.Error(0)
}

func (m *MockCapability) StartScan(token radio.Token, filter advertise.ServiceID, sink radio.EventSink) {
	m.remember(token, sink)
	m.Called(token, filter, sink)
}

func (m *MockCapability) StopScan(token radio.Token) error {
	args := m.Called(token)
	return args.Error(0)
}

func (m *MockCapability) FlushPendingScanResults(token radio.Token) []radio.RawResult {
	args := m.Called(token)
	if v := args.Get(0); v != nil {
		return v.([]radio.RawResult)
	}
	return nil
}

func (m *MockCapability) remember(token radio.Token, sink radio.EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = make(map[radio.Role]radio.Token)
		m.sinks = make(map[radio.Token]radio.EventSink)
	}
	m.tokens[token.Role] = token
	m.sinks[token] = sink
}

// LastToken returns the token of the most recent start request for role.
func (m *MockCapability) LastToken(role radio.Role) radio.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[role]
}

// SinkFor returns the sink passed with token, nil if none.
func (m *MockCapability) SinkFor(token radio.Token) radio.EventSink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sinks[token]
}

// EnableSink returns the sink passed to the last RequestEnable call.
func (m *MockCapability) EnableSink() radio.EventSink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enableSink
}
