// Package config loads the blebeacon configuration: struct-tag defaults,
// an optional YAML file, then command-line overrides applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	defaults "github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blebeacon/internal/advertise"
	"github.com/srg/blebeacon/internal/radio/goble"
	"github.com/srg/blebeacon/internal/radio/sim"
	"gopkg.in/yaml.v3"
)

// Radio backends.
const (
	RadioGoBLE = "goble"
	RadioSim   = "sim"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	LogLevel string        `yaml:"log_level" default:"info"`
	Radio    string        `yaml:"radio" default:"goble"`
	Format   string        `yaml:"format" default:"text"`
	Color    string        `yaml:"color" default:"auto"`
	Duration time.Duration `yaml:"duration" default:"0s"` // 0 runs until interrupted

	Advertise AdvertiseConfig `yaml:"advertise"`
	GoBLE     GoBLEConfig     `yaml:"goble"`
	Sim       SimConfig       `yaml:"sim"`
}

// AdvertiseConfig holds the advertise policy knobs.
type AdvertiseConfig struct {
	Mode              string        `yaml:"mode" default:"low_power"`
	TxPower           string        `yaml:"tx_power" default:"high"`
	Connectable       bool          `yaml:"connectable"`
	Timeout           time.Duration `yaml:"timeout" default:"0s"`
	IncludeDeviceName bool          `yaml:"include_device_name" default:"true"`
	IncludeTxPower    bool          `yaml:"include_tx_power" default:"true"`
	DeviceName        string        `yaml:"device_name"` // empty advertises the host name
	ServiceID         string        `yaml:"service_id" default:"52dcaf8e-2d15-11e5-b345-feff819cdc9f"`
}

// GoBLEConfig tunes the go-ble backend.
type GoBLEConfig struct {
	StartGrace  time.Duration `yaml:"start_grace" default:"200ms"`
	BatchWindow time.Duration `yaml:"batch_window" default:"0s"`
	BatchSize   uint32        `yaml:"batch_size" default:"256"`
	StopTimeout time.Duration `yaml:"stop_timeout" default:"2s"`
}

// SimConfig scripts the simulated backend.
type SimConfig struct {
	Ready        bool          `yaml:"ready" default:"true"`
	GrantEnable  bool          `yaml:"grant_enable" default:"true"`
	TxPower      *int          `yaml:"tx_power,omitempty"`
	ScanInterval time.Duration `yaml:"scan_interval" default:"1s"`
	BatchSize    int           `yaml:"batch_size"`
	Peers        []PeerConfig  `yaml:"peers,omitempty"`
}

// PeerConfig is one simulated peer.
type PeerConfig struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name,omitempty"`
	TxPower *int   `yaml:"tx_power,omitempty"`
	RSSI    int    `yaml:"rssi"`
	Service string `yaml:"service,omitempty"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns the defaults overlaid with the YAML file at path. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks every enumerated and parsed field.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	if err := oneOf("radio", c.Radio, RadioGoBLE, RadioSim); err != nil {
		return err
	}
	if err := oneOf("format", c.Format, FormatText, FormatJSON); err != nil {
		return err
	}
	if err := oneOf("color", c.Color, ColorAuto, ColorAlways, ColorNever); err != nil {
		return err
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	for i, p := range c.Sim.Peers {
		if p.Address == "" {
			return fmt.Errorf("%w: sim.peers[%d]: address is required", ErrInvalidConfig, i)
		}
		if p.Service != "" {
			if _, err := advertise.ParseServiceID(p.Service); err != nil {
				return fmt.Errorf("%w: sim.peers[%d].service: %v", ErrInvalidConfig, i, err)
			}
		}
	}
	return nil
}

// Policy converts the advertise section into an advertise.Policy.
func (c *Config) Policy() (advertise.Policy, error) {
	a := c.Advertise
	p := advertise.DefaultPolicy()

	mode, err := advertise.ParseMode(a.Mode)
	if err != nil {
		return p, fmt.Errorf("%w: advertise.mode: %v", ErrInvalidConfig, err)
	}
	tx, err := advertise.ParseTxPowerLevel(a.TxPower)
	if err != nil {
		return p, fmt.Errorf("%w: advertise.tx_power: %v", ErrInvalidConfig, err)
	}
	id, err := advertise.ParseServiceID(a.ServiceID)
	if err != nil {
		return p, fmt.Errorf("%w: advertise.service_id: %v", ErrInvalidConfig, err)
	}
	if a.Timeout < 0 {
		return p, fmt.Errorf("%w: advertise.timeout must not be negative", ErrInvalidConfig)
	}

	p.Mode = mode
	p.TxPower = tx
	p.Connectable = a.Connectable
	p.Timeout = a.Timeout
	p.IncludeDeviceName = a.IncludeDeviceName
	p.IncludeTxPower = a.IncludeTxPower
	p.DeviceName = a.DeviceName
	if p.DeviceName == "" {
		p.DeviceName = defaultDeviceName()
	}
	p.ServiceID = id
	return p, nil
}

// hostname names the advertised device when no device_name is configured.
var hostname = os.Hostname

// defaultDeviceName returns the first label of the host name, cut to what a
// scan response holds.
func defaultDeviceName() string {
	name, err := hostname()
	if err != nil || name == "" {
		return "blebeacon"
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if len(name) > advertise.MaxDeviceNameLength {
		name = name[:advertise.MaxDeviceNameLength]
	}
	return name
}

// GoBLEOptions converts the goble section into backend options.
func (c *Config) GoBLEOptions() goble.Options {
	return goble.Options{
		StartGrace:  c.GoBLE.StartGrace,
		BatchWindow: c.GoBLE.BatchWindow,
		BatchSize:   c.GoBLE.BatchSize,
		StopTimeout: c.GoBLE.StopTimeout,
	}
}

// SimOptions converts the sim section into backend options. Call Validate first.
func (c *Config) SimOptions() sim.Options {
	opts := sim.Options{
		Ready:            c.Sim.Ready,
		GrantEnable:      c.Sim.GrantEnable,
		EffectiveTxPower: c.Sim.TxPower,
		ScanInterval:     c.Sim.ScanInterval,
		BatchSize:        c.Sim.BatchSize,
	}
	for _, p := range c.Sim.Peers {
		peer := sim.Peer{
			Address: p.Address,
			Name:    p.Name,
			TxPower: p.TxPower,
			RSSI:    p.RSSI,
		}
		if p.Service != "" {
			peer.Service, _ = advertise.ParseServiceID(p.Service)
		}
		opts.Peers = append(opts.Peers, peer)
	}
	return opts
}

// Level returns the parsed log level, info when unparsable.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func NewLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %v, got %q", ErrInvalidConfig, field, allowed, value)
}
