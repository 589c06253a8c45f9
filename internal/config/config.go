// Package config handles YAML configuration loading/saving for an S7
// client, trimmed from the teacher's multi-protocol config/config.go down
// to the single-PLC field set spec.md §6 describes: endpoint, CPU family,
// rack/slot, timeouts, watchdog, and negotiated PDU length. The Load/Save
// shape (defaults-then-unmarshal, mutex-guarded save-to-disk) follows the
// teacher directly; the PLCFamily/TagSelection/MQTT/Kafka/Valkey/Web/UI/
// Warcry fields that made the teacher's Config a fleet-and-transport
// manifest are dropped, since this module manages exactly one S7
// connection and none of those concerns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// CPUFamily names the Siemens CPU family/generation being addressed; it
// currently only affects documentation/defaulting, not wire behavior.
type CPUFamily string

const (
	FamilyS7200  CPUFamily = "S7200"
	FamilyS7300  CPUFamily = "S7300"
	FamilyS71200 CPUFamily = "S71200"
	FamilyS71500 CPUFamily = "S71500"
	FamilyS7400  CPUFamily = "S7400"
	FamilyLOGO   CPUFamily = "LOGO_0BA8"
)

// WatchdogConfig configures the periodic liveness write described in
// spec.md §4.8. Address must be a DB word address (e.g. "DB10.DBW0").
type WatchdogConfig struct {
	Address  string        `yaml:"address"`
	Value    uint16        `yaml:"value"`
	Interval time.Duration `yaml:"interval"`
}

// Config holds the complete configuration for one S7 connection.
type Config struct {
	Endpoint          string          `yaml:"endpoint"`
	CPUFamily         CPUFamily       `yaml:"cpu_family,omitempty"`
	Rack              int             `yaml:"rack"`
	Slot              int             `yaml:"slot"`
	PollInterval      time.Duration   `yaml:"poll_interval"`
	ConnectTimeout    time.Duration   `yaml:"connect_timeout,omitempty"`
	ReadTimeout       time.Duration   `yaml:"read_timeout,omitempty"`
	WriteTimeout      time.Duration   `yaml:"write_timeout,omitempty"`
	ProposedPDULength uint16          `yaml:"proposed_pdu_length,omitempty"`
	Watchdog          *WatchdogConfig `yaml:"watchdog,omitempty"`

	dataMu sync.Mutex `yaml:"-"`
}

// DefaultConfig returns a Config with the field defaults spec.md §6 names.
func DefaultConfig() *Config {
	return &Config{
		CPUFamily:         FamilyS71500,
		Rack:              0,
		Slot:              2,
		PollInterval:      1 * time.Second,
		ConnectTimeout:    5 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      3 * time.Second,
		ProposedPDULength: 960,
	}
}

// DefaultPath mirrors the teacher's per-user config location convention.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "s7comm.yaml"
	}
	return filepath.Join(home, ".s7comm", "config.yaml")
}

// Load reads configuration from a YAML file, filling in defaults for any
// field the file leaves unset. A missing file is not an error; Load
// returns DefaultConfig() in that case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save marshals and writes the config to path, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	c.dataMu.Lock()
	data, err := yaml.Marshal(c)
	c.dataMu.Unlock()
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks the field constraints spec.md §6 requires: rack in
// 0..7, slot in 1..31 (0 is never a valid module slot), and, if a
// watchdog is configured, that its address parses as a DB word address.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("config: endpoint is required")
	}
	if c.Rack < 0 || c.Rack > 7 {
		return fmt.Errorf("config: rack %d out of range 0..7", c.Rack)
	}
	if c.Slot < 1 || c.Slot > 31 {
		return fmt.Errorf("config: slot %d out of range 1..31", c.Slot)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive")
	}
	if c.Watchdog != nil {
		if c.Watchdog.Interval <= 0 {
			return fmt.Errorf("config: watchdog interval must be positive")
		}
		if err := validateWatchdogAddress(c.Watchdog.Address); err != nil {
			return fmt.Errorf("config: watchdog address: %w", err)
		}
	}
	return nil
}

// validateWatchdogAddress is a address-syntax-only check (DBn.DBWm),
// independent of the s7 package's richer Location-producing validator, to
// keep this package free of an import cycle back into s7.
func validateWatchdogAddress(addr string) error {
	var db, word int
	n, err := fmt.Sscanf(addr, "DB%d.DBW%d", &db, &word)
	if err != nil || n != 2 {
		return fmt.Errorf("%q is not a DBn.DBWm address", addr)
	}
	if db < 1 || word < 0 {
		return fmt.Errorf("%q has an invalid DB number or offset", addr)
	}
	return nil
}
