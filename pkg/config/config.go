// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the machine description: controller link, coils, switches,
// startup hardware rules and the optional MQTT and HTTP outputs.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/solenoid/pkg/jrproto"
)

// Defaults applied by Parse.
const (
	DefaultTickHz         = 100
	DefaultPulseMs        = 10
	DefaultBaudRate       = 115200
	DefaultMQTTPrefix     = "pinball/switches"
	DefaultLocalGPIOChip  = "gpiochip0"
	DefaultMQTTClientName = "solenoid"
)

// Machine is a parsed machine configuration file.
type Machine struct {
	Platform      PlatformConfig          `yaml:"platform"`
	Coils         map[string]CoilConfig   `yaml:"coils"`
	Switches      map[string]SwitchConfig `yaml:"switches"`
	LocalSwitches LocalSwitchConfig       `yaml:"local_switches"`
	HWRules       []RuleConfig            `yaml:"hw_rules"`
	MQTT          MQTTConfig              `yaml:"mqtt"`
	HTTP          HTTPConfig              `yaml:"http"`
}

// PlatformConfig describes the controller link and timing.
type PlatformConfig struct {
	SerialNumbers  []string `yaml:"serial_numbers"`
	Port           string   `yaml:"port"`
	Baud           int      `yaml:"baud"`
	TickHz         int      `yaml:"tick_hz"`
	DefaultPulseMs int      `yaml:"default_pulse_ms"`
}

// CoilConfig describes one driver.
type CoilConfig struct {
	Number      int    `yaml:"number"`
	PulseMs     int    `yaml:"pulse_ms"`
	HoldPattern string `yaml:"hold_pattern"` // "on-off" in ms, e.g. "2-8"
	AllowEnable bool   `yaml:"allow_enable"`
}

// SwitchConfig describes one controller switch.
type SwitchConfig struct {
	Number int `yaml:"number"`
}

// LocalSwitchConfig describes switches read from host GPIO lines.
type LocalSwitchConfig struct {
	Chip      string        `yaml:"chip"`
	ActiveLow bool          `yaml:"active_low"`
	Switches  []LocalSwitch `yaml:"switches"`
}

// LocalSwitch is one GPIO-backed switch.
type LocalSwitch struct {
	Name   string `yaml:"name"`
	Line   int    `yaml:"line"`
	Number int    `yaml:"number"`
}

// RuleConfig is a hardware rule installed at startup.
type RuleConfig struct {
	Switch           string `yaml:"switch"`
	Driver           string `yaml:"driver"`
	Activity         string `yaml:"activity"` // active | inactive
	Action           string `yaml:"action"`   // pulse | hold
	DisableOnRelease *bool  `yaml:"disable_on_release"`
	DriveNow         bool   `yaml:"drive_now"`
}

// ReleaseDisables returns DisableOnRelease, defaulting to true.
func (r RuleConfig) ReleaseDisables() bool {
	return r.DisableOnRelease == nil || *r.DisableOnRelease
}

// MQTTConfig enables switch reports over MQTT when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HTTPConfig enables the status API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads and parses a machine file.
func Load(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read machine config: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes YAML, applies defaults and validates references.
func Parse(data []byte) (*Machine, error) {
	var m Machine
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse machine config: %w", err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Machine) applyDefaults() {
	if m.Platform.TickHz == 0 {
		m.Platform.TickHz = DefaultTickHz
	}
	if m.Platform.DefaultPulseMs == 0 {
		m.Platform.DefaultPulseMs = DefaultPulseMs
	}
	if m.Platform.Baud == 0 {
		m.Platform.Baud = DefaultBaudRate
	}
	if m.LocalSwitches.Chip == "" {
		m.LocalSwitches.Chip = DefaultLocalGPIOChip
	}
	if m.MQTT.TopicPrefix == "" {
		m.MQTT.TopicPrefix = DefaultMQTTPrefix
	}
	if m.MQTT.ClientID == "" {
		m.MQTT.ClientID = DefaultMQTTClientName
	}
}

// Validate checks values and cross references. All problems are reported together.
func (m *Machine) Validate() error {
	var errs []error

	if m.Platform.TickHz < 0 {
		errs = append(errs, fmt.Errorf("platform.tick_hz %d must be positive", m.Platform.TickHz))
	}
	for _, name := range m.CoilNames() {
		c := m.Coils[name]
		if c.Number < 0 || c.Number > jrproto.MaxChannel {
			errs = append(errs, fmt.Errorf("coils.%s: number %d out of range 0-%d", name, c.Number, jrproto.MaxChannel))
		}
		if _, _, err := c.Pattern(); err != nil {
			errs = append(errs, fmt.Errorf("coils.%s: %w", name, err))
		}
	}
	for _, name := range m.SwitchNames() {
		if n := m.Switches[name].Number; n < 0 || n > jrproto.MaxEventSwitch {
			errs = append(errs, fmt.Errorf("switches.%s: number %d out of range 0-%d", name, n, jrproto.MaxEventSwitch))
		}
	}
	for i, r := range m.HWRules {
		if sw, ok := m.Switches[r.Switch]; !ok {
			errs = append(errs, fmt.Errorf("hw_rules[%d]: unknown switch %q", i, r.Switch))
		} else if sw.Number > jrproto.MaxSwitchID {
			errs = append(errs, fmt.Errorf("hw_rules[%d]: switch %q number %d cannot carry a rule (max %d)", i, r.Switch, sw.Number, jrproto.MaxSwitchID))
		}
		if _, ok := m.Coils[r.Driver]; !ok {
			errs = append(errs, fmt.Errorf("hw_rules[%d]: unknown driver %q", i, r.Driver))
		}
		switch r.Activity {
		case "", "active", "inactive":
		default:
			errs = append(errs, fmt.Errorf("hw_rules[%d]: activity %q (want active or inactive)", i, r.Activity))
		}
		switch r.Action {
		case "", "pulse", "hold":
		default:
			errs = append(errs, fmt.Errorf("hw_rules[%d]: action %q (want pulse or hold)", i, r.Action))
		}
	}
	for i, ls := range m.LocalSwitches.Switches {
		if ls.Name == "" {
			errs = append(errs, fmt.Errorf("local_switches.switches[%d]: missing name", i))
		}
		if ls.Line < 0 {
			errs = append(errs, fmt.Errorf("local_switches.switches[%d]: negative line", i))
		}
		if ls.Number < 0 || ls.Number > jrproto.MaxEventSwitch {
			errs = append(errs, fmt.Errorf("local_switches.switches[%d]: number %d out of range 0-%d", i, ls.Number, jrproto.MaxEventSwitch))
		}
	}

	return errors.Join(errs...)
}

// Pattern parses HoldPattern. An empty pattern returns 0, 0.
func (c CoilConfig) Pattern() (on, off int, err error) {
	if strings.TrimSpace(c.HoldPattern) == "" {
		return 0, 0, nil
	}
	parts := strings.Split(c.HoldPattern, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("hold_pattern %q: want on-off", c.HoldPattern)
	}
	on, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || on < 0 {
		return 0, 0, fmt.Errorf("hold_pattern %q: bad on time", c.HoldPattern)
	}
	off, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || off < 0 {
		return 0, 0, fmt.Errorf("hold_pattern %q: bad off time", c.HoldPattern)
	}
	return on, off, nil
}

// CoilNames returns coil names sorted.
func (m *Machine) CoilNames() []string {
	names := make([]string, 0, len(m.Coils))
	for n := range m.Coils {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SwitchNames returns switch names sorted.
func (m *Machine) SwitchNames() []string {
	names := make([]string, 0, len(m.Switches))
	for n := range m.Switches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
