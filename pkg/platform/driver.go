// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package platform

import (
	"fmt"
	"time"

	"github.com/Thermoquad/solenoid/pkg/jrproto"
	"github.com/Thermoquad/solenoid/pkg/logger"
)

// DefaultPulseMs is used for drivers without pulse_ms when Options.DefaultPulseMs is 0.
const DefaultPulseMs = 10

// Sentinel values for Driver.TimeWhenDone.
var (
	DoneIdle       = time.Time{}
	DoneIndefinite = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
)

// DriverState is the actuation state of a coil.
type DriverState int

const (
	StateIdle DriverState = iota
	StatePulsing
	StateHeldHard
	StateHeldPWM
)

func (s DriverState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePulsing:
		return "pulsing"
	case StateHeldHard:
		return "held"
	case StateHeldPWM:
		return "held-pwm"
	}
	return "unknown"
}

// DriverConfig is the validated configuration of one coil or flasher.
type DriverConfig struct {
	Number   int
	PulseMs  int
	PWMOnMs  int
	PWMOffMs int
	// AllowEnable permits Enable without a hold pattern. Holding a coil at full
	// power overheats it, so this is off unless configured.
	AllowEnable bool
}

// HasHoldPattern reports whether both halves of the hold pattern are set.
func (c DriverConfig) HasHoldPattern() bool {
	return c.PWMOnMs > 0 && c.PWMOffMs > 0
}

// Driver turns logical commands for one coil into controller commands and keeps
// the timing bookkeeping. It is owned by the control goroutine.
type Driver struct {
	name string
	cfg  DriverConfig
	ctrl DriverControl
	log  logger.Logger
	now  func() time.Time

	maxPulseMs      int
	state           DriverState
	timeLastChanged time.Time
	timeWhenDone    time.Time
}

func newDriver(name string, cfg DriverConfig, features Features, defaultPulseMs int, ctrl DriverControl, log logger.Logger, now func() time.Time) (*Driver, error) {
	if cfg.Number < 0 || cfg.Number > jrproto.MaxChannel {
		return nil, fmt.Errorf("driver %s: %w: %d", name, jrproto.ErrChannelRange, cfg.Number)
	}
	if cfg.PulseMs == 0 {
		cfg.PulseMs = defaultPulseMs
	}
	if cfg.PulseMs < 1 {
		return nil, fmt.Errorf("driver %s: pulse_ms %d must be positive", name, cfg.PulseMs)
	}
	if features.MaxPulseMs > 0 && cfg.PulseMs > features.MaxPulseMs {
		return nil, fmt.Errorf("driver %s: pulse_ms %d exceeds controller maximum %d", name, cfg.PulseMs, features.MaxPulseMs)
	}
	if cfg.PWMOnMs < 0 || cfg.PWMOffMs < 0 {
		return nil, fmt.Errorf("driver %s: negative hold pattern %d-%d", name, cfg.PWMOnMs, cfg.PWMOffMs)
	}

	return &Driver{
		name:       name,
		cfg:        cfg,
		ctrl:       ctrl,
		log:        log,
		now:        now,
		maxPulseMs: features.MaxPulseMs,
	}, nil
}

func (d *Driver) Name() string         { return d.name }
func (d *Driver) Number() int          { return d.cfg.Number }
func (d *Driver) Config() DriverConfig { return d.cfg }

// TimeLastChanged is when the last successful command was issued.
func (d *Driver) TimeLastChanged() time.Time { return d.timeLastChanged }

// TimeWhenDone is when the current action ends: a real time for pulses and timed
// holds, DoneIndefinite for holds, DoneIdle after Disable.
func (d *Driver) TimeWhenDone() time.Time { return d.timeWhenDone }

// State returns the actuation state. A pulse whose time has passed reads as idle;
// nothing is sent to the controller when that happens.
func (d *Driver) State() DriverState {
	if d.state == StatePulsing && !d.now().Before(d.timeWhenDone) {
		return StateIdle
	}
	return d.state
}

// Enable holds the driver on. A configured hold pattern is used when present;
// otherwise a full-power hold requires AllowEnable and is refused with a warning.
func (d *Driver) Enable() error {
	if d.cfg.HasHoldPattern() {
		return d.PWM(d.cfg.PWMOnMs, d.cfg.PWMOffMs)
	}
	if !d.cfg.AllowEnable {
		d.log.Warnf("Received a command to enable %s without a hold pattern, but allow_enable is not set", d.name)
		return nil
	}
	if err := d.ctrl.Enable(d.cfg.Number); err != nil {
		return fmt.Errorf("enable %s: %w", d.name, err)
	}
	d.log.Debugf("enabled %s", d.name)
	d.set(StateHeldHard, DoneIndefinite)
	return nil
}

// Disable turns the driver off. The command is always sent, whatever the state.
func (d *Driver) Disable() error {
	if err := d.ctrl.Disable(d.cfg.Number); err != nil {
		return fmt.Errorf("disable %s: %w", d.name, err)
	}
	d.log.Debugf("disabled %s", d.name)
	d.set(StateIdle, DoneIdle)
	return nil
}

// Pulse fires the driver for its configured pulse_ms.
func (d *Driver) Pulse() error {
	return d.pulse(d.cfg.PulseMs)
}

// PulseFor fires the driver for ms milliseconds. Durations below 1ms, or above the
// controller maximum, are refused with a warning.
func (d *Driver) PulseFor(ms int) error {
	if ms < 1 {
		d.log.Warnf("Received command to pulse %s for %dms, but ms is less than 1, so doing nothing", d.name, ms)
		return nil
	}
	if d.maxPulseMs > 0 && ms > d.maxPulseMs {
		d.log.Warnf("Received command to pulse %s for %dms, above the %dms controller maximum, so doing nothing", d.name, ms, d.maxPulseMs)
		return nil
	}
	return d.pulse(ms)
}

func (d *Driver) pulse(ms int) error {
	if ms != d.cfg.PulseMs {
		// The pulse frame has no duration; the controller uses its own setting.
		d.log.Debugf("pulse %s requested %dms, controller applies its configured duration", d.name, ms)
	}
	if err := d.ctrl.Pulse(d.cfg.Number); err != nil {
		return fmt.Errorf("pulse %s: %w", d.name, err)
	}
	now := d.now()
	d.state = StatePulsing
	d.timeLastChanged = now
	d.timeWhenDone = now.Add(time.Duration(ms) * time.Millisecond)
	return nil
}

// PWM holds the driver with an on/off pattern until disabled. Unlike Enable, it does
// not check AllowEnable.
func (d *Driver) PWM(onMs, offMs int) error {
	d.log.Debugf("pwm %s on=%dms off=%dms", d.name, onMs, offMs)
	if err := d.ctrl.Enable(d.cfg.Number); err != nil {
		return fmt.Errorf("pwm %s: %w", d.name, err)
	}
	d.set(StateHeldPWM, DoneIndefinite)
	return nil
}

// TimedPWM holds the driver with an on/off pattern for totalMs. The platform tick
// disables it once the time has passed.
func (d *Driver) TimedPWM(onMs, offMs, totalMs int) error {
	if totalMs < 1 {
		d.log.Warnf("Received command to hold %s for %dms, but ms is less than 1, so doing nothing", d.name, totalMs)
		return nil
	}
	d.log.Debugf("timed pwm %s on=%dms off=%dms total=%dms", d.name, onMs, offMs, totalMs)
	if err := d.ctrl.Enable(d.cfg.Number); err != nil {
		return fmt.Errorf("timed pwm %s: %w", d.name, err)
	}
	now := d.now()
	d.state = StateHeldPWM
	d.timeLastChanged = now
	d.timeWhenDone = now.Add(time.Duration(totalMs) * time.Millisecond)
	return nil
}

// holdExpired reports whether a timed hold has run out.
func (d *Driver) holdExpired(now time.Time) bool {
	if d.state != StateHeldPWM && d.state != StateHeldHard {
		return false
	}
	return d.timeWhenDone != DoneIndefinite && !now.Before(d.timeWhenDone)
}

func (d *Driver) set(state DriverState, whenDone time.Time) {
	d.state = state
	d.timeLastChanged = d.now()
	d.timeWhenDone = whenDone
}
