// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package platform drives coils and tracks switches on a pinball controller. All
// methods must be called from a single control goroutine.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Thermoquad/solenoid/pkg/config"
	"github.com/Thermoquad/solenoid/pkg/logger"
	"github.com/Thermoquad/solenoid/pkg/transport"
)

var (
	// ErrHardwareDependencyMissing is returned by New when no transport is available.
	ErrHardwareDependencyMissing = errors.New("platform: no controller transport available")
	ErrUnknownDriver             = errors.New("platform: unknown driver")
	ErrUnknownSwitch             = errors.New("platform: unknown switch")
)

// DefaultReconnectInterval is the minimum time between dial attempts made by Tick.
const DefaultReconnectInterval = time.Second

// Options configures a Platform. Zero values pick defaults.
type Options struct {
	Logger         logger.Logger
	Reporter       SwitchReporter
	Now            func() time.Time
	DefaultPulseMs int
	// ReconnectInterval limits how often Tick dials a missing controller while
	// deferred rules or expired holds are waiting for it.
	ReconnectInterval time.Duration
}

// Platform owns the controller, the configured drivers, the switch tracker and the
// hardware rule table.
type Platform struct {
	ctrl     Controller
	features Features
	log      logger.Logger
	now      func() time.Time

	defaultPulseMs int
	drivers        map[string]*Driver
	switchNumbers  map[string]int
	tracker        *SwitchTracker
	rules          *RuleTable

	// Configured rules that could not be written because the controller was gone.
	deferred          []HardwareRule
	reconnectInterval time.Duration
	lastDial          time.Time
	holdFailures      int

	ticks   uint64
	elapsed time.Duration
}

// New builds a platform talking jrproto over t. A nil transport is the one fatal
// construction error.
func New(t *transport.Transport, features Features, opts Options) (*Platform, error) {
	if t == nil {
		return nil, ErrHardwareDependencyMissing
	}
	return NewWithController(NewJRController(t), features, opts)
}

// NewWithController builds a platform over any controller family.
func NewWithController(ctrl Controller, features Features, opts Options) (*Platform, error) {
	if ctrl == nil {
		return nil, ErrHardwareDependencyMissing
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultPulseMs == 0 {
		opts.DefaultPulseMs = DefaultPulseMs
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}

	p := &Platform{
		ctrl:           ctrl,
		features:       features,
		log:            opts.Logger,
		now:            opts.Now,
		defaultPulseMs: opts.DefaultPulseMs,
		drivers:        make(map[string]*Driver),
		switchNumbers:  make(map[string]int),

		reconnectInterval: opts.ReconnectInterval,
	}
	p.tracker = newSwitchTracker(ctrl, opts.Reporter, opts.Logger, opts.Now)
	p.rules = newRuleTable(ctrl, p.tracker, opts.Logger)
	return p, nil
}

// Features returns the controller capabilities the platform was built with.
func (p *Platform) Features() Features { return p.features }

// ConfigureDriver validates cfg against the controller and registers the driver.
func (p *Platform) ConfigureDriver(name string, cfg DriverConfig) (*Driver, error) {
	if _, ok := p.drivers[name]; ok {
		return nil, fmt.Errorf("driver %s already configured", name)
	}
	for _, d := range p.drivers {
		if d.Number() == cfg.Number {
			return nil, fmt.Errorf("driver %s: channel %d already used by %s", name, cfg.Number, d.Name())
		}
	}
	d, err := newDriver(name, cfg, p.features, p.defaultPulseMs, p.ctrl, p.log, p.now)
	if err != nil {
		return nil, err
	}
	p.drivers[name] = d
	return d, nil
}

// Driver returns a configured driver by name.
func (p *Platform) Driver(name string) (*Driver, error) {
	d, ok := p.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}
	return d, nil
}

// Drivers returns the configured drivers ordered by channel.
func (p *Platform) Drivers() []*Driver {
	out := make([]*Driver, 0, len(p.drivers))
	for _, d := range p.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number() < out[j].Number() })
	return out
}

// ConfigureSwitch registers a controller switch.
func (p *Platform) ConfigureSwitch(name string, number int) error {
	if _, ok := p.switchNumbers[name]; ok {
		return fmt.Errorf("switch %s already configured", name)
	}
	if err := p.tracker.add(name, number); err != nil {
		return err
	}
	p.switchNumbers[name] = number
	return nil
}

// LocalSwitch names one value returned by a LocalInputs reader.
type LocalSwitch struct {
	Name   string
	Number int
}

// ConfigureLocalSwitches attaches host-side inputs. The i-th value read from in is
// the state of switches[i].
func (p *Platform) ConfigureLocalSwitches(in LocalInputs, switches []LocalSwitch) {
	names := make([]string, len(switches))
	numbers := make([]int, len(switches))
	for i, s := range switches {
		names[i] = s.Name
		numbers[i] = s.Number
	}
	p.tracker.setLocal(in, names, numbers)
}

// Switches returns the switch tracker.
func (p *Platform) Switches() *SwitchTracker { return p.tracker }

// Rules returns the hardware rule table.
func (p *Platform) Rules() *RuleTable { return p.rules }

// Initialize connects to the controller and seeds switch state. A missing
// controller is logged and tolerated; the next write retries.
func (p *Platform) Initialize() error {
	p.lastDial = p.now()
	if !p.ctrl.Connect() {
		p.log.Warnf("controller not connected, continuing without hardware")
		return nil
	}
	p.log.Infof("controller connected")
	if p.features.BulkSwitchQuery {
		return p.tracker.BulkQuery()
	}
	return nil
}

// Tick processes waiting switch frames, ends timed holds that have run out and
// writes deferred rules. While the controller is missing and such work is waiting,
// Tick dials at most once per ReconnectInterval.
func (p *Platform) Tick(dt time.Duration) {
	p.ticks++
	p.elapsed += dt
	p.tracker.Tick()

	now := p.now()
	var expired []*Driver
	for _, d := range p.Drivers() {
		if d.holdExpired(now) {
			expired = append(expired, d)
		}
	}
	if len(expired) == 0 && len(p.deferred) == 0 {
		return
	}
	if !p.ctrl.Connected() && !p.redial(now) {
		return
	}

	p.installDeferred()
	for _, d := range expired {
		if !p.ctrl.Connected() {
			return
		}
		if err := d.Disable(); err != nil {
			p.holdFailures++
			if p.holdFailures == 1 {
				p.log.Warnf("end timed hold: %v", err)
			} else {
				p.log.Debugf("end timed hold, attempt %d: %v", p.holdFailures, err)
			}
			continue
		}
		p.holdFailures = 0
	}
}

func (p *Platform) redial(now time.Time) bool {
	if !p.lastDial.IsZero() && now.Sub(p.lastDial) < p.reconnectInterval {
		return false
	}
	p.lastDial = now
	return p.ctrl.Connect()
}

// installDeferred writes rules held back by InstallConfiguredRules. Rules still
// unwritten when the link drops again stay deferred.
func (p *Platform) installDeferred() {
	if len(p.deferred) == 0 {
		return
	}
	rules := p.deferred
	p.deferred = nil
	installed := 0
	for i, rule := range rules {
		if err := p.rules.Install(rule); err != nil {
			if !p.ctrl.Connected() {
				p.deferred = append(p.deferred, rules[i:]...)
				p.log.Debugf("controller lost again, %d hardware rules still deferred", len(p.deferred))
				break
			}
			p.log.Errorf("install deferred rule: %v", err)
			continue
		}
		installed++
	}
	if installed > 0 {
		p.log.Infof("installed %d deferred hardware rules", installed)
	}
}

// DeferredRules returns how many configured rules are waiting for the controller.
func (p *Platform) DeferredRules() int { return len(p.deferred) }

// Run ticks once per value received on tick until ctx is done. afterTick, when
// non-nil, runs on the control goroutine after every tick.
func (p *Platform) Run(ctx context.Context, tick <-chan time.Time, afterTick func(time.Time)) error {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-tick:
			if !ok {
				return nil
			}
			var dt time.Duration
			if !last.IsZero() {
				dt = t.Sub(last)
			}
			last = t
			p.Tick(dt)
			if afterTick != nil {
				afterTick(t)
			}
		}
	}
}

// TickInterval converts a tick frequency to a period.
func TickInterval(hz int) (time.Duration, error) {
	if hz < 1 {
		return 0, fmt.Errorf("tick rate %dHz must be at least 1", hz)
	}
	return time.Second / time.Duration(hz), nil
}

// Stop disables every driver and closes the controller.
func (p *Platform) Stop() error {
	var errs []error
	if p.ctrl.Connected() {
		for _, d := range p.Drivers() {
			if err := d.Disable(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := p.ctrl.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// InstallRule programs a hardware rule between a configured switch and driver.
func (p *Platform) InstallRule(switchName string, activity Activity, driverName string, action Action, disableOnRelease, driveNow bool) error {
	rule, err := p.resolveRule(switchName, activity, driverName, action, disableOnRelease, driveNow)
	if err != nil {
		return err
	}
	return p.rules.Install(rule)
}

func (p *Platform) resolveRule(switchName string, activity Activity, driverName string, action Action, disableOnRelease, driveNow bool) (HardwareRule, error) {
	number, ok := p.switchNumbers[switchName]
	if !ok {
		return HardwareRule{}, fmt.Errorf("%w: %s", ErrUnknownSwitch, switchName)
	}
	d, err := p.Driver(driverName)
	if err != nil {
		return HardwareRule{}, err
	}
	return HardwareRule{
		Switch:           number,
		Driver:           d,
		Activity:         activity,
		Action:           action,
		DisableOnRelease: disableOnRelease,
		DriveNow:         driveNow,
	}, nil
}

// ClearRule removes all rules on a configured switch.
func (p *Platform) ClearRule(switchName string) error {
	number, ok := p.switchNumbers[switchName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSwitch, switchName)
	}
	return p.rules.Clear(number)
}

// ApplyMachineConfig configures every coil and switch of m.
func (p *Platform) ApplyMachineConfig(m *config.Machine) error {
	var errs []error
	for _, name := range m.CoilNames() {
		c := m.Coils[name]
		on, off, err := c.Pattern()
		if err != nil {
			errs = append(errs, fmt.Errorf("coil %s: %w", name, err))
			continue
		}
		_, err = p.ConfigureDriver(name, DriverConfig{
			Number:      c.Number,
			PulseMs:     c.PulseMs,
			PWMOnMs:     on,
			PWMOffMs:    off,
			AllowEnable: c.AllowEnable,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range m.SwitchNames() {
		if err := p.ConfigureSwitch(name, m.Switches[name].Number); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InstallConfiguredRules installs the startup rules of m, in file order. Every rule
// is attempted and all errors are returned together. Once the controller turns out
// to be missing, the remaining rules are deferred and Tick writes them after it
// reconnects.
func (p *Platform) InstallConfiguredRules(m *config.Machine) error {
	var errs []error
	for i, r := range m.HWRules {
		activity := ActivityActive
		if r.Activity == "inactive" {
			activity = ActivityInactive
		}
		action := ActionPulse
		if r.Action == "hold" {
			action = ActionHold
		}
		rule, err := p.resolveRule(r.Switch, activity, r.Driver, action, r.ReleaseDisables(), r.DriveNow)
		if err != nil {
			errs = append(errs, fmt.Errorf("hw_rules[%d]: %w", i, err))
			continue
		}
		if len(p.deferred) > 0 {
			p.deferred = append(p.deferred, rule)
			continue
		}
		if err := p.rules.Install(rule); err != nil {
			if !p.ctrl.Connected() {
				p.deferred = append(p.deferred, rule)
				continue
			}
			errs = append(errs, fmt.Errorf("hw_rules[%d]: %w", i, err))
		}
	}
	if len(p.deferred) > 0 {
		p.log.Warnf("controller not connected, %d hardware rules deferred", len(p.deferred))
	}
	return errors.Join(errs...)
}

// DriverInfo is the printable state of one driver.
type DriverInfo struct {
	Name            string    `json:"name" cbor:"name"`
	Number          int       `json:"number" cbor:"number"`
	State           string    `json:"state" cbor:"state"`
	PulseMs         int       `json:"pulse_ms" cbor:"pulse_ms"`
	HoldPattern     string    `json:"hold_pattern,omitempty" cbor:"hold_pattern,omitempty"`
	AllowEnable     bool      `json:"allow_enable" cbor:"allow_enable"`
	TimeLastChanged time.Time `json:"time_last_changed" cbor:"time_last_changed"`
	TimeWhenDone    time.Time `json:"time_when_done" cbor:"time_when_done"`
}

// Snapshot is a point-in-time copy of platform state, safe to hand to other
// goroutines.
type Snapshot struct {
	Taken         time.Time     `json:"taken" cbor:"taken"`
	Connected     bool          `json:"connected" cbor:"connected"`
	Ticks         uint64        `json:"ticks" cbor:"ticks"`
	Uptime        time.Duration `json:"uptime_ns" cbor:"uptime_ns"`
	GarbageFrames uint64        `json:"garbage_frames" cbor:"garbage_frames"`
	DeferredRules int           `json:"deferred_rules" cbor:"deferred_rules"`
	Drivers       []DriverInfo  `json:"drivers" cbor:"drivers"`
	Switches      []SwitchState `json:"switches" cbor:"switches"`
	Rules         []RuleInfo    `json:"rules" cbor:"rules"`
}

// Snapshot copies the current state.
func (p *Platform) Snapshot() Snapshot {
	drivers := p.Drivers()
	infos := make([]DriverInfo, 0, len(drivers))
	for _, d := range drivers {
		cfg := d.Config()
		info := DriverInfo{
			Name:            d.Name(),
			Number:          d.Number(),
			State:           d.State().String(),
			PulseMs:         cfg.PulseMs,
			AllowEnable:     cfg.AllowEnable,
			TimeLastChanged: d.TimeLastChanged(),
			TimeWhenDone:    d.TimeWhenDone(),
		}
		if cfg.HasHoldPattern() {
			info.HoldPattern = fmt.Sprintf("%d-%d", cfg.PWMOnMs, cfg.PWMOffMs)
		}
		infos = append(infos, info)
	}
	return Snapshot{
		Taken:         p.now(),
		Connected:     p.ctrl.Connected(),
		Ticks:         p.ticks,
		Uptime:        p.elapsed,
		GarbageFrames: p.tracker.GarbageFrames(),
		DeferredRules: len(p.deferred),
		Drivers:       infos,
		Switches:      p.tracker.Snapshot(),
		Rules:         p.rules.Rules(),
	}
}
