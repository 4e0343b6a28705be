// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package platform

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/solenoid/pkg/config"
	"github.com/Thermoquad/solenoid/pkg/jrproto"
	"github.com/Thermoquad/solenoid/pkg/logger"
	"github.com/Thermoquad/solenoid/pkg/transport"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type report struct {
	Switch int
	State  bool
	Local  bool
}

type reportLog struct {
	reports []report
}

func (r *reportLog) Report(switchID int, state bool, isLocal bool) {
	r.reports = append(r.reports, report{switchID, state, isLocal})
}

type harness struct {
	p        *Platform
	link     *transport.FakeLink
	dialer   *transport.FakeDialer
	log      *logger.Recorder
	clock    *fakeClock
	reported *reportLog
}

// newHarness builds a connected platform over a FakeLink.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		link:     transport.NewFakeLink(),
		log:      logger.NewRecorder(),
		clock:    newFakeClock(),
		reported: &reportLog{},
	}
	h.dialer = transport.NewFakeDialer(h.link)
	tr := transport.New(h.dialer, logger.Discard)
	p, err := New(tr, JRFeatures(), Options{
		Logger:   h.log,
		Reporter: h.reported,
		Now:      h.clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h.p = p
	h.log.Reset()
	return h
}

func (h *harness) driver(t *testing.T, name string, cfg DriverConfig) *Driver {
	t.Helper()
	d, err := h.p.ConfigureDriver(name, cfg)
	if err != nil {
		t.Fatalf("ConfigureDriver(%s): %v", name, err)
	}
	return d
}

func (h *harness) written() []byte {
	return h.link.Written.Bytes()
}

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(nil, JRFeatures(), Options{})
	if !errors.Is(err, ErrHardwareDependencyMissing) {
		t.Fatalf("expected ErrHardwareDependencyMissing, got %v", err)
	}
}

func TestInitializeWithoutHardware(t *testing.T) {
	rec := logger.NewRecorder()
	tr := transport.New(transport.NewFakeDialer(), logger.Discard)
	p, err := New(tr, JRFeatures(), Options{Logger: rec})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize should tolerate a missing controller, got %v", err)
	}
	if rec.Count(logger.WarnLevel) != 1 {
		t.Errorf("expected one warning, got %d", rec.Count(logger.WarnLevel))
	}

	// Ticking while disconnected is harmless.
	p.Tick(10 * time.Millisecond)
	if len(p.Switches().Snapshot()) != 0 {
		t.Error("no switches should appear while disconnected")
	}
}

func TestConfigureDriverValidation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		cfg  DriverConfig
	}{
		{"negative channel", DriverConfig{Number: -1}},
		{"channel too high", DriverConfig{Number: 32}},
		{"pulse above max", DriverConfig{Number: 1, PulseMs: 256}},
		{"negative pulse", DriverConfig{Number: 1, PulseMs: -5}},
		{"negative pattern", DriverConfig{Number: 1, PWMOnMs: -1, PWMOffMs: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.p.ConfigureDriver(tt.name, tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	h.driver(t, "sling", DriverConfig{Number: 3})
	if _, err := h.p.ConfigureDriver("sling", DriverConfig{Number: 4}); err == nil {
		t.Error("duplicate name should fail")
	}
	if _, err := h.p.ConfigureDriver("other", DriverConfig{Number: 3}); err == nil {
		t.Error("duplicate channel should fail")
	}
	if _, err := h.p.Driver("missing"); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestTickNoBytes(t *testing.T) {
	h := newHarness(t)
	if err := h.p.ConfigureSwitch("s_start", 5); err != nil {
		t.Fatal(err)
	}
	before := h.p.Switches().Snapshot()

	h.p.Tick(10 * time.Millisecond)

	if len(h.reported.reports) != 0 {
		t.Errorf("expected no reports, got %v", h.reported.reports)
	}
	after := h.p.Switches().Snapshot()
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("switch state changed: %+v -> %+v", before, after)
	}
}

func TestTickPressedEvent(t *testing.T) {
	h := newHarness(t)
	if err := h.p.ConfigureSwitch("s_start", 5); err != nil {
		t.Fatal(err)
	}
	h.link.Feed('P', 5)

	h.p.Tick(10 * time.Millisecond)

	if !h.p.Switches().State(5) {
		t.Error("switch 5 should be active")
	}
	if len(h.reported.reports) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(h.reported.reports))
	}
	if got := h.reported.reports[0]; got != (report{5, true, false}) {
		t.Errorf("report = %+v", got)
	}
	st, _ := h.p.Switches().ByName("s_start")
	if !st.LastChanged.Equal(h.clock.Now()) {
		t.Errorf("LastChanged = %v", st.LastChanged)
	}
}

func TestTickOrderingAndGarbage(t *testing.T) {
	h := newHarness(t)
	h.link.Feed('P', 7, 'X', 1, 'R', 7, 'P', 9)
	// A half frame stays buffered until the rest arrives.
	h.link.Feed('P')

	h.p.Tick(10 * time.Millisecond)

	want := []report{{7, true, false}, {7, false, false}, {9, true, false}}
	if len(h.reported.reports) != len(want) {
		t.Fatalf("reports = %v, want %v", h.reported.reports, want)
	}
	for i := range want {
		if h.reported.reports[i] != want[i] {
			t.Errorf("report %d = %+v, want %+v", i, h.reported.reports[i], want[i])
		}
	}
	if h.p.Switches().State(7) {
		t.Error("last event for switch 7 was a release")
	}
	if h.p.Switches().GarbageFrames() != 1 {
		t.Errorf("GarbageFrames = %d, want 1", h.p.Switches().GarbageFrames())
	}

	h.link.Feed(11)
	h.p.Tick(10 * time.Millisecond)
	if !h.p.Switches().State(11) {
		t.Error("split frame should complete on the next tick")
	}
}

type fakeInputs struct {
	values []bool
	err    error
}

func (f *fakeInputs) Read() ([]bool, error) { return f.values, f.err }

func TestLocalSwitches(t *testing.T) {
	h := newHarness(t)
	in := &fakeInputs{values: []bool{false, true}}
	h.p.ConfigureLocalSwitches(in, []LocalSwitch{{"coin_door", 0}, {"tilt", 1}})

	h.p.Tick(0)
	if len(h.reported.reports) != 0 {
		t.Fatalf("first read seeds state without reporting, got %v", h.reported.reports)
	}

	in.values = []bool{true, true}
	h.p.Tick(0)
	if len(h.reported.reports) != 1 || h.reported.reports[0] != (report{0, true, true}) {
		t.Fatalf("reports = %v", h.reported.reports)
	}

	in.err = errors.New("gpio gone")
	h.p.Tick(0)
	if len(h.reported.reports) != 1 {
		t.Error("a failed read must not report")
	}

	snap := h.p.Switches().Snapshot()
	if len(snap) != 2 || !snap[0].Local || !snap[0].State {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestTimedHoldEndsOnTick(t *testing.T) {
	h := newHarness(t)
	d := h.driver(t, "magnet", DriverConfig{Number: 6})

	if err := d.TimedPWM(2, 8, 50); err != nil {
		t.Fatal(err)
	}
	h.link.Written.Reset()

	h.clock.Advance(40 * time.Millisecond)
	h.p.Tick(40 * time.Millisecond)
	if h.link.Written.Len() != 0 {
		t.Fatal("hold should still be running")
	}

	h.clock.Advance(10 * time.Millisecond)
	h.p.Tick(10 * time.Millisecond)
	want := jrproto.MustEncode(jrproto.EncodeDisable(6))
	if !bytes.Equal(h.written(), want) {
		t.Errorf("written = % X, want % X", h.written(), want)
	}
	if d.State() != StateIdle {
		t.Errorf("state = %s", d.State())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	var seen int
	go func() {
		done <- h.p.Run(ctx, tick, func(time.Time) { seen++ })
	}()

	start := time.Now()
	tick <- start
	tick <- start.Add(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if seen != 2 {
		t.Errorf("afterTick ran %d times, want 2", seen)
	}
	snap := h.p.Snapshot()
	if snap.Ticks != 2 || snap.Uptime != 10*time.Millisecond {
		t.Errorf("ticks=%d uptime=%v", snap.Ticks, snap.Uptime)
	}
}

func TestTickInterval(t *testing.T) {
	d, err := TickInterval(100)
	if err != nil || d != 10*time.Millisecond {
		t.Errorf("TickInterval(100) = %v, %v", d, err)
	}
	if _, err := TickInterval(0); err == nil {
		t.Error("0Hz should fail")
	}
}

func TestStopDisablesEveryDriver(t *testing.T) {
	h := newHarness(t)
	h.driver(t, "b", DriverConfig{Number: 4})
	h.driver(t, "a", DriverConfig{Number: 1})

	if err := h.p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	want := append(jrproto.MustEncode(jrproto.EncodeDisable(1)), jrproto.MustEncode(jrproto.EncodeDisable(4))...)
	if !bytes.Equal(h.written(), want) {
		t.Errorf("written = % X, want % X", h.written(), want)
	}
	if !h.link.Closed {
		t.Error("link should be closed")
	}
}

func TestApplyMachineConfig(t *testing.T) {
	m, err := config.Parse([]byte(`
coils:
  left_flipper:
    number: 0
    pulse_ms: 30
    hold_pattern: "2-8"
  sling:
    number: 3
switches:
  s_left_flipper:
    number: 1
  s_sling:
    number: 12
hw_rules:
  - switch: s_left_flipper
    driver: left_flipper
    action: hold
  - switch: s_sling
    driver: sling
`))
	if err != nil {
		t.Fatal(err)
	}

	h := newHarness(t)
	if err := h.p.ApplyMachineConfig(m); err != nil {
		t.Fatalf("ApplyMachineConfig: %v", err)
	}
	flipper, err := h.p.Driver("left_flipper")
	if err != nil {
		t.Fatal(err)
	}
	if cfg := flipper.Config(); cfg.PulseMs != 30 || !cfg.HasHoldPattern() {
		t.Errorf("left_flipper config = %+v", cfg)
	}
	sling, _ := h.p.Driver("sling")
	if sling.Config().PulseMs != DefaultPulseMs {
		t.Errorf("sling pulse = %d", sling.Config().PulseMs)
	}

	if err := h.p.InstallConfiguredRules(m); err != nil {
		t.Fatalf("InstallConfiguredRules: %v", err)
	}
	want := append(jrproto.MustEncode(jrproto.EncodeProgramRule(1, 0x01)), jrproto.MustEncode(jrproto.EncodeProgramRule(12, 0x08))...)
	if !bytes.Equal(h.written(), want) {
		t.Errorf("written = % X, want % X", h.written(), want)
	}

	snap := h.p.Snapshot()
	if len(snap.Drivers) != 2 || snap.Drivers[0].HoldPattern != "2-8" {
		t.Errorf("drivers = %+v", snap.Drivers)
	}
	if len(snap.Rules) != 2 || snap.Rules[0].Action != "hold" {
		t.Errorf("rules = %+v", snap.Rules)
	}
	if !snap.Connected {
		t.Error("snapshot should report connected")
	}
}

const deferredMachine = `
coils:
  left_flipper:
    number: 0
    hold_pattern: "2-8"
  sling:
    number: 3
switches:
  s_left_flipper:
    number: 1
  s_sling:
    number: 12
hw_rules:
  - switch: s_left_flipper
    driver: left_flipper
    action: hold
  - switch: s_sling
    driver: sling
`

func TestConfiguredRulesWaitForController(t *testing.T) {
	m, err := config.Parse([]byte(deferredMachine))
	if err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock()
	rec := logger.NewRecorder()
	dialer := transport.NewFakeDialer()
	p, err := New(transport.New(dialer, logger.Discard), JRFeatures(), Options{Logger: rec, Now: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.ApplyMachineConfig(m); err != nil {
		t.Fatal(err)
	}
	p.Initialize()

	if err := p.InstallConfiguredRules(m); err != nil {
		t.Fatalf("a missing controller should defer rules, got %v", err)
	}
	if p.DeferredRules() != 2 || p.Rules().Len() != 0 {
		t.Fatalf("deferred = %d, installed = %d", p.DeferredRules(), p.Rules().Len())
	}
	dials := dialer.Dials

	// The controller shows up; ticks inside the reconnect interval do not dial.
	link := transport.NewFakeLink()
	dialer.Links = append(dialer.Links, link)
	for i := 0; i < 100; i++ {
		p.Tick(time.Millisecond)
	}
	if dialer.Dials != dials {
		t.Fatalf("dialed %d times inside the reconnect interval", dialer.Dials-dials)
	}

	clock.Advance(DefaultReconnectInterval)
	p.Tick(10 * time.Millisecond)

	want := append(jrproto.MustEncode(jrproto.EncodeProgramRule(1, 0x01)), jrproto.MustEncode(jrproto.EncodeProgramRule(12, 0x08))...)
	if !bytes.Equal(link.Written.Bytes(), want) {
		t.Errorf("written = % X, want % X", link.Written.Bytes(), want)
	}
	if p.DeferredRules() != 0 || p.Rules().Len() != 2 {
		t.Errorf("deferred = %d, installed = %d", p.DeferredRules(), p.Rules().Len())
	}

	// Nothing left to do: further ticks write nothing.
	link.Written.Reset()
	clock.Advance(DefaultReconnectInterval)
	p.Tick(10 * time.Millisecond)
	if link.Written.Len() != 0 {
		t.Errorf("unexpected write % X", link.Written.Bytes())
	}
}

func TestConfiguredRulesContinuePastErrors(t *testing.T) {
	h := newHarness(t)
	h.driver(t, "sling", DriverConfig{Number: 3})
	h.p.ConfigureSwitch("s_sling", 12)

	m := &config.Machine{HWRules: []config.RuleConfig{
		{Switch: "s_missing", Driver: "sling"},
		{Switch: "s_sling", Driver: "missing"},
		{Switch: "s_sling", Driver: "sling"},
	}}
	err := h.p.InstallConfiguredRules(m)
	if !errors.Is(err, ErrUnknownSwitch) || !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected both lookup errors, got %v", err)
	}
	want := jrproto.MustEncode(jrproto.EncodeProgramRule(12, 0x08))
	if !bytes.Equal(h.written(), want) {
		t.Errorf("written = % X, want % X", h.written(), want)
	}
	if h.p.DeferredRules() != 0 {
		t.Errorf("lookup errors must not be deferred")
	}
}

func TestTimedHoldExpiryOnDroppedLink(t *testing.T) {
	h := newHarness(t)
	d := h.driver(t, "magnet", DriverConfig{Number: 6})
	if err := d.TimedPWM(2, 8, 50); err != nil {
		t.Fatal(err)
	}
	h.link.WriteError = errors.New("cable pulled")

	h.clock.Advance(time.Second)
	for i := 0; i < 100; i++ {
		h.p.Tick(10 * time.Millisecond)
	}

	if n := h.log.Count(logger.WarnLevel) + h.log.Count(logger.ErrorLevel); n != 1 {
		t.Errorf("%d failures logged above debug, want 1", n)
	}
	if d.State() != StateHeldPWM {
		t.Errorf("state = %s; the coil was never turned off", d.State())
	}

	// A new link is dialed after the reconnect interval and the hold is ended.
	link := transport.NewFakeLink()
	h.dialer.Links = append(h.dialer.Links, link)
	h.clock.Advance(DefaultReconnectInterval)
	h.p.Tick(10 * time.Millisecond)
	if !bytes.Equal(link.Written.Bytes(), jrproto.MustEncode(jrproto.EncodeDisable(6))) {
		t.Errorf("written = % X", link.Written.Bytes())
	}
	if d.State() != StateIdle {
		t.Errorf("state = %s, want idle", d.State())
	}
}
