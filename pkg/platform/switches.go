// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package platform

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Thermoquad/solenoid/pkg/jrproto"
	"github.com/Thermoquad/solenoid/pkg/logger"
)

// SwitchReporter receives every observed switch transition.
type SwitchReporter interface {
	Report(switchID int, state bool, isLocal bool)
}

// LocalInputs reads switches wired to the host rather than the controller. Values are
// returned in the order the switches were configured.
type LocalInputs interface {
	Read() ([]bool, error)
}

// SwitchState is the last known state of one switch.
type SwitchState struct {
	Name        string    `json:"name" cbor:"name"`
	Number      int       `json:"number" cbor:"number"`
	State       bool      `json:"state" cbor:"state"`
	Local       bool      `json:"local" cbor:"local"`
	LastChanged time.Time `json:"last_changed" cbor:"last_changed"`
}

// SwitchTracker keeps switch state from controller frames and local inputs.
type SwitchTracker struct {
	query    SwitchQuery
	reporter SwitchReporter
	log      logger.Logger
	now      func() time.Time

	states map[int]*SwitchState

	localIn     LocalInputs
	local       []*SwitchState
	localSeeded bool

	garbage uint64
}

func newSwitchTracker(query SwitchQuery, reporter SwitchReporter, log logger.Logger, now func() time.Time) *SwitchTracker {
	return &SwitchTracker{
		query:    query,
		reporter: reporter,
		log:      log,
		now:      now,
		states:   make(map[int]*SwitchState),
	}
}

func (t *SwitchTracker) add(name string, number int) error {
	if st, ok := t.states[number]; ok {
		if st.Name != "" {
			return fmt.Errorf("switch %s: number %d already configured as %s", name, number, st.Name)
		}
		// Seen on the wire before it was configured.
		st.Name = name
		return nil
	}
	if number < 0 || number > jrproto.MaxEventSwitch {
		return fmt.Errorf("switch %s: number %d out of range", name, number)
	}
	t.states[number] = &SwitchState{Name: name, Number: number}
	return nil
}

func (t *SwitchTracker) setLocal(in LocalInputs, names []string, numbers []int) {
	t.localIn = in
	t.local = make([]*SwitchState, len(names))
	for i := range names {
		t.local[i] = &SwitchState{Name: names[i], Number: numbers[i], Local: true}
	}
	t.localSeeded = false
}

// Tick applies every waiting controller frame in arrival order and polls local
// inputs. Unrecognised frames are counted and dropped.
func (t *SwitchTracker) Tick() {
	frames, err := t.query.ReadEvents()
	if err != nil {
		t.log.Debugf("switch read: %v", err)
	}
	for _, f := range frames {
		if !f.Valid {
			t.garbage++
			t.log.Debugf("discarding unrecognised frame % X", f.Raw)
			continue
		}
		t.apply(f.Switch, f.Active)
	}
	t.pollLocal()
}

func (t *SwitchTracker) apply(number int, active bool) {
	st, ok := t.states[number]
	if !ok {
		t.log.Debugf("event for unconfigured switch %d", number)
		st = &SwitchState{Number: number}
		t.states[number] = st
	}
	if st.State != active {
		st.LastChanged = t.now()
	}
	st.State = active
	if t.reporter != nil {
		t.reporter.Report(number, active, false)
	}
}

func (t *SwitchTracker) pollLocal() {
	if t.localIn == nil {
		return
	}
	values, err := t.localIn.Read()
	if err != nil {
		t.log.Debugf("local switch read: %v", err)
		return
	}
	if len(values) != len(t.local) {
		t.log.Warnf("local switch read returned %d values for %d switches", len(values), len(t.local))
		return
	}
	now := t.now()
	for i, v := range values {
		st := t.local[i]
		if t.localSeeded && st.State == v {
			continue
		}
		st.State = v
		st.LastChanged = now
		if t.localSeeded && t.reporter != nil {
			t.reporter.Report(st.Number, v, true)
		}
	}
	t.localSeeded = true
}

// BulkQuery seeds controller switch states in one call, where the controller
// supports it. Seeded states are not reported.
func (t *SwitchTracker) BulkQuery() error {
	states, err := t.query.BulkQuery()
	if errors.Is(err, ErrBulkQueryUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bulk switch query: %w", err)
	}
	now := t.now()
	for number, active := range states {
		st, ok := t.states[number]
		if !ok {
			st = &SwitchState{Number: number}
			t.states[number] = st
		}
		st.State = active
		st.LastChanged = now
	}
	return nil
}

// State returns the last known state of controller switch number.
func (t *SwitchTracker) State(number int) bool {
	st, ok := t.states[number]
	return ok && st.State
}

// Lookup returns the controller switch with the given number.
func (t *SwitchTracker) Lookup(number int) (SwitchState, bool) {
	st, ok := t.states[number]
	if !ok {
		return SwitchState{}, false
	}
	return *st, true
}

// ByName finds a configured controller switch.
func (t *SwitchTracker) ByName(name string) (SwitchState, bool) {
	for _, st := range t.states {
		if st.Name == name && name != "" {
			return *st, true
		}
	}
	return SwitchState{}, false
}

// GarbageFrames is the number of unrecognised frames dropped so far.
func (t *SwitchTracker) GarbageFrames() uint64 {
	return t.garbage
}

// Snapshot returns a copy of every switch, controller switches first, by number.
func (t *SwitchTracker) Snapshot() []SwitchState {
	out := make([]SwitchState, 0, len(t.states)+len(t.local))
	for _, st := range t.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	for _, st := range t.local {
		out = append(out, *st)
	}
	return out
}
