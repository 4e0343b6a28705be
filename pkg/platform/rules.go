// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package platform

import (
	"fmt"
	"sort"

	"github.com/Thermoquad/solenoid/pkg/jrproto"
	"github.com/Thermoquad/solenoid/pkg/logger"
)

// Activity selects which switch transition fires a rule.
type Activity int

const (
	ActivityActive Activity = iota
	ActivityInactive
)

func (a Activity) String() string {
	if a == ActivityInactive {
		return "inactive"
	}
	return "active"
}

// Action is what a rule does to its driver.
type Action int

const (
	ActionPulse Action = iota
	ActionHold
)

func (a Action) String() string {
	if a == ActionHold {
		return "hold"
	}
	return "pulse"
}

// HardwareRule links a switch to a driver the controller fires by itself. The
// program frame carries only the switch and the driver mask, so the controller
// applies its own per-channel behaviour. Activity, Action and DisableOnRelease are
// kept on the host for listings and to choose what DriveNow does.
type HardwareRule struct {
	Switch           int
	Driver           *Driver
	Activity         Activity
	Action           Action
	DisableOnRelease bool
	// DriveNow applies the action at install time when the switch is already in the
	// triggering state.
	DriveNow bool
}

// RuleInfo is the printable form of a HardwareRule.
type RuleInfo struct {
	Switch           int    `json:"switch" cbor:"switch"`
	Driver           string `json:"driver" cbor:"driver"`
	DriverNumber     int    `json:"driver_number" cbor:"driver_number"`
	Activity         string `json:"activity" cbor:"activity"`
	Action           string `json:"action" cbor:"action"`
	DisableOnRelease bool   `json:"disable_on_release" cbor:"disable_on_release"`
}

type ruleKey struct {
	sw     int
	driver int
}

// RuleTable is the host copy of the rules programmed into the controller. An entry
// is only recorded after the controller accepted it.
type RuleTable struct {
	ctrl     DriverControl
	switches *SwitchTracker
	log      logger.Logger
	entries  map[ruleKey]HardwareRule
}

func newRuleTable(ctrl DriverControl, switches *SwitchTracker, log logger.Logger) *RuleTable {
	return &RuleTable{
		ctrl:     ctrl,
		switches: switches,
		log:      log,
		entries:  make(map[ruleKey]HardwareRule),
	}
}

// Install programs rule, replacing any rule for the same switch and driver. The
// controller keys rules by switch, so the frame carries every driver bound to it.
func (r *RuleTable) Install(rule HardwareRule) error {
	if rule.Driver == nil {
		return fmt.Errorf("install rule on switch %d: %w", rule.Switch, ErrUnknownDriver)
	}
	mask := r.maskFor(rule.Switch) | 1<<uint(rule.Driver.Number())
	if err := r.ctrl.ProgramRule(rule.Switch, mask); err != nil {
		return fmt.Errorf("program rule switch %d -> %s: %w", rule.Switch, rule.Driver.Name(), err)
	}
	r.entries[ruleKey{rule.Switch, rule.Driver.Number()}] = rule
	r.log.Debugf("rule installed: switch %d %s -> %s %s (drivers %s)",
		rule.Switch, rule.Activity, rule.Action, rule.Driver.Name(), jrproto.FormatMask(mask))

	if rule.DriveNow {
		return r.driveNow(rule)
	}
	return nil
}

func (r *RuleTable) driveNow(rule HardwareRule) error {
	active := r.switches.State(rule.Switch)
	if active != (rule.Activity == ActivityActive) {
		return nil
	}
	switch rule.Action {
	case ActionHold:
		return rule.Driver.Enable()
	default:
		return rule.Driver.Pulse()
	}
}

// Clear removes every rule on a switch. Clearing a switch without rules sends nothing.
func (r *RuleTable) Clear(switchID int) error {
	var keys []ruleKey
	for k := range r.entries {
		if k.sw == switchID {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.ctrl.ProgramRule(switchID, 0); err != nil {
		return fmt.Errorf("clear rules on switch %d: %w", switchID, err)
	}
	for _, k := range keys {
		delete(r.entries, k)
	}
	r.log.Debugf("rules cleared on switch %d", switchID)
	return nil
}

// Lookup returns the rule for a switch and driver number.
func (r *RuleTable) Lookup(switchID, driver int) (HardwareRule, bool) {
	rule, ok := r.entries[ruleKey{switchID, driver}]
	return rule, ok
}

// Len returns the number of installed rules.
func (r *RuleTable) Len() int {
	return len(r.entries)
}

// Rules lists installed rules ordered by switch then driver.
func (r *RuleTable) Rules() []RuleInfo {
	out := make([]RuleInfo, 0, len(r.entries))
	for _, rule := range r.entries {
		out = append(out, RuleInfo{
			Switch:           rule.Switch,
			Driver:           rule.Driver.Name(),
			DriverNumber:     rule.Driver.Number(),
			Activity:         rule.Activity.String(),
			Action:           rule.Action.String(),
			DisableOnRelease: rule.DisableOnRelease,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Switch != out[j].Switch {
			return out[i].Switch < out[j].Switch
		}
		return out[i].DriverNumber < out[j].DriverNumber
	})
	return out
}

func (r *RuleTable) maskFor(switchID int) uint32 {
	var mask uint32
	for k := range r.entries {
		if k.sw == switchID {
			mask |= 1 << uint(k.driver)
		}
	}
	return mask
}
