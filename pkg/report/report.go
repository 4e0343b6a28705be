// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package report forwards switch transitions observed by the platform to logs and
// to MQTT.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Thermoquad/solenoid/pkg/logger"
)

// Reporter receives switch transitions. It matches platform.SwitchReporter.
type Reporter interface {
	Report(switchID int, state bool, isLocal bool)
}

// Event is one switch transition.
type Event struct {
	Switch    int       `json:"switch"`
	State     string    `json:"state"`
	Local     bool      `json:"local"`
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session,omitempty"`
}

// StateName maps a switch state to the string used in logs and payloads.
func StateName(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

// FormatEvent creates the JSON payload for a switch event.
func FormatEvent(ev Event) ([]byte, error) {
	ev.Timestamp = ev.Timestamp.UTC()
	return json.Marshal(ev)
}

// SystemEvent is a lifecycle message (STARTUP, SHUTDOWN, OFFLINE).
type SystemEvent struct {
	Event     string    `json:"event"`
	Session   string    `json:"session"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// FormatSystemEvent creates the JSON payload for a lifecycle message.
func FormatSystemEvent(ev SystemEvent) ([]byte, error) {
	ev.Timestamp = ev.Timestamp.UTC()
	return json.Marshal(ev)
}

// LogReporter writes every transition to a logger.
type LogReporter struct {
	log   logger.Logger
	names map[int]string
}

// NewLogReporter creates a LogReporter. names maps controller switch numbers to
// configured names and may be nil.
func NewLogReporter(log logger.Logger, names map[int]string) *LogReporter {
	return &LogReporter{log: log, names: names}
}

func (r *LogReporter) Report(switchID int, state bool, isLocal bool) {
	where := "controller"
	if isLocal {
		where = "local"
	}
	label := fmt.Sprintf("%d", switchID)
	if name, ok := r.names[switchID]; ok && !isLocal {
		label = fmt.Sprintf("%s (%d)", name, switchID)
	}
	r.log.Infof("switch %s %s [%s]", label, StateName(state), where)
}

// Multi fans a transition out to several reporters, in order.
type Multi []Reporter

func (m Multi) Report(switchID int, state bool, isLocal bool) {
	for _, r := range m {
		r.Report(switchID, state, isLocal)
	}
}
