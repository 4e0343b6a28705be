// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package status shares platform state with HTTP handlers. The control goroutine
// publishes snapshots; handlers only ever read copies.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/solenoid/pkg/platform"
)

// View is what the API serves.
type View struct {
	Session       string            `json:"session" cbor:"session"`
	StartTime     time.Time         `json:"start_time" cbor:"start_time"`
	Transport     string            `json:"transport" cbor:"transport"`
	MQTTConnected bool              `json:"mqtt_connected" cbor:"mqtt_connected"`
	Platform      platform.Snapshot `json:"platform" cbor:"platform"`
}

// Tracker holds the latest View behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	view View
}

// NewTracker creates a Tracker for one run. An empty session gets a fresh id.
func NewTracker(session string, startTime time.Time, transport string) *Tracker {
	if session == "" {
		session = uuid.NewString()
	}
	return &Tracker{
		view: View{
			Session:   session,
			StartTime: startTime,
			Transport: transport,
		},
	}
}

// Update stores a platform snapshot. Called from the control goroutine after each tick.
func (t *Tracker) Update(snap platform.Snapshot) {
	t.mu.Lock()
	t.view.Platform = snap
	t.mu.Unlock()
}

// SetMQTTConnected records the broker connection state.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.view.MQTTConnected = connected
	t.mu.Unlock()
}

// View returns a copy of the current view.
func (t *Tracker) View() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}
