// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport owns the byte link to the pinball controller.
//
// A Transport holds at most one Link at a time. It never reconnects in the background:
// a Write on a disconnected transport dials once and then writes, and every other
// operation degrades to a no-op while no link is open.
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/solenoid/pkg/logger"
)

var (
	// ErrNotConnected is returned when no link is open and dialing failed.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrNoDevice is returned by a Dialer that found no matching hardware.
	ErrNoDevice = errors.New("transport: no matching device")
	// ErrConnectionClosed is returned by a Link whose peer went away.
	ErrConnectionClosed = errors.New("transport: connection closed")
)

// Link is one open connection.
type Link interface {
	Write(p []byte) (int, error)
	// Poll returns whatever bytes arrived since the last call without blocking.
	Poll() ([]byte, error)
	Close() error
}

// Dialer opens links. info is a human-readable description of what was opened.
type Dialer interface {
	Dial() (link Link, info string, err error)
}

// Transport is the single-owner connection used by the platform. It is not safe for
// concurrent use.
type Transport struct {
	dialer   Dialer
	log      logger.Logger
	link     Link
	info     string
	pending  []byte
	failures int

	// PollInterval is how long Read sleeps between polls while waiting for bytes.
	PollInterval time.Duration
}

// New creates a disconnected transport.
func New(dialer Dialer, log logger.Logger) *Transport {
	if log == nil {
		log = logger.Discard
	}
	return &Transport{
		dialer:       dialer,
		log:          log,
		PollInterval: time.Millisecond,
	}
}

// Connect dials if no link is open. It reports whether a link is open afterwards.
func (t *Transport) Connect() bool {
	if t.link != nil {
		return true
	}
	link, info, err := t.dialer.Dial()
	if err != nil {
		t.failures++
		if t.failures == 1 {
			t.log.Warnf("controller not connected: %v", err)
		} else {
			t.log.Debugf("connect attempt %d failed: %v", t.failures, err)
		}
		return false
	}
	t.link = link
	t.info = info
	t.failures = 0
	t.log.Infof("connected: %s", info)
	return true
}

// Connected reports whether a link is open.
func (t *Transport) Connected() bool {
	return t.link != nil
}

// Info describes the open link, or returns "" when disconnected.
func (t *Transport) Info() string {
	if t.link == nil {
		return ""
	}
	return t.info
}

// Write sends p. A disconnected transport dials once first.
func (t *Transport) Write(p []byte) error {
	if t.link == nil && !t.Connect() {
		return ErrNotConnected
	}
	if _, err := t.link.Write(p); err != nil {
		t.drop(err)
		return fmt.Errorf("transport write: %w", err)
	}
	return nil
}

// BytesAvailable returns how many received bytes are waiting to be read. It never
// blocks and returns 0 while disconnected.
func (t *Transport) BytesAvailable() int {
	if t.link == nil {
		return 0
	}
	t.fill()
	if t.link == nil {
		return 0
	}
	return len(t.pending)
}

// Read returns exactly n bytes. Callers are expected to check BytesAvailable first;
// otherwise Read waits for the missing bytes.
func (t *Transport) Read(n int) ([]byte, error) {
	for len(t.pending) < n {
		if t.link == nil {
			return nil, ErrNotConnected
		}
		t.fill()
		if len(t.pending) < n {
			time.Sleep(t.PollInterval)
		}
	}
	out := make([]byte, n)
	copy(out, t.pending)
	t.pending = t.pending[n:]
	return out, nil
}

// Close closes the open link, if any.
func (t *Transport) Close() error {
	if t.link == nil {
		return nil
	}
	err := t.link.Close()
	t.link = nil
	t.info = ""
	t.pending = nil
	return err
}

func (t *Transport) fill() {
	data, err := t.link.Poll()
	if err != nil {
		t.drop(err)
		return
	}
	t.pending = append(t.pending, data...)
}

// drop forgets a failed link. Partially received frames are discarded with it.
func (t *Transport) drop(cause error) {
	t.log.Warnf("connection lost (%s): %v", t.info, cause)
	if err := t.link.Close(); err != nil {
		t.log.Debugf("close failed link: %v", err)
	}
	t.link = nil
	t.info = ""
	t.pending = nil
}
