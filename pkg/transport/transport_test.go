// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Thermoquad/solenoid/pkg/logger"
)

func TestTransportNotConnectedDegrades(t *testing.T) {
	d := NewFakeDialer()
	tr := New(d, nil)

	if tr.Connected() {
		t.Fatal("new transport should not be connected")
	}
	if n := tr.BytesAvailable(); n != 0 {
		t.Errorf("BytesAvailable() = %d, want 0", n)
	}
	if d.Dials != 0 {
		t.Errorf("BytesAvailable dialed %d times, want 0", d.Dials)
	}
	if _, err := tr.Read(2); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Read error = %v, want ErrNotConnected", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close on disconnected transport: %v", err)
	}
}

func TestTransportWriteReconnectsOnce(t *testing.T) {
	link := NewFakeLink()
	d := &FakeDialer{}
	tr := New(d, nil)

	if err := tr.Write([]byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Write error = %v, want ErrNotConnected", err)
	}
	if d.Dials != 1 {
		t.Fatalf("Dials = %d, want 1", d.Dials)
	}

	d.Links = []*FakeLink{link}
	if err := tr.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Write after device appeared: %v", err)
	}
	if d.Dials != 2 {
		t.Errorf("Dials = %d, want 2", d.Dials)
	}
	if !bytes.Equal(link.Written.Bytes(), []byte{1, 2, 3}) {
		t.Errorf("written = % X", link.Written.Bytes())
	}

	// Connected: no further dials
	if err := tr.Write([]byte{4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if d.Dials != 2 {
		t.Errorf("Dials = %d after connected write, want 2", d.Dials)
	}
}

func TestTransportWriteFailureDropsLink(t *testing.T) {
	link := NewFakeLink()
	link.WriteError = errors.New("unplugged")
	rec := logger.NewRecorder()
	tr := New(NewFakeDialer(link), rec)

	if !tr.Connect() {
		t.Fatal("Connect failed")
	}
	if err := tr.Write([]byte{1}); err == nil {
		t.Fatal("expected write error")
	}
	if tr.Connected() {
		t.Error("transport still connected after write failure")
	}
	if !link.Closed {
		t.Error("failed link was not closed")
	}
	if rec.Count(logger.WarnLevel) == 0 {
		t.Error("connection loss was not logged")
	}
}

func TestTransportBytesAvailableAndRead(t *testing.T) {
	link := NewFakeLink()
	link.Feed('P', 5, 'R')
	tr := New(NewFakeDialer(link), nil)
	tr.Connect()

	if n := tr.BytesAvailable(); n != 3 {
		t.Fatalf("BytesAvailable() = %d, want 3", n)
	}
	got, err := tr.Read(2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte{'P', 5}) {
		t.Errorf("Read = % X", got)
	}
	if n := tr.BytesAvailable(); n != 1 {
		t.Errorf("BytesAvailable() = %d, want 1", n)
	}
}

func TestTransportReadWaitsForChunks(t *testing.T) {
	link := NewFakeLink()
	link.Chunk = 1
	link.Feed('P', 9)
	tr := New(NewFakeDialer(link), nil)
	tr.PollInterval = 0
	tr.Connect()

	got, err := tr.Read(2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte{'P', 9}) {
		t.Errorf("Read = % X", got)
	}
	if link.PollCalls < 2 {
		t.Errorf("PollCalls = %d, want at least 2", link.PollCalls)
	}
}

func TestTransportPollErrorDropsLink(t *testing.T) {
	link := NewFakeLink()
	link.PollError = ErrConnectionClosed
	tr := New(NewFakeDialer(link), nil)
	tr.Connect()

	if n := tr.BytesAvailable(); n != 0 {
		t.Errorf("BytesAvailable() = %d, want 0", n)
	}
	if tr.Connected() {
		t.Error("transport still connected after poll error")
	}
}

func TestTransportConnectLogsFirstFailureOnly(t *testing.T) {
	rec := logger.NewRecorder()
	tr := New(NewFakeDialer(), rec)

	tr.Connect()
	tr.Connect()
	tr.Connect()

	if got := rec.Count(logger.WarnLevel); got != 1 {
		t.Errorf("warnings = %d, want 1", got)
	}
	if got := rec.Count(logger.DebugLevel); got != 2 {
		t.Errorf("debug lines = %d, want 2", got)
	}
}

func TestTransportDropLogsCloseError(t *testing.T) {
	link := NewFakeLink()
	link.WriteError = errors.New("device unplugged")
	link.CloseError = errors.New("bad file descriptor")
	rec := logger.NewRecorder()
	tr := New(NewFakeDialer(link), rec)

	if err := tr.Write([]byte{1}); err == nil {
		t.Fatal("expected write error")
	}
	if !link.Closed || tr.Connected() {
		t.Fatal("failed link should be closed and forgotten")
	}
	found := false
	for _, e := range rec.Entries {
		if e.Level == logger.DebugLevel && strings.Contains(e.Message, "bad file descriptor") {
			found = true
		}
	}
	if !found {
		t.Errorf("close error not logged at debug: %+v", rec.Entries)
	}
}
