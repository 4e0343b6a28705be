// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"testing"

	"github.com/Thermoquad/solenoid/pkg/config"
	"github.com/Thermoquad/solenoid/pkg/platform"
	"github.com/Thermoquad/solenoid/pkg/transport"
)

func resetFlags(t *testing.T) {
	t.Helper()
	saved := struct {
		serials []string
		port    string
		baud    int
		url     string
		user    string
		hz      int
	}{serialNumbers, portName, baudRate, wsURL, wsUsername, tickHz}
	t.Cleanup(func() {
		serialNumbers, portName, baudRate = saved.serials, saved.port, saved.baud
		wsURL, wsUsername, tickHz = saved.url, saved.user, saved.hz
	})
	serialNumbers, portName, baudRate = nil, "", 0
	wsURL, wsUsername, tickHz = "", "", 0
}

func TestNewDialerUsesMachineFile(t *testing.T) {
	resetFlags(t)
	m, err := config.Parse([]byte("platform:\n  serial_numbers: [\"ABC\"]\n"))
	if err != nil {
		t.Fatal(err)
	}

	d, err := NewDialer(m)
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	sd, ok := d.(*transport.SerialDialer)
	if !ok {
		t.Fatalf("dialer = %T, want *transport.SerialDialer", d)
	}
	if len(sd.Serials) != 1 || sd.Serials[0] != "ABC" || sd.Baud != config.DefaultBaudRate {
		t.Errorf("dialer = %+v", sd)
	}
}

func TestNewDialerFlagsOverride(t *testing.T) {
	resetFlags(t)
	m, _ := config.Parse([]byte("platform:\n  serial_numbers: [\"ABC\"]\n"))
	serialNumbers = []string{"XYZ"}
	portName = "/dev/ttyACM1"
	baudRate = 9600

	d, err := NewDialer(m)
	if err != nil {
		t.Fatal(err)
	}
	sd := d.(*transport.SerialDialer)
	if sd.Serials[0] != "XYZ" || sd.Port != "/dev/ttyACM1" || sd.Baud != 9600 {
		t.Errorf("dialer = %+v", sd)
	}

	wsURL = "ws://bridge.local/ws"
	d, err = NewDialer(m)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*transport.WebSocketDialer); !ok {
		t.Errorf("dialer = %T, want *transport.WebSocketDialer", d)
	}
}

func TestNewDialerNeedsSomething(t *testing.T) {
	resetFlags(t)
	m, _ := config.Parse(nil)
	if _, err := NewDialer(m); err == nil {
		t.Error("expected an error without any connection settings")
	}
}

func TestTickRate(t *testing.T) {
	resetFlags(t)
	m, _ := config.Parse(nil)
	if got := tickRate(m); got != config.DefaultTickHz {
		t.Errorf("tickRate = %d, want %d", got, config.DefaultTickHz)
	}
	tickHz = 50
	if got := tickRate(m); got != 50 {
		t.Errorf("tickRate = %d, want 50", got)
	}
}

func TestSwitchNumber(t *testing.T) {
	m, _ := config.Parse([]byte("switches:\n  s_sling:\n    number: 12\n"))

	if n, err := switchNumber(m, "s_sling"); err != nil || n != 12 {
		t.Errorf("switchNumber(s_sling) = %d, %v", n, err)
	}
	if n, err := switchNumber(m, "40"); err != nil || n != 40 {
		t.Errorf("switchNumber(40) = %d, %v", n, err)
	}
	if _, err := switchNumber(m, "nope"); !errors.Is(err, platform.ErrUnknownSwitch) {
		t.Errorf("expected ErrUnknownSwitch, got %v", err)
	}

	if names := switchNames(m); names[12] != "s_sling" {
		t.Errorf("switchNames = %v", names)
	}
}
