// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// fakePort implements the parts of serial.Port the dialer and link use.
type fakePort struct {
	serial.Port
	name        string
	readTimeout time.Duration
	inbound     []byte
	written     bytes.Buffer
	closed      bool
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.readTimeout = t
	return nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	n := copy(b, p.inbound)
	p.inbound = p.inbound[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func testPorts() []*enumerator.PortDetails {
	return []*enumerator.PortDetails{
		{Name: "/dev/ttyS0", IsUSB: false, SerialNumber: "853323130363516072E1"},
		{Name: "/dev/ttyACM0", IsUSB: true, SerialNumber: "0000"},
		{Name: "/dev/ttyACM1", IsUSB: true, SerialNumber: "854383638383517120C1"},
	}
}

func TestMatchPort(t *testing.T) {
	tests := []struct {
		name     string
		serials  []string
		wantName string
		wantOK   bool
	}{
		{"usb match", []string{"854383638383517120C1"}, "/dev/ttyACM1", true},
		{"case insensitive", []string{"854383638383517120c1"}, "/dev/ttyACM1", true},
		{"non-usb ignored", []string{"853323130363516072E1"}, "", false},
		{"empty allow-list", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchPort(testPorts(), tt.serials)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Name != tt.wantName {
				t.Errorf("port = %s, want %s", got.Name, tt.wantName)
			}
		})
	}
}

func TestSerialDialerOpensAllowListedPort(t *testing.T) {
	var opened *fakePort
	var mode *serial.Mode
	d := &SerialDialer{
		Serials:   []string{"854383638383517120C1"},
		ListPorts: func() ([]*enumerator.PortDetails, error) { return testPorts(), nil },
		OpenPort: func(name string, m *serial.Mode) (serial.Port, error) {
			opened = &fakePort{name: name, readTimeout: -1}
			mode = m
			return opened, nil
		},
	}

	link, info, err := d.Dial()
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if opened.name != "/dev/ttyACM1" {
		t.Errorf("opened %s, want /dev/ttyACM1", opened.name)
	}
	if mode.BaudRate != DefaultBaudRate {
		t.Errorf("baud = %d, want %d", mode.BaudRate, DefaultBaudRate)
	}
	if opened.readTimeout != 0 {
		t.Errorf("read timeout = %v, want 0 (polling)", opened.readTimeout)
	}
	if info == "" {
		t.Error("empty info")
	}

	opened.inbound = []byte{'P', 1}
	data, err := link.Poll()
	if err != nil || !bytes.Equal(data, []byte{'P', 1}) {
		t.Errorf("Poll = % X, %v", data, err)
	}
	data, _ = link.Poll()
	if len(data) != 0 {
		t.Errorf("second Poll = % X, want nothing", data)
	}
}

func TestSerialDialerNoMatch(t *testing.T) {
	d := &SerialDialer{
		Serials:   []string{"nope"},
		ListPorts: func() ([]*enumerator.PortDetails, error) { return testPorts(), nil },
		OpenPort: func(string, *serial.Mode) (serial.Port, error) {
			t.Fatal("OpenPort called without a match")
			return nil, nil
		},
	}
	if _, _, err := d.Dial(); !errors.Is(err, ErrNoDevice) {
		t.Errorf("error = %v, want ErrNoDevice", err)
	}
}

func TestSerialDialerExplicitPort(t *testing.T) {
	d := &SerialDialer{
		Port: "/dev/ttyUSB3",
		Baud: 9600,
		ListPorts: func() ([]*enumerator.PortDetails, error) {
			t.Fatal("ListPorts called with explicit port")
			return nil, nil
		},
		OpenPort: func(name string, m *serial.Mode) (serial.Port, error) {
			if name != "/dev/ttyUSB3" || m.BaudRate != 9600 {
				t.Errorf("open(%s, %d)", name, m.BaudRate)
			}
			return &fakePort{name: name}, nil
		},
	}
	if _, _, err := d.Dial(); err != nil {
		t.Errorf("Dial: %v", err)
	}
}
