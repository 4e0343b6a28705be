// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is used when a SerialDialer has no baud rate set.
const DefaultBaudRate = 115200

// SerialDialer opens the first USB serial port whose serial number is in the
// allow-list. Port paths move around across replugs; serial numbers do not.
type SerialDialer struct {
	// Serials is the allow-list of USB serial numbers.
	Serials []string
	// Port, when set, is opened directly without enumeration.
	Port string
	Baud int

	// ListPorts and OpenPort default to the go.bug.st/serial implementations.
	ListPorts func() ([]*enumerator.PortDetails, error)
	OpenPort  func(name string, mode *serial.Mode) (serial.Port, error)
}

// Dial implements Dialer.
func (d *SerialDialer) Dial() (Link, string, error) {
	name := d.Port
	if name == "" {
		list := d.ListPorts
		if list == nil {
			list = enumerator.GetDetailedPortsList
		}
		ports, err := list()
		if err != nil {
			return nil, "", fmt.Errorf("enumerate serial ports: %w", err)
		}
		match, ok := MatchPort(ports, d.Serials)
		if !ok {
			return nil, "", fmt.Errorf("%w (allow-list %v)", ErrNoDevice, d.Serials)
		}
		name = match.Name
	}

	baud := d.Baud
	if baud == 0 {
		baud = DefaultBaudRate
	}
	open := d.OpenPort
	if open == nil {
		open = serial.Open
	}
	port, err := open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	// Zero timeout makes Read return immediately with whatever is buffered.
	if err := port.SetReadTimeout(0); err != nil {
		port.Close()
		return nil, "", fmt.Errorf("set read timeout on %s: %w", name, err)
	}

	return &SerialLink{port: port}, fmt.Sprintf("Serial: %s @ %d baud", name, baud), nil
}

// MatchPort returns the first USB port whose serial number is in serials.
// Comparison ignores case.
func MatchPort(ports []*enumerator.PortDetails, serials []string) (*enumerator.PortDetails, bool) {
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		for _, s := range serials {
			if strings.EqualFold(p.SerialNumber, s) {
				return p, true
			}
		}
	}
	return nil, false
}

// SerialLink wraps a serial port opened in polling mode.
type SerialLink struct {
	port serial.Port
	buf  [256]byte
}

func (s *SerialLink) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Poll reads what the driver has buffered. The port has a zero read timeout, so this
// never blocks.
func (s *SerialLink) Poll() ([]byte, error) {
	var out []byte
	for {
		n, err := s.port.Read(s.buf[:])
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, s.buf[:n]...)
		if n < len(s.buf) {
			return out, nil
		}
	}
}

func (s *SerialLink) Close() error {
	return s.port.Close()
}
