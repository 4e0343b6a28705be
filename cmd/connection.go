// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/solenoid/pkg/config"
	"github.com/Thermoquad/solenoid/pkg/platform"
	"github.com/Thermoquad/solenoid/pkg/transport"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("SOLENOID_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// loadMachine reads --config, or returns an empty machine with defaults applied.
func loadMachine() (*config.Machine, error) {
	if configPath == "" {
		return config.Parse(nil)
	}
	return config.Load(configPath)
}

// NewDialer picks a WebSocket or serial dialer from flags, falling back to the
// machine file for serial settings.
func NewDialer(m *config.Machine) (transport.Dialer, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		return &transport.WebSocketDialer{
			URL:           wsURL,
			Username:      wsUsername,
			Password:      password,
			SkipSSLVerify: wsNoSSLVerify,
		}, nil
	}

	d := &transport.SerialDialer{
		Serials: m.Platform.SerialNumbers,
		Port:    m.Platform.Port,
		Baud:    m.Platform.Baud,
	}
	if len(serialNumbers) > 0 {
		d.Serials = serialNumbers
	}
	if portName != "" {
		d.Port = portName
	}
	if baudRate != 0 {
		d.Baud = baudRate
	}
	if d.Port == "" && len(d.Serials) == 0 {
		return nil, fmt.Errorf("one of --serial, --port or --url must be specified (or platform.serial_numbers in the machine file)")
	}
	return d, nil
}

// OpenTransport builds a transport and makes the first connection attempt. A
// missing controller is not an error; writes retry the connection.
func OpenTransport(m *config.Machine) (*transport.Transport, error) {
	dialer, err := NewDialer(m)
	if err != nil {
		return nil, err
	}
	t := transport.New(dialer, log.Named("transport"))
	t.Connect()
	return t, nil
}

// NewPlatform opens the transport and builds a platform for m.
func NewPlatform(m *config.Machine, opts platform.Options) (*platform.Platform, *transport.Transport, error) {
	t, err := OpenTransport(m)
	if err != nil {
		return nil, nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.Named("platform")
	}
	if opts.DefaultPulseMs == 0 {
		opts.DefaultPulseMs = m.Platform.DefaultPulseMs
	}
	p, err := platform.New(t, platform.JRFeatures(), opts)
	if err != nil {
		t.Close()
		return nil, nil, err
	}
	if err := p.ApplyMachineConfig(m); err != nil {
		t.Close()
		return nil, nil, err
	}
	return p, t, nil
}

// tickRate resolves --tick-hz against the machine file.
func tickRate(m *config.Machine) int {
	if tickHz > 0 {
		return tickHz
	}
	return m.Platform.TickHz
}
