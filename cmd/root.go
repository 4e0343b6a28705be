// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solenoid/pkg/logger"
)

var (
	// Serial connection flags
	serialNumbers []string
	portName      string
	baudRate      int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Machine flags
	configPath string
	logLevel   string
	tickHz     int
)

// log is shared by every subcommand; it is replaced in PersistentPreRunE.
var log = logger.New(os.Stderr, logger.InfoLevel)

var rootCmd = &cobra.Command{
	Use:   "solenoid",
	Short: "Pinball coil and switch controller host",
	Long: `Solenoid - drives coils and tracks switches on a JR pinball controller.

The controller is found by USB serial number rather than by port path, so it
survives being re-enumerated. Coils are pulsed, held and released from the host,
and hardware rules let the controller fire coils on switch changes by itself.

Connection modes:
  Serial:    --serial 853323130363516072E1 [--serial ...] [--baud 115200]
             --port /dev/ttyACM0 (skip the serial-number match)
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the SOLENOID_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:      "0.3.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		return nil
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringSliceVarP(&serialNumbers, "serial", "s", nil, "Allowed controller USB serial number (repeatable)")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device, bypasses serial-number matching")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only, default 115200)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Machine flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Machine configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error, off")
	rootCmd.PersistentFlags().IntVar(&tickHz, "tick-hz", 0, "Control loop frequency (overrides platform.tick_hz)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
