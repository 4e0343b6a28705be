// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/Thermoquad/solenoid/pkg/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and their USB serial numbers",
	Long: `List every serial port with its USB identity. Ports whose serial number is
in the allow-list (--serial or platform.serial_numbers) are marked with '*';
the first marked port is the one run and monitor will open.

Exit codes:
  0 - An allow-listed controller was found (or no allow-list was given)
  1 - Allow-list given but no port matched`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	m, err := loadMachine()
	if err != nil {
		return err
	}
	allow := m.Platform.SerialNumbers
	if len(serialNumbers) > 0 {
		allow = serialNumbers
	}

	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("enumerate serial ports: %w", err)
	}

	fmt.Printf("Solenoid - Serial Ports\n\n")
	if len(ports) == 0 {
		fmt.Printf("No serial ports found.\n")
	}
	match, found := transport.MatchPort(ports, allow)
	for _, p := range ports {
		mark := " "
		if found && p.Name == match.Name {
			mark = "*"
		}
		if !p.IsUSB {
			fmt.Printf("%s %-20s (not USB)\n", mark, p.Name)
			continue
		}
		fmt.Printf("%s %-20s %s:%s serial=%s %s\n", mark, p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
	}

	if len(allow) > 0 && !found {
		fmt.Printf("\nNo port matches the allow-list %v\n", allow)
		os.Exit(1)
	}
	return nil
}
