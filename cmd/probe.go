// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solenoid/pkg/jrproto"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the connection by waiting for a switch frame",
	Long: `Wait for a valid switch frame on the connection until timeout. Press any
switch on the machine while this runs.

Exit codes:
  0 - Switch frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runProbe(cmd *cobra.Command, args []string) error {
	m, err := loadMachine()
	if err != nil {
		return err
	}
	t, err := OpenTransport(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer t.Close()
	if !t.Connected() {
		fmt.Fprintf(os.Stderr, "Connection error: no controller found\n")
		os.Exit(2)
	}

	fmt.Printf("Solenoid - Connection Probe\n")
	fmt.Printf("Connection: %s\n", t.Info())
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for a switch frame...\n\n")

	deadline := time.Now().Add(time.Duration(probeTimeout) * time.Second)
	garbage := 0
	for time.Now().Before(deadline) {
		if !t.Connected() {
			fmt.Fprintln(os.Stderr, "Read error: connection lost")
			os.Exit(2)
		}
		if t.BytesAvailable() < jrproto.EventSize {
			time.Sleep(time.Millisecond)
			continue
		}
		frame, err := t.Read(jrproto.EventSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}
		ev, ok := jrproto.DecodeSwitchEvent(frame)
		if !ok {
			garbage++
			continue
		}
		if garbage > 0 {
			fmt.Printf("(skipped %d unrecognised frames)\n", garbage)
		}
		fmt.Printf("SUCCESS: Received switch frame\n")
		fmt.Print("  " + jrproto.FormatEvent(time.Now(), ev))
		os.Exit(0)
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: No switch frame received within %d seconds\n", probeTimeout)
	os.Exit(1)
	return nil
}
