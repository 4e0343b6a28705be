// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solenoid/pkg/jrproto"
	"github.com/Thermoquad/solenoid/pkg/transport"
)

var (
	monitorStatsInterval int
	monitorShowGarbage   bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display switch frames in human-readable format",
	Long: `Continuously decode and display switch frames as they arrive from the
controller, without sending anything to it.

Statistics are printed every --stats-interval seconds and on exit.
Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 10, "Seconds between statistics (0 disables)")
	monitorCmd.Flags().BoolVar(&monitorShowGarbage, "show-garbage", true, "Print frames that do not decode")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	m, err := loadMachine()
	if err != nil {
		return err
	}
	t, err := OpenTransport(m)
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Printf("Solenoid - Switch Monitor\n")
	fmt.Printf("Connection: %s\n", connectionInfo(t))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := jrproto.NewStatistics()
	poll := time.NewTicker(time.Millisecond)
	defer poll.Stop()

	var statsC <-chan time.Time
	if monitorStatsInterval > 0 {
		statsTicker := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
		defer statsTicker.Stop()
		statsC = statsTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Print("\n" + stats.String())
			return nil
		case <-statsC:
			fmt.Print(stats.String())
		case <-poll.C:
			if !t.Connected() && !t.Connect() {
				continue
			}
			drainFrames(t, stats)
		}
	}
}

func drainFrames(t *transport.Transport, stats *jrproto.Statistics) {
	for t.BytesAvailable() >= jrproto.EventSize {
		frame, err := t.Read(jrproto.EventSize)
		if err != nil {
			return
		}
		now := time.Now()
		ev, ok := jrproto.DecodeSwitchEvent(frame)
		stats.Update(ev, ok)
		switch {
		case ok:
			fmt.Print(jrproto.FormatEvent(now, ev))
		case monitorShowGarbage:
			fmt.Print(jrproto.FormatGarbage(now, frame))
		}
	}
}

func connectionInfo(t *transport.Transport) string {
	if info := t.Info(); info != "" {
		return info
	}
	return "not connected (will retry)"
}
