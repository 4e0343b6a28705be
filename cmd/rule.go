// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solenoid/pkg/config"
	"github.com/Thermoquad/solenoid/pkg/jrproto"
	"github.com/Thermoquad/solenoid/pkg/platform"
)

var (
	ruleInactive      bool
	ruleHold          bool
	ruleKeepOnRelease bool
	ruleDriveNow      bool
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Program hardware rules into the controller",
	Long: `Install or clear a hardware rule. A rule makes the controller fire a coil
on a switch change by itself, without waiting for the host.

Switches and coils are given by name from the machine file, or by number.
Rules stay programmed in the controller after this command exits.`,
}

var ruleInstallCmd = &cobra.Command{
	Use:   "install <switch> <coil>",
	Short: "Bind a coil to a switch",
	Args:  cobra.ExactArgs(2),
	RunE:  runRuleInstall,
}

var ruleClearCmd = &cobra.Command{
	Use:   "clear <switch>",
	Short: "Remove every rule on a switch",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleClear,
}

func init() {
	rootCmd.AddCommand(ruleCmd)
	ruleCmd.AddCommand(ruleInstallCmd, ruleClearCmd)

	ruleInstallCmd.Flags().BoolVar(&ruleInactive, "on-release", false, "Fire when the switch goes inactive")
	ruleInstallCmd.Flags().BoolVar(&ruleHold, "hold", false, "Hold the coil instead of pulsing it")
	ruleInstallCmd.Flags().BoolVar(&ruleKeepOnRelease, "keep-on-release", false, "Do not release the coil when the switch releases")
	ruleInstallCmd.Flags().BoolVar(&ruleDriveNow, "drive-now", false, "Fire immediately if the switch is already in the trigger state")
}

func runRuleInstall(cmd *cobra.Command, args []string) error {
	m, err := loadMachine()
	if err != nil {
		return err
	}
	p, t, err := NewPlatform(m, platform.Options{})
	if err != nil {
		return err
	}
	defer t.Close()
	if err := p.Initialize(); err != nil {
		return err
	}
	// Pick up any switch frames already waiting so drive-now sees current state.
	p.Tick(0)

	switchName, err := resolveSwitch(p, m, args[0])
	if err != nil {
		return err
	}
	coil, err := resolveCoil(p, m, args[1])
	if err != nil {
		return err
	}

	activity := platform.ActivityActive
	if ruleInactive {
		activity = platform.ActivityInactive
	}
	action := platform.ActionPulse
	if ruleHold {
		action = platform.ActionHold
	}
	if err := p.InstallRule(switchName, activity, coil.Name(), action, !ruleKeepOnRelease, ruleDriveNow); err != nil {
		return err
	}
	for _, r := range p.Rules().Rules() {
		fmt.Printf("installed: switch %d %s -> %s %s (channel %d)\n", r.Switch, r.Activity, r.Action, r.Driver, r.DriverNumber)
	}
	return nil
}

func runRuleClear(cmd *cobra.Command, args []string) error {
	m, err := loadMachine()
	if err != nil {
		return err
	}
	t, err := OpenTransport(m)
	if err != nil {
		return err
	}
	defer t.Close()

	// The controller keeps rules across host restarts, so clear unconditionally
	// rather than through the empty in-memory table.
	number, err := switchNumber(m, args[0])
	if err != nil {
		return err
	}
	frame, err := jrproto.EncodeProgramRule(number, 0)
	if err != nil {
		return err
	}
	if err := t.Write(frame); err != nil {
		return err
	}
	fmt.Printf("sent: %s\n", jrproto.FormatCommand(jrproto.Command{Kind: jrproto.KindProgramRule, ID: int8(number)}))
	return nil
}

// resolveSwitch returns the configured name for arg, configuring a bare number
// when needed.
func resolveSwitch(p *platform.Platform, m *config.Machine, arg string) (string, error) {
	if _, ok := m.Switches[arg]; ok {
		return arg, nil
	}
	number, err := switchNumber(m, arg)
	if err != nil {
		return "", err
	}
	if st, ok := p.Switches().Lookup(number); ok && st.Name != "" {
		return st.Name, nil
	}
	name := "sw" + arg
	if err := p.ConfigureSwitch(name, number); err != nil {
		return "", err
	}
	return name, nil
}

func switchNumber(m *config.Machine, arg string) (int, error) {
	if sw, ok := m.Switches[arg]; ok {
		return sw.Number, nil
	}
	number, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", platform.ErrUnknownSwitch, arg)
	}
	return number, nil
}
