// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solenoid/pkg/config"
	"github.com/Thermoquad/solenoid/pkg/jrproto"
	"github.com/Thermoquad/solenoid/pkg/platform"
)

var (
	coilPulseMs     int
	coilAllowEnable bool
	coilHoldFor     time.Duration
	coilPWMOn       int
	coilPWMOff      int
)

var coilCmd = &cobra.Command{
	Use:   "coil",
	Short: "Send one-shot commands to a coil",
	Long: `Pulse, hold or release a single coil. The coil is given by its name in the
machine file, or by channel number (0-31).

Holding a coil at full power is refused unless the coil has allow_enable set
in the machine file, or --allow-enable is given for a bare channel. Holds last
for --for and the coil is disabled before the command exits.`,
}

var coilPulseCmd = &cobra.Command{
	Use:   "pulse <coil>",
	Short: "Pulse a coil",
	Args:  cobra.ExactArgs(1),
	RunE:  runCoil(coilPulse),
}

var coilEnableCmd = &cobra.Command{
	Use:   "enable <coil>",
	Short: "Hold a coil on for --for, then disable it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCoil(coilEnable),
}

var coilPWMCmd = &cobra.Command{
	Use:   "pwm <coil>",
	Short: "Hold a coil with an on/off pattern for --for, then disable it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCoil(coilPWM),
}

var coilDisableCmd = &cobra.Command{
	Use:   "disable <coil>",
	Short: "Turn a coil off",
	Args:  cobra.ExactArgs(1),
	RunE:  runCoil(coilDisable),
}

func init() {
	rootCmd.AddCommand(coilCmd)
	coilCmd.AddCommand(coilPulseCmd, coilEnableCmd, coilPWMCmd, coilDisableCmd)

	coilCmd.PersistentFlags().IntVar(&coilPulseMs, "pulse-ms", 0, "Pulse length for a bare channel (default platform.default_pulse_ms)")
	coilCmd.PersistentFlags().BoolVar(&coilAllowEnable, "allow-enable", false, "Permit full-power holds on a bare channel")
	coilCmd.PersistentFlags().DurationVar(&coilHoldFor, "for", 500*time.Millisecond, "How long enable and pwm hold the coil")
	coilPWMCmd.Flags().IntVar(&coilPWMOn, "on", 2, "PWM on time in ms")
	coilPWMCmd.Flags().IntVar(&coilPWMOff, "off", 8, "PWM off time in ms")
}

// coilAction runs against a resolved driver. It reports whether the coil must be
// released before exit.
type coilAction func(d *platform.Driver) (held bool, err error)

func runCoil(action coilAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, err := loadMachine()
		if err != nil {
			return err
		}
		p, t, err := NewPlatform(m, platform.Options{})
		if err != nil {
			return err
		}
		if err := p.Initialize(); err != nil {
			t.Close()
			return err
		}

		d, err := resolveCoil(p, m, args[0])
		if err != nil {
			t.Close()
			return err
		}

		held, err := action(d)
		if err != nil {
			t.Close()
			return err
		}
		if held {
			time.Sleep(coilHoldFor)
			return p.Stop()
		}
		return t.Close()
	}
}

func coilPulse(d *platform.Driver) (bool, error) {
	if err := d.Pulse(); err != nil {
		return false, err
	}
	printSent(jrproto.KindPulse, d.Number())
	return false, nil
}

func coilEnable(d *platform.Driver) (bool, error) {
	if err := d.Enable(); err != nil {
		return false, err
	}
	if d.State() == platform.StateIdle {
		// Refused; the driver logged why.
		return false, nil
	}
	printSent(jrproto.KindEnable, d.Number())
	return true, nil
}

func coilPWM(d *platform.Driver) (bool, error) {
	if err := d.PWM(coilPWMOn, coilPWMOff); err != nil {
		return false, err
	}
	printSent(jrproto.KindEnable, d.Number())
	return true, nil
}

func coilDisable(d *platform.Driver) (bool, error) {
	if err := d.Disable(); err != nil {
		return false, err
	}
	printSent(jrproto.KindDisable, d.Number())
	return false, nil
}

// resolveCoil finds a configured coil by name or configures a bare channel.
func resolveCoil(p *platform.Platform, m *config.Machine, arg string) (*platform.Driver, error) {
	if _, ok := m.Coils[arg]; ok {
		return p.Driver(arg)
	}
	channel, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnknownDriver, arg)
	}
	for _, d := range p.Drivers() {
		if d.Number() == channel {
			return d, nil
		}
	}
	return p.ConfigureDriver("ch"+arg, platform.DriverConfig{
		Number:      channel,
		PulseMs:     coilPulseMs,
		AllowEnable: coilAllowEnable,
	})
}

func printSent(kind jrproto.Kind, channel int) {
	mask, err := jrproto.ChannelMask(channel)
	if err != nil {
		return
	}
	fmt.Printf("sent: %s\n", jrproto.FormatCommand(jrproto.Command{Kind: kind, ID: int8(channel), Mask: mask}))
}
