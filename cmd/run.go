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

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/solenoid/pkg/config"
	"github.com/Thermoquad/solenoid/pkg/gpio"
	"github.com/Thermoquad/solenoid/pkg/platform"
	"github.com/Thermoquad/solenoid/pkg/report"
	"github.com/Thermoquad/solenoid/pkg/status"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop for a machine",
	Long: `Load a machine file, connect to the controller, install the configured
hardware rules and tick the platform until interrupted.

Switch changes are logged and, when mqtt.broker is set, published to
<topic_prefix>/<switch>. When http.addr is set a read-only status API is served
on /api/status, /api/switches, /api/drivers and /api/rules (JSON, or CBOR with
Accept: application/cbor).

On SIGINT or SIGTERM every coil is disabled before exit.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}
	m, err := loadMachine()
	if err != nil {
		return err
	}
	interval, err := platform.TickInterval(tickRate(m))
	if err != nil {
		return err
	}

	// One id for the MQTT payloads and the status API.
	session := uuid.NewString()
	reporters := report.Multi{report.NewLogReporter(log.Named("switch"), switchNames(m))}

	var mqttReporter *report.MQTTReporter
	var pahoPub *report.PahoPublisher
	if m.MQTT.Broker != "" {
		pahoPub, mqttReporter, err = openMQTT(m, session)
		if err != nil {
			log.Warnf("mqtt disabled: %v", err)
		} else {
			reporters = append(reporters, mqttReporter)
			defer mqttReporter.Close()
		}
	}

	p, t, err := NewPlatform(m, platform.Options{Reporter: reporters})
	if err != nil {
		return err
	}

	if len(m.LocalSwitches.Switches) > 0 {
		reader, err := openLocalSwitches(m)
		if err != nil {
			log.Warnf("local switches disabled: %v", err)
		} else {
			defer reader.Close()
			local := make([]platform.LocalSwitch, len(m.LocalSwitches.Switches))
			for i, ls := range m.LocalSwitches.Switches {
				local[i] = platform.LocalSwitch{Name: ls.Name, Number: ls.Number}
			}
			p.ConfigureLocalSwitches(reader, local)
		}
	}

	if err := p.Initialize(); err != nil {
		return err
	}
	if err := p.InstallConfiguredRules(m); err != nil {
		log.Errorf("%v", err)
	}

	tracker := status.NewTracker(session, time.Now(), t.Info())
	var server *status.Server
	if m.HTTP.Addr != "" {
		server = status.NewServer(tracker, log.Named("http"))
		server.Start(m.HTTP.Addr)
	}
	if mqttReporter != nil {
		mqttReporter.System("STARTUP", "")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("control loop running at %dHz (%d coils, %d switches, %d rules)",
		tickRate(m), len(m.Coils), len(m.Switches), p.Rules().Len())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	err = p.Run(ctx, ticker.C, func(time.Time) {
		tracker.Update(p.Snapshot())
		if pahoPub != nil {
			tracker.SetMQTTConnected(pahoPub.IsConnected())
		}
	})

	log.Infof("stopping: disabling all coils")
	if stopErr := p.Stop(); stopErr != nil {
		log.Errorf("stop: %v", stopErr)
	}
	if mqttReporter != nil {
		mqttReporter.System("SHUTDOWN", "signal")
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}
	return err
}

func switchNames(m *config.Machine) map[int]string {
	names := make(map[int]string, len(m.Switches))
	for name, sw := range m.Switches {
		names[sw.Number] = name
	}
	return names
}

func openMQTT(m *config.Machine, session string) (*report.PahoPublisher, *report.MQTTReporter, error) {
	topic := m.MQTT.TopicPrefix + "/system"
	will, err := report.FormatSystemEvent(report.SystemEvent{Event: "OFFLINE", Session: session, Timestamp: time.Now()})
	if err != nil {
		return nil, nil, err
	}
	pub, err := report.NewPahoPublisher(m.MQTT.Broker, m.MQTT.ClientID, topic, will)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("mqtt connected: %s", m.MQTT.Broker)
	return pub, report.NewMQTTReporter(pub, m.MQTT.TopicPrefix, session, log.Named("mqtt")), nil
}

func openLocalSwitches(m *config.Machine) (gpio.Reader, error) {
	offsets := make([]int, len(m.LocalSwitches.Switches))
	for i, ls := range m.LocalSwitches.Switches {
		offsets[i] = ls.Line
	}
	r, err := gpio.NewRealReader(m.LocalSwitches.Chip, offsets, m.LocalSwitches.ActiveLow)
	if err != nil {
		return nil, err
	}
	return r, nil
}
