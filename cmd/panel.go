// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/solenoid/pkg/logger"
	"github.com/Thermoquad/solenoid/pkg/platform"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Interactive TUI for coils and switches",
	Long: `Drive coils and watch switches from an interactive terminal UI.

The control loop runs inside the UI at --tick-hz. Arrow keys select a coil.

Keys:
  p  pulse the selected coil
  e  enable (hold) the selected coil
  d  disable the selected coil
  x  disable every coil
  q  quit (every coil is disabled on exit)`,
	RunE: runPanel,
}

func init() {
	rootCmd.AddCommand(panelCmd)
}

// Panel log entry
type panelLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// panelFeed collects switch reports raised while the platform ticks inside Update.
type panelFeed struct {
	reports []string
}

func (f *panelFeed) Report(switchID int, state bool, isLocal bool) {
	where := ""
	if isLocal {
		where = " (local)"
	}
	verb := "released"
	if state {
		verb = "pressed"
	}
	f.reports = append(f.reports, fmt.Sprintf("switch %d %s%s", switchID, verb, where))
}

type panelModel struct {
	p        *platform.Platform
	connInfo string
	interval time.Duration
	feed     *panelFeed
	rec      *logger.Recorder

	coils    table.Model
	snapshot platform.Snapshot
	log      []panelLogEntry
	maxLog   int
	lastTick time.Time
	width    int
	height   int
	quitting bool
}

type panelTickMsg time.Time

func runPanel(cmd *cobra.Command, args []string) error {
	m, err := loadMachine()
	if err != nil {
		return err
	}
	interval, err := platform.TickInterval(tickRate(m))
	if err != nil {
		return err
	}

	// The terminal belongs to the UI; platform logs go to the event pane.
	rec := logger.NewRecorder()
	log.SetLevel(logger.OffLevel)
	feed := &panelFeed{}

	p, t, err := NewPlatform(m, platform.Options{Logger: rec, Reporter: feed})
	if err != nil {
		return err
	}
	if err := p.Initialize(); err != nil {
		t.Close()
		return err
	}
	if err := p.InstallConfiguredRules(m); err != nil {
		rec.Errorf("%v", err)
	}

	model := newPanelModel(p, connectionInfo(t), interval, feed, rec)
	prog := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := prog.Run()

	if err := p.Stop(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

func newPanelModel(p *platform.Platform, connInfo string, interval time.Duration, feed *panelFeed, rec *logger.Recorder) panelModel {
	columns := []table.Column{
		{Title: "Coil", Width: 18},
		{Title: "Ch", Width: 3},
		{Title: "State", Width: 9},
		{Title: "Pulse", Width: 6},
		{Title: "Hold", Width: 6},
	}
	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	tbl.SetStyles(styles)

	m := panelModel{
		p:        p,
		connInfo: connInfo,
		interval: interval,
		feed:     feed,
		rec:      rec,
		coils:    tbl,
		maxLog:   100,
		width:    80,
		height:   24,
	}
	m.refresh()
	return m
}

func (m panelModel) Init() tea.Cmd {
	return m.tickCmd()
}

func (m panelModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return panelTickMsg(t)
	})
}

func (m panelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p":
			m.onSelected("pulse", (*platform.Driver).Pulse)
		case "e":
			m.onSelected("enable", (*platform.Driver).Enable)
		case "d":
			m.onSelected("disable", (*platform.Driver).Disable)
		case "x":
			for _, d := range m.p.Drivers() {
				if err := d.Disable(); err != nil {
					m.addLogEntry(err.Error(), true)
				}
			}
			m.addLogEntry("all coils disabled", false)
		}
		m.drain()
		m.refresh()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case panelTickMsg:
		now := time.Time(msg)
		var dt time.Duration
		if !m.lastTick.IsZero() {
			dt = now.Sub(m.lastTick)
		}
		m.lastTick = now
		m.p.Tick(dt)
		m.drain()
		m.refresh()
		return m, m.tickCmd()
	}

	var cmd tea.Cmd
	m.coils, cmd = m.coils.Update(msg)
	return m, cmd
}

func (m *panelModel) onSelected(verb string, action func(*platform.Driver) error) {
	drivers := m.p.Drivers()
	i := m.coils.Cursor()
	if i < 0 || i >= len(drivers) {
		return
	}
	d := drivers[i]
	if err := action(d); err != nil {
		m.addLogEntry(err.Error(), true)
		return
	}
	m.addLogEntry(fmt.Sprintf("%s %s", verb, d.Name()), false)
}

// drain moves switch reports and platform log lines into the event log.
func (m *panelModel) drain() {
	for _, r := range m.feed.reports {
		m.addLogEntry(r, false)
	}
	m.feed.reports = m.feed.reports[:0]

	for _, e := range m.rec.Entries {
		if e.Level < logger.InfoLevel {
			continue
		}
		m.addLogEntry(e.Message, e.Level >= logger.WarnLevel)
	}
	m.rec.Reset()
}

func (m *panelModel) refresh() {
	m.snapshot = m.p.Snapshot()
	rows := make([]table.Row, 0, len(m.snapshot.Drivers))
	for _, d := range m.snapshot.Drivers {
		hold := d.HoldPattern
		if hold == "" {
			hold = "-"
		}
		rows = append(rows, table.Row{
			d.Name,
			fmt.Sprintf("%d", d.Number),
			d.State,
			fmt.Sprintf("%dms", d.PulseMs),
			hold,
		})
	}
	m.coils.SetRows(rows)
}

func (m *panelModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, panelLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.log) > m.maxLog {
		m.log = m.log[len(m.log)-m.maxLog:]
	}
}

func (m panelModel) View() string {
	if m.quitting {
		return "Disabling coils...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("SOLENOID - CONTROL PANEL"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s | %s | p pulse  e enable  d disable  x all off  q quit",
		m.connInfo, m.interval)))
	s.WriteString("\n\n")

	if m.snapshot.Connected {
		s.WriteString(valueStyle.Render("✓ Connected"))
	} else {
		s.WriteString(errorStyle.Render("✗ Not connected"))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  ticks=%d rules=%d garbage=%d",
		m.snapshot.Ticks, len(m.snapshot.Rules), m.snapshot.GarbageFrames)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.coils.View()))
	s.WriteString("\n")

	// Switches
	var sw strings.Builder
	active := 0
	for _, st := range m.snapshot.Switches {
		if !st.State {
			continue
		}
		active++
		name := st.Name
		if name == "" {
			name = fmt.Sprintf("#%d", st.Number)
		}
		sw.WriteString(valueStyle.Render("● " + name))
		sw.WriteString("  ")
	}
	if active == 0 {
		sw.WriteString(headerStyle.Render("(no active switches)"))
	}
	s.WriteString(labelStyle.Render(fmt.Sprintf("Active switches (%d/%d):", active, len(m.snapshot.Switches))))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(sw.String()))
	s.WriteString("\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 24
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.log) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var logContent strings.Builder
	if len(m.log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.log[startIdx:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message)))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, infoStyle.Render("ℹ "+entry.message)))
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
