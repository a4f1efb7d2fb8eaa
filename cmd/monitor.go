// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/soar-avionics/sob/pkg/router"
	"github.com/soar-avionics/sob/pkg/sobproto"
)

var (
	monitorSource string
	monitorTarget string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for bus statistics, telemetry and commands",
	Long: `Watch the bus in a terminal UI.

Shows:
  - Frame statistics (valid, checksum failures, overflows, rates)
  - Latest load cell, thermocouple and IR telemetry
  - A scrolling log of every envelope seen on the bus

Type a request (same syntax as send, e.g. "calibrate 500") and press Enter to
send it to the target board. PgUp/PgDn scroll the log; Esc or Ctrl+C quits.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorSource, "source", "rcu", "Node the monitor speaks as")
	monitorCmd.Flags().StringVar(&monitorTarget, "target", "sob", "Node requests are sent to")
}

type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type telemetrySample[T any] struct {
	at   time.Time
	data T
}

// Messages
type monitorTickMsg time.Time
type envelopeBatchMsg []sobproto.Envelope
type linkClosedMsg struct{ err error }

type monitorModel struct {
	info   string
	target sobproto.Node
	stats  func() router.Stats
	send   func(req request) error

	current   router.Stats
	events    []eventEntry
	maxEvents int

	loadCell    *telemetrySample[sobproto.LoadCellData]
	temperature *telemetrySample[sobproto.TemperatureData]
	ir          *telemetrySample[sobproto.IRData]

	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	closed   bool
	quitting bool
}

func newMonitorModel(info string, target sobproto.Node, stats func() router.Stats, send func(request) error) monitorModel {
	in := textinput.New()
	in.Placeholder = "tare | calibrate <g> | sample-lc | sample-tc | sample-ir | period <ms> | reset"
	in.Prompt = "> "
	in.CharLimit = 64
	in.Focus()

	return monitorModel{
		info:      info,
		target:    target,
		stats:     stats,
		send:      send,
		maxEvents: 200,
		viewport:  viewport.New(76, 8),
		input:     in,
		width:     80,
		height:    24,
	}
}

func monitorTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTick(), textinput.Blink)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-4, 20)
		m.viewport.Height = max(msg.Height-18, 5)
		m.refreshLog()

	case monitorTickMsg:
		if m.stats != nil {
			m.current = m.stats()
		}
		return m, monitorTick()

	case envelopeBatchMsg:
		for _, env := range msg {
			m.observe(env)
		}
		m.refreshLog()

	case linkClosedMsg:
		m.closed = true
		if msg.err != nil {
			m.addEvent(fmt.Sprintf("link closed: %v", msg.err), true)
		} else {
			m.addEvent("link closed", true)
		}
		m.refreshLog()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit sends the request typed into the input line
func (m *monitorModel) submit() {
	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if line == "" {
		return
	}

	req, err := parseRequest(strings.Fields(line))
	switch {
	case err != nil:
		m.addEvent(err.Error(), true)
	case m.closed:
		m.addEvent("not sent, link closed: "+line, true)
	default:
		if err := m.send(req); err != nil {
			m.addEvent(fmt.Sprintf("send %s: %v", req.name, err), true)
		} else {
			m.addEvent(fmt.Sprintf("sent %s to %s", req.name, m.target), false)
		}
	}
	m.refreshLog()
}

// observe records an envelope and keeps the latest telemetry of each type
func (m *monitorModel) observe(env sobproto.Envelope) {
	summary := strings.TrimSpace(strings.ReplaceAll(sobproto.FormatEnvelope(env), "\n", " "))
	m.addEvent(summary, false)

	if env.Kind != sobproto.KindTelemetry {
		return
	}
	msg, err := sobproto.DecodeTelemetry(env.Body)
	if err != nil {
		m.addEvent(fmt.Sprintf("bad telemetry from %s: %v", env.Source, err), true)
		return
	}
	now := time.Now()
	if msg.LoadCell != nil {
		m.loadCell = &telemetrySample[sobproto.LoadCellData]{at: now, data: *msg.LoadCell}
	}
	if msg.Temperature != nil {
		m.temperature = &telemetrySample[sobproto.TemperatureData]{at: now, data: *msg.Temperature}
	}
	if msg.IR != nil {
		m.ir = &telemetrySample[sobproto.IRData]{at: now, data: *msg.IR}
	}
}

func (m *monitorModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{timestamp: time.Now(), message: message, isError: isError})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statsLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	statsValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	infoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle        = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m *monitorModel) refreshLog() {
	var b strings.Builder
	if len(m.events) == 0 {
		b.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for i, e := range m.events {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(headerStyle.Render(e.timestamp.Format("15:04:05.000")))
		b.WriteString(" ")
		if e.isError {
			b.WriteString(errorStyle.Render("✗ " + e.message))
		} else {
			b.WriteString(infoStyle.Render("ℹ " + e.message))
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func label(s string) string { return statsLabelStyle.Render(s) }
func value(s string) string { return statsValueStyle.Render(s) }

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("SOB - BUS MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Target: %s | Esc to quit", m.info, m.target)))
	s.WriteString("\n\n")

	f := m.current.Frame
	errStr := value(fmt.Sprintf("%d", f.Invalid+f.Overflow))
	if f.Invalid+f.Overflow > 0 {
		errStr = errorStyle.Render(fmt.Sprintf("%d", f.Invalid+f.Overflow))
	}
	var stats strings.Builder
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s   %s %s\n",
		label("Frames:"), value(fmt.Sprintf("%d", f.Frames())),
		label("Valid:"), value(fmt.Sprintf("%d", f.Valid)),
		label("Errors:"), errStr,
		label("Dropped:"), value(fmt.Sprintf("%d", f.Dropped)))
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s",
		label("Frame Rate:"), value(fmt.Sprintf("%.1f/s", f.FrameRate())),
		label("Error Rate:"), value(fmt.Sprintf("%.1f/s", f.ErrorRate())),
		label("Sent:"), value(fmt.Sprintf("%d", m.current.TxFrames)))
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n")

	var tele strings.Builder
	if lc := m.loadCell; lc != nil {
		fmt.Fprintf(&tele, "%s %s raw=%d", label("Load Cell:"),
			value(sobproto.FormatCentis(lc.data.WeightCentigrams, "g")), lc.data.Raw)
		if !lc.data.Calibrated {
			tele.WriteString(headerStyle.Render(" (uncalibrated)"))
		}
		tele.WriteString("\n")
	}
	if t := m.temperature; t != nil {
		fmt.Fprintf(&tele, "%s TC1 %s  TC2 %s\n", label("Thermocouples:"),
			value(sobproto.FormatCentis(t.data.TC1CentiC, "°C")),
			value(sobproto.FormatCentis(t.data.TC2CentiC, "°C")))
	}
	if ir := m.ir; ir != nil {
		fmt.Fprintf(&tele, "%s ambient %s  object %s\n", label("IR:"),
			value(sobproto.FormatCentis(ir.data.AmbientCentiC, "°C")),
			value(sobproto.FormatCentis(ir.data.ObjectCentiC, "°C")))
	}
	if tele.Len() == 0 {
		tele.WriteString(headerStyle.Render("(no telemetry yet)"))
	}
	s.WriteString(boxStyle.Render(strings.TrimRight(tele.String(), "\n")))
	s.WriteString("\n")

	s.WriteString(label("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.viewport.View()))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	return s.String()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	source, err := parseNodeFlag("source", monitorSource)
	if err != nil {
		return err
	}
	target, err := parseNodeFlag("target", monitorTarget)
	if err != nil {
		return err
	}

	envelopes := make(chan sobproto.Envelope, 100)
	tap := func(env sobproto.Envelope) {
		select {
		case envelopes <- env:
		default:
		}
	}
	link, err := openGroundLink(cmd.Context(), cfg, source, nil, router.WithTap(tap))
	if err != nil {
		return err
	}
	defer link.Close()

	send := func(req request) error {
		return link.SendMessage(req.kind, target, req.body)
	}
	m := newMonitorModel(link.info, target, link.Stats, send)
	m.refreshLog()
	p := tea.NewProgram(m, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		err := link.serve(ctx)
		if ctx.Err() == nil {
			p.Send(linkClosedMsg{err: err})
		}
	}()

	// batch envelopes into the TUI at a fixed rate
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var batch envelopeBatchMsg
			drain:
				for {
					select {
					case env := <-envelopes:
						batch = append(batch, env)
					default:
						break drain
					}
				}
				if len(batch) > 0 {
					p.Send(batch)
				}
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
