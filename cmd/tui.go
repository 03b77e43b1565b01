// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/billstat/pkg/ccnet"
)

// Event log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// styles shared by the error detection and control views
type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	statsLabel lipgloss.Style
	statsValue lipgloss.Style
	err        lipgloss.Style
	warning    lipgloss.Style
	box        lipgloss.Style
	focusedBox lipgloss.Style
	button     lipgloss.Style
	hotButton  lipgloss.Style
}

func newStyles() styles {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	button := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		statsLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		statsValue: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box:        box,
		focusedBox: box.BorderForeground(lipgloss.Color("12")),
		button:     button,
		hotButton:  button.Background(lipgloss.Color("10")),
	}
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *ccnet.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	width         int
	height        int
	quitting      bool
	lastStatus    *ccnet.Frame
	spinner       spinner.Model
	styles        styles
}

// Messages
type tickMsg time.Time
type serialDataMsg struct {
	frames    []ccnet.SniffedFrame
	decodeErr []error
}
type syncMsg struct {
	invalidBytes int
}

// formatDuration formats a duration to a short human-friendly string
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         ccnet.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		spinner:       sp,
		styles:        newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		if m.synchronized {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case serialDataMsg:
		for _, err := range msg.decodeErr {
			m.stats.Update(nil, err, nil)
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", err), true)
		}
		for _, sf := range msg.frames {
			m.processFrame(sf)
		}
	}

	return m, nil
}

// processFrame records a sniffed frame in the statistics and event log
func (m *model) processFrame(sf ccnet.SniffedFrame) {
	m.stats.Update(sf.Frame, nil, sf.Errors)

	name := ccnet.FormatCommand(sf.Frame.Command())
	if sf.Direction == ccnet.DirectionRx {
		name = ccnet.FormatStatus(sf.Frame.Status())
		if len(sf.Frame.Data()) <= 1 {
			m.lastStatus = sf.Frame
		}
	}

	if len(sf.Errors) > 0 {
		for _, err := range sf.Errors {
			m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), err.Type != ccnet.AnomalyDeviceError)
		}
	} else if m.showAll {
		m.addLogEntry(fmt.Sprintf("%s %s (valid)", directionLabel(sf.Direction), name), false)
	}
}

func directionLabel(dir ccnet.Direction) string {
	if dir == ccnet.DirectionRx {
		return "RX"
	}
	return "TX"
}

func (m *model) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := m.styles
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}

	var s strings.Builder
	s.WriteString(st.title.Render("BILLSTAT - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Mode: %s | r=reset q=quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	if !m.synchronized {
		s.WriteString(st.warning.Render(m.spinner.View() + " Waiting for synchronization..."))
	} else {
		s.WriteString(st.statsValue.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(st.header.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(st.box.Render(renderStatistics(m.stats.Snapshot(), st)))
	s.WriteString("\n\n")

	if m.lastStatus != nil {
		status := m.lastStatus.Status()
		line := fmt.Sprintf("%s %s (0x%02X)", st.statsLabel.Render("Last Status:"), st.statsValue.Render(status.String()), byte(status))
		if sub := ccnet.FormatSubStatus(status, m.lastStatus.SubStatus()); sub != "" {
			line += st.header.Render(" " + sub)
		}
		s.WriteString(st.box.Render(line))
		s.WriteString("\n\n")
	}

	s.WriteString(st.statsLabel.Render("Recent Events:"))
	s.WriteString("\n")

	// Reserve space for header and stats
	logHeight := m.height - 17
	if logHeight < 5 {
		logHeight = 5
	}
	s.WriteString(st.box.Width(m.width - 4).Render(renderLog(m.errorLog, logHeight, st)))

	return s.String()
}

// renderStatistics renders link counters as a compact block
func renderStatistics(c ccnet.Counters, st styles) string {
	totalErrors := c.CRCErrors + c.DecodeErrors + c.MalformedFrames
	var validPercent, errorPercent float64
	if c.TotalFrames > 0 {
		validPercent = float64(c.ValidFrames) * 100.0 / float64(c.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(c.TotalFrames)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		st.statsLabel.Render("Total:"), st.statsValue.Render(fmt.Sprintf("%d", c.TotalFrames)),
		st.statsLabel.Render("Valid:"), st.statsValue.Render(fmt.Sprintf("%d (%.1f%%)", c.ValidFrames, validPercent)),
		st.statsLabel.Render("Errors:"), st.err.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	)

	if c.CRCErrors > 0 || c.DecodeErrors > 0 {
		fmt.Fprintf(&b, "%s %s   %s %s\n",
			st.statsLabel.Render("CRC Errors:"), st.err.Render(fmt.Sprintf("%d", c.CRCErrors)),
			st.statsLabel.Render("Decode Errors:"), st.err.Render(fmt.Sprintf("%d", c.DecodeErrors)),
		)
	}

	if c.MalformedFrames > 0 {
		fmt.Fprintf(&b, "%s %s (%s: %d, %s: %d)\n",
			st.statsLabel.Render("Malformed:"), st.err.Render(fmt.Sprintf("%d", c.MalformedFrames)),
			st.header.Render("unknown codes"), c.UnknownCodes,
			st.header.Render("length mismatches"), c.LengthMismatches,
		)
	}

	if c.DeviceErrors > 0 {
		fmt.Fprintf(&b, "%s %s\n", st.statsLabel.Render("Device Errors:"), st.warning.Render(fmt.Sprintf("%d", c.DeviceErrors)))
	}

	if c.Exchanges > 0 {
		fmt.Fprintf(&b, "%s %s   %s %s\n",
			st.statsLabel.Render("Exchanges:"), st.statsValue.Render(fmt.Sprintf("%d", c.Exchanges)),
			st.statsLabel.Render("Timeouts:"), st.err.Render(fmt.Sprintf("%d", c.Timeouts)),
		)
	}

	errorRate := st.statsValue.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	if c.ErrorRate > 0 {
		errorRate = st.err.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s",
		st.statsLabel.Render("Frame Rate:"), st.statsValue.Render(fmt.Sprintf("%.1f frames/s", c.FrameRate)),
		st.statsLabel.Render("Error Rate:"), errorRate,
		st.statsLabel.Render("Uptime:"), st.statsValue.Render(formatDuration(time.Since(c.StartTime))),
	)
	return b.String()
}

// renderLog renders the newest entries of an event log
func renderLog(entries []errorLogEntry, height int, st styles) string {
	if len(entries) == 0 {
		return st.header.Render("  (no events yet)")
	}

	start := len(entries) - height
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for _, entry := range entries[start:] {
		style, icon := st.warning, "ℹ"
		if entry.isError {
			style, icon = st.err, "✗"
		}
		fmt.Fprintf(&b, "%s %s\n",
			st.header.Render(entry.timestamp.Format("01/02/06 15:04:05.000")),
			style.Render(icon+" "+entry.message),
		)
	}
	return b.String()
}
