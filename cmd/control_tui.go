// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/currency"
	"github.com/Thermoquad/billstat/pkg/validator"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// escrowPrompt is a bill waiting for an operator decision
type escrowPrompt struct {
	bill     currency.Bill
	deadline time.Time
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	cm       *controllerManager
	connInfo string

	// Validator state
	ready    bool
	identity ccnet.Identity
	state    validator.State
	escrow   *escrowPrompt

	// Totals
	collected int
	stacked   int
	rejected  int

	// Monitoring
	stats         ccnet.Counters
	errorLog      []errorLogEntry
	maxLogEntries int

	// UI state
	log            viewport.Model
	spinner        spinner.Model
	styles         styles
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type billMsg validator.BillReceivedEvent

type cassetteMsg validator.CassetteEvent

type escrowMsg struct {
	bill     currency.Bill
	deadline time.Time
	auto     bool
}

type escrowExpiredMsg struct {
	bill currency.Bill
}

type readyMsg struct {
	identity ccnet.Identity
}

type connectionLostMsg struct {
	err error
}

type commandResultMsg struct {
	action string
	err    error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(cm *controllerManager, connInfo string) controlModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(76, 8)

	return controlModel{
		cm:            cm,
		connInfo:      connInfo,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 200,
		log:           vp,
		spinner:       sp,
		styles:        newStyles(),
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(controlTickCmd(), m.spinner.Tick)
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLog()

	case controlTickMsg:
		m.state = m.cm.c.State()
		m.stats = m.cm.c.Statistics().Snapshot()
		return m, controlTickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case readyMsg:
		m.ready = true
		m.connectionLost = false
		m.identity = msg.identity
		m.addLogEntry(fmt.Sprintf("Validator ready: %s (serial %s)", msg.identity.PartNumber, msg.identity.SerialNumber), false)

	case connectionLostMsg:
		m.ready = false
		m.connectionLost = true
		m.escrow = nil
		m.addLogEntry(fmt.Sprintf("Connection lost - reconnecting... (%v)", msg.err), true)

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Bill acceptance %sd", msg.action), false)
		}
		m.state = m.cm.c.State()

	case billMsg:
		m.escrow = nil
		if msg.Status == validator.BillAccepted {
			m.stacked++
			m.collected += msg.Bill.Value
			m.addLogEntry(fmt.Sprintf("Stacked %s", msg.Bill.Description), false)
		} else {
			m.rejected++
			reason := "unknown reason"
			if msg.Err != nil {
				reason = msg.Err.Message
			}
			m.addLogEntry(fmt.Sprintf("Rejected: %s", reason), true)
		}

	case cassetteMsg:
		m.addLogEntry(fmt.Sprintf("Cassette %s", msg.Status), msg.Status == validator.CassetteRemoved)

	case escrowMsg:
		if msg.auto {
			m.addLogEntry(fmt.Sprintf("Escrow %s (auto-accepted)", msg.bill.Description), false)
		} else {
			m.escrow = &escrowPrompt{bill: msg.bill, deadline: msg.deadline}
			m.addLogEntry(fmt.Sprintf("Escrow %s - a=accept r=return", msg.bill.Description), false)
		}

	case escrowExpiredMsg:
		m.escrow = nil
		m.addLogEntry(fmt.Sprintf("No decision for %s, returning bill", msg.bill.Description), true)
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "e":
		if !m.ready {
			m.addLogEntry("Cannot enable: validator not ready", true)
			return m, nil
		}
		return m, m.cm.setAccepting(true)

	case "d":
		if !m.ready {
			return m, nil
		}
		return m, m.cm.setAccepting(false)

	case "a", "enter":
		if m.cm.resolve(validator.Accept) {
			m.addLogEntry("Accepting escrowed bill", false)
			m.escrow = nil
		}

	case "r", "backspace":
		if m.cm.resolve(validator.Reject) {
			m.addLogEntry("Returning escrowed bill", false)
			m.escrow = nil
		}

	case "t":
		on := !m.cm.autoAccept.Load()
		m.cm.autoAccept.Store(on)
		m.addLogEntry(fmt.Sprintf("Auto-accept %s", onOff(on)), false)

	default:
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := m.styles
	var s strings.Builder

	s.WriteString(st.title.Render("BILLSTAT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = st.warning.Render("RECONNECTING...")
	}
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | e/d=enable/disable a/r=accept/return t=auto q=quit", connStatus)))
	s.WriteString("\n\n")

	left := m.renderValidatorPanel()
	right := m.renderTotalsPanel()
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	s.WriteString("\n")

	if m.escrow != nil {
		s.WriteString(m.renderEscrowPrompt())
		s.WriteString("\n")
	}

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")

	s.WriteString(st.statsLabel.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(st.box.Width(m.width - 4).Render(m.log.View()))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderValidatorPanel() string {
	st := m.styles
	var b strings.Builder

	if !m.ready {
		b.WriteString(st.warning.Render(m.spinner.View() + " Powering up validator..."))
		return st.box.Width(44).Render(b.String())
	}

	accepting := st.warning.Render("disabled")
	if m.state.Accepting {
		accepting = st.statsValue.Render("accepting")
	}
	cassette := st.statsValue.Render(m.state.Cassette.String())
	if m.state.Cassette == validator.CassetteRemoved {
		cassette = st.err.Render(m.state.Cassette.String())
	}

	fmt.Fprintf(&b, "%s %s\n", st.statsLabel.Render("Part:"), m.identity.PartNumber)
	fmt.Fprintf(&b, "%s %s\n", st.statsLabel.Render("Serial:"), m.identity.SerialNumber)
	fmt.Fprintf(&b, "%s %s  %s %s\n", st.statsLabel.Render("Bills:"), accepting, st.statsLabel.Render("Cassette:"), cassette)
	if m.state.LastError != nil {
		fmt.Fprintf(&b, "%s %s", st.statsLabel.Render("Last error:"), st.err.Render(fmt.Sprintf("%d %s", m.state.LastError.Code, m.state.LastError.Message)))
	} else {
		fmt.Fprintf(&b, "%s %s", st.statsLabel.Render("Last error:"), st.header.Render("none"))
	}

	style := st.box
	if m.state.Accepting {
		style = st.focusedBox
	}
	return style.Width(44).Render(b.String())
}

func (m controlModel) renderTotalsPanel() string {
	st := m.styles
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", st.statsLabel.Render("Collected:"), st.statsValue.Render(fmt.Sprintf("%d", m.collected)))
	fmt.Fprintf(&b, "%s %d  %s %d\n", st.statsLabel.Render("Stacked:"), m.stacked, st.statsLabel.Render("Rejected:"), m.rejected)
	fmt.Fprintf(&b, "%s %s", st.statsLabel.Render("Auto-accept:"), onOff(m.cm.autoAccept.Load()))

	width := m.width - 44 - 7
	if width < 24 {
		width = 24
	}
	return st.box.Width(width).Render(b.String())
}

func (m controlModel) renderEscrowPrompt() string {
	st := m.styles
	remaining := time.Until(m.escrow.deadline).Round(time.Second)
	if remaining < 0 {
		remaining = 0
	}

	content := fmt.Sprintf("%s %s   %s  %s   %s",
		st.statsLabel.Render("ESCROW:"),
		st.statsValue.Render(m.escrow.bill.Description),
		st.hotButton.Render("[a] Accept"),
		st.button.Render("[r] Return"),
		st.warning.Render(fmt.Sprintf("%s returning in %v", m.spinner.View(), remaining)),
	)
	return st.focusedBox.Width(m.width - 4).Render(content)
}

func (m controlModel) renderStatisticsBar() string {
	st := m.styles
	c := m.stats

	var validPercent float64
	if c.TotalFrames > 0 {
		validPercent = float64(c.ValidFrames) * 100.0 / float64(c.TotalFrames)
	}

	timeouts := st.statsValue.Render("0")
	if c.Timeouts > 0 {
		timeouts = st.err.Render(fmt.Sprintf("%d", c.Timeouts))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %d/%d",
		st.statsLabel.Render("Frames:"), st.statsValue.Render(fmt.Sprintf("%d", c.TotalFrames)),
		st.statsLabel.Render("Valid:"), st.statsValue.Render(fmt.Sprintf("%.1f%%", validPercent)),
		st.statsLabel.Render("Timeouts:"), timeouts,
		st.statsLabel.Render("Rate:"), st.statsValue.Render(fmt.Sprintf("%.1f frames/s", c.FrameRate)),
		st.statsLabel.Render("ACK/NAK:"), c.AcksSent, c.NaksSent,
	)
	return st.box.Width(m.width - 4).Render(content)
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}

	atBottom := m.log.AtBottom()
	m.log.SetContent(renderLog(m.errorLog, len(m.errorLog), m.styles))
	if atBottom {
		m.log.GotoBottom()
	}
}

func (m *controlModel) resizeLog() {
	m.log.Width = m.width - 8
	// Header, panels, statistics and borders
	h := m.height - 16
	if h < 3 {
		h = 3
	}
	m.log.Height = h
	m.log.GotoBottom()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
