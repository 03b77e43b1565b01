// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/currency"
	"github.com/Thermoquad/billstat/pkg/validator"
)

var (
	controlAutoAccept bool
	controlEscrowWait time.Duration
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for operating a bill validator",
	Long: `Operate a bill validator via an interactive terminal UI.

This command provides a TUI for monitoring and controlling a CashCode
validator connected via WebSocket (through a serial bridge) or UART.

Features:
  - Power-up handshake and identification
  - Enable / disable bill acceptance
  - Accept or return escrowed bills interactively (or auto-accept)
  - Running total of collected bills
  - Link statistics and event logging
  - Automatic reconnection on connection loss

Keys: e=enable d=disable a=accept r=return t=toggle auto-accept q=quit

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().BoolVar(&controlAutoAccept, "auto-accept", false, "Stack every escrowed bill without asking")
	controlCmd.Flags().DurationVar(&controlEscrowWait, "escrow-wait", 8*time.Second, "How long to wait for an escrow decision before returning the bill")
}

// controllerManager handles the controller lifecycle and reconnection
type controllerManager struct {
	c          *validator.Controller
	table      currency.Table
	p          *tea.Program
	done       chan struct{}
	autoAccept atomic.Bool
	escrowWait time.Duration

	mu       sync.Mutex
	pending  chan validator.Decision
	accepted bool // acceptance to restore after a reconnect
}

func runControl(cmd *cobra.Command, args []string) error {
	table, err := loadTable()
	if err != nil {
		return err
	}

	// The TUI owns the terminal, keep log output off it unless tracing
	if logger.GetLevel() > zerolog.TraceLevel {
		logger = logger.Level(zerolog.Disabled)
	}

	c, err := newController(validator.WithStackingTimeout(controlEscrowWait + time.Second))
	if err != nil {
		return err
	}

	cm := &controllerManager{
		c:          c,
		table:      table,
		done:       make(chan struct{}),
		escrowWait: controlEscrowWait,
	}
	cm.autoAccept.Store(controlAutoAccept)

	m := initialControlModel(cm, connectionInfo())
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	c.OnBillReceived(func(e validator.BillReceivedEvent) { p.Send(billMsg(e)) })
	c.OnCassetteStatus(func(e validator.CassetteEvent) { p.Send(cassetteMsg(e)) })
	c.OnBillStacking(cm.decide)

	go cm.supervise()

	_, runErr := p.Run()
	close(cm.done)
	cm.resolve(validator.Reject)
	c.Teardown()

	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

// supervise connects and starts listening, reconnecting with exponential
// backoff whenever the channel is lost
func (cm *controllerManager) supervise() {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		if err := cm.start(); err != nil {
			cm.p.Send(connectionLostMsg{err: err})
			select {
			case <-cm.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = time.Second
		cm.p.Send(readyMsg{identity: cm.c.Identity()})

		if !cm.waitForLoss() {
			return
		}
		cm.p.Send(connectionLostMsg{err: cm.c.LastError()})
	}
}

// start opens the channel, powers up and restores acceptance
func (cm *controllerManager) start() error {
	if err := cm.c.Connect(connectionTarget(), cm.table); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*exchangeTimeout)
	defer cancel()
	if err := cm.c.StartListening(ctx); err != nil {
		cm.c.Teardown()
		return err
	}

	cm.mu.Lock()
	restore := cm.accepted
	cm.mu.Unlock()
	if restore {
		if err := cm.c.Enable(ctx); err != nil {
			cm.p.Send(commandResultMsg{action: "enable", err: err})
		}
	}
	return nil
}

// waitForLoss blocks until the channel is lost (true) or the TUI exits (false)
func (cm *controllerManager) waitForLoss() bool {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-cm.done:
			return false
		case <-ticker.C:
			if errors.Is(cm.c.LastError(), ccnet.ErrNotConnected) {
				cm.c.Teardown()
				return true
			}
		}
	}
}

// decide is the stacking handler. It asks the TUI and returns the bill if
// no answer arrives within the escrow wait.
func (cm *controllerManager) decide(ctx context.Context, e validator.BillStackingEvent) validator.Decision {
	if cm.autoAccept.Load() {
		cm.p.Send(escrowMsg{bill: e.Bill, auto: true})
		return validator.Accept
	}

	reply := make(chan validator.Decision, 1)
	cm.mu.Lock()
	cm.pending = reply
	cm.mu.Unlock()
	defer func() {
		cm.mu.Lock()
		cm.pending = nil
		cm.mu.Unlock()
	}()

	cm.p.Send(escrowMsg{bill: e.Bill, deadline: time.Now().Add(cm.escrowWait)})

	select {
	case d := <-reply:
		return d
	case <-time.After(cm.escrowWait):
		cm.p.Send(escrowExpiredMsg{bill: e.Bill})
		return validator.Reject
	case <-ctx.Done():
		cm.p.Send(escrowExpiredMsg{bill: e.Bill})
		return validator.Reject
	case <-cm.done:
		return validator.Reject
	}
}

// resolve answers a pending escrow decision; false when none is pending
func (cm *controllerManager) resolve(d validator.Decision) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.pending == nil {
		return false
	}
	select {
	case cm.pending <- d:
	default:
	}
	cm.pending = nil
	return true
}

// setAccepting runs Enable or Disable off the UI goroutine
func (cm *controllerManager) setAccepting(on bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*exchangeTimeout)
		defer cancel()

		action, err := "disable", error(nil)
		if on {
			action, err = "enable", cm.c.Enable(ctx)
		} else {
			err = cm.c.Disable(ctx)
		}
		if err == nil {
			cm.mu.Lock()
			cm.accepted = on
			cm.mu.Unlock()
		}
		return commandResultMsg{action: action, err: err}
	}
}
