// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/transport"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and device errors",
	Long: `Track frame errors, malformed data, and device faults with statistics.

This command passively validates each frame on the line and detects:
  - CRC errors and decode failures
  - Unknown commands, statuses and sub-codes
  - Length mismatches against the request being answered
  - Device faults reported in POLL responses (jams, cassette full, ...)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(sf ccnet.SniffedFrame) {
	f := sf.Frame
	timestamp := f.Timestamp().Format("15:04:05.000")
	name := ccnet.FormatCommand(f.Command())
	if sf.Direction == ccnet.DirectionRx {
		name = ccnet.FormatStatus(f.Status())
	}

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s %s (0x%02X)\n", timestamp, directionLabel(sf.Direction), name, f.Command())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range sf.Errors {
		switch err.Type {
		case ccnet.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if length, ok := err.Details["length"].(int); ok {
				if expected, ok := err.Details["expected"].(int); ok {
					fmt.Printf("    Length: received=%d, expected=%d\n", length, expected)
				}
			}

		case ccnet.AnomalyUnknownCommand, ccnet.AnomalyUnknownStatus, ccnet.AnomalyUnknownSubCode:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case ccnet.AnomalyDeviceError:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if code, ok := err.Details["code"].(int); ok {
				fmt.Printf("    Catalog code: %d\n", code)
			}

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  %s\n", ccnet.FormatHex(f.Raw()))
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// readChunks copies connection reads onto a channel until the connection closes
func readChunks(conn transport.Connection) <-chan []byte {
	out := make(chan []byte, 10)
	go func() {
		defer close(out)
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, io.EOF) {
					return
				}
				logger.Debug().Err(err).Msg("read error")
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- data
		}
	}()
	return out
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(conn transport.Connection, connInfo string) error {
	sniffer := ccnet.NewSniffer()
	synchronized := false

	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	go func() {
		for data := range readChunks(conn) {
			frames, errs := sniffer.Feed(data)

			if synced, skipped := sniffer.Synchronized(); synced && !synchronized {
				synchronized = true
				p.Send(syncMsg{invalidBytes: skipped})
			}
			if len(frames) > 0 || len(errs) > 0 {
				p.Send(serialDataMsg{frames: frames, decodeErr: errs})
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(conn transport.Connection, connInfo string) error {
	fmt.Printf("Billstat - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sniffer := ccnet.NewSniffer()
	stats := ccnet.NewStatistics()
	synchronized := false

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	chunks := readChunks(conn)
	for {
		select {
		case data, ok := <-chunks:
			if !ok {
				fmt.Println()
				fmt.Print(stats.String())
				return nil
			}

			frames, errs := sniffer.Feed(data)
			if synced, skipped := sniffer.Synchronized(); synced && !synchronized {
				synchronized = true
				if skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			for _, err := range errs {
				stats.Update(nil, err, nil)
				printDecodeError(err)
			}

			for _, sf := range frames {
				stats.Update(sf.Frame, nil, sf.Errors)
				if len(sf.Errors) > 0 {
					printValidationErrors(sf)
				} else if showAll {
					fmt.Print(ccnet.FormatFrame(sf.Frame, sf.Direction))
				}
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
