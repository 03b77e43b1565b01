// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/transport"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display CCNET frames as they arrive.

Intended for a tap on a line between an existing controller and a validator.
Each frame is shown with timestamp, inferred direction, command or status
name, and hex dump. Direction is inferred from the request/response pattern.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Billstat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sniffer := ccnet.NewSniffer()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, io.EOF) {
				logger.Info().Msg("connection closed")
				return nil
			}
			logger.Warn().Err(err).Msg("read error")
			continue
		}

		frames, errs := sniffer.Feed(buf[:n])
		for _, err := range errs {
			fmt.Printf("[ERROR] %v\n", err)
		}
		for _, f := range frames {
			fmt.Print(ccnet.FormatFrame(f.Frame, f.Direction))
		}
	}
}
