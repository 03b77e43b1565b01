// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/billstat/pkg/ccnet"
)

var probeTimeout time.Duration

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the connection by running the power-up handshake",
	Long: `Connect to the validator, run the power-up handshake and print its
identification.

Exit codes:
  0 - Validator answered and completed the handshake
  1 - Validator did not answer, or reported a fault during the handshake
  2 - Connection error

Useful for testing cabling, baud rate and WebSocket bridge setup.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 30*time.Second, "Overall time allowed for the handshake")
}

func runProbe(cmd *cobra.Command, args []string) error {
	c, err := connectController()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer c.Teardown()

	fmt.Printf("Billstat - Probe\n")
	fmt.Printf("Connection: %s\n", connectionInfo())
	fmt.Printf("Timeout: %v\n", probeTimeout)
	fmt.Printf("Running power-up handshake...\n\n")

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	start := time.Now()
	err = c.PowerUp(ctx)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		var devErr *ccnet.DeviceError
		if errors.As(err, &devErr) {
			fmt.Fprintf(os.Stderr, "FAILED: %s (code %d, %s)\n", devErr.Message, devErr.Code, devErr.Kind)
		} else {
			fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
		}
		fmt.Fprintf(os.Stderr, "%s", c.Statistics().String())
		c.Teardown()
		os.Exit(1)
	}

	id := c.Identity()
	fmt.Printf("SUCCESS: Handshake completed in %v\n", elapsed)
	fmt.Printf("  Part Number:   %s\n", id.PartNumber)
	fmt.Printf("  Serial Number: %s\n", id.SerialNumber)
	fmt.Printf("  Asset Number:  %s\n", id.AssetNumber)
	return nil
}
