// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/transport"
)

var (
	linkCheckDuration time.Duration
	linkCheckInterval time.Duration
)

var linkCheckCmd = &cobra.Command{
	Use:   "link_check",
	Short: "Test link stability with repeated POLL exchanges",
	Long: `Send POLL at a fixed interval for a while and report how many
exchanges were answered.

No handshake is run and acceptance is never enabled, so the validator state
is left as found. Non-idle answers are acknowledged.

Exit codes:
  0 - Every exchange was answered
  1 - One or more exchanges timed out or failed the CRC check
  2 - Connection error`,
	RunE: runLinkCheck,
}

func init() {
	rootCmd.AddCommand(linkCheckCmd)
	linkCheckCmd.Flags().DurationVar(&linkCheckDuration, "duration", 30*time.Second, "Test duration")
	linkCheckCmd.Flags().DurationVar(&linkCheckInterval, "interval", 200*time.Millisecond, "Interval between POLL exchanges")
}

func runLinkCheck(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	stats := ccnet.NewStatistics()
	session := transport.NewSession(conn, transport.Config{
		Timeout: exchangeTimeout,
		Logger:  logger,
		Stats:   stats,
	})
	defer session.Close()

	fmt.Printf("Link Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %v, interval: %v\n\n", linkCheckDuration, linkCheckInterval)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	start := time.Now()
	endTime := start.Add(linkCheckDuration)
	ticker := time.NewTicker(linkCheckInterval)
	defer ticker.Stop()

	failures := 0
	lastStatus := ccnet.Status(0)

loop:
	for time.Now().Before(endTime) {
		select {
		case <-ctx.Done():
			break loop
		case <-session.Done():
			fmt.Printf("\n[%s] Connection closed\n", time.Now().Format("15:04:05.000"))
			failures++
			break loop
		case <-ticker.C:
		}

		resp, err := session.Exchange(ctx, ccnet.NewPoll().Raw(), 0)
		if err != nil {
			if ctx.Err() != nil {
				break loop
			}
			failures++
			fmt.Printf("[%s] %v\n", time.Now().Format("15:04:05.000"), err)
			continue
		}

		f, err := ccnet.ParseFrame(resp)
		if err != nil {
			failures++
			continue
		}
		if f.Status() != ccnet.StatusIdling {
			if err := session.Send(ccnet.Acknowledge()); err != nil {
				logger.Debug().Err(err).Msg("ACK failed")
			}
		}
		if f.Status() != lastStatus {
			lastStatus = f.Status()
			fmt.Printf("[%s] Status: %s\n", time.Now().Format("15:04:05.000"), ccnet.FormatStatus(lastStatus))
		}
	}

	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Print(stats.String())

	if failures > 0 {
		fmt.Printf("Result: FAILED (%d failed exchanges)\n", failures)
		session.Close()
		os.Exit(1)
	}
	fmt.Printf("Result: PASSED (link stable)\n")
	return nil
}
