// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/billstat/pkg/currency"
	"github.com/Thermoquad/billstat/pkg/validator"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Driver flags
	exchangeTimeout time.Duration
	billsFile       string
	logLevel        string

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "billstat",
	Short: "CashCode CCNET bill validator driver",
	Long: `Billstat - A CLI tool for driving and diagnosing CashCode bill validators
speaking the CCNET protocol.

Provides commands for accepting bills, interactive control, passive frame
logging and error detection to help diagnose validator and cabling issues.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the BILLSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
			Level(level).
			With().Timestamp().Logger()
		return nil
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", validator.DefaultBaudRate, "Baud rate (serial only, 9600 or 19200)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Driver flags
	rootCmd.PersistentFlags().DurationVar(&exchangeTimeout, "timeout", validator.DefaultExchangeTimeout, "Response timeout for each exchange")
	rootCmd.PersistentFlags().StringVar(&billsFile, "bills", "", "YAML currency table (default: built-in RON table)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadTable returns the currency table selected by --bills
func loadTable() (currency.Table, error) {
	if billsFile == "" {
		return currency.Romanian(), nil
	}
	table, err := currency.LoadFile(billsFile)
	if err != nil {
		return nil, err
	}
	return table, nil
}

// newController builds a controller from the connection and driver flags
func newController(opts ...validator.Option) (*validator.Controller, error) {
	opener, err := connectionOpener()
	if err != nil {
		return nil, err
	}

	opts = append([]validator.Option{
		validator.WithBaudRate(baudRate),
		validator.WithExchangeTimeout(exchangeTimeout),
		validator.WithLogger(logger),
		validator.WithOpener(opener),
	}, opts...)
	return validator.New(opts...), nil
}

// connectController creates a controller and opens the channel
func connectController(opts ...validator.Option) (*validator.Controller, error) {
	table, err := loadTable()
	if err != nil {
		return nil, err
	}
	c, err := newController(opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(connectionTarget(), table); err != nil {
		return nil, err
	}
	return c, nil
}
