// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package validator

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/transport"
)

// Controller defaults
const (
	DefaultBaudRate        = 9600
	DefaultExchangeTimeout = 10 * time.Second
	DefaultPollInterval    = 200 * time.Millisecond
	DefaultStackingTimeout = 10 * time.Second
)

type options struct {
	baudRate        int
	exchangeTimeout time.Duration
	pollInterval    time.Duration
	settleDelay     time.Duration
	stackingTimeout time.Duration
	logger          zerolog.Logger
	opener          transport.Opener
	tap             func(ccnet.Direction, []byte)
}

func defaultOptions() options {
	return options{
		baudRate:        DefaultBaudRate,
		exchangeTimeout: DefaultExchangeTimeout,
		pollInterval:    DefaultPollInterval,
		settleDelay:     transport.DefaultSettleDelay,
		stackingTimeout: DefaultStackingTimeout,
		logger:          zerolog.Nop(),
		opener:          transport.OpenSerial,
	}
}

// Option configures a Controller
type Option func(*options)

// WithBaudRate sets the serial line speed (9600 or 19200, hardware selected)
func WithBaudRate(baud int) Option {
	return func(o *options) {
		if baud > 0 {
			o.baudRate = baud
		}
	}
}

// WithExchangeTimeout bounds every request/response exchange
func WithExchangeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.exchangeTimeout = d
		}
	}
}

// WithPollInterval sets the poll cycle period
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithSettleDelay sets how long the transport waits for the rest of a
// response burst after its first byte
func WithSettleDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.settleDelay = d
		}
	}
}

// WithStackingTimeout sets the deadline of the context passed to
// BillStacking handlers. Handlers must return before the device gives up
// holding the bill in escrow.
func WithStackingTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stackingTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithOpener replaces the serial port opener, e.g. with a WebSocket bridge
func WithOpener(open transport.Opener) Option {
	return func(o *options) {
		if open != nil {
			o.opener = open
		}
	}
}

// WithTap registers a callback receiving every frame on the wire
func WithTap(tap func(dir ccnet.Direction, frame []byte)) Option {
	return func(o *options) {
		o.tap = tap
	}
}
