// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package validator drives a CashCode bill validator over CCNET.
//
// A Controller opens the channel, runs the power-up handshake, enables bill
// acceptance and polls the device on a fixed interval, turning poll statuses
// into BillReceived, BillStacking and CassetteStatus events. Every exchange
// with the device, from the poll loop or from a caller, is serialized by one
// lock so frames never interleave on the wire. Handlers run with that lock
// released and may call back into the Controller.
package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/currency"
	"github.com/Thermoquad/billstat/pkg/transport"
)

// Controller is a CCNET bill validator driver
type Controller struct {
	opts   options
	log    zerolog.Logger
	events dispatcher
	stats  *ccnet.Statistics

	// lock serializes every exchange with the device. A buffered channel
	// rather than a mutex so waiting honors the caller's context.
	lock    chan struct{}
	session *transport.Session
	table   currency.Table

	stateMu  sync.RWMutex
	state    State
	identity ccnet.Identity
	// generation counts sessions so a stale watcher never marks a newer
	// session disconnected
	generation uint64

	loopMu   sync.Mutex
	stopLoop context.CancelFunc
	loopDone chan struct{}

	// dispatching is set while the poll goroutine delivers notifications
	dispatching atomic.Bool
}

// cycleKey marks contexts handed to stacking handlers by the poll goroutine
type cycleKey struct{}

// New creates a disconnected controller
func New(opts ...Option) *Controller {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger.With().Str("component", "validator").Logger()
	return &Controller{
		opts:   o,
		log:    log,
		events: dispatcher{log: log},
		stats:  ccnet.NewStatistics(),
		lock:   make(chan struct{}, 1),
	}
}

// OnBillReceived registers a handler for stacked and rejected bills
func (c *Controller) OnBillReceived(h BillReceivedHandler) {
	c.events.onBillReceived(h)
}

// OnBillStacking registers a handler deciding on escrowed bills
func (c *Controller) OnBillStacking(h BillStackingHandler) {
	c.events.onBillStacking(h)
}

// OnCassetteStatus registers a handler for cassette removal and return
func (c *Controller) OnCassetteStatus(h CassetteHandler) {
	c.events.onCassetteStatus(h)
}

// Connect opens the channel and resets the session. Any open session is
// torn down first. Open failures match ccnet.ErrConnection.
func (c *Controller) Connect(portName string, table currency.Table) error {
	c.Teardown()

	if table == nil {
		table = &currency.Static{}
	}

	conn, err := c.opts.opener(portName, c.opts.baudRate)
	if err != nil {
		devErr := ccnet.ErrConnection.Wrap(err)
		c.update(func(s *State) {
			*s = State{LastError: devErr}
		})
		c.log.Error().Err(err).Str("port", portName).Msg("failed to open channel")
		return devErr
	}

	if err := c.acquire(context.Background()); err != nil {
		conn.Close()
		return err
	}
	defer c.release()

	c.stats.Reset()
	session := transport.NewSession(conn, transport.Config{
		Timeout:     c.opts.exchangeTimeout,
		SettleDelay: c.opts.settleDelay,
		Logger:      c.opts.logger,
		Stats:       c.stats,
		Tap:         c.opts.tap,
	})
	c.table = table

	c.stateMu.Lock()
	c.session = session
	c.state = State{Connection: Connected}
	c.identity = ccnet.Identity{}
	c.generation++
	gen := c.generation
	c.stateMu.Unlock()

	go c.watchSession(session, gen)

	c.log.Info().Str("port", portName).Int("baud", c.opts.baudRate).Msg("channel open")
	return nil
}

// PowerUp runs the power-up handshake. A device-reported fault aborts it
// with the catalogued error after a NAK; the power state is left unchanged.
func (c *Controller) PowerUp(ctx context.Context) error {
	if !c.IsConnected() {
		return c.fail(ccnet.ErrNotConnected)
	}

	if err := c.acquire(ctx); err != nil {
		return c.fail(err)
	}
	defer c.release()

	if err := c.powerUp(ctx); err != nil {
		c.log.Error().Err(err).Msg("power-up handshake failed")
		return c.fail(err)
	}
	c.update(func(s *State) {
		s.Power = PoweredUp
	})
	c.log.Info().Msg("validator powered up")
	return nil
}

func (c *Controller) powerUp(ctx context.Context) error {
	if _, err := c.checkedPoll(ctx); err != nil {
		return err
	}

	if err := c.expectMarker(ctx, ccnet.NewReset()); err != nil {
		return err
	}

	if _, err := c.checkedPoll(ctx); err != nil {
		return err
	}

	resp, err := c.exchange(ctx, ccnet.NewGetStatus())
	if err != nil {
		return err
	}
	if !allZero(resp.ResponseData(), ccnet.GetStatusDataSize) {
		return ccnet.ErrStatusCheck.Wrap(fmt.Errorf("GET_STATUS returned %s", ccnet.FormatHex(resp.ResponseData())))
	}
	if err := c.send(ccnet.Acknowledge()); err != nil {
		return err
	}

	if err := c.expectMarker(ctx, ccnet.NewSetSecurity(ccnet.NoBillTypes)); err != nil {
		return err
	}

	resp, err = c.exchange(ctx, ccnet.NewIdentification())
	if err != nil {
		return err
	}
	id := ccnet.ParseIdentification(resp.ResponseData())
	c.stateMu.Lock()
	c.identity = id
	c.stateMu.Unlock()
	c.log.Info().Str("part", id.PartNumber).Str("serial", id.SerialNumber).Msg("validator identified")
	if err := c.send(ccnet.Acknowledge()); err != nil {
		return err
	}

	status, err := c.checkedPoll(ctx)
	if err != nil {
		return err
	}
	if status != ccnet.StatusInitialize {
		c.log.Debug().Str("status", status.String()).Msg("expected INITIALIZE after identification")
	}

	status, err = c.checkedPoll(ctx)
	if err != nil {
		return err
	}
	if status != ccnet.StatusUnitDisabled {
		c.log.Debug().Str("status", status.String()).Msg("expected UNIT_DISABLED at end of handshake")
	}
	return nil
}

// Enable turns on bill acceptance with escrow for every bill type.
// The poll loop must be running. Failures match ccnet.ErrEnable and leave
// acceptance unchanged.
func (c *Controller) Enable(ctx context.Context) error {
	if !c.IsConnected() {
		return c.fail(ccnet.ErrNotConnected)
	}
	if !c.State().Listening {
		return c.fail(ccnet.ErrNotListening)
	}

	if err := c.acquire(ctx); err != nil {
		return c.fail(ccnet.ErrEnable.Wrap(err))
	}
	defer c.release()

	// StopListening may have run while we waited for the lock
	if !c.State().Listening {
		return c.fail(ccnet.ErrNotListening)
	}

	if err := c.enable(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to enable bill acceptance")
		return c.fail(ccnet.ErrEnable.Wrap(err))
	}
	c.update(func(s *State) {
		s.Accepting = true
	})
	c.log.Info().Msg("bill acceptance enabled")
	return nil
}

func (c *Controller) enable(ctx context.Context) error {
	if err := c.expectMarker(ctx, ccnet.EnableAllWithEscrow()); err != nil {
		return err
	}
	_, err := c.checkedPoll(ctx)
	return err
}

// Disable inhibits every bill type. Acceptance is marked off even when the
// device does not acknowledge; that failure is still returned.
func (c *Controller) Disable(ctx context.Context) error {
	if !c.IsConnected() {
		return c.fail(ccnet.ErrNotConnected)
	}

	if err := c.acquire(ctx); err != nil {
		return c.fail(err)
	}
	defer c.release()

	err := c.expectMarker(ctx, ccnet.DisableAll())
	c.update(func(s *State) {
		s.Accepting = false
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("disable not acknowledged")
		return c.fail(err)
	}
	c.log.Info().Msg("bill acceptance disabled")
	return nil
}

// StartListening starts the poll loop, running the power-up handshake first
// if needed. ctx bounds the handshake only.
func (c *Controller) StartListening(ctx context.Context) error {
	if !c.IsConnected() {
		return c.fail(ccnet.ErrNotConnected)
	}

	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.stopLoop != nil {
		return nil
	}
	if c.State().Power != PoweredUp {
		if err := c.PowerUp(ctx); err != nil {
			return err
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.stopLoop = cancel
	c.loopDone = done
	c.update(func(s *State) {
		s.Listening = true
	})

	go c.pollLoop(loopCtx, done)
	c.log.Info().Dur("interval", c.opts.pollInterval).Msg("listening")
	return nil
}

// StopListening stops scheduling poll cycles and disables acceptance.
// A cycle already in progress finishes before the disable is sent, unless
// the call comes from a handler running on that cycle; pass the handler's
// context so it is recognized.
func (c *Controller) StopListening(ctx context.Context) error {
	c.waitLoop(ctx, c.halt())
	return c.Disable(ctx)
}

// halt stops the poll loop scheduler and returns its done channel
func (c *Controller) halt() <-chan struct{} {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	done := c.loopDone
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop = nil
		c.loopDone = nil
	}
	c.update(func(s *State) {
		s.Listening = false
	})
	return done
}

// waitLoop waits for a halted poll loop to exit, at most one exchange
// timeout. Calls made from the poll goroutine itself return at once.
func (c *Controller) waitLoop(ctx context.Context, done <-chan struct{}) {
	if done == nil || c.onPollGoroutine(ctx) {
		return
	}
	select {
	case <-done:
	case <-time.After(c.opts.exchangeTimeout):
		c.log.Warn().Msg("poll loop did not stop")
	}
}

// Teardown stops polling, disables acceptance and closes the channel.
// Failures along the way are logged, never returned. It finishes within a
// few exchange timeouts even when the device or the lock holder hangs. The
// controller can be reused with Connect.
func (c *Controller) Teardown() {
	c.waitLoop(context.Background(), c.halt())

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.exchangeTimeout)
	defer cancel()

	if c.IsConnected() {
		if err := c.Disable(ctx); err != nil {
			c.log.Warn().Err(err).Msg("teardown: disable failed")
		}
	}

	c.stateMu.Lock()
	c.generation++
	c.stateMu.Unlock()

	closed := false
	if err := c.acquire(ctx); err != nil {
		// Closing unblocks whoever holds the lock; they release it on error
		c.log.Warn().Err(err).Msg("teardown: exchange lock busy, closing anyway")
		if s := c.currentSession(); s != nil {
			if err := s.Close(); err != nil {
				c.log.Warn().Err(err).Msg("teardown: close failed")
			}
			closed = true
		}
	} else {
		if c.session != nil {
			if err := c.session.Close(); err != nil {
				c.log.Warn().Err(err).Msg("teardown: close failed")
			}
			c.stateMu.Lock()
			c.session = nil
			c.stateMu.Unlock()
			closed = true
		}
		c.release()
	}

	c.update(func(s *State) {
		s.Connection = Disconnected
		s.Power = PoweredDown
		s.Listening = false
		s.Accepting = false
	})
	if closed {
		c.log.Info().Msg("teardown complete")
	}
}

// currentSession reads the session without the exchange lock. The field is
// written holding both locks. Only Close may be called on the result.
func (c *Controller) currentSession() *transport.Session {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.session
}

// watchSession marks the controller disconnected when the session reader
// stops on its own, e.g. the port vanished or the bridge hung up
func (c *Controller) watchSession(s *transport.Session, gen uint64) {
	<-s.Done()

	c.stateMu.Lock()
	lost := c.generation == gen && c.state.Connection == Connected
	if lost {
		c.state.Connection = Disconnected
		c.state.Accepting = false
		c.state.LastError = ccnet.ErrNotConnected.Wrap(transport.ErrClosed)
	}
	c.stateMu.Unlock()

	if lost {
		c.log.Error().Msg("connection lost")
	}
}

// IsConnected reports whether a channel is open
func (c *Controller) IsConnected() bool {
	return c.State().Connection == Connected
}

// State returns a snapshot of the session state
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// LastError returns the most recent catalogued error, or nil
func (c *Controller) LastError() error {
	if e := c.State().LastError; e != nil {
		return e
	}
	return nil
}

// Identity returns the identification read during power-up
func (c *Controller) Identity() ccnet.Identity {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.identity
}

// Statistics returns the link statistics of the current session
func (c *Controller) Statistics() *ccnet.Statistics {
	return c.stats
}

//////////////////////////////////////////////////////////////
// Poll Loop
//////////////////////////////////////////////////////////////

// pollLoop waits one interval, runs a cycle, then sleeps whatever remains of
// the interval. Cycles never overlap.
func (c *Controller) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(c.opts.pollInterval)
	defer timer.Stop()

	// Cycles outlive a stop request; only scheduling is cancelled
	cycleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		c.runCycle(cycleCtx)

		wait := c.opts.pollInterval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// escrowHold is a bill parked in escrow awaiting STACK or RETURN
type escrowHold struct {
	bill    currency.Bill
	time    time.Time
	session *transport.Session
}

// runCycle runs one poll cycle, settles any escrowed bill and dispatches the
// cycle's events. Errors and panics stop at this boundary.
func (c *Controller) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("poll cycle panicked")
		}
	}()

	events, hold, err := c.pollCycle(ctx)
	if err == nil && hold != nil {
		err = c.resolveEscrow(ctx, hold)
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("poll cycle failed")
		c.fail(err)
	}

	c.dispatching.Store(true)
	defer c.dispatching.Store(false)
	for _, dispatch := range events {
		dispatch()
	}
}

// pollCycle performs POLL and its reply under the lock. It returns the
// notifications to deliver once the lock is released, and the escrowed bill
// if the device is holding one.
func (c *Controller) pollCycle(ctx context.Context) ([]func(), *escrowHold, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, nil, err
	}
	defer c.release()

	if c.session == nil {
		return nil, nil, ccnet.ErrNotConnected
	}

	resp, err := c.exchange(ctx, ccnet.NewPoll())
	if err != nil {
		return nil, nil, err
	}

	var events []func()
	var hold *escrowHold
	now := time.Now()
	status, sub := resp.Status(), resp.SubStatus()

	if next, changed := NextCassette(c.State().Cassette, status); changed {
		c.update(func(s *State) {
			s.Cassette = next
		})
		c.log.Info().Str("cassette", next.String()).Msg("cassette status changed")
		e := CassetteEvent{Status: next, Time: now}
		events = append(events, func() { c.events.cassetteStatus(e) })
	}

	step := interpretPoll(status, sub)
	switch step.reply {
	case replyAck:
		err = c.send(ccnet.Acknowledge())
	case replyNak:
		err = c.send(ccnet.NotAcknowledge())
	}
	if err != nil {
		return events, nil, err
	}

	switch step.event {
	case pollEventNone:
		if step.err != nil {
			c.log.Warn().Str("status", status.String()).Int("code", step.err.Code).Msg(step.err.Message)
			c.fail(step.err)
		}

	case pollEventRejected:
		e := BillReceivedEvent{Status: BillRejected, Bill: c.table.InvalidBill(), Err: step.err, Time: now}
		c.log.Info().Str("reason", step.err.Message).Msg("bill rejected")
		events = append(events, func() { c.events.billReceived(e) })

	case pollEventEscrow:
		hold = &escrowHold{bill: currency.Lookup(c.table, sub), time: now, session: c.session}

	case pollEventStacked:
		e := BillReceivedEvent{Status: BillAccepted, Bill: currency.Lookup(c.table, sub), Time: now}
		c.log.Info().Str("bill", e.Bill.Description).Int("value", e.Bill.Value).Msg("bill stacked")
		events = append(events, func() { c.events.billReceived(e) })
	}

	return events, hold, nil
}

// resolveEscrow asks the stacking handlers about an escrowed bill, then
// sends STACK or RETURN. Handlers run without the lock; the bill stays in
// escrow until the follow-up.
func (c *Controller) resolveEscrow(ctx context.Context, hold *escrowHold) error {
	decideCtx, cancel := context.WithTimeout(context.WithValue(ctx, cycleKey{}, c), c.opts.stackingTimeout)
	decision := c.events.decide(decideCtx, BillStackingEvent{Bill: hold.bill, Time: hold.time})
	cancel()

	frame := ccnet.NewStack()
	if decision == Reject {
		frame = ccnet.NewReturn()
	}

	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if c.session != hold.session {
		c.log.Warn().Str("bill", hold.bill.Description).Msg("session closed while deciding, escrow left to the device")
		return ccnet.ErrNotConnected
	}
	c.log.Info().Str("bill", hold.bill.Description).Str("decision", decision.String()).Msg("escrow resolved")

	resp, err := c.exchange(ctx, frame)
	if err != nil {
		return err
	}
	if resp.Status() != ccnet.SuccessMarker {
		c.log.Warn().Str("cmd", ccnet.FormatCommand(frame.Command())).Str("status", resp.Status().String()).Msg("escrow command not acknowledged")
	}
	return nil
}

//////////////////////////////////////////////////////////////
// Exchange Helpers
//////////////////////////////////////////////////////////////

// acquire takes the exchange lock, giving up when ctx ends
func (c *Controller) acquire(ctx context.Context) error {
	select {
	case c.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) release() {
	<-c.lock
}

// onPollGoroutine reports whether the caller is a handler the poll loop is
// currently running. Such callers must not wait for the loop to exit.
func (c *Controller) onPollGoroutine(ctx context.Context) bool {
	if owner, ok := ctx.Value(cycleKey{}).(*Controller); ok && owner == c {
		return true
	}
	return c.dispatching.Load()
}

// exchange sends a request and parses the response. Caller must hold the lock.
func (c *Controller) exchange(ctx context.Context, f *ccnet.Frame) (*ccnet.Frame, error) {
	if c.session == nil {
		return nil, ccnet.ErrNotConnected
	}

	raw, err := c.session.Exchange(ctx, f.Raw(), c.opts.exchangeTimeout)
	if err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return nil, ccnet.ErrNotConnected.Wrap(err)
		}
		return nil, err
	}
	return ccnet.ParseFrame(raw)
}

// send writes a bare ACK or NAK. Caller must hold the lock.
func (c *Controller) send(frame []byte) error {
	if c.session == nil {
		return ccnet.ErrNotConnected
	}
	return c.session.Send(frame)
}

// checkedPoll polls and answers with NAK and the catalogued error on a
// device fault, or ACK otherwise. Caller must hold the lock.
func (c *Controller) checkedPoll(ctx context.Context) (ccnet.Status, error) {
	resp, err := c.exchange(ctx, ccnet.NewPoll())
	if err != nil {
		return 0, err
	}

	status := resp.Status()
	if devErr, ok := ccnet.PollError(status, resp.SubStatus()); ok {
		if err := c.send(ccnet.NotAcknowledge()); err != nil {
			c.log.Warn().Err(err).Msg("failed to send NAK")
		}
		return status, devErr
	}
	return status, c.send(ccnet.Acknowledge())
}

// expectMarker sends a request whose only valid answer is the ACK marker.
// Caller must hold the lock.
func (c *Controller) expectMarker(ctx context.Context, f *ccnet.Frame) error {
	resp, err := c.exchange(ctx, f)
	if err != nil {
		return err
	}
	if resp.Status() != ccnet.SuccessMarker {
		return ccnet.ErrHandshake.Wrap(fmt.Errorf("%s answered %s (0x%02X)",
			ccnet.FormatCommand(f.Command()), resp.Status(), byte(resp.Status())))
	}
	return nil
}

//////////////////////////////////////////////////////////////
// State Helpers
//////////////////////////////////////////////////////////////

func (c *Controller) update(fn func(*State)) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	fn(&c.state)
}

// fail records err as the last error and returns it. Errors outside the
// catalog are recorded under the unknown code.
func (c *Controller) fail(err error) error {
	var devErr *ccnet.DeviceError
	if !errors.As(err, &devErr) {
		devErr = ccnet.Lookup(ccnet.CodeUnknown).Wrap(err)
	}
	c.update(func(s *State) {
		s.LastError = devErr
	})
	return err
}

func allZero(data []byte, n int) bool {
	if len(data) < n {
		return false
	}
	for _, b := range data[:n] {
		if b != 0 {
			return false
		}
	}
	return true
}
