// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package validator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/currency"
)

// BillStatus is the outcome reported by BillReceived
type BillStatus int

const (
	BillAccepted BillStatus = iota
	BillRejected
)

func (s BillStatus) String() string {
	if s == BillRejected {
		return "rejected"
	}
	return "accepted"
}

// Decision is a BillStacking handler's verdict on an escrowed bill
type Decision int

const (
	Accept Decision = iota
	Reject
)

func (d Decision) String() string {
	if d == Reject {
		return "reject"
	}
	return "accept"
}

// BillReceivedEvent reports a bill that was stacked or rejected
type BillReceivedEvent struct {
	Status BillStatus
	Bill   currency.Bill
	Err    *ccnet.DeviceError // Rejection reason, nil when accepted
	Time   time.Time
}

// BillStackingEvent reports a bill held in escrow awaiting a decision
type BillStackingEvent struct {
	Bill currency.Bill
	Time time.Time
}

// CassetteEvent reports a drop cassette transition
type CassetteEvent struct {
	Status CassetteStatus
	Time   time.Time
}

// BillReceivedHandler is notified of stacked and rejected bills
type BillReceivedHandler func(BillReceivedEvent)

// BillStackingHandler decides whether an escrowed bill is stacked.
// It runs on the poll goroutine with the exchange lock released, so it may
// call Controller methods; pass ctx to them. It must return before ctx
// expires.
type BillStackingHandler func(ctx context.Context, e BillStackingEvent) Decision

// CassetteHandler is notified when the cassette is removed or replaced
type CassetteHandler func(CassetteEvent)

// dispatcher holds the subscriber lists. Registration is safe while events
// are being dispatched; handlers added mid-dispatch see the next event.
type dispatcher struct {
	log zerolog.Logger

	mu       sync.RWMutex
	received []BillReceivedHandler
	stacking []BillStackingHandler
	cassette []CassetteHandler
}

func (d *dispatcher) onBillReceived(h BillReceivedHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.received = append(d.received, h)
}

func (d *dispatcher) onBillStacking(h BillStackingHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stacking = append(d.stacking, h)
}

func (d *dispatcher) onCassetteStatus(h CassetteHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cassette = append(d.cassette, h)
}

// billReceived invokes every handler in registration order
func (d *dispatcher) billReceived(e BillReceivedEvent) {
	d.mu.RLock()
	handlers := append([]BillReceivedHandler(nil), d.received...)
	d.mu.RUnlock()

	for _, h := range handlers {
		d.call("bill-received", func() { h(e) })
	}
}

// decide runs the stacking handlers in order. The first Reject wins and
// skips the rest; no handlers, or none rejecting, means Accept. A panicking
// handler counts as Reject.
func (d *dispatcher) decide(ctx context.Context, e BillStackingEvent) Decision {
	d.mu.RLock()
	handlers := append([]BillStackingHandler(nil), d.stacking...)
	d.mu.RUnlock()

	for i, h := range handlers {
		decision := Reject
		d.call("bill-stacking", func() { decision = h(ctx, e) })
		if decision == Reject {
			d.log.Debug().Int("handler", i).Str("bill", e.Bill.Description).Msg("escrowed bill rejected")
			return Reject
		}
	}
	return Accept
}

func (d *dispatcher) cassetteStatus(e CassetteEvent) {
	d.mu.RLock()
	handlers := append([]CassetteHandler(nil), d.cassette...)
	d.mu.RUnlock()

	for _, h := range handlers {
		d.call("cassette-status", func() { h(e) })
	}
}

// call runs one handler, containing any panic so the remaining handlers
// still run
func (d *dispatcher) call(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("event", event).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	fn()
}
