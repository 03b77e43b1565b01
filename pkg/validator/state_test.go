// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package validator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/currency"
)

func TestNextCassette(t *testing.T) {
	tests := []struct {
		name     string
		current  CassetteStatus
		status   ccnet.Status
		expected CassetteStatus
		changed  bool
	}{
		{"removed from in place", CassetteInPlace, ccnet.StatusDropCassetteOutOfPosition, CassetteRemoved, true},
		{"still removed", CassetteRemoved, ccnet.StatusDropCassetteOutOfPosition, CassetteRemoved, false},
		{"returned", CassetteRemoved, ccnet.StatusInitialize, CassetteInPlace, true},
		{"initialize while in place", CassetteInPlace, ccnet.StatusInitialize, CassetteInPlace, false},
		{"idle while removed", CassetteRemoved, ccnet.StatusIdling, CassetteRemoved, false},
		{"idle while in place", CassetteInPlace, ccnet.StatusIdling, CassetteInPlace, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, changed := NextCassette(tt.current, tt.status)
			assert.Equal(t, tt.expected, next)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestInterpretPoll(t *testing.T) {
	tests := []struct {
		name   string
		status ccnet.Status
		sub    byte
		reply  reply
		event  pollEvent
		code   int
	}{
		{"idle", ccnet.StatusIdling, 0, replyNone, pollEventNone, 0},
		{"unit disabled", ccnet.StatusUnitDisabled, 0, replyAck, pollEventNone, 0},
		{"accepting", ccnet.StatusAccepting, 0, replyAck, pollEventNone, 0},
		{"escrow", ccnet.StatusEscrowPosition, 3, replyAck, pollEventEscrow, 0},
		{"stacked", ccnet.StatusBillStacked, 3, replyAck, pollEventStacked, 0},
		{"rejecting", ccnet.StatusRejecting, ccnet.RejectInsertion, replyAck, pollEventRejected, ccnet.RejectInsertion},
		{"cassette full", ccnet.StatusDropCassetteFull, 0, replyNak, pollEventNone, ccnet.CodeStackerFull},
		{"cassette removed", ccnet.StatusDropCassetteOutOfPosition, 0, replyNak, pollEventNone, ccnet.CodeStatusCheck},
		{"generic failure", ccnet.StatusGenericFailure, ccnet.FailureOpticCanal, replyNak, pollEventNone, ccnet.CodeOpticCanal},
		{"generic failure unknown sub", ccnet.StatusGenericFailure, 0x01, replyNak, pollEventNone, ccnet.CodeUnmapped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := interpretPoll(tt.status, tt.sub)
			assert.Equal(t, tt.reply, step.reply)
			assert.Equal(t, tt.event, step.event)
			if tt.code == 0 {
				assert.Nil(t, step.err)
				return
			}
			require.NotNil(t, step.err)
			assert.Equal(t, tt.code, step.err.Code)
		})
	}
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "powered-up", PoweredUp.String())
	assert.Equal(t, "removed", CassetteRemoved.String())
	assert.Equal(t, "rejected", BillRejected.String())
	assert.Equal(t, "reject", Reject.String())
}

// ============================================================
// Dispatcher Tests
// ============================================================

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := dispatcher{log: zerolog.Nop()}

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		d.onBillReceived(func(BillReceivedEvent) { order = append(order, i) })
	}
	d.billReceived(BillReceivedEvent{})
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestDispatcher_PanicContained(t *testing.T) {
	d := dispatcher{log: zerolog.Nop()}

	called := false
	d.onCassetteStatus(func(CassetteEvent) { panic("boom") })
	d.onCassetteStatus(func(CassetteEvent) { called = true })

	assert.NotPanics(t, func() { d.cassetteStatus(CassetteEvent{Status: CassetteRemoved}) })
	assert.True(t, called)
}

func TestDispatcher_Decide(t *testing.T) {
	bill := BillStackingEvent{Bill: currency.Bill{Code: 2, Value: 5, Description: "5 RON"}}
	ctx := context.Background()

	t.Run("no handlers accept", func(t *testing.T) {
		d := dispatcher{log: zerolog.Nop()}
		assert.Equal(t, Accept, d.decide(ctx, bill))
	})

	t.Run("panicking handler rejects", func(t *testing.T) {
		d := dispatcher{log: zerolog.Nop()}
		d.onBillStacking(func(context.Context, BillStackingEvent) Decision { panic("boom") })
		assert.Equal(t, Reject, d.decide(ctx, bill))
	})

	t.Run("handler sees deadline", func(t *testing.T) {
		d := dispatcher{log: zerolog.Nop()}
		d.onBillStacking(func(ctx context.Context, e BillStackingEvent) Decision {
			if _, ok := ctx.Deadline(); !ok || e.Bill.Value > 1 {
				return Reject
			}
			return Accept
		})

		short, cancel := context.WithTimeout(ctx, DefaultStackingTimeout)
		defer cancel()
		assert.Equal(t, Reject, d.decide(short, bill))
		assert.Equal(t, Reject, d.decide(ctx, BillStackingEvent{Bill: currency.Bill{Value: 1}}))
		assert.Equal(t, Accept, d.decide(short, BillStackingEvent{Bill: currency.Bill{Value: 1}}))
	})
}
