// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package validator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/currency"
	"github.com/Thermoquad/billstat/pkg/transport"
)

// ============================================================
// Connect Tests
// ============================================================

func TestConnect_OpenFailure(t *testing.T) {
	c := New(WithOpener(func(string, int) (transport.Connection, error) {
		return nil, errors.New("no such device")
	}))

	err := c.Connect("/dev/ttyUSB9", currency.Romanian())
	require.Error(t, err)
	assert.ErrorIs(t, err, ccnet.ErrConnection)
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.LastError(), ccnet.ErrConnection)
}

func TestConnect_PassesLineSettings(t *testing.T) {
	var gotName string
	var gotBaud int
	dev := newFakeDevice()
	c := New(
		WithBaudRate(19200),
		WithOpener(func(name string, baud int) (transport.Connection, error) {
			gotName, gotBaud = name, baud
			return dev, nil
		}),
	)
	defer c.Teardown()

	require.NoError(t, c.Connect("/dev/ttyS0", currency.Romanian()))
	assert.Equal(t, "/dev/ttyS0", gotName)
	assert.Equal(t, 19200, gotBaud)
	assert.True(t, c.IsConnected())
	assert.Nil(t, c.LastError())
}

func TestNotConnected(t *testing.T) {
	c := New()
	ctx := context.Background()

	assert.ErrorIs(t, c.PowerUp(ctx), ccnet.ErrNotConnected)
	assert.ErrorIs(t, c.Enable(ctx), ccnet.ErrNotConnected)
	assert.ErrorIs(t, c.Disable(ctx), ccnet.ErrNotConnected)
	assert.ErrorIs(t, c.StartListening(ctx), ccnet.ErrNotConnected)

	// Never panics, even when nothing is open
	c.Teardown()
}

// ============================================================
// Power-Up Tests
// ============================================================

func TestPowerUp_Handshake(t *testing.T) {
	c, dev := newTestController(t)

	require.NoError(t, c.PowerUp(context.Background()))

	assert.Equal(t, []uint8{
		ccnet.CmdPoll, ccnet.CmdAck,
		ccnet.CmdReset,
		ccnet.CmdPoll, ccnet.CmdAck,
		ccnet.CmdGetStatus, ccnet.CmdAck,
		ccnet.CmdSetSecurity,
		ccnet.CmdIdentification, ccnet.CmdAck,
		ccnet.CmdPoll, ccnet.CmdAck,
		ccnet.CmdPoll, ccnet.CmdAck,
	}, dev.Commands())

	assert.Equal(t, PoweredUp, c.State().Power)
	assert.Equal(t, "SM-RU1353", c.Identity().PartNumber)
	assert.Equal(t, "41K012345678", c.Identity().SerialNumber)
	assert.Empty(t, dev.DecodeErrors())
}

func TestPowerUp_GetStatusNonZero(t *testing.T) {
	c, dev := newTestController(t)
	dev.respond(ccnet.CmdGetStatus, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01)

	err := c.PowerUp(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ccnet.ErrStatusCheck)
	assert.Equal(t, PoweredDown, c.State().Power)
	assert.NotContains(t, dev.Commands(), uint8(ccnet.CmdSetSecurity))
	assert.ErrorIs(t, c.LastError(), ccnet.ErrStatusCheck)
}

func TestPowerUp_DeviceFault(t *testing.T) {
	c, dev := newTestController(t)
	dev.queuePolls([]byte{byte(ccnet.StatusValidatorJammed)})

	err := c.PowerUp(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ccnet.Lookup(ccnet.CodeValidatorJammed))
	assert.Equal(t, []uint8{ccnet.CmdPoll, ccnet.CmdNak}, dev.Commands())
	assert.Equal(t, PoweredDown, c.State().Power)
}

func TestPowerUp_GenericFailureSubCode(t *testing.T) {
	c, dev := newTestController(t)
	dev.queuePolls([]byte{byte(ccnet.StatusGenericFailure), ccnet.FailureOpticCanal})

	err := c.PowerUp(context.Background())
	assert.ErrorIs(t, err, ccnet.Lookup(ccnet.CodeOpticCanal))
}

func TestPowerUp_ResetNotAcknowledged(t *testing.T) {
	c, dev := newTestController(t)
	dev.respond(ccnet.CmdReset, ccnet.CmdNak)

	err := c.PowerUp(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ccnet.ErrHandshake)
	assert.Equal(t, PoweredDown, c.State().Power)
}

func TestPowerUp_SecurityNotAcknowledged(t *testing.T) {
	c, dev := newTestController(t)
	dev.respond(ccnet.CmdSetSecurity, byte(ccnet.StatusIllegalCommand))

	err := c.PowerUp(context.Background())
	assert.ErrorIs(t, err, ccnet.ErrHandshake)
	assert.NotContains(t, dev.Commands(), uint8(ccnet.CmdIdentification))
}

func TestPowerUp_Timeout(t *testing.T) {
	c, dev := newTestController(t, WithExchangeTimeout(30*time.Millisecond))
	dev.setSilent(true)

	err := c.PowerUp(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ccnet.ErrChecksumTimeout)
	assert.Equal(t, PoweredDown, c.State().Power)
}

// ============================================================
// Enable / Disable Tests
// ============================================================

func TestEnable_NotListening(t *testing.T) {
	c, _ := newTestController(t)

	err := c.Enable(context.Background())
	assert.ErrorIs(t, err, ccnet.ErrNotListening)
	assert.False(t, c.State().Accepting)
}

func TestEnable(t *testing.T) {
	c, dev := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.StartListening(ctx))
	require.NoError(t, c.Enable(ctx))
	assert.True(t, c.State().Accepting)

	found := false
	for _, w := range dev.Writes() {
		if len(w) > 3 && w[3] == ccnet.CmdEnableBillTypes {
			assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, w[4:10])
			found = true
		}
	}
	assert.True(t, found, "ENABLE_BILL_TYPES not written")

	require.NoError(t, c.StopListening(ctx))
	assert.False(t, c.State().Accepting)
	assert.False(t, c.State().Listening)

	last := dev.Writes()[len(dev.Writes())-1]
	assert.Equal(t, ccnet.DisableAll().Raw(), last)
}

func TestEnable_Failure(t *testing.T) {
	c, dev := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.StartListening(ctx))

	dev.respond(ccnet.CmdEnableBillTypes, ccnet.CmdNak)

	err := c.Enable(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ccnet.ErrEnable)
	assert.ErrorIs(t, err, ccnet.ErrHandshake)
	assert.False(t, c.State().Accepting)
}

func TestDisable_NotAcknowledged(t *testing.T) {
	c, dev := newTestController(t)
	dev.respond(ccnet.CmdEnableBillTypes, ccnet.CmdNak)

	err := c.Disable(context.Background())
	assert.ErrorIs(t, err, ccnet.ErrHandshake)
	assert.False(t, c.State().Accepting)
	assert.True(t, c.IsConnected())
}

func TestLock_HonorsContext(t *testing.T) {
	c, dev := newTestController(t)
	require.NoError(t, c.StartListening(context.Background()))

	require.NoError(t, c.acquire(context.Background()))
	defer c.release()
	dev.reset()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Enable(ctx)
	assert.ErrorIs(t, err, ccnet.ErrEnable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = c.Disable(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// Nothing reached the wire while the lock was held
	assert.Empty(t, dev.Commands())
}

func TestEnable_ConcurrentStopListening(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		c, dev := newTestController(t)
		require.NoError(t, c.StartListening(ctx))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := c.Enable(ctx); err != nil {
				assert.ErrorIs(t, err, ccnet.ErrNotListening)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, c.StopListening(ctx))
		}()
		wg.Wait()

		state := c.State()
		assert.False(t, state.Listening, "round %d", i)
		assert.False(t, state.Accepting, "round %d", i)

		// Acceptance always ends disabled on the wire
		writes := dev.Writes()
		require.NotEmpty(t, writes)
		assert.Equal(t, ccnet.DisableAll().Raw(), writes[len(writes)-1], "round %d", i)
	}
}

// ============================================================
// Poll Loop Tests
// ============================================================

// startPolling powers up, queues the poll responses and starts the loop
func startPolling(t *testing.T, c *Controller, dev *fakeDevice, polls ...[]byte) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.PowerUp(ctx))
	dev.reset()
	dev.queuePolls(polls...)
	require.NoError(t, c.StartListening(ctx))
	require.Eventually(t, func() bool { return dev.pollsLeft() == 0 }, 2*time.Second, time.Millisecond)
}

func TestPoll_CassetteEdgeTriggered(t *testing.T) {
	c, dev := newTestController(t)

	var mu sync.Mutex
	var events []CassetteStatus
	c.OnCassetteStatus(func(e CassetteEvent) {
		mu.Lock()
		events = append(events, e.Status)
		mu.Unlock()
	})

	removed := []byte{byte(ccnet.StatusDropCassetteOutOfPosition)}
	back := []byte{byte(ccnet.StatusInitialize)}
	startPolling(t, c, dev, removed, removed, back, back)
	require.NoError(t, c.StopListening(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []CassetteStatus{CassetteRemoved, CassetteInPlace}, events)
	assert.Equal(t, CassetteInPlace, c.State().Cassette)
	assert.ErrorIs(t, c.LastError(), ccnet.ErrStatusCheck)
}

func TestPoll_EscrowVeto(t *testing.T) {
	escrow := []byte{byte(ccnet.StatusEscrowPosition), 0x02}

	tests := []struct {
		name     string
		handlers []BillStackingHandler
		expected uint8
	}{
		{"no handlers", nil, ccnet.CmdStack},
		{"accepting handler", []BillStackingHandler{
			func(context.Context, BillStackingEvent) Decision { return Accept },
		}, ccnet.CmdStack},
		{"rejecting handler", []BillStackingHandler{
			func(context.Context, BillStackingEvent) Decision { return Reject },
		}, ccnet.CmdReturn},
		{"second handler rejects", []BillStackingHandler{
			func(context.Context, BillStackingEvent) Decision { return Accept },
			func(context.Context, BillStackingEvent) Decision { return Reject },
		}, ccnet.CmdReturn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, dev := newTestController(t)

			var mu sync.Mutex
			var bills []currency.Bill
			for _, h := range tt.handlers {
				h := h
				c.OnBillStacking(func(ctx context.Context, e BillStackingEvent) Decision {
					mu.Lock()
					bills = append(bills, e.Bill)
					mu.Unlock()
					return h(ctx, e)
				})
			}

			startPolling(t, c, dev, escrow)
			require.NoError(t, c.StopListening(context.Background()))

			cmds := withoutAcks(dev.Commands())
			require.Contains(t, cmds, tt.expected)
			if tt.expected == ccnet.CmdReturn {
				assert.NotContains(t, cmds, uint8(ccnet.CmdStack))
			} else {
				assert.NotContains(t, cmds, uint8(ccnet.CmdReturn))
			}

			// The follow-up comes straight after the escrow POLL and its ACK
			all := dev.Commands()
			for i, cmd := range all {
				if cmd == tt.expected {
					require.GreaterOrEqual(t, i, 2)
					assert.Equal(t, uint8(ccnet.CmdAck), all[i-1])
					assert.Equal(t, uint8(ccnet.CmdPoll), all[i-2])
				}
			}

			mu.Lock()
			defer mu.Unlock()
			for _, b := range bills {
				assert.Equal(t, "5 RON", b.Description)
			}
		})
	}
}

func TestPoll_FirstRejectSkipsRemainingHandlers(t *testing.T) {
	c, dev := newTestController(t)

	var calls []string
	var mu sync.Mutex
	record := func(name string, d Decision) BillStackingHandler {
		return func(context.Context, BillStackingEvent) Decision {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			return d
		}
	}
	c.OnBillStacking(record("first", Accept))
	c.OnBillStacking(record("second", Reject))
	c.OnBillStacking(record("third", Accept))

	startPolling(t, c, dev, []byte{byte(ccnet.StatusEscrowPosition), 0x00})
	require.NoError(t, c.StopListening(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestPoll_BillStacked(t *testing.T) {
	c, dev := newTestController(t)

	received := make(chan BillReceivedEvent, 4)
	c.OnBillReceived(func(e BillReceivedEvent) { received <- e })

	startPolling(t, c, dev, []byte{byte(ccnet.StatusBillStacked), 0x05})

	select {
	case e := <-received:
		assert.Equal(t, BillAccepted, e.Status)
		assert.Equal(t, 50, e.Bill.Value)
		assert.Nil(t, e.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("no BillReceived event")
	}
}

func TestPoll_BillRejected(t *testing.T) {
	c, dev := newTestController(t)

	received := make(chan BillReceivedEvent, 4)
	c.OnBillReceived(func(e BillReceivedEvent) { received <- e })

	startPolling(t, c, dev, []byte{byte(ccnet.StatusRejecting), ccnet.RejectInhibit})

	select {
	case e := <-received:
		assert.Equal(t, BillRejected, e.Status)
		assert.Equal(t, currency.DefaultInvalidBill, e.Bill)
		require.NotNil(t, e.Err)
		assert.Equal(t, ccnet.RejectInhibit, e.Err.Code)
		assert.Equal(t, "Rejecting due to Inhibit", e.Err.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no BillReceived event")
	}
}

func TestPoll_DeviceFaultIsNaked(t *testing.T) {
	c, dev := newTestController(t)

	startPolling(t, c, dev, []byte{byte(ccnet.StatusDropCassetteFull)})
	require.NoError(t, c.StopListening(context.Background()))

	cmds := dev.Commands()
	require.GreaterOrEqual(t, len(cmds), 2)
	assert.Equal(t, []uint8{ccnet.CmdPoll, ccnet.CmdNak}, cmds[:2])
	assert.ErrorIs(t, c.LastError(), ccnet.Lookup(ccnet.CodeStackerFull))
}

func TestPoll_IdleIsNotAcknowledged(t *testing.T) {
	c, dev := newTestController(t)

	startPolling(t, c, dev)
	require.Eventually(t, func() bool { return len(dev.Commands()) >= 3 }, 2*time.Second, time.Millisecond)
	c.halt()

	for _, cmd := range dev.Commands() {
		assert.Equal(t, uint8(ccnet.CmdPoll), cmd)
	}
}

func TestPoll_HandlerPanicKeepsLoopRunning(t *testing.T) {
	c, dev := newTestController(t)

	received := make(chan BillReceivedEvent, 4)
	c.OnBillReceived(func(BillReceivedEvent) { panic("boom") })
	c.OnBillReceived(func(e BillReceivedEvent) { received <- e })

	stacked := []byte{byte(ccnet.StatusBillStacked), 0x00}
	startPolling(t, c, dev, stacked, stacked)

	for i := 0; i < 2; i++ {
		select {
		case e := <-received:
			assert.Equal(t, 1, e.Bill.Value)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
	assert.True(t, c.State().Listening)
}

func TestPoll_TimeoutKeepsLoopRunning(t *testing.T) {
	c, dev := newTestController(t, WithExchangeTimeout(20*time.Millisecond))
	require.NoError(t, c.StartListening(context.Background()))

	dev.setSilent(true)
	require.Eventually(t, func() bool {
		return errors.Is(c.LastError(), ccnet.ErrChecksumTimeout)
	}, 2*time.Second, time.Millisecond)

	received := make(chan BillReceivedEvent, 1)
	c.OnBillReceived(func(e BillReceivedEvent) { received <- e })
	dev.queuePolls([]byte{byte(ccnet.StatusBillStacked), 0x03})
	dev.setSilent(false)

	select {
	case e := <-received:
		assert.Equal(t, 10, e.Bill.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not recover after timeouts")
	}
}

func TestPoll_StackingHandlerCallsController(t *testing.T) {
	c, dev := newTestController(t)

	disabled := make(chan error, 1)
	c.OnBillStacking(func(ctx context.Context, e BillStackingEvent) Decision {
		disabled <- c.Disable(ctx)
		return Accept
	})

	startPolling(t, c, dev, []byte{byte(ccnet.StatusEscrowPosition), 0x02})

	select {
	case err := <-disabled:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Disable from stacking handler did not return")
	}

	require.Eventually(t, func() bool {
		return indexOf(dev.Commands(), ccnet.CmdStack) >= 0
	}, 2*time.Second, time.Millisecond)

	cmds := withoutAcks(dev.Commands())
	assert.Less(t, indexOf(cmds, ccnet.CmdEnableBillTypes), indexOf(cmds, ccnet.CmdStack))
	assert.False(t, c.State().Accepting)
	require.NoError(t, c.StopListening(context.Background()))
}

func TestPoll_StackingHandlerStopsListening(t *testing.T) {
	c, dev := newTestController(t, WithExchangeTimeout(2*time.Second))

	took := make(chan time.Duration, 1)
	c.OnBillStacking(func(ctx context.Context, e BillStackingEvent) Decision {
		start := time.Now()
		assert.NoError(t, c.StopListening(ctx))
		took <- time.Since(start)
		return Reject
	})

	startPolling(t, c, dev, []byte{byte(ccnet.StatusEscrowPosition), 0x02})

	select {
	case d := <-took:
		assert.Less(t, d, time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("StopListening from stacking handler did not return")
	}

	// The escrowed bill is still settled
	require.Eventually(t, func() bool {
		return indexOf(dev.Commands(), ccnet.CmdReturn) >= 0
	}, 2*time.Second, time.Millisecond)
	assert.False(t, c.State().Listening)
	assert.False(t, c.State().Accepting)
}

func TestPoll_BillReceivedHandlerTearsDown(t *testing.T) {
	c, dev := newTestController(t, WithExchangeTimeout(2*time.Second))

	took := make(chan time.Duration, 1)
	c.OnBillReceived(func(BillReceivedEvent) {
		start := time.Now()
		c.Teardown()
		took <- time.Since(start)
	})

	startPolling(t, c, dev, []byte{byte(ccnet.StatusBillStacked), 0x02})

	select {
	case d := <-took:
		assert.Less(t, d, time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("Teardown from BillReceived handler did not return")
	}
	assert.False(t, c.IsConnected())
	assert.True(t, dev.isClosed())
}

// ============================================================
// Serialization Tests
// ============================================================

func TestSerialization_EnableDuringPolling(t *testing.T) {
	c, dev := newTestController(t, WithPollInterval(time.Millisecond))
	ctx := context.Background()
	require.NoError(t, c.StartListening(ctx))

	escrow := []byte{byte(ccnet.StatusEscrowPosition), 0x03}
	for i := 0; i < 10; i++ {
		dev.queuePolls(escrow)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, c.Enable(ctx))
				assert.NoError(t, c.Disable(ctx))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, c.StopListening(ctx))

	// Every write is exactly one complete, valid frame
	assert.Empty(t, dev.DecodeErrors())
	for i, w := range dev.Writes() {
		frames, errs := ccnet.NewDecoder().Decode(w)
		assert.Empty(t, errs, "write %d", i)
		require.Len(t, frames, 1, "write %d: % X", i, w)
		assert.Equal(t, w, frames[0].Raw())
	}
}

// ============================================================
// Teardown Tests
// ============================================================

func TestTeardown(t *testing.T) {
	c, dev := newTestController(t)
	require.NoError(t, c.StartListening(context.Background()))

	c.Teardown()
	assert.False(t, c.IsConnected())
	assert.False(t, c.State().Listening)
	assert.Equal(t, PoweredDown, c.State().Power)

	select {
	case <-dev.closed:
	default:
		t.Fatal("connection not closed")
	}

	// Idempotent
	c.Teardown()
}

func TestTeardown_DisableAndCloseFail(t *testing.T) {
	c, dev := newTestController(t, WithExchangeTimeout(50*time.Millisecond))
	require.NoError(t, c.StartListening(context.Background()))

	dev.setSilent(true)
	dev.failClose(errors.New("port busy"))

	done := make(chan struct{})
	go func() {
		c.Teardown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Teardown did not return")
	}

	state := c.State()
	assert.Equal(t, Disconnected, state.Connection)
	assert.Equal(t, PoweredDown, state.Power)
	assert.False(t, state.Listening)
	assert.False(t, state.Accepting)
	assert.True(t, dev.isClosed())
}

func TestTeardown_LockHeld(t *testing.T) {
	c, dev := newTestController(t, WithExchangeTimeout(50*time.Millisecond))

	require.NoError(t, c.acquire(context.Background()))

	done := make(chan struct{})
	go func() {
		c.Teardown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Teardown blocked on the exchange lock")
	}
	assert.False(t, c.IsConnected())
	assert.True(t, dev.isClosed())

	c.release()
}

func TestTeardown_ThenReconnect(t *testing.T) {
	c, _ := newTestController(t)
	c.Teardown()

	dev := newFakeDevice()
	c.opts.opener = func(string, int) (transport.Connection, error) { return dev, nil }
	require.NoError(t, c.Connect("fake", currency.Romanian()))
	require.NoError(t, c.PowerUp(context.Background()))
}

// ============================================================
// Connection Loss Tests
// ============================================================

func TestConnection_LostWhenReaderStops(t *testing.T) {
	c, dev := newTestController(t)
	require.NoError(t, c.StartListening(context.Background()))

	// Port vanishes underneath the session
	require.NoError(t, dev.Close())

	require.Eventually(t, func() bool { return !c.IsConnected() }, 2*time.Second, time.Millisecond)
	assert.ErrorIs(t, c.LastError(), ccnet.ErrNotConnected)
	assert.False(t, c.State().Accepting)

	err := c.Enable(context.Background())
	assert.ErrorIs(t, err, ccnet.ErrNotConnected)

	// A fresh session is not affected by the old one's watcher
	next := newFakeDevice()
	c.opts.opener = func(string, int) (transport.Connection, error) { return next, nil }
	require.NoError(t, c.Connect("fake", currency.Romanian()))
	require.NoError(t, c.PowerUp(context.Background()))
	assert.True(t, c.IsConnected())
}
