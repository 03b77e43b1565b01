// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package validator

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/billstat/pkg/ccnet"
	"github.com/Thermoquad/billstat/pkg/currency"
	"github.com/Thermoquad/billstat/pkg/transport"
)

// fakeDevice is a scripted bill validator. Every write is decoded; requests
// other than ACK/NAK are answered from the poll queue (POLL) or the response
// table (everything else, defaulting to the ACK marker).
type fakeDevice struct {
	reads   chan []byte
	closed  chan struct{}
	once    sync.Once
	pending []byte

	mu         sync.Mutex
	decoder    *ccnet.Decoder
	writes     [][]byte
	commands   []uint8
	decodeErrs []error
	polls      [][]byte
	responses  map[uint8][]byte
	silent     bool
	closeErr   error
}

func newFakeDevice() *fakeDevice {
	ident := append([]byte("SM-RU1353      41K012345678"), 1, 2, 3, 4, 5, 6, 7)
	return &fakeDevice{
		reads:   make(chan []byte, 1024),
		closed:  make(chan struct{}),
		decoder: ccnet.NewDecoder(),
		responses: map[uint8][]byte{
			ccnet.CmdGetStatus:      make([]byte, ccnet.GetStatusDataSize),
			ccnet.CmdIdentification: ident,
		},
	}
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if len(d.pending) == 0 {
		select {
		case chunk := <-d.reads:
			d.pending = chunk
		case <-d.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.writes = append(d.writes, append([]byte(nil), p...))
	frames, errs := d.decoder.Decode(p)
	d.decodeErrs = append(d.decodeErrs, errs...)

	for _, f := range frames {
		d.commands = append(d.commands, f.Command())
		if f.IsAck() || f.IsNak() || d.silent {
			continue
		}

		payload := []byte{ccnet.SuccessMarker}
		if f.Command() == ccnet.CmdPoll {
			payload = []byte{byte(ccnet.StatusIdling)}
			if len(d.polls) > 0 {
				payload, d.polls = d.polls[0], d.polls[1:]
			}
		} else if r, ok := d.responses[f.Command()]; ok {
			payload = r
		}
		d.reads <- ccnet.MustEncode(payload[0], payload[1:])
	}
	return len(p), nil
}

func (d *fakeDevice) Close() error {
	d.once.Do(func() { close(d.closed) })

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeErr
}

// queuePolls appends POLL responses (status byte first)
func (d *fakeDevice) queuePolls(polls ...[]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.polls = append(d.polls, polls...)
}

func (d *fakeDevice) respond(command uint8, payload ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses[command] = payload
}

func (d *fakeDevice) setSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

// failClose makes Close report err
func (d *fakeDevice) failClose(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeErr = err
}

func (d *fakeDevice) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

func (d *fakeDevice) pollsLeft() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.polls)
}

func (d *fakeDevice) Commands() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint8(nil), d.commands...)
}

func (d *fakeDevice) Writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.writes...)
}

func (d *fakeDevice) DecodeErrors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.decodeErrs...)
}

func (d *fakeDevice) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = nil
	d.commands = nil
}

// newTestController returns a controller connected to a fresh fake device
func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeDevice) {
	t.Helper()

	dev := newFakeDevice()
	opts = append([]Option{
		WithOpener(func(string, int) (transport.Connection, error) { return dev, nil }),
		WithExchangeTimeout(500 * time.Millisecond),
		WithPollInterval(5 * time.Millisecond),
		WithSettleDelay(5 * time.Millisecond),
	}, opts...)

	c := New(opts...)
	require.NoError(t, c.Connect("fake", currency.Romanian()))
	t.Cleanup(c.Teardown)
	return c, dev
}

// indexOf returns the position of the first cmd in cmds, or -1
func indexOf(cmds []uint8, cmd uint8) int {
	for i, c := range cmds {
		if c == cmd {
			return i
		}
	}
	return -1
}

// withoutAcks filters ACK and NAK out of a command list
func withoutAcks(cmds []uint8) []uint8 {
	var out []uint8
	for _, c := range cmds {
		if c != ccnet.CmdAck && c != ccnet.CmdNak {
			out = append(out, c)
		}
	}
	return out
}
