// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/billstat/pkg/ccnet"
)

// Session defaults
const (
	DefaultTimeout     = 10 * time.Second
	DefaultSettleDelay = 100 * time.Millisecond

	readBufSize = 256
)

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("transport: session closed")

// Config holds the configuration for a session
type Config struct {
	// Timeout bounds each exchange. Defaults to 10s.
	Timeout time.Duration
	// SettleDelay is how long to wait after the first byte of a response
	// burst before handing it over. Defaults to 100ms.
	SettleDelay time.Duration
	// Logger receives frame traces at debug level
	Logger zerolog.Logger
	// Stats, if set, is updated with every exchange
	Stats *ccnet.Statistics
	// Tap, if set, is called with every frame written or received
	Tap func(dir ccnet.Direction, frame []byte)
}

// Session performs synchronized request/response exchanges over a
// connection.
//
// A reader goroutine collects incoming bytes into a shared buffer. The first
// byte of a burst arms a settle timer; when it fires, or as soon as the
// buffer holds the length declared by the frame header, the waiting exchange
// is released. Only one exchange may be waiting at a time; concurrent
// callers are serialized.
type Session struct {
	conn Connection
	cfg  Config
	log  zerolog.Logger

	exchangeMu sync.Mutex
	writeMu    sync.Mutex

	mu     sync.Mutex
	buf    []byte
	gen    uint64 // Incremented on every discard so stale timers are ignored
	armed  bool
	ready  chan struct{}
	closed chan struct{}

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewSession starts reading from conn and returns the session
func NewSession(conn Connection, cfg Config) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	s := &Session{
		conn:   conn,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "transport").Logger(),
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Exchange writes frame and waits for the response.
//
// Bytes left over from earlier traffic are discarded first. A timeout of
// zero uses the configured default. When no bytes arrive, or the collected
// bytes fail the CRC check, the error matches ccnet.ErrChecksumTimeout.
func (s *Session) Exchange(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, error) {
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	if s.isClosed() {
		return nil, ErrClosed
	}
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}

	s.discard()
	if err := s.write(frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
	case <-timer.C:
	case <-ctx.Done():
		s.discard()
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrClosed
	}

	resp := s.take()
	command := commandOf(frame)

	if len(resp) == 0 {
		s.recordExchange(nil)
		s.log.Debug().Str("cmd", command).Dur("timeout", timeout).Msg("no response")
		return nil, ccnet.ErrChecksumTimeout.Wrap(fmt.Errorf("no response to %s within %s", command, timeout))
	}

	s.tap(ccnet.DirectionRx, resp)

	parsed, err := ccnet.ParseFrame(resp)
	if s.cfg.Stats != nil {
		var anomalies []ccnet.ValidationError
		if err == nil && len(frame) > 3 {
			anomalies = ccnet.ValidateResponse(parsed, frame[3])
		}
		s.cfg.Stats.Update(parsed, err, anomalies)
	}
	if err != nil {
		s.recordExchange(nil)
		s.log.Debug().Str("cmd", command).Str("hex", ccnet.FormatHex(resp)).Err(err).Msg("invalid response")
		return nil, ccnet.ErrChecksumTimeout.Wrap(fmt.Errorf("response to %s: %w", command, err))
	}

	s.recordExchange(resp)
	s.log.Debug().Str("cmd", command).Str("status", parsed.Status().String()).Str("hex", ccnet.FormatHex(resp)).Msg("rx")
	return resp, nil
}

// Send writes frame without waiting for a response
func (s *Session) Send(frame []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.write(frame)
}

// Close closes the connection and stops the reader. Safe to call repeatedly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Done is closed once the reader has stopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.log.Debug().Str("cmd", commandOf(frame)).Str("hex", ccnet.FormatHex(frame)).Msg("tx")
	s.tap(ccnet.DirectionTx, frame)

	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", commandOf(frame), err)
	}
	if s.cfg.Stats != nil {
		s.cfg.Stats.RecordSent(frame)
	}
	return nil
}

func (s *Session) readLoop() {
	defer close(s.done)

	buf := make([]byte, readBufSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.receive(buf[:n])
		}
		if err != nil {
			if !s.isClosed() {
				s.log.Warn().Err(err).Msg("read failed, closing session")
				_ = s.Close()
			}
			return
		}
	}
}

// receive appends a chunk to the shared buffer and signals the waiter when
// the burst is complete
func (s *Session) receive(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, chunk...)

	if frameComplete(s.buf) {
		s.signal()
		return
	}
	if !s.armed {
		s.armed = true
		gen := s.gen
		time.AfterFunc(s.cfg.SettleDelay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.gen == gen {
				s.signal()
			}
		})
	}
}

// signal releases the waiter. Caller must hold s.mu.
func (s *Session) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// discard drops buffered bytes, pending signals and armed timers
func (s *Session) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) > 0 {
		s.log.Debug().Str("hex", ccnet.FormatHex(s.buf)).Msg("discarding stale bytes")
	}
	s.reset()
	select {
	case <-s.ready:
	default:
	}
}

// take removes the collected response from the buffer. Bytes beyond the
// declared frame length are dropped.
func (s *Session) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := s.buf
	if len(resp) >= 3 && resp[0] == ccnet.SyncByte {
		if lng := int(resp[2]); lng >= ccnet.MinFrameSize && lng < len(resp) {
			resp = resp[:lng]
		}
	}
	out := make([]byte, len(resp))
	copy(out, resp)
	s.reset()
	return out
}

// reset clears the buffer state. Caller must hold s.mu.
func (s *Session) reset() {
	s.buf = s.buf[:0]
	s.armed = false
	s.gen++
}

func (s *Session) tap(dir ccnet.Direction, frame []byte) {
	if s.cfg.Tap != nil {
		s.cfg.Tap(dir, frame)
	}
}

func (s *Session) recordExchange(resp []byte) {
	if s.cfg.Stats != nil {
		s.cfg.Stats.RecordExchange(resp)
	}
}

// frameComplete reports whether buf starts with a frame whose declared
// length has fully arrived
func frameComplete(buf []byte) bool {
	if len(buf) < 3 || buf[0] != ccnet.SyncByte {
		return false
	}
	lng := int(buf[2])
	return lng >= ccnet.MinFrameSize && len(buf) >= lng
}

func commandOf(frame []byte) string {
	if len(frame) < ccnet.HeaderSize {
		return "UNKNOWN"
	}
	return ccnet.FormatCommand(frame[3])
}
