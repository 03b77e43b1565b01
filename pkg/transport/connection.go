// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport carries CCNET frames between the controller and a bill
// validator over a serial port or a serial-over-WebSocket bridge.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Bridge dial limits
const (
	bridgeHandshakeTimeout = 10 * time.Second
	bridgeDialTimeout      = 15 * time.Second
	bridgeCloseGrace       = time.Second
)

// Connection is a byte stream to the validator
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// Opener opens a named connection at the given baud rate
type Opener func(name string, baudRate int) (Connection, error)

// ErrConnectionClosed is returned when reading from a closed bridge connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// ErrUnsupportedBaud is returned for rates a CCNET validator cannot run at
var ErrUnsupportedBaud = errors.New("unsupported baud rate")

// SupportedBaud reports whether CCNET runs at rate
func SupportedBaud(rate int) bool {
	return rate == 9600 || rate == 19200
}

// OpenSerial opens a serial port in 8N1 mode and drops any bytes the driver
// buffered before the open
func OpenSerial(portName string, baudRate int) (Connection, error) {
	if !SupportedBaud(baudRate) {
		return nil, fmt.Errorf("%w: %d (use 9600 or 19200)", ErrUnsupportedBaud, baudRate)
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush serial port %s: %w", portName, err)
	}

	return port, nil
}

// WebSocketConnection is a validator reached through a serial-over-WebSocket
// bridge. Each binary message carries raw line bytes; text messages are
// bridge chatter and skipped.
type WebSocketConnection struct {
	conn *websocket.Conn

	// Reader side, owned by the single reading goroutine
	msg    io.Reader
	closed bool

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	for {
		if w.msg != nil {
			n, err := w.msg.Read(p)
			if err == io.EOF {
				w.msg = nil
				if n == 0 {
					continue
				}
				err = nil
			}
			return n, err
		}

		messageType, r, err := w.conn.NextReader()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, ErrConnectionClosed
			}
			return 0, err
		}
		if messageType == websocket.BinaryMessage {
			w.msg = r
		}
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame to the bridge and closes the socket
func (w *WebSocketConnection) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(bridgeCloseGrace))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}

// OpenWebSocket dials a bridge, with HTTP Basic auth when a username and
// password are given
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: bridgeHandshakeTimeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), bridgeDialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// WebSocketOpener returns an Opener that ignores the port name and baud rate
// and dials the given bridge instead
func WebSocketOpener(wsURL, username, password string, skipSSLVerify bool) Opener {
	return func(string, int) (Connection, error) {
		return OpenWebSocket(wsURL, username, password, skipSSLVerify)
	}
}
