// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/billstat/pkg/transport"
)

// PasswordEnv names the environment variable holding the WebSocket password
const PasswordEnv = "BILLSTAT_PASSWORD"

var errNoConnection = errors.New("either --port or --url must be specified")

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// connectionOpener returns the opener selected by --url or --port. The
// password is requested once, up front, so reconnects never prompt.
func connectionOpener() (transport.Opener, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		return transport.WebSocketOpener(wsURL, wsUsername, password, wsNoSSLVerify), nil
	}

	if portName != "" {
		return transport.OpenSerial, nil
	}

	return nil, errNoConnection
}

// connectionTarget is the name handed to the opener
func connectionTarget() string {
	if wsURL != "" {
		return wsURL
	}
	return portName
}

// connectionInfo describes the selected connection for headers and logs
func connectionInfo() string {
	if wsURL != "" {
		return fmt.Sprintf("WebSocket: %s", wsURL)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate)
}

// OpenConnection opens either a serial or WebSocket connection based on flags
func OpenConnection() (transport.Connection, string, error) {
	open, err := connectionOpener()
	if err != nil {
		return nil, "", err
	}
	conn, err := open(connectionTarget(), baudRate)
	if err != nil {
		return nil, "", err
	}
	return conn, connectionInfo(), nil
}
