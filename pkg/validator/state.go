// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package validator

import "github.com/Thermoquad/billstat/pkg/ccnet"

// ConnectionState tells whether a channel is open
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

func (s ConnectionState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// PowerState tells whether the power-up handshake has completed
type PowerState int

const (
	PoweredDown PowerState = iota
	PoweredUp
)

func (s PowerState) String() string {
	if s == PoweredUp {
		return "powered-up"
	}
	return "powered-down"
}

// CassetteStatus is the drop cassette presence
type CassetteStatus int

const (
	CassetteInPlace CassetteStatus = iota
	CassetteRemoved
)

func (s CassetteStatus) String() string {
	if s == CassetteRemoved {
		return "removed"
	}
	return "in-place"
}

// State is a snapshot of the controller session
type State struct {
	Connection ConnectionState
	Power      PowerState
	Listening  bool
	Accepting  bool
	Cassette   CassetteStatus
	LastError  *ccnet.DeviceError
}

// NextCassette returns the cassette status after a poll status and whether
// it changed. Only the out-of-position status removes the cassette, and only
// an initialize status while removed puts it back.
func NextCassette(current CassetteStatus, status ccnet.Status) (CassetteStatus, bool) {
	switch {
	case status == ccnet.StatusDropCassetteOutOfPosition && current != CassetteRemoved:
		return CassetteRemoved, true
	case status == ccnet.StatusInitialize && current == CassetteRemoved:
		return CassetteInPlace, true
	default:
		return current, false
	}
}

type reply int

const (
	replyNone reply = iota
	replyAck
	replyNak
)

type pollEvent int

const (
	pollEventNone pollEvent = iota
	pollEventRejected
	pollEventEscrow
	pollEventStacked
)

// pollStep is the controller's reaction to one POLL response
type pollStep struct {
	reply reply
	event pollEvent
	err   *ccnet.DeviceError
}

// interpretPoll decides the reply and event for a poll status.
// Cassette transitions are decided separately by NextCassette.
func interpretPoll(status ccnet.Status, sub byte) pollStep {
	if status == ccnet.StatusIdling {
		return pollStep{reply: replyNone}
	}
	if devErr, ok := ccnet.PollError(status, sub); ok {
		return pollStep{reply: replyNak, err: devErr}
	}

	switch status {
	case ccnet.StatusRejecting:
		return pollStep{reply: replyAck, event: pollEventRejected, err: ccnet.RejectionReason(sub)}
	case ccnet.StatusEscrowPosition:
		return pollStep{reply: replyAck, event: pollEventEscrow}
	case ccnet.StatusBillStacked:
		return pollStep{reply: replyAck, event: pollEventStacked}
	default:
		return pollStep{reply: replyAck}
	}
}
