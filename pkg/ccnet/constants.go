// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ccnet implements the framing layer of the CCNET protocol spoken by
// CashCode bill validators.
//
// CCNET is a half-duplex, master/slave binary protocol. Every frame carries a
// SYNC byte, the peripheral address, a length byte, a command (or, in a
// response, the first data byte) and a little-endian CRC16. This package
// provides frame encoding, CRC validation, a stream decoder, frame anomaly
// checks, formatting helpers and the device error catalog.
package ccnet

// Framing bytes
const (
	SyncByte          = 0x02
	PeripheralAddress = 0x03 // Bill validator
)

// Frame size limits
const (
	HeaderSize   = 4 // SYNC, ADR, LNG, CMD
	CRCSize      = 2
	MinFrameSize = HeaderSize + CRCSize
	MaxFrameSize = 250 // Largest length representable in the LNG byte
	MaxDataSize  = 0xFFFF - MinFrameSize
)

// CRC-16 configuration (reflected CCITT, a.k.a. KERMIT)
const (
	crcPolynomial = 0x8408
	crcInitial    = 0x0000
)

// Controller commands
const (
	CmdAck             = 0x00
	CmdReset           = 0x30
	CmdGetStatus       = 0x31
	CmdSetSecurity     = 0x32
	CmdPoll            = 0x33
	CmdEnableBillTypes = 0x34
	CmdStack           = 0x35
	CmdReturn          = 0x36
	CmdIdentification  = 0x37
	CmdHold            = 0x38
	CmdNak             = 0xFF
)

// SuccessMarker is the data byte of a bare ACK response.
const SuccessMarker = 0x00

// Status is the first data byte of a POLL response.
type Status byte

// Poll status values
const (
	StatusPowerUp                   Status = 0x10
	StatusPowerUpWithBillValidator  Status = 0x11
	StatusPowerUpWithBillStacker    Status = 0x12
	StatusInitialize                Status = 0x13
	StatusIdling                    Status = 0x14
	StatusAccepting                 Status = 0x15
	StatusStacking                  Status = 0x17
	StatusReturning                 Status = 0x18
	StatusUnitDisabled              Status = 0x19
	StatusHolding                   Status = 0x1A
	StatusDeviceBusy                Status = 0x1B
	StatusRejecting                 Status = 0x1C
	StatusIllegalCommand            Status = 0x30
	StatusDropCassetteFull          Status = 0x41
	StatusDropCassetteOutOfPosition Status = 0x42
	StatusValidatorJammed           Status = 0x43
	StatusDropCassetteJammed        Status = 0x44
	StatusCheated                   Status = 0x45
	StatusPause                     Status = 0x46
	StatusGenericFailure            Status = 0x47
	StatusEscrowPosition            Status = 0x80
	StatusBillStacked               Status = 0x81
	StatusBillReturned              Status = 0x82
)

// Generic failure sub-codes (second data byte after StatusGenericFailure)
const (
	FailureStackMotor            = 0x50
	FailureTransportMotorSpeed   = 0x51
	FailureTransportMotor        = 0x52
	FailureAligningMotor         = 0x53
	FailureInitialCassetteStatus = 0x54
	FailureOpticCanal            = 0x55
	FailureMagneticCanal         = 0x56
	FailureCapacitanceCanal      = 0x5F
)

// Rejection sub-codes (second data byte after StatusRejecting)
const (
	RejectInsertion          = 0x60
	RejectMagnetic           = 0x61
	RejectRemainedBillInHead = 0x62
	RejectMultiplying        = 0x63
	RejectConveying          = 0x64
	RejectIdentification     = 0x65
	RejectVerification       = 0x66
	RejectOptic              = 0x67
	RejectInhibit            = 0x68
	RejectCapacity           = 0x69
	RejectOperation          = 0x6A
	RejectLength             = 0x6C
)

// Response payload sizes
const (
	GetStatusDataSize      = 6
	IdentificationDataSize = 34
	PartNumberSize         = 15
	SerialNumberSize       = 12
	AssetNumberSize        = 7
)

// Direction tells whether a frame was sent by the controller or the device.
type Direction int

const (
	DirectionTx Direction = iota // Controller → validator
	DirectionRx                  // Validator → controller
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateAddress
	stateLength
	stateBody
)
