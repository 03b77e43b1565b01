// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

import (
	"fmt"
	"math"
	"sort"
)

// Kind groups catalog entries by the failure they describe
type Kind int

const (
	KindUnmapped Kind = iota
	KindConnection
	KindNotConnected
	KindNotListening
	KindHandshake
	KindDeviceStatus
	KindChecksumTimeout
	KindEnable
	KindRejection
)

var kindNames = map[Kind]string{
	KindUnmapped:        "unmapped",
	KindConnection:      "connection",
	KindNotConnected:    "not-connected",
	KindNotListening:    "not-listening",
	KindHandshake:       "handshake",
	KindDeviceStatus:    "device-status",
	KindChecksumTimeout: "checksum-timeout",
	KindEnable:          "enable",
	KindRejection:       "rejection",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DeviceError is a catalogued driver or device failure with a stable code.
//
// Two DeviceErrors match under errors.Is when their codes are equal, so the
// sentinels below can be used to test errors returned by the driver.
type DeviceError struct {
	Code    int
	Kind    Kind
	Message string
	Err     error // Underlying cause, if any
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (code %d): %v", e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DeviceError with the same code
func (e *DeviceError) Is(target error) bool {
	t, ok := target.(*DeviceError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of the entry carrying err as its cause
func (e *DeviceError) Wrap(err error) *DeviceError {
	c := *e
	c.Err = err
	return &c
}

// Catalog codes
const (
	CodeUnknown          = 100000
	CodeConnection       = 100010
	CodeNotConnected     = 100020
	CodeNotListening     = 100025
	CodeEnable           = 100030
	CodeIllegalCommand   = 100040
	CodeAckNotReceived   = 100050
	CodeNoInitialize     = 100060
	CodeStatusCheck      = 100070
	CodeStackerFull      = 100080
	CodeValidatorJammed  = 100090
	CodeCassetteJammed   = 100100
	CodeCheated          = 100110
	CodePause            = 100120
	CodeStackMotor       = 100130
	CodeTransportSpeed   = 100140
	CodeTransportMotor   = 100150
	CodeAligningMotor    = 100160
	CodeCassetteStatus   = 100170
	CodeOpticCanal       = 100180
	CodeMagneticCanal    = 100190
	CodeCapacitanceCanal = 100200
	CodeChecksumTimeout  = 100210
	CodeUnmapped         = math.MaxInt32
)

var unmapped = DeviceError{Code: CodeUnmapped, Kind: KindUnmapped, Message: "Unmapped error occurred"}

var catalog = map[int]DeviceError{
	CodeUnknown:          {Kind: KindUnmapped, Message: "Unknown error"},
	CodeConnection:       {Kind: KindConnection, Message: "Error opening the communication port"},
	CodeNotConnected:     {Kind: KindNotConnected, Message: "Communication port is not open"},
	CodeNotListening:     {Kind: KindNotListening, Message: "Validator is not listening"},
	CodeEnable:           {Kind: KindEnable, Message: "Error sending the bill enable command"},
	CodeIllegalCommand:   {Kind: KindDeviceStatus, Message: "Command rejected by the validator. POWER UP was not received"},
	CodeAckNotReceived:   {Kind: KindHandshake, Message: "Command rejected by the validator. ACK was not received"},
	CodeNoInitialize:     {Kind: KindHandshake, Message: "Command rejected by the validator. INITIALIZE was not received"},
	CodeStatusCheck:      {Kind: KindDeviceStatus, Message: "Status check failed. The drop cassette is removed"},
	CodeStackerFull:      {Kind: KindDeviceStatus, Message: "Status check failed. The drop cassette is full"},
	CodeValidatorJammed:  {Kind: KindDeviceStatus, Message: "Status check failed. A bill is jammed in the validator"},
	CodeCassetteJammed:   {Kind: KindDeviceStatus, Message: "Status check failed. A bill is jammed in the drop cassette"},
	CodeCheated:          {Kind: KindDeviceStatus, Message: "Status check failed. Cheat attempt detected"},
	CodePause:            {Kind: KindDeviceStatus, Message: "Status check failed. The previous bill is still in the transport path"},
	CodeStackMotor:       {Kind: KindDeviceStatus, Message: "Validator failure. Stack motor failure"},
	CodeTransportSpeed:   {Kind: KindDeviceStatus, Message: "Validator failure. Transport motor speed failure"},
	CodeTransportMotor:   {Kind: KindDeviceStatus, Message: "Validator failure. Transport motor failure"},
	CodeAligningMotor:    {Kind: KindDeviceStatus, Message: "Validator failure. Aligning motor failure"},
	CodeCassetteStatus:   {Kind: KindDeviceStatus, Message: "Validator failure. Initial cassette status failure"},
	CodeOpticCanal:       {Kind: KindDeviceStatus, Message: "Validator failure. Optic canal failure"},
	CodeMagneticCanal:    {Kind: KindDeviceStatus, Message: "Validator failure. Magnetic canal failure"},
	CodeCapacitanceCanal: {Kind: KindDeviceStatus, Message: "Validator failure. Capacitance canal failure"},
	CodeChecksumTimeout:  {Kind: KindChecksumTimeout, Message: "No valid response. Checksum mismatch or timeout"},

	RejectInsertion:          {Kind: KindRejection, Message: "Rejecting due to Insertion"},
	RejectMagnetic:           {Kind: KindRejection, Message: "Rejecting due to Magnetic"},
	RejectRemainedBillInHead: {Kind: KindRejection, Message: "Rejecting due to Remained bill in head"},
	RejectMultiplying:        {Kind: KindRejection, Message: "Rejecting due to Multiplying"},
	RejectConveying:          {Kind: KindRejection, Message: "Rejecting due to Conveying"},
	RejectIdentification:     {Kind: KindRejection, Message: "Rejecting due to Identification1"},
	RejectVerification:       {Kind: KindRejection, Message: "Rejecting due to Verification"},
	RejectOptic:              {Kind: KindRejection, Message: "Rejecting due to Optic"},
	RejectInhibit:            {Kind: KindRejection, Message: "Rejecting due to Inhibit"},
	RejectCapacity:           {Kind: KindRejection, Message: "Rejecting due to Capacity"},
	RejectOperation:          {Kind: KindRejection, Message: "Rejecting due to Operation"},
	RejectLength:             {Kind: KindRejection, Message: "Rejecting due to Length"},
}

// Sentinels for errors.Is
var (
	ErrConnection      = Lookup(CodeConnection)
	ErrNotConnected    = Lookup(CodeNotConnected)
	ErrNotListening    = Lookup(CodeNotListening)
	ErrHandshake       = Lookup(CodeAckNotReceived)
	ErrStatusCheck     = Lookup(CodeStatusCheck)
	ErrEnable          = Lookup(CodeEnable)
	ErrChecksumTimeout = Lookup(CodeChecksumTimeout)
	ErrUnmapped        = Lookup(CodeUnmapped)
)

// Lookup returns a copy of the catalog entry for code.
// Codes outside the catalog resolve to the unmapped fallback.
func Lookup(code int) *DeviceError {
	entry, ok := catalog[code]
	if !ok {
		e := unmapped
		return &e
	}
	entry.Code = code
	return &entry
}

// Known reports whether code has its own catalog entry
func Known(code int) bool {
	_, ok := catalog[code]
	return ok
}

// Catalog returns every catalog entry ordered by code, fallback last
func Catalog() []DeviceError {
	entries := make([]DeviceError, 0, len(catalog)+1)
	for code := range catalog {
		entries = append(entries, *Lookup(code))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Code < entries[j].Code
	})
	return append(entries, unmapped)
}

var pollErrors = map[Status]int{
	StatusIllegalCommand:            CodeIllegalCommand,
	StatusDropCassetteFull:          CodeStackerFull,
	StatusDropCassetteOutOfPosition: CodeStatusCheck,
	StatusValidatorJammed:           CodeValidatorJammed,
	StatusDropCassetteJammed:        CodeCassetteJammed,
	StatusCheated:                   CodeCheated,
	StatusPause:                     CodePause,
}

var failureErrors = map[byte]int{
	FailureStackMotor:            CodeStackMotor,
	FailureTransportMotorSpeed:   CodeTransportSpeed,
	FailureTransportMotor:        CodeTransportMotor,
	FailureAligningMotor:         CodeAligningMotor,
	FailureInitialCassetteStatus: CodeCassetteStatus,
	FailureOpticCanal:            CodeOpticCanal,
	FailureMagneticCanal:         CodeMagneticCanal,
	FailureCapacitanceCanal:      CodeCapacitanceCanal,
}

// PollError maps a device-error poll status to its catalog entry.
// The sub-code is consulted only for StatusGenericFailure; an unknown
// failure sub-code yields the unmapped fallback. The boolean is false for
// statuses that do not report a device error.
func PollError(status Status, sub byte) (*DeviceError, bool) {
	if status == StatusGenericFailure {
		code, ok := failureErrors[sub]
		if !ok {
			return Lookup(CodeUnmapped), true
		}
		return Lookup(code), true
	}
	code, ok := pollErrors[status]
	if !ok {
		return nil, false
	}
	return Lookup(code), true
}

// RejectionReason returns the catalog entry for a rejection sub-code
func RejectionReason(sub byte) *DeviceError {
	if sub < RejectInsertion || sub > RejectLength {
		return Lookup(CodeUnmapped)
	}
	return Lookup(int(sub))
}
