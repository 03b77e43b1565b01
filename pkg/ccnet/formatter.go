// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

import (
	"fmt"
	"strings"
)

var commandNames = map[uint8]string{
	CmdAck:             "ACK",
	CmdReset:           "RESET",
	CmdGetStatus:       "GET_STATUS",
	CmdSetSecurity:     "SET_SECURITY",
	CmdPoll:            "POLL",
	CmdEnableBillTypes: "ENABLE_BILL_TYPES",
	CmdStack:           "STACK",
	CmdReturn:          "RETURN",
	CmdIdentification:  "IDENTIFICATION",
	CmdHold:            "HOLD",
	CmdNak:             "NAK",
}

var statusNames = map[Status]string{
	StatusPowerUp:                   "POWER_UP",
	StatusPowerUpWithBillValidator:  "POWER_UP_WITH_BILL_IN_VALIDATOR",
	StatusPowerUpWithBillStacker:    "POWER_UP_WITH_BILL_IN_STACKER",
	StatusInitialize:                "INITIALIZE",
	StatusIdling:                    "IDLING",
	StatusAccepting:                 "ACCEPTING",
	StatusStacking:                  "STACKING",
	StatusReturning:                 "RETURNING",
	StatusUnitDisabled:              "UNIT_DISABLED",
	StatusHolding:                   "HOLDING",
	StatusDeviceBusy:                "DEVICE_BUSY",
	StatusRejecting:                 "REJECTING",
	StatusIllegalCommand:            "ILLEGAL_COMMAND",
	StatusDropCassetteFull:          "DROP_CASSETTE_FULL",
	StatusDropCassetteOutOfPosition: "DROP_CASSETTE_OUT_OF_POSITION",
	StatusValidatorJammed:           "VALIDATOR_JAMMED",
	StatusDropCassetteJammed:        "DROP_CASSETTE_JAMMED",
	StatusCheated:                   "CHEATED",
	StatusPause:                     "PAUSE",
	StatusGenericFailure:            "GENERIC_FAILURE",
	StatusEscrowPosition:            "ESCROW_POSITION",
	StatusBillStacked:               "BILL_STACKED",
	StatusBillReturned:              "BILL_RETURNED",
}

var failureNames = map[byte]string{
	FailureStackMotor:            "STACK_MOTOR",
	FailureTransportMotorSpeed:   "TRANSPORT_MOTOR_SPEED",
	FailureTransportMotor:        "TRANSPORT_MOTOR",
	FailureAligningMotor:         "ALIGNING_MOTOR",
	FailureInitialCassetteStatus: "INITIAL_CASSETTE_STATUS",
	FailureOpticCanal:            "OPTIC_CANAL",
	FailureMagneticCanal:         "MAGNETIC_CANAL",
	FailureCapacitanceCanal:      "CAPACITANCE_CANAL",
}

var rejectNames = map[byte]string{
	RejectInsertion:          "INSERTION",
	RejectMagnetic:           "MAGNETIC",
	RejectRemainedBillInHead: "REMAINED_BILL_IN_HEAD",
	RejectMultiplying:        "MULTIPLYING",
	RejectConveying:          "CONVEYING",
	RejectIdentification:     "IDENTIFICATION",
	RejectVerification:       "VERIFICATION",
	RejectOptic:              "OPTIC",
	RejectInhibit:            "INHIBIT",
	RejectCapacity:           "CAPACITY",
	RejectOperation:          "OPERATION",
	RejectLength:             "LENGTH",
}

// FormatCommand returns the human-readable name for a command byte
func FormatCommand(cmd uint8) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return "UNKNOWN"
}

// FormatStatus returns the human-readable name for a poll status
func FormatStatus(s Status) string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

func (s Status) String() string {
	return FormatStatus(s)
}

// FormatSubStatus names the sub-code that follows a poll status.
// Escrow, stacked and returned statuses carry a bill type rather than a code.
func FormatSubStatus(s Status, sub byte) string {
	var name string
	var ok bool
	switch s {
	case StatusGenericFailure:
		name, ok = failureNames[sub]
	case StatusRejecting:
		name, ok = rejectNames[sub]
	case StatusEscrowPosition, StatusBillStacked, StatusBillReturned:
		return fmt.Sprintf("BILL_TYPE_%d", sub)
	default:
		return ""
	}
	if !ok {
		return "UNKNOWN"
	}
	return name
}

// FormatHex formats bytes as space separated hex pairs
func FormatHex(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame, dir Direction) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	arrow := "TX"
	if dir == DirectionRx {
		arrow = "RX"
	}

	result := fmt.Sprintf("[%s] %s ", timestamp, arrow)
	switch {
	case f.IsAck():
		result += "ACK"
	case f.IsNak():
		result += "NAK"
	case dir == DirectionTx:
		result += fmt.Sprintf("%s (0x%02X)", FormatCommand(f.command), f.command)
	case len(f.data) <= 1:
		result += fmt.Sprintf("%s (0x%02X)", FormatStatus(f.Status()), f.command)
		if sub := FormatSubStatus(f.Status(), f.SubStatus()); sub != "" && len(f.data) == 1 {
			result += fmt.Sprintf(" %s (0x%02X)", sub, f.SubStatus())
		}
	default:
		result += fmt.Sprintf("DATA (%d bytes)", len(f.data)+1)
	}

	result += fmt.Sprintf(" len=%d crc=0x%04X\n", f.length, f.crc)
	result += fmt.Sprintf("  %s\n", FormatHex(f.raw))
	return result
}
