// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyUnknownCommand AnomalyType = iota
	AnomalyUnknownStatus
	AnomalyUnknownSubCode
	AnomalyLengthMismatch
	AnomalyDeviceError
	AnomalyCRCError
	AnomalyDecodeError
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// requestDataSize is the payload length each controller command carries
var requestDataSize = map[uint8]int{
	CmdAck:             0,
	CmdNak:             0,
	CmdReset:           0,
	CmdGetStatus:       0,
	CmdSetSecurity:     3,
	CmdPoll:            0,
	CmdEnableBillTypes: 6,
	CmdStack:           0,
	CmdReturn:          0,
	CmdIdentification:  0,
	CmdHold:            0,
}

// ValidateFrame validates frame structure and detects anomalies.
//
// Responses are checked without knowledge of the request they answer, so the
// request is inferred from the payload length. Use ValidateResponse when the
// request is known.
func ValidateFrame(f *Frame, dir Direction) []ValidationError {
	if dir == DirectionTx {
		return validateRequest(f)
	}

	payload := len(f.data) + 1
	switch {
	case f.IsAck() || f.IsNak():
		return nil
	case payload == GetStatusDataSize:
		return ValidateResponse(f, CmdGetStatus)
	case payload == IdentificationDataSize:
		return ValidateResponse(f, CmdIdentification)
	default:
		return ValidateResponse(f, CmdPoll)
	}
}

// ValidateResponse validates a response frame against the request it answers.
// Returns a slice of validation errors (empty if the frame is valid).
func ValidateResponse(f *Frame, request uint8) []ValidationError {
	errors := []ValidationError{}

	switch request {
	case CmdPoll:
		errors = append(errors, validatePollResponse(f)...)
	case CmdGetStatus:
		errors = append(errors, validatePayloadSize(f, "GET_STATUS", GetStatusDataSize)...)
	case CmdIdentification:
		errors = append(errors, validatePayloadSize(f, "IDENTIFICATION", IdentificationDataSize)...)
	default:
		if !f.IsAck() && !f.IsNak() && f.Status() != StatusIllegalCommand {
			errors = append(errors, ValidationError{
				Type:    AnomalyUnknownStatus,
				Message: fmt.Sprintf("%s answered with 0x%02X (expected ACK)", FormatCommand(request), f.command),
				Details: map[string]interface{}{"request": request, "status": f.command},
			})
		}
	}

	return errors
}

// validateRequest validates a controller request
func validateRequest(f *Frame) []ValidationError {
	expected, ok := requestDataSize[f.command]
	if !ok {
		return []ValidationError{{
			Type:    AnomalyUnknownCommand,
			Message: fmt.Sprintf("Unknown command 0x%02X", f.command),
			Details: map[string]interface{}{"command": f.command},
		}}
	}
	if len(f.data) != expected {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload length mismatch (expected %d bytes)", FormatCommand(f.command), expected),
			Details: map[string]interface{}{"length": len(f.data), "expected": expected},
		}}
	}
	return nil
}

// validatePollResponse validates the status byte and sub-code of a POLL response
func validatePollResponse(f *Frame) []ValidationError {
	errors := []ValidationError{}
	status := f.Status()

	if !knownStatus(status) {
		return []ValidationError{{
			Type:    AnomalyUnknownStatus,
			Message: fmt.Sprintf("Unknown poll status 0x%02X", byte(status)),
			Details: map[string]interface{}{"status": byte(status)},
		}}
	}

	switch status {
	case StatusEscrowPosition, StatusBillStacked, StatusBillReturned, StatusRejecting, StatusGenericFailure:
		if len(f.data) < 1 {
			return []ValidationError{{
				Type:    AnomalyLengthMismatch,
				Message: fmt.Sprintf("%s response missing sub-code", FormatStatus(status)),
				Details: map[string]interface{}{"length": len(f.data) + 1, "minimum": 2},
			}}
		}
	}

	sub := f.SubStatus()
	switch status {
	case StatusRejecting:
		if !Known(int(sub)) {
			errors = append(errors, ValidationError{
				Type:    AnomalyUnknownSubCode,
				Message: fmt.Sprintf("Unknown rejection reason 0x%02X", sub),
				Details: map[string]interface{}{"sub": sub},
			})
		}
	case StatusGenericFailure:
		if _, ok := failureErrors[sub]; !ok {
			errors = append(errors, ValidationError{
				Type:    AnomalyUnknownSubCode,
				Message: fmt.Sprintf("Unknown failure sub-code 0x%02X", sub),
				Details: map[string]interface{}{"sub": sub},
			})
		}
	}

	if devErr, ok := PollError(status, sub); ok {
		errors = append(errors, ValidationError{
			Type:    AnomalyDeviceError,
			Message: fmt.Sprintf("Device reports %s: %s", FormatStatus(status), devErr.Message),
			Details: map[string]interface{}{"status": byte(status), "code": devErr.Code},
		})
	}

	return errors
}

func validatePayloadSize(f *Frame, name string, expected int) []ValidationError {
	size := len(f.data) + 1
	if size != expected {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload length mismatch (expected %d bytes)", name, expected),
			Details: map[string]interface{}{"length": size, "expected": expected},
		}}
	}
	return nil
}

func knownStatus(s Status) bool {
	_, ok := statusNames[s]
	return ok
}
