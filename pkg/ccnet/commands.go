// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

// Command builder functions create request frames ready for transmission.
// Every payload in the modelled command set is a few bytes long, so these
// never fail.

// BillMask is a 24-bit bill type bitmap, most significant byte first.
// Bit 0 of the last byte selects bill type 0.
type BillMask [3]byte

// Common bill type bitmaps
var (
	AllBillTypes = BillMask{0xFF, 0xFF, 0xFF}
	NoBillTypes  = BillMask{0x00, 0x00, 0x00}
)

// Set returns a copy of the mask with the given bill type (0-23) selected
func (m BillMask) Set(billType uint) BillMask {
	if billType > 23 {
		return m
	}
	m[2-billType/8] |= 1 << (billType % 8)
	return m
}

// Has reports whether the given bill type (0-23) is selected
func (m BillMask) Has(billType uint) bool {
	if billType > 23 {
		return false
	}
	return m[2-billType/8]&(1<<(billType%8)) != 0
}

func mustFrame(command uint8, data []byte) *Frame {
	f, err := NewFrame(command, data)
	if err != nil {
		panic("ccnet: " + err.Error())
	}
	return f
}

// NewPoll creates a POLL request (0x33).
// The validator answers with its current status byte and optional sub-code.
func NewPoll() *Frame {
	return mustFrame(CmdPoll, nil)
}

// NewReset creates a RESET request (0x30)
func NewReset() *Frame {
	return mustFrame(CmdReset, nil)
}

// NewGetStatus creates a GET_STATUS request (0x31).
// The response carries the enabled and security bill masks (six bytes).
func NewGetStatus() *Frame {
	return mustFrame(CmdGetStatus, nil)
}

// NewSetSecurity creates a SET_SECURITY request (0x32) with the given
// high-security bill mask
func NewSetSecurity(mask BillMask) *Frame {
	return mustFrame(CmdSetSecurity, mask[:])
}

// NewIdentification creates an IDENTIFICATION request (0x37)
func NewIdentification() *Frame {
	return mustFrame(CmdIdentification, nil)
}

// NewEnableBillTypes creates an ENABLE_BILL_TYPES request (0x34).
// Bill types in escrow are held at the escrow position until STACK or RETURN.
// Passing NoBillTypes for both masks disables acceptance.
func NewEnableBillTypes(enabled, escrow BillMask) *Frame {
	data := make([]byte, 0, 6)
	data = append(data, enabled[:]...)
	data = append(data, escrow[:]...)
	return mustFrame(CmdEnableBillTypes, data)
}

// EnableAllWithEscrow enables every bill type and routes all of them
// through escrow
func EnableAllWithEscrow() *Frame {
	return NewEnableBillTypes(AllBillTypes, AllBillTypes)
}

// DisableAll inhibits every bill type
func DisableAll() *Frame {
	return NewEnableBillTypes(NoBillTypes, NoBillTypes)
}

// NewStack creates a STACK request (0x35) sending the escrowed bill to the cassette
func NewStack() *Frame {
	return mustFrame(CmdStack, nil)
}

// NewReturn creates a RETURN request (0x36) handing the escrowed bill back
func NewReturn() *Frame {
	return mustFrame(CmdReturn, nil)
}

// NewHold creates a HOLD request (0x38) extending the escrow hold time
func NewHold() *Frame {
	return mustFrame(CmdHold, nil)
}
