// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrCRCMismatch is wrapped by every checksum failure reported by ParseFrame
// and the stream decoder
var ErrCRCMismatch = errors.New("CRC mismatch")

// Frame represents a decoded CCNET frame
type Frame struct {
	address   uint8
	length    uint8
	command   uint8 // Command byte, or first data byte of a response
	data      []byte
	crc       uint16
	raw       []byte
	timestamp time.Time
}

// NewFrame creates a frame from a command byte and its data.
// The length, CRC and wire bytes are computed automatically.
func NewFrame(command uint8, data []byte) (*Frame, error) {
	raw, err := Encode(command, data)
	if err != nil {
		return nil, err
	}
	return ParseFrame(raw)
}

// ParseFrame validates a complete wire frame and returns its fields.
// The checksum, SYNC byte, address and declared length must all agree.
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) < MinFrameSize {
		return nil, fmt.Errorf("frame too short: %d bytes (min %d)", len(raw), MinFrameSize)
	}
	if raw[0] != SyncByte {
		return nil, fmt.Errorf("invalid SYNC byte: 0x%02X", raw[0])
	}
	if raw[1] != PeripheralAddress {
		return nil, fmt.Errorf("unexpected address: 0x%02X", raw[1])
	}
	if raw[2] != 0 && int(raw[2]) != len(raw) {
		return nil, fmt.Errorf("length mismatch: header says %d, got %d bytes", raw[2], len(raw))
	}
	if !Validate(raw) {
		received := binary.LittleEndian.Uint16(raw[len(raw)-CRCSize:])
		calculated := CalculateCRC(raw[:len(raw)-CRCSize])
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, received)
	}

	body := raw[HeaderSize : len(raw)-CRCSize]
	data := make([]byte, len(body))
	copy(data, body)
	wire := make([]byte, len(raw))
	copy(wire, raw)

	return &Frame{
		address:   raw[1],
		length:    raw[2],
		command:   raw[3],
		data:      data,
		crc:       binary.LittleEndian.Uint16(raw[len(raw)-CRCSize:]),
		raw:       wire,
		timestamp: time.Now(),
	}, nil
}

// Address returns the peripheral address byte
func (f *Frame) Address() uint8 {
	return f.address
}

// Length returns the LNG header byte (0 for extended frames)
func (f *Frame) Length() uint8 {
	return f.length
}

// Command returns the command byte of a request frame
func (f *Frame) Command() uint8 {
	return f.command
}

// Status returns the first data byte of a response frame.
// For responses this shares the position of the command byte.
func (f *Frame) Status() Status {
	return Status(f.command)
}

// SubStatus returns the second data byte of a response, or 0 when absent
func (f *Frame) SubStatus() byte {
	if len(f.data) == 0 {
		return 0
	}
	return f.data[0]
}

// Data returns the bytes following the command byte
func (f *Frame) Data() []byte {
	return f.data
}

// ResponseData returns the whole response payload, status byte included
func (f *Frame) ResponseData() []byte {
	return append([]byte{f.command}, f.data...)
}

// CRC returns the frame checksum
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Raw returns the frame as transmitted
func (f *Frame) Raw() []byte {
	return f.raw
}

// Timestamp returns the frame decode timestamp
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsAck returns true for a bare ACK frame
func (f *Frame) IsAck() bool {
	return len(f.data) == 0 && f.command == CmdAck
}

// IsNak returns true for a bare NAK frame
func (f *Frame) IsNak() bool {
	return len(f.data) == 0 && f.command == CmdNak
}
