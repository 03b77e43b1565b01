// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

import (
	"encoding/binary"
	"fmt"
)

// Encode creates a complete wire-formatted CCNET frame.
//
// The LNG byte holds the total frame length including the CRC. Frames longer
// than MaxFrameSize get LNG=0; CCNET reserves that value for an extended
// length field which this package does not implement, so such frames are
// only produced, never interpreted.
func Encode(command uint8, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("data too large: %d bytes (max %d)", len(data), MaxDataSize)
	}

	total := len(data) + MinFrameSize
	frame := make([]byte, 0, total)
	frame = append(frame, SyncByte, PeripheralAddress, encodeLength(total), command)
	frame = append(frame, data...)

	return appendCRC(frame), nil
}

// MustEncode is like Encode but panics on error.
// Intended for the fixed command set whose payloads never exceed a few bytes.
func MustEncode(command uint8, data []byte) []byte {
	frame, err := Encode(command, data)
	if err != nil {
		panic(fmt.Sprintf("ccnet: encode error: %v", err))
	}
	return frame
}

// Validate recomputes the checksum over all but the trailing two bytes and
// compares it to them. Any mismatch fails the whole frame.
func Validate(frame []byte) bool {
	if len(frame) < CRCSize+1 {
		return false
	}
	n := len(frame) - CRCSize
	var crc [CRCSize]byte
	binary.LittleEndian.PutUint16(crc[:], CalculateCRC(frame[:n]))
	return frame[n] == crc[0] && frame[n+1] == crc[1]
}

// Acknowledge returns the bare ACK frame sent after a valid response
func Acknowledge() []byte {
	return appendCRC([]byte{SyncByte, PeripheralAddress, MinFrameSize, CmdAck})
}

// NotAcknowledge returns the bare NAK frame sent after a rejected response
func NotAcknowledge() []byte {
	return appendCRC([]byte{SyncByte, PeripheralAddress, MinFrameSize, CmdNak})
}

func encodeLength(total int) byte {
	if total > MaxFrameSize {
		return 0
	}
	return byte(total)
}

func appendCRC(frame []byte) []byte {
	return binary.LittleEndian.AppendUint16(frame, CalculateCRC(frame))
}
