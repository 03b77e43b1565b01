// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

import "fmt"

// Decoder implements the CCNET stream decoder state machine.
//
// CCNET has no end-of-frame marker or byte stuffing, so frame boundaries come
// from the LNG byte alone. After any error the decoder drops back to idle and
// waits for the next SYNC byte.
type Decoder struct {
	state  int
	length int
	buffer []byte
}

// NewDecoder creates a new stream decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.length = 0
	d.buffer = d.buffer[:0]
}

// GetRawBytes returns the bytes accumulated for the frame in progress
func (d *Decoder) GetRawBytes() []byte {
	return d.buffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if decoding fails.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		if b == SyncByte {
			d.buffer = append(d.buffer[:0], b)
			d.state = stateAddress
		}
		return nil, nil

	case stateAddress:
		if b != PeripheralAddress {
			d.Reset()
			return nil, fmt.Errorf("unexpected address: 0x%02X", b)
		}
		d.buffer = append(d.buffer, b)
		d.state = stateLength
		return nil, nil

	case stateLength:
		if b == 0 {
			d.Reset()
			return nil, fmt.Errorf("extended length frames are not supported")
		}
		if b < MinFrameSize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (min %d)", b, MinFrameSize)
		}
		d.length = int(b)
		d.buffer = append(d.buffer, b)
		d.state = stateBody
		return nil, nil

	case stateBody:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) < d.length {
			return nil, nil
		}
		frame, err := ParseFrame(d.buffer)
		d.Reset()
		if err != nil {
			return nil, err
		}
		return frame, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// Decode feeds a chunk of bytes through the decoder and returns every frame
// completed by it along with any decode errors, in order of occurrence
func (d *Decoder) Decode(chunk []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range chunk {
		frame, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}
