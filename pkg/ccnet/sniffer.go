// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

// SniffedFrame is a frame observed on a line shared by controller and device
type SniffedFrame struct {
	Frame     *Frame
	Direction Direction
	Errors    []ValidationError
}

// Sniffer decodes a passively captured CCNET byte stream.
//
// Frames carry no direction, so it is inferred from the exchange pattern: a
// request is followed by one response, and bare ACK/NAK frames from the
// controller expect none. Decode errors before the first valid frame are
// counted as skipped bytes instead of being reported.
type Sniffer struct {
	decoder  *Decoder
	awaiting bool
	request  uint8
	synced   bool
	skipped  int
}

// NewSniffer creates a sniffer waiting for its first frame
func NewSniffer() *Sniffer {
	return &Sniffer{decoder: NewDecoder()}
}

// Feed decodes a chunk of captured bytes
func (s *Sniffer) Feed(chunk []byte) ([]SniffedFrame, []error) {
	var frames []SniffedFrame
	var errs []error

	for _, b := range chunk {
		f, err := s.decoder.DecodeByte(b)
		if err != nil {
			if s.synced {
				errs = append(errs, err)
			} else {
				s.skipped++
			}
			continue
		}
		if f == nil {
			continue
		}
		s.synced = true
		frames = append(frames, s.classify(f))
	}
	return frames, errs
}

func (s *Sniffer) classify(f *Frame) SniffedFrame {
	if s.awaiting {
		s.awaiting = false
		return SniffedFrame{Frame: f, Direction: DirectionRx, Errors: ValidateResponse(f, s.request)}
	}

	if !f.IsAck() && !f.IsNak() {
		s.awaiting = true
		s.request = f.Command()
	}
	return SniffedFrame{Frame: f, Direction: DirectionTx, Errors: ValidateFrame(f, DirectionTx)}
}

// Synchronized reports whether a valid frame has been seen and how many
// bytes were skipped before it
func (s *Sniffer) Synchronized() (bool, int) {
	return s.synced, s.skipped
}

// Resync forgets the pending request, e.g. after a gap in the capture
func (s *Sniffer) Resync() {
	s.awaiting = false
	s.decoder.Reset()
}
