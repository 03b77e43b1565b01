// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccnet

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of link statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Frame counters
	TotalFrames      uint64
	ValidFrames      uint64
	CRCErrors        uint64
	DecodeErrors     uint64
	MalformedFrames  uint64
	UnknownCodes     uint64
	LengthMismatches uint64
	DeviceErrors     uint64

	// Exchange counters
	Exchanges uint64
	Timeouts  uint64
	AcksSent  uint64
	NaksSent  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// Statistics tracks frame statistics and error rates.
// It is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

// Update updates statistics based on a frame and its errors
func (s *Statistics) Update(frame *Frame, decodeErr error, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.TotalFrames++
	s.c.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.c.CRCErrors++
		} else {
			s.c.DecodeErrors++
		}
		return
	}

	if len(validationErrors) == 0 {
		s.c.ValidFrames++
		return
	}

	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyUnknownCommand, AnomalyUnknownStatus, AnomalyUnknownSubCode:
			s.c.UnknownCodes++
			s.c.MalformedFrames++
		case AnomalyLengthMismatch:
			s.c.LengthMismatches++
			s.c.MalformedFrames++
		case AnomalyDeviceError:
			s.c.DeviceErrors++
		}
	}
}

// RecordExchange counts one request/response round trip.
// A nil response means no valid frame arrived in time.
func (s *Statistics) RecordExchange(response []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Exchanges++
	if response == nil {
		s.c.Timeouts++
	}
	s.c.LastUpdateTime = time.Now()
}

// RecordSent counts bare ACK and NAK frames written to the device
func (s *Statistics) RecordSent(frame []byte) {
	if len(frame) != MinFrameSize {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch frame[3] {
	case CmdAck:
		s.c.AcksSent++
	case CmdNak:
		s.c.NaksSent++
	}
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.FrameRate = float64(c.TotalFrames) / elapsed
		errorCount := c.CRCErrors + c.DecodeErrors + c.MalformedFrames + c.Timeouts
		c.ErrorRate = float64(errorCount) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	percent := func(n uint64) float64 {
		if c.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(c.TotalFrames)
	}

	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", c.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", c.ValidFrames, percent(c.ValidFrames))

	if c.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", c.CRCErrors, percent(c.CRCErrors))
	}
	if c.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", c.DecodeErrors, percent(c.DecodeErrors))
	}
	if c.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", c.MalformedFrames, percent(c.MalformedFrames))
		if c.UnknownCodes > 0 {
			result += fmt.Sprintf("  Unknown Codes:    %5d\n", c.UnknownCodes)
		}
		if c.LengthMismatches > 0 {
			result += fmt.Sprintf("  Length Mismatch:  %5d\n", c.LengthMismatches)
		}
	}
	if c.DeviceErrors > 0 {
		result += fmt.Sprintf("Device Errors:   %8d\n", c.DeviceErrors)
	}
	if c.Exchanges > 0 {
		result += fmt.Sprintf("Exchanges:       %8d (%d timed out)\n", c.Exchanges, c.Timeouts)
		result += fmt.Sprintf("ACK/NAK Sent:    %8d / %d\n", c.AcksSent, c.NaksSent)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", c.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
}
