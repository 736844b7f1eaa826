// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import (
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames   uint64
	ValidFrames   uint64
	BadFormat     uint64
	DecodeErrors  uint64
	DeviceErrors  uint64
	SPIErrors     uint64
	DataRejected  uint64
	EmptyData     uint64
	InvalidInfo   uint64
	AsyncMessages uint64
	DroppedBytes  uint64

	ByType map[MessageType]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByType:         make(map[MessageType]uint64),
	}
}

// Update updates statistics based on a parse result, the decode error of
// its frame and the validation errors of the decoded message. dropped is
// the number of bytes discarded for a bad frame.
func (s *Statistics) Update(res ParseResult, dropped int, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if res.Status == ParseBadFormat {
		s.BadFormat++
		s.DroppedBytes += uint64(dropped)
		return
	}
	if decodeErr != nil {
		s.DecodeErrors++
		return
	}

	s.ByType[res.Type]++
	if res.Type == MsgAsync {
		s.AsyncMessages++
	}

	if len(validationErrors) == 0 {
		s.ValidFrames++
		return
	}
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyDeviceError:
			s.DeviceErrors++
		case AnomalySPIError:
			s.SPIErrors++
		case AnomalyDataRejected:
			s.DataRejected++
		case AnomalyEmptyData:
			s.EmptyData++
		case AnomalyInvalidInfo:
			s.InvalidInfo++
		}
	}
}

// Errors returns the number of frames counted as errors
func (s *Statistics) Errors() uint64 {
	return s.BadFormat + s.DecodeErrors + s.DeviceErrors + s.SPIErrors + s.DataRejected + s.EmptyData + s.InvalidInfo
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))

	if s.BadFormat > 0 {
		result += fmt.Sprintf("Bad Format:      %8d (%.1f%%, %d bytes dropped)\n", s.BadFormat, percent(s.BadFormat), s.DroppedBytes)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.DeviceErrors > 0 {
		result += fmt.Sprintf("Device ERR:      %8d\n", s.DeviceErrors)
	}
	if s.SPIErrors > 0 {
		result += fmt.Sprintf("SPI Errors:      %8d\n", s.SPIErrors)
	}
	if s.DataRejected > 0 {
		result += fmt.Sprintf("DS Rejected:     %8d\n", s.DataRejected)
	}
	if s.EmptyData > 0 {
		result += fmt.Sprintf("Empty DR:        %8d\n", s.EmptyData)
	}
	if s.InvalidInfo > 0 {
		result += fmt.Sprintf("Invalid Info:    %8d\n", s.InvalidInfo)
	}
	result += fmt.Sprintf("Async (DR):      %8d\n", s.AsyncMessages)

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
