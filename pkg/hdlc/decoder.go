// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hdlc

import (
	"errors"
	"fmt"
)

// ErrChecksum is returned for a frame whose check byte does not match.
var ErrChecksum = errors.New("checksum mismatch")

// Decoder states
const (
	stateIdle = iota
	stateData
	stateEscape
)

// Decoder implements the HDLC frame decoder state machine
type Decoder struct {
	check     Checksum
	state     int
	buffer    []byte
	rawBuffer []byte // raw bytes of the current frame, including flags
}

// NewDecoder creates a new frame decoder
func NewDecoder(check Checksum) *Decoder {
	return &Decoder{
		check:     check,
		state:     stateIdle,
		buffer:    make([]byte, 0, MaxDataSize+1),
		rawBuffer: make([]byte, 0, MaxDataSize*2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the raw bytes accumulated for the current frame
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns the frame data once a closing flag completes a frame, nil while
// the frame is incomplete, or an error if the frame is invalid.
func (d *Decoder) DecodeByte(b byte) ([]byte, error) {
	if b == FlagByte {
		if d.state == stateIdle || (d.state == stateData && len(d.buffer) == 0) {
			// opening flag, or back to back flags between frames
			d.Reset()
			d.state = stateData
			d.rawBuffer = append(d.rawBuffer, b)
			return nil, nil
		}
		if d.state == stateEscape {
			d.Reset()
			d.state = stateData
			d.rawBuffer = append(d.rawBuffer, b)
			return nil, fmt.Errorf("flag after escape byte")
		}

		d.rawBuffer = append(d.rawBuffer, b)
		data, err := d.finish()
		// the closing flag also opens the next frame
		d.buffer = d.buffer[:0]
		d.rawBuffer = append(d.rawBuffer[:0], FlagByte)
		d.state = stateData
		return data, err
	}

	switch d.state {
	case stateIdle:
		// waiting for a flag
		return nil, nil

	case stateEscape:
		d.rawBuffer = append(d.rawBuffer, b)
		d.state = stateData
		return nil, d.appendData(b ^ EscXor)

	default:
		d.rawBuffer = append(d.rawBuffer, b)
		if b == EscByte {
			d.state = stateEscape
			return nil, nil
		}
		return nil, d.appendData(b)
	}
}

func (d *Decoder) appendData(b byte) error {
	if len(d.buffer) > MaxDataSize {
		d.Reset()
		return fmt.Errorf("buffer overflow: frame exceeds %d bytes", MaxDataSize)
	}
	d.buffer = append(d.buffer, b)
	return nil
}

func (d *Decoder) finish() ([]byte, error) {
	if len(d.buffer) < 1 {
		return nil, fmt.Errorf("frame too short")
	}
	data := d.buffer[:len(d.buffer)-1]
	got := d.buffer[len(d.buffer)-1]
	if want := d.check.Compute(data); got != want {
		return nil, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksum, want, got)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Decode decodes one complete frame, including both flags.
func Decode(frame []byte, check Checksum) ([]byte, error) {
	if len(frame) < 3 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	if frame[0] != FlagByte {
		return nil, fmt.Errorf("first byte must be 0x%02X", FlagByte)
	}
	if frame[len(frame)-1] != FlagByte {
		return nil, fmt.Errorf("last byte must be 0x%02X", FlagByte)
	}

	body, err := UnstuffBytes(frame[1 : len(frame)-1])
	if err != nil {
		return nil, err
	}
	if len(body) < 1 {
		return nil, fmt.Errorf("frame too short")
	}

	data := body[:len(body)-1]
	if want := check.Compute(data); body[len(body)-1] != want {
		return nil, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksum, want, body[len(body)-1])
	}
	return data, nil
}
