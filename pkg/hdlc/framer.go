// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hdlc

import (
	"bufio"
	"io"
)

// Framer reads and writes frames over a byte stream.
type Framer struct {
	br  *bufio.Reader
	w   io.Writer
	dec *Decoder
	enc Checksum
}

// NewFramer wraps rw using the given checksum in both directions.
func NewFramer(rw io.ReadWriter, check Checksum) *Framer {
	return &Framer{
		br:  bufio.NewReader(rw),
		w:   rw,
		dec: NewDecoder(check),
		enc: check,
	}
}

// ReadFrame blocks until a valid frame arrives and returns its data.
// Invalid frames are reported through onError, when set, and skipped.
func (f *Framer) ReadFrame(onError func(raw []byte, err error)) ([]byte, error) {
	for {
		b, err := f.br.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := append([]byte(nil), f.dec.GetRawBytes()...)
		data, derr := f.dec.DecodeByte(b)
		if derr != nil {
			if onError != nil {
				onError(append(raw, b), derr)
			}
			continue
		}
		if data != nil {
			return data, nil
		}
	}
}

// WriteFrame encodes data and writes the frame.
func (f *Framer) WriteFrame(data []byte) error {
	frame, err := Encode(data, f.enc)
	if err != nil {
		return err
	}
	_, err = f.w.Write(frame)
	return err
}
