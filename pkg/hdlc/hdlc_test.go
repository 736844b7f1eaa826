// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hdlc

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// ============================================================
// Checksum Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC(nil); crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%02X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"ASCII '123456789'", []byte("123456789"), 0x0B},
		{"DPA LED request", []byte{0x01, 0x00, 0x06, 0x03, 0xFF, 0xFF}, 0x38},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := CalculateCRC(tt.data); crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%02X, got 0x%02X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateXOR(t *testing.T) {
	if sum := CalculateXOR([]byte{0x01, 0x02}); sum != 0x5C {
		t.Errorf("Expected 0x5C, got 0x%02X", sum)
	}
	if sum := CalculateXOR(nil); sum != xorSeed {
		t.Errorf("Expected seed for empty data, got 0x%02X", sum)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_EscapesSpecialBytes(t *testing.T) {
	frame, err := Encode([]byte{0x7E}, ChecksumXOR)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{0x7E, 0x7D, 0x5E, 0x21, 0x7E}
	if !bytes.Equal(frame, want) {
		t.Errorf("Expected % X, got % X", want, frame)
	}

	frame, _ = Encode([]byte{0x7D, 0x01}, ChecksumXOR)
	want = []byte{0x7E, 0x7D, 0x5D, 0x01, 0x23, 0x7E}
	if !bytes.Equal(frame, want) {
		t.Errorf("Expected % X, got % X", want, frame)
	}
}

func TestEncode_TooLarge(t *testing.T) {
	if _, err := Encode(make([]byte, MaxDataSize+1), ChecksumCRC8); err == nil {
		t.Error("Expected error for oversized data")
	}
}

func TestUnstuffBytes_IncompleteEscape(t *testing.T) {
	if _, err := UnstuffBytes([]byte{0x01, EscByte}); err == nil {
		t.Error("Expected error for trailing escape")
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecode_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01, 0x00, 0x06, 0x03, 0xFF, 0xFF},
		{0x7E, 0x7D, 0x7E, 0x20, 0x5E},
		bytes.Repeat([]byte{0xAA}, MaxDataSize),
	}

	for _, check := range []Checksum{ChecksumCRC8, ChecksumXOR} {
		for _, p := range payloads {
			frame, err := Encode(p, check)
			if err != nil {
				t.Fatalf("%s: Encode failed: %v", check, err)
			}
			got, err := Decode(frame, check)
			if err != nil {
				t.Fatalf("%s: Decode failed: %v", check, err)
			}
			if !bytes.Equal(got, p) {
				t.Errorf("%s: expected % X, got % X", check, p, got)
			}
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	good, _ := Encode([]byte{0x01, 0x02}, ChecksumCRC8)
	bad := append([]byte(nil), good...)
	bad[2] ^= 0x01

	tests := []struct {
		name  string
		frame []byte
	}{
		{"short", []byte{0x7E, 0x7E}},
		{"no opening flag", good[1:]},
		{"no closing flag", good[:len(good)-1]},
		{"corrupted", bad},
		{"dangling escape", []byte{0x7E, 0x01, 0x7D, 0x7E}},
	}

	for _, tt := range tests {
		if _, err := Decode(tt.frame, ChecksumCRC8); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	if _, err := Decode(bad, ChecksumCRC8); !errors.Is(err, ErrChecksum) {
		t.Errorf("Expected ErrChecksum, got %v", err)
	}
}

func TestDecoder_Stream(t *testing.T) {
	f1, _ := Encode([]byte{0x01, 0x7E}, ChecksumCRC8)
	f2, _ := Encode([]byte{0x02}, ChecksumCRC8)

	// garbage, then two frames sharing a flag
	stream := []byte{0x11, 0x22}
	stream = append(stream, f1...)
	stream = append(stream, f2[1:]...)

	d := NewDecoder(ChecksumCRC8)
	var frames [][]byte
	for _, b := range stream {
		data, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("DecodeByte failed: %v", err)
		}
		if data != nil {
			frames = append(frames, data)
		}
	}

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{0x01, 0x7E}) || !bytes.Equal(frames[1], []byte{0x02}) {
		t.Errorf("Unexpected frames: % X", frames)
	}
}

func TestDecoder_ChecksumMismatch(t *testing.T) {
	frame, _ := Encode([]byte{0x01, 0x02}, ChecksumXOR)

	d := NewDecoder(ChecksumCRC8)
	var gotErr error
	for _, b := range frame {
		if _, err := d.DecodeByte(b); err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrChecksum) {
		t.Errorf("Expected ErrChecksum, got %v", gotErr)
	}
}

func TestDecoder_Overflow(t *testing.T) {
	d := NewDecoder(ChecksumCRC8)
	d.DecodeByte(FlagByte)

	var gotErr error
	for i := 0; i < MaxDataSize+2 && gotErr == nil; i++ {
		_, gotErr = d.DecodeByte(0x01)
	}
	if gotErr == nil {
		t.Error("Expected overflow error")
	}
}

// ============================================================
// Framer Tests
// ============================================================

type loopback struct {
	bytes.Buffer
}

func TestFramer_ReadWrite(t *testing.T) {
	var lb loopback
	f := NewFramer(&lb, ChecksumCRC8)

	lb.Write([]byte{0x7E, 0x01, 0x00, 0x7E}) // bad checksum
	if err := f.WriteFrame([]byte{0x01, 0x00, 0x06, 0x03, 0xFF, 0xFF}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	var errs int
	data, err := f.ReadFrame(func(raw []byte, err error) { errs++ })
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0x01, 0x00, 0x06, 0x03, 0xFF, 0xFF}) {
		t.Errorf("Unexpected data: % X", data)
	}
	if errs != 1 {
		t.Errorf("Expected 1 reported error, got %d", errs)
	}

	if _, err := f.ReadFrame(nil); err != io.EOF {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestParseChecksum(t *testing.T) {
	for _, c := range []Checksum{ChecksumCRC8, ChecksumXOR} {
		got, err := ParseChecksum(c.String())
		if err != nil || got != c {
			t.Errorf("ParseChecksum(%q) = %v, %v", c.String(), got, err)
		}
	}
	if _, err := ParseChecksum("crc16"); err == nil {
		t.Error("Expected error for unknown checksum")
	}
}
