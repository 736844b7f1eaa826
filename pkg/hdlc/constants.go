// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hdlc implements the HDLC-like byte stuffed framing used on the
// UART link of IQRF CDC-UART gateways.
//
// A frame is FLAG, stuffed(data + check), FLAG. FLAG and ESC bytes inside the
// frame are sent as ESC followed by the byte XOR 0x20. The check byte is
// either a CRC-8 (framing v2) or an XOR checksum (framing v1).
package hdlc

import "fmt"

// Framing bytes
const (
	FlagByte = 0x7E
	EscByte  = 0x7D
	EscXor   = 0x20
)

// MaxDataSize bounds the unstuffed data of one frame.
const MaxDataSize = 512

// DefaultBaudRate of the CDC-UART link
const DefaultBaudRate = 19200

// CRC-8 Dallas/Maxim configuration (reflected)
const (
	crcPolynomial = 0x8C
	crcInitial    = 0xFF
)

// XOR checksum seed of framing v1
const xorSeed = 0x5F

// Checksum selects the frame check algorithm.
type Checksum uint8

const (
	ChecksumCRC8 Checksum = iota // framing v2
	ChecksumXOR                  // framing v1
)

func (c Checksum) String() string {
	switch c {
	case ChecksumCRC8:
		return "crc8"
	case ChecksumXOR:
		return "xor"
	default:
		return "unknown"
	}
}

// ParseChecksum accepts "crc8" or "xor".
func ParseChecksum(s string) (Checksum, error) {
	switch s {
	case "crc8":
		return ChecksumCRC8, nil
	case "xor":
		return ChecksumXOR, nil
	default:
		return 0, fmt.Errorf("unknown checksum: %s", s)
	}
}

// Compute returns the check byte of data.
func (c Checksum) Compute(data []byte) byte {
	if c == ChecksumXOR {
		return CalculateXOR(data)
	}
	return CalculateCRC(data)
}
