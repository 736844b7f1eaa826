// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hdlc

import "fmt"

// Encode builds a complete frame around data.
func Encode(data []byte, check Checksum) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("data too large: %d bytes (max %d)", len(data), MaxDataSize)
	}

	body := make([]byte, 0, len(data)+1)
	body = append(body, data...)
	body = append(body, check.Compute(data))

	stuffed := stuffBytes(body)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, FlagByte)
	frame = append(frame, stuffed...)
	frame = append(frame, FlagByte)
	return frame, nil
}

// stuffBytes escapes FLAG and ESC bytes.
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == FlagByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
// This is the inverse of stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
