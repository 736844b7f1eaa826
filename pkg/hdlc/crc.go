// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hdlc

// CalculateCRC computes the CRC-8 Dallas/Maxim checksum for the given data
func CalculateCRC(data []byte) byte {
	crc := byte(crcInitial)
	for _, b := range data {
		crc = updateCRC(crc, b)
	}
	return crc
}

func updateCRC(crc, b byte) byte {
	for i := 0; i < 8; i++ {
		if (crc^b)&0x01 != 0 {
			crc = (crc >> 1) ^ crcPolynomial
		} else {
			crc >>= 1
		}
		b >>= 1
	}
	return crc
}

// CalculateXOR computes the framing v1 checksum: all data bytes XORed
// together with 0x5F.
func CalculateXOR(data []byte) byte {
	sum := byte(xorSeed)
	for _, b := range data {
		sum ^= b
	}
	return sum
}
