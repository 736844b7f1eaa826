// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexData(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"0100", []byte{0x01, 0x00}},
		{"01 00 0a ff", []byte{0x01, 0x00, 0x0A, 0xFF}},
		{"01.00.0A.FF", []byte{0x01, 0x00, 0x0A, 0xFF}},
		{"01:00-0a", []byte{0x01, 0x00, 0x0A}},
		{"0x0100", []byte{0x01, 0x00}},
		{"  0a0b  ", []byte{0x0A, 0x0B}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseHexData(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHexData_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "0x", "abc", "zz"} {
		_, err := parseHexData(in)
		assert.Error(t, err, in)
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0 seconds", formatUptime(0))
	assert.Equal(t, "1 second", formatUptime(1000))
	assert.Equal(t, "2 minutes and 5 seconds", formatUptime(125_000))
	assert.Equal(t, "1 day, 1 hour, and 1 minute", formatUptime((24*3600+3600+60)*1000))
}
