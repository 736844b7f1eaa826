// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, stdin string, binary bool, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	decodeBinary = binary
	t.Cleanup(func() { decodeBinary = false })
	decodeCmd.SetOut(&out)
	decodeCmd.SetIn(strings.NewReader(stdin))
	require.NoError(t, runDecode(decodeCmd, args))
	return out.String()
}

func TestDecode_Args(t *testing.T) {
	out := decode(t, "", false, "3C", "4F", "4B", "0D")
	assert.Contains(t, out, "TEST len=4")
	assert.NotContains(t, out, "INCOMPLETE")
}

func TestDecode_FrameSplitAcrossLines(t *testing.T) {
	out := decode(t, "3C 4F\n\n4B 0D\n", false)
	assert.Contains(t, out, "TEST len=4")
}

func TestDecode_Binary(t *testing.T) {
	out := decode(t, "<OK\r<DS:BUSY\r", true)
	assert.Contains(t, out, "TEST len=4")
	assert.Contains(t, out, "DATA_SEND len=9")
	assert.Contains(t, out, "Result: BUSY")
	assert.Contains(t, out, "warning:")
}

func TestDecode_ResyncAfterBadFormat(t *testing.T) {
	out := decode(t, "", false, "3C580D3C4F4B0D")
	assert.Contains(t, out, "[ERROR] bad format")
	assert.Contains(t, out, "dropped 3 bytes")
	assert.Contains(t, out, "TEST len=4")
}

func TestDecode_AsyncData(t *testing.T) {
	out := decode(t, "", false, "3C4452023A01020D")
	assert.Contains(t, out, "ASYNC len=8")
	assert.Contains(t, out, "Data (2 bytes): 01 02")
	assert.Contains(t, out, "not a DPA packet")
}

func TestDecode_Incomplete(t *testing.T) {
	out := decode(t, "", false, "3C4F")
	assert.Contains(t, out, "[INCOMPLETE] 2 bytes")
}

func TestDecode_InvalidHex(t *testing.T) {
	decodeCmd.SetIn(strings.NewReader("3C 4F\nzz\n"))
	decodeCmd.SetOut(&bytes.Buffer{})
	err := runDecode(decodeCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
