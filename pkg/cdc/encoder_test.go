// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		cmd  Command
		data []byte
		want string
	}{
		{CmdTest, nil, ">\r"},
		{CmdResetUSB, nil, ">R\r"},
		{CmdResetTR, nil, ">RT\r"},
		{CmdUSBInfo, nil, ">I\r"},
		{CmdTRInfo, nil, ">IT\r"},
		{CmdIndicate, nil, ">B\r"},
		{CmdStatus, nil, ">S\r"},
		{CmdSwitch, nil, ">U\r"},
		{CmdStatus, []byte{1, 2}, ">S\r"},
		{CmdDataSend, []byte{0x01, 0x00, 0x0A, 0x00, 0xFF, 0xFF}, ">DS\x06:\x01\x00\x0A\x00\xFF\xFF\r"},
		{CmdDataSend, nil, ">DS\x00:\r"},
	}

	for _, tt := range tests {
		got, err := EncodeCommand(tt.cmd, tt.data)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.cmd, err)
			continue
		}
		if !bytes.Equal(got, []byte(tt.want)) {
			t.Errorf("%s: got %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestEncodeCommand_DataTooLarge(t *testing.T) {
	_, err := EncodeCommand(CmdDataSend, make([]byte, MaxDataSize+1))
	if !errors.Is(err, ErrDataTooLarge) {
		t.Errorf("Expected ErrDataTooLarge, got %v", err)
	}

	if _, err := EncodeCommand(CmdDataSend, make([]byte, MaxDataSize)); err != nil {
		t.Errorf("Max size payload rejected: %v", err)
	}
}

func TestEncodeCommand_Unknown(t *testing.T) {
	if _, err := EncodeCommand(Command(99), nil); err == nil {
		t.Error("Expected error for unknown command")
	}
}

func TestCommand_ResponseTypes(t *testing.T) {
	for _, c := range Commands {
		if c.Response() == MsgUnknown {
			t.Errorf("%s has no response type", c)
		}
		if c.Response() == MsgAsync || c.Response() == MsgError {
			t.Errorf("%s mapped to %s", c, c.Response())
		}
	}
}

func TestParseCommand(t *testing.T) {
	for _, c := range Commands {
		got, err := ParseCommand(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCommand(%q) = %s, %v", c.String(), got, err)
		}
	}
	if _, err := ParseCommand("reboot"); err == nil {
		t.Error("Expected error for unknown name")
	}
}

func TestEncodeFrame_Errors(t *testing.T) {
	if _, err := EncodeFrame(Ack{Kind: MsgUSBInfo}); err == nil {
		t.Error("Expected error for Ack with payload type")
	}
	if _, err := EncodeFrame(AsyncData{Data: make([]byte, MaxDataSize+1)}); !errors.Is(err, ErrDataTooLarge) {
		t.Errorf("Expected ErrDataTooLarge, got %v", err)
	}
	if _, err := EncodeFrame(nil); err == nil {
		t.Error("Expected error for nil message")
	}
}
