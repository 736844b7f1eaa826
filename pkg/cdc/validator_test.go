// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import (
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Validator Tests
// ============================================================

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []AnomalyType
	}{
		{"ok ack", Ack{Kind: MsgTest}, nil},
		{"err ack", Ack{Kind: MsgError}, []AnomalyType{AnomalyDeviceError}},
		{"spi ready", NewSPIStatus(byte(SPIReadyComm)), nil},
		{"spi data ready", NewSPIStatus(0x45), nil},
		{"spi crcm error", NewSPIStatus(byte(SPICRCMError)), []AnomalyType{AnomalySPIError}},
		{"spi hw error", NewSPIStatus(byte(SPIHWError)), []AnomalyType{AnomalySPIError}},
		{"ds ok", DSOK, nil},
		{"ds busy", DSBusy, []AnomalyType{AnomalyDataRejected}},
		{"ds err", DSErr, []AnomalyType{AnomalyDataRejected}},
		{"async", AsyncData{Data: []byte{1}}, nil},
		{"async empty", AsyncData{}, []AnomalyType{AnomalyEmptyData}},
		{"device info", DeviceInfo{DeviceType: "CDC IQRF", FirmwareVersion: "2.08"}, nil},
		{"device info empty", DeviceInfo{}, []AnomalyType{AnomalyInvalidInfo, AnomalyInvalidInfo}},
		{"module info", ModuleInfo{SerialNumber: [4]byte{0x12, 0x34, 0x56, 0x81}}, nil},
		{"module info zero id", ModuleInfo{}, []AnomalyType{AnomalyInvalidInfo}},
		{"module info erased id", ModuleInfo{SerialNumber: [4]byte{0xFF, 0xFF, 0xFF, 0xFF}}, []AnomalyType{AnomalyInvalidInfo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateMessage(tt.msg)
			if len(got) != len(tt.want) {
				t.Fatalf("ValidateMessage() returned %d errors, want %d: %v", len(got), len(tt.want), got)
			}
			for i, v := range got {
				if v.Type != tt.want[i] {
					t.Errorf("error %d type = %v, want %v", i, v.Type, tt.want[i])
				}
				if v.Message == "" {
					t.Errorf("error %d has no message", i)
				}
			}
		})
	}
}

func TestValidationError_IsError(t *testing.T) {
	var err error = &ValidationError{Type: AnomalyBadFormat, Message: "bad"}
	var v *ValidationError
	if !errors.As(err, &v) || v.Error() != "bad" {
		t.Errorf("ValidationError does not behave as an error: %v", err)
	}
}

func TestValidateParseResult(t *testing.T) {
	if got := ValidateParseResult(ParseResult{Status: ParseOK, Type: MsgTest}); got != nil {
		t.Errorf("OK result produced errors: %v", got)
	}
	if got := ValidateParseResult(ParseResult{Status: ParseNotComplete}); got != nil {
		t.Errorf("incomplete result produced errors: %v", got)
	}

	got := ValidateParseResult(ParseResult{Status: ParseBadFormat, LastPosition: 2, Type: MsgDataSend})
	if len(got) != 1 {
		t.Fatalf("got %d errors, want 1", len(got))
	}
	if got[0].Type != AnomalyBadFormat {
		t.Errorf("type = %v, want %v", got[0].Type, AnomalyBadFormat)
	}
	if got[0].Details["position"] != 2 {
		t.Errorf("position detail = %v, want 2", got[0].Details["position"])
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	s.Update(ParseResult{Status: ParseOK, Type: MsgTest}, 0, nil, nil)
	s.Update(ParseResult{Status: ParseOK, Type: MsgAsync}, 0, nil, nil)
	s.Update(ParseResult{Status: ParseBadFormat, LastPosition: 1}, 3, nil, nil)
	s.Update(ParseResult{Status: ParseOK, Type: MsgDataSend}, 0, nil,
		ValidateMessage(DSBusy))
	s.Update(ParseResult{Status: ParseOK, Type: MsgSPIStatus}, 0, nil,
		ValidateMessage(NewSPIStatus(byte(SPIHWError))))
	s.Update(ParseResult{Status: ParseOK, Type: MsgUSBInfo}, 0, ErrTypeMismatch, nil)

	checks := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"TotalFrames", s.TotalFrames, 6},
		{"ValidFrames", s.ValidFrames, 2},
		{"BadFormat", s.BadFormat, 1},
		{"DroppedBytes", s.DroppedBytes, 3},
		{"DataRejected", s.DataRejected, 1},
		{"SPIErrors", s.SPIErrors, 1},
		{"DecodeErrors", s.DecodeErrors, 1},
		{"AsyncMessages", s.AsyncMessages, 1},
		{"ByType[MsgTest]", s.ByType[MsgTest], 1},
		{"ByType[MsgUSBInfo]", s.ByType[MsgUSBInfo], 0},
		{"Errors()", s.Errors(), 4},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestStatistics_StringAndReset(t *testing.T) {
	s := NewStatistics()
	s.Update(ParseResult{Status: ParseBadFormat}, 5, nil, nil)

	out := s.String()
	for _, want := range []string{"Total Frames:", "Bad Format:", "5 bytes dropped", "Frame Rate:"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Device ERR:") {
		t.Errorf("String() shows zero counters:\n%s", out)
	}

	s.Reset()
	if s.TotalFrames != 0 || s.BadFormat != 0 || len(s.ByType) != 0 {
		t.Errorf("Reset() left counters: %+v", s)
	}
	if s.ByType == nil {
		t.Error("Reset() left a nil ByType map")
	}
}
