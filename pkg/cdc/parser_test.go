// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// ============================================================
// Test Frames
// ============================================================

var trInfoFrame = []byte{'<', 'I', 'T', ':', 0x12, 0x34, 0x56, 0x81, 0x43, 0x24, 0x08, 0x08, '\r'}

var validFrames = []struct {
	name  string
	frame []byte
	typ   MessageType
}{
	{"error", []byte("<ERR\r"), MsgError},
	{"test", []byte("<OK\r"), MsgTest},
	{"reset usb", []byte("<R:OK\r"), MsgResetUSB},
	{"reset tr", []byte("<RT:OK\r"), MsgResetTR},
	{"usb info", []byte("<I:CDC IQRF#2.08#00000ABC\r"), MsgUSBInfo},
	{"usb info empty id", []byte("<I:GW#1.00#\r"), MsgUSBInfo},
	{"tr info", trInfoFrame, MsgTRInfo},
	{"tr info with cr in payload", []byte{'<', 'I', 'T', ':', '\r', '\r', 0, 0, 0x38, 0x24, 0, 0, '\r'}, MsgTRInfo},
	{"usb connection", []byte("<B:OK\r"), MsgUSBConn},
	{"spi status", []byte("<S:\x80\r"), MsgSPIStatus},
	{"spi status cr value", []byte("<S:\r\r"), MsgSPIStatus},
	{"data send ok", []byte("<DS:OK\r"), MsgDataSend},
	{"data send err", []byte("<DS:ERR\r"), MsgDataSend},
	{"data send busy", []byte("<DS:BUSY\r"), MsgDataSend},
	{"async", []byte("<DR\x03:\x01\r\x03\r"), MsgAsync},
	{"async empty", []byte("<DR\x00:\r"), MsgAsync},
	{"switch", []byte("<U:OK\r"), MsgSwitch},
}

// ============================================================
// Complete Frames
// ============================================================

func TestParseData_ValidFrames(t *testing.T) {
	for _, tt := range validFrames {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			res := p.ParseData(tt.frame)
			if res.Status != ParseOK {
				t.Fatalf("Expected OK, got %s", res)
			}
			if res.Type != tt.typ {
				t.Errorf("Expected type %s, got %s", tt.typ, res.Type)
			}
			if res.LastPosition != len(tt.frame)-1 {
				t.Errorf("Expected LastPosition %d, got %d", len(tt.frame)-1, res.LastPosition)
			}
			if !bytes.Equal(p.Frame(), tt.frame) {
				t.Errorf("Frame mismatch: %q != %q", p.Frame(), tt.frame)
			}
		})
	}
}

func TestParseData_TrailingBytesIgnored(t *testing.T) {
	p := NewParser()
	buf := []byte("<OK\r<ERR\r")

	res := p.ParseData(buf)
	if res.Status != ParseOK || res.Type != MsgTest || res.LastPosition != 3 {
		t.Fatalf("Unexpected first result: %s", res)
	}

	buf = buf[res.LastPosition+1:]
	res = p.ParseData(buf)
	if res.Status != ParseOK || res.Type != MsgError || res.LastPosition != 4 {
		t.Fatalf("Unexpected second result: %s", res)
	}
}

// ============================================================
// Incomplete Frames
// ============================================================

func TestParseData_EmptyBuffer(t *testing.T) {
	res := NewParser().ParseData(nil)
	if res.Status != ParseNotComplete {
		t.Errorf("Expected NOT_COMPLETE, got %s", res.Status)
	}
	if res.LastPosition != 0 {
		t.Errorf("Expected LastPosition 0, got %d", res.LastPosition)
	}
}

func TestParseData_AllPrefixesNotComplete(t *testing.T) {
	for _, tt := range validFrames {
		for n := 1; n < len(tt.frame); n++ {
			res := NewParser().ParseData(tt.frame[:n])
			if res.Status != ParseNotComplete {
				t.Errorf("%s: prefix %q returned %s", tt.name, tt.frame[:n], res)
				continue
			}
			if res.LastPosition != n-1 {
				t.Errorf("%s: prefix len %d LastPosition %d", tt.name, n, res.LastPosition)
			}
		}
	}
}

func TestParseData_ByteByByte(t *testing.T) {
	for _, tt := range validFrames {
		t.Run(tt.name, func(t *testing.T) {
			oneShot := NewParser().ParseData(tt.frame)

			p := NewParser()
			last := -1
			var res ParseResult
			for i := range tt.frame {
				res = p.ParseData(tt.frame[:i+1])
				if res.LastPosition < last {
					t.Fatalf("LastPosition went backwards: %d -> %d", last, res.LastPosition)
				}
				last = res.LastPosition
				if i < len(tt.frame)-1 && res.Status != ParseNotComplete {
					t.Fatalf("Byte %d: expected NOT_COMPLETE, got %s", i, res)
				}
			}

			if res != oneShot {
				t.Errorf("Byte-by-byte result %s differs from one-shot %s", res, oneShot)
			}
		})
	}
}

func TestParseData_ResumesInChunks(t *testing.T) {
	frame := []byte("<I:CDC IQRF#2.08#00000ABC\r")
	p := NewParser()

	res := p.ParseData(frame[:12])
	if res.Status != ParseNotComplete {
		t.Fatalf("Expected NOT_COMPLETE, got %s", res)
	}
	if res.Type != MsgUSBInfo {
		t.Errorf("Expected type to be known after header, got %s", res.Type)
	}

	res = p.ParseData(frame)
	if res.Status != ParseOK || res.Type != MsgUSBInfo {
		t.Fatalf("Expected USB_INFO OK, got %s", res)
	}

	info, err := p.DeviceInfo()
	if err != nil {
		t.Fatalf("DeviceInfo failed: %v", err)
	}
	want := DeviceInfo{DeviceType: "CDC IQRF", FirmwareVersion: "2.08", SerialNumber: "00000ABC"}
	if info != want {
		t.Errorf("Expected %+v, got %+v", want, info)
	}
}

func TestParseData_TypeUnknownUntilDisambiguated(t *testing.T) {
	tests := []struct {
		prefix string
		typ    MessageType
	}{
		{"<", MsgUnknown},
		{"<R", MsgUnknown},
		{"<RT", MsgResetTR},
		{"<I", MsgUnknown},
		{"<I:", MsgUSBInfo},
		{"<D", MsgUnknown},
		{"<DS", MsgDataSend},
		{"<DR", MsgAsync},
	}

	for _, tt := range tests {
		res := NewParser().ParseData([]byte(tt.prefix))
		if res.Type != tt.typ {
			t.Errorf("%q: expected %s, got %s", tt.prefix, tt.typ, res.Type)
		}
	}
}

func TestParseData_ShrunkBufferRestarts(t *testing.T) {
	p := NewParser()
	if res := p.ParseData([]byte("<DS:OK")); res.Status != ParseNotComplete {
		t.Fatalf("Expected NOT_COMPLETE, got %s", res)
	}

	res := p.ParseData([]byte("<OK\r"))
	if res.Status != ParseOK || res.Type != MsgTest {
		t.Errorf("Expected TEST OK after restart, got %s", res)
	}
}

// ============================================================
// Malformed Frames
// ============================================================

func TestParseData_BadFormat(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		pos  int
	}{
		{"unknown leading byte", []byte("X"), 0},
		{"leading zero before frame", []byte("\x00<OK\r"), 0},
		{"command marker", []byte(">OK\r"), 0},
		{"unknown tag", []byte("<X"), 1},
		{"bad err", []byte("<EX"), 2},
		{"wrong terminator", []byte("<OK\n"), 3},
		{"bad ds body", []byte("<DS:OX"), 5},
		{"spi missing terminator", []byte("<S:\x80X"), 4},
		{"version charset", []byte("<I:CDC#2.0x"), 10},
		{"id charset", []byte("<I:CDC#1#Z\r"), 9},
		{"third hash", []byte("<I:CDC#1#G1#"), 11},
		{"cr in type", []byte("<I:CDC\r"), 6},
		{"cr in version", []byte("<I:CDC#1.0\r"), 10},
		{"tr info too long", append(append([]byte{}, trInfoFrame[:12]...), 'X'), 12},
		{"async too long", []byte("<DR\x02:\x01\x02X"), 7},
		{"async missing colon", []byte("<DR\x02;"), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewParser().ParseData(tt.buf)
			if res.Status != ParseBadFormat {
				t.Fatalf("Expected BAD_FORMAT, got %s", res)
			}
			if res.LastPosition != tt.pos {
				t.Errorf("Expected LastPosition %d, got %d", tt.pos, res.LastPosition)
			}
		})
	}
}

func TestParseData_USBInfoTooLong(t *testing.T) {
	buf := []byte("<I:" + strings.Repeat("A", MaxUSBInfoLength+1))
	res := NewParser().ParseData(buf)
	if res.Status != ParseBadFormat {
		t.Fatalf("Expected BAD_FORMAT, got %s", res)
	}
	if res.LastPosition != 3+MaxUSBInfoLength {
		t.Errorf("Expected LastPosition %d, got %d", 3+MaxUSBInfoLength, res.LastPosition)
	}
}

func TestParseData_BadFormatReportsKnownType(t *testing.T) {
	res := NewParser().ParseData([]byte("<DS:OX"))
	if res.Type != MsgDataSend {
		t.Errorf("Expected DATA_SEND, got %s", res.Type)
	}
}

func TestParseData_RecoversAfterBadFormat(t *testing.T) {
	p := NewParser()
	buf := []byte("<XX\r<OK\r")

	res := p.ParseData(buf)
	if res.Status != ParseBadFormat {
		t.Fatalf("Expected BAD_FORMAT, got %s", res)
	}

	buf = buf[ResyncOffset(buf, res.LastPosition):]
	res = p.ParseData(buf)
	if res.Status != ParseOK || res.Type != MsgTest {
		t.Errorf("Expected TEST OK after resync, got %s", res)
	}
}

func TestResyncOffset(t *testing.T) {
	tests := []struct {
		buf  string
		last int
		want int
	}{
		{"xx\r<OK\r", 0, 3},
		{"<XX\r", 1, 4},
		{"<OK\n<ERR", 3, 8},
		{"<\r", 1, 2},
		{"", 0, 0},
	}

	for _, tt := range tests {
		if got := ResyncOffset([]byte(tt.buf), tt.last); got != tt.want {
			t.Errorf("ResyncOffset(%q, %d) = %d, want %d", tt.buf, tt.last, got, tt.want)
		}
	}
}

// ============================================================
// Accessors
// ============================================================

func TestAccessors_NoMessage(t *testing.T) {
	p := NewParser()
	if _, err := p.Message(); !errors.Is(err, ErrNoMessage) {
		t.Errorf("Expected ErrNoMessage, got %v", err)
	}
	if _, err := p.SPIStatus(); !errors.Is(err, ErrNoMessage) {
		t.Errorf("Expected ErrNoMessage, got %v", err)
	}
	if p.Frame() != nil {
		t.Errorf("Expected nil frame")
	}
}

func TestAccessors_TypeMismatch(t *testing.T) {
	p := NewParser()
	p.ParseData([]byte("<OK\r"))

	if _, err := p.DeviceInfo(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("DeviceInfo: expected ErrTypeMismatch, got %v", err)
	}
	if _, err := p.ModuleInfo(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("ModuleInfo: expected ErrTypeMismatch, got %v", err)
	}
	if _, err := p.DSResponse(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("DSResponse: expected ErrTypeMismatch, got %v", err)
	}
	if _, err := p.AsyncData(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsyncData: expected ErrTypeMismatch, got %v", err)
	}

	m, err := p.Message()
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	if m != (Ack{Kind: MsgTest}) {
		t.Errorf("Expected Ack{TEST}, got %#v", m)
	}
}

func TestAccessors_Idempotent(t *testing.T) {
	for _, tt := range validFrames {
		p := NewParser()
		p.ParseData(tt.frame)

		first, err := p.Message()
		if err != nil {
			t.Fatalf("%s: Message failed: %v", tt.name, err)
		}
		second, _ := p.Message()
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: accessor not idempotent: %#v != %#v", tt.name, first, second)
		}
		if first.Type() != tt.typ {
			t.Errorf("%s: message type %s, want %s", tt.name, first.Type(), tt.typ)
		}
	}
}

func TestAccessors_AsyncDataIsCopied(t *testing.T) {
	p := NewParser()
	p.ParseData([]byte("<DR\x02:\xAA\xBB\r"))

	a, err := p.AsyncData()
	if err != nil {
		t.Fatalf("AsyncData failed: %v", err)
	}
	a.Data[0] = 0x00

	b, _ := p.AsyncData()
	if !bytes.Equal(b.Data, []byte{0xAA, 0xBB}) {
		t.Errorf("Cached payload was mutated: % X", b.Data)
	}
}

func TestAccessors_SurviveBadFormat(t *testing.T) {
	p := NewParser()
	p.ParseData([]byte("<S:\x80\r"))
	p.ParseData([]byte("?"))

	s, err := p.SPIStatus()
	if err != nil {
		t.Fatalf("SPIStatus failed: %v", err)
	}
	if s.Mode() != SPIReadyComm {
		t.Errorf("Expected READY_COMM, got %s", s.Mode())
	}
}

func TestAccessors_Payloads(t *testing.T) {
	p := NewParser()

	p.ParseData(trInfoFrame)
	mi, err := p.ModuleInfo()
	if err != nil {
		t.Fatalf("ModuleInfo failed: %v", err)
	}
	if mi.ModuleID() != 0x81563412 {
		t.Errorf("ModuleID: got %08X", mi.ModuleID())
	}
	if mi.OSVersionString() != "4.03" {
		t.Errorf("OSVersionString: got %s", mi.OSVersionString())
	}
	if mi.OSBuildNumber() != 0x0808 {
		t.Errorf("OSBuildNumber: got %04X", mi.OSBuildNumber())
	}
	if mi.TRSeries() != 2 || mi.MCUType() != 4 {
		t.Errorf("PIC type decode: series %d mcu %d", mi.TRSeries(), mi.MCUType())
	}

	p.ParseData([]byte("<DS:BUSY\r"))
	ds, err := p.DSResponse()
	if err != nil || ds != DSBusy {
		t.Errorf("DSResponse: got %s, %v", ds, err)
	}

	p.ParseData([]byte("<DR\x00:\r"))
	ad, err := p.AsyncData()
	if err != nil || len(ad.Data) != 0 {
		t.Errorf("AsyncData: got % X, %v", ad.Data, err)
	}
}

// ============================================================
// SPI Status
// ============================================================

func TestSPIStatus(t *testing.T) {
	tests := []struct {
		value     byte
		dataReady bool
		mode      SPIMode
		length    int
	}{
		{0x00, false, SPIDisabled, 0},
		{0x07, false, SPISuspended, 0},
		{0x3E, false, SPICRCMError, 0},
		{0x3F, false, SPIBufferProtect, 0},
		{0x80, false, SPIReadyComm, 0},
		{0x83, false, SPISlowMode, 0},
		{0xFF, false, SPIHWError, 0},
		{0x40, true, 0x40, 64},
		{0x45, true, 0x45, 5},
		{0x7F, true, 0x7F, 63},
		{0x01, true, 0x01, 0},
	}

	for _, tt := range tests {
		s := NewSPIStatus(tt.value)
		if s.DataReady != tt.dataReady {
			t.Errorf("0x%02X: DataReady %v, want %v", tt.value, s.DataReady, tt.dataReady)
		}
		if s.Mode() != tt.mode {
			t.Errorf("0x%02X: Mode %s, want %s", tt.value, s.Mode(), tt.mode)
		}
		if s.DataLength() != tt.length {
			t.Errorf("0x%02X: DataLength %d, want %d", tt.value, s.DataLength(), tt.length)
		}
	}
}

// ============================================================
// DecodeFrame
// ============================================================

func TestDecodeFrame_Errors(t *testing.T) {
	tests := []struct {
		name  string
		typ   MessageType
		frame string
	}{
		{"missing marker", MsgTest, "OK\r"},
		{"missing terminator", MsgTest, "<OK"},
		{"usb info fields", MsgUSBInfo, "<I:CDC#1\r"},
		{"tr info short", MsgTRInfo, "<IT:\x01\x02\r"},
		{"ds value", MsgDataSend, "<DS:MAYBE\r"},
		{"async length", MsgAsync, "<DR\x05:\x01\r"},
		{"unknown type", MsgUnknown, "<OK\r"},
	}

	for _, tt := range tests {
		if _, err := DecodeFrame(tt.typ, []byte(tt.frame)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestEncodeFrame_ParsesBack(t *testing.T) {
	msgs := []Message{
		Ack{Kind: MsgError},
		Ack{Kind: MsgSwitch},
		DeviceInfo{DeviceType: "GW-USB-06", FirmwareVersion: "2.10", SerialNumber: "1A2B3C4D"},
		ModuleInfo{SerialNumber: [4]byte{1, 2, 3, 0x81}, OSVersion: 0x43, PICType: 0x24, OSBuild: [2]byte{0xB8, 0x08}},
		NewSPIStatus(0x81),
		DSErr,
		AsyncData{Data: []byte{0x01, 0x00, 0x0A, 0x80, 0x00, 0x00, 0x00, 0x00, 0x16, 0x60, 0x01}},
	}

	for _, m := range msgs {
		frame, err := EncodeFrame(m)
		if err != nil {
			t.Fatalf("EncodeFrame(%#v) failed: %v", m, err)
		}
		p := NewParser()
		res := p.ParseData(frame)
		if res.Status != ParseOK || res.Type != m.Type() {
			t.Fatalf("%q parsed as %s", frame, res)
		}
		got, _ := p.Message()
		if !reflect.DeepEqual(got, m) {
			t.Errorf("Round trip mismatch: %#v != %#v", got, m)
		}
	}
}
