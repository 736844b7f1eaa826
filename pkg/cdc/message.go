// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Message is a decoded device frame. The concrete type is selected by Type:
//
//	MsgUSBInfo    DeviceInfo
//	MsgTRInfo     ModuleInfo
//	MsgSPIStatus  SPIStatus
//	MsgDataSend   DataSendResponse
//	MsgAsync      AsyncData
//	others        Ack
type Message interface {
	Type() MessageType
}

// Ack is a frame without payload (ERR, OK, R:OK, RT:OK, B:OK, U:OK).
type Ack struct {
	Kind MessageType
}

func (a Ack) Type() MessageType { return a.Kind }

// DeviceInfo describes the USB device, from "<I:type#version#id\r".
type DeviceInfo struct {
	DeviceType      string
	FirmwareVersion string
	SerialNumber    string
}

func (DeviceInfo) Type() MessageType { return MsgUSBInfo }

// ModuleInfo is the identification block of the TR module.
type ModuleInfo struct {
	SerialNumber [4]byte
	OSVersion    byte
	PICType      byte
	OSBuild      [2]byte
}

func (ModuleInfo) Type() MessageType { return MsgTRInfo }

// ModuleID returns the serial number as the 32-bit module identifier.
func (m ModuleInfo) ModuleID() uint32 {
	return binary.LittleEndian.Uint32(m.SerialNumber[:])
}

// OSVersionString formats the OS version as major.minor.
func (m ModuleInfo) OSVersionString() string {
	return fmt.Sprintf("%d.%02d", m.OSVersion>>4, m.OSVersion&0x0F)
}

// OSBuildNumber returns the OS build as a number.
func (m ModuleInfo) OSBuildNumber() uint16 {
	return binary.LittleEndian.Uint16(m.OSBuild[:])
}

// TRSeries returns the TR series code from the upper nibble of the PIC type.
func (m ModuleInfo) TRSeries() byte {
	return m.PICType >> 4
}

// MCUType returns the MCU code from the lower nibble of the PIC type.
func (m ModuleInfo) MCUType() byte {
	return m.PICType & 0x07
}

// SPIStatus is the SPI status byte of the TR module.
type SPIStatus struct {
	Value     byte
	DataReady bool
}

func (SPIStatus) Type() MessageType { return MsgSPIStatus }

// NewSPIStatus classifies a raw status byte.
func NewSPIStatus(v byte) SPIStatus {
	return SPIStatus{Value: v, DataReady: !SPIMode(v).IsKnown()}
}

// Mode returns the SPI mode. Meaningful only when DataReady is false.
func (s SPIStatus) Mode() SPIMode {
	return SPIMode(s.Value)
}

// DataLength returns the number of bytes the module has ready, or 0 when
// the status does not carry a length.
func (s SPIStatus) DataLength() int {
	if !s.DataReady || s.Value < 0x40 || s.Value > 0x7F {
		return 0
	}
	if s.Value == 0x40 {
		return 64
	}
	return int(s.Value - 0x40)
}

// DataSendResponse is the device answer to a DS command.
type DataSendResponse uint8

const (
	DSOK DataSendResponse = iota
	DSErr
	DSBusy
)

func (DataSendResponse) Type() MessageType { return MsgDataSend }

func (r DataSendResponse) String() string {
	switch r {
	case DSOK:
		return "OK"
	case DSErr:
		return "ERR"
	case DSBusy:
		return "BUSY"
	default:
		return "INVALID"
	}
}

// AsyncData is the payload of an unsolicited DR message.
type AsyncData struct {
	Data []byte
}

func (AsyncData) Type() MessageType { return MsgAsync }

// Payload offsets inside a complete frame
const (
	usbInfoOffset  = 3 // "<I:"
	trInfoOffset   = 4 // "<IT:"
	spiOffset      = 3 // "<S:"
	dsOffset       = 4 // "<DS:"
	asyncLenOffset = 3 // "<DR" len
	asyncOffset    = 5 // "<DR" len ":"
)

// DecodeFrame decodes the payload of a complete frame of type t. The frame
// must include the leading '<' and the terminating CR.
func DecodeFrame(t MessageType, frame []byte) (Message, error) {
	if len(frame) < 2 || frame[0] != ResponseMarker || frame[len(frame)-1] != Terminator {
		return nil, fmt.Errorf("invalid frame delimiters")
	}
	body := frame[:len(frame)-1]

	switch t {
	case MsgError, MsgTest, MsgResetUSB, MsgResetTR, MsgUSBConn, MsgSwitch:
		return Ack{Kind: t}, nil

	case MsgUSBInfo:
		if len(body) < usbInfoOffset {
			return nil, fmt.Errorf("usb info frame too short: %d bytes", len(frame))
		}
		fields := bytes.Split(body[usbInfoOffset:], []byte{'#'})
		if len(fields) != 3 {
			return nil, fmt.Errorf("usb info has %d fields (expected 3)", len(fields))
		}
		return DeviceInfo{
			DeviceType:      string(fields[0]),
			FirmwareVersion: string(fields[1]),
			SerialNumber:    string(fields[2]),
		}, nil

	case MsgTRInfo:
		if len(body) != trInfoOffset+TRInfoSize {
			return nil, fmt.Errorf("tr info frame length %d (expected %d)", len(frame), trInfoOffset+TRInfoSize+1)
		}
		var m ModuleInfo
		p := body[trInfoOffset:]
		copy(m.SerialNumber[:], p[0:4])
		m.OSVersion = p[4]
		m.PICType = p[5]
		copy(m.OSBuild[:], p[6:8])
		return m, nil

	case MsgSPIStatus:
		if len(body) != spiOffset+1 {
			return nil, fmt.Errorf("spi status frame length %d (expected %d)", len(frame), spiOffset+2)
		}
		return NewSPIStatus(body[spiOffset]), nil

	case MsgDataSend:
		if len(body) < dsOffset {
			return nil, fmt.Errorf("data send frame too short: %d bytes", len(frame))
		}
		switch string(body[dsOffset:]) {
		case "OK":
			return DSOK, nil
		case "ERR":
			return DSErr, nil
		case "BUSY":
			return DSBusy, nil
		}
		return nil, fmt.Errorf("unknown DS response value: %q", body[dsOffset:])

	case MsgAsync:
		if len(body) < asyncOffset {
			return nil, fmt.Errorf("async frame too short: %d bytes", len(frame))
		}
		n := int(body[asyncLenOffset])
		if len(body)-asyncOffset != n {
			return nil, fmt.Errorf("async data length %d does not match header %d", len(body)-asyncOffset, n)
		}
		data := make([]byte, n)
		copy(data, body[asyncOffset:])
		return AsyncData{Data: data}, nil
	}

	return nil, fmt.Errorf("unknown message type: %d", t)
}
