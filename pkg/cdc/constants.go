// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cdc implements the IQRF USB-CDC control channel protocol.
//
// The channel carries ASCII-headed frames terminated by a carriage return.
// Commands sent by the host start with '>', responses and unsolicited
// messages sent by the device start with '<'. This package provides the
// incremental frame parser, typed decoding of frame payloads, the command
// encoder and a client that runs command/response exchanges over any
// io.ReadWriteCloser.
package cdc

// Framing bytes
const (
	ResponseMarker = '<'
	CommandMarker  = '>'
	Terminator     = 0x0D
)

// Size limits
const (
	MaxDataSize      = 255 // DS command and DR message payload
	TRInfoSize       = 8   // raw TR module info block
	MaxUSBInfoLength = 96  // type#version#id text, without terminator
	ReadBufferSize   = 100 // bytes requested per transport read
)

// Default serial parameters of the USB-CDC device
const (
	DefaultPort     = "/dev/ttyACM0"
	DefaultBaudRate = 57600
)

// MessageType classifies a frame received from the device.
type MessageType uint8

// Message types. MsgUnknown is only reported in non-OK parse results when
// the frame type is not determined yet.
const (
	MsgUnknown MessageType = iota
	MsgError
	MsgTest
	MsgResetUSB
	MsgResetTR
	MsgUSBInfo
	MsgTRInfo
	MsgUSBConn
	MsgSPIStatus
	MsgDataSend
	MsgSwitch
	MsgAsync
)

// String returns the protocol name of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgError:
		return "ERROR"
	case MsgTest:
		return "TEST"
	case MsgResetUSB:
		return "RESET_USB"
	case MsgResetTR:
		return "RESET_TR"
	case MsgUSBInfo:
		return "USB_INFO"
	case MsgTRInfo:
		return "TR_INFO"
	case MsgUSBConn:
		return "USB_CONN"
	case MsgSPIStatus:
		return "SPI_STATUS"
	case MsgDataSend:
		return "DATA_SEND"
	case MsgSwitch:
		return "SWITCH"
	case MsgAsync:
		return "ASYNC"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus is the outcome of a ParseData call.
type ParseStatus uint8

const (
	// ParseNotComplete means the buffer holds a valid prefix and more bytes are needed.
	ParseNotComplete ParseStatus = iota
	// ParseOK means one frame was fully decoded.
	ParseOK
	// ParseBadFormat means the byte at LastPosition violates the framing.
	ParseBadFormat
)

func (s ParseStatus) String() string {
	switch s {
	case ParseOK:
		return "OK"
	case ParseNotComplete:
		return "NOT_COMPLETE"
	case ParseBadFormat:
		return "BAD_FORMAT"
	default:
		return "INVALID"
	}
}

// SPIMode is the state reported by the TR module SPI interface.
type SPIMode uint8

// SPI modes. Values outside this set signal that the module has data ready.
const (
	SPIDisabled      SPIMode = 0x00
	SPISuspended     SPIMode = 0x07
	SPIBufferProtect SPIMode = 0x3F
	SPICRCMError     SPIMode = 0x3E
	SPIReadyComm     SPIMode = 0x80
	SPIReadyProg     SPIMode = 0x81
	SPIReadyDebug    SPIMode = 0x82
	SPISlowMode      SPIMode = 0x83
	SPIHWError       SPIMode = 0xFF
)

// IsKnown reports whether m is one of the defined SPI modes.
func (m SPIMode) IsKnown() bool {
	switch m {
	case SPIDisabled, SPISuspended, SPIBufferProtect, SPICRCMError,
		SPIReadyComm, SPIReadyProg, SPIReadyDebug, SPISlowMode, SPIHWError:
		return true
	}
	return false
}

func (m SPIMode) String() string {
	switch m {
	case SPIDisabled:
		return "DISABLED"
	case SPISuspended:
		return "SUSPENDED"
	case SPIBufferProtect:
		return "BUFF_PROTECT"
	case SPICRCMError:
		return "CRCM_ERR"
	case SPIReadyComm:
		return "READY_COMM"
	case SPIReadyProg:
		return "READY_PROG"
	case SPIReadyDebug:
		return "READY_DEBUG"
	case SPISlowMode:
		return "SLOW_MODE"
	case SPIHWError:
		return "HW_ERROR"
	default:
		return "DATA_READY"
	}
}
