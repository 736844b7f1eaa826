// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dpa decodes the DPA packets carried in IQRF data send (DS) and
// async (DR) payloads.
//
// Layout: NADR (2, LE), PNUM, PCMD, HWPID (2, LE), then for responses and
// confirmations ErrN, DpaValue and PDATA. A response has bit 7 of PCMD set.
package dpa

import (
	"encoding/binary"
	"fmt"
)

// Header sizes
const (
	RequestHeaderSize  = 6
	ResponseHeaderSize = 8
)

// Addresses and wildcards
const (
	AddressCoordinator = 0x0000
	AddressBroadcast   = 0x00FF
	AddressLocal       = 0x00FC
	HWPIDAny           = 0xFFFF
)

// Peripheral numbers
const (
	PeripheralCoordinator = 0x00
	PeripheralNode        = 0x01
	PeripheralOS          = 0x02
	PeripheralEEPROM      = 0x03
	PeripheralEEEPROM     = 0x04
	PeripheralRAM         = 0x05
	PeripheralLEDR        = 0x06
	PeripheralLEDG        = 0x07
	PeripheralIO          = 0x09
	PeripheralThermometer = 0x0A
	PeripheralUART        = 0x0C
	PeripheralFRC         = 0x0D
)

// ResponseFlag marks a response PCMD
const ResponseFlag = 0x80

// Error codes (ErrN)
const (
	StatusOK           = 0x00
	StatusErrorFail    = 0x01
	StatusErrorPCmd    = 0x02
	StatusErrorPNum    = 0x03
	StatusErrorAddr    = 0x04
	StatusErrorDataLen = 0x05
	StatusErrorData    = 0x06
	StatusErrorHWPID   = 0x07
	StatusErrorNAdr    = 0x08
	StatusConfirmation = 0xFF
)

// Kind classifies a DPA packet
type Kind uint8

const (
	KindRequest Kind = iota
	KindConfirmation
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindConfirmation:
		return "CONFIRMATION"
	case KindResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Packet is a decoded DPA packet
type Packet struct {
	NAdr     uint16
	PNum     byte
	PCmd     byte
	HWPID    uint16
	ErrN     byte
	DPAValue byte
	PData    []byte
	kind     Kind
}

// Kind returns the packet classification
func (p *Packet) Kind() Kind {
	return p.kind
}

// Command returns PCMD without the response flag
func (p *Packet) Command() byte {
	return p.PCmd &^ ResponseFlag
}

// Parse decodes a DPA packet.
func Parse(data []byte) (*Packet, error) {
	if len(data) < RequestHeaderSize {
		return nil, fmt.Errorf("dpa packet too short: %d bytes (min %d)", len(data), RequestHeaderSize)
	}

	p := &Packet{
		NAdr:  binary.LittleEndian.Uint16(data[0:2]),
		PNum:  data[2],
		PCmd:  data[3],
		HWPID: binary.LittleEndian.Uint16(data[4:6]),
	}

	isResponse := p.PCmd&ResponseFlag != 0
	isConfirmation := !isResponse && len(data) >= ResponseHeaderSize && data[6] == StatusConfirmation

	switch {
	case isResponse, isConfirmation:
		if len(data) < ResponseHeaderSize {
			return nil, fmt.Errorf("dpa response too short: %d bytes (min %d)", len(data), ResponseHeaderSize)
		}
		p.ErrN = data[6]
		p.DPAValue = data[7]
		p.PData = append([]byte{}, data[ResponseHeaderSize:]...)
		p.kind = KindResponse
		if isConfirmation {
			p.kind = KindConfirmation
		}
	default:
		p.PData = append([]byte{}, data[RequestHeaderSize:]...)
		p.kind = KindRequest
	}

	return p, nil
}

// NewRequest builds a request packet.
func NewRequest(nadr uint16, pnum, pcmd byte, hwpid uint16, pdata []byte) []byte {
	buf := make([]byte, RequestHeaderSize, RequestHeaderSize+len(pdata))
	binary.LittleEndian.PutUint16(buf[0:2], nadr)
	buf[2] = pnum
	buf[3] = pcmd
	binary.LittleEndian.PutUint16(buf[4:6], hwpid)
	return append(buf, pdata...)
}

// ThermometerRequest reads the temperature of node nadr.
func ThermometerRequest(nadr uint16) []byte {
	return NewRequest(nadr, PeripheralThermometer, 0x00, HWPIDAny, nil)
}

// Temperature is a thermometer reading
type Temperature struct {
	Celsius int8    // integer part
	Value   float64 // full resolution, 1/16 °C
}

// ParseTemperature decodes the PDATA of a thermometer read response.
func ParseTemperature(p *Packet) (Temperature, error) {
	if p.Kind() != KindResponse || p.PNum != PeripheralThermometer {
		return Temperature{}, fmt.Errorf("not a thermometer response")
	}
	if p.ErrN != StatusOK {
		return Temperature{}, fmt.Errorf("thermometer error: %s", StatusName(p.ErrN))
	}
	if len(p.PData) < 3 {
		return Temperature{}, fmt.Errorf("thermometer data too short: %d bytes", len(p.PData))
	}
	full := int16(binary.LittleEndian.Uint16(p.PData[1:3]))
	return Temperature{
		Celsius: int8(p.PData[0]),
		Value:   float64(full) / 16.0,
	}, nil
}

// PeripheralName returns the name of a standard peripheral
func PeripheralName(pnum byte) string {
	switch pnum {
	case PeripheralCoordinator:
		return "COORDINATOR"
	case PeripheralNode:
		return "NODE"
	case PeripheralOS:
		return "OS"
	case PeripheralEEPROM:
		return "EEPROM"
	case PeripheralEEEPROM:
		return "EEEPROM"
	case PeripheralRAM:
		return "RAM"
	case PeripheralLEDR:
		return "LEDR"
	case PeripheralLEDG:
		return "LEDG"
	case PeripheralIO:
		return "IO"
	case PeripheralThermometer:
		return "THERMOMETER"
	case PeripheralUART:
		return "UART"
	case PeripheralFRC:
		return "FRC"
	default:
		return fmt.Sprintf("PNUM_0x%02X", pnum)
	}
}

// StatusName returns the name of an ErrN code
func StatusName(errN byte) string {
	switch errN {
	case StatusOK:
		return "STATUS_NO_ERROR"
	case StatusErrorFail:
		return "ERROR_FAIL"
	case StatusErrorPCmd:
		return "ERROR_PCMD"
	case StatusErrorPNum:
		return "ERROR_PNUM"
	case StatusErrorAddr:
		return "ERROR_ADDR"
	case StatusErrorDataLen:
		return "ERROR_DATA_LEN"
	case StatusErrorData:
		return "ERROR_DATA"
	case StatusErrorHWPID:
		return "ERROR_HWPID"
	case StatusErrorNAdr:
		return "ERROR_NADR"
	case StatusConfirmation:
		return "STATUS_CONFIRMATION"
	default:
		return fmt.Sprintf("ERROR_0x%02X", errN)
	}
}

// Format returns a one-line description of the packet
func (p *Packet) Format() string {
	s := fmt.Sprintf("%s nadr=%d %s cmd=0x%02X hwpid=%04X",
		p.kind, p.NAdr, PeripheralName(p.PNum), p.Command(), p.HWPID)
	if p.kind != KindRequest {
		s += fmt.Sprintf(" %s dpa=0x%02X", StatusName(p.ErrN), p.DPAValue)
	}
	if len(p.PData) > 0 {
		s += fmt.Sprintf(" pdata=% X", p.PData)
	}
	if t, err := ParseTemperature(p); err == nil {
		s += fmt.Sprintf(" temp=%.4f°C", t.Value)
	}
	return s
}
