// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import (
	"fmt"
	"strings"
	"time"
)

// FormatFrame formats a parsed frame into a human-readable string
func FormatFrame(ts time.Time, t MessageType, frame []byte) string {
	result := fmt.Sprintf("[%s] %s len=%d\n", ts.Format("15:04:05.000"), t, len(frame))

	msg, err := DecodeFrame(t, frame)
	if err != nil {
		return result + fmt.Sprintf("  decode error: %v\n  raw: %s\n", err, FormatHex(frame))
	}
	return result + FormatMessage(msg)
}

// FormatMessage formats the payload of a decoded message
func FormatMessage(m Message) string {
	switch v := m.(type) {
	case Ack:
		if v.Kind == MsgError {
			return "  device reported ERR\n"
		}
		return "  (no payload)\n"

	case DeviceInfo:
		return fmt.Sprintf("  Type: %s\n  Firmware: %s\n  Serial: %s\n",
			v.DeviceType, v.FirmwareVersion, v.SerialNumber)

	case ModuleInfo:
		return fmt.Sprintf("  Module ID: %08X\n  OS: %s (build %04X)\n  PIC type: 0x%02X (series %d, mcu %d)\n",
			v.ModuleID(), v.OSVersionString(), v.OSBuildNumber(), v.PICType, v.TRSeries(), v.MCUType())

	case SPIStatus:
		return "  " + FormatSPIStatus(v) + "\n"

	case DataSendResponse:
		return fmt.Sprintf("  Result: %s\n", v)

	case AsyncData:
		return fmt.Sprintf("  Data (%d bytes): %s\n", len(v.Data), FormatHex(v.Data))
	}

	return fmt.Sprintf("  unknown message %T\n", m)
}

// FormatSPIStatus returns a one-line description of an SPI status
func FormatSPIStatus(s SPIStatus) string {
	if !s.DataReady {
		return fmt.Sprintf("SPI: %s (0x%02X)", s.Mode(), s.Value)
	}
	if n := s.DataLength(); n > 0 {
		return fmt.Sprintf("SPI: DATA_READY (0x%02X, %d bytes)", s.Value, n)
	}
	return fmt.Sprintf("SPI: DATA_READY (0x%02X)", s.Value)
}

// FormatHex renders bytes as space separated hex
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// FormatRaw renders a frame with printable ASCII kept and other bytes
// escaped, e.g. "<DR\x02:\x01\x02\r".
func FormatRaw(frame []byte) string {
	var sb strings.Builder
	for _, b := range frame {
		switch {
		case b == '\r':
			sb.WriteString(`\r`)
		case b >= 0x20 && b < 0x7F:
			sb.WriteByte(b)
		default:
			fmt.Fprintf(&sb, `\x%02X`, b)
		}
	}
	return sb.String()
}
