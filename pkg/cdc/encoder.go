// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import "fmt"

// Command identifies a host to device command.
type Command uint8

const (
	CmdTest Command = iota
	CmdResetUSB
	CmdResetTR
	CmdUSBInfo
	CmdTRInfo
	CmdIndicate
	CmdStatus
	CmdDataSend
	CmdSwitch
)

// Commands lists every command in protocol order.
var Commands = []Command{
	CmdTest, CmdResetUSB, CmdResetTR, CmdUSBInfo, CmdTRInfo,
	CmdIndicate, CmdStatus, CmdDataSend, CmdSwitch,
}

// Header returns the ASCII header following the '>' marker.
func (c Command) Header() string {
	switch c {
	case CmdTest:
		return ""
	case CmdResetUSB:
		return "R"
	case CmdResetTR:
		return "RT"
	case CmdUSBInfo:
		return "I"
	case CmdTRInfo:
		return "IT"
	case CmdIndicate:
		return "B"
	case CmdStatus:
		return "S"
	case CmdDataSend:
		return "DS"
	case CmdSwitch:
		return "U"
	}
	return "?"
}

// Response returns the message type the device answers c with.
func (c Command) Response() MessageType {
	switch c {
	case CmdTest:
		return MsgTest
	case CmdResetUSB:
		return MsgResetUSB
	case CmdResetTR:
		return MsgResetTR
	case CmdUSBInfo:
		return MsgUSBInfo
	case CmdTRInfo:
		return MsgTRInfo
	case CmdIndicate:
		return MsgUSBConn
	case CmdStatus:
		return MsgSPIStatus
	case CmdDataSend:
		return MsgDataSend
	case CmdSwitch:
		return MsgSwitch
	}
	return MsgUnknown
}

func (c Command) String() string {
	switch c {
	case CmdTest:
		return "test"
	case CmdResetUSB:
		return "reset-usb"
	case CmdResetTR:
		return "reset-tr"
	case CmdUSBInfo:
		return "usb-info"
	case CmdTRInfo:
		return "tr-info"
	case CmdIndicate:
		return "indicate"
	case CmdStatus:
		return "status"
	case CmdDataSend:
		return "data-send"
	case CmdSwitch:
		return "switch"
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// ParseCommand looks up a command by its String name.
func ParseCommand(name string) (Command, error) {
	for _, c := range Commands {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command: %s", name)
}

// EncodeCommand builds the wire form of c. Data is only used by
// CmdDataSend, where it is prefixed by its length byte and a ':'.
func EncodeCommand(c Command, data []byte) ([]byte, error) {
	if c > CmdSwitch {
		return nil, fmt.Errorf("unknown command: %d", c)
	}

	header := c.Header()
	buf := make([]byte, 0, 1+len(header)+2+len(data)+1)
	buf = append(buf, CommandMarker)
	buf = append(buf, header...)

	if c == CmdDataSend {
		if len(data) > MaxDataSize {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrDataTooLarge, len(data), MaxDataSize)
		}
		buf = append(buf, byte(len(data)), ':')
		buf = append(buf, data...)
	}

	return append(buf, Terminator), nil
}

// EncodeFrame builds the device frame carrying m. It is the inverse
// of DecodeFrame and is used to simulate devices in tests and tools.
func EncodeFrame(m Message) ([]byte, error) {
	buf := []byte{ResponseMarker}

	switch v := m.(type) {
	case Ack:
		switch v.Kind {
		case MsgError:
			buf = append(buf, "ERR"...)
		case MsgTest:
			buf = append(buf, "OK"...)
		case MsgResetUSB:
			buf = append(buf, "R:OK"...)
		case MsgResetTR:
			buf = append(buf, "RT:OK"...)
		case MsgUSBConn:
			buf = append(buf, "B:OK"...)
		case MsgSwitch:
			buf = append(buf, "U:OK"...)
		default:
			return nil, fmt.Errorf("message type %s has a payload", v.Kind)
		}

	case DeviceInfo:
		buf = append(buf, "I:"...)
		buf = append(buf, v.DeviceType...)
		buf = append(buf, '#')
		buf = append(buf, v.FirmwareVersion...)
		buf = append(buf, '#')
		buf = append(buf, v.SerialNumber...)

	case ModuleInfo:
		buf = append(buf, "IT:"...)
		buf = append(buf, v.SerialNumber[:]...)
		buf = append(buf, v.OSVersion, v.PICType)
		buf = append(buf, v.OSBuild[:]...)

	case SPIStatus:
		buf = append(buf, "S:"...)
		buf = append(buf, v.Value)

	case DataSendResponse:
		buf = append(buf, "DS:"...)
		buf = append(buf, v.String()...)

	case AsyncData:
		if len(v.Data) > MaxDataSize {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrDataTooLarge, len(v.Data), MaxDataSize)
		}
		buf = append(buf, 'D', 'R', byte(len(v.Data)), ':')
		buf = append(buf, v.Data...)

	default:
		return nil, fmt.Errorf("unsupported message %T", m)
	}

	return append(buf, Terminator), nil
}
