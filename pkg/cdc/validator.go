// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import "fmt"

// AnomalyType represents different types of message anomalies
type AnomalyType int

const (
	AnomalyDeviceError AnomalyType = iota
	AnomalySPIError
	AnomalyDataRejected
	AnomalyEmptyData
	AnomalyInvalidInfo
	AnomalyBadFormat
	AnomalyDecodeError
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyDeviceError:
		return "device error"
	case AnomalySPIError:
		return "spi error"
	case AnomalyDataRejected:
		return "data rejected"
	case AnomalyEmptyData:
		return "empty data"
	case AnomalyInvalidInfo:
		return "invalid info"
	case AnomalyBadFormat:
		return "bad format"
	case AnomalyDecodeError:
		return "decode error"
	default:
		return "unknown"
	}
}

// ValidationError represents a message validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateMessage checks a decoded message for values that indicate a
// device or link problem. Returns an empty slice if the message is clean.
func ValidateMessage(m Message) []ValidationError {
	errors := []ValidationError{}

	switch v := m.(type) {
	case Ack:
		if v.Kind == MsgError {
			errors = append(errors, ValidationError{
				Type:    AnomalyDeviceError,
				Message: "Device reported ERR",
			})
		}
	case SPIStatus:
		errors = append(errors, validateSPIStatus(v)...)
	case DataSendResponse:
		if v != DSOK {
			errors = append(errors, ValidationError{
				Type:    AnomalyDataRejected,
				Message: fmt.Sprintf("Data send rejected: %s", v),
				Details: map[string]interface{}{"response": v.String()},
			})
		}
	case AsyncData:
		if len(v.Data) == 0 {
			errors = append(errors, ValidationError{
				Type:    AnomalyEmptyData,
				Message: "Async message without data",
			})
		}
	case DeviceInfo:
		errors = append(errors, validateDeviceInfo(v)...)
	case ModuleInfo:
		if id := v.ModuleID(); id == 0 || id == 0xFFFFFFFF {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidInfo,
				Message: fmt.Sprintf("Invalid module ID %08X", id),
				Details: map[string]interface{}{"module_id": id},
			})
		}
	}

	return errors
}

func validateSPIStatus(s SPIStatus) []ValidationError {
	if s.DataReady {
		return nil
	}
	switch s.Mode() {
	case SPICRCMError, SPIHWError, SPIBufferProtect:
		return []ValidationError{{
			Type:    AnomalySPIError,
			Message: fmt.Sprintf("SPI reports %s", s.Mode()),
			Details: map[string]interface{}{"value": s.Value},
		}}
	}
	return nil
}

func validateDeviceInfo(d DeviceInfo) []ValidationError {
	errors := []ValidationError{}
	if d.DeviceType == "" {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidInfo,
			Message: "Device type is empty",
		})
	}
	if d.FirmwareVersion == "" {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidInfo,
			Message: "Firmware version is empty",
		})
	}
	return errors
}

// ValidateParseResult turns a bad parse result into a validation error
func ValidateParseResult(r ParseResult) []ValidationError {
	if r.Status != ParseBadFormat {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyBadFormat,
		Message: fmt.Sprintf("Bad message format at byte %d", r.LastPosition),
		Details: map[string]interface{}{"position": r.LastPosition, "type": r.Type.String()},
	}}
}
