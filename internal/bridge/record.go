// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge forwards async (DR) messages from the device to MQTT and
// Redis.
package bridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/iqrfsdk/cdcscope/pkg/dpa"
)

// Record is one async message as published by the bridge.
type Record struct {
	Time   time.Time  `json:"time" cbor:"1,keyasint"`
	Source string     `json:"source,omitempty" cbor:"2,keyasint,omitempty"`
	Data   []byte     `json:"data" cbor:"3,keyasint"`
	DPA    *DPARecord `json:"dpa,omitempty" cbor:"4,keyasint,omitempty"`
}

// DPARecord holds the decoded DPA header of the payload.
type DPARecord struct {
	Kind        string   `json:"kind" cbor:"1,keyasint"`
	NAdr        uint16   `json:"nadr" cbor:"2,keyasint"`
	PNum        byte     `json:"pnum" cbor:"3,keyasint"`
	PCmd        byte     `json:"pcmd" cbor:"4,keyasint"`
	HWPID       uint16   `json:"hwpid" cbor:"5,keyasint"`
	ErrN        byte     `json:"errn" cbor:"6,keyasint"`
	DPAValue    byte     `json:"dpa_value" cbor:"7,keyasint"`
	PData       string   `json:"pdata,omitempty" cbor:"8,keyasint,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" cbor:"9,keyasint,omitempty"`
}

// NewRecord builds a record from a DR payload. When decodeDPA is set and the
// payload holds a DPA packet, its header is added.
func NewRecord(ts time.Time, source string, data []byte, decodeDPA bool) Record {
	r := Record{
		Time:   ts,
		Source: source,
		Data:   append([]byte(nil), data...),
	}
	if !decodeDPA {
		return r
	}

	p, err := dpa.Parse(data)
	if err != nil {
		return r
	}
	r.DPA = &DPARecord{
		Kind:     p.Kind().String(),
		NAdr:     p.NAdr,
		PNum:     p.PNum,
		PCmd:     p.PCmd,
		HWPID:    p.HWPID,
		ErrN:     p.ErrN,
		DPAValue: p.DPAValue,
		PData:    hex.EncodeToString(p.PData),
	}
	if t, err := dpa.ParseTemperature(p); err == nil {
		v := t.Value
		r.DPA.Temperature = &v
	}
	return r
}

// Encoding selects the record wire format.
type Encoding uint8

const (
	EncodingJSON Encoding = iota
	EncodingCBOR
)

func (e Encoding) String() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}

// ParseEncoding accepts "json" or "cbor".
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "json":
		return EncodingJSON, nil
	case "cbor":
		return EncodingCBOR, nil
	default:
		return 0, fmt.Errorf("unknown encoding: %s", s)
	}
}

var cborMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Marshal encodes r.
func (e Encoding) Marshal(r Record) ([]byte, error) {
	switch e {
	case EncodingJSON:
		return json.Marshal(r)
	case EncodingCBOR:
		return cborMode.Marshal(r)
	default:
		return nil, fmt.Errorf("unknown encoding: %d", uint8(e))
	}
}

// Unmarshal decodes data into r.
func (e Encoding) Unmarshal(data []byte, r *Record) error {
	switch e {
	case EncodingJSON:
		return json.Unmarshal(data, r)
	case EncodingCBOR:
		return cbor.Unmarshal(data, r)
	default:
		return fmt.Errorf("unknown encoding: %d", uint8(e))
	}
}
