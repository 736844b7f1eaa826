// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// parseHexData parses user supplied bytes. Bytes may be separated by
// spaces, dots, colons or dashes, and a leading 0x is ignored.
func parseHexData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ".", "", ":", "", "-", "", "\t", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("no data")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}
