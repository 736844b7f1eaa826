// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// cdcscope - IQRF USB-CDC Protocol Analyzer
//
// A CLI tool for talking to IQRF USB devices in CDC mode and decoding
// their output in human-readable format.

package main

import (
	"os"

	"github.com/iqrfsdk/cdcscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
