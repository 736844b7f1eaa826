// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
)

var decodeBinary bool

var decodeCmd = &cobra.Command{
	Use:   "decode [hex bytes]",
	Short: "Decode captured USB-CDC data without a device",
	Long: `Run captured device output through the frame parser and print every frame.

The data is given as hex bytes on the command line, or read from standard
input: one hex dump per line, or raw bytes with --binary. Frames may be split
across arguments and lines. Malformed data is reported with the position of
the offending byte, and parsing resynchronizes on the next CR.

Examples:
  cdcscope decode 3C 4F 4B 0D
  cdcscope decode 3C4452033A0102030D
  cat capture.bin | cdcscope decode --binary`,
	Args: cobra.ArbitraryArgs,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeBinary, "binary", false, "Read raw bytes from standard input")
}

func runDecode(cmd *cobra.Command, args []string) error {
	sc := cdc.NewScanner(nil)
	out := cmd.OutOrStdout()
	emit := func(res cdc.ParseResult, raw []byte) {
		printDecoded(out, sc, res, raw)
	}

	switch {
	case len(args) > 0:
		data, err := parseHexData(strings.Join(args, ""))
		if err != nil {
			return err
		}
		sc.Feed(data, emit)

	case decodeBinary:
		buf := make([]byte, cdc.ReadBufferSize)
		for {
			n, err := cmd.InOrStdin().Read(buf)
			sc.Feed(buf[:n], emit)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}

	default:
		lines := bufio.NewScanner(cmd.InOrStdin())
		lineNo := 0
		for lines.Scan() {
			lineNo++
			if strings.TrimSpace(lines.Text()) == "" {
				continue
			}
			data, err := parseHexData(lines.Text())
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			sc.Feed(data, emit)
		}
		if err := lines.Err(); err != nil {
			return err
		}
	}

	if n := sc.Buffered(); n > 0 {
		fmt.Fprintf(out, "[INCOMPLETE] %d bytes without terminator\n", n)
	}
	return nil
}

// printDecoded writes one scanner result in the raw_log format
func printDecoded(out io.Writer, sc *cdc.Scanner, res cdc.ParseResult, raw []byte) {
	if res.Status == cdc.ParseBadFormat {
		fmt.Fprintf(out, "[ERROR] bad format at byte %d, dropped %d bytes: %s\n",
			res.LastPosition, len(raw), cdc.FormatRaw(raw))
		return
	}
	fmt.Fprint(out, cdc.FormatFrame(time.Now(), res.Type, raw))
	msg, err := sc.Parser().Message()
	if err != nil {
		return
	}
	for _, v := range cdc.ValidateMessage(msg) {
		fmt.Fprintf(out, "  warning: %s\n", v.Message)
	}
	if data, ok := msg.(cdc.AsyncData); ok {
		fprintDPA(out, data.Data)
	}
}
