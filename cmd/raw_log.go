// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
	"github.com/iqrfsdk/cdcscope/pkg/dpa"
	"github.com/iqrfsdk/cdcscope/pkg/hdlc"
)

var rawLogShowRaw bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display frames as they arrive.

With --framing cdc (default) every USB-CDC frame is shown with timestamp,
message type and decoded payload. DR payloads are also decoded as DPA packets.
With --framing hdlc every HDLC frame of a CDC-UART link is checked and its
DPA packet decoded.

The command only listens. Use it next to a program driving the device, or
send commands with the send and info commands from another terminal.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogShowRaw, "raw", false, "Also print the raw frame bytes")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("cdcscope - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if cfg.Connection.Framing == "hdlc" {
		err = rawLogHDLC(conn)
	} else {
		err = rawLogCDC(conn)
	}
	if isConnectionClosed(err) {
		log.Info("Connection closed")
		return nil
	}
	return err
}

func rawLogCDC(conn Connection) error {
	sc := cdc.NewScanner(nil)
	buf := make([]byte, cdc.ReadBufferSize)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}

		sc.Feed(buf[:n], func(res cdc.ParseResult, raw []byte) {
			if res.Status == cdc.ParseBadFormat {
				fmt.Printf("[ERROR] bad format at byte %d, dropped %d bytes: %s\n",
					res.LastPosition, len(raw), cdc.FormatRaw(raw))
				return
			}

			fmt.Print(cdc.FormatFrame(time.Now(), res.Type, raw))
			if rawLogShowRaw {
				fmt.Printf("  raw: %s\n", cdc.FormatRaw(raw))
			}
			if res.Type == cdc.MsgAsync {
				if msg, err := sc.Parser().Message(); err == nil {
					printDPA(msg.(cdc.AsyncData).Data)
				}
			}
		})
	}
}

func rawLogHDLC(conn Connection) error {
	check, err := hdlc.ParseChecksum(cfg.Connection.Checksum)
	if err != nil {
		return err
	}
	framer := hdlc.NewFramer(conn, check)

	for {
		data, err := framer.ReadFrame(func(raw []byte, err error) {
			fmt.Printf("[ERROR] %v: %s\n", err, cdc.FormatHex(raw))
		})
		if err != nil {
			return err
		}

		fmt.Printf("[%s] HDLC len=%d\n", time.Now().Format("15:04:05.000"), len(data))
		if rawLogShowRaw {
			fmt.Printf("  raw: %s\n", cdc.FormatHex(data))
		}
		printDPA(data)
	}
}

// printDPA prints the DPA decoding of data, or its hex dump when it is not
// a DPA packet.
func printDPA(data []byte) {
	fprintDPA(os.Stdout, data)
}

func fprintDPA(w io.Writer, data []byte) {
	p, err := dpa.Parse(data)
	if err != nil {
		fmt.Fprintf(w, "  DPA: (not a DPA packet) %s\n", cdc.FormatHex(data))
		return
	}
	fmt.Fprintf(w, "  DPA: %s\n", p.Format())
}
