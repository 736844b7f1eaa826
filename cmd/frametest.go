// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
	"github.com/iqrfsdk/cdcscope/pkg/hdlc"
)

var (
	frameTestTimeout int
	frameTestNoProbe bool
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid frame on the connection until timeout.

With --framing cdc the connection test command (">\r") is sent first, so a
connected device answers with "<OK\r". Use --no-probe to only listen.
Invalid bytes are ignored until a complete, valid frame arrives.

With --framing hdlc the command listens for an HDLC frame with a correct
check byte.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to a USB device or a WebSocket serial bridge.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().BoolVar(&frameTestNoProbe, "no-probe", false, "Do not send the test command (cdc only)")
}

type frameTestResult struct {
	kind    string
	length  int
	raw     string
	skipped int
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("cdcscope - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)

	resultChan := make(chan frameTestResult, 1)
	errChan := make(chan error, 1)

	if cfg.Connection.Framing == "hdlc" {
		check, err := hdlc.ParseChecksum(cfg.Connection.Checksum)
		if err != nil {
			return err
		}
		fmt.Printf("Waiting for valid HDLC frame (%s)...\n\n", check)
		go waitHDLCFrame(conn, check, resultChan, errChan)
	} else {
		if !frameTestNoProbe {
			probe, _ := cdc.EncodeCommand(cdc.CmdTest, nil)
			if _, err := conn.Write(probe); err != nil {
				fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
				os.Exit(2)
			}
		}
		fmt.Printf("Waiting for valid CDC frame...\n\n")
		go waitCDCFrame(conn, resultChan, errChan)
	}

	// Wait for frame or timeout
	select {
	case res := <-resultChan:
		if res.skipped > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", res.skipped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s\n", res.kind)
		fmt.Printf("  Length: %d bytes\n", res.length)
		fmt.Printf("  Raw: %s\n", res.raw)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}

func waitCDCFrame(conn Connection, resultChan chan<- frameTestResult, errChan chan<- error) {
	sc := cdc.NewScanner(nil)
	buf := make([]byte, cdc.ReadBufferSize)
	invalidBytes := 0

	for {
		n, err := conn.Read(buf)
		if err != nil {
			errChan <- err
			return
		}

		var found *frameTestResult
		sc.Feed(buf[:n], func(res cdc.ParseResult, raw []byte) {
			if found != nil {
				return
			}
			if res.Status == cdc.ParseBadFormat {
				invalidBytes += len(raw)
				return
			}
			found = &frameTestResult{
				kind:    res.Type.String(),
				length:  len(raw),
				raw:     cdc.FormatRaw(raw),
				skipped: invalidBytes,
			}
		})
		if found != nil {
			resultChan <- *found
			return
		}
	}
}

func waitHDLCFrame(conn Connection, check hdlc.Checksum, resultChan chan<- frameTestResult, errChan chan<- error) {
	framer := hdlc.NewFramer(conn, check)
	invalidBytes := 0

	data, err := framer.ReadFrame(func(raw []byte, err error) {
		invalidBytes += len(raw)
	})
	if err != nil {
		errChan <- err
		return
	}

	resultChan <- frameTestResult{
		kind:    "HDLC",
		length:  len(data),
		raw:     cdc.FormatHex(data),
		skipped: invalidBytes,
	}
}
