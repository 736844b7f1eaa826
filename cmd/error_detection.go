// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
	probeInterval time.Duration
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and device errors",
	Long: `Track frame errors, malformed data, and device reported failures with statistics.

This command validates each USB-CDC frame and detects:
  - Malformed frames (bad format, resynchronization on the next CR)
  - Decode failures
  - Device reported errors (<ERR), rejected data sends (<DS:ERR, <DS:BUSY)
  - SPI failures of the TR module (CRCM, HW error, buffer protection)
  - Suspicious identification (empty fields, module ID 0 or FFFFFFFF)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors and async data are displayed. Use --show-all to
display every frame.

The device only talks when asked or when the TR module sends data. Use
--probe to send the SPI status command periodically and keep frames flowing.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	errorDetectionCmd.Flags().DurationVar(&probeInterval, "probe", 0, "Send >S periodically at this interval (0 disables)")
}

// frameEvent is one scanner result with its decoding and validation
type frameEvent struct {
	res              cdc.ParseResult
	raw              []byte
	msg              cdc.Message
	decodeErr        error
	validationErrors []cdc.ValidationError
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if cfg.Connection.Framing != "cdc" {
		return fmt.Errorf("error_detection needs --framing cdc")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if probeInterval > 0 {
		go probeLoop(conn, probeInterval)
	}

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// probeLoop writes the SPI status command until the connection fails
func probeLoop(conn Connection, interval time.Duration) {
	probe, _ := cdc.EncodeCommand(cdc.CmdStatus, nil)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if _, err := conn.Write(probe); err != nil {
			log.Debugf("Probe failed: %v", err)
			return
		}
	}
}

// readFrameEvents reads conn until it fails, calling fn for every frame
// and every dropped run of bytes.
func readFrameEvents(conn Connection, fn func(frameEvent)) error {
	sc := cdc.NewScanner(nil)
	buf := make([]byte, cdc.ReadBufferSize)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}

		sc.Feed(buf[:n], func(res cdc.ParseResult, raw []byte) {
			ev := frameEvent{
				res: res,
				raw: append([]byte(nil), raw...),
			}
			if res.Status == cdc.ParseBadFormat {
				ev.validationErrors = cdc.ValidateParseResult(res)
			} else {
				ev.msg, ev.decodeErr = sc.Parser().Message()
				if ev.decodeErr == nil {
					ev.validationErrors = cdc.ValidateMessage(ev.msg)
				}
			}
			fn(ev)
		})
	}
}

func isConnectionClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF)
}

// printBadFormat prints a resynchronization in highlighted format
func printBadFormat(ev frameEvent) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mBAD FORMAT:\033[0m %s at byte %d\n", timestamp, ev.res.Type, ev.res.LastPosition)
	fmt.Printf("  Dropped %d bytes: %s\n", len(ev.raw), cdc.FormatRaw(ev.raw))
	fmt.Printf("  >>> RESYNCHRONIZED <<<\n\n")
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(ev frameEvent) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, ev.decodeErr)
	fmt.Printf("  Frame: %s\n", cdc.FormatRaw(ev.raw))
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

// printAsyncData prints a DR message with its DPA decoding
func printAsyncData(data cdc.AsyncData) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;32mASYNC DATA:\033[0m %d bytes: %s\n", timestamp, len(data.Data), cdc.FormatHex(data.Data))
	printDPA(data.Data)
	fmt.Println()
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(ev frameEvent) {
	timestamp := time.Now().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s\n", timestamp, ev.res.Type)
	fmt.Printf("  Format: \033[1;32mOK\033[0m\n")

	for i, err := range ev.validationErrors {
		switch err.Type {
		case cdc.AnomalyDeviceError, cdc.AnomalyDataRejected:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case cdc.AnomalySPIError:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if mode, ok := err.Details["mode"].(string); ok {
				fmt.Printf("    SPI mode=%s\n", mode)
			}

		case cdc.AnomalyEmptyData, cdc.AnomalyInvalidInfo:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			for k, v := range err.Details {
				fmt.Printf("    %s=%v\n", k, v)
			}

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  Raw: %s\n", cdc.FormatRaw(ev.raw))
	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(conn Connection, connInfo string) error {
	synchronized := false
	invalidBytesBeforeSync := 0

	// Create TUI program
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	// Reader goroutine
	go func() {
		err := readFrameEvents(conn, func(ev frameEvent) {
			if ev.res.Status == cdc.ParseBadFormat && !synchronized {
				// Not synced yet, just count invalid bytes
				invalidBytesBeforeSync += len(ev.raw)
				return
			}
			if !synchronized {
				// First frame! We're now synchronized
				synchronized = true
				p.Send(syncMsg{invalidBytes: invalidBytesBeforeSync})
			}
			p.Send(serialDataMsg(ev))
		})
		p.Send(connectionLostMsg{err: err})
	}()

	// Run TUI
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("cdcscope - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := cdc.NewStatistics()

	// Sync tracking - ignore bad format until first valid frame
	synchronized := false
	invalidBytesBeforeSync := 0

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads
	events := make(chan frameEvent, 16)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readFrameEvents(conn, func(ev frameEvent) {
			events <- ev
		})
	}()

	for {
		select {
		case ev := <-events:
			if ev.res.Status == cdc.ParseBadFormat {
				if !synchronized {
					// Not synced yet, just count invalid bytes
					invalidBytesBeforeSync += len(ev.raw)
					continue
				}
				stats.Update(ev.res, len(ev.raw), nil, nil)
				printBadFormat(ev)
				continue
			}

			if !synchronized {
				// First frame! We're now synchronized
				synchronized = true
				if invalidBytesBeforeSync > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", invalidBytesBeforeSync)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			stats.Update(ev.res, 0, ev.decodeErr, ev.validationErrors)

			switch {
			case ev.decodeErr != nil:
				printDecodeError(ev)
			case len(ev.validationErrors) > 0:
				printValidationErrors(ev)
			case ev.res.Type == cdc.MsgAsync:
				// Always print async data
				printAsyncData(ev.msg.(cdc.AsyncData))
			case showAll:
				fmt.Print(cdc.FormatFrame(time.Now(), ev.res.Type, ev.raw))
			}

		case err := <-readErr:
			fmt.Println()
			fmt.Print(stats.String())
			if isConnectionClosed(err) {
				log.Info("Connection closed")
				return nil
			}
			return err

		case <-statsTicker.C:
			// Print statistics
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
