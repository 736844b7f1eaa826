// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
)

var wsTestCmd = &cobra.Command{
	Use:   "ws_test",
	Short: "Test WebSocket bridge link stability",
	Long: `Hold a WebSocket serial bridge connection open and report what arrives.

Received bytes are run through the frame parser, so async DR frames sent by
an idle device are counted as frames and garbage is counted as dropped bytes.
With --keepalive a >OK test command is written periodically to keep traffic
on the link.

Exit codes:
  0 - Link stayed up for the whole duration
  1 - Link failed
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runWsTest,
}

var (
	wsTestDuration  time.Duration
	wsTestKeepalive time.Duration
)

func init() {
	rootCmd.AddCommand(wsTestCmd)
	wsTestCmd.Flags().DurationVar(&wsTestDuration, "duration", 30*time.Second, "Test duration")
	wsTestCmd.Flags().DurationVar(&wsTestKeepalive, "keepalive", 0, "Send a test command at this interval (0 disables)")
}

// linkReport accumulates what a link test observed
type linkReport struct {
	start   time.Time
	chunks  int
	bytes   int
	frames  int
	bad     int
	dropped int
	writes  int
}

func (r *linkReport) print(result string) {
	fmt.Printf("\n--- Link Report ---\n")
	fmt.Printf("Elapsed:   %v\n", time.Since(r.start).Round(time.Millisecond))
	fmt.Printf("Received:  %d bytes in %d chunks\n", r.bytes, r.chunks)
	fmt.Printf("Frames:    %d valid, %d bad (%d bytes dropped)\n", r.frames, r.bad, r.dropped)
	if r.writes > 0 {
		fmt.Printf("Keepalive: %d sent\n", r.writes)
	}
	fmt.Printf("Result:    %s\n", result)
}

func runWsTest(cmd *cobra.Command, args []string) error {
	if cfg.Connection.URL == "" {
		return fmt.Errorf("ws_test needs --url")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Link test on %s for %v\n\n", connInfo, wsTestDuration)

	chunks := make(chan []byte, 100)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, cdc.ReadBufferSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunks <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var keepalive <-chan time.Time
	if wsTestKeepalive > 0 {
		t := time.NewTicker(wsTestKeepalive)
		defer t.Stop()
		keepalive = t.C
	}
	probe, _ := cdc.EncodeCommand(cdc.CmdTest, nil)

	report := &linkReport{start: time.Now()}
	sc := cdc.NewScanner(nil)
	deadline := time.After(wsTestDuration)
	heartbeat := time.NewTicker(5 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case data := <-chunks:
			report.chunks++
			report.bytes += len(data)
			sc.Feed(data, func(res cdc.ParseResult, raw []byte) {
				if res.Status == cdc.ParseBadFormat {
					report.bad++
					report.dropped += len(raw)
					fmt.Printf("[%s] bad frame: %s\n", time.Now().Format("15:04:05.000"), cdc.FormatRaw(raw))
					return
				}
				report.frames++
				fmt.Printf("[%s] %s frame, %d bytes\n", time.Now().Format("15:04:05.000"), res.Type, len(raw))
			})

		case <-keepalive:
			if _, err := conn.Write(probe); err != nil {
				fmt.Printf("\nWrite failed: %v\n", err)
				report.print("FAILED (write error)")
				os.Exit(1)
			}
			report.writes++

		case err := <-readErr:
			fmt.Printf("\nConnection error: %v\n", err)
			report.print("FAILED (connection error)")
			os.Exit(1)

		case <-heartbeat.C:
			fmt.Printf("[%s] link up, %d bytes so far\n", time.Now().Format("15:04:05.000"), report.bytes)

		case <-deadline:
			report.print("PASSED (link stable)")
			return nil
		}
	}
}
