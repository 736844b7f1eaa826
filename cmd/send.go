// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
	"github.com/iqrfsdk/cdcscope/pkg/dpa"
	"github.com/iqrfsdk/cdcscope/pkg/hdlc"
)

var (
	sendWait        time.Duration
	sendThermometer int
)

var sendCmd = &cobra.Command{
	Use:   "send [hex bytes]",
	Short: "Send data to the TR module and wait for the reply",
	Long: `Send data to the TR module and display the asynchronous replies.

With --framing cdc the data goes out as a ">DS" command. The device answers
"<DS:OK", "<DS:ERR" or "<DS:BUSY"; replies of the TR module then arrive as
"<DR" messages. With --framing hdlc the data is sent as one HDLC frame.

Replies are decoded as DPA packets. The command stops at the first DPA
response (a confirmation of a remote request is shown and waiting continues)
or when --wait expires.

Examples:
  # Read the temperature of the coordinator
  cdcscope send --thermometer 0

  # Pulse the red LED of node 1
  cdcscope send 01 00 06 03 FF FF

Exit codes:
  0 - Data accepted (and a DPA response received when waiting)
  1 - Data rejected, or no response before --wait expired
  2 - Connection error`,
	Args: cobra.ArbitraryArgs,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendWait, "wait", 2*time.Second, "How long to wait for replies (0 disables waiting)")
	sendCmd.Flags().IntVar(&sendThermometer, "thermometer", -1, "Send a thermometer read request to this node address")
}

// sendPayload builds the data to send from the arguments and flags
func sendPayload(args []string) ([]byte, error) {
	if sendThermometer >= 0 {
		if len(args) > 0 {
			return nil, fmt.Errorf("--thermometer does not take data arguments")
		}
		if sendThermometer > 0xFFFF {
			return nil, fmt.Errorf("node address %d out of range", sendThermometer)
		}
		return dpa.ThermometerRequest(uint16(sendThermometer)), nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no data to send")
	}
	data, err := parseHexData(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	if len(data) > cdc.MaxDataSize {
		return nil, fmt.Errorf("data is %d bytes (max %d)", len(data), cdc.MaxDataSize)
	}
	return data, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	data, err := sendPayload(args)
	if err != nil {
		return err
	}

	var ok bool
	if cfg.Connection.Framing == "hdlc" {
		ok = sendHDLC(data)
	} else {
		ok = sendCDC(data)
	}
	if !ok {
		os.Exit(1)
	}
	return nil
}

func sendCDC(data []byte) bool {
	replies := make(chan []byte, 16)

	client, connInfo, err := OpenClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	// Register before sending so a fast reply is not lost
	client.RegisterAsyncListener(func(d []byte) {
		select {
		case replies <- d:
		default:
			log.Warn("Reply dropped: receiver busy")
		}
	})

	ctx, cancel := commandContext()
	defer cancel()

	fmt.Printf("cdcscope - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Sending %d bytes: %s\n", len(data), cdc.FormatHex(data))
	printDPA(data)

	resp, err := client.SendData(ctx, data)
	if err != nil {
		fmt.Printf("SEND FAILED: %v\n", err)
		return false
	}
	fmt.Printf("Device: DS %s\n", resp)
	if resp != cdc.DSOK {
		return false
	}

	if sendWait <= 0 {
		return true
	}
	return collectReplies(replies, client.Done())
}

func sendHDLC(data []byte) bool {
	check, err := hdlc.ParseChecksum(cfg.Connection.Checksum)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("cdcscope - Send (HDLC, %s)\n", check)
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Sending %d bytes: %s\n", len(data), cdc.FormatHex(data))
	printDPA(data)

	framer := hdlc.NewFramer(conn, check)
	if err := framer.WriteFrame(data); err != nil {
		fmt.Printf("SEND FAILED: %v\n", err)
		return false
	}
	if sendWait <= 0 {
		return true
	}

	replies := make(chan []byte, 16)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			frame, err := framer.ReadFrame(func(raw []byte, err error) {
				log.Debugf("Frame dropped: %v", err)
			})
			if err != nil {
				return
			}
			replies <- frame
		}
	}()

	return collectReplies(replies, stopped)
}

// collectReplies prints DPA replies until a response arrives, the
// connection stops, or the wait expires. It reports whether a response
// was received.
func collectReplies(replies <-chan []byte, stopped <-chan struct{}) bool {
	fmt.Printf("Waiting up to %v for replies...\n", sendWait)
	timeout := time.After(sendWait)
	count := 0

	for {
		select {
		case d := <-replies:
			count++
			fmt.Printf("\nReply %d (%d bytes):\n", count, len(d))
			printDPA(d)

			p, err := dpa.Parse(d)
			if err != nil || p.Kind() != dpa.KindResponse {
				continue
			}
			if t, err := dpa.ParseTemperature(p); err == nil {
				fmt.Printf("  Temperature: %.2f°C (node %d)\n", t.Value, p.NAdr)
			}
			return p.ErrN == dpa.StatusOK

		case <-stopped:
			fmt.Printf("\nREAD FAILED: connection closed\n")
			os.Exit(2)

		case <-timeout:
			fmt.Printf("\nTIMEOUT: no DPA response in %v (%d replies)\n", sendWait, count)
			return false
		}
	}
}
