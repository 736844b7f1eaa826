// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling an IQRF USB device",
	Long: `Control an IQRF USB device via an interactive terminal UI.

This command provides a TUI for sending USB-CDC commands and monitoring the
frames of a CK-USB or GW-USB device connected via serial port or through a
WebSocket serial bridge.

Features:
  - Device identification on connect (>I, >IT)
  - Every USB-CDC command, with hex data for >DS
  - Async data (DR) display with DPA decoding
  - Periodic SPI status polling (press 'p')
  - Statistics tracking
  - Event logging
  - Automatic reconnection on connection loss

Tab switches between the command list, the data field and the send button.
Arrow keys navigate the command list.

Requires --framing cdc.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// connectionManager handles the client lifecycle and reconnection
type connectionManager struct {
	client   *cdc.Client
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
	batch    chan controlDataMsg
	quiet    *logrus.Logger
}

func (cm *connectionManager) getClient() *cdc.Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client
}

func (cm *connectionManager) setClient(client *cdc.Client, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.client = client
	cm.connInfo = connInfo
}

// connect opens a client whose frames feed the batch channel
func (cm *connectionManager) connect() (*cdc.Client, string, error) {
	// The TUI owns the terminal, client logging would tear it
	return OpenClient(
		cdc.WithLogger(cm.quiet),
		cdc.WithFrameHandler(cm.onFrame),
	)
}

func runControl(cmd *cobra.Command, args []string) error {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	cm := &connectionManager{
		done:  make(chan struct{}),
		batch: make(chan controlDataMsg, 100),
		quiet: quiet,
	}

	// Open initial connection (serial or WebSocket)
	client, connInfo, err := cm.connect()
	if err != nil {
		return err
	}
	cm.setClient(client, connInfo)

	// Create TUI model with connection manager
	m := initialControlModel(cm, connInfo)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.batchLoop()
	go cm.watchLoop()

	// Run TUI
	_, err = p.Run()
	close(cm.done) // Signal goroutines to stop
	if c := cm.getClient(); c != nil {
		c.Close()
	}
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// onFrame runs on the client's reader goroutine for every frame
func (cm *connectionManager) onFrame(res cdc.ParseResult, raw []byte) {
	msg := controlDataMsg{
		res: res,
		raw: append([]byte(nil), raw...),
	}
	if res.Status == cdc.ParseBadFormat {
		msg.validationErrors = cdc.ValidateParseResult(res)
	} else {
		msg.msg, msg.decodeErr = cdc.DecodeFrame(res.Type, raw)
		if msg.decodeErr == nil {
			msg.validationErrors = cdc.ValidateMessage(msg.msg)
		}
	}

	select {
	case cm.batch <- msg:
	default:
	}
}

// batchLoop sends batched frame updates to the TUI at a fixed rate
func (cm *connectionManager) batchLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-cm.done:
			return
		case <-ticker.C:
			var batch controlBatchMsg

			// Drain all available messages from batch channel
		drainLoop:
			for {
				select {
				case msg := <-cm.batch:
					batch.messages = append(batch.messages, msg)
				default:
					break drainLoop
				}
			}

			if len(batch.messages) > 0 {
				cm.p.Send(batch)
			}
		}
	}
}

// watchLoop waits for the client to stop receiving and reconnects
func (cm *connectionManager) watchLoop() {
	for {
		client := cm.getClient()
		select {
		case <-cm.done:
			return
		case <-client.Done():
		}

		// Notify TUI about connection loss
		cm.p.Send(connectionLostMsg{err: client.LastReceptionError()})

		if !cm.reconnect() {
			return // Shutdown requested during reconnect
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	// Close old client
	if client := cm.getClient(); client != nil {
		client.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		client, connInfo, err := cm.connect()
		if err == nil {
			cm.setClient(client, connInfo)

			// Notify TUI about reconnection
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
