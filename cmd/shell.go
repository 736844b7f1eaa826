// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
	"github.com/iqrfsdk/cdcscope/pkg/dpa"
)

var shellCmd = &cobra.Command{
	Use:   "shell [command...]",
	Short: "Interactive USB-CDC command shell",
	Long: `Start an interactive shell connected to the USB device.

Every USB-CDC command is available by name (test, reset-usb, reset-tr,
usb-info, tr-info, indicate, status, data-send, switch). Async data (DR)
received while the shell runs is printed with its DPA decoding.

When a command is given on the command line it is run once and the shell
exits, e.g.:
  cdcscope shell usb-info
  cdcscope shell data-send 00 00 0A 00 FF FF`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// Shell is an ishell session around one client connection
type Shell struct {
	Shell    *ishell.Shell
	Client   *cdc.Client
	ConnInfo string
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

func runShell(cmd *cobra.Command, args []string) error {
	s := newShell()
	if err := s.Connect(); err != nil {
		return err
	}
	defer s.Disconnect()

	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	s.Shell.Printf("Connected to %s, type 'help' for commands\n", s.ConnInfo)
	s.Shell.Run()
	return nil
}

func newShell() *Shell {
	s := &Shell{Shell: ishell.New()}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)

	s.Shell.AddCmd(&ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "reconnect to the configured device",
		Func: func(c *ishell.Context) {
			if err := shellFrom(c).Connect(); err != nil {
				c.Err(err)
			}
		},
	})
	s.Shell.AddCmd(&ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "close the connection",
		Func: func(c *ishell.Context) {
			shellFrom(c).Disconnect()
		},
	})
	for _, command := range cdc.Commands {
		s.Shell.AddCmd(commandShellCmd(command))
	}
	s.Shell.AddCmd(&ishell.Cmd{
		Name:    "thermometer",
		Aliases: []string{"temp"},
		Help:    "NADR: read the thermometer of a node",
		Func: mustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: thermometer NADR"))
				return
			}
			nadr, err := strconv.ParseUint(c.Args[0], 0, 16)
			if err != nil {
				c.Err(fmt.Errorf("invalid node address: %w", err))
				return
			}
			doShellCommand(c, cdc.CmdDataSend, dpa.ThermometerRequest(uint16(nadr)))
		}),
	})
	return s
}

// shellFrom gets the Shell from an ishell context
func shellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// mustBeConnected wraps a command func that needs a connection
func mustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if shellFrom(c).Client == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// commandShellCmd exposes one USB-CDC command in the shell
func commandShellCmd(command cdc.Command) *ishell.Cmd {
	help := commandDescriptions[command]
	if command == cdc.CmdDataSend {
		help = "HEX...: " + help
	}
	return &ishell.Cmd{
		Name: command.String(),
		Help: help,
		Func: mustBeConnected(func(c *ishell.Context) {
			var data []byte
			if command == cdc.CmdDataSend {
				var err error
				if data, err = parseHexData(strings.Join(c.Args, " ")); err != nil {
					c.Err(err)
					return
				}
			}
			doShellCommand(c, command, data)
		}),
	}
}

// doShellCommand runs one exchange and prints the response
func doShellCommand(c *ishell.Context, command cdc.Command, data []byte) {
	s := shellFrom(c)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Response)
	defer cancel()

	start := time.Now()
	msg, err := s.Client.Do(ctx, command, data)
	if err != nil {
		c.Err(err)
		if s.Client.ReceptionStopped() {
			s.Disconnect()
		}
		return
	}
	c.Printf("%s (%v)\n", msg.Type(), time.Since(start).Round(time.Millisecond))
	c.Print(cdc.FormatMessage(msg))
	for _, v := range cdc.ValidateMessage(msg) {
		c.Printf("  warning: %s\n", v.Message)
	}
}

// Connect opens a client and prints async data as it arrives
func (s *Shell) Connect() error {
	s.Disconnect()

	client, connInfo, err := OpenClient()
	if err != nil {
		return err
	}
	client.RegisterAsyncListener(func(data []byte) {
		var b strings.Builder
		fmt.Fprintf(&b, "\nDR %d bytes: %s\n", len(data), cdc.FormatHex(data))
		fprintDPA(&b, data)
		s.Shell.Print(b.String())
	})

	s.Client = client
	s.ConnInfo = connInfo
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", connInfo))
	return nil
}

// Disconnect closes the current client
func (s *Shell) Disconnect() {
	if s.Client != nil {
		s.Client.Close()
		s.Client = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}
