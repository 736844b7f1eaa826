// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/internal/config"
	"github.com/iqrfsdk/cdcscope/internal/logging"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int
	framing  string
	checksum string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	responseTimeout string
	logLevel        string
	logFormat       string

	// set by PersistentPreRunE
	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cdcscope",
	Short: "IQRF USB-CDC Protocol Analyzer",
	Long: `cdcscope - A CLI tool for talking to IQRF USB devices (CK-USB, GW-USB) over
the USB-CDC interface and for monitoring and analyzing the frames they send.

Provides raw frame logging, error detection, device commands, an interactive
shell and console, and a bridge forwarding async data to MQTT and Redis.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 57600]
  WebSocket: --url ws://host/path [--username user]

Framing:
  cdc   USB-CDC text frames (default, 57600 baud)
  hdlc  HDLC framed DPA on a CDC-UART link (19200 baud), --checksum crc8|xor

Settings may also come from a YAML file given with --config; flags override it.

For WebSocket authentication, the password is read from the CDCSCOPE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device (default /dev/ttyACM0)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate, serial only (default 57600, 19200 with hdlc)")
	rootCmd.PersistentFlags().StringVar(&framing, "framing", "cdc", "Link framing: cdc or hdlc")
	rootCmd.PersistentFlags().StringVar(&checksum, "checksum", "crc8", "HDLC check byte: crc8 (v2) or xor (v1)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&responseTimeout, "response-timeout", "5s", "How long a command waits for the device response")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}

// loadSettings reads the config file and applies the flags given on the
// command line on top of it.
func loadSettings(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = config.Load(configPath); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Connection.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Connection.Baud = baudRate
	}
	if flags.Changed("framing") {
		cfg.Connection.Framing = framing
	}
	if flags.Changed("checksum") {
		cfg.Connection.Checksum = checksum
	}
	if flags.Changed("url") {
		cfg.Connection.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Connection.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Connection.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("response-timeout") {
		if cfg.Timeouts.Response, err = time.ParseDuration(responseTimeout); err != nil {
			return err
		}
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	return err
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
