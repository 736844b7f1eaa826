// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
)

var resetCmd = &cobra.Command{
	Use:       "reset usb|tr",
	Short:     "Reset the USB device or its TR module",
	Long:      "Send >R (usb) or >RT (tr) and wait for the device to acknowledge it.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"usb", "tr"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "tr" {
			return runDeviceCommand(cdc.CmdResetTR, func(ctx context.Context, c *cdc.Client) (string, error) {
				return "TR module reset", c.ResetTRModule(ctx)
			})
		}
		return runDeviceCommand(cdc.CmdResetUSB, func(ctx context.Context, c *cdc.Client) (string, error) {
			return "USB device reset", c.ResetUSBDevice(ctx)
		})
	},
}

var indicateCmd = &cobra.Command{
	Use:   "indicate",
	Short: "Make the device indicate USB connectivity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceCommand(cdc.CmdIndicate, func(ctx context.Context, c *cdc.Client) (string, error) {
			return "Connectivity indicated", c.IndicateConnectivity(ctx)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the SPI status of the TR module",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceCommand(cdc.CmdStatus, func(ctx context.Context, c *cdc.Client) (string, error) {
			st, err := c.Status(ctx)
			if err != nil {
				return "", err
			}
			for _, v := range cdc.ValidateMessage(st) {
				log.Warn(v.Message)
			}
			return cdc.FormatSPIStatus(st), nil
		})
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Switch the device to custom mode",
	Long: `Send >U. The device leaves USB-CDC mode for its custom mode; after an
acknowledgement further USB-CDC commands are no longer answered.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceCommand(cdc.CmdSwitch, func(ctx context.Context, c *cdc.Client) (string, error) {
			return "Switched to custom mode", c.SwitchToCustom(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(indicateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(switchCmd)
}

// runDeviceCommand opens a client, runs one exchange and prints its result.
// Exit codes follow the other commands: 1 on a failed exchange, 2 on a
// connection error.
func runDeviceCommand(c cdc.Command, run func(context.Context, *cdc.Client) (string, error)) error {
	client, _, err := OpenClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	ctx, cancel := commandContext()
	defer cancel()

	start := time.Now()
	result, err := run(ctx, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", c, err)
		client.Close()
		os.Exit(1)
	}
	log.WithField("command", c.String()).Debugf("completed in %v", time.Since(start))
	fmt.Println(result)
	return nil
}
