// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the USB device and its TR module",
	Long: `Query the connected IQRF USB device.

Sends, in order:
  >\r      connection test
  >I\r     USB device info (type, firmware version, serial number)
  >IT\r    TR module info (module ID, OS version and build, PIC type)
  >S\r     SPI status of the TR module

Examples:
  # Direct USB connection
  cdcscope info --port /dev/ttyACM0

  # Through a WebSocket serial bridge, JSON output
  cdcscope info --url ws://gateway.local/cdc --json

Exit codes:
  0 - Device identified
  1 - A query failed (no response, ERR, or unexpected response)
  2 - Connection error`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Print the result as JSON")
}

type deviceReport struct {
	DeviceType      string `json:"device_type"`
	FirmwareVersion string `json:"firmware_version"`
	SerialNumber    string `json:"serial_number"`
	ModuleID        string `json:"module_id"`
	OSVersion       string `json:"os_version"`
	OSBuild         string `json:"os_build"`
	TRSeries        byte   `json:"tr_series"`
	MCUType         byte   `json:"mcu_type"`
	SPIStatus       string `json:"spi_status"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	client, connInfo, err := OpenClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if !infoJSON {
		fmt.Printf("cdcscope - Device Info\n")
		fmt.Printf("Connection: %s\n\n", connInfo)
	}

	fail := func(step string, err error) {
		fmt.Fprintf(os.Stderr, "%s FAILED: %v\n", step, err)
		os.Exit(1)
	}

	if err := client.Test(ctx); err != nil {
		fail("Connection test", err)
	}

	dev, err := client.USBDeviceInfo(ctx)
	if err != nil {
		fail("USB device info", err)
	}

	mod, err := client.TRModuleInfo(ctx)
	if err != nil {
		fail("TR module info", err)
	}

	spi, err := client.Status(ctx)
	if err != nil {
		fail("SPI status", err)
	}

	report := deviceReport{
		DeviceType:      dev.DeviceType,
		FirmwareVersion: dev.FirmwareVersion,
		SerialNumber:    dev.SerialNumber,
		ModuleID:        fmt.Sprintf("%08X", mod.ModuleID()),
		OSVersion:       mod.OSVersionString(),
		OSBuild:         fmt.Sprintf("%04X", mod.OSBuildNumber()),
		TRSeries:        mod.TRSeries(),
		MCUType:         mod.MCUType(),
		SPIStatus:       spi.Mode().String(),
	}

	if infoJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("USB device:\n")
	fmt.Print(cdc.FormatMessage(dev))
	fmt.Printf("\nTR module:\n")
	fmt.Print(cdc.FormatMessage(mod))
	fmt.Printf("\n%s\n", cdc.FormatSPIStatus(spi))

	for _, v := range append(cdc.ValidateMessage(dev), cdc.ValidateMessage(mod)...) {
		fmt.Printf("WARNING: %s\n", v.Message)
	}

	return nil
}
