// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cdcscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 57600, cfg.Connection.BaudRate())
	assert.Equal(t, "cdc", cfg.Connection.Framing)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Response)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
connection:
  port: /dev/ttyUSB1
  framing: hdlc
  checksum: xor
timeouts:
  response: 750ms
bridge:
  encoding: cbor
  mqtt:
    url: mqtt://broker:1883/lab
  redis:
    addr: localhost:6379
    max_len: 50
metrics:
  listen: ":9108"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Connection.Port)
	assert.Equal(t, 19200, cfg.Connection.BaudRate())
	assert.Equal(t, "hdlc", cfg.Connection.Framing)
	assert.Equal(t, "xor", cfg.Connection.Checksum)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeouts.Response)
	assert.Equal(t, "cbor", cfg.Bridge.Encoding)
	assert.Equal(t, "mqtt://broker:1883/lab", cfg.Bridge.MQTT.URL)
	assert.Equal(t, "iqrf/dr", cfg.Bridge.MQTT.Topic)
	assert.Equal(t, int64(50), cfg.Bridge.Redis.MaxLen)
	assert.Equal(t, ":9108", cfg.Metrics.Listen)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"framing", "connection:\n  framing: spi\n"},
		{"checksum", "connection:\n  checksum: md5\n"},
		{"encoding", "bridge:\n  encoding: xml\n"},
		{"baud", "connection:\n  baud: -1\n"},
		{"timeout", "timeouts:\n  response: 0s\n"},
		{"yaml", "connection: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestBaudRateOverride(t *testing.T) {
	c := ConnectionConfig{Framing: "hdlc", Baud: 115200}
	assert.Equal(t, 115200, c.BaudRate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
