// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the cdcscope YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
	"github.com/iqrfsdk/cdcscope/pkg/hdlc"
)

type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Log        LogConfig        `yaml:"log"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ConnectionConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"` // 0 selects the framing default
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
	Framing     string `yaml:"framing"`  // cdc or hdlc
	Checksum    string `yaml:"checksum"` // crc8 or xor, hdlc only
}

type TimeoutConfig struct {
	Response time.Duration `yaml:"response"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BridgeConfig struct {
	Encoding   string      `yaml:"encoding"` // json or cbor
	QueueSize  int         `yaml:"queue_size"`
	MQTT       MQTTConfig  `yaml:"mqtt"`
	Redis      RedisConfig `yaml:"redis"`
	DecodeDPA  bool        `yaml:"decode_dpa"`
	SourceName string      `yaml:"source_name"`
}

type MQTTConfig struct {
	URL      string `yaml:"url"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	List     string `yaml:"list"`
	MaxLen   int64  `yaml:"max_len"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// BaudRate returns the configured rate, or the default of the framing.
func (c ConnectionConfig) BaudRate() int {
	switch {
	case c.Baud > 0:
		return c.Baud
	case c.Framing == "hdlc":
		return hdlc.DefaultBaudRate
	default:
		return cdc.DefaultBaudRate
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Port:     cdc.DefaultPort,
			Framing:  "cdc",
			Checksum: "crc8",
		},
		Timeouts: TimeoutConfig{
			Response: cdc.DefaultResponseTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Bridge: BridgeConfig{
			Encoding:  "json",
			QueueSize: 64,
			DecodeDPA: true,
			MQTT: MQTTConfig{
				Topic: "iqrf/dr",
			},
			Redis: RedisConfig{
				Channel: "iqrf:dr",
				List:    "iqrf:dr:history",
				MaxLen:  1000,
			},
		},
	}
}

// Load reads path over the defaults. Missing keys keep their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Connection.Framing {
	case "cdc", "hdlc":
	default:
		return fmt.Errorf("invalid framing %q (expected cdc or hdlc)", c.Connection.Framing)
	}
	switch c.Connection.Checksum {
	case "crc8", "xor":
	default:
		return fmt.Errorf("invalid checksum %q (expected crc8 or xor)", c.Connection.Checksum)
	}
	switch c.Bridge.Encoding {
	case "json", "cbor":
	default:
		return fmt.Errorf("invalid bridge encoding %q (expected json or cbor)", c.Bridge.Encoding)
	}
	if c.Connection.Baud < 0 {
		return fmt.Errorf("invalid baud rate %d", c.Connection.Baud)
	}
	if c.Timeouts.Response <= 0 {
		return fmt.Errorf("response timeout must be positive")
	}
	return nil
}
