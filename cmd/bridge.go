// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/iqrfsdk/cdcscope/internal/bridge"
	"github.com/iqrfsdk/cdcscope/internal/metrics"
	"github.com/iqrfsdk/cdcscope/pkg/cdc"
)

var (
	bridgeMQTTURL       string
	bridgeMQTTTopic     string
	bridgeRedisAddr     string
	bridgeEncoding      string
	bridgeMetricsListen string
	bridgePoll          time.Duration
	historyCount        int64
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Forward async data to MQTT and Redis",
	Long: `Forward every DR message of the device to MQTT and/or Redis.

Each message becomes a record with receive time, source name, the raw data
and, when it parses, the decoded DPA packet (with the temperature of a
thermometer response). Records are encoded as JSON or CBOR.

Sinks:
  MQTT   --mqtt-url tcp://broker:1883 [--mqtt-topic iqrf/dr]
  Redis  --redis-addr localhost:6379 (PUBLISH on a channel, capped history list)

With --metrics-listen, Prometheus metrics are served on /metrics. With --poll
the SPI status is read periodically and exported as a gauge.

The bridge reconnects to the device when the connection is lost. Settings can
also be given in the bridge and metrics sections of the --config file.`,
	RunE: runBridge,
}

var bridgeHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the most recent records stored in Redis",
	Args:  cobra.NoArgs,
	RunE:  runBridgeHistory,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.AddCommand(bridgeHistoryCmd)

	bridgeCmd.PersistentFlags().StringVar(&bridgeRedisAddr, "redis-addr", "", "Redis address (host:port)")
	bridgeCmd.PersistentFlags().StringVar(&bridgeEncoding, "encoding", "json", "Record encoding: json or cbor")
	bridgeCmd.Flags().StringVar(&bridgeMQTTURL, "mqtt-url", "", "MQTT broker URL (tcp://, ssl://, ws://)")
	bridgeCmd.Flags().StringVar(&bridgeMQTTTopic, "mqtt-topic", "", "MQTT topic (default iqrf/dr)")
	bridgeCmd.Flags().StringVar(&bridgeMetricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9100")
	bridgeCmd.Flags().DurationVar(&bridgePoll, "poll", 0, "Read the SPI status at this interval (0 disables)")
	bridgeHistoryCmd.Flags().Int64VarP(&historyCount, "count", "n", 10, "Number of records")
}

// applyBridgeFlags copies the bridge flags given on the command line into cfg
func applyBridgeFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("mqtt-url") {
		cfg.Bridge.MQTT.URL = bridgeMQTTURL
	}
	if flags.Changed("mqtt-topic") {
		cfg.Bridge.MQTT.Topic = bridgeMQTTTopic
	}
	if flags.Changed("redis-addr") {
		cfg.Bridge.Redis.Addr = bridgeRedisAddr
	}
	if flags.Changed("encoding") {
		cfg.Bridge.Encoding = bridgeEncoding
	}
	if flags.Changed("metrics-listen") {
		cfg.Metrics.Listen = bridgeMetricsListen
	}
	return cfg.Validate()
}

// openSinks connects every configured sink
func openSinks(ctx context.Context) ([]bridge.Sink, error) {
	var sinks []bridge.Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if cfg.Bridge.MQTT.URL != "" {
		s, err := bridge.NewMQTTSink(cfg.Bridge.MQTT, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Bridge.Redis.Addr != "" {
		s, err := bridge.NewRedisSink(ctx, cfg.Bridge.Redis, log)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("no sink configured (use --mqtt-url and/or --redis-addr)")
	}
	return sinks, nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	if err := applyBridgeFlags(cmd); err != nil {
		return err
	}
	encoding, err := bridge.ParseEncoding(cfg.Bridge.Encoding)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	sinks, err := openSinks(ctx)
	if err != nil {
		return err
	}

	m := metrics.New()
	source := cfg.Bridge.SourceName
	if source == "" {
		source = cfg.Connection.Port
		if cfg.Connection.URL != "" {
			source = cfg.Connection.URL
		}
	}

	fwd := bridge.NewForwarder(bridge.Options{
		Encoding:  encoding,
		QueueSize: cfg.Bridge.QueueSize,
		Source:    source,
		DecodeDPA: cfg.Bridge.DecodeDPA,
		Logger:    log.WithField("component", "bridge"),
		Metrics:   m,
	}, sinks...)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fwd.Run(ctx)
	}()

	if cfg.Metrics.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Serve(ctx, cfg.Metrics.Listen, log); err != nil {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	log.WithField("source", source).Infof("Bridge running (%s, %d sinks)", encoding, len(sinks))
	bridgeLoop(ctx, m, fwd)

	cancel()
	wg.Wait()
	log.Info("Bridge stopped")
	return nil
}

// bridgeLoop keeps a device connection feeding fwd until ctx is done,
// reconnecting with exponential backoff.
func bridgeLoop(ctx context.Context, m *metrics.Metrics, fwd *bridge.Forwarder) {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for ctx.Err() == nil {
		client, connInfo, err := OpenClient(cdc.WithFrameHandler(m.ObserveFrame))
		if err != nil {
			log.Warnf("Connection failed: %v (retry in %v)", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 1 * time.Second

		log.WithField("connection", connInfo).Info("Device connected")
		client.RegisterAsyncListener(fwd.HandleAsync)
		serveClient(ctx, client, m)
		client.Close()

		if ctx.Err() == nil {
			log.Warnf("Connection lost: %v", client.LastReceptionError())
		}
	}
}

// serveClient polls the SPI status when enabled, until the client stops
// receiving or ctx is done.
func serveClient(ctx context.Context, client *cdc.Client, m *metrics.Metrics) {
	var tick <-chan time.Time
	if bridgePoll > 0 {
		ticker := time.NewTicker(bridgePoll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-tick:
			start := time.Now()
			st, err := client.Status(ctx)
			m.ObserveCommand(cdc.CmdStatus, start, err)
			if err != nil {
				log.Warnf("Status poll failed: %v", err)
				continue
			}
			m.ObserveSPIStatus(st)
		}
	}
}

func runBridgeHistory(cmd *cobra.Command, args []string) error {
	if err := applyBridgeFlags(cmd); err != nil {
		return err
	}
	if cfg.Bridge.Redis.Addr == "" {
		return fmt.Errorf("history needs --redis-addr")
	}
	encoding, err := bridge.ParseEncoding(cfg.Bridge.Encoding)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	sink, err := bridge.NewRedisSink(ctx, cfg.Bridge.Redis, log)
	if err != nil {
		return err
	}
	defer sink.Close()

	payloads, err := sink.History(ctx, historyCount)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for _, p := range payloads {
		var r bridge.Record
		if err := encoding.Unmarshal(p, &r); err != nil {
			log.Warnf("Skipping record: %v", err)
			continue
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
