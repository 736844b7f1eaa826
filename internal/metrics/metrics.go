// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes link and bridge counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
)

const namespace = "cdcscope"

type Metrics struct {
	Frames          *prometheus.CounterVec
	BytesReceived   prometheus.Counter
	CommandDuration *prometheus.HistogramVec
	CommandErrors   *prometheus.CounterVec
	Published       *prometheus.CounterVec
	PublishErrors   *prometheus.CounterVec
	QueueDropped    prometheus.Counter
	SPIStatus       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the metric set on a private registry.
func New() *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Parsed frames by message type and parse status.",
		}, []string{"type", "status"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_bytes_total",
			Help:      "Bytes covered by parsed frames.",
		}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Round trip time of device commands.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"command"}),
		CommandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Failed device commands by error kind.",
		}, []string{"command", "kind"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_published_total",
			Help:      "Async records delivered per sink.",
		}, []string{"sink"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_publish_errors_total",
			Help:      "Failed deliveries per sink.",
		}, []string{"sink"}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_queue_dropped_total",
			Help:      "Async records dropped because the bridge queue was full.",
		}),
		SPIStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spi_status",
			Help:      "Last SPI status byte reported by the device.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.Frames,
		m.BytesReceived,
		m.CommandDuration,
		m.CommandErrors,
		m.Published,
		m.PublishErrors,
		m.QueueDropped,
		m.SPIStatus,
	)
	return m
}

// Registry returns the registry holding the metric set.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFrame counts a parse result. It matches cdc.FrameHandler.
func (m *Metrics) ObserveFrame(res cdc.ParseResult, raw []byte) {
	m.Frames.WithLabelValues(res.Type.String(), res.Status.String()).Inc()
	if res.Status == cdc.ParseOK {
		m.BytesReceived.Add(float64(len(raw)))
	}
}

// ObserveCommand records the duration and outcome of a command.
func (m *Metrics) ObserveCommand(cmd cdc.Command, start time.Time, err error) {
	m.CommandDuration.WithLabelValues(cmd.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		m.CommandErrors.WithLabelValues(cmd.String(), errorKind(err)).Inc()
	}
}

// ObserveSPIStatus records the last SPI status.
func (m *Metrics) ObserveSPIStatus(s cdc.SPIStatus) {
	m.SPIStatus.Set(float64(s.Value))
}

func errorKind(err error) string {
	var cerr *cdc.Error
	switch {
	case errors.Is(err, cdc.ErrResponseTimeout):
		return "timeout"
	case errors.Is(err, cdc.ErrUnexpectedResponse):
		return "unexpected"
	case errors.As(err, &cerr):
		return cerr.Kind.String()
	default:
		return "other"
	}
}

// Serve exposes /metrics and /health on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Infof("Metrics server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
