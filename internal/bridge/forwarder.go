// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iqrfsdk/cdcscope/internal/metrics"
)

const (
	DefaultQueueSize = 64
	publishTimeout   = 5 * time.Second
)

// Options configures a Forwarder.
type Options struct {
	Encoding  Encoding
	QueueSize int
	Source    string
	DecodeDPA bool
	Logger    logrus.FieldLogger
	Metrics   *metrics.Metrics // optional
}

// Forwarder queues async payloads and publishes them to every sink from a
// single goroutine. HandleAsync never blocks the reception thread.
type Forwarder struct {
	opts  Options
	sinks []Sink
	queue chan Record
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewForwarder(opts Options, sinks ...Sink) *Forwarder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Forwarder{
		opts:  opts,
		sinks: sinks,
		queue: make(chan Record, opts.QueueSize),
		log:   log,
		now:   time.Now,
	}
}

// HandleAsync enqueues a DR payload. It matches cdc.AsyncListener.
// Payloads are dropped when the queue is full.
func (f *Forwarder) HandleAsync(data []byte) {
	r := NewRecord(f.now(), f.opts.Source, data, f.opts.DecodeDPA)
	select {
	case f.queue <- r:
	default:
		f.log.Warn("Bridge queue full, dropping async message")
		if f.opts.Metrics != nil {
			f.opts.Metrics.QueueDropped.Inc()
		}
	}
}

// Run publishes queued records until ctx is done, then flushes what is left
// in the queue and closes the sinks.
func (f *Forwarder) Run(ctx context.Context) error {
	defer f.closeSinks()

	for {
		select {
		case r := <-f.queue:
			f.publish(ctx, r)
		case <-ctx.Done():
			f.drain()
			return nil
		}
	}
}

func (f *Forwarder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case r := <-f.queue:
			f.publish(ctx, r)
		default:
			return
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, r Record) {
	payload, err := f.opts.Encoding.Marshal(r)
	if err != nil {
		f.log.Errorf("Failed to encode record: %v", err)
		return
	}

	for _, s := range f.sinks {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := s.Publish(pctx, payload)
		cancel()

		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			f.log.WithField("sink", s.Name()).Errorf("Publish failed: %v", err)
			if f.opts.Metrics != nil {
				f.opts.Metrics.PublishErrors.WithLabelValues(s.Name()).Inc()
			}
			continue
		}
		f.log.WithField("sink", s.Name()).Debugf("Published %d bytes", len(payload))
		if f.opts.Metrics != nil {
			f.opts.Metrics.Published.WithLabelValues(s.Name()).Inc()
		}
	}
}

func (f *Forwarder) closeSinks() {
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			f.log.WithField("sink", s.Name()).Warnf("Close failed: %v", err)
		}
	}
}
