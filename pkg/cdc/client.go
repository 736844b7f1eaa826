// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultResponseTimeout is how long a command waits for its response.
const DefaultResponseTimeout = 5 * time.Second

// AsyncListener receives the payload of every DR message.
type AsyncListener func(data []byte)

// FrameHandler observes every parse result produced by the reader, with the
// bytes it covers (the frame for ParseOK, the dropped bytes for ParseBadFormat).
// raw is only valid for the duration of the call.
type FrameHandler func(res ParseResult, raw []byte)

// Client runs command/response exchanges with an IQRF USB-CDC device.
//
// A reader goroutine owns the receive buffer and the parser. Responses are
// handed to the command waiting for them; DR messages go to the registered
// async listener. Only one command is in flight at a time.
type Client struct {
	rw      io.ReadWriteCloser
	parser  FrameParser
	log     logrus.FieldLogger
	timeout time.Duration
	onFrame FrameHandler

	cmdLock sync.Mutex
	respCh  chan Message

	listenerLock sync.RWMutex
	listener     AsyncListener

	stateLock sync.Mutex
	stopped   bool
	closed    bool
	lastErr   error
	done      chan struct{}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithResponseTimeout overrides DefaultResponseTimeout.
func WithResponseTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithFrameHandler installs a FrameHandler. It runs on the reader goroutine.
func WithFrameHandler(h FrameHandler) ClientOption {
	return func(c *Client) {
		c.onFrame = h
	}
}

// WithParser replaces the default Parser.
func WithParser(p FrameParser) ClientOption {
	return func(c *Client) {
		if p != nil {
			c.parser = p
		}
	}
}

// NewClient wraps rw and starts receiving.
func NewClient(rw io.ReadWriteCloser, opts ...ClientOption) (*Client, error) {
	if rw == nil {
		return nil, newError(KindInit, "", errors.New("nil transport"))
	}

	c := &Client{
		rw:      rw,
		parser:  NewParser(),
		log:     logrus.StandardLogger(),
		timeout: DefaultResponseTimeout,
		respCh:  make(chan Message, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	started := make(chan struct{})
	go c.readLoop(started)
	<-started

	return c, nil
}

func (c *Client) readLoop(started chan<- struct{}) {
	defer close(c.done)
	close(started)

	sc := NewScanner(c.parser)
	chunk := make([]byte, ReadBufferSize)
	for {
		n, err := c.rw.Read(chunk)
		if n > 0 {
			sc.Feed(chunk[:n], c.handleFrame)
		}
		if err != nil {
			c.stop(err)
			return
		}
	}
}

func (c *Client) handleFrame(res ParseResult, raw []byte) {
	if res.Status == ParseBadFormat {
		c.log.WithFields(logrus.Fields{
			"position": res.LastPosition,
			"dropped":  len(raw),
		}).Warn("bad message format")
		c.setReceptionError(newError(KindParse, "", fmt.Errorf("%w at byte %d", ErrBadFormat, res.LastPosition)))
	}
	if c.onFrame != nil {
		c.onFrame(res, raw)
	}
	if res.Status == ParseOK {
		c.dispatch(res)
	}
}

func (c *Client) dispatch(res ParseResult) {
	msg, err := c.parser.Message()
	if err != nil {
		c.log.WithError(err).WithField("type", res.Type).Error("failed to decode frame")
		return
	}

	if res.Type == MsgAsync {
		c.listenerLock.RLock()
		l := c.listener
		c.listenerLock.RUnlock()
		if l == nil {
			c.log.Debug("async message without listener dropped")
			return
		}
		l(msg.(AsyncData).Data)
		return
	}

	select {
	case c.respCh <- msg:
	default:
		c.log.WithField("type", res.Type).Warn("unexpected response dropped")
	}
}

func (c *Client) stop(err error) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	c.stopped = true
	if c.closed {
		c.lastErr = newError(KindReceive, "read", ErrClosed)
		return
	}
	c.lastErr = newError(KindReceive, "read", err)
	c.log.WithError(err).Error("reception stopped")
}

func (c *Client) setReceptionError(err error) {
	c.stateLock.Lock()
	c.lastErr = err
	c.stateLock.Unlock()
}

// ReceptionStopped reports whether the reader goroutine has exited.
func (c *Client) ReceptionStopped() bool {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.stopped
}

// LastReceptionError returns the last error seen by the reader, or nil.
func (c *Client) LastReceptionError() error {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.lastErr
}

// RegisterAsyncListener installs l as the receiver of DR messages,
// replacing any previous listener.
func (c *Client) RegisterAsyncListener(l AsyncListener) {
	c.listenerLock.Lock()
	c.listener = l
	c.listenerLock.Unlock()
}

// UnregisterAsyncListener removes the async listener.
func (c *Client) UnregisterAsyncListener() {
	c.RegisterAsyncListener(nil)
}

// Close closes the transport and waits for the reader to exit.
func (c *Client) Close() error {
	c.stateLock.Lock()
	if c.closed {
		c.stateLock.Unlock()
		return nil
	}
	c.closed = true
	c.stateLock.Unlock()

	err := c.rw.Close()
	<-c.done
	return err
}

// Done is closed when the reader goroutine exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Do sends cmd and returns the response message.
func (c *Client) Do(ctx context.Context, cmd Command, data []byte) (Message, error) {
	op := cmd.String()
	if c.ReceptionStopped() {
		return nil, newError(KindReceive, op, ErrReceptionStopped)
	}

	frame, err := EncodeCommand(cmd, data)
	if err != nil {
		return nil, newError(KindSend, op, err)
	}

	c.cmdLock.Lock()
	defer c.cmdLock.Unlock()

	// stale response from a timed out command
	select {
	case <-c.respCh:
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.rw.Write(frame); err != nil {
		return nil, newError(KindSend, op, err)
	}
	c.log.WithField("command", op).Debugf("sent %q", frame)

	select {
	case msg := <-c.respCh:
		if msg.Type() != cmd.Response() {
			return nil, newError(KindReceive, op, fmt.Errorf("%w: %s", ErrUnexpectedResponse, msg.Type()))
		}
		return msg, nil
	case <-c.done:
		return nil, newError(KindReceive, op, ErrReceptionStopped)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(KindReceive, op, ErrResponseTimeout)
		}
		return nil, newError(KindReceive, op, ctx.Err())
	}
}

// Test checks the connection to the USB device.
func (c *Client) Test(ctx context.Context) error {
	_, err := c.Do(ctx, CmdTest, nil)
	return err
}

// ResetUSBDevice resets the USB device.
func (c *Client) ResetUSBDevice(ctx context.Context) error {
	_, err := c.Do(ctx, CmdResetUSB, nil)
	return err
}

// ResetTRModule resets the TR module.
func (c *Client) ResetTRModule(ctx context.Context) error {
	_, err := c.Do(ctx, CmdResetTR, nil)
	return err
}

// USBDeviceInfo requests the USB device identification.
func (c *Client) USBDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	msg, err := c.Do(ctx, CmdUSBInfo, nil)
	if err != nil {
		return DeviceInfo{}, err
	}
	return msg.(DeviceInfo), nil
}

// TRModuleInfo requests the TR module identification.
func (c *Client) TRModuleInfo(ctx context.Context) (ModuleInfo, error) {
	msg, err := c.Do(ctx, CmdTRInfo, nil)
	if err != nil {
		return ModuleInfo{}, err
	}
	return msg.(ModuleInfo), nil
}

// IndicateConnectivity asks the device to blink its connectivity LED.
func (c *Client) IndicateConnectivity(ctx context.Context) error {
	_, err := c.Do(ctx, CmdIndicate, nil)
	return err
}

// Status requests the SPI status of the TR module.
func (c *Client) Status(ctx context.Context) (SPIStatus, error) {
	msg, err := c.Do(ctx, CmdStatus, nil)
	if err != nil {
		return SPIStatus{}, err
	}
	return msg.(SPIStatus), nil
}

// SendData sends data to the TR module.
func (c *Client) SendData(ctx context.Context, data []byte) (DataSendResponse, error) {
	msg, err := c.Do(ctx, CmdDataSend, data)
	if err != nil {
		return 0, err
	}
	return msg.(DataSendResponse), nil
}

// SwitchToCustom switches the device to custom (user) mode.
func (c *Client) SwitchToCustom(ctx context.Context) error {
	_, err := c.Do(ctx, CmdSwitch, nil)
	return err
}
