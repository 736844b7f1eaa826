// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
)

// Connection is the byte stream to the device, local or bridged
type Connection interface {
	io.ReadWriteCloser
}

// SerialConnection is a local USB-CDC (ttyACM) or CDC-UART port
type SerialConnection struct {
	serial.Port
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection carries the device byte stream over a remote serial
// bridge. Each binary message holds one chunk of the stream; text messages
// are bridge chatter and are ignored.
type WebSocketConnection struct {
	conn    *websocket.Conn
	pending []byte
	closed  bool

	writeLock sync.Mutex
}

// nextChunk blocks until the bridge delivers the next binary message
func (w *WebSocketConnection) nextChunk() ([]byte, error) {
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.BinaryMessage && len(data) > 0 {
			return data, nil
		}
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}
	if len(w.pending) == 0 {
		chunk, err := w.nextChunk()
		if err != nil {
			w.closed = true
			return 0, err
		}
		w.pending = chunk
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	w.writeLock.Lock()
	defer w.writeLock.Unlock()
	// Best effort close handshake; the bridge may already be gone.
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}

// OpenSerialConnection opens a port in 8N1 and drops whatever the device
// queued before we attached, so parsing starts on a frame boundary.
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.WithError(err).Debug("Could not flush serial input")
	}
	return &SerialConnection{Port: port}, nil
}

// OpenWebSocketConnection dials a serial bridge, with HTTP Basic auth when
// credentials are given
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	req := &http.Request{Header: http.Header{}}
	if username != "" && password != "" {
		req.SetBasicAuth(username, password)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, u.String(), req.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	log.WithField("url", u.Redacted()).Debug("WebSocket connected")

	return &WebSocketConnection{conn: conn}, nil
}

const passwordEnv = "CDCSCOPE_PASSWORD"

// GetPassword reads the bridge password from CDCSCOPE_PASSWORD, or asks for
// it on the terminal. Piped input is read as a plain line.
func GetPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// OpenConnection opens either a serial or WebSocket connection from the
// loaded settings. A WebSocket URL takes precedence over the serial port.
func OpenConnection() (Connection, string, error) {
	c := cfg.Connection
	switch {
	case c.URL != "":
		var password string
		if c.Username != "" {
			var err error
			if password, err = GetPassword(); err != nil {
				return nil, "", err
			}
		}
		conn, err := OpenWebSocketConnection(c.URL, c.Username, password, c.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s (%s)", c.URL, c.Framing), nil

	case c.Port != "":
		baud := c.BaudRate()
		conn, err := OpenSerialConnection(c.Port, baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud (%s)", c.Port, baud, c.Framing), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// OpenClient opens the connection and starts a CDC client on it.
func OpenClient(opts ...cdc.ClientOption) (*cdc.Client, string, error) {
	if cfg.Connection.Framing != "cdc" {
		return nil, "", fmt.Errorf("this command needs --framing cdc")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, "", err
	}

	opts = append([]cdc.ClientOption{
		cdc.WithLogger(log),
		cdc.WithResponseTimeout(cfg.Timeouts.Response),
	}, opts...)
	client, err := cdc.NewClient(conn, opts...)
	if err != nil {
		conn.Close()
		return nil, "", err
	}
	return client, connInfo, nil
}

// commandContext returns a context canceled on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
