// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMessage is returned by parser accessors before any frame was parsed.
	ErrNoMessage = errors.New("no message parsed")
	// ErrTypeMismatch is returned by a parser accessor that does not match
	// the type of the last parsed frame.
	ErrTypeMismatch = errors.New("message type mismatch")
	// ErrReceptionStopped indicates the reader goroutine exited.
	ErrReceptionStopped = errors.New("reception stopped")
	// ErrResponseTimeout indicates no response arrived in time.
	ErrResponseTimeout = errors.New("response timeout")
	// ErrUnexpectedResponse indicates a response of the wrong type.
	ErrUnexpectedResponse = errors.New("response has bad type")
	// ErrDataTooLarge indicates a DS payload above MaxDataSize.
	ErrDataTooLarge = errors.New("data too large")
	// ErrBadFormat is recorded when a received frame was malformed.
	ErrBadFormat = errors.New("bad message format")
	// ErrClosed indicates the client was closed.
	ErrClosed = errors.New("client closed")
)

// ErrorKind groups client errors by the stage that failed.
type ErrorKind uint8

const (
	KindInit ErrorKind = iota
	KindSend
	KindReceive
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindSend:
		return "send"
	case KindReceive:
		return "receive"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is a client error. The message is built only when Error is called.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("cdc %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("cdc %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func newError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
