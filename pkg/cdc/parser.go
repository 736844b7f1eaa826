// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import "fmt"

// ParseResult is returned by every ParseData call.
//
// LastPosition is the index of the last byte examined: the terminating CR
// for ParseOK, the offending byte for ParseBadFormat and the last byte of
// the buffer for ParseNotComplete (0 for an empty buffer).
type ParseResult struct {
	Type         MessageType
	Status       ParseStatus
	LastPosition int
}

func (r ParseResult) String() string {
	return fmt.Sprintf("%s %s @%d", r.Status, r.Type, r.LastPosition)
}

// FrameParser is the parser interface used by the client.
type FrameParser interface {
	ParseData(buf []byte) ParseResult
	Message() (Message, error)
	Frame() []byte
	Reset()
}

// Parser reassembles device frames from a byte stream.
//
// Each ParseData call receives the whole accumulated buffer starting at the
// first unconsumed byte. When a call returns ParseNotComplete the parser
// keeps its progress and the next call continues after the bytes already
// examined, so the buffer must only grow between calls. After ParseOK or
// ParseBadFormat the progress is cleared and the next call starts at offset 0.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	state     int
	pos       int // next byte to examine
	remaining int // raw bytes left in a counted section
	length    int // captured DR data length
	section   int // USB info text section
	textLen   int

	frameType MessageType
	frame     []byte
	msg       Message
}

// USB info text sections
const (
	sectionType = iota
	sectionVersion
	sectionID
)

// NewParser creates a parser in its initial state.
func NewParser() *Parser {
	return &Parser{}
}

// Reset drops any partial progress. The last parsed frame stays available.
func (p *Parser) Reset() {
	p.state = 0
	p.pos = 0
	p.remaining = 0
	p.length = 0
	p.section = sectionType
	p.textLen = 0
}

// ParseData advances the state machine over buf.
func (p *Parser) ParseData(buf []byte) ParseResult {
	if len(buf) < p.pos {
		p.Reset()
	}

	for p.pos < len(buf) {
		b := buf[p.pos]
		n := &frames.nodes[p.state]

		switch n.special {
		case specialText:
			done, ok := p.textByte(b)
			if !ok {
				return p.fail()
			}
			if done {
				p.enter(n.after)
			}

		case specialRaw:
			p.remaining--
			if p.remaining <= 0 {
				p.enter(n.after)
			}

		default:
			next, ok := n.next[b]
			if !ok && n.any != 0 {
				next, ok = n.any, true
				if n.length {
					p.length = int(b)
				}
			}
			if !ok {
				return p.fail()
			}
			p.enter(next)
		}

		p.pos++
		if frames.nodes[p.state].final {
			return p.complete(buf)
		}
	}

	last := 0
	if len(buf) > 0 {
		last = len(buf) - 1
	}
	return ParseResult{Type: frames.nodes[p.state].msgType, Status: ParseNotComplete, LastPosition: last}
}

// enter moves to state s and initializes its special processing.
func (p *Parser) enter(s int) {
	p.state = s
	n := &frames.nodes[s]
	switch n.special {
	case specialText:
		p.section = sectionType
		p.textLen = 0
	case specialRaw:
		p.remaining = n.count
		if n.count < 0 {
			p.remaining = p.length
		}
		if p.remaining == 0 {
			p.enter(n.after)
		}
	}
}

// textByte consumes one byte of the "type#version#id\r" USB info text.
func (p *Parser) textByte(b byte) (done, ok bool) {
	if b == Terminator {
		return p.section == sectionID, p.section == sectionID
	}

	p.textLen++
	if p.textLen > MaxUSBInfoLength {
		return false, false
	}

	if b == '#' {
		if p.section == sectionID {
			return false, false
		}
		p.section++
		return false, true
	}

	switch p.section {
	case sectionVersion:
		return false, (b >= '0' && b <= '9') || b == '.'
	case sectionID:
		return false, (b >= '0' && b <= '9') || (b >= 'A' && b <= 'H')
	}
	return false, true
}

func (p *Parser) fail() ParseResult {
	r := ParseResult{Type: frames.nodes[p.state].msgType, Status: ParseBadFormat, LastPosition: p.pos}
	p.Reset()
	return r
}

func (p *Parser) complete(buf []byte) ParseResult {
	t := frames.nodes[p.state].msgType
	r := ParseResult{Type: t, Status: ParseOK, LastPosition: p.pos - 1}

	p.frameType = t
	p.frame = append(p.frame[:0], buf[:p.pos]...)
	p.msg = nil

	p.Reset()
	return r
}

// Frame returns a copy of the last successfully parsed frame, or nil.
func (p *Parser) Frame() []byte {
	if p.frame == nil {
		return nil
	}
	return append([]byte(nil), p.frame...)
}

// Message returns the decoded payload of the last successfully parsed frame.
func (p *Parser) Message() (Message, error) {
	if p.frame == nil {
		return nil, ErrNoMessage
	}
	if p.msg == nil {
		m, err := DecodeFrame(p.frameType, p.frame)
		if err != nil {
			return nil, err
		}
		p.msg = m
	}
	if a, ok := p.msg.(AsyncData); ok {
		return AsyncData{Data: append([]byte(nil), a.Data...)}, nil
	}
	return p.msg, nil
}

func (p *Parser) expect(t MessageType) (Message, error) {
	if p.frame == nil {
		return nil, ErrNoMessage
	}
	if p.frameType != t {
		return nil, fmt.Errorf("%w: last message is %s, not %s", ErrTypeMismatch, p.frameType, t)
	}
	return p.Message()
}

// DeviceInfo returns the payload of the last frame if it was MsgUSBInfo.
func (p *Parser) DeviceInfo() (DeviceInfo, error) {
	m, err := p.expect(MsgUSBInfo)
	if err != nil {
		return DeviceInfo{}, err
	}
	return m.(DeviceInfo), nil
}

// ModuleInfo returns the payload of the last frame if it was MsgTRInfo.
func (p *Parser) ModuleInfo() (ModuleInfo, error) {
	m, err := p.expect(MsgTRInfo)
	if err != nil {
		return ModuleInfo{}, err
	}
	return m.(ModuleInfo), nil
}

// SPIStatus returns the payload of the last frame if it was MsgSPIStatus.
func (p *Parser) SPIStatus() (SPIStatus, error) {
	m, err := p.expect(MsgSPIStatus)
	if err != nil {
		return SPIStatus{}, err
	}
	return m.(SPIStatus), nil
}

// DSResponse returns the payload of the last frame if it was MsgDataSend.
func (p *Parser) DSResponse() (DataSendResponse, error) {
	m, err := p.expect(MsgDataSend)
	if err != nil {
		return 0, err
	}
	return m.(DataSendResponse), nil
}

// AsyncData returns the payload of the last frame if it was MsgAsync.
func (p *Parser) AsyncData() (AsyncData, error) {
	m, err := p.expect(MsgAsync)
	if err != nil {
		return AsyncData{}, err
	}
	return m.(AsyncData), nil
}
