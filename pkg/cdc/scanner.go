// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import "bytes"

// Scanner accumulates received bytes and splits them into frames.
type Scanner struct {
	parser FrameParser
	buf    []byte
}

// NewScanner creates a scanner driving p. A nil p uses a new Parser.
func NewScanner(p FrameParser) *Scanner {
	if p == nil {
		p = NewParser()
	}
	return &Scanner{
		parser: p,
		buf:    make([]byte, 0, ReadBufferSize*2),
	}
}

// Feed appends data and calls fn for every ParseOK and ParseBadFormat
// result, with the frame or the dropped bytes. raw is only valid during the
// call. Bytes of an incomplete frame stay buffered for the next Feed.
func (s *Scanner) Feed(data []byte, fn FrameHandler) {
	s.buf = append(s.buf, data...)
	for len(s.buf) > 0 {
		res := s.parser.ParseData(s.buf)

		var n int
		switch res.Status {
		case ParseOK:
			n = res.LastPosition + 1
		case ParseBadFormat:
			n = ResyncOffset(s.buf, res.LastPosition)
		default:
			return
		}

		fn(res, s.buf[:n])
		s.buf = append(s.buf[:0], s.buf[n:]...)
	}
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (s *Scanner) Buffered() int {
	return len(s.buf)
}

// Parser returns the parser, whose accessors describe the last ParseOK
// frame while fn runs.
func (s *Scanner) Parser() FrameParser {
	return s.parser
}

// Reset drops buffered bytes and resets the parser.
func (s *Scanner) Reset() {
	s.buf = s.buf[:0]
	s.parser.Reset()
}

// ResyncOffset returns how many bytes to drop from buf after a
// ParseBadFormat at position last: everything up to and including the next
// terminator, or the whole buffer when there is none.
func ResyncOffset(buf []byte, last int) int {
	if last < 0 || last >= len(buf) {
		return len(buf)
	}
	i := bytes.IndexByte(buf[last:], Terminator)
	if i < 0 {
		return len(buf)
	}
	return last + i + 1
}
