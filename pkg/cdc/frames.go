// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

// The parser runs on a transition table built once from frame patterns.
// Each pattern is a sequence of tokens; patterns sharing a prefix share
// states, and a state reached by patterns of different types reports
// MsgUnknown until the input disambiguates it.

type special uint8

const (
	specialNone special = iota
	specialText         // USB info text, consumes the terminator
	specialRaw          // counted raw bytes
)

type node struct {
	next    map[byte]int
	any     int  // wildcard target, 0 when none
	length  bool // wildcard byte is the DR data length
	special special
	count   int // raw byte count, -1 uses the captured length
	after   int // state following a special section

	msgType MessageType
	typed   bool
	final   bool
}

type tokenKind uint8

const (
	tokLiteral tokenKind = iota
	tokAny
	tokLength
	tokText
	tokRaw
)

type token struct {
	kind tokenKind
	lit  string
	n    int
}

func lit(s string) token { return token{kind: tokLiteral, lit: s} }
func anyByte() token { return token{kind: tokAny} }
func lengthByte() token { return token{kind: tokLength} }
func usbInfoText() token { return token{kind: tokText} }
func rawBytes(n int) token { return token{kind: tokRaw, n: n} }
func lengthPrefixed() token { return token{kind: tokRaw, n: -1} }

type frameTable struct {
	nodes []node
}

var frames = buildFrameTable()

func buildFrameTable() *frameTable {
	t := &frameTable{nodes: make([]node, 1, 64)}

	t.add(MsgError, lit("<ERR\r"))
	t.add(MsgTest, lit("<OK\r"))
	t.add(MsgResetUSB, lit("<R:OK\r"))
	t.add(MsgResetTR, lit("<RT:OK\r"))
	t.add(MsgUSBInfo, lit("<I:"), usbInfoText())
	t.add(MsgTRInfo, lit("<IT:"), rawBytes(TRInfoSize), lit("\r"))
	t.add(MsgUSBConn, lit("<B:OK\r"))
	t.add(MsgSPIStatus, lit("<S:"), anyByte(), lit("\r"))
	t.add(MsgDataSend, lit("<DS:OK\r"))
	t.add(MsgDataSend, lit("<DS:ERR\r"))
	t.add(MsgDataSend, lit("<DS:BUSY\r"))
	t.add(MsgAsync, lit("<DR"), lengthByte(), lit(":"), lengthPrefixed(), lit("\r"))
	t.add(MsgSwitch, lit("<U:OK\r"))

	return t
}

func (t *frameTable) newNode() int {
	t.nodes = append(t.nodes, node{})
	return len(t.nodes) - 1
}

func (t *frameTable) mark(s int, mt MessageType) {
	n := &t.nodes[s]
	if !n.typed {
		n.msgType = mt
		n.typed = true
	} else if n.msgType != mt {
		n.msgType = MsgUnknown
	}
}

func (t *frameTable) step(s int, b byte, mt MessageType) int {
	if t.nodes[s].next == nil {
		t.nodes[s].next = make(map[byte]int)
	}
	next, ok := t.nodes[s].next[b]
	if !ok {
		next = t.newNode()
		t.nodes[s].next[b] = next
	}
	t.mark(next, mt)
	return next
}

func (t *frameTable) add(mt MessageType, tokens ...token) {
	cur := 0
	for _, tok := range tokens {
		switch tok.kind {
		case tokLiteral:
			for i := 0; i < len(tok.lit); i++ {
				cur = t.step(cur, tok.lit[i], mt)
			}

		case tokAny, tokLength:
			if t.nodes[cur].any == 0 {
				next := t.newNode()
				t.nodes[cur].any = next
				t.nodes[cur].length = tok.kind == tokLength
			}
			cur = t.nodes[cur].any
			t.mark(cur, mt)

		case tokText, tokRaw:
			if t.nodes[cur].after == 0 {
				next := t.newNode()
				t.nodes[cur].after = next
			}
			if tok.kind == tokText {
				t.nodes[cur].special = specialText
			} else {
				t.nodes[cur].special = specialRaw
				t.nodes[cur].count = tok.n
			}
			cur = t.nodes[cur].after
			t.mark(cur, mt)
		}
	}
	t.nodes[cur].final = true
	t.nodes[cur].msgType = mt
}
