// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package moteframe

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// decodeAll feeds a stream through a fresh decoder and collects frames and errors
func decodeAll(d *Decoder, stream []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	d.Decode(stream, func(f *Frame, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		frames = append(frames, f)
	})
	return frames, errs
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_InitialState(t *testing.T) {
	d := NewDecoder()
	if d.State() != StateWaitHeader {
		t.Errorf("Expected WAIT_HEADER, got %s", StateName(d.State()))
	}
}

func TestDecoder_StatusFrame(t *testing.T) {
	d := NewDecoder()
	frames, errs := decodeAll(d, []byte("^^^Xhello$$$"))
	if len(errs) != 0 {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if diff := cmp.Diff([]byte("Xhello"), frames[0].Bytes()); diff != "" {
		t.Errorf("Frame body mismatch (-want +got):\n%s", diff)
	}
	if frames[0].Type() != 'X' {
		t.Errorf("Expected type 'X', got %q", frames[0].Type())
	}
	if d.State() != StateWaitHeader {
		t.Errorf("Expected WAIT_HEADER after trailer, got %s", StateName(d.State()))
	}
}

func TestDecoder_StateTransitions(t *testing.T) {
	d := NewDecoder()
	for _, b := range []byte("^^^") {
		d.DecodeByte(b)
	}
	if d.State() != StateReceivingCommand {
		t.Fatalf("Expected RECEIVING_COMMAND after header run, got %s", StateName(d.State()))
	}
	for _, b := range []byte("ab$$") {
		if f, err := d.DecodeByte(b); f != nil || err != nil {
			t.Fatalf("Unexpected output before trailer run: %v %v", f, err)
		}
	}
	f, err := d.DecodeByte('$')
	if err != nil || f == nil {
		t.Fatalf("Expected frame on third trailer byte, got %v %v", f, err)
	}
	if string(f.Bytes()) != "ab" {
		t.Errorf("Expected body 'ab', got %q", f.Bytes())
	}
}

func TestDecoder_PartialHeaderDoesNotCarryOver(t *testing.T) {
	d := NewDecoder()
	stream := []byte("^^xy^^^Zok$$$")

	for i, b := range stream[:4] {
		d.DecodeByte(b)
		if d.State() != StateWaitHeader {
			t.Fatalf("Byte %d: left WAIT_HEADER on a partial run", i)
		}
	}
	// First two bytes of the second run must not complete a header with the first run
	d.DecodeByte('^')
	d.DecodeByte('^')
	if d.State() != StateWaitHeader {
		t.Fatal("Partial run carried over across non-marker bytes")
	}
	d.DecodeByte('^')
	if d.State() != StateReceivingCommand {
		t.Fatal("Expected transition on the complete second run")
	}

	frames, errs := decodeAll(d, stream[7:])
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("Expected one frame, got %d frames, errors %v", len(frames), errs)
	}
	if string(frames[0].Bytes()) != "Zok" {
		t.Errorf("Expected 'Zok', got %q", frames[0].Bytes())
	}
}

func TestDecoder_PartialTrailerKeptInBody(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{"single marker", "^^^a$b$$$", "a$b"},
		{"double marker", "^^^a$$b$$$", "a$$b"},
		{"header markers inside body", "^^^a^^^b$$$", "a^^^b"},
		{"marker before trailer", "^^^ab$$$$", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, errs := decodeAll(NewDecoder(), []byte(tt.stream))
			if len(errs) != 0 {
				t.Fatalf("Unexpected errors: %v", errs)
			}
			if len(frames) != 1 {
				t.Fatalf("Expected 1 frame, got %d", len(frames))
			}
			if got := string(frames[0].Bytes()); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDecoder_IgnoresNoiseBetweenFrames(t *testing.T) {
	stream := []byte("garbage$$$^^^Aone$$$noise^^^Btwo$$$")
	frames, errs := decodeAll(NewDecoder(), stream)
	if len(errs) != 0 {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if string(frames[0].Bytes()) != "Aone" || string(frames[1].Bytes()) != "Btwo" {
		t.Errorf("Unexpected frames: %q %q", frames[0].Bytes(), frames[1].Bytes())
	}
}

func TestDecoder_EmptyFrame(t *testing.T) {
	d := NewDecoder()
	frames, errs := decodeAll(d, []byte("^^^$$$"))
	if len(frames) != 0 {
		t.Errorf("Expected no frames, got %d", len(frames))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrEmptyFrame) {
		t.Fatalf("Expected ErrEmptyFrame, got %v", errs)
	}
	if d.State() != StateWaitHeader {
		t.Error("Decoder should resume waiting for a header after an empty frame")
	}

	// Decoder keeps working afterwards
	frames, errs = decodeAll(d, []byte("^^^Qx$$$"))
	if len(errs) != 0 || len(frames) != 1 {
		t.Errorf("Expected recovery after empty frame, got %d frames, errors %v", len(frames), errs)
	}
}

func TestDecoder_UnterminatedFrameAccumulates(t *testing.T) {
	d := NewDecoder()
	decodeAll(d, []byte("^^^"))
	body := bytes.Repeat([]byte("x"), 10000)
	frames, errs := decodeAll(d, body)
	if len(frames) != 0 || len(errs) != 0 {
		t.Fatal("Unterminated frame should not produce output")
	}
	if d.State() != StateReceivingCommand {
		t.Error("Expected decoder to stay in RECEIVING_COMMAND")
	}
	if d.Buffered() != len(body) {
		t.Errorf("Expected %d buffered bytes, got %d", len(body), d.Buffered())
	}
}

func TestDecoder_MaxFrameSize(t *testing.T) {
	d := NewDecoder()
	d.SetMaxFrameSize(4)

	frames, errs := decodeAll(d, []byte("^^^abcd$$$"))
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("Frame at the limit should decode, got %d frames, errors %v", len(frames), errs)
	}

	frames, errs = decodeAll(d, []byte("^^^abcde$$$"))
	if len(frames) != 0 {
		t.Errorf("Oversized frame should be dropped")
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrFrameTooLarge) {
		t.Fatalf("Expected ErrFrameTooLarge, got %v", errs)
	}
	if d.State() != StateWaitHeader {
		t.Error("Decoder should resynchronize after an oversized frame")
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	decodeAll(d, []byte("^^^abc$$"))
	d.Reset()
	if d.State() != StateWaitHeader || d.Buffered() != 0 {
		t.Error("Reset should clear state and buffer")
	}
	// A trailing '$' after reset must not complete a frame
	if f, err := d.DecodeByte('$'); f != nil || err != nil {
		t.Errorf("Unexpected output after reset: %v %v", f, err)
	}
}

func TestStateName(t *testing.T) {
	if StateName(StateWaitHeader) != "WAIT_HEADER" {
		t.Error("Wrong name for StateWaitHeader")
	}
	if StateName(StateReceivingCommand) != "RECEIVING_COMMAND" {
		t.Error("Wrong name for StateReceivingCommand")
	}
	if StateName(42) != "UNKNOWN" {
		t.Error("Unknown states should be UNKNOWN")
	}
}

// ============================================================
// Frame Tests
// ============================================================

func TestFrame_CreditRequest(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		isCredit bool
		grants   bool
		hasCap   bool
	}{
		{"grant", []byte{'R', 200}, true, true, true},
		{"grant with trailing bytes", []byte{'R', 200, 1, 2}, true, true, true},
		{"insufficient capacity", []byte{'R', 199}, true, false, true},
		{"larger capacity", []byte{'R', 201}, true, false, true},
		{"missing capacity", []byte{'R'}, true, false, false},
		{"status frame", []byte{'X', 200}, false, false, true},
		{"empty", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrame(tt.data)
			if f.IsCreditRequest() != tt.isCredit {
				t.Errorf("IsCreditRequest: expected %v", tt.isCredit)
			}
			if f.GrantsCredit() != tt.grants {
				t.Errorf("GrantsCredit: expected %v", tt.grants)
			}
			if _, ok := f.Capacity(); ok != tt.hasCap {
				t.Errorf("Capacity ok: expected %v", tt.hasCap)
			}
		})
	}
}

func TestFrame_EmptyAccessors(t *testing.T) {
	f := NewFrame(nil)
	if f.Type() != 0 {
		t.Errorf("Empty frame type should be 0, got %d", f.Type())
	}
	if f.Payload() != nil {
		t.Error("Empty frame payload should be nil")
	}
	if f.Len() != 0 {
		t.Error("Empty frame length should be 0")
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrameType(t *testing.T) {
	tests := []struct {
		tag  byte
		want string
	}{
		{'R', "CREDIT_REQUEST"},
		{'D', "DATA"},
		{'X', "STATUS"},
		{0x01, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := FormatFrameType(tt.tag); got != tt.want {
			t.Errorf("FormatFrameType(0x%02X): expected %s, got %s", tt.tag, tt.want, got)
		}
	}
}

func TestFormatFrame(t *testing.T) {
	out := FormatFrame(NewFrame([]byte("Xhello")))
	if !strings.Contains(out, "STATUS ('X') len=6") {
		t.Errorf("Unexpected header: %q", out)
	}
	if !strings.Contains(out, "68 65 6C 6C 6F") {
		t.Errorf("Expected payload hex dump, got %q", out)
	}

	out = FormatFrame(NewFrame([]byte{'R', 200}))
	if !strings.Contains(out, "Capacity: 200, Flush: yes") {
		t.Errorf("Unexpected credit output: %q", out)
	}

	out = FormatFrame(NewFrame([]byte{'R'}))
	if !strings.Contains(out, "missing capacity") {
		t.Errorf("Expected missing capacity note: %q", out)
	}
}

func TestHexDump_Wraps(t *testing.T) {
	out := HexDump(bytes.Repeat([]byte{0xAB}, 17), "  ")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), out)
	}
	if lines[1] != "  AB " {
		t.Errorf("Unexpected continuation line %q", lines[1])
	}
}
