// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrameWriterWriteTo_RoundTrip(t *testing.T) {
	w := newFrameWriter(4)
	w.setStreamID(7)
	w.SetOpcode(0x0a)
	w.SetTracing(true)
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	out := buf.Bytes()
	if len(out) != frameHeaderLen+5 {
		t.Fatalf("len(out) = %d, want %d", len(out), frameHeaderLen+5)
	}
	if out[headerOffVersion] != 4 {
		t.Fatalf("version = %d, want 4", out[headerOffVersion])
	}
	if out[headerOffFlags] != flagTracing {
		t.Fatalf("flags = %#x, want %#x", out[headerOffFlags], flagTracing)
	}
	if int8(out[headerOffStreamID]) != 7 {
		t.Fatalf("streamID = %d, want 7", int8(out[headerOffStreamID]))
	}
	if out[headerOffOpcode] != 0x0a {
		t.Fatalf("opcode = %#x, want %#x", out[headerOffOpcode], 0x0a)
	}
	if got := binary.BigEndian.Uint32(out[headerOffLength:]); got != 5 {
		t.Fatalf("length = %d, want 5", got)
	}
	if string(out[frameHeaderLen:]) != "hello" {
		t.Fatalf("body = %q, want %q", out[frameHeaderLen:], "hello")
	}
}

func TestReadFrame_PlainBody(t *testing.T) {
	var header [frameHeaderLen]byte
	header[headerOffVersion] = 4
	header[headerOffStreamID] = byte(int8(-1))
	header[headerOffOpcode] = 0x08
	binary.BigEndian.PutUint32(header[headerOffLength:], 3)

	src := bytes.NewBuffer(nil)
	src.Write(header[:])
	src.WriteString("abc")

	fr, err := readFrame(src)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if fr.StreamID() != -1 {
		t.Fatalf("StreamID() = %d, want -1", fr.StreamID())
	}
	if fr.Opcode() != 0x08 {
		t.Fatalf("Opcode() = %#x, want 0x08", fr.Opcode())
	}
	if fr.Err() != nil {
		t.Fatalf("Err() = %v, want nil", fr.Err())
	}

	got := make([]byte, 3)
	if _, err := io.ReadFull(fr, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("body = %q, want %q", got, "abc")
	}
	if err := fr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReadFrame_TracingPrefix(t *testing.T) {
	var header [frameHeaderLen]byte
	header[headerOffFlags] = flagTracing
	header[headerOffStreamID] = 2
	header[headerOffOpcode] = 0x08
	binary.BigEndian.PutUint32(header[headerOffLength:], traceIDLen+2)

	var traceID [traceIDLen]byte
	for i := range traceID {
		traceID[i] = byte(i)
	}

	src := bytes.NewBuffer(nil)
	src.Write(header[:])
	src.Write(traceID[:])
	src.WriteString("ok")

	fr, err := readFrame(src)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	gotTrace, ok := fr.TraceID()
	if !ok {
		t.Fatalf("TraceID() ok = false, want true")
	}
	if gotTrace != traceID {
		t.Fatalf("TraceID() = %v, want %v", gotTrace, traceID)
	}

	body, err := io.ReadAll(fr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q, want %q", body, "ok")
	}
}

func TestReadFrame_ErrorOpcodeParsesProtocolError(t *testing.T) {
	var header [frameHeaderLen]byte
	header[headerOffStreamID] = 5
	header[headerOffOpcode] = opcodeError
	msg := "bad request"
	binary.BigEndian.PutUint32(header[headerOffLength:], uint32(4+len(msg)))

	src := bytes.NewBuffer(nil)
	src.Write(header[:])
	var code [4]byte
	binary.BigEndian.PutUint32(code[:], 0x2200)
	src.Write(code[:])
	src.WriteString(msg)

	fr, err := readFrame(src)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	protoErr := fr.Err()
	if protoErr == nil {
		t.Fatalf("Err() = nil, want non-nil")
	}
	if protoErr.Code != 0x2200 || protoErr.Message != msg {
		t.Fatalf("got %+v", protoErr)
	}
}

// Two frames are chained back to back in one buffer so Close's drain
// behavior can be checked against the boundary of the next frame's header.
func TestFrameReaderClose_DrainsUnconsumedBody(t *testing.T) {
	var header [frameHeaderLen]byte
	header[headerOffStreamID] = 1
	header[headerOffOpcode] = 0x08
	binary.BigEndian.PutUint32(header[headerOffLength:], 5)

	var nextHeader [frameHeaderLen]byte
	nextHeader[headerOffStreamID] = 2
	nextHeader[headerOffOpcode] = 0x08
	binary.BigEndian.PutUint32(nextHeader[headerOffLength:], 2)

	src := bytes.NewBuffer(nil)
	src.Write(header[:])
	src.WriteString("hello")
	src.Write(nextHeader[:])
	src.WriteString("hi")

	fr, err := readFrame(src)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	// Deliberately never read the body; Close must still drain it so the
	// next readFrame lands exactly on the following header.
	if err := fr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fr2, err := readFrame(src)
	if err != nil {
		t.Fatalf("readFrame (second): %v", err)
	}
	if fr2.StreamID() != 2 {
		t.Fatalf("second frame StreamID() = %d, want 2", fr2.StreamID())
	}
	body, err := io.ReadAll(fr2)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "hi" {
		t.Fatalf("second frame body = %q, want %q", body, "hi")
	}
}

func TestReadFrame_ShortHeaderReturnsError(t *testing.T) {
	src := bytes.NewReader([]byte{1, 2, 3})
	if _, err := readFrame(src); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}
