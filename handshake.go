// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import (
	"io"

	"github.com/pkg/errors"
)

// Handshake opcodes, internal to this package: the datastore's full opcode
// set (query/result/etc.) is opaque and supplied by the caller's writer and
// reader capabilities (spec.md §1), but READY/AUTHENTICATE is the one
// exchange this package performs itself, so it owns these two values.
const (
	opcodeReady        uint8 = 0x01
	opcodeAuthenticate uint8 = 0x03
	opcodeAuthSuccess  uint8 = 0x04
)

// handshake runs ReadifyConnection (spec.md §4.7): it issues a READY
// request carrying the configured protocol version, and if the reply says
// authentication is required, follows up with an AUTHENTICATE request
// carrying the configured credentials. Both exchanges go through the same
// admission queue as Execute (via submitBlocking) with a blocking sink
// adapter, which only works because the pumps are already running by the
// time Open calls this.
func (c *Connection) handshake() error {
	authRequired, err := c.ready()
	if err != nil {
		return err
	}
	if !authRequired {
		return nil
	}
	if c.cfg.User == "" && c.cfg.Password == "" {
		return ErrInvalidCredentials
	}
	return c.authenticate()
}

func (c *Connection) ready() (authRequired bool, err error) {
	sink := newBlockingSink()
	writer := func(w *FrameWriter) error {
		w.SetOpcode(opcodeReady)
		_, err := io.WriteString(w, c.cfg.CQLVersion)
		return err
	}
	reader := func(r *FrameReader, emit func(item any) error) error {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		return emit(b[0] != 0)
	}

	if err := c.submitBlocking(writer, reader, sink); err != nil {
		return false, err
	}
	item, err := sink.wait()
	if err != nil {
		return false, err
	}
	required, _ := item.(bool)
	return required, nil
}

func (c *Connection) authenticate() error {
	sink := newBlockingSink()
	writer := func(w *FrameWriter) error {
		w.SetOpcode(opcodeAuthenticate)
		if err := writeLPString(w, c.cfg.User); err != nil {
			return err
		}
		return writeLPString(w, c.cfg.Password)
	}
	reader := func(r *FrameReader, emit func(item any) error) error {
		if r.Opcode() != opcodeAuthSuccess {
			return errors.Errorf("dsconn: unexpected authenticate reply opcode %#x", r.Opcode())
		}
		return nil
	}

	if err := c.submitBlocking(writer, reader, sink); err != nil {
		return err
	}
	_, err := sink.wait()
	return err
}

// submitBlocking enqueues a handshake request directly, bypassing the
// public Execute so handshake failures are reported without going through
// Execute's Closed-state check (the connection is still Connecting, not yet
// Ready, while this runs).
func (c *Connection) submitBlocking(writer WriterFunc, reader ReaderFunc, sink Sink) error {
	desc := &requestDescriptor{
		writer: writer,
		reader: reader,
		token:  "handshake",
		sink:   newGuardedSink(sink),
	}
	return c.queue.enqueue(desc)
}

// writeLPString writes a length-prefixed (2-byte big-endian length) string,
// the same shape the frame header itself uses for its own length field,
// scaled down to fit short handshake fields.
func writeLPString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return errors.New("dsconn: handshake field too long")
	}
	length := uint16(len(s))
	if _, err := w.Write([]byte{byte(length >> 8), byte(length)}); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}
