// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/sagernet/sing/common/bufio"
)

// Wire layout (spec.md §3): version, flags, stream_id (signed 8-bit),
// opcode, length (32-bit big-endian), all fixed by the external protocol.
const (
	frameHeaderLen = 8

	headerOffVersion  = 0
	headerOffFlags    = 1
	headerOffStreamID = 2
	headerOffOpcode   = 3
	headerOffLength   = 4

	// flagTracing marks that the frame carries a 16-byte trace id at the
	// start of its body; the header's length counts it.
	flagTracing uint8 = 0x02

	// traceIDLen is the width of the trace id prefix when flagTracing is set.
	traceIDLen = 16

	// opcodeError is the opcode a response uses to carry a ProtocolError.
	opcodeError uint8 = 0x00
)

// WriterFunc is the writer capability of spec.md §3: given a FrameWriter, it
// serializes the request body and declares the frame's opcode and tracing
// flag. An error returned here never touches the socket (spec.md §4.5 step
// 6) — it is wrapped as an EncoderError and delivered to the sink.
type WriterFunc func(w *FrameWriter) error

// ReaderFunc is the reader capability of spec.md §3: given a FrameReader, it
// produces a lazy finite sequence of decoded items, calling emit for each
// one in server-emitted order. An error returned here that is a transport
// fault (io.EOF, io.ErrUnexpectedEOF or io.ErrClosedPipe while body bytes
// remain, or a net.Error) fails the whole connection; any other error,
// including an EOF from reading past the declared body, becomes a
// DecoderError (spec.md §4.6 step 7).
type ReaderFunc func(r *FrameReader, emit func(item any) error) error

// FrameWriter buffers one request's frame in memory so WriteTo can back-fill
// the length prefix before a single contiguous write reaches the socket;
// partial writes observed by the peer would desynchronize framing
// (spec.md §4.1).
type FrameWriter struct {
	version  uint8
	streamID int8
	opcode   uint8
	tracing  bool
	body     bytes.Buffer
}

// newFrameWriter constructs a FrameWriter before a stream id has been
// assigned: spec.md §4.5 has the writer capability serialize the body (step
// 2) before the stream id is acquired (step 3), so the id is attached
// afterward with setStreamID.
func newFrameWriter(version uint8) *FrameWriter {
	return &FrameWriter{version: version}
}

// setStreamID attaches the stream id WritePump acquired after the writer
// capability already built the body.
func (w *FrameWriter) setStreamID(id int8) { w.streamID = id }

// SetOpcode declares the request's opcode. Writer capabilities must call
// this before returning.
func (w *FrameWriter) SetOpcode(opcode uint8) { w.opcode = opcode }

// SetTracing sets the header bit requesting a server-side trace session.
func (w *FrameWriter) SetTracing(tracing bool) { w.tracing = tracing }

// Write appends to the buffered request body.
func (w *FrameWriter) Write(p []byte) (int, error) { return w.body.Write(p) }

// WriteTo writes the header and buffered body to conn as a single logical
// write. When conn supports vectorised I/O (as detected by
// sing/common/bufio, the same mechanism smux's sendLoop uses to avoid
// copying a stream payload into its header buffer) the header and body are
// handed to the kernel as one scatter-gather write; otherwise they are
// copied into one contiguous buffer first. Either way the peer never
// observes the header without its body.
func (w *FrameWriter) WriteTo(conn io.Writer) (int64, error) {
	body := w.body.Bytes()
	if len(body) > int(^uint32(0)) {
		return 0, errors.New("dsconn: request body exceeds protocol length limit")
	}

	var header [frameHeaderLen]byte
	header[headerOffVersion] = w.version
	if w.tracing {
		header[headerOffFlags] = flagTracing
	}
	header[headerOffStreamID] = byte(w.streamID)
	header[headerOffOpcode] = w.opcode
	binary.BigEndian.PutUint32(header[headerOffLength:], uint32(len(body)))

	if bw, ok := bufio.CreateVectorisedWriter(conn); ok {
		n, err := bufio.WriteVectorised(bw, [][]byte{header[:], body})
		return int64(n) - frameHeaderLen, err
	}

	buf := make([]byte, frameHeaderLen+len(body))
	copy(buf, header[:])
	copy(buf[frameHeaderLen:], body)
	n, err := conn.Write(buf)
	written := int64(n) - frameHeaderLen
	if written < 0 {
		written = 0
	}
	return written, err
}

// FrameReader parses one response frame header synchronously and exposes
// its body as a bounded stream.
type FrameReader struct {
	streamID int8
	opcode   uint8
	traceID  [traceIDLen]byte
	hasTrace bool
	protoErr *ProtocolError

	conn      io.Reader
	remaining int64
}

// readFrame reads and parses the fixed header from conn, then — if the
// header's tracing bit is set — consumes the trace id, then — if the
// opcode indicates a protocol-level error — fully parses the error body
// before returning, per spec.md §4.1 ("response_exception ... fully parsed
// before user decoding"). Any read here is a socket/framing fault and must
// be treated by the caller as connection-wide (spec.md §4.1, §7).
func readFrame(conn io.Reader) (*FrameReader, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	r := &FrameReader{
		conn:     conn,
		streamID: int8(header[headerOffStreamID]),
		opcode:   header[headerOffOpcode],
	}
	r.remaining = int64(binary.BigEndian.Uint32(header[headerOffLength:]))

	if header[headerOffFlags]&flagTracing != 0 {
		if r.remaining < traceIDLen {
			return nil, errors.New("dsconn: tracing flag set on undersized frame")
		}
		if _, err := io.ReadFull(conn, r.traceID[:]); err != nil {
			return nil, err
		}
		r.remaining -= traceIDLen
		r.hasTrace = true
	}

	if r.opcode == opcodeError {
		body := make([]byte, r.remaining)
		if _, err := io.ReadFull(conn, body); err != nil {
			return nil, err
		}
		r.remaining = 0
		if len(body) < 4 {
			return nil, errors.New("dsconn: truncated error frame")
		}
		r.protoErr = &ProtocolError{
			Code:    binary.BigEndian.Uint32(body[:4]),
			Message: string(body[4:]),
		}
	}

	return r, nil
}

// StreamID returns the stream id the response is tagged with.
func (r *FrameReader) StreamID() int8 { return r.streamID }

// Opcode returns the response's opcode.
func (r *FrameReader) Opcode() uint8 { return r.opcode }

// TraceID returns the server-assigned trace session id, if the response
// carried one.
func (r *FrameReader) TraceID() ([16]byte, bool) { return r.traceID, r.hasTrace }

// Err returns the parsed protocol error, if the response's opcode indicated
// one. Reader capabilities are not invoked when this is non-nil.
func (r *FrameReader) Err() *ProtocolError { return r.protoErr }

// Read consumes the remaining declared body, never past the length the
// header declared. It implements io.Reader so reader capabilities can decode
// with the standard library's encoding helpers directly.
func (r *FrameReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.conn.Read(p)
	r.remaining -= int64(n)
	return n, err
}

// Close drains any bytes of the declared body the reader capability left
// unconsumed, so the socket is always aligned on the next frame's header
// boundary (spec.md §4.1, testable property 6).
func (r *FrameReader) Close() error {
	if r.remaining <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r.conn, r.remaining)
	r.remaining = 0
	return err
}
