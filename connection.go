// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	pkgerrors "github.com/pkg/errors"
)

// connState is the lifecycle of spec.md §3: Connecting -> Ready -> Closed,
// Closed being absorbing.
type connState int32

const (
	stateConnecting connState = iota
	stateReady
	stateClosed
)

// Connection owns one TCP socket and multiplexes requests across it
// (spec.md §2, §4.7). It is safe for concurrent use by many callers; the
// write pump and read pump it owns are the only goroutines that ever touch
// the socket.
type Connection struct {
	conn       *net.TCPConn
	cfg        *Config
	logger     *log.Logger
	instr      Instrumentation
	traceFetch func(traceID [16]byte)

	queue   *requestQueue
	ids     *streamIDPool
	pending *pendingTable

	state     atomic.Int32
	closeOnce sync.Once
	wg        sync.WaitGroup

	failureMu        sync.Mutex
	failureListeners []func(error)
	failureFired     bool
}

// Open dials addr, applies the socket options spec.md §6 requires, starts
// the write and read pumps, and runs the READY/AUTHENTICATE handshake
// before returning — the pumps must already be running for the handshake's
// blocking requests, submitted through the admission queue, to complete
// (spec.md §4.7). opts are applied on top
// of DefaultConfig().
func Open(addr string, opts ...Option) (*Connection, error) {
	cfg := DefaultConfig()
	for _, fn := range opts {
		fn(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	instr := cfg.Instrumentation
	if instr == nil {
		instr = noopInstrumentation{}
	}

	if cfg.Port != 0 {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, strconv.Itoa(cfg.Port))
		}
	}

	dialTimeout := cfg.SendTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	raw, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "dsconn: dial")
	}
	tcpConn, ok := raw.(*net.TCPConn)
	if !ok {
		_ = raw.Close()
		return nil, pkgerrors.New("dsconn: endpoint did not yield a TCP connection")
	}
	if err := applySocketOptions(tcpConn, cfg); err != nil {
		_ = tcpConn.Close()
		return nil, err
	}

	c := &Connection{
		conn:       tcpConn,
		cfg:        cfg,
		logger:     logger,
		instr:      instr,
		traceFetch: cfg.TraceFetch,
		queue:      newRequestQueue(cfg.MaxQueueDepth),
		ids:        newStreamIDPool(),
		pending:    &pendingTable{},
	}
	c.state.Store(int32(stateConnecting))

	c.wg.Add(2)
	go c.writePump()
	go c.readPump()

	c.logger.Debug("handshake starting", "addr", addr)
	if err := c.handshake(); err != nil {
		c.shutdown(nil)
		c.wg.Wait()
		return nil, err
	}

	c.state.Store(int32(stateReady))
	c.logger.Info("connection ready", "addr", addr)
	return c, nil
}

// Execute enqueues a request (spec.md §4.7). It fails with ErrCancelled once
// the connection has closed, and with ErrOverloaded if Config.MaxQueueDepth
// is positive and already reached. It never blocks on a stream id or the
// socket — only briefly on the admission queue's mutex (spec.md §5).
func (c *Connection) Execute(writer WriterFunc, reader ReaderFunc, token any, sink Sink) error {
	if connState(c.state.Load()) == stateClosed {
		return ErrCancelled
	}
	desc := &requestDescriptor{
		writer: writer,
		reader: reader,
		token:  token,
		sink:   newGuardedSink(sink),
	}
	return c.queue.enqueue(desc)
}

// Close idempotently tears the connection down: it flips to Closed, closes
// the socket, fails every queued and in-flight sink with ErrCancelled, and
// returns once the pumps have exited. It never invokes OnFailure listeners
// — that notification is reserved for I/O faults the pumps observe
// themselves (spec.md §4.7).
func (c *Connection) Close() error {
	c.shutdown(nil)
	c.wg.Wait()
	return nil
}

// OnFailure registers listener to be called at most once, when an I/O fault
// closes the connection out from under its callers. Registering after the
// connection has already failed is a no-op: the single-shot notification
// has already happened or never will (spec.md §4.7).
func (c *Connection) OnFailure(listener func(error)) {
	c.failureMu.Lock()
	defer c.failureMu.Unlock()
	if c.failureFired {
		return
	}
	c.failureListeners = append(c.failureListeners, listener)
}

// handleError is the single entry point spec.md §4.5/§4.6 call HandleError:
// any socket or framing fault is connection-wide. It is always called from
// a pump's own goroutine, so — unlike Close — it must never wait on c.wg.
func (c *Connection) handleError(err error) {
	c.logger.Error("connection failed", "err", err)
	c.shutdown(err)
}

// shutdown performs the one-time teardown of spec.md §4.7's close: flip to
// Closed, tear down the socket, drain every queued and pending request
// failing its sink with ErrCancelled, and — if failure is non-nil — notify
// OnFailure listeners exactly once before clearing them.
func (c *Connection) shutdown(failure error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(stateClosed))
		c.ids.close()
		c.queue.close()
		_ = c.conn.Close()

		for _, d := range c.pending.drain() {
			c.instr.Cancellation(d.desc.token, d.id)
			d.desc.sink.Error(ErrCancelled)
		}
		for _, desc := range c.queue.drain() {
			c.instr.Cancellation(desc.token, -1)
			desc.sink.Error(ErrCancelled)
		}

		c.failureMu.Lock()
		listeners := c.failureListeners
		c.failureListeners = nil
		if failure != nil {
			c.failureFired = true
		}
		c.failureMu.Unlock()

		if failure != nil {
			for _, l := range listeners {
				l(failure)
			}
		}
	})
}

// isSocketFault reports whether err originates from the transport rather
// than from a reader capability's own decoding logic — spec.md §4.6 step 7
// draws exactly this line: a socket/IO error is connection-wide, any other
// decoder error is isolated to the one request. readPump does not apply it
// to an EOF raised after the frame's declared body is exhausted, which the
// bounded FrameReader produces without touching the socket.
func isSocketFault(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// writePump is the single worker of spec.md §4.5.
func (c *Connection) writePump() {
	defer c.wg.Done()
	for {
		desc, err := c.queue.dequeue()
		if err != nil {
			return
		}

		fw := newFrameWriter(c.cfg.ProtocolVersion)
		if werr := desc.writer(fw); werr != nil {
			desc.sink.Error(&EncoderError{Err: werr})
			continue
		}

		id, err := c.ids.acquire()
		if err != nil {
			desc.sink.Error(ErrCancelled)
			return
		}
		fw.setStreamID(id)

		// Step 4 precedes step 5: the descriptor must be visible to the
		// read pump before anything reaches the socket, or a response could
		// arrive before its descriptor is recorded.
		c.pending.put(id, desc)

		c.instr.BeginWrite(desc.token, id)
		if c.cfg.SendTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout))
		}
		_, werr := fw.WriteTo(c.conn)
		c.instr.EndWrite(desc.token, id, werr)
		if werr != nil {
			// The closing path may already have drained the pending table
			// before put ran; fail this sink here so it is never left
			// without a terminal call (the guard drops a second one).
			desc.sink.Error(ErrCancelled)
			c.handleError(&IoError{Err: werr})
			return
		}
	}
}

// readPump is the single worker of spec.md §4.6.
func (c *Connection) readPump() {
	defer c.wg.Done()
	for {
		if c.cfg.ReceiveTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReceiveTimeout))
		}
		fr, err := readFrame(c.conn)
		if err != nil {
			c.handleError(&IoError{Err: err})
			return
		}

		id := fr.StreamID()
		if id < 0 {
			// Server-initiated event: spec.md §6 reserves but does not
			// define routing for these. Drain and move on.
			_ = fr.Close()
			continue
		}

		desc := c.pending.take(id)
		// The id is released before decoding user bytes, before the slow
		// decoder has even started, so a long-running decode never starves
		// admission of new requests (spec.md §4.6 edge case).
		c.ids.release(id)
		c.instr.BeginRead(desc.token, id)

		var readErr error
		if protoErr := fr.Err(); protoErr != nil {
			desc.sink.Error(protoErr)
		} else {
			readErr = desc.reader(fr, func(item any) error {
				desc.sink.Next(item)
				return nil
			})
			// An EOF once the declared body is used up comes from the
			// bounded FrameReader, not the socket: the reader capability
			// read past its body, which is a decoding error.
			overRead := fr.remaining == 0 &&
				(errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF))
			switch {
			case readErr == nil:
				desc.sink.Complete()
			case isSocketFault(readErr) && !overRead:
				desc.sink.Error(ErrCancelled)
				c.instr.EndRead(desc.token, id, readErr)
				c.handleError(&IoError{Err: readErr})
				return
			default:
				desc.sink.Error(&DecoderError{Err: readErr})
			}
		}
		c.instr.EndRead(desc.token, id, readErr)

		if traceID, ok := fr.TraceID(); ok && c.traceFetch != nil {
			go c.traceFetch(traceID)
		}

		if cerr := fr.Close(); cerr != nil {
			c.handleError(&IoError{Err: cerr})
			return
		}
	}
}
