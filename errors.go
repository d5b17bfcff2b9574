// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is the terminal error delivered to a sink whose request
	// was still in flight (queued or pending) when the connection closed,
	// and the error returned from Execute once the connection is closed.
	ErrCancelled = errors.New("dsconn: cancelled")

	// ErrInvalidCredentials is returned from Open when the handshake
	// requires authentication and the configuration carries no credentials.
	ErrInvalidCredentials = errors.New("dsconn: invalid credentials")

	// ErrOverloaded is returned from Execute when Config.MaxQueueDepth is
	// non-zero and the admission queue is already at that depth.
	ErrOverloaded = errors.New("dsconn: overloaded")
)

// ProtocolError reports a response frame that parsed as the wire protocol's
// error opcode. It is delivered to the sink of the request that provoked it;
// the connection stays Ready.
type ProtocolError struct {
	Code    uint32
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("dsconn: protocol error 0x%04x: %s", e.Code, e.Message)
}

// DecoderError wraps a failure raised by a caller-supplied reader capability
// while decoding a well-formed response body. The connection stays Ready.
type DecoderError struct {
	Err error
}

func (e *DecoderError) Error() string { return fmt.Sprintf("dsconn: decode: %v", e.Err) }
func (e *DecoderError) Unwrap() error { return e.Err }

// EncoderError wraps a failure raised by a caller-supplied writer capability
// before anything was written to the socket. No stream id is acquired for
// the request: the writer capability runs before one is taken from the pool.
type EncoderError struct {
	Err error
}

func (e *EncoderError) Error() string { return fmt.Sprintf("dsconn: encode: %v", e.Err) }
func (e *EncoderError) Unwrap() error { return e.Err }

// IoError wraps a socket read/write fault or a framing desynchronization.
// Raising an IoError is always connection-wide: every pending and in-flight
// sink is failed with ErrCancelled, no further Execute calls are admitted,
// and OnFailure is notified at most once.
type IoError struct {
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("dsconn: io: %v", e.Err) }
func (e *IoError) Unwrap() error { return e.Err }
