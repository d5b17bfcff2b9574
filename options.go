// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// Config carries the configuration surface of spec.md §6, consumed entirely
// by this package: Open never reads a file or an environment variable.
type Config struct {
	// Port is appended to the endpoint's host when Open is given a bare
	// host. Callers that already pass a host:port address may leave this
	// zero.
	Port int

	// ReceiveTimeout and SendTimeout bound every socket read and write
	// respectively. A zero value disables the corresponding timeout.
	ReceiveTimeout time.Duration
	SendTimeout    time.Duration

	// Keepalive enables OS-level TCP keepalive. KeepaliveTime sets the idle
	// time before the first probe; it is only applied when Keepalive is
	// true and KeepaliveTime > 0. The probe interval is fixed at 1000ms,
	// per spec.md §6.
	Keepalive     bool
	KeepaliveTime time.Duration

	// CQLVersion is carried to the handshake's READY request.
	CQLVersion string

	// ProtocolVersion is the wire protocol version byte carried in every
	// frame header, the handshake's included; it is sent as configured and
	// not negotiated.
	ProtocolVersion uint8

	// User and Password are presented to AUTHENTICATE if the handshake's
	// READY reply demands it. Either may be empty; both empty while
	// authentication is required produces ErrInvalidCredentials.
	User     string
	Password string

	// MaxQueueDepth bounds the admission queue. Zero means unbounded,
	// matching spec.md §4.4's "queue merely absorbs admission bursts"
	// rationale; a positive value rejects Execute with ErrOverloaded once
	// the queue holds that many unwritten requests. This is the local
	// policy extension spec.md names as optional.
	MaxQueueDepth int

	// Logger receives lifecycle and fault logging. Nil means discard.
	Logger *log.Logger

	// Instrumentation receives the request-lifecycle events of spec.md
	// §4.5/§4.6. Nil means no instrumentation.
	Instrumentation Instrumentation

	// TraceFetch, if set, is invoked with a response's trace id whenever a
	// frame arrives with the tracing flag set (spec.md §4.6 step 6:
	// "if server tracing was requested for this token, asynchronously fetch
	// the trace session"). It is always called in its own goroutine.
	TraceFetch func(traceID [16]byte)
}

// DefaultConfig returns a Config with conservative, explicit defaults. It
// does not set Port; callers must supply an address with a port, or set
// Config.Port and pass a bare host to Open.
func DefaultConfig() *Config {
	return &Config{
		ReceiveTimeout:  12 * time.Second,
		SendTimeout:     5 * time.Second,
		Keepalive:       true,
		KeepaliveTime:   30 * time.Second,
		CQLVersion:      "3.0.0",
		ProtocolVersion: 4,
	}
}

// Validate rejects configuration combinations that can never produce a
// working connection.
func (c *Config) Validate() error {
	if c.ReceiveTimeout < 0 {
		return errors.New("dsconn: ReceiveTimeout must not be negative")
	}
	if c.SendTimeout < 0 {
		return errors.New("dsconn: SendTimeout must not be negative")
	}
	if c.KeepaliveTime < 0 {
		return errors.New("dsconn: KeepaliveTime must not be negative")
	}
	if c.MaxQueueDepth < 0 {
		return errors.New("dsconn: MaxQueueDepth must not be negative")
	}
	if c.CQLVersion == "" {
		return errors.New("dsconn: CQLVersion must not be empty")
	}
	if c.ProtocolVersion == 0 {
		return errors.New("dsconn: ProtocolVersion must not be zero")
	}
	return nil
}

// Option mutates a Config; Open applies each one on top of DefaultConfig().
type Option func(*Config)

func WithPort(port int) Option {
	return func(c *Config) { c.Port = port }
}

func WithReceiveTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReceiveTimeout = d }
}

func WithSendTimeout(d time.Duration) Option {
	return func(c *Config) { c.SendTimeout = d }
}

func WithKeepalive(enabled bool, idle time.Duration) Option {
	return func(c *Config) {
		c.Keepalive = enabled
		c.KeepaliveTime = idle
	}
}

func WithCQLVersion(version string) Option {
	return func(c *Config) { c.CQLVersion = version }
}

func WithProtocolVersion(version uint8) Option {
	return func(c *Config) { c.ProtocolVersion = version }
}

func WithCredentials(user, password string) Option {
	return func(c *Config) {
		c.User = user
		c.Password = password
	}
}

func WithMaxQueueDepth(n int) Option {
	return func(c *Config) { c.MaxQueueDepth = n }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func WithInstrumentation(instr Instrumentation) Option {
	return func(c *Config) { c.Instrumentation = instr }
}

func WithTraceFetch(fn func(traceID [16]byte)) Option {
	return func(c *Config) { c.TraceFetch = fn }
}
