// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import "sync"

// Sink is the push-style observer of spec.md §3: exactly one of Complete or
// Error is ever called, never more than once, and Next is never called
// after either. Calls originate from the read pump goroutine, from the write
// pump (an EncoderError, or ErrCancelled when the request cannot be sent),
// or, for requests still queued or in flight at Close, from the closing
// path.
type Sink interface {
	Next(item any)
	Complete()
	Error(err error)
}

// requestDescriptor is the immutable record pinned in a pendingTable slot
// while its request is in flight (spec.md §3).
type requestDescriptor struct {
	writer WriterFunc
	reader ReaderFunc
	token  any
	sink   *guardedSink
}

// guardedSink enforces the sink contract's single-terminal invariant with a
// small state flag, per spec.md §9 ("not via runtime type introspection").
// It is safe to call from exactly one goroutine at a time, which is all the
// read pump and closing path ever do, but the flag is still mutex-protected
// since both can race to deliver the terminal call during a connection-wide
// failure.
type guardedSink struct {
	mu       sync.Mutex
	terminal bool
	sink     Sink
}

func newGuardedSink(sink Sink) *guardedSink {
	return &guardedSink{sink: sink}
}

func (g *guardedSink) Next(item any) {
	g.mu.Lock()
	if g.terminal {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.sink.Next(item)
}

func (g *guardedSink) Complete() {
	g.mu.Lock()
	if g.terminal {
		g.mu.Unlock()
		return
	}
	g.terminal = true
	g.mu.Unlock()
	g.sink.Complete()
}

func (g *guardedSink) Error(err error) {
	g.mu.Lock()
	if g.terminal {
		g.mu.Unlock()
		return
	}
	g.terminal = true
	g.mu.Unlock()
	g.sink.Error(err)
}

// ChannelSink adapts the push-style Sink contract to a pull-style iterator,
// the bounded-MPSC-channel alternative spec.md §9 calls out as an
// equivalent design to a hand-rolled observer.
type ChannelSink struct {
	items chan any
	done  chan error
}

// NewChannelSink returns a Sink whose decoded items can be drained from
// Items and whose terminal outcome can be waited on with Wait. buffer sizes
// the item channel; a slow consumer applies backpressure to the read pump
// once it fills; spec.md §9's slow-decoder scenario demonstrates why a
// caller may want to choose this deliberately.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{items: make(chan any, buffer), done: make(chan error, 1)}
}

func (s *ChannelSink) Next(item any) { s.items <- item }

func (s *ChannelSink) Complete() {
	close(s.items)
	s.done <- nil
}

func (s *ChannelSink) Error(err error) {
	close(s.items)
	s.done <- err
}

// Items returns the channel decoded items arrive on. It is closed once the
// terminal outcome is known; drain it before calling Wait.
func (s *ChannelSink) Items() <-chan any { return s.items }

// Wait blocks until the request's terminal outcome is known and returns it
// (nil on Complete).
func (s *ChannelSink) Wait() error { return <-s.done }

// blockingSink is the internal adapter spec.md §4.7 requires the handshake
// to use: it captures at most one item synchronously and blocks the caller
// until the terminal call arrives.
type blockingSink struct {
	item chan any
	done chan error
}

func newBlockingSink() *blockingSink {
	return &blockingSink{item: make(chan any, 1), done: make(chan error, 1)}
}

func (s *blockingSink) Next(item any) {
	select {
	case s.item <- item:
	default:
	}
}

func (s *blockingSink) Complete() { s.done <- nil }
func (s *blockingSink) Error(err error) {
	select {
	case s.done <- err:
	default:
	}
}

// wait blocks for the terminal outcome and returns the single item
// received, if any.
func (s *blockingSink) wait() (any, error) {
	err := <-s.done
	var item any
	select {
	case item = <-s.item:
	default:
	}
	return item, err
}
