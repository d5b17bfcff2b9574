// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import "sync"

// maxStreams is the width of the stream id space: spec.md §3 reserves the
// non-negative half of a signed 8-bit id, 128 distinct values.
const maxStreams = 128

// streamIDPool is a bounded, blocking-acquire pool over {0,...,127}. Ordering
// between acquire calls is not specified (spec.md §4.2 accepts either stack
// or queue discipline, since stream ids are interchangeable); this one is
// LIFO because a slice-as-stack needs no extra bookkeeping.
type streamIDPool struct {
	mu     sync.Mutex
	cond   sync.Cond
	free   []int8
	closed bool
}

func newStreamIDPool() *streamIDPool {
	p := &streamIDPool{free: make([]int8, maxStreams)}
	for i := range p.free {
		p.free[i] = int8(i)
	}
	p.cond.L = &p.mu
	return p
}

// acquire blocks until an id is available or the pool is closed, in which
// case it returns ErrCancelled.
func (p *streamIDPool) acquire() (int8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.free) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return 0, ErrCancelled
	}
	n := len(p.free) - 1
	id := p.free[n]
	p.free = p.free[:n]
	return id, nil
}

// release returns id to the pool and wakes one waiter. Releasing an id not
// currently held is a programming error in the caller (spec.md §3).
func (p *streamIDPool) release(id int8) {
	p.mu.Lock()
	p.free = append(p.free, id)
	p.mu.Unlock()
	p.cond.Signal()
}

// close permanently unblocks every waiter with ErrCancelled.
func (p *streamIDPool) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// outstanding reports how many ids are currently checked out. Used only by
// tests to assert the id-conservation invariant (spec.md §8, property 1).
func (p *streamIDPool) outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maxStreams - len(p.free)
}
