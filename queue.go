// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import "sync"

// requestQueue is the unbounded FIFO of spec.md §4.4: backpressure lives at
// the stream id pool, which caps true in-flight work at 128; the queue only
// absorbs admission bursts. A zero maxDepth leaves it unbounded; a positive
// one rejects enqueue with ErrOverloaded once that many requests are
// waiting to be written, the local policy extension the spec names as
// optional. Once closed, enqueue fails with ErrCancelled (spec.md §4.4:
// "enqueue after close MUST fail with Cancelled").
type requestQueue struct {
	mu       sync.Mutex
	cond     sync.Cond
	items    []*requestDescriptor
	closed   bool
	maxDepth int
}

func newRequestQueue(maxDepth int) *requestQueue {
	q := &requestQueue{maxDepth: maxDepth}
	q.cond.L = &q.mu
	return q
}

// enqueue appends desc to the queue and wakes the single consumer. It fails
// with ErrCancelled after close, and with ErrOverloaded if maxDepth is
// positive and already reached.
func (q *requestQueue) enqueue(desc *requestDescriptor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrCancelled
	}
	if q.maxDepth > 0 && len(q.items) >= q.maxDepth {
		return ErrOverloaded
	}
	q.items = append(q.items, desc)
	q.cond.Signal()
	return nil
}

// dequeue blocks until an item is available or the queue is closed, in
// which case it returns ErrCancelled.
func (q *requestQueue) dequeue() (*requestDescriptor, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, ErrCancelled
	}
	desc := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return desc, nil
}

// close wakes the consumer with cancellation and rejects further enqueue
// calls.
func (q *requestQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// drain empties and returns every item still waiting to be written. Invoked
// exactly once, by the closing path, after close has already woken the
// WritePump consumer.
func (q *requestQueue) drain() []*requestDescriptor {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
