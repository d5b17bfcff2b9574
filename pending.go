// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import "sync"

// pendingTable is the fixed 128-slot mapping from stream id to the
// in-flight request's descriptor (spec.md §4.3). A slot is set iff the id
// is checked out of the streamIDPool and the request has been handed to the
// socket (the slot is recorded just before its frame is written) but not
// yet fully delivered.
type pendingTable struct {
	mu    sync.Mutex
	slots [maxStreams]*requestDescriptor
}

// put records desc under id. It panics if the slot is already occupied:
// that can only happen if WritePump and the id pool disagree about which
// ids are in flight, which is a programming error, not a runtime condition
// a caller can provoke (spec.md §4.3: "put asserts the slot was empty").
func (t *pendingTable) put(id int8, desc *requestDescriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots[id] != nil {
		panic("dsconn: pendingTable slot already occupied")
	}
	t.slots[id] = desc
}

// take clears and returns the descriptor at id. It panics if the slot was
// empty, mirroring put's assertion.
func (t *pendingTable) take(id int8) *requestDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	desc := t.slots[id]
	if desc == nil {
		panic("dsconn: pendingTable slot was empty")
	}
	t.slots[id] = nil
	return desc
}

// pendingEntry pairs a drained descriptor with the stream id it was
// recorded under, so the closing path can report accurate instrumentation.
type pendingEntry struct {
	id   int8
	desc *requestDescriptor
}

// drain empties every occupied slot and returns the descriptors it held. It
// is invoked exactly once, by the closing path.
func (t *pendingTable) drain() []pendingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]pendingEntry, 0, maxStreams)
	for i := range t.slots {
		if t.slots[i] != nil {
			out = append(out, pendingEntry{id: int8(i), desc: t.slots[i]})
			t.slots[i] = nil
		}
	}
	return out
}
