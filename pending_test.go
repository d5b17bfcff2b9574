// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import "testing"

func TestPendingTable_PutTakeRoundTrip(t *testing.T) {
	pt := &pendingTable{}
	desc := &requestDescriptor{token: "t1"}
	pt.put(3, desc)

	got := pt.take(3)
	if got != desc {
		t.Fatalf("take(3) = %v, want %v", got, desc)
	}
}

func TestPendingTable_PutOnOccupiedSlotPanics(t *testing.T) {
	pt := &pendingTable{}
	pt.put(1, &requestDescriptor{token: "a"})

	defer func() {
		if recover() == nil {
			t.Fatal("put on occupied slot did not panic")
		}
	}()
	pt.put(1, &requestDescriptor{token: "b"})
}

func TestPendingTable_TakeOnEmptySlotPanics(t *testing.T) {
	pt := &pendingTable{}

	defer func() {
		if recover() == nil {
			t.Fatal("take on empty slot did not panic")
		}
	}()
	pt.take(0)
}

func TestPendingTable_DrainEmptiesAndReturnsAll(t *testing.T) {
	pt := &pendingTable{}
	want := map[int8]*requestDescriptor{
		0:   {token: "zero"},
		42:  {token: "forty-two"},
		127: {token: "max"},
	}
	for id, desc := range want {
		pt.put(id, desc)
	}

	entries := pt.drain()
	if len(entries) != len(want) {
		t.Fatalf("drain() len = %d, want %d", len(entries), len(want))
	}
	for _, e := range entries {
		if want[e.id] != e.desc {
			t.Fatalf("drain() entry id=%d desc=%v, want %v", e.id, e.desc, want[e.id])
		}
	}

	if second := pt.drain(); len(second) != 0 {
		t.Fatalf("second drain() len = %d, want 0", len(second))
	}
}
