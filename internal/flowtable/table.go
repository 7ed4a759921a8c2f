// Package flowtable implements the fixed-capacity, open-addressed flow
// aggregation table: a hash map from a 5-tuple key to (packets, bytes)
// counters, sized once at startup and never rehashed.
package flowtable

import "github.com/vxlanprobe/vxlanprobe/internal/flowkey"

const (
	// capacityBits fixes the table to exactly 2^18 slots.
	capacityBits = 18
	// Capacity is the fixed slot count. No rehash, no dynamic growth.
	Capacity = 1 << capacityBits
	capacityMask = Capacity - 1

	// SoftCap bounds the number of distinct occupied keys. Beyond it,
	// further distinct flows are dropped from aggregation without error.
	SoftCap = 200_000

	// ProbeBudget bounds the number of linear-probe slots examined per
	// lookup/insert. Exceeding it drops the packet from aggregation. This
	// bounds worst-case per-packet cost.
	ProbeBudget = 64
)

type slot struct {
	key      flowkey.Key
	counters flowkey.Counters
	occupied bool
}

// Table is the fixed-capacity flow hash table. The zero value is an empty
// table; New allocates one on the heap. A Table is touched by exactly one execution context at
// a time — Update and Snapshot are never called concurrently, by contract.
type Table struct {
	slots         [Capacity]slot
	occupiedCount int
}

// New allocates a fresh, empty Table.
func New() *Table {
	return &Table{}
}

// NumFlows returns the live occupied-count.
func (t *Table) NumFlows() int {
	return t.occupiedCount
}

// Update looks up key via linear probing starting at hash(key) mod Capacity
// and either increments an existing flow's counters or inserts a new one. It
// reports false when the packet was dropped from aggregation — because the
// soft cap was reached on what would be a new flow, or because the probe
// budget was exhausted without finding a match or an empty slot. A dropped
// packet still counts toward the caller's gross counters; Update concerns
// itself only with table state.
func (t *Table) Update(key flowkey.Key, innerTotalLen uint16) bool {
	idx := key.Hash() & capacityMask

	for i := 0; i < ProbeBudget; i++ {
		s := &t.slots[idx]

		if !s.occupied {
			if t.occupiedCount >= SoftCap {
				return false
			}

			s.key = key
			s.counters = flowkey.Counters{Packets: 1, Bytes: uint64(innerTotalLen)}
			s.occupied = true
			t.occupiedCount++

			return true
		}

		if s.key == key {
			s.counters.Packets++
			s.counters.Bytes += uint64(innerTotalLen)

			return true
		}

		idx = (idx + 1) & capacityMask
	}

	return false
}

// Snapshot walks all slots in ascending index order, appending each occupied
// entry to buf (up to len(buf) records), then zeroes the entire table and
// resets the occupied-count to 0. It returns the number of records written.
//
// Record order follows table-slot order, not insertion order; callers must
// not rely on any particular ordering between records.
func (t *Table) Snapshot(buf []flowkey.Record) int {
	n := 0

	for i := range t.slots {
		if n >= len(buf) {
			break
		}

		s := &t.slots[i]
		if !s.occupied {
			continue
		}

		buf[n] = flowkey.Record{Key: s.key, Counters: s.counters}
		n++
	}

	for i := range t.slots {
		t.slots[i] = slot{}
	}

	t.occupiedCount = 0

	return n
}
