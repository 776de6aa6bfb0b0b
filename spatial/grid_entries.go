package spatial

import "sort"

// FixedEntriesCapacity is the maximum number of agents a grid nearest query
// can return. Candidates beyond it are dropped, farthest first.
const FixedEntriesCapacity = 32

type fixedEntry struct {
	slot     int
	distance float64
}

// fixedEntries keeps the nearest candidates found by a grid nearest query.
type fixedEntries struct {
	entries [FixedEntriesCapacity]fixedEntry
	length  int
	limit   int
}

func newFixedEntries(maxCount int) *fixedEntries {
	limit := maxCount
	if limit <= 0 || limit > FixedEntriesCapacity {
		limit = FixedEntriesCapacity
	}
	return &fixedEntries{limit: limit}
}

// add records a candidate. It returns false when the slot was already
// recorded.
func (e *fixedEntries) add(slot int, distance float64) bool {
	worst := -1
	for i := 0; i < e.length; i++ {
		if e.entries[i].slot == slot {
			return false
		}
		if worst == -1 || e.entries[i].distance > e.entries[worst].distance {
			worst = i
		}
	}

	if e.length < e.limit {
		e.entries[e.length] = fixedEntry{slot: slot, distance: distance}
		e.length++
		return true
	}

	if distance < e.entries[worst].distance {
		e.entries[worst] = fixedEntry{slot: slot, distance: distance}
	}
	return true
}

func (e *fixedEntries) full() bool {
	return e.length == e.limit
}

func (e *fixedEntries) worst() float64 {
	var worst float64
	for i := 0; i < e.length; i++ {
		if e.entries[i].distance > worst {
			worst = e.entries[i].distance
		}
	}
	return worst
}

// sorted returns the entries nearest first.
func (e *fixedEntries) sorted() []fixedEntry {
	s := e.entries[:e.length]
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].distance < s[j].distance
	})
	return s
}
