// Package idset implements an immutable, strictly ascending set of message ids.
//
// Every operation returns the receiver itself when nothing changes, so
// callers detect no-ops with Same. Changed results never share a backing
// array with their input.
package idset

import (
	"encoding/json"
	"slices"
)

// Set is a strictly ascending, duplicate-free list of ids. Treat it as
// read-only.
type Set []int64

// Of builds a set from ids in any order.
func Of(ids ...int64) Set {
	return Replace(ids)
}

// Replace builds a fresh set from ids, discarding whatever came before.
// Used for anchor-based window replacement.
func Replace(ids []int64) Set {
	out := make(Set, len(ids))
	copy(out, ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// MergeInsert unions ids into s. ids need not be sorted.
func MergeInsert(s Set, ids []int64) Set {
	if len(ids) == 0 {
		return s
	}

	// Fast path: a single id past the tail, the common live-event case.
	if len(ids) == 1 && (len(s) == 0 || ids[0] > s[len(s)-1]) {
		out := make(Set, len(s), len(s)+1)
		copy(out, s)
		return append(out, ids[0])
	}

	add := Replace(ids)
	missing := 0
	for _, id := range add {
		if !s.Contains(id) {
			missing++
		}
	}
	if missing == 0 {
		return s
	}

	out := make(Set, 0, len(s)+missing)
	i, j := 0, 0
	for i < len(s) && j < len(add) {
		switch {
		case s[i] < add[j]:
			out = append(out, s[i])
			i++
		case s[i] > add[j]:
			out = append(out, add[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	out = append(out, s[i:]...)
	out = append(out, add[j:]...)
	return out
}

// Remove filters ids out of s, returning s unchanged if none are present.
func Remove(s Set, ids []int64) Set {
	if len(s) == 0 || len(ids) == 0 {
		return s
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if s.Contains(id) {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return s
	}
	out := make(Set, 0, len(s)-len(drop))
	for _, id := range s {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Contains reports membership in O(log n).
func (s Set) Contains(id int64) bool {
	_, found := slices.BinarySearch(s, id)
	return found
}

// Len returns the number of ids.
func (s Set) Len() int { return len(s) }

// First returns the minimum id.
func (s Set) First() (int64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[0], true
}

// Last returns the maximum id.
func (s Set) Last() (int64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// Range returns the ids in [lo, hi], sharing storage with s.
func (s Set) Range(lo, hi int64) []int64 {
	if hi < lo {
		return nil
	}
	start, _ := slices.BinarySearch(s, lo)
	end, found := slices.BinarySearch(s, hi)
	if found {
		end++
	}
	return s[start:end]
}

// Slice returns a copy the caller may mutate.
func (s Set) Slice() []int64 {
	return slices.Clone([]int64(s))
}

// Same reports whether a and b are the same value, not merely equal. It is
// how reducers detect that an operation was a no-op.
func Same(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return (a == nil) == (b == nil)
	}
	return &a[0] == &b[0]
}

// Equal reports element-wise equality.
func Equal(a, b Set) bool {
	return slices.Equal(a, b)
}

// UnmarshalJSON restores the ordering invariant on data from outside the
// process, e.g. a persisted snapshot.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw []int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Replace(raw)
	return nil
}

// MarshalJSON always emits an array, never null.
func (s Set) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int64(s))
}
