// Package cache is the root of the message-index cache: one immutable
// State value, the Apply function that advances it, and read-only
// selectors over it.
package cache

import (
	"reflect"
	"slices"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/caughtup"
	"github.com/tOgg1/msgindex/internal/fetching"
	"github.com/tOgg1/msgindex/internal/flags"
	"github.com/tOgg1/msgindex/internal/idset"
	"github.com/tOgg1/msgindex/internal/models"
	"github.com/tOgg1/msgindex/internal/narrows"
	"github.com/tOgg1/msgindex/internal/outbox"
	"github.com/tOgg1/msgindex/internal/unread"
)

// State is the whole cache. Every field is copy-on-write: Apply never
// modifies a State it was given, so a State value read at any time is
// internally consistent.
type State struct {
	Narrows        narrows.State
	CaughtUp       caughtup.State
	Flags          flags.State
	UnreadMentions idset.Set
	Starred        idset.Set
	Outbox         outbox.State

	// Fetching marks narrow ends with a request in flight. It is never
	// persisted.
	Fetching fetching.State

	// Deleted remembers ids removed by live delete events so a late flag
	// update cannot put them back into a flag-derived set.
	Deleted idset.Set
}

// MaxTombstones bounds State.Deleted.
const MaxTombstones = 1000

// Empty returns a State with nothing tracked.
func Empty() State {
	return State{
		Narrows:  narrows.State{},
		CaughtUp: caughtup.State{},
		Flags:    flags.State{},
	}
}

// Apply advances s by one action. Every slice sees the same action; the
// narrow index sees the caught-up flags as they were before it.
func Apply(s State, a actions.Action) State {
	if a == nil {
		return s
	}
	a = withoutDeleted(s.Deleted, a)
	if a == nil {
		return s
	}

	return State{
		Narrows:        narrows.Reduce(s.Narrows, a, s.CaughtUp),
		CaughtUp:       caughtup.Reduce(s.CaughtUp, a),
		Flags:          flags.Reduce(s.Flags, a),
		UnreadMentions: unread.ReduceMentions(s.UnreadMentions, a),
		Starred:        unread.ReduceStarred(s.Starred, a),
		Outbox:         outbox.Reduce(s.Outbox, a),
		Fetching:       fetching.Reduce(s.Fetching, a),
		Deleted:        reduceDeleted(s.Deleted, a),
	}
}

// ApplyAll folds a sequence of actions into s.
func ApplyAll(s State, all ...actions.Action) State {
	for _, a := range all {
		s = Apply(s, a)
	}
	return s
}

// withoutDeleted strips tombstoned ids from actions that would otherwise
// add them back. It returns nil when nothing is left to apply.
func withoutDeleted(deleted idset.Set, a actions.Action) actions.Action {
	if deleted.Len() == 0 {
		return a
	}
	switch act := a.(type) {
	case actions.FlagUpdate:
		kept := slices.DeleteFunc(slices.Clone(act.MessageIDs), deleted.Contains)
		if len(kept) == len(act.MessageIDs) && !hasDeletedDetail(deleted, act.MessageDetails) {
			return a
		}
		if len(kept) == 0 && !act.All {
			return nil
		}
		act.MessageIDs = kept
		if len(act.MessageDetails) > 0 {
			details := make(map[int64]actions.FlagMessageDetail, len(act.MessageDetails))
			for id, d := range act.MessageDetails {
				if !deleted.Contains(id) {
					details[id] = d
				}
			}
			act.MessageDetails = details
		}
		return act
	case actions.NewMessage:
		if deleted.Contains(act.Message.ID) {
			return nil
		}
	}
	return a
}

func hasDeletedDetail(deleted idset.Set, details map[int64]actions.FlagMessageDetail) bool {
	for id := range details {
		if deleted.Contains(id) {
			return true
		}
	}
	return false
}

func reduceDeleted(s idset.Set, a actions.Action) idset.Set {
	switch act := a.(type) {
	case actions.AccountSwitch, actions.LoginSuccess, actions.Logout, actions.RegisterComplete:
		if s == nil {
			return s
		}
		return nil
	case actions.MessageDelete:
		next := idset.MergeInsert(s, act.MessageIDs)
		if next.Len() > MaxTombstones {
			// Keep the newest ids; late events almost always concern them.
			next = slices.Clone(next[next.Len()-MaxTombstones:])
		}
		return next
	}
	return s
}

// Unchanged reports whether next is the very same state as prev, i.e. the
// action that produced it was a no-op.
func Unchanged(prev, next State) bool {
	return sameMap(prev.Fetching, next.Fetching) && PersistentUnchanged(prev, next)
}

// PersistentUnchanged is Unchanged restricted to the slices a snapshot
// stores.
func PersistentUnchanged(prev, next State) bool {
	return sameMap(prev.Narrows, next.Narrows) &&
		sameMap(prev.CaughtUp, next.CaughtUp) &&
		sameMap(prev.Flags, next.Flags) &&
		idset.Same(prev.UnreadMentions, next.UnreadMentions) &&
		idset.Same(prev.Starred, next.Starred) &&
		sameOutbox(prev.Outbox, next.Outbox) &&
		idset.Same(prev.Deleted, next.Deleted)
}

// ChangedNarrows lists, sorted, the narrow keys whose index, caught-up
// flags or fetch status differ between prev and next.
func ChangedNarrows(prev, next State) []models.NarrowKey {
	seen := make(map[models.NarrowKey]struct{})
	for key, e := range next.Narrows {
		old, ok := prev.Narrows[key]
		if !ok || !idset.Same(old.IDs, e.IDs) {
			seen[key] = struct{}{}
		}
	}
	for key := range prev.Narrows {
		if _, ok := next.Narrows[key]; !ok {
			seen[key] = struct{}{}
		}
	}
	for key, c := range next.CaughtUp {
		if old, ok := prev.CaughtUp[key]; !ok || old != c {
			seen[key] = struct{}{}
		}
	}
	for key := range prev.CaughtUp {
		if _, ok := next.CaughtUp[key]; !ok {
			seen[key] = struct{}{}
		}
	}

	for key, f := range next.Fetching {
		if prev.Fetching[key] != f {
			seen[key] = struct{}{}
		}
	}
	for key := range prev.Fetching {
		if _, ok := next.Fetching[key]; !ok {
			seen[key] = struct{}{}
		}
	}

	out := make([]models.NarrowKey, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}

func sameMap(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.IsNil() || vb.IsNil() {
		return va.IsNil() == vb.IsNil()
	}
	return va.UnsafePointer() == vb.UnsafePointer()
}

func sameOutbox(a, b outbox.State) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return (a == nil) == (b == nil)
	}
	return &a[0] == &b[0]
}
