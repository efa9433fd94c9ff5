// Package caughtup tracks, per narrow, whether the local index reaches the
// true oldest and newest ends of the server-side history.
package caughtup

import (
	"maps"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/models"
)

// State maps a narrow key to its completeness flags. An absent key means
// nothing is known about that narrow. Treat as read-only; Reduce returns a
// new map when anything changes.
type State map[models.NarrowKey]models.CaughtUp

// Get returns the flags for key.
func (s State) Get(key models.NarrowKey) (models.CaughtUp, bool) {
	c, ok := s[key]
	return c, ok
}

// Reduce applies one action.
func Reduce(s State, a actions.Action) State {
	switch act := a.(type) {
	case actions.AccountSwitch, actions.LoginSuccess, actions.Logout, actions.RegisterComplete:
		if len(s) == 0 {
			return s
		}
		return State{}

	case actions.FetchComplete:
		if act.Narrow.IsSearch() {
			return s
		}
		key := act.Narrow.Key()
		prev, had := s[key]
		next := Merge(prev, Infer(act))
		if had && next == prev {
			return s
		}
		out := maps.Clone(s)
		if out == nil {
			out = State{}
		}
		out[key] = next
		return out

	case actions.ConversationMoved:
		// The destination narrows now contain messages we never fetched in
		// context, so forget what we knew about them. Origin narrows only
		// lose messages and stay as caught up as they were.
		drop := []models.NarrowKey{models.TopicNarrow(act.NewStreamID, act.NewTopic).Key()}
		if act.NewStreamID != act.OrigStreamID {
			drop = append(drop, models.StreamNarrow(act.NewStreamID).Key())
		}
		return without(s, drop)
	}
	return s
}

// Merge combines a previous record with a freshly inferred one. Flags only
// move from false to true; a later short page never downgrades them.
func Merge(prev, fresh models.CaughtUp) models.CaughtUp {
	return models.CaughtUp{
		Older: prev.Older || fresh.Older,
		Newer: prev.Newer || fresh.Newer,
	}
}

// Infer derives the completeness flags a single fetch proves. Server-reported
// found_oldest/found_newest win; each missing one is inferred from the page
// counts independently.
func Infer(fc actions.FetchComplete) models.CaughtUp {
	legacy := inferFromCounts(fc)
	out := legacy
	if fc.FoundOldest != nil {
		out.Older = *fc.FoundOldest
	}
	if fc.FoundNewest != nil {
		out.Newer = *fc.FoundNewest
	}
	return out
}

// inferFromCounts handles servers that do not report found_oldest/newest.
//
// A page with fewer messages than requested on one side of the anchor
// proves that side is exhausted. When the anchor message itself is in the
// results the server returns one more message than numBefore+numAfter; that
// surplus is subtracted from the newer side so an exactly-full page is not
// mistaken for a short one.
func inferFromCounts(fc actions.FetchComplete) models.CaughtUp {
	n := len(fc.Messages)

	if fc.Anchor == models.LastMessageAnchor {
		return models.CaughtUp{
			Older: n < fc.NumBefore,
			Newer: true,
		}
	}

	// anchorIdx counts the messages strictly before the pivot.
	anchorIdx := n
	for i := range fc.Messages {
		if fc.Anchor == models.FirstUnreadAnchor {
			if !fc.Messages[i].IsRead() {
				anchorIdx = i
				break
			}
			continue
		}
		if fc.Messages[i].ID >= fc.Anchor {
			anchorIdx = i
			break
		}
	}

	requested := fc.NumBefore + fc.NumAfter
	adjustment := 0
	if n > requested && fc.NumBefore > 0 {
		adjustment = n - requested
	}

	return models.CaughtUp{
		Older: anchorIdx < fc.NumBefore,
		Newer: n-anchorIdx-adjustment < fc.NumAfter,
	}
}

func without(s State, keys []models.NarrowKey) State {
	var out State
	for _, key := range keys {
		if _, ok := s[key]; !ok {
			continue
		}
		if out == nil {
			out = maps.Clone(s)
		}
		delete(out, key)
	}
	if out == nil {
		return s
	}
	return out
}
