// Package narrows maintains the narrow-keyed message id indices.
package narrows

import (
	"fmt"
	"maps"
	"slices"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/caughtup"
	"github.com/tOgg1/msgindex/internal/idset"
	"github.com/tOgg1/msgindex/internal/models"
	"github.com/tOgg1/msgindex/internal/narrow"
)

// Entry is one tracked narrow. IDs is never nil for a tracked narrow: an
// empty set means "fetched, nothing there".
type Entry struct {
	Narrow models.Narrow
	IDs    idset.Set
}

// State maps narrow keys to their index. Absent keys have never been
// fetched. Treat as read-only.
type State map[models.NarrowKey]Entry

// Get returns the ids for key and whether the narrow is tracked.
func (s State) Get(key models.NarrowKey) (idset.Set, bool) {
	e, ok := s[key]
	if !ok {
		return nil, false
	}
	return e.IDs, true
}

// Keys returns the tracked keys in sorted order.
func (s State) Keys() []models.NarrowKey {
	keys := slices.Collect(maps.Keys(s))
	slices.Sort(keys)
	return keys
}

// IDsByKey flattens the state into plain data for persistence.
func (s State) IDsByKey() map[models.NarrowKey]idset.Set {
	out := make(map[models.NarrowKey]idset.Set, len(s))
	for key, e := range s {
		out[key] = e.IDs
	}
	return out
}

// FromIDsByKey rebuilds a State from persisted data.
func FromIDsByKey(in map[models.NarrowKey]idset.Set) (State, error) {
	out := make(State, len(in))
	for key, ids := range in {
		n, err := models.ParseNarrowKey(key)
		if err != nil {
			return nil, fmt.Errorf("narrow %q: %w", key, err)
		}
		if n.IsSearch() {
			continue
		}
		if ids == nil {
			ids = idset.Set{}
		}
		// Re-key so a non-canonical persisted key cannot shadow the real one.
		out[n.Key()] = Entry{Narrow: n, IDs: ids}
	}
	return out, nil
}

// Reduce applies one action. caught is the caught-up state as it was
// before this action; live messages are only appended to narrows already
// caught up at the newer end.
func Reduce(s State, a actions.Action, caught caughtup.State) State {
	switch act := a.(type) {
	case actions.AccountSwitch, actions.LoginSuccess, actions.Logout, actions.RegisterComplete:
		if len(s) == 0 {
			return s
		}
		return State{}
	case actions.FetchComplete:
		return fetchComplete(s, act)
	case actions.NewMessage:
		return newMessage(s, act, caught)
	case actions.MessageDelete:
		return removeEverywhere(s, act.MessageIDs)
	case actions.FlagUpdate:
		return flagUpdate(s, act)
	case actions.ConversationMoved:
		return conversationMoved(s, act)
	}
	return s
}

func fetchComplete(s State, fc actions.FetchComplete) State {
	if fc.Narrow.IsSearch() {
		return s
	}

	ids := make([]int64, len(fc.Messages))
	for i := range fc.Messages {
		ids[i] = fc.Messages[i].ID
	}

	key := fc.Narrow.Key()
	prev, had := s[key]

	var next idset.Set
	switch {
	case !had:
		next = idset.Replace(ids)
	case fc.Anchor == models.FirstUnreadAnchor, fc.Anchor == models.LastMessageAnchor:
		next = idset.Replace(ids)
	default:
		next = idset.MergeInsert(prev.IDs, ids)
		if idset.Same(prev.IDs, next) {
			return s
		}
	}

	out := clone(s)
	out[key] = Entry{Narrow: fc.Narrow, IDs: next}
	return out
}

func newMessage(s State, nm actions.NewMessage, caught caughtup.State) State {
	msg := nm.Message
	var out State
	for key, e := range s {
		if !narrow.Matches(e.Narrow, &msg, nm.OwnUserID) {
			continue
		}
		if !atLiveTail(e.Narrow, key, caught) {
			continue
		}
		next := idset.MergeInsert(e.IDs, []int64{msg.ID})
		if idset.Same(e.IDs, next) {
			continue
		}
		if out == nil {
			out = clone(s)
		}
		out[key] = Entry{Narrow: e.Narrow, IDs: next}
	}
	if out == nil {
		return s
	}
	return out
}

// atLiveTail reports whether a live message may be appended. Home and
// AllDirect receive every live event in id order once they are tracked.
func atLiveTail(n models.Narrow, key models.NarrowKey, caught caughtup.State) bool {
	switch n.Kind {
	case models.NarrowHome, models.NarrowAllDirect, "":
		return true
	}
	c, ok := caught[key]
	return ok && c.Newer
}

func removeEverywhere(s State, ids []int64) State {
	if len(ids) == 0 {
		return s
	}
	var out State
	for key, e := range s {
		next := idset.Remove(e.IDs, ids)
		if idset.Same(e.IDs, next) {
			continue
		}
		if out == nil {
			out = clone(s)
		}
		out[key] = Entry{Narrow: e.Narrow, IDs: next}
	}
	if out == nil {
		return s
	}
	return out
}

func flagUpdate(s State, fu actions.FlagUpdate) State {
	var target models.Narrow
	switch {
	case fu.Flag == models.FlagStarred:
		target = models.StarredNarrow()
	case models.IsMentionFlag(fu.Flag):
		target = models.MentionedNarrow()
	default:
		return s
	}

	key := target.Key()
	e, ok := s[key]
	if !ok {
		return s
	}

	var next idset.Set
	switch fu.Op {
	case actions.FlagAdd:
		next = idset.MergeInsert(e.IDs, fu.MessageIDs)
	case actions.FlagRemove:
		next = idset.Remove(e.IDs, fu.MessageIDs)
	default:
		return s
	}
	if idset.Same(e.IDs, next) {
		return s
	}
	out := clone(s)
	out[key] = Entry{Narrow: e.Narrow, IDs: next}
	return out
}

// conversationMoved forgets the destination narrows entirely and removes
// the moved ids from the origin topic, plus the origin stream when the
// messages left it.
func conversationMoved(s State, cm actions.ConversationMoved) State {
	streamChanged := cm.NewStreamID != cm.OrigStreamID

	drop := []models.NarrowKey{models.TopicNarrow(cm.NewStreamID, cm.NewTopic).Key()}
	if streamChanged {
		drop = append(drop, models.StreamNarrow(cm.NewStreamID).Key())
	}
	prune := []models.NarrowKey{models.TopicNarrow(cm.OrigStreamID, cm.OrigTopic).Key()}
	if streamChanged {
		prune = append(prune, models.StreamNarrow(cm.OrigStreamID).Key())
	}

	var out State
	for _, key := range drop {
		if _, ok := s[key]; !ok {
			continue
		}
		if out == nil {
			out = clone(s)
		}
		delete(out, key)
	}
	for _, key := range prune {
		e, ok := s[key]
		if !ok || slices.Contains(drop, key) {
			continue
		}
		next := idset.Remove(e.IDs, cm.MessageIDs)
		if idset.Same(e.IDs, next) {
			continue
		}
		if out == nil {
			out = clone(s)
		}
		out[key] = Entry{Narrow: e.Narrow, IDs: next}
	}
	if out == nil {
		return s
	}
	return out
}

func clone(s State) State {
	out := make(State, len(s)+1)
	maps.Copy(out, s)
	return out
}
