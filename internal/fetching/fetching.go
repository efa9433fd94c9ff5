// Package fetching tracks, per narrow, which ends have a history request
// in flight. It is transient: snapshots never include it.
package fetching

import (
	"maps"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/models"
)

// Status says which ends of a narrow are being fetched.
type Status struct {
	Older bool `json:"older"`
	Newer bool `json:"newer"`
}

// State maps a narrow key to its fetch status. An absent key means nothing
// is in flight. Treat as read-only.
type State map[models.NarrowKey]Status

// Get returns the status for key; the zero Status when absent.
func (s State) Get(key models.NarrowKey) Status {
	return s[key]
}

// Reduce applies one action.
func Reduce(s State, a actions.Action) State {
	switch act := a.(type) {
	case actions.AccountSwitch, actions.LoginSuccess, actions.Logout, actions.RegisterComplete:
		if len(s) == 0 {
			return s
		}
		return State{}

	case actions.FetchStart:
		if act.Narrow.IsSearch() {
			return s
		}
		key := act.Narrow.Key()
		prev := s[key]
		next := Status{
			Older: prev.Older || act.NumBefore > 0,
			Newer: prev.Newer || act.NumAfter > 0,
		}
		return set(s, key, next)

	case actions.FetchComplete:
		if act.Narrow.IsSearch() {
			return s
		}
		key := act.Narrow.Key()
		prev, ok := s[key]
		if !ok {
			return s
		}
		next := Status{
			Older: prev.Older && act.NumBefore <= 0,
			Newer: prev.Newer && act.NumAfter <= 0,
		}
		return set(s, key, next)

	case actions.FetchError:
		if act.Narrow.IsSearch() {
			return s
		}
		return set(s, act.Narrow.Key(), Status{})
	}
	return s
}

// set stores status for key. The zero Status is stored as an absent key.
func set(s State, key models.NarrowKey, status Status) State {
	prev, had := s[key]
	if status == (Status{}) {
		if !had {
			return s
		}
		out := maps.Clone(s)
		delete(out, key)
		return out
	}
	if had && prev == status {
		return s
	}
	out := make(State, len(s)+1)
	maps.Copy(out, s)
	out[key] = status
	return out
}
