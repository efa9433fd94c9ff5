// Package outbox reconciles locally composed messages with the server's
// live echo of them.
package outbox

import (
	"slices"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/models"
)

// State is the pending outbox in send order. Treat as read-only.
type State []models.OutboxEntry

// Find returns the entry with localID.
func (s State) Find(localID int64) (models.OutboxEntry, bool) {
	i := s.index(localID)
	if i < 0 {
		return models.OutboxEntry{}, false
	}
	return s[i], true
}

func (s State) index(localID int64) int {
	return slices.IndexFunc(s, func(e models.OutboxEntry) bool {
		return e.LocalID == localID
	})
}

// Reduce applies one action. An entry leaves the outbox only when the
// server echoes its local id, the user deletes it, or the account resets.
func Reduce(s State, a actions.Action) State {
	switch act := a.(type) {
	case actions.AccountSwitch, actions.LoginSuccess, actions.Logout:
		if len(s) == 0 {
			return s
		}
		return State{}

	case actions.RegisterComplete:
		// A fresh event queue will not echo sends accepted before it was
		// registered; those entries would never reconcile.
		if !slices.ContainsFunc(s, func(e models.OutboxEntry) bool { return e.IsSent }) {
			return s
		}
		out := make(State, 0, len(s))
		for _, e := range s {
			if !e.IsSent {
				out = append(out, e)
			}
		}
		return out

	case actions.OutboxSendStart:
		// LocalID is a millisecond timestamp; a repeat is a double submit.
		if s.index(act.Entry.LocalID) >= 0 {
			return s
		}
		out := make(State, len(s), len(s)+1)
		copy(out, s)
		return append(out, act.Entry)

	case actions.OutboxSendComplete:
		i := s.index(act.LocalID)
		if i < 0 || s[i].IsSent {
			return s
		}
		out := slices.Clone(s)
		out[i].IsSent = true
		return out

	case actions.NewMessage:
		if act.LocalID == nil {
			return s
		}
		return remove(s, *act.LocalID)

	case actions.OutboxDelete:
		return remove(s, act.LocalID)
	}
	return s
}

func remove(s State, localID int64) State {
	i := s.index(localID)
	if i < 0 {
		return s
	}
	out := make(State, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}
