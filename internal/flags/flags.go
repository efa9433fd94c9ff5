// Package flags tracks, per flag name, which cached messages carry it.
//
// Flag names the cache does not understand are stored like any other so a
// persisted snapshot keeps them.
package flags

import (
	"maps"
	"slices"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/idset"
	"github.com/tOgg1/msgindex/internal/models"
)

// State maps a flag name to the ids carrying it. Treat as read-only.
type State map[string]idset.Set

// Has reports whether message id carries flag.
func (s State) Has(flag string, id int64) bool {
	return s[flag].Contains(id)
}

// Names returns the flag names present, sorted.
func (s State) Names() []string {
	names := slices.Collect(maps.Keys(s))
	slices.Sort(names)
	return names
}

// Reduce applies one action.
func Reduce(s State, a actions.Action) State {
	switch act := a.(type) {
	case actions.AccountSwitch, actions.LoginSuccess, actions.Logout:
		if len(s) == 0 {
			return s
		}
		return State{}

	case actions.RegisterComplete:
		// Register replaces everything; only starred ids arrive with it.
		if len(act.StarredMessages) == 0 {
			if len(s) == 0 {
				return s
			}
			return State{}
		}
		return State{models.FlagStarred: idset.Replace(act.StarredMessages)}

	case actions.FetchComplete:
		if act.Narrow.IsSearch() {
			return s
		}
		return addMessages(s, act.Messages)

	case actions.NewMessage:
		return addMessages(s, []models.Message{act.Message})

	case actions.MessageDelete:
		var out State
		for flag, ids := range s {
			next := idset.Remove(ids, act.MessageIDs)
			if idset.Same(ids, next) {
				continue
			}
			if out == nil {
				out = maps.Clone(s)
			}
			out[flag] = next
		}
		if out == nil {
			return s
		}
		return out

	case actions.FlagUpdate:
		return flagUpdate(s, act)
	}
	return s
}

func flagUpdate(s State, fu actions.FlagUpdate) State {
	prev, had := s[fu.Flag]

	var next idset.Set
	switch {
	case fu.All && fu.Op == actions.FlagRemove:
		if had && prev.Len() == 0 {
			return s
		}
		next = idset.Set{}
	case fu.Op == actions.FlagAdd:
		next = idset.MergeInsert(prev, fu.MessageIDs)
	case fu.Op == actions.FlagRemove:
		next = idset.Remove(prev, fu.MessageIDs)
	default:
		return s
	}
	if had && idset.Same(prev, next) {
		return s
	}
	if !had && next.Len() == 0 && !fu.All {
		return s
	}
	return with(s, map[string]idset.Set{fu.Flag: next})
}

func addMessages(s State, messages []models.Message) State {
	pending := make(map[string][]int64)
	for i := range messages {
		for _, flag := range messages[i].Flags {
			if s.Has(flag, messages[i].ID) {
				continue
			}
			pending[flag] = append(pending[flag], messages[i].ID)
		}
	}
	if len(pending) == 0 {
		return s
	}
	changes := make(map[string]idset.Set, len(pending))
	for flag, ids := range pending {
		changes[flag] = idset.MergeInsert(s[flag], ids)
	}
	return with(s, changes)
}

func with(s State, changes map[string]idset.Set) State {
	out := make(State, len(s)+len(changes))
	maps.Copy(out, s)
	maps.Copy(out, changes)
	return out
}
