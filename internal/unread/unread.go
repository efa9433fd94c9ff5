// Package unread keeps the flat, narrow-independent id sets: unread
// mentions and starred messages. Both are populated wholesale on register
// and then updated incrementally; they are always considered complete.
package unread

import (
	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/idset"
	"github.com/tOgg1/msgindex/internal/models"
)

// ReduceMentions applies one action to the unread mentions set.
func ReduceMentions(s idset.Set, a actions.Action) idset.Set {
	switch act := a.(type) {
	case actions.AccountSwitch, actions.LoginSuccess, actions.Logout:
		return reset(s)

	case actions.RegisterComplete:
		return idset.Replace(act.UnreadMentions)

	case actions.NewMessage:
		if act.Message.IsRead() || !act.Message.IsMentioned() {
			return s
		}
		return idset.MergeInsert(s, []int64{act.Message.ID})

	case actions.MessageDelete:
		return idset.Remove(s, act.MessageIDs)

	case actions.FlagUpdate:
		if act.Flag != models.FlagRead {
			return s
		}
		if act.All {
			// Everything was marked read: known and empty.
			return reset(s)
		}
		switch act.Op {
		case actions.FlagAdd:
			return idset.Remove(s, act.MessageIDs)
		case actions.FlagRemove:
			var restored []int64
			for id, detail := range act.MessageDetails {
				if detail.Mentioned {
					restored = append(restored, id)
				}
			}
			return idset.MergeInsert(s, restored)
		}
	}
	return s
}

// ReduceStarred applies one action to the starred set.
func ReduceStarred(s idset.Set, a actions.Action) idset.Set {
	switch act := a.(type) {
	case actions.AccountSwitch, actions.LoginSuccess, actions.Logout:
		return reset(s)

	case actions.RegisterComplete:
		return idset.Replace(act.StarredMessages)

	case actions.MessageDelete:
		return idset.Remove(s, act.MessageIDs)

	case actions.FlagUpdate:
		if act.Flag != models.FlagStarred {
			return s
		}
		switch {
		case act.All && act.Op == actions.FlagRemove:
			return reset(s)
		case act.Op == actions.FlagAdd:
			return idset.MergeInsert(s, act.MessageIDs)
		case act.Op == actions.FlagRemove:
			return idset.Remove(s, act.MessageIDs)
		}
	}
	return s
}

func reset(s idset.Set) idset.Set {
	if s != nil && s.Len() == 0 {
		return s
	}
	return idset.Set{}
}
