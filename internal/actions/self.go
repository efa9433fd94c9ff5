package actions

// ForSelf fills in what only the logged-in user's id can decide: the
// OwnUserID of a live message and the canonical form of direct narrows.
// selfUserID zero leaves a unchanged.
func ForSelf(a Action, selfUserID int64) Action {
	if selfUserID == 0 {
		return a
	}
	switch act := a.(type) {
	case FetchStart:
		act.Narrow = act.Narrow.WithoutSelf(selfUserID)
		return act
	case FetchError:
		act.Narrow = act.Narrow.WithoutSelf(selfUserID)
		return act
	case FetchComplete:
		act.Narrow = act.Narrow.WithoutSelf(selfUserID)
		return act
	case OutboxSendStart:
		act.Entry.Narrow = act.Entry.Narrow.WithoutSelf(selfUserID)
		return act
	case NewMessage:
		if act.OwnUserID == 0 {
			act.OwnUserID = selfUserID
		}
		return act
	}
	return a
}
