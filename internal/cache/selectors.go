package cache

import (
	"slices"

	"github.com/tOgg1/msgindex/internal/fetching"
	"github.com/tOgg1/msgindex/internal/idset"
	"github.com/tOgg1/msgindex/internal/models"
)

// NarrowIndex returns the ids cached for key. ok is false when the narrow
// has never been fetched; a tracked narrow with no messages returns an
// empty, non-nil slice.
func (s State) NarrowIndex(key models.NarrowKey) (ids []int64, ok bool) {
	set, ok := s.Narrows.Get(key)
	if !ok {
		return nil, false
	}
	return set.Slice(), true
}

// CaughtUpFor returns the completeness flags for key, if known.
func (s State) CaughtUpFor(key models.NarrowKey) (models.CaughtUp, bool) {
	return s.CaughtUp.Get(key)
}

// FetchingFor returns which ends of key have a request in flight.
func (s State) FetchingFor(key models.NarrowKey) fetching.Status {
	return s.Fetching.Get(key)
}

// UnreadMentionIDs returns the unread mention ids, ascending.
func (s State) UnreadMentionIDs() []int64 {
	return nonNil(s.UnreadMentions)
}

// StarredIDs returns the starred ids, ascending.
func (s State) StarredIDs() []int64 {
	return nonNil(s.Starred)
}

// OutboxEntries returns the pending outbox in send order.
func (s State) OutboxEntries() []models.OutboxEntry {
	if len(s.Outbox) == 0 {
		return []models.OutboxEntry{}
	}
	return slices.Clone([]models.OutboxEntry(s.Outbox))
}

// OutboxFor returns the pending entries composed in narrow key.
func (s State) OutboxFor(key models.NarrowKey) []models.OutboxEntry {
	var out []models.OutboxEntry
	for _, e := range s.Outbox {
		if e.Narrow.Key() == key {
			out = append(out, e)
		}
	}
	return out
}

// MessageFlags returns the flags the cache knows for message id, sorted.
func (s State) MessageFlags(id int64) []string {
	var out []string
	for _, name := range s.Flags.Names() {
		if s.Flags.Has(name, id) {
			out = append(out, name)
		}
	}
	return out
}

// FetchHint says which ends of a narrow the UI should fetch next.
type FetchHint struct {
	Older bool
	Newer bool
}

// Any reports whether any fetch is needed.
func (h FetchHint) Any() bool { return h.Older || h.Newer }

// NeedsFetch reports which ends of narrow key should be fetched given the
// range of ids currently on screen. An end needs fetching when it is not
// caught up, no request for it is in flight, and the visible range is
// within threshold ids of it. An untracked narrow needs an initial fetch
// in both directions.
func (s State) NeedsFetch(key models.NarrowKey, firstVisible, lastVisible int64, threshold int) FetchHint {
	inFlight := s.Fetching.Get(key)
	set, ok := s.Narrows.Get(key)
	if !ok {
		return FetchHint{Older: !inFlight.Older, Newer: !inFlight.Newer}
	}
	caught, _ := s.CaughtUp.Get(key)
	if set.Len() == 0 {
		return FetchHint{
			Older: !caught.Older && !inFlight.Older,
			Newer: !caught.Newer && !inFlight.Newer,
		}
	}

	first, _ := set.First()
	last, _ := set.Last()
	below := len(set.Range(first, firstVisible-1))
	above := len(set.Range(lastVisible+1, last))

	return FetchHint{
		Older: !caught.Older && !inFlight.Older && below < threshold,
		Newer: !caught.Newer && !inFlight.Newer && above < threshold,
	}
}

func nonNil(s idset.Set) []int64 {
	if len(s) == 0 {
		return []int64{}
	}
	return s.Slice()
}
