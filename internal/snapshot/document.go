// Package snapshot serializes the cache state for persistence and
// restores it as a starting state.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tOgg1/msgindex/internal/cache"
	"github.com/tOgg1/msgindex/internal/caughtup"
	"github.com/tOgg1/msgindex/internal/flags"
	"github.com/tOgg1/msgindex/internal/idset"
	"github.com/tOgg1/msgindex/internal/models"
	"github.com/tOgg1/msgindex/internal/narrows"
	"github.com/tOgg1/msgindex/internal/outbox"
)

const CurrentVersion = 1

var (
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrSnapshotNotFound   = errors.New("snapshot not found")
)

// Document is the on-disk form of cache.State. Ids are numbers and sets
// are arrays so any JSON consumer can read it.
type Document struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at,omitzero"`

	Narrows        map[models.NarrowKey]idset.Set       `json:"narrows"`
	CaughtUp       map[models.NarrowKey]models.CaughtUp `json:"caught_up"`
	Flags          map[string]idset.Set                 `json:"flags"`
	UnreadMentions idset.Set                            `json:"unread_mentions"`
	Starred        idset.Set                            `json:"starred"`
	Outbox         []models.OutboxEntry                 `json:"outbox"`
	Deleted        idset.Set                            `json:"deleted,omitempty"`
}

// legacyDocument is the unversioned layout written before flags and
// tombstones were persisted.
type legacyDocument struct {
	Narrows        map[models.NarrowKey]idset.Set       `json:"narrows"`
	CaughtUp       map[models.NarrowKey]models.CaughtUp `json:"caughtUp"`
	UnreadMentions idset.Set                            `json:"unreadMentions"`
	Outbox         []models.OutboxEntry                 `json:"outbox"`
}

// FromState converts a state into its document form.
func FromState(s cache.State) Document {
	doc := Document{
		Version:        CurrentVersion,
		Narrows:        s.Narrows.IDsByKey(),
		CaughtUp:       make(map[models.NarrowKey]models.CaughtUp, len(s.CaughtUp)),
		Flags:          make(map[string]idset.Set, len(s.Flags)),
		UnreadMentions: s.UnreadMentions,
		Starred:        s.Starred,
		Outbox:         s.OutboxEntries(),
		Deleted:        s.Deleted,
	}
	for key, c := range s.CaughtUp {
		doc.CaughtUp[key] = c
	}
	for name, ids := range s.Flags {
		doc.Flags[name] = ids
	}
	return doc
}

// State converts the document back into a cache state. Keys are re-parsed
// so a hand-edited file cannot introduce a non-canonical narrow.
func (d Document) State() (cache.State, error) {
	n, err := narrows.FromIDsByKey(d.Narrows)
	if err != nil {
		return cache.State{}, err
	}

	caught := make(caughtup.State, len(d.CaughtUp))
	for key, c := range d.CaughtUp {
		parsed, err := models.ParseNarrowKey(key)
		if err != nil {
			return cache.State{}, fmt.Errorf("caught_up %q: %w", key, err)
		}
		if parsed.IsSearch() {
			continue
		}
		caught[parsed.Key()] = c
	}

	f := make(flags.State, len(d.Flags))
	for name, ids := range d.Flags {
		if name == "" {
			continue
		}
		f[name] = ids
	}

	var box outbox.State
	if len(d.Outbox) > 0 {
		box = outbox.State(d.Outbox)
	}

	return cache.State{
		Narrows:        n,
		CaughtUp:       caught,
		Flags:          f,
		UnreadMentions: d.UnreadMentions,
		Starred:        d.Starred,
		Outbox:         box,
		Deleted:        d.Deleted,
	}, nil
}

// Encode serializes s.
func Encode(s cache.State) ([]byte, error) {
	doc := FromState(s)
	doc.SavedAt = time.Now().UTC()
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a document of any supported version. An empty payload
// restores the empty state.
func Decode(payload []byte) (cache.State, error) {
	doc, err := DecodeDocument(payload)
	if err != nil {
		return cache.State{}, err
	}
	return doc.State()
}

// DecodeDocument parses and migrates a document without converting it.
func DecodeDocument(payload []byte) (Document, error) {
	if len(payload) == 0 {
		return Document{Version: CurrentVersion}, nil
	}

	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Document{}, fmt.Errorf("decode snapshot: %w", err)
	}

	switch {
	case probe.Version > CurrentVersion || probe.Version < 0:
		return Document{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, probe.Version)

	case probe.Version == 0:
		var legacy legacyDocument
		if err := json.Unmarshal(payload, &legacy); err != nil {
			return Document{}, fmt.Errorf("decode legacy snapshot: %w", err)
		}
		return Document{
			Version:        CurrentVersion,
			Narrows:        legacy.Narrows,
			CaughtUp:       legacy.CaughtUp,
			UnreadMentions: legacy.UnreadMentions,
			Outbox:         legacy.Outbox,
		}, nil
	}

	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return doc, nil
}
