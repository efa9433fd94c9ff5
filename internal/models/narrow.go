package models

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// NarrowKind identifies a narrow variant.
type NarrowKind string

const (
	NarrowHome      NarrowKind = "home"
	NarrowStream    NarrowKind = "stream"
	NarrowTopic     NarrowKind = "topic"
	NarrowDirect    NarrowKind = "direct"
	NarrowAllDirect NarrowKind = "all-direct"
	NarrowStarred   NarrowKind = "starred"
	NarrowMentioned NarrowKind = "mentioned"
	NarrowSearch    NarrowKind = "search"
)

// ErrInvalidNarrowKey is returned when a key cannot be parsed back into a narrow.
var ErrInvalidNarrowKey = errors.New("invalid narrow key")

// NarrowKey is the canonical map key of a narrow. Equal narrows produce
// equal keys.
type NarrowKey string

// CaughtUp records how much of a narrow's history the local index covers.
type CaughtUp struct {
	// Older means no matching message exists below the index minimum.
	Older bool `json:"older"`

	// Newer means no matching message exists above the index maximum.
	Newer bool `json:"newer"`
}

// Narrow is a named filter over the conversation history. Only the fields
// relevant to Kind are meaningful; use the constructors below.
type Narrow struct {
	Kind NarrowKind `json:"kind"`

	StreamID int64  `json:"stream_id,omitempty"`
	Topic    string `json:"topic,omitempty"`

	// UserIDs are the other participants of a direct conversation, sorted
	// and de-duplicated. A conversation with oneself lists only self.
	UserIDs []int64 `json:"user_ids,omitempty"`

	Query string `json:"query,omitempty"`
}

func HomeNarrow() Narrow      { return Narrow{Kind: NarrowHome} }
func AllDirectNarrow() Narrow { return Narrow{Kind: NarrowAllDirect} }
func StarredNarrow() Narrow   { return Narrow{Kind: NarrowStarred} }
func MentionedNarrow() Narrow { return Narrow{Kind: NarrowMentioned} }

func StreamNarrow(streamID int64) Narrow {
	return Narrow{Kind: NarrowStream, StreamID: streamID}
}

func TopicNarrow(streamID int64, topic string) Narrow {
	return Narrow{Kind: NarrowTopic, StreamID: streamID, Topic: topic}
}

// DirectNarrow builds a direct-message narrow. Order and duplicates in
// userIDs do not matter.
func DirectNarrow(userIDs ...int64) Narrow {
	return Narrow{Kind: NarrowDirect, UserIDs: normalizeUserIDs(userIDs)}
}

// WithoutSelf drops selfUserID from a direct narrow that also names other
// participants, so a conversation has one key however it was addressed.
// A note-to-self and other kinds are returned unchanged.
func (n Narrow) WithoutSelf(selfUserID int64) Narrow {
	if n.Kind != NarrowDirect || selfUserID == 0 {
		return n
	}
	others := slices.DeleteFunc(slices.Clone(n.UserIDs), func(id int64) bool { return id == selfUserID })
	if len(others) == 0 || len(others) == len(n.UserIDs) {
		return n
	}
	return DirectNarrow(others...)
}

func SearchNarrow(query string) Narrow {
	return Narrow{Kind: NarrowSearch, Query: query}
}

// IsSearch reports whether the narrow is a search; search results are never cached.
func (n Narrow) IsSearch() bool { return n.Kind == NarrowSearch }

// IsStreamOrTopic reports whether the narrow is scoped to a stream.
func (n Narrow) IsStreamOrTopic() bool {
	return n.Kind == NarrowStream || n.Kind == NarrowTopic
}

// Key returns the canonical key. Free-text parts are quoted so that no two
// variants can serialize to the same key.
func (n Narrow) Key() NarrowKey {
	switch n.Kind {
	case NarrowStream:
		return NarrowKey("stream:" + strconv.FormatInt(n.StreamID, 10))
	case NarrowTopic:
		return NarrowKey("topic:" + strconv.FormatInt(n.StreamID, 10) + ":" + strconv.Quote(n.Topic))
	case NarrowDirect:
		ids := normalizeUserIDs(n.UserIDs)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatInt(id, 10)
		}
		return NarrowKey("direct:" + strings.Join(parts, ","))
	case NarrowSearch:
		return NarrowKey("search:" + strconv.Quote(n.Query))
	case "":
		return NarrowKey(NarrowHome)
	default:
		return NarrowKey(n.Kind)
	}
}

func (n Narrow) String() string { return string(n.Key()) }

// ParseNarrowKey is the inverse of Narrow.Key.
func ParseNarrowKey(key NarrowKey) (Narrow, error) {
	raw := string(key)
	kind, rest, hasRest := strings.Cut(raw, ":")

	switch NarrowKind(kind) {
	case NarrowHome, NarrowAllDirect, NarrowStarred, NarrowMentioned:
		if hasRest {
			break
		}
		return Narrow{Kind: NarrowKind(kind)}, nil

	case NarrowStream:
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			break
		}
		return StreamNarrow(id), nil

	case NarrowTopic:
		idPart, quoted, ok := strings.Cut(rest, ":")
		if !ok {
			break
		}
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			break
		}
		topic, err := strconv.Unquote(quoted)
		if err != nil {
			break
		}
		return TopicNarrow(id, topic), nil

	case NarrowDirect:
		if rest == "" {
			return DirectNarrow(), nil
		}
		fields := strings.Split(rest, ",")
		ids := make([]int64, 0, len(fields))
		valid := true
		for _, field := range fields {
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				valid = false
				break
			}
			ids = append(ids, id)
		}
		if !valid {
			break
		}
		return DirectNarrow(ids...), nil

	case NarrowSearch:
		query, err := strconv.Unquote(rest)
		if err != nil {
			break
		}
		return SearchNarrow(query), nil
	}

	return Narrow{}, fmt.Errorf("%w: %q", ErrInvalidNarrowKey, raw)
}
