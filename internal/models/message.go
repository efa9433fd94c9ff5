package models

import (
	"encoding/json"
	"slices"
)

// RecipientType distinguishes channel messages from direct messages.
type RecipientType string

const (
	RecipientStream RecipientType = "stream"
	RecipientDirect RecipientType = "private"
)

// Well-known message flags. Any other flag string is carried opaquely.
const (
	FlagRead              = "read"
	FlagStarred           = "starred"
	FlagMentioned         = "mentioned"
	FlagWildcardMentioned = "wildcard_mentioned"
	FlagHasAlertWord      = "has_alert_word"
	FlagHistorical        = "historical"
)

// Pagination anchors understood by the server. These are protocol-level
// sentinels and must not change.
const (
	// FirstUnreadAnchor asks the server to pivot on the first unread message.
	FirstUnreadAnchor int64 = 0

	// LastMessageAnchor asks the server for the newest messages.
	LastMessageAnchor int64 = 10_000_000_000_000_000
)

// Message is the subset of a server message this cache cares about.
type Message struct {
	// ID is assigned by the server and increases monotonically.
	ID int64 `json:"id"`

	// Type is either a stream message or a direct message.
	Type RecipientType `json:"type"`

	// StreamID is set for stream messages.
	StreamID int64 `json:"stream_id,omitempty"`

	// Topic is set for stream messages.
	Topic string `json:"topic,omitempty"`

	// Recipients lists every participant of a direct message, sender included.
	Recipients []int64 `json:"recipients,omitempty"`

	// SenderID is the user who sent the message.
	SenderID int64 `json:"sender_id"`

	// Timestamp is the server send time in unix seconds.
	Timestamp int64 `json:"timestamp"`

	// Flags are replaced wholesale by flag-update events.
	Flags []string `json:"flags"`

	// Content is opaque to the cache.
	Content json.RawMessage `json:"content,omitempty"`
}

// HasFlag reports whether the message carries the given flag.
func (m Message) HasFlag(flag string) bool {
	return slices.Contains(m.Flags, flag)
}

// IsMentioned reports whether the message mentions the user directly or via wildcard.
func (m Message) IsMentioned() bool {
	return m.HasFlag(FlagMentioned) || m.HasFlag(FlagWildcardMentioned)
}

// IsRead reports whether the read flag is set.
func (m Message) IsRead() bool {
	return m.HasFlag(FlagRead)
}

// Participants returns the sorted participant set of a direct message,
// including the sender and selfUserID.
func (m Message) Participants(selfUserID int64) []int64 {
	ids := make([]int64, 0, len(m.Recipients)+2)
	ids = append(ids, m.Recipients...)
	ids = append(ids, m.SenderID, selfUserID)
	return normalizeUserIDs(ids)
}

// IsMentionFlag reports whether a flag contributes to the mentioned narrow.
func IsMentionFlag(flag string) bool {
	return flag == FlagMentioned || flag == FlagWildcardMentioned
}

func normalizeUserIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
