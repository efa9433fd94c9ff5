package models

// OutboxEntry is a locally composed message awaiting server confirmation.
type OutboxEntry struct {
	// LocalID is the send timestamp used as a temporary key until the
	// server echoes it back as local_message_id.
	LocalID int64 `json:"local_id"`

	// Narrow is where the message was composed.
	Narrow Narrow `json:"narrow"`

	// Content is the raw markdown the user typed.
	Content string `json:"content"`

	// SenderID is the local user.
	SenderID int64 `json:"sender_id"`

	// SentAt is the unix time the send was started.
	SentAt int64 `json:"sent_at"`

	// IsSent becomes true once the server accepted the send request.
	IsSent bool `json:"is_sent,omitempty"`
}
