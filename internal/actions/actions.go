// Package actions defines the totally ordered input stream consumed by the
// message-index cache.
package actions

import (
	"github.com/tOgg1/msgindex/internal/models"
)

// Type names an action on the wire and in logs.
type Type string

const (
	TypeFetchStart         Type = "message_fetch_start"
	TypeFetchError         Type = "message_fetch_error"
	TypeFetchComplete      Type = "message_fetch_complete"
	TypeRegisterComplete   Type = "register_complete"
	TypeNewMessage         Type = "event_new_message"
	TypeMessageDelete      Type = "event_message_delete"
	TypeFlagUpdate         Type = "event_update_message_flags"
	TypeConversationMoved  Type = "event_conversation_moved"
	TypeOutboxSendStart    Type = "message_send_start"
	TypeOutboxSendComplete Type = "message_send_complete"
	TypeOutboxDelete       Type = "delete_outbox_message"
	TypeAccountSwitch      Type = "account_switch"
	TypeLoginSuccess       Type = "login_success"
	TypeLogout             Type = "logout"
)

// FlagOp is the direction of a flag update.
type FlagOp string

const (
	FlagAdd    FlagOp = "add"
	FlagRemove FlagOp = "remove"
)

// Action is one entry of the input stream.
type Action interface {
	Type() Type
}

// FetchStart announces an outstanding historical fetch. NumBefore and
// NumAfter say which ends are being requested.
type FetchStart struct {
	Narrow    models.Narrow `json:"narrow"`
	NumBefore int           `json:"num_before"`
	NumAfter  int           `json:"num_after"`
}

// FetchError reverses FetchStart.
type FetchError struct {
	Narrow models.Narrow `json:"narrow"`
	Error  string        `json:"error,omitempty"`
}

// FetchComplete carries one page of history around Anchor.
type FetchComplete struct {
	Narrow models.Narrow `json:"narrow"`
	Anchor int64         `json:"anchor"`

	// Messages are ascending by id and may be empty.
	Messages []models.Message `json:"messages"`

	NumBefore int `json:"num_before"`
	NumAfter  int `json:"num_after"`

	// FoundOldest and FoundNewest are reported by newer servers.
	FoundOldest *bool `json:"found_oldest,omitempty"`
	FoundNewest *bool `json:"found_newest,omitempty"`
}

// RegisterComplete carries the initial data of a fresh event queue.
type RegisterComplete struct {
	UnreadMentions  []int64 `json:"unread_mentions,omitempty"`
	StarredMessages []int64 `json:"starred_messages,omitempty"`
}

// NewMessage is a live message event.
type NewMessage struct {
	Message models.Message `json:"message"`

	// LocalID echoes the outbox key when the message was sent from this client.
	LocalID *int64 `json:"local_message_id,omitempty"`

	// OwnUserID is the logged-in user; the dispatcher fills it when zero.
	OwnUserID int64 `json:"own_user_id,omitempty"`
}

// MessageDelete removes messages everywhere.
type MessageDelete struct {
	MessageIDs []int64 `json:"message_ids"`
}

// FlagMessageDetail describes a message whose read flag was removed.
type FlagMessageDetail struct {
	Mentioned bool `json:"mentioned,omitempty"`
}

// FlagUpdate adds or removes one flag on a set of messages.
type FlagUpdate struct {
	Flag       string  `json:"flag"`
	Op         FlagOp  `json:"op"`
	MessageIDs []int64 `json:"messages"`

	// All marks a realm-wide update; for the read flag this means every
	// message was marked read.
	All bool `json:"all,omitempty"`

	// MessageDetails is sent with remove/read so unread mentions can be
	// restored.
	MessageDetails map[int64]FlagMessageDetail `json:"message_details,omitempty"`
}

// ConversationMoved reports messages whose stream and/or topic changed.
type ConversationMoved struct {
	OrigStreamID int64   `json:"orig_stream_id"`
	OrigTopic    string  `json:"orig_topic"`
	NewStreamID  int64   `json:"new_stream_id"`
	NewTopic     string  `json:"new_topic"`
	MessageIDs   []int64 `json:"message_ids"`
}

// OutboxSendStart queues a locally composed message.
type OutboxSendStart struct {
	Entry models.OutboxEntry `json:"outbox"`
}

// OutboxSendComplete marks an outbox entry as accepted by the server.
type OutboxSendComplete struct {
	LocalID int64 `json:"local_id"`
}

// OutboxDelete drops an unsent draft at the user's request.
type OutboxDelete struct {
	LocalID int64 `json:"local_id"`
}

// AccountSwitch, LoginSuccess and Logout reset every slice.
type AccountSwitch struct{}

type LoginSuccess struct{}

type Logout struct{}

func (FetchStart) Type() Type         { return TypeFetchStart }
func (FetchError) Type() Type         { return TypeFetchError }
func (FetchComplete) Type() Type      { return TypeFetchComplete }
func (RegisterComplete) Type() Type   { return TypeRegisterComplete }
func (NewMessage) Type() Type         { return TypeNewMessage }
func (MessageDelete) Type() Type      { return TypeMessageDelete }
func (FlagUpdate) Type() Type         { return TypeFlagUpdate }
func (ConversationMoved) Type() Type  { return TypeConversationMoved }
func (OutboxSendStart) Type() Type    { return TypeOutboxSendStart }
func (OutboxSendComplete) Type() Type { return TypeOutboxSendComplete }
func (OutboxDelete) Type() Type       { return TypeOutboxDelete }
func (AccountSwitch) Type() Type      { return TypeAccountSwitch }
func (LoginSuccess) Type() Type       { return TypeLoginSuccess }
func (Logout) Type() Type             { return TypeLogout }

// IsReset reports whether the action discards all per-account state.
func IsReset(a Action) bool {
	switch a.(type) {
	case AccountSwitch, LoginSuccess, Logout:
		return true
	}
	return false
}

// Bool is a helper for the optional FetchComplete fields.
func Bool(v bool) *bool { return &v }

// Int64 is a helper for NewMessage.LocalID.
func Int64(v int64) *int64 { return &v }
