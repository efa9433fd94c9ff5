package actions

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownActionType is returned by Decode for an unrecognized envelope type.
var ErrUnknownActionType = errors.New("unknown action type")

// Envelope is the JSON framing used for action logs: one envelope per line.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps an action in an envelope.
func Encode(a Action) ([]byte, error) {
	if a == nil {
		return nil, errors.New("nil action")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.Type(), err)
	}
	return json.Marshal(Envelope{Type: a.Type(), Payload: payload})
}

// Decode parses one envelope back into its concrete action.
func Decode(data []byte) (Action, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeFetchStart:
		return decodePayload[FetchStart](env)
	case TypeFetchError:
		return decodePayload[FetchError](env)
	case TypeFetchComplete:
		return decodePayload[FetchComplete](env)
	case TypeRegisterComplete:
		return decodePayload[RegisterComplete](env)
	case TypeNewMessage:
		return decodePayload[NewMessage](env)
	case TypeMessageDelete:
		return decodePayload[MessageDelete](env)
	case TypeFlagUpdate:
		return decodePayload[FlagUpdate](env)
	case TypeConversationMoved:
		return decodePayload[ConversationMoved](env)
	case TypeOutboxSendStart:
		return decodePayload[OutboxSendStart](env)
	case TypeOutboxSendComplete:
		return decodePayload[OutboxSendComplete](env)
	case TypeOutboxDelete:
		return decodePayload[OutboxDelete](env)
	case TypeAccountSwitch:
		return AccountSwitch{}, nil
	case TypeLoginSuccess:
		return LoginSuccess{}, nil
	case TypeLogout:
		return Logout{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, env.Type)
	}
}

func decodePayload[T Action](env Envelope) (Action, error) {
	var out T
	if len(env.Payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return out, nil
}
