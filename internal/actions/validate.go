package actions

import (
	"github.com/tOgg1/msgindex/internal/models"
)

// Validate reports malformed actions. Callers log and drop them; reducers
// never see an action that fails validation.
//
// Unknown flag names are not an error: they are stored opaquely so that
// snapshots stay forward-compatible.
func Validate(a Action) error {
	v := &models.ValidationErrors{}

	switch act := a.(type) {
	case nil:
		v.Addf("", "nil action")

	case FetchStart:
		validateNarrow(v, act.Narrow)
		if act.NumBefore < 0 || act.NumAfter < 0 {
			v.Addf("num_before", "negative page size")
		}

	case FetchComplete:
		validateNarrow(v, act.Narrow)
		if act.Narrow.IsSearch() {
			v.Addf("narrow", "search results are never cached")
		}
		if act.NumBefore < 0 || act.NumAfter < 0 {
			v.Addf("num_before", "negative page size")
		}
		for i := 1; i < len(act.Messages); i++ {
			if act.Messages[i].ID <= act.Messages[i-1].ID {
				v.Addf("messages", "not strictly ascending at index %d", i)
				break
			}
		}

	case NewMessage:
		if act.Message.ID <= 0 {
			v.Addf("message.id", "must be positive")
		}
		switch act.Message.Type {
		case models.RecipientStream, models.RecipientDirect:
		default:
			v.Addf("message.type", "unknown recipient type %q", act.Message.Type)
		}

	case FlagUpdate:
		if act.Flag == "" {
			v.Addf("flag", "required")
		}
		if act.Op != FlagAdd && act.Op != FlagRemove {
			v.Addf("op", "unsupported op %q", act.Op)
		}

	case ConversationMoved:
		if act.OrigStreamID <= 0 || act.NewStreamID <= 0 {
			v.Addf("stream_id", "must be positive")
		}

	case OutboxSendStart:
		if act.Entry.LocalID == 0 {
			v.Addf("outbox.local_id", "required")
		}
		validateNarrow(v, act.Entry.Narrow)
	}

	return v.Err()
}

func validateNarrow(v *models.ValidationErrors, n models.Narrow) {
	switch n.Kind {
	case models.NarrowHome, models.NarrowAllDirect, models.NarrowStarred,
		models.NarrowMentioned, models.NarrowSearch:
	case models.NarrowStream, models.NarrowTopic:
		if n.StreamID <= 0 {
			v.Addf("narrow.stream_id", "must be positive")
		}
	case models.NarrowDirect:
		if len(n.UserIDs) == 0 {
			v.Addf("narrow.user_ids", "required")
		}
	default:
		v.Addf("narrow.kind", "unknown kind %q", n.Kind)
	}
}
