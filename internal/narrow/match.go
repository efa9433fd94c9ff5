// Package narrow decides which narrows a message belongs to.
package narrow

import (
	"slices"

	"github.com/tOgg1/msgindex/internal/models"
)

// Matches reports whether message belongs in n's view. It is pure.
//
// Home matches everything; mute rules are applied by the UI, not here.
// Starred and Mentioned are decided by the message's own flags. Search
// narrows never match because their results are not cached.
func Matches(n models.Narrow, message *models.Message, selfUserID int64) bool {
	if message == nil {
		return false
	}

	switch n.Kind {
	case models.NarrowHome, "":
		return true
	case models.NarrowStream:
		return message.Type == models.RecipientStream && message.StreamID == n.StreamID
	case models.NarrowTopic:
		return message.Type == models.RecipientStream &&
			message.StreamID == n.StreamID &&
			message.Topic == n.Topic
	case models.NarrowDirect:
		if message.Type != models.RecipientDirect {
			return false
		}
		want := models.DirectNarrow(append(slices.Clone(n.UserIDs), selfUserID)...).UserIDs
		return slices.Equal(message.Participants(selfUserID), want)
	case models.NarrowAllDirect:
		return message.Type == models.RecipientDirect
	case models.NarrowStarred:
		return message.HasFlag(models.FlagStarred)
	case models.NarrowMentioned:
		return message.IsMentioned()
	case models.NarrowSearch:
		return false
	default:
		return false
	}
}

// ForMessage lists the canonical narrows a message belongs to. Every
// narrow returned satisfies Matches.
func ForMessage(message *models.Message, selfUserID int64) []models.Narrow {
	if message == nil {
		return nil
	}

	out := []models.Narrow{models.HomeNarrow()}
	switch message.Type {
	case models.RecipientStream:
		out = append(out,
			models.StreamNarrow(message.StreamID),
			models.TopicNarrow(message.StreamID, message.Topic),
		)
	case models.RecipientDirect:
		out = append(out, models.AllDirectNarrow(), DirectFor(message, selfUserID))
	}
	if message.HasFlag(models.FlagStarred) {
		out = append(out, models.StarredNarrow())
	}
	if message.IsMentioned() {
		out = append(out, models.MentionedNarrow())
	}
	return out
}

// DirectFor returns the canonical direct narrow for a direct message: the
// other participants, or just self for a note-to-self.
func DirectFor(message *models.Message, selfUserID int64) models.Narrow {
	others := make([]int64, 0, len(message.Recipients)+1)
	for _, id := range message.Participants(selfUserID) {
		if id != selfUserID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return models.DirectNarrow(selfUserID)
	}
	return models.DirectNarrow(others...)
}
