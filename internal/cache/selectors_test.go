package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/models"
)

func TestNarrowIndex_AbsentVersusEmpty(t *testing.T) {
	topic := models.TopicNarrow(3, "lunch")
	s := Empty()

	ids, ok := s.NarrowIndex(topic.Key())
	require.False(t, ok)
	require.Nil(t, ids)

	s = Apply(s, fetch(topic, 100, 10, 10))
	ids, ok = s.NarrowIndex(topic.Key())
	require.True(t, ok)
	require.NotNil(t, ids)
	require.Empty(t, ids)
}

func TestNarrowIndex_ReturnsCopy(t *testing.T) {
	home := models.HomeNarrow()
	s := Apply(Empty(), fetch(home, models.LastMessageAnchor, 10, 0, 1, 2))

	ids, _ := s.NarrowIndex(home.Key())
	ids[0] = 99

	again, _ := s.NarrowIndex(home.Key())
	require.Equal(t, []int64{1, 2}, again)
}

func TestSelectorsNeverReturnNil(t *testing.T) {
	s := Empty()
	require.NotNil(t, s.UnreadMentionIDs())
	require.NotNil(t, s.StarredIDs())
	require.NotNil(t, s.OutboxEntries())
}

func TestMessageFlags(t *testing.T) {
	s := Apply(Empty(), live(5, models.FlagStarred, "future_flag"))
	require.Equal(t, []string{"future_flag", models.FlagStarred}, s.MessageFlags(5))
	require.Empty(t, s.MessageFlags(6))
}

func TestNeedsFetch(t *testing.T) {
	home := models.HomeNarrow()

	t.Run("untracked needs both ends", func(t *testing.T) {
		require.Equal(t, FetchHint{Older: true, Newer: true}, Empty().NeedsFetch(home.Key(), 0, 0, 5))
	})

	page := fetch(home, 50, 10, 10, 10, 20, 30, 40, 50, 60, 70, 80, 90)
	page.FoundOldest = actions.Bool(false)
	page.FoundNewest = actions.Bool(false)
	s := Apply(Empty(), page)

	t.Run("middle of a long window", func(t *testing.T) {
		require.False(t, s.NeedsFetch(home.Key(), 40, 60, 3).Any())
	})
	t.Run("near the older edge", func(t *testing.T) {
		require.Equal(t, FetchHint{Older: true}, s.NeedsFetch(home.Key(), 20, 50, 3))
	})
	t.Run("near the newer edge", func(t *testing.T) {
		require.Equal(t, FetchHint{Newer: true}, s.NeedsFetch(home.Key(), 40, 80, 3))
	})

	caught := Apply(s, actions.FetchComplete{Narrow: home, Anchor: 10, FoundOldest: actions.Bool(true), FoundNewest: actions.Bool(true)})
	t.Run("caught up ends never need a fetch", func(t *testing.T) {
		require.False(t, caught.NeedsFetch(home.Key(), 10, 90, 3).Any())
	})

	t.Run("an end already in flight is not requested again", func(t *testing.T) {
		older := Apply(s, actions.FetchStart{Narrow: home, NumBefore: 20})
		require.Equal(t, FetchHint{}, older.NeedsFetch(home.Key(), 20, 50, 3))
		require.Equal(t, FetchHint{Newer: true}, older.NeedsFetch(home.Key(), 20, 80, 3))

		done := Apply(older, actions.FetchComplete{
			Narrow:      home,
			Anchor:      10,
			NumBefore:   20,
			FoundOldest: actions.Bool(false),
			FoundNewest: actions.Bool(false),
		})
		require.Equal(t, FetchHint{Older: true}, done.NeedsFetch(home.Key(), 20, 50, 3))
	})
	t.Run("failed fetch can be retried", func(t *testing.T) {
		start := Apply(Empty(), actions.FetchStart{Narrow: home, NumBefore: 10, NumAfter: 10})
		require.False(t, start.NeedsFetch(home.Key(), 0, 0, 5).Any())

		failed := Apply(start, actions.FetchError{Narrow: home, Error: "timeout"})
		require.Equal(t, FetchHint{Older: true, Newer: true}, failed.NeedsFetch(home.Key(), 0, 0, 5))
	})
}
