package flags

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/idset"
	"github.com/tOgg1/msgindex/internal/models"
)

func TestFetchCompleteAddsFlags(t *testing.T) {
	next := Reduce(nil, actions.FetchComplete{
		Narrow: models.HomeNarrow(),
		Messages: []models.Message{
			{ID: 1, Flags: []string{models.FlagRead, models.FlagStarred}},
			{ID: 2, Flags: []string{models.FlagRead, "future_flag"}},
			{ID: 3},
		},
	})

	require.Equal(t, State{
		models.FlagRead:    {1, 2},
		models.FlagStarred: {1},
		"future_flag":      {2},
	}, next)
	require.Equal(t, []string{"future_flag", models.FlagRead, models.FlagStarred}, next.Names())
}

func TestFetchCompleteNoNewFlagsIsIdentity(t *testing.T) {
	prev := State{models.FlagRead: idset.Of(1)}
	next := Reduce(prev, actions.FetchComplete{Narrow: models.HomeNarrow(), Messages: []models.Message{{ID: 1, Flags: []string{models.FlagRead}}}})
	require.True(t, idset.Same(prev[models.FlagRead], next[models.FlagRead]))
}

func TestNewMessageAddsFlags(t *testing.T) {
	prev := State{models.FlagRead: idset.Of(1)}
	next := Reduce(prev, actions.NewMessage{Message: models.Message{ID: 5, Flags: []string{models.FlagRead, models.FlagMentioned}}})
	require.Equal(t, State{models.FlagRead: {1, 5}, models.FlagMentioned: {5}}, next)
	require.Equal(t, idset.Set{1}, prev[models.FlagRead])
}

func TestFlagUpdate(t *testing.T) {
	tests := []struct {
		name   string
		prev   State
		action actions.FlagUpdate
		want   State
	}{
		{
			name:   "add",
			prev:   State{models.FlagStarred: {1}},
			action: actions.FlagUpdate{Flag: models.FlagStarred, Op: actions.FlagAdd, MessageIDs: []int64{3, 2}},
			want:   State{models.FlagStarred: {1, 2, 3}},
		},
		{
			name:   "remove",
			prev:   State{models.FlagStarred: {1, 2}},
			action: actions.FlagUpdate{Flag: models.FlagStarred, Op: actions.FlagRemove, MessageIDs: []int64{1}},
			want:   State{models.FlagStarred: {2}},
		},
		{
			name:   "all remove clears the flag",
			prev:   State{models.FlagRead: {1, 2}, models.FlagStarred: {2}},
			action: actions.FlagUpdate{Flag: models.FlagRead, Op: actions.FlagRemove, All: true},
			want:   State{models.FlagRead: {}, models.FlagStarred: {2}},
		},
		{
			name:   "all add marks supplied ids",
			prev:   State{models.FlagRead: {1}},
			action: actions.FlagUpdate{Flag: models.FlagRead, Op: actions.FlagAdd, All: true, MessageIDs: []int64{2, 3}},
			want:   State{models.FlagRead: {1, 2, 3}},
		},
		{
			name:   "unknown flag is kept",
			prev:   State{},
			action: actions.FlagUpdate{Flag: "collapsed", Op: actions.FlagAdd, MessageIDs: []int64{4}},
			want:   State{"collapsed": {4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Reduce(tt.prev, tt.action))
		})
	}
}

func TestFlagUpdate_RemoveFromUnknownFlagIsIdentity(t *testing.T) {
	prev := State{}
	next := Reduce(prev, actions.FlagUpdate{Flag: models.FlagStarred, Op: actions.FlagRemove, MessageIDs: []int64{1}})
	require.Empty(t, next)
}

func TestMessageDeleteRemovesFromEveryFlag(t *testing.T) {
	prev := State{models.FlagRead: {1, 2}, models.FlagStarred: {2}, "x": {3}}
	next := Reduce(prev, actions.MessageDelete{MessageIDs: []int64{2}})
	require.Equal(t, State{models.FlagRead: {1}, models.FlagStarred: {}, "x": {3}}, next)
	require.True(t, idset.Same(prev["x"], next["x"]))
}

func TestResets(t *testing.T) {
	for _, a := range []actions.Action{actions.AccountSwitch{}, actions.Logout{}, actions.LoginSuccess{}, actions.RegisterComplete{}} {
		require.Empty(t, Reduce(State{models.FlagRead: {1}}, a), "%T", a)
	}
}

func TestRegisterCompleteSeedsStarred(t *testing.T) {
	prev := State{models.FlagRead: {1}, models.FlagStarred: {1}}
	next := Reduce(prev, actions.RegisterComplete{StarredMessages: []int64{9, 4}})
	require.Equal(t, State{models.FlagStarred: {4, 9}}, next)
}
