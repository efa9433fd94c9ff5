package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/cache"
	"github.com/tOgg1/msgindex/internal/models"
)

func message(id int64, flags ...string) models.Message {
	if flags == nil {
		flags = []string{}
	}
	return models.Message{ID: id, Type: models.RecipientStream, StreamID: 3, Topic: "lunch", SenderID: 2, Flags: flags}
}

func populated() cache.State {
	home := models.HomeNarrow()
	topic := models.TopicNarrow(3, "lunch")
	return cache.ApplyAll(cache.Empty(),
		actions.FetchComplete{Narrow: home, Anchor: models.LastMessageAnchor, NumBefore: 10, Messages: []models.Message{message(1), message(2, models.FlagStarred)}},
		actions.FetchComplete{Narrow: topic, Anchor: 2, NumBefore: 5, NumAfter: 5, Messages: []models.Message{message(2)}},
		actions.NewMessage{Message: message(3, models.FlagMentioned), OwnUserID: 1},
		actions.OutboxSendStart{Entry: models.OutboxEntry{LocalID: 546, Narrow: topic, Content: "hi", SenderID: 1, SentAt: 1700000000}},
		actions.MessageDelete{MessageIDs: []int64{1}},
	)
}

func requireEquivalent(t *testing.T, want, got cache.State) {
	t.Helper()
	require.ElementsMatch(t, want.Narrows.Keys(), got.Narrows.Keys())
	for _, key := range want.Narrows.Keys() {
		wantIDs, _ := want.NarrowIndex(key)
		gotIDs, ok := got.NarrowIndex(key)
		require.True(t, ok, "narrow %s", key)
		require.Equal(t, wantIDs, gotIDs, "narrow %s", key)

		wantCaught, _ := want.CaughtUpFor(key)
		gotCaught, _ := got.CaughtUpFor(key)
		require.Equal(t, wantCaught, gotCaught, "narrow %s", key)
	}
	require.Equal(t, want.UnreadMentionIDs(), got.UnreadMentionIDs())
	require.Equal(t, want.StarredIDs(), got.StarredIDs())
	require.Equal(t, want.OutboxEntries(), got.OutboxEntries())
	require.Equal(t, want.Deleted.Slice(), got.Deleted.Slice())
	for name, ids := range want.Flags {
		require.Equal(t, ids.Slice(), got.Flags[name].Slice(), "flag %s", name)
	}
}

func TestEncodeDecode_RestoresEquivalentState(t *testing.T) {
	original := populated()

	payload, err := Encode(original)
	require.NoError(t, err)
	require.Contains(t, string(payload), `"version": 1`)

	restored, err := Decode(payload)
	require.NoError(t, err)
	requireEquivalent(t, original, restored)

	// The restored state keeps reducing like the original.
	next := message(4)
	a := actions.NewMessage{Message: next, OwnUserID: 1}
	requireEquivalent(t, cache.Apply(original, a), cache.Apply(restored, a))
}

func TestDecode_EmptyPayload(t *testing.T) {
	s, err := Decode(nil)
	require.NoError(t, err)
	require.Empty(t, s.Narrows)
	require.Empty(t, s.OutboxEntries())
}

func TestDecode_RejectsFutureVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version": 9}`))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecode_RejectsInvalidNarrowKey(t *testing.T) {
	_, err := Decode([]byte(`{"version": 1, "narrows": {"topic:abc": [1]}}`))
	require.Error(t, err)
}

func TestDecode_MigratesLegacyLayout(t *testing.T) {
	legacy := `{
		"narrows": {"home": [1, 2, 3], "search:\"x\"": [9]},
		"caughtUp": {"home": {"older": true, "newer": true}},
		"unreadMentions": [3],
		"outbox": []
	}`
	s, err := Decode([]byte(legacy))
	require.NoError(t, err)

	ids, ok := s.NarrowIndex(models.HomeNarrow().Key())
	require.True(t, ok)
	require.Equal(t, []int64{1, 2, 3}, ids)

	_, ok = s.NarrowIndex(models.SearchNarrow("x").Key())
	require.False(t, ok)

	caught, _ := s.CaughtUpFor(models.HomeNarrow().Key())
	require.Equal(t, models.CaughtUp{Older: true, Newer: true}, caught)
	require.Equal(t, []int64{3}, s.UnreadMentionIDs())
}

func TestManager_LoadMissingFileOK(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "state", "cache.json"))
	s, err := m.Load()
	require.NoError(t, err)
	require.Empty(t, s.Narrows)
}

func TestManager_SaveNowThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cache.json")
	original := populated()

	m := NewManager(path)
	require.NoError(t, m.Write(original))
	require.False(t, m.LastWrite().IsZero())

	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	loaded, err := NewManager(path).Load()
	require.NoError(t, err)
	requireEquivalent(t, original, loaded)
}

func TestManager_SaveSoonDebounces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	m := NewManager(path, WithDebounce(20*time.Millisecond))

	s := populated()
	m.SaveSoon(cache.Empty())
	m.SaveSoon(s)

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	loaded, err := NewManager(path).Load()
	require.NoError(t, err)
	requireEquivalent(t, s, loaded)
	require.NoError(t, m.Close())
}

func TestManager_CloseFlushesPendingWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	m := NewManager(path, WithDebounce(time.Hour))
	m.SaveSoon(populated())

	require.NoError(t, m.Close())
	_, err := os.Stat(path)
	require.NoError(t, err)
}

// gatedHistory blocks its first Save until release is closed.
type gatedHistory struct {
	mu       sync.Mutex
	payloads [][]byte
	entered  chan struct{}
	release  chan struct{}
}

func (h *gatedHistory) Save(_ context.Context, payload []byte) (string, error) {
	h.mu.Lock()
	first := len(h.payloads) == 0
	h.payloads = append(h.payloads, payload)
	h.mu.Unlock()
	if first {
		close(h.entered)
		<-h.release
	}
	return "", nil
}

func (h *gatedHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func TestManager_CloseWaitsForWriteInFlight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	history := &gatedHistory{entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(path, WithDebounce(time.Hour), WithHistory(history))

	written := make(chan error, 1)
	go func() { written <- m.Write(cache.Empty()) }()
	<-history.entered

	newest := populated()
	m.SaveSoon(newest)

	closed := make(chan error, 1)
	go func() { closed <- m.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a write was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(history.release)
	require.NoError(t, <-written)
	require.NoError(t, <-closed)
	require.Equal(t, 2, history.count())

	loaded, err := NewManager(path).Load()
	require.NoError(t, err)
	requireEquivalent(t, newest, loaded)
}

func TestManager_EmptyPathDisablesWrites(t *testing.T) {
	m := NewManager("  ")
	m.SaveSoon(populated())
	require.NoError(t, m.SaveNow())
	require.NoError(t, m.Close())
	require.True(t, m.LastWrite().IsZero())
}

func TestManager_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewManager(path).Load()
	require.Error(t, err)
}

func TestManager_MirrorsIntoHistory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := OpenSQLiteStore(ctx, filepath.Join(dir, "history.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(filepath.Join(dir, "cache.json"), WithHistory(store))
	require.NoError(t, m.Write(populated()))
	require.NoError(t, m.Write(cache.Empty()))

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, records[0].ID, latest.ID)

	restored, err := Decode(latest.Payload)
	require.NoError(t, err)
	require.Empty(t, restored.Narrows)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "history.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	t.Run("latest on empty store", func(t *testing.T) {
		_, err := store.Latest(ctx)
		require.ErrorIs(t, err, ErrSnapshotNotFound)
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		_, err := store.Save(ctx, nil)
		require.Error(t, err)
	})

	var ids []string
	for _, payload := range []string{`{"version":1}`, `{"version":1,"starred":[1]}`, `{"version":1,"starred":[2]}`} {
		id, err := store.Save(ctx, []byte(payload))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	t.Run("list newest first", func(t *testing.T) {
		records, err := store.List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, ids[2], records[0].ID)
		require.Equal(t, ids[1], records[1].ID)
		require.Equal(t, len(`{"version":1,"starred":[2]}`), records[0].Size)
		require.Nil(t, records[0].Payload)
	})

	t.Run("get by id", func(t *testing.T) {
		rec, err := store.Get(ctx, ids[0])
		require.NoError(t, err)
		require.Equal(t, `{"version":1}`, string(rec.Payload))

		_, err = store.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrSnapshotNotFound)
	})

	t.Run("prune keeps newest", func(t *testing.T) {
		removed, err := store.Prune(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, 2, removed)

		records, err := store.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, ids[2], records[0].ID)
	})
}

func TestIsBusyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unrelated", os.ErrClosed, false},
		{"busy", errString("SQLITE_BUSY: database is locked"), true},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, isBusyError(tt.err))
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }
