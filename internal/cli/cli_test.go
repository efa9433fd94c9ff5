package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/msgindex/internal/cache"
	"github.com/tOgg1/msgindex/internal/models"
	"github.com/tOgg1/msgindex/internal/snapshot"
)

const actionLog = `{"type":"message_fetch_complete","payload":{"narrow":{"kind":"home"},"anchor":10000000000000000,"num_before":50,"num_after":0,"messages":[{"id":1,"type":"stream","stream_id":3,"topic":"lunch","sender_id":2,"flags":["read"]},{"id":2,"type":"stream","stream_id":3,"topic":"lunch","sender_id":2,"flags":["starred"]}]}}
# comments and blank lines are skipped

{"type":"event_new_message","payload":{"message":{"id":3,"type":"stream","stream_id":3,"topic":"lunch","sender_id":2,"flags":["mentioned"]}}}
not json at all
{"type":"event_new_message","payload":{"message":{"id":0,"type":"stream","flags":[]}}}
{"type":"message_send_start","payload":{"outbox":{"local_id":546,"narrow":{"kind":"topic","stream_id":3,"topic":"lunch"},"content":"see you at noon","sender_id":1,"sent_at":1700000000}}}
{"type":"message_fetch_start","payload":{"narrow":{"kind":"home"}}}
`

type testEnv struct {
	dir    string
	config string
}

func newTestEnv(t *testing.T, backend string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{dir: dir, config: filepath.Join(dir, "config.yaml")}
	cfg := "global:\n" +
		"  data_dir: " + filepath.Join(dir, "data") + "\n" +
		"  config_dir: " + filepath.Join(dir, "config") + "\n" +
		"  self_user_id: 1\n" +
		"logging:\n  level: error\n" +
		"snapshot:\n  backend: " + backend + "\n  debounce: 1h\n  keep: 2\n"
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, "actions.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *testEnv) snapshotPath() string {
	return filepath.Join(e.dir, "data", "cache.json")
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd("dev")
	for _, args := range [][]string{
		{"replay"},
		{"inspect"},
		{"reset"},
		{"snapshots", "list"},
		{"snapshot", "prune"},
		{"snapshots", "restore"},
		{"account", "use"},
	} {
		found, _, err := root.Find(args)
		require.NoError(t, err, "%v", args)
		require.Equal(t, args[len(args)-1], found.Name())
	}
}

func TestReplay_SummaryAndSkips(t *testing.T) {
	env := newTestEnv(t, "file")
	logPath := env.writeLog(t, actionLog)

	out, err := env.run(t, "replay", "--json", logPath)
	require.NoError(t, err)

	var result struct {
		Stats   replayStats    `json:"stats"`
		Narrows []narrowRecord `json:"narrows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, 6, result.Stats.Lines)
	require.Equal(t, 4, result.Stats.Applied)
	require.Equal(t, 2, result.Stats.Malformed)
	require.Equal(t, 3, result.Stats.Changed)

	require.Len(t, result.Narrows, 1)
	require.Equal(t, models.HomeNarrow().Key(), result.Narrows[0].Key)
	require.Equal(t, 3, result.Narrows[0].Count)
	require.True(t, result.Narrows[0].Newer)

	// Without --save nothing is persisted.
	_, err = os.Stat(env.snapshotPath())
	require.True(t, os.IsNotExist(err))
}

func TestReplay_SaveThenInspect(t *testing.T) {
	env := newTestEnv(t, "sqlite")
	logPath := env.writeLog(t, actionLog)

	_, err := env.run(t, "replay", "--save", logPath)
	require.NoError(t, err)

	out, err := env.run(t, "inspect")
	require.NoError(t, err)
	require.Contains(t, out, "home")
	require.Contains(t, out, "see you at noon")
	require.Contains(t, out, "Unread mentions: 1")

	out, err = env.run(t, "inspect", "home")
	require.NoError(t, err)
	require.Contains(t, out, "1 2 3")

	out, err = env.run(t, "inspect", "--json", `topic:3:"lunch"`)
	require.Error(t, err)
	require.Empty(t, out)

	out, err = env.run(t, "inspect", "--json")
	require.NoError(t, err)
	var summary struct {
		UnreadMentions []int64              `json:"unread_mentions"`
		Outbox         []models.OutboxEntry `json:"outbox"`
		Flags          map[string]int       `json:"flags"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Equal(t, []int64{3}, summary.UnreadMentions)
	require.Len(t, summary.Outbox, 1)
	require.Equal(t, 1, summary.Flags[models.FlagStarred])

	// Replaying again with --save continues from the stored state.
	second := env.writeLog(t, `{"type":"event_message_delete","payload":{"message_ids":[1]}}`+"\n")
	_, err = env.run(t, "replay", "--save", second)
	require.NoError(t, err)

	out, err = env.run(t, "inspect", "--json", "home")
	require.NoError(t, err)
	var rec narrowRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, []int64{2, 3}, rec.IDs)
}

func TestReplay_MissingFile(t *testing.T) {
	env := newTestEnv(t, "file")
	_, err := env.run(t, "replay", filepath.Join(env.dir, "nope.jsonl"))
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, ExitCodeFailure, exitErr.Code)
}

func TestReplayFile_Follow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.jsonl")
	first := strings.SplitN(actionLog, "\n", 2)[0] + "\n"
	require.NoError(t, os.WriteFile(path, []byte(first), 0o644))

	d := cache.NewDispatcher(cache.DispatcherConfig{SelfUserID: 1}, cache.Empty())
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan replayStats, 1)
	go func() {
		stats, err := replayFile(ctx, path, true, d)
		if err != nil {
			t.Errorf("replayFile: %v", err)
		}
		done <- stats
	}()

	home := models.HomeNarrow().Key()
	require.Eventually(t, func() bool {
		ids, _ := d.State().NarrowIndex(home)
		return len(ids) == 2
	}, 2*time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	// A line written in two parts is applied once it is complete.
	_, err = f.WriteString(`{"type":"event_new_message","payload":{"message":{"id":3,"type":"stream",`)
	require.NoError(t, err)
	_, err = f.WriteString(`"stream_id":3,"topic":"lunch","sender_id":2,"flags":[]}}}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		ids, _ := d.State().NarrowIndex(home)
		return len(ids) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case stats := <-done:
		require.Equal(t, 2, stats.Applied)
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not stop after cancel")
	}
}

func TestLineReader_HoldsPartialLine(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("one\ntw")
	lr := &lineReader{r: bufio.NewReader(&buf)}

	line, err := lr.next()
	require.NoError(t, err)
	require.Equal(t, "one", string(line))

	_, err = lr.next()
	require.Error(t, err)

	buf.WriteString("o\n")
	line, err = lr.next()
	require.NoError(t, err)
	require.Equal(t, "two", string(line))
	require.Empty(t, lr.flush())
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, "file")
	_, err := env.run(t, "replay", "--save", env.writeLog(t, actionLog))
	require.NoError(t, err)

	out, err := env.run(t, "reset")
	require.NoError(t, err)
	require.Contains(t, out, "Reset")

	state, err := snapshot.NewManager(env.snapshotPath()).Load()
	require.NoError(t, err)
	require.Empty(t, state.Narrows)
	require.Empty(t, state.OutboxEntries())
}

func TestSnapshotsListPruneRestore(t *testing.T) {
	env := newTestEnv(t, "sqlite")
	_, err := env.run(t, "replay", "--save", env.writeLog(t, actionLog))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = env.run(t, "reset")
		require.NoError(t, err)
	}

	out, err := env.run(t, "snapshots", "list", "--json")
	require.NoError(t, err)
	var records []snapshot.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 3)
	populated := records[2].ID

	out, err = env.run(t, "snapshots", "list")
	require.NoError(t, err)
	require.Contains(t, out, "AGE")
	require.Contains(t, out, populated)

	_, err = env.run(t, "snapshots", "restore", populated)
	require.NoError(t, err)
	state, err := snapshot.NewManager(env.snapshotPath()).Load()
	require.NoError(t, err)
	ids, ok := state.NarrowIndex(models.HomeNarrow().Key())
	require.True(t, ok)
	require.Equal(t, []int64{1, 2, 3}, ids)

	out, err = env.run(t, "snapshots", "prune")
	require.NoError(t, err)
	require.Contains(t, out, "Removed 1")

	out, err = env.run(t, "snapshots", "prune", "--keep", "0")
	require.NoError(t, err)
	require.Contains(t, out, "Removed 2")

	_, err = env.run(t, "snapshots", "restore", populated)
	require.Error(t, err)
}

func TestAccountSwitchClearsIndex(t *testing.T) {
	env := newTestEnv(t, "file")

	out, err := env.run(t, "account", "use", "https://chat.example.com", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Using user:1@https://chat.example.com")

	_, err = env.run(t, "replay", "--save", env.writeLog(t, actionLog))
	require.NoError(t, err)

	out, err = env.run(t, "account", "use", "https://chat.example.com/", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Already using")
	state, err := snapshot.NewManager(env.snapshotPath()).Load()
	require.NoError(t, err)
	require.NotEmpty(t, state.Narrows)

	_, err = env.run(t, "account", "use", "https://chat.example.com", "9")
	require.NoError(t, err)
	state, err = snapshot.NewManager(env.snapshotPath()).Load()
	require.NoError(t, err)
	require.Empty(t, state.Narrows)
	require.Empty(t, state.OutboxEntries())

	out, err = env.run(t, "account", "show")
	require.NoError(t, err)
	require.Contains(t, out, "user:9@")

	_, err = env.run(t, "account", "logout")
	require.NoError(t, err)
	out, err = env.run(t, "account", "show")
	require.NoError(t, err)
	require.Contains(t, out, "(no account set)")

	_, err = env.run(t, "account", "use", "https://chat.example.com", "abc")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, ExitCodeUsage, exitErr.Code)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	err := writeTable(&buf, []string{"NARROW", "MESSAGES"}, [][]string{
		{"home", "1,204"},
		{`topic:3:"午餐"`, "7"},
	})
	require.NoError(t, err)
	require.Equal(t,
		"NARROW"+strings.Repeat(" ", 10)+"MESSAGES\n"+
			"home"+strings.Repeat(" ", 15)+"1,204\n"+
			`topic:3:"午餐"`+strings.Repeat(" ", 9)+"7\n",
		buf.String())
}

func TestFormatIDList(t *testing.T) {
	require.Equal(t, "1 2 3", formatIDList([]int64{1, 2, 3}, 5))
	require.Equal(t, "1 2 … (3 more) … 6 7", formatIDList([]int64{1, 2, 3, 4, 5, 6, 7}, 4))
	require.Equal(t, "", formatIDList(nil, 4))
}
