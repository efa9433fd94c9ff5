package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tOgg1/msgindex/internal/cache"
	"github.com/tOgg1/msgindex/internal/logging"
	"github.com/tOgg1/msgindex/internal/models"
)

const (
	previewWidth = 48
	maxListedIDs = 20
)

// narrowRecord is the printable view of one tracked narrow.
type narrowRecord struct {
	Key   models.NarrowKey `json:"key"`
	Count int              `json:"count"`
	First int64            `json:"first,omitempty"`
	Last  int64            `json:"last,omitempty"`
	Older bool             `json:"caught_up_older"`
	Newer bool             `json:"caught_up_newer"`
	IDs   []int64          `json:"ids,omitempty"`
}

func narrowRecords(s cache.State) []narrowRecord {
	records := []narrowRecord{}
	for _, key := range s.Narrows.Keys() {
		rec, _ := narrowRecordFor(s, key, false)
		records = append(records, rec)
	}
	return records
}

func narrowRecordFor(s cache.State, key models.NarrowKey, withIDs bool) (narrowRecord, bool) {
	ids, ok := s.NarrowIndex(key)
	if !ok {
		return narrowRecord{Key: key}, false
	}
	caught, _ := s.CaughtUpFor(key)
	rec := narrowRecord{Key: key, Count: len(ids), Older: caught.Older, Newer: caught.Newer}
	if len(ids) > 0 {
		rec.First = ids[0]
		rec.Last = ids[len(ids)-1]
	}
	if withIDs {
		rec.IDs = ids
	}
	return rec, true
}

func writeNarrowTable(out io.Writer, s cache.State) error {
	records := narrowRecords(s)
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No narrows tracked.")
		return err
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			string(rec.Key),
			humanize.Comma(int64(rec.Count)),
			formatID(rec.First, rec.Count),
			formatID(rec.Last, rec.Count),
			formatYesNo(rec.Older),
			formatYesNo(rec.Newer),
		})
	}
	return writeTable(out, []string{"NARROW", "MESSAGES", "FIRST", "LAST", "OLDEST", "NEWEST"}, rows)
}

func writeOutboxTable(out io.Writer, entries []models.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.LocalID, 10),
			e.Narrow.String(),
			formatYesNo(e.IsSent),
			logging.Preview(e.Content, previewWidth),
		})
	}
	return writeTable(out, []string{"LOCAL ID", "NARROW", "SENT", "CONTENT"}, rows)
}

func newInspectCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [narrow-key]",
		Short: "Show the stored index",
		Long: `Inspect loads the snapshot and lists tracked narrows with their caught-up
flags. Given a narrow key such as home, stream:3 or topic:3:"lunch" it
prints that narrow's message ids.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, rt, args)
		},
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runInspect(cmd *cobra.Command, rt *runtime, args []string) error {
	cfg := rt.config()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	stores, err := openSnapshotStores(cmd.Context(), cfg)
	if err != nil {
		return Exitf(ExitCodeFailure, "open snapshot: %v", err)
	}
	defer stores.Close()

	state, err := stores.manager.Load()
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}

	if len(args) == 1 {
		return inspectNarrow(out, state, args[0], selfUserID(cfg), jsonOutput)
	}

	if jsonOutput {
		return writeJSON(out, struct {
			Narrows        []narrowRecord       `json:"narrows"`
			UnreadMentions []int64              `json:"unread_mentions"`
			Starred        []int64              `json:"starred"`
			Outbox         []models.OutboxEntry `json:"outbox"`
			Flags          map[string]int       `json:"flags"`
		}{
			Narrows:        narrowRecords(state),
			UnreadMentions: state.UnreadMentionIDs(),
			Starred:        state.StarredIDs(),
			Outbox:         state.OutboxEntries(),
			Flags:          flagCounts(state),
		})
	}

	if info, err := os.Stat(stores.manager.Path()); err == nil {
		fmt.Fprintf(out, "Snapshot %s (%s, saved %s)\n\n",
			stores.manager.Path(), humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
	} else {
		fmt.Fprintf(out, "Snapshot %s (not written yet)\n\n", stores.manager.Path())
	}

	if err := writeNarrowTable(out, state); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nUnread mentions: %s  Starred: %s  Outbox: %s\n",
		humanize.Comma(int64(state.UnreadMentions.Len())),
		humanize.Comma(int64(state.Starred.Len())),
		humanize.Comma(int64(len(state.Outbox))),
	)
	if len(state.Outbox) > 0 {
		fmt.Fprintln(out)
		return writeOutboxTable(out, state.OutboxEntries())
	}
	return nil
}

func inspectNarrow(out io.Writer, state cache.State, raw string, self int64, jsonOutput bool) error {
	narrow, err := models.ParseNarrowKey(models.NarrowKey(raw))
	if err != nil {
		return Exitf(ExitCodeUsage, "invalid narrow key %q: %v", raw, err)
	}
	narrow = narrow.WithoutSelf(self)
	rec, ok := narrowRecordFor(state, narrow.Key(), true)
	if !ok {
		return Exitf(ExitCodeFailure, "narrow %s is not tracked", narrow.Key())
	}
	if rec.IDs == nil {
		rec.IDs = []int64{}
	}

	if jsonOutput {
		return writeJSON(out, rec)
	}

	fmt.Fprintf(out, "%s: %s messages, caught up oldest=%s newest=%s\n",
		rec.Key, humanize.Comma(int64(rec.Count)), formatYesNo(rec.Older), formatYesNo(rec.Newer))
	if rec.Count > 0 {
		fmt.Fprintln(out, formatIDList(rec.IDs, maxListedIDs))
	}
	if pending := state.OutboxFor(rec.Key); len(pending) > 0 {
		fmt.Fprintln(out)
		return writeOutboxTable(out, pending)
	}
	return nil
}

func flagCounts(s cache.State) map[string]int {
	counts := make(map[string]int, len(s.Flags))
	for _, name := range s.Flags.Names() {
		counts[name] = s.Flags[name].Len()
	}
	return counts
}

func formatID(id int64, count int) string {
	if count == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

// formatIDList prints ids, eliding the middle once there are more than limit.
func formatIDList(ids []int64, limit int) string {
	parts := make([]string, 0, min(len(ids), limit)+1)
	if limit <= 0 || len(ids) <= limit {
		for _, id := range ids {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
		return strings.Join(parts, " ")
	}
	head := limit / 2
	tail := limit - head
	for _, id := range ids[:head] {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	parts = append(parts, fmt.Sprintf("… (%s more) …", humanize.Comma(int64(len(ids)-limit))))
	for _, id := range ids[len(ids)-tail:] {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, " ")
}
