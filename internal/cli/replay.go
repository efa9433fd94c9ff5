package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/cache"
	"github.com/tOgg1/msgindex/internal/events"
	"github.com/tOgg1/msgindex/internal/logging"
)

// replayStats summarizes one replay run.
type replayStats struct {
	Lines     int           `json:"lines"`
	Applied   int           `json:"applied"`
	Changed   int           `json:"changed"`
	Malformed int           `json:"malformed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

func newReplayCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <actions.jsonl>",
		Short: "Apply an action log to the index",
		Long: `Replay reads one JSON action envelope per line and applies them in order.
Malformed lines are logged and skipped. With --follow the file is tailed
until interrupted. With --save the run starts from the stored snapshot and
writes the result back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, rt, args[0])
		},
	}
	cmd.Flags().Bool("follow", false, "keep reading as the file grows")
	cmd.Flags().Bool("save", false, "start from and write back the snapshot")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runReplay(cmd *cobra.Command, rt *runtime, path string) error {
	cfg := rt.config()
	follow, _ := cmd.Flags().GetBool("follow")
	save, _ := cmd.Flags().GetBool("save")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initial := cache.Empty()
	var opts []cache.DispatcherOption
	if save {
		stores, err := openSnapshotStores(ctx, cfg)
		if err != nil {
			return Exitf(ExitCodeFailure, "open snapshot: %v", err)
		}
		defer func() {
			if err := stores.Close(); err != nil {
				log := logging.Component("replay")
				log.Error().Err(err).Msg("failed to flush snapshot")
			}
		}()
		initial, err = stores.manager.Load()
		if err != nil {
			return Exitf(ExitCodeFailure, "%v", err)
		}
		opts = append(opts, cache.WithSink(stores.manager))
	}

	dispatcher := cache.NewDispatcher(cache.DispatcherConfig{
		QueueSize:  cfg.Dispatcher.QueueSize,
		SelfUserID: selfUserID(cfg),
	}, initial, opts...)
	// The loop outlives an interrupt so already-read lines still land.
	if err := dispatcher.Start(cmd.Context()); err != nil {
		return err
	}

	stats, err := replayFile(ctx, path, follow, dispatcher)
	if stopErr := dispatcher.Stop(); err == nil && stopErr != nil && !errors.Is(stopErr, cache.ErrDispatcherClosed) {
		err = stopErr
	}
	if err != nil {
		return Exitf(ExitCodeFailure, "replay %s: %v", path, err)
	}

	state := dispatcher.State()
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, struct {
			Stats   replayStats    `json:"stats"`
			Narrows []narrowRecord `json:"narrows"`
		}{stats, narrowRecords(state)})
	}
	if err := writeReplaySummary(out, stats, state); err != nil {
		return err
	}
	return writeNarrowTable(out, state)
}

// replayFile applies every complete line of path. When follow is set it
// keeps waiting for appended lines until ctx is done.
func replayFile(ctx context.Context, path string, follow bool, d *cache.Dispatcher) (replayStats, error) {
	started := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return replayStats{}, err
	}
	defer f.Close()

	r := newReplayer(d)
	subID, err := d.Subscribe(events.Filter{}, func(*events.Change) { r.changed.Add(1) })
	if err != nil {
		return replayStats{}, err
	}
	defer func() { _ = d.Unsubscribe(subID) }()

	lines := &lineReader{r: bufio.NewReader(f)}
	if err := r.consume(ctx, lines); err != nil {
		return r.finish(started), err
	}

	if follow {
		if err := followFile(ctx, path, func() error { return r.consume(ctx, lines) }); err != nil {
			return r.finish(started), err
		}
	}

	if rest := lines.flush(); len(rest) > 0 {
		r.apply(ctx, rest)
	}
	return r.finish(started), nil
}

type replayer struct {
	dispatcher *cache.Dispatcher
	logger     zerolog.Logger
	stats      replayStats
	changed    atomic.Int64
}

func newReplayer(d *cache.Dispatcher) *replayer {
	return &replayer{dispatcher: d, logger: logging.Component("replay")}
}

func (r *replayer) consume(ctx context.Context, lines *lineReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := lines.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		r.apply(ctx, line)
	}
}

func (r *replayer) apply(ctx context.Context, line []byte) {
	if len(line) == 0 || line[0] == '#' {
		return
	}
	r.stats.Lines++

	a, err := actions.Decode(line)
	if err != nil {
		r.stats.Malformed++
		r.logger.Warn().Err(err).Int("line", r.stats.Lines).Msg("skipping undecodable line")
		return
	}
	if err := r.dispatcher.DispatchSync(ctx, a); err != nil {
		if ctx.Err() != nil {
			return
		}
		// The dispatcher already logged validation failures.
		r.stats.Malformed++
		return
	}
	r.stats.Applied++
}

func (r *replayer) finish(started time.Time) replayStats {
	r.stats.Changed = int(r.changed.Load())
	r.stats.Elapsed = time.Since(started)
	return r.stats
}

// lineReader yields complete newline-terminated lines and holds back a
// trailing partial line until the rest of it is written.
type lineReader struct {
	r       *bufio.Reader
	partial []byte
}

func (l *lineReader) next() ([]byte, error) {
	chunk, err := l.r.ReadBytes('\n')
	l.partial = append(l.partial, chunk...)
	if err != nil {
		return nil, err
	}
	line := bytes.TrimSpace(l.partial)
	l.partial = nil
	return line, nil
}

func (l *lineReader) flush() []byte {
	line := bytes.TrimSpace(l.partial)
	l.partial = nil
	return line
}

// followFile calls onWrite whenever path grows, until ctx is done or the
// file is removed.
func followFile(ctx context.Context, path string, onWrite func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so renames and editors that replace the file are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	target := filepath.Clean(path)
	logger := logging.Component("replay")

	// Catch writes that landed between the initial read and Add.
	if err := onWrite(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			switch {
			case event.Has(fsnotify.Write):
				if err := onWrite(); err != nil {
					return err
				}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				logger.Info().Str("path", path).Msg("action log removed, stopping")
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func writeReplaySummary(out io.Writer, stats replayStats, state cache.State) error {
	rows := [][]string{
		{"lines", humanize.Comma(int64(stats.Lines))},
		{"applied", humanize.Comma(int64(stats.Applied))},
		{"changed", humanize.Comma(int64(stats.Changed))},
		{"malformed", humanize.Comma(int64(stats.Malformed))},
		{"narrows", humanize.Comma(int64(len(state.Narrows)))},
		{"unread mentions", humanize.Comma(int64(state.UnreadMentions.Len()))},
		{"outbox", humanize.Comma(int64(len(state.Outbox)))},
		{"elapsed", stats.Elapsed.Round(time.Millisecond).String()},
	}
	if err := writeTable(out, nil, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}
