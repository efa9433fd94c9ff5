package cli

import (
	"context"
	"path/filepath"

	"github.com/tOgg1/msgindex/internal/config"
	"github.com/tOgg1/msgindex/internal/snapshot"
)

// snapshotStores bundles the JSON snapshot file with the optional history.
type snapshotStores struct {
	manager *snapshot.Manager
	history *snapshot.SQLiteStore
}

func openSnapshotStores(ctx context.Context, cfg *config.Config) (*snapshotStores, error) {
	stores := &snapshotStores{}
	opts := []snapshot.ManagerOption{snapshot.WithDebounce(cfg.Snapshot.Debounce)}

	if cfg.Snapshot.Backend == config.BackendSQLite {
		history, err := snapshot.OpenSQLiteStore(ctx, cfg.HistoryPath(), cfg.Snapshot.BusyTimeoutMs)
		if err != nil {
			return nil, err
		}
		stores.history = history
		opts = append(opts, snapshot.WithHistory(history))
	}

	stores.manager = snapshot.NewManager(cfg.SnapshotPath(), opts...)
	return stores, nil
}

// Close flushes pending snapshot writes and closes the history database.
func (s *snapshotStores) Close() error {
	err := s.manager.Close()
	if s.history != nil {
		if cerr := s.history.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func openHistory(ctx context.Context, cfg *config.Config) (*snapshot.SQLiteStore, error) {
	return snapshot.OpenSQLiteStore(ctx, cfg.HistoryPath(), cfg.Snapshot.BusyTimeoutMs)
}

func contextStore(cfg *config.Config) *config.ContextStore {
	return config.NewContextStore(filepath.Join(cfg.Global.ConfigDir, "context.yaml"))
}

// selfUserID prefers the configured id and falls back to the active account.
func selfUserID(cfg *config.Config) int64 {
	if cfg.Global.SelfUserID > 0 {
		return cfg.Global.SelfUserID
	}
	account, err := contextStore(cfg).Load()
	if err != nil {
		return 0
	}
	return account.UserID
}
