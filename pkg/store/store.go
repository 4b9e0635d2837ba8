package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/johncui/haiku/pkg/memory"
	"github.com/johncui/haiku/pkg/model"
	"github.com/johncui/haiku/pkg/store/postgres"
	"github.com/johncui/haiku/pkg/store/sqlite"
)

// Backend names a session store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Options configures Open.
type Options struct {
	Backend     Backend
	DBPath      string
	PostgresDSN string
	// Capacity bounds exchanges kept per session by the in-process backend.
	Capacity int
	Logger   *slog.Logger
}

// Store is a session store that can report its size.
type Store interface {
	model.SessionStore
	CountSessions(ctx context.Context) (int64, error)
}

var (
	_ Store = (*memory.SessionBuffer)(nil)
	_ Store = (*sqlite.Database)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Open initializes the selected session store.
func Open(ctx context.Context, opt Options) (Store, error) {
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	if opt.Backend == "" {
		opt.Backend = BackendMemory
	}

	s, err := open(ctx, opt)
	if err != nil {
		return nil, err
	}
	n, err := s.CountSessions(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	opt.Logger.Info("session store ready", "backend", opt.Backend, "sessions", n)
	return s, nil
}

func open(ctx context.Context, opt Options) (Store, error) {
	switch opt.Backend {
	case BackendMemory:
		return memory.NewSessionBuffer(opt.Capacity), nil
	case BackendSQLite:
		if opt.DBPath == "" {
			opt.DBPath = "haiku.db"
		}
		db, err := sqlite.New(ctx, sqlite.Config{Path: opt.DBPath, Logger: opt.Logger})
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendPostgres:
		pg, err := postgres.New(ctx, postgres.Config{DSN: opt.PostgresDSN, Logger: opt.Logger})
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q: must be \"memory\", \"sqlite\" or \"postgres\"", opt.Backend)
	}
}
