package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"pumpelf.ai/internal/persistence/indexdb"
	"pumpelf.ai/internal/persistence/playerdb"
	"pumpelf.ai/internal/persistence/s3mirror"
	"pumpelf.ai/internal/sim/store"
)

type closer func() error

// openStore returns the player store for backend and whether it outlives the
// process.
func openStore(ctx context.Context, backend, worldDir, dsn string) (store.Store, bool, closer, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return store.NewMemory(), false, func() error { return nil }, nil
	case "sqlite":
		db, err := playerdb.OpenSQLite(filepath.Join(worldDir, "players.sqlite"))
		if err != nil {
			return nil, false, nil, err
		}
		return db, true, db.Close, nil
	case "postgres", "pg":
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("RANCH_POSTGRES_DSN"))
		}
		if dsn == "" {
			return nil, false, nil, fmt.Errorf("-store=postgres but neither -postgres_dsn nor RANCH_POSTGRES_DSN is set")
		}
		db, err := playerdb.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, false, nil, err
		}
		return db, true, db.Close, nil
	default:
		return nil, false, nil, fmt.Errorf("unsupported -store: %s", backend)
	}
}

func openIndex(worldDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("RANCH_INDEX_BACKEND"))) {
	case "none", "off", "disabled":
		return nil, nil
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "ranch.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported RANCH_INDEX_BACKEND: %s", os.Getenv("RANCH_INDEX_BACKEND"))
	}
}

// openMirror returns nil when RANCH_S3_BUCKET is unset.
func openMirror(ctx context.Context, dataDir string, logger logrus.FieldLogger) (*s3mirror.Mirror, error) {
	cfg, ok := s3mirror.ConfigFromEnv()
	if !ok {
		return nil, nil
	}
	client, err := s3mirror.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	workers := envInt("RANCH_S3_UPLOAD_WORKERS", 2)
	return s3mirror.NewMirror(client, dataDir, cfg.Prefix, workers, logger), nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
