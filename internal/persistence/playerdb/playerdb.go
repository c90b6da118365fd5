// Package playerdb provides durable store.Store implementations backed by
// SQLite or Postgres. Each player is one row holding its JSON payload.
package playerdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"pumpelf.ai/internal/sim/model"
	"pumpelf.ai/internal/sim/store"
)

var (
	_ store.Store = (*DB)(nil)

	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const opTimeout = 5 * time.Second

type dialect struct {
	name   string
	schema string
	load   string
	save   string
	ids    string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: `CREATE TABLE IF NOT EXISTS players (
		pid TEXT PRIMARY KEY,
		payload TEXT NOT NULL
	)`,
	load: `SELECT payload FROM players WHERE pid = ?`,
	save: `INSERT INTO players(pid, payload) VALUES(?, ?)
		ON CONFLICT(pid) DO UPDATE SET payload = excluded.payload`,
	ids: `SELECT pid FROM players ORDER BY pid`,
}

var postgresDialect = dialect{
	name: "pgx",
	schema: `CREATE TABLE IF NOT EXISTS players (
		pid TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`,
	load: `SELECT payload FROM players WHERE pid = $1`,
	save: `INSERT INTO players(pid, payload) VALUES($1, $2)
		ON CONFLICT (pid) DO UPDATE SET payload = EXCLUDED.payload`,
	ids: `SELECT pid FROM players ORDER BY pid`,
}

// DB is a player store over database/sql. Every Load decodes a fresh copy.
type DB struct {
	db *sql.DB
	d  dialect
}

func OpenSQLite(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := open(sqliteDialect, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, p := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return newDB(db, sqliteDialect)
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := open(postgresDialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newDB(db, postgresDialect)
}

func open(d dialect, dsn string) (*sql.DB, error) {
	openMu.Lock()
	defer openMu.Unlock()
	return sqlOpen(d.name, dsn)
}

func newDB(db *sql.DB, d dialect) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure players table: %w", err)
	}
	return &DB{db: db, d: d}, nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Load(id model.PlayerID) (model.Player, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var payload []byte
	err := s.db.QueryRowContext(ctx, s.d.load, id.String()).Scan(&payload)
	if err == sql.ErrNoRows {
		return model.Player{}, false, nil
	}
	if err != nil {
		return model.Player{}, false, fmt.Errorf("select player %s: %w", id, err)
	}
	var p model.Player
	if err := json.Unmarshal(payload, &p); err != nil {
		return model.Player{}, false, fmt.Errorf("decode player %s: %w", id, err)
	}
	p.ID = id
	if p.Data.Props == nil {
		p.Data.Props = map[uint64]uint64{}
	}
	return p, true, nil
}

func (s *DB) Save(p model.Player) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode player %s: %w", p.ID, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.d.save, p.ID.String(), string(payload)); err != nil {
		return fmt.Errorf("upsert player %s: %w", p.ID, err)
	}
	return nil
}

func (s *DB) IDs() ([]model.PlayerID, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.d.ids)
	if err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PlayerID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := model.ParsePlayerID(raw)
		if err != nil {
			return nil, fmt.Errorf("player key %q: %w", raw, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	model.SortIDs(out)
	return out, nil
}
