package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	persistlog "pumpelf.ai/internal/persistence/log"
	"pumpelf.ai/internal/persistence/snapshot"
	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/catalogs"
	"pumpelf.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary copy of the journal and snapshot
// history. Writes are queued to a single writer goroutine and dropped when
// the queue is full; the journal stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropCommand  atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqCommand reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	entry    persistlog.JournalEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick          uint64
	Path          string
	WorldID       string
	Players       int
	Events        int
	Settlement    int
	StateDigest   string
	CatalogDigest string
	RecordedAt    string
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropCommandTotal  uint64
	DropSnapshotTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			seq INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			player TEXT NOT NULL,
			nonce INTEGER NOT NULL,
			code INTEGER NOT NULL,
			digest TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_player_seq ON commands(player, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_tick ON commands(tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			players INTEGER NOT NULL,
			events INTEGER NOT NULL,
			settlement INTEGER NOT NULL,
			state_digest TEXT NOT NULL,
			catalog_digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropCommandTotal:  s.dropCommand.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteEntry(entry persistlog.JournalEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqCommand, entry: entry}:
	default:
		s.dropCommand.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:          snap.Header.Tick,
		Path:          path,
		WorldID:       snap.Header.WorldID,
		Players:       len(snap.Players),
		Events:        len(snap.Queue.Events),
		Settlement:    len(snap.Settlement),
		StateDigest:   snap.Header.StateDigest,
		CatalogDigest: snap.Header.CatalogDigest,
		RecordedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertCatalogs stores the catalogs and tuning the runtime actually applies,
// keyed by name with their digests. It runs synchronously at startup.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	add := func(name, digest string, v any) {
		b, err := json.Marshal(v)
		if err != nil || len(b) == 0 {
			return
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	elves := make([]catalogs.ElfDef, 0, len(cats.Elves.Types))
	for _, t := range cats.Elves.Types {
		elves = append(elves, cats.Elves.ByType[t])
	}
	props := make([]catalogs.PropDef, 0, len(cats.Props.IDs))
	for _, id := range cats.Props.IDs {
		props = append(props, cats.Props.ByID[id])
	}
	add("elves", cats.Elves.Digest, elves)
	add("grades", cats.Grades.Digest, cats.Grades.Ranges)
	add("props", cats.Props.Digest, props)
	add("slots", cats.Slots.Digest, cats.Slots.Prices)
	if b, err := cats.ClientJSON(); err == nil {
		rows = append(rows, kv{name: "client_config", digest: cats.Digest(), json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('protocol_version',?)`, tune.ProtocolVersion); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type CommandCount struct {
	Kind  protocol.Kind
	Code  protocol.Code
	Count int
}

// CommandCounts groups indexed commands by kind and result code.
func (s *SQLiteIndex) CommandCounts(ctx context.Context) ([]CommandCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, code, COUNT(*) FROM commands GROUP BY kind, code ORDER BY kind, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommandCount
	for rows.Next() {
		var (
			c    CommandCount
			kind string
			code int64
		)
		if err := rows.Scan(&kind, &code, &c.Count); err != nil {
			return nil, err
		}
		c.Kind = protocol.Kind(kind)
		c.Code = protocol.Code(code)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest indexed snapshot path, or "" if none.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context) (string, uint64, error) {
	var (
		path string
		tick int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT path, tick FROM snapshots ORDER BY tick DESC LIMIT 1`).Scan(&path, &tick)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return path, uint64(tick), nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(seq,tick,kind,player,nonce,code,digest,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,world_id,players,events,settlement,state_digest,catalog_digest,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertCommand != nil {
			_ = insertCommand.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCommand:
			e := r.entry
			if insertCommand == nil {
				continue
			}
			raw, _ := json.Marshal(e.Command)
			player := fmt.Sprintf("%016x:%016x", e.Command.Player[0], e.Command.Player[1])
			var digest any
			if e.Digest != "" {
				digest = e.Digest
			}
			if _, err := tx.Stmt(insertCommand).Exec(
				int64(e.Seq),
				int64(e.Tick),
				string(e.Command.Kind),
				player,
				int64(e.Command.Nonce),
				int64(e.Code),
				digest,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				continue
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(
				int64(sn.Tick),
				sn.Path,
				sn.WorldID,
				sn.Players,
				sn.Events,
				sn.Settlement,
				sn.StateDigest,
				sn.CatalogDigest,
				sn.RecordedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
