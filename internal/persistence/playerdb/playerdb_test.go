package playerdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pumpelf.ai/internal/sim/model"
	"pumpelf.ai/internal/sim/store"
)

func samplePlayer(id model.PlayerID) model.Player {
	p := model.NewPlayer(id, 120)
	p.Nonce = 4
	p.Data.FeedCount = 2
	p.Data.NextElfID = 1
	p.AddProp(1, 3)
	p.Data.Ranches = []model.Ranch{{ID: 1, Slots: 2, Fouling: 3, Elves: []model.Elf{
		{ID: 1, Name: "Hippo", Type: 1, Grade: 2, Vitality: 9000, Hunger: 8000, Growth: 120, GrowthTime: 75, MaxYield: 180, YieldBase: 18},
	}}}
	return p
}

func exerciseStore(t *testing.T, s store.Store) {
	t.Helper()
	a := model.PlayerID{2, 1}
	b := model.PlayerID{1, 9}

	if _, ok, err := s.Load(a); err != nil || ok {
		t.Fatalf("empty load: ok=%v err=%v", ok, err)
	}
	for _, id := range []model.PlayerID{a, b} {
		if err := s.Save(samplePlayer(id)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, ok, err := s.Load(a)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	want := samplePlayer(a)
	if got.ID != a || got.Nonce != want.Nonce || got.PropCount(1) != 3 || got.Data.Ranches[0].Elves[0] != want.Data.Ranches[0].Elves[0] {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	got.Data.Ranches[0].Elves[0].Hunger = 0
	again, _, _ := s.Load(a)
	if again.Data.Ranches[0].Elves[0].Hunger != 8000 {
		t.Fatalf("loaded copy aliases stored state")
	}

	got.Data.GoldBalance = 7
	if err := s.Save(got); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	again, _, _ = s.Load(a)
	if again.Data.GoldBalance != 7 {
		t.Fatalf("overwrite lost: %d", again.Data.GoldBalance)
	}

	ids, err := s.IDs()
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != b || ids[1] != a {
		t.Fatalf("ids not ordered: %v", ids)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	exerciseStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	all, err := store.LoadAll(s)
	if err != nil || len(all) != 2 {
		t.Fatalf("reopened store: %d players, %v", len(all), err)
	}
}

func TestOpenPostgresWrapsOpenError(t *testing.T) {
	orig := sqlOpen
	defer func() { sqlOpen = orig }()
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		if driver != "pgx" {
			t.Fatalf("driver = %q", driver)
		}
		return nil, errors.New("boom")
	}
	if _, err := OpenPostgres(context.Background(), "postgres://x"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := OpenPostgres(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("RANCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RANCH_TEST_POSTGRES_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer s.Close()
	if _, err := s.db.Exec(`DELETE FROM players`); err != nil {
		t.Fatalf("reset: %v", err)
	}
	exerciseStore(t, s)
}
