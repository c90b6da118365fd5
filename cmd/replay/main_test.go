package main

import (
	"strings"
	"testing"

	"pumpelf.ai/internal/persistence/log"
	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/catalogs"
	"pumpelf.ai/internal/sim/entropy"
	"pumpelf.ai/internal/sim/model"
	"pumpelf.ai/internal/sim/ranch"
	"pumpelf.ai/internal/sim/tuning"
)

var admin = [2]uint64{9, 9}

func newEngine(t *testing.T) *ranch.Engine {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tu := tuning.Defaults()
	tu.Admin = model.PlayerID(admin).String()
	e, err := ranch.New(ranch.Config{WorldID: "w1", Tuning: tu}, cats)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func commands(ticks uint64) []protocol.Command {
	rv := func(i uint64) [4]uint64 { return [4]uint64{i, 1, 2, 3} }
	cmds := []protocol.Command{
		{Kind: protocol.KindInstallPlayer, Player: admin},
		{Kind: protocol.KindInstallPlayer, Player: [2]uint64{1, 1}},
		{Kind: protocol.KindBuyElf, Player: [2]uint64{1, 1}, Nonce: 1, RanchID: 1, ElfType: 1},
		{Kind: protocol.KindBuyElf, Player: [2]uint64{1, 1}, Nonce: 2, RanchID: 1, ElfType: 1},
	}
	for i := uint64(0); i < ticks; i++ {
		cmds = append(cmds, protocol.Command{
			Kind:       protocol.KindTick,
			Player:     admin,
			Reveal:     rv(i),
			Commitment: entropy.FormatCommitment(entropy.Commit(rv(i + 1))),
		})
	}
	return cmds
}

// record runs cmds and journals them the way ranchd does, with a digest at
// every preemption point.
func record(t *testing.T, worldDir string, cmds []protocol.Command, tamper func(*log.JournalEntry)) {
	t.Helper()
	e := newEngine(t)
	j := log.NewJournal(worldDir)
	defer j.Close()
	for i, c := range cmds {
		code := protocol.CodeOf(e.Process(c))
		entry := log.JournalEntry{Seq: uint64(i + 1), Tick: e.Tick(), Command: c, Code: code}
		if c.Kind == protocol.KindTick && code == protocol.CodeOK && e.Preempt() {
			d, err := e.StateDigest()
			if err != nil {
				t.Fatalf("digest: %v", err)
			}
			entry.Digest = d
		}
		if tamper != nil {
			tamper(&entry)
		}
		if err := j.WriteEntry(entry); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestReplayVerifiesJournal(t *testing.T) {
	dir := t.TempDir()
	record(t, dir, commands(70), nil)

	st, err := replay(newEngine(t), nil, log.JournalDir(dir), 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if st.commands != 74 || st.checked != 2 || st.lastSeq != 74 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestReplayFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	cmds := commands(70)
	record(t, dir, cmds, nil)

	src := newEngine(t)
	for _, c := range cmds[:36] {
		_ = src.Process(c)
	}
	snap, err := src.ExportSnapshot()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	snap.Header.Seq = 36

	st, err := replay(newEngine(t), &snap, log.JournalDir(dir), 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if st.commands != 38 || st.checked != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestReplayStopsAtSeq(t *testing.T) {
	dir := t.TempDir()
	record(t, dir, commands(70), nil)
	eng := newEngine(t)
	st, err := replay(eng, nil, log.JournalDir(dir), 10)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if st.lastSeq != 10 || eng.Tick() != 6 {
		t.Fatalf("seq=%d tick=%d", st.lastSeq, eng.Tick())
	}
}

func TestReplayDetectsDivergence(t *testing.T) {
	cases := []struct {
		name   string
		tamper func(*log.JournalEntry)
		want   string
	}{
		{"code", func(e *log.JournalEntry) {
			if e.Seq == 3 {
				e.Code = protocol.CodeRanchFull
			}
		}, "seq 3"},
		{"digest", func(e *log.JournalEntry) {
			if e.Digest != "" {
				e.Digest = strings.Repeat("0", 64)
			}
		}, "digest mismatch at seq 36"},
		{"gap", func(e *log.JournalEntry) {
			if e.Seq >= 20 {
				e.Seq++
			}
		}, "journal gap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			record(t, dir, commands(40), tc.tamper)
			_, err := replay(newEngine(t), nil, log.JournalDir(dir), 0)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestReplayWithoutJournalFiles(t *testing.T) {
	_, err := replay(newEngine(t), nil, t.TempDir(), 0)
	if err == nil || !strings.Contains(err.Error(), "no journal files") {
		t.Fatalf("err = %v", err)
	}
}
