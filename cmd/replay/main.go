package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"pumpelf.ai/internal/persistence/log"
	"pumpelf.ai/internal/persistence/snapshot"
	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/catalogs"
	"pumpelf.ai/internal/sim/ranch"
	"pumpelf.ai/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (empty: replay the journal from an empty world)")
		journalDir = flag.String("journal", "", "journal dir containing journal-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		worldID    = flag.String("world", "", "world id (default: from snapshot)")
		toSeq      = flag.Uint64("to_seq", 0, "stop after this journal seq (inclusive, optional)")
	)
	flag.Parse()

	if *journalDir == "" && *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -journal or -snapshot")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		snap = &s
		fmt.Printf("snapshot v%d world=%s tick=%d seq=%d players=%d events=%d withdrawals=%d\n",
			s.Header.Version, s.Header.WorldID, s.Header.Tick, s.Header.Seq,
			len(s.Players), len(s.Queue.Events), len(s.Settlement))
		if *worldID == "" {
			*worldID = s.Header.WorldID
		}
	}
	if *journalDir == "" {
		return
	}

	eng, err := ranch.New(ranch.Config{WorldID: *worldID, Tuning: tune}, cats)
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
	st, err := replay(eng, snap, *journalDir, *toSeq)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: commands=%d checked=%d digests (to seq=%d tick=%d)\n", st.commands, st.checked, st.lastSeq, eng.Tick())
}

var errStop = errors.New("stop")

type replayStats struct {
	commands uint64
	checked  uint64
	lastSeq  uint64
}

// replay restores snap into eng (when set) and re-executes every journal
// entry after it, comparing result codes and checkpoint digests.
func replay(eng *ranch.Engine, snap *snapshot.SnapshotV1, dir string, toSeq uint64) (replayStats, error) {
	var st replayStats
	if snap != nil {
		if err := eng.ImportSnapshot(*snap); err != nil {
			return st, fmt.Errorf("import snapshot: %w", err)
		}
		st.lastSeq = snap.Header.Seq
	}
	files, err := log.JournalFiles(dir)
	if err != nil {
		return st, err
	}
	if len(files) == 0 {
		return st, fmt.Errorf("no journal files found in %s", dir)
	}

	err = log.ReadJournal(dir, func(e log.JournalEntry) error {
		if e.Seq <= st.lastSeq {
			return nil
		}
		if toSeq != 0 && e.Seq > toSeq {
			return errStop
		}
		if e.Seq != st.lastSeq+1 {
			return fmt.Errorf("journal gap: want seq=%d got=%d", st.lastSeq+1, e.Seq)
		}
		got := protocol.CodeOf(eng.Process(e.Command))
		if got != e.Code {
			return fmt.Errorf("seq %d (%s): code %s, journal says %s", e.Seq, e.Command.Kind, got, e.Code)
		}
		if eng.Tick() != e.Tick {
			return fmt.Errorf("seq %d: tick %d, journal says %d", e.Seq, eng.Tick(), e.Tick)
		}
		if e.Digest != "" {
			d, err := eng.StateDigest()
			if err != nil {
				return err
			}
			if d != e.Digest {
				return fmt.Errorf("digest mismatch at seq %d tick %d: got=%s want=%s", e.Seq, e.Tick, d, e.Digest)
			}
			st.checked++
		}
		st.commands++
		st.lastSeq = e.Seq
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return st, err
	}
	return st, nil
}
