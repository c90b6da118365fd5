package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"pumpelf.ai/internal/persistence/indexdb"
	persistlog "pumpelf.ai/internal/persistence/log"
	"pumpelf.ai/internal/persistence/s3mirror"
	"pumpelf.ai/internal/persistence/snapshot"
	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/ranch"
	"pumpelf.ai/internal/sim/settlement"
)

// result is what ranchd prints for every input line.
type result struct {
	Seq    uint64        `json:"seq"`
	Tick   uint64        `json:"tick"`
	Kind   protocol.Kind `json:"kind"`
	Code   protocol.Code `json:"code"`
	Status string        `json:"status"`
	Detail string        `json:"detail,omitempty"`
}

// runtime drives one engine: every command is applied, journaled and
// indexed; preemption points after a tick are checkpointed to disk.
type runtime struct {
	eng      *ranch.Engine
	journal  *persistlog.Journal
	idx      *indexdb.SQLiteIndex
	mirror   *s3mirror.Mirror
	worldDir string
	log      logrus.FieldLogger

	seq     uint64
	snapSeq uint64
	hasSnap bool
}

func (r *runtime) snapshotDir() string { return filepath.Join(r.worldDir, "snapshots") }

func (r *runtime) settlementDir() string { return filepath.Join(r.worldDir, "settlement") }

func settlementFileName(seq uint64) string { return fmt.Sprintf("withdraw-%020d.bin", seq) }

// apply handles one raw command line. Only infrastructure failures are
// returned as errors; rule rejections are reported in the result.
func (r *runtime) apply(raw []byte) (result, error) {
	r.seq++
	cmd, err := protocol.ParseCommand(raw)
	if err == nil {
		err = r.eng.Process(cmd)
	}
	code := protocol.CodeOf(err)
	res := result{
		Seq:    r.seq,
		Tick:   r.eng.Tick(),
		Kind:   cmd.Kind,
		Code:   code,
		Status: code.String(),
	}
	var perr *protocol.Error
	if err != nil && errors.As(err, &perr) {
		res.Detail = perr.Detail
	}

	entry := persistlog.JournalEntry{Seq: r.seq, Tick: res.Tick, Command: cmd, Code: code}
	checkpoint := cmd.Kind == protocol.KindTick && code == protocol.CodeOK && r.eng.Preempt()
	if checkpoint {
		d, derr := r.eng.StateDigest()
		if derr != nil {
			return res, fmt.Errorf("digest: %w", derr)
		}
		entry.Digest = d
	}
	if err := r.journal.WriteEntry(entry); err != nil {
		return res, fmt.Errorf("journal: %w", err)
	}
	_ = r.idx.WriteEntry(entry)

	if code == protocol.CodeInternal {
		return res, err
	}
	if checkpoint {
		if err := r.checkpoint(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// run applies every non-blank line of in and writes one JSON result per line
// to out. It stops at EOF, on ctx cancellation or on the first
// infrastructure error.
func (r *runtime) run(ctx context.Context, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(out)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		res, err := r.apply(line)
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
		if err != nil {
			return err
		}
	}
	return sc.Err()
}

// checkpoint drains pending withdrawals into a settlement bundle, then writes
// a snapshot of the current state. Nothing happens when no command was
// applied since the last one.
func (r *runtime) checkpoint() error {
	if r.hasSnap && r.snapSeq == r.seq {
		return nil
	}
	if err := r.flushSettlement(); err != nil {
		return err
	}
	tick := r.eng.Tick()
	snap, err := r.eng.ExportSnapshot()
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	snap.Header.Seq = r.seq
	path := filepath.Join(r.snapshotDir(), snapshot.FileName(tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	r.snapSeq, r.hasSnap = r.seq, true
	r.idx.RecordSnapshot(path, snap)
	r.mirror.Enqueue(path)
	r.log.WithFields(logrus.Fields{"tick": tick, "seq": r.seq, "players": len(snap.Players)}).Info("snapshot written")
	return nil
}

// flushSettlement writes the buffered withdrawal intents to
// settlement/withdraw-<seq>.bin. The bundle is named by journal seq so a
// replayed checkpoint rewrites the same file with the same bytes.
func (r *runtime) flushSettlement() error {
	l, ok := r.eng.Settlement().(*settlement.Ledger)
	if !ok || l.Len() == 0 {
		return nil
	}
	pending := l.Pending()
	b := l.Flush()
	path := filepath.Join(r.settlementDir(), settlementFileName(r.seq))
	if err := writeFileAtomic(path, b); err != nil {
		l.Restore(pending)
		return fmt.Errorf("write settlement: %w", err)
	}
	r.mirror.Enqueue(path)
	r.log.WithFields(logrus.Fields{"seq": r.seq, "withdrawals": len(pending)}).Info("settlement bundle written")
	return nil
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// resume restores the latest snapshot (or path, when set) and re-applies the
// journal entries written after it. replayTail is false for durable stores,
// which already hold every committed player; a non-empty tail is then an
// error.
func (r *runtime) resume(path string, replayTail bool) error {
	if path == "" {
		p, _, err := snapshot.Latest(r.snapshotDir())
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			return r.replayJournal(0, replayTail)
		}
		if err != nil {
			return err
		}
		path = p
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != r.eng.WorldID() {
		return fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", r.eng.WorldID(), snap.Header.WorldID)
	}
	if err := r.eng.ImportSnapshot(snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	r.seq = snap.Header.Seq
	r.snapSeq, r.hasSnap = snap.Header.Seq, true
	r.log.WithFields(logrus.Fields{"snapshot": filepath.Base(path), "tick": snap.Header.Tick, "seq": snap.Header.Seq}).Info("resumed from snapshot")
	return r.replayJournal(snap.Header.Seq, replayTail)
}

func (r *runtime) replayJournal(after uint64, allowed bool) error {
	n := 0
	err := persistlog.ReadJournal(persistlog.JournalDir(r.worldDir), func(e persistlog.JournalEntry) error {
		if e.Seq <= after {
			return nil
		}
		if !allowed {
			return fmt.Errorf("journal has entries after seq %d; restore the player store to the snapshot or replay with -store memory", after)
		}
		got := protocol.CodeOf(r.eng.Process(e.Command))
		if got != e.Code {
			return fmt.Errorf("journal seq %d: code %s, journal says %s", e.Seq, got, e.Code)
		}
		if e.Digest != "" {
			d, err := r.eng.StateDigest()
			if err != nil {
				return err
			}
			if d != e.Digest {
				return fmt.Errorf("journal seq %d: digest mismatch", e.Seq)
			}
		}
		r.seq = e.Seq
		n++
		if e.Digest != "" {
			// Redo the checkpoint the live run took here.
			return r.checkpoint()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if n > 0 {
		r.log.WithFields(logrus.Fields{"entries": n, "seq": r.seq}).Info("replayed journal tail")
	}
	return nil
}
