package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"pumpelf.ai/internal/protocol"
)

const journalPrefix = "journal"

// JournalEntry records one processed command and its result. Digest is only
// set at checkpoints.
type JournalEntry struct {
	Seq     uint64           `json:"seq"`
	Tick    uint64           `json:"tick"`
	Command protocol.Command `json:"command"`
	Code    protocol.Code    `json:"code"`
	Digest  string           `json:"digest,omitempty"`
}

// Journal appends one JSON line per command to an hourly zstd file under
// <world>/journal. Every entry is flushed through the zstd frame, so a crash
// loses at most the entry being written.
type Journal struct {
	dir string
	now func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func JournalDir(worldDir string) string { return filepath.Join(worldDir, "journal") }

func NewJournal(worldDir string) *Journal {
	return &Journal{dir: JournalDir(worldDir), now: time.Now}
}

func (j *Journal) WriteEntry(e JournalEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	hour := j.now().UTC().Format("2006-01-02-15")
	if hour != j.curHour {
		if err := j.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := j.w.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := j.w.Flush(); err != nil {
		return err
	}
	return j.enc.Flush()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

func (j *Journal) rotateLocked(hour string) error {
	if err := j.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(j.dir, fmt.Sprintf("%s-%s.jsonl.zst", journalPrefix, hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	j.f, j.enc, j.curHour = f, enc, hour
	j.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (j *Journal) closeLocked() error {
	var err error
	if j.w != nil {
		_ = j.w.Flush()
	}
	if j.enc != nil {
		err = j.enc.Close()
	}
	if j.f != nil {
		_ = j.f.Close()
	}
	j.f, j.enc, j.w, j.curHour = nil, nil, nil, ""
	return err
}

// JournalFiles lists the journal files in dir, oldest first.
func JournalFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, journalPrefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadJournal calls fn for every entry under dir in write order. Returning an
// error from fn stops the walk.
func ReadJournal(dir string, fn func(JournalEntry) error) error {
	files, err := JournalFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := readJournalFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func readJournalFile(path string, fn func(JournalEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
