package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	Version = 1
	Suffix  = ".snap.zst"
)

// Header is written both as the leading JSON line and inside the gob body.
// Seq is the last journal entry the snapshot includes.
type Header struct {
	Version       int    `json:"version"`
	WorldID       string `json:"world_id"`
	Tick          uint64 `json:"tick"`
	Seq           uint64 `json:"seq"`
	CatalogDigest string `json:"catalog_digest,omitempty"`
	StateDigest   string `json:"state_digest,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Beacon     BeaconV1     `json:"beacon"`
	Queue      QueueV1      `json:"queue"`
	Players    []PlayerV1   `json:"players"`
	Settlement []WithdrawV1 `json:"settlement,omitempty"`
}

type BeaconV1 struct {
	State      uint8    `json:"state"`
	Commitment [32]byte `json:"commitment"`
	Seed       uint64   `json:"seed"`
}

type QueueV1 struct {
	Counter uint64    `json:"counter"`
	Events  []EventV1 `json:"events"`
}

// EventV1 stores the countdown relative to QueueV1.Counter. Events are kept
// in delivery order.
type EventV1 struct {
	Owner     [2]uint64 `json:"owner"`
	Kind      uint8     `json:"kind"`
	RanchID   uint64    `json:"ranch_id"`
	ElfID     uint64    `json:"elf_id"`
	Countdown uint64    `json:"countdown"`
}

type PlayerV1 struct {
	ID    [2]uint64 `json:"id"`
	Nonce uint64    `json:"nonce"`

	GoldCount   uint64 `json:"gold_count"`
	CleanCount  uint64 `json:"clean_count"`
	FeedCount   uint64 `json:"feed_count"`
	GoldBalance uint64 `json:"gold_balance"`
	USDTBalance uint64 `json:"usdt_balance"`
	NextElfID   uint64 `json:"next_elf_id"`

	Props   []PropCountV1 `json:"props,omitempty"`
	Ranches []RanchV1     `json:"ranches"`
}

type PropCountV1 struct {
	ID    uint64 `json:"id"`
	Count uint64 `json:"count"`
}

type RanchV1 struct {
	ID      uint64  `json:"id"`
	Fouling uint64  `json:"fouling"`
	Slots   uint64  `json:"slots"`
	Elves   []ElfV1 `json:"elves"`
}

type ElfV1 struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Type       uint64 `json:"type"`
	Grade      uint64 `json:"grade"`
	Vitality   uint64 `json:"vitality"`
	Hunger     uint64 `json:"hunger"`
	Growth     uint64 `json:"growth"`
	GrowthTime uint64 `json:"growth_time"`
	Yield      uint64 `json:"yield"`
	MaxYield   uint64 `json:"max_yield"`
	YieldBase  uint64 `json:"yield_base"`
}

type WithdrawV1 struct {
	OpInfo       uint64    `json:"opinfo"`
	AccountIndex uint32    `json:"account_index"`
	ObjectIndex  uint32    `json:"object_index"`
	Amount       [4]uint64 `json:"amount"`
	Sender       [32]byte  `json:"sender"`
}

// FileName is the snapshot name for tick inside a snapshots directory.
func FileName(tick uint64) string {
	return fmt.Sprintf("%d%s", tick, Suffix)
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tools; the gob body carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

var ErrNoSnapshot = errors.New("no snapshot found")

// Latest returns the path of the highest-tick snapshot in dir.
func Latest(dir string) (string, uint64, error) {
	ticks, err := List(dir)
	if err != nil {
		return "", 0, err
	}
	if len(ticks) == 0 {
		return "", 0, ErrNoSnapshot
	}
	t := ticks[len(ticks)-1]
	return filepath.Join(dir, FileName(t)), t, nil
}

// List returns the ticks of every snapshot in dir, ascending.
func List(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ticks []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Suffix) {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, Suffix), 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return ticks, nil
}
