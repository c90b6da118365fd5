// Package settlement buffers withdrawal intents for the off-system ledger.
package settlement

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// OpWithdraw is the opcode carried in the low byte of OpInfo.
const OpWithdraw uint64 = 7

// InfoSize is the encoded size of one WithdrawInfo.
const InfoSize = 8 + 4 + 4 + 4*8 + 32

type WithdrawInfo struct {
	OpInfo       uint64
	AccountIndex uint32
	ObjectIndex  uint32
	Amount       [4]uint64
	Sender       [32]byte
}

func NewWithdrawInfo(nonce uint64, accountIndex, objectIndex uint32, amount uint64, sender [32]byte) WithdrawInfo {
	return WithdrawInfo{
		OpInfo:       OpWithdraw + (nonce << 8),
		AccountIndex: accountIndex,
		ObjectIndex:  objectIndex,
		Amount:       [4]uint64{amount, 0, 0, 0},
		Sender:       sender,
	}
}

// AppendBytes writes the big-endian layout the settlement contract reads.
// Amount words go most significant first.
func (w WithdrawInfo) AppendBytes(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, w.OpInfo)
	b = binary.BigEndian.AppendUint32(b, w.AccountIndex)
	b = binary.BigEndian.AppendUint32(b, w.ObjectIndex)
	for i := 3; i >= 0; i-- {
		b = binary.BigEndian.AppendUint64(b, w.Amount[i])
	}
	return append(b, w.Sender[:]...)
}

// EncodeAddress packs a 20-byte hex address (optional 0x prefix) into the
// 32-byte sender field, left aligned.
func EncodeAddress(addr string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(addr, "0x"))
	if err != nil {
		return out, fmt.Errorf("address %q: %w", addr, err)
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("address %q: want 20 bytes, got %d", addr, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// Sink receives withdrawal intents from the engine.
type Sink interface {
	Append(info WithdrawInfo)
}

// Ledger collects intents between flushes.
type Ledger struct {
	mu      sync.Mutex
	pending []WithdrawInfo
}

func (l *Ledger) Append(info WithdrawInfo) {
	l.mu.Lock()
	l.pending = append(l.pending, info)
	l.mu.Unlock()
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Pending returns a copy of the buffered intents.
func (l *Ledger) Pending() []WithdrawInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]WithdrawInfo(nil), l.pending...)
}

// Restore replaces the buffer, used when resuming from a snapshot.
func (l *Ledger) Restore(infos []WithdrawInfo) {
	l.mu.Lock()
	l.pending = append([]WithdrawInfo(nil), infos...)
	l.mu.Unlock()
}

// Flush encodes and drains every buffered intent.
func (l *Ledger) Flush() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]byte, 0, len(l.pending)*InfoSize)
	for _, w := range l.pending {
		out = w.AppendBytes(out)
	}
	l.pending = nil
	return out
}
