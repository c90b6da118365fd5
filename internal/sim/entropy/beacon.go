// Package entropy implements the commit-reveal random beacon. Every advance
// reveals the value committed by the previous one; the accepted reveal seeds
// all draws until the next advance.
package entropy

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"lukechampine.com/blake3"

	"pumpelf.ai/internal/sim/logic/mathx"
)

type State uint8

const (
	NoCommitment State = iota
	AwaitingReveal
)

func (s State) String() string {
	switch s {
	case NoCommitment:
		return "no_commitment"
	case AwaitingReveal:
		return "awaiting_reveal"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var ErrRevealMismatch = errors.New("reveal does not match commitment")

type Beacon struct {
	State      State
	Commitment [32]byte
	Seed       uint64
}

func revealBytes(reveal [4]uint64) []byte {
	b := make([]byte, 32)
	for i, w := range reveal {
		binary.LittleEndian.PutUint64(b[i*8:], w)
	}
	return b
}

// Commit is the commitment a client publishes for a value it will reveal on
// the next advance.
func Commit(reveal [4]uint64) [32]byte {
	return blake3.Sum256(revealBytes(reveal))
}

// Fold collapses a reveal into the draw seed.
func Fold(reveal [4]uint64) uint64 {
	return reveal[0] ^ reveal[1] ^ reveal[2] ^ reveal[3]
}

// Verify is the transition guard: it reports whether reveal may be accepted
// without touching the beacon.
func (b *Beacon) Verify(reveal [4]uint64) error {
	if b.State != AwaitingReveal {
		return nil
	}
	if Commit(reveal) != b.Commitment {
		return ErrRevealMismatch
	}
	return nil
}

// Accept checks reveal against the outstanding commitment, seeds draws with
// it and installs next. A zero next leaves the beacon without a commitment.
// On error the beacon is unchanged.
func (b *Beacon) Accept(reveal [4]uint64, next [32]byte) error {
	if err := b.Verify(reveal); err != nil {
		return err
	}
	b.Seed = Fold(reveal)
	b.Commitment = next
	if next == ([32]byte{}) {
		b.State = NoCommitment
	} else {
		b.State = AwaitingReveal
	}
	return nil
}

// ParseCommitment decodes the hex form used on the wire. Empty means none.
func ParseCommitment(s string) ([32]byte, error) {
	var out [32]byte
	if s == "" {
		return out, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("commitment: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("commitment: want %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func FormatCommitment(c [32]byte) string {
	if c == ([32]byte{}) {
		return ""
	}
	return hex.EncodeToString(c[:])
}

// Draw returns a value in [1,n] derived from seed and salts. n == 0 yields 0.
func Draw(seed uint64, n uint64, salts ...uint64) uint64 {
	if n == 0 {
		return 0
	}
	return mathx.Hash(seed, salts...)%n + 1
}
