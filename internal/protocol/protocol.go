package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind names one player-facing action (or the periodic tick).
type Kind string

const (
	KindTick          Kind = "tick"
	KindInstallPlayer Kind = "install_player"
	KindBuyElf        Kind = "buy_elf"
	KindFeedElf       Kind = "feed_elf"
	KindCleanRanch    Kind = "clean_ranch"
	KindTreatElf      Kind = "treat_elf"
	KindSellElf       Kind = "sell_elf"
	KindWithdraw      Kind = "withdraw"
	KindDeposit       Kind = "deposit"
	KindCollectGold   Kind = "collect_gold"
	KindBuyProp       Kind = "buy_prop"
	KindBuySlot       Kind = "buy_slot"
)

// Opcodes are the command bytes clients put in the low byte of params[0].
var kindOpcodes = map[Kind]uint8{
	KindTick:          0,
	KindInstallPlayer: 1,
	KindBuyElf:        2,
	KindFeedElf:       3,
	KindCleanRanch:    4,
	KindTreatElf:      5,
	KindSellElf:       6,
	KindWithdraw:      7,
	KindDeposit:       8,
	KindCollectGold:   11,
	KindBuyProp:       12,
	KindBuySlot:       13,
}

func (k Kind) Opcode() (uint8, bool) {
	op, ok := kindOpcodes[k]
	return op, ok
}

func Kinds() []Kind {
	return []Kind{
		KindTick, KindInstallPlayer, KindBuyElf, KindFeedElf, KindCleanRanch, KindTreatElf,
		KindSellElf, KindWithdraw, KindDeposit, KindCollectGold, KindBuyProp, KindBuySlot,
	}
}

// Currencies accepted by the props store and by deposits.
const (
	CurrencyGold = "gold"
	CurrencyUSDT = "usdt"
)

// Command is the decoded form of one transaction, after the external
// dispatcher has authenticated the signer and derived its player id.
type Command struct {
	Kind   Kind      `json:"kind"`
	Player [2]uint64 `json:"player"`
	Nonce  uint64    `json:"nonce"`

	RanchID uint64 `json:"ranch_id,omitempty"`
	ElfID   uint64 `json:"elf_id,omitempty"`
	ElfType uint64 `json:"elf_type,omitempty"`
	PropID  uint64 `json:"prop_id,omitempty"`

	Currency string     `json:"currency,omitempty"`
	Amount   uint64     `json:"amount,omitempty"`
	Target   *[2]uint64 `json:"target,omitempty"`
	Address  string     `json:"address,omitempty"`

	// Tick only: the value revealed against the outstanding commitment and
	// the commitment (hex blake3 digest) for the next tick.
	Reveal     [4]uint64 `json:"reveal,omitempty"`
	Commitment string    `json:"commitment,omitempty"`
}

func DecodeCommand(b []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	if _, ok := c.Kind.Opcode(); !ok {
		return c, fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return c, nil
}
