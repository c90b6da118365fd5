package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PlayerID is the two-word id the dispatcher derives from a signer's key.
type PlayerID [2]uint64

func (id PlayerID) String() string { return fmt.Sprintf("%016x:%016x", id[0], id[1]) }

func (id PlayerID) Less(o PlayerID) bool {
	if id[0] != o[0] {
		return id[0] < o[0]
	}
	return id[1] < o[1]
}

func ParsePlayerID(s string) (PlayerID, error) {
	hi, lo, ok := strings.Cut(s, ":")
	if !ok {
		return PlayerID{}, fmt.Errorf("player id %q: missing ':'", s)
	}
	a, err := strconv.ParseUint(hi, 16, 64)
	if err != nil {
		return PlayerID{}, fmt.Errorf("player id %q: %w", s, err)
	}
	b, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return PlayerID{}, fmt.Errorf("player id %q: %w", s, err)
	}
	return PlayerID{a, b}, nil
}

func SortIDs(ids []PlayerID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// Player is the whole aggregate the store reads and writes in one piece.
type Player struct {
	ID    PlayerID   `json:"-"`
	Nonce uint64     `json:"nonce"`
	Data  PlayerData `json:"data"`
}

type PlayerData struct {
	GoldCount   uint64 `json:"gold_count"`
	CleanCount  uint64 `json:"clean_count"`
	FeedCount   uint64 `json:"feed_count"`
	GoldBalance uint64 `json:"gold_balance"`
	USDTBalance uint64 `json:"usdt_balance"`

	// NextElfID is the last id handed out; ids are never reused.
	NextElfID uint64 `json:"next_elf_id"`

	Props   map[uint64]uint64 `json:"props"` // prop id -> count
	Ranches []Ranch           `json:"ranchs"`
}

func NewPlayer(id PlayerID, balance uint64) Player {
	return Player{
		ID: id,
		Data: PlayerData{
			GoldBalance: balance,
			Props:       map[uint64]uint64{},
		},
	}
}

func (p *Player) Ranch(id uint64) *Ranch {
	for i := range p.Data.Ranches {
		if p.Data.Ranches[i].ID == id {
			return &p.Data.Ranches[i]
		}
	}
	return nil
}

// Elf finds an elf by ranch and elf id. The ranch is returned as well since
// most callers need its fouling level.
func (p *Player) Elf(ranchID, elfID uint64) (*Ranch, *Elf) {
	r := p.Ranch(ranchID)
	if r == nil {
		return nil, nil
	}
	return r, r.Elf(elfID)
}

func (p *Player) PropCount(id uint64) uint64 {
	return p.Data.Props[id]
}

func (p *Player) AddProp(id, n uint64) {
	if p.Data.Props == nil {
		p.Data.Props = map[uint64]uint64{}
	}
	p.Data.Props[id] += n
}

// TakeProp removes one unit of a prop and reports whether one was owned.
func (p *Player) TakeProp(id uint64) bool {
	n := p.Data.Props[id]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(p.Data.Props, id)
	} else {
		p.Data.Props[id] = n - 1
	}
	return true
}

// PropIDs returns owned prop ids in ascending order.
func (p *Player) PropIDs() []uint64 {
	out := make([]uint64, 0, len(p.Data.Props))
	for id := range p.Data.Props {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p Player) Clone() Player {
	out := p
	if p.Data.Props != nil {
		out.Data.Props = make(map[uint64]uint64, len(p.Data.Props))
		for k, v := range p.Data.Props {
			out.Data.Props[k] = v
		}
	}
	if p.Data.Ranches != nil {
		out.Data.Ranches = make([]Ranch, len(p.Data.Ranches))
		for i, r := range p.Data.Ranches {
			out.Data.Ranches[i] = r.Clone()
		}
	}
	return out
}
