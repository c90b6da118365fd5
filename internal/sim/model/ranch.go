package model

// StatMax bounds vitality, hunger and growth.
const StatMax uint64 = 10000

type Ranch struct {
	ID      uint64 `json:"id"`
	Fouling uint64 `json:"ranch_clean"`
	Slots   uint64 `json:"elf_slot"`
	Elves   []Elf  `json:"elfs"`
}

func (r *Ranch) Elf(id uint64) *Elf {
	for i := range r.Elves {
		if r.Elves[i].ID == id {
			return &r.Elves[i]
		}
	}
	return nil
}

// RemoveElf deletes an elf keeping the order of the rest.
func (r *Ranch) RemoveElf(id uint64) (Elf, bool) {
	for i := range r.Elves {
		if r.Elves[i].ID == id {
			e := r.Elves[i]
			r.Elves = append(r.Elves[:i:i], r.Elves[i+1:]...)
			return e, true
		}
	}
	return Elf{}, false
}

func (r *Ranch) Full() bool { return uint64(len(r.Elves)) >= r.Slots }

// MatureCount counts fully grown elves of one type.
func (r *Ranch) MatureCount(elfType uint64) uint64 {
	var n uint64
	for _, e := range r.Elves {
		if e.Type == elfType && e.Mature() {
			n++
		}
	}
	return n
}

func (r Ranch) Clone() Ranch {
	out := r
	if r.Elves != nil {
		out.Elves = append([]Elf(nil), r.Elves...)
	}
	return out
}

type Elf struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Type  uint64 `json:"elf_type"`
	Grade uint64 `json:"grade"`

	Vitality uint64 `json:"health"`
	Hunger   uint64 `json:"satiety"`
	Growth   uint64 `json:"exp"`

	GrowthTime uint64 `json:"growth_time"` // minutes to maturity
	Yield      uint64 `json:"current_gold_store"`
	MaxYield   uint64 `json:"max_gold_store"`
	YieldBase  uint64 `json:"current_gold_produce_base"`
}

func (e *Elf) Mature() bool { return e.Growth >= StatMax }
