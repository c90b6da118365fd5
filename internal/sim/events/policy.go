package events

import "pumpelf.ai/internal/sim/model"

// Policy is the only way commands put events on the queue. It keeps at most
// one pending event per identity.
type Policy struct {
	q             Queue
	foulingPeriod uint64
}

// NewPolicy wraps q. foulingPeriod is the fouling chain's countdown in units;
// every other chain steps once per unit.
func NewPolicy(q Queue, foulingPeriod uint64) *Policy {
	if foulingPeriod == 0 {
		foulingPeriod = 1
	}
	return &Policy{q: q, foulingPeriod: foulingPeriod}
}

func (p *Policy) Queue() Queue { return p.q }

// Countdown is the canonical step for kind, used both for seeding and re-arm.
func (p *Policy) Countdown(kind Kind) uint64 {
	if kind == KindFouling {
		return p.foulingPeriod
	}
	return 1
}

// Register inserts the event unless its identity is already pending.
func (p *Policy) Register(owner model.PlayerID, kind Kind, ranchID, elfID, countdown uint64) bool {
	id := Identity{Owner: owner, Kind: kind, RanchID: ranchID, ElfID: elfID}
	if p.q.Contains(id) {
		return false
	}
	return p.q.Register(Event{Identity: id, Countdown: countdown})
}

// SeedElf registers every chain for one elf and returns how many were new.
func (p *Policy) SeedElf(owner model.PlayerID, ranchID, elfID uint64) int {
	n := 0
	for _, k := range Kinds() {
		if p.Register(owner, k, ranchID, elfID, p.Countdown(k)) {
			n++
		}
	}
	return n
}

// Next re-arms a fired event with its canonical countdown.
func (p *Policy) Next(ev Event) Event {
	return Event{Identity: ev.Identity, Countdown: p.Countdown(ev.Kind)}
}
