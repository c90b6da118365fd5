package events

import (
	"fmt"

	"pumpelf.ai/internal/sim/model"
)

// Kind numbers are stable; they appear in digests and journals.
type Kind uint8

const (
	KindGrowth Kind = iota + 1
	KindYield
	KindVitalityDecay
	KindHungerDecay
	KindFouling
	KindVitalityRegen
)

var kindNames = map[Kind]string{
	KindGrowth:        "growth",
	KindYield:         "yield",
	KindVitalityDecay: "vitality_decay",
	KindHungerDecay:   "hunger_decay",
	KindFouling:       "fouling",
	KindVitalityRegen: "vitality_regen",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds lists every simulated chain in seeding order.
func Kinds() []Kind {
	return []Kind{KindGrowth, KindYield, KindVitalityDecay, KindHungerDecay, KindFouling, KindVitalityRegen}
}

// Identity is what the queue deduplicates on. The countdown is not part of it.
type Identity struct {
	Owner   model.PlayerID
	Kind    Kind
	RanchID uint64
	ElfID   uint64
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%d/%d", id.Owner, id.Kind, id.RanchID, id.ElfID)
}

type Event struct {
	Identity
	// Countdown is the number of advances until the event is due.
	Countdown uint64
}

// Queue is the pending-event store the engine schedules against.
type Queue interface {
	// Register inserts ev unless an event with the same identity is pending.
	Register(ev Event) bool
	Contains(id Identity) bool
	// DrainDue advances the counter by one and hands every due event to fn.
	// If fn returns ok the returned event is queued again. It returns the
	// number of events handled.
	DrainDue(fn func(Event) (next Event, ok bool)) int
	Counter() uint64
	Len() int
	// Events lists pending events in delivery order, countdowns relative to
	// the current counter.
	Events() []Event
	Restore(counter uint64, evs []Event)
}
