package ranch

import (
	"github.com/sirupsen/logrus"

	"pumpelf.ai/internal/sim/events"
	"pumpelf.ai/internal/sim/logic/rates"
	"pumpelf.ai/internal/sim/model"
)

// stepFn applies one unit of a chain to r/el. It returns the applied delta
// and whether the chain stays armed.
type stepFn func(e *Engine, r *model.Ranch, el *model.Elf) (delta uint64, armed bool)

var steps = map[events.Kind]stepFn{
	events.KindGrowth:        stepGrowth,
	events.KindYield:         stepYield,
	events.KindVitalityDecay: stepVitalityDecay,
	events.KindHungerDecay:   stepHungerDecay,
	events.KindFouling:       stepFouling,
	events.KindVitalityRegen: stepVitalityRegen,
}

func stepGrowth(e *Engine, r *model.Ranch, el *model.Elf) (uint64, bool) {
	d := rates.Growth(*el, e.params)
	el.Growth += d
	return d, el.Growth < model.StatMax
}

// stepYield keeps the chain armed through zero deltas caused by low
// vitality or hunger; only a full store ends it.
func stepYield(e *Engine, r *model.Ranch, el *model.Elf) (uint64, bool) {
	d := rates.Yield(*el, e.cats.Grades.Permille(el.Grade), e.params)
	el.Yield += d
	return d, el.Yield < el.MaxYield
}

func stepVitalityDecay(e *Engine, r *model.Ranch, el *model.Elf) (uint64, bool) {
	d := rates.VitalityDecay(*el, r.Fouling, e.params)
	el.Vitality -= d
	return d, el.Vitality > 0
}

func stepHungerDecay(e *Engine, r *model.Ranch, el *model.Elf) (uint64, bool) {
	d := rates.HungerDecay(*el, e.params)
	el.Hunger -= d
	return d, el.Hunger > 0
}

func stepFouling(e *Engine, r *model.Ranch, el *model.Elf) (uint64, bool) {
	d := rates.Fouling(r.Fouling, e.params)
	r.Fouling += d
	return d, r.Fouling < e.params.FoulingCap
}

// stepVitalityRegen stays armed at full vitality since decay keeps pulling
// the bar down; a dirty ranch or a dead elf ends it.
func stepVitalityRegen(e *Engine, r *model.Ranch, el *model.Elf) (uint64, bool) {
	d := rates.VitalityRegen(*el, r.Fouling, e.params)
	el.Vitality += d
	return d, r.Fouling < e.params.FoulingLow && el.Vitality > 0
}

// handle is the queue's delivery callback. Missing players, ranches or elves
// end the chain silently: the elf may have been sold since scheduling.
func (e *Engine) handle(ev events.Event) (events.Event, bool) {
	next, armed := e.applyEvent(ev)
	e.obs.EventHandled(ev.Kind, armed)
	return next, armed
}

func (e *Engine) applyEvent(ev events.Event) (events.Event, bool) {
	step, ok := steps[ev.Kind]
	if !ok {
		e.log.WithField("event", ev.Identity.String()).Warn("dropping event of unknown kind")
		return events.Event{}, false
	}

	p, ok, err := e.store.Load(ev.Owner)
	if err != nil {
		e.log.WithError(err).WithField("event", ev.Identity.String()).Error("load owner")
		return events.Event{}, false
	}
	if !ok {
		return events.Event{}, false
	}
	r, el := p.Elf(ev.RanchID, ev.ElfID)
	if el == nil {
		return events.Event{}, false
	}

	d, armed := step(e, r, el)
	if d > 0 {
		if err := e.store.Save(p); err != nil {
			e.log.WithError(err).WithField("event", ev.Identity.String()).Error("save owner")
			return events.Event{}, false
		}
	}
	e.log.WithFields(logrus.Fields{
		"player": ev.Owner.String(),
		"kind":   ev.Kind.String(),
		"ranch":  ev.RanchID,
		"elf":    ev.ElfID,
		"delta":  d,
		"armed":  armed,
	}).Debug("event")
	if !armed {
		return events.Event{}, false
	}
	return e.policy.Next(ev), true
}
