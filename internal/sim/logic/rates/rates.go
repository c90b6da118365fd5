// Package rates holds the per-unit stat arithmetic. Every function returns a
// delta that is already clamped so applying it keeps the stat in bounds, and
// returns 0 once the stat sits on the bound it moves toward.
package rates

import (
	"pumpelf.ai/internal/sim/logic/mathx"
	"pumpelf.ai/internal/sim/model"
	"pumpelf.ai/internal/sim/tuning"
)

const permille = 1000

type Params struct {
	UnitsPerMinute uint64
	UnitsPerHour   uint64

	// Vitality decay stays per minute so the composite rate is converted
	// once.
	VitalityDecayPerMinute uint64
	DirtyBonusPerMinute    uint64
	HungryBonusPerMinute   uint64

	HungryBelow   uint64
	HungerDecay   uint64 // per unit
	VitalityRegen uint64 // per unit

	FoulingCap         uint64
	FoulingHigh        uint64
	FoulingLow         uint64
	FoulingPeriodUnits uint64
}

// FromTuning converts the per-minute and per-hour design rates into per-unit
// amounts. Vitality decay is the exception: its bonuses combine with the base
// rate first, so VitalityDecay converts the sum.
func FromTuning(t tuning.Tuning) Params {
	upm := 60 / t.UnitSeconds
	uph := 3600 / t.UnitSeconds
	return Params{
		UnitsPerMinute: upm,
		UnitsPerHour:   uph,

		VitalityDecayPerMinute: t.VitalityDecayPerMinute,
		DirtyBonusPerMinute:    t.VitalityDecayDirtyBonus,
		HungryBonusPerMinute:   t.VitalityDecayHungryBonus,

		HungryBelow:   t.HungryBelow,
		HungerDecay:   CeilDiv(t.HungerDecayPerHour, uph),
		VitalityRegen: CeilDiv(t.VitalityRegenPerMinute, upm),

		FoulingCap:         t.FoulingCap,
		FoulingHigh:        t.FoulingHigh,
		FoulingLow:         t.FoulingLow,
		FoulingPeriodUnits: t.FoulingPeriodMinutes * upm,
	}
}

func CeilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func PerMinute(p Params, rate uint64) uint64 { return CeilDiv(rate, p.UnitsPerMinute) }

func PerHour(p Params, rate uint64) uint64 { return CeilDiv(rate, p.UnitsPerHour) }

// Growth is ceil(StatMax / (growth_time minutes in units)), capped to what is
// left to maturity.
func Growth(e model.Elf, p Params) uint64 {
	if e.Growth >= model.StatMax {
		return 0
	}
	left := model.StatMax - e.Growth
	units := e.GrowthTime * p.UnitsPerMinute
	if units == 0 {
		return left
	}
	return mathx.Min(CeilDiv(model.StatMax, units), left)
}

// VitalityDecay sums the base rate and the dirty-ranch and hungry bonuses
// per minute, then converts the total to a unit.
func VitalityDecay(e model.Elf, fouling uint64, p Params) uint64 {
	if e.Vitality == 0 {
		return 0
	}
	perMinute := p.VitalityDecayPerMinute
	if fouling > p.FoulingHigh {
		perMinute += p.DirtyBonusPerMinute
	}
	if e.Hunger < p.HungryBelow {
		perMinute += p.HungryBonusPerMinute
	}
	return mathx.Min(PerMinute(p, perMinute), e.Vitality)
}

func HungerDecay(e model.Elf, p Params) uint64 {
	if e.Hunger == 0 {
		return 0
	}
	return mathx.Min(p.HungerDecay, e.Hunger)
}

func VitalityFactor(v uint64) uint64 {
	switch {
	case v >= 8000:
		return 1000
	case v >= 5000:
		return 800
	case v >= 3000:
		return 500
	default:
		return 0
	}
}

func GrowthFactor(e model.Elf) uint64 {
	if e.Mature() {
		return 1000
	}
	return 500
}

func HungerFactor(h uint64) uint64 {
	switch {
	case h >= 5000:
		return 1000
	case h >= 1000:
		return 500
	default:
		return 0
	}
}

// Yield is base × vitality × growth × rarity × hunger (all factors in
// permille) per minute, converted to a unit and capped to free storage.
func Yield(e model.Elf, rarityPermille uint64, p Params) uint64 {
	if e.Yield >= e.MaxYield {
		return 0
	}
	left := e.MaxYield - e.Yield
	num := e.YieldBase * VitalityFactor(e.Vitality) * GrowthFactor(e) * rarityPermille * HungerFactor(e.Hunger)
	if num == 0 {
		return 0
	}
	den := uint64(permille*permille*permille*permille) * p.UnitsPerMinute
	return mathx.Min(CeilDiv(num, den), left)
}

// Fouling adds one level per period until the cap.
func Fouling(fouling uint64, p Params) uint64 {
	if fouling >= p.FoulingCap {
		return 0
	}
	return 1
}

// VitalityRegen applies only in a clean ranch and never revives an elf at 0.
func VitalityRegen(e model.Elf, fouling uint64, p Params) uint64 {
	if fouling >= p.FoulingLow || e.Vitality == 0 || e.Vitality >= model.StatMax {
		return 0
	}
	return mathx.Min(p.VitalityRegen, model.StatMax-e.Vitality)
}
