package tuning

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	UnitSeconds uint64 `yaml:"unit_seconds"`

	VitalityDecayPerMinute   uint64 `yaml:"vitality_decay_per_minute"`
	VitalityDecayDirtyBonus  uint64 `yaml:"vitality_decay_dirty_bonus"`
	VitalityDecayHungryBonus uint64 `yaml:"vitality_decay_hungry_bonus"`
	HungryBelow              uint64 `yaml:"hungry_below"`
	HungerDecayPerHour       uint64 `yaml:"hunger_decay_per_hour"`
	VitalityRegenPerMinute   uint64 `yaml:"vitality_regen_per_minute"`

	FoulingPeriodMinutes uint64 `yaml:"fouling_period_minutes"`
	FoulingCap           uint64 `yaml:"fouling_cap"`
	FoulingHigh          uint64 `yaml:"fouling_high"`
	FoulingLow           uint64 `yaml:"fouling_low"`

	StartingBalance uint64 `yaml:"starting_balance"`
	InitialSlots    uint64 `yaml:"initial_slots"`
	MaxSlots        uint64 `yaml:"max_slots"`

	PreemptEvery uint64 `yaml:"preempt_every"`

	// Admin is the hex form of the privileged player id ("<hi>:<lo>" words).
	Admin string `yaml:"admin"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		UnitSeconds:     5,

		VitalityDecayPerMinute:   100,
		VitalityDecayDirtyBonus:  50,
		VitalityDecayHungryBonus: 50,
		HungryBelow:              5000,
		HungerDecayPerHour:       200,
		VitalityRegenPerMinute:   100,

		FoulingPeriodMinutes: 3,
		FoulingCap:           10,
		FoulingHigh:          5,
		FoulingLow:           3,

		StartingBalance: 120,
		InitialSlots:    1,
		MaxSlots:        10,

		PreemptEvery: 32,
	}
}

// Load overlays the YAML file at path onto Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// MaxFouling is the top of the fouling scale.
const MaxFouling = 10

var adminPattern = regexp.MustCompile(`^([0-9a-f]{16}:[0-9a-f]{16})?$`)

func (t Tuning) Validate() error {
	if t.UnitSeconds == 0 || 60%t.UnitSeconds != 0 {
		return fmt.Errorf("unit_seconds must divide 60, got %d", t.UnitSeconds)
	}
	if t.FoulingPeriodMinutes == 0 {
		return fmt.Errorf("fouling_period_minutes must be positive")
	}
	if t.FoulingCap > MaxFouling {
		return fmt.Errorf("fouling_cap must be at most %d, got %d", MaxFouling, t.FoulingCap)
	}
	if t.FoulingLow > t.FoulingHigh || t.FoulingHigh > t.FoulingCap {
		return fmt.Errorf("fouling thresholds out of order: low=%d high=%d cap=%d", t.FoulingLow, t.FoulingHigh, t.FoulingCap)
	}
	if t.InitialSlots == 0 || t.InitialSlots > t.MaxSlots {
		return fmt.Errorf("initial_slots=%d must be in [1,max_slots=%d]", t.InitialSlots, t.MaxSlots)
	}
	if t.PreemptEvery == 0 {
		return fmt.Errorf("preempt_every must be positive")
	}
	if !adminPattern.MatchString(t.Admin) {
		return fmt.Errorf("admin must be two 16-digit lowercase hex words joined by ':', got %q", t.Admin)
	}
	return nil
}
