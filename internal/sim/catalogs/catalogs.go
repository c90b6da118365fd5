package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

//go:embed defaults/*.json
var defaultFiles embed.FS

const (
	PropFood     = "food"
	PropMedicine = "medicine"

	CurrencyGold = "gold"
	CurrencyUSDT = "usdt"
)

type Catalogs struct {
	Elves  ElfCatalog
	Grades GradeCatalog
	Props  PropCatalog
	Slots  SlotCatalog
}

type ElfCatalog struct {
	ByType map[uint64]ElfDef
	Types  []uint64
	Digest string
}

type ElfDef struct {
	Type      uint64       `json:"type"`
	Name      string       `json:"name"`
	BuyPrice  uint64       `json:"buy_price"`
	SellPrice uint64       `json:"sell_price"`
	Grades    []GradeStats `json:"grades"`
	Requires  *Requirement `json:"requires,omitempty"`
}

type GradeStats struct {
	Grade        uint64 `json:"grade"`
	GrowthTime   uint64 `json:"growth_time"` // minutes
	MaxYieldBase uint64 `json:"max_yield_base"`
	YieldBase    uint64 `json:"yield_base"` // per minute
}

// Requirement is a purchase predicate. Zero fields are not checked.
// MatureCount counts fully grown elves of ElfType in the target ranch.
type Requirement struct {
	ElfType     uint64 `json:"elf_type,omitempty"`
	MatureCount uint64 `json:"mature_count,omitempty"`
	CleanCount  uint64 `json:"clean_count,omitempty"`
	FeedCount   uint64 `json:"feed_count,omitempty"`
	GoldCount   uint64 `json:"gold_count,omitempty"`
}

// Progress is what a Requirement is evaluated against.
type Progress struct {
	Mature     func(elfType uint64) uint64
	CleanCount uint64
	FeedCount  uint64
	GoldCount  uint64
}

func (r *Requirement) Satisfied(p Progress) bool {
	if r == nil {
		return true
	}
	if r.MatureCount > 0 {
		if p.Mature == nil || p.Mature(r.ElfType) < r.MatureCount {
			return false
		}
	}
	return p.CleanCount >= r.CleanCount && p.FeedCount >= r.FeedCount && p.GoldCount >= r.GoldCount
}

type GradeCatalog struct {
	Ranges []GradeRange
	Digest string
}

// GradeRange maps an inclusive roll interval in [1,100] to a grade.
type GradeRange struct {
	Grade         uint64 `json:"grade"`
	Start         uint64 `json:"start"`
	End           uint64 `json:"end"`
	YieldPermille uint64 `json:"yield_permille"`
}

type PropCatalog struct {
	ByID   map[uint64]PropDef
	IDs    []uint64
	Digest string
}

type PropDef struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Amount   uint64 `json:"amount"`
	Price    uint64 `json:"price"`
	Currency string `json:"currency"`
}

type SlotCatalog struct {
	Prices []SlotPrice
	Digest string
}

type SlotPrice struct {
	Capacity uint64 `json:"capacity"`
	Price    uint64 `json:"price"`
}

// Default returns the catalogs compiled into the binary.
func Default() (*Catalogs, error) {
	return Load("")
}

// Load reads catalogs from configDir. Files missing from the directory (or an
// empty configDir) fall back to the embedded defaults.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	raw, err := readCatalogFile(configDir, "elves.json")
	if err != nil {
		return nil, err
	}
	if err := loadElves(raw, &c.Elves); err != nil {
		return nil, err
	}
	if raw, err = readCatalogFile(configDir, "grades.json"); err != nil {
		return nil, err
	}
	if err := loadGrades(raw, &c.Grades); err != nil {
		return nil, err
	}
	if raw, err = readCatalogFile(configDir, "props.json"); err != nil {
		return nil, err
	}
	if err := loadProps(raw, &c.Props); err != nil {
		return nil, err
	}
	if raw, err = readCatalogFile(configDir, "slots.json"); err != nil {
		return nil, err
	}
	if err := loadSlots(raw, &c.Slots); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func readCatalogFile(configDir, name string) ([]byte, error) {
	if configDir != "" {
		b, err := os.ReadFile(filepath.Join(configDir, name))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return defaultFiles.ReadFile("defaults/" + name)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadElves(raw []byte, out *ElfCatalog) error {
	out.Digest = sha256Hex(raw)

	var defs []ElfDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("elves.json: %w", err)
	}
	out.ByType = map[uint64]ElfDef{}
	for _, d := range defs {
		if d.Type == 0 {
			return fmt.Errorf("elves.json: type 0 is reserved")
		}
		if _, dup := out.ByType[d.Type]; dup {
			return fmt.Errorf("elves.json: duplicate type %d", d.Type)
		}
		sort.Slice(d.Grades, func(i, j int) bool { return d.Grades[i].Grade < d.Grades[j].Grade })
		out.ByType[d.Type] = d
		out.Types = append(out.Types, d.Type)
	}
	sort.Slice(out.Types, func(i, j int) bool { return out.Types[i] < out.Types[j] })
	return nil
}

func loadGrades(raw []byte, out *GradeCatalog) error {
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &out.Ranges); err != nil {
		return fmt.Errorf("grades.json: %w", err)
	}
	sort.Slice(out.Ranges, func(i, j int) bool { return out.Ranges[i].Start < out.Ranges[j].Start })
	return nil
}

func loadProps(raw []byte, out *PropCatalog) error {
	out.Digest = sha256Hex(raw)

	var defs []PropDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("props.json: %w", err)
	}
	out.ByID = map[uint64]PropDef{}
	for _, d := range defs {
		if d.ID == 0 {
			return fmt.Errorf("props.json: id 0 is reserved")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("props.json: duplicate id %d", d.ID)
		}
		out.ByID[d.ID] = d
		out.IDs = append(out.IDs, d.ID)
	}
	sort.Slice(out.IDs, func(i, j int) bool { return out.IDs[i] < out.IDs[j] })
	return nil
}

func loadSlots(raw []byte, out *SlotCatalog) error {
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &out.Prices); err != nil {
		return fmt.Errorf("slots.json: %w", err)
	}
	sort.Slice(out.Prices, func(i, j int) bool { return out.Prices[i].Capacity < out.Prices[j].Capacity })
	return nil
}

// Validate rejects tables the engine cannot run with.
// yieldScale is what the yield formula multiplies yield_base by before the
// grade multiplier: three factors of at most 1000 permille each.
const yieldScale = 1000 * 1000 * 1000

func maxYieldBase(gradePermille uint64) uint64 {
	return math.MaxUint64 / yieldScale / gradePermille
}

func (c *Catalogs) Validate() error {
	if len(c.Grades.Ranges) == 0 {
		return fmt.Errorf("grades.json: empty")
	}
	next := uint64(1)
	for _, r := range c.Grades.Ranges {
		if r.Start != next || r.End < r.Start {
			return fmt.Errorf("grades.json: grade %d range [%d,%d] leaves a gap at %d", r.Grade, r.Start, r.End, next)
		}
		if r.YieldPermille == 0 {
			return fmt.Errorf("grades.json: grade %d has no yield multiplier", r.Grade)
		}
		next = r.End + 1
	}
	if next != 101 {
		return fmt.Errorf("grades.json: ranges end at %d, want 100", next-1)
	}

	if len(c.Elves.Types) == 0 {
		return fmt.Errorf("elves.json: empty")
	}
	for _, t := range c.Elves.Types {
		d := c.Elves.ByType[t]
		for _, r := range c.Grades.Ranges {
			st, ok := d.Stats(r.Grade)
			if !ok {
				return fmt.Errorf("elves.json: %s (type %d) has no grade %d", d.Name, t, r.Grade)
			}
			if st.GrowthTime == 0 {
				return fmt.Errorf("elves.json: %s grade %d: growth_time must be positive", d.Name, r.Grade)
			}
			if limit := maxYieldBase(r.YieldPermille); st.YieldBase > limit {
				return fmt.Errorf("elves.json: %s grade %d: yield_base %d exceeds %d", d.Name, r.Grade, st.YieldBase, limit)
			}
		}
		if d.Requires != nil && d.Requires.MatureCount > 0 {
			if _, ok := c.Elves.ByType[d.Requires.ElfType]; !ok {
				return fmt.Errorf("elves.json: %s requires unknown type %d", d.Name, d.Requires.ElfType)
			}
		}
	}

	for _, id := range c.Props.IDs {
		p := c.Props.ByID[id]
		if p.Kind != PropFood && p.Kind != PropMedicine {
			return fmt.Errorf("props.json: prop %d: unknown kind %q", id, p.Kind)
		}
		if p.Currency != CurrencyGold && p.Currency != CurrencyUSDT {
			return fmt.Errorf("props.json: prop %d: unknown currency %q", id, p.Currency)
		}
	}

	for i, s := range c.Slots.Prices {
		if i > 0 && s.Capacity != c.Slots.Prices[i-1].Capacity+1 {
			return fmt.Errorf("slots.json: capacity %d does not follow %d", s.Capacity, c.Slots.Prices[i-1].Capacity)
		}
	}
	return nil
}

func (d ElfDef) Stats(grade uint64) (GradeStats, bool) {
	for _, g := range d.Grades {
		if g.Grade == grade {
			return g, true
		}
	}
	return GradeStats{}, false
}

// ForRoll returns the grade whose interval contains roll. Rolls outside every
// interval get the lowest grade.
func (g GradeCatalog) ForRoll(roll uint64) GradeRange {
	for _, r := range g.Ranges {
		if roll >= r.Start && roll <= r.End {
			return r
		}
	}
	return g.Ranges[0]
}

func (g GradeCatalog) Permille(grade uint64) uint64 {
	for _, r := range g.Ranges {
		if r.Grade == grade {
			return r.YieldPermille
		}
	}
	return 0
}

// Price returns the cost of growing a ranch to capacity.
func (s SlotCatalog) Price(capacity uint64) (uint64, bool) {
	for _, p := range s.Prices {
		if p.Capacity == capacity {
			return p.Price, true
		}
	}
	return 0, false
}

// Digest combines the per-file digests in a fixed order.
func (c *Catalogs) Digest() string {
	h := sha256.New()
	for _, d := range []string{c.Elves.Digest, c.Grades.Digest, c.Props.Digest, c.Slots.Digest} {
		h.Write([]byte(d))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Digests lists the per-file digests by catalog name.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		"elves":  c.Elves.Digest,
		"grades": c.Grades.Digest,
		"props":  c.Props.Digest,
		"slots":  c.Slots.Digest,
	}
}

type clientConfig struct {
	Elves  []ElfDef     `json:"elf_list"`
	Grades []GradeRange `json:"rand_list"`
	Props  []PropDef    `json:"store_list"`
	Slots  []SlotPrice  `json:"ranch_slot"`
}

// ClientJSON is the read-only config document clients render the shop from.
func (c *Catalogs) ClientJSON() ([]byte, error) {
	cfg := clientConfig{Grades: c.Grades.Ranges, Slots: c.Slots.Prices}
	for _, t := range c.Elves.Types {
		cfg.Elves = append(cfg.Elves, c.Elves.ByType[t])
	}
	for _, id := range c.Props.IDs {
		cfg.Props = append(cfg.Props, c.Props.ByID[id])
	}
	return json.Marshal(cfg)
}
