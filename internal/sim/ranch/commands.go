package ranch

import (
	"errors"
	"fmt"

	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/catalogs"
	"pumpelf.ai/internal/sim/entropy"
	"pumpelf.ai/internal/sim/logic/mathx"
	"pumpelf.ai/internal/sim/model"
	"pumpelf.ai/internal/sim/settlement"
)

// Every command follows the same shape: load the actor (a private copy),
// check the nonce, validate, mutate the copy, save it, then schedule. A
// rejected command returns before Save so nothing it touched persists.

const firstRanchID = 1

func (e *Engine) begin(pid model.PlayerID, nonce uint64) (model.Player, error) {
	p, ok, err := e.store.Load(pid)
	if err != nil {
		return p, fmt.Errorf("load %s: %w", pid, err)
	}
	if !ok {
		return p, protocol.Fail(protocol.CodePlayerNotFound)
	}
	if nonce != p.Nonce {
		return p, protocol.Errorf(protocol.CodeNonceMismatch, "expected nonce %d, got %d", p.Nonce, nonce)
	}
	p.Nonce++
	return p, nil
}

func (e *Engine) commit(p model.Player) error {
	if err := e.store.Save(p); err != nil {
		return fmt.Errorf("save %s: %w", p.ID, err)
	}
	return nil
}

func ranchOf(p *model.Player, ranchID uint64) (*model.Ranch, error) {
	r := p.Ranch(ranchID)
	if r == nil {
		return nil, protocol.Errorf(protocol.CodeRanchNotFound, "ranch %d", ranchID)
	}
	return r, nil
}

func elfOf(p *model.Player, ranchID, elfID uint64) (*model.Ranch, *model.Elf, error) {
	r, err := ranchOf(p, ranchID)
	if err != nil {
		return nil, nil, err
	}
	el := r.Elf(elfID)
	if el == nil {
		return nil, nil, protocol.Errorf(protocol.CodeElfNotFound, "elf %d in ranch %d", elfID, ranchID)
	}
	return r, el, nil
}

func debit(balance *uint64, price uint64) error {
	if *balance < price {
		return protocol.Errorf(protocol.CodeInsufficientBalance, "need %d, have %d", price, *balance)
	}
	*balance -= price
	return nil
}

func (e *Engine) seedElf(pid model.PlayerID, ranchID, elfID uint64) {
	e.policy.SeedElf(pid, ranchID, elfID)
}

func (e *Engine) seedRanch(pid model.PlayerID, r *model.Ranch) {
	for _, el := range r.Elves {
		e.policy.SeedElf(pid, r.ID, el.ID)
	}
}

// InstallPlayer onboards a new player with the starting balance and one
// empty ranch. The first nonce is 0.
func (e *Engine) InstallPlayer(pid model.PlayerID, nonce uint64) error {
	_, ok, err := e.store.Load(pid)
	if err != nil {
		return fmt.Errorf("load %s: %w", pid, err)
	}
	if ok {
		return protocol.Fail(protocol.CodePlayerExists)
	}
	if nonce != 0 {
		return protocol.Errorf(protocol.CodeNonceMismatch, "expected nonce 0, got %d", nonce)
	}

	p := model.NewPlayer(pid, e.cfg.Tuning.StartingBalance)
	p.Nonce = 1
	p.Data.Ranches = []model.Ranch{{ID: firstRanchID, Slots: e.cfg.Tuning.InitialSlots}}
	return e.commit(p)
}

// BuyElf buys one elf of elfType into a ranch. The grade is drawn from the
// beacon seed salted with the buyer, the nonce and the new elf's id.
func (e *Engine) BuyElf(pid model.PlayerID, nonce, ranchID, elfType uint64) (model.Elf, error) {
	p, err := e.begin(pid, nonce)
	if err != nil {
		return model.Elf{}, err
	}
	r, err := ranchOf(&p, ranchID)
	if err != nil {
		return model.Elf{}, err
	}
	def, ok := e.cats.Elves.ByType[elfType]
	if !ok {
		return model.Elf{}, protocol.Errorf(protocol.CodeIndexOutOfBounds, "elf type %d", elfType)
	}
	progress := catalogs.Progress{
		Mature:     r.MatureCount,
		CleanCount: p.Data.CleanCount,
		FeedCount:  p.Data.FeedCount,
		GoldCount:  p.Data.GoldCount,
	}
	if !def.Requires.Satisfied(progress) {
		return model.Elf{}, protocol.Errorf(protocol.CodeIneligible, "%s locked", def.Name)
	}
	if r.Full() {
		return model.Elf{}, protocol.Errorf(protocol.CodeRanchFull, "ranch %d holds %d", ranchID, r.Slots)
	}
	if err := debit(&p.Data.GoldBalance, def.BuyPrice); err != nil {
		return model.Elf{}, err
	}

	id := p.Data.NextElfID + 1
	roll := entropy.Draw(e.beacon.Seed, 100, pid[0], pid[1], nonce, id)
	grade := e.cats.Grades.ForRoll(roll).Grade
	st, ok := def.Stats(grade)
	if !ok {
		return model.Elf{}, fmt.Errorf("catalog: %s has no grade %d", def.Name, grade)
	}
	el := model.Elf{
		ID:         id,
		Name:       def.Name,
		Type:       def.Type,
		Grade:      grade,
		Vitality:   model.StatMax,
		Hunger:     model.StatMax,
		GrowthTime: st.GrowthTime,
		MaxYield:   st.MaxYieldBase * st.YieldBase,
		YieldBase:  st.YieldBase,
	}
	p.Data.NextElfID = id
	r.Elves = append(r.Elves, el)

	if err := e.commit(p); err != nil {
		return model.Elf{}, err
	}
	e.seedElf(pid, ranchID, id)
	return el, nil
}

func (e *Engine) useProp(p *model.Player, propID uint64, kind string) (catalogs.PropDef, error) {
	def, ok := e.cats.Props.ByID[propID]
	if !ok || def.Kind != kind {
		return def, protocol.Errorf(protocol.CodePropNotFound, "prop %d is not %s", propID, kind)
	}
	if !p.TakeProp(propID) {
		return def, protocol.Errorf(protocol.CodeInsufficientResource, "no %s left", def.Name)
	}
	return def, nil
}

// FeedElf consumes one food prop and restores hunger.
func (e *Engine) FeedElf(pid model.PlayerID, nonce, ranchID, elfID, propID uint64) error {
	p, err := e.begin(pid, nonce)
	if err != nil {
		return err
	}
	_, el, err := elfOf(&p, ranchID, elfID)
	if err != nil {
		return err
	}
	def, err := e.useProp(&p, propID, catalogs.PropFood)
	if err != nil {
		return err
	}
	el.Hunger = mathx.SatAdd(el.Hunger, def.Amount, model.StatMax)
	p.Data.FeedCount++

	if err := e.commit(p); err != nil {
		return err
	}
	e.seedElf(pid, ranchID, elfID)
	return nil
}

// TreatElf consumes one medicine prop and restores vitality.
func (e *Engine) TreatElf(pid model.PlayerID, nonce, ranchID, elfID, propID uint64) error {
	p, err := e.begin(pid, nonce)
	if err != nil {
		return err
	}
	_, el, err := elfOf(&p, ranchID, elfID)
	if err != nil {
		return err
	}
	def, err := e.useProp(&p, propID, catalogs.PropMedicine)
	if err != nil {
		return err
	}
	el.Vitality = mathx.SatAdd(el.Vitality, def.Amount, model.StatMax)

	if err := e.commit(p); err != nil {
		return err
	}
	e.seedElf(pid, ranchID, elfID)
	return nil
}

// CleanRanch resets fouling and restarts every chain in the ranch.
func (e *Engine) CleanRanch(pid model.PlayerID, nonce, ranchID uint64) error {
	p, err := e.begin(pid, nonce)
	if err != nil {
		return err
	}
	r, err := ranchOf(&p, ranchID)
	if err != nil {
		return err
	}
	r.Fouling = 0
	p.Data.CleanCount++

	if err := e.commit(p); err != nil {
		return err
	}
	e.seedRanch(pid, r)
	return nil
}

// CollectGold moves an elf's stored yield into the gold balance and returns
// the amount collected.
func (e *Engine) CollectGold(pid model.PlayerID, nonce, ranchID, elfID uint64) (uint64, error) {
	p, err := e.begin(pid, nonce)
	if err != nil {
		return 0, err
	}
	_, el, err := elfOf(&p, ranchID, elfID)
	if err != nil {
		return 0, err
	}
	amount := el.Yield
	el.Yield = 0
	p.Data.GoldBalance += amount
	p.Data.GoldCount += amount

	if err := e.commit(p); err != nil {
		return 0, err
	}
	e.seedElf(pid, ranchID, elfID)
	return amount, nil
}

// SellElf removes an elf and credits its sell price plus uncollected yield.
// Its pending events end on their next delivery.
func (e *Engine) SellElf(pid model.PlayerID, nonce, ranchID, elfID uint64) (uint64, error) {
	p, err := e.begin(pid, nonce)
	if err != nil {
		return 0, err
	}
	r, err := ranchOf(&p, ranchID)
	if err != nil {
		return 0, err
	}
	el, ok := r.RemoveElf(elfID)
	if !ok {
		return 0, protocol.Errorf(protocol.CodeElfNotFound, "elf %d in ranch %d", elfID, ranchID)
	}
	var price uint64
	if def, ok := e.cats.Elves.ByType[el.Type]; ok {
		price = def.SellPrice
	}
	p.Data.GoldBalance += price + el.Yield
	p.Data.GoldCount += el.Yield

	if err := e.commit(p); err != nil {
		return 0, err
	}
	return price + el.Yield, nil
}

// BuySlot grows a ranch's capacity by one.
func (e *Engine) BuySlot(pid model.PlayerID, nonce, ranchID uint64) error {
	p, err := e.begin(pid, nonce)
	if err != nil {
		return err
	}
	r, err := ranchOf(&p, ranchID)
	if err != nil {
		return err
	}
	if r.Slots >= e.cfg.Tuning.MaxSlots {
		return protocol.Errorf(protocol.CodeMaxSlots, "ranch %d already has %d slots", ranchID, r.Slots)
	}
	price, ok := e.cats.Slots.Price(r.Slots + 1)
	if !ok {
		return protocol.Errorf(protocol.CodeMaxSlots, "no price for %d slots", r.Slots+1)
	}
	if err := debit(&p.Data.GoldBalance, price); err != nil {
		return err
	}
	r.Slots++
	return e.commit(p)
}

func balanceFor(p *model.Player, currency string) (*uint64, bool) {
	switch currency {
	case protocol.CurrencyGold, "":
		return &p.Data.GoldBalance, true
	case protocol.CurrencyUSDT:
		return &p.Data.USDTBalance, true
	default:
		return nil, false
	}
}

// BuyProp buys one prop, paid in the prop's own currency.
func (e *Engine) BuyProp(pid model.PlayerID, nonce, propID uint64, currency string) error {
	p, err := e.begin(pid, nonce)
	if err != nil {
		return err
	}
	def, ok := e.cats.Props.ByID[propID]
	if !ok {
		return protocol.Errorf(protocol.CodePropNotFound, "prop %d", propID)
	}
	if currency == "" {
		currency = protocol.CurrencyGold
	}
	if currency != def.Currency {
		return protocol.Errorf(protocol.CodeWrongCurrency, "%s is sold for %s", def.Name, def.Currency)
	}
	bal, _ := balanceFor(&p, currency)
	if err := debit(bal, def.Price); err != nil {
		return err
	}
	p.AddProp(propID, 1)
	return e.commit(p)
}

// Deposit credits a player's balance. Only the admin may deposit.
func (e *Engine) Deposit(pid model.PlayerID, nonce uint64, target model.PlayerID, amount uint64, currency string) error {
	if !e.isAdmin(pid) {
		return protocol.Fail(protocol.CodeAdminRequired)
	}
	admin, err := e.begin(pid, nonce)
	if err != nil {
		return err
	}

	credit := func(p *model.Player) error {
		bal, ok := balanceFor(p, currency)
		if !ok {
			return protocol.Errorf(protocol.CodeWrongCurrency, "currency %q", currency)
		}
		*bal += amount
		return nil
	}

	if target == pid {
		if err := credit(&admin); err != nil {
			return err
		}
		return e.commit(admin)
	}

	t, ok, err := e.store.Load(target)
	if err != nil {
		return fmt.Errorf("load %s: %w", target, err)
	}
	if !ok {
		return protocol.Errorf(protocol.CodePlayerNotFound, "deposit target %s", target)
	}
	if err := credit(&t); err != nil {
		return err
	}
	// The admin nonce advances first; a failed credit puts the admin back.
	prior := admin.Clone()
	prior.Nonce--
	if err := e.commit(admin); err != nil {
		return err
	}
	if err := e.commit(t); err != nil {
		if rerr := e.commit(prior); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// Withdraw debits gold and hands a withdrawal intent to the settlement sink.
func (e *Engine) Withdraw(pid model.PlayerID, nonce, amount uint64, address string) error {
	p, err := e.begin(pid, nonce)
	if err != nil {
		return err
	}
	sender, err := settlement.EncodeAddress(address)
	if err != nil {
		return protocol.Errorf(protocol.CodeBadCommand, "%v", err)
	}
	if err := debit(&p.Data.GoldBalance, amount); err != nil {
		return err
	}
	if err := e.commit(p); err != nil {
		return err
	}
	e.sink.Append(settlement.NewWithdrawInfo(nonce, 0, 0, amount, sender))
	return nil
}

// Advance accepts the reveal for the outstanding commitment, installs the
// next one and delivers every due event. A rejected reveal leaves the
// beacon, the queue and the store untouched.
func (e *Engine) Advance(reveal [4]uint64, next [32]byte) (int, error) {
	if err := e.beacon.Accept(reveal, next); err != nil {
		return 0, protocol.Errorf(protocol.CodeRevealMismatch, "%v", err)
	}
	n := e.queue.DrainDue(e.handle)
	e.obs.QueueChanged(e.queue.Counter(), e.queue.Len())
	return n, nil
}
