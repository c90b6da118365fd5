package ranch

import (
	"bytes"
	"testing"

	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/entropy"
	"pumpelf.ai/internal/sim/events"
)

func reveal(i uint64) [4]uint64 { return [4]uint64{i, i * 3, i * 7, 0xfeed} }

func tickCmd(i uint64) protocol.Command {
	c := entropy.Commit(reveal(i + 1))
	return protocol.Command{
		Kind:       protocol.KindTick,
		Player:     admin,
		Reveal:     reveal(i),
		Commitment: entropy.FormatCommitment(c),
	}
}

// script is a fixed session: onboarding, a purchase, care actions and a few
// hundred ticks with a commit-reveal chain.
func script() []protocol.Command {
	a := [2]uint64(alice)
	tgt := [2]uint64(alice)
	var cmds []protocol.Command
	var tick uint64
	push := func(c protocol.Command) { cmds = append(cmds, c) }
	ticks := func(n int) {
		for i := 0; i < n; i++ {
			push(tickCmd(tick))
			tick++
		}
	}

	push(protocol.Command{Kind: protocol.KindInstallPlayer, Player: admin, Nonce: 0})
	push(protocol.Command{Kind: protocol.KindInstallPlayer, Player: a, Nonce: 0})
	ticks(3)
	push(protocol.Command{Kind: protocol.KindDeposit, Player: admin, Nonce: 1, Target: &tgt, Amount: 2000})
	push(protocol.Command{Kind: protocol.KindBuyElf, Player: a, Nonce: 1, RanchID: 1, ElfType: 1})
	push(protocol.Command{Kind: protocol.KindBuySlot, Player: a, Nonce: 2, RanchID: 1})
	push(protocol.Command{Kind: protocol.KindBuyElf, Player: a, Nonce: 3, RanchID: 1, ElfType: 1})
	ticks(200)
	push(protocol.Command{Kind: protocol.KindBuyProp, Player: a, Nonce: 4, PropID: 1, Currency: protocol.CurrencyGold})
	push(protocol.Command{Kind: protocol.KindFeedElf, Player: a, Nonce: 5, RanchID: 1, ElfID: 1, PropID: 1})
	push(protocol.Command{Kind: protocol.KindCleanRanch, Player: a, Nonce: 6, RanchID: 1})
	ticks(500)
	push(protocol.Command{Kind: protocol.KindCollectGold, Player: a, Nonce: 7, RanchID: 1, ElfID: 1})
	push(protocol.Command{Kind: protocol.KindSellElf, Player: a, Nonce: 8, RanchID: 1, ElfID: 2})
	ticks(40)
	return cmds
}

func run(t *testing.T, cmds []protocol.Command) *Engine {
	t.Helper()
	e := newTestEngine(t)
	for i, c := range cmds {
		if err := e.Process(c); err != nil {
			t.Fatalf("cmd %d (%s): %v", i, c.Kind, err)
		}
	}
	return e
}

func TestReplayIsDeterministic(t *testing.T) {
	cmds := script()
	a := run(t, cmds)
	b := run(t, cmds)

	if mustDigest(t, a) != mustDigest(t, b) {
		t.Fatalf("digests diverged")
	}
	sa, err := a.PlayerState(alice)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	sb, _ := b.PlayerState(alice)
	if !bytes.Equal(sa, sb) {
		t.Fatalf("player state diverged:\n%s\n%s", sa, sb)
	}
	if a.Tick() != 743 {
		t.Fatalf("tick = %d, want 743", a.Tick())
	}
}

func TestDigestTracksState(t *testing.T) {
	e := newTestEngine(t)
	d0 := mustDigest(t, e)
	if err := e.InstallPlayer(alice, 0); err != nil {
		t.Fatalf("install: %v", err)
	}
	d1 := mustDigest(t, e)
	if d0 == d1 {
		t.Fatalf("digest ignored a new player")
	}
	advance(t, e, 1)
	if mustDigest(t, e) == d1 {
		t.Fatalf("digest ignored the tick")
	}
}

func TestTickRequiresAdmin(t *testing.T) {
	e := newTestEngine(t)
	cmd := tickCmd(0)
	cmd.Player = alice
	mustCode(t, e.Process(cmd), protocol.CodeAdminRequired)
	if e.Tick() != 0 {
		t.Fatalf("rejected tick advanced the counter")
	}

	cmd.Player = admin
	cmd.Commitment = "zz"
	mustCode(t, e.Process(cmd), protocol.CodeBadCommand)

	if err := e.Process(tickCmd(0)); err != nil {
		t.Fatalf("admin tick: %v", err)
	}
	if e.Beacon().State != entropy.AwaitingReveal {
		t.Fatalf("commitment not installed")
	}
	bad := tickCmd(5)
	mustCode(t, e.Process(bad), protocol.CodeRevealMismatch)
	if err := e.Process(tickCmd(1)); err != nil {
		t.Fatalf("next tick: %v", err)
	}
	if e.Tick() != 2 {
		t.Fatalf("tick = %d, want 2", e.Tick())
	}
}

func TestProcessRejectsMalformedCommands(t *testing.T) {
	e := newTestEngine(t)
	mustCode(t, e.Process(protocol.Command{Kind: "dance", Player: alice}), protocol.CodeBadCommand)
	mustCode(t, e.Process(protocol.Command{Kind: protocol.KindDeposit, Player: admin}), protocol.CodeBadCommand)
}

func TestSelfDepositIsOneUpdate(t *testing.T) {
	e := newTestEngine(t)
	if err := e.InstallPlayer(admin, 0); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := e.Deposit(admin, 1, admin, 30, ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	p := mustLoad(t, e, admin)
	if p.Nonce != 2 || p.Data.GoldBalance != 150 {
		t.Fatalf("nonce=%d balance=%d", p.Nonce, p.Data.GoldBalance)
	}
	mustCode(t, e.Deposit(admin, 2, admin, 30, "doge"), protocol.CodeWrongCurrency)
}

func TestSnapshotRoundTrip(t *testing.T) {
	cmds := script()
	half := len(cmds) / 2
	src := run(t, cmds[:half])
	if err := src.Withdraw(alice, mustLoad(t, src, alice).Nonce, 1, "0x00000000000000000000000000000000000000aa"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	snap, err := src.ExportSnapshot()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newTestEngine(t)
	if err := dst.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if mustDigest(t, src) != mustDigest(t, dst) {
		t.Fatalf("restored digest differs")
	}
	if dst.Settlement().(interface{ Len() int }).Len() != 1 {
		t.Fatalf("pending settlement not restored")
	}

	rest := cmds[half:]
	for _, e := range []*Engine{src, dst} {
		for i, c := range rest {
			if c.Kind != protocol.KindTick {
				continue
			}
			if err := e.Process(c); err != nil {
				t.Fatalf("tick %d: %v", i, err)
			}
		}
	}
	if mustDigest(t, src) != mustDigest(t, dst) {
		t.Fatalf("digests diverged after resuming")
	}

	snap.Header.StateDigest = "00"
	if err := newTestEngine(t).ImportSnapshot(snap); err == nil {
		t.Fatalf("expected digest mismatch")
	}
}

type countingObserver struct {
	commands map[protocol.Code]int
	handled  map[events.Kind]int
	depth    int
}

func (o *countingObserver) CommandApplied(_ protocol.Kind, code protocol.Code) { o.commands[code]++ }
func (o *countingObserver) EventHandled(kind events.Kind, _ bool)              { o.handled[kind]++ }
func (o *countingObserver) QueueChanged(_ uint64, depth int)                   { o.depth = depth }

func TestObserverSeesCommandsAndEvents(t *testing.T) {
	e := newTestEngine(t)
	o := &countingObserver{commands: map[protocol.Code]int{}, handled: map[events.Kind]int{}}
	WithObserver(o)(e)

	a := [2]uint64(alice)
	_ = e.Process(protocol.Command{Kind: protocol.KindInstallPlayer, Player: a})
	_ = e.Process(protocol.Command{Kind: protocol.KindBuyElf, Player: a, Nonce: 1, RanchID: 1, ElfType: 1})
	_ = e.Process(protocol.Command{Kind: protocol.KindBuyElf, Player: a, Nonce: 2, RanchID: 1, ElfType: 1})
	_ = e.Process(protocol.Command{Kind: protocol.KindTick, Player: admin})

	if o.commands[protocol.CodeOK] != 3 || o.commands[protocol.CodeRanchFull] != 1 {
		t.Fatalf("unexpected command counts: %v", o.commands)
	}
	if o.handled[events.KindGrowth] != 1 || o.handled[events.KindFouling] != 0 || o.depth != 6 {
		t.Fatalf("unexpected event counts: %v depth=%d", o.handled, o.depth)
	}
}
