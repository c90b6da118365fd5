package ranch

import (
	"fmt"

	"pumpelf.ai/internal/persistence/snapshot"
	"pumpelf.ai/internal/sim/entropy"
	"pumpelf.ai/internal/sim/events"
	"pumpelf.ai/internal/sim/model"
	"pumpelf.ai/internal/sim/settlement"
	"pumpelf.ai/internal/sim/store"
)

// ExportSnapshot captures the full engine state at the current tick.
func (e *Engine) ExportSnapshot() (snapshot.SnapshotV1, error) {
	digest, err := e.StateDigest()
	if err != nil {
		return snapshot.SnapshotV1{}, err
	}
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			WorldID:       e.cfg.WorldID,
			Tick:          e.queue.Counter(),
			CatalogDigest: e.cats.Digest(),
			StateDigest:   digest,
		},
		Beacon: snapshot.BeaconV1{
			State:      uint8(e.beacon.State),
			Commitment: e.beacon.Commitment,
			Seed:       e.beacon.Seed,
		},
		Queue: snapshot.QueueV1{Counter: e.queue.Counter()},
	}
	for _, ev := range e.queue.Events() {
		snap.Queue.Events = append(snap.Queue.Events, snapshot.EventV1{
			Owner:     ev.Owner,
			Kind:      uint8(ev.Kind),
			RanchID:   ev.RanchID,
			ElfID:     ev.ElfID,
			Countdown: ev.Countdown,
		})
	}

	players, err := store.LoadAll(e.store)
	if err != nil {
		return snapshot.SnapshotV1{}, err
	}
	for i := range players {
		snap.Players = append(snap.Players, exportPlayer(&players[i]))
	}

	if l, ok := e.sink.(*settlement.Ledger); ok {
		for _, w := range l.Pending() {
			snap.Settlement = append(snap.Settlement, snapshot.WithdrawV1(w))
		}
	}
	return snap, nil
}

func exportPlayer(p *model.Player) snapshot.PlayerV1 {
	out := snapshot.PlayerV1{
		ID:          p.ID,
		Nonce:       p.Nonce,
		GoldCount:   p.Data.GoldCount,
		CleanCount:  p.Data.CleanCount,
		FeedCount:   p.Data.FeedCount,
		GoldBalance: p.Data.GoldBalance,
		USDTBalance: p.Data.USDTBalance,
		NextElfID:   p.Data.NextElfID,
	}
	for _, id := range p.PropIDs() {
		out.Props = append(out.Props, snapshot.PropCountV1{ID: id, Count: p.Data.Props[id]})
	}
	for _, r := range p.Data.Ranches {
		rv := snapshot.RanchV1{ID: r.ID, Fouling: r.Fouling, Slots: r.Slots}
		for _, el := range r.Elves {
			rv.Elves = append(rv.Elves, snapshot.ElfV1(el))
		}
		out.Ranches = append(out.Ranches, rv)
	}
	return out
}

func importPlayer(in snapshot.PlayerV1) model.Player {
	p := model.NewPlayer(in.ID, in.GoldBalance)
	p.Nonce = in.Nonce
	p.Data.GoldCount = in.GoldCount
	p.Data.CleanCount = in.CleanCount
	p.Data.FeedCount = in.FeedCount
	p.Data.USDTBalance = in.USDTBalance
	p.Data.NextElfID = in.NextElfID
	for _, pc := range in.Props {
		p.AddProp(pc.ID, pc.Count)
	}
	for _, rv := range in.Ranches {
		r := model.Ranch{ID: rv.ID, Fouling: rv.Fouling, Slots: rv.Slots}
		for _, el := range rv.Elves {
			r.Elves = append(r.Elves, model.Elf(el))
		}
		p.Data.Ranches = append(p.Data.Ranches, r)
	}
	return p
}

// ImportSnapshot replaces the engine state with snap and checks the result
// against the digest recorded in its header.
func (e *Engine) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("snapshot version %d", snap.Header.Version)
	}
	if d := e.cats.Digest(); snap.Header.CatalogDigest != "" && snap.Header.CatalogDigest != d {
		return fmt.Errorf("snapshot catalogs %s do not match loaded catalogs %s", snap.Header.CatalogDigest, d)
	}

	for _, pv := range snap.Players {
		if err := e.store.Save(importPlayer(pv)); err != nil {
			return fmt.Errorf("restore player %v: %w", pv.ID, err)
		}
	}

	evs := make([]events.Event, 0, len(snap.Queue.Events))
	for _, ev := range snap.Queue.Events {
		evs = append(evs, events.Event{
			Identity: events.Identity{
				Owner:   model.PlayerID(ev.Owner),
				Kind:    events.Kind(ev.Kind),
				RanchID: ev.RanchID,
				ElfID:   ev.ElfID,
			},
			Countdown: ev.Countdown,
		})
	}
	e.queue.Restore(snap.Queue.Counter, evs)

	e.beacon = entropy.Beacon{
		State:      entropy.State(snap.Beacon.State),
		Commitment: snap.Beacon.Commitment,
		Seed:       snap.Beacon.Seed,
	}

	if l, ok := e.sink.(*settlement.Ledger); ok {
		infos := make([]settlement.WithdrawInfo, 0, len(snap.Settlement))
		for _, w := range snap.Settlement {
			infos = append(infos, settlement.WithdrawInfo(w))
		}
		l.Restore(infos)
	}

	if snap.Header.StateDigest != "" {
		got, err := e.StateDigest()
		if err != nil {
			return err
		}
		if got != snap.Header.StateDigest {
			return fmt.Errorf("snapshot digest mismatch: header %s, restored %s", snap.Header.StateDigest, got)
		}
	}
	return nil
}
