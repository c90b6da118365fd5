package ranch

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"pumpelf.ai/internal/sim/model"
	"pumpelf.ai/internal/sim/store"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

// StateDigest hashes everything a replay must reproduce: the tick, the
// beacon, the pending events in delivery order and every player in id
// order.
func (e *Engine) StateDigest() (string, error) {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, e.queue.Counter())

	h.Write([]byte{byte(e.beacon.State)})
	h.Write(e.beacon.Commitment[:])
	digestWriteU64(h, &tmp, e.beacon.Seed)

	evs := e.queue.Events()
	digestWriteU64(h, &tmp, uint64(len(evs)))
	for _, ev := range evs {
		digestWriteU64(h, &tmp, ev.Owner[0])
		digestWriteU64(h, &tmp, ev.Owner[1])
		h.Write([]byte{byte(ev.Kind)})
		digestWriteU64(h, &tmp, ev.RanchID)
		digestWriteU64(h, &tmp, ev.ElfID)
		digestWriteU64(h, &tmp, ev.Countdown)
	}

	players, err := store.LoadAll(e.store)
	if err != nil {
		return "", err
	}
	digestWriteU64(h, &tmp, uint64(len(players)))
	for i := range players {
		digestPlayer(h, &tmp, &players[i])
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func digestPlayer(h hashWriter, tmp *[8]byte, p *model.Player) {
	digestWriteU64(h, tmp, p.ID[0])
	digestWriteU64(h, tmp, p.ID[1])
	digestWriteU64(h, tmp, p.Nonce)

	d := &p.Data
	digestWriteU64(h, tmp, d.GoldCount)
	digestWriteU64(h, tmp, d.CleanCount)
	digestWriteU64(h, tmp, d.FeedCount)
	digestWriteU64(h, tmp, d.GoldBalance)
	digestWriteU64(h, tmp, d.USDTBalance)
	digestWriteU64(h, tmp, d.NextElfID)

	ids := p.PropIDs()
	digestWriteU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		digestWriteU64(h, tmp, id)
		digestWriteU64(h, tmp, d.Props[id])
	}

	digestWriteU64(h, tmp, uint64(len(d.Ranches)))
	for _, r := range d.Ranches {
		digestWriteU64(h, tmp, r.ID)
		digestWriteU64(h, tmp, r.Fouling)
		digestWriteU64(h, tmp, r.Slots)
		digestWriteU64(h, tmp, uint64(len(r.Elves)))
		for _, el := range r.Elves {
			digestWriteU64(h, tmp, el.ID)
			digestWriteString(h, tmp, el.Name)
			digestWriteU64(h, tmp, el.Type)
			digestWriteU64(h, tmp, el.Grade)
			digestWriteU64(h, tmp, el.Vitality)
			digestWriteU64(h, tmp, el.Hunger)
			digestWriteU64(h, tmp, el.Growth)
			digestWriteU64(h, tmp, el.GrowthTime)
			digestWriteU64(h, tmp, el.Yield)
			digestWriteU64(h, tmp, el.MaxYield)
			digestWriteU64(h, tmp, el.YieldBase)
		}
	}
}
