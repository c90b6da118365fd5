package ranch

import (
	"encoding/json"
	"fmt"

	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/model"
)

// PlayerState is the client view of one player: nonce, counters, balances,
// props and every ranch with its elves.
func (e *Engine) PlayerState(pid model.PlayerID) ([]byte, error) {
	p, ok, err := e.store.Load(pid)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", pid, err)
	}
	if !ok {
		return nil, protocol.Fail(protocol.CodePlayerNotFound)
	}
	if p.Data.Props == nil {
		p.Data.Props = map[uint64]uint64{}
	}
	if p.Data.Ranches == nil {
		p.Data.Ranches = []model.Ranch{}
	}
	return json.Marshal(p)
}

type QueueStats struct {
	Tick  uint64 `json:"tick"`
	Depth int    `json:"depth"`
}

func (e *Engine) QueueStats() QueueStats {
	return QueueStats{Tick: e.queue.Counter(), Depth: e.queue.Len()}
}

// ConfigJSON is the shop and rules document clients render from.
func (e *Engine) ConfigJSON() ([]byte, error) {
	return e.cats.ClientJSON()
}

// Preempt reports whether the runtime may stop after the current tick.
func (e *Engine) Preempt() bool {
	return e.queue.Counter()%e.cfg.Tuning.PreemptEvery == 0
}
