// Package store defines the owner-keyed aggregate store the engine reads and
// writes players through.
package store

import (
	"sync"

	"pumpelf.ai/internal/sim/model"
)

// Store reads and writes whole player aggregates. Load returns a copy the
// caller may mutate freely; nothing is visible to other readers until Save.
type Store interface {
	Load(id model.PlayerID) (model.Player, bool, error)
	Save(p model.Player) error
	// IDs lists every stored player in ascending order.
	IDs() ([]model.PlayerID, error)
}

type Memory struct {
	mu      sync.RWMutex
	players map[model.PlayerID]model.Player
}

func NewMemory() *Memory {
	return &Memory{players: map[model.PlayerID]model.Player{}}
}

func (m *Memory) Load(id model.PlayerID) (model.Player, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		return model.Player{}, false, nil
	}
	return p.Clone(), true, nil
}

func (m *Memory) Save(p model.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.ID] = p.Clone()
	return nil
}

func (m *Memory) IDs() ([]model.PlayerID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PlayerID, 0, len(m.players))
	for id := range m.players {
		out = append(out, id)
	}
	model.SortIDs(out)
	return out, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// LoadAll returns every player in id order.
func LoadAll(s Store) ([]model.Player, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	out := make([]model.Player, 0, len(ids))
	for _, id := range ids {
		p, ok, err := s.Load(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}
