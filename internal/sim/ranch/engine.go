// Package ranch is the deterministic ranch simulation: command handling on top
// of the owner-keyed store and event-driven stat updates driven by advances.
package ranch

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/catalogs"
	"pumpelf.ai/internal/sim/entropy"
	"pumpelf.ai/internal/sim/events"
	"pumpelf.ai/internal/sim/logic/rates"
	"pumpelf.ai/internal/sim/model"
	"pumpelf.ai/internal/sim/settlement"
	"pumpelf.ai/internal/sim/store"
	"pumpelf.ai/internal/sim/tuning"
)

type Config struct {
	WorldID string
	Tuning  tuning.Tuning
}

// Observer receives a callback for every command result and handled event.
// Implementations must not call back into the engine.
type Observer interface {
	CommandApplied(kind protocol.Kind, code protocol.Code)
	EventHandled(kind events.Kind, rearmed bool)
	QueueChanged(tick uint64, depth int)
}

type nopObserver struct{}

func (nopObserver) CommandApplied(protocol.Kind, protocol.Code) {}
func (nopObserver) EventHandled(events.Kind, bool)              {}
func (nopObserver) QueueChanged(uint64, int)                    {}

type Option func(*Engine)

func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

func WithQueue(q events.Queue) Option { return func(e *Engine) { e.queue = q } }

func WithSettlement(s settlement.Sink) Option { return func(e *Engine) { e.sink = s } }

func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.log = l } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.obs = o } }

// Engine owns every piece of mutable simulation state. It is not safe for
// concurrent use: commands are applied one at a time.
type Engine struct {
	cfg    Config
	cats   *catalogs.Catalogs
	params rates.Params

	admin    model.PlayerID
	hasAdmin bool

	store  store.Store
	queue  events.Queue
	policy *events.Policy
	beacon entropy.Beacon
	sink   settlement.Sink

	log logrus.FieldLogger
	obs Observer
}

func New(cfg Config, cats *catalogs.Catalogs, opts ...Option) (*Engine, error) {
	if cats == nil {
		return nil, fmt.Errorf("ranch: nil catalogs")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("ranch: tuning: %w", err)
	}
	if cfg.WorldID == "" {
		cfg.WorldID = "ranch"
	}

	e := &Engine{
		cfg:    cfg,
		cats:   cats,
		params: rates.FromTuning(cfg.Tuning),
	}
	if cfg.Tuning.Admin != "" {
		id, err := model.ParsePlayerID(cfg.Tuning.Admin)
		if err != nil {
			return nil, fmt.Errorf("ranch: admin: %w", err)
		}
		e.admin, e.hasAdmin = id, true
	}
	for _, o := range opts {
		o(e)
	}

	if e.store == nil {
		e.store = store.NewMemory()
	}
	if e.queue == nil {
		e.queue = events.NewDeltaQueue()
	}
	if e.sink == nil {
		e.sink = &settlement.Ledger{}
	}
	if e.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.log = l
	}
	if e.obs == nil {
		e.obs = nopObserver{}
	}
	e.policy = events.NewPolicy(e.queue, e.params.FoulingPeriodUnits)
	return e, nil
}

func (e *Engine) WorldID() string { return e.cfg.WorldID }

func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cats }

func (e *Engine) Tuning() tuning.Tuning { return e.cfg.Tuning }

func (e *Engine) Store() store.Store { return e.store }

func (e *Engine) Queue() events.Queue { return e.queue }

func (e *Engine) Beacon() entropy.Beacon { return e.beacon }

func (e *Engine) Settlement() settlement.Sink { return e.sink }

func (e *Engine) Tick() uint64 { return e.queue.Counter() }

func (e *Engine) isAdmin(pid model.PlayerID) bool {
	return e.hasAdmin && pid == e.admin
}
