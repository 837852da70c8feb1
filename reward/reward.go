// Package reward is the embeddable façade over the reward engine: one call
// assembles the ledger, catalog, dispatcher, and realtime bridge.
package reward

import (
	"log/slog"

	mem "rewardcore/adapters/memory"
	"rewardcore/catalog"
	"rewardcore/core"
	"rewardcore/engine"
	"rewardcore/leaderboard"
	"rewardcore/realtime"
)

// Option configures the reward service builder.
type Option func(*builder)

type builder struct {
	ledger     engine.Ledger
	cat        *catalog.Catalog
	mode       engine.DispatchMode
	hub        *realtime.Hub
	board      leaderboard.Board
	aggregates engine.AggregateSource
	log        *slog.Logger
}

// WithLedger sets the persistence adapter.
func WithLedger(l engine.Ledger) Option { return func(b *builder) { b.ledger = l } }

// WithCatalog sets the reward definitions.
func WithCatalog(c *catalog.Catalog) Option { return func(b *builder) { b.cat = c } }

// WithDispatchMode selects sync or async notification dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(b *builder) { b.mode = m } }

// WithRealtime wires a realtime hub to receive all notifications.
func WithRealtime(h *realtime.Hub) Option { return func(b *builder) { b.hub = h } }

// WithLeaderboard keeps the given board current from XP notifications.
func WithLeaderboard(board leaderboard.Board) Option {
	return func(b *builder) { b.board = board }
}

// WithAggregates sets the collaborator aggregate source.
func WithAggregates(a engine.AggregateSource) Option { return func(b *builder) { b.aggregates = a } }

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option { return func(b *builder) { b.log = log } }

// notificationTypes every hub bridge forwards.
var notificationTypes = []core.NotificationType{
	core.NoteXPAdded,
	core.NoteLevelUp,
	core.NoteRewardGranted,
	core.NoteBadgeUnlocked,
	core.NoteAchievementUnlocked,
}

// New builds a configured RewardService. Defaults when not provided:
//   - ledger: in-memory
//   - catalog: empty (no definitions beyond the rotating daily challenge)
//   - dispatch: async
func New(opts ...Option) *engine.RewardService {
	b := &builder{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(b)
	}
	if b.ledger == nil {
		b.ledger = mem.New()
	}
	if b.cat == nil {
		empty, err := catalog.New(nil)
		if err != nil {
			panic(err)
		}
		b.cat = empty
	}

	dispatcher := engine.NewDispatcher(b.mode)

	var svcOpts []engine.Option
	if b.aggregates != nil {
		svcOpts = append(svcOpts, engine.WithAggregates(b.aggregates))
	}
	if b.log != nil {
		svcOpts = append(svcOpts, engine.WithLogger(b.log))
	}
	svc := engine.NewRewardService(b.ledger, b.cat, dispatcher, svcOpts...)

	if b.hub != nil {
		for _, typ := range notificationTypes {
			dispatcher.Subscribe(typ, b.hub.Broadcast)
		}
	}
	if b.board != nil {
		leaderboard.Track(dispatcher, b.board)
	}
	return svc
}
