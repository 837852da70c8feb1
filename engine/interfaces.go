package engine

import (
	"context"

	"rewardcore/core"
)

// Ledger abstracts persistence for the reward side of user state: XP, level,
// balance, and the immutable grant history.
type Ledger interface {
	// AddXP applies a positive XP delta under per-user serialization and
	// returns the new progress with the level recomputed.
	AddXP(ctx context.Context, user core.UserID, delta int64) (core.Progress, error)
	// AdjustBalance applies a signed delta, failing with
	// core.ErrInsufficientFunds when the result would go below zero. No
	// caller ever observes a negative balance, even transiently.
	AdjustBalance(ctx context.Context, user core.UserID, delta int64) (int64, error)
	// Progress returns the user's current snapshot, creating the zero state
	// lazily for users that have never been granted anything.
	Progress(ctx context.Context, user core.UserID) (core.Progress, error)
	// HasGranted reports whether the (user, reward) pair is already recorded.
	HasGranted(ctx context.Context, user core.UserID, reward core.RewardID) (bool, error)
	// RecordGrant atomically records a grant. A duplicate is not an error:
	// it returns created=false and the caller treats it as already granted.
	RecordGrant(ctx context.Context, user core.UserID, reward core.RewardID) (created bool, err error)
	// Grants lists the user's unlock history, newest first.
	Grants(ctx context.Context, user core.UserID) ([]core.Grant, error)
}

// Publisher emits facts onto the cross-service bus. Publishing is always a
// secondary effect: callers must log a returned error and carry on with
// their primary transaction, never abort it.
type Publisher interface {
	Publish(ctx context.Context, ev core.FactEvent) error
}

// Subscriber yields an infinite stream of facts from the bus. The stream
// survives transport disconnects via the adapter's own resubscription; the
// returned stop function closes it for good.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan core.FactEvent, func(), error)
}

// AggregateSource supplies the engine-computed aggregates a condition may
// reference (completed-quiz counts, planning streaks). The reward core holds
// none of that data itself; it is queried from the owning collaborator and
// merged into the evaluation context before the evaluator runs.
type AggregateSource interface {
	Aggregates(ctx context.Context, ev core.FactEvent) (map[string]any, error)
}

// NoAggregates is an AggregateSource that contributes nothing.
type NoAggregates struct{}

func (NoAggregates) Aggregates(context.Context, core.FactEvent) (map[string]any, error) {
	return nil, nil
}

// StaticAggregates serves fixed values keyed by user, for tests and seeding.
type StaticAggregates map[core.UserID]map[string]any

func (s StaticAggregates) Aggregates(_ context.Context, ev core.FactEvent) (map[string]any, error) {
	return s[ev.ActorID], nil
}
