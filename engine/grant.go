package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rewardcore/catalog"
	"rewardcore/core"
)

// GrantResult reports one newly granted reward. An empty result list from
// HandleFact is a normal outcome, not an error.
type GrantResult struct {
	RewardID core.RewardID  `json:"reward_id"`
	Name     string         `json:"name"`
	Reward   catalog.Reward `json:"reward"`
	Progress core.Progress  `json:"progress"`
}

// RewardService wires the ledger, condition catalog, and notification
// dispatcher into the grant engine plus the synchronous XP/balance boundary.
type RewardService struct {
	ledger     Ledger
	catalog    *catalog.Catalog
	dispatcher *Dispatcher
	aggregates AggregateSource
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a RewardService.
type Option func(*RewardService)

// WithAggregates sets the collaborator-backed aggregate source.
func WithAggregates(src AggregateSource) Option {
	return func(s *RewardService) {
		if src != nil {
			s.aggregates = src
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *RewardService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source, used by tests to pin the daily
// challenge rotation.
func WithClock(now func() time.Time) Option {
	return func(s *RewardService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRewardService(ledger Ledger, cat *catalog.Catalog, dispatcher *Dispatcher, opts ...Option) *RewardService {
	if ledger == nil || cat == nil || dispatcher == nil {
		panic("NewRewardService requires non-nil ledger, catalog, and dispatcher")
	}
	s := &RewardService{
		ledger:     ledger,
		catalog:    cat,
		dispatcher: dispatcher,
		aggregates: NoAggregates{},
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddXP applies a positive XP delta and announces the resulting notifications.
func (s *RewardService) AddXP(ctx context.Context, user core.UserID, delta int64) (core.Progress, error) {
	if delta <= 0 {
		return core.Progress{}, fmt.Errorf("xp delta must be positive: %w", core.ErrInvalidInput)
	}
	prog, err := s.ledger.AddXP(ctx, user, delta)
	if err != nil {
		return core.Progress{}, err
	}
	s.dispatcher.Announce(ctx, core.NewXPAdded(user, delta, prog.XP))
	if before := core.LevelOf(prog.XP - delta); prog.Level > before.Level {
		s.dispatcher.Announce(ctx, core.NewLevelUp(user, prog.Level))
	}
	return prog, nil
}

// AdjustBalance applies a signed balance delta through the ledger.
func (s *RewardService) AdjustBalance(ctx context.Context, user core.UserID, delta int64) (int64, error) {
	return s.ledger.AdjustBalance(ctx, user, delta)
}

// Progress returns the user's current snapshot.
func (s *RewardService) Progress(ctx context.Context, user core.UserID) (core.Progress, error) {
	return s.ledger.Progress(ctx, user)
}

// Grants lists the user's unlock history.
func (s *RewardService) Grants(ctx context.Context, user core.UserID) ([]core.Grant, error) {
	return s.ledger.Grants(ctx, user)
}

// Subscribe registers a notification handler on the dispatcher.
func (s *RewardService) Subscribe(typ core.NotificationType, handler func(context.Context, core.Notification)) func() {
	return s.dispatcher.Subscribe(typ, handler)
}

// HandleFact runs the grant algorithm for one fact: build the evaluation
// context, apply any XP the fact carries directly, then evaluate every
// matching not-yet-granted definition. Failures are isolated per definition
// and the call never propagates an error to the listener loop; it returns
// whatever succeeded.
func (s *RewardService) HandleFact(ctx context.Context, ev core.FactEvent) []GrantResult {
	evalCtx := make(map[string]any, len(ev.Payload)+4)
	for k, v := range ev.Payload {
		evalCtx[k] = v
	}
	if aggs, err := s.aggregates.Aggregates(ctx, ev); err != nil {
		s.log.Warn("aggregate lookup failed, evaluating on payload only",
			"kind", ev.Kind, "user", ev.ActorID, "err", err)
	} else {
		for k, v := range aggs {
			evalCtx[k] = v
		}
	}

	s.applyCarriedXP(ctx, ev)

	var out []GrantResult
	for _, def := range s.catalog.ActiveFor(ev.Kind, s.now()) {
		if res, granted := s.applyDefinition(ctx, ev.ActorID, def, evalCtx); granted {
			out = append(out, res)
		}
	}
	return out
}

// applyCarriedXP honors facts that carry their own XP payout ("xp" on
// xp_added, "xp_reward" on goal/budget facts). A duplicate attempt from the
// synchronous fallback path is possible here; that is the accepted
// at-least-once tradeoff.
func (s *RewardService) applyCarriedXP(ctx context.Context, ev core.FactEvent) {
	var key string
	switch ev.Kind {
	case core.FactXPAdded:
		key = "xp"
	case core.FactGoalCompleted, core.FactBudgetPlanned:
		key = "xp_reward"
	default:
		return
	}
	delta := payloadInt(ev.Payload, key)
	if delta <= 0 {
		return
	}
	if _, err := s.AddXP(ctx, ev.ActorID, delta); err != nil {
		s.log.Error("carried xp application failed",
			"kind", ev.Kind, "user", ev.ActorID, "xp", delta, "err", err)
	}
}

// applyDefinition evaluates and grants a single definition. Its failures
// never leak to the siblings in the same fact.
func (s *RewardService) applyDefinition(ctx context.Context, user core.UserID, def catalog.Definition, evalCtx map[string]any) (GrantResult, bool) {
	granted, err := s.ledger.HasGranted(ctx, user, def.ID)
	if err != nil {
		s.log.Error("grant lookup failed", "reward", def.ID, "user", user, "err", err)
		return GrantResult{}, false
	}
	if granted {
		return GrantResult{}, false
	}
	if !core.Satisfied(def.Condition, evalCtx) {
		return GrantResult{}, false
	}

	created, err := s.ledger.RecordGrant(ctx, user, def.ID)
	if err != nil {
		s.log.Error("grant record failed", "reward", def.ID, "user", user, "err", err)
		return GrantResult{}, false
	}
	if !created {
		// lost a concurrent race; the other writer owns the grant
		return GrantResult{}, false
	}

	var prog core.Progress
	if def.Reward.XP > 0 {
		prog, err = s.AddXP(ctx, user, def.Reward.XP)
		if err != nil {
			// the grant record stands; XP reconciles on a later retry path
			s.log.Error("reward xp application failed", "reward", def.ID, "user", user, "err", err)
		}
	} else if prog, err = s.ledger.Progress(ctx, user); err != nil {
		s.log.Warn("progress snapshot failed after grant", "reward", def.ID, "user", user, "err", err)
	}

	s.dispatcher.Announce(ctx, core.NewRewardGranted(user, def.ID, def.Name, def.Reward.XP))
	if def.Reward.BadgeID != "" {
		s.dispatcher.Announce(ctx, core.NewBadgeUnlocked(user, def.ID, def.Reward.BadgeID))
	}
	if def.Reward.AchievementID != "" {
		s.dispatcher.Announce(ctx, core.NewAchievementUnlocked(user, def.ID, def.Reward.AchievementID))
	}

	return GrantResult{RewardID: def.ID, Name: def.Name, Reward: def.Reward, Progress: prog}, true
}

func payloadInt(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
