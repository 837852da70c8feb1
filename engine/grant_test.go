package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mem "rewardcore/adapters/memory"
	"rewardcore/catalog"
	"rewardcore/core"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Definition{
		{
			ID:        "ach_first_budget",
			Name:      "First Budget",
			Kinds:     []core.FactKind{core.FactBudgetPlanned},
			Condition: core.FirstOccurrence{},
			Reward:    catalog.Reward{XP: 30, AchievementID: "first_budget"},
		},
		{
			ID:        "ach_savings_10k",
			Name:      "Serious Saver",
			Kinds:     []core.FactKind{core.FactGoalDeposit, core.FactGoalCompleted},
			Condition: core.ThresholdReached{Field: "current_amount", Target: 10000},
			Reward:    catalog.Reward{XP: 50, AchievementID: "serious_saver"},
		},
		{
			ID:        "badge_quiz_3",
			Name:      "Quiz Learner",
			Kinds:     []core.FactKind{core.FactQuizCompleted},
			Condition: core.CountAtLeast{Field: "completed_count", MinCount: 3},
			Reward:    catalog.Reward{XP: 25, BadgeID: "quiz_learner"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func newTestService(t *testing.T, opts ...Option) (*RewardService, *mem.Ledger) {
	t.Helper()
	ledger := mem.New()
	// pin the clock to a date whose daily challenge listens on
	// category_created, which these tests never emit
	pinned := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	all := append([]Option{WithClock(func() time.Time { return pinned })}, opts...)
	svc := NewRewardService(ledger, testCatalog(t), NewDispatcher(DispatchSync), all...)
	return svc, ledger
}

func TestHandleFactGrantsFirstOccurrence(t *testing.T) {
	svc, _ := newTestService(t)

	got := svc.HandleFact(context.Background(), core.NewFact(core.FactBudgetPlanned, 1, nil))
	if len(got) != 1 {
		t.Fatalf("want 1 grant, got %d", len(got))
	}
	if got[0].RewardID != "ach_first_budget" {
		t.Fatalf("unexpected reward %s", got[0].RewardID)
	}
	if got[0].Progress.XP != 30 {
		t.Fatalf("want 30 xp, got %d", got[0].Progress.XP)
	}

	// replaying the same fact is absorbed by the grant record
	got = svc.HandleFact(context.Background(), core.NewFact(core.FactBudgetPlanned, 1, nil))
	if len(got) != 0 {
		t.Fatalf("replay must grant nothing, got %d", len(got))
	}
}

func TestHandleFactThresholdFromPayload(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	got := svc.HandleFact(ctx, core.NewFact(core.FactGoalDeposit, 2, map[string]any{"current_amount": 9999}))
	if len(got) != 0 {
		t.Fatalf("below threshold must not grant, got %d", len(got))
	}
	got = svc.HandleFact(ctx, core.NewFact(core.FactGoalDeposit, 2, map[string]any{"current_amount": 10000}))
	if len(got) != 1 || got[0].RewardID != "ach_savings_10k" {
		t.Fatalf("want ach_savings_10k, got %+v", got)
	}
}

func TestHandleFactUsesAggregates(t *testing.T) {
	aggs := StaticAggregates{5: {"completed_count": int64(3)}}
	svc, _ := newTestService(t, WithAggregates(aggs))

	got := svc.HandleFact(context.Background(), core.NewFact(core.FactQuizCompleted, 5, map[string]any{"quiz_id": 9}))
	if len(got) != 1 || got[0].RewardID != "badge_quiz_3" {
		t.Fatalf("want badge_quiz_3, got %+v", got)
	}

	// a different user without the aggregate satisfied gets nothing
	got = svc.HandleFact(context.Background(), core.NewFact(core.FactQuizCompleted, 6, nil))
	if len(got) != 0 {
		t.Fatalf("want no grants, got %+v", got)
	}
}

func TestHandleFactCarriedXP(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	svc.HandleFact(ctx, core.NewFact(core.FactXPAdded, 3, map[string]any{"xp": float64(40)}))
	prog, err := ledger.Progress(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if prog.XP != 40 {
		t.Fatalf("want 40 xp, got %d", prog.XP)
	}

	// goal completion carries its payout and also feeds the catalog scan
	svc.HandleFact(ctx, core.NewFact(core.FactGoalCompleted, 3, map[string]any{"xp_reward": float64(100), "current_amount": 500}))
	prog, _ = ledger.Progress(ctx, 3)
	if prog.XP != 140 {
		t.Fatalf("want 140 xp, got %d", prog.XP)
	}
	if prog.Level != 2 {
		t.Fatalf("want level 2, got %d", prog.Level)
	}
}

func TestHandleFactConcurrentDuplicateGrant(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()
	fact := core.NewFact(core.FactBudgetPlanned, 9, nil)

	const replays = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < replays; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := len(svc.HandleFact(ctx, fact))
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 1 {
		t.Fatalf("want exactly one grant across concurrent replays, got %d", total)
	}
	grants, err := ledger.Grants(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 {
		t.Fatalf("want one grant record, got %d", len(grants))
	}
	prog, _ := ledger.Progress(ctx, 9)
	if prog.XP != 30 {
		t.Fatalf("want one xp application (30), got %d", prog.XP)
	}
}

// faultyLedger fails HasGranted for one reward id to prove per-definition
// isolation.
type faultyLedger struct {
	Ledger
	failFor core.RewardID
}

func (f *faultyLedger) HasGranted(ctx context.Context, user core.UserID, reward core.RewardID) (bool, error) {
	if reward == f.failFor {
		return false, errors.New("storage hiccup")
	}
	return f.Ledger.HasGranted(ctx, user, reward)
}

func TestHandleFactIsolatesDefinitionFailures(t *testing.T) {
	cat, err := catalog.New([]catalog.Definition{
		{ID: "broken", Name: "Broken", Kinds: []core.FactKind{core.FactBudgetPlanned}, Condition: core.FirstOccurrence{}, Reward: catalog.Reward{XP: 5}},
		{ID: "fine", Name: "Fine", Kinds: []core.FactKind{core.FactBudgetPlanned}, Condition: core.FirstOccurrence{}, Reward: catalog.Reward{XP: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ledger := &faultyLedger{Ledger: mem.New(), failFor: "broken"}
	svc := NewRewardService(ledger, cat, NewDispatcher(DispatchSync))

	got := svc.HandleFact(context.Background(), core.NewFact(core.FactBudgetPlanned, 4, nil))
	if len(got) != 1 || got[0].RewardID != "fine" {
		t.Fatalf("want the healthy definition to grant, got %+v", got)
	}
}

func TestHandleFactGrantsDailyChallenge(t *testing.T) {
	// pin the clock to a date whose rotation slot is "plan a budget"
	var day time.Time
	for d := 0; d < 7; d++ {
		candidate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
		ch := catalog.TodayChallenge(candidate)
		if len(ch.Kinds) == 1 && ch.Kinds[0] == core.FactBudgetPlanned && ch.Condition.Kind() == core.CondFirstOccurrence {
			day = candidate
			break
		}
	}
	if day.IsZero() {
		t.Fatal("no budget challenge in rotation window")
	}

	svc, _ := newTestService(t, WithClock(func() time.Time { return day }))
	got := svc.HandleFact(context.Background(), core.NewFact(core.FactBudgetPlanned, 11, nil))
	if len(got) != 2 {
		t.Fatalf("want static achievement plus daily challenge, got %d", len(got))
	}
}

func TestAddXPAnnouncesLevelUp(t *testing.T) {
	ledger := mem.New()
	d := NewDispatcher(DispatchSync)
	svc := NewRewardService(ledger, testCatalog(t), d)

	levelUps := 0
	d.Subscribe(core.NoteLevelUp, func(ctx context.Context, n core.Notification) { levelUps++ })

	if _, err := svc.AddXP(context.Background(), 8, 150); err != nil {
		t.Fatal(err)
	}
	if levelUps != 1 {
		t.Fatalf("want 1 level up, got %d", levelUps)
	}
}

func TestAddXPRejectsNonPositive(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.AddXP(context.Background(), 1, 0); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}
