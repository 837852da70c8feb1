package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rewardcore/core"
)

// Ledger is a concurrent in-memory engine.Ledger implementation.
type Ledger struct {
	users sync.Map // map[core.UserID]*userRecord
}

type userRecord struct {
	mu      sync.Mutex
	prog    core.Progress
	granted map[core.RewardID]time.Time
	order   []core.RewardID
}

func New() *Ledger { return &Ledger{} }

func (l *Ledger) getOrCreate(user core.UserID) *userRecord {
	if v, ok := l.users.Load(user); ok {
		return v.(*userRecord)
	}
	rec := &userRecord{
		prog:    core.Progress{UserID: user, Level: 1, Updated: time.Now().UTC()},
		granted: map[core.RewardID]time.Time{},
	}
	actual, _ := l.users.LoadOrStore(user, rec)
	return actual.(*userRecord)
}

func (l *Ledger) AddXP(_ context.Context, user core.UserID, delta int64) (core.Progress, error) {
	if delta <= 0 {
		return core.Progress{}, fmt.Errorf("xp delta must be positive: %w", core.ErrInvalidInput)
	}
	rec := l.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next, err := core.AddSafe(rec.prog.XP, delta)
	if err != nil {
		return core.Progress{}, err
	}
	rec.prog.XP = next
	rec.prog.Level = core.LevelOf(next).Level
	rec.prog.Updated = time.Now().UTC()
	return rec.prog, nil
}

func (l *Ledger) AdjustBalance(_ context.Context, user core.UserID, delta int64) (int64, error) {
	rec := l.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next, err := core.AddSafe(rec.prog.Balance, delta)
	if err != nil {
		return 0, err
	}
	if next < 0 {
		return 0, fmt.Errorf("balance would drop to %d: %w", next, core.ErrInsufficientFunds)
	}
	rec.prog.Balance = next
	rec.prog.Updated = time.Now().UTC()
	return next, nil
}

// Progress is a pure read: an unknown user gets a fresh level-1 record
// without one being stored.
func (l *Ledger) Progress(_ context.Context, user core.UserID) (core.Progress, error) {
	v, ok := l.users.Load(user)
	if !ok {
		return core.Progress{UserID: user, Level: 1}, nil
	}
	rec := v.(*userRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.prog, nil
}

func (l *Ledger) HasGranted(_ context.Context, user core.UserID, reward core.RewardID) (bool, error) {
	rec := l.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	_, ok := rec.granted[reward]
	return ok, nil
}

func (l *Ledger) RecordGrant(_ context.Context, user core.UserID, reward core.RewardID) (bool, error) {
	rec := l.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, ok := rec.granted[reward]; ok {
		return false, nil
	}
	rec.granted[reward] = time.Now().UTC()
	rec.order = append(rec.order, reward)
	return true, nil
}

func (l *Ledger) Grants(_ context.Context, user core.UserID) ([]core.Grant, error) {
	rec := l.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.Grant, 0, len(rec.order))
	for i := len(rec.order) - 1; i >= 0; i-- {
		id := rec.order[i]
		out = append(out, core.Grant{UserID: user, RewardID: id, GrantedAt: rec.granted[id]})
	}
	return out, nil
}
