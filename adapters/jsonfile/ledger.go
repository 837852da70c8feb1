// Package jsonfile persists the reward ledger to a single JSON file.
// Suitable for demos and small deployments.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"rewardcore/core"
)

// userRecord is the on-disk shape per user.
type userRecord struct {
	Progress core.Progress `json:"progress"`
	Grants   []core.Grant  `json:"grants"`
}

// Ledger is a file-backed ledger with an in-memory cache. Every write is
// persisted before it is acknowledged, via a temp-file rename.
type Ledger struct {
	path string
	mu   sync.Mutex
	data map[core.UserID]*userRecord
}

func New(path string) (*Ledger, error) {
	l := &Ledger{path: path, data: map[core.UserID]*userRecord{}}
	if err := l.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) load() error {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	var raw map[string]*userRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return fmt.Errorf("bad user key %q in %s: %w", k, l.path, err)
		}
		l.data[core.UserID(id)] = v
	}
	return nil
}

func (l *Ledger) persist() error {
	tmp := l.path + ".tmp"
	raw := make(map[string]*userRecord, len(l.data))
	for k, v := range l.data {
		raw[strconv.FormatInt(int64(k), 10)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func (l *Ledger) get(user core.UserID) *userRecord {
	if rec, ok := l.data[user]; ok {
		return rec
	}
	rec := &userRecord{Progress: core.Progress{UserID: user, Level: 1, Updated: time.Now().UTC()}}
	l.data[user] = rec
	return rec
}

func (l *Ledger) AddXP(_ context.Context, user core.UserID, delta int64) (core.Progress, error) {
	if delta <= 0 {
		return core.Progress{}, fmt.Errorf("xp delta must be positive: %w", core.ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.get(user)
	next, err := core.AddSafe(rec.Progress.XP, delta)
	if err != nil {
		return core.Progress{}, err
	}
	rec.Progress.XP = next
	rec.Progress.Level = core.LevelOf(next).Level
	rec.Progress.Updated = time.Now().UTC()
	if err := l.persist(); err != nil {
		return core.Progress{}, err
	}
	return rec.Progress, nil
}

func (l *Ledger) AdjustBalance(_ context.Context, user core.UserID, delta int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.get(user)
	next, err := core.AddSafe(rec.Progress.Balance, delta)
	if err != nil {
		return 0, err
	}
	if next < 0 {
		return 0, fmt.Errorf("balance would drop to %d: %w", next, core.ErrInsufficientFunds)
	}
	rec.Progress.Balance = next
	rec.Progress.Updated = time.Now().UTC()
	if err := l.persist(); err != nil {
		return 0, err
	}
	return next, nil
}

// Progress is a pure read: an unknown user gets a fresh level-1 record
// without one being stored, so probes never end up in the file.
func (l *Ledger) Progress(_ context.Context, user core.UserID) (core.Progress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.data[user]; ok {
		return rec.Progress, nil
	}
	return core.Progress{UserID: user, Level: 1}, nil
}

func (l *Ledger) HasGranted(_ context.Context, user core.UserID, reward core.RewardID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, g := range l.get(user).Grants {
		if g.RewardID == reward {
			return true, nil
		}
	}
	return false, nil
}

func (l *Ledger) RecordGrant(_ context.Context, user core.UserID, reward core.RewardID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.get(user)
	for _, g := range rec.Grants {
		if g.RewardID == reward {
			return false, nil
		}
	}
	rec.Grants = append(rec.Grants, core.Grant{UserID: user, RewardID: reward, GrantedAt: time.Now().UTC()})
	if err := l.persist(); err != nil {
		rec.Grants = rec.Grants[:len(rec.Grants)-1]
		return false, err
	}
	return true, nil
}

func (l *Ledger) Grants(_ context.Context, user core.UserID) ([]core.Grant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	grants := l.get(user).Grants
	out := make([]core.Grant, len(grants))
	// newest first, matching the other ledgers
	for i, g := range grants {
		out[len(grants)-1-i] = g
	}
	return out, nil
}
