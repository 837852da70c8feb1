// Package catalog holds the declarative reward definitions the grant engine
// evaluates. Content is authored offline, loaded once at startup, and never
// mutated by user actions; changing it means a reload, not a runtime API.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"rewardcore/core"
)

// Reward is the payout half of a definition. XP is applied through the
// ledger; badge/achievement unlocks are forwarded to the owning collaborator.
type Reward struct {
	XP            int64              `json:"xp,omitempty"`
	BadgeID       core.BadgeID       `json:"badge_id,omitempty"`
	AchievementID core.AchievementID `json:"achievement_id,omitempty"`
}

// Definition pairs a condition with a reward. Kinds lists the fact kinds the
// condition structurally depends on, so the engine only evaluates definitions
// that can possibly be affected by an incoming fact.
type Definition struct {
	ID        core.RewardID   `json:"id"`
	Name      string          `json:"name"`
	Kinds     []core.FactKind `json:"kinds"`
	Condition core.Condition  `json:"-"`
	Reward    Reward          `json:"reward"`
}

// definitionDoc is the on-disk shape; the condition arrives as raw JSON and
// is decoded through the closed variant codec.
type definitionDoc struct {
	ID        core.RewardID   `json:"id"`
	Name      string          `json:"name"`
	Kinds     []core.FactKind `json:"kinds"`
	Condition json.RawMessage `json:"condition"`
	Reward    Reward          `json:"reward"`
}

// Catalog is a read-only lookup over reward definitions, indexed by fact
// kind. Immutable after construction, safe for concurrent readers.
type Catalog struct {
	defs   []Definition
	byKind map[core.FactKind][]Definition
}

// New builds a catalog from literal definitions, validating ids and
// conditions. Multiple definitions may share a condition kind; each one is
// evaluated and granted independently.
func New(defs []Definition) (*Catalog, error) {
	seen := make(map[core.RewardID]struct{}, len(defs))
	byKind := make(map[core.FactKind][]Definition)
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("definition %d: empty id", i)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("duplicate definition id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
		if d.Condition == nil {
			return nil, fmt.Errorf("definition %q: nil condition", d.ID)
		}
		if len(d.Kinds) == 0 {
			return nil, fmt.Errorf("definition %q: no fact kinds", d.ID)
		}
		for _, k := range d.Kinds {
			byKind[k] = append(byKind[k], d)
		}
	}
	return &Catalog{defs: append([]Definition(nil), defs...), byKind: byKind}, nil
}

// Load reads a JSON catalog file: an array of definitions with declarative
// conditions. A typoed condition kind fails the load.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog JSON.
func Parse(data []byte) (*Catalog, error) {
	var docs []definitionDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	defs := make([]Definition, 0, len(docs))
	for _, doc := range docs {
		cond, err := core.DecodeCondition(doc.Condition)
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", doc.ID, err)
		}
		defs = append(defs, Definition{
			ID:        doc.ID,
			Name:      doc.Name,
			Kinds:     doc.Kinds,
			Condition: cond,
			Reward:    doc.Reward,
		})
	}
	return New(defs)
}

// ForKind returns the definitions whose condition depends on the fact kind.
// The returned slice is shared; callers must not mutate it.
func (c *Catalog) ForKind(kind core.FactKind) []Definition {
	return c.byKind[kind]
}

// All returns every definition, for administrative listing.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// ActiveFor merges the static definitions for a fact kind with the rotating
// daily challenge when today's challenge listens on that kind.
func (c *Catalog) ActiveFor(kind core.FactKind, now time.Time) []Definition {
	defs := c.byKind[kind]
	daily := TodayChallenge(now)
	for _, k := range daily.Kinds {
		if k == kind {
			merged := make([]Definition, 0, len(defs)+1)
			merged = append(merged, defs...)
			merged = append(merged, daily)
			return merged
		}
	}
	return defs
}
