package core

import (
	"encoding/json"
	"fmt"
)

// ConditionKind tags the closed set of condition variants.
type ConditionKind string

const (
	CondFirstOccurrence  ConditionKind = "first_occurrence"
	CondThresholdReached ConditionKind = "threshold_reached"
	CondStreakLength     ConditionKind = "streak_length"
	CondCountAtLeast     ConditionKind = "count_at_least"
	CondExactMatch       ConditionKind = "exact_match"
)

// Condition is a declarative rule over an evaluation context. The variant set
// is closed: adding a kind means adding a struct here and a case in
// Satisfied, which the compiler checks. A typo in catalog data fails at
// decode time instead of silently never matching.
type Condition interface {
	Kind() ConditionKind
	isCondition()
}

// FirstOccurrence is satisfied by the first fact of its kind; paired with the
// grant uniqueness invariant it means "award once, on the first time".
type FirstOccurrence struct{}

// ThresholdReached is satisfied when a numeric context field reaches Target.
type ThresholdReached struct {
	Field  string  `json:"field"`
	Target float64 `json:"target"`
}

// StreakLength is satisfied when a caller-supplied streak aggregate reaches
// MinDays consecutive days.
type StreakLength struct {
	Field   string `json:"field"`
	MinDays int64  `json:"days"`
}

// CountAtLeast is satisfied when a caller-supplied count aggregate reaches
// MinCount.
type CountAtLeast struct {
	Field    string `json:"field"`
	MinCount int64  `json:"count"`
}

// ExactMatch is satisfied when a context field equals Value.
type ExactMatch struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (FirstOccurrence) Kind() ConditionKind  { return CondFirstOccurrence }
func (ThresholdReached) Kind() ConditionKind { return CondThresholdReached }
func (StreakLength) Kind() ConditionKind     { return CondStreakLength }
func (CountAtLeast) Kind() ConditionKind     { return CondCountAtLeast }
func (ExactMatch) Kind() ConditionKind       { return CondExactMatch }

func (FirstOccurrence) isCondition()  {}
func (ThresholdReached) isCondition() {}
func (StreakLength) isCondition()     {}
func (CountAtLeast) isCondition()     {}
func (ExactMatch) isCondition()       {}

// Satisfied evaluates a condition against a context of observed facts plus
// caller-supplied aggregates. The evaluator never queries storage and never
// fails: a nil condition evaluates false, a missing numeric field reads as 0.
func Satisfied(c Condition, ctx map[string]any) bool {
	switch cond := c.(type) {
	case FirstOccurrence:
		return true
	case ThresholdReached:
		return numberField(ctx, cond.Field) >= cond.Target
	case StreakLength:
		return numberField(ctx, cond.Field) >= float64(cond.MinDays)
	case CountAtLeast:
		return numberField(ctx, cond.Field) >= float64(cond.MinCount)
	case ExactMatch:
		v, ok := ctx[cond.Field]
		return ok && looseEqual(v, cond.Value)
	default:
		return false
	}
}

// numberField reads a numeric context value, tolerating the types JSON
// decoding produces. Missing or non-numeric fields read as 0.
func numberField(ctx map[string]any, field string) float64 {
	switch v := ctx[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// looseEqual compares scalar values across the numeric types that JSON
// round-trips blur together (an id stored as 5 arrives as float64(5)).
// Non-scalar values (arrays, objects) never match: using == on them would
// panic, and the evaluator must not fail.
func looseEqual(a, b any) bool {
	if af, aok := asNumber(a); aok {
		bf, bok := asNumber(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// conditionEnvelope is the declarative on-disk shape: the kind tag plus the
// variant's own fields flattened alongside it.
type conditionEnvelope struct {
	Kind ConditionKind `json:"kind"`
}

// DecodeCondition parses a declarative condition. Unknown kinds are a decode
// error so catalog typos surface at load time, not as silent no-ops.
func DecodeCondition(raw json.RawMessage) (Condition, error) {
	var env conditionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	switch env.Kind {
	case CondFirstOccurrence:
		return FirstOccurrence{}, nil
	case CondThresholdReached:
		var c ThresholdReached
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("condition %s: %w", env.Kind, err)
		}
		return c, nil
	case CondStreakLength:
		var c StreakLength
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("condition %s: %w", env.Kind, err)
		}
		return c, nil
	case CondCountAtLeast:
		var c CountAtLeast
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("condition %s: %w", env.Kind, err)
		}
		return c, nil
	case CondExactMatch:
		var c ExactMatch
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("condition %s: %w", env.Kind, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown condition kind %q", env.Kind)
	}
}

// EncodeCondition is the inverse of DecodeCondition.
func EncodeCondition(c Condition) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("nil condition")
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	// splice the kind tag into the variant's own fields
	merged := map[string]any{}
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	merged["kind"] = c.Kind()
	return json.Marshal(merged)
}
