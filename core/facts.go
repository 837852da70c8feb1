package core

import (
	"encoding/json"
	"errors"
	"time"
)

// FactKind identifies a domain occurrence announced by a producing service.
type FactKind string

const (
	FactXPAdded         FactKind = "xp_added"
	FactGoalCompleted   FactKind = "goal_completed"
	FactGoalDeposit     FactKind = "goal_deposit"
	FactBudgetPlanned   FactKind = "budget_planned"
	FactQuizCompleted   FactKind = "quiz_completed"
	FactCategoryCreated FactKind = "category_created"
)

// FactEvent is an immutable record of something a user did, published by any
// service and consumed asynchronously by the listener loop. Facts are
// transient: once delivered they are not persisted.
type FactEvent struct {
	Kind      FactKind       `json:"type"`
	ActorID   UserID         `json:"user_id"`
	Payload   map[string]any `json:"data,omitempty"`
	EmittedAt time.Time      `json:"timestamp"`
}

// NewFact builds a fact stamped with the current UTC time.
func NewFact(kind FactKind, actor UserID, payload map[string]any) FactEvent {
	return FactEvent{Kind: kind, ActorID: actor, Payload: payload, EmittedAt: time.Now().UTC()}
}

// EncodeFact marshals a fact into the wire shape used on the bus.
func EncodeFact(ev FactEvent) ([]byte, error) {
	if ev.Kind == "" {
		return nil, errors.New("fact kind must not be empty")
	}
	return json.Marshal(ev)
}

// DecodeFact parses a bus message. Malformed payloads are the caller's
// problem to log and drop; decoding never panics.
func DecodeFact(data []byte) (FactEvent, error) {
	var ev FactEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return FactEvent{}, err
	}
	if ev.Kind == "" {
		return FactEvent{}, errors.New("fact missing type")
	}
	if ev.ActorID <= 0 {
		return FactEvent{}, errors.New("fact missing user_id")
	}
	return ev, nil
}
