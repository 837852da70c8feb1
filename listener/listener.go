// Package listener runs the long-lived subscriber that feeds bus facts into
// the grant engine. It lives inside the process that owns XP/level state and
// never propagates a per-message failure: the loop outlives anything a single
// fact can do to it.
package listener

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"rewardcore/core"
	"rewardcore/engine"
)

// State tracks the loop's lifecycle for observability and tests.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateListening
	StateDispatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateDispatching:
		return "dispatching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// FactHandler consumes one fact. engine.RewardService satisfies this; by
// contract it never returns an error to the loop.
type FactHandler interface {
	HandleFact(ctx context.Context, ev core.FactEvent) []engine.GrantResult
}

// Loop is the single logical consumer per process. Facts from one producer
// arrive in order; ordering across producers is not guaranteed, and the grant
// path tolerates replay either way.
type Loop struct {
	sub       engine.Subscriber
	handler   FactHandler
	log       *slog.Logger
	reconnect time.Duration

	state    atomic.Int32
	mu       sync.Mutex
	stopSub  func()
	stopOnce sync.Once
}

func New(sub engine.Subscriber, handler FactHandler, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{sub: sub, handler: handler, log: log, reconnect: 2 * time.Second}
}

// State reports the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	// Stopped is terminal; nothing moves past it
	for {
		cur := l.state.Load()
		if State(cur) == StateStopped {
			return
		}
		if l.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Run blocks until Stop is called or the context is cancelled. Subscription
// failures are retried with a fixed delay; a closed stream triggers a
// reconnect.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("event listener starting")
	defer l.log.Info("event listener stopped")

	for {
		if l.State() == StateStopped {
			return nil
		}
		if err := ctx.Err(); err != nil {
			l.setState(StateStopped)
			return err
		}

		l.setState(StateConnecting)
		stream, stopSub, err := l.sub.Subscribe(ctx)
		if err != nil {
			l.log.Error("subscribe failed, retrying", "err", err)
			select {
			case <-time.After(l.reconnect):
				continue
			case <-ctx.Done():
				l.setState(StateStopped)
				return ctx.Err()
			}
		}

		l.mu.Lock()
		l.stopSub = stopSub
		l.mu.Unlock()
		if l.State() == StateStopped {
			// Stop raced the subscribe; tear down and leave
			stopSub()
			return nil
		}

		l.setState(StateListening)
		l.consume(ctx, stream)

		if l.State() == StateStopped {
			return nil
		}
		if err := ctx.Err(); err != nil {
			l.setState(StateStopped)
			return err
		}
		l.log.Warn("fact stream closed, reconnecting")
	}
}

func (l *Loop) consume(ctx context.Context, stream <-chan core.FactEvent) {
	for ev := range stream {
		if l.State() == StateStopped {
			return
		}
		l.setState(StateDispatching)
		granted := l.handler.HandleFact(ctx, ev)
		if len(granted) > 0 {
			ids := make([]core.RewardID, 0, len(granted))
			for _, g := range granted {
				ids = append(ids, g.RewardID)
			}
			l.log.Info("fact granted rewards", "kind", ev.Kind, "user", ev.ActorID, "rewards", ids)
		}
		l.setState(StateListening)
	}
}

// Stop unsubscribes, closes the transport, and moves the loop to Stopped.
// Safe to call more than once; no dispatch happens afterwards.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.state.Store(int32(StateStopped))
		l.mu.Lock()
		stopSub := l.stopSub
		l.mu.Unlock()
		if stopSub != nil {
			stopSub()
		}
	})
}
