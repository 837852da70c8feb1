package engine

import (
	"context"
	"sync"
	"time"

	"rewardcore/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

type subscription struct {
	id  int64
	typ core.NotificationType
	fn  func(context.Context, core.Notification)
}

// Dispatcher fans reward notifications out to in-process consumers (the
// realtime hub, the webhook forwarder) with sync and async dispatch.
type Dispatcher struct {
	mode         DispatchMode
	mu           sync.RWMutex
	subs         map[core.NotificationType]map[int64]subscription
	nextID       int64
	asyncQueue   chan core.Notification
	asyncWorkers int
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewDispatcher(mode DispatchMode) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		mode:         mode,
		subs:         make(map[core.NotificationType]map[int64]subscription),
		asyncQueue:   make(chan core.Notification, 2048),
		asyncWorkers: 4,
		ctx:          ctx,
		cancel:       cancel,
	}
	if mode == DispatchAsync {
		d.startWorkers()
	}
	return d
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.asyncWorkers; i++ {
		go func() {
			for {
				select {
				case n := <-d.asyncQueue:
					d.dispatchSync(context.Background(), n)
				case <-d.ctx.Done():
					return
				}
			}
		}()
	}
}

// Close stops async workers.
func (d *Dispatcher) Close() {
	d.cancel()
	// allow workers to drain briefly
	time.Sleep(10 * time.Millisecond)
}

// Subscribe registers a handler for a notification type. Returns unsubscribe func.
func (d *Dispatcher) Subscribe(typ core.NotificationType, handler func(context.Context, core.Notification)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	if d.subs[typ] == nil {
		d.subs[typ] = make(map[int64]subscription)
	}
	d.subs[typ][id] = subscription{id: id, typ: typ, fn: handler}
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if m := d.subs[typ]; m != nil {
			delete(m, id)
		}
	}
}

// Announce sends a notification to subscribers.
func (d *Dispatcher) Announce(ctx context.Context, n core.Notification) {
	if d.mode == DispatchAsync {
		select {
		case d.asyncQueue <- n:
		default:
			// Drop if queue full to preserve latency; alternative is blocking
		}
		return
	}
	d.dispatchSync(ctx, n)
}

func (d *Dispatcher) dispatchSync(ctx context.Context, n core.Notification) {
	d.mu.RLock()
	subs := d.subs[n.Type]
	// copy to avoid holding lock during callbacks
	handlers := make([]func(context.Context, core.Notification), 0, len(subs))
	for _, s := range subs {
		handlers = append(handlers, s.fn)
	}
	d.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, n)
	}
}
