package engine

import (
	"context"
	"testing"
	"time"

	"rewardcore/core"
)

func TestDispatcherSync(t *testing.T) {
	d := NewDispatcher(DispatchSync)
	count := 0
	d.Subscribe(core.NoteXPAdded, func(ctx context.Context, n core.Notification) { count++ })
	d.Announce(context.Background(), core.NewXPAdded(1, 10, 10))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestDispatcherAsync(t *testing.T) {
	d := NewDispatcher(DispatchAsync)
	defer d.Close()
	ch := make(chan struct{})
	d.Subscribe(core.NoteLevelUp, func(ctx context.Context, n core.Notification) { close(ch) })
	d.Announce(context.Background(), core.NewLevelUp(1, 2))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := NewDispatcher(DispatchSync)
	count := 0
	off := d.Subscribe(core.NoteXPAdded, func(ctx context.Context, n core.Notification) { count++ })
	off()
	d.Announce(context.Background(), core.NewXPAdded(1, 10, 10))
	if count != 0 {
		t.Fatalf("want 0 got %d", count)
	}
}
