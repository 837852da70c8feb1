package leaderboard

import (
	"context"
	"testing"

	"rewardcore/core"
	"rewardcore/engine"
)

func TestSkipListOrdering(t *testing.T) {
	s := NewSkipList()
	s.Update(1, 100)
	s.Update(2, 250)
	s.Update(3, 150)
	top := s.TopN(3)
	if len(top) != 3 || top[0].User != 2 || top[1].User != 3 || top[2].User != 1 {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.Update(1, 300)
	top = s.TopN(1)
	if top[0].User != 1 || top[0].XP != 300 {
		t.Fatalf("top should be user 1 at 300, got %#v", top)
	}
}

func TestSkipListTiesBreakByUser(t *testing.T) {
	s := NewSkipList()
	s.Update(9, 50)
	s.Update(4, 50)
	top := s.TopN(2)
	if top[0].User != 4 || top[1].User != 9 {
		t.Fatalf("ties should order by user id: %#v", top)
	}
}

func TestSkipListRemoveAndGet(t *testing.T) {
	s := NewSkipList()
	s.Update(7, 80)
	if e, ok := s.Get(7); !ok || e.XP != 80 {
		t.Fatalf("get: %#v %v", e, ok)
	}
	s.Remove(7)
	if _, ok := s.Get(7); ok {
		t.Fatal("user should be gone after remove")
	}
	if top := s.TopN(10); len(top) != 0 {
		t.Fatalf("board should be empty: %#v", top)
	}
}

func TestTrackFollowsXPNotifications(t *testing.T) {
	d := engine.NewDispatcher(engine.DispatchSync)
	board := NewSkipList()
	detach := Track(d, board)

	ctx := context.Background()
	d.Announce(ctx, core.NewXPAdded(1, 40, 40))
	d.Announce(ctx, core.NewXPAdded(2, 90, 90))
	d.Announce(ctx, core.NewXPAdded(1, 100, 140))

	top := board.TopN(2)
	if len(top) != 2 || top[0].User != 1 || top[0].XP != 140 || top[1].User != 2 {
		t.Fatalf("unexpected board: %#v", top)
	}

	detach()
	d.Announce(ctx, core.NewXPAdded(3, 500, 500))
	if _, ok := board.Get(3); ok {
		t.Fatal("detached tracker should not record new users")
	}
}
