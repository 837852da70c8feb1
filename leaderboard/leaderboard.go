// Package leaderboard ranks users by accumulated XP. The board is fed from
// xp_added notifications, so it reflects whatever the ledger has acknowledged
// without ever scanning the ledger itself.
package leaderboard

import (
	"context"

	"rewardcore/core"
)

// Entry is one ranked row.
type Entry struct {
	User core.UserID `json:"user_id"`
	XP   int64       `json:"xp"`
}

// Board abstracts the ranking structure.
type Board interface {
	Update(user core.UserID, xp int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
}

// Announcer is the notification feed the tracker attaches to. Both the
// dispatcher and the reward service satisfy it.
type Announcer interface {
	Subscribe(typ core.NotificationType, handler func(context.Context, core.Notification)) func()
}

// Track keeps b current from xp_added notifications, which carry the user's
// running XP total. Returns a detach function.
func Track(a Announcer, b Board) func() {
	return a.Subscribe(core.NoteXPAdded, func(_ context.Context, n core.Notification) {
		b.Update(n.UserID, n.Total)
	})
}
