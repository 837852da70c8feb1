package core

import (
	"errors"
	"math"
	"time"
)

// UserID identifies a user across services. IDs are minted by the identity
// service and treated everywhere else as opaque integers with no
// referential-integrity enforcement at the storage layer.
type UserID int64

// RewardID identifies a reward definition in the condition catalog.
type RewardID string

// BadgeID and AchievementID name unlockables owned by the education
// collaborator. The reward core only forwards unlock notifications.
type (
	BadgeID       string
	AchievementID string
)

// Progress is an immutable snapshot of a user's accumulated XP and the level
// derived from it. Level is always LevelOf(XP).Level; it is cached, never set
// independently.
type Progress struct {
	UserID  UserID    `json:"user_id"`
	XP      int64     `json:"xp"`
	Level   int64     `json:"level"`
	Balance int64     `json:"balance"`
	Updated time.Time `json:"updated"`
}

// Grant records that a reward was awarded to a user. At most one Grant exists
// per (user, reward) pair, ever.
type Grant struct {
	UserID    UserID    `json:"user_id"`
	RewardID  RewardID  `json:"reward_id"`
	GrantedAt time.Time `json:"granted_at"`
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}
