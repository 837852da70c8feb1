package core

import "time"

// NotificationType enumerates the derived events the reward core announces
// after applying a fact.
type NotificationType string

const (
	NoteXPAdded             NotificationType = "xp_added"
	NoteLevelUp             NotificationType = "level_up"
	NoteRewardGranted       NotificationType = "reward_granted"
	NoteBadgeUnlocked       NotificationType = "badge_unlocked"
	NoteAchievementUnlocked NotificationType = "achievement_unlocked"
)

// Notification is an immutable record of a reward-side effect. Consumed by
// the realtime hub, the webhook forwarder, and anything else that wants
// "you earned X" feedback.
type Notification struct {
	Type          NotificationType `json:"type"`
	Time          time.Time        `json:"time"`
	UserID        UserID           `json:"user_id"`
	RewardID      RewardID         `json:"reward_id,omitempty"`
	RewardName    string           `json:"reward_name,omitempty"`
	BadgeID       BadgeID          `json:"badge_id,omitempty"`
	AchievementID AchievementID    `json:"achievement_id,omitempty"`
	XP            int64            `json:"xp,omitempty"`
	Total         int64            `json:"total,omitempty"`
	Level         int64            `json:"level,omitempty"`
}

func NewXPAdded(user UserID, delta, total int64) Notification {
	return Notification{Type: NoteXPAdded, Time: time.Now().UTC(), UserID: user, XP: delta, Total: total}
}

func NewLevelUp(user UserID, level int64) Notification {
	return Notification{Type: NoteLevelUp, Time: time.Now().UTC(), UserID: user, Level: level}
}

func NewRewardGranted(user UserID, reward RewardID, name string, xp int64) Notification {
	return Notification{Type: NoteRewardGranted, Time: time.Now().UTC(), UserID: user, RewardID: reward, RewardName: name, XP: xp}
}

func NewBadgeUnlocked(user UserID, reward RewardID, badge BadgeID) Notification {
	return Notification{Type: NoteBadgeUnlocked, Time: time.Now().UTC(), UserID: user, RewardID: reward, BadgeID: badge}
}

func NewAchievementUnlocked(user UserID, reward RewardID, achievement AchievementID) Notification {
	return Notification{Type: NoteAchievementUnlocked, Time: time.Now().UTC(), UserID: user, RewardID: reward, AchievementID: achievement}
}
