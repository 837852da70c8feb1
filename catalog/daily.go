package catalog

import (
	"fmt"
	"time"

	"rewardcore/core"
)

// DailyChallengeXP is the fixed payout for completing the day's challenge.
const DailyChallengeXP int64 = 20

// dailyRotation is the fixed set of challenge templates. The day of year
// picks one, so every user sees the same challenge on a given date.
var dailyRotation = []Definition{
	{
		Name:      "Save a share of your income",
		Kinds:     []core.FactKind{core.FactGoalDeposit},
		Condition: core.ThresholdReached{Field: "saved_percent", Target: 15},
	},
	{
		Name:      "Create a new category",
		Kinds:     []core.FactKind{core.FactCategoryCreated},
		Condition: core.FirstOccurrence{},
	},
	{
		Name:      "Deposit into a savings goal",
		Kinds:     []core.FactKind{core.FactGoalDeposit},
		Condition: core.FirstOccurrence{},
	},
	{
		Name:      "Plan a budget",
		Kinds:     []core.FactKind{core.FactBudgetPlanned},
		Condition: core.FirstOccurrence{},
	},
	{
		Name:      "Complete a quiz",
		Kinds:     []core.FactKind{core.FactQuizCompleted},
		Condition: core.FirstOccurrence{},
	},
}

// TodayChallenge returns the challenge active on the given date. The reward
// id embeds the date, so the once-per-(user, reward) grant invariant yields
// exactly once-per-day semantics with no extra bookkeeping.
func TodayChallenge(now time.Time) Definition {
	day := now.UTC().YearDay()
	tpl := dailyRotation[day%len(dailyRotation)]
	def := tpl
	def.ID = core.RewardID(fmt.Sprintf("daily:%d:%s", day%len(dailyRotation), now.UTC().Format("2006-01-02")))
	def.Reward = Reward{XP: DailyChallengeXP}
	return def
}
