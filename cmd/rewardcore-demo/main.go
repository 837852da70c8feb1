package main

import (
	"log/slog"
	"net/http"
	"os"

	mem "rewardcore/adapters/memory"
	"rewardcore/api/httpapi"
	"rewardcore/catalog"
	"rewardcore/engine"
	"rewardcore/leaderboard"
	"rewardcore/realtime"
	"rewardcore/reward"
)

// demoCatalog is a small built-in catalog so the demo runs with no files.
const demoCatalog = `[
	{
		"id": "ach_first_budget",
		"name": "First Budget",
		"kinds": ["budget_planned"],
		"condition": {"kind": "first_occurrence"},
		"reward": {"xp": 30, "achievement_id": "first-budget"}
	},
	{
		"id": "ach_savings_10k",
		"name": "Super Saver",
		"kinds": ["goal_deposit"],
		"condition": {"kind": "threshold_reached", "field": "total_saved", "target": 10000},
		"reward": {"xp": 50, "achievement_id": "super-saver"}
	},
	{
		"id": "badge_quiz_3",
		"name": "Quiz Whiz",
		"kinds": ["quiz_completed"],
		"condition": {"kind": "count_at_least", "field": "completed_count", "count": 3},
		"reward": {"xp": 25, "badge_id": "quiz-whiz"}
	}
]`

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	cat, err := catalog.Parse([]byte(demoCatalog))
	if err != nil {
		slog.Error("bad demo catalog", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub()
	board := leaderboard.NewSkipList()
	svc := reward.New(
		reward.WithLedger(mem.New()),
		reward.WithCatalog(cat),
		reward.WithRealtime(hub),
		reward.WithLeaderboard(board),
		reward.WithDispatchMode(engine.DispatchAsync),
	)

	handler := httpapi.NewMux(svc, cat, hub, httpapi.Options{AllowCORSOrigin: "*", Board: board})

	slog.Info("starting demo server on :8080",
		"try", `curl -XPOST localhost:8080/events -d '{"type":"budget_planned","user_id":1,"data":{}}'`)

	if err := http.ListenAndServe(":8080", handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}
