package aggregates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"rewardcore/core"
)

func TestHTTPSourceFetchesAggregates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "5" {
			t.Errorf("missing user_id query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"completed_count":4,"streak_days":2}`))
	}))
	defer srv.Close()

	src := NewHTTPSource([]Endpoint{{Kind: core.FactQuizCompleted, URL: srv.URL}})
	aggs, err := src.Aggregates(context.Background(), core.NewFact(core.FactQuizCompleted, 5, nil))
	if err != nil {
		t.Fatalf("Aggregates: %v", err)
	}
	if aggs["completed_count"] != float64(4) {
		t.Fatalf("unexpected aggregates: %v", aggs)
	}
}

func TestHTTPSourceUnmappedKind(t *testing.T) {
	src := NewHTTPSource(nil)
	aggs, err := src.Aggregates(context.Background(), core.NewFact(core.FactGoalDeposit, 1, nil))
	if err != nil || aggs != nil {
		t.Fatalf("expected nil/nil for unmapped kind, got %v err %v", aggs, err)
	}
}

func TestHTTPSourceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	deadURL := srv.URL
	srv.Close()

	src := NewHTTPSource([]Endpoint{{Kind: core.FactQuizCompleted, URL: deadURL}})
	_, err := src.Aggregates(context.Background(), core.NewFact(core.FactQuizCompleted, 1, nil))
	if !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPSourceBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewHTTPSource([]Endpoint{{Kind: core.FactQuizCompleted, URL: srv.URL}})
	_, err := src.Aggregates(context.Background(), core.NewFact(core.FactQuizCompleted, 1, nil))
	if !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
