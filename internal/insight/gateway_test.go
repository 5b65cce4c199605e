package insight

import (
	"context"
	"testing"
	"time"

	"github.com/avolkov/spendwatch/internal/store"
	"github.com/avolkov/spendwatch/internal/store/inmemory"
)

func TestGatewayTryEmit(t *testing.T) {
	ctx := context.Background()
	db := inmemory.New()
	gw := NewGateway(db, FixedClock(testNow), time.UTC)

	draft := &Draft{
		Kind:      store.KindAlert,
		Title:     "High Spending on Food",
		Body:      "You spent $75.00 on Food. Your 4-week avg is ~$50.00.",
		Category:  "Food",
		Rationale: "Your recent expense is significantly above your average.",
		Bucket:    testNow,
	}

	outcome, ins, err := gw.TryEmit(ctx, "u1", draft)
	if err != nil {
		t.Fatalf("TryEmit: %v", err)
	}
	if outcome != Created {
		t.Fatalf("outcome = %v, want Created", outcome)
	}
	if ins.ID == "" {
		t.Error("Expected a generated insight ID")
	}
	if ins.Fingerprint != Fingerprint(draft.Title, draft.Body, testNow) {
		t.Errorf("Fingerprint = %q, want derived value", ins.Fingerprint)
	}
	if !ins.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %s, want clock time", ins.CreatedAt)
	}

	t.Run("DuplicateIsSuppressed", func(t *testing.T) {
		outcome, ins, err := gw.TryEmit(ctx, "u1", draft)
		if err != nil {
			t.Fatalf("TryEmit: %v", err)
		}
		if outcome != Deduplicated {
			t.Errorf("outcome = %v, want Deduplicated", outcome)
		}
		if ins != nil {
			t.Errorf("Expected nil insight on dedupe, got %+v", ins)
		}

		all, err := db.QueryInsights(ctx, store.InsightQuery{OwnerID: "u1"})
		if err != nil {
			t.Fatalf("QueryInsights: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("Expected 1 stored insight, got %d", len(all))
		}
	})

	t.Run("OtherOwnerIsIndependent", func(t *testing.T) {
		outcome, _, err := gw.TryEmit(ctx, "u2", draft)
		if err != nil {
			t.Fatalf("TryEmit: %v", err)
		}
		if outcome != Created {
			t.Errorf("outcome = %v, want Created for a different owner", outcome)
		}
	})

	t.Run("NextDayCreatesAgain", func(t *testing.T) {
		nextDay := *draft
		nextDay.Bucket = testNow.AddDate(0, 0, 1)
		outcome, _, err := gw.TryEmit(ctx, "u1", &nextDay)
		if err != nil {
			t.Fatalf("TryEmit: %v", err)
		}
		if outcome != Created {
			t.Errorf("outcome = %v, want Created on the next day", outcome)
		}
	})
}

func TestGatewayRetract(t *testing.T) {
	ctx := context.Background()
	db := inmemory.New()
	gw := NewGateway(db, FixedClock(testNow), time.UTC)
	monthStart, _ := MonthWindow(testNow, time.UTC)

	seed := []*store.Insight{
		{ID: "1", OwnerID: "u1", Kind: store.KindAlert, Title: titleNegativeBalance, CreatedAt: monthStart.Add(time.Hour)},
		{ID: "2", OwnerID: "u1", Kind: store.KindAlert, Title: titleNegativeBalance, CreatedAt: monthStart.Add(48 * time.Hour)},
		{ID: "3", OwnerID: "u1", Kind: store.KindAlert, Title: titleNegativeBalance, CreatedAt: monthStart.Add(-time.Hour)},
		{ID: "4", OwnerID: "u1", Kind: store.KindAdvice, Title: titleBackToPositive, CreatedAt: monthStart.Add(time.Hour)},
	}
	for _, ins := range seed {
		if err := db.InsertInsight(ctx, ins); err != nil {
			t.Fatalf("InsertInsight: %v", err)
		}
	}

	removed, err := gw.Retract(ctx, "u1", &Retraction{
		Titles: []string{titleNegativeBalance},
		From:   monthStart,
	})
	if err != nil {
		t.Fatalf("Retract: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2 (the pre-month alert and the advice stay)", removed)
	}

	left, err := db.QueryInsights(ctx, store.InsightQuery{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("QueryInsights: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("Expected 2 surviving insights, got %d", len(left))
	}
	for _, ins := range left {
		if ins.ID != "3" && ins.ID != "4" {
			t.Errorf("Unexpected survivor %s", ins.ID)
		}
	}

	t.Run("NoMatchesIsNoop", func(t *testing.T) {
		removed, err := gw.Retract(ctx, "u1", &Retraction{
			Titles: []string{titleNegativeBalance},
			From:   monthStart,
		})
		if err != nil {
			t.Fatalf("Retract: %v", err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, want 0", removed)
		}
	})
}
