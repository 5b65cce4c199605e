package insight

import (
	"context"
	"testing"
	"time"

	"github.com/avolkov/spendwatch/internal/logger"
	"github.com/avolkov/spendwatch/internal/store"
	"github.com/avolkov/spendwatch/internal/store/inmemory"
)

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	db := inmemory.New()
	db.PutUser(&store.User{ID: "u1"})
	db.PutUser(&store.User{ID: "u2"})

	cutoff := testNow.Add(-DefaultRetention)
	seed := []*store.Insight{
		// One second past retention: deleted.
		{ID: "expired", OwnerID: "u1", Kind: store.KindAlert, Title: "a", CreatedAt: cutoff.Add(-time.Second)},
		// Exactly at the cutoff: kept, the bound is exclusive.
		{ID: "boundary", OwnerID: "u1", Kind: store.KindAlert, Title: "b", CreatedAt: cutoff},
		{ID: "fresh", OwnerID: "u1", Kind: store.KindAlert, Title: "c", CreatedAt: testNow.Add(-time.Hour)},
		// Advice is never swept regardless of age.
		{ID: "old-advice", OwnerID: "u1", Kind: store.KindAdvice, Title: "d", CreatedAt: testNow.AddDate(-1, 0, 0)},
		{ID: "other-owner", OwnerID: "u2", Kind: store.KindAlert, Title: "e", CreatedAt: testNow.AddDate(0, 0, -30)},
	}
	for _, ins := range seed {
		if err := db.InsertInsight(ctx, ins); err != nil {
			t.Fatalf("InsertInsight: %v", err)
		}
	}

	sw := NewSweeper(db, db, 0, FixedClock(testNow), logger.New("test"))
	res := sw.Sweep(ctx)

	if res.Owners != 2 {
		t.Errorf("Owners = %d, want 2", res.Owners)
	}
	if res.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", res.Deleted)
	}
	if res.Failed != 0 {
		t.Errorf("Failed = %d, want 0", res.Failed)
	}

	left, err := db.QueryInsights(ctx, store.InsightQuery{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("QueryInsights: %v", err)
	}
	kept := map[string]bool{}
	for _, ins := range left {
		kept[ins.ID] = true
	}
	for _, id := range []string{"boundary", "fresh", "old-advice"} {
		if !kept[id] {
			t.Errorf("Expected %s to survive the sweep", id)
		}
	}
	if kept["expired"] {
		t.Error("Expected expired alert to be deleted")
	}
}

func TestSweeperCustomRetention(t *testing.T) {
	ctx := context.Background()
	db := inmemory.New()
	db.PutUser(&store.User{ID: "u1"})

	threeDays := 3 * 24 * time.Hour
	seed := []*store.Insight{
		{ID: "four-days", OwnerID: "u1", Kind: store.KindAlert, Title: "a", CreatedAt: testNow.AddDate(0, 0, -4)},
		{ID: "two-days", OwnerID: "u1", Kind: store.KindAlert, Title: "b", CreatedAt: testNow.AddDate(0, 0, -2)},
	}
	for _, ins := range seed {
		if err := db.InsertInsight(ctx, ins); err != nil {
			t.Fatalf("InsertInsight: %v", err)
		}
	}

	sw := NewSweeper(db, db, threeDays, FixedClock(testNow), logger.New("test"))
	if res := sw.Sweep(ctx); res.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", res.Deleted)
	}
}
