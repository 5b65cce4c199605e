package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/spendwatch/internal/api/middleware"
	"github.com/avolkov/spendwatch/internal/events"
	"github.com/avolkov/spendwatch/internal/logger"
	"github.com/avolkov/spendwatch/internal/store"
	"github.com/avolkov/spendwatch/internal/store/inmemory"
)

type capturePublisher struct {
	published []events.Event
	err       error
}

func (p *capturePublisher) Publish(ctx context.Context, ev events.Event) error {
	p.published = append(p.published, ev)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

// serve runs a handler through the owner middleware the router applies in
// production.
func serve(h http.HandlerFunc, method, target, owner, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	rec := httptest.NewRecorder()
	middleware.Owner(h).ServeHTTP(rec, req)
	return rec
}

func TestCreateRecord(t *testing.T) {
	db := inmemory.New()
	pub := &capturePublisher{}
	h := NewRecordsHandler(db, pub, logger.New("test"))

	t.Run("CreatesExpenseAndPublishes", func(t *testing.T) {
		body := `{"type":"expense","amount":"42.50","category":"Food","occurred_at":"2025-07-14T10:00:00Z"}`
		rec := serve(h.CreateRecord, http.MethodPost, "/api/records", "u1", body)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		var created store.FinancialRecord
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if created.ID == "" || created.OwnerID != "u1" {
			t.Errorf("created = %+v", created)
		}
		if !created.Amount.Equal(decimal.RequireFromString("42.50")) {
			t.Errorf("Amount = %s", created.Amount)
		}

		stored, err := db.GetRecord(context.Background(), "u1", store.RecordTypeExpense, created.ID)
		if err != nil {
			t.Fatalf("GetRecord: %v", err)
		}
		if stored.Category != "Food" {
			t.Errorf("stored = %+v", stored)
		}

		if len(pub.published) != 1 {
			t.Fatalf("Expected 1 published event, got %d", len(pub.published))
		}
		ev := pub.published[0]
		if ev.Type != events.TypeExpenseCreated || ev.OwnerID != "u1" || ev.Record == nil {
			t.Errorf("event = %+v", ev)
		}
	})

	t.Run("IncomeGetsIncomeEvent", func(t *testing.T) {
		body := `{"type":"income","amount":"1000"}`
		rec := serve(h.CreateRecord, http.MethodPost, "/api/records", "u1", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		last := pub.published[len(pub.published)-1]
		if last.Type != events.TypeIncomeCreated {
			t.Errorf("event type = %s", last.Type)
		}
	})

	t.Run("RejectsBadInput", func(t *testing.T) {
		cases := []struct {
			name string
			body string
		}{
			{"UnknownType", `{"type":"loan","amount":"10"}`},
			{"NegativeAmount", `{"type":"income","amount":"-5"}`},
			{"ZeroAmount", `{"type":"expense","amount":"0","category":"Food"}`},
			{"NonNumericAmount", `{"type":"income","amount":"ten"}`},
			{"ExpenseWithoutCategory", `{"type":"expense","amount":"10"}`},
			{"BadTimestamp", `{"type":"income","amount":"10","occurred_at":"yesterday"}`},
			{"NotJSON", `{{`},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				rec := serve(h.CreateRecord, http.MethodPost, "/api/records", "u1", tc.body)
				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want 400", rec.Code)
				}
			})
		}
	})

	t.Run("RequiresOwner", func(t *testing.T) {
		rec := serve(h.CreateRecord, http.MethodPost, "/api/records", "", `{"type":"income","amount":"10"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestDeleteRecord(t *testing.T) {
	db := inmemory.New()
	pub := &capturePublisher{}
	h := NewRecordsHandler(db, pub, logger.New("test"))

	err := db.InsertRecord(context.Background(), &store.FinancialRecord{
		ID:         "r1",
		OwnerID:    "u1",
		Type:       store.RecordTypeExpense,
		Amount:     decimal.RequireFromString("10"),
		Category:   "Food",
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	t.Run("DeletesAndPublishes", func(t *testing.T) {
		rec := serve(func(w http.ResponseWriter, r *http.Request) {
			h.DeleteRecord(w, r, store.RecordTypeExpense, "r1")
		}, http.MethodDelete, "/api/records/expense/r1", "u1", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if _, err := db.GetRecord(context.Background(), "u1", store.RecordTypeExpense, "r1"); err == nil {
			t.Error("Expected record to be deleted")
		}
		if len(pub.published) != 1 || pub.published[0].Type != events.TypeExpenseDeleted {
			t.Errorf("published = %+v", pub.published)
		}
		// The deleted payload rides along for the recheck rules.
		if pub.published[0].Record == nil || pub.published[0].Record.ID != "r1" {
			t.Errorf("event record = %+v", pub.published[0].Record)
		}
	})

	t.Run("MissingRecordIs404", func(t *testing.T) {
		rec := serve(func(w http.ResponseWriter, r *http.Request) {
			h.DeleteRecord(w, r, store.RecordTypeExpense, "ghost")
		}, http.MethodDelete, "/api/records/expense/ghost", "u1", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestListInsights(t *testing.T) {
	db := inmemory.New()
	h := NewInsightsHandler(db, logger.New("test"))
	now := time.Now()

	ctx := context.Background()
	seed := []*store.Insight{
		{ID: "1", OwnerID: "u1", Kind: store.KindAlert, Title: "A", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "2", OwnerID: "u1", Kind: store.KindAdvice, Title: "B", CreatedAt: now.Add(-time.Hour)},
		{ID: "3", OwnerID: "u1", Kind: store.KindAlert, Title: "C", CreatedAt: now},
	}
	for _, ins := range seed {
		if err := db.InsertInsight(ctx, ins); err != nil {
			t.Fatalf("InsertInsight: %v", err)
		}
	}

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) []store.Insight {
		t.Helper()
		var resp struct {
			Insights []store.Insight `json:"insights"`
			Count    int             `json:"count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.Insights
	}

	t.Run("NewestFirst", func(t *testing.T) {
		rec := serve(h.ListInsights, http.MethodGet, "/api/insights", "u1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		got := decode(t, rec)
		if len(got) != 3 || got[0].ID != "3" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("FilterByKind", func(t *testing.T) {
		rec := serve(h.ListInsights, http.MethodGet, "/api/insights?kind=Advice", "u1", "")
		got := decode(t, rec)
		if len(got) != 1 || got[0].ID != "2" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("RejectsUnknownKind", func(t *testing.T) {
		rec := serve(h.ListInsights, http.MethodGet, "/api/insights?kind=Rumor", "u1", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("LatestReturnsSingle", func(t *testing.T) {
		rec := serve(h.LatestInsight, http.MethodGet, "/api/insights/latest", "u1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got store.Insight
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != "3" {
			t.Errorf("ID = %s, want 3", got.ID)
		}
	})

	t.Run("LatestEmptyIs404", func(t *testing.T) {
		rec := serve(h.LatestInsight, http.MethodGet, "/api/insights/latest", "empty-owner", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestBudgetEndpoints(t *testing.T) {
	db := inmemory.New()
	h := NewBudgetsHandler(db, logger.New("test"))

	t.Run("UpsertThenGet", func(t *testing.T) {
		rec := serve(func(w http.ResponseWriter, r *http.Request) {
			h.UpsertBudget(w, r, "2025-07")
		}, http.MethodPut, "/api/budgets/2025-07", "u1", `{"total_amount":"1500"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		rec = serve(func(w http.ResponseWriter, r *http.Request) {
			h.GetBudget(w, r, "2025-07")
		}, http.MethodGet, "/api/budgets/2025-07", "u1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var b store.Budget
		if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !b.TotalAmount.Equal(decimal.RequireFromString("1500")) {
			t.Errorf("TotalAmount = %s", b.TotalAmount)
		}
	})

	t.Run("RejectsBadMonthKey", func(t *testing.T) {
		rec := serve(func(w http.ResponseWriter, r *http.Request) {
			h.UpsertBudget(w, r, "July-2025")
		}, http.MethodPut, "/api/budgets/July-2025", "u1", `{"total_amount":"1"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("MissingBudgetIs404", func(t *testing.T) {
		rec := serve(func(w http.ResponseWriter, r *http.Request) {
			h.GetBudget(w, r, "1999-01")
		}, http.MethodGet, "/api/budgets/1999-01", "u1", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rec := serve(func(w http.ResponseWriter, r *http.Request) {
			h.DeleteBudget(w, r, "2025-07")
		}, http.MethodDelete, "/api/budgets/2025-07", "u1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if _, err := db.GetBudget(context.Background(), "u1", "2025-07"); err == nil {
			t.Error("Expected budget to be gone")
		}
	})
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
