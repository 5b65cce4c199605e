package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/spendwatch/internal/store"
	"github.com/avolkov/spendwatch/internal/store/inmemory"
)

type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, r *Report) (string, error) {
	return f.summary, f.err
}

type fakeUploader struct {
	objectName string
	data       []byte
	err        error
}

func (f *fakeUploader) Upload(ctx context.Context, objectName string, data []byte) error {
	f.objectName = objectName
	f.data = data
	return f.err
}

func seedMonth(t *testing.T, db *inmemory.Store, owner string, ref time.Time) {
	t.Helper()
	ctx := context.Background()
	seed := []*store.FinancialRecord{
		{ID: "i1", OwnerID: owner, Type: store.RecordTypeIncome, Amount: decimal.RequireFromString("3000"), OccurredAt: ref.AddDate(0, 0, 2)},
		{ID: "e1", OwnerID: owner, Type: store.RecordTypeExpense, Category: "Rent", Amount: decimal.RequireFromString("1200"), OccurredAt: ref.AddDate(0, 0, 3)},
		{ID: "e2", OwnerID: owner, Type: store.RecordTypeExpense, Category: "Food", Amount: decimal.RequireFromString("300.50"), OccurredAt: ref.AddDate(0, 0, 5)},
		{ID: "e3", OwnerID: owner, Type: store.RecordTypeExpense, Category: "Food", Amount: decimal.RequireFromString("99.50"), OccurredAt: ref.AddDate(0, 0, 10)},
		// Previous month, must not leak into the report.
		{ID: "old", OwnerID: owner, Type: store.RecordTypeExpense, Category: "Food", Amount: decimal.RequireFromString("777"), OccurredAt: ref.AddDate(0, -1, 5)},
	}
	for _, rec := range seed {
		if err := db.InsertRecord(ctx, rec); err != nil {
			t.Fatalf("InsertRecord: %v", err)
		}
	}
}

func TestGeneratorGenerate(t *testing.T) {
	ctx := context.Background()
	db := inmemory.New()
	ref := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	seedMonth(t, db, "u1", ref)

	uploader := &fakeUploader{}
	gen := NewGenerator(db, &fakeSummarizer{summary: "A solid month."}, uploader, time.UTC)

	rep, err := gen.Generate(ctx, "u1", ref)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if rep.MonthKey != "2025-07" {
		t.Errorf("MonthKey = %q", rep.MonthKey)
	}
	if rep.TotalIncome != "3000.00" {
		t.Errorf("TotalIncome = %q", rep.TotalIncome)
	}
	if rep.TotalExpense != "1600.00" {
		t.Errorf("TotalExpense = %q", rep.TotalExpense)
	}
	if rep.Summary != "A solid month." {
		t.Errorf("Summary = %q", rep.Summary)
	}

	// Categories sorted by name: Food before Rent.
	if len(rep.ByCategory) != 2 {
		t.Fatalf("Expected 2 categories, got %d", len(rep.ByCategory))
	}
	if rep.ByCategory[0].Category != "Food" || rep.ByCategory[0].Total != "400.00" {
		t.Errorf("ByCategory[0] = %+v", rep.ByCategory[0])
	}
	if rep.ByCategory[1].Category != "Rent" || rep.ByCategory[1].Total != "1200.00" {
		t.Errorf("ByCategory[1] = %+v", rep.ByCategory[1])
	}

	if uploader.objectName != "reports/u1/2025-07.json" {
		t.Errorf("objectName = %q", uploader.objectName)
	}
	var uploaded Report
	if err := json.Unmarshal(uploader.data, &uploaded); err != nil {
		t.Fatalf("Uploaded payload is not valid JSON: %v", err)
	}
	if uploaded.TotalExpense != rep.TotalExpense {
		t.Error("Uploaded payload differs from returned report")
	}
}

func TestGeneratorSummarizerFailureDegrades(t *testing.T) {
	ctx := context.Background()
	db := inmemory.New()
	ref := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	seedMonth(t, db, "u1", ref)

	uploader := &fakeUploader{}
	gen := NewGenerator(db, &fakeSummarizer{err: errors.New("model unavailable")}, uploader, time.UTC)

	rep, err := gen.Generate(ctx, "u1", ref)
	if err != nil {
		t.Fatalf("Generate should survive a summarizer failure: %v", err)
	}
	if rep.Summary != "" {
		t.Errorf("Expected empty summary, got %q", rep.Summary)
	}
	if uploader.data == nil {
		t.Error("Expected the report to be uploaded anyway")
	}
}

func TestGeneratorUploadFailure(t *testing.T) {
	ctx := context.Background()
	db := inmemory.New()
	ref := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	seedMonth(t, db, "u1", ref)

	gen := NewGenerator(db, nil, &fakeUploader{err: errors.New("bucket gone")}, time.UTC)

	if _, err := gen.Generate(ctx, "u1", ref); err == nil {
		t.Error("Expected upload failure to fail generation")
	}
}

func TestGeneratorEmptyMonth(t *testing.T) {
	ctx := context.Background()
	db := inmemory.New()
	uploader := &fakeUploader{}
	gen := NewGenerator(db, nil, uploader, time.UTC)

	rep, err := gen.Generate(ctx, "u1", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rep.TotalIncome != "0.00" || rep.TotalExpense != "0.00" {
		t.Errorf("Expected zero totals, got %s/%s", rep.TotalIncome, rep.TotalExpense)
	}
	if len(rep.ByCategory) != 0 {
		t.Errorf("Expected no categories, got %d", len(rep.ByCategory))
	}
}
