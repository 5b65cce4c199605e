package insight

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/spendwatch/internal/store"
)

// Sum adds up record amounts. An empty slice sums to zero.
func Sum(recs []*store.FinancialRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Amount)
	}
	return total
}

// Average returns the mean record amount. ok is false for an empty slice;
// callers must treat that as "no action", never as an error.
func Average(recs []*store.FinancialRecord) (avg decimal.Decimal, ok bool) {
	if len(recs) == 0 {
		return decimal.Zero, false
	}
	return Sum(recs).Div(decimal.NewFromInt(int64(len(recs)))), true
}

// MonthWindow returns the inclusive bounds of the calendar month containing
// now, in loc: first day 00:00:00 through last day 23:59:59.
func MonthWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	n := now.In(loc)
	start := time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}

// PreviousMonthWindow returns the inclusive bounds of the month before the
// one containing now, in loc.
func PreviousMonthWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	start, _ := MonthWindow(now, loc)
	prevStart := start.AddDate(0, -1, 0)
	return prevStart, start.Add(-time.Second)
}

// Aggregator computes windowed statistics over the financial record
// streams. It only reads; rule evaluators never write through it.
type Aggregator struct {
	records store.RecordStore
}

// NewAggregator creates an Aggregator over the given record store.
func NewAggregator(records store.RecordStore) *Aggregator {
	return &Aggregator{records: records}
}

// CategoryWindow returns the owner's expenses in a category from the given
// time onward, excluding excludeID (the triggering record, which is
// already persisted when evaluation runs). A zero from means all-time.
func (a *Aggregator) CategoryWindow(ctx context.Context, ownerID, category string, from time.Time, excludeID string) ([]*store.FinancialRecord, error) {
	recs, err := a.records.QueryRecords(ctx, store.RecordQuery{
		OwnerID:  ownerID,
		Type:     store.RecordTypeExpense,
		Category: category,
		From:     from,
	})
	if err != nil {
		return nil, fmt.Errorf("CategoryWindow: %w", err)
	}
	return excludeRecord(recs, excludeID), nil
}

// RecentIncomes returns the owner's latest incomes, newest first, excluding
// excludeID.
func (a *Aggregator) RecentIncomes(ctx context.Context, ownerID string, limit int, excludeID string) ([]*store.FinancialRecord, error) {
	recs, err := a.records.QueryRecords(ctx, store.RecordQuery{
		OwnerID:   ownerID,
		Type:      store.RecordTypeIncome,
		OrderDesc: true,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("RecentIncomes: %w", err)
	}
	return excludeRecord(recs, excludeID), nil
}

// MonthTotals returns total income and total expense between from and to
// inclusive.
func (a *Aggregator) MonthTotals(ctx context.Context, ownerID string, from, to time.Time) (income, expense decimal.Decimal, err error) {
	incomes, err := a.records.QueryRecords(ctx, store.RecordQuery{
		OwnerID: ownerID,
		Type:    store.RecordTypeIncome,
		From:    from,
		To:      to,
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("MonthTotals: incomes: %w", err)
	}
	expenses, err := a.records.QueryRecords(ctx, store.RecordQuery{
		OwnerID: ownerID,
		Type:    store.RecordTypeExpense,
		From:    from,
		To:      to,
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("MonthTotals: expenses: %w", err)
	}
	return Sum(incomes), Sum(expenses), nil
}

func excludeRecord(recs []*store.FinancialRecord, id string) []*store.FinancialRecord {
	if id == "" {
		return recs
	}
	out := recs[:0]
	for _, r := range recs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
