// Package report builds per-month spending reports: category totals, the
// income/expense balance, and an optional model-written summary, uploaded
// as JSON to Cloud Storage.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/spendwatch/internal/insight"
	"github.com/avolkov/spendwatch/internal/logger"
	"github.com/avolkov/spendwatch/internal/store"
)

// monthKeyLayout names report objects and budget keys, e.g. "2025-07".
const monthKeyLayout = "2006-01"

// CategoryTotal is one category's spend within the report month.
type CategoryTotal struct {
	Category string `json:"category"`
	Total    string `json:"total"`
}

// Report is the JSON document uploaded to storage.
type Report struct {
	OwnerID      string          `json:"owner_id"`
	MonthKey     string          `json:"month_key"`
	TotalIncome  string          `json:"total_income"`
	TotalExpense string          `json:"total_expense"`
	ByCategory   []CategoryTotal `json:"by_category"`
	Summary      string          `json:"summary,omitempty"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// Summarizer writes a short natural-language summary of a report.
type Summarizer interface {
	Summarize(ctx context.Context, r *Report) (string, error)
}

// Uploader persists the serialized report under an object name.
type Uploader interface {
	Upload(ctx context.Context, objectName string, data []byte) error
}

// Generator assembles and stores monthly reports. Summarizer may be nil;
// a summarizer failure degrades to a report without a summary, while an
// upload failure fails the generation.
type Generator struct {
	records    store.RecordStore
	summarizer Summarizer
	uploader   Uploader
	loc        *time.Location
}

// NewGenerator creates a report Generator.
func NewGenerator(records store.RecordStore, summarizer Summarizer, uploader Uploader, loc *time.Location) *Generator {
	return &Generator{
		records:    records,
		summarizer: summarizer,
		uploader:   uploader,
		loc:        loc,
	}
}

// Generate builds the report for the month containing ref and uploads it
// to reports/{ownerID}/{monthKey}.json.
func (g *Generator) Generate(ctx context.Context, ownerID string, ref time.Time) (*Report, error) {
	log := logger.FromContext(ctx)
	from, to := insight.MonthWindow(ref, g.loc)

	incomes, err := g.records.QueryRecords(ctx, store.RecordQuery{
		OwnerID: ownerID,
		Type:    store.RecordTypeIncome,
		From:    from,
		To:      to,
	})
	if err != nil {
		return nil, fmt.Errorf("Generate: querying incomes: %w", err)
	}
	expenses, err := g.records.QueryRecords(ctx, store.RecordQuery{
		OwnerID: ownerID,
		Type:    store.RecordTypeExpense,
		From:    from,
		To:      to,
	})
	if err != nil {
		return nil, fmt.Errorf("Generate: querying expenses: %w", err)
	}

	byCategory := make(map[string]decimal.Decimal)
	for _, e := range expenses {
		byCategory[e.Category] = byCategory[e.Category].Add(e.Amount)
	}
	categories := make([]CategoryTotal, 0, len(byCategory))
	for cat, total := range byCategory {
		categories = append(categories, CategoryTotal{Category: cat, Total: total.StringFixed(2)})
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Category < categories[j].Category })

	r := &Report{
		OwnerID:      ownerID,
		MonthKey:     from.Format(monthKeyLayout),
		TotalIncome:  insight.Sum(incomes).StringFixed(2),
		TotalExpense: insight.Sum(expenses).StringFixed(2),
		ByCategory:   categories,
		GeneratedAt:  time.Now(),
	}

	if g.summarizer != nil {
		summary, err := g.summarizer.Summarize(ctx, r)
		if err != nil {
			log.Warn().Err(err).Str("owner_id", ownerID).Msg("Report summary generation failed, continuing without")
		} else {
			r.Summary = summary
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Generate: marshaling report: %w", err)
	}

	objectName := fmt.Sprintf("reports/%s/%s.json", ownerID, r.MonthKey)
	if err := g.uploader.Upload(ctx, objectName, data); err != nil {
		return nil, fmt.Errorf("Generate: uploading report: %w", err)
	}

	log.Info().
		Str("owner_id", ownerID).
		Str("month_key", r.MonthKey).
		Str("object", objectName).
		Msg("Monthly report generated")
	return r, nil
}
