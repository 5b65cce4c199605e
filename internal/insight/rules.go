package insight

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/spendwatch/internal/events"
	"github.com/avolkov/spendwatch/internal/logger"
	"github.com/avolkov/spendwatch/internal/store"
)

// Insight titles and categories. These strings participate in fingerprints
// and retraction selectors, so they are fixed.
const (
	titleNegativeBalance = "Negative Balance Alert"
	titleIncomeDrop      = "Income Drop Alert"
	titleBudgetBreach    = "Budget Breach Alert"
	titleBackToPositive  = "Balance Back to Positive!"
	titleStrongRecovery  = "Strong Financial Recovery!"

	categoryBudget = "Budget"
	categoryIncome = "Income"
)

// Rule thresholds. Comparisons are inclusive on the trigger side.
var (
	overspendRatio      = decimal.RequireFromString("1.4")
	spikeRatio          = decimal.RequireFromString("2")
	incomeDropRatio     = decimal.RequireFromString("0.5")
	strongRecoveryRatio = decimal.RequireFromString("1.3")
)

const (
	overspendWindowDays = 28
	spikeWindowDays     = 7
	minCategorySamples  = 2
	incomeProbeLimit    = 4
)

// Draft is an insight an evaluator wants emitted. Bucket is the
// day-granular date feeding the dedupe fingerprint.
type Draft struct {
	Kind      store.InsightKind
	Title     string
	Body      string
	Category  string
	Rationale string
	Bucket    time.Time
}

// Retraction selects previously emitted insights to delete, by field
// equality and time range rather than fingerprint.
type Retraction struct {
	Kind   store.InsightKind
	Titles []string
	From   time.Time
}

// Action is one side effect an evaluator requests. Exactly one of Emit and
// Retract is set. Evaluators return a nil slice for NoAction.
type Action struct {
	Emit    *Draft
	Retract *Retraction
}

// Evaluator is a pure decision function over a triggering event and the
// aggregates it requests. Evaluators never write; the engine applies their
// actions uniformly.
type Evaluator interface {
	Name() string
	Triggers() []events.Type
	Evaluate(ctx context.Context, ev events.Event) ([]Action, error)
}

// ruleDeps is the read-only context shared by every evaluator.
type ruleDeps struct {
	agg      *Aggregator
	insights store.InsightStore
	clock    Clock
	loc      *time.Location
}

// NewEvaluators constructs the full rule set. The dispatcher derives its
// routing table from each evaluator's Triggers.
func NewEvaluators(agg *Aggregator, insights store.InsightStore, clock Clock, loc *time.Location) []Evaluator {
	deps := ruleDeps{agg: agg, insights: insights, clock: clock, loc: loc}
	return []Evaluator{
		overspendingRule{deps},
		categorySpikeRule{deps},
		newCategoryRule{deps},
		incomeDropRule{deps},
		negativeBalanceRule{deps},
		positiveRecoveryRule{deps},
		budgetBreachRule{deps},
		recheckExpenseDeleteRule{deps},
		recheckIncomeDeleteRule{deps},
	}
}

// validRecord reports whether the event carries the fields a record rule
// needs. Malformed events are skipped silently (logged by the caller).
func validRecord(ev events.Event, needCategory bool) bool {
	r := ev.Record
	if r == nil || !r.Amount.IsPositive() || r.OccurredAt.IsZero() {
		return false
	}
	if needCategory && r.Category == "" {
		return false
	}
	return true
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// ──────────────────────────────────────────────
// Overspending: new expense ≥ 1.4× the 28-day same-category average.
// ──────────────────────────────────────────────

type overspendingRule struct{ ruleDeps }

func (overspendingRule) Name() string { return "overspending" }

func (overspendingRule) Triggers() []events.Type {
	return []events.Type{events.TypeExpenseCreated}
}

func (r overspendingRule) Evaluate(ctx context.Context, ev events.Event) ([]Action, error) {
	log := logger.FromContext(ctx)
	if !validRecord(ev, true) {
		log.Info().Str("rule", r.Name()).Msg("Skipping malformed event")
		return nil, nil
	}
	rec := ev.Record

	from := r.clock.Now().In(r.loc).AddDate(0, 0, -overspendWindowDays)
	priors, err := r.agg.CategoryWindow(ctx, ev.OwnerID, rec.Category, from, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("overspending: %w", err)
	}
	if len(priors) < minCategorySamples {
		return nil, nil
	}

	avg, ok := Average(priors)
	if !ok || rec.Amount.LessThan(avg.Mul(overspendRatio)) {
		return nil, nil
	}

	title := fmt.Sprintf("High Spending on %s", rec.Category)
	body := fmt.Sprintf("You spent $%s on %s. Your 4-week avg is ~$%s.", money(rec.Amount), rec.Category, money(avg))
	return []Action{{Emit: &Draft{
		Kind:      store.KindAlert,
		Title:     title,
		Body:      body,
		Category:  rec.Category,
		Rationale: "Your recent expense is significantly above your average.",
		Bucket:    rec.OccurredAt.In(r.loc),
	}}}, nil
}

// ──────────────────────────────────────────────
// Category spike: new expense ≥ 2× the 7-day same-category average.
// ──────────────────────────────────────────────

type categorySpikeRule struct{ ruleDeps }

func (categorySpikeRule) Name() string { return "category_spike" }

func (categorySpikeRule) Triggers() []events.Type {
	return []events.Type{events.TypeExpenseCreated}
}

func (r categorySpikeRule) Evaluate(ctx context.Context, ev events.Event) ([]Action, error) {
	log := logger.FromContext(ctx)
	if !validRecord(ev, true) {
		log.Info().Str("rule", r.Name()).Msg("Skipping malformed event")
		return nil, nil
	}
	rec := ev.Record

	from := r.clock.Now().In(r.loc).AddDate(0, 0, -spikeWindowDays)
	priors, err := r.agg.CategoryWindow(ctx, ev.OwnerID, rec.Category, from, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("category_spike: %w", err)
	}
	if len(priors) < minCategorySamples {
		return nil, nil
	}

	avg, ok := Average(priors)
	if !ok || rec.Amount.LessThan(avg.Mul(spikeRatio)) {
		return nil, nil
	}

	title := fmt.Sprintf("Category Spike: %s", rec.Category)
	body := fmt.Sprintf("You spent $%s on %s. 7-day avg: ~$%s.", money(rec.Amount), rec.Category, money(avg))
	return []Action{{Emit: &Draft{
		Kind:      store.KindAlert,
		Title:     title,
		Body:      body,
		Category:  rec.Category,
		Rationale: "This transaction is far above normal activity for this category.",
		Bucket:    rec.OccurredAt.In(r.loc),
	}}}, nil
}

// ──────────────────────────────────────────────
// New category: at most one prior record exists in the category, all-time.
// The tolerated race where two first-time expenses both fire is resolved
// by the fingerprint dedupe.
// ──────────────────────────────────────────────

type newCategoryRule struct{ ruleDeps }

func (newCategoryRule) Name() string { return "new_category" }

func (newCategoryRule) Triggers() []events.Type {
	return []events.Type{events.TypeExpenseCreated}
}

func (r newCategoryRule) Evaluate(ctx context.Context, ev events.Event) ([]Action, error) {
	log := logger.FromContext(ctx)
	if !validRecord(ev, true) {
		log.Info().Str("rule", r.Name()).Msg("Skipping malformed event")
		return nil, nil
	}
	rec := ev.Record

	// Probe just enough records to decide; the store already contains the
	// trigger, so ask for three and drop it.
	recs, err := r.agg.records.QueryRecords(ctx, store.RecordQuery{
		OwnerID:  ev.OwnerID,
		Type:     store.RecordTypeExpense,
		Category: rec.Category,
		Limit:    minCategorySamples + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("new_category: %w", err)
	}
	if len(excludeRecord(recs, rec.ID)) > 1 {
		return nil, nil
	}

	title := fmt.Sprintf("New Category: %s", rec.Category)
	body := fmt.Sprintf("You spent $%s on %q for the first time.", money(rec.Amount), rec.Category)
	return []Action{{Emit: &Draft{
		Kind:      store.KindAlert,
		Title:     title,
		Body:      body,
		Category:  rec.Category,
		Rationale: "You've never spent in this category before.",
		Bucket:    rec.OccurredAt.In(r.loc),
	}}}, nil
}

// ──────────────────────────────────────────────
// Income drop: new income below half the average of the most recent prior
// incomes (latest four minus the trigger).
// ──────────────────────────────────────────────

type incomeDropRule struct{ ruleDeps }

func (incomeDropRule) Name() string { return "income_drop" }

func (incomeDropRule) Triggers() []events.Type {
	return []events.Type{events.TypeIncomeCreated}
}

func (r incomeDropRule) Evaluate(ctx context.Context, ev events.Event) ([]Action, error) {
	log := logger.FromContext(ctx)
	if !validRecord(ev, false) {
		log.Info().Str("rule", r.Name()).Msg("Skipping malformed event")
		return nil, nil
	}
	rec := ev.Record

	priors, err := r.agg.RecentIncomes(ctx, ev.OwnerID, incomeProbeLimit, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("income_drop: %w", err)
	}
	avg, ok := Average(priors)
	if !ok || avg.IsZero() {
		return nil, nil
	}
	if rec.Amount.GreaterThanOrEqual(avg.Mul(incomeDropRatio)) {
		return nil, nil
	}

	body := fmt.Sprintf("Your new income of $%s is less than half your recent average of ~$%s.", money(rec.Amount), money(avg))
	return []Action{{Emit: &Draft{
		Kind:      store.KindAlert,
		Title:     titleIncomeDrop,
		Body:      body,
		Category:  categoryIncome,
		Rationale: "Latest income is significantly lower than your previous average.",
		Bucket:    rec.OccurredAt.In(r.loc),
	}}}, nil
}

// ──────────────────────────────────────────────
// Negative balance: month-to-date expense exceeds month-to-date income.
// ──────────────────────────────────────────────

type negativeBalanceRule struct{ ruleDeps }

func (negativeBalanceRule) Name() string { return "negative_balance" }

func (negativeBalanceRule) Triggers() []events.Type {
	return []events.Type{events.TypeExpenseCreated}
}

func (r negativeBalanceRule) Evaluate(ctx context.Context, ev events.Event) ([]Action, error) {
	log := logger.FromContext(ctx)
	if !validRecord(ev, false) {
		log.Info().Str("rule", r.Name()).Msg("Skipping malformed event")
		return nil, nil
	}

	monthStart, monthEnd := MonthWindow(r.clock.Now(), r.loc)
	income, expense, err := r.agg.MonthTotals(ctx, ev.OwnerID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("negative_balance: %w", err)
	}
	if income.IsZero() || expense.LessThanOrEqual(income) {
		return nil, nil
	}

	return []Action{{Emit: negativeBalanceDraft(income, expense, monthStart)}}, nil
}

func negativeBalanceDraft(income, expense decimal.Decimal, monthStart time.Time) *Draft {
	body := fmt.Sprintf("Your spending has exceeded income this month. Spent: $%s, Earned: $%s.", money(expense), money(income))
	return &Draft{
		Kind:      store.KindAlert,
		Title:     titleNegativeBalance,
		Body:      body,
		Category:  categoryBudget,
		Rationale: "Your expenses this month have exceeded your income.",
		Bucket:    monthStart,
	}
}

// ──────────────────────────────────────────────
// Positive balance recovery: month income back above expense while a
// negative-balance alert is live this month. A stronger message is used
// when the month's income clearly outgrows the recent income average.
// ──────────────────────────────────────────────

type positiveRecoveryRule struct{ ruleDeps }

func (positiveRecoveryRule) Name() string { return "positive_recovery" }

func (positiveRecoveryRule) Triggers() []events.Type {
	return []events.Type{events.TypeIncomeCreated}
}

func (r positiveRecoveryRule) Evaluate(ctx context.Context, ev events.Event) ([]Action, error) {
	log := logger.FromContext(ctx)
	if !validRecord(ev, false) {
		log.Info().Str("rule", r.Name()).Msg("Skipping malformed event")
		return nil, nil
	}
	rec := ev.Record

	monthStart, monthEnd := MonthWindow(r.clock.Now(), r.loc)
	income, expense, err := r.agg.MonthTotals(ctx, ev.OwnerID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("positive_recovery: %w", err)
	}
	if income.LessThanOrEqual(expense) {
		return nil, nil
	}

	// Only advise when there was something to recover from.
	live, err := r.insights.QueryInsights(ctx, store.InsightQuery{
		OwnerID: ev.OwnerID,
		Titles:  []string{titleNegativeBalance},
		From:    monthStart,
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("positive_recovery: checking live alert: %w", err)
	}
	if len(live) == 0 {
		return nil, nil
	}

	priors, err := r.agg.RecentIncomes(ctx, ev.OwnerID, incomeProbeLimit, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("positive_recovery: %w", err)
	}
	avg, _ := Average(priors)

	title := titleBackToPositive
	body := fmt.Sprintf("Great job! Your income ($%s) has exceeded expenses ($%s) for this month.", money(income), money(expense))
	if income.GreaterThan(avg.Mul(strongRecoveryRatio)) {
		title = titleStrongRecovery
		body = fmt.Sprintf("Awesome! Your income ($%s) is up significantly and exceeds your expenses ($%s). Keep it up!", money(income), money(expense))
	}

	return []Action{{Emit: &Draft{
		Kind:      store.KindAdvice,
		Title:     title,
		Body:      body,
		Category:  categoryBudget,
		Rationale: "Your income now exceeds your expenses this month.",
		Bucket:    monthStart,
	}}}, nil
}

// ──────────────────────────────────────────────
// Budget breach: scheduled monthly; previous month's expense exceeded its
// income. The dispatcher fans the tick out per owner.
// ──────────────────────────────────────────────

type budgetBreachRule struct{ ruleDeps }

func (budgetBreachRule) Name() string { return "budget_breach" }

func (budgetBreachRule) Triggers() []events.Type {
	return []events.Type{events.TypeBudgetTick}
}

func (r budgetBreachRule) Evaluate(ctx context.Context, ev events.Event) ([]Action, error) {
	prevStart, prevEnd := PreviousMonthWindow(r.clock.Now(), r.loc)
	income, expense, err := r.agg.MonthTotals(ctx, ev.OwnerID, prevStart, prevEnd)
	if err != nil {
		return nil, fmt.Errorf("budget_breach: %w", err)
	}
	if income.IsZero() || expense.LessThanOrEqual(income) {
		return nil, nil
	}

	body := fmt.Sprintf("You spent $%s but earned only $%s last month.", money(expense), money(income))
	return []Action{{Emit: &Draft{
		Kind:      store.KindAlert,
		Title:     titleBudgetBreach,
		Body:      body,
		Category:  categoryBudget,
		Rationale: "Your total expenses exceeded your income last month.",
		Bucket:    prevStart,
	}}}, nil
}

// ──────────────────────────────────────────────
// Recheck after expense deletion: if the month is no longer in the red,
// retract the negative-balance alert and surface a recovery advice.
// ──────────────────────────────────────────────

type recheckExpenseDeleteRule struct{ ruleDeps }

func (recheckExpenseDeleteRule) Name() string { return "recheck_expense_delete" }

func (recheckExpenseDeleteRule) Triggers() []events.Type {
	return []events.Type{events.TypeExpenseDeleted}
}

func (r recheckExpenseDeleteRule) Evaluate(ctx context.Context, ev events.Event) ([]Action, error) {
	monthStart, monthEnd := MonthWindow(r.clock.Now(), r.loc)
	income, expense, err := r.agg.MonthTotals(ctx, ev.OwnerID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("recheck_expense_delete: %w", err)
	}
	if expense.GreaterThan(income) {
		return nil, nil
	}

	body := fmt.Sprintf("Your income ($%s) has exceeded expenses ($%s) for this month.", money(income), money(expense))
	return []Action{
		{Retract: &Retraction{Titles: []string{titleNegativeBalance}, From: monthStart}},
		{Emit: &Draft{
			Kind:      store.KindAdvice,
			Title:     titleBackToPositive,
			Body:      body,
			Category:  categoryBudget,
			Rationale: "Your income now exceeds your expenses this month.",
			Bucket:    monthStart,
		}},
	}, nil
}

// ──────────────────────────────────────────────
// Recheck after income deletion: if the month went back into the red,
// retract any recovery advice and restore the negative-balance alert.
// ──────────────────────────────────────────────

type recheckIncomeDeleteRule struct{ ruleDeps }

func (recheckIncomeDeleteRule) Name() string { return "recheck_income_delete" }

func (recheckIncomeDeleteRule) Triggers() []events.Type {
	return []events.Type{events.TypeIncomeDeleted}
}

func (r recheckIncomeDeleteRule) Evaluate(ctx context.Context, ev events.Event) ([]Action, error) {
	monthStart, monthEnd := MonthWindow(r.clock.Now(), r.loc)
	income, expense, err := r.agg.MonthTotals(ctx, ev.OwnerID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("recheck_income_delete: %w", err)
	}
	if income.GreaterThan(expense) {
		return nil, nil
	}

	return []Action{
		{Retract: &Retraction{
			Kind:   store.KindAdvice,
			Titles: []string{titleBackToPositive, titleStrongRecovery},
			From:   monthStart,
		}},
		{Emit: negativeBalanceDraft(income, expense, monthStart)},
	}, nil
}
