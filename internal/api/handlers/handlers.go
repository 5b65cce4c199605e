package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/avolkov/spendwatch/internal/api/middleware"
	"github.com/avolkov/spendwatch/internal/events"
	"github.com/avolkov/spendwatch/internal/report"
	"github.com/avolkov/spendwatch/internal/store"
)

const (
	dateLayout     = "2006-01-02"
	monthKeyLayout = "2006-01"
)

// RecordsHandler handles income and expense endpoints.
type RecordsHandler struct {
	records   store.RecordStore
	publisher events.Publisher
	log       zerolog.Logger
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(records store.RecordStore, publisher events.Publisher, log zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		records:   records,
		publisher: publisher,
		log:       log,
	}
}

// CreateRecord handles POST /api/records
func (h *RecordsHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	var req struct {
		Type       string `json:"type"`
		Amount     string `json:"amount"`
		Category   string `json:"category"`
		OccurredAt string `json:"occurred_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	typ := store.RecordType(req.Type)
	if typ != store.RecordTypeExpense && typ != store.RecordTypeIncome {
		middleware.WriteError(w, http.StatusBadRequest, "type must be expense or income")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		middleware.WriteError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	if typ == store.RecordTypeExpense && req.Category == "" {
		middleware.WriteError(w, http.StatusBadRequest, "category is required for expenses")
		return
	}

	occurredAt := time.Now()
	if req.OccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "occurred_at must be RFC 3339")
			return
		}
	}

	rec := &store.FinancialRecord{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Type:       typ,
		Amount:     amount,
		Category:   req.Category,
		OccurredAt: occurredAt,
	}
	if err := h.records.InsertRecord(ctx, rec); err != nil {
		h.log.Error().Err(err).Msg("Failed to insert record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create record")
		return
	}

	evType := events.TypeExpenseCreated
	if typ == store.RecordTypeIncome {
		evType = events.TypeIncomeCreated
	}
	if err := h.publisher.Publish(ctx, events.Event{
		Type:     evType,
		OwnerID:  ownerID,
		RecordID: rec.ID,
		Record:   rec,
	}); err != nil {
		// The record was persisted; insight evaluation is lost but the
		// write must not be reported as failed.
		h.log.Error().Err(err).Str("record_id", rec.ID).Msg("Failed to publish record event")
	}

	middleware.WriteJSON(w, http.StatusCreated, rec)
}

// DeleteRecord handles DELETE /api/records/{type}/{id}
func (h *RecordsHandler) DeleteRecord(w http.ResponseWriter, r *http.Request, typ store.RecordType, id string) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	if typ != store.RecordTypeExpense && typ != store.RecordTypeIncome {
		middleware.WriteError(w, http.StatusBadRequest, "type must be expense or income")
		return
	}

	rec, err := h.records.GetRecord(ctx, ownerID, typ, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Record not found")
			return
		}
		h.log.Error().Err(err).Str("record_id", id).Msg("Failed to load record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete record")
		return
	}

	if err := h.records.DeleteRecord(ctx, ownerID, typ, id); err != nil {
		h.log.Error().Err(err).Str("record_id", id).Msg("Failed to delete record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete record")
		return
	}

	evType := events.TypeExpenseDeleted
	if typ == store.RecordTypeIncome {
		evType = events.TypeIncomeDeleted
	}
	if err := h.publisher.Publish(ctx, events.Event{
		Type:     evType,
		OwnerID:  ownerID,
		RecordID: rec.ID,
		Record:   rec,
	}); err != nil {
		h.log.Error().Err(err).Str("record_id", rec.ID).Msg("Failed to publish record event")
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": "deleted",
	})
}

// ListRecords handles GET /api/records
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	q := store.RecordQuery{
		OwnerID:   middleware.GetOwnerID(ctx),
		Type:      store.RecordType(query.Get("type")),
		Category:  query.Get("category"),
		OrderDesc: true,
	}

	var err error
	if from := query.Get("from"); from != "" {
		q.From, err = time.Parse(dateLayout, from)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid from date")
			return
		}
	}
	if to := query.Get("to"); to != "" {
		q.To, err = time.Parse(dateLayout, to)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid to date")
			return
		}
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			q.Limit = limit
		}
	}

	recs, err := h.records.QueryRecords(ctx, q)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query records")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query records")
		return
	}

	if recs == nil {
		recs = []*store.FinancialRecord{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

// InsightsHandler handles insight read endpoints. Insights are
// system-authored; the API never creates or edits them.
type InsightsHandler struct {
	insights store.InsightStore
	log      zerolog.Logger
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(insights store.InsightStore, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{
		insights: insights,
		log:      log,
	}
}

// ListInsights handles GET /api/insights
func (h *InsightsHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := store.InsightQuery{
		OwnerID:   middleware.GetOwnerID(ctx),
		OrderDesc: true,
	}
	switch kind := r.URL.Query().Get("kind"); kind {
	case "":
	case string(store.KindAlert), string(store.KindAdvice):
		q.Kind = store.InsightKind(kind)
	default:
		middleware.WriteError(w, http.StatusBadRequest, "kind must be Alert or Advice")
		return
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			q.Limit = limit
		}
	}

	insights, err := h.insights.QueryInsights(ctx, q)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query insights")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query insights")
		return
	}

	if insights == nil {
		insights = []*store.Insight{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"insights": insights,
		"count":    len(insights),
	})
}

// LatestInsight handles GET /api/insights/latest
func (h *InsightsHandler) LatestInsight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := store.InsightQuery{
		OwnerID:   middleware.GetOwnerID(ctx),
		Kind:      store.InsightKind(r.URL.Query().Get("kind")),
		OrderDesc: true,
		Limit:     1,
	}

	insights, err := h.insights.QueryInsights(ctx, q)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query insights")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query insights")
		return
	}
	if len(insights) == 0 {
		middleware.WriteError(w, http.StatusNotFound, "No insights yet")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, insights[0])
}

// BudgetsHandler handles budget CRUD endpoints.
type BudgetsHandler struct {
	budgets store.BudgetStore
	log     zerolog.Logger
}

// NewBudgetsHandler creates a new budgets handler.
func NewBudgetsHandler(budgets store.BudgetStore, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{
		budgets: budgets,
		log:     log,
	}
}

// UpsertBudget handles PUT /api/budgets/{month}
func (h *BudgetsHandler) UpsertBudget(w http.ResponseWriter, r *http.Request, monthKey string) {
	ctx := r.Context()

	if _, err := time.Parse(monthKeyLayout, monthKey); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	var req struct {
		TotalAmount string `json:"total_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.TotalAmount)
	if err != nil || amount.IsNegative() {
		middleware.WriteError(w, http.StatusBadRequest, "total_amount must be a non-negative number")
		return
	}

	b := &store.Budget{
		OwnerID:     middleware.GetOwnerID(ctx),
		MonthKey:    monthKey,
		TotalAmount: amount,
	}
	if err := h.budgets.UpsertBudget(ctx, b); err != nil {
		h.log.Error().Err(err).Str("month", monthKey).Msg("Failed to upsert budget")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save budget")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, b)
}

// GetBudget handles GET /api/budgets/{month}
func (h *BudgetsHandler) GetBudget(w http.ResponseWriter, r *http.Request, monthKey string) {
	ctx := r.Context()

	b, err := h.budgets.GetBudget(ctx, middleware.GetOwnerID(ctx), monthKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Budget not found")
			return
		}
		h.log.Error().Err(err).Str("month", monthKey).Msg("Failed to get budget")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get budget")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, b)
}

// DeleteBudget handles DELETE /api/budgets/{month}
func (h *BudgetsHandler) DeleteBudget(w http.ResponseWriter, r *http.Request, monthKey string) {
	ctx := r.Context()

	if err := h.budgets.DeleteBudget(ctx, middleware.GetOwnerID(ctx), monthKey); err != nil {
		h.log.Error().Err(err).Str("month", monthKey).Msg("Failed to delete budget")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete budget")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"month":  monthKey,
		"status": "deleted",
	})
}

// ReportsHandler triggers monthly report generation.
type ReportsHandler struct {
	generator *report.Generator
	log       zerolog.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(generator *report.Generator, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{
		generator: generator,
		log:       log,
	}
}

// GenerateReport handles POST /api/reports/{month}
func (h *ReportsHandler) GenerateReport(w http.ResponseWriter, r *http.Request, monthKey string) {
	ctx := r.Context()

	ref, err := time.Parse(monthKeyLayout, monthKey)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	rep, err := h.generator.Generate(ctx, middleware.GetOwnerID(ctx), ref)
	if err != nil {
		h.log.Error().Err(err).Str("month", monthKey).Msg("Failed to generate report")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to generate report")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, rep)
}

// HealthHandler handles GET /health
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
