// Package store defines the document-store contracts the insight engine
// depends on: financial records, insights, budgets and user profiles, each
// partitioned per owner. Implementations live in subpackages (inmemory for
// tests and local runs, firestore for production).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// RecordType distinguishes the two financial record streams.
type RecordType string

const (
	RecordTypeExpense RecordType = "expense"
	RecordTypeIncome  RecordType = "income"
)

// InsightKind is the user-facing classification of an insight.
type InsightKind string

const (
	KindAlert  InsightKind = "Alert"
	KindAdvice InsightKind = "Advice"
)

// FinancialRecord is a single income or expense entry. Records are immutable
// once created; the only lifecycle transitions are create and delete.
type FinancialRecord struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Type       RecordType      `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category,omitempty"` // expenses only
	OccurredAt time.Time       `json:"occurred_at"`
}

// Insight is a system-authored Alert or Advice shown to the user.
// Title and Body are never edited after creation; the fingerprint is a
// uniqueness key scoped to the owner.
type Insight struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"owner_id"`
	Kind         InsightKind `json:"kind"`
	Title        string      `json:"title"`
	Body         string      `json:"body"`
	Category     string      `json:"category"`
	Rationale    string      `json:"rationale"`
	Fingerprint  string      `json:"fingerprint"`
	CreatedAt    time.Time   `json:"created_at"`
	Acknowledged bool        `json:"acknowledged"`
}

// Budget is a per-month spending target. Plain keyed record, no invariants.
type Budget struct {
	OwnerID     string          `json:"owner_id"`
	MonthKey    string          `json:"month_key"` // "2006-01"
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// User is the slice of the profile the engine needs: identity plus the
// optional push token.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	DeviceToken string `json:"device_token,omitempty"`
}

// RecordQuery filters a financial record stream. Zero-valued fields are
// ignored. From/To bound OccurredAt inclusively.
type RecordQuery struct {
	OwnerID   string
	Type      RecordType
	Category  string
	From      time.Time
	To        time.Time
	OrderDesc bool // newest first by OccurredAt
	Limit     int
}

// InsightQuery filters the insight collection. Titles matches any of the
// given titles; Before bounds CreatedAt exclusively (used by the sweeper),
// From bounds it inclusively.
type InsightQuery struct {
	OwnerID     string
	Kind        InsightKind
	Fingerprint string
	Titles      []string
	From        time.Time
	Before      time.Time
	OrderDesc   bool // newest first by CreatedAt
	Limit       int
}

// RecordStore provides access to the income and expense collections.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *FinancialRecord) error
	GetRecord(ctx context.Context, ownerID string, typ RecordType, id string) (*FinancialRecord, error)
	DeleteRecord(ctx context.Context, ownerID string, typ RecordType, id string) error
	QueryRecords(ctx context.Context, q RecordQuery) ([]*FinancialRecord, error)
}

// InsightStore provides access to the insight collection. Deleting an
// absent insight is a no-op, not an error.
type InsightStore interface {
	InsertInsight(ctx context.Context, ins *Insight) error
	QueryInsights(ctx context.Context, q InsightQuery) ([]*Insight, error)
	DeleteInsight(ctx context.Context, ownerID, id string) error
}

// BudgetStore provides keyed access to per-month budgets.
type BudgetStore interface {
	UpsertBudget(ctx context.Context, b *Budget) error
	GetBudget(ctx context.Context, ownerID, monthKey string) (*Budget, error)
	DeleteBudget(ctx context.Context, ownerID, monthKey string) error
}

// UserStore resolves user profiles. ListUserIDs drives the per-user
// scheduled jobs (budget check, retention sweep).
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}
