// Package events carries the triggering events the insight engine reacts
// to: financial record creations and deletions plus the two schedule ticks.
package events

import (
	"context"
	"time"

	"github.com/avolkov/spendwatch/internal/store"
)

// Type identifies the upstream trigger.
type Type string

const (
	// TypeExpenseCreated fires after a new expense record is persisted.
	TypeExpenseCreated Type = "expense.created"
	// TypeExpenseDeleted fires after an expense record is removed.
	TypeExpenseDeleted Type = "expense.deleted"
	// TypeIncomeCreated fires after a new income record is persisted.
	TypeIncomeCreated Type = "income.created"
	// TypeIncomeDeleted fires after an income record is removed.
	TypeIncomeDeleted Type = "income.deleted"
	// TypeBudgetTick is the monthly budget-check schedule tick.
	TypeBudgetTick Type = "tick.budget"
	// TypeSweepTick is the daily retention-sweep schedule tick.
	TypeSweepTick Type = "tick.sweep"
)

// Event is a single triggering occurrence. Record carries the created or
// deleted payload for record events and is nil for schedule ticks. Ticks
// have no OwnerID; the engine fans them out across all users.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	OwnerID    string                 `json:"owner_id,omitempty"`
	RecordID   string                 `json:"record_id,omitempty"`
	Record     *store.FinancialRecord `json:"record,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Handler processes a single event. A returned error marks the delivery as
// failed; redelivery, if any, is the queue's concern and handlers must be
// idempotent.
type Handler func(ctx context.Context, ev Event) error

// Publisher enqueues events for asynchronous processing.
// This abstraction allows different queue implementations (in-memory,
// Cloud Tasks, Pub/Sub).
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Consumer delivers queued events to a handler.
type Consumer interface {
	// Start begins consuming events. The handler is called for each
	// event received, possibly concurrently.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight deliveries.
	Stop(ctx context.Context) error
}
