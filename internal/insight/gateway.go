package insight

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/spendwatch/internal/store"
)

// EmitOutcome reports what TryEmit did.
type EmitOutcome int

const (
	// Created means a new insight was persisted.
	Created EmitOutcome = iota
	// Deduplicated means a live insight with the same fingerprint already
	// existed and nothing was written.
	Deduplicated
)

// Gateway applies insight side effects: the check-then-insert dedupe
// protocol and deletion by selector. The check and the insert are not
// atomic; a rare double insert under truly concurrent identical triggers
// is accepted, since the dedupe window is day-granular and triggers are
// rare per user-day.
type Gateway struct {
	insights store.InsightStore
	clock    Clock
	loc      *time.Location
}

// NewGateway creates a Gateway over the insight collection.
func NewGateway(insights store.InsightStore, clock Clock, loc *time.Location) *Gateway {
	return &Gateway{insights: insights, clock: clock, loc: loc}
}

// TryEmit computes the draft's fingerprint and inserts the insight unless
// one with the same (owner, fingerprint) is already live. The created
// insight is returned on a Created outcome.
func (g *Gateway) TryEmit(ctx context.Context, ownerID string, d *Draft) (EmitOutcome, *store.Insight, error) {
	fp := Fingerprint(d.Title, d.Body, d.Bucket.In(g.loc))

	existing, err := g.insights.QueryInsights(ctx, store.InsightQuery{
		OwnerID:     ownerID,
		Fingerprint: fp,
		Limit:       1,
	})
	if err != nil {
		return Deduplicated, nil, fmt.Errorf("TryEmit: duplicate check: %w", err)
	}
	if len(existing) > 0 {
		return Deduplicated, nil, nil
	}

	ins := &store.Insight{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Kind:        d.Kind,
		Title:       d.Title,
		Body:        d.Body,
		Category:    d.Category,
		Rationale:   d.Rationale,
		Fingerprint: fp,
		CreatedAt:   g.clock.Now(),
	}
	if err := g.insights.InsertInsight(ctx, ins); err != nil {
		return Deduplicated, nil, fmt.Errorf("TryEmit: insert: %w", err)
	}
	return Created, ins, nil
}

// Retract deletes every live insight matching the selector and returns how
// many were removed. Deleting an already-absent insight is a no-op, so
// concurrent retractions cannot conflict.
func (g *Gateway) Retract(ctx context.Context, ownerID string, r *Retraction) (int, error) {
	matches, err := g.insights.QueryInsights(ctx, store.InsightQuery{
		OwnerID: ownerID,
		Kind:    r.Kind,
		Titles:  r.Titles,
		From:    r.From,
	})
	if err != nil {
		return 0, fmt.Errorf("Retract: query: %w", err)
	}

	removed := 0
	for _, ins := range matches {
		if err := g.insights.DeleteInsight(ctx, ownerID, ins.ID); err != nil {
			return removed, fmt.Errorf("Retract: delete %s: %w", ins.ID, err)
		}
		removed++
	}
	return removed, nil
}
