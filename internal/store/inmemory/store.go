// Package inmemory implements the store interfaces with mutex-guarded maps.
// Data is lost on restart; it backs tests and local development. The
// production backend is the firestore package.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/avolkov/spendwatch/internal/store"
)

// Store holds all four collections in memory. Safe for concurrent use.
// All reads return defensive copies so callers cannot mutate stored state.
type Store struct {
	mu       sync.RWMutex
	records  map[string]map[store.RecordType]map[string]*store.FinancialRecord
	insights map[string]map[string]*store.Insight
	budgets  map[string]map[string]*store.Budget
	users    map[string]*store.User
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records:  make(map[string]map[store.RecordType]map[string]*store.FinancialRecord),
		insights: make(map[string]map[string]*store.Insight),
		budgets:  make(map[string]map[string]*store.Budget),
		users:    make(map[string]*store.User),
	}
}

// PutUser registers a user profile. Used by tests and local seeding.
func (s *Store) PutUser(u *store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// InsertRecord implements store.RecordStore.
func (s *Store) InsertRecord(ctx context.Context, rec *store.FinancialRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("InsertRecord: record ID is required")
	}
	if rec.OwnerID == "" {
		return fmt.Errorf("InsertRecord: owner ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byType, ok := s.records[rec.OwnerID]
	if !ok {
		byType = make(map[store.RecordType]map[string]*store.FinancialRecord)
		s.records[rec.OwnerID] = byType
	}
	byID, ok := byType[rec.Type]
	if !ok {
		byID = make(map[string]*store.FinancialRecord)
		byType[rec.Type] = byID
	}

	cp := *rec
	byID[rec.ID] = &cp
	return nil
}

// GetRecord implements store.RecordStore.
func (s *Store) GetRecord(ctx context.Context, ownerID string, typ store.RecordType, id string) (*store.FinancialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[ownerID][typ][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// DeleteRecord implements store.RecordStore. Deleting an absent record is
// a no-op.
func (s *Store) DeleteRecord(ctx context.Context, ownerID string, typ store.RecordType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byID, ok := s.records[ownerID][typ]; ok {
		delete(byID, id)
	}
	return nil
}

// QueryRecords implements store.RecordStore.
func (s *Store) QueryRecords(ctx context.Context, q store.RecordQuery) ([]*store.FinancialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*store.FinancialRecord
	for _, rec := range s.records[q.OwnerID][q.Type] {
		if q.Category != "" && rec.Category != q.Category {
			continue
		}
		if !q.From.IsZero() && rec.OccurredAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && rec.OccurredAt.After(q.To) {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if q.OrderDesc {
			return result[i].OccurredAt.After(result[j].OccurredAt)
		}
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})

	if q.Limit > 0 && q.Limit < len(result) {
		result = result[:q.Limit]
	}
	return result, nil
}

// InsertInsight implements store.InsightStore.
func (s *Store) InsertInsight(ctx context.Context, ins *store.Insight) error {
	if ins.ID == "" {
		return fmt.Errorf("InsertInsight: insight ID is required")
	}
	if ins.OwnerID == "" {
		return fmt.Errorf("InsertInsight: owner ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.insights[ins.OwnerID]
	if !ok {
		byID = make(map[string]*store.Insight)
		s.insights[ins.OwnerID] = byID
	}
	cp := *ins
	byID[ins.ID] = &cp
	return nil
}

// QueryInsights implements store.InsightStore.
func (s *Store) QueryInsights(ctx context.Context, q store.InsightQuery) ([]*store.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*store.Insight
	for _, ins := range s.insights[q.OwnerID] {
		if q.Kind != "" && ins.Kind != q.Kind {
			continue
		}
		if q.Fingerprint != "" && ins.Fingerprint != q.Fingerprint {
			continue
		}
		if len(q.Titles) > 0 && !containsTitle(q.Titles, ins.Title) {
			continue
		}
		if !q.From.IsZero() && ins.CreatedAt.Before(q.From) {
			continue
		}
		if !q.Before.IsZero() && !ins.CreatedAt.Before(q.Before) {
			continue
		}
		cp := *ins
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if q.OrderDesc {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if q.Limit > 0 && q.Limit < len(result) {
		result = result[:q.Limit]
	}
	return result, nil
}

// DeleteInsight implements store.InsightStore. Absent IDs are a no-op.
func (s *Store) DeleteInsight(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byID, ok := s.insights[ownerID]; ok {
		delete(byID, id)
	}
	return nil
}

// UpsertBudget implements store.BudgetStore.
func (s *Store) UpsertBudget(ctx context.Context, b *store.Budget) error {
	if b.OwnerID == "" || b.MonthKey == "" {
		return fmt.Errorf("UpsertBudget: owner ID and month key are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byKey, ok := s.budgets[b.OwnerID]
	if !ok {
		byKey = make(map[string]*store.Budget)
		s.budgets[b.OwnerID] = byKey
	}
	cp := *b
	byKey[b.MonthKey] = &cp
	return nil
}

// GetBudget implements store.BudgetStore.
func (s *Store) GetBudget(ctx context.Context, ownerID, monthKey string) (*store.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.budgets[ownerID][monthKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// DeleteBudget implements store.BudgetStore.
func (s *Store) DeleteBudget(ctx context.Context, ownerID, monthKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byKey, ok := s.budgets[ownerID]; ok {
		delete(byKey, monthKey)
	}
	return nil
}

// GetUser implements store.UserStore.
func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ListUserIDs implements store.UserStore. IDs are returned sorted so the
// scheduled jobs iterate owners in a stable order.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func containsTitle(titles []string, title string) bool {
	for _, t := range titles {
		if t == title {
			return true
		}
	}
	return false
}

// Ensure Store implements every store interface.
var (
	_ store.RecordStore  = (*Store)(nil)
	_ store.InsightStore = (*Store)(nil)
	_ store.BudgetStore  = (*Store)(nil)
	_ store.UserStore    = (*Store)(nil)
)
