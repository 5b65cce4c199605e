// Package firestore implements the store interfaces on Cloud Firestore,
// using the collection layout users/{uid}/{expenses,income,insights,budgets}.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/avolkov/spendwatch/internal/store"
)

const (
	usersCollection    = "users"
	insightsCollection = "insights"
	budgetsCollection  = "budgets"
)

// recordDoc is the wire shape of an income/expense document. Amounts are
// stored as floats for Firestore compatibility with the mobile clients;
// they are converted to decimals at the boundary.
type recordDoc struct {
	Amount    float64   `firestore:"amount"`
	Category  string    `firestore:"category,omitempty"`
	Timestamp time.Time `firestore:"timestamp"`
}

type insightDoc struct {
	Type        string    `firestore:"type"`
	Title       string    `firestore:"title"`
	Message     string    `firestore:"message"`
	Category    string    `firestore:"category"`
	Reason      string    `firestore:"reason"`
	MessageHash string    `firestore:"messageHash"`
	Timestamp   time.Time `firestore:"timestamp"`
	Read        bool      `firestore:"read"`
}

type budgetDoc struct {
	MonthKey    string  `firestore:"monthKey"`
	TotalAmount float64 `firestore:"totalAmount"`
}

type userDoc struct {
	Name     string `firestore:"name"`
	Email    string `firestore:"email"`
	FCMToken string `firestore:"fcmToken"`
}

// Store is the Firestore-backed implementation of the store interfaces.
// It holds a shared client to avoid creating a new connection per
// operation.
type Store struct {
	client *firestore.Client
}

// New creates a Store with a shared Firestore client.
func New(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.New: creating client: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) records(ownerID string, typ store.RecordType) *firestore.CollectionRef {
	name := "expenses"
	if typ == store.RecordTypeIncome {
		name = "income"
	}
	return s.client.Collection(usersCollection).Doc(ownerID).Collection(name)
}

func (s *Store) insights(ownerID string) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(ownerID).Collection(insightsCollection)
}

// InsertRecord implements store.RecordStore.
func (s *Store) InsertRecord(ctx context.Context, rec *store.FinancialRecord) error {
	doc := recordDoc{
		Amount:    rec.Amount.InexactFloat64(),
		Category:  rec.Category,
		Timestamp: rec.OccurredAt,
	}
	if _, err := s.records(rec.OwnerID, rec.Type).Doc(rec.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("InsertRecord: set %s/%s: %w", rec.Type, rec.ID, err)
	}
	return nil
}

// GetRecord implements store.RecordStore.
func (s *Store) GetRecord(ctx context.Context, ownerID string, typ store.RecordType, id string) (*store.FinancialRecord, error) {
	snap, err := s.records(ownerID, typ).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetRecord: get %s/%s: %w", typ, id, err)
	}
	return recordFromSnap(snap, ownerID, typ)
}

// DeleteRecord implements store.RecordStore. Deleting an absent document
// succeeds, which keeps the operation idempotent under redelivery.
func (s *Store) DeleteRecord(ctx context.Context, ownerID string, typ store.RecordType, id string) error {
	if _, err := s.records(ownerID, typ).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("DeleteRecord: delete %s/%s: %w", typ, id, err)
	}
	return nil
}

// QueryRecords implements store.RecordStore.
func (s *Store) QueryRecords(ctx context.Context, q store.RecordQuery) ([]*store.FinancialRecord, error) {
	query := s.records(q.OwnerID, q.Type).Query
	if q.Category != "" {
		query = query.Where("category", "==", q.Category)
	}
	if !q.From.IsZero() {
		query = query.Where("timestamp", ">=", q.From)
	}
	if !q.To.IsZero() {
		query = query.Where("timestamp", "<=", q.To)
	}
	if q.OrderDesc {
		query = query.OrderBy("timestamp", firestore.Desc)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var result []*store.FinancialRecord
	it := query.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryRecords: iterating: %w", err)
		}
		rec, err := recordFromSnap(snap, q.OwnerID, q.Type)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

// InsertInsight implements store.InsightStore.
func (s *Store) InsertInsight(ctx context.Context, ins *store.Insight) error {
	doc := insightDoc{
		Type:        string(ins.Kind),
		Title:       ins.Title,
		Message:     ins.Body,
		Category:    ins.Category,
		Reason:      ins.Rationale,
		MessageHash: ins.Fingerprint,
		Timestamp:   ins.CreatedAt,
		Read:        ins.Acknowledged,
	}
	if _, err := s.insights(ins.OwnerID).Doc(ins.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("InsertInsight: set %s: %w", ins.ID, err)
	}
	return nil
}

// QueryInsights implements store.InsightStore. Title matching over multiple
// titles uses Firestore's "in" operator, as the original system does.
func (s *Store) QueryInsights(ctx context.Context, q store.InsightQuery) ([]*store.Insight, error) {
	query := s.insights(q.OwnerID).Query
	if q.Kind != "" {
		query = query.Where("type", "==", string(q.Kind))
	}
	if q.Fingerprint != "" {
		query = query.Where("messageHash", "==", q.Fingerprint)
	}
	if len(q.Titles) == 1 {
		query = query.Where("title", "==", q.Titles[0])
	} else if len(q.Titles) > 1 {
		query = query.Where("title", "in", q.Titles)
	}
	if !q.From.IsZero() {
		query = query.Where("timestamp", ">=", q.From)
	}
	if !q.Before.IsZero() {
		query = query.Where("timestamp", "<", q.Before)
	}
	if q.OrderDesc {
		query = query.OrderBy("timestamp", firestore.Desc)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var result []*store.Insight
	it := query.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryInsights: iterating: %w", err)
		}
		var doc insightDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("QueryInsights: decoding %s: %w", snap.Ref.ID, err)
		}
		result = append(result, &store.Insight{
			ID:           snap.Ref.ID,
			OwnerID:      q.OwnerID,
			Kind:         store.InsightKind(doc.Type),
			Title:        doc.Title,
			Body:         doc.Message,
			Category:     doc.Category,
			Rationale:    doc.Reason,
			Fingerprint:  doc.MessageHash,
			CreatedAt:    doc.Timestamp,
			Acknowledged: doc.Read,
		})
	}
	return result, nil
}

// DeleteInsight implements store.InsightStore.
func (s *Store) DeleteInsight(ctx context.Context, ownerID, id string) error {
	if _, err := s.insights(ownerID).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("DeleteInsight: delete %s: %w", id, err)
	}
	return nil
}

// UpsertBudget implements store.BudgetStore.
func (s *Store) UpsertBudget(ctx context.Context, b *store.Budget) error {
	doc := budgetDoc{
		MonthKey:    b.MonthKey,
		TotalAmount: b.TotalAmount.InexactFloat64(),
	}
	ref := s.client.Collection(usersCollection).Doc(b.OwnerID).Collection(budgetsCollection).Doc(b.MonthKey)
	if _, err := ref.Set(ctx, doc); err != nil {
		return fmt.Errorf("UpsertBudget: set %s: %w", b.MonthKey, err)
	}
	return nil
}

// GetBudget implements store.BudgetStore.
func (s *Store) GetBudget(ctx context.Context, ownerID, monthKey string) (*store.Budget, error) {
	ref := s.client.Collection(usersCollection).Doc(ownerID).Collection(budgetsCollection).Doc(monthKey)
	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetBudget: get %s: %w", monthKey, err)
	}
	var doc budgetDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("GetBudget: decoding %s: %w", monthKey, err)
	}
	return &store.Budget{
		OwnerID:     ownerID,
		MonthKey:    doc.MonthKey,
		TotalAmount: decimal.NewFromFloat(doc.TotalAmount),
	}, nil
}

// DeleteBudget implements store.BudgetStore.
func (s *Store) DeleteBudget(ctx context.Context, ownerID, monthKey string) error {
	ref := s.client.Collection(usersCollection).Doc(ownerID).Collection(budgetsCollection).Doc(monthKey)
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("DeleteBudget: delete %s: %w", monthKey, err)
	}
	return nil
}

// GetUser implements store.UserStore.
func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	snap, err := s.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetUser: get %s: %w", id, err)
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("GetUser: decoding %s: %w", id, err)
	}
	return &store.User{
		ID:          id,
		Name:        doc.Name,
		Email:       doc.Email,
		DeviceToken: doc.FCMToken,
	}, nil
}

// ListUserIDs implements store.UserStore.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	it := s.client.Collection(usersCollection).Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUserIDs: iterating: %w", err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

func recordFromSnap(snap *firestore.DocumentSnapshot, ownerID string, typ store.RecordType) (*store.FinancialRecord, error) {
	var doc recordDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", snap.Ref.ID, err)
	}
	return &store.FinancialRecord{
		ID:         snap.Ref.ID,
		OwnerID:    ownerID,
		Type:       typ,
		Amount:     decimal.NewFromFloat(doc.Amount),
		Category:   doc.Category,
		OccurredAt: doc.Timestamp,
	}, nil
}

var (
	_ store.RecordStore  = (*Store)(nil)
	_ store.InsightStore = (*Store)(nil)
	_ store.BudgetStore  = (*Store)(nil)
	_ store.UserStore    = (*Store)(nil)
)
