// Package analytics streams emitted insights to BigQuery for offline
// analysis. The sink is strictly best-effort: the engine logs and drops
// its errors without ever affecting the emit path.
package analytics

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/avolkov/spendwatch/internal/store"
)

// insightRow is the BigQuery schema for one emitted insight.
type insightRow struct {
	InsightID   string    `bigquery:"insight_id"`
	OwnerID     string    `bigquery:"owner_id"`
	Kind        string    `bigquery:"kind"`
	Title       string    `bigquery:"title"`
	Category    string    `bigquery:"category"`
	Fingerprint string    `bigquery:"fingerprint"`
	CreatedTS   time.Time `bigquery:"created_ts"`
	RecordedTS  time.Time `bigquery:"recorded_ts"`
}

// BigQuerySink writes insight events through a shared client's streaming
// inserter.
type BigQuerySink struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewBigQuerySink creates a sink for projectID's dataset.table.
func NewBigQuerySink(ctx context.Context, projectID, dataset, table string) (*BigQuerySink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySink: creating client: %w", err)
	}
	return &BigQuerySink{client: client, dataset: dataset, table: table}, nil
}

// Close releases the underlying client.
func (s *BigQuerySink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// RecordInsight streams one created insight. Bodies are deliberately not
// exported; titles and categories are enough for aggregate analysis.
func (s *BigQuerySink) RecordInsight(ctx context.Context, ins *store.Insight) error {
	row := &insightRow{
		InsightID:   ins.ID,
		OwnerID:     ins.OwnerID,
		Kind:        string(ins.Kind),
		Title:       ins.Title,
		Category:    ins.Category,
		Fingerprint: ins.Fingerprint,
		CreatedTS:   ins.CreatedAt,
		RecordedTS:  time.Now(),
	}

	inserter := s.client.Dataset(s.dataset).Table(s.table).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("RecordInsight: inserting row: %w", err)
	}
	return nil
}
