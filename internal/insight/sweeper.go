package insight

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/spendwatch/internal/store"
)

// DefaultRetention is how long Alert-kind insights live before the daily
// sweep removes them. Advice-kind insights are never swept; positive
// reinforcement is kept around deliberately.
const DefaultRetention = 14 * 24 * time.Hour

// Sweeper is the periodic retention job over the insight collection.
type Sweeper struct {
	insights  store.InsightStore
	users     store.UserStore
	retention time.Duration
	clock     Clock
	log       zerolog.Logger
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Owners  int // owners visited
	Deleted int // insights removed
	Failed  int // owners whose sweep errored
}

// NewSweeper creates a Sweeper. A non-positive retention falls back to
// DefaultRetention.
func NewSweeper(insights store.InsightStore, users store.UserStore, retention time.Duration, clock Clock, log zerolog.Logger) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sweeper{
		insights:  insights,
		users:     users,
		retention: retention,
		clock:     clock,
		log:       log,
	}
}

// Sweep removes expired Alert-kind insights for every user. A failure on
// one owner is counted and logged, never aborting the remaining owners.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Sweep: failed to list users")
		res.Failed++
		return res
	}

	cutoff := s.clock.Now().Add(-s.retention)
	for _, ownerID := range ids {
		res.Owners++
		deleted, err := s.sweepOwner(ctx, ownerID, cutoff)
		if err != nil {
			res.Failed++
			s.log.Error().Err(err).Str("owner_id", ownerID).Msg("Sweep failed for owner")
			continue
		}
		res.Deleted += deleted
		if deleted > 0 {
			s.log.Info().Str("owner_id", ownerID).Int("deleted", deleted).Msg("Cleaned old alerts")
		}
	}
	return res
}

func (s *Sweeper) sweepOwner(ctx context.Context, ownerID string, cutoff time.Time) (int, error) {
	expired, err := s.insights.QueryInsights(ctx, store.InsightQuery{
		OwnerID: ownerID,
		Kind:    store.KindAlert,
		Before:  cutoff,
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, ins := range expired {
		if err := s.insights.DeleteInsight(ctx, ownerID, ins.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
