// Package insight implements the rule-based financial-insight engine: the
// evaluators that turn income/expense events into deduplicated Alert and
// Advice records, the gateway that applies their decisions, and the
// retention sweeper.
package insight

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/spendwatch/internal/events"
	"github.com/avolkov/spendwatch/internal/logger"
	"github.com/avolkov/spendwatch/internal/notify"
	"github.com/avolkov/spendwatch/internal/store"
)

// Recorder receives every successfully created insight for offline
// analysis. Failures are logged and never reach the emit path.
type Recorder interface {
	RecordInsight(ctx context.Context, ins *store.Insight) error
}

// Config wires the engine's collaborators. Notifier and Recorder are
// optional; Clock and Location default to the system clock and the fixed
// engine timezone.
type Config struct {
	Records  store.RecordStore
	Insights store.InsightStore
	Users    store.UserStore
	Notifier notify.Notifier
	Recorder Recorder
	Clock    Clock
	Location *time.Location
	Logger   zerolog.Logger

	// RetentionDays bounds the age of Alert-kind insights before the
	// sweeper removes them. Zero means the 14-day default.
	RetentionDays int
}

// Engine is the trigger dispatcher: it routes each event to the evaluators
// registered for its type, applies their actions through the gateway, and
// pushes notifications best-effort after successful creations. Every
// invocation is stateless; all state lives in the stores.
type Engine struct {
	routes   map[events.Type][]Evaluator
	gateway  *Gateway
	users    store.UserStore
	notifier notify.Notifier
	recorder Recorder
	sweeper  *Sweeper
	log      zerolog.Logger
}

// NewEngine builds the engine with the full rule set.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Records == nil || cfg.Insights == nil || cfg.Users == nil {
		return nil, fmt.Errorf("NewEngine: records, insights and users stores are required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	loc := cfg.Location
	if loc == nil {
		var err error
		loc, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("NewEngine: loading timezone: %w", err)
		}
	}
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	if cfg.RetentionDays == 0 {
		retention = DefaultRetention
	}

	agg := NewAggregator(cfg.Records)
	routes := make(map[events.Type][]Evaluator)
	for _, ev := range NewEvaluators(agg, cfg.Insights, clock, loc) {
		for _, t := range ev.Triggers() {
			routes[t] = append(routes[t], ev)
		}
	}

	return &Engine{
		routes:   routes,
		gateway:  NewGateway(cfg.Insights, clock, loc),
		users:    cfg.Users,
		notifier: cfg.Notifier,
		recorder: cfg.Recorder,
		sweeper:  NewSweeper(cfg.Insights, cfg.Users, retention, clock, cfg.Logger),
		log:      cfg.Logger,
	}, nil
}

// Handle processes one triggering event. Evaluator and side-effect
// failures are logged and isolated; they never surface to the event
// source, which would otherwise retry a half-processed trigger the
// fingerprint design already makes safe to re-run.
func (e *Engine) Handle(ctx context.Context, ev events.Event) error {
	ctx = logger.WithContext(ctx, e.log)

	switch ev.Type {
	case events.TypeSweepTick:
		res := e.sweeper.Sweep(ctx)
		e.log.Info().
			Int("owners", res.Owners).
			Int("deleted", res.Deleted).
			Int("failed", res.Failed).
			Msg("Retention sweep complete")
		return nil

	case events.TypeBudgetTick:
		return e.fanOutTick(ctx, ev)

	default:
		if ev.OwnerID == "" {
			e.log.Warn().Str("event_type", string(ev.Type)).Msg("Dropping event without owner")
			return nil
		}
		e.dispatch(ctx, ev)
		return nil
	}
}

// fanOutTick replays a schedule tick once per known user.
func (e *Engine) fanOutTick(ctx context.Context, ev events.Event) error {
	ids, err := e.users.ListUserIDs(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to list users for schedule tick")
		return fmt.Errorf("fanOutTick: %w", err)
	}
	for _, id := range ids {
		perUser := ev
		perUser.OwnerID = id
		e.dispatch(ctx, perUser)
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, ev events.Event) {
	for _, rule := range e.routes[ev.Type] {
		actions, err := rule.Evaluate(ctx, ev)
		if err != nil {
			e.log.Error().
				Err(err).
				Str("rule", rule.Name()).
				Str("owner_id", ev.OwnerID).
				Str("event_type", string(ev.Type)).
				Msg("Rule evaluation failed")
			continue
		}
		e.apply(ctx, ev.OwnerID, rule.Name(), actions)
	}
}

// apply executes a rule's actions in order. A failed action aborts the
// remainder of that rule's actions only; the next identical trigger will
// redo the whole decision idempotently.
func (e *Engine) apply(ctx context.Context, ownerID, ruleName string, actions []Action) {
	for _, a := range actions {
		switch {
		case a.Retract != nil:
			removed, err := e.gateway.Retract(ctx, ownerID, a.Retract)
			if err != nil {
				e.log.Error().Err(err).Str("rule", ruleName).Str("owner_id", ownerID).Msg("Retraction failed")
				return
			}
			if removed > 0 {
				e.log.Info().
					Str("rule", ruleName).
					Str("owner_id", ownerID).
					Int("removed", removed).
					Strs("titles", a.Retract.Titles).
					Msg("Insights retracted")
			}

		case a.Emit != nil:
			outcome, ins, err := e.gateway.TryEmit(ctx, ownerID, a.Emit)
			if err != nil {
				e.log.Error().Err(err).Str("rule", ruleName).Str("owner_id", ownerID).Msg("Emit failed")
				return
			}
			if outcome == Deduplicated {
				continue
			}
			e.log.Info().
				Str("rule", ruleName).
				Str("owner_id", ownerID).
				Str("title", ins.Title).
				Str("fingerprint", ins.Fingerprint).
				Msg("Insight created")
			e.afterCreate(ctx, ins)
		}
	}
}

// afterCreate runs the best-effort tail of the emit path. Notification and
// analytics failures never unwind a persisted insight.
func (e *Engine) afterCreate(ctx context.Context, ins *store.Insight) {
	if e.notifier != nil {
		err := e.notifier.Notify(ctx, ins.OwnerID, ins.Title, ins.Body, map[string]string{
			"type":     string(ins.Kind),
			"title":    ins.Title,
			"message":  ins.Body,
			"category": ins.Category,
		})
		if err != nil {
			e.log.Error().Err(err).Str("owner_id", ins.OwnerID).Msg("Failed to send push notification")
		}
	}
	if e.recorder != nil {
		if err := e.recorder.RecordInsight(ctx, ins); err != nil {
			e.log.Error().Err(err).Str("insight_id", ins.ID).Msg("Failed to record insight for analytics")
		}
	}
}
