package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AdamBeresnev/fixture-engine/internal/advance"
	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/metrics"
	"github.com/AdamBeresnev/fixture-engine/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Locks serializes work per tournament. Generation, advancement and cascades of
// one tournament never interleave; different tournaments run in parallel.
type Locks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock blocks until the tournament is free and returns the unlock func.
func (l *Locks) Lock(tournamentID uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[tournamentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tournamentID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// deps is shared by every service built from one Engine.
type deps struct {
	db      *sqlx.DB
	store   *store.TournamentStore
	locks   *Locks
	logger  *slog.Logger
	metrics *metrics.Metrics
	shuffle func([]uuid.UUID)
}

type Option func(*deps)

func WithLogger(logger *slog.Logger) Option {
	return func(d *deps) { d.logger = logger }
}

// WithMetrics enables Prometheus counters. Without it nothing is recorded.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) { d.metrics = m }
}

// Engine wires the services around one database and one lock table.
type Engine struct {
	Tournaments *TournamentService
	Fixtures    *FixtureService
	Matches     *MatchService
	Cascade     *CascadeService
	Standings   *StandingsService
}

func NewEngine(db *sqlx.DB, store *store.TournamentStore, opts ...Option) *Engine {
	d := &deps{
		db:      db,
		store:   store,
		locks:   NewLocks(),
		logger:  slog.Default(),
		shuffle: randomShuffle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return &Engine{
		Tournaments: &TournamentService{d},
		Fixtures:    &FixtureService{d},
		Matches:     &MatchService{d},
		Cascade:     &CascadeService{d},
		Standings:   &StandingsService{d},
	}
}

func randomShuffle(ids []uuid.UUID) {
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

func (d *deps) lock(tournamentID uuid.UUID) func() {
	start := time.Now()
	unlock := d.locks.Lock(tournamentID)
	d.metrics.LockWait(time.Since(start))
	return unlock
}

// inTx runs fn in a transaction and commits when it returns nil.
func (d *deps) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// inAtomicTx is inTx for multi-step writes. If rolling back fails, the rows
// written so far may have survived and the error is ErrPartialFailure.
func (d *deps) inAtomicTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w: %v (rollback failed: %v)", bracket.ErrPartialFailure, err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// tournamentOfMatch resolves the lock key of a match before the lock is taken.
func (d *deps) tournamentOfMatch(ctx context.Context, matchID uuid.UUID) (uuid.UUID, error) {
	m, err := d.store.GetMatch(ctx, d.db, matchID)
	if err != nil {
		return uuid.Nil, err
	}
	return m.TournamentID, nil
}

func (d *deps) snapshot(ctx context.Context, q sqlx.QueryerContext, t *bracket.Tournament, withEvents bool) (advance.Snapshot, error) {
	matches, err := d.store.ListMatches(ctx, q, t.ID)
	if err != nil {
		return advance.Snapshot{}, fmt.Errorf("failed to load matches: %w", err)
	}
	snap := advance.Snapshot{Tournament: *t, Matches: matches}
	if withEvents {
		snap.EventCounts, err = d.store.CountEventsByMatch(ctx, q, t.ID)
		if err != nil {
			return advance.Snapshot{}, fmt.Errorf("failed to count events: %w", err)
		}
	}
	return snap, nil
}

// applyPlan writes the match rows and tournament status of a plan.
func (d *deps) applyPlan(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, plan advance.Plan) error {
	for i := range plan.Updates {
		if err := d.store.UpdateMatch(ctx, tx, &plan.Updates[i]); err != nil {
			return fmt.Errorf("failed to update match %s: %w", plan.Updates[i].ID, err)
		}
	}
	if plan.TournamentStatus != nil {
		if err := d.store.UpdateTournamentStatus(ctx, tx, tournamentID, *plan.TournamentStatus); err != nil {
			return fmt.Errorf("failed to update tournament status: %w", err)
		}
	}
	return nil
}

// runAdvancement decides and applies what a finished match does downstream.
// Must be called with the tournament lock held.
func (d *deps) runAdvancement(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, matchID uuid.UUID) (advance.Plan, error) {
	snap, err := d.snapshot(ctx, tx, t, false)
	if err != nil {
		return advance.Plan{}, err
	}
	plan, err := advance.Decide(snap, matchID)
	if err != nil {
		d.logger.Error("advancement failed", "tournament_id", t.ID, "match_id", matchID, "error", err)
		return advance.Plan{}, err
	}
	if err := d.applyPlan(ctx, tx, t.ID, plan); err != nil {
		return advance.Plan{}, err
	}

	switch {
	case plan.Ambiguous:
		d.logger.Warn("next match slots held by other teams, winner not advanced",
			"tournament_id", t.ID, "match_id", matchID, "winner_id", plan.WinnerID)
		d.metrics.Advancement("ambiguous")
	case plan.Unlinked:
		d.logger.Warn("bracket match has no next match linked", "tournament_id", t.ID, "match_id", matchID)
		d.metrics.Advancement("unlinked")
	case plan.TournamentStatus != nil && *plan.TournamentStatus == bracket.TournamentFinished:
		d.logger.Info("tournament finished", "tournament_id", t.ID, "match_id", matchID, "winner_id", plan.WinnerID)
		d.metrics.Advancement("finished")
	case plan.WinnerID == nil:
		d.logger.Debug("no winner yet", "tournament_id", t.ID, "match_id", matchID)
		d.metrics.Advancement("waiting")
	case !plan.Empty():
		d.logger.Info("winner advanced", "tournament_id", t.ID, "match_id", matchID,
			"winner_id", plan.WinnerID, "updated", len(plan.Updates))
		d.metrics.Advancement("advanced")
	}
	return plan, nil
}
