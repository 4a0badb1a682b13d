package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/AdamBeresnev/fixture-engine/internal/advance"
	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CascadeService handles destructive changes: correcting a result that already
// advanced a team, and deleting rounds or matches. Each change is previewed
// first and executed with explicit confirmation.
type CascadeService struct {
	*deps
}

// RevertRequest is either new scores or events to delete. With events the
// score is re-derived from the goals left.
type RevertRequest struct {
	HomeScore      *int
	AwayScore      *int
	Penalties      *PenaltyInput
	DeleteEventIDs []uuid.UUID

	// Affected matches seen in the preview. When set, execution refuses if the
	// impact changed in between.
	ExpectedAffected []uuid.UUID
}

type ImpactReport struct {
	MatchID          *uuid.UUID                `json:"match_id,omitempty"`
	OldWinnerID      *uuid.UUID                `json:"old_winner_id,omitempty"`
	NewWinnerID      *uuid.UUID                `json:"new_winner_id,omitempty"`
	WinnerChanged    bool                      `json:"winner_changed"`
	AffectedMatchIDs []uuid.UUID               `json:"affected_match_ids"`
	DeletedMatchIDs  []uuid.UUID               `json:"deleted_match_ids,omitempty"`
	EventCount       int                       `json:"event_count"`
	Reopens          bool                      `json:"reopens"`
	TournamentStatus *bracket.TournamentStatus `json:"tournament_status,omitempty"`
}

type CascadeResult struct {
	ImpactReport
	MatchesUpdated int   `json:"matches_updated"`
	EventsDeleted  int64 `json:"events_deleted"`
}

func reportOf(matchID *uuid.UUID, impact advance.Impact) ImpactReport {
	affected := impact.Affected
	if affected == nil {
		affected = []uuid.UUID{}
	}
	return ImpactReport{
		MatchID:          matchID,
		OldWinnerID:      impact.OldWinner,
		NewWinnerID:      impact.NewWinner,
		WinnerChanged:    impact.WinnerChanged,
		AffectedMatchIDs: affected,
		DeletedMatchIDs:  impact.Deleted,
		EventCount:       impact.EventCount,
		Reopens:          impact.Reopens,
		TournamentStatus: impact.TournamentStatus,
	}
}

func (s *CascadeService) PreviewCascadeRevert(ctx context.Context, matchID uuid.UUID, req RevertRequest) (*ImpactReport, error) {
	var report ImpactReport
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		m, err := s.store.GetMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		t, err := s.store.GetTournament(ctx, tx, m.TournamentID)
		if err != nil {
			return err
		}
		impact, err := s.planRevert(ctx, tx, t, m, req)
		if err != nil {
			return err
		}
		report = reportOf(&matchID, impact)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ExecuteCascadeRevert recomputes the impact under the tournament lock and
// applies it: events are deleted, affected matches reset and the new winner
// advanced.
func (s *CascadeService) ExecuteCascadeRevert(ctx context.Context, matchID uuid.UUID, req RevertRequest, confirmed bool) (*CascadeResult, error) {
	if !confirmed {
		return nil, fmt.Errorf("%w: cascade revert must be confirmed", bracket.ErrValidation)
	}
	tournamentID, err := s.tournamentOfMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(tournamentID)
	defer unlock()

	var result CascadeResult
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.store.GetTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status == bracket.TournamentCancelled {
			return fmt.Errorf("%w: tournament %s is cancelled", bracket.ErrConflict, t.ID)
		}
		m, err := s.store.GetMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		impact, err := s.planRevert(ctx, tx, t, m, req)
		if err != nil {
			return err
		}
		if req.ExpectedAffected != nil && !sameIDs(req.ExpectedAffected, impact.Affected) {
			return fmt.Errorf("%w: impact of reverting match %s changed since the preview", bracket.ErrConflict, matchID)
		}

		deleted, err := s.store.DeleteEvents(ctx, tx, req.DeleteEventIDs)
		if err != nil {
			return fmt.Errorf("failed to delete events: %w", err)
		}
		n, err := s.store.DeleteEventsForMatches(ctx, tx, impact.Affected)
		if err != nil {
			return fmt.Errorf("failed to delete events of reset matches: %w", err)
		}
		if err := s.applyPlan(ctx, tx, t.ID, impact.Plan); err != nil {
			return err
		}

		result = CascadeResult{
			ImpactReport:   reportOf(&matchID, impact),
			MatchesUpdated: len(impact.Updates),
			EventsDeleted:  deleted + n,
		}
		return nil
	})
	if err != nil {
		s.logger.Error("cascade revert failed", "tournament_id", tournamentID, "match_id", matchID, "error", err)
		return nil, err
	}

	s.metrics.Cascade("revert", len(result.AffectedMatchIDs))
	s.logger.Info("cascade revert applied", "tournament_id", tournamentID, "match_id", matchID,
		"winner_changed", result.WinnerChanged, "affected", len(result.AffectedMatchIDs), "reopens", result.Reopens)
	return &result, nil
}

// planRevert turns a request into the corrected result and computes its impact.
func (s *CascadeService) planRevert(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, m *bracket.Match, req RevertRequest) (advance.Impact, error) {
	if m.Status != bracket.MatchFinished || !m.HasResult() {
		return advance.Impact{}, fmt.Errorf("%w: match %s is not finished, record the result instead", bracket.ErrValidation, m.ID)
	}

	var home, away int
	switch {
	case len(req.DeleteEventIDs) > 0 && (req.HomeScore != nil || req.AwayScore != nil):
		return advance.Impact{}, fmt.Errorf("%w: give new scores or events to delete, not both", bracket.ErrValidation)
	case len(req.DeleteEventIDs) > 0:
		events, err := s.store.ListEvents(ctx, tx, m.ID)
		if err != nil {
			return advance.Impact{}, fmt.Errorf("failed to get events: %w", err)
		}
		remaining, err := withoutEvents(events, req.DeleteEventIDs, m.ID)
		if err != nil {
			return advance.Impact{}, err
		}
		home, away = bracket.ProjectScore(m, remaining)
	case req.HomeScore != nil && req.AwayScore != nil:
		home, away = *req.HomeScore, *req.AwayScore
		if home < 0 || away < 0 {
			return advance.Impact{}, fmt.Errorf("%w: scores must not be negative", bracket.ErrValidation)
		}
		// with goals recorded, the score changes by removing events
		if err := s.checkEventScore(ctx, tx, m, home, away); err != nil {
			return advance.Impact{}, err
		}
	default:
		return advance.Impact{}, fmt.Errorf("%w: both scores or events to delete are required", bracket.ErrValidation)
	}

	if req.Penalties != nil {
		if err := s.validatePenalties(ctx, tx, t, m, home, away, *req.Penalties); err != nil {
			return advance.Impact{}, err
		}
	}

	snap, err := s.snapshot(ctx, tx, t, true)
	if err != nil {
		return advance.Impact{}, err
	}
	return advance.Revert(snap, m.ID, editOf(home, away, req.Penalties))
}

func withoutEvents(events []bracket.MatchEvent, remove []uuid.UUID, matchID uuid.UUID) ([]bracket.MatchEvent, error) {
	drop := make(map[uuid.UUID]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	var kept []bracket.MatchEvent
	for _, e := range events {
		if drop[e.ID] {
			delete(drop, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	for id := range drop {
		return nil, fmt.Errorf("%w: event %s on match %s", bracket.ErrNotFound, id, matchID)
	}
	return kept, nil
}

func (s *CascadeService) PreviewDeleteImpact(ctx context.Context, kind advance.EntityKind, id uuid.UUID) (*ImpactReport, error) {
	tournamentID, err := s.tournamentOfEntity(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	var report ImpactReport
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.store.GetTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		snap, err := s.snapshot(ctx, tx, t, true)
		if err != nil {
			return err
		}
		impact, err := advance.DeleteImpact(snap, kind, id)
		if err != nil {
			return err
		}
		report = reportOf(nil, impact)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ExecuteDelete removes a round (with its matches) or a single match. Teams the
// deleted matches sent forward are taken back out of the bracket.
func (s *CascadeService) ExecuteDelete(ctx context.Context, kind advance.EntityKind, id uuid.UUID, confirmed bool) (*CascadeResult, error) {
	if !confirmed {
		return nil, fmt.Errorf("%w: delete must be confirmed", bracket.ErrValidation)
	}
	tournamentID, err := s.tournamentOfEntity(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(tournamentID)
	defer unlock()

	var result CascadeResult
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.store.GetTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		snap, err := s.snapshot(ctx, tx, t, true)
		if err != nil {
			return err
		}
		impact, err := advance.DeleteImpact(snap, kind, id)
		if err != nil {
			return err
		}

		if err := s.applyPlan(ctx, tx, t.ID, impact.Plan); err != nil {
			return err
		}
		n, err := s.store.DeleteEventsForMatches(ctx, tx, append(slices.Clone(impact.Affected), impact.Deleted...))
		if err != nil {
			return fmt.Errorf("failed to delete events: %w", err)
		}

		switch kind {
		case advance.EntityRound:
			err = s.store.DeleteRound(ctx, tx, id)
		case advance.EntityMatch:
			err = s.store.DeleteMatch(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", kind, err)
		}

		result = CascadeResult{
			ImpactReport:   reportOf(nil, impact),
			MatchesUpdated: len(impact.Updates),
			EventsDeleted:  n,
		}
		return nil
	})
	if err != nil {
		s.logger.Error("delete failed", "tournament_id", tournamentID, "kind", kind, "id", id, "error", err)
		return nil, err
	}

	s.metrics.Cascade("delete_"+string(kind), len(result.AffectedMatchIDs))
	s.logger.Info("deleted", "tournament_id", tournamentID, "kind", kind, "id", id,
		"matches_deleted", len(result.DeletedMatchIDs), "affected", len(result.AffectedMatchIDs))
	return &result, nil
}

func (d *deps) tournamentOfEntity(ctx context.Context, kind advance.EntityKind, id uuid.UUID) (uuid.UUID, error) {
	switch kind {
	case advance.EntityRound:
		r, err := d.store.GetRound(ctx, d.db, id)
		if err != nil {
			return uuid.Nil, err
		}
		return r.TournamentID, nil
	case advance.EntityMatch:
		return d.tournamentOfMatch(ctx, id)
	}
	return uuid.Nil, fmt.Errorf("%w: unknown entity type %q", bracket.ErrValidation, kind)
}

func sameIDs(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uuid.UUID]int, len(a))
	for _, id := range a {
		set[id]++
	}
	for _, id := range b {
		if set[id] == 0 {
			return false
		}
		set[id]--
	}
	return true
}
