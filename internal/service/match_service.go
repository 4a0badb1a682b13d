package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/fixture-engine/internal/advance"
	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/tiebreak"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MatchService struct {
	*deps
}

type PenaltyInput struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

type ResultInput struct {
	HomeScore int
	AwayScore int
	// Finalize closes the match and runs advancement. Otherwise the score is
	// stored as in progress.
	Finalize  bool
	Penalties *PenaltyInput
}

type ResultAck struct {
	MatchID          uuid.UUID                 `json:"match_id"`
	Status           bracket.MatchStatus       `json:"status"`
	WinnerID         *uuid.UUID                `json:"winner_id,omitempty"`
	Updated          int                       `json:"updated"`
	TournamentStatus *bracket.TournamentStatus `json:"tournament_status,omitempty"`
}

type EventInput struct {
	TeamID uuid.UUID
	Kind   bracket.EventKind
	Minute *int
	Player *string
}

type MatchData struct {
	Match  *bracket.Match
	Events []bracket.MatchEvent
}

func (s *MatchService) GetMatchData(ctx context.Context, matchID uuid.UUID) (*MatchData, error) {
	match, err := s.store.GetMatch(ctx, s.db, matchID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, s.db, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return &MatchData{Match: match, Events: events}, nil
}

// RecordMatchResult stores a score and, when finalized, advances the winner. A
// finished match can be corrected only while nothing downstream depends on it;
// otherwise the cascade revert must be used.
func (s *MatchService) RecordMatchResult(ctx context.Context, matchID uuid.UUID, input ResultInput) (*ResultAck, error) {
	tournamentID, err := s.tournamentOfMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(tournamentID)
	defer unlock()

	var ack *ResultAck
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.store.GetTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if err := requirePlayable(t); err != nil {
			return err
		}
		m, err := s.store.GetMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if err := s.validateResult(ctx, tx, t, m, input); err != nil {
			return err
		}

		if m.Status == bracket.MatchFinished {
			if !input.Finalize {
				return fmt.Errorf("%w: match %s is finished, it cannot go back in progress", bracket.ErrConflict, m.ID)
			}
			if err := s.checkCorrectable(ctx, tx, t, m, input); err != nil {
				return err
			}
		}

		m.HomeScore = utils.Ptr(input.HomeScore)
		m.AwayScore = utils.Ptr(input.AwayScore)
		m.PenaltiesPlayed = input.Penalties != nil
		m.PenaltyHome, m.PenaltyAway = nil, nil
		if input.Penalties != nil {
			m.PenaltyHome = utils.Ptr(input.Penalties.Home)
			m.PenaltyAway = utils.Ptr(input.Penalties.Away)
		}
		m.Status = bracket.MatchInProgress
		if input.Finalize {
			m.Status = bracket.MatchFinished
		}
		if err := s.store.UpdateMatch(ctx, tx, m); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
		s.metrics.ResultRecorded(input.Finalize)

		ack = &ResultAck{MatchID: m.ID, Status: m.Status}
		if !input.Finalize {
			return nil
		}
		plan, err := s.runAdvancement(ctx, tx, t, m.ID)
		if err != nil {
			return err
		}
		ack.WinnerID = plan.WinnerID
		ack.Updated = len(plan.Updates)
		ack.TournamentStatus = plan.TournamentStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("result recorded", "tournament_id", tournamentID, "match_id", matchID,
		"home_score", input.HomeScore, "away_score", input.AwayScore, "final", input.Finalize)
	return ack, nil
}

// AdvanceMatch re-runs advancement for a match. Calling it again without a
// state change does nothing.
func (s *MatchService) AdvanceMatch(ctx context.Context, matchID uuid.UUID) (advance.Plan, error) {
	tournamentID, err := s.tournamentOfMatch(ctx, matchID)
	if err != nil {
		return advance.Plan{}, err
	}
	unlock := s.lock(tournamentID)
	defer unlock()

	var plan advance.Plan
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.store.GetTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		plan, err = s.runAdvancement(ctx, tx, t, matchID)
		return err
	})
	return plan, err
}

func requirePlayable(t *bracket.Tournament) error {
	switch t.Status {
	case bracket.TournamentActive, bracket.TournamentFinished:
		return nil
	case bracket.TournamentCancelled:
		return fmt.Errorf("%w: tournament %s is cancelled", bracket.ErrConflict, t.ID)
	default:
		return fmt.Errorf("%w: tournament %s has no complete fixture", bracket.ErrConflict, t.ID)
	}
}

func (s *MatchService) validateResult(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, m *bracket.Match, input ResultInput) error {
	if m.IsBye {
		return fmt.Errorf("%w: match %s is a bye", bracket.ErrValidation, m.ID)
	}
	if m.HomeTeamID == nil || m.AwayTeamID == nil {
		return fmt.Errorf("%w: match %s is waiting for its teams", bracket.ErrValidation, m.ID)
	}
	if input.HomeScore < 0 || input.AwayScore < 0 {
		return fmt.Errorf("%w: scores must not be negative", bracket.ErrValidation)
	}

	if err := s.checkEventScore(ctx, tx, m, input.HomeScore, input.AwayScore); err != nil {
		return err
	}

	if input.Penalties == nil {
		return nil
	}
	return s.validatePenalties(ctx, tx, t, m, input.HomeScore, input.AwayScore, *input.Penalties)
}

// checkEventScore rejects a score that disagrees with the match's recorded goals.
func (d *deps) checkEventScore(ctx context.Context, q sqlx.QueryerContext, m *bracket.Match, homeScore, awayScore int) error {
	events, err := d.store.ListEvents(ctx, q, m.ID)
	if err != nil {
		return fmt.Errorf("failed to get events: %w", err)
	}
	if !hasScoringEvents(events) {
		return nil
	}
	home, away := bracket.ProjectScore(m, events)
	if home != homeScore || away != awayScore {
		return fmt.Errorf("%w: score %d-%d does not match the recorded goals %d-%d",
			bracket.ErrValidation, homeScore, awayScore, home, away)
	}
	return nil
}

// validatePenalties allows a shootout only where a tie can end level: a single
// knockout match with a level score, or the second leg of a level aggregate.
func (d *deps) validatePenalties(ctx context.Context, q sqlx.QueryerContext, t *bracket.Tournament, m *bracket.Match, home, away int, pen PenaltyInput) error {
	if !t.PenaltiesOnTie {
		return fmt.Errorf("%w: tournament %s does not settle ties on penalties", bracket.ErrValidation, t.ID)
	}
	if !m.IsElimination() {
		return fmt.Errorf("%w: penalties are only played in knockout matches", bracket.ErrValidation)
	}
	if err := tiebreak.ValidateShootout(pen.Home, pen.Away); err != nil {
		return err
	}

	if !m.IsTwoLegged() {
		if home != away {
			return fmt.Errorf("%w: penalties need a level score, got %d-%d", bracket.ErrValidation, home, away)
		}
		return nil
	}
	if !m.IsSecondLeg {
		return fmt.Errorf("%w: penalties are taken after the second leg", bracket.ErrValidation)
	}

	first, err := d.store.GetMatch(ctx, q, *m.PairedMatchID)
	if err != nil {
		return fmt.Errorf("failed to get first leg: %w", err)
	}
	if first.Status != bracket.MatchFinished || !first.HasResult() || first.HomeTeamID == nil || first.AwayTeamID == nil {
		return fmt.Errorf("%w: first leg %s is not finished", bracket.ErrValidation, first.ID)
	}
	agg, err := tiebreak.ComputeAggregate(
		tiebreak.Leg{HomeID: *first.HomeTeamID, AwayID: *first.AwayTeamID, HomeScore: *first.HomeScore, AwayScore: *first.AwayScore},
		tiebreak.Leg{HomeID: *m.HomeTeamID, AwayID: *m.AwayTeamID, HomeScore: home, AwayScore: away},
		t.AwayGoals,
	)
	if err != nil {
		return err
	}
	if !agg.RequiresPenalties {
		return fmt.Errorf("%w: tie already decided by %s", bracket.ErrValidation, agg.DecidedBy)
	}
	return nil
}

// checkCorrectable rejects a new result for a finished match when the change
// would reset matches further on.
func (s *MatchService) checkCorrectable(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, m *bracket.Match, input ResultInput) error {
	snap, err := s.snapshot(ctx, tx, t, false)
	if err != nil {
		return err
	}
	impact, err := advance.Revert(snap, m.ID, editOf(input.HomeScore, input.AwayScore, input.Penalties))
	if err != nil {
		return err
	}
	if len(impact.Affected) > 0 || impact.Reopens {
		return fmt.Errorf("%w: changing match %s resets %d later matches, use a cascade revert",
			bracket.ErrConflict, m.ID, len(impact.Affected))
	}
	return nil
}

func editOf(home, away int, pen *PenaltyInput) advance.Edit {
	edit := advance.Edit{HomeScore: home, AwayScore: away}
	if pen != nil {
		edit.PenaltiesPlayed = true
		edit.PenaltyHome = utils.Ptr(pen.Home)
		edit.PenaltyAway = utils.Ptr(pen.Away)
	}
	return edit
}

func hasScoringEvents(events []bracket.MatchEvent) bool {
	for _, e := range events {
		if e.Kind == bracket.EventGoal || e.Kind == bracket.EventOwnGoal {
			return true
		}
	}
	return false
}

// AddMatchEvent records an event on an unfinished match and keeps its score
// equal to the goals recorded.
func (s *MatchService) AddMatchEvent(ctx context.Context, matchID uuid.UUID, input EventInput) (*bracket.MatchEvent, error) {
	if !input.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown event kind %q", bracket.ErrValidation, input.Kind)
	}
	if input.Minute != nil && *input.Minute < 0 {
		return nil, fmt.Errorf("%w: minute must not be negative", bracket.ErrValidation)
	}

	tournamentID, err := s.tournamentOfMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(tournamentID)
	defer unlock()

	event := &bracket.MatchEvent{
		ID:      uuid.New(),
		MatchID: matchID,
		TeamID:  input.TeamID,
		Kind:    input.Kind,
		Minute:  input.Minute,
	}
	if input.Player != nil {
		event.Player = utils.StringOrNil(*input.Player)
	}
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		m, err := s.editableMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if !m.Involves(input.TeamID) {
			return fmt.Errorf("%w: team %s does not play match %s", bracket.ErrValidation, input.TeamID, matchID)
		}
		if err := s.store.CreateEvent(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		return s.reproject(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("event recorded", "match_id", matchID, "event_id", event.ID, "kind", event.Kind)
	return event, nil
}

func (s *MatchService) RemoveMatchEvent(ctx context.Context, eventID uuid.UUID) error {
	event, err := s.store.GetEvent(ctx, s.db, eventID)
	if err != nil {
		return err
	}
	tournamentID, err := s.tournamentOfMatch(ctx, event.MatchID)
	if err != nil {
		return err
	}
	unlock := s.lock(tournamentID)
	defer unlock()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		m, err := s.editableMatch(ctx, tx, event.MatchID)
		if err != nil {
			return err
		}
		n, err := s.store.DeleteEvents(ctx, tx, []uuid.UUID{eventID})
		if err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: event %s", bracket.ErrNotFound, eventID)
		}
		return s.reproject(ctx, tx, m)
	})
}

// editableMatch loads a match whose events may still change.
func (s *MatchService) editableMatch(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID) (*bracket.Match, error) {
	m, err := s.store.GetMatch(ctx, tx, matchID)
	if err != nil {
		return nil, err
	}
	t, err := s.store.GetTournament(ctx, tx, m.TournamentID)
	if err != nil {
		return nil, err
	}
	if err := requirePlayable(t); err != nil {
		return nil, err
	}
	if m.Status == bracket.MatchFinished {
		return nil, fmt.Errorf("%w: match %s is finished, use a cascade revert", bracket.ErrConflict, matchID)
	}
	if m.IsBye || m.HomeTeamID == nil || m.AwayTeamID == nil {
		return nil, fmt.Errorf("%w: match %s is not playable", bracket.ErrValidation, matchID)
	}
	return m, nil
}

// reproject sets the score from the goals recorded and marks the match in progress.
func (s *MatchService) reproject(ctx context.Context, tx *sqlx.Tx, m *bracket.Match) error {
	events, err := s.store.ListEvents(ctx, tx, m.ID)
	if err != nil {
		return fmt.Errorf("failed to get events: %w", err)
	}
	home, away := bracket.ProjectScore(m, events)
	m.HomeScore = utils.Ptr(home)
	m.AwayScore = utils.Ptr(away)
	m.Status = bracket.MatchInProgress
	if err := s.store.UpdateMatch(ctx, tx, m); err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	return nil
}
