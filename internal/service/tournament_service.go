package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TournamentService owns registration: tournaments, their teams and approval.
type TournamentService struct {
	*deps
}

type TeamInput struct {
	Name string
	Seed *int
	// Teams are approved on creation unless Pending is set
	Pending bool
}

type TournamentInput struct {
	Name            string
	Format          bracket.TournamentFormat
	Scoring         *bracket.ScoringRule
	DoubleRound     bool
	TwoLeggedPhases []string
	AwayGoals       bool
	PenaltiesOnTie  bool
	AllowByes       bool
	Teams           []TeamInput
}

type TournamentData struct {
	Tournament   *bracket.Tournament
	Participants []bracket.Participant
	Rounds       []bracket.Round
	Matches      []bracket.Match
	View         BracketView
	NextMatchID  *uuid.UUID
}

func (s *TournamentService) GetTournamentData(ctx context.Context, id uuid.UUID) (*TournamentData, error) {
	tournament, err := s.store.GetTournament(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	participants, err := s.store.ListParticipants(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	rounds, err := s.store.ListRounds(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.ListMatches(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	// first playable match still open
	var nextMatchID *uuid.UUID
	for _, m := range matches {
		if m.Status != bracket.MatchFinished && m.HomeTeamID != nil && m.AwayTeamID != nil {
			nextMatchID = utils.Ptr(m.ID)
			break
		}
	}

	return &TournamentData{
		Tournament:   tournament,
		Participants: participants,
		Rounds:       rounds,
		Matches:      matches,
		View:         PrepareBracketView(participants, rounds, matches),
		NextMatchID:  nextMatchID,
	}, nil
}

func (s *TournamentService) ListTournaments(ctx context.Context) ([]bracket.Tournament, error) {
	return s.store.ListTournaments(ctx)
}

func (s *TournamentService) CreateTournament(ctx context.Context, input TournamentInput) (uuid.UUID, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return uuid.Nil, fmt.Errorf("%w: tournament name is required", bracket.ErrValidation)
	}
	if !input.Format.Valid() {
		return uuid.Nil, fmt.Errorf("%w: unknown format %q", bracket.ErrValidation, input.Format)
	}

	tournament := bracket.Tournament{
		ID:              uuid.New(),
		Name:            name,
		Format:          input.Format,
		Status:          bracket.TournamentPending,
		DoubleRound:     input.DoubleRound,
		TwoLeggedPhases: normalizePhases(input.TwoLeggedPhases),
		AwayGoals:       input.AwayGoals,
		PenaltiesOnTie:  input.PenaltiesOnTie,
		AllowByes:       input.AllowByes,
	}
	if input.Scoring != nil {
		tournament.SetScoring(*input.Scoring)
	} else {
		tournament.SetScoring(bracket.FootballScoring)
	}

	teams := make([]bracket.Team, 0, len(input.Teams))
	participants := make([]bracket.Participant, 0, len(input.Teams))
	seen := make(map[string]bool, len(input.Teams))
	for _, in := range input.Teams {
		teamName := strings.TrimSpace(in.Name)
		if teamName == "" {
			return uuid.Nil, fmt.Errorf("%w: team name is required", bracket.ErrValidation)
		}
		key := strings.ToLower(teamName)
		if seen[key] {
			return uuid.Nil, fmt.Errorf("%w: team %q entered twice", bracket.ErrValidation, teamName)
		}
		seen[key] = true

		team := bracket.Team{ID: uuid.New(), Name: teamName}
		status := bracket.ParticipantApproved
		if in.Pending {
			status = bracket.ParticipantPending
		}
		teams = append(teams, team)
		participants = append(participants, bracket.Participant{
			TournamentID: tournament.ID,
			TeamID:       team.ID,
			Status:       status,
			Seed:         in.Seed,
		})
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.store.CreateTournament(ctx, tx, &tournament); err != nil {
			return fmt.Errorf("failed to create tournament: %w", err)
		}
		if err := s.store.CreateTeams(ctx, tx, teams); err != nil {
			return fmt.Errorf("failed to create teams: %w", err)
		}
		if err := s.store.AddParticipants(ctx, tx, participants); err != nil {
			return fmt.Errorf("failed to add participants: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("tournament created", "tournament_id", tournament.ID, "format", tournament.Format, "teams", len(teams))
	return tournament.ID, nil
}

// SetParticipantStatus approves or rejects a team. Only allowed before fixtures exist.
func (s *TournamentService) SetParticipantStatus(ctx context.Context, tournamentID, teamID uuid.UUID, status bracket.ParticipantStatus) error {
	switch status {
	case bracket.ParticipantPending, bracket.ParticipantApproved, bracket.ParticipantRejected:
	default:
		return fmt.Errorf("%w: unknown participant status %q", bracket.ErrValidation, status)
	}

	unlock := s.lock(tournamentID)
	defer unlock()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.requireUngenerated(ctx, tx, tournamentID); err != nil {
			return err
		}
		return s.store.SetParticipantStatus(ctx, tx, tournamentID, teamID, status)
	})
}

// CancelTournament stops a tournament for good. Results stay readable.
func (s *TournamentService) CancelTournament(ctx context.Context, tournamentID uuid.UUID) error {
	unlock := s.lock(tournamentID)
	defer unlock()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.store.GetTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status == bracket.TournamentFinished {
			return fmt.Errorf("%w: tournament %s is already finished", bracket.ErrConflict, tournamentID)
		}
		s.logger.Info("tournament cancelled", "tournament_id", tournamentID, "previous_status", t.Status)
		return s.store.UpdateTournamentStatus(ctx, tx, tournamentID, bracket.TournamentCancelled)
	})
}

// requireUngenerated is the generation guard: pending and without rounds.
func (d *deps) requireUngenerated(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) error {
	t, err := d.store.GetTournament(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	return d.checkUngenerated(ctx, tx, t)
}

func (d *deps) checkUngenerated(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament) error {
	if t.Status != bracket.TournamentPending {
		return fmt.Errorf("%w: tournament %s is %s", bracket.ErrConflict, t.ID, t.Status)
	}
	n, err := d.store.CountRounds(ctx, tx, t.ID)
	if err != nil {
		return fmt.Errorf("failed to count rounds: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: tournament %s already has %d rounds, delete them before regenerating", bracket.ErrConflict, t.ID, n)
	}
	return nil
}

func normalizePhases(phases []string) string {
	out := make([]string, 0, len(phases))
	for _, p := range phases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}
