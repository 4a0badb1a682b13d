package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

// notFound turns sql.ErrNoRows into bracket.ErrNotFound.
func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", bracket.ErrNotFound, what, id)
	}
	return err
}

func (s *TournamentStore) CreateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO tournaments (id, name, format, status, double_round, num_groups,
            qualifiers_per_group, two_legged_phases, away_goals, penalties_on_tie, allow_byes,
            points_win, points_draw, points_loss, allows_draws)
        VALUES (:id, :name, :format, :status, :double_round, :num_groups,
            :qualifiers_per_group, :two_legged_phases, :away_goals, :penalties_on_tie, :allow_byes,
            :points_win, :points_draw, :points_loss, :allows_draws)`, tournament)
	return err
}

func (s *TournamentStore) GetTournament(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	err := sqlx.GetContext(ctx, q, &tournament, "SELECT * FROM tournaments WHERE id = ?", id)
	if err != nil {
		return nil, notFound(err, "tournament", id)
	}
	return &tournament, nil
}

func (s *TournamentStore) ListTournaments(ctx context.Context) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments, "SELECT * FROM tournaments ORDER BY created_at DESC, name ASC")
	return tournaments, err
}

func (s *TournamentStore) UpdateTournamentStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status bracket.TournamentStatus) error {
	res, err := tx.ExecContext(ctx, "UPDATE tournaments SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	return expectRow(res, "tournament", id)
}

func (s *TournamentStore) UpdateGroupsConfig(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, numGroups, qualifiersPerGroup int, doubleRound bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE tournaments SET num_groups = ?, qualifiers_per_group = ?, double_round = ?
        WHERE id = ?`, numGroups, qualifiersPerGroup, doubleRound, id)
	if err != nil {
		return err
	}
	return expectRow(res, "tournament", id)
}

func expectRow(res sql.Result, what string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %v", bracket.ErrNotFound, what, id)
	}
	return nil
}

func (s *TournamentStore) CreateTeams(ctx context.Context, tx *sqlx.Tx, teams []bracket.Team) error {
	if len(teams) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO teams (id, name) VALUES (:id, :name)`, teams)
	return err
}

func (s *TournamentStore) ListTeams(ctx context.Context) ([]bracket.Team, error) {
	var teams []bracket.Team
	err := s.db.SelectContext(ctx, &teams, "SELECT * FROM teams ORDER BY name ASC")
	return teams, err
}

func (s *TournamentStore) AddParticipants(ctx context.Context, tx *sqlx.Tx, participants []bracket.Participant) error {
	if len(participants) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO participants (tournament_id, team_id, status, seed, group_name)
            VALUES (:tournament_id, :team_id, :status, :seed, :group_name)`, participants)
	return err
}

const participantColumns = `p.tournament_id, p.team_id, p.status, p.seed, p.group_name, t.name AS team_name`

func (s *TournamentStore) ListParticipants(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Participant, error) {
	var participants []bracket.Participant
	err := sqlx.SelectContext(ctx, q, &participants, `SELECT `+participantColumns+`
        FROM participants p JOIN teams t ON t.id = p.team_id
        WHERE p.tournament_id = ?
        ORDER BY p.seed IS NULL, p.seed ASC, t.name ASC`, tournamentID)
	return participants, err
}

// ApprovedParticipants returns the entrants of a tournament, seeded ones first.
func (s *TournamentStore) ApprovedParticipants(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Participant, error) {
	var participants []bracket.Participant
	err := sqlx.SelectContext(ctx, q, &participants, `SELECT `+participantColumns+`
        FROM participants p JOIN teams t ON t.id = p.team_id
        WHERE p.tournament_id = ? AND p.status = ?
        ORDER BY p.seed IS NULL, p.seed ASC, t.name ASC`, tournamentID, bracket.ParticipantApproved)
	return participants, err
}

func (s *TournamentStore) SetParticipantStatus(ctx context.Context, tx *sqlx.Tx, tournamentID, teamID uuid.UUID, status bracket.ParticipantStatus) error {
	res, err := tx.ExecContext(ctx, "UPDATE participants SET status = ? WHERE tournament_id = ? AND team_id = ?", status, tournamentID, teamID)
	if err != nil {
		return err
	}
	return expectRow(res, "participant", teamID)
}

func (s *TournamentStore) SetParticipantGroup(ctx context.Context, tx *sqlx.Tx, tournamentID, teamID uuid.UUID, group *string) error {
	res, err := tx.ExecContext(ctx, "UPDATE participants SET group_name = ? WHERE tournament_id = ? AND team_id = ?", group, tournamentID, teamID)
	if err != nil {
		return err
	}
	return expectRow(res, "participant", teamID)
}

func (s *TournamentStore) ClearParticipantGroups(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, "UPDATE participants SET group_name = NULL WHERE tournament_id = ?", tournamentID)
	return err
}
