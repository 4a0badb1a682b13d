package store

import (
	"context"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func (s *TournamentStore) CreateRounds(ctx context.Context, tx *sqlx.Tx, rounds []bracket.Round) error {
	if len(rounds) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO rounds (id, tournament_id, number, phase_label, phase_type, match_cap)
            VALUES (:id, :tournament_id, :number, :phase_label, :phase_type, :match_cap)`, rounds)
	return err
}

func (s *TournamentStore) GetRound(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Round, error) {
	var round bracket.Round
	if err := sqlx.GetContext(ctx, q, &round, "SELECT * FROM rounds WHERE id = ?", id); err != nil {
		return nil, notFound(err, "round", id)
	}
	return &round, nil
}

func (s *TournamentStore) ListRounds(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Round, error) {
	var rounds []bracket.Round
	err := sqlx.SelectContext(ctx, q, &rounds, "SELECT * FROM rounds WHERE tournament_id = ? ORDER BY number ASC", tournamentID)
	return rounds, err
}

func (s *TournamentStore) CountRounds(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM rounds WHERE tournament_id = ?", tournamentID)
	return n, err
}

// MaxRoundNumber is 0 when the tournament has no rounds.
func (s *TournamentStore) MaxRoundNumber(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, "SELECT COALESCE(MAX(number), 0) FROM rounds WHERE tournament_id = ?", tournamentID)
	return n, err
}

// DeleteRound removes a round and, through the foreign keys, its matches and events.
func (s *TournamentStore) DeleteRound(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM rounds WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectRow(res, "round", id)
}

// DeleteRounds removes every round of a tournament.
func (s *TournamentStore) DeleteRounds(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM rounds WHERE tournament_id = ?", tournamentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateMatches inserts matches as given. Links between new matches are usually
// written afterwards with LinkMatches, once every row exists.
func (s *TournamentStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO matches (id, tournament_id, round_id, match_order, home_team_id, away_team_id,
            status, home_score, away_score, round_label, next_match_id, next_slot, is_bye, is_second_leg, paired_match_id)
        VALUES (:id, :tournament_id, :round_id, :match_order, :home_team_id, :away_team_id,
            :status, :home_score, :away_score, :round_label, :next_match_id, :next_slot, :is_bye, :is_second_leg, :paired_match_id)`, matches)
	return err
}

// LinkMatches writes next_match_id, next_slot and paired_match_id of each match.
func (s *TournamentStore) LinkMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	for i := range matches {
		_, err := tx.NamedExecContext(ctx, `UPDATE matches
            SET next_match_id = :next_match_id, next_slot = :next_slot, paired_match_id = :paired_match_id
            WHERE id = :id`, &matches[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateMatch writes the slots, result, links and tie-break state of a match.
func (s *TournamentStore) UpdateMatch(ctx context.Context, tx *sqlx.Tx, match *bracket.Match) error {
	res, err := tx.NamedExecContext(ctx, `UPDATE matches SET
            home_team_id = :home_team_id, away_team_id = :away_team_id,
            status = :status, home_score = :home_score, away_score = :away_score,
            next_match_id = :next_match_id, next_slot = :next_slot, paired_match_id = :paired_match_id,
            aggregate_home = :aggregate_home, aggregate_away = :aggregate_away, aggregate_winner_id = :aggregate_winner_id,
            penalties_played = :penalties_played, penalty_home = :penalty_home, penalty_away = :penalty_away
        WHERE id = :id`, match)
	if err != nil {
		return err
	}
	return expectRow(res, "match", match.ID)
}

func (s *TournamentStore) GetMatch(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	if err := sqlx.GetContext(ctx, q, &match, "SELECT * FROM matches WHERE id = ?", id); err != nil {
		return nil, notFound(err, "match", id)
	}
	return &match, nil
}

// ListMatches returns every match of a tournament in round then match order.
func (s *TournamentStore) ListMatches(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := sqlx.SelectContext(ctx, q, &matches, `SELECT m.* FROM matches m JOIN rounds r ON r.id = m.round_id
        WHERE m.tournament_id = ?
        ORDER BY r.number ASC, m.match_order ASC`, tournamentID)
	return matches, err
}

// CountLabeledMatches counts bracket matches, i.e. whether a playoff exists.
func (s *TournamentStore) CountLabeledMatches(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM matches WHERE tournament_id = ? AND round_label IS NOT NULL", tournamentID)
	return n, err
}

func (s *TournamentStore) DeleteMatch(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM matches WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectRow(res, "match", id)
}

func (s *TournamentStore) CreateEvent(ctx context.Context, tx *sqlx.Tx, event *bracket.MatchEvent) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO match_events (id, match_id, team_id, kind, minute, player)
            VALUES (:id, :match_id, :team_id, :kind, :minute, :player)`, event)
	return err
}

func (s *TournamentStore) GetEvent(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.MatchEvent, error) {
	var event bracket.MatchEvent
	if err := sqlx.GetContext(ctx, q, &event, "SELECT * FROM match_events WHERE id = ?", id); err != nil {
		return nil, notFound(err, "event", id)
	}
	return &event, nil
}

func (s *TournamentStore) ListEvents(ctx context.Context, q sqlx.QueryerContext, matchID uuid.UUID) ([]bracket.MatchEvent, error) {
	var events []bracket.MatchEvent
	err := sqlx.SelectContext(ctx, q, &events, "SELECT * FROM match_events WHERE match_id = ? ORDER BY minute IS NULL, minute ASC, created_at ASC", matchID)
	return events, err
}

func (s *TournamentStore) DeleteEvents(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In("DELETE FROM match_events WHERE id IN (?)", ids)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TournamentStore) DeleteEventsForMatches(ctx context.Context, tx *sqlx.Tx, matchIDs []uuid.UUID) (int64, error) {
	if len(matchIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In("DELETE FROM match_events WHERE match_id IN (?)", matchIDs)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountEventsByMatch returns how many events each match of a tournament has.
// Matches without events are absent.
func (s *TournamentStore) CountEventsByMatch(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		MatchID uuid.UUID `db:"match_id"`
		N       int       `db:"n"`
	}
	err := sqlx.SelectContext(ctx, q, &rows, `SELECT e.match_id, COUNT(*) AS n
        FROM match_events e JOIN matches m ON m.id = e.match_id
        WHERE m.tournament_id = ?
        GROUP BY e.match_id`, tournamentID)
	if err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		counts[r.MatchID] = r.N
	}
	return counts, nil
}
