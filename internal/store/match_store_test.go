package store

import (
	"context"
	"testing"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndLinkMatches(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	ctx := context.Background()
	tournament := newTournament(bracket.SingleElimination)
	withTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, store.CreateTournament(ctx, tx, tournament))
	})
	teams := seedTeams(t, db, store, tournament.ID, 2)

	rounds := []bracket.Round{
		{ID: uuid.New(), TournamentID: tournament.ID, Number: 1, PhaseLabel: utils.Ptr(bracket.LabelSemifinal), PhaseType: utils.Ptr("semifinal")},
		{ID: uuid.New(), TournamentID: tournament.ID, Number: 2, PhaseLabel: utils.Ptr(bracket.LabelFinal), PhaseType: utils.Ptr("final")},
	}
	semi := bracket.Match{
		ID:           uuid.New(),
		TournamentID: tournament.ID,
		RoundID:      rounds[0].ID,
		HomeTeamID:   &teams[0].ID,
		AwayTeamID:   &teams[1].ID,
		Status:       bracket.MatchPending,
		RoundLabel:   utils.Ptr(bracket.LabelSemifinal),
	}
	final := bracket.Match{
		ID:           uuid.New(),
		TournamentID: tournament.ID,
		RoundID:      rounds[1].ID,
		Status:       bracket.MatchPending,
		RoundLabel:   utils.Ptr(bracket.LabelFinal),
	}

	withTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, store.CreateRounds(ctx, tx, rounds))
		require.NoError(t, store.CreateMatches(ctx, tx, []bracket.Match{final, semi}))

		semi.NextMatchID = &final.ID
		semi.NextSlot = utils.Ptr(bracket.AwaySlot)
		require.NoError(t, store.LinkMatches(ctx, tx, []bracket.Match{semi}))
	})

	matches, err := store.ListMatches(ctx, db, tournament.ID)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// ordered by round number
	assert.Equal(t, semi.ID, matches[0].ID)
	assert.Equal(t, final.ID, *matches[0].NextMatchID)
	assert.Equal(t, bracket.AwaySlot, *matches[0].NextSlot)
	assert.Equal(t, teams[0].ID, *matches[0].HomeTeamID)
	assert.Nil(t, matches[1].HomeTeamID)
	assert.Nil(t, matches[1].NextMatchID)

	n, err := store.CountLabeledMatches(ctx, db, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	maxRound, err := store.MaxRoundNumber(ctx, db, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, maxRound)
}

func TestUpdateMatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	ctx := context.Background()
	tournament := newTournament(bracket.League)
	withTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, store.CreateTournament(ctx, tx, tournament))
	})
	teams := seedTeams(t, db, store, tournament.ID, 2)

	round := bracket.Round{ID: uuid.New(), TournamentID: tournament.ID, Number: 1}
	match := bracket.Match{
		ID:           uuid.New(),
		TournamentID: tournament.ID,
		RoundID:      round.ID,
		HomeTeamID:   &teams[0].ID,
		AwayTeamID:   &teams[1].ID,
		Status:       bracket.MatchPending,
	}
	withTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, store.CreateRounds(ctx, tx, []bracket.Round{round}))
		require.NoError(t, store.CreateMatches(ctx, tx, []bracket.Match{match}))
	})

	match.Status = bracket.MatchFinished
	match.HomeScore = utils.Ptr(1)
	match.AwayScore = utils.Ptr(1)
	match.PenaltiesPlayed = true
	match.PenaltyHome = utils.Ptr(5)
	match.PenaltyAway = utils.Ptr(4)
	match.AggregateWinnerID = &teams[0].ID
	withTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, store.UpdateMatch(ctx, tx, &match))
	})

	fetched, err := store.GetMatch(ctx, db, match.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchFinished, fetched.Status)
	assert.Equal(t, 1, *fetched.HomeScore)
	assert.True(t, fetched.PenaltiesPlayed)
	assert.Equal(t, 5, *fetched.PenaltyHome)
	assert.Equal(t, teams[0].ID, *fetched.AggregateWinnerID)

	_, err = store.GetMatch(ctx, db, uuid.New())
	assert.ErrorIs(t, err, bracket.ErrNotFound)
}

func TestEventsAndDeletes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	ctx := context.Background()
	tournament := newTournament(bracket.League)
	withTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, store.CreateTournament(ctx, tx, tournament))
	})
	teams := seedTeams(t, db, store, tournament.ID, 2)

	rounds := []bracket.Round{
		{ID: uuid.New(), TournamentID: tournament.ID, Number: 1},
		{ID: uuid.New(), TournamentID: tournament.ID, Number: 2},
	}
	first := bracket.Match{ID: uuid.New(), TournamentID: tournament.ID, RoundID: rounds[0].ID, HomeTeamID: &teams[0].ID, AwayTeamID: &teams[1].ID, Status: bracket.MatchPending}
	second := bracket.Match{ID: uuid.New(), TournamentID: tournament.ID, RoundID: rounds[1].ID, HomeTeamID: &teams[1].ID, AwayTeamID: &teams[0].ID, Status: bracket.MatchPending}
	events := []bracket.MatchEvent{
		{ID: uuid.New(), MatchID: first.ID, TeamID: teams[0].ID, Kind: bracket.EventGoal, Minute: utils.Ptr(12), Player: utils.Ptr("Iglesias")},
		{ID: uuid.New(), MatchID: first.ID, TeamID: teams[1].ID, Kind: bracket.EventYellowCard, Minute: utils.Ptr(40)},
		{ID: uuid.New(), MatchID: second.ID, TeamID: teams[1].ID, Kind: bracket.EventOwnGoal},
	}

	withTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, store.CreateRounds(ctx, tx, rounds))
		require.NoError(t, store.CreateMatches(ctx, tx, []bracket.Match{first, second}))
		for i := range events {
			require.NoError(t, store.CreateEvent(ctx, tx, &events[i]))
		}
	})

	listed, err := store.ListEvents(ctx, db, first.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, events[0].ID, listed[0].ID)
	assert.Equal(t, "Iglesias", *listed[0].Player)

	counts, err := store.CountEventsByMatch(ctx, db, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{first.ID: 2, second.ID: 1}, counts)

	withTx(t, db, func(tx *sqlx.Tx) {
		n, err := store.DeleteEvents(ctx, tx, []uuid.UUID{events[1].ID})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		// deleting the round cascades to its matches and their events
		require.NoError(t, store.DeleteRound(ctx, tx, rounds[1].ID))
	})

	_, err = store.GetEvent(ctx, db, events[2].ID)
	assert.ErrorIs(t, err, bracket.ErrNotFound)
	_, err = store.GetMatch(ctx, db, second.ID)
	assert.ErrorIs(t, err, bracket.ErrNotFound)

	withTx(t, db, func(tx *sqlx.Tx) {
		n, err := store.DeleteEventsForMatches(ctx, tx, []uuid.UUID{first.ID})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = store.DeleteRounds(ctx, tx, tournament.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	count, err := store.CountRounds(ctx, db, tournament.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
