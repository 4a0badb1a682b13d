package service

import (
	"context"
	"testing"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAdvanceWinner(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id, teams := seededBracket(t, e, TournamentInput{}, 4)

	matches := listMatches(t, st, e, id)
	semis := byLabel(matches, bracket.LabelSemifinal, false)
	final := byLabel(matches, bracket.LabelFinal, false)[0]

	ack := finalize(t, e, semis[0].ID, 3, 1)
	assert.Equal(t, bracket.MatchFinished, ack.Status)
	require.NotNil(t, ack.WinnerID)
	assert.Equal(t, teams[0], *ack.WinnerID)
	assert.Equal(t, 1, ack.Updated)

	got := getMatch(t, st, e, final.ID)
	require.NotNil(t, got.HomeTeamID)
	assert.Equal(t, teams[0], *got.HomeTeamID)
	assert.Nil(t, got.AwayTeamID)

	// running it again changes nothing
	plan, err := e.Matches.AdvanceMatch(ctx, semis[0].ID)
	require.NoError(t, err)
	assert.True(t, plan.Empty())

	finalize(t, e, semis[1].ID, 0, 2)
	got = getMatch(t, st, e, final.ID)
	assert.Equal(t, teams[2], *got.AwayTeamID)

	ack = finalize(t, e, final.ID, 1, 0)
	require.NotNil(t, ack.TournamentStatus)
	assert.Equal(t, bracket.TournamentFinished, *ack.TournamentStatus)
	assert.Equal(t, bracket.TournamentFinished, tournamentStatus(t, st, e, id))
}

func TestRecordResultInProgress(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id, _ := seededBracket(t, e, TournamentInput{}, 4)
	semi := byLabel(listMatches(t, st, e, id), bracket.LabelSemifinal, false)[0]

	ack, err := e.Matches.RecordMatchResult(ctx, semi.ID, ResultInput{HomeScore: 1, AwayScore: 0})
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchInProgress, ack.Status)
	assert.Nil(t, ack.WinnerID)

	final := byLabel(listMatches(t, st, e, id), bracket.LabelFinal, false)[0]
	assert.Nil(t, final.HomeTeamID, "nothing advances before the match is finalized")
}

func TestRecordResultValidation(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id, _ := seededBracket(t, e, TournamentInput{PenaltiesOnTie: true}, 4)
	matches := listMatches(t, st, e, id)
	semi := byLabel(matches, bracket.LabelSemifinal, false)[0]
	final := byLabel(matches, bracket.LabelFinal, false)[0]

	cases := []struct {
		name    string
		matchID uuid.UUID
		input   ResultInput
	}{
		{"negative score", semi.ID, ResultInput{HomeScore: -1, AwayScore: 0}},
		{"teams not known yet", final.ID, ResultInput{HomeScore: 1, AwayScore: 0}},
		{"penalties after a decided match", semi.ID, ResultInput{HomeScore: 2, AwayScore: 1, Penalties: &PenaltyInput{Home: 4, Away: 3}}},
		{"drawn shootout", semi.ID, ResultInput{HomeScore: 1, AwayScore: 1, Penalties: &PenaltyInput{Home: 4, Away: 4}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Matches.RecordMatchResult(ctx, tc.matchID, tc.input)
			assert.ErrorIs(t, err, bracket.ErrValidation)
		})
	}

	_, err := e.Matches.RecordMatchResult(ctx, uuid.New(), ResultInput{})
	assert.ErrorIs(t, err, bracket.ErrNotFound)
}

func TestRecordResultDrawWaitsForPenalties(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id, teams := seededBracket(t, e, TournamentInput{PenaltiesOnTie: true}, 4)
	matches := listMatches(t, st, e, id)
	semi := byLabel(matches, bracket.LabelSemifinal, false)[0]
	final := byLabel(matches, bracket.LabelFinal, false)[0]

	ack := finalize(t, e, semi.ID, 1, 1)
	assert.Nil(t, ack.WinnerID)
	assert.Nil(t, getMatch(t, st, e, final.ID).HomeTeamID)

	// the shootout completes the finished match
	ack, err := e.Matches.RecordMatchResult(ctx, semi.ID, ResultInput{
		HomeScore: 1, AwayScore: 1, Finalize: true,
		Penalties: &PenaltyInput{Home: 3, Away: 5},
	})
	require.NoError(t, err)
	require.NotNil(t, ack.WinnerID)
	assert.Equal(t, teams[3], *ack.WinnerID)
	assert.Equal(t, teams[3], *getMatch(t, st, e, final.ID).HomeTeamID)

	got := getMatch(t, st, e, semi.ID)
	assert.True(t, got.PenaltiesPlayed)
	assert.Equal(t, 5, utils.OrZero(got.PenaltyAway))
}

func TestRecordResultPenaltiesFollowTournamentSetting(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name           string
		penaltiesOnTie bool
	}{
		{"shootouts allowed", true},
		{"shootouts disabled", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, st := newTestEngine(t)
			id, teams := seededBracket(t, e, TournamentInput{PenaltiesOnTie: tc.penaltiesOnTie}, 4)
			matches := listMatches(t, st, e, id)
			semi := byLabel(matches, bracket.LabelSemifinal, false)[0]
			final := byLabel(matches, bracket.LabelFinal, false)[0]

			ack, err := e.Matches.RecordMatchResult(ctx, semi.ID, ResultInput{
				HomeScore: 1, AwayScore: 1, Finalize: true,
				Penalties: &PenaltyInput{Home: 4, Away: 3},
			})
			if !tc.penaltiesOnTie {
				assert.ErrorIs(t, err, bracket.ErrValidation)
				assert.Nil(t, getMatch(t, st, e, semi.ID).HomeScore, "nothing is written")

				// a level score stays unresolved until it is corrected
				ack = finalize(t, e, semi.ID, 1, 1)
				assert.Nil(t, ack.WinnerID)
				assert.Nil(t, getMatch(t, st, e, final.ID).HomeTeamID)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, ack.WinnerID)
			assert.Equal(t, teams[0], *ack.WinnerID)
			assert.Equal(t, teams[0], *getMatch(t, st, e, final.ID).HomeTeamID)
		})
	}
}

func TestRecordResultRefusesChangeWithDownstream(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id, teams := seededBracket(t, e, TournamentInput{}, 4)
	semi := byLabel(listMatches(t, st, e, id), bracket.LabelSemifinal, false)[0]
	finalize(t, e, semi.ID, 2, 0)

	_, err := e.Matches.RecordMatchResult(ctx, semi.ID, ResultInput{HomeScore: 0, AwayScore: 2, Finalize: true})
	assert.ErrorIs(t, err, bracket.ErrConflict)

	_, err = e.Matches.RecordMatchResult(ctx, semi.ID, ResultInput{HomeScore: 2, AwayScore: 1})
	assert.ErrorIs(t, err, bracket.ErrConflict, "finished matches do not go back in progress")

	// same winner, different score
	ack := finalize(t, e, semi.ID, 3, 0)
	assert.Equal(t, teams[0], *ack.WinnerID)
	got := getMatch(t, st, e, semi.ID)
	assert.Equal(t, 3, utils.OrZero(got.HomeScore))
}

func TestRecordResultCancelledTournament(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id, _ := seededBracket(t, e, TournamentInput{}, 4)
	semi := byLabel(listMatches(t, st, e, id), bracket.LabelSemifinal, false)[0]

	require.NoError(t, e.Tournaments.CancelTournament(ctx, id))
	_, err := e.Matches.RecordMatchResult(ctx, semi.ID, ResultInput{HomeScore: 1, AwayScore: 0, Finalize: true})
	assert.ErrorIs(t, err, bracket.ErrConflict)
}

func TestTwoLeggedTie(t *testing.T) {
	ctx := context.Background()

	play := func(t *testing.T, awayGoals bool) (*Engine, []bracket.Match, []bracket.Match, bracket.Match, []uuid.UUID) {
		e, st := newTestEngine(t)
		id, teams := seededBracket(t, e, TournamentInput{
			TwoLeggedPhases: []string{"semifinal"},
			AwayGoals:       awayGoals,
			PenaltiesOnTie:  true,
		}, 4)
		matches := listMatches(t, st, e, id)
		return e, byLabel(matches, bracket.LabelSemifinal, false), byLabel(matches, bracket.LabelSemifinal, true),
			byLabel(matches, bracket.LabelFinal, false)[0], teams
	}

	t.Run("away goals", func(t *testing.T) {
		e, firstLegs, secondLegs, final, teams := play(t, true)
		st := e.Fixtures.store

		// seed 1 hosts leg 1
		ack := finalize(t, e, firstLegs[0].ID, 2, 1)
		assert.Nil(t, ack.WinnerID, "the first leg decides nothing")

		_, err := e.Matches.RecordMatchResult(ctx, firstLegs[0].ID, ResultInput{
			HomeScore: 2, AwayScore: 1, Finalize: true, Penalties: &PenaltyInput{Home: 5, Away: 4},
		})
		assert.ErrorIs(t, err, bracket.ErrValidation, "no shootout after leg 1")

		// 2-2 on aggregate, seed 4 scored away
		ack = finalize(t, e, secondLegs[0].ID, 1, 0)
		require.NotNil(t, ack.WinnerID)
		assert.Equal(t, teams[3], *ack.WinnerID)

		l1 := getMatch(t, st, e, firstLegs[0].ID)
		l2 := getMatch(t, st, e, secondLegs[0].ID)
		assert.Equal(t, 2, utils.OrZero(l1.AggregateHome))
		assert.Equal(t, 2, utils.OrZero(l1.AggregateAway))
		assert.Equal(t, teams[3], *l1.AggregateWinnerID)
		assert.Equal(t, teams[3], *l2.AggregateWinnerID)
		assert.Equal(t, teams[3], *getMatch(t, st, e, final.ID).HomeTeamID)
	})

	t.Run("penalties after the second leg", func(t *testing.T) {
		e, firstLegs, secondLegs, final, teams := play(t, false)
		st := e.Fixtures.store

		finalize(t, e, firstLegs[0].ID, 2, 1)

		_, err := e.Matches.RecordMatchResult(ctx, secondLegs[0].ID, ResultInput{
			HomeScore: 2, AwayScore: 0, Finalize: true, Penalties: &PenaltyInput{Home: 5, Away: 4},
		})
		assert.ErrorIs(t, err, bracket.ErrValidation, "aggregate is not level")

		// leg 2 is hosted by seed 4: 3-4 on penalties sends seed 1 through
		ack, err := e.Matches.RecordMatchResult(ctx, secondLegs[0].ID, ResultInput{
			HomeScore: 1, AwayScore: 0, Finalize: true, Penalties: &PenaltyInput{Home: 3, Away: 4},
		})
		require.NoError(t, err)
		require.NotNil(t, ack.WinnerID)
		assert.Equal(t, teams[0], *ack.WinnerID)
		assert.Equal(t, teams[0], *getMatch(t, st, e, final.ID).HomeTeamID)
	})

	t.Run("second leg played first", func(t *testing.T) {
		e, firstLegs, secondLegs, final, teams := play(t, false)
		st := e.Fixtures.store

		ack := finalize(t, e, secondLegs[1].ID, 0, 3)
		assert.Nil(t, ack.WinnerID)

		// seed 2 won leg 2 away, leg 1 completes the tie
		ack = finalize(t, e, firstLegs[1].ID, 0, 0)
		require.NotNil(t, ack.WinnerID)
		assert.Equal(t, teams[1], *ack.WinnerID)
		assert.Equal(t, teams[1], *getMatch(t, st, e, final.ID).AwayTeamID)
	})
}

func TestConcurrentSiblingFinalization(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id, teams := seededBracket(t, e, TournamentInput{}, 8)

	matches := listMatches(t, st, e, id)
	quarters := byLabel(matches, bracket.LabelQuarterfinal, false)
	require.Len(t, quarters, 4)

	var g errgroup.Group
	for _, q := range quarters {
		g.Go(func() error {
			_, err := e.Matches.RecordMatchResult(ctx, q.ID, ResultInput{HomeScore: 1, AwayScore: 0, Finalize: true})
			return err
		})
	}
	require.NoError(t, g.Wait())

	// every home side is the better seed
	semis := byLabel(listMatches(t, st, e, id), bracket.LabelSemifinal, false)
	require.Len(t, semis, 2)
	got := []uuid.UUID{*semis[0].HomeTeamID, *semis[0].AwayTeamID, *semis[1].HomeTeamID, *semis[1].AwayTeamID}
	assert.Equal(t, []uuid.UUID{*quarters[0].HomeTeamID, *quarters[1].HomeTeamID, *quarters[2].HomeTeamID, *quarters[3].HomeTeamID}, got)
	assert.ElementsMatch(t, teams[:4], got)
}

func TestMatchEventsProjectScore(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id, teams := createTournament(t, e, TournamentInput{Format: bracket.League}, 2)
	_, err := e.Fixtures.GenerateLeagueFixture(ctx, id, false)
	require.NoError(t, err)

	match := listMatches(t, st, e, id)[0]
	home, away := *match.HomeTeamID, *match.AwayTeamID

	_, err = e.Matches.AddMatchEvent(ctx, match.ID, EventInput{TeamID: home, Kind: bracket.EventGoal, Minute: utils.Ptr(12)})
	require.NoError(t, err)
	_, err = e.Matches.AddMatchEvent(ctx, match.ID, EventInput{TeamID: away, Kind: bracket.EventGoal, Minute: utils.Ptr(30)})
	require.NoError(t, err)
	ownGoal, err := e.Matches.AddMatchEvent(ctx, match.ID, EventInput{TeamID: away, Kind: bracket.EventOwnGoal, Minute: utils.Ptr(75)})
	require.NoError(t, err)
	card, err := e.Matches.AddMatchEvent(ctx, match.ID, EventInput{TeamID: away, Kind: bracket.EventYellowCard, Player: utils.Ptr("  Keeper ")})
	require.NoError(t, err)
	assert.Equal(t, "Keeper", utils.OrZero(card.Player))
	card, err = e.Matches.AddMatchEvent(ctx, match.ID, EventInput{TeamID: home, Kind: bracket.EventYellowCard, Player: utils.Ptr("   ")})
	require.NoError(t, err)
	assert.Nil(t, card.Player, "blank player names are dropped")

	got := getMatch(t, st, e, match.ID)
	assert.Equal(t, bracket.MatchInProgress, got.Status)
	assert.Equal(t, 2, utils.OrZero(got.HomeScore))
	assert.Equal(t, 1, utils.OrZero(got.AwayScore))

	t.Run("invalid events", func(t *testing.T) {
		_, err := e.Matches.AddMatchEvent(ctx, match.ID, EventInput{TeamID: uuid.New(), Kind: bracket.EventGoal})
		assert.ErrorIs(t, err, bracket.ErrValidation)
		_, err = e.Matches.AddMatchEvent(ctx, match.ID, EventInput{TeamID: home, Kind: "penalty_miss"})
		assert.ErrorIs(t, err, bracket.ErrValidation)
	})

	_, err = e.Matches.RecordMatchResult(ctx, match.ID, ResultInput{HomeScore: 1, AwayScore: 1, Finalize: true})
	assert.ErrorIs(t, err, bracket.ErrValidation, "score must agree with the goals")

	require.NoError(t, e.Matches.RemoveMatchEvent(ctx, ownGoal.ID))
	got = getMatch(t, st, e, match.ID)
	assert.Equal(t, 1, utils.OrZero(got.HomeScore))

	ack := finalize(t, e, match.ID, 1, 1)
	require.NotNil(t, ack.TournamentStatus, "last league match finishes the league")
	assert.Equal(t, bracket.TournamentFinished, *ack.TournamentStatus)

	_, err = e.Matches.AddMatchEvent(ctx, match.ID, EventInput{TeamID: teams[0], Kind: bracket.EventGoal})
	assert.ErrorIs(t, err, bracket.ErrConflict)

	data, err := e.Matches.GetMatchData(ctx, match.ID)
	require.NoError(t, err)
	assert.Len(t, data.Events, 4)
}
