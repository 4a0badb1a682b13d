package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/metrics"
	"github.com/AdamBeresnev/fixture-engine/internal/store"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	// every connection to :memory: is its own database
	database.SetMaxOpenConns(1)

	_, err = database.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

// newTestEngine builds an engine whose shuffle keeps the input order, so
// fixtures follow the seed order of the teams.
func newTestEngine(t *testing.T) (*Engine, *store.TournamentStore) {
	t.Helper()
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	st := store.NewTournamentStore(db)
	engine := NewEngine(db, st,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	engine.Fixtures.shuffle = func([]uuid.UUID) {}
	return engine, st
}

// createTournament registers n seeded teams and returns them in seed order.
func createTournament(t *testing.T, e *Engine, input TournamentInput, n int) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	if input.Name == "" {
		input.Name = gofakeit.Company() + " Cup"
	}
	for i := 0; i < n; i++ {
		input.Teams = append(input.Teams, TeamInput{
			Name: fmt.Sprintf("%s %d", gofakeit.City(), i+1),
			Seed: utils.Ptr(i + 1),
		})
	}
	id, err := e.Tournaments.CreateTournament(ctx, input)
	require.NoError(t, err)

	data, err := e.Tournaments.GetTournamentData(ctx, id)
	require.NoError(t, err)
	require.Len(t, data.Participants, n)

	teams := make([]uuid.UUID, n)
	for i, p := range data.Participants {
		require.Equal(t, i+1, utils.OrZero(p.Seed))
		teams[i] = p.TeamID
	}
	return id, teams
}

func listMatches(t *testing.T, st *store.TournamentStore, e *Engine, tournamentID uuid.UUID) []bracket.Match {
	t.Helper()
	matches, err := st.ListMatches(context.Background(), e.Fixtures.db, tournamentID)
	require.NoError(t, err)
	return matches
}

func getMatch(t *testing.T, st *store.TournamentStore, e *Engine, id uuid.UUID) *bracket.Match {
	t.Helper()
	m, err := st.GetMatch(context.Background(), e.Fixtures.db, id)
	require.NoError(t, err)
	return m
}

func tournamentStatus(t *testing.T, st *store.TournamentStore, e *Engine, id uuid.UUID) bracket.TournamentStatus {
	t.Helper()
	tournament, err := st.GetTournament(context.Background(), e.Fixtures.db, id)
	require.NoError(t, err)
	return tournament.Status
}

// byLabel returns the matches carrying label, in bracket order.
func byLabel(matches []bracket.Match, label string, secondLeg bool) []bracket.Match {
	var out []bracket.Match
	for _, m := range matches {
		if utils.OrZero(m.RoundLabel) == label && m.IsSecondLeg == secondLeg {
			out = append(out, m)
		}
	}
	return out
}

func finalize(t *testing.T, e *Engine, matchID uuid.UUID, home, away int) *ResultAck {
	t.Helper()
	ack, err := e.Matches.RecordMatchResult(context.Background(), matchID, ResultInput{HomeScore: home, AwayScore: away, Finalize: true})
	require.NoError(t, err)
	return ack
}

// seededBracket creates and generates a seeded single elimination tournament.
func seededBracket(t *testing.T, e *Engine, input TournamentInput, n int) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	input.Format = bracket.SingleElimination
	id, teams := createTournament(t, e, input, n)
	_, err := e.Fixtures.GenerateSingleEliminationFixture(context.Background(), id, true)
	require.NoError(t, err)
	return id, teams
}
