package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDBAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.db")

	database, err := InitDB(path)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, RunMigrations(database.DB, "file://../../migrations"))
	// second run is a no-op
	require.NoError(t, RunMigrations(database.DB, "file://../../migrations"))

	var tables []string
	err = database.Select(&tables, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'schema_%' ORDER BY name")
	require.NoError(t, err)
	assert.Equal(t, []string{"match_events", "matches", "participants", "rounds", "teams", "tournaments"}, tables)

	var fk int
	require.NoError(t, database.Get(&fk, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, fk)
}

func TestRunMigrationsBadSource(t *testing.T) {
	database, err := InitDB(filepath.Join(t.TempDir(), "fixtures.db"))
	require.NoError(t, err)
	defer database.Close()

	assert.Error(t, RunMigrations(database.DB, "file://does-not-exist"))
}
