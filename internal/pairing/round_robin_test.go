package pairing

import (
	"testing"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntrants(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

type pairKey [2]uuid.UUID

func unordered(a, b uuid.UUID) pairKey {
	if a.String() < b.String() {
		return pairKey{a, b}
	}
	return pairKey{b, a}
}

func TestRoundRobinEvenField(t *testing.T) {
	for _, n := range []int{2, 4, 6, 8, 10} {
		entrants := newEntrants(n)
		rounds, err := RoundRobin(entrants, false)
		require.NoError(t, err)
		require.Len(t, rounds, n-1)

		pairs := make(map[pairKey]int)
		for _, r := range rounds {
			seen := make(map[uuid.UUID]int)
			for _, p := range r.Pairings {
				seen[p.Home]++
				seen[p.Away]++
				pairs[unordered(p.Home, p.Away)]++
			}
			assert.Len(t, seen, n, "every entrant plays in round %d", r.Number)
			for id, count := range seen {
				assert.Equal(t, 1, count, "entrant %s plays once in round %d", id, r.Number)
			}
		}

		assert.Len(t, pairs, n*(n-1)/2)
		for k, count := range pairs {
			assert.Equal(t, 1, count, "pair %v meets once", k)
		}
	}
}

func TestRoundRobinOddFieldUsesBye(t *testing.T) {
	for _, n := range []int{3, 5, 7} {
		entrants := newEntrants(n)
		rounds, err := RoundRobin(entrants, false)
		require.NoError(t, err)
		require.Len(t, rounds, n)

		total := 0
		for _, r := range rounds {
			playing := make(map[uuid.UUID]bool)
			for _, p := range r.Pairings {
				assert.NotEqual(t, Bye, p.Home)
				assert.NotEqual(t, Bye, p.Away)
				playing[p.Home] = true
				playing[p.Away] = true
			}
			assert.Len(t, playing, n-1, "exactly one entrant sits out round %d", r.Number)
			total += len(r.Pairings)
		}
		assert.Equal(t, n*(n-1)/2, total)
	}
}

func TestRoundRobinDoubleRoundSwapsHomeAndAway(t *testing.T) {
	entrants := newEntrants(6)
	rounds, err := RoundRobin(entrants, true)
	require.NoError(t, err)
	require.Len(t, rounds, 10)

	ordered := make(map[[2]uuid.UUID]int)
	for _, r := range rounds {
		for _, p := range r.Pairings {
			ordered[[2]uuid.UUID{p.Home, p.Away}]++
		}
	}
	assert.Len(t, ordered, 30)
	for k, count := range ordered {
		assert.Equal(t, 1, count)
		assert.Equal(t, 1, ordered[[2]uuid.UUID{k[1], k[0]}], "reverse fixture exists")
	}

	for i := 0; i < 5; i++ {
		first, second := rounds[i], rounds[i+5]
		assert.Equal(t, i+6, second.Number)
		require.Len(t, second.Pairings, len(first.Pairings))
		for j := range first.Pairings {
			assert.Equal(t, first.Pairings[j].Home, second.Pairings[j].Away)
			assert.Equal(t, first.Pairings[j].Away, second.Pairings[j].Home)
		}
	}
}

func TestRoundRobinFirstRoundPairsOppositeEnds(t *testing.T) {
	entrants := newEntrants(4)
	rounds, err := RoundRobin(entrants, false)
	require.NoError(t, err)

	assert.Equal(t, []Pairing{
		{Home: entrants[0], Away: entrants[3]},
		{Home: entrants[1], Away: entrants[2]},
	}, rounds[0].Pairings)
	// entrant 0 stays put while the others rotate
	assert.Equal(t, []Pairing{
		{Home: entrants[0], Away: entrants[2]},
		{Home: entrants[3], Away: entrants[1]},
	}, rounds[1].Pairings)
}

func TestRoundRobinValidation(t *testing.T) {
	a := uuid.New()

	testCases := []struct {
		name     string
		entrants []uuid.UUID
	}{
		{name: "empty", entrants: nil},
		{name: "single entrant", entrants: []uuid.UUID{a}},
		{name: "duplicate entrant", entrants: []uuid.UUID{a, uuid.New(), a}},
		{name: "nil entrant", entrants: []uuid.UUID{a, uuid.Nil}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RoundRobin(tc.entrants, false)
			assert.ErrorIs(t, err, bracket.ErrValidation)
		})
	}
}
