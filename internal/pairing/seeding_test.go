package pairing

import (
	"testing"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupQualifiers(groups []string, perGroup int) ([]Qualifier, map[uuid.UUID]string) {
	var qualifiers []Qualifier
	groupOf := make(map[uuid.UUID]string)
	for _, g := range groups {
		for pos := 1; pos <= perGroup; pos++ {
			id := uuid.New()
			qualifiers = append(qualifiers, Qualifier{Entrant: id, Group: g, Position: pos})
			groupOf[id] = g
		}
	}
	return qualifiers, groupOf
}

func TestCrossGroupSeedingTwoPerGroup(t *testing.T) {
	groups := []string{"A", "B", "C", "D"}
	qualifiers, groupOf := groupQualifiers(groups, 2)

	order, err := CrossGroupSeeding(qualifiers, groups, 2)
	require.NoError(t, err)
	require.Len(t, order, 8)

	seen := make(map[uuid.UUID]bool)
	for _, id := range order {
		assert.False(t, seen[id], "qualifier placed once")
		seen[id] = true
	}

	matches, err := SingleElimination(order)
	require.NoError(t, err)
	for _, m := range matches {
		if m.Round != 1 {
			continue
		}
		assert.NotEqual(t, groupOf[*m.Home], groupOf[*m.Away], "same group met in round 1")
	}

	// 1A v 2D opens the top half, 1D v 2A opens the bottom half
	pos := func(g string, p int) uuid.UUID {
		for _, q := range qualifiers {
			if q.Group == g && q.Position == p {
				return q.Entrant
			}
		}
		return uuid.Nil
	}
	assert.Equal(t, pos("A", 1), order[0])
	assert.Equal(t, pos("D", 2), order[1])
	assert.Equal(t, pos("D", 1), order[4])
	assert.Equal(t, pos("A", 2), order[5])
}

func TestCrossGroupSeedingOnePerGroup(t *testing.T) {
	groups := []string{"A", "B", "C", "D"}
	qualifiers, groupOf := groupQualifiers(groups, 1)

	order, err := CrossGroupSeeding(qualifiers, groups, 1)
	require.NoError(t, err)
	require.Len(t, order, 4)

	assert.Equal(t, "A", groupOf[order[0]])
	assert.Equal(t, "D", groupOf[order[1]])
	assert.Equal(t, "B", groupOf[order[2]])
	assert.Equal(t, "C", groupOf[order[3]])
}

func TestCrossGroupSeedingErrors(t *testing.T) {
	groups := []string{"A", "B"}
	qualifiers, _ := groupQualifiers(groups, 2)

	_, err := CrossGroupSeeding(qualifiers, groups, 3)
	assert.ErrorIs(t, err, bracket.ErrValidation)

	_, err = CrossGroupSeeding(qualifiers[:3], groups, 2)
	assert.ErrorIs(t, err, bracket.ErrValidation, "missing 2nd of group B")

	dup := append([]Qualifier{}, qualifiers...)
	dup[3].Entrant = dup[0].Entrant
	_, err = CrossGroupSeeding(dup, groups, 2)
	assert.ErrorIs(t, err, bracket.ErrValidation, "same entrant in two groups")

	_, err = CrossGroupSeeding(qualifiers, []string{"A", "B", "C"}, 2)
	assert.ErrorIs(t, err, bracket.ErrValidation)
}
