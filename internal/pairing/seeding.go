package pairing

import (
	"fmt"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/google/uuid"
)

// Qualifier is a team that finished at Position (1-based) in Group.
type Qualifier struct {
	Entrant  uuid.UUID
	Group    string
	Position int
}

// CrossGroupSeeding orders qualifiers for SingleElimination so that teams from the
// same group never meet in the first round.
//
// One qualifier per group: winner of group i plays winner of group n-1-i.
// Two per group: the top half pairs 1st of group i with 2nd of group n-1-i, the
// bottom half mirrors it with the group order reversed.
func CrossGroupSeeding(qualifiers []Qualifier, groups []string, qualifiersPerGroup int) ([]uuid.UUID, error) {
	// Larger values need generalized seeding
	if qualifiersPerGroup != 1 && qualifiersPerGroup != 2 {
		return nil, fmt.Errorf("%w: cross-group seeding supports 1 or 2 qualifiers per group, got %d", bracket.ErrValidation, qualifiersPerGroup)
	}
	n := len(groups)
	if n < 2 || n%2 != 0 {
		return nil, fmt.Errorf("%w: cross-group seeding needs an even number of groups, got %d", bracket.ErrValidation, n)
	}

	byGroup := make(map[string]map[int]uuid.UUID, n)
	for _, g := range groups {
		if _, dup := byGroup[g]; dup {
			return nil, fmt.Errorf("%w: group %q listed twice", bracket.ErrValidation, g)
		}
		byGroup[g] = make(map[int]uuid.UUID, qualifiersPerGroup)
	}

	seen := make(map[uuid.UUID]string, len(qualifiers))
	for _, q := range qualifiers {
		positions, ok := byGroup[q.Group]
		if !ok {
			return nil, fmt.Errorf("%w: qualifier %s belongs to unknown group %q", bracket.ErrValidation, q.Entrant, q.Group)
		}
		if other, dup := seen[q.Entrant]; dup {
			return nil, fmt.Errorf("%w: entrant %s qualified from groups %q and %q", bracket.ErrValidation, q.Entrant, other, q.Group)
		}
		if q.Position < 1 || q.Position > qualifiersPerGroup {
			continue
		}
		if _, taken := positions[q.Position]; taken {
			return nil, fmt.Errorf("%w: group %q has two qualifiers at position %d", bracket.ErrValidation, q.Group, q.Position)
		}
		positions[q.Position] = q.Entrant
		seen[q.Entrant] = q.Group
	}

	at := func(group string, position int) (uuid.UUID, error) {
		id, ok := byGroup[group][position]
		if !ok {
			return uuid.Nil, fmt.Errorf("%w: group %q has no qualifier at position %d", bracket.ErrValidation, group, position)
		}
		return id, nil
	}

	var pairs [][2]string
	var positions [][2]int
	switch qualifiersPerGroup {
	case 1:
		for i := 0; i < n/2; i++ {
			pairs = append(pairs, [2]string{groups[i], groups[n-1-i]})
			positions = append(positions, [2]int{1, 1})
		}
	case 2:
		for i := 0; i < n/2; i++ {
			pairs = append(pairs, [2]string{groups[i], groups[n-1-i]})
			positions = append(positions, [2]int{1, 2})
		}
		for i := 0; i < n/2; i++ {
			pairs = append(pairs, [2]string{groups[n-1-i], groups[i]})
			positions = append(positions, [2]int{1, 2})
		}
	}

	order := make([]uuid.UUID, 0, n*qualifiersPerGroup)
	for i, p := range pairs {
		home, err := at(p[0], positions[i][0])
		if err != nil {
			return nil, err
		}
		away, err := at(p[1], positions[i][1])
		if err != nil {
			return nil, err
		}
		order = append(order, home, away)
	}
	return order, nil
}
