package pairing

import (
	"fmt"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/google/uuid"
)

// Bye is the synthetic entrant that absorbs the unpaired slot in odd rotations.
var Bye = uuid.Nil

type Pairing struct {
	Home uuid.UUID
	Away uuid.UUID
}

type Round struct {
	Number   int
	Pairings []Pairing
}

// RoundRobin schedules every entrant against every other one using the circle
// method. Output depends only on the input order, shuffle before calling if needed.
func RoundRobin(entrants []uuid.UUID, doubleRound bool) ([]Round, error) {
	if err := validateEntrants(entrants); err != nil {
		return nil, err
	}

	slots := make([]uuid.UUID, len(entrants), len(entrants)+1)
	copy(slots, entrants)
	if len(slots)%2 != 0 {
		slots = append(slots, Bye)
	}

	n := len(slots)
	numRounds := n - 1
	half := n / 2

	rounds := make([]Round, 0, numRounds*2)
	for r := 0; r < numRounds; r++ {
		round := Round{Number: r + 1, Pairings: make([]Pairing, 0, half)}
		for i := 0; i < half; i++ {
			home, away := slots[i], slots[n-1-i]
			// The bye still takes its place in the rotation, it just never plays
			if home == Bye || away == Bye {
				continue
			}
			round.Pairings = append(round.Pairings, Pairing{Home: home, Away: away})
		}
		rounds = append(rounds, round)

		// Keep index 0 fixed, the last slot moves to index 1
		last := slots[n-1]
		copy(slots[2:], slots[1:n-1])
		slots[1] = last
	}

	if doubleRound {
		for r := 0; r < numRounds; r++ {
			mirror := Round{Number: numRounds + r + 1, Pairings: make([]Pairing, 0, len(rounds[r].Pairings))}
			for _, p := range rounds[r].Pairings {
				mirror.Pairings = append(mirror.Pairings, Pairing{Home: p.Away, Away: p.Home})
			}
			rounds = append(rounds, mirror)
		}
	}

	return rounds, nil
}

func validateEntrants(entrants []uuid.UUID) error {
	if len(entrants) < 2 {
		return fmt.Errorf("%w: at least 2 entrants are required, got %d", bracket.ErrValidation, len(entrants))
	}
	seen := make(map[uuid.UUID]struct{}, len(entrants))
	for _, e := range entrants {
		if e == Bye {
			return fmt.Errorf("%w: entrant id must not be empty", bracket.ErrValidation)
		}
		if _, dup := seen[e]; dup {
			return fmt.Errorf("%w: entrant %s appears more than once", bracket.ErrValidation, e)
		}
		seen[e] = struct{}{}
	}
	return nil
}
