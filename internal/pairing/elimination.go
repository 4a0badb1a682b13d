package pairing

import (
	"fmt"
	"math"
	"strings"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
)

// BracketMatch is one node of a flat bracket. Rounds are laid out block after
// block, so the winner of Index i in a round goes to NextIndex in the next block.
type BracketMatch struct {
	Index int
	Round int
	Order int

	Label     string
	PhaseType string

	Home *uuid.UUID
	Away *uuid.UUID

	// Bye matches have a single entrant who is already placed in the next match
	IsBye bool

	NextIndex int
	NextSlot  int
}

func (m BracketMatch) IsFinal() bool {
	return m.NextIndex < 0
}

// SingleElimination builds a complete bracket for a power-of-two field. Entrants
// 2i and 2i+1 meet in round 1.
func SingleElimination(entrants []uuid.UUID) ([]BracketMatch, error) {
	if err := validateEntrants(entrants); err != nil {
		return nil, err
	}
	if !IsPowerOfTwo(len(entrants)) {
		return nil, fmt.Errorf("%w: bracket size must be a power of two, got %d", bracket.ErrValidation, len(entrants))
	}

	slots := make([]*uuid.UUID, len(entrants))
	for i := range entrants {
		slots[i] = utils.Ptr(entrants[i])
	}
	return buildBracket(slots), nil
}

// SingleEliminationWithByes pads the field to the next power of two. Entrants are
// taken as seed order and placed so the top seeds receive the byes.
func SingleEliminationWithByes(entrants []uuid.UUID) ([]BracketMatch, error) {
	if err := validateEntrants(entrants); err != nil {
		return nil, err
	}

	size := calcBracketSize(len(entrants))
	positions := seedPositions(size)

	slots := make([]*uuid.UUID, size)
	for i, seed := range positions {
		if seed < len(entrants) {
			slots[i] = utils.Ptr(entrants[seed])
		}
	}

	matches := buildBracket(slots)
	for i := range matches {
		m := &matches[i]
		if m.Round != 1 || (m.Home != nil && m.Away != nil) {
			continue
		}
		m.IsBye = true
		lone := m.Home
		if lone == nil {
			lone = m.Away
		}
		if !m.IsFinal() {
			next := &matches[m.NextIndex]
			if m.NextSlot == bracket.HomeSlot {
				next.Home = lone
			} else {
				next.Away = lone
			}
		}
	}
	return matches, nil
}

// SeedOrder rearranges a seed-sorted field into bracket order so that seed 1 and
// seed 2 can only meet in the final.
func SeedOrder(entrants []uuid.UUID) ([]uuid.UUID, error) {
	if !IsPowerOfTwo(len(entrants)) {
		return nil, fmt.Errorf("%w: bracket size must be a power of two, got %d", bracket.ErrValidation, len(entrants))
	}
	ordered := make([]uuid.UUID, 0, len(entrants))
	for _, seed := range seedPositions(len(entrants)) {
		ordered = append(ordered, entrants[seed])
	}
	return ordered, nil
}

func buildBracket(slots []*uuid.UUID) []BracketMatch {
	totalRounds := int(math.Log2(float64(len(slots))))
	matches := make([]BracketMatch, 0, len(slots)-1)

	blockStart := 0
	inRound := len(slots) / 2
	for r := 1; r <= totalRounds; r++ {
		label := RoundLabel(r, totalRounds)
		for i := 0; i < inRound; i++ {
			m := BracketMatch{
				Index:     blockStart + i,
				Round:     r,
				Order:     i + 1,
				Label:     label,
				PhaseType: PhaseType(label),
				NextIndex: -1,
			}
			if r == 1 {
				m.Home = slots[2*i]
				m.Away = slots[2*i+1]
			}
			if r < totalRounds {
				m.NextIndex = blockStart + inRound + i/2
				if i%2 == 0 {
					m.NextSlot = bracket.HomeSlot
				} else {
					m.NextSlot = bracket.AwaySlot
				}
			}
			matches = append(matches, m)
		}
		blockStart += inRound
		inRound /= 2
	}
	return matches
}

// RoundLabel names round r of a bracket with totalRounds rounds.
func RoundLabel(r, totalRounds int) string {
	switch totalRounds - r {
	case 0:
		return bracket.LabelFinal
	case 1:
		return bracket.LabelSemifinal
	case 2:
		return bracket.LabelQuarterfinal
	}
	return fmt.Sprintf("R%d", r)
}

// PhaseType is the tag tournaments use to select two-legged phases.
func PhaseType(label string) string {
	return strings.ToLower(label)
}

func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Gets the nearest power of 2 while rounding up, so with input 5 it returns 8 and so on
func calcBracketSize(count int) int {
	if count <= 0 {
		return 0
	}

	// Log2 -> Ceil -> 2^^log2 to round up
	log2 := math.Ceil(math.Log2(float64(count)))
	return int(math.Pow(2, log2))
}

// seedPositions lists which seed sits in each bracket slot, e.g. for 8:
// 0 7 3 4 1 6 2 5
func seedPositions(bracketSize int) []int {
	if bracketSize == 0 {
		return []int{}
	}

	rounds := []int{0}
	for len(rounds) < bracketSize {
		var nextRound []int
		currentCount := len(rounds) * 2

		for _, seed := range rounds {
			nextRound = append(nextRound, seed)
			nextRound = append(nextRound, (currentCount-1)-seed)
		}
		rounds = nextRound
	}
	return rounds
}
