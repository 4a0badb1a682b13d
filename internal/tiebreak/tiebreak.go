// Package tiebreak decides who goes through: single matches, two-legged
// aggregates, away goals and penalty shootouts.
package tiebreak

import (
	"fmt"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
)

// Leg is a played leg of a tie from its own home/away perspective.
type Leg struct {
	HomeID    uuid.UUID
	AwayID    uuid.UUID
	HomeScore int
	AwayScore int
}

type Decision string

const (
	DecidedByAggregate Decision = "aggregate"
	DecidedByAwayGoals Decision = "away_goals"
	DecidedByPenalties Decision = "penalties"
	Undecided          Decision = "undecided"
)

// Aggregate is the tie from the first leg's perspective: Home is the team that
// hosted leg 1.
type Aggregate struct {
	HomeID uuid.UUID
	AwayID uuid.UUID
	Home   int
	Away   int

	HomeAwayGoals int
	AwayAwayGoals int

	WinnerID          *uuid.UUID
	RequiresPenalties bool
	DecidedBy         Decision
}

// ComputeAggregate adds up both legs. Leg 2 must be the reversed fixture.
func ComputeAggregate(leg1, leg2 Leg, awayGoalsRule bool) (Aggregate, error) {
	if leg1.HomeID != leg2.AwayID || leg1.AwayID != leg2.HomeID {
		return Aggregate{}, fmt.Errorf("%w: second leg must reverse the first leg's fixture", bracket.ErrValidation)
	}
	if leg1.HomeScore < 0 || leg1.AwayScore < 0 || leg2.HomeScore < 0 || leg2.AwayScore < 0 {
		return Aggregate{}, fmt.Errorf("%w: scores must not be negative", bracket.ErrValidation)
	}

	agg := Aggregate{
		HomeID: leg1.HomeID,
		AwayID: leg1.AwayID,
		Home:   leg1.HomeScore + leg2.AwayScore,
		Away:   leg1.AwayScore + leg2.HomeScore,
		// whoever is the visitor in a leg scores away goals in it
		HomeAwayGoals: leg2.AwayScore,
		AwayAwayGoals: leg1.AwayScore,
	}

	switch {
	case agg.Home > agg.Away:
		agg.WinnerID = utils.Ptr(agg.HomeID)
		agg.DecidedBy = DecidedByAggregate
	case agg.Away > agg.Home:
		agg.WinnerID = utils.Ptr(agg.AwayID)
		agg.DecidedBy = DecidedByAggregate
	case awayGoalsRule && agg.HomeAwayGoals > agg.AwayAwayGoals:
		agg.WinnerID = utils.Ptr(agg.HomeID)
		agg.DecidedBy = DecidedByAwayGoals
	case awayGoalsRule && agg.AwayAwayGoals > agg.HomeAwayGoals:
		agg.WinnerID = utils.Ptr(agg.AwayID)
		agg.DecidedBy = DecidedByAwayGoals
	default:
		agg.RequiresPenalties = true
		agg.DecidedBy = Undecided
	}
	return agg, nil
}

// ResolveWithPenalties settles a level aggregate. Shootout scores are from the
// aggregate's perspective (penaltyHome belongs to the leg-1 host).
func ResolveWithPenalties(agg Aggregate, penaltyHome, penaltyAway int) (uuid.UUID, error) {
	if !agg.RequiresPenalties {
		return uuid.Nil, fmt.Errorf("%w: tie already decided by %s", bracket.ErrValidation, agg.DecidedBy)
	}
	if err := ValidateShootout(penaltyHome, penaltyAway); err != nil {
		return uuid.Nil, err
	}
	if penaltyHome > penaltyAway {
		return agg.HomeID, nil
	}
	return agg.AwayID, nil
}

// ValidateShootout rejects negative or drawn shootouts.
func ValidateShootout(home, away int) error {
	if home < 0 || away < 0 {
		return fmt.Errorf("%w: penalty scores must not be negative", bracket.ErrValidation)
	}
	if home == away {
		return fmt.Errorf("%w: a penalty shootout cannot end level (%d-%d)", bracket.ErrValidation, home, away)
	}
	return nil
}

// MatchWinner decides a single match: score first, then penalties if the score is
// level and a shootout was played. nil means no winner yet.
func MatchWinner(m *bracket.Match) *uuid.UUID {
	if m.HomeTeamID == nil || m.AwayTeamID == nil || !m.HasResult() {
		return nil
	}
	hs, as := *m.HomeScore, *m.AwayScore
	switch {
	case hs > as:
		return m.HomeTeamID
	case as > hs:
		return m.AwayTeamID
	}
	if !m.PenaltiesPlayed || m.PenaltyHome == nil || m.PenaltyAway == nil {
		return nil
	}
	switch {
	case *m.PenaltyHome > *m.PenaltyAway:
		return m.HomeTeamID
	case *m.PenaltyAway > *m.PenaltyHome:
		return m.AwayTeamID
	}
	return nil
}
