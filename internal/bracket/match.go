package bracket

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchInProgress MatchStatus = "in_progress"
	MatchFinished   MatchStatus = "finished"
)

// Slot identifies a side of a match. Stored in next_slot.
const (
	HomeSlot = 1
	AwaySlot = 2
)

// Bracket round labels
const (
	LabelFinal        = "Final"
	LabelSemifinal    = "Semifinal"
	LabelQuarterfinal = "Quarterfinal"
)

type Round struct {
	ID           uuid.UUID `db:"id"`
	TournamentID uuid.UUID `db:"tournament_id"`
	Number       int       `db:"number"`
	PhaseLabel   *string   `db:"phase_label"`
	PhaseType    *string   `db:"phase_type"`
	MatchCap     *int      `db:"match_cap"`
	CreatedAt    time.Time `db:"created_at"`
}

type Match struct {
	ID           uuid.UUID `db:"id"`
	TournamentID uuid.UUID `db:"tournament_id"`
	RoundID      uuid.UUID `db:"round_id"`
	MatchOrder   int       `db:"match_order"`

	// nil means TBD, waiting for an upstream result
	HomeTeamID *uuid.UUID `db:"home_team_id"`
	AwayTeamID *uuid.UUID `db:"away_team_id"`

	Status    MatchStatus `db:"status"`
	HomeScore *int        `db:"home_score"`
	AwayScore *int        `db:"away_score"`

	// Only set for elimination matches
	RoundLabel  *string    `db:"round_label"`
	NextMatchID *uuid.UUID `db:"next_match_id"`
	NextSlot    *int       `db:"next_slot"`
	IsBye       bool       `db:"is_bye"`

	// Two-legged ties. Aggregates are from this row's home/away perspective.
	IsSecondLeg       bool       `db:"is_second_leg"`
	PairedMatchID     *uuid.UUID `db:"paired_match_id"`
	AggregateHome     *int       `db:"aggregate_home"`
	AggregateAway     *int       `db:"aggregate_away"`
	AggregateWinnerID *uuid.UUID `db:"aggregate_winner_id"`

	PenaltiesPlayed bool `db:"penalties_played"`
	PenaltyHome     *int `db:"penalty_home"`
	PenaltyAway     *int `db:"penalty_away"`

	CreatedAt time.Time `db:"created_at"`
}

func (m *Match) IsTwoLegged() bool {
	return m.PairedMatchID != nil
}

func (m *Match) IsElimination() bool {
	return m.RoundLabel != nil
}

func (m *Match) HasResult() bool {
	return m.HomeScore != nil && m.AwayScore != nil
}

// Involves reports whether the team plays in this match.
func (m *Match) Involves(teamID uuid.UUID) bool {
	return (m.HomeTeamID != nil && *m.HomeTeamID == teamID) ||
		(m.AwayTeamID != nil && *m.AwayTeamID == teamID)
}

// SlotTeam returns the team in the given slot.
func (m *Match) SlotTeam(slot int) *uuid.UUID {
	if slot == HomeSlot {
		return m.HomeTeamID
	}
	return m.AwayTeamID
}

func (m *Match) SetSlotTeam(slot int, teamID *uuid.UUID) {
	if slot == HomeSlot {
		m.HomeTeamID = teamID
	} else {
		m.AwayTeamID = teamID
	}
}

// ClearResult puts the match back to pending without touching its slots or links.
func (m *Match) ClearResult() {
	m.Status = MatchPending
	m.HomeScore = nil
	m.AwayScore = nil
	m.AggregateHome = nil
	m.AggregateAway = nil
	m.AggregateWinnerID = nil
	m.PenaltiesPlayed = false
	m.PenaltyHome = nil
	m.PenaltyAway = nil
}

type EventKind string

const (
	EventGoal       EventKind = "goal"
	EventOwnGoal    EventKind = "own_goal"
	EventYellowCard EventKind = "yellow_card"
	EventRedCard    EventKind = "red_card"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventGoal, EventOwnGoal, EventYellowCard, EventRedCard:
		return true
	}
	return false
}

type MatchEvent struct {
	ID        uuid.UUID `db:"id"`
	MatchID   uuid.UUID `db:"match_id"`
	TeamID    uuid.UUID `db:"team_id"`
	Kind      EventKind `db:"kind"`
	Minute    *int      `db:"minute"`
	Player    *string   `db:"player"`
	CreatedAt time.Time `db:"created_at"`
}

// ProjectScore derives the score of a match from its events. Own goals count for
// the opponent.
func ProjectScore(m *Match, events []MatchEvent) (home, away int) {
	for _, e := range events {
		switch e.Kind {
		case EventGoal:
			if m.HomeTeamID != nil && e.TeamID == *m.HomeTeamID {
				home++
			} else if m.AwayTeamID != nil && e.TeamID == *m.AwayTeamID {
				away++
			}
		case EventOwnGoal:
			if m.HomeTeamID != nil && e.TeamID == *m.HomeTeamID {
				away++
			} else if m.AwayTeamID != nil && e.TeamID == *m.AwayTeamID {
				home++
			}
		}
	}
	return home, away
}
