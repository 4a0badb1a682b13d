package bracket

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentPending   TournamentStatus = "pending"
	TournamentActive    TournamentStatus = "active"
	TournamentFinished  TournamentStatus = "finished"
	TournamentCancelled TournamentStatus = "cancelled"
)

type TournamentFormat string

const (
	League            TournamentFormat = "league"
	SingleElimination TournamentFormat = "single_elimination"
	GroupsThenPlayoff TournamentFormat = "groups_then_playoff"
)

// IsElimination reports whether the format ends in a knockout bracket.
func (f TournamentFormat) IsElimination() bool {
	return f == SingleElimination || f == GroupsThenPlayoff
}

func (f TournamentFormat) Valid() bool {
	switch f {
	case League, SingleElimination, GroupsThenPlayoff:
		return true
	}
	return false
}

type Tournament struct {
	ID     uuid.UUID        `db:"id"`
	Name   string           `db:"name" json:"name"`
	Format TournamentFormat `db:"format"`
	Status TournamentStatus `db:"status"`

	// Format specific configuration
	DoubleRound        bool   `db:"double_round"`
	NumGroups          int    `db:"num_groups"`
	QualifiersPerGroup int    `db:"qualifiers_per_group"`
	TwoLeggedPhases    string `db:"two_legged_phases"`
	AwayGoals          bool   `db:"away_goals"`
	PenaltiesOnTie     bool   `db:"penalties_on_tie"`
	AllowByes          bool   `db:"allow_byes"`

	// Scoring rule of the sport being played
	PointsWin   int  `db:"points_win"`
	PointsDraw  int  `db:"points_draw"`
	PointsLoss  int  `db:"points_loss"`
	AllowsDraws bool `db:"allows_draws"`

	CreatedAt time.Time `db:"created_at"`
}

func (t *Tournament) Scoring() ScoringRule {
	return ScoringRule{
		PointsForWin:  t.PointsWin,
		PointsForDraw: t.PointsDraw,
		PointsForLoss: t.PointsLoss,
		AllowsDraws:   t.AllowsDraws,
	}
}

func (t *Tournament) SetScoring(rule ScoringRule) {
	t.PointsWin = rule.PointsForWin
	t.PointsDraw = rule.PointsForDraw
	t.PointsLoss = rule.PointsForLoss
	t.AllowsDraws = rule.AllowsDraws
}

// IsTwoLegged reports whether the given phase type is played home and away.
func (t *Tournament) IsTwoLegged(phaseType string) bool {
	if phaseType == "" {
		return false
	}
	for _, p := range strings.Split(t.TwoLeggedPhases, ",") {
		if strings.EqualFold(strings.TrimSpace(p), phaseType) {
			return true
		}
	}
	return false
}

// ScoringRule is supplied per sport, e.g. football 3/1/0 with draws.
type ScoringRule struct {
	PointsForWin  int
	PointsForDraw int
	PointsForLoss int
	AllowsDraws   bool
}

var (
	FootballScoring    = ScoringRule{PointsForWin: 3, PointsForDraw: 1, PointsForLoss: 0, AllowsDraws: true}
	EliminationScoring = ScoringRule{PointsForWin: 2, PointsForDraw: 0, PointsForLoss: 0, AllowsDraws: false}
)
