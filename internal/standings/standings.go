package standings

import (
	"sort"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
)

type Row struct {
	TeamID   uuid.UUID `json:"team_id"`
	TeamName string    `json:"team_name"`
	Rank     int       `json:"rank"`
	Played   int       `json:"played"`
	Won      int       `json:"won"`
	Drawn    int       `json:"drawn"`
	Lost     int       `json:"lost"`
	Scored   int       `json:"scored"`
	Conceded int       `json:"conceded"`
	Diff     int       `json:"diff"`
	Points   int       `json:"points"`
}

// Compute reduces match results into a ranked table. Finished and in-progress
// matches count; matches with a TBD side, a missing score, or a team outside
// entrants are ignored. When the rule has no draws, a level score counts only
// once a shootout has a winner. No side effects, safe to call concurrently.
func Compute(entrants []bracket.Team, matches []bracket.Match, rule bracket.ScoringRule) []Row {
	index := make(map[uuid.UUID]*Row, len(entrants))
	for _, e := range entrants {
		index[e.ID] = &Row{TeamID: e.ID, TeamName: e.Name}
	}

	for _, m := range matches {
		if m.Status != bracket.MatchFinished && m.Status != bracket.MatchInProgress {
			continue
		}
		if m.HomeTeamID == nil || m.AwayTeamID == nil || !m.HasResult() {
			continue
		}
		home := index[*m.HomeTeamID]
		away := index[*m.AwayTeamID]
		if home == nil || away == nil {
			continue
		}

		hs, as := *m.HomeScore, *m.AwayScore
		homeWins, awayWins := hs > as, hs < as
		if hs == as && !rule.AllowsDraws {
			// settled on penalties or not at all
			ph, pa := utils.OrZero(m.PenaltyHome), utils.OrZero(m.PenaltyAway)
			if !m.PenaltiesPlayed || m.PenaltyHome == nil || m.PenaltyAway == nil || ph == pa {
				continue
			}
			homeWins, awayWins = ph > pa, ph < pa
		}

		home.Played++
		away.Played++
		home.Scored += hs
		home.Conceded += as
		away.Scored += as
		away.Conceded += hs

		switch {
		case homeWins:
			home.Won++
			away.Lost++
			home.Points += rule.PointsForWin
			away.Points += rule.PointsForLoss
		case awayWins:
			away.Won++
			home.Lost++
			away.Points += rule.PointsForWin
			home.Points += rule.PointsForLoss
		default:
			home.Drawn++
			away.Drawn++
			home.Points += rule.PointsForDraw
			away.Points += rule.PointsForDraw
		}
	}

	rows := make([]Row, 0, len(index))
	for _, e := range entrants {
		r, ok := index[e.ID]
		if !ok {
			// entrants may repeat, only report each once
			continue
		}
		r.Diff = r.Scored - r.Conceded
		rows = append(rows, *r)
		delete(index, e.ID)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Points != rows[j].Points {
			return rows[i].Points > rows[j].Points
		}
		if rows[i].Diff != rows[j].Diff {
			return rows[i].Diff > rows[j].Diff
		}
		if rows[i].Scored != rows[j].Scored {
			return rows[i].Scored > rows[j].Scored
		}
		return rows[i].TeamName < rows[j].TeamName
	})

	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
