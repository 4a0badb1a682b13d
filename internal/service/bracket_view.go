package service

import (
	"sort"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/google/uuid"
)

// BracketView groups a tournament's matches for display: unlabeled league or
// group rounds first, then the knockout rounds.
type BracketView struct {
	GroupRounds    map[int][]bracket.Match `json:"group_rounds"`
	GroupRoundNums []int                   `json:"group_round_nums"`
	KORounds       map[int][]bracket.Match `json:"ko_rounds"`
	KORoundNums    []int                   `json:"ko_round_nums"`
	TeamNames      map[uuid.UUID]string    `json:"team_names"`
}

func PrepareBracketView(participants []bracket.Participant, rounds []bracket.Round, matches []bracket.Match) BracketView {
	names := make(map[uuid.UUID]string, len(participants))
	for _, p := range participants {
		names[p.TeamID] = p.TeamName
	}
	numbers := make(map[uuid.UUID]int, len(rounds))
	for _, r := range rounds {
		numbers[r.ID] = r.Number
	}

	groupRounds := make(map[int][]bracket.Match)
	koRounds := make(map[int][]bracket.Match)
	var groupRoundNums []int
	var koRoundNums []int

	for _, m := range matches {
		n := numbers[m.RoundID]
		if m.IsElimination() {
			if _, exists := koRounds[n]; !exists {
				koRoundNums = append(koRoundNums, n)
			}
			koRounds[n] = append(koRounds[n], m)
		} else {
			if _, exists := groupRounds[n]; !exists {
				groupRoundNums = append(groupRoundNums, n)
			}
			groupRounds[n] = append(groupRounds[n], m)
		}
	}

	sort.Ints(groupRoundNums)
	sort.Ints(koRoundNums)
	sortRounds(groupRounds, groupRoundNums)
	sortRounds(koRounds, koRoundNums)

	return BracketView{
		GroupRounds:    groupRounds,
		GroupRoundNums: groupRoundNums,
		KORounds:       koRounds,
		KORoundNums:    koRoundNums,
		TeamNames:      names,
	}
}

func sortRounds(rounds map[int][]bracket.Match, roundNums []int) {
	for _, r := range roundNums {
		sort.Slice(rounds[r], func(i, j int) bool {
			return rounds[r][i].MatchOrder < rounds[r][j].MatchOrder
		})
	}
}
