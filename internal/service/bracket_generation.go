package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/pairing"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// bracketRows is a flat bracket turned into storage rows.
type bracketRows struct {
	rounds  []bracket.Round
	matches []bracket.Match
}

// buildBracketRows lays out bms as rounds numbered from firstRound. Phases the
// tournament plays over two legs get a second round with every fixture
// reversed; only the second leg links to the next tie.
func buildBracketRows(t *bracket.Tournament, bms []pairing.BracketMatch, firstRound int) bracketRows {
	var rows bracketRows
	if len(bms) == 0 {
		return rows
	}

	totalRounds := bms[len(bms)-1].Round
	perRound := make(map[int]int, totalRounds)
	for _, bm := range bms {
		perRound[bm.Round]++
	}

	leg1Round := make(map[int]uuid.UUID, totalRounds)
	leg2Round := make(map[int]uuid.UUID)
	number := firstRound
	for r := 1; r <= totalRounds; r++ {
		label := pairing.RoundLabel(r, totalRounds)
		phase := pairing.PhaseType(label)
		twoLegged := t.IsTwoLegged(phase)

		first := bracket.Round{
			ID:           uuid.New(),
			TournamentID: t.ID,
			Number:       number,
			PhaseLabel:   utils.Ptr(label),
			PhaseType:    utils.Ptr(phase),
			MatchCap:     utils.Ptr(perRound[r]),
		}
		if twoLegged {
			first.PhaseLabel = utils.Ptr(label + " (leg 1)")
		}
		rows.rounds = append(rows.rounds, first)
		leg1Round[r] = first.ID
		number++

		if twoLegged {
			second := bracket.Round{
				ID:           uuid.New(),
				TournamentID: t.ID,
				Number:       number,
				PhaseLabel:   utils.Ptr(label + " (leg 2)"),
				PhaseType:    utils.Ptr(phase),
				MatchCap:     utils.Ptr(perRound[r]),
			}
			rows.rounds = append(rows.rounds, second)
			leg2Round[r] = second.ID
			number++
		}
	}

	// index of each bracket node's first leg (or single match) and second leg
	leg1 := make([]int, len(bms))
	leg2 := make([]int, len(bms))
	for i, bm := range bms {
		m := bracket.Match{
			ID:           uuid.New(),
			TournamentID: t.ID,
			RoundID:      leg1Round[bm.Round],
			MatchOrder:   bm.Order,
			HomeTeamID:   bm.Home,
			AwayTeamID:   bm.Away,
			Status:       bracket.MatchPending,
			RoundLabel:   utils.Ptr(bm.Label),
			IsBye:        bm.IsBye,
		}
		if bm.IsBye {
			m.Status = bracket.MatchFinished
		}
		leg1[i] = len(rows.matches)
		leg2[i] = -1
		rows.matches = append(rows.matches, m)

		roundID, twoLegged := leg2Round[bm.Round]
		if !twoLegged || bm.IsBye {
			continue
		}
		ret := bracket.Match{
			ID:           uuid.New(),
			TournamentID: t.ID,
			RoundID:      roundID,
			MatchOrder:   bm.Order,
			HomeTeamID:   bm.Away,
			AwayTeamID:   bm.Home,
			Status:       bracket.MatchPending,
			RoundLabel:   utils.Ptr(bm.Label),
			IsSecondLeg:  true,
		}
		leg2[i] = len(rows.matches)
		rows.matches = append(rows.matches, ret)

		first := &rows.matches[leg1[i]]
		first.PairedMatchID = utils.Ptr(ret.ID)
		rows.matches[leg2[i]].PairedMatchID = utils.Ptr(first.ID)
	}

	for i, bm := range bms {
		if bm.IsFinal() {
			continue
		}
		carrier := &rows.matches[leg1[i]]
		if leg2[i] >= 0 {
			carrier = &rows.matches[leg2[i]]
		}
		carrier.NextMatchID = utils.Ptr(rows.matches[leg1[bm.NextIndex]].ID)
		carrier.NextSlot = utils.Ptr(bm.NextSlot)
	}
	return rows
}

// persistBracket inserts every row first and links them in a second pass, so
// no foreign key points at a row that does not exist yet.
func (d *deps) persistBracket(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, bms []pairing.BracketMatch, firstRound int) (GenerationResult, error) {
	rows := buildBracketRows(t, bms, firstRound)

	if err := d.store.CreateRounds(ctx, tx, rows.rounds); err != nil {
		return GenerationResult{}, fmt.Errorf("failed to create rounds: %w", err)
	}

	bare := make([]bracket.Match, len(rows.matches))
	var linked []bracket.Match
	for i, m := range rows.matches {
		if m.NextMatchID != nil || m.PairedMatchID != nil {
			linked = append(linked, m)
		}
		m.NextMatchID, m.NextSlot, m.PairedMatchID = nil, nil, nil
		bare[i] = m
	}
	if err := d.store.CreateMatches(ctx, tx, bare); err != nil {
		return GenerationResult{}, fmt.Errorf("failed to create matches: %w", err)
	}
	if err := d.store.LinkMatches(ctx, tx, linked); err != nil {
		return GenerationResult{}, fmt.Errorf("failed to link matches: %w", err)
	}

	return GenerationResult{RoundsCreated: len(rows.rounds), MatchesCreated: len(rows.matches)}, nil
}
