package advance

import (
	"fmt"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
)

// Edit is the corrected result of an already recorded match.
type Edit struct {
	HomeScore       int
	AwayScore       int
	PenaltiesPlayed bool
	PenaltyHome     *int
	PenaltyAway     *int
}

type EntityKind string

const (
	EntityRound EntityKind = "round"
	EntityMatch EntityKind = "match"
)

func (k EntityKind) Valid() bool {
	return k == EntityRound || k == EntityMatch
}

// Impact describes what a destructive change does downstream. Plan holds the
// writes, the remaining fields are the report shown before confirmation.
type Impact struct {
	Plan

	OldWinner     *uuid.UUID
	NewWinner     *uuid.UUID
	WinnerChanged bool

	// Matches reset because they received a team that no longer qualifies
	Affected []uuid.UUID
	// Matches removed outright
	Deleted []uuid.UUID

	// Events recorded on affected and deleted matches
	EventCount int
	Reopens    bool
}

// Revert applies a corrected result to a finished match. When the tie winner
// changes, every match that received the old winner is reset to pending, and so
// on downstream for matches that had already propagated. The new winner is then
// advanced as usual.
func Revert(s Snapshot, matchID uuid.UUID, edit Edit) (Impact, error) {
	a := newArena(s)
	m := a.get(matchID)
	if m == nil {
		return Impact{}, fmt.Errorf("%w: match %s", bracket.ErrNotFound, matchID)
	}
	if !m.HasResult() {
		return Impact{}, fmt.Errorf("%w: match %s has no recorded result", bracket.ErrValidation, matchID)
	}

	t := a.tieOf(m)
	carrier := t.carrier()
	oldWinner, _, err := a.outcome(t)
	if err != nil {
		return Impact{}, err
	}

	m.HomeScore = utils.Ptr(edit.HomeScore)
	m.AwayScore = utils.Ptr(edit.AwayScore)
	m.PenaltiesPlayed = edit.PenaltiesPlayed
	m.PenaltyHome, m.PenaltyAway = nil, nil
	if edit.PenaltiesPlayed {
		m.PenaltyHome = edit.PenaltyHome
		m.PenaltyAway = edit.PenaltyAway
	}

	newWinner, err := a.settle(t)
	if err != nil {
		return Impact{}, err
	}

	var affected []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	changed := !utils.EqualPtr(oldWinner, newWinner)
	if changed && oldWinner != nil && carrier.NextMatchID != nil {
		a.resetDownstream(*carrier.NextMatchID, *oldWinner, nil, seen, &affected)
	}

	reopens := false
	if a.status == bracket.TournamentFinished && a.tournament.Format.IsElimination() &&
		(len(affected) > 0 || newWinner == nil) {
		a.status = bracket.TournamentActive
		reopens = true
	}

	if newWinner != nil {
		if err := a.advance(carrier); err != nil {
			return Impact{}, err
		}
	}
	if reopens && a.status == bracket.TournamentFinished {
		// the edited match is the final and still has a winner
		reopens = false
	}

	return Impact{
		Plan:          a.plan(),
		OldWinner:     oldWinner,
		NewWinner:     newWinner,
		WinnerChanged: changed,
		Affected:      affected,
		EventCount:    countEvents(s.EventCounts, affected),
		Reopens:       reopens,
	}, nil
}

// DeleteImpact computes what removing a round or a single match does. Ties that
// had already sent a winner forward reset that path. Links into deleted matches
// are dropped from the survivors, and an active elimination tournament goes back
// to pending since its bracket is no longer complete.
func DeleteImpact(s Snapshot, kind EntityKind, id uuid.UUID) (Impact, error) {
	a := newArena(s)

	deleted := make(map[uuid.UUID]bool)
	var deletedIDs []uuid.UUID
	switch kind {
	case EntityMatch:
		if a.get(id) == nil {
			return Impact{}, fmt.Errorf("%w: match %s", bracket.ErrNotFound, id)
		}
		deleted[id] = true
		deletedIDs = append(deletedIDs, id)
	case EntityRound:
		for _, mid := range a.order {
			if a.byID[mid].RoundID == id {
				deleted[mid] = true
				deletedIDs = append(deletedIDs, mid)
			}
		}
	default:
		return Impact{}, fmt.Errorf("%w: unknown entity type %q", bracket.ErrValidation, kind)
	}

	var affected []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, mid := range deletedIDs {
		t := a.tieOf(a.get(mid))
		winner, _, err := a.outcome(t)
		if err != nil {
			continue
		}
		if winner == nil {
			winner = byeEntrant(t.leg1)
		}
		if winner == nil {
			continue
		}
		if next := t.carrier().NextMatchID; next != nil {
			a.resetDownstream(*next, *winner, deleted, seen, &affected)
		}
	}

	for _, mid := range a.order {
		m := a.byID[mid]
		if deleted[mid] {
			continue
		}
		if m.NextMatchID != nil && deleted[*m.NextMatchID] {
			m.NextMatchID = nil
			m.NextSlot = nil
		}
		if m.PairedMatchID != nil && deleted[*m.PairedMatchID] {
			m.PairedMatchID = nil
			m.AggregateHome, m.AggregateAway, m.AggregateWinnerID = nil, nil, nil
		}
	}

	if a.status == bracket.TournamentActive && a.tournament.Format.IsElimination() {
		a.status = bracket.TournamentPending
	}

	p := a.plan()
	// deleted rows are removed, not updated
	kept := p.Updates[:0]
	for _, u := range p.Updates {
		if !deleted[u.ID] {
			kept = append(kept, u)
		}
	}
	p.Updates = kept

	return Impact{
		Plan:       p,
		Affected:   affected,
		Deleted:    deletedIDs,
		EventCount: countEvents(s.EventCounts, deletedIDs) + countEvents(s.EventCounts, affected),
	}, nil
}

// resetDownstream removes team from the match it was sent to. That tie loses
// its result, and if it had already produced a winner the walk continues with
// that winner.
func (a *arena) resetDownstream(matchID, team uuid.UUID, skip, seen map[uuid.UUID]bool, affected *[]uuid.UUID) {
	m := a.get(matchID)
	if m == nil || skip[matchID] || !m.Involves(team) {
		return
	}
	t := a.tieOf(m)
	winner, _, err := a.outcome(t)
	if err != nil {
		winner = nil
	}
	carrier := t.carrier()

	for _, leg := range t.legs() {
		for _, slot := range []int{bracket.HomeSlot, bracket.AwaySlot} {
			if occ := leg.SlotTeam(slot); occ != nil && *occ == team {
				leg.SetSlotTeam(slot, nil)
			}
		}
		leg.ClearResult()
		if !seen[leg.ID] {
			seen[leg.ID] = true
			*affected = append(*affected, leg.ID)
		}
	}

	if winner != nil && carrier.NextMatchID != nil {
		a.resetDownstream(*carrier.NextMatchID, *winner, skip, seen, affected)
	}
}

// byeEntrant is the team a bye sent forward at generation.
func byeEntrant(m *bracket.Match) *uuid.UUID {
	if !m.IsBye {
		return nil
	}
	if m.HomeTeamID != nil {
		return m.HomeTeamID
	}
	return m.AwayTeamID
}

func countEvents(counts map[uuid.UUID]int, ids []uuid.UUID) int {
	n := 0
	for _, id := range ids {
		n += counts[id]
	}
	return n
}
