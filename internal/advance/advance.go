// Package advance decides what a finished match does to the rest of the
// tournament. It works on an in-memory snapshot of every match and returns the
// rows to write, so storage stays in the caller.
package advance

import (
	"fmt"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/tiebreak"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
)

// Snapshot is the state of one tournament at the time of the call.
type Snapshot struct {
	Tournament bracket.Tournament
	Matches    []bracket.Match

	// Number of recorded events per match. Only used for impact reports.
	EventCounts map[uuid.UUID]int
}

// Plan is the set of writes a decision produced. An empty plan means nothing to do.
type Plan struct {
	WinnerID *uuid.UUID

	// Full rows of every match whose state changed, in snapshot order
	Updates []bracket.Match

	TournamentStatus *bracket.TournamentStatus

	// Both slots of the next match are held by teams outside this tie
	Ambiguous bool
	// A labeled match with siblings in its round but no next match linked
	Unlinked bool
}

func (p Plan) Empty() bool {
	return len(p.Updates) == 0 && p.TournamentStatus == nil
}

// Decide runs the advancement state machine for one match.
//
// A second leg (or a first leg whose second leg is already finished) settles the
// aggregate on both legs before advancing. A drawn match without a shootout is
// waiting for input and yields an empty plan.
func Decide(s Snapshot, matchID uuid.UUID) (Plan, error) {
	a := newArena(s)
	m := a.get(matchID)
	if m == nil {
		return Plan{}, fmt.Errorf("%w: match %s", bracket.ErrNotFound, matchID)
	}
	if err := a.advance(m); err != nil {
		return Plan{}, err
	}
	return a.plan(), nil
}

// arena holds working copies of every match, indexed by ID.
type arena struct {
	tournament bracket.Tournament
	order      []uuid.UUID
	orig       map[uuid.UUID]bracket.Match
	byID       map[uuid.UUID]*bracket.Match
	roundSize  map[uuid.UUID]int
	status     bracket.TournamentStatus

	winner    *uuid.UUID
	ambiguous bool
	unlinked  bool
}

func newArena(s Snapshot) *arena {
	a := &arena{
		tournament: s.Tournament,
		order:      make([]uuid.UUID, 0, len(s.Matches)),
		orig:       make(map[uuid.UUID]bracket.Match, len(s.Matches)),
		byID:       make(map[uuid.UUID]*bracket.Match, len(s.Matches)),
		roundSize:  make(map[uuid.UUID]int),
		status:     s.Tournament.Status,
	}
	for _, m := range s.Matches {
		if _, dup := a.byID[m.ID]; dup {
			continue
		}
		work := m
		a.order = append(a.order, m.ID)
		a.orig[m.ID] = m
		a.byID[m.ID] = &work
		a.roundSize[m.RoundID]++
	}
	return a
}

func (a *arena) get(id uuid.UUID) *bracket.Match {
	return a.byID[id]
}

func (a *arena) plan() Plan {
	p := Plan{
		WinnerID:  a.winner,
		Ambiguous: a.ambiguous,
		Unlinked:  a.unlinked,
	}
	for _, id := range a.order {
		if !sameState(a.orig[id], *a.byID[id]) {
			p.Updates = append(p.Updates, *a.byID[id])
		}
	}
	if a.status != a.tournament.Status {
		p.TournamentStatus = utils.Ptr(a.status)
	}
	return p
}

func (a *arena) advance(m *bracket.Match) error {
	t := a.tieOf(m)
	carrier := t.carrier()
	if carrier.Status != bracket.MatchFinished {
		// first leg of a tie whose second leg is not played yet
		return nil
	}

	winner, err := a.settle(t)
	if err != nil {
		return err
	}

	if carrier.NextMatchID == nil && !carrier.IsElimination() {
		a.checkLeagueComplete()
		return nil
	}
	if winner == nil {
		return nil
	}
	a.winner = winner

	if carrier.NextMatchID != nil {
		return a.propagate(carrier, *winner)
	}
	if a.roundSize[carrier.RoundID] == 1 {
		a.setStatus(bracket.TournamentFinished)
		return nil
	}
	a.unlinked = true
	return nil
}

// A league is over once every match is finished. Group matches never drive
// anything here, the playoff is generated explicitly.
func (a *arena) checkLeagueComplete() {
	if a.tournament.Format != bracket.League {
		return
	}
	for _, id := range a.order {
		if a.byID[id].Status != bracket.MatchFinished {
			return
		}
	}
	a.setStatus(bracket.TournamentFinished)
}

// Only active tournaments finish, cancelled ones are left alone.
func (a *arena) setStatus(st bracket.TournamentStatus) {
	if st == bracket.TournamentFinished && a.status != bracket.TournamentActive {
		return
	}
	a.status = st
}

func (a *arena) propagate(carrier *bracket.Match, winner uuid.UUID) error {
	next := a.get(*carrier.NextMatchID)
	if next == nil {
		return fmt.Errorf("%w: next match %s of match %s", bracket.ErrNotFound, *carrier.NextMatchID, carrier.ID)
	}
	slot := chooseSlot(next, carrier)
	if slot == 0 {
		a.ambiguous = true
		return nil
	}
	a.place(next, slot, winner)
	return nil
}

// chooseSlot reuses a slot already held by either side of the tie, then tries the
// preferred slot, then the other one. 0 means both slots belong to someone else.
func chooseSlot(next, carrier *bracket.Match) int {
	for _, slot := range []int{bracket.HomeSlot, bracket.AwaySlot} {
		if occ := next.SlotTeam(slot); occ != nil && carrier.Involves(*occ) {
			return slot
		}
	}
	preferred := utils.OrZero(carrier.NextSlot)
	if preferred != bracket.AwaySlot {
		preferred = bracket.HomeSlot
	}
	if next.SlotTeam(preferred) == nil {
		return preferred
	}
	if other := opposite(preferred); next.SlotTeam(other) == nil {
		return other
	}
	return 0
}

// place puts team into slot and mirrors it into the second leg. A match whose
// occupant changes loses any result it had, together with its pair.
func (a *arena) place(next *bracket.Match, slot int, team uuid.UUID) {
	if utils.EqualPtr(next.SlotTeam(slot), &team) {
		return
	}
	next.SetSlotTeam(slot, utils.Ptr(team))
	pair := a.pairOf(next)
	if pair != nil {
		pair.SetSlotTeam(opposite(slot), utils.Ptr(team))
	}
	if isStarted(next) || (pair != nil && isStarted(pair)) {
		next.ClearResult()
		if pair != nil {
			pair.ClearResult()
		}
	}
}

func isStarted(m *bracket.Match) bool {
	return m.Status != bracket.MatchPending || m.HomeScore != nil || m.AwayScore != nil
}

func opposite(slot int) int {
	if slot == bracket.HomeSlot {
		return bracket.AwaySlot
	}
	return bracket.HomeSlot
}

func (a *arena) pairOf(m *bracket.Match) *bracket.Match {
	if m.PairedMatchID == nil {
		return nil
	}
	return a.get(*m.PairedMatchID)
}

// tie is a single match or both legs of a two-legged tie.
type tie struct {
	leg1 *bracket.Match
	leg2 *bracket.Match
}

func (a *arena) tieOf(m *bracket.Match) tie {
	pair := a.pairOf(m)
	if pair == nil {
		return tie{leg1: m}
	}
	if m.IsSecondLeg {
		return tie{leg1: pair, leg2: m}
	}
	return tie{leg1: m, leg2: pair}
}

// carrier is the leg that holds the link to the next round.
func (t tie) carrier() *bracket.Match {
	if t.leg2 != nil {
		return t.leg2
	}
	return t.leg1
}

func (t tie) legs() []*bracket.Match {
	if t.leg2 != nil {
		return []*bracket.Match{t.leg1, t.leg2}
	}
	return []*bracket.Match{t.leg1}
}

func played(m *bracket.Match) bool {
	return m.Status == bracket.MatchFinished && m.HasResult() && m.HomeTeamID != nil && m.AwayTeamID != nil
}

// outcome reads the tie winner without writing anything.
func (a *arena) outcome(t tie) (*uuid.UUID, *tiebreak.Aggregate, error) {
	if t.leg2 == nil {
		if !played(t.leg1) {
			return nil, nil, nil
		}
		return tiebreak.MatchWinner(t.leg1), nil, nil
	}
	if !played(t.leg1) || !played(t.leg2) {
		return nil, nil, nil
	}

	agg, err := tiebreak.ComputeAggregate(legOf(t.leg1), legOf(t.leg2), a.tournament.AwayGoals)
	if err != nil {
		return nil, nil, fmt.Errorf("tie %s/%s: %w", t.leg1.ID, t.leg2.ID, err)
	}
	if agg.WinnerID != nil {
		return agg.WinnerID, &agg, nil
	}

	l2 := t.leg2
	if !l2.PenaltiesPlayed || l2.PenaltyHome == nil || l2.PenaltyAway == nil {
		return nil, &agg, nil
	}
	// leg 2 is hosted by the aggregate's away side
	winner, err := tiebreak.ResolveWithPenalties(agg, *l2.PenaltyAway, *l2.PenaltyHome)
	if err != nil {
		return nil, nil, fmt.Errorf("tie %s/%s: %w", t.leg1.ID, t.leg2.ID, err)
	}
	return &winner, &agg, nil
}

// settle computes the tie outcome and stores the aggregate on both legs.
func (a *arena) settle(t tie) (*uuid.UUID, error) {
	winner, agg, err := a.outcome(t)
	if err != nil {
		return nil, err
	}
	if t.leg2 == nil {
		return winner, nil
	}

	if agg == nil {
		for _, leg := range t.legs() {
			leg.AggregateHome, leg.AggregateAway, leg.AggregateWinnerID = nil, nil, nil
		}
		return nil, nil
	}

	t.leg1.AggregateHome = utils.Ptr(agg.Home)
	t.leg1.AggregateAway = utils.Ptr(agg.Away)
	t.leg2.AggregateHome = utils.Ptr(agg.Away)
	t.leg2.AggregateAway = utils.Ptr(agg.Home)
	for _, leg := range t.legs() {
		if winner != nil {
			leg.AggregateWinnerID = utils.Ptr(*winner)
		} else {
			leg.AggregateWinnerID = nil
		}
	}
	return winner, nil
}

func legOf(m *bracket.Match) tiebreak.Leg {
	return tiebreak.Leg{
		HomeID:    *m.HomeTeamID,
		AwayID:    *m.AwayTeamID,
		HomeScore: *m.HomeScore,
		AwayScore: *m.AwayScore,
	}
}

// sameState compares every column advancement may write.
func sameState(x, y bracket.Match) bool {
	return utils.EqualPtr(x.HomeTeamID, y.HomeTeamID) &&
		utils.EqualPtr(x.AwayTeamID, y.AwayTeamID) &&
		x.Status == y.Status &&
		utils.EqualPtr(x.HomeScore, y.HomeScore) &&
		utils.EqualPtr(x.AwayScore, y.AwayScore) &&
		utils.EqualPtr(x.NextMatchID, y.NextMatchID) &&
		utils.EqualPtr(x.NextSlot, y.NextSlot) &&
		utils.EqualPtr(x.PairedMatchID, y.PairedMatchID) &&
		utils.EqualPtr(x.AggregateHome, y.AggregateHome) &&
		utils.EqualPtr(x.AggregateAway, y.AggregateAway) &&
		utils.EqualPtr(x.AggregateWinnerID, y.AggregateWinnerID) &&
		x.PenaltiesPlayed == y.PenaltiesPlayed &&
		utils.EqualPtr(x.PenaltyHome, y.PenaltyHome) &&
		utils.EqualPtr(x.PenaltyAway, y.PenaltyAway)
}
