package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/pairing"
	"github.com/AdamBeresnev/fixture-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// FixtureService generates schedules. Every mode requires a pending tournament
// without rounds and writes everything in one transaction.
type FixtureService struct {
	*deps
}

type GenerationResult struct {
	RoundsCreated  int `json:"rounds_created"`
	MatchesCreated int `json:"matches_created"`
}

type GroupsOptions struct {
	NumGroups          int
	QualifiersPerGroup int
	DoubleRound        bool
	// Optional explicit assignment, group name to teams. When empty, teams are
	// shuffled and dealt into groups A, B, C...
	Assignments map[string][]uuid.UUID
}

func (s *FixtureService) generate(ctx context.Context, tournamentID uuid.UUID, mode string, fn func(tx *sqlx.Tx) (GenerationResult, error)) (GenerationResult, error) {
	unlock := s.lock(tournamentID)
	defer unlock()

	start := time.Now()
	var res GenerationResult
	err := s.inAtomicTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		res, err = fn(tx)
		return err
	})
	s.metrics.ObserveGeneration(mode, err, time.Since(start))
	if err != nil {
		s.logger.Error("fixture generation failed", "tournament_id", tournamentID, "mode", mode, "error", err)
		return GenerationResult{}, err
	}

	s.logger.Info("fixture generated", "tournament_id", tournamentID, "mode", mode,
		"rounds", res.RoundsCreated, "matches", res.MatchesCreated)
	return res, nil
}

// entrants loads the approved teams, at least two of them.
func (s *FixtureService) entrants(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) ([]bracket.Participant, error) {
	participants, err := s.store.ApprovedParticipants(ctx, tx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	if len(participants) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 approved teams, have %d", bracket.ErrValidation, len(participants))
	}
	return participants, nil
}

func teamIDs(participants []bracket.Participant) []uuid.UUID {
	ids := make([]uuid.UUID, len(participants))
	for i, p := range participants {
		ids[i] = p.TeamID
	}
	return ids
}

func (s *FixtureService) loadForGeneration(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, format bracket.TournamentFormat) (*bracket.Tournament, error) {
	t, err := s.store.GetTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Format != format {
		return nil, fmt.Errorf("%w: tournament %s is %s, not %s", bracket.ErrValidation, t.ID, t.Format, format)
	}
	if err := s.checkUngenerated(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// roundRobinRows turns round robin rounds into rows. Rounds are numbered from
// firstRound and named Matchday N.
func roundRobinRows(t *bracket.Tournament, rounds []pairing.Round, firstRound int) ([]bracket.Round, []bracket.Match) {
	dbRounds := make([]bracket.Round, 0, len(rounds))
	var matches []bracket.Match
	for _, r := range rounds {
		round := bracket.Round{
			ID:           uuid.New(),
			TournamentID: t.ID,
			Number:       firstRound + r.Number - 1,
			PhaseLabel:   utils.Ptr(fmt.Sprintf("Matchday %d", r.Number)),
			MatchCap:     utils.Ptr(len(r.Pairings)),
		}
		dbRounds = append(dbRounds, round)
		for i, p := range r.Pairings {
			matches = append(matches, bracket.Match{
				ID:           uuid.New(),
				TournamentID: t.ID,
				RoundID:      round.ID,
				MatchOrder:   i + 1,
				HomeTeamID:   utils.Ptr(p.Home),
				AwayTeamID:   utils.Ptr(p.Away),
				Status:       bracket.MatchPending,
			})
		}
	}
	return dbRounds, matches
}

func (s *FixtureService) GenerateLeagueFixture(ctx context.Context, tournamentID uuid.UUID, doubleRound bool) (GenerationResult, error) {
	return s.generate(ctx, tournamentID, "league", func(tx *sqlx.Tx) (GenerationResult, error) {
		t, err := s.loadForGeneration(ctx, tx, tournamentID, bracket.League)
		if err != nil {
			return GenerationResult{}, err
		}
		participants, err := s.entrants(ctx, tx, tournamentID)
		if err != nil {
			return GenerationResult{}, err
		}

		ids := teamIDs(participants)
		s.shuffle(ids)
		schedule, err := pairing.RoundRobin(ids, doubleRound)
		if err != nil {
			return GenerationResult{}, err
		}

		rounds, matches := roundRobinRows(t, schedule, 1)
		if err := s.store.CreateRounds(ctx, tx, rounds); err != nil {
			return GenerationResult{}, fmt.Errorf("failed to create rounds: %w", err)
		}
		if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
			return GenerationResult{}, fmt.Errorf("failed to create matches: %w", err)
		}
		if err := s.store.UpdateGroupsConfig(ctx, tx, t.ID, 0, 0, doubleRound); err != nil {
			return GenerationResult{}, fmt.Errorf("failed to store league config: %w", err)
		}
		if err := s.store.UpdateTournamentStatus(ctx, tx, t.ID, bracket.TournamentActive); err != nil {
			return GenerationResult{}, fmt.Errorf("failed to activate tournament: %w", err)
		}
		return GenerationResult{RoundsCreated: len(rounds), MatchesCreated: len(matches)}, nil
	})
}

// GenerateSingleEliminationFixture builds and links the full bracket. The field
// must be a power of two unless the tournament allows byes. With useSeeding the
// seed order decides placement, otherwise the field is shuffled.
func (s *FixtureService) GenerateSingleEliminationFixture(ctx context.Context, tournamentID uuid.UUID, useSeeding bool) (GenerationResult, error) {
	return s.generate(ctx, tournamentID, "single_elimination", func(tx *sqlx.Tx) (GenerationResult, error) {
		t, err := s.loadForGeneration(ctx, tx, tournamentID, bracket.SingleElimination)
		if err != nil {
			return GenerationResult{}, err
		}
		participants, err := s.entrants(ctx, tx, tournamentID)
		if err != nil {
			return GenerationResult{}, err
		}

		ids := teamIDs(participants)
		if !useSeeding {
			s.shuffle(ids)
		}

		var bms []pairing.BracketMatch
		switch {
		case pairing.IsPowerOfTwo(len(ids)):
			if useSeeding {
				if ids, err = pairing.SeedOrder(ids); err != nil {
					return GenerationResult{}, err
				}
			}
			bms, err = pairing.SingleElimination(ids)
		case t.AllowByes:
			bms, err = pairing.SingleEliminationWithByes(ids)
		default:
			err = fmt.Errorf("%w: %d teams is not a power of two and byes are not allowed", bracket.ErrValidation, len(ids))
		}
		if err != nil {
			return GenerationResult{}, err
		}

		res, err := s.persistBracket(ctx, tx, t, bms, 1)
		if err != nil {
			return GenerationResult{}, err
		}
		if err := s.store.UpdateTournamentStatus(ctx, tx, t.ID, bracket.TournamentActive); err != nil {
			return GenerationResult{}, fmt.Errorf("failed to activate tournament: %w", err)
		}
		return res, nil
	})
}

// GenerateGroupsPhase splits the field into groups and schedules a round robin
// in each. Round k of every group shares one round, Matchday k.
func (s *FixtureService) GenerateGroupsPhase(ctx context.Context, tournamentID uuid.UUID, opts GroupsOptions) (GenerationResult, error) {
	res, err := s.generate(ctx, tournamentID, "groups", func(tx *sqlx.Tx) (GenerationResult, error) {
		t, err := s.loadForGeneration(ctx, tx, tournamentID, bracket.GroupsThenPlayoff)
		if err != nil {
			return GenerationResult{}, err
		}
		participants, err := s.entrants(ctx, tx, tournamentID)
		if err != nil {
			return GenerationResult{}, err
		}
		if err := validateGroupsOptions(opts, len(participants)); err != nil {
			return GenerationResult{}, err
		}

		groups, err := s.assignGroups(participants, opts)
		if err != nil {
			return GenerationResult{}, err
		}
		names := sortedKeys(groups)
		for _, name := range names {
			if n := len(groups[name]); n < 2 || n < opts.QualifiersPerGroup {
				return GenerationResult{}, fmt.Errorf("%w: group %s has %d teams, needs at least 2 and at least %d",
					bracket.ErrValidation, name, n, opts.QualifiersPerGroup)
			}
			for _, id := range groups[name] {
				if err := s.store.SetParticipantGroup(ctx, tx, t.ID, id, utils.Ptr(name)); err != nil {
					return GenerationResult{}, fmt.Errorf("failed to assign group: %w", err)
				}
			}
		}

		schedule, err := interleaveGroups(groups, names, opts.DoubleRound)
		if err != nil {
			return GenerationResult{}, err
		}
		rounds, matches := roundRobinRows(t, schedule, 1)
		if err := s.store.CreateRounds(ctx, tx, rounds); err != nil {
			return GenerationResult{}, fmt.Errorf("failed to create rounds: %w", err)
		}
		if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
			return GenerationResult{}, fmt.Errorf("failed to create matches: %w", err)
		}

		if err := s.store.UpdateGroupsConfig(ctx, tx, t.ID, opts.NumGroups, opts.QualifiersPerGroup, opts.DoubleRound); err != nil {
			return GenerationResult{}, fmt.Errorf("failed to store groups config: %w", err)
		}
		if err := s.store.UpdateTournamentStatus(ctx, tx, t.ID, bracket.TournamentActive); err != nil {
			return GenerationResult{}, fmt.Errorf("failed to activate tournament: %w", err)
		}
		return GenerationResult{RoundsCreated: len(rounds), MatchesCreated: len(matches)}, nil
	})
	if errors.Is(err, bracket.ErrPartialFailure) {
		s.cleanupGroups(context.WithoutCancel(ctx), tournamentID)
	}
	return res, err
}

// cleanupGroups removes whatever a failed groups generation left behind.
func (s *FixtureService) cleanupGroups(ctx context.Context, tournamentID uuid.UUID) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.store.DeleteRounds(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		s.logger.Warn("removed rounds of failed groups generation", "tournament_id", tournamentID, "rounds", n)
		return s.store.ClearParticipantGroups(ctx, tx, tournamentID)
	})
	if err != nil {
		s.logger.Error("groups cleanup failed, manual cleanup required", "tournament_id", tournamentID, "error", err)
	}
}

func validateGroupsOptions(opts GroupsOptions, entrants int) error {
	if opts.NumGroups < 2 {
		return fmt.Errorf("%w: need at least 2 groups, got %d", bracket.ErrValidation, opts.NumGroups)
	}
	if entrants < 2*opts.NumGroups {
		return fmt.Errorf("%w: %d teams cannot fill %d groups", bracket.ErrValidation, entrants, opts.NumGroups)
	}
	if opts.QualifiersPerGroup != 1 && opts.QualifiersPerGroup != 2 {
		return fmt.Errorf("%w: qualifiers per group must be 1 or 2, got %d", bracket.ErrValidation, opts.QualifiersPerGroup)
	}
	if !pairing.IsPowerOfTwo(opts.NumGroups * opts.QualifiersPerGroup) {
		return fmt.Errorf("%w: %d groups x %d qualifiers is not a power of two",
			bracket.ErrValidation, opts.NumGroups, opts.QualifiersPerGroup)
	}
	return nil
}

// assignGroups validates an explicit assignment or deals a shuffled field.
func (s *FixtureService) assignGroups(participants []bracket.Participant, opts GroupsOptions) (map[string][]uuid.UUID, error) {
	if len(opts.Assignments) == 0 {
		ids := teamIDs(participants)
		s.shuffle(ids)
		groups := make(map[string][]uuid.UUID, opts.NumGroups)
		for i, id := range ids {
			name := groupName(i % opts.NumGroups)
			groups[name] = append(groups[name], id)
		}
		return groups, nil
	}

	if len(opts.Assignments) != opts.NumGroups {
		return nil, fmt.Errorf("%w: assignment has %d groups, expected %d", bracket.ErrValidation, len(opts.Assignments), opts.NumGroups)
	}
	approved := make(map[uuid.UUID]bool, len(participants))
	for _, p := range participants {
		approved[p.TeamID] = true
	}
	placed := make(map[uuid.UUID]string, len(participants))
	for name, ids := range opts.Assignments {
		if name == "" {
			return nil, fmt.Errorf("%w: group name is required", bracket.ErrValidation)
		}
		for _, id := range ids {
			if !approved[id] {
				return nil, fmt.Errorf("%w: team %s is not an approved entrant", bracket.ErrValidation, id)
			}
			if prev, dup := placed[id]; dup {
				return nil, fmt.Errorf("%w: team %s assigned to groups %s and %s", bracket.ErrValidation, id, prev, name)
			}
			placed[id] = name
		}
	}
	if len(placed) != len(participants) {
		return nil, fmt.Errorf("%w: assignment covers %d of %d teams", bracket.ErrValidation, len(placed), len(participants))
	}
	return opts.Assignments, nil
}

func groupName(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("G%d", i+1)
}

func sortedKeys(groups map[string][]uuid.UUID) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// interleaveGroups merges round k of every group into a single round k.
func interleaveGroups(groups map[string][]uuid.UUID, names []string, doubleRound bool) ([]pairing.Round, error) {
	var merged []pairing.Round
	for _, name := range names {
		rounds, err := pairing.RoundRobin(groups[name], doubleRound)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", name, err)
		}
		for _, r := range rounds {
			for len(merged) < r.Number {
				merged = append(merged, pairing.Round{Number: len(merged) + 1})
			}
			merged[r.Number-1].Pairings = append(merged[r.Number-1].Pairings, r.Pairings...)
		}
	}
	return merged, nil
}

// GeneratePlayoffFromGroups seeds the top finishers of every group into a
// bracket played after the group rounds.
func (s *FixtureService) GeneratePlayoffFromGroups(ctx context.Context, tournamentID uuid.UUID) (GenerationResult, error) {
	return s.generate(ctx, tournamentID, "playoff", func(tx *sqlx.Tx) (GenerationResult, error) {
		t, err := s.store.GetTournament(ctx, tx, tournamentID)
		if err != nil {
			return GenerationResult{}, err
		}
		if t.Format != bracket.GroupsThenPlayoff {
			return GenerationResult{}, fmt.Errorf("%w: tournament %s is %s, not %s", bracket.ErrValidation, t.ID, t.Format, bracket.GroupsThenPlayoff)
		}
		if t.Status != bracket.TournamentActive {
			return GenerationResult{}, fmt.Errorf("%w: tournament %s is %s, the groups phase must be running", bracket.ErrConflict, t.ID, t.Status)
		}

		labeled, err := s.store.CountLabeledMatches(ctx, tx, t.ID)
		if err != nil {
			return GenerationResult{}, fmt.Errorf("failed to count playoff matches: %w", err)
		}
		if labeled > 0 {
			return GenerationResult{}, fmt.Errorf("%w: playoff already generated for tournament %s", bracket.ErrConflict, t.ID)
		}

		matches, err := s.store.ListMatches(ctx, tx, t.ID)
		if err != nil {
			return GenerationResult{}, fmt.Errorf("failed to load matches: %w", err)
		}
		if len(matches) == 0 {
			return GenerationResult{}, fmt.Errorf("%w: groups phase not generated for tournament %s", bracket.ErrValidation, t.ID)
		}
		for _, m := range matches {
			if m.Status != bracket.MatchFinished {
				return GenerationResult{}, fmt.Errorf("%w: group match %s is still %s", bracket.ErrValidation, m.ID, m.Status)
			}
		}

		participants, err := s.store.ApprovedParticipants(ctx, tx, t.ID)
		if err != nil {
			return GenerationResult{}, fmt.Errorf("failed to load participants: %w", err)
		}
		tables, err := groupTables(ctx, participants, matches, t.Scoring())
		if err != nil {
			return GenerationResult{}, err
		}

		names := make([]string, 0, len(tables))
		var qualifiers []pairing.Qualifier
		for name, rows := range tables {
			names = append(names, name)
			if len(rows) < t.QualifiersPerGroup {
				return GenerationResult{}, fmt.Errorf("%w: group %s has only %d teams", bracket.ErrValidation, name, len(rows))
			}
			for _, row := range rows[:t.QualifiersPerGroup] {
				qualifiers = append(qualifiers, pairing.Qualifier{Entrant: row.TeamID, Group: name, Position: row.Rank})
			}
		}
		sort.Strings(names)

		order, err := pairing.CrossGroupSeeding(qualifiers, names, t.QualifiersPerGroup)
		if err != nil {
			return GenerationResult{}, err
		}
		bms, err := pairing.SingleElimination(order)
		if err != nil {
			return GenerationResult{}, err
		}

		last, err := s.store.MaxRoundNumber(ctx, tx, t.ID)
		if err != nil {
			return GenerationResult{}, fmt.Errorf("failed to read round numbers: %w", err)
		}
		return s.persistBracket(ctx, tx, t, bms, last+1)
	})
}

// groupMatches keeps unlabeled matches between two teams of the group.
func groupMatches(members map[uuid.UUID]bool, matches []bracket.Match) []bracket.Match {
	var out []bracket.Match
	for _, m := range matches {
		if m.IsElimination() || m.HomeTeamID == nil || m.AwayTeamID == nil {
			continue
		}
		if members[*m.HomeTeamID] && members[*m.AwayTeamID] {
			out = append(out, m)
		}
	}
	return out
}
