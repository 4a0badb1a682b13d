package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/standings"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type StandingsService struct {
	*deps
}

// ComputeStandings returns the table of the whole tournament, or of one group
// when group is set. Group tables only count unlabeled matches between members.
func (s *StandingsService) ComputeStandings(ctx context.Context, tournamentID uuid.UUID, group string) ([]standings.Row, error) {
	t, err := s.store.GetTournament(ctx, s.db, tournamentID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ApprovedParticipants(ctx, s.db, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	matches, err := s.store.ListMatches(ctx, s.db, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}

	if group == "" {
		teams := make([]bracket.Team, len(participants))
		for i, p := range participants {
			teams[i] = p.Team()
		}
		return standings.Compute(teams, matches, t.Scoring()), nil
	}

	tables, err := groupTables(ctx, participants, matches, t.Scoring())
	if err != nil {
		return nil, err
	}
	rows, ok := tables[group]
	if !ok {
		return nil, fmt.Errorf("%w: group %q in tournament %s", bracket.ErrNotFound, group, tournamentID)
	}
	return rows, nil
}

// groupTables computes every group's table in parallel. Participants without a
// group are left out.
func groupTables(ctx context.Context, participants []bracket.Participant, matches []bracket.Match, rule bracket.ScoringRule) (map[string][]standings.Row, error) {
	members := make(map[string][]bracket.Team)
	for _, p := range participants {
		if p.GroupName == nil {
			continue
		}
		members[*p.GroupName] = append(members[*p.GroupName], p.Team())
	}

	var mu sync.Mutex
	tables := make(map[string][]standings.Row, len(members))
	g, ctx := errgroup.WithContext(ctx)
	for name, teams := range members {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			in := make(map[uuid.UUID]bool, len(teams))
			for _, team := range teams {
				in[team.ID] = true
			}
			rows := standings.Compute(teams, groupMatches(in, matches), rule)

			mu.Lock()
			tables[name] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}
