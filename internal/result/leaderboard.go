package result

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/store"
)

type GetLeaderboardRequest struct {
	SessionID string
}

// GetLeaderboard returns every team of the session with its total, highest first, ties by team name.
// Totals are re-summed from the stored ledgers.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	ss, err := getSession(ctx, s.st, req.SessionID)
	if err != nil {
		return nil, err
	}

	results, err := s.st.ListResults(ctx, ss.ID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	teams, err := s.st.FindTeamsByNames(ctx, ss.Teams)
	if err != nil {
		return nil, fmt.Errorf("find teams: %w", err)
	}

	ids := make(map[string]int64, len(teams))
	for _, t := range teams {
		ids[t.Name] = t.ID
	}

	byName := make(map[string]domain.SessionResult, len(results))
	for _, r := range results {
		byName[r.TeamName] = r
	}

	entries := make([]domain.LeaderboardEntry, 0, len(ss.Teams))
	for _, name := range ss.Teams {
		e := domain.LeaderboardEntry{TeamID: ids[name], TeamName: name}
		if r, ok := byName[name]; ok {
			e.TeamID = r.TeamID
			e.TotalPoints = Total(r.Details)
			delete(byName, name)
		}
		entries = append(entries, e)
	}

	// Results of teams no longer in the rotation still count.
	for _, r := range results {
		if _, ok := byName[r.TeamName]; ok {
			entries = append(entries, domain.LeaderboardEntry{
				TeamID:      r.TeamID,
				TeamName:    r.TeamName,
				TotalPoints: Total(r.Details),
			})
		}
	}

	sortEntries(entries)

	return &domain.Leaderboard{
		SessionID: ss.ID,
		Entries:   entries,
	}, nil
}

func sortEntries(entries []domain.LeaderboardEntry) {
	slices.SortFunc(entries, func(a, b domain.LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.TotalPoints, a.TotalPoints),
			cmp.Compare(a.TeamName, b.TeamName),
		)
	})
}

type ListTeamLedgersRequest struct {
	SessionID string
}

// ListTeamLedgers returns the stored results of the session, ordered by team name.
func (s *Service) ListTeamLedgers(ctx context.Context, req ListTeamLedgersRequest) ([]domain.SessionResult, error) {
	if _, err := getSession(ctx, s.st, req.SessionID); err != nil {
		return nil, err
	}

	results, err := s.st.ListResults(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	slices.SortFunc(results, func(a, b domain.SessionResult) int {
		return cmp.Compare(a.TeamName, b.TeamName)
	})
	return results, nil
}

// EndedSession is an ended session with its final results, highest total first.
type EndedSession struct {
	Session domain.Session
	Results []domain.SessionResult
}

// ListEndedResults returns the results of every ended session, newest session first.
func (s *Service) ListEndedResults(ctx context.Context) ([]EndedSession, error) {
	sessions, err := s.st.ListEndedSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ended sessions: %w", err)
	}

	out := make([]EndedSession, 0, len(sessions))
	for _, ss := range sessions {
		rs, err := s.st.ListResults(ctx, ss.ID)
		if err != nil {
			return nil, fmt.Errorf("list results: session=%s: %w", ss.ID, err)
		}

		for i := range rs {
			rs[i].TotalPoints = Total(rs[i].Details)
		}
		slices.SortFunc(rs, func(a, b domain.SessionResult) int {
			return cmp.Or(
				cmp.Compare(b.TotalPoints, a.TotalPoints),
				cmp.Compare(a.TeamName, b.TeamName),
			)
		})

		out = append(out, EndedSession{Session: ss, Results: rs})
	}

	return out, nil
}

// SessionTotal sums the results of a session, used to freeze the session total when it ends.
func SessionTotal(ctx context.Context, st store.ResultStore, sessionID string) (float64, error) {
	rs, err := st.ListResults(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("list results: %w", err)
	}

	var all []domain.LedgerEntry
	for _, r := range rs {
		all = append(all, r.Details...)
	}
	return Total(all), nil
}
