// Package snapshot builds the denormalized session view clients reload after missing events.
package snapshot

import (
	"context"
	"fmt"
	"slices"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/session"
	"github.com/victornm/judgeboard/internal/store"
)

type Config struct {
	Store    store.Store
	Sessions *session.Service
	Results  *result.Service
}

type Service struct {
	st       store.Store
	sessions *session.Service
	results  *result.Service
}

func NewService(c Config) *Service {
	return &Service{
		st:       c.Store,
		sessions: c.Sessions,
		results:  c.Results,
	}
}

// Line is one submission shown in a team's answer list.
type Line struct {
	JudgeName    string
	QuestionID   int64
	QuestionText string
	Answer       string
	Points       float64
	Source       string
	// AnswersCount is the size of a final answer batch.
	AnswersCount int
}

type Snapshot struct {
	State  *session.State
	Judges []domain.Judge
	// AnswersByTeam holds single answers in submission order followed by one line per final batch.
	AnswersByTeam map[string][]Line
	Leaderboard   *domain.Leaderboard
}

type GetSnapshotRequest struct {
	SessionID string
}

func (s *Service) GetSnapshot(ctx context.Context, req GetSnapshotRequest) (*Snapshot, error) {
	state, err := s.sessions.GetState(ctx, session.GetStateRequest{SessionID: req.SessionID})
	if err != nil {
		return nil, err
	}

	judges, err := s.sessions.ListJudges(ctx, session.ListJudgesRequest{SessionID: req.SessionID})
	if err != nil {
		return nil, err
	}

	byTeam, err := s.answersByTeam(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	l, err := s.results.GetLeaderboard(ctx, result.GetLeaderboardRequest{SessionID: req.SessionID})
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		State:         state,
		Judges:        judges,
		AnswersByTeam: byTeam,
		Leaderboard:   l,
	}, nil
}

func (s *Service) answersByTeam(ctx context.Context, sessionID string) (map[string][]Line, error) {
	answers, err := s.st.ListAnswers(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	finals, err := s.st.ListFinalAnswers(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("list final answers: %w", err)
	}

	var teamIDs, judgeIDs, questionIDs []int64
	for _, a := range answers {
		teamIDs = appendUnique(teamIDs, a.TeamID)
		judgeIDs = appendUnique(judgeIDs, a.JudgeID)
		questionIDs = appendUnique(questionIDs, a.QuestionID)
	}
	for _, fa := range finals {
		teamIDs = appendUnique(teamIDs, fa.TeamID)
		judgeIDs = appendUnique(judgeIDs, fa.JudgeID)
	}

	teams := make(map[int64]string, len(teamIDs))
	for _, id := range teamIDs {
		t, err := s.st.GetTeam(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get team %d: %w", id, err)
		}
		teams[id] = t.Name
	}

	judges := make(map[int64]string, len(judgeIDs))
	if len(judgeIDs) > 0 {
		js, err := s.st.ListJudgesByIDs(ctx, judgeIDs)
		if err != nil {
			return nil, fmt.Errorf("list judges: %w", err)
		}
		for _, j := range js {
			judges[j.ID] = j.Name
		}
	}

	questions := make(map[int64]string, len(questionIDs))
	if len(questionIDs) > 0 {
		qs, err := s.st.GetQuestionsByIDs(ctx, questionIDs)
		if err != nil {
			return nil, fmt.Errorf("get questions: %w", err)
		}
		for _, q := range qs {
			questions[q.ID] = q.Text
		}
	}

	out := make(map[string][]Line, len(teams))
	for _, a := range answers {
		name := teams[a.TeamID]
		out[name] = append(out[name], Line{
			JudgeName:    judges[a.JudgeID],
			QuestionID:   a.QuestionID,
			QuestionText: questions[a.QuestionID],
			Answer:       a.Text,
			Points:       a.Points,
			Source:       domain.SourceSingle,
		})
	}
	for _, fa := range finals {
		name := teams[fa.TeamID]
		out[name] = append(out[name], Line{
			JudgeName:    judges[fa.JudgeID],
			Answer:       fmt.Sprintf("final answers submitted (%d answers)", len(fa.Answers)),
			Source:       domain.SourceFinal,
			AnswersCount: len(fa.Answers),
		})
	}

	return out, nil
}

func appendUnique(ids []int64, id int64) []int64 {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
