// Package answer records judge submissions against the session's current team.
package answer

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/event"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/scoring"
	"github.com/victornm/judgeboard/internal/session"
	"github.com/victornm/judgeboard/internal/store"
	"github.com/victornm/judgeboard/internal/telemetry"
)

type Config struct {
	Store   store.Store
	Emitter event.Emitter
}

type Service struct {
	st store.Store
	em event.Emitter
}

func NewService(c Config) *Service {
	return &Service{
		st: c.Store,
		em: c.Emitter,
	}
}

type SubmitAnswerRequest struct {
	SessionID  string
	JudgeToken string
	QuestionID int64
	Answer     string
}

type SubmitAnswerResponse struct {
	Answer *domain.Answer
	Team   domain.Team
	Result *domain.SessionResult
}

// SubmitAnswer scores a single answer for the session's current team and refreshes the team result.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if req.QuestionID == 0 {
		return nil, errors.Validation("question id is required")
	}

	var (
		resp  SubmitAnswerResponse
		judge *domain.Judge
	)
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		if judge, err = authenticate(ctx, tx, req.JudgeToken); err != nil {
			return err
		}

		ss, err := session.FindOpen(ctx, tx, req.SessionID)
		if err != nil {
			return err
		}

		team, err := session.CurrentTeam(ctx, tx, ss)
		if err != nil {
			return err
		}

		q, err := tx.GetQuestion(ctx, req.QuestionID)
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.NotFound("question not found: question=%d", req.QuestionID)
		}
		if err != nil {
			return fmt.Errorf("get question: %w", err)
		}

		a := &domain.Answer{
			SessionID:  ss.ID,
			TeamID:     team.ID,
			JudgeID:    judge.ID,
			QuestionID: q.ID,
			Text:       req.Answer,
			Points:     scoring.Points(*q, req.Answer),
		}
		if err := tx.InsertAnswer(ctx, a); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}

		res, err := result.RecomputeIn(ctx, tx, ss.ID, team.ID)
		if err != nil {
			return err
		}

		resp = SubmitAnswerResponse{Answer: a, Team: *team, Result: res}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.AnswerSubmitted(domain.SourceSingle)
	event.Notify(ctx, s.em, req.SessionID,
		domain.EventAnswerSubmitted{
			JudgeName: judge.Name,
			TeamName:  resp.Team.Name,
			Answer:    resp.Answer.Text,
			Points:    resp.Answer.Points,
		},
		result.UpdatedEvent(resp.Result),
	)

	return &resp, nil
}

type SubmitFinalAnswersRequest struct {
	SessionID  string
	JudgeToken string
	TeamID     int64
	Answers    []domain.FinalAnswerItem
}

type SubmitFinalAnswersResponse struct {
	Team   domain.Team
	Result *domain.SessionResult
}

// SubmitFinalAnswers replaces the judge's answer sheet for the current team and recomputes the team result.
// Resubmitting overwrites the previous sheet of the same judge.
func (s *Service) SubmitFinalAnswers(ctx context.Context, req SubmitFinalAnswersRequest) (*SubmitFinalAnswersResponse, error) {
	if req.TeamID == 0 {
		return nil, errors.Validation("team id is required")
	}
	for i, item := range req.Answers {
		if item.QuestionID == 0 {
			return nil, errors.Validation("answers[%d]: question id is required", i)
		}
	}

	var (
		resp  SubmitFinalAnswersResponse
		judge *domain.Judge
	)
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		if judge, err = authenticate(ctx, tx, req.JudgeToken); err != nil {
			return err
		}

		ss, err := session.FindOpen(ctx, tx, req.SessionID)
		if err != nil {
			return err
		}

		team, err := session.CurrentTeam(ctx, tx, ss)
		if err != nil {
			return err
		}
		if team.ID != req.TeamID {
			return errors.Validation("team is not the current team: session=%s, team=%d, current=%d", ss.ID, req.TeamID, team.ID)
		}

		if err := tx.UpsertFinalAnswer(ctx, domain.FinalAnswer{
			SessionID: ss.ID,
			TeamID:    team.ID,
			JudgeID:   judge.ID,
			Answers:   req.Answers,
		}); err != nil {
			return fmt.Errorf("upsert final answer: %w", err)
		}

		res, err := result.RecomputeIn(ctx, tx, ss.ID, team.ID)
		if err != nil {
			return err
		}

		resp = SubmitFinalAnswersResponse{Team: *team, Result: res}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.AnswerSubmitted(domain.SourceFinal)
	event.Notify(ctx, s.em, req.SessionID,
		result.UpdatedEvent(resp.Result),
		domain.EventFinalAnswersSubmitted{
			JudgeName:    judge.Name,
			TeamName:     resp.Team.Name,
			TeamID:       resp.Team.ID,
			AnswersCount: len(req.Answers),
		},
	)

	return &resp, nil
}

func authenticate(ctx context.Context, st store.JudgeStore, token string) (*domain.Judge, error) {
	if token == "" {
		return nil, errors.Unauthenticated("judge token is required")
	}

	j, err := st.GetJudgeByToken(ctx, token)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Unauthenticated("unknown judge token")
	}
	if err != nil {
		return nil, fmt.Errorf("get judge: %w", err)
	}

	return j, nil
}
