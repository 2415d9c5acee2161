package answer_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/judgeboard/internal/answer"
	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/event"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/session"
	"github.com/victornm/judgeboard/internal/store/memory"
)

type fixture struct {
	ctx      context.Context
	st       *memory.Store
	em       *emitter
	sessions *session.Service
	answers  *answer.Service
	results  *result.Service

	session  *domain.Session
	team     domain.Team
	question domain.Question
}

// newFixture creates a session for teams A and B with one question round started for team A.
// The question weighs 2 with choices Yes (1) and No (0).
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx: context.Background(),
		st:  memory.New(),
		em:  &emitter{},
	}
	f.sessions = session.NewService(session.Config{Store: f.st, Emitter: f.em})
	f.answers = answer.NewService(answer.Config{Store: f.st, Emitter: f.em})
	f.results = result.NewService(result.Config{Store: f.st, Emitter: f.em})

	qs := []domain.Question{
		{Text: "Is it?", Weight: 2, Choices: []domain.Choice{{Text: "Yes", Weight: 1}, {Text: "No", Weight: 0}}},
	}
	require.NoError(t, f.st.CreateQuestions(f.ctx, qs))
	f.question = qs[0]

	ss, err := f.sessions.CreateSession(f.ctx, session.CreateSessionRequest{Teams: []string{"A", "B"}})
	require.NoError(t, err)

	started, err := f.sessions.StartQuestions(f.ctx, session.StartQuestionsRequest{
		SessionID:   ss.ID,
		HostToken:   ss.HostToken,
		QuestionIDs: []int64{f.question.ID},
	})
	require.NoError(t, err)

	f.session = started.Session
	f.team = started.Team
	return f
}

func (f *fixture) join(t *testing.T, name string) *domain.Judge {
	t.Helper()

	resp, err := f.sessions.JoinJudge(f.ctx, session.JoinJudgeRequest{PIN: "1234", Name: name, SessionID: f.session.ID})
	require.NoError(t, err)
	return resp.Judge
}

func (f *fixture) leaderboard(t *testing.T) []domain.LeaderboardEntry {
	t.Helper()

	l, err := f.results.GetLeaderboard(f.ctx, result.GetLeaderboardRequest{SessionID: f.session.ID})
	require.NoError(t, err)
	return l.Entries
}

func TestService_SubmitAnswer(t *testing.T) {
	f := newFixture(t)
	judge := f.join(t, "Judy")

	resp, err := f.answers.SubmitAnswer(f.ctx, answer.SubmitAnswerRequest{
		SessionID:  f.session.ID,
		JudgeToken: judge.Token,
		QuestionID: f.question.ID,
		Answer:     "Yes",
	})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, resp.Answer.Points, 1e-9)
	assert.Equal(t, f.team.ID, resp.Answer.TeamID)
	assert.Equal(t, 2.0, resp.Result.TotalPoints)

	assert.Equal(t, []domain.LeaderboardEntry{
		{TeamID: f.team.ID, TeamName: "A", TotalPoints: 2},
		{TeamName: "B", TotalPoints: 0},
	}, f.leaderboard(t))

	names := f.em.names()
	assert.Equal(t, []string{domain.EventNameAnswerSubmitted, domain.EventNameLeaderboardUpdated}, names[len(names)-2:])

	submitted := f.em.find(domain.EventNameAnswerSubmitted).(domain.EventAnswerSubmitted)
	assert.Equal(t, domain.EventAnswerSubmitted{JudgeName: "Judy", TeamName: "A", Answer: "Yes", Points: 2}, submitted)
}

func TestService_SubmitAnswer_Errors(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T, f *fixture) answer.SubmitAnswerRequest
		code    errors.Code
	}{
		"unknown judge token": {
			arrange: func(t *testing.T, f *fixture) answer.SubmitAnswerRequest {
				return answer.SubmitAnswerRequest{SessionID: f.session.ID, JudgeToken: "nope", QuestionID: f.question.ID, Answer: "Yes"}
			},
			code: errors.CodeUnauthenticated,
		},

		"unknown question": {
			arrange: func(t *testing.T, f *fixture) answer.SubmitAnswerRequest {
				j := f.join(t, "Judy")
				return answer.SubmitAnswerRequest{SessionID: f.session.ID, JudgeToken: j.Token, QuestionID: 999, Answer: "Yes"}
			},
			code: errors.CodeNotFound,
		},

		"unknown session": {
			arrange: func(t *testing.T, f *fixture) answer.SubmitAnswerRequest {
				j := f.join(t, "Judy")
				return answer.SubmitAnswerRequest{SessionID: "missing", JudgeToken: j.Token, QuestionID: f.question.ID, Answer: "Yes"}
			},
			code: errors.CodeNotFound,
		},

		"ended session": {
			arrange: func(t *testing.T, f *fixture) answer.SubmitAnswerRequest {
				j := f.join(t, "Judy")
				_, err := f.sessions.EndSession(f.ctx, session.EndSessionRequest{SessionID: f.session.ID, HostToken: f.session.HostToken})
				require.NoError(t, err)
				return answer.SubmitAnswerRequest{SessionID: f.session.ID, JudgeToken: j.Token, QuestionID: f.question.ID, Answer: "Yes"}
			},
			code: errors.CodeFailedPrecondition,
		},

		"missing question id": {
			arrange: func(t *testing.T, f *fixture) answer.SubmitAnswerRequest {
				j := f.join(t, "Judy")
				return answer.SubmitAnswerRequest{SessionID: f.session.ID, JudgeToken: j.Token, Answer: "Yes"}
			},
			code: errors.CodeInvalidArgument,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			req := tt.arrange(t, f)

			_, err := f.answers.SubmitAnswer(f.ctx, req)
			require.True(t, errors.Is(err, tt.code), "want code %d, got %v", tt.code, err)

			answers, err := f.st.ListAnswers(f.ctx, f.session.ID, 0)
			require.NoError(t, err)
			assert.Empty(t, answers, "no answer should be stored")
		})
	}
}

func TestService_SubmitFinalAnswers_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	judge := f.join(t, "Judy")

	submit := func(text string) *answer.SubmitFinalAnswersResponse {
		resp, err := f.answers.SubmitFinalAnswers(f.ctx, answer.SubmitFinalAnswersRequest{
			SessionID:  f.session.ID,
			JudgeToken: judge.Token,
			TeamID:     f.team.ID,
			Answers:    []domain.FinalAnswerItem{{QuestionID: f.question.ID, Answer: domain.AnswerValue(text)}},
		})
		require.NoError(t, err)
		return resp
	}

	first := submit("Yes")
	assert.Equal(t, 2.0, first.Result.TotalPoints)

	second := submit("No")
	assert.Equal(t, 0.0, second.Result.TotalPoints)
	require.Len(t, second.Result.Details, 1, "the second sheet should replace the first")
	assert.Equal(t, "No", second.Result.Details[0].Answer)
	assert.Equal(t, domain.SourceFinal, second.Result.Details[0].Source)

	names := f.em.names()
	assert.Equal(t, []string{domain.EventNameLeaderboardUpdated, domain.EventNameFinalAnswersSubmitted}, names[len(names)-2:])
	submitted := f.em.last().(domain.EventFinalAnswersSubmitted)
	assert.Equal(t, 1, submitted.AnswersCount)
	assert.Equal(t, f.team.ID, submitted.TeamID)
}

func TestService_SubmitFinalAnswers_MultipleJudges(t *testing.T) {
	f := newFixture(t)
	judges := []*domain.Judge{f.join(t, "Zed"), f.join(t, "Amy")}

	var wg sync.WaitGroup
	for _, j := range judges {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.answers.SubmitFinalAnswers(f.ctx, answer.SubmitFinalAnswersRequest{
				SessionID:  f.session.ID,
				JudgeToken: j.Token,
				TeamID:     f.team.ID,
				Answers:    []domain.FinalAnswerItem{{QuestionID: f.question.ID, Answer: "Yes"}},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	res, err := f.results.ListTeamLedgers(f.ctx, result.ListTeamLedgersRequest{SessionID: f.session.ID})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 4.0, res[0].TotalPoints)
	require.Len(t, res[0].Details, 2)
	assert.Equal(t, "Amy", res[0].Details[0].JudgeName, "ledger should be ordered by judge name")
	assert.Equal(t, "Zed", res[0].Details[1].JudgeName)
}

func TestService_SubmitFinalAnswers_SupersedesSingleAnswers(t *testing.T) {
	f := newFixture(t)
	judge := f.join(t, "Judy")
	other := f.join(t, "Olga")

	for _, j := range []*domain.Judge{judge, other} {
		_, err := f.answers.SubmitAnswer(f.ctx, answer.SubmitAnswerRequest{
			SessionID:  f.session.ID,
			JudgeToken: j.Token,
			QuestionID: f.question.ID,
			Answer:     "Yes",
		})
		require.NoError(t, err)
	}

	resp, err := f.answers.SubmitFinalAnswers(f.ctx, answer.SubmitFinalAnswersRequest{
		SessionID:  f.session.ID,
		JudgeToken: judge.Token,
		TeamID:     f.team.ID,
		Answers:    []domain.FinalAnswerItem{{QuestionID: f.question.ID, Answer: "No"}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Result.Details, 2)
	assert.Equal(t, domain.LedgerEntry{
		QuestionID: f.question.ID, QuestionText: "Is it?", QuestionWeight: 2, JudgeName: "Judy",
		Answer: "No", Points: 0, OptionWeight: 0, MaxOptionWeight: 1, Source: domain.SourceFinal,
	}, resp.Result.Details[0])
	assert.Equal(t, domain.SourceSingle, resp.Result.Details[1].Source)
	assert.Equal(t, "Olga", resp.Result.Details[1].JudgeName)
	assert.Equal(t, 2.0, resp.Result.TotalPoints)
}

func TestService_SubmitFinalAnswers_Errors(t *testing.T) {
	f := newFixture(t)
	judge := f.join(t, "Judy")

	_, err := f.answers.SubmitFinalAnswers(f.ctx, answer.SubmitFinalAnswersRequest{
		SessionID:  f.session.ID,
		JudgeToken: judge.Token,
		TeamID:     f.team.ID + 100,
		Answers:    []domain.FinalAnswerItem{{QuestionID: f.question.ID, Answer: "Yes"}},
	})
	require.True(t, errors.Is(err, errors.CodeInvalidArgument), "team must be the current team, got %v", err)

	_, err = f.answers.SubmitFinalAnswers(f.ctx, answer.SubmitFinalAnswersRequest{
		SessionID:  f.session.ID,
		JudgeToken: "nope",
		TeamID:     f.team.ID,
	})
	require.True(t, errors.Is(err, errors.CodeUnauthenticated), "got %v", err)

	_, err = f.sessions.EndSession(f.ctx, session.EndSessionRequest{SessionID: f.session.ID, HostToken: f.session.HostToken})
	require.NoError(t, err)

	_, err = f.answers.SubmitFinalAnswers(f.ctx, answer.SubmitFinalAnswersRequest{
		SessionID:  f.session.ID,
		JudgeToken: judge.Token,
		TeamID:     f.team.ID,
	})
	require.True(t, errors.Is(err, errors.CodeFailedPrecondition), "got %v", err)
}

type emitter struct {
	mu     sync.Mutex
	events []event.Event
}

func (e *emitter) Emit(_ context.Context, _ string, ev event.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, ev)
	return nil
}

func (e *emitter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var names []string
	for _, ev := range e.events {
		names = append(names, ev.Name())
	}
	return names
}

func (e *emitter) last() event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.events[len(e.events)-1]
}

func (e *emitter) find(name string) event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].Name() == name {
			return e.events[i]
		}
	}
	return nil
}
