package result_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/event"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/store/memory"
)

type world struct {
	ctx   context.Context
	st    *memory.Store
	em    *emitter
	s     *result.Service
	teams map[string]domain.Team
	qs    []domain.Question
	judge map[string]domain.Judge
}

func newWorld(t *testing.T, teams ...string) *world {
	t.Helper()

	w := &world{
		ctx:   context.Background(),
		st:    memory.New(),
		em:    &emitter{},
		teams: make(map[string]domain.Team),
		judge: make(map[string]domain.Judge),
	}
	w.s = result.NewService(result.Config{Store: w.st, Emitter: w.em})

	require.NoError(t, w.st.CreateSession(w.ctx, &domain.Session{ID: "s1", Teams: teams, Status: domain.StatusActive}))
	for _, name := range teams {
		tm, err := w.st.UpsertTeam(w.ctx, domain.Team{Name: name})
		require.NoError(t, err)
		w.teams[name] = *tm
	}

	w.qs = []domain.Question{
		{Text: "Q1", Weight: 2, Choices: []domain.Choice{{Text: "Yes", Weight: 1}, {Text: "No", Weight: 0}}},
		{Text: "Q2", Weight: 1, Choices: []domain.Choice{{Text: "a", Weight: 1}, {Text: "b", Weight: 2}, {Text: "c", Weight: 3}}},
		{Text: "Q3", Weight: 3, Choices: []domain.Choice{{Text: "x", Weight: 0}, {Text: "y", Weight: 0}}},
	}
	require.NoError(t, w.st.CreateQuestions(w.ctx, w.qs))
	require.NoError(t, w.st.AttachQuestions(w.ctx, "s1", []int64{w.qs[0].ID, w.qs[1].ID, w.qs[2].ID}))

	return w
}

func (w *world) addJudge(t *testing.T, name string) domain.Judge {
	t.Helper()

	j, err := w.st.UpsertJudge(w.ctx, domain.Judge{Name: name, Token: name + "-token", Online: true})
	require.NoError(t, err)
	w.judge[name] = *j
	return *j
}

func (w *world) final(t *testing.T, team, judge string, items ...domain.FinalAnswerItem) {
	t.Helper()

	require.NoError(t, w.st.UpsertFinalAnswer(w.ctx, domain.FinalAnswer{
		SessionID: "s1",
		TeamID:    w.teams[team].ID,
		JudgeID:   w.judge[judge].ID,
		Answers:   items,
	}))
}

func (w *world) recompute(t *testing.T, team string) *domain.SessionResult {
	t.Helper()

	res, err := w.s.Recompute(w.ctx, result.RecomputeRequest{SessionID: "s1", TeamID: w.teams[team].ID})
	require.NoError(t, err)
	return res
}

func TestService_Recompute(t *testing.T) {
	w := newWorld(t, "A", "B")
	w.addJudge(t, "Judy")

	w.final(t, "A", "Judy",
		domain.FinalAnswerItem{QuestionID: w.qs[0].ID, Answer: "Yes"},
		domain.FinalAnswerItem{QuestionID: w.qs[1].ID, Answer: "b"},
		domain.FinalAnswerItem{QuestionID: w.qs[2].ID, Answer: "x"},
		domain.FinalAnswerItem{QuestionID: 999, Answer: "?"},
		domain.FinalAnswerItem{QuestionID: w.qs[1].ID, Answer: "B"},
	)

	res := w.recompute(t, "A")

	// 2 + 2/3 + 0 (zero max weight) + 0 (case mismatch), unknown question skipped.
	assert.Equal(t, 2.67, res.TotalPoints)
	require.Len(t, res.Details, 4)
	assert.Equal(t, []string{"Q1", "Q2", "Q3", "Q2"}, []string{
		res.Details[0].QuestionText, res.Details[1].QuestionText, res.Details[2].QuestionText, res.Details[3].QuestionText,
	})
	assert.InDelta(t, 2.0/3.0, res.Details[1].Points, 1e-9)
	assert.Equal(t, 2.0, res.Details[1].OptionWeight)
	assert.Equal(t, 3.0, res.Details[1].MaxOptionWeight)
	for _, d := range res.Details {
		assert.False(t, math.IsNaN(d.Points) || math.IsInf(d.Points, 0))
	}

	updated := w.em.last().(domain.EventLeaderboardUpdated)
	assert.Equal(t, domain.EventLeaderboardUpdated{TeamID: w.teams["A"].ID, TeamName: "A", TotalPoints: 2.67}, updated)
}

func TestService_Recompute_SkipsQuestionsOutsideSession(t *testing.T) {
	w := newWorld(t, "A")
	w.addJudge(t, "Judy")
	alex := w.addJudge(t, "Alex")

	outside := []domain.Question{
		{Text: "Bonus", Weight: 50, Choices: []domain.Choice{{Text: "Yes", Weight: 1}}},
	}
	require.NoError(t, w.st.CreateQuestions(w.ctx, outside))

	w.final(t, "A", "Judy",
		domain.FinalAnswerItem{QuestionID: outside[0].ID, Answer: "Yes"},
		domain.FinalAnswerItem{QuestionID: w.qs[0].ID, Answer: "Yes"},
	)
	require.NoError(t, w.st.InsertAnswer(w.ctx, &domain.Answer{
		SessionID: "s1", TeamID: w.teams["A"].ID, JudgeID: alex.ID, QuestionID: outside[0].ID, Text: "Yes", Points: 50,
	}))

	res := w.recompute(t, "A")
	assert.Equal(t, 2.0, res.TotalPoints)
	require.Len(t, res.Details, 1)
	assert.Equal(t, "Q1", res.Details[0].QuestionText)
}

func TestService_Recompute_Idempotent(t *testing.T) {
	w := newWorld(t, "A")
	w.addJudge(t, "Judy")
	w.addJudge(t, "Alex")

	w.final(t, "A", "Judy", domain.FinalAnswerItem{QuestionID: w.qs[1].ID, Answer: "a"})
	w.final(t, "A", "Alex", domain.FinalAnswerItem{QuestionID: w.qs[0].ID, Answer: "Yes"})

	first := w.recompute(t, "A")
	second := w.recompute(t, "A")
	assert.Equal(t, first, second)

	stored, err := w.s.ListTeamLedgers(w.ctx, result.ListTeamLedgersRequest{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, first.Details, stored[0].Details)
	assert.Equal(t, "Alex", stored[0].Details[0].JudgeName)
}

func TestService_Recompute_LatestSingleAnswerCounts(t *testing.T) {
	w := newWorld(t, "A")
	j := w.addJudge(t, "Judy")

	for _, text := range []string{"Yes", "No", "Yes", "No"} {
		require.NoError(t, w.st.InsertAnswer(w.ctx, &domain.Answer{
			SessionID: "s1", TeamID: w.teams["A"].ID, JudgeID: j.ID, QuestionID: w.qs[0].ID, Text: text,
		}))
	}

	res := w.recompute(t, "A")
	require.Len(t, res.Details, 1)
	assert.Equal(t, "No", res.Details[0].Answer)
	assert.Equal(t, 0.0, res.TotalPoints)
}

func TestService_Recompute_Errors(t *testing.T) {
	w := newWorld(t, "A")

	_, err := w.s.Recompute(w.ctx, result.RecomputeRequest{SessionID: "missing", TeamID: w.teams["A"].ID})
	require.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)

	_, err = w.s.Recompute(w.ctx, result.RecomputeRequest{SessionID: "s1", TeamID: 999})
	require.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

func TestService_GetLeaderboard(t *testing.T) {
	w := newWorld(t, "Delta", "Bravo", "Alpha", "Charlie")
	w.addJudge(t, "Judy")

	w.final(t, "Bravo", "Judy", domain.FinalAnswerItem{QuestionID: w.qs[0].ID, Answer: "Yes"})
	w.final(t, "Alpha", "Judy", domain.FinalAnswerItem{QuestionID: w.qs[0].ID, Answer: "Yes"})
	w.final(t, "Charlie", "Judy", domain.FinalAnswerItem{QuestionID: w.qs[1].ID, Answer: "c"})
	for _, team := range []string{"Bravo", "Alpha", "Charlie"} {
		w.recompute(t, team)
	}

	l, err := w.s.GetLeaderboard(w.ctx, result.GetLeaderboardRequest{SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, []domain.LeaderboardEntry{
		{TeamID: w.teams["Alpha"].ID, TeamName: "Alpha", TotalPoints: 2},
		{TeamID: w.teams["Bravo"].ID, TeamName: "Bravo", TotalPoints: 2},
		{TeamID: w.teams["Charlie"].ID, TeamName: "Charlie", TotalPoints: 1},
		{TeamID: w.teams["Delta"].ID, TeamName: "Delta", TotalPoints: 0},
	}, l.Entries)

	_, err = w.s.GetLeaderboard(w.ctx, result.GetLeaderboardRequest{SessionID: "missing"})
	require.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

func TestService_GetLeaderboard_ResumsLedger(t *testing.T) {
	w := newWorld(t, "A")

	require.NoError(t, w.st.UpsertResult(w.ctx, domain.SessionResult{
		SessionID:   "s1",
		TeamID:      w.teams["A"].ID,
		TotalPoints: 100,
		Details:     []domain.LedgerEntry{{Points: 0.1}, {Points: 0.2}, {Points: 1.005}},
	}))

	l, err := w.s.GetLeaderboard(w.ctx, result.GetLeaderboardRequest{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, l.Entries, 1)
	assert.Equal(t, 1.31, l.Entries[0].TotalPoints, "stale stored total should be ignored")
}

func TestService_ListEndedResults(t *testing.T) {
	w := newWorld(t, "A", "B")
	w.addJudge(t, "Judy")
	w.final(t, "B", "Judy", domain.FinalAnswerItem{QuestionID: w.qs[0].ID, Answer: "Yes"})
	w.final(t, "A", "Judy", domain.FinalAnswerItem{QuestionID: w.qs[1].ID, Answer: "a"})
	w.recompute(t, "A")
	w.recompute(t, "B")

	ended, err := w.s.ListEndedResults(w.ctx)
	require.NoError(t, err)
	assert.Empty(t, ended)

	ss, err := w.st.GetSession(w.ctx, "s1")
	require.NoError(t, err)
	ss.Status = domain.StatusEnded
	require.NoError(t, w.st.UpdateSession(w.ctx, ss))

	ended, err = w.s.ListEndedResults(w.ctx)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	require.Len(t, ended[0].Results, 2)
	assert.Equal(t, "B", ended[0].Results[0].TeamName)
	assert.Equal(t, 2.0, ended[0].Results[0].TotalPoints)
	assert.Equal(t, 0.33, ended[0].Results[1].TotalPoints)

	total, err := result.SessionTotal(w.ctx, w.st, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2.33, total)
}

func TestTotal(t *testing.T) {
	tests := map[string]struct {
		points []float64
		want   float64
	}{
		"empty":             {points: nil, want: 0},
		"rounds half up":    {points: []float64{0.125}, want: 0.13},
		"no float drift":    {points: []float64{0.1, 0.2}, want: 0.3},
		"thirds":            {points: []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, want: 1},
		"keeps two decimal": {points: []float64{2, 0.6666666}, want: 2.67},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var details []domain.LedgerEntry
			for _, p := range tt.points {
				details = append(details, domain.LedgerEntry{Points: p})
			}
			assert.Equal(t, tt.want, result.Total(details))
		})
	}
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

func (e *emitter) last() event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.events[len(e.events)-1]
}
