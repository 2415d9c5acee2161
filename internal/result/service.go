// Package result folds stored answers into per-team results and derives the session leaderboard.
package result

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/event"
	"github.com/victornm/judgeboard/internal/scoring"
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

type RecomputeRequest struct {
	SessionID string
	TeamID    int64
}

// Recompute rebuilds the team result from the stored answers, stores it and emits leaderboard_updated.
func (s *Service) Recompute(ctx context.Context, req RecomputeRequest) (*domain.SessionResult, error) {
	var res *domain.SessionResult
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := getSession(ctx, tx, req.SessionID); err != nil {
			return err
		}

		var err error
		res, err = RecomputeIn(ctx, tx, req.SessionID, req.TeamID)
		return err
	})
	if err != nil {
		return nil, err
	}

	event.Notify(ctx, s.em, req.SessionID, UpdatedEvent(res))
	return res, nil
}

// UpdatedEvent returns the leaderboard_updated event reporting res.
func UpdatedEvent(res *domain.SessionResult) domain.EventLeaderboardUpdated {
	return domain.EventLeaderboardUpdated{
		TeamID:      res.TeamID,
		TeamName:    res.TeamName,
		TotalPoints: res.TotalPoints,
	}
}

type contribution struct {
	judgeID int64
	entry   domain.LedgerEntry
}

// RecomputeIn rebuilds the result of the team and overwrites the stored one using st.
//
// A judge's final answer batch for the team supersedes that judge's single answers. For single answers
// only the latest answer per (judge, question) counts. Answers to questions not attached to the session
// are skipped.
// The ledger is ordered by judge name, then by batch order or submission order.
// st must be a transaction, the (session, team) lock is held until it ends.
func RecomputeIn(ctx context.Context, st store.Store, sessionID string, teamID int64) (*domain.SessionResult, error) {
	defer telemetry.ObserveRecompute(time.Now())

	if err := st.LockResult(ctx, sessionID, teamID); err != nil {
		return nil, fmt.Errorf("lock result: %w", err)
	}

	team, err := st.GetTeam(ctx, teamID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("team not found: team=%d", teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}

	finals, err := st.ListFinalAnswers(ctx, sessionID, teamID)
	if err != nil {
		return nil, fmt.Errorf("list final answers: %w", err)
	}

	answers, err := st.ListAnswers(ctx, sessionID, teamID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	superseded := make(map[int64]bool, len(finals))
	for _, fa := range finals {
		superseded[fa.JudgeID] = true
	}
	singles := latestSingles(answers, superseded)

	questions, err := sessionQuestions(ctx, st, sessionID)
	if err != nil {
		return nil, err
	}

	judges, err := judgeNames(ctx, st, finals, singles)
	if err != nil {
		return nil, err
	}

	var cs []contribution
	for _, fa := range finals {
		for _, item := range fa.Answers {
			q, ok := questions[item.QuestionID]
			if !ok {
				slog.WarnContext(ctx, "result: skip answer to a question outside the session",
					"session_id", sessionID, "team_id", teamID, "question_id", item.QuestionID)
				continue
			}
			cs = append(cs, contribution{
				judgeID: fa.JudgeID,
				entry:   ledgerEntry(q, judges[fa.JudgeID], item.Answer.String(), domain.SourceFinal),
			})
		}
	}
	for _, a := range singles {
		q, ok := questions[a.QuestionID]
		if !ok {
			slog.WarnContext(ctx, "result: skip answer to a question outside the session",
				"session_id", sessionID, "team_id", teamID, "question_id", a.QuestionID)
			continue
		}
		cs = append(cs, contribution{
			judgeID: a.JudgeID,
			entry:   ledgerEntry(q, judges[a.JudgeID], a.Text, domain.SourceSingle),
		})
	}

	slices.SortStableFunc(cs, func(a, b contribution) int {
		return cmp.Or(
			cmp.Compare(a.entry.JudgeName, b.entry.JudgeName),
			cmp.Compare(a.judgeID, b.judgeID),
		)
	})

	details := make([]domain.LedgerEntry, 0, len(cs))
	for _, c := range cs {
		details = append(details, c.entry)
	}

	res := &domain.SessionResult{
		SessionID:   sessionID,
		TeamID:      team.ID,
		TeamName:    team.Name,
		TotalPoints: Total(details),
		Details:     details,
	}

	if err := st.UpsertResult(ctx, *res); err != nil {
		return nil, fmt.Errorf("upsert result: %w", err)
	}

	return res, nil
}

func ledgerEntry(q domain.Question, judge, answer, source string) domain.LedgerEntry {
	o := scoring.Evaluate(q, answer)
	return domain.LedgerEntry{
		QuestionID:      q.ID,
		QuestionText:    q.Text,
		QuestionWeight:  scoring.QuestionWeight(q),
		JudgeName:       judge,
		Answer:          answer,
		Points:          o.Points,
		OptionWeight:    o.OptionWeight,
		MaxOptionWeight: o.MaxOptionWeight,
		Source:          source,
	}
}

// latestSingles returns the latest answer per (judge, question), ordered by answer ID.
// Answers of superseded judges are dropped.
func latestSingles(answers []domain.Answer, superseded map[int64]bool) []domain.Answer {
	type key struct {
		judge    int64
		question int64
	}

	latest := make(map[key]domain.Answer)
	for _, a := range answers {
		if superseded[a.JudgeID] {
			continue
		}
		k := key{a.JudgeID, a.QuestionID}
		if cur, ok := latest[k]; !ok || a.ID > cur.ID {
			latest[k] = a
		}
	}

	out := make([]domain.Answer, 0, len(latest))
	for _, a := range latest {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Answer) int { return cmp.Compare(a.ID, b.ID) })

	return out
}

// sessionQuestions returns the questions attached to the session by ID.
func sessionQuestions(ctx context.Context, st store.SessionStore, sessionID string) (map[int64]domain.Question, error) {
	sqs, err := st.ListSessionQuestions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session questions: %w", err)
	}

	qs := make(map[int64]domain.Question, len(sqs))
	for _, q := range sqs {
		qs[q.ID] = q
	}
	return qs, nil
}

func judgeNames(ctx context.Context, st store.JudgeStore, finals []domain.FinalAnswer, singles []domain.Answer) (map[int64]string, error) {
	var ids []int64
	for _, fa := range finals {
		ids = append(ids, fa.JudgeID)
	}
	for _, a := range singles {
		if !slices.Contains(ids, a.JudgeID) {
			ids = append(ids, a.JudgeID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	js, err := st.ListJudgesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list judges: %w", err)
	}

	names := make(map[int64]string, len(js))
	for _, j := range js {
		names[j.ID] = j.Name
	}
	return names, nil
}

// Total sums the ledger points, rounded to 2 decimal places.
func Total(details []domain.LedgerEntry) float64 {
	sum := decimal.Zero
	for _, d := range details {
		sum = sum.Add(decimal.NewFromFloat(d.Points))
	}
	return sum.Round(2).InexactFloat64()
}

func getSession(ctx context.Context, st store.SessionStore, id string) (*domain.Session, error) {
	ss, err := st.GetSession(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("session not found: session=%s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return ss, nil
}
