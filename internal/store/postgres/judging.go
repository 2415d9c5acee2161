package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/judgeboard/internal/domain"
)

const judgeColumns = `id, name, token, online, session_id, create_time`

func scanJudge(r pgx.CollectableRow) (domain.Judge, error) {
	var j domain.Judge
	err := r.Scan(&j.ID, &j.Name, &j.Token, &j.Online, &j.SessionID, &j.CreatedAt)
	return j, err
}

func (s *Store) UpsertJudge(ctx context.Context, j domain.Judge) (*domain.Judge, error) {
	const stmt = `
INSERT INTO judges (name, token, online, session_id) VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO UPDATE
SET token = EXCLUDED.token, online = EXCLUDED.online, session_id = EXCLUDED.session_id
RETURNING ` + judgeColumns + `;`

	var out domain.Judge
	err := s.db.QueryRow(ctx, stmt, j.Name, j.Token, j.Online, j.SessionID).
		Scan(&out.ID, &out.Name, &out.Token, &out.Online, &out.SessionID, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetJudgeByToken(ctx context.Context, token string) (*domain.Judge, error) {
	var j domain.Judge
	err := s.db.QueryRow(ctx, `SELECT `+judgeColumns+` FROM judges WHERE token = $1;`, token).
		Scan(&j.ID, &j.Name, &j.Token, &j.Online, &j.SessionID, &j.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &j, nil
}

func (s *Store) ListJudgesByIDs(ctx context.Context, ids []int64) ([]domain.Judge, error) {
	rows, err := s.db.Query(ctx, `SELECT `+judgeColumns+` FROM judges WHERE id = ANY($1) ORDER BY id;`, ids)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanJudge)
}

func (s *Store) ListOnlineJudges(ctx context.Context, sessionID string) ([]domain.Judge, error) {
	rows, err := s.db.Query(ctx, `SELECT `+judgeColumns+` FROM judges WHERE session_id = $1 AND online ORDER BY id;`, sessionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanJudge)
}

func (s *Store) SetJudgesOffline(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `UPDATE judges SET online = FALSE WHERE session_id = $1;`, sessionID)
	return err
}

func (s *Store) InsertAnswer(ctx context.Context, a *domain.Answer) error {
	const stmt = `
INSERT INTO answers (session_id, team_id, judge_id, question_id, answer, points)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, create_time;`

	return s.db.QueryRow(ctx, stmt, a.SessionID, a.TeamID, a.JudgeID, a.QuestionID, a.Text, a.Points).
		Scan(&a.ID, &a.CreatedAt)
}

func (s *Store) ListAnswers(ctx context.Context, sessionID string, teamID int64) ([]domain.Answer, error) {
	const stmt = `
SELECT id, session_id, team_id, judge_id, question_id, answer, points, create_time
FROM answers
WHERE session_id = $1 AND ($2::BIGINT = 0 OR team_id = $2)
ORDER BY id;`

	rows, err := s.db.Query(ctx, stmt, sessionID, teamID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Answer, error) {
		var a domain.Answer
		err := r.Scan(&a.ID, &a.SessionID, &a.TeamID, &a.JudgeID, &a.QuestionID, &a.Text, &a.Points, &a.CreatedAt)
		return a, err
	})
}

func (s *Store) UpsertFinalAnswer(ctx context.Context, fa domain.FinalAnswer) error {
	const stmt = `
INSERT INTO final_answers (session_id, team_id, judge_id, answers)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id, team_id, judge_id) DO UPDATE
SET answers = EXCLUDED.answers, update_time = now();`

	items := fa.Answers
	if items == nil {
		items = []domain.FinalAnswerItem{}
	}

	_, err := s.db.Exec(ctx, stmt, fa.SessionID, fa.TeamID, fa.JudgeID, items)
	return err
}

func (s *Store) ListFinalAnswers(ctx context.Context, sessionID string, teamID int64) ([]domain.FinalAnswer, error) {
	const stmt = `
SELECT session_id, team_id, judge_id, answers, update_time
FROM final_answers
WHERE session_id = $1 AND ($2::BIGINT = 0 OR team_id = $2)
ORDER BY team_id, judge_id;`

	rows, err := s.db.Query(ctx, stmt, sessionID, teamID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.FinalAnswer, error) {
		var fa domain.FinalAnswer
		err := r.Scan(&fa.SessionID, &fa.TeamID, &fa.JudgeID, &fa.Answers, &fa.UpdatedAt)
		return fa, err
	})
}

// LockResult takes a transaction-scoped advisory lock keyed by (session, team).
func (s *Store) LockResult(ctx context.Context, sessionID string, teamID int64) error {
	_, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, $2));`, sessionID, teamID)
	return err
}

func (s *Store) UpsertResult(ctx context.Context, r domain.SessionResult) error {
	const stmt = `
INSERT INTO session_results (session_id, team_id, total_points, details)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id, team_id) DO UPDATE
SET total_points = EXCLUDED.total_points, details = EXCLUDED.details, update_time = now();`

	details := r.Details
	if details == nil {
		details = []domain.LedgerEntry{}
	}

	_, err := s.db.Exec(ctx, stmt, r.SessionID, r.TeamID, r.TotalPoints, details)
	return err
}

func (s *Store) ListResults(ctx context.Context, sessionID string) ([]domain.SessionResult, error) {
	const stmt = `
SELECT r.session_id, r.team_id, t.name, r.total_points, r.details, r.update_time
FROM session_results r JOIN teams t ON t.id = r.team_id
WHERE r.session_id = $1
ORDER BY r.team_id;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.SessionResult, error) {
		var res domain.SessionResult
		err := r.Scan(&res.SessionID, &res.TeamID, &res.TeamName, &res.TotalPoints, &res.Details, &res.UpdatedAt)
		return res, err
	})
}

func (s *Store) AppendEvent(ctx context.Context, e *domain.SessionEvent) error {
	const stmt = `
INSERT INTO session_events (session_id, event_type, event_data)
VALUES ($1, $2, $3)
RETURNING seq, create_time;`

	return s.db.QueryRow(ctx, stmt, e.SessionID, e.Type, e.Data).Scan(&e.Seq, &e.CreatedAt)
}

func (s *Store) ListEvents(ctx context.Context, sessionID string, after int64, limit int) ([]domain.SessionEvent, error) {
	const stmt = `
SELECT seq, session_id, event_type, event_data, create_time
FROM session_events
WHERE session_id = $1 AND seq > $2
ORDER BY seq
LIMIT NULLIF($3::INTEGER, 0);`

	rows, err := s.db.Query(ctx, stmt, sessionID, after, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.SessionEvent, error) {
		var e domain.SessionEvent
		err := r.Scan(&e.Seq, &e.SessionID, &e.Type, &e.Data, &e.CreatedAt)
		return e, err
	})
}
