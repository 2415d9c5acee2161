// Package postgres implements store.Store on top of pgx.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/store"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
	db   querier
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) (err error) {
	if s.pool == nil {
		// Already inside a transaction.
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if err = fn(ctx, &Store{db: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func notFound(err error) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

const sessionColumns = `session_id, host_token, teams, current_team_index, current_team_id,
	current_question_ids, status, total_points, version, create_time, update_time`

func scanSession(r pgx.Row) (domain.Session, error) {
	var (
		ss     domain.Session
		status string
	)
	err := r.Scan(&ss.ID, &ss.HostToken, &ss.Teams, &ss.CurrentTeamIndex, &ss.CurrentTeamID,
		&ss.QuestionIDs, &status, &ss.TotalPoints, &ss.Version, &ss.CreatedAt, &ss.UpdatedAt)
	ss.Status = domain.Status(status)
	return ss, err
}

func (s *Store) CreateSession(ctx context.Context, ss *domain.Session) error {
	const stmt = `
INSERT INTO sessions (session_id, host_token, teams, current_team_index, current_question_ids, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING version, create_time, update_time;`

	ids := ss.QuestionIDs
	if ids == nil {
		ids = []int64{}
	}

	err := s.db.QueryRow(ctx, stmt, ss.ID, ss.HostToken, ss.Teams, ss.CurrentTeamIndex, ids, string(ss.Status)).
		Scan(&ss.Version, &ss.CreatedAt, &ss.UpdatedAt)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return store.ErrConflict
	}

	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	ss, err := scanSession(s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1;`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &ss, nil
}

func (s *Store) UpdateSession(ctx context.Context, ss *domain.Session) error {
	const stmt = `
UPDATE sessions
SET current_team_index = $3, current_team_id = $4, current_question_ids = $5, status = $6, total_points = $7,
	version = version + 1, update_time = now()
WHERE session_id = $1 AND version = $2
RETURNING version, update_time;`

	ids := ss.QuestionIDs
	if ids == nil {
		ids = []int64{}
	}

	err := s.db.QueryRow(ctx, stmt, ss.ID, ss.Version, ss.CurrentTeamIndex, ss.CurrentTeamID, ids,
		string(ss.Status), ss.TotalPoints).Scan(&ss.Version, &ss.UpdatedAt)
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id = $1);`, ss.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	return store.ErrConflict
}

func (s *Store) LatestOpenSession(ctx context.Context) (*domain.Session, error) {
	const stmt = `SELECT ` + sessionColumns + ` FROM sessions WHERE status <> 'ended' ORDER BY create_time DESC LIMIT 1;`

	ss, err := scanSession(s.db.QueryRow(ctx, stmt))
	if err != nil {
		return nil, notFound(err)
	}
	return &ss, nil
}

func (s *Store) ListEndedSessions(ctx context.Context) ([]domain.Session, error) {
	const stmt = `SELECT ` + sessionColumns + ` FROM sessions WHERE status = 'ended' ORDER BY create_time DESC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Session, error) {
		return scanSession(r)
	})
}

func (s *Store) LinkSessionTeams(ctx context.Context, sessionID string, teamIDs []int64) error {
	const stmt = `
INSERT INTO sessions_teams (session_id, team_id)
SELECT $1, t.id FROM unnest($2::BIGINT[]) AS t(id)
ON CONFLICT DO NOTHING;`

	_, err := s.db.Exec(ctx, stmt, sessionID, teamIDs)
	return err
}

func (s *Store) ListSessionTeams(ctx context.Context, sessionID string) ([]domain.Team, error) {
	const stmt = `
SELECT t.id, t.name, t.category
FROM sessions_teams st JOIN teams t ON t.id = st.team_id
WHERE st.session_id = $1
ORDER BY t.id;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanTeam)
}

func (s *Store) AttachQuestions(ctx context.Context, sessionID string, questionIDs []int64) error {
	const stmt = `
INSERT INTO sessions_questions (session_id, question_id)
SELECT $1, q.id
FROM unnest($2::BIGINT[]) WITH ORDINALITY AS u(id, ord)
JOIN questions q ON q.id = u.id
ORDER BY u.ord
ON CONFLICT (session_id, question_id) DO NOTHING;`

	_, err := s.db.Exec(ctx, stmt, sessionID, questionIDs)
	return err
}

func (s *Store) ListSessionQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	const stmt = `
SELECT ` + questionColumnsQ + `
FROM sessions_questions sq JOIN questions q ON q.id = sq.question_id
WHERE sq.session_id = $1
ORDER BY sq.id;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanQuestion)
}
