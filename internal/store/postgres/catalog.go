package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/judgeboard/internal/domain"
)

func scanTeam(r pgx.CollectableRow) (domain.Team, error) {
	var t domain.Team
	err := r.Scan(&t.ID, &t.Name, &t.Category)
	return t, err
}

func (s *Store) GetTeam(ctx context.Context, id int64) (*domain.Team, error) {
	var t domain.Team
	err := s.db.QueryRow(ctx, `SELECT id, name, category FROM teams WHERE id = $1;`, id).Scan(&t.ID, &t.Name, &t.Category)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) FindTeamByName(ctx context.Context, name string) (*domain.Team, error) {
	var t domain.Team
	err := s.db.QueryRow(ctx, `SELECT id, name, category FROM teams WHERE name = $1;`, name).Scan(&t.ID, &t.Name, &t.Category)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) FindTeamsByNames(ctx context.Context, names []string) ([]domain.Team, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, category FROM teams WHERE name = ANY($1) ORDER BY id;`, names)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanTeam)
}

func (s *Store) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, category FROM teams ORDER BY category, name;`)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanTeam)
}

func (s *Store) UpsertTeam(ctx context.Context, t domain.Team) (*domain.Team, error) {
	const stmt = `
INSERT INTO teams (name, category) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE
SET category = CASE WHEN EXCLUDED.category <> '' THEN EXCLUDED.category ELSE teams.category END
RETURNING id, name, category;`

	var out domain.Team
	if err := s.db.QueryRow(ctx, stmt, t.Name, t.Category).Scan(&out.ID, &out.Name, &out.Category); err != nil {
		return nil, err
	}
	return &out, nil
}

const (
	questionColumns  = `id, COALESCE(bank_id, 0), text, section, weight, choices, correct`
	questionColumnsQ = `q.id, COALESCE(q.bank_id, 0), q.text, q.section, q.weight, q.choices, q.correct`
)

func scanQuestion(r pgx.CollectableRow) (domain.Question, error) {
	var q domain.Question
	err := r.Scan(&q.ID, &q.BankID, &q.Text, &q.Section, &q.Weight, &q.Choices, &q.Correct)
	return q, err
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	var q domain.Question
	err := s.db.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1;`, id).
		Scan(&q.ID, &q.BankID, &q.Text, &q.Section, &q.Weight, &q.Choices, &q.Correct)
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

func (s *Store) GetQuestionsByIDs(ctx context.Context, ids []int64) ([]domain.Question, error) {
	const stmt = `
SELECT ` + questionColumnsQ + `
FROM unnest($1::BIGINT[]) WITH ORDINALITY AS u(id, ord) JOIN questions q ON q.id = u.id
ORDER BY u.ord;`

	rows, err := s.db.Query(ctx, stmt, ids)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanQuestion)
}

func (s *Store) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.db.Query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY id;`)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, scanQuestion)
}

func (s *Store) UpsertBank(ctx context.Context, name string) (*domain.QuestionBank, error) {
	const stmt = `
INSERT INTO question_banks (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name;`

	var b domain.QuestionBank
	if err := s.db.QueryRow(ctx, stmt, name).Scan(&b.ID, &b.Name); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateQuestions(ctx context.Context, qs []domain.Question) error {
	const stmt = `
INSERT INTO questions (bank_id, text, section, weight, choices, correct)
VALUES (NULLIF($1::BIGINT, 0), $2, $3, $4, $5, $6)
RETURNING id;`

	b := &pgx.Batch{}
	for i := range qs {
		q := &qs[i]
		choices := q.Choices
		if choices == nil {
			choices = []domain.Choice{}
		}
		b.Queue(stmt, q.BankID, q.Text, q.Section, q.Weight, choices, q.Correct).QueryRow(func(r pgx.Row) error {
			return r.Scan(&q.ID)
		})
	}

	return s.db.SendBatch(ctx, b).Close()
}

func (s *Store) ListBanks(ctx context.Context) ([]domain.QuestionBank, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM question_banks ORDER BY id;`)
	if err != nil {
		return nil, err
	}

	banks, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.QuestionBank, error) {
		var b domain.QuestionBank
		err := r.Scan(&b.ID, &b.Name)
		return b, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE bank_id IS NOT NULL ORDER BY id;`)
	if err != nil {
		return nil, err
	}

	qs, err := pgx.CollectRows(rows, scanQuestion)
	if err != nil {
		return nil, err
	}

	byBank := make(map[int64][]domain.Question, len(banks))
	for _, q := range qs {
		byBank[q.BankID] = append(byBank[q.BankID], q)
	}
	for i := range banks {
		banks[i].Questions = byBank[banks[i].ID]
	}

	return banks, nil
}
