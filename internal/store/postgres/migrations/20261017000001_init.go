package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 20261017000001_init.sql
var initSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, initSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TABLE IF EXISTS session_events, session_results, final_answers, answers, judges,
	sessions_questions, sessions_teams, sessions, questions, question_banks, teams;`)
			return err
		},
	)
}
