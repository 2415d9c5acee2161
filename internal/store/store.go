// Package store defines the persistence port of the judging core.
// Implementations must provide unique-key upserts, transactional multi-row writes
// and read-after-write consistency.
package store

import (
	"context"
	"errors"

	"github.com/victornm/judgeboard/internal/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a compare-and-swap update finds a different version.
	ErrConflict = errors.New("store: version conflict")
)

type Store interface {
	SessionStore
	TeamStore
	QuestionStore
	JudgeStore
	AnswerStore
	ResultStore
	EventStore

	// InTx runs fn in a transaction. The Store passed to fn must be used for all calls in the transaction.
	// The transaction is rolled back if fn returns an error.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	// UpdateSession writes s if the stored version equals s.Version, then increments s.Version.
	UpdateSession(ctx context.Context, s *domain.Session) error
	// LatestOpenSession returns the most recently created session that has not ended.
	LatestOpenSession(ctx context.Context) (*domain.Session, error)
	// ListEndedSessions returns ended sessions, newest first.
	ListEndedSessions(ctx context.Context) ([]domain.Session, error)
	LinkSessionTeams(ctx context.Context, sessionID string, teamIDs []int64) error
	// ListSessionTeams returns the teams linked to the session.
	ListSessionTeams(ctx context.Context, sessionID string) ([]domain.Team, error)
	// AttachQuestions links questions to the session, ignoring the ones already linked.
	AttachQuestions(ctx context.Context, sessionID string, questionIDs []int64) error
	// ListSessionQuestions returns the session questions in attachment order.
	ListSessionQuestions(ctx context.Context, sessionID string) ([]domain.Question, error)
}

type TeamStore interface {
	GetTeam(ctx context.Context, id int64) (*domain.Team, error)
	FindTeamByName(ctx context.Context, name string) (*domain.Team, error)
	FindTeamsByNames(ctx context.Context, names []string) ([]domain.Team, error)
	// ListTeams returns all teams ordered by category then name.
	ListTeams(ctx context.Context) ([]domain.Team, error)
	// UpsertTeam creates the team if it does not exist and returns the stored row.
	// A non-empty category overwrites the stored one.
	UpsertTeam(ctx context.Context, t domain.Team) (*domain.Team, error)
}

type QuestionStore interface {
	GetQuestion(ctx context.Context, id int64) (*domain.Question, error)
	GetQuestionsByIDs(ctx context.Context, ids []int64) ([]domain.Question, error)
	ListQuestions(ctx context.Context) ([]domain.Question, error)
	UpsertBank(ctx context.Context, name string) (*domain.QuestionBank, error)
	// CreateQuestions inserts the questions and fills their IDs.
	CreateQuestions(ctx context.Context, qs []domain.Question) error
	// ListBanks returns all banks with their questions.
	ListBanks(ctx context.Context) ([]domain.QuestionBank, error)
}

type JudgeStore interface {
	// UpsertJudge creates the judge by name or refreshes its token, online flag and session.
	UpsertJudge(ctx context.Context, j domain.Judge) (*domain.Judge, error)
	GetJudgeByToken(ctx context.Context, token string) (*domain.Judge, error)
	ListJudgesByIDs(ctx context.Context, ids []int64) ([]domain.Judge, error)
	ListOnlineJudges(ctx context.Context, sessionID string) ([]domain.Judge, error)
	SetJudgesOffline(ctx context.Context, sessionID string) error
}

type AnswerStore interface {
	// InsertAnswer appends a single answer and fills its ID.
	InsertAnswer(ctx context.Context, a *domain.Answer) error
	// ListAnswers returns the session answers ordered by ID. A zero teamID lists all teams.
	ListAnswers(ctx context.Context, sessionID string, teamID int64) ([]domain.Answer, error)
	// UpsertFinalAnswer replaces the batch stored for (session, team, judge).
	UpsertFinalAnswer(ctx context.Context, fa domain.FinalAnswer) error
	// ListFinalAnswers returns the session final answers ordered by team then judge. A zero teamID lists all teams.
	ListFinalAnswers(ctx context.Context, sessionID string, teamID int64) ([]domain.FinalAnswer, error)
}

type ResultStore interface {
	// LockResult blocks other transactions locking the same (session, team) until the calling transaction ends.
	// Reads after the lock see every answer committed by earlier holders.
	LockResult(ctx context.Context, sessionID string, teamID int64) error
	// UpsertResult overwrites the result stored for (session, team).
	UpsertResult(ctx context.Context, r domain.SessionResult) error
	ListResults(ctx context.Context, sessionID string) ([]domain.SessionResult, error)
}

type EventStore interface {
	// AppendEvent stores e and fills its Seq and CreatedAt.
	AppendEvent(ctx context.Context, e *domain.SessionEvent) error
	// ListEvents returns the session events with Seq greater than after, oldest first.
	ListEvents(ctx context.Context, sessionID string, after int64, limit int) ([]domain.SessionEvent, error)
}
