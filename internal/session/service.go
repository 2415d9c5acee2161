package session

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/event"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/store"
	"github.com/victornm/judgeboard/internal/telemetry"
)

const (
	defaultJoinPIN = "1234"

	// maxUpdateAttempts bounds the compare-and-swap retries of ChangeTeam.
	maxUpdateAttempts = 3
)

type Config struct {
	Store   store.Store
	Emitter event.Emitter
	// JoinPIN is the shared secret judges present to join a session.
	JoinPIN string
}

type Service struct {
	st  store.Store
	em  event.Emitter
	pin string
}

func NewService(c Config) *Service {
	pin := c.JoinPIN
	if pin == "" {
		pin = defaultJoinPIN
	}

	return &Service{
		st:  c.Store,
		em:  c.Emitter,
		pin: pin,
	}
}

// CreateSessionRequest represents a request to create a new judging session.
type CreateSessionRequest struct {
	// Teams is the ordered team rotation of the session.
	Teams []string
}

// CreateSession creates a new session in the waiting state, pointing at the first team.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	teams, err := normalizeTeams(req.Teams)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	ss := &domain.Session{
		ID:        id.String(),
		HostToken: uuid.NewString(),
		Teams:     teams,
		Status:    domain.StatusWaiting,
	}

	err = s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.CreateSession(ctx, ss); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		known, err := tx.FindTeamsByNames(ctx, teams)
		if err != nil {
			return fmt.Errorf("find teams: %w", err)
		}
		if len(known) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(known))
		for _, t := range known {
			ids = append(ids, t.ID)
		}
		return tx.LinkSessionTeams(ctx, ss.ID, ids)
	})
	if err != nil {
		return nil, err
	}

	telemetry.SessionTransition(string(domain.StatusWaiting))
	event.Notify(ctx, s.em, ss.ID, domain.EventSessionCreated{Teams: teams})

	return ss, nil
}

func normalizeTeams(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, errors.Validation("teams are required")
	}

	seen := make(map[string]bool, len(names))
	teams := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, errors.Validation("team name must not be empty")
		}
		if seen[n] {
			return nil, errors.Validation("duplicate team name: %s", n)
		}
		seen[n] = true
		teams = append(teams, n)
	}

	return teams, nil
}

type StartQuestionsRequest struct {
	SessionID   string
	HostToken   string
	QuestionIDs []int64
}

type StartQuestionsResponse struct {
	Session   *domain.Session
	Team      domain.Team
	Questions []domain.Question
}

// StartQuestions assigns a question round to the current team and activates the session.
// A missing Team row for the current team name is created.
func (s *Service) StartQuestions(ctx context.Context, req StartQuestionsRequest) (*StartQuestionsResponse, error) {
	ids := uniqueIDs(req.QuestionIDs)
	if len(ids) == 0 {
		return nil, errors.Validation("question ids are required")
	}

	var resp StartQuestionsResponse
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		ss, err := findMutable(ctx, tx, req.SessionID, req.HostToken)
		if err != nil {
			return err
		}

		name, ok := ss.CurrentTeam()
		if !ok {
			return errors.NotFound("no team at current index: session=%s, index=%d", ss.ID, ss.CurrentTeamIndex)
		}

		qs, err := tx.GetQuestionsByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("get questions: %w", err)
		}
		if len(qs) != len(ids) {
			return errors.NotFound("question not found: session=%s, questions=%v", ss.ID, missingIDs(ids, qs))
		}

		if err := tx.AttachQuestions(ctx, ss.ID, ids); err != nil {
			return fmt.Errorf("attach questions: %w", err)
		}

		team, err := ensureTeam(ctx, tx, name)
		if err != nil {
			return err
		}
		if err := tx.LinkSessionTeams(ctx, ss.ID, []int64{team.ID}); err != nil {
			return fmt.Errorf("link team: %w", err)
		}

		ss.QuestionIDs = ids
		ss.CurrentTeamID = &team.ID
		ss.Status = domain.StatusActive
		if err := tx.UpdateSession(ctx, ss); err != nil {
			return updateError(ss.ID, err)
		}

		resp = StartQuestionsResponse{Session: ss, Team: *team, Questions: qs}
		return nil
	})
	if err != nil {
		return nil, err
	}

	views := make([]domain.QuestionView, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		views = append(views, domain.NewQuestionView(q))
	}

	telemetry.SessionTransition(string(domain.StatusActive))
	event.Notify(ctx, s.em, resp.Session.ID, domain.EventQuestionsStarted{
		Questions:   views,
		CurrentTeam: resp.Team.Name,
		TeamID:      resp.Team.ID,
	})

	return &resp, nil
}

// ensureTeam returns the team with the given name, creating it if absent.
// The same name always resolves to the same team.
func ensureTeam(ctx context.Context, st store.TeamStore, name string) (*domain.Team, error) {
	t, err := st.FindTeamByName(ctx, name)
	if err == nil {
		return t, nil
	}
	if !stderrors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find team: %w", err)
	}

	t, err = st.UpsertTeam(ctx, domain.Team{Name: name})
	if err != nil {
		return nil, fmt.Errorf("upsert team: %w", err)
	}

	slog.InfoContext(ctx, "session: created missing team", "team", t.Name, "team_id", t.ID)
	return t, nil
}

type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

type ChangeTeamRequest struct {
	SessionID string
	HostToken string
	Direction Direction
}

// ChangeTeam moves the current team pointer one step. Moving past either end leaves the pointer unchanged.
func (s *Service) ChangeTeam(ctx context.Context, req ChangeTeamRequest) (*domain.Session, error) {
	if req.Direction != DirectionNext && req.Direction != DirectionPrevious {
		return nil, errors.Validation("invalid direction: %q", req.Direction)
	}

	var ss *domain.Session
	for attempt := 1; ; attempt++ {
		var err error
		ss, err = findMutable(ctx, s.st, req.SessionID, req.HostToken)
		if err != nil {
			return nil, err
		}

		idx := ss.CurrentTeamIndex
		if req.Direction == DirectionNext {
			idx = min(idx+1, len(ss.Teams)-1)
		} else {
			idx = max(idx-1, 0)
		}
		if idx == ss.CurrentTeamIndex {
			break
		}

		ss.CurrentTeamIndex = idx
		ss.CurrentTeamID = nil
		t, err := s.st.FindTeamByName(ctx, ss.Teams[idx])
		switch {
		case err == nil:
			ss.CurrentTeamID = &t.ID
		case !stderrors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("find team: %w", err)
		}

		err = s.st.UpdateSession(ctx, ss)
		if stderrors.Is(err, store.ErrConflict) && attempt < maxUpdateAttempts {
			slog.WarnContext(ctx, "session: change team conflict, retrying", "session_id", ss.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, updateError(ss.ID, err)
		}
		break
	}

	name, _ := ss.CurrentTeam()
	event.Notify(ctx, s.em, ss.ID, domain.EventTeamChanged{
		CurrentTeam:      name,
		CurrentTeamIndex: ss.CurrentTeamIndex,
	})

	return ss, nil
}

type EndSessionRequest struct {
	SessionID string
	HostToken string
}

// EndSession moves the session to its terminal state, freezes its total points and marks its judges offline.
func (s *Service) EndSession(ctx context.Context, req EndSessionRequest) (*domain.Session, error) {
	var ss *domain.Session
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		ss, err = findMutable(ctx, tx, req.SessionID, req.HostToken)
		if err != nil {
			return err
		}

		total, err := result.SessionTotal(ctx, tx, ss.ID)
		if err != nil {
			return err
		}

		ss.Status = domain.StatusEnded
		ss.TotalPoints = total
		if err := tx.UpdateSession(ctx, ss); err != nil {
			return updateError(ss.ID, err)
		}

		if err := tx.SetJudgesOffline(ctx, ss.ID); err != nil {
			return fmt.Errorf("set judges offline: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.SessionTransition(string(domain.StatusEnded))
	event.Notify(ctx, s.em, ss.ID, domain.EventSessionEnded{
		SessionID: ss.ID,
		EndedAt:   ss.UpdatedAt,
	})

	return ss, nil
}

type JoinJudgeRequest struct {
	PIN  string
	Name string
	// SessionID is optional, the latest open session is used when empty.
	SessionID string
}

type JoinJudgeResponse struct {
	Judge *domain.Judge
	// Session is nil when there is no open session to join.
	Session *domain.Session
}

// JoinJudge registers a judge by name, or re-activates it with a fresh token.
func (s *Service) JoinJudge(ctx context.Context, req JoinJudgeRequest) (*JoinJudgeResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.Validation("judge name is required")
	}

	if subtle.ConstantTimeCompare([]byte(req.PIN), []byte(s.pin)) != 1 {
		return nil, errors.Unauthenticated("invalid join pin")
	}

	var ss *domain.Session
	if req.SessionID != "" {
		var err error
		if ss, err = Find(ctx, s.st, req.SessionID); err != nil {
			return nil, err
		}
		if ss.Ended() {
			return nil, errors.TerminalState(ss.ID)
		}
	} else {
		var err error
		ss, err = s.st.LatestOpenSession(ctx)
		if err != nil && !stderrors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("latest open session: %w", err)
		}
	}

	j := domain.Judge{
		Name:   name,
		Token:  uuid.NewString(),
		Online: true,
	}
	if ss != nil {
		j.SessionID = &ss.ID
	}

	judge, err := s.st.UpsertJudge(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("upsert judge: %w", err)
	}

	if ss != nil {
		event.Notify(ctx, s.em, ss.ID, domain.EventJudgeJoined{
			JudgeName: judge.Name,
			JudgeID:   judge.ID,
		})
	}

	return &JoinJudgeResponse{Judge: judge, Session: ss}, nil
}

type GetStateRequest struct {
	SessionID string
}

type State struct {
	Session     *domain.Session
	CurrentTeam string
	// Questions is the question round currently assigned, in assignment order.
	Questions []domain.Question
}

func (s *Service) GetState(ctx context.Context, req GetStateRequest) (*State, error) {
	ss, err := Find(ctx, s.st, req.SessionID)
	if err != nil {
		return nil, err
	}

	st := &State{Session: ss}
	st.CurrentTeam, _ = ss.CurrentTeam()

	if len(ss.QuestionIDs) > 0 {
		if st.Questions, err = s.st.GetQuestionsByIDs(ctx, ss.QuestionIDs); err != nil {
			return nil, fmt.Errorf("get questions: %w", err)
		}
	}

	return st, nil
}

type ListJudgesRequest struct {
	SessionID string
}

// ListJudges returns the judges currently online in the session.
func (s *Service) ListJudges(ctx context.Context, req ListJudgesRequest) ([]domain.Judge, error) {
	if _, err := Find(ctx, s.st, req.SessionID); err != nil {
		return nil, err
	}

	js, err := s.st.ListOnlineJudges(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("list judges: %w", err)
	}

	return js, nil
}

func updateError(sessionID string, err error) error {
	if stderrors.Is(err, store.ErrConflict) {
		return errors.New(errors.CodeAborted,
			errors.WithMessagef("session was modified concurrently: session=%s", sessionID),
			errors.WithCause(err))
	}
	return fmt.Errorf("update session: %w", err)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missingIDs(ids []int64, qs []domain.Question) []int64 {
	found := make(map[int64]bool, len(qs))
	for _, q := range qs {
		found[q.ID] = true
	}

	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
