// Package memory is an in-process implementation of store.Store.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/store"
)

type finalKey struct {
	session string
	team    int64
	judge   int64
}

type resultKey struct {
	session string
	team    int64
}

// data holds stored rows. Stored values are never mutated in place, writes replace them.
type data struct {
	sessions         map[string]domain.Session
	sessionOrder     []string
	sessionTeams     map[string][]int64
	sessionQuestions map[string][]int64
	teams            map[int64]domain.Team
	questions        map[int64]domain.Question
	banks            map[int64]domain.QuestionBank
	judges           map[int64]domain.Judge
	answers          []domain.Answer
	finals           map[finalKey]domain.FinalAnswer
	results          map[resultKey]domain.SessionResult
	events           []domain.SessionEvent

	lastID int64
}

func newData() *data {
	return &data{
		sessions:         make(map[string]domain.Session),
		sessionTeams:     make(map[string][]int64),
		sessionQuestions: make(map[string][]int64),
		teams:            make(map[int64]domain.Team),
		questions:        make(map[int64]domain.Question),
		banks:            make(map[int64]domain.QuestionBank),
		judges:           make(map[int64]domain.Judge),
		finals:           make(map[finalKey]domain.FinalAnswer),
		results:          make(map[resultKey]domain.SessionResult),
	}
}

func (d *data) clone() *data {
	return &data{
		sessions:         cloneMap(d.sessions),
		sessionOrder:     slices.Clone(d.sessionOrder),
		sessionTeams:     cloneMap(d.sessionTeams),
		sessionQuestions: cloneMap(d.sessionQuestions),
		teams:            cloneMap(d.teams),
		questions:        cloneMap(d.questions),
		banks:            cloneMap(d.banks),
		judges:           cloneMap(d.judges),
		answers:          slices.Clone(d.answers),
		finals:           cloneMap(d.finals),
		results:          cloneMap(d.results),
		events:           slices.Clone(d.events),
		lastID:           d.lastID,
	}
}

func (d *data) nextID() int64 {
	d.lastID++
	return d.lastID
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

type state struct {
	mu sync.Mutex
	// txMu serializes transactions against writes made outside them, so a rollback only undoes its own writes.
	txMu sync.Mutex
	d    *data
	now  func() time.Time
}

// Store keeps everything in memory. Transactions are serialized and rolled back by restoring a snapshot.
type Store struct {
	*state
	inTx bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: &state{
		d:   newData(),
		now: func() time.Time { return time.Now().UTC() },
	}}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.d.clone()
	s.mu.Unlock()

	if err := fn(ctx, &Store{state: s.state, inTx: true}); err != nil {
		s.mu.Lock()
		s.d = snapshot
		s.mu.Unlock()
		return err
	}

	return nil
}

// lockWrite locks for a write and returns the unlock function.
func (s *Store) lockWrite() func() {
	if !s.inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()

	return func() {
		s.mu.Unlock()
		if !s.inTx {
			s.txMu.Unlock()
		}
	}
}

func copySession(s domain.Session) *domain.Session {
	s.Teams = slices.Clone(s.Teams)
	s.QuestionIDs = slices.Clone(s.QuestionIDs)
	if s.CurrentTeamID != nil {
		id := *s.CurrentTeamID
		s.CurrentTeamID = &id
	}
	return &s
}

func (s *Store) CreateSession(_ context.Context, ss *domain.Session) error {
	defer s.lockWrite()()

	if _, ok := s.d.sessions[ss.ID]; ok {
		return store.ErrConflict
	}

	now := s.now()
	if ss.CreatedAt.IsZero() {
		ss.CreatedAt = now
	}
	ss.UpdatedAt = now
	ss.Version = 1

	s.d.sessions[ss.ID] = *copySession(*ss)
	s.d.sessionOrder = append(s.d.sessionOrder, ss.ID)
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.d.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySession(ss), nil
}

func (s *Store) UpdateSession(_ context.Context, ss *domain.Session) error {
	defer s.lockWrite()()

	cur, ok := s.d.sessions[ss.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != ss.Version {
		return store.ErrConflict
	}

	ss.Version++
	ss.UpdatedAt = s.now()
	s.d.sessions[ss.ID] = *copySession(*ss)
	return nil
}

func (s *Store) LatestOpenSession(_ context.Context) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.d.sessionOrder) - 1; i >= 0; i-- {
		ss := s.d.sessions[s.d.sessionOrder[i]]
		if !ss.Ended() {
			return copySession(ss), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListEndedSessions(_ context.Context) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Session
	for i := len(s.d.sessionOrder) - 1; i >= 0; i-- {
		ss := s.d.sessions[s.d.sessionOrder[i]]
		if ss.Ended() {
			out = append(out, *copySession(ss))
		}
	}
	return out, nil
}

func (s *Store) LinkSessionTeams(_ context.Context, sessionID string, teamIDs []int64) error {
	defer s.lockWrite()()

	linked := slices.Clone(s.d.sessionTeams[sessionID])
	for _, id := range teamIDs {
		if !slices.Contains(linked, id) {
			linked = append(linked, id)
		}
	}
	s.d.sessionTeams[sessionID] = linked
	return nil
}

func (s *Store) ListSessionTeams(_ context.Context, sessionID string) ([]domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Team, 0, len(s.d.sessionTeams[sessionID]))
	for _, id := range s.d.sessionTeams[sessionID] {
		if t, ok := s.d.teams[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) AttachQuestions(_ context.Context, sessionID string, questionIDs []int64) error {
	defer s.lockWrite()()

	attached := slices.Clone(s.d.sessionQuestions[sessionID])
	for _, id := range questionIDs {
		if _, ok := s.d.questions[id]; !ok {
			continue
		}
		if !slices.Contains(attached, id) {
			attached = append(attached, id)
		}
	}
	s.d.sessionQuestions[sessionID] = attached
	return nil
}

func (s *Store) ListSessionQuestions(_ context.Context, sessionID string) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Question, 0, len(s.d.sessionQuestions[sessionID]))
	for _, id := range s.d.sessionQuestions[sessionID] {
		out = append(out, copyQuestion(s.d.questions[id]))
	}
	return out, nil
}

func (s *Store) GetTeam(_ context.Context, id int64) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.d.teams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) FindTeamByName(_ context.Context, name string) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.findTeam(name); ok {
		return &t, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) findTeam(name string) (domain.Team, bool) {
	for _, t := range s.d.teams {
		if t.Name == name {
			return t, true
		}
	}
	return domain.Team{}, false
}

func (s *Store) FindTeamsByNames(_ context.Context, names []string) ([]domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Team
	for _, t := range s.d.teams {
		if slices.Contains(names, t.Name) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Team) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) ListTeams(_ context.Context) ([]domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Team, 0, len(s.d.teams))
	for _, t := range s.d.teams {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b domain.Team) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

func (s *Store) UpsertTeam(_ context.Context, t domain.Team) (*domain.Team, error) {
	defer s.lockWrite()()

	if cur, ok := s.findTeam(t.Name); ok {
		if t.Category != "" && t.Category != cur.Category {
			cur.Category = t.Category
			s.d.teams[cur.ID] = cur
		}
		return &cur, nil
	}

	t.ID = s.d.nextID()
	s.d.teams[t.ID] = t
	return &t, nil
}

func copyQuestion(q domain.Question) domain.Question {
	q.Choices = slices.Clone(q.Choices)
	return q
}

func (s *Store) GetQuestion(_ context.Context, id int64) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.d.questions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	q = copyQuestion(q)
	return &q, nil
}

func (s *Store) GetQuestionsByIDs(_ context.Context, ids []int64) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Question
	for _, id := range ids {
		if q, ok := s.d.questions[id]; ok {
			out = append(out, copyQuestion(q))
		}
	}
	return out, nil
}

func (s *Store) ListQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedQuestions(func(domain.Question) bool { return true }), nil
}

func (s *Store) sortedQuestions(keep func(domain.Question) bool) []domain.Question {
	var out []domain.Question
	for _, q := range s.d.questions {
		if keep(q) {
			out = append(out, copyQuestion(q))
		}
	}
	slices.SortFunc(out, func(a, b domain.Question) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *Store) UpsertBank(_ context.Context, name string) (*domain.QuestionBank, error) {
	defer s.lockWrite()()

	for _, b := range s.d.banks {
		if b.Name == name {
			return &b, nil
		}
	}

	b := domain.QuestionBank{ID: s.d.nextID(), Name: name}
	s.d.banks[b.ID] = b
	return &b, nil
}

func (s *Store) CreateQuestions(_ context.Context, qs []domain.Question) error {
	defer s.lockWrite()()

	for i := range qs {
		qs[i].ID = s.d.nextID()
		s.d.questions[qs[i].ID] = copyQuestion(qs[i])
	}
	return nil
}

func (s *Store) ListBanks(_ context.Context) ([]domain.QuestionBank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.QuestionBank, 0, len(s.d.banks))
	for _, b := range s.d.banks {
		b.Questions = s.sortedQuestions(func(q domain.Question) bool { return q.BankID == b.ID })
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b domain.QuestionBank) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func copyJudge(j domain.Judge) *domain.Judge {
	if j.SessionID != nil {
		id := *j.SessionID
		j.SessionID = &id
	}
	return &j
}

func (s *Store) UpsertJudge(_ context.Context, j domain.Judge) (*domain.Judge, error) {
	defer s.lockWrite()()

	for _, cur := range s.d.judges {
		if cur.Name == j.Name {
			cur.Token = j.Token
			cur.Online = j.Online
			cur.SessionID = j.SessionID
			s.d.judges[cur.ID] = *copyJudge(cur)
			return copyJudge(cur), nil
		}
	}

	j.ID = s.d.nextID()
	j.CreatedAt = s.now()
	s.d.judges[j.ID] = *copyJudge(j)
	return copyJudge(j), nil
}

func (s *Store) GetJudgeByToken(_ context.Context, token string) (*domain.Judge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.d.judges {
		if j.Token == token {
			return copyJudge(j), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListJudgesByIDs(_ context.Context, ids []int64) ([]domain.Judge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Judge
	for _, id := range ids {
		if j, ok := s.d.judges[id]; ok {
			out = append(out, *copyJudge(j))
		}
	}
	return out, nil
}

func (s *Store) ListOnlineJudges(_ context.Context, sessionID string) ([]domain.Judge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Judge
	for _, j := range s.d.judges {
		if j.Online && j.SessionID != nil && *j.SessionID == sessionID {
			out = append(out, *copyJudge(j))
		}
	}
	slices.SortFunc(out, func(a, b domain.Judge) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) SetJudgesOffline(_ context.Context, sessionID string) error {
	defer s.lockWrite()()

	for id, j := range s.d.judges {
		if j.SessionID != nil && *j.SessionID == sessionID {
			j.Online = false
			s.d.judges[id] = j
		}
	}
	return nil
}

func (s *Store) InsertAnswer(_ context.Context, a *domain.Answer) error {
	defer s.lockWrite()()

	a.ID = s.d.nextID()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.d.answers = append(s.d.answers, *a)
	return nil
}

func (s *Store) ListAnswers(_ context.Context, sessionID string, teamID int64) ([]domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Answer
	for _, a := range s.d.answers {
		if a.SessionID == sessionID && (teamID == 0 || a.TeamID == teamID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) UpsertFinalAnswer(_ context.Context, fa domain.FinalAnswer) error {
	defer s.lockWrite()()

	fa.Answers = slices.Clone(fa.Answers)
	fa.UpdatedAt = s.now()
	s.d.finals[finalKey{fa.SessionID, fa.TeamID, fa.JudgeID}] = fa
	return nil
}

func (s *Store) ListFinalAnswers(_ context.Context, sessionID string, teamID int64) ([]domain.FinalAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.FinalAnswer
	for k, fa := range s.d.finals {
		if k.session == sessionID && (teamID == 0 || k.team == teamID) {
			fa.Answers = slices.Clone(fa.Answers)
			out = append(out, fa)
		}
	}
	slices.SortFunc(out, func(a, b domain.FinalAnswer) int {
		return cmp.Or(cmp.Compare(a.TeamID, b.TeamID), cmp.Compare(a.JudgeID, b.JudgeID))
	})
	return out, nil
}

// LockResult is a no-op, transactions are already serialized.
func (s *Store) LockResult(_ context.Context, _ string, _ int64) error {
	return nil
}

func (s *Store) UpsertResult(_ context.Context, r domain.SessionResult) error {
	defer s.lockWrite()()

	r.Details = slices.Clone(r.Details)
	r.UpdatedAt = s.now()
	s.d.results[resultKey{r.SessionID, r.TeamID}] = r
	return nil
}

func (s *Store) ListResults(_ context.Context, sessionID string) ([]domain.SessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SessionResult
	for k, r := range s.d.results {
		if k.session != sessionID {
			continue
		}
		r.Details = slices.Clone(r.Details)
		r.TeamName = s.d.teams[r.TeamID].Name
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.SessionResult) int { return cmp.Compare(a.TeamID, b.TeamID) })
	return out, nil
}

func (s *Store) AppendEvent(_ context.Context, e *domain.SessionEvent) error {
	defer s.lockWrite()()

	e.Seq = s.d.nextID()
	e.CreatedAt = s.now()
	s.d.events = append(s.d.events, *e)
	return nil
}

func (s *Store) ListEvents(_ context.Context, sessionID string, after int64, limit int) ([]domain.SessionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SessionEvent
	for _, e := range s.d.events {
		if e.SessionID != sessionID || e.Seq <= after {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
