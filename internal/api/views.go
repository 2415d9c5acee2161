package api

import (
	"time"

	"github.com/victornm/judgeboard/internal/catalog"
	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/notify"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/session"
	"github.com/victornm/judgeboard/internal/snapshot"
)

type (
	Session struct {
		SessionID        string    `json:"session_id"`
		Teams            []string  `json:"teams"`
		CurrentTeamIndex int       `json:"current_team_index"`
		CurrentTeam      string    `json:"current_team"`
		CurrentTeamID    *int64    `json:"current_team_id"`
		QuestionIDs      []int64   `json:"question_ids"`
		Status           string    `json:"status"`
		TotalPoints      float64   `json:"total_points"`
		CreatedAt        time.Time `json:"created_at"`
		UpdatedAt        time.Time `json:"updated_at"`
	}

	Team struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Category string `json:"category,omitempty"`
	}

	Judge struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Online bool   `json:"online"`
	}

	State struct {
		Session     Session               `json:"session"`
		CurrentTeam string                `json:"current_team"`
		Questions   []domain.QuestionView `json:"questions"`
	}

	Leaderboard struct {
		SessionID string             `json:"session_id"`
		Entries   []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank        int     `json:"rank"`
		TeamID      int64   `json:"team_id"`
		TeamName    string  `json:"team_name"`
		TotalPoints float64 `json:"total_points"`
	}

	Result struct {
		TeamID      int64                `json:"team_id"`
		TeamName    string               `json:"team_name"`
		TotalPoints float64              `json:"total_points"`
		Details     []domain.LedgerEntry `json:"details"`
	}

	SnapshotLine struct {
		JudgeName    string  `json:"judge_name"`
		QuestionID   int64   `json:"question_id,omitempty"`
		QuestionText string  `json:"question_text,omitempty"`
		Answer       string  `json:"answer"`
		Points       float64 `json:"points"`
		Source       string  `json:"source"`
		AnswersCount int     `json:"answers_count,omitempty"`
	}

	Snapshot struct {
		State         State                     `json:"state"`
		Judges        []Judge                   `json:"judges"`
		AnswersByTeam map[string][]SnapshotLine `json:"answers_by_team"`
		Leaderboard   Leaderboard               `json:"leaderboard"`
	}

	Bank struct {
		ID        int64                 `json:"id"`
		Name      string                `json:"name"`
		Questions []domain.QuestionView `json:"questions"`
	}

	HostData struct {
		Teams          []string              `json:"teams"`
		TeamCategories map[string][]string   `json:"team_categories"`
		Questions      []domain.QuestionView `json:"questions"`
		Banks          []Bank                `json:"question_banks"`
		Sections       []string              `json:"sections"`
	}

	EndedSession struct {
		SessionID string    `json:"session_id"`
		CreatedAt time.Time `json:"created_at"`
		Results   []Result  `json:"results"`
	}
)

func newSession(ss *domain.Session) Session {
	current, _ := ss.CurrentTeam()
	ids := ss.QuestionIDs
	if ids == nil {
		ids = []int64{}
	}

	return Session{
		SessionID:        ss.ID,
		Teams:            ss.Teams,
		CurrentTeamIndex: ss.CurrentTeamIndex,
		CurrentTeam:      current,
		CurrentTeamID:    ss.CurrentTeamID,
		QuestionIDs:      ids,
		Status:           string(ss.Status),
		TotalPoints:      ss.TotalPoints,
		CreatedAt:        ss.CreatedAt,
		UpdatedAt:        ss.UpdatedAt,
	}
}

func newTeam(t domain.Team) Team {
	return Team{ID: t.ID, Name: t.Name, Category: t.Category}
}

func newJudges(js []domain.Judge) []Judge {
	out := make([]Judge, 0, len(js))
	for _, j := range js {
		out = append(out, Judge{ID: j.ID, Name: j.Name, Online: j.Online})
	}
	return out
}

func newQuestions(qs []domain.Question) []domain.QuestionView {
	out := make([]domain.QuestionView, 0, len(qs))
	for _, q := range qs {
		out = append(out, domain.NewQuestionView(q))
	}
	return out
}

func newState(s *session.State) State {
	return State{
		Session:     newSession(s.Session),
		CurrentTeam: s.CurrentTeam,
		Questions:   newQuestions(s.Questions),
	}
}

func newLeaderboard(l *domain.Leaderboard) Leaderboard {
	out := Leaderboard{
		SessionID: l.SessionID,
		Entries:   make([]LeaderboardEntry, 0, len(l.Entries)),
	}
	for i, e := range l.Entries {
		out.Entries = append(out.Entries, LeaderboardEntry{
			Rank:        i + 1,
			TeamID:      e.TeamID,
			TeamName:    e.TeamName,
			TotalPoints: e.TotalPoints,
		})
	}
	return out
}

func newResult(r *domain.SessionResult) Result {
	details := r.Details
	if details == nil {
		details = []domain.LedgerEntry{}
	}
	return Result{
		TeamID:      r.TeamID,
		TeamName:    r.TeamName,
		TotalPoints: r.TotalPoints,
		Details:     details,
	}
}

func newSnapshot(s *snapshot.Snapshot) Snapshot {
	byTeam := make(map[string][]SnapshotLine, len(s.AnswersByTeam))
	for team, lines := range s.AnswersByTeam {
		for _, l := range lines {
			byTeam[team] = append(byTeam[team], SnapshotLine(l))
		}
	}

	return Snapshot{
		State:         newState(s.State),
		Judges:        newJudges(s.Judges),
		AnswersByTeam: byTeam,
		Leaderboard:   newLeaderboard(s.Leaderboard),
	}
}

func newHostData(d *catalog.HostData) HostData {
	banks := make([]Bank, 0, len(d.Banks))
	for _, b := range d.Banks {
		banks = append(banks, Bank{ID: b.ID, Name: b.Name, Questions: newQuestions(b.Questions)})
	}

	return HostData{
		Teams:          d.Teams,
		TeamCategories: d.TeamCategories,
		Questions:      newQuestions(d.Questions),
		Banks:          banks,
		Sections:       d.Sections,
	}
}

func newEndedSessions(es []result.EndedSession) []EndedSession {
	out := make([]EndedSession, 0, len(es))
	for _, e := range es {
		rs := make([]Result, 0, len(e.Results))
		for i := range e.Results {
			rs = append(rs, newResult(&e.Results[i]))
		}
		out = append(out, EndedSession{
			SessionID: e.Session.ID,
			CreatedAt: e.Session.CreatedAt,
			Results:   rs,
		})
	}
	return out
}

func newMessages(es []domain.SessionEvent) []notify.Message {
	out := make([]notify.Message, 0, len(es))
	for _, e := range es {
		out = append(out, notify.NewMessage(e))
	}
	return out
}
