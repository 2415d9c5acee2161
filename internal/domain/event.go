package domain

import (
	"encoding/json"
	"time"
)

const (
	EventNameSessionCreated        = "session_created"
	EventNameQuestionsStarted      = "questions_started"
	EventNameTeamChanged           = "team_changed"
	EventNameAnswerSubmitted       = "answer_submitted"
	EventNameFinalAnswersSubmitted = "final_answers_submitted"
	EventNameLeaderboardUpdated    = "leaderboard_updated"
	EventNameSessionEnded          = "session_ended"
	EventNameJudgeJoined           = "judge_joined"
)

// EventNames lists every session event type.
var EventNames = []string{
	EventNameSessionCreated,
	EventNameQuestionsStarted,
	EventNameTeamChanged,
	EventNameAnswerSubmitted,
	EventNameFinalAnswersSubmitted,
	EventNameLeaderboardUpdated,
	EventNameSessionEnded,
	EventNameJudgeJoined,
}

// SessionEvent is an entry of the append-only session event log.
type SessionEvent struct {
	Seq       int64
	SessionID string
	Type      string
	Data      json.RawMessage
	CreatedAt time.Time
}

func (e SessionEvent) Name() string { return e.Type }

type EventSessionCreated struct {
	Teams []string `json:"teams"`
}

func (EventSessionCreated) Name() string { return EventNameSessionCreated }

type EventQuestionsStarted struct {
	Questions   []QuestionView `json:"questions"`
	CurrentTeam string         `json:"current_team"`
	TeamID      int64          `json:"team_id"`
}

func (EventQuestionsStarted) Name() string { return EventNameQuestionsStarted }

// QuestionView is the serialized form of a question in event payloads.
type QuestionView struct {
	ID      int64    `json:"id"`
	Text    string   `json:"text"`
	Section string   `json:"section"`
	Weight  float64  `json:"weight"`
	Choices []Choice `json:"choices"`
	Correct string   `json:"correct,omitempty"`
}

func NewQuestionView(q Question) QuestionView {
	return QuestionView{
		ID:      q.ID,
		Text:    q.Text,
		Section: q.Section,
		Weight:  q.Weight,
		Choices: q.Choices,
		Correct: q.Correct,
	}
}

type EventTeamChanged struct {
	CurrentTeam      string `json:"current_team"`
	CurrentTeamIndex int    `json:"current_team_index"`
}

func (EventTeamChanged) Name() string { return EventNameTeamChanged }

type EventAnswerSubmitted struct {
	JudgeName string  `json:"judge_name"`
	TeamName  string  `json:"team_name"`
	Answer    string  `json:"answer"`
	Points    float64 `json:"points"`
}

func (EventAnswerSubmitted) Name() string { return EventNameAnswerSubmitted }

type EventFinalAnswersSubmitted struct {
	JudgeName    string `json:"judge_name"`
	TeamName     string `json:"team_name"`
	TeamID       int64  `json:"team_id"`
	AnswersCount int    `json:"answers_count"`
}

func (EventFinalAnswersSubmitted) Name() string { return EventNameFinalAnswersSubmitted }

type EventLeaderboardUpdated struct {
	TeamID      int64   `json:"team_id"`
	TeamName    string  `json:"team_name"`
	TotalPoints float64 `json:"total_points"`
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

type EventSessionEnded struct {
	SessionID string    `json:"session_id"`
	EndedAt   time.Time `json:"ended_at"`
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }

type EventJudgeJoined struct {
	JudgeName string `json:"judge_name"`
	JudgeID   int64  `json:"judge_id"`
}

func (EventJudgeJoined) Name() string { return EventNameJudgeJoined }
