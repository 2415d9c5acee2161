package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Session represents one run of the trivia event.
type Session struct {
	ID               string
	HostToken        string
	Teams            []string
	CurrentTeamIndex int
	// CurrentTeamID is resolved when a question round starts.
	CurrentTeamID *int64
	QuestionIDs   []int64
	Status        Status
	TotalPoints   float64
	// Version is bumped on every update and guards compare-and-swap writes.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CurrentTeam returns the team name at the current index, or false if the index is out of range.
func (s *Session) CurrentTeam() (string, bool) {
	if s.CurrentTeamIndex < 0 || s.CurrentTeamIndex >= len(s.Teams) {
		return "", false
	}
	return s.Teams[s.CurrentTeamIndex], true
}

func (s *Session) Ended() bool {
	return s.Status == StatusEnded
}

type Team struct {
	ID       int64
	Name     string
	Category string
}

type Choice struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// Question is immutable once created. Correct is informational only, scoring uses choice weights.
type Question struct {
	ID      int64
	BankID  int64
	Text    string
	Section string
	Weight  float64
	Choices []Choice
	Correct string
}

type QuestionBank struct {
	ID        int64
	Name      string
	Questions []Question
}

type Judge struct {
	ID        int64
	Name      string
	Token     string
	Online    bool
	SessionID *string
	CreatedAt time.Time
}

// Answer is a single judge's submission for one question. Answers are append-only.
type Answer struct {
	ID         int64
	SessionID  string
	TeamID     int64
	JudgeID    int64
	QuestionID int64
	Text       string
	Points     float64
	CreatedAt  time.Time
}

// FinalAnswer is a judge's full answer sheet for a team, unique per (session, team, judge).
type FinalAnswer struct {
	SessionID string
	TeamID    int64
	JudgeID   int64
	Answers   []FinalAnswerItem
	UpdatedAt time.Time
}

type FinalAnswerItem struct {
	QuestionID int64       `json:"question_id"`
	Answer     AnswerValue `json:"answer"`
}

// AnswerValue is the submitted answer text. On the wire it is either a plain string or an object with a text field.
type AnswerValue string

func (v AnswerValue) String() string { return string(v) }

func (v *AnswerValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = AnswerValue(s)
		return nil
	}

	var o struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(b, &o); err != nil {
		return fmt.Errorf("answer must be a string or an object with text: %w", err)
	}
	if o.Text == nil {
		return fmt.Errorf("answer object has no text")
	}

	*v = AnswerValue(*o.Text)
	return nil
}

const (
	SourceFinal  = "final"
	SourceSingle = "single"
)

// LedgerEntry is one scored answer contributing to a team's result.
type LedgerEntry struct {
	QuestionID      int64   `json:"question_id"`
	QuestionText    string  `json:"question_text"`
	QuestionWeight  float64 `json:"question_weight"`
	JudgeName       string  `json:"judge_name"`
	Answer          string  `json:"answer"`
	Points          float64 `json:"points"`
	OptionWeight    float64 `json:"option_weight"`
	MaxOptionWeight float64 `json:"max_option_weight"`
	Source          string  `json:"source"`
}

// SessionResult is the per (session, team) total. TotalPoints always equals the rounded sum of Details points.
type SessionResult struct {
	SessionID   string
	TeamID      int64
	TeamName    string
	TotalPoints float64
	Details     []LedgerEntry
	UpdatedAt   time.Time
}

// Leaderboard is sorted by total points descending, ties by team name.
type Leaderboard struct {
	SessionID string
	Entries   []LeaderboardEntry
}

type LeaderboardEntry struct {
	TeamID      int64
	TeamName    string
	TotalPoints float64
}
