// Package catalog manages the teams and question banks sessions are built from.
package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/store"
)

// Uncategorized groups the teams without a category.
const Uncategorized = "uncategorized"

type Config struct {
	Store store.Store
}

type Service struct {
	st store.Store
}

func NewService(c Config) *Service {
	return &Service{st: c.Store}
}

// HostData is everything the host screen needs to set up a session.
type HostData struct {
	Teams          []string
	TeamCategories map[string][]string
	// Questions holds one question per distinct text.
	Questions []domain.Question
	Banks     []domain.QuestionBank
	Sections  []string
}

func (s *Service) HostInit(ctx context.Context) (*HostData, error) {
	teams, err := s.st.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	qs, err := s.st.ListQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	banks, err := s.st.ListBanks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}

	data := &HostData{
		Teams:          make([]string, 0, len(teams)),
		TeamCategories: make(map[string][]string),
		Questions:      distinctQuestions(qs),
		Banks:          banks,
	}
	for _, t := range teams {
		data.Teams = append(data.Teams, t.Name)

		category := t.Category
		if category == "" {
			category = Uncategorized
		}
		data.TeamCategories[category] = append(data.TeamCategories[category], t.Name)
	}

	seen := make(map[string]bool)
	data.Sections = []string{}
	for _, q := range data.Questions {
		if seen[q.Section] {
			continue
		}
		seen[q.Section] = true
		data.Sections = append(data.Sections, q.Section)
	}

	return data, nil
}

func distinctQuestions(qs []domain.Question) []domain.Question {
	seen := make(map[string]bool, len(qs))
	out := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		if seen[q.Text] {
			continue
		}
		seen[q.Text] = true
		out = append(out, q)
	}
	return out
}

type SaveQuestionsRequest struct {
	BankName  string
	Questions []domain.Question
}

type SaveQuestionsResponse struct {
	Bank      *domain.QuestionBank
	Questions []domain.Question
}

// SaveQuestions adds the questions to the named bank, creating the bank if needed.
// Either every question is stored or none is.
func (s *Service) SaveQuestions(ctx context.Context, req SaveQuestionsRequest) (*SaveQuestionsResponse, error) {
	name := strings.TrimSpace(req.BankName)
	if name == "" {
		return nil, errors.Validation("a question bank name is required")
	}
	if len(req.Questions) == 0 {
		return nil, errors.Validation("no questions to save")
	}

	qs := make([]domain.Question, len(req.Questions))
	for i, q := range req.Questions {
		if err := validateQuestion(q); err != nil {
			return nil, errors.Validation("question %d: %s", i+1, err)
		}
		q.ID = 0
		if q.Weight == 0 {
			q.Weight = 1
		}
		qs[i] = q
	}

	var bank *domain.QuestionBank
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		b, err := tx.UpsertBank(ctx, name)
		if err != nil {
			return fmt.Errorf("upsert bank: %w", err)
		}
		bank = b

		for i := range qs {
			qs[i].BankID = b.ID
		}
		if err := tx.CreateQuestions(ctx, qs); err != nil {
			return fmt.Errorf("create questions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "catalog: questions saved", "bank", bank.Name, "count", len(qs))

	return &SaveQuestionsResponse{Bank: bank, Questions: qs}, nil
}

func validateQuestion(q domain.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return stderrors.New("text is required")
	}
	if len(q.Choices) == 0 {
		return stderrors.New("at least one choice is required")
	}
	if q.Weight < 0 {
		return stderrors.New("weight must not be negative")
	}
	for _, c := range q.Choices {
		if strings.TrimSpace(c.Text) == "" {
			return stderrors.New("choice text is required")
		}
		if c.Weight < 0 {
			return fmt.Errorf("choice %q: weight must not be negative", c.Text)
		}
	}
	return nil
}

func (s *Service) FindTeam(ctx context.Context, name string) (*domain.Team, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.Validation("team name is required")
	}

	t, err := s.st.FindTeamByName(ctx, name)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("team %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("find team: %w", err)
	}
	return t, nil
}

// UpsertTeams creates the missing teams and updates the category of the existing ones.
func (s *Service) UpsertTeams(ctx context.Context, teams []domain.Team) ([]domain.Team, error) {
	out := make([]domain.Team, 0, len(teams))
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		for _, t := range teams {
			t.Name = strings.TrimSpace(t.Name)
			if t.Name == "" {
				return errors.Validation("team name is required")
			}

			stored, err := tx.UpsertTeam(ctx, t)
			if err != nil {
				return fmt.Errorf("upsert team %q: %w", t.Name, err)
			}
			out = append(out, *stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
