package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/victornm/judgeboard/internal/domain"
)

// SeedFile is the YAML document loaded by the seed command.
type SeedFile struct {
	Teams []SeedTeam `yaml:"teams"`
	Banks []SeedBank `yaml:"banks"`
}

type SeedTeam struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type SeedBank struct {
	Name      string         `yaml:"name"`
	Questions []SeedQuestion `yaml:"questions"`
}

type SeedQuestion struct {
	Text    string       `yaml:"text"`
	Section string       `yaml:"section"`
	Weight  float64      `yaml:"weight"`
	Correct string       `yaml:"correct"`
	Choices []SeedChoice `yaml:"choices"`
}

type SeedChoice struct {
	Text   string  `yaml:"text"`
	Weight float64 `yaml:"weight"`
}

// LoadSeedFile reads a seed document from path.
func LoadSeedFile(path string) (*SeedFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeed(b)
}

func ParseSeed(b []byte) (*SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

type SeedResult struct {
	Teams     int
	Questions int
	// SkippedBanks lists the banks that already had questions.
	SkippedBanks []string
}

// Seed upserts the teams and fills the banks that have no questions yet, so it can be run repeatedly.
func (s *Service) Seed(ctx context.Context, f *SeedFile) (*SeedResult, error) {
	teams := make([]domain.Team, 0, len(f.Teams))
	for _, t := range f.Teams {
		teams = append(teams, domain.Team{Name: t.Name, Category: t.Category})
	}
	stored, err := s.UpsertTeams(ctx, teams)
	if err != nil {
		return nil, err
	}

	banks, err := s.st.ListBanks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	filled := make(map[string]bool, len(banks))
	for _, b := range banks {
		filled[b.Name] = len(b.Questions) > 0
	}

	res := &SeedResult{Teams: len(stored)}
	for _, b := range f.Banks {
		if filled[b.Name] {
			res.SkippedBanks = append(res.SkippedBanks, b.Name)
			continue
		}

		saved, err := s.SaveQuestions(ctx, SaveQuestionsRequest{BankName: b.Name, Questions: b.questions()})
		if err != nil {
			return nil, fmt.Errorf("bank %q: %w", b.Name, err)
		}
		res.Questions += len(saved.Questions)
	}

	slog.InfoContext(ctx, "catalog: seeded", "teams", res.Teams, "questions", res.Questions, "skipped_banks", res.SkippedBanks)

	return res, nil
}

func (b SeedBank) questions() []domain.Question {
	qs := make([]domain.Question, 0, len(b.Questions))
	for _, q := range b.Questions {
		choices := make([]domain.Choice, 0, len(q.Choices))
		for _, c := range q.Choices {
			choices = append(choices, domain.Choice{Text: c.Text, Weight: c.Weight})
		}
		qs = append(qs, domain.Question{
			Text:    q.Text,
			Section: q.Section,
			Weight:  q.Weight,
			Correct: q.Correct,
			Choices: choices,
		})
	}
	return qs
}
