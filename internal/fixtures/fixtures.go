package fixtures

import (
	"context"
	"fmt"
	"os"
	"time"

	"food-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// Seeder is implemented by every store that can be loaded from fixtures.
type Seeder interface {
	SaveQuestion(ctx context.Context, q domain.Question) error
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	SaveUser(ctx context.Context, u domain.User) error
}

// File is the on-disk fixture layout.
type File struct {
	Questions []domain.Question `yaml:"questions"`
	Quizzes   []Quiz            `yaml:"quizzes"`
	Users     []domain.User     `yaml:"users"`
}

type Quiz struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description"`
	Questions     []string   `yaml:"questions"`
	TimeLimit     int        `yaml:"timeLimit"`
	PassingScore  *float64   `yaml:"passingScore"`
	RewardBadge   string     `yaml:"rewardBadge"`
	RewardVoucher string     `yaml:"rewardVoucher"`
	Active        *bool      `yaml:"active"`
	ValidUntil    *time.Time `yaml:"validUntil"`
}

func (q Quiz) toDomain(now time.Time) domain.Quiz {
	quiz := domain.Quiz{
		ID:            q.ID,
		Name:          q.Name,
		Description:   q.Description,
		QuestionIDs:   q.Questions,
		TimeLimit:     q.TimeLimit,
		PassingScore:  domain.DefaultPassingScore,
		RewardBadge:   q.RewardBadge,
		RewardVoucher: q.RewardVoucher,
		Active:        true,
		CreatedAt:     now,
		ValidUntil:    q.ValidUntil,
	}
	if q.PassingScore != nil {
		quiz.PassingScore = *q.PassingScore
	}
	if q.Active != nil {
		quiz.Active = *q.Active
	}
	return quiz
}

// Load parses a fixture file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return f, nil
}

// Apply validates and writes the fixtures. Questions go first so quizzes
// never reference a missing question.
func Apply(ctx context.Context, s Seeder, f File, now time.Time) error {
	known := make(map[string]struct{}, len(f.Questions))
	for _, q := range f.Questions {
		if q.ID == "" || len(q.CorrectAnswers) == 0 {
			return domain.Wrap(domain.ErrValidation, "question %q needs an id and at least one correct answer", q.ID)
		}
		if err := s.SaveQuestion(ctx, q); err != nil {
			return err
		}
		known[q.ID] = struct{}{}
	}
	for _, fq := range f.Quizzes {
		quiz := fq.toDomain(now)
		if err := quiz.Validate(); err != nil {
			return err
		}
		for _, id := range quiz.QuestionIDs {
			if _, ok := known[id]; !ok {
				return domain.Wrap(domain.ErrValidation, "quiz %s references unknown question %s", quiz.ID, id)
			}
		}
		if err := s.SaveQuiz(ctx, quiz); err != nil {
			return err
		}
	}
	for _, u := range f.Users {
		if err := s.SaveUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// LoadAndApply is Load followed by Apply.
func LoadAndApply(ctx context.Context, s Seeder, path string, now time.Time) (File, error) {
	f, err := Load(path)
	if err != nil {
		return File{}, err
	}
	return f, Apply(ctx, s, f, now)
}
