package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"food-quiz-service/internal/domain"
)

// Store is an in-process implementation of the quiz, attempt and user
// repositories. A single mutex makes every conditional update atomic.
type Store struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
	quizzes   map[string]domain.Quiz
	attempts  map[string]domain.Attempt
	users     map[string]domain.User
}

func NewStore() *Store {
	return &Store{
		questions: make(map[string]domain.Question),
		quizzes:   make(map[string]domain.Quiz),
		attempts:  make(map[string]domain.Attempt),
		users:     make(map[string]domain.User),
	}
}

func (s *Store) SaveQuestion(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[q.ID] = q
	return nil
}

func (s *Store) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(quiz.QuestionIDs) == 0 {
		for _, q := range quiz.Questions {
			quiz.QuestionIDs = append(quiz.QuestionIDs, q.ID)
		}
	}
	quiz.Questions = nil
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *Store) SaveUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz.Questions = make([]domain.Question, 0, len(quiz.QuestionIDs))
	for _, id := range quiz.QuestionIDs {
		q, ok := s.questions[id]
		if !ok {
			return domain.Quiz{}, fmt.Errorf("quiz %s references missing question %s", quizID, id)
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	quiz.QuestionIDs = append([]string(nil), quiz.QuestionIDs...)
	return quiz, nil
}

func (s *Store) RecordCompletion(_ context.Context, quizID string, score float64, timeSpent int) (domain.QuizStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.QuizStats{}, domain.ErrQuizNotFound
	}
	quiz.Stats = quiz.Stats.Record(score, timeSpent)
	s.quizzes[quizID] = quiz
	return quiz.Stats, nil
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; exists {
		return fmt.Errorf("attempt %s already exists", attempt.ID)
	}
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(at), nil
}

func (s *Store) FindActiveAttempt(_ context.Context, userID, quizID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found  domain.Attempt
		exists bool
	)
	for _, at := range s.attempts {
		if at.UserID != userID || at.QuizID != quizID || at.Status != domain.StatusInProgress {
			continue
		}
		if !exists || at.StartedAt.After(found.StartedAt) {
			found, exists = at, true
		}
	}
	if !exists {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	return cloneAttempt(found), nil
}

func (s *Store) CompleteAttempt(_ context.Context, attemptID string, c domain.Completion) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.attempts[attemptID]
	if !ok || at.Status != domain.StatusInProgress {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	completedAt := c.CompletedAt
	at.Status = domain.StatusCompleted
	at.Score = c.Score
	at.CorrectAnswers = c.CorrectAnswers
	at.TotalQuestions = c.TotalQuestions
	at.Answers = append([]domain.AnswerRecord(nil), c.Answers...)
	at.CompletedAt = &completedAt
	at.TimeSpent = c.TimeSpent
	s.attempts[attemptID] = at
	return cloneAttempt(at), nil
}

func (s *Store) AbandonAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.attempts[attemptID]
	if !ok || at.Status != domain.StatusInProgress {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	at.Status = domain.StatusAbandoned
	s.attempts[attemptID] = at
	return cloneAttempt(at), nil
}

func (s *Store) SetRewards(_ context.Context, attemptID string, rewards domain.Rewards) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	at.Rewards = rewards
	s.attempts[attemptID] = at
	return nil
}

func (s *Store) ListUserAttempts(_ context.Context, userID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, at := range s.attempts {
		if at.UserID == userID {
			out = append(out, cloneAttempt(at))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) ListCompletedAttempts(_ context.Context, userID string, page domain.Page) ([]domain.Attempt, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var completed []domain.Attempt
	for _, at := range s.attempts {
		if at.UserID == userID && at.Status == domain.StatusCompleted {
			completed = append(completed, at)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CompletedAt.After(*completed[j].CompletedAt)
	})

	total := len(completed)
	start := page.Offset()
	if start >= total {
		return []domain.Attempt{}, total, nil
	}
	end := start + page.Limit
	if page.Limit <= 0 || end > total {
		end = total
	}
	out := make([]domain.Attempt, 0, end-start)
	for _, at := range completed[start:end] {
		out = append(out, cloneAttempt(at))
	}
	return out, total, nil
}

func (s *Store) TopAttempts(_ context.Context, quizID string, limit int) ([]domain.Attempt, error) {
	s.mu.RLock()
	var out []domain.Attempt
	for _, at := range s.attempts {
		if at.QuizID == quizID && at.Status == domain.StatusCompleted {
			out = append(out, cloneAttempt(at))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TimeSpent != b.TimeSpent {
			return a.TimeSpent < b.TimeSpent
		}
		return a.CompletedAt.Before(*b.CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	u.Badges = append([]string(nil), u.Badges...)
	u.Vouchers = append([]string(nil), u.Vouchers...)
	return u, nil
}

func (s *Store) AddBadge(_ context.Context, userID, badgeID string) error {
	return s.addToSet(userID, func(u *domain.User) *[]string { return &u.Badges }, badgeID)
}

func (s *Store) AddVoucher(_ context.Context, userID, voucherID string) error {
	return s.addToSet(userID, func(u *domain.User) *[]string { return &u.Vouchers }, voucherID)
}

func (s *Store) addToSet(userID string, field func(*domain.User) *[]string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	set := field(&u)
	for _, v := range *set {
		if v == value {
			return nil
		}
	}
	*set = append(append([]string(nil), *set...), value)
	s.users[userID] = u
	return nil
}

func cloneAttempt(at domain.Attempt) domain.Attempt {
	at.Answers = append([]domain.AnswerRecord{}, at.Answers...)
	if at.CompletedAt != nil {
		t := *at.CompletedAt
		at.CompletedAt = &t
	}
	return at
}
