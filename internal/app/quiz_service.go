package app

import (
	"context"
	"errors"
	"math"
	"time"

	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/metrics"
	"food-quiz-service/internal/platform/logger"
	"github.com/google/uuid"
)

// QuizRepository loads question-populated quizzes and applies statistics updates.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// RecordCompletion atomically increments the attempt count and recomputes
	// the running averages, returning the new statistics.
	RecordCompletion(ctx context.Context, quizID string, score float64, timeSpent int) (domain.QuizStats, error)
}

// AttemptRepository persists quiz attempts (quiz results).
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	// FindActiveAttempt returns the most recently started in-progress attempt.
	FindActiveAttempt(ctx context.Context, userID, quizID string) (domain.Attempt, error)
	// CompleteAttempt applies c only if the attempt is still in progress,
	// otherwise it returns domain.ErrNoActiveAttempt.
	CompleteAttempt(ctx context.Context, attemptID string, c domain.Completion) (domain.Attempt, error)
	// AbandonAttempt moves an in-progress attempt to abandoned.
	AbandonAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	SetRewards(ctx context.Context, attemptID string, rewards domain.Rewards) error
	ListUserAttempts(ctx context.Context, userID string) ([]domain.Attempt, error)
	ListCompletedAttempts(ctx context.Context, userID string, page domain.Page) ([]domain.Attempt, int, error)
	TopAttempts(ctx context.Context, quizID string, limit int) ([]domain.Attempt, error)
}

// UserRepository reads users and grants rewards with add-if-absent semantics.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	AddBadge(ctx context.Context, userID, badgeID string) error
	AddVoucher(ctx context.Context, userID, voucherID string) error
}

// EventPublisher emits domain events to interested services.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// ReadCache caches derived read models.
type ReadCache interface {
	GetLeaderboard(ctx context.Context, quizID string) (domain.Leaderboard, bool)
	SetLeaderboard(ctx context.Context, lb domain.Leaderboard)
	GetUserStatistics(ctx context.Context, userID string) (domain.UserStatistics, bool)
	SetUserStatistics(ctx context.Context, userID string, stats domain.UserStatistics)
	Invalidate(ctx context.Context, quizID, userID string)
}

const (
	EventQuizStarted   = "quiz.started"
	EventQuizCompleted = "quiz.completed"
	EventRewardGranted = "reward.granted"

	DefaultLeaderboardSize = 3
)

// SubmitRequest carries a client submission. AttemptID is optional; without it
// the most recent in-progress attempt for (UserID, QuizID) is used.
type SubmitRequest struct {
	UserID    string
	QuizID    string
	AttemptID string
	Answers   []domain.AnswerSubmission
}

// StartResult is returned when an attempt begins.
type StartResult struct {
	Quiz       domain.Quiz    `json:"quiz"`
	QuizResult domain.Attempt `json:"quizResult"`
}

// SubmitResult is returned when an attempt is completed.
type SubmitResult struct {
	QuizResult  domain.Attempt `json:"quizResult"`
	Score       float64        `json:"score"`
	IsHighScore bool           `json:"isHighScore"`
	Rewards     domain.Rewards `json:"rewards"`
}

// QuizStatistics is the per-quiz statistics view.
type QuizStatistics struct {
	QuizID        string `json:"quizId"`
	QuestionCount int    `json:"questionCount"`
	domain.QuizStats
}

// QuizService contains the quiz attempt use cases.
type QuizService struct {
	quizzes  QuizRepository
	attempts AttemptRepository
	users    UserRepository
	rewards  *RewardIssuer
	stats    *StatisticsAggregator
	hub      *LeaderboardHub
	events   EventPublisher
	cache    ReadCache
	log      *logger.Logger
	now      func() time.Time
	topN     int
}

// Option customises a QuizService.
type Option func(*QuizService)

func WithClock(now func() time.Time) Option { return func(s *QuizService) { s.now = now } }
func WithLogger(log *logger.Logger) Option { return func(s *QuizService) { s.log = log } }
func WithPublisher(p EventPublisher) Option { return func(s *QuizService) { s.events = p } }
func WithReadCache(c ReadCache) Option { return func(s *QuizService) { s.cache = c } }
func WithHub(h *LeaderboardHub) Option { return func(s *QuizService) { s.hub = h } }
func WithLeaderboardSize(n int) Option { return func(s *QuizService) { s.topN = n } }

func NewQuizService(quizzes QuizRepository, attempts AttemptRepository, users UserRepository, opts ...Option) *QuizService {
	s := &QuizService{
		quizzes:  quizzes,
		attempts: attempts,
		users:    users,
		hub:      NewLeaderboardHub(),
		events:   nopPublisher{},
		cache:    nopCache{},
		log:      logger.Nop(),
		now:      time.Now,
		topN:     DefaultLeaderboardSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.topN <= 0 {
		s.topN = DefaultLeaderboardSize
	}
	s.log = s.log.With("component", "QuizService")
	s.rewards = NewRewardIssuer(users, attempts, s.log)
	s.stats = NewStatisticsAggregator(quizzes)
	return s
}

// Start opens a new in-progress attempt for an available quiz.
func (s *QuizService) Start(ctx context.Context, quizID, userID string) (StartResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}
	now := s.now()
	if !quiz.Available(now) {
		return StartResult{}, domain.ErrQuizNotAvailable
	}

	attempt := domain.Attempt{
		ID:             uuid.NewString(),
		UserID:         userID,
		QuizID:         quiz.ID,
		Status:         domain.StatusInProgress,
		Answers:        []domain.AnswerRecord{},
		TotalQuestions: quiz.QuestionCount(),
		StartedAt:      now,
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return StartResult{}, err
	}
	metrics.AttemptsStarted.Inc()
	s.cache.Invalidate(ctx, quiz.ID, userID)
	s.log.Info("Quiz started", "user_id", userID, "quiz_id", quiz.ID, "attempt_id", attempt.ID)
	s.publish(ctx, EventQuizStarted, map[string]any{
		"attemptId": attempt.ID,
		"quizId":    quiz.ID,
		"userId":    userID,
		"startedAt": attempt.StartedAt,
	})
	return StartResult{Quiz: quiz, QuizResult: attempt}, nil
}

// Submit scores an in-progress attempt, completes it, updates the quiz
// statistics and grants rewards. A reward recipient that does not exist fails
// the submission before anything is written.
func (s *QuizService) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	result, err := s.submit(ctx, req)
	if err != nil {
		metrics.ObserveSubmission(string(domain.KindOf(err)))
		if domain.KindOf(err) == domain.KindServer {
			s.log.Error("Submit failed", "error", err, "user_id", req.UserID, "quiz_id", req.QuizID, "attempt_id", req.AttemptID)
		}
		return SubmitResult{}, err
	}
	metrics.ObserveSubmission("completed")
	return result, nil
}

func (s *QuizService) submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if len(req.Answers) == 0 {
		return SubmitResult{}, domain.ErrEmptyAnswers
	}

	attempt, err := s.activeAttempt(ctx, req)
	if err != nil {
		return SubmitResult{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return SubmitResult{}, err
	}

	completedAt := s.now()
	if completedAt.Before(attempt.StartedAt) {
		completedAt = attempt.StartedAt
	}
	timeSpent := int(completedAt.Sub(attempt.StartedAt) / time.Second)
	if timeSpent > quiz.TimeLimitSeconds() {
		return SubmitResult{}, domain.Wrap(domain.ErrTimeLimitExceeded,
			"Time spent (%ds) exceeds quiz time limit (%ds)", timeSpent, quiz.TimeLimitSeconds())
	}

	score, err := Score(quiz, req.Answers)
	if err != nil {
		return SubmitResult{}, err
	}
	if s.rewards.Eligible(quiz, score) {
		if _, err := s.users.GetUser(ctx, attempt.UserID); err != nil {
			return SubmitResult{}, err
		}
	}

	completed, err := s.attempts.CompleteAttempt(ctx, attempt.ID, domain.Completion{
		Score:          score.Score,
		CorrectAnswers: score.CorrectAnswers,
		TotalQuestions: score.TotalQuestions,
		Answers:        score.Answers,
		CompletedAt:    completedAt,
		TimeSpent:      timeSpent,
	})
	if err != nil {
		return SubmitResult{}, err
	}
	metrics.Scores.Observe(score.Score)

	if _, err := s.stats.RecordCompletion(ctx, quiz.ID, score.Score, timeSpent); err != nil {
		return SubmitResult{}, err
	}

	rewards, err := s.rewards.AwardIfEligible(ctx, completed.UserID, quiz, score, completed.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	completed.Rewards = rewards

	s.log.Info("Quiz completed",
		"user_id", completed.UserID, "quiz_id", quiz.ID, "attempt_id", completed.ID,
		"score", score.Score, "high_score", score.IsHighScore, "time_spent", timeSpent)
	s.afterCompletion(ctx, completed, score, rewards)

	return SubmitResult{
		QuizResult:  completed,
		Score:       score.Score,
		IsHighScore: score.IsHighScore,
		Rewards:     rewards,
	}, nil
}

func (s *QuizService) activeAttempt(ctx context.Context, req SubmitRequest) (domain.Attempt, error) {
	if req.AttemptID == "" {
		if req.QuizID == "" {
			return domain.Attempt{}, domain.Wrap(domain.ErrValidation, "quizId is required")
		}
		return s.attempts.FindActiveAttempt(ctx, req.UserID, req.QuizID)
	}

	attempt, err := s.attempts.GetAttempt(ctx, req.AttemptID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != req.UserID || attempt.Status != domain.StatusInProgress {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	if req.QuizID != "" && attempt.QuizID != req.QuizID {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	return attempt, nil
}

func (s *QuizService) afterCompletion(ctx context.Context, attempt domain.Attempt, score domain.ScoreResult, rewards domain.Rewards) {
	s.cache.Invalidate(ctx, attempt.QuizID, attempt.UserID)

	if s.hub.Subscribers(attempt.QuizID) > 0 {
		err := s.hub.Refresh(attempt.QuizID, func() (domain.Leaderboard, error) {
			return s.rankLeaderboard(ctx, attempt.QuizID)
		})
		if err != nil {
			s.log.Warn("Leaderboard refresh failed", "quiz_id", attempt.QuizID, "error", err)
		}
	}

	s.publish(ctx, EventQuizCompleted, map[string]any{
		"attemptId":   attempt.ID,
		"quizId":      attempt.QuizID,
		"userId":      attempt.UserID,
		"score":       score.Score,
		"isHighScore": score.IsHighScore,
		"timeSpent":   attempt.TimeSpent,
	})
	if rewards.Badge != "" {
		metrics.RewardsGranted.WithLabelValues("badge").Inc()
	}
	if rewards.Voucher != "" {
		metrics.RewardsGranted.WithLabelValues("voucher").Inc()
	}
	if !rewards.Empty() {
		s.publish(ctx, EventRewardGranted, map[string]any{
			"attemptId": attempt.ID,
			"quizId":    attempt.QuizID,
			"userId":    attempt.UserID,
			"badge":     rewards.Badge,
			"voucher":   rewards.Voucher,
		})
	}
}

// Abandon marks the caller's most recent in-progress attempt on quizID as abandoned.
func (s *QuizService) Abandon(ctx context.Context, quizID, userID string) (domain.Attempt, error) {
	attempt, err := s.attempts.FindActiveAttempt(ctx, userID, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	abandoned, err := s.attempts.AbandonAttempt(ctx, attempt.ID)
	if err != nil {
		return domain.Attempt{}, err
	}
	metrics.AttemptsAbandoned.Inc()
	s.cache.Invalidate(ctx, quizID, userID)
	s.log.Info("Quiz abandoned", "user_id", userID, "quiz_id", quizID, "attempt_id", attempt.ID)
	return abandoned, nil
}

// QuizStatistics returns the running statistics of a quiz.
func (s *QuizService) QuizStatistics(ctx context.Context, quizID string) (QuizStatistics, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizStatistics{}, err
	}
	return QuizStatistics{
		QuizID:        quiz.ID,
		QuestionCount: quiz.QuestionCount(),
		QuizStats:     quiz.Stats,
	}, nil
}

// UserStatistics derives a user's statistics from their attempts.
func (s *QuizService) UserStatistics(ctx context.Context, userID string) (domain.UserStatistics, error) {
	if cached, ok := s.cache.GetUserStatistics(ctx, userID); ok {
		return cached, nil
	}

	attempts, err := s.attempts.ListUserAttempts(ctx, userID)
	if err != nil {
		return domain.UserStatistics{}, err
	}

	thresholds := make(map[string]float64)
	for _, at := range attempts {
		if at.Status != domain.StatusCompleted {
			continue
		}
		if _, ok := thresholds[at.QuizID]; ok {
			continue
		}
		quiz, err := s.quizzes.GetQuiz(ctx, at.QuizID)
		switch {
		case errors.Is(err, domain.ErrQuizNotFound):
			s.log.Warn("Quiz missing for statistics, using default passing score", "quiz_id", at.QuizID, "user_id", userID)
			thresholds[at.QuizID] = domain.DefaultPassingScore
		case err != nil:
			return domain.UserStatistics{}, err
		default:
			thresholds[at.QuizID] = quiz.PassingScore
		}
	}

	stats := UserStatistics(attempts, func(quizID string) float64 { return thresholds[quizID] })
	s.cache.SetUserStatistics(ctx, userID, stats)
	return stats, nil
}

// History pages through a user's completed attempts, newest first.
func (s *QuizService) History(ctx context.Context, userID string, page domain.Page) (domain.History, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.Limit < 1 {
		page.Limit = 10
	}
	if page.Limit > 100 {
		page.Limit = 100
	}

	results, total, err := s.attempts.ListCompletedAttempts(ctx, userID, page)
	if err != nil {
		return domain.History{}, err
	}
	if results == nil {
		results = []domain.Attempt{}
	}
	return domain.History{
		Data: results,
		Pagination: domain.Pagination{
			Total: total,
			Page:  page.Page,
			Limit: page.Limit,
			Pages: int(math.Ceil(float64(total) / float64(page.Limit))),
		},
	}, nil
}

// Result returns one attempt owned by userID.
func (s *QuizService) Result(ctx context.Context, userID, attemptID string) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != userID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

// Leaderboard returns the top completed attempts of a quiz.
func (s *QuizService) Leaderboard(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	if cached, ok := s.cache.GetLeaderboard(ctx, quizID); ok {
		return cached, nil
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Leaderboard{}, err
	}
	lb, err := s.rankLeaderboard(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	s.cache.SetLeaderboard(ctx, lb)
	return lb, nil
}

// SubscribeLeaderboard streams leaderboard snapshots for a quiz, starting with
// the current one. The caller must invoke the returned cancel function.
func (s *QuizService) SubscribeLeaderboard(ctx context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	initial, err := s.Leaderboard(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(quizID, initial)
	return ch, cancel, nil
}

func (s *QuizService) rankLeaderboard(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	top, err := s.attempts.TopAttempts(ctx, quizID, s.topN)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	RankAttempts(top)
	if len(top) > s.topN {
		top = top[:s.topN]
	}

	names := make(map[string]string, len(top))
	entries := make([]domain.LeaderboardEntry, 0, len(top))
	for _, at := range top {
		name, ok := names[at.UserID]
		if !ok {
			user, err := s.users.GetUser(ctx, at.UserID)
			switch {
			case errors.Is(err, domain.ErrUserNotFound):
				s.log.Warn("Leaderboard user missing", "user_id", at.UserID, "quiz_id", quizID)
			case err != nil:
				return domain.Leaderboard{}, err
			default:
				name = user.Username
			}
			names[at.UserID] = name
		}
		entry := domain.LeaderboardEntry{
			UserID:    at.UserID,
			Username:  name,
			Score:     at.Score,
			TimeSpent: at.TimeSpent,
		}
		if at.CompletedAt != nil {
			entry.CompletedAt = *at.CompletedAt
		}
		entries = append(entries, entry)
	}
	return domain.Leaderboard{QuizID: quizID, Entries: entries, UpdatedAt: s.now()}, nil
}

func (s *QuizService) publish(ctx context.Context, eventType string, payload any) {
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		s.log.Warn("Event publish failed", "event", eventType, "error", err)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

type nopCache struct{}

func (nopCache) GetLeaderboard(context.Context, string) (domain.Leaderboard, bool) {
	return domain.Leaderboard{}, false
}
func (nopCache) SetLeaderboard(context.Context, domain.Leaderboard) {}
func (nopCache) GetUserStatistics(context.Context, string) (domain.UserStatistics, bool) {
	return domain.UserStatistics{}, false
}
func (nopCache) SetUserStatistics(context.Context, string, domain.UserStatistics) {}
func (nopCache) Invalidate(context.Context, string, string)                    {}
