package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"food-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Store implements the quiz, attempt and user repositories on Postgres.
// Conditional transitions and statistics updates are single UPDATE statements.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const attemptColumns = `id, user_id, quiz_id, status, answers, score, correct_answers, total_questions,
	started_at, completed_at, time_spent, COALESCE(reward_badge, ''), COALESCE(reward_voucher, '')`

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) SaveQuestion(ctx context.Context, q domain.Question) error {
	incorrect := q.IncorrectAnswers
	if incorrect == nil {
		incorrect = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO questions (id, content, correct_answers, incorrect_answers, related_food)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			correct_answers = EXCLUDED.correct_answers,
			incorrect_answers = EXCLUDED.incorrect_answers,
			related_food = EXCLUDED.related_food`,
		q.ID, q.Content, q.CorrectAnswers, incorrect, nullString(q.RelatedFood))
	if err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}

// SaveQuiz upserts a quiz definition. Running statistics are left untouched.
func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	questionIDs := quiz.QuestionIDs
	if len(questionIDs) == 0 {
		for _, q := range quiz.Questions {
			questionIDs = append(questionIDs, q.ID)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quizzes (id, name, description, question_ids, time_limit, passing_score,
			reward_badge, reward_voucher, active, created_at, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			question_ids = EXCLUDED.question_ids,
			time_limit = EXCLUDED.time_limit,
			passing_score = EXCLUDED.passing_score,
			reward_badge = EXCLUDED.reward_badge,
			reward_voucher = EXCLUDED.reward_voucher,
			active = EXCLUDED.active,
			valid_until = EXCLUDED.valid_until`,
		quiz.ID, quiz.Name, quiz.Description, questionIDs, quiz.TimeLimit, quiz.PassingScore,
		nullString(quiz.RewardBadge), nullString(quiz.RewardVoucher), quiz.Active, quiz.CreatedAt, quiz.ValidUntil)
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}

func (s *Store) SaveUser(ctx context.Context, u domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, badges, vouchers)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username`,
		u.ID, u.Username, nonNil(u.Badges), nonNil(u.Vouchers))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz    domain.Quiz
		badge   *string
		voucher *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, question_ids, time_limit, passing_score, reward_badge, reward_voucher,
			active, created_at, valid_until, total_attempts, average_score, completion_rate, average_time_spent
		FROM quizzes WHERE id = $1`, quizID).Scan(
		&quiz.ID, &quiz.Name, &quiz.Description, &quiz.QuestionIDs, &quiz.TimeLimit, &quiz.PassingScore,
		&badge, &voucher, &quiz.Active, &quiz.CreatedAt, &quiz.ValidUntil,
		&quiz.Stats.TotalAttempts, &quiz.Stats.AverageScore, &quiz.Stats.CompletionRate, &quiz.Stats.AverageTimeSpent)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if badge != nil {
		quiz.RewardBadge = *badge
	}
	if voucher != nil {
		quiz.RewardVoucher = *voucher
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, correct_answers, incorrect_answers, COALESCE(related_food, '')
		FROM questions WHERE id = ANY($1)`, quiz.QuestionIDs)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Question, len(quiz.QuestionIDs))
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Content, &q.CorrectAnswers, &q.IncorrectAnswers, &q.RelatedFood); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}

	quiz.Questions = make([]domain.Question, 0, len(quiz.QuestionIDs))
	for _, id := range quiz.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			return domain.Quiz{}, fmt.Errorf("quiz %s references missing question %s", quizID, id)
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz, nil
}

func (s *Store) RecordCompletion(ctx context.Context, quizID string, score float64, timeSpent int) (domain.QuizStats, error) {
	var stats domain.QuizStats
	err := s.pool.QueryRow(ctx, `
		UPDATE quizzes SET
			average_score = (average_score * total_attempts + $2) / (total_attempts + 1),
			average_time_spent = (average_time_spent * total_attempts + $3) / (total_attempts + 1),
			completion_rate = (completion_rate * total_attempts + 100) / (total_attempts + 1),
			total_attempts = total_attempts + 1
		WHERE id = $1
		RETURNING total_attempts, average_score, completion_rate, average_time_spent`,
		quizID, score, float64(timeSpent)).Scan(
		&stats.TotalAttempts, &stats.AverageScore, &stats.CompletionRate, &stats.AverageTimeSpent)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizStats{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizStats{}, fmt.Errorf("record completion: %w", err)
	}
	return stats, nil
}

func (s *Store) CreateAttempt(ctx context.Context, at domain.Attempt) error {
	answers, err := json.Marshal(nonNilAnswers(at.Answers))
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_results (id, user_id, quiz_id, status, answers, score, correct_answers,
			total_questions, started_at, time_spent)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10)`,
		at.ID, at.UserID, at.QuizID, string(at.Status), string(answers), at.Score, at.CorrectAnswers,
		at.TotalQuestions, at.StartedAt, at.TimeSpent)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_results WHERE id = $1`, attemptID)
	at, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return at, err
}

func (s *Store) FindActiveAttempt(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM quiz_results
		WHERE user_id = $1 AND quiz_id = $2 AND status = 'in_progress'
		ORDER BY started_at DESC
		LIMIT 1`, userID, quizID)
	at, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	return at, err
}

func (s *Store) CompleteAttempt(ctx context.Context, attemptID string, c domain.Completion) (domain.Attempt, error) {
	answers, err := json.Marshal(nonNilAnswers(c.Answers))
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("encode answers: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE quiz_results SET
			status = 'completed',
			score = $2,
			correct_answers = $3,
			total_questions = $4,
			answers = $5::jsonb,
			completed_at = $6,
			time_spent = $7
		WHERE id = $1 AND status = 'in_progress'
		RETURNING `+attemptColumns,
		attemptID, c.Score, c.CorrectAnswers, c.TotalQuestions, string(answers), c.CompletedAt, c.TimeSpent)
	at, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	return at, err
}

func (s *Store) AbandonAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE quiz_results SET status = 'abandoned'
		WHERE id = $1 AND status = 'in_progress'
		RETURNING `+attemptColumns, attemptID)
	at, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	return at, err
}

func (s *Store) SetRewards(ctx context.Context, attemptID string, rewards domain.Rewards) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quiz_results SET reward_badge = $2, reward_voucher = $3 WHERE id = $1`,
		attemptID, nullString(rewards.Badge), nullString(rewards.Voucher))
	if err != nil {
		return fmt.Errorf("set rewards: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *Store) ListUserAttempts(ctx context.Context, userID string) ([]domain.Attempt, error) {
	return s.queryAttempts(ctx, `
		SELECT `+attemptColumns+` FROM quiz_results
		WHERE user_id = $1
		ORDER BY started_at DESC`, userID)
}

// ListCompletedAttempts fetches one page and the total count concurrently.
func (s *Store) ListCompletedAttempts(ctx context.Context, userID string, page domain.Page) ([]domain.Attempt, int, error) {
	var (
		attempts []domain.Attempt
		total    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		attempts, err = s.queryAttempts(gctx, `
			SELECT `+attemptColumns+` FROM quiz_results
			WHERE user_id = $1 AND status = 'completed'
			ORDER BY completed_at DESC
			LIMIT $2 OFFSET $3`, userID, page.Limit, page.Offset())
		return err
	})
	g.Go(func() error {
		err := s.pool.QueryRow(gctx, `
			SELECT count(*) FROM quiz_results WHERE user_id = $1 AND status = 'completed'`, userID).Scan(&total)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

func (s *Store) TopAttempts(ctx context.Context, quizID string, limit int) ([]domain.Attempt, error) {
	return s.queryAttempts(ctx, `
		SELECT `+attemptColumns+` FROM quiz_results
		WHERE quiz_id = $1 AND status = 'completed'
		ORDER BY score DESC, time_spent ASC, completed_at ASC, id ASC
		LIMIT $2`, quizID, limit)
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, `SELECT id, username, badges, vouchers FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Username, &u.Badges, &u.Vouchers)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func (s *Store) AddBadge(ctx context.Context, userID, badgeID string) error {
	return s.addToSet(ctx, "badges", userID, badgeID)
}

func (s *Store) AddVoucher(ctx context.Context, userID, voucherID string) error {
	return s.addToSet(ctx, "vouchers", userID, voucherID)
}

// addToSet appends value to an array column unless it is already present.
func (s *Store) addToSet(ctx context.Context, column, userID, value string) error {
	query := fmt.Sprintf(`
		UPDATE users SET %[1]s = CASE WHEN $2 = ANY(%[1]s) THEN %[1]s ELSE array_append(%[1]s, $2) END
		WHERE id = $1`, column)
	tag, err := s.pool.Exec(ctx, query, userID, value)
	if err != nil {
		return fmt.Errorf("add %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) queryAttempts(ctx context.Context, query string, args ...interface{}) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := []domain.Attempt{}
	for rows.Next() {
		at, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	return out, nil
}

func scanAttempt(row scanner) (domain.Attempt, error) {
	var (
		at      domain.Attempt
		status  string
		answers []byte
	)
	err := row.Scan(&at.ID, &at.UserID, &at.QuizID, &status, &answers, &at.Score, &at.CorrectAnswers,
		&at.TotalQuestions, &at.StartedAt, &at.CompletedAt, &at.TimeSpent, &at.Rewards.Badge, &at.Rewards.Voucher)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Attempt{}, err
		}
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	at.Status = domain.AttemptStatus(status)
	if err := json.Unmarshal(answers, &at.Answers); err != nil {
		return domain.Attempt{}, fmt.Errorf("decode answers: %w", err)
	}
	if at.Answers == nil {
		at.Answers = []domain.AnswerRecord{}
	}
	return at, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilAnswers(answers []domain.AnswerRecord) []domain.AnswerRecord {
	if answers == nil {
		return []domain.AnswerRecord{}
	}
	return answers
}
