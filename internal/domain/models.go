package domain

import "time"

// AttemptStatus is the lifecycle state of a quiz attempt.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusCompleted  AttemptStatus = "completed"
	StatusAbandoned  AttemptStatus = "abandoned"
)

const DefaultPassingScore = 60.0

// Question holds the prompt and its answer key. CorrectAnswers is treated as a set.
type Question struct {
	ID               string   `json:"id" bson:"_id" yaml:"id"`
	Content          string   `json:"content" bson:"content" yaml:"content"`
	CorrectAnswers   []string `json:"correctAnswers" bson:"correct_answers" yaml:"correctAnswers"`
	IncorrectAnswers []string `json:"incorrectAnswers,omitempty" bson:"incorrect_answers" yaml:"incorrectAnswers"`
	RelatedFood      string   `json:"relatedFood,omitempty" bson:"related_food,omitempty" yaml:"relatedFood"`
}

// Accepts reports whether answer is one of the question's correct answers.
func (q Question) Accepts(answer string) bool {
	for _, correct := range q.CorrectAnswers {
		if correct == answer {
			return true
		}
	}
	return false
}

// QuizStats is the running aggregate kept on each quiz.
type QuizStats struct {
	TotalAttempts    int     `json:"totalAttempts" bson:"total_attempts"`
	AverageScore     float64 `json:"averageScore" bson:"average_score"`
	CompletionRate   float64 `json:"completionRate" bson:"completion_rate"`
	AverageTimeSpent float64 `json:"averageTimeSpent" bson:"average_time_spent"`
}

// Record folds one completed submission into the running averages.
// Every recorded submission counts as fully completed.
func (s QuizStats) Record(score float64, timeSpent int) QuizStats {
	n := float64(s.TotalAttempts)
	return QuizStats{
		TotalAttempts:    s.TotalAttempts + 1,
		AverageScore:     (s.AverageScore*n + score) / (n + 1),
		CompletionRate:   (s.CompletionRate*n + 100) / (n + 1),
		AverageTimeSpent: (s.AverageTimeSpent*n + float64(timeSpent)) / (n + 1),
	}
}

// Quiz is a timed set of questions with optional rewards.
type Quiz struct {
	ID            string     `json:"id" bson:"_id"`
	Name          string     `json:"name" bson:"name"`
	Description   string     `json:"description,omitempty" bson:"description"`
	Questions     []Question `json:"questions" bson:"-"`
	QuestionIDs   []string   `json:"-" bson:"question_ids"`
	TimeLimit     int        `json:"timeLimit" bson:"time_limit"` // minutes
	PassingScore  float64    `json:"passingScore" bson:"passing_score"`
	RewardBadge   string     `json:"rewardBadge,omitempty" bson:"reward_badge,omitempty"`
	RewardVoucher string     `json:"rewardVoucher,omitempty" bson:"reward_voucher,omitempty"`
	Active        bool       `json:"active" bson:"active"`
	CreatedAt     time.Time  `json:"createdAt" bson:"created_at"`
	ValidUntil    *time.Time `json:"validUntil,omitempty" bson:"valid_until,omitempty"`
	Stats         QuizStats  `json:"statistics" bson:"statistics"`
}

// QuestionCount is the number of questions currently linked to the quiz.
func (q Quiz) QuestionCount() int {
	if len(q.Questions) > 0 {
		return len(q.Questions)
	}
	return len(q.QuestionIDs)
}

// Available reports whether the quiz can be started at now.
func (q Quiz) Available(now time.Time) bool {
	if !q.Active || q.QuestionCount() == 0 {
		return false
	}
	return q.ValidUntil == nil || q.ValidUntil.After(now)
}

// TimeLimitSeconds is the maximum time an attempt may take.
func (q Quiz) TimeLimitSeconds() int {
	return q.TimeLimit * 60
}

// Validate checks the structural invariants of a quiz definition.
func (q Quiz) Validate() error {
	switch {
	case q.QuestionCount() == 0:
		return Wrap(ErrValidation, "quiz %s must have at least one question", q.ID)
	case q.TimeLimit < 1 || q.TimeLimit > 120:
		return Wrap(ErrValidation, "quiz %s time limit must be between 1 and 120 minutes", q.ID)
	case q.PassingScore < 0 || q.PassingScore > 100:
		return Wrap(ErrValidation, "quiz %s passing score must be between 0 and 100", q.ID)
	case q.ValidUntil != nil && !q.ValidUntil.After(q.CreatedAt):
		return Wrap(ErrValidation, "quiz %s expiry must be after its creation date", q.ID)
	}
	return nil
}

// AnswerSubmission is one client-supplied answer.
type AnswerSubmission struct {
	QuestionID     string `json:"questionId"`
	SelectedAnswer string `json:"selectedAnswer"`
	TimeSpent      int    `json:"timeSpent"`
}

// AnswerRecord is a scored answer stored on the attempt.
type AnswerRecord struct {
	QuestionID     string `json:"questionId" bson:"question_id"`
	SelectedAnswer string `json:"selectedAnswer" bson:"selected_answer"`
	IsCorrect      bool   `json:"isCorrect" bson:"is_correct"`
	TimeSpent      int    `json:"timeSpent" bson:"time_spent"`
}

// Rewards records what an attempt granted. Empty fields mean nothing was granted.
type Rewards struct {
	Badge   string `json:"badge,omitempty" bson:"badge,omitempty"`
	Voucher string `json:"voucher,omitempty" bson:"voucher,omitempty"`
}

// Empty reports whether no reward was granted.
func (r Rewards) Empty() bool {
	return r.Badge == "" && r.Voucher == ""
}

// Attempt is a single pass of a user through a quiz (a quiz result).
type Attempt struct {
	ID             string         `json:"id" bson:"_id"`
	UserID         string         `json:"userId" bson:"user_id"`
	QuizID         string         `json:"quizId" bson:"quiz_id"`
	Status         AttemptStatus  `json:"status" bson:"status"`
	Answers        []AnswerRecord `json:"answers" bson:"answers"`
	Score          float64        `json:"score" bson:"score"`
	CorrectAnswers int            `json:"correctAnswers" bson:"correct_answers"`
	TotalQuestions int            `json:"totalQuestions" bson:"total_questions"`
	StartedAt      time.Time      `json:"startedAt" bson:"started_at"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty" bson:"completed_at,omitempty"`
	TimeSpent      int            `json:"timeSpent" bson:"time_spent"`
	Rewards        Rewards        `json:"rewards" bson:"rewards"`
}

// Completion is the write-back applied when an attempt is submitted.
type Completion struct {
	Score          float64
	CorrectAnswers int
	TotalQuestions int
	Answers        []AnswerRecord
	CompletedAt    time.Time
	TimeSpent      int
}

// ScoreResult is the output of scoring a submission.
type ScoreResult struct {
	Score          float64        `json:"score"`
	CorrectAnswers int            `json:"correctAnswers"`
	TotalQuestions int            `json:"totalQuestions"`
	IsHighScore    bool           `json:"isHighScore"`
	Answers        []AnswerRecord `json:"answers"`
}

// User is the subset of the user record the engine reads and mutates.
type User struct {
	ID       string   `json:"id" bson:"_id" yaml:"id"`
	Username string   `json:"username" bson:"username" yaml:"username"`
	Badges   []string `json:"badges" bson:"badges" yaml:"badges"`
	Vouchers []string `json:"vouchers" bson:"vouchers" yaml:"vouchers"`
}

// UserStatistics is derived on read from a user's attempts.
type UserStatistics struct {
	TotalQuizzes   int     `json:"totalQuizzes"`
	AverageScore   float64 `json:"averageScore"`
	TimeSpent      int     `json:"timeSpent"` // minutes
	CompletionRate float64 `json:"completionRate"`
	HighScoreRate  float64 `json:"highScoreRate"`
	TimeEfficiency float64 `json:"timeEfficiency"`
	RewardsEarned  int     `json:"rewardsEarned"`
}

// LeaderboardEntry is one ranked attempt.
type LeaderboardEntry struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Score       float64   `json:"score"`
	TimeSpent   int       `json:"timeSpent"`
	CompletedAt time.Time `json:"completedAt"`
}

// Leaderboard captures the ordered top attempts for a quiz.
type Leaderboard struct {
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Page selects a slice of an ordered listing.
type Page struct {
	Page  int
	Limit int
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Pagination describes a paged response.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// History is a page of completed attempts.
type History struct {
	Data       []Attempt  `json:"data"`
	Pagination Pagination `json:"pagination"`
}
