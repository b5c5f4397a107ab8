package app

import (
	"context"
	"math"
	"sort"

	"food-quiz-service/internal/domain"
)

// StatisticsAggregator owns the per-quiz running statistics and derives
// per-user statistics on read. Nothing else writes quiz statistics.
type StatisticsAggregator struct {
	quizzes QuizRepository
}

func NewStatisticsAggregator(quizzes QuizRepository) *StatisticsAggregator {
	return &StatisticsAggregator{quizzes: quizzes}
}

// RecordCompletion applies one completed submission to the quiz statistics.
// The repository performs the increment-and-recompute as a single atomic update.
func (a *StatisticsAggregator) RecordCompletion(ctx context.Context, quizID string, score float64, timeSpent int) (domain.QuizStats, error) {
	return a.quizzes.RecordCompletion(ctx, quizID, score, timeSpent)
}

// UserStatistics summarises a user's attempts. passingScore resolves the
// threshold of each quiz referenced by a completed attempt.
func UserStatistics(attempts []domain.Attempt, passingScore func(quizID string) float64) domain.UserStatistics {
	if len(attempts) == 0 {
		return domain.UserStatistics{}
	}

	var (
		completed  int
		highScores int
		rewards    int
		totalScore float64
		totalTime  int
	)
	for _, at := range attempts {
		if at.Status != domain.StatusCompleted {
			continue
		}
		completed++
		totalScore += at.Score
		totalTime += at.TimeSpent
		if at.Score >= passingScore(at.QuizID) {
			highScores++
		}
		if !at.Rewards.Empty() {
			rewards++
		}
	}
	if completed == 0 {
		return domain.UserStatistics{}
	}

	avg := totalScore / float64(completed)
	minutes := float64(totalTime) / 60
	stats := domain.UserStatistics{
		TotalQuizzes:   completed,
		AverageScore:   round(avg, 2),
		TimeSpent:      int(math.Round(minutes)),
		CompletionRate: math.Round(float64(completed) / float64(len(attempts)) * 100),
		HighScoreRate:  math.Round(float64(highScores) / float64(completed) * 100),
		RewardsEarned:  rewards,
	}
	if minutes > 0 {
		stats.TimeEfficiency = round(avg/minutes, 2)
	}
	return stats
}

// RankAttempts orders completed attempts for a leaderboard: score descending,
// then faster completion, then earlier completion.
func RankAttempts(attempts []domain.Attempt) {
	sort.SliceStable(attempts, func(i, j int) bool {
		a, b := attempts[i], attempts[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TimeSpent != b.TimeSpent {
			return a.TimeSpent < b.TimeSpent
		}
		if a.CompletedAt != nil && b.CompletedAt != nil && !a.CompletedAt.Equal(*b.CompletedAt) {
			return a.CompletedAt.Before(*b.CompletedAt)
		}
		return a.ID < b.ID
	})
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
