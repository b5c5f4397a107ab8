package app

import (
	"context"
	"fmt"

	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/platform/logger"
)

// RewardIssuer grants a quiz's badge and voucher to users who pass it.
type RewardIssuer struct {
	users    UserRepository
	attempts AttemptRepository
	log      *logger.Logger
}

func NewRewardIssuer(users UserRepository, attempts AttemptRepository, log *logger.Logger) *RewardIssuer {
	return &RewardIssuer{users: users, attempts: attempts, log: log.With("component", "RewardIssuer")}
}

// Eligible reports whether score earns at least one of the quiz rewards.
func (r *RewardIssuer) Eligible(quiz domain.Quiz, score domain.ScoreResult) bool {
	return score.IsHighScore && (quiz.RewardBadge != "" || quiz.RewardVoucher != "")
}

// AwardIfEligible grants the quiz rewards when score crosses the passing threshold
// and records them on the attempt. Grants are add-if-absent on the user.
func (r *RewardIssuer) AwardIfEligible(ctx context.Context, userID string, quiz domain.Quiz, score domain.ScoreResult, attemptID string) (domain.Rewards, error) {
	if !r.Eligible(quiz, score) {
		return domain.Rewards{}, nil
	}

	var rewards domain.Rewards
	if quiz.RewardBadge != "" {
		if err := r.users.AddBadge(ctx, userID, quiz.RewardBadge); err != nil {
			return domain.Rewards{}, fmt.Errorf("grant badge: %w", err)
		}
		rewards.Badge = quiz.RewardBadge
		r.log.Info("Badge awarded", "user_id", userID, "quiz_id", quiz.ID, "badge_id", quiz.RewardBadge)
	}
	if quiz.RewardVoucher != "" {
		if err := r.users.AddVoucher(ctx, userID, quiz.RewardVoucher); err != nil {
			return domain.Rewards{}, fmt.Errorf("grant voucher: %w", err)
		}
		rewards.Voucher = quiz.RewardVoucher
		r.log.Info("Voucher awarded", "user_id", userID, "quiz_id", quiz.ID, "voucher_id", quiz.RewardVoucher)
	}

	if rewards.Empty() {
		return rewards, nil
	}
	if err := r.attempts.SetRewards(ctx, attemptID, rewards); err != nil {
		return domain.Rewards{}, fmt.Errorf("record rewards: %w", err)
	}
	return rewards, nil
}
