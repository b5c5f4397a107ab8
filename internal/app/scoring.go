package app

import (
	"food-quiz-service/internal/domain"
)

// Score grades a submission against the quiz's questions. It has no side effects.
//
// Every quiz question gets an answer record; questions the client skipped are
// recorded as unanswered. A submitted question ID that is not part of the quiz
// rejects the whole submission.
func Score(quiz domain.Quiz, answers []domain.AnswerSubmission) (domain.ScoreResult, error) {
	total := len(quiz.Questions)
	if total == 0 {
		return domain.ScoreResult{}, domain.Wrap(domain.ErrValidation, "quiz %s has no questions", quiz.ID)
	}

	known := make(map[string]struct{}, total)
	for _, q := range quiz.Questions {
		known[q.ID] = struct{}{}
	}

	submitted := make(map[string]domain.AnswerSubmission, len(answers))
	for _, a := range answers {
		if _, ok := known[a.QuestionID]; !ok {
			return domain.ScoreResult{}, domain.Wrap(domain.ErrInvalidQuestion, "Question %s not found", a.QuestionID)
		}
		if _, dup := submitted[a.QuestionID]; dup {
			return domain.ScoreResult{}, domain.Wrap(domain.ErrValidation, "Question %s answered more than once", a.QuestionID)
		}
		submitted[a.QuestionID] = a
	}

	records := make([]domain.AnswerRecord, 0, total)
	correct := 0
	for _, q := range quiz.Questions {
		a, ok := submitted[q.ID]
		if !ok {
			records = append(records, domain.AnswerRecord{QuestionID: q.ID})
			continue
		}
		isCorrect := q.Accepts(a.SelectedAnswer)
		if isCorrect {
			correct++
		}
		spent := a.TimeSpent
		if spent < 0 {
			spent = 0
		}
		records = append(records, domain.AnswerRecord{
			QuestionID:     q.ID,
			SelectedAnswer: a.SelectedAnswer,
			IsCorrect:      isCorrect,
			TimeSpent:      spent,
		})
	}

	score := float64(correct) * 100 / float64(total)
	return domain.ScoreResult{
		Score:          score,
		CorrectAnswers: correct,
		TotalQuestions: total,
		IsHighScore:    score >= quiz.PassingScore,
		Answers:        records,
	}, nil
}
