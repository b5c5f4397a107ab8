package app

import (
	"errors"
	"fmt"
	"testing"

	"food-quiz-service/internal/domain"
)

func quizWith(n int, passing float64) domain.Quiz {
	quiz := domain.Quiz{ID: "q", PassingScore: passing, TimeLimit: 10, Active: true}
	for i := 0; i < n; i++ {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:             fmt.Sprintf("question-%d", i),
			CorrectAnswers: []string{"yes"},
		})
	}
	return quiz
}

func answers(quiz domain.Quiz, correct int) []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		answer := "no"
		if i < correct {
			answer = "yes"
		}
		out = append(out, domain.AnswerSubmission{QuestionID: q.ID, SelectedAnswer: answer})
	}
	return out
}

func TestScoreThreshold(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7, 10, 13} {
		for _, p := range []int{0, 1, 33, 50, 60, 70, 99, 100} {
			quiz := quizWith(n, float64(p))
			need := (p*n + 99) / 100

			res, err := Score(quiz, answers(quiz, need))
			if err != nil {
				t.Fatalf("n=%d p=%d: %v", n, p, err)
			}
			if !res.IsHighScore {
				t.Fatalf("n=%d p=%d: %d correct should pass, score %.2f", n, p, need, res.Score)
			}
			if need == 0 {
				continue
			}
			res, err = Score(quiz, answers(quiz, need-1))
			if err != nil {
				t.Fatalf("n=%d p=%d: %v", n, p, err)
			}
			if res.IsHighScore {
				t.Fatalf("n=%d p=%d: %d correct should fail, score %.2f", n, p, need-1, res.Score)
			}
		}
	}
}

func TestScoreBounds(t *testing.T) {
	quiz := quizWith(4, 60)
	for correct := 0; correct <= 4; correct++ {
		res, err := Score(quiz, answers(quiz, correct))
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if res.Score < 0 || res.Score > 100 {
			t.Fatalf("score out of range: %v", res.Score)
		}
		if res.CorrectAnswers != correct || res.CorrectAnswers > res.TotalQuestions {
			t.Fatalf("unexpected counts: %+v", res)
		}
	}
}

func TestScoreUnansweredQuestions(t *testing.T) {
	quiz := quizWith(3, 50)
	res, err := Score(quiz, []domain.AnswerSubmission{
		{QuestionID: "question-1", SelectedAnswer: "yes", TimeSpent: -4},
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(res.Answers) != 3 {
		t.Fatalf("expected a record per question, got %d", len(res.Answers))
	}
	if res.Answers[0].SelectedAnswer != "" || res.Answers[0].IsCorrect || res.Answers[0].TimeSpent != 0 {
		t.Fatalf("expected unanswered record, got %+v", res.Answers[0])
	}
	if !res.Answers[1].IsCorrect || res.Answers[1].TimeSpent != 0 {
		t.Fatalf("expected correct answer with clamped time, got %+v", res.Answers[1])
	}
	if res.CorrectAnswers != 1 {
		t.Fatalf("expected 1 correct, got %d", res.CorrectAnswers)
	}
}

func TestScoreAnswerKeyIsASet(t *testing.T) {
	quiz := domain.Quiz{ID: "q", PassingScore: 100, Questions: []domain.Question{
		{ID: "a", CorrectAnswers: []string{"Rice", "Arborio rice"}},
	}}
	for _, answer := range []string{"Rice", "Arborio rice"} {
		res, err := Score(quiz, []domain.AnswerSubmission{{QuestionID: "a", SelectedAnswer: answer}})
		if err != nil || res.Score != 100 {
			t.Fatalf("answer %q: score %v err %v", answer, res.Score, err)
		}
	}
	res, _ := Score(quiz, []domain.AnswerSubmission{{QuestionID: "a", SelectedAnswer: "rice"}})
	if res.Score != 0 {
		t.Fatalf("matching is exact, got %v", res.Score)
	}
}

func TestScoreRejectsInvalidSubmissions(t *testing.T) {
	quiz := quizWith(2, 50)

	_, err := Score(quiz, []domain.AnswerSubmission{{QuestionID: "elsewhere", SelectedAnswer: "yes"}})
	if !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question, got %v", err)
	}

	_, err = Score(quiz, []domain.AnswerSubmission{
		{QuestionID: "question-0", SelectedAnswer: "yes"},
		{QuestionID: "question-0", SelectedAnswer: "no"},
	})
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for duplicate, got %v", err)
	}

	_, err = Score(domain.Quiz{ID: "empty"}, nil)
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for empty quiz, got %v", err)
	}
}
