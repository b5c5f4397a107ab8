package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"food-quiz-service/internal/app"
	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/infra/memory"
	infraredis "food-quiz-service/internal/infra/redis"
	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

const (
	quizID    = "5b0c2b9e-4a61-4bd5-9f1e-1d2b3c4d5e60"
	question1 = "0f6a7c1e-2c43-4d1b-8a8e-9c1b2a3d4e51"
	question2 = "0f6a7c1e-2c43-4d1b-8a8e-9c1b2a3d4e52"
	aliceID   = "8c9d0e1f-1a2b-4c3d-9e8f-7a6b5c4d3e21"
	bobID     = "8c9d0e1f-1a2b-4c3d-9e8f-7a6b5c4d3e22"
	carolID   = "8c9d0e1f-1a2b-4c3d-9e8f-7a6b5c4d3e23"
	badgeID   = "b1"
	ghostID   = "8c9d0e1f-1a2b-4c3d-9e8f-7a6b5c4d3e29"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ any) error {
	p.mu.Lock()
	p.events = append(p.events, eventType)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	store   *memory.Store
	clock   *fakeClock
	events  *recordingPublisher
	service *app.QuizService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}

	for _, q := range []domain.Question{
		{ID: question1, Content: "Which country is pho from?", CorrectAnswers: []string{"Vietnam"}, IncorrectAnswers: []string{"Thailand", "Laos"}},
		{ID: question2, Content: "Main grain in risotto?", CorrectAnswers: []string{"Rice", "Arborio rice"}, IncorrectAnswers: []string{"Barley"}},
	} {
		if err := store.SaveQuestion(ctx, q); err != nil {
			t.Fatalf("save question: %v", err)
		}
	}
	if err := store.SaveQuiz(ctx, domain.Quiz{
		ID:           quizID,
		Name:         "World dishes",
		QuestionIDs:  []string{question1, question2},
		TimeLimit:    10,
		PassingScore: 70,
		RewardBadge:  badgeID,
		Active:       true,
		CreatedAt:    clock.Now().Add(-24 * time.Hour),
	}); err != nil {
		t.Fatalf("save quiz: %v", err)
	}
	for id, name := range map[string]string{aliceID: "alice", bobID: "bob", carolID: "carol"} {
		if err := store.SaveUser(ctx, domain.User{ID: id, Username: name}); err != nil {
			t.Fatalf("save user: %v", err)
		}
	}

	events := &recordingPublisher{}
	service := app.NewQuizService(store, store, store,
		app.WithClock(clock.Now),
		app.WithPublisher(events),
	)
	return &fixture{store: store, clock: clock, events: events, service: service}
}

func allCorrect() []domain.AnswerSubmission {
	return []domain.AnswerSubmission{
		{QuestionID: question1, SelectedAnswer: "Vietnam", TimeSpent: 10},
		{QuestionID: question2, SelectedAnswer: "Arborio rice", TimeSpent: 12},
	}
}

func halfCorrect() []domain.AnswerSubmission {
	return []domain.AnswerSubmission{
		{QuestionID: question1, SelectedAnswer: "Vietnam", TimeSpent: 10},
		{QuestionID: question2, SelectedAnswer: "Barley", TimeSpent: 12},
	}
}

func TestStartCreatesInProgressAttempt(t *testing.T) {
	f := newFixture(t)

	res, err := f.service.Start(context.Background(), quizID, aliceID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	at := res.QuizResult
	if at.Status != domain.StatusInProgress || at.Score != 0 || len(at.Answers) != 0 {
		t.Fatalf("unexpected attempt: %+v", at)
	}
	if at.TotalQuestions != 2 || !at.StartedAt.Equal(f.clock.Now()) {
		t.Fatalf("unexpected snapshot: %+v", at)
	}
	if len(res.Quiz.Questions) != 2 {
		t.Fatalf("expected populated quiz, got %+v", res.Quiz)
	}
	if f.events.count(app.EventQuizStarted) != 1 {
		t.Fatalf("expected quiz.started event")
	}
}

func TestStartRejectsUnavailableQuiz(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, "missing", aliceID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	expired := f.clock.Now().Add(-time.Hour)
	if err := f.store.SaveQuiz(ctx, domain.Quiz{
		ID: "expired", QuestionIDs: []string{question1}, TimeLimit: 5, Active: true,
		CreatedAt: expired.Add(-time.Hour), ValidUntil: &expired,
	}); err != nil {
		t.Fatalf("save quiz: %v", err)
	}
	if _, err := f.service.Start(ctx, "expired", aliceID); !errors.Is(err, domain.ErrQuizNotAvailable) {
		t.Fatalf("expected not available, got %v", err)
	}

	if err := f.store.SaveQuiz(ctx, domain.Quiz{ID: "inactive", QuestionIDs: []string{question1}, TimeLimit: 5}); err != nil {
		t.Fatalf("save quiz: %v", err)
	}
	if _, err := f.service.Start(ctx, "inactive", aliceID); domain.KindOf(err) != domain.KindNotAvailable {
		t.Fatalf("expected NotAvailable kind, got %v", err)
	}
}

func TestSubmitAllCorrectGrantsBadge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(90 * time.Second)

	res, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 100 || !res.IsHighScore || res.Rewards.Badge != badgeID {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.QuizResult.Status != domain.StatusCompleted || res.QuizResult.TimeSpent != 90 {
		t.Fatalf("unexpected attempt: %+v", res.QuizResult)
	}
	if res.QuizResult.CompletedAt == nil || res.QuizResult.CompletedAt.Before(res.QuizResult.StartedAt) {
		t.Fatalf("completion timestamp must follow start: %+v", res.QuizResult)
	}

	user, err := f.store.GetUser(ctx, aliceID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(user.Badges) != 1 || user.Badges[0] != badgeID {
		t.Fatalf("expected badge granted, got %v", user.Badges)
	}

	stored, err := f.store.GetAttempt(ctx, res.QuizResult.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if stored.Rewards.Badge != badgeID {
		t.Fatalf("expected rewards recorded on attempt, got %+v", stored.Rewards)
	}
	if f.events.count(app.EventQuizCompleted) != 1 || f.events.count(app.EventRewardGranted) != 1 {
		t.Fatalf("unexpected events: %v", f.events.events)
	}
}

func TestSubmitHalfCorrectGrantsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: halfCorrect()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 50 || res.IsHighScore || !res.Rewards.Empty() {
		t.Fatalf("unexpected result: %+v", res)
	}
	user, _ := f.store.GetUser(ctx, aliceID)
	if len(user.Badges) != 0 {
		t.Fatalf("expected no badges, got %v", user.Badges)
	}
	if f.events.count(app.EventRewardGranted) != 0 {
		t.Fatalf("unexpected reward event")
	}
}

func TestSubmitTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.service.Start(ctx, quizID, aliceID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	req := app.SubmitRequest{UserID: aliceID, QuizID: quizID, AttemptID: start.QuizResult.ID, Answers: allCorrect()}
	if _, err := f.service.Submit(ctx, req); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := f.service.Submit(ctx, req); !errors.Is(err, domain.ErrNoActiveAttempt) {
		t.Fatalf("expected no active attempt, got %v", err)
	}
	req.AttemptID = ""
	if _, err := f.service.Submit(ctx, req); !errors.Is(err, domain.ErrNoActiveAttempt) {
		t.Fatalf("expected no active attempt by lookup, got %v", err)
	}

	stats, err := f.service.QuizStatistics(ctx, quizID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAttempts != 1 {
		t.Fatalf("expected one recorded completion, got %d", stats.TotalAttempts)
	}
	if f.events.count(app.EventRewardGranted) != 1 {
		t.Fatalf("expected a single reward grant")
	}
}

func TestConcurrentSubmitsCompleteOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.service.Start(ctx, quizID, aliceID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, AttemptID: start.QuizResult.ID, Answers: allCorrect()})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrNoActiveAttempt) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful submit, got %d", succeeded)
	}
	stats, _ := f.service.QuizStatistics(ctx, quizID)
	if stats.TotalAttempts != 1 {
		t.Fatalf("expected one recorded completion, got %d", stats.TotalAttempts)
	}
}

func TestConcurrentSubmissionsKeepRunningAverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 40
	attemptIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		res, err := f.service.Start(ctx, quizID, aliceID)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		attemptIDs = append(attemptIDs, res.QuizResult.ID)
	}

	var wg sync.WaitGroup
	for i, id := range attemptIDs {
		answers := allCorrect()
		if i%2 == 1 {
			answers = halfCorrect()
		}
		wg.Add(1)
		go func(id string, answers []domain.AnswerSubmission) {
			defer wg.Done()
			if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, AttemptID: id, Answers: answers}); err != nil {
				t.Errorf("submit %s: %v", id, err)
			}
		}(id, answers)
	}
	wg.Wait()

	stats, err := f.service.QuizStatistics(ctx, quizID)
	if err != nil {
		t.Fatalf("quiz statistics: %v", err)
	}
	if stats.TotalAttempts != n {
		t.Fatalf("expected %d recorded completions, got %d", n, stats.TotalAttempts)
	}
	if diff := stats.AverageScore - 75; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected average 75, got %v", stats.AverageScore)
	}
	user, _ := f.store.GetUser(ctx, aliceID)
	if len(user.Badges) != 1 {
		t.Fatalf("expected a single badge after concurrent grants, got %v", user.Badges)
	}
}

func TestSubmitForMissingUserWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.service.Start(ctx, quizID, ghostID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = f.service.Submit(ctx, app.SubmitRequest{UserID: ghostID, QuizID: quizID, Answers: allCorrect()})
	if !errors.Is(err, domain.ErrUserNotFound) || domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected user not found, got %v", err)
	}

	attempt, err := f.store.GetAttempt(ctx, start.QuizResult.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if attempt.Status != domain.StatusInProgress || attempt.Score != 0 {
		t.Fatalf("expected attempt untouched, got %+v", attempt)
	}
	stats, _ := f.service.QuizStatistics(ctx, quizID)
	if stats.TotalAttempts != 0 {
		t.Fatalf("expected no recorded completion, got %d", stats.TotalAttempts)
	}

	// once the user exists the same attempt can still be submitted
	if err := f.store.SaveUser(ctx, domain.User{ID: ghostID, Username: "ghost"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	res, err := f.service.Submit(ctx, app.SubmitRequest{UserID: ghostID, QuizID: quizID, Answers: allCorrect()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Rewards.Badge != badgeID {
		t.Fatalf("expected badge, got %+v", res.Rewards)
	}
	stats, _ = f.service.QuizStatistics(ctx, quizID)
	if stats.TotalAttempts != 1 {
		t.Fatalf("expected one recorded completion, got %d", stats.TotalAttempts)
	}
}

func TestSubmitWithoutRewardDoesNotNeedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, quizID, ghostID); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := f.service.Submit(ctx, app.SubmitRequest{UserID: ghostID, QuizID: quizID, Answers: halfCorrect()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.IsHighScore || !res.Rewards.Empty() {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestIndependentAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Start(ctx, quizID, aliceID)
	if err != nil {
		t.Fatalf("start 1: %v", err)
	}
	f.clock.Advance(time.Second)
	second, err := f.service.Start(ctx, quizID, aliceID)
	if err != nil {
		t.Fatalf("start 2: %v", err)
	}
	if first.QuizResult.ID == second.QuizResult.ID {
		t.Fatalf("expected distinct attempts")
	}

	if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, AttemptID: first.QuizResult.ID, Answers: halfCorrect()}); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	other, err := f.store.GetAttempt(ctx, second.QuizResult.ID)
	if err != nil {
		t.Fatalf("get second: %v", err)
	}
	if other.Status != domain.StatusInProgress {
		t.Fatalf("second attempt should still be in progress, got %s", other.Status)
	}
	if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()}); err != nil {
		t.Fatalf("submit second: %v", err)
	}
}

func TestRewardIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
			t.Fatalf("start: %v", err)
		}
		res, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if res.Rewards.Badge != badgeID {
			t.Fatalf("attempt %d should record the badge, got %+v", i, res.Rewards)
		}
	}

	user, _ := f.store.GetUser(ctx, aliceID)
	if len(user.Badges) != 1 {
		t.Fatalf("expected exactly one badge, got %v", user.Badges)
	}
}

func TestSubmitRejectsUnknownQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: []domain.AnswerSubmission{
		{QuestionID: "ffffffff-ffff-4fff-8fff-ffffffffffff", SelectedAnswer: "x"},
	}})
	if !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question, got %v", err)
	}

	// the attempt survives a rejected submission
	if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID}); !errors.Is(err, domain.ErrEmptyAnswers) {
		t.Fatalf("expected empty answers error, got %v", err)
	}
	if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()}); !errors.Is(err, domain.ErrNoActiveAttempt) {
		t.Fatalf("expected no active attempt, got %v", err)
	}

	start, err := f.service.Start(ctx, quizID, aliceID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = f.service.Submit(ctx, app.SubmitRequest{UserID: bobID, AttemptID: start.QuizResult.ID, Answers: allCorrect()})
	if !errors.Is(err, domain.ErrNoActiveAttempt) {
		t.Fatalf("expected foreign attempt to be rejected, got %v", err)
	}
}

func TestSubmitRejectsTimeOverrun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.service.Start(ctx, quizID, aliceID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(10*time.Minute + time.Second)

	_, err = f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()})
	if !errors.Is(err, domain.ErrTimeLimitExceeded) {
		t.Fatalf("expected time limit error, got %v", err)
	}
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation kind, got %s", domain.KindOf(err))
	}

	at, _ := f.store.GetAttempt(ctx, start.QuizResult.ID)
	if at.Status != domain.StatusInProgress {
		t.Fatalf("rejected attempt should stay in progress, got %s", at.Status)
	}
	stats, _ := f.service.QuizStatistics(ctx, quizID)
	if stats.TotalAttempts != 0 {
		t.Fatalf("rejected submission must not touch statistics")
	}
}

func TestSubmitAtExactTimeLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(10 * time.Minute)
	res, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()})
	if err != nil {
		t.Fatalf("submit at limit: %v", err)
	}
	if res.QuizResult.TimeSpent != 600 {
		t.Fatalf("expected 600s, got %d", res.QuizResult.TimeSpent)
	}
}

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Abandon(ctx, quizID, aliceID); !errors.Is(err, domain.ErrNoActiveAttempt) {
		t.Fatalf("expected no active attempt, got %v", err)
	}
	start, err := f.service.Start(ctx, quizID, aliceID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	abandoned, err := f.service.Abandon(ctx, quizID, aliceID)
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if abandoned.ID != start.QuizResult.ID || abandoned.Status != domain.StatusAbandoned {
		t.Fatalf("unexpected abandoned attempt: %+v", abandoned)
	}
	if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()}); !errors.Is(err, domain.ErrNoActiveAttempt) {
		t.Fatalf("abandoned attempt must not be submittable, got %v", err)
	}
}

func TestQuizStatisticsRunningAverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, answers := range [][]domain.AnswerSubmission{allCorrect(), halfCorrect()} {
		if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
			t.Fatalf("start: %v", err)
		}
		f.clock.Advance(30 * time.Second)
		if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: answers}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	stats, err := f.service.QuizStatistics(ctx, quizID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAttempts != 2 || stats.AverageScore != 75 || stats.AverageTimeSpent != 30 || stats.CompletionRate != 100 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.QuestionCount != 2 {
		t.Fatalf("expected question count 2, got %d", stats.QuestionCount)
	}
}

func TestUserStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.service.UserStatistics(ctx, aliceID)
	if err != nil {
		t.Fatalf("zero-attempt stats: %v", err)
	}
	if empty != (domain.UserStatistics{}) {
		t.Fatalf("expected all-zero stats, got %+v", empty)
	}

	for _, answers := range [][]domain.AnswerSubmission{allCorrect(), halfCorrect()} {
		if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
			t.Fatalf("start: %v", err)
		}
		f.clock.Advance(time.Minute)
		if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: answers}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	// one attempt left open
	if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
		t.Fatalf("start: %v", err)
	}

	stats, err := f.service.UserStatistics(ctx, aliceID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := domain.UserStatistics{
		TotalQuizzes:   2,
		AverageScore:   75,
		TimeSpent:      2,
		CompletionRate: 67,
		HighScoreRate:  50,
		TimeEfficiency: 37.5,
		RewardsEarned:  1,
	}
	if stats != want {
		t.Fatalf("unexpected stats:\n got %+v\nwant %+v", stats, want)
	}
}

func TestHistoryPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
			t.Fatalf("start: %v", err)
		}
		f.clock.Advance(time.Minute)
		if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: halfCorrect()}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	history, err := f.service.History(ctx, aliceID, domain.Page{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history.Data) != 2 || history.Pagination.Total != 3 || history.Pagination.Pages != 2 {
		t.Fatalf("unexpected page: %+v", history.Pagination)
	}
	if !history.Data[0].CompletedAt.After(*history.Data[1].CompletedAt) {
		t.Fatalf("expected newest first")
	}

	defaults, err := f.service.History(ctx, aliceID, domain.Page{})
	if err != nil {
		t.Fatalf("history defaults: %v", err)
	}
	if defaults.Pagination.Page != 1 || defaults.Pagination.Limit != 10 || len(defaults.Data) != 3 {
		t.Fatalf("unexpected defaults: %+v", defaults.Pagination)
	}

	capped, _ := f.service.History(ctx, aliceID, domain.Page{Page: 1, Limit: 1000})
	if capped.Pagination.Limit != 100 {
		t.Fatalf("expected limit cap, got %d", capped.Pagination.Limit)
	}

	none, _ := f.service.History(ctx, bobID, domain.Page{})
	if none.Data == nil || len(none.Data) != 0 || none.Pagination.Pages != 0 {
		t.Fatalf("expected empty history, got %+v", none)
	}
}

func TestResultOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.service.Start(ctx, quizID, aliceID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.Result(ctx, aliceID, start.QuizResult.ID); err != nil {
		t.Fatalf("owner result: %v", err)
	}
	if _, err := f.service.Result(ctx, bobID, start.QuizResult.ID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestLeaderboardTieBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// scores 100@30s, 100@20s, 50@10s
	runs := []struct {
		user    string
		answers []domain.AnswerSubmission
		elapsed time.Duration
	}{
		{aliceID, allCorrect(), 30 * time.Second},
		{bobID, allCorrect(), 20 * time.Second},
		{carolID, halfCorrect(), 10 * time.Second},
	}
	for _, r := range runs {
		if _, err := f.service.Start(ctx, quizID, r.user); err != nil {
			t.Fatalf("start: %v", err)
		}
		f.clock.Advance(r.elapsed)
		if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: r.user, QuizID: quizID, Answers: r.answers}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	lb, err := f.service.Leaderboard(ctx, quizID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lb.Entries))
	}
	got := []string{lb.Entries[0].Username, lb.Entries[1].Username, lb.Entries[2].Username}
	want := []string{"bob", "alice", "carol"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}

	if _, err := f.service.Leaderboard(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestSubscribeLeaderboardReceivesUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, cancel, err := f.service.SubscribeLeaderboard(ctx, quizID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if len(initial.Entries) != 0 {
		t.Fatalf("expected empty initial leaderboard, got %+v", initial.Entries)
	}

	if _, err := f.service.Start(ctx, quizID, aliceID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case update := <-ch:
		if len(update.Entries) != 1 || update.Entries[0].Username != "alice" || update.Entries[0].Score != 100 {
			t.Fatalf("unexpected update: %+v", update.Entries)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for leaderboard update")
	}
}

func TestStartInvalidatesCachedUserStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	service := app.NewQuizService(f.store, f.store, f.store,
		app.WithClock(f.clock.Now),
		app.WithReadCache(infraredis.NewReadCache(client, time.Minute, nil)),
	)

	if _, err := service.Start(ctx, quizID, aliceID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Submit(ctx, app.SubmitRequest{UserID: aliceID, QuizID: quizID, Answers: allCorrect()}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	before, err := service.UserStatistics(ctx, aliceID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if before.CompletionRate != 100 {
		t.Fatalf("expected completion rate 100, got %v", before.CompletionRate)
	}

	if _, err := service.Start(ctx, quizID, aliceID); err != nil {
		t.Fatalf("start: %v", err)
	}
	after, err := service.UserStatistics(ctx, aliceID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if after.CompletionRate != 50 {
		t.Fatalf("expected completion rate 50 after a new attempt, got %v", after.CompletionRate)
	}
}
