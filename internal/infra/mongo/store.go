package mongo

import (
	"context"
	"errors"
	"fmt"

	"food-quiz-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// Store implements the quiz, attempt and user repositories on MongoDB.
// Every state transition is a single document-level update filtered on the
// expected current state.
type Store struct {
	questions *mongo.Collection
	quizzes   *mongo.Collection
	results   *mongo.Collection
	users     *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		questions: db.Collection("questions"),
		quizzes:   db.Collection("quizzes"),
		results:   db.Collection("quiz_results"),
		users:     db.Collection("users"),
	}
}

// EnsureIndexes creates the indexes used by the attempt queries.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.results.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "quiz_id", Value: 1}, {Key: "status", Value: 1}, {Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "completed_at", Value: -1}}},
		{Keys: bson.D{{Key: "quiz_id", Value: 1}, {Key: "status", Value: 1}, {Key: "score", Value: -1}, {Key: "time_spent", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *Store) SaveQuestion(ctx context.Context, q domain.Question) error {
	if q.IncorrectAnswers == nil {
		q.IncorrectAnswers = []string{}
	}
	_, err := s.questions.ReplaceOne(ctx, bson.M{"_id": q.ID}, q, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}

// SaveQuiz upserts a quiz definition. Running statistics are left untouched.
func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if len(quiz.QuestionIDs) == 0 {
		for _, q := range quiz.Questions {
			quiz.QuestionIDs = append(quiz.QuestionIDs, q.ID)
		}
	}
	set := bson.M{
		"name":           quiz.Name,
		"description":    quiz.Description,
		"question_ids":   quiz.QuestionIDs,
		"time_limit":     quiz.TimeLimit,
		"passing_score":  quiz.PassingScore,
		"reward_badge":   quiz.RewardBadge,
		"reward_voucher": quiz.RewardVoucher,
		"active":         quiz.Active,
		"valid_until":    quiz.ValidUntil,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": quiz.CreatedAt, "statistics": domain.QuizStats{}},
	}
	_, err := s.quizzes.UpdateByID(ctx, quiz.ID, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}

func (s *Store) SaveUser(ctx context.Context, u domain.User) error {
	update := bson.M{
		"$set":         bson.M{"username": u.Username},
		"$setOnInsert": bson.M{"badges": nonNil(u.Badges), "vouchers": nonNil(u.Vouchers)},
	}
	_, err := s.users.UpdateByID(ctx, u.ID, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.quizzes.FindOne(ctx, bson.M{"_id": quizID}).Decode(&quiz)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	cur, err := s.questions.Find(ctx, bson.M{"_id": bson.M{"$in": quiz.QuestionIDs}})
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	var questions []domain.Question
	if err := cur.All(ctx, &questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode questions: %w", err)
	}

	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
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

// RecordCompletion folds one submission into the running statistics with a
// pipeline update, so concurrent writers never lose an increment.
func (s *Store) RecordCompletion(ctx context.Context, quizID string, score float64, timeSpent int) (domain.QuizStats, error) {
	n := bson.M{"$ifNull": bson.A{"$statistics.total_attempts", 0}}
	running := func(field string, value interface{}) bson.M {
		return bson.M{"$divide": bson.A{
			bson.M{"$add": bson.A{
				bson.M{"$multiply": bson.A{bson.M{"$ifNull": bson.A{"$statistics." + field, 0}}, n}},
				value,
			}},
			bson.M{"$add": bson.A{n, 1}},
		}}
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "statistics.average_score", Value: running("average_score", score)},
			{Key: "statistics.average_time_spent", Value: running("average_time_spent", float64(timeSpent))},
			{Key: "statistics.completion_rate", Value: running("completion_rate", 100)},
			{Key: "statistics.total_attempts", Value: bson.M{"$add": bson.A{n, 1}}},
		}}},
	}

	var updated struct {
		Stats domain.QuizStats `bson:"statistics"`
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"statistics": 1})
	err := s.quizzes.FindOneAndUpdate(ctx, bson.M{"_id": quizID}, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.QuizStats{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizStats{}, fmt.Errorf("record completion: %w", err)
	}
	return updated.Stats, nil
}

func (s *Store) CreateAttempt(ctx context.Context, at domain.Attempt) error {
	if at.Answers == nil {
		at.Answers = []domain.AnswerRecord{}
	}
	if _, err := s.results.InsertOne(ctx, at); err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var at domain.Attempt
	err := s.results.FindOne(ctx, bson.M{"_id": attemptID}).Decode(&at)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return normalize(at), nil
}

func (s *Store) FindActiveAttempt(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	var at domain.Attempt
	filter := bson.M{"user_id": userID, "quiz_id": quizID, "status": domain.StatusInProgress}
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	err := s.results.FindOne(ctx, filter, opts).Decode(&at)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("find active attempt: %w", err)
	}
	return normalize(at), nil
}

func (s *Store) CompleteAttempt(ctx context.Context, attemptID string, c domain.Completion) (domain.Attempt, error) {
	answers := c.Answers
	if answers == nil {
		answers = []domain.AnswerRecord{}
	}
	update := bson.M{"$set": bson.M{
		"status":          domain.StatusCompleted,
		"score":           c.Score,
		"correct_answers": c.CorrectAnswers,
		"total_questions": c.TotalQuestions,
		"answers":         answers,
		"completed_at":    c.CompletedAt,
		"time_spent":      c.TimeSpent,
	}}
	return s.transition(ctx, attemptID, update)
}

func (s *Store) AbandonAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return s.transition(ctx, attemptID, bson.M{"$set": bson.M{"status": domain.StatusAbandoned}})
}

func (s *Store) transition(ctx context.Context, attemptID string, update bson.M) (domain.Attempt, error) {
	var at domain.Attempt
	filter := bson.M{"_id": attemptID, "status": domain.StatusInProgress}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.results.FindOneAndUpdate(ctx, filter, update, opts).Decode(&at)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("update attempt: %w", err)
	}
	return normalize(at), nil
}

func (s *Store) SetRewards(ctx context.Context, attemptID string, rewards domain.Rewards) error {
	res, err := s.results.UpdateByID(ctx, attemptID, bson.M{"$set": bson.M{"rewards": rewards}})
	if err != nil {
		return fmt.Errorf("set rewards: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *Store) ListUserAttempts(ctx context.Context, userID string) ([]domain.Attempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	return s.findAttempts(ctx, bson.M{"user_id": userID}, opts)
}

// ListCompletedAttempts fetches one page and the total count concurrently.
func (s *Store) ListCompletedAttempts(ctx context.Context, userID string, page domain.Page) ([]domain.Attempt, int, error) {
	filter := bson.M{"user_id": userID, "status": domain.StatusCompleted}
	var (
		attempts []domain.Attempt
		total    int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opts := options.Find().
			SetSort(bson.D{{Key: "completed_at", Value: -1}}).
			SetSkip(int64(page.Offset())).
			SetLimit(int64(page.Limit))
		var err error
		attempts, err = s.findAttempts(gctx, filter, opts)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.results.CountDocuments(gctx, filter)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return attempts, int(total), nil
}

func (s *Store) TopAttempts(ctx context.Context, quizID string, limit int) ([]domain.Attempt, error) {
	opts := options.Find().
		SetSort(bson.D{
			{Key: "score", Value: -1},
			{Key: "time_spent", Value: 1},
			{Key: "completed_at", Value: 1},
			{Key: "_id", Value: 1},
		}).
		SetLimit(int64(limit))
	return s.findAttempts(ctx, bson.M{"quiz_id": quizID, "status": domain.StatusCompleted}, opts)
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	u.Badges = nonNil(u.Badges)
	u.Vouchers = nonNil(u.Vouchers)
	return u, nil
}

func (s *Store) AddBadge(ctx context.Context, userID, badgeID string) error {
	return s.addToSet(ctx, userID, "badges", badgeID)
}

func (s *Store) AddVoucher(ctx context.Context, userID, voucherID string) error {
	return s.addToSet(ctx, userID, "vouchers", voucherID)
}

func (s *Store) addToSet(ctx context.Context, userID, field, value string) error {
	res, err := s.users.UpdateByID(ctx, userID, bson.M{"$addToSet": bson.M{field: value}})
	if err != nil {
		return fmt.Errorf("add %s: %w", field, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) findAttempts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Attempt, error) {
	cur, err := s.results.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find attempts: %w", err)
	}
	defer cur.Close(ctx)

	out := []domain.Attempt{}
	for cur.Next(ctx) {
		var at domain.Attempt
		if err := cur.Decode(&at); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, normalize(at))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("find attempts: %w", err)
	}
	return out, nil
}

func normalize(at domain.Attempt) domain.Attempt {
	if at.Answers == nil {
		at.Answers = []domain.AnswerRecord{}
	}
	if at.CompletedAt != nil {
		t := at.CompletedAt.UTC()
		at.CompletedAt = &t
	}
	at.StartedAt = at.StartedAt.UTC()
	return at
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
