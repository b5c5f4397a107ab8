package cli

import (
	"context"
	"fmt"
	"time"

	"food-quiz-service/internal/app"
	"food-quiz-service/internal/config"
	"food-quiz-service/internal/fixtures"
	"food-quiz-service/internal/infra/memory"
	mongostore "food-quiz-service/internal/infra/mongo"
	pgstore "food-quiz-service/internal/infra/postgres"
	"food-quiz-service/internal/platform/logger"
	transport "food-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// store is the union of repositories every backend implements.
type store interface {
	app.QuizRepository
	app.AttemptRepository
	app.UserRepository
	fixtures.Seeder
}

type backend struct {
	store  store
	health []transport.HealthCheck
	close  func()
}

// openStore connects the backend selected by cfg.Store.Driver.
func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("Using in-memory store; data is lost on restart")
		return &backend{store: memory.NewStore(), close: func() {}}, nil

	case "postgres":
		if err := runMigrations(ctx, cfg, log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return &backend{
			store:  pgstore.NewStore(pool),
			health: []transport.HealthCheck{{Name: "postgres", Check: pool.Ping}},
			close:  pool.Close,
		}, nil

	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		s := mongostore.NewStore(client.Database(cfg.Mongo.Database))
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &backend{
			store: s,
			health: []transport.HealthCheck{{Name: "mongo", Check: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			}}},
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
