package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"food-quiz-service/internal/app"
	"food-quiz-service/internal/auth"
	"food-quiz-service/internal/config"
	"food-quiz-service/internal/event"
	"food-quiz-service/internal/fixtures"
	"food-quiz-service/internal/infra/memory"
	rediscache "food-quiz-service/internal/infra/redis"
	"food-quiz-service/internal/platform/logger"
	transport "food-quiz-service/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret (or JWT_SECRET) must be set")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	be, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	if cfg.Seed.Path != "" {
		if _, err := fixtures.LoadAndApply(ctx, be.store, cfg.Seed.Path, time.Now()); err != nil {
			return err
		}
		log.Info("Fixtures loaded", "path", cfg.Seed.Path)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	redisTTL := config.TTLDuration(cfg.Redis.TTL, time.Minute)
	health := be.health

	var quizRepo app.QuizRepository
	opts := []app.Option{
		app.WithLogger(log),
		app.WithLeaderboardSize(cfg.Quiz.LeaderboardSize),
	}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		quizRepo = rediscache.NewQuizCache(redisClient, be.store, quizTTL, log)
		opts = append(opts, app.WithReadCache(rediscache.NewReadCache(redisClient, redisTTL, log)))
		health = append(health, transport.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	} else {
		quizRepo = memory.NewQuizCache(be.store, quizTTL)
	}

	if cfg.AMQP.URL != "" {
		publisher, err := event.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithPublisher(publisher))
		log.Info("Publishing quiz events", "exchange", cfg.AMQP.Exchange)
	}

	service := app.NewQuizService(quizRepo, be.store, be.store, opts...)

	gin.SetMode(cfg.Server.Mode)
	router := transport.NewRouter(transport.RouterConfig{
		Service:        service,
		Verifier:       auth.NewVerifier(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour)),
		Log:            log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		HealthChecks:   health,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("Starting quiz service", "port", finalPort, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("Shutting down server")
	case <-ctx.Done():
		log.Info("Context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
