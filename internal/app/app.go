package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/auth"
	"github.com/gokatarajesh/weakest-rival/internal/auth/jwt"
	"github.com/gokatarajesh/weakest-rival/internal/config"
	"github.com/gokatarajesh/weakest-rival/internal/db/repository"
	"github.com/gokatarajesh/weakest-rival/internal/leaderboard"
	"github.com/gokatarajesh/weakest-rival/internal/logging"
	"github.com/gokatarajesh/weakest-rival/internal/match"
	"github.com/gokatarajesh/weakest-rival/internal/question"
	"github.com/gokatarajesh/weakest-rival/internal/question/external"
	"github.com/gokatarajesh/weakest-rival/internal/server"
	ws "github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server) and
// the long-running game workers.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis redis.UniversalClient
	http  *http.Server

	recorder       *match.Recorder
	janitor        *match.Janitor
	lbBroadcaster  *leaderboard.Broadcaster
	snapshotWorker *leaderboard.SnapshotWorker
	bgCancels      []context.CancelFunc
}

// New bootstraps logger, Postgres, Redis, the game engine and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	userRepo := repository.NewUserRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	matchRepo := repository.NewMatchRepository(pool)
	snapshotRepo := repository.NewLeaderboardRepository(pool)

	authSvc := auth.NewService(userRepo, auth.ServiceOptions{
		TokenConfig: jwt.TokenConfig{
			AccessSecret: []byte(cfg.Security.JWTSecret),
			AccessTTL:    cfg.Security.TokenTTL,
			Issuer:       cfg.Name,
		},
	}, logger)

	questionCache := question.NewCache(redisClient, cfg.Questions.CacheTTL)
	questionOpts := question.ServiceOptions{FetchTimeout: cfg.Questions.FetchTimeout}
	var questionSvc *question.Service
	if cfg.Questions.ExternalEnabled {
		opentdb := external.NewOpenTDBClient("", &http.Client{Timeout: cfg.Questions.FetchTimeout})
		questionSvc = question.NewService(questionRepo, questionCache, opentdb, questionOpts, logger)
	} else {
		logger.Info().Msg("OpenTDB fallback disabled")
		questionSvc = question.NewService(questionRepo, questionCache, nil, questionOpts, logger)
	}

	leaderboardSvc := leaderboard.NewService(redisClient, logger, leaderboard.ServiceOptions{
		TopN:          cfg.Leaderboard.TopN,
		PubSubChannel: cfg.Leaderboard.Channel,
		EntryTTL:      cfg.Leaderboard.EntryTTL,
	})

	wsHub := ws.NewHub(logger)
	registry := match.NewRegistry()
	recorder := match.NewRecorder(matchRepo, leaderboardSvc, cfg.Recorder.QueueSize, cfg.Recorder.WriteTimeout, logger)
	engine := match.NewEngine(registry, wsHub, questionSvc, recorder, match.Options{
		Rules: match.RulesFromConfig(cfg.Game, cfg.Questions.PoolSize),
	}, logger)

	janitor, err := match.NewJanitor(engine, cfg.Janitor.SweepInterval, cfg.Janitor.IdleTimeout, logger)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("create janitor: %w", err)
	}

	matchWSHandler := match.NewHandler(engine, authSvc, logger)
	matchHTTP := match.NewHTTPHandlers(engine, logger)
	lbBroadcaster := leaderboard.NewBroadcaster(redisClient, wsHub, cfg.Leaderboard.Channel, logger)
	lbHTTPHandler := leaderboard.NewHTTPHandler(leaderboardSvc, snapshotRepo, logger)

	var snapshotWorker *leaderboard.SnapshotWorker
	if interval := cfg.Leaderboard.SnapshotInterval; interval > 0 {
		snapshotWorker = leaderboard.NewSnapshotWorker(leaderboardSvc, snapshotRepo, interval, cfg.Leaderboard.TopN, logger)
	}

	apiServer := server.NewHTTPServer(cfg, logger, server.Handlers{
		Authenticate: auth.Middleware(authSvc, logger),
		MatchWS:      matchWSHandler.HandleWebSocket,
		CreateMatch:  matchHTTP.CreateMatch,
		Match:        matchHTTP.Match,
		Leaderboard:  lbHTTPHandler.HandleGet,
		Ping:         server.PingDependencies(pool, redisClient),
	})

	return &Application{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		http:           apiServer,
		recorder:       recorder,
		janitor:        janitor,
		lbBroadcaster:  lbBroadcaster,
		snapshotWorker: snapshotWorker,
		bgCancels:      make([]context.CancelFunc, 0, 2),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	if err := a.startBackgroundWorkers(ctx); err != nil {
		return err
	}

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	a.shutdown()
	return runErr
}

func (a *Application) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	if err := a.janitor.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("janitor shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	// Drains queued history writes before the pool goes away.
	a.recorder.Stop()

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
}

func (a *Application) startBackgroundWorkers(ctx context.Context) error {
	a.recorder.Start()

	if err := a.janitor.Start(); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}

	if a.lbBroadcaster != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.lbBroadcaster.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("leaderboard broadcaster stopped")
			}
		}()
	}

	if a.snapshotWorker != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.snapshotWorker.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("leaderboard snapshot worker stopped")
			}
		}()
	}
	return nil
}
