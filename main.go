package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/krishanu7/leaderboard-backend/config"
	"github.com/krishanu7/leaderboard-backend/db"
	"github.com/krishanu7/leaderboard-backend/internal/aggregate"
	"github.com/krishanu7/leaderboard-backend/internal/auth"
	"github.com/krishanu7/leaderboard-backend/internal/fanout"
	"github.com/krishanu7/leaderboard-backend/internal/game"
	"github.com/krishanu7/leaderboard-backend/internal/leaderboard"
	"github.com/krishanu7/leaderboard-backend/internal/metrics"
	"github.com/krishanu7/leaderboard-backend/internal/player"
	"github.com/krishanu7/leaderboard-backend/internal/rank"
	"github.com/krishanu7/leaderboard-backend/internal/score"
	"github.com/krishanu7/leaderboard-backend/internal/ws"
	redisPkg "github.com/krishanu7/leaderboard-backend/pkg/redis"
	wsPkg "github.com/krishanu7/leaderboard-backend/pkg/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zl, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) error {
	var (
		repo    score.Repository  = score.NewMemoryRepository()
		games   score.GameCatalog = game.NewStatic(cfg.StaticGames...)
		players player.Directory  = player.NewStatic()
	)
	if cfg.DBUrl != "" {
		conn, err := openDatabase(ctx, cfg.DBUrl)
		if err != nil {
			return err
		}
		defer conn.Close()
		repo = score.NewPostgresRepository(conn)
		games = game.NewPostgresCatalog(conn)
		players = player.NewPostgresDirectory(conn)
		logger.Infow("using postgres score store")
	} else {
		logger.Warnw("DB_URL not set, scores are kept in memory", "games", cfg.StaticGames)
	}

	bus := fanout.NewBus(cfg.SubscriberBuffer, logger)
	var publisher fanout.Publisher = bus
	var relay *fanout.RedisRelay
	if cfg.RedisAddr != "" {
		rdb, err := redisPkg.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rdb.Close()
		relay = fanout.NewRedisRelay(rdb, cfg.RedisChannel, bus, logger)
		publisher = relay
	}

	ranks := rank.NewIndex()
	totals := aggregate.New()
	pipeline := leaderboard.NewPipeline(leaderboard.PipelineConfig{
		Ranks:        ranks,
		Totals:       totals,
		Publisher:    publisher,
		Logger:       logger,
		Shards:       cfg.PipelineShards,
		FanoutBuffer: cfg.FanoutBuffer,
	})
	store := score.NewStore(repo, games, pipeline, logger)
	svc := leaderboard.NewService(leaderboard.Config{
		Store:       store,
		Games:       games,
		Ranks:       ranks,
		Totals:      totals,
		Pipeline:    pipeline,
		Players:     players,
		Authorizer:  auth.Authorizer{},
		Logger:      logger,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err := svc.Reconcile(ctx); err != nil {
		return err
	}

	tokens := auth.NewTokens(cfg.JWTSecret)
	lbHandler := leaderboard.NewHandler(svc, logger)
	wsHandler := ws.NewHandler(bus, svc, tokens, wsPkg.NewUpgrader(cfg.AllowedOrigins), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware(routePattern))
	r.Handle("/metrics", metrics.Handler())
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokens, logger))
		r.Get("/api/health", lbHandler.Health)
		r.Mount("/api/v1/leaderboard", lbHandler.Routes())
		r.Get("/ws", wsHandler.ServeWS)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipeline.Run(ctx) })
	g.Go(func() error {
		return leaderboard.RunReconciler(ctx, svc, cfg.ReconcileInterval, logger)
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(ctx) })
	}
	g.Go(func() error {
		logger.Infow("server started", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	conn, err := db.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// routePattern labels metrics with the matched chi route.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
