// Command relay serves realtime subscribers only. Score and chat events
// published by any API instance reach it over the Redis fanout channel.
package main

import (
	"context"
	"encoding/json"
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
	"github.com/krishanu7/leaderboard-backend/internal/auth"
	"github.com/krishanu7/leaderboard-backend/internal/fanout"
	"github.com/krishanu7/leaderboard-backend/internal/game"
	"github.com/krishanu7/leaderboard-backend/internal/metrics"
	"github.com/krishanu7/leaderboard-backend/internal/player"
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
	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required for the relay")
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
		logger.Fatalw("relay stopped", "error", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) error {
	var (
		games   score.GameCatalog = game.NewStatic(cfg.StaticGames...)
		players player.Directory  = player.NewStatic()
	)
	if cfg.DBUrl != "" {
		conn, err := db.Open(ctx, cfg.DBUrl)
		if err != nil {
			return err
		}
		defer conn.Close()
		games = game.NewPostgresCatalog(conn)
		players = player.NewPostgresDirectory(conn)
	}

	rdb, err := redisPkg.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer rdb.Close()

	bus := fanout.NewBus(cfg.SubscriberBuffer, logger)
	relay := fanout.NewRedisRelay(rdb, cfg.RedisChannel, bus, logger)
	rooms := ws.NewEdgeRooms(games, players, auth.Authorizer{}, relay, cfg.ReadTimeout, logger)
	tokens := auth.NewTokens(cfg.JWTSecret)
	handler := ws.NewHandler(bus, rooms, tokens, wsPkg.NewUpgrader(cfg.AllowedOrigins), logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "success"}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]string{"status": "error", "message": "redis unavailable"}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
	r.Get("/ws", handler.ServeWS)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(ctx) })
	g.Go(func() error {
		logger.Infow("relay listening", "addr", cfg.HTTPAddr, "channel", cfg.RedisChannel)
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
