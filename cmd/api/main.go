package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"community-feed/internal/adapters/repo"
	"community-feed/internal/infra/cache"
	"community-feed/internal/infra/config"
	"community-feed/internal/infra/db"
	httpinfra "community-feed/internal/infra/http"
	applog "community-feed/internal/infra/log"
	"community-feed/internal/infra/metrics"
	feedusecase "community-feed/internal/usecase/feed"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)
	cacheAdapter := cache.NewRedis(redisClient)
	feedService := feedusecase.NewService(repoAdapter, repoAdapter, cacheAdapter, nil, feedConfig(cfg))

	srv := httpinfra.NewServer(logger)
	srv.Router.Route("/api/v1/feed", func(r chi.Router) {
		r.Get("/trending", func(w http.ResponseWriter, r *http.Request) {
			page, limit, err := parsePaging(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			result, err := feedService.Trending(r.Context(), page, limit)
			if err != nil {
				respondFeedError(w, err)
				return
			}
			writeJSON(w, result)
		})

		r.Get("/home", func(w http.ResponseWriter, r *http.Request) {
			userID, page, limit, err := parseUserPaging(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			result, err := feedService.Home(r.Context(), userID, page, limit)
			if err != nil {
				respondFeedError(w, err)
				return
			}
			writeJSON(w, result)
		})

		r.Get("/suggested", func(w http.ResponseWriter, r *http.Request) {
			userID, page, limit, err := parseUserPaging(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			result, err := feedService.Suggested(r.Context(), userID, page, limit)
			if err != nil {
				respondFeedError(w, err)
				return
			}
			writeJSON(w, result)
		})
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func feedConfig(cfg config.AppConfig) feedusecase.Config {
	return feedusecase.Config{
		TrendingWindow:    time.Duration(cfg.Feed.TrendingWindowHours) * time.Hour,
		TrendingTTL:       time.Duration(cfg.Feed.TrendingTTLSeconds) * time.Second,
		HomeTTL:           time.Duration(cfg.Feed.HomeTTLSeconds) * time.Second,
		SuggestedTTL:      time.Duration(cfg.Feed.SuggestedTTLSeconds) * time.Second,
		RelevantShare:     cfg.Feed.RelevantShare,
		TrendingOverfetch: cfg.Feed.TrendingOverfetch,
		BlendOverfetch:    cfg.Feed.BlendOverfetch,
		MaxLimit:          cfg.Feed.MaxLimit,
	}
}

func parsePaging(r *http.Request) (int, int, error) {
	page, limit := 1, 20
	if raw := r.URL.Query().Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("page must be an integer")
		}
		page = v
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("limit must be an integer")
		}
		limit = v
	}
	return page, limit, nil
}

// parseUserPaging берёт идентификатор пользователя из заголовка,
// проставленного шлюзом после аутентификации.
func parseUserPaging(r *http.Request) (string, int, int, error) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return "", 0, 0, errors.New("user is not specified")
	}
	page, limit, err := parsePaging(r)
	if err != nil {
		return "", 0, 0, err
	}
	return userID, page, limit, nil
}

func respondFeedError(w http.ResponseWriter, err error) {
	if errors.Is(err, feedusecase.ErrInvalidPage) || errors.Is(err, feedusecase.ErrInvalidLimit) {
		writeError(w, http.StatusBadRequest, "invalid paging parameters")
		return
	}
	log.Error().Err(err).Msg("api: не удалось собрать ленту")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
