package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"community-feed/internal/adapters/repo"
	"community-feed/internal/domain"
	"community-feed/internal/infra/cache"
	"community-feed/internal/infra/config"
	"community-feed/internal/infra/db"
	applog "community-feed/internal/infra/log"
	"community-feed/internal/infra/metrics"
	"community-feed/internal/infra/queue"
	feedusecase "community-feed/internal/usecase/feed"
)

// warmLockTTL ограничивает частоту пересчёта одной и той же страницы
// при нескольких экземплярах воркера.
const warmLockTTL = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("warmer: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)
	cacheAdapter := cache.NewRedis(redisClient)
	feedService := feedusecase.NewService(repoAdapter, repoAdapter, cacheAdapter, nil, feedConfig(cfg))

	var warmQueue domain.WarmQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitWarmQueue(cfg.AMQPURL, cfg.Queues.Warm)
		if err != nil {
			logger.Fatal().Err(err).Msg("warmer: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		warmQueue = rabbit
	} else {
		warmQueue = queue.NewRedisWarmQueue(redisClient, cfg.Queues.Warm)
	}

	logger.Info().Msg("warmer: старт")
	for {
		job, err := warmQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("warmer: остановка")
				return
			}
			logger.Error().Err(err).Msg("warmer: ошибка чтения очереди")
			continue
		}
		if job.Kind != domain.FeedTrending {
			logger.Warn().Str("kind", string(job.Kind)).Msg("warmer: неподдерживаемый вид ленты")
			continue
		}

		lockKey := fmt.Sprintf("warm:lock:%s:p%d:l%d", job.Kind, job.Page, job.Limit)
		err = cacheAdapter.Once(ctx, lockKey, warmLockTTL, func() error {
			_, err := feedService.RefreshTrending(ctx, job.Page, job.Limit)
			return err
		})
		metrics.IncWarmJob(err)
		if err != nil {
			logger.Error().Err(err).Int("page", job.Page).Int("limit", job.Limit).Msg("warmer: не удалось прогреть страницу")
		}
	}
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
