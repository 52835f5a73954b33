package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"community-feed/internal/domain"
	"community-feed/internal/infra/config"
	applog "community-feed/internal/infra/log"
	"community-feed/internal/infra/metrics"
	"community-feed/internal/infra/queue"
)

// scheduler периодически ставит задачи прогрева первых страниц трендов,
// чтобы популярные запросы не упирались в холодный кэш после истечения TTL.
func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	var warmQueue domain.WarmQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitWarmQueue(cfg.AMQPURL, cfg.Queues.Warm)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		warmQueue = rabbit
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		warmQueue = queue.NewRedisWarmQueue(redisClient, cfg.Queues.Warm)
	}

	interval := time.Duration(cfg.Warmer.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	enqueueAll(ctx, logger, warmQueue, cfg.Warmer.Pages, cfg.Warmer.Limit)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановка")
			return
		case <-ticker.C:
			enqueueAll(ctx, logger, warmQueue, cfg.Warmer.Pages, cfg.Warmer.Limit)
		}
	}
}

func enqueueAll(ctx context.Context, logger zerolog.Logger, warmQueue domain.WarmQueue, pages, limit int) {
	now := time.Now().UTC()
	for page := 1; page <= pages; page++ {
		job := domain.WarmJob{Kind: domain.FeedTrending, Page: page, Limit: limit, RequestedAt: now}
		if err := warmQueue.Enqueue(ctx, job); err != nil {
			logger.Error().Err(err).Int("page", page).Msg("scheduler: не удалось поставить задачу прогрева")
		}
	}
}
