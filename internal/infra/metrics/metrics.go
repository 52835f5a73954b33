package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeedRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_requests_total",
		Help: "Количество запросов лент по видам",
	}, []string{"kind"})

	FeedCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_cache_hits_total",
		Help: "Попадания в кэш лент",
	}, []string{"kind"})

	FeedCacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_cache_misses_total",
		Help: "Промахи кэша лент",
	}, []string{"kind"})

	FeedBuildSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_build_seconds",
		Help:    "Время сборки страницы ленты при промахе кэша",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "status"})

	WarmJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_warm_jobs_total",
		Help: "Обработанные задачи прогрева кэша",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedRequestsTotal,
		FeedCacheHitsTotal,
		FeedCacheMissesTotal,
		FeedBuildSeconds,
		WarmJobsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncFeedRequest увеличивает счётчик запросов ленты.
func IncFeedRequest(kind string) {
	FeedRequestsTotal.WithLabelValues(kind).Inc()
}

// IncFeedCacheHit увеличивает счётчик попаданий в кэш.
func IncFeedCacheHit(kind string) {
	FeedCacheHitsTotal.WithLabelValues(kind).Inc()
}

// IncFeedCacheMiss увеличивает счётчик промахов кэша.
func IncFeedCacheMiss(kind string) {
	FeedCacheMissesTotal.WithLabelValues(kind).Inc()
}

// ObserveFeedBuild записывает длительность сборки страницы.
func ObserveFeedBuild(kind string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	FeedBuildSeconds.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
}

// IncWarmJob увеличивает счётчик задач прогрева.
func IncWarmJob(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	WarmJobsTotal.WithLabelValues(status).Inc()
}
