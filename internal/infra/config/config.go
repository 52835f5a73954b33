package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	// AMQPURL переключает очередь прогрева на RabbitMQ; пустое значение — Redis.
	AMQPURL string `envconfig:"AMQP_URL"`

	Feed struct {
		TrendingWindowHours int     `envconfig:"FEED_TRENDING_WINDOW_HOURS" default:"24"`
		TrendingTTLSeconds  int     `envconfig:"FEED_TRENDING_TTL_SECONDS" default:"600"`
		HomeTTLSeconds      int     `envconfig:"FEED_HOME_TTL_SECONDS" default:"300"`
		SuggestedTTLSeconds int     `envconfig:"FEED_SUGGESTED_TTL_SECONDS" default:"600"`
		RelevantShare       float64 `envconfig:"FEED_RELEVANT_SHARE" default:"0.7"`
		TrendingOverfetch   int     `envconfig:"FEED_TRENDING_OVERFETCH" default:"5"`
		BlendOverfetch      int     `envconfig:"FEED_BLEND_OVERFETCH" default:"2"`
		MaxLimit            int     `envconfig:"FEED_MAX_LIMIT" default:"100"`
	} `envconfig:""`

	Queues struct {
		Warm string `envconfig:"WARM_QUEUE_KEY" default:"feed_warm_jobs"`
	} `envconfig:""`

	Warmer struct {
		Pages           int `envconfig:"WARMER_PAGES" default:"3"`
		Limit           int `envconfig:"WARMER_LIMIT" default:"20"`
		IntervalSeconds int `envconfig:"WARMER_INTERVAL_SECONDS" default:"300"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
