package domain

import (
	"context"
	"time"
)

// WarmJob описывает задачу прогрева страницы трендов.
type WarmJob struct {
	Kind        FeedKind  `json:"kind"`
	Page        int       `json:"page"`
	Limit       int       `json:"limit"`
	RequestedAt time.Time `json:"requested_at"`
}

// WarmQueue описывает очередь задач прогрева кэша.
type WarmQueue interface {
	Enqueue(ctx context.Context, job WarmJob) error
	// Pop блокирующе читает задачу из очереди.
	Pop(ctx context.Context) (WarmJob, error)
}
