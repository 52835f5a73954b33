package domain

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss возвращается кэшем, если ключа нет или он истёк.
var ErrCacheMiss = errors.New("ключ не найден в кэше")

// PostRepo читает снимки постов из внешнего хранилища.
type PostRepo interface {
	// ListRecent возвращает до limit постов, созданных не раньше since.
	ListRecent(ctx context.Context, since time.Time, limit int) ([]Post, error)
	// ListByCommunities возвращает посты сообществ из communityIDs,
	// при exclude=true — посты всех остальных сообществ. Порядок:
	// вовлечённость по убыванию, затем дата создания по убыванию.
	ListByCommunities(ctx context.Context, communityIDs []string, exclude bool, limit, offset int) ([]Post, error)
}

// MembershipRepo читает подписки пользователя на сообщества.
type MembershipRepo interface {
	// ListCommunityIDs возвращает идентификаторы сообществ пользователя.
	// Неизвестный пользователь даёт пустой список, не ошибку.
	ListCommunityIDs(ctx context.Context, userID string) ([]string, error)
}

// Cache используется как TTL-хранилище собранных страниц.
type Cache interface {
	// Get возвращает значение или ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set задаёт значение с временем жизни.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del удаляет ключи.
	Del(ctx context.Context, keys ...string) error
	// Once выполняет функцию, если ключ ещё не задан.
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// FeedService собирает ленты поверх репозиториев и кэша.
type FeedService interface {
	Trending(ctx context.Context, page, limit int) (FeedPage, error)
	Home(ctx context.Context, userID string, page, limit int) (FeedPage, error)
	Suggested(ctx context.Context, userID string, page, limit int) (FeedPage, error)
	// RefreshTrending пересчитывает страницу трендов и перезаписывает кэш.
	RefreshTrending(ctx context.Context, page, limit int) (FeedPage, error)
}
