package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"community-feed/internal/adapters/ranker"
	"community-feed/internal/domain"
	"community-feed/internal/infra/metrics"
)

// ErrInvalidPage возвращается при номере страницы меньше 1.
var ErrInvalidPage = errors.New("номер страницы должен быть не меньше 1")

// ErrInvalidLimit возвращается при размере страницы вне допустимых границ.
var ErrInvalidLimit = errors.New("недопустимый размер страницы")

// Config собирает константы лент в одном месте. Значения по умолчанию
// совпадают с поведением исходной системы.
type Config struct {
	// TrendingWindow — окно отбора постов для трендов.
	TrendingWindow time.Duration
	// TrendingTTL, HomeTTL, SuggestedTTL — время жизни записей кэша.
	TrendingTTL  time.Duration
	HomeTTL      time.Duration
	SuggestedTTL time.Duration
	// RelevantShare — доля постов из сообществ пользователя в домашней ленте.
	RelevantShare float64
	// TrendingOverfetch — множитель перевыборки кандидатов для трендов.
	TrendingOverfetch int
	// BlendOverfetch — множитель перевыборки пулов домашней ленты.
	BlendOverfetch int
	// MaxLimit — верхняя граница размера страницы.
	MaxLimit int
}

// DefaultConfig возвращает конфигурацию с константами исходной системы.
func DefaultConfig() Config {
	return Config{
		TrendingWindow:    24 * time.Hour,
		TrendingTTL:       600 * time.Second,
		HomeTTL:           300 * time.Second,
		SuggestedTTL:      600 * time.Second,
		RelevantShare:     0.7,
		TrendingOverfetch: 5,
		BlendOverfetch:    2,
		MaxLimit:          100,
	}
}

// Service собирает ленты поверх репозиториев и кэша по схеме cache-aside.
// Общего изменяемого состояния нет, безопасен для конкурентных запросов.
// Одновременные промахи по одному ключу считают страницу дважды и оба пишут
// в кэш: операция идемпотентна, дедупликация не вводится.
type Service struct {
	posts   domain.PostRepo
	members domain.MembershipRepo
	cache   domain.Cache
	// rnd задаётся в тестах для воспроизводимого перемешивания;
	// при nil используется потокобезопасный глобальный источник.
	rnd *rand.Rand
	cfg Config
}

var _ domain.FeedService = (*Service)(nil)

// NewService создаёт сервис лент.
func NewService(posts domain.PostRepo, members domain.MembershipRepo, cache domain.Cache, rnd *rand.Rand, cfg Config) *Service {
	return &Service{posts: posts, members: members, cache: cache, rnd: rnd, cfg: cfg}
}

// Trending возвращает страницу глобальной ленты трендов.
func (s *Service) Trending(ctx context.Context, page, limit int) (domain.FeedPage, error) {
	if err := s.validate(page, limit); err != nil {
		return domain.FeedPage{}, err
	}
	metrics.IncFeedRequest(string(domain.FeedTrending))
	key := trendingKey(page, limit)
	return s.cached(ctx, domain.FeedTrending, key, s.cfg.TrendingTTL, func(ctx context.Context) (domain.FeedPage, error) {
		return s.buildTrending(ctx, page, limit)
	})
}

// Home возвращает страницу домашней ленты пользователя: примерно 70%
// постов из его сообществ и 30% для знакомства с новыми, в случайном
// порядке. Порядок фиксируется записью в кэш и не пересчитывается на чтении.
func (s *Service) Home(ctx context.Context, userID string, page, limit int) (domain.FeedPage, error) {
	if err := s.validate(page, limit); err != nil {
		return domain.FeedPage{}, err
	}
	metrics.IncFeedRequest(string(domain.FeedHome))
	key := userKey(domain.FeedHome, userID, page, limit)
	return s.cached(ctx, domain.FeedHome, key, s.cfg.HomeTTL, func(ctx context.Context) (domain.FeedPage, error) {
		return s.buildHome(ctx, userID, page, limit)
	})
}

// Suggested возвращает страницу постов из сообществ, на которые пользователь
// не подписан. В отличие от домашней ленты порядок детерминирован, пагинация
// точная на уровне репозитория.
func (s *Service) Suggested(ctx context.Context, userID string, page, limit int) (domain.FeedPage, error) {
	if err := s.validate(page, limit); err != nil {
		return domain.FeedPage{}, err
	}
	metrics.IncFeedRequest(string(domain.FeedSuggested))
	key := userKey(domain.FeedSuggested, userID, page, limit)
	return s.cached(ctx, domain.FeedSuggested, key, s.cfg.SuggestedTTL, func(ctx context.Context) (domain.FeedPage, error) {
		memberIDs, err := s.members.ListCommunityIDs(ctx, userID)
		if err != nil {
			return domain.FeedPage{}, fmt.Errorf("подписки пользователя: %w", err)
		}
		posts, err := s.posts.ListByCommunities(ctx, memberIDs, true, limit, (page-1)*limit)
		if err != nil {
			return domain.FeedPage{}, fmt.Errorf("посты для рекомендаций: %w", err)
		}
		if posts == nil {
			posts = []domain.Post{}
		}
		return domain.FeedPage{Posts: posts, Page: page, Limit: limit, HasMore: len(posts) == limit}, nil
	})
}

// RefreshTrending пересчитывает страницу трендов и перезаписывает кэш,
// минуя чтение. Используется воркером прогрева.
func (s *Service) RefreshTrending(ctx context.Context, page, limit int) (domain.FeedPage, error) {
	if err := s.validate(page, limit); err != nil {
		return domain.FeedPage{}, err
	}
	result, err := s.buildTrending(ctx, page, limit)
	if err != nil {
		return domain.FeedPage{}, err
	}
	if err := s.store(ctx, trendingKey(page, limit), s.cfg.TrendingTTL, result); err != nil {
		return domain.FeedPage{}, err
	}
	return result, nil
}

func (s *Service) buildTrending(ctx context.Context, page, limit int) (domain.FeedPage, error) {
	now := time.Now().UTC()
	since := now.Add(-s.cfg.TrendingWindow)
	candidates, err := s.posts.ListRecent(ctx, since, limit*s.cfg.TrendingOverfetch)
	if err != nil {
		return domain.FeedPage{}, fmt.Errorf("свежие посты: %w", err)
	}
	ranked := ranker.Rank(candidates, now)
	ordered := make([]domain.Post, 0, len(ranked))
	for _, rp := range ranked {
		ordered = append(ordered, rp.Post)
	}
	slice := pageSlice(ordered, page, limit)
	return domain.FeedPage{Posts: slice, Page: page, Limit: limit, HasMore: len(slice) == limit}, nil
}

func (s *Service) buildHome(ctx context.Context, userID string, page, limit int) (domain.FeedPage, error) {
	memberIDs, err := s.members.ListCommunityIDs(ctx, userID)
	if err != nil {
		return domain.FeedPage{}, fmt.Errorf("подписки пользователя: %w", err)
	}
	relevantCount := int(math.Ceil(float64(limit) * s.cfg.RelevantShare))
	discoveryCount := limit - relevantCount
	if len(memberIDs) == 0 {
		// Без подписок вся страница отдаётся пулу знакомства.
		discoveryCount = limit
	}

	var blended []domain.Post
	if len(memberIDs) > 0 {
		relevant, err := s.posts.ListByCommunities(ctx, memberIDs, false, relevantCount*s.cfg.BlendOverfetch, 0)
		if err != nil {
			return domain.FeedPage{}, fmt.Errorf("посты сообществ пользователя: %w", err)
		}
		blended = append(blended, relevant...)
	}
	discovery, err := s.posts.ListByCommunities(ctx, memberIDs, true, discoveryCount*s.cfg.BlendOverfetch, 0)
	if err != nil {
		return domain.FeedPage{}, fmt.Errorf("посты для знакомства: %w", err)
	}
	blended = append(blended, discovery...)

	s.shuffle(blended)
	slice := pageSlice(blended, page, limit)
	return domain.FeedPage{Posts: slice, Page: page, Limit: limit, HasMore: len(slice) == limit}, nil
}

// cached реализует cache-aside: чтение, при промахе сборка и запись.
// Ошибки кэша и репозиториев не гасятся и не подменяются пустой лентой.
func (s *Service) cached(ctx context.Context, kind domain.FeedKind, key string, ttl time.Duration, build func(context.Context) (domain.FeedPage, error)) (domain.FeedPage, error) {
	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.IncFeedCacheHit(string(kind))
		var result domain.FeedPage
		if err := json.Unmarshal(raw, &result); err != nil {
			return domain.FeedPage{}, fmt.Errorf("декодирование кэша: %w", err)
		}
		return result, nil
	case errors.Is(err, domain.ErrCacheMiss):
		metrics.IncFeedCacheMiss(string(kind))
	default:
		return domain.FeedPage{}, fmt.Errorf("чтение кэша: %w", err)
	}

	start := time.Now()
	result, err := build(ctx)
	metrics.ObserveFeedBuild(string(kind), start, err)
	if err != nil {
		return domain.FeedPage{}, err
	}
	if err := s.store(ctx, key, ttl, result); err != nil {
		return domain.FeedPage{}, err
	}
	return result, nil
}

func (s *Service) store(ctx context.Context, key string, ttl time.Duration, result domain.FeedPage) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("кодирование страницы: %w", err)
	}
	if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
		return fmt.Errorf("запись кэша: %w", err)
	}
	return nil
}

func (s *Service) validate(page, limit int) error {
	if page < 1 {
		return ErrInvalidPage
	}
	if limit < 1 || (s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit) {
		return ErrInvalidLimit
	}
	return nil
}

func (s *Service) shuffle(posts []domain.Post) {
	swap := func(i, j int) { posts[i], posts[j] = posts[j], posts[i] }
	if s.rnd != nil {
		s.rnd.Shuffle(len(posts), swap)
		return
	}
	rand.Shuffle(len(posts), swap)
}

func pageSlice(posts []domain.Post, page, limit int) []domain.Post {
	start := (page - 1) * limit
	if start >= len(posts) {
		return []domain.Post{}
	}
	end := start + limit
	if end > len(posts) {
		end = len(posts)
	}
	return posts[start:end]
}

func trendingKey(page, limit int) string {
	return fmt.Sprintf("feed:%s:p%d:l%d", domain.FeedTrending, page, limit)
}

func userKey(kind domain.FeedKind, userID string, page, limit int) string {
	return fmt.Sprintf("feed:%s:u%s:p%d:l%d", kind, userID, page, limit)
}
