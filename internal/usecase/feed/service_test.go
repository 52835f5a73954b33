package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"community-feed/internal/domain"
)

type communityCall struct {
	ids     []string
	exclude bool
	limit   int
	offset  int
}

type stubPostRepo struct {
	recent []domain.Post
	all    []domain.Post

	recentCalls    int
	communityCalls []communityCall
	err            error
}

func (s *stubPostRepo) ListRecent(_ context.Context, _ time.Time, limit int) ([]domain.Post, error) {
	s.recentCalls++
	if s.err != nil {
		return nil, s.err
	}
	posts := append([]domain.Post(nil), s.recent...)
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (s *stubPostRepo) ListByCommunities(_ context.Context, communityIDs []string, exclude bool, limit, offset int) ([]domain.Post, error) {
	s.communityCalls = append(s.communityCalls, communityCall{
		ids:     append([]string(nil), communityIDs...),
		exclude: exclude,
		limit:   limit,
		offset:  offset,
	})
	if s.err != nil {
		return nil, s.err
	}
	if limit <= 0 {
		return nil, nil
	}
	members := make(map[string]bool, len(communityIDs))
	for _, id := range communityIDs {
		members[id] = true
	}
	var filtered []domain.Post
	for _, p := range s.all {
		if members[p.CommunityID] != exclude {
			filtered = append(filtered, p)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Engagement() != filtered[j].Engagement() {
			return filtered[i].Engagement() > filtered[j].Engagement()
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	if offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[offset:]
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

type stubMembershipRepo struct {
	ids []string
	err error
}

func (s *stubMembershipRepo) ListCommunityIDs(context.Context, string) ([]string, error) {
	return s.ids, s.err
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	value, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return value, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), value...)
	c.sets++
	return nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *fakeCache) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	c.mu.Lock()
	_, exists := c.entries[key]
	if !exists {
		c.entries[key] = []byte("1")
	}
	c.mu.Unlock()
	if exists {
		return nil
	}
	if err := fn(); err != nil {
		_ = c.Del(ctx, key)
		return err
	}
	return nil
}

func makePost(id, communityID string, upvotes, comments int, age time.Duration) domain.Post {
	return domain.Post{
		ID:           id,
		CommunityID:  communityID,
		UpvoteCount:  upvotes,
		CommentCount: comments,
		CreatedAt:    time.Now().UTC().Add(-age),
	}
}

func newTestService(posts *stubPostRepo, members *stubMembershipRepo, cache *fakeCache) *Service {
	return NewService(posts, members, cache, rand.New(rand.NewSource(42)), DefaultConfig())
}

func TestTrendingRanksByAge(t *testing.T) {
	posts := &stubPostRepo{recent: []domain.Post{
		makePost("old", "c1", 10, 0, 23*time.Hour),
		makePost("young", "c1", 10, 0, time.Hour),
		makePost("mid", "c1", 10, 0, 5*time.Hour),
	}}
	service := newTestService(posts, &stubMembershipRepo{}, newFakeCache())

	result, err := service.Trending(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.Posts) != 3 {
		t.Fatalf("ожидали 3 поста, получили %d", len(result.Posts))
	}
	for i, want := range []string{"young", "mid", "old"} {
		if result.Posts[i].ID != want {
			t.Fatalf("на позиции %d ожидали %s, получили %s", i, want, result.Posts[i].ID)
		}
	}
	if result.HasMore {
		t.Fatalf("ожидали has_more=false при 3 постах и limit=20")
	}
}

func TestTrendingFewPosts(t *testing.T) {
	var recent []domain.Post
	for i := 0; i < 5; i++ {
		recent = append(recent, makePost(fmt.Sprintf("p%02d", i), "c1", i, 0, time.Duration(i+1)*time.Hour))
	}
	posts := &stubPostRepo{recent: recent}
	service := newTestService(posts, &stubMembershipRepo{}, newFakeCache())

	result, err := service.Trending(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.Posts) != 5 {
		t.Fatalf("ожидали все 5 постов, получили %d", len(result.Posts))
	}
	if result.HasMore {
		t.Fatalf("ожидали has_more=false")
	}
}

func TestTrendingHasMoreHeuristic(t *testing.T) {
	var recent []domain.Post
	for i := 0; i < 15; i++ {
		recent = append(recent, makePost(fmt.Sprintf("p%02d", i), "c1", i, 0, time.Hour))
	}
	posts := &stubPostRepo{recent: recent}
	service := newTestService(posts, &stubMembershipRepo{}, newFakeCache())

	result, err := service.Trending(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.Posts) != 15 {
		t.Fatalf("ожидали страницу из 15 постов, получили %d", len(result.Posts))
	}
	if result.HasMore {
		t.Fatalf("ожидали has_more=false при неполной странице")
	}

	result, err = service.Trending(context.Background(), 1, 15)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.HasMore {
		t.Fatalf("ожидали has_more=true при полной странице")
	}
}

func TestTrendingCachedIdempotent(t *testing.T) {
	posts := &stubPostRepo{recent: []domain.Post{
		makePost("p1", "c1", 10, 2, time.Hour),
		makePost("p2", "c1", 5, 1, 2*time.Hour),
	}}
	service := newTestService(posts, &stubMembershipRepo{}, newFakeCache())

	first, err := service.Trending(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// Изменения в хранилище не должны быть видны, пока жива запись кэша.
	posts.recent = append(posts.recent, makePost("p3", "c1", 100, 0, time.Minute))

	second, err := service.Trending(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("ожидали идентичные страницы из кэша")
	}
	if posts.recentCalls != 1 {
		t.Fatalf("ожидали один поход в репозиторий, получили %d", posts.recentCalls)
	}
}

func TestTrendingValidation(t *testing.T) {
	service := newTestService(&stubPostRepo{}, &stubMembershipRepo{}, newFakeCache())

	if _, err := service.Trending(context.Background(), 0, 20); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("ожидали ErrInvalidPage, получили %v", err)
	}
	if _, err := service.Trending(context.Background(), 1, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("ожидали ErrInvalidLimit, получили %v", err)
	}
	if _, err := service.Trending(context.Background(), 1, 101); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("ожидали ErrInvalidLimit для limit=101, получили %v", err)
	}
}

func TestTrendingRepoErrorPropagates(t *testing.T) {
	cache := newFakeCache()
	posts := &stubPostRepo{err: errors.New("база недоступна")}
	service := newTestService(posts, &stubMembershipRepo{}, cache)

	if _, err := service.Trending(context.Background(), 1, 20); err == nil {
		t.Fatalf("ожидали ошибку репозитория")
	}
	if cache.sets != 0 {
		t.Fatalf("при ошибке ничего не должно кэшироваться")
	}
}

func TestTrendingCacheErrorPropagates(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("redis недоступен")
	posts := &stubPostRepo{recent: []domain.Post{makePost("p1", "c1", 1, 0, time.Hour)}}
	service := newTestService(posts, &stubMembershipRepo{}, cache)

	if _, err := service.Trending(context.Background(), 1, 20); err == nil {
		t.Fatalf("ожидали ошибку кэша")
	}
	if posts.recentCalls != 0 {
		t.Fatalf("при ошибке кэша не должно быть похода в репозиторий")
	}
}

func buildCommunityPosts(memberCommunity, otherCommunity string, perPool int) []domain.Post {
	var all []domain.Post
	for i := 0; i < perPool; i++ {
		all = append(all,
			makePost(fmt.Sprintf("%s-%02d", memberCommunity, i), memberCommunity, 2*perPool-i, 0, time.Duration(i+1)*time.Hour),
			makePost(fmt.Sprintf("%s-%02d", otherCommunity, i), otherCommunity, 2*perPool-i, 0, time.Duration(i+1)*time.Hour),
		)
	}
	return all
}

func TestHomeBlendsPools(t *testing.T) {
	posts := &stubPostRepo{all: buildCommunityPosts("mine", "other", 20)}
	members := &stubMembershipRepo{ids: []string{"mine"}}
	service := newTestService(posts, members, newFakeCache())

	result, err := service.Home(context.Background(), "u1", 1, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.Posts) != 10 {
		t.Fatalf("ожидали полную страницу из 10 постов, получили %d", len(result.Posts))
	}
	if !result.HasMore {
		t.Fatalf("ожидали has_more=true")
	}

	if len(posts.communityCalls) != 2 {
		t.Fatalf("ожидали два похода за постами, получили %d", len(posts.communityCalls))
	}
	relevant, discovery := posts.communityCalls[0], posts.communityCalls[1]
	if relevant.exclude {
		t.Fatalf("первый запрос должен быть по сообществам пользователя")
	}
	if relevant.limit != 14 { // ceil(10*0.7)*2
		t.Fatalf("ожидали перевыборку релевантного пула 14, получили %d", relevant.limit)
	}
	if !discovery.exclude {
		t.Fatalf("второй запрос должен исключать сообщества пользователя")
	}
	if discovery.limit != 6 { // (10-7)*2
		t.Fatalf("ожидали перевыборку пула знакомства 6, получили %d", discovery.limit)
	}

	for _, p := range result.Posts {
		if p.CommunityID != "mine" && p.CommunityID != "other" {
			t.Fatalf("пост %s из неожиданного сообщества %s", p.ID, p.CommunityID)
		}
	}
}

func TestHomeZeroMemberships(t *testing.T) {
	posts := &stubPostRepo{all: buildCommunityPosts("mine", "other", 20)}
	members := &stubMembershipRepo{}
	service := newTestService(posts, members, newFakeCache())

	result, err := service.Home(context.Background(), "u1", 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(posts.communityCalls) != 1 {
		t.Fatalf("без подписок ожидали один поход за постами, получили %d", len(posts.communityCalls))
	}
	call := posts.communityCalls[0]
	if !call.exclude {
		t.Fatalf("без подписок запрос должен идти по пулу знакомства")
	}
	if call.limit != 40 { // весь limit достаётся пулу знакомства, перевыборка x2
		t.Fatalf("ожидали перевыборку 40, получили %d", call.limit)
	}
	for _, p := range result.Posts {
		if p.CommunityID == "" {
			t.Fatalf("пост без сообщества")
		}
	}
}

func TestHomeCachedOrderStable(t *testing.T) {
	posts := &stubPostRepo{all: buildCommunityPosts("mine", "other", 20)}
	members := &stubMembershipRepo{ids: []string{"mine"}}
	service := newTestService(posts, members, newFakeCache())

	first, err := service.Home(context.Background(), "u1", 1, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := service.Home(context.Background(), "u1", 1, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// Перемешивание случайное, но порядок фиксируется записью в кэш.
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("порядок закэшированной страницы не должен меняться между чтениями")
	}
	if len(posts.communityCalls) != 2 {
		t.Fatalf("повторное чтение не должно ходить в репозиторий")
	}
}

func TestHomeCachePerUser(t *testing.T) {
	cache := newFakeCache()
	posts := &stubPostRepo{all: buildCommunityPosts("mine", "other", 20)}
	members := &stubMembershipRepo{ids: []string{"mine"}}
	service := newTestService(posts, members, cache)

	if _, err := service.Home(context.Background(), "u1", 1, 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := service.Home(context.Background(), "u2", 1, 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(cache.entries) != 2 {
		t.Fatalf("ожидали отдельные записи кэша для разных пользователей, получили %d", len(cache.entries))
	}
}

func TestSuggestedPaginationDisjoint(t *testing.T) {
	posts := &stubPostRepo{all: buildCommunityPosts("mine", "other", 40)}
	members := &stubMembershipRepo{ids: []string{"mine"}}
	service := newTestService(posts, members, newFakeCache())

	first, err := service.Suggested(context.Background(), "u1", 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := service.Suggested(context.Background(), "u1", 2, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(first.Posts) != 20 || len(second.Posts) != 20 {
		t.Fatalf("ожидали по 20 постов на страницах, получили %d и %d", len(first.Posts), len(second.Posts))
	}
	seen := make(map[string]bool)
	for _, p := range first.Posts {
		seen[p.ID] = true
	}
	for _, p := range second.Posts {
		if seen[p.ID] {
			t.Fatalf("страницы пересекаются по посту %s", p.ID)
		}
		if p.CommunityID == "mine" {
			t.Fatalf("в рекомендациях пост из сообщества пользователя: %s", p.ID)
		}
	}

	// Пагинация точная: репозиторий получает skip/limit, без перевыборки.
	if posts.communityCalls[1].offset != 20 || posts.communityCalls[1].limit != 20 {
		t.Fatalf("ожидали limit=20 offset=20, получили limit=%d offset=%d",
			posts.communityCalls[1].limit, posts.communityCalls[1].offset)
	}
}

func TestSuggestedDeterministicOrder(t *testing.T) {
	posts := &stubPostRepo{all: buildCommunityPosts("mine", "other", 25)}
	members := &stubMembershipRepo{ids: []string{"mine"}}
	cache := newFakeCache()
	service := newTestService(posts, members, cache)

	first, err := service.Suggested(context.Background(), "u1", 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// Сбрасываем кэш: пересчёт обязан дать тот же порядок.
	for key := range cache.entries {
		_ = cache.Del(context.Background(), key)
	}
	second, err := service.Suggested(context.Background(), "u1", 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("порядок рекомендаций должен быть детерминированным")
	}
}

func TestCacheKeysDisjointAcrossKinds(t *testing.T) {
	cache := newFakeCache()
	posts := &stubPostRepo{
		recent: []domain.Post{makePost("p1", "other", 1, 0, time.Hour)},
		all:    buildCommunityPosts("mine", "other", 5),
	}
	members := &stubMembershipRepo{ids: []string{"mine"}}
	service := newTestService(posts, members, cache)

	if _, err := service.Trending(context.Background(), 1, 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := service.Home(context.Background(), "u1", 1, 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := service.Suggested(context.Background(), "u1", 1, 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(cache.entries) != 3 {
		t.Fatalf("ожидали три независимые записи кэша, получили %d", len(cache.entries))
	}
}

func TestRefreshTrendingOverwritesCache(t *testing.T) {
	cache := newFakeCache()
	posts := &stubPostRepo{recent: []domain.Post{makePost("p1", "c1", 1, 0, time.Hour)}}
	service := newTestService(posts, &stubMembershipRepo{}, cache)

	if _, err := service.Trending(context.Background(), 1, 20); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	posts.recent = append(posts.recent, makePost("p2", "c1", 50, 0, time.Minute))

	refreshed, err := service.RefreshTrending(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(refreshed.Posts) != 2 {
		t.Fatalf("прогрев должен пересчитать страницу, получили %d постов", len(refreshed.Posts))
	}

	cached, err := service.Trending(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !reflect.DeepEqual(refreshed, cached) {
		t.Fatalf("после прогрева чтение должно отдавать свежую страницу")
	}
	if posts.recentCalls != 2 {
		t.Fatalf("ожидали два пересчёта, получили %d", posts.recentCalls)
	}
}
