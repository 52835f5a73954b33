package ranker

import (
	"testing"
	"time"

	"community-feed/internal/domain"
)

func TestTrendingScoreZeroAge(t *testing.T) {
	now := time.Now().UTC()
	if got := TrendingScore(now, 100, 50, now); got != 0 {
		t.Fatalf("ожидали 0 для поста нулевого возраста, получили %f", got)
	}
}

func TestTrendingScoreMonotonicInUpvotes(t *testing.T) {
	now := time.Now().UTC()
	created := now.Add(-3 * time.Hour)
	prev := TrendingScore(created, 0, 5, now)
	for up := 1; up <= 50; up++ {
		score := TrendingScore(created, up, 5, now)
		if score < prev {
			t.Fatalf("оценка убывает при росте голосов: %d → %f < %f", up, score, prev)
		}
		prev = score
	}
}

func TestTrendingScoreDecaysWithAge(t *testing.T) {
	now := time.Now().UTC()
	young := TrendingScore(now.Add(-1*time.Hour), 10, 0, now)
	older := TrendingScore(now.Add(-5*time.Hour), 10, 0, now)
	oldest := TrendingScore(now.Add(-23*time.Hour), 10, 0, now)
	if !(young > older && older > oldest) {
		t.Fatalf("ожидали убывание оценки с возрастом: %f, %f, %f", young, older, oldest)
	}
}

func TestTrendingScoreVelocityFloor(t *testing.T) {
	now := time.Now().UTC()
	// Пост возрастом в несколько минут не должен получать оценку
	// выше, чем при возрасте в полчаса с той же вовлечённостью.
	floor := TrendingScore(now.Add(-30*time.Minute), 3, 0, now)
	fresh := TrendingScore(now.Add(-2*time.Minute), 3, 0, now)
	if fresh > floor*2 {
		t.Fatalf("порог скорости не сработал: %f против %f", fresh, floor)
	}
}

func TestRankOrdersByScore(t *testing.T) {
	now := time.Now().UTC()
	posts := []domain.Post{
		{ID: "old", UpvoteCount: 10, CreatedAt: now.Add(-23 * time.Hour)},
		{ID: "young", UpvoteCount: 10, CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "mid", UpvoteCount: 10, CreatedAt: now.Add(-5 * time.Hour)},
	}
	ranked := Rank(posts, now)
	if len(ranked) != 3 {
		t.Fatalf("ожидали 3 элемента, получили %d", len(ranked))
	}
	order := []string{ranked[0].Post.ID, ranked[1].Post.ID, ranked[2].Post.ID}
	want := []string{"young", "mid", "old"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ожидали порядок %v, получили %v", want, order)
		}
	}
}

func TestRankStableOnTies(t *testing.T) {
	now := time.Now().UTC()
	created := now.Add(-4 * time.Hour)
	posts := []domain.Post{
		{ID: "a", UpvoteCount: 5, CreatedAt: created},
		{ID: "b", UpvoteCount: 5, CreatedAt: created},
		{ID: "c", UpvoteCount: 5, CreatedAt: created},
	}
	ranked := Rank(posts, now)
	for i, id := range []string{"a", "b", "c"} {
		if ranked[i].Post.ID != id {
			t.Fatalf("стабильность нарушена: на позиции %d ожидали %s, получили %s", i, id, ranked[i].Post.ID)
		}
	}
}

func TestRankEmpty(t *testing.T) {
	if got := Rank(nil, time.Now()); got != nil {
		t.Fatalf("ожидали nil для пустого входа")
	}
}
