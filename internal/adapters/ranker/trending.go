package ranker

import (
	"math"
	"sort"
	"time"

	"community-feed/internal/domain"
)

const (
	// velocityFloorHours — нижняя граница возраста при расчёте скорости,
	// чтобы пара ранних голосов не давала гигантскую скорость.
	velocityFloorHours = 0.5
	// gravityOffsetHours сдвигает кривую затухания от сингулярности в нуле.
	gravityOffsetHours = 2.0
	// gravityExponent — степень затухания в духе Hacker News.
	gravityExponent = 1.5
	// scoreScale держит оценки в человекочитаемом диапазоне,
	// на относительный порядок не влияет.
	scoreScale = 1000.0
)

// TrendingScore оценивает пост по скорости набора вовлечённости и возрасту.
// Детерминирована, без ввода-вывода; выше — значит трендовее сейчас.
func TrendingScore(createdAt time.Time, upvotes, comments int, now time.Time) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours == 0 {
		return 0
	}
	engagement := float64(upvotes + comments)
	velocity := engagement / math.Max(ageHours, velocityFloorHours)
	gravity := 1 / math.Pow(ageHours+gravityOffsetHours, gravityExponent)
	return velocity * gravity * scoreScale
}

// Rank оценивает посты и сортирует по убыванию оценки.
// Сортировка стабильная: при равных оценках сохраняется порядок репозитория.
func Rank(posts []domain.Post, now time.Time) []domain.RankedPost {
	if len(posts) == 0 {
		return nil
	}
	items := make([]domain.RankedPost, 0, len(posts))
	for _, p := range posts {
		score := TrendingScore(p.CreatedAt, p.UpvoteCount, p.CommentCount, now)
		items = append(items, domain.RankedPost{Post: p, Score: score})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items
}
