package domain

import "time"

// Post — снимок вовлечённости поста из внешнего хранилища.
// Счётчики меняет внешний сервис голосования, здесь они только читаются.
type Post struct {
	ID            string    `json:"id"`
	CommunityID   string    `json:"community_id"`
	AuthorID      string    `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	CommunityName string    `json:"community_name"`
	Title         string    `json:"title"`
	URL           string    `json:"url,omitempty"`
	UpvoteCount   int       `json:"upvote_count"`
	CommentCount  int       `json:"comment_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Engagement возвращает суммарную вовлечённость поста.
func (p Post) Engagement() int {
	return p.UpvoteCount + p.CommentCount
}

// RankedPost хранит оценённый пост после ранжирования.
type RankedPost struct {
	Post  Post
	Score float64
}

// FeedPage — страница ленты, отдаваемая клиенту. После возврата не меняется;
// в кэше лежит ровно в том виде, в каком была собрана.
type FeedPage struct {
	Posts   []Post `json:"posts"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
	HasMore bool   `json:"has_more"`
}

// FeedKind различает виды лент в ключах кэша и метриках.
type FeedKind string

const (
	// FeedTrending — глобальная лента трендов.
	FeedTrending FeedKind = "trending"
	// FeedHome — персональная домашняя лента.
	FeedHome FeedKind = "home"
	// FeedSuggested — лента рекомендуемых сообществ.
	FeedSuggested FeedKind = "suggested"
)
