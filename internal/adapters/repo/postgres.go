package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"community-feed/internal/domain"
	"community-feed/internal/infra/metrics"
)

// Postgres реализует репозитории постов и подписок на основе pgxpool.
// Записи в таблицы делают внешние сервисы, здесь только чтение проекций.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.PostRepo       = (*Postgres)(nil)
	_ domain.MembershipRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const postColumns = `p.id, p.community_id, p.author_id, COALESCE(u.username, ''), COALESCE(c.name, ''), p.title, COALESCE(p.url, ''), p.upvote_count, p.comment_count, p.created_at`

const postJoins = `
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
LEFT JOIN communities c ON c.id = p.community_id`

// ListRecent возвращает до limit постов, созданных не раньше since.
func (p *Postgres) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+postColumns+postJoins+`
WHERE p.created_at >= $1
ORDER BY p.created_at DESC
LIMIT $2
`, since, limit)
	metrics.ObserveNetworkRequest("postgres", "posts_recent", "posts", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка свежих постов: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// ListByCommunities возвращает посты указанных сообществ, при exclude=true —
// всех остальных. Порядок: вовлечённость по убыванию, затем дата создания.
func (p *Postgres) ListByCommunities(ctx context.Context, communityIDs []string, exclude bool, limit, offset int) ([]domain.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}
	if communityIDs == nil {
		communityIDs = []string{}
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	filter := `p.community_id = ANY($1)`
	if exclude {
		filter = `NOT (p.community_id = ANY($1))`
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+postColumns+postJoins+`
WHERE `+filter+`
ORDER BY p.upvote_count + p.comment_count DESC, p.created_at DESC
LIMIT $2 OFFSET $3
`, communityIDs, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "posts_by_communities", "posts", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка постов по сообществам: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// ListCommunityIDs возвращает идентификаторы сообществ пользователя.
func (p *Postgres) ListCommunityIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT community_id FROM community_members WHERE user_id = $1
`, userID)
	metrics.ObserveNetworkRequest("postgres", "memberships_list", "community_members", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка подписок: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("чтение подписки: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход подписок: %w", err)
	}
	return ids, nil
}

func scanPosts(rows pgx.Rows) ([]domain.Post, error) {
	var posts []domain.Post
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(
			&post.ID,
			&post.CommunityID,
			&post.AuthorID,
			&post.AuthorName,
			&post.CommunityName,
			&post.Title,
			&post.URL,
			&post.UpvoteCount,
			&post.CommentCount,
			&post.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("чтение поста: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход постов: %w", err)
	}
	return posts, nil
}
