package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"community-feed/internal/infra/config"
	"community-feed/internal/infra/db"
	applog "community-feed/internal/infra/log"
)

// seed наполняет локальную БД тестовыми пользователями, сообществами и
// постами, чтобы ленты было на чём проверять. В проде не используется.
func main() {
	users := flag.Int("users", 20, "сколько пользователей создать")
	communities := flag.Int("communities", 8, "сколько сообществ создать")
	posts := flag.Int("posts", 200, "сколько постов создать")
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed: нет подключения к БД")
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := ensureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("seed: не удалось создать схему")
	}

	faker := gofakeit.New(0)
	now := time.Now().UTC()

	userIDs := make([]string, 0, *users)
	for i := 0; i < *users; i++ {
		id := uuid.NewString()
		if _, err := pool.Exec(ctx, `
INSERT INTO users (id, username) VALUES ($1, $2)
`, id, faker.Username()); err != nil {
			logger.Fatal().Err(err).Msg("seed: не удалось создать пользователя")
		}
		userIDs = append(userIDs, id)
	}

	communityIDs := make([]string, 0, *communities)
	for i := 0; i < *communities; i++ {
		id := uuid.NewString()
		if _, err := pool.Exec(ctx, `
INSERT INTO communities (id, name) VALUES ($1, $2)
`, id, faker.NounAbstract()+"-"+faker.Adjective()); err != nil {
			logger.Fatal().Err(err).Msg("seed: не удалось создать сообщество")
		}
		communityIDs = append(communityIDs, id)
	}

	// Каждый пользователь вступает примерно в треть сообществ.
	for _, userID := range userIDs {
		for _, communityID := range communityIDs {
			if rand.Intn(3) != 0 {
				continue
			}
			if _, err := pool.Exec(ctx, `
INSERT INTO community_members (user_id, community_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, userID, communityID); err != nil {
				logger.Fatal().Err(err).Msg("seed: не удалось создать подписку")
			}
		}
	}

	for i := 0; i < *posts; i++ {
		createdAt := now.Add(-time.Duration(rand.Intn(48*60)) * time.Minute)
		if _, err := pool.Exec(ctx, `
INSERT INTO posts (id, community_id, author_id, title, url, upvote_count, comment_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`,
			uuid.NewString(),
			communityIDs[rand.Intn(len(communityIDs))],
			userIDs[rand.Intn(len(userIDs))],
			faker.Sentence(6),
			faker.URL(),
			rand.Intn(200),
			rand.Intn(60),
			createdAt,
		); err != nil {
			logger.Fatal().Err(err).Msg("seed: не удалось создать пост")
		}
	}

	logger.Info().
		Int("users", *users).
		Int("communities", *communities).
		Int("posts", *posts).
		Msg("seed: готово")
	fmt.Println("ok")
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS communities (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS community_members (
    user_id TEXT NOT NULL REFERENCES users(id),
    community_id TEXT NOT NULL REFERENCES communities(id),
    PRIMARY KEY (user_id, community_id)
);
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    community_id TEXT NOT NULL REFERENCES communities(id),
    author_id TEXT NOT NULL REFERENCES users(id),
    title TEXT NOT NULL,
    url TEXT,
    upvote_count INT NOT NULL DEFAULT 0,
    comment_count INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS posts_created_at_idx ON posts (created_at DESC);
CREATE INDEX IF NOT EXISTS posts_community_engagement_idx ON posts (community_id, (upvote_count + comment_count) DESC, created_at DESC);
`)
	return err
}
