package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Points   int64  `json:"points"`
}

// Leaderboard mirrors point balances into a redis sorted set so ranking
// reads avoid the database.
type Leaderboard struct {
	client RedisClient
	key    string
}

// NewLeaderboard creates a leaderboard stored under key.
func NewLeaderboard(client RedisClient, key string) *Leaderboard {
	return &Leaderboard{client: client, key: key}
}

func (l *Leaderboard) namesKey() string {
	return l.key + ":names"
}

// Set records a user's current balance.
func (l *Leaderboard) Set(ctx context.Context, userID, username string, points int64) error {
	if l.client == nil {
		return ErrRedisNotAvailable
	}
	if err := l.client.ZAdd(ctx, l.key, redis.Z{Score: float64(points), Member: userID}).Err(); err != nil {
		return fmt.Errorf("leaderboard zadd: %w", err)
	}
	if username != "" {
		if err := l.client.HSet(ctx, l.namesKey(), userID, username).Err(); err != nil {
			return fmt.Errorf("leaderboard hset: %w", err)
		}
	}
	return nil
}

// Top returns the n highest balances, highest first.
func (l *Leaderboard) Top(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	if l.client == nil {
		return nil, ErrRedisNotAvailable
	}
	if n <= 0 {
		n = 10
	}

	zs, err := l.client.ZRevRangeWithScores(ctx, l.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard range: %w", err)
	}
	if len(zs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(zs))
	entries := make([]LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		id := fmt.Sprint(z.Member)
		ids = append(ids, id)
		entries = append(entries, LeaderboardEntry{UserID: id, Points: int64(z.Score)})
	}

	names, err := l.client.HMGet(ctx, l.namesKey(), ids...).Result()
	if err == nil {
		for i, name := range names {
			if s, ok := name.(string); ok && i < len(entries) {
				entries[i].Username = s
			}
		}
	}

	// zero balances stay in the set after reclaims
	out := entries[:0]
	for _, e := range entries {
		if e.Points > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}
