package service

import (
	"context"
	"log"
	"sync"

	"dailyvote-bot/cache"
	"dailyvote-bot/repository"
)

// PointsResult reports a balance change. On failure NewTotal is the last
// balance this process saw for the user.
type PointsResult struct {
	Success  bool  `json:"success"`
	NewTotal int64 `json:"new_total"`
}

// PointsLedger awards and reclaims gamification points.
type PointsLedger struct {
	repo  repository.PointsRepository
	board *cache.Leaderboard
	clock Clock

	mu        sync.Mutex
	lastKnown map[string]int64
}

// NewPointsLedger creates a ledger. board may be nil when redis is off.
func NewPointsLedger(repo repository.PointsRepository, board *cache.Leaderboard, clock Clock) *PointsLedger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &PointsLedger{
		repo:      repo,
		board:     board,
		clock:     clock,
		lastKnown: make(map[string]int64),
	}
}

// AddPoints adds amount to the user's balance, creating the account if needed.
func (l *PointsLedger) AddPoints(ctx context.Context, userID, username string, amount int64) PointsResult {
	if amount <= 0 {
		log.Printf("points: refusing non-positive award %d for %s", amount, userID)
		return PointsResult{Success: false, NewTotal: l.last(userID)}
	}

	total, err := l.repo.Increment(ctx, userID, username, amount, l.clock.Now())
	if err != nil {
		log.Printf("points: add %d for %s failed: %v", amount, userID, err)
		return PointsResult{Success: false, NewTotal: l.last(userID)}
	}
	l.remember(ctx, userID, username, total)
	return PointsResult{Success: true, NewTotal: total}
}

// RemovePoint takes one point back, never going below zero.
func (l *PointsLedger) RemovePoint(ctx context.Context, userID, username string) PointsResult {
	total, err := l.repo.Decrement(ctx, userID, username, l.clock.Now())
	if err != nil {
		log.Printf("points: remove point for %s failed: %v", userID, err)
		return PointsResult{Success: false, NewTotal: l.last(userID)}
	}
	l.remember(ctx, userID, username, total)
	return PointsResult{Success: true, NewTotal: total}
}

// Balance reads the user's current balance; unknown users have zero.
func (l *PointsLedger) Balance(ctx context.Context, userID string) (int64, error) {
	acc, err := l.repo.Get(ctx, userID)
	if err != nil {
		return l.last(userID), err
	}
	if acc == nil {
		return 0, nil
	}
	return acc.Points, nil
}

// Leaderboard returns the top balances, from redis when available.
func (l *PointsLedger) Leaderboard(ctx context.Context, limit int) ([]cache.LeaderboardEntry, error) {
	if l.board != nil {
		entries, err := l.board.Top(ctx, limit)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			log.Printf("points: leaderboard cache read failed, using database: %v", err)
		}
	}

	accs, err := l.repo.Top(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]cache.LeaderboardEntry, 0, len(accs))
	for _, a := range accs {
		entries = append(entries, cache.LeaderboardEntry{UserID: a.UserID, Username: a.Username, Points: a.Points})
	}
	return entries, nil
}

func (l *PointsLedger) remember(ctx context.Context, userID, username string, total int64) {
	l.mu.Lock()
	l.lastKnown[userID] = total
	l.mu.Unlock()

	if l.board != nil {
		if err := l.board.Set(ctx, userID, username, total); err != nil {
			log.Printf("points: leaderboard update for %s failed: %v", userID, err)
		}
	}
}

func (l *PointsLedger) last(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastKnown[userID]
}
