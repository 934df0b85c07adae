package service

import (
	"context"
	"testing"
	"time"

	"dailyvote-bot/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoteService_FourEntryScenario(t *testing.T) {
	env := newTestEnv(t, base)
	rec := env.startPoll(t, "2026-10-17", "m1", base.Add(24*time.Hour), 4)
	svc := NewVoteService(env.engine, env.ledger, nil, env.broadcaster)
	ctx := context.Background()

	for _, v := range []struct {
		user  string
		entry int
	}{{"U1", 2}, {"U2", 2}, {"U3", 4}} {
		res := svc.Cast(ctx, "m1", v.entry, v.user, v.user)
		require.True(t, res.Accepted)
		assert.True(t, res.IsNewVote)
		require.NotNil(t, res.Points)
		assert.Equal(t, PointsResult{Success: true, NewTotal: 1}, *res.Points)
		assert.Equal(t, MsgVoteRecorded, res.Message)
	}

	poll, ok := env.engine.Store().Get("m1")
	require.True(t, ok)
	assert.Equal(t, []int{2}, env.engine.DetermineWinner(poll))
	assert.Equal(t, 3, env.engine.TotalVotes(poll))
	assert.Equal(t, "m1:VOTE_UPDATE,m1:VOTE_UPDATE,m1:VOTE_UPDATE", env.broadcaster.joined())

	res, err := env.publisher.Finalize(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, 2, res.Winner.Number)
	assert.Equal(t, 3, res.TotalVotes)
}

func TestVoteService_RetractReclaimsPoint(t *testing.T) {
	env := newTestEnv(t, base)
	env.startPoll(t, "2026-10-17", "m1", base.Add(24*time.Hour), 3)
	svc := NewVoteService(env.engine, env.ledger, nil, nil)
	ctx := context.Background()

	res := svc.Cast(ctx, "m1", 1, "u1", "alice")
	assert.Equal(t, int64(1), res.Points.NewTotal)

	res = svc.Cast(ctx, "m1", 2, "u1", "alice")
	assert.True(t, res.Changed)
	assert.Nil(t, res.Points, "changing entry has no point effect")
	assert.Equal(t, MsgVoteChanged, res.Message)

	res = svc.Cast(ctx, "m1", 2, "u1", "alice")
	assert.True(t, res.Retracted)
	assert.Equal(t, int64(0), res.Points.NewTotal)
	assert.Equal(t, MsgVoteRetracted, res.Message)

	res = svc.Cast(ctx, "m1", 3, "u1", "alice")
	assert.True(t, res.Accepted)
	assert.Nil(t, res.Points, "re-voting never re-awards")

	balance, err := env.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestVoteService_TogglingNeverDrainsPoints(t *testing.T) {
	env := newTestEnv(t, base)
	env.startPoll(t, "2026-10-17", "m1", base.Add(24*time.Hour), 2)
	svc := NewVoteService(env.engine, env.ledger, nil, nil)
	ctx := context.Background()

	// points earned in earlier polls
	require.True(t, env.ledger.AddPoints(ctx, "u1", "alice", 5).Success)

	for i := 1; i <= 12; i++ {
		res := svc.Cast(ctx, "m1", 1, "u1", "alice")
		require.True(t, res.Accepted)

		balance, err := env.ledger.Balance(ctx, "u1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, balance, int64(5), "click %d", i)
		assert.LessOrEqual(t, balance, int64(6), "click %d", i)
	}

	balance, err := env.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance, "an even number of clicks leaves no vote and no point")
}

func TestVoteService_Rejections(t *testing.T) {
	env := newTestEnv(t, base)
	env.startPoll(t, "2026-10-17", "m1", base.Add(time.Hour), 2)
	limiter := cache.NewUserRateLimiter(0.001, 2)
	svc := NewVoteService(env.engine, env.ledger, limiter, nil)
	ctx := context.Background()

	res := svc.Cast(ctx, "m1", 5, "u1", "alice")
	assert.False(t, res.Accepted)
	assert.Equal(t, MsgInvalidEntry, res.Message)

	env.clock.Advance(2 * time.Hour)
	res = svc.Cast(ctx, "m1", 1, "u2", "bob")
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonExpired, res.Reason)
	assert.Equal(t, MsgVoteEnded, res.Message)

	res = svc.Cast(ctx, "m1", 1, "u1", "alice")
	assert.Equal(t, ReasonNotFound, res.Reason)
	assert.Equal(t, MsgVoteEnded, res.Message)

	res = svc.Cast(ctx, "m1", 1, "u1", "alice")
	assert.True(t, res.Throttled)
	assert.Equal(t, MsgThrottled, res.Message)
}
