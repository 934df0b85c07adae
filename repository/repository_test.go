package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"dailyvote-bot/models"
	"dailyvote-bot/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestRecordRepository_SingleActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	first := &models.DailyVoteRecord{DayKey: "2026-10-16", IsActive: true}
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEmpty(t, first.ID)

	err := repo.Create(ctx, &models.DailyVoteRecord{DayKey: "2026-10-17", IsActive: true})
	assert.ErrorIs(t, err, ErrActiveRecordExists)

	err = repo.Create(ctx, &models.DailyVoteRecord{DayKey: "2026-10-16"})
	assert.ErrorIs(t, err, ErrDayTaken)

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)
}

func TestRecordRepository_Lifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	rec := &models.DailyVoteRecord{
		DayKey:   "2026-10-17",
		IsActive: true,
		Entries: []models.EntrySnapshot{
			{Number: 1, ImageRef: "https://img/1.png", Prompt: "p1", Caption: "c1"},
			{Number: 2, ImageRef: "https://img/2.png", Prompt: "p2", Caption: "c2"},
		},
	}
	require.NoError(t, repo.Create(ctx, rec))
	require.NoError(t, repo.SetPresentationID(ctx, rec.ID, "555"))

	byMsg, err := repo.GetByMessageID(ctx, "555")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byMsg.ID)
	require.Len(t, byMsg.Entries, 2)
	assert.Equal(t, "c2", byMsg.Entries[1].Caption)

	claimed, err := repo.MarkPosting(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = repo.MarkPosting(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "posting can only be claimed once")

	winner := 2
	ok, err := repo.Finalize(ctx, rec.ID, Outcome{
		EndedAt:        time.Now(),
		WinnerNumber:   &winner,
		WinnerImageRef: strPtr("https://img/2.png"),
		WinnerCaption:  strPtr("c2"),
		PostID:         strPtr("post-1"),
		PostStatus:     models.PostStatusPosted,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// Second finalize is a no-op and must not clear the winner.
	ok, err = repo.Finalize(ctx, rec.ID, Outcome{EndedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.WinnerCaption)
	assert.Equal(t, "c2", *got.WinnerCaption)
	assert.Equal(t, models.PostStatusPosted, got.PostStatus)

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestRecordRepository_SetPosted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	rec := &models.DailyVoteRecord{DayKey: "2026-10-17", IsActive: true}
	require.NoError(t, repo.Create(ctx, rec))

	err := repo.SetPosted(ctx, rec.ID, "post-1")
	assert.ErrorIs(t, err, ErrRecordNotFound, "an unclaimed post cannot be stored")

	claimed, err := repo.MarkPosting(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, repo.SetPosted(ctx, rec.ID, "post-1"))

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, models.PostStatusPosted, got.PostStatus)
	require.NotNil(t, got.PostID)
	assert.Equal(t, "post-1", *got.PostID)

	claimed, err = repo.MarkPosting(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "a stored post is not claimed again")

	ok, err := repo.Finalize(ctx, rec.ID, Outcome{EndedAt: time.Now(), PostID: got.PostID, PostStatus: models.PostStatusPosted})
	require.NoError(t, err)
	require.True(t, ok)
	assert.ErrorIs(t, repo.SetPosted(ctx, rec.ID, "post-2"), ErrRecordNotFound)
}

func TestRecordRepository_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = repo.GetByMessageID(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, repo.SetPresentationID(ctx, "missing", "1"), ErrRecordNotFound)

	day, err := repo.GetByDay(ctx, "2026-01-01")
	require.NoError(t, err)
	assert.Nil(t, day)
}

func TestPointsRepository_IncrementDecrement(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPointsRepository(db)
	ctx := context.Background()
	now := time.Now()

	total, err := repo.Increment(ctx, "u1", "alice", 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	total, err = repo.Increment(ctx, "u1", "alice2", 2, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	acc, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice2", acc.Username)

	for i := 0; i < 5; i++ {
		total, err = repo.Decrement(ctx, "u1", "", now)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(0), total)

	// No account is created by a decrement.
	total, err = repo.Decrement(ctx, "ghost", "ghost", now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	acc, err = repo.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestPointsRepository_ConcurrentIncrements(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPointsRepository(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Increment(ctx, "u1", "alice", 1, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), acc.Points)
}

func TestPointsRepository_Top(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPointsRepository(db)
	ctx := context.Background()
	now := time.Now()

	_, _ = repo.Increment(ctx, "a", "a", 5, now)
	_, _ = repo.Increment(ctx, "b", "b", 9, now)
	_, _ = repo.Increment(ctx, "c", "c", 1, now)

	top, err := repo.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].UserID)
	assert.Equal(t, "a", top[1].UserID)
}

func TestVoteEventRepository_Order(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewVoteEventRepository(db)
	ctx := context.Background()

	for i, entry := range []int{2, 1, 2} {
		require.NoError(t, repo.Append(ctx, &models.VoteEvent{MessageID: "m1", UserID: "u", EntryNumber: entry}), i)
	}
	require.NoError(t, repo.Append(ctx, &models.VoteEvent{MessageID: "m2", UserID: "u", EntryNumber: 3}))

	events, err := repo.ListByMessage(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []int{2, 1, 2}, []int{events[0].EntryNumber, events[1].EntryNumber, events[2].EntryNumber})
}
