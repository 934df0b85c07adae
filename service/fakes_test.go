package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"dailyvote-bot/models"
	"dailyvote-bot/repository"
	"dailyvote-bot/testutil"
)

// base is a daily creation time used across tests.
var base = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fakePrompts struct{}

func (fakePrompts) Prompts(_ context.Context, n int) ([]Prompt, error) {
	out := make([]Prompt, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Prompt{Text: fmt.Sprintf("prompt-%d", i), Caption: fmt.Sprintf("caption %d", i)})
	}
	return out, nil
}

type fakeImages struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls int
}

func (f *fakeImages) RequestImage(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[prompt] || f.fail["*"] {
		return "", errors.New("quota exceeded")
	}
	return "https://img.test/" + prompt + ".png", nil
}

type fakePoster struct {
	mu    sync.Mutex
	err   error
	calls int
	last  string
}

func (f *fakePoster) Post(_ context.Context, _, caption, imageRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.last = caption + "|" + imageRef
	return fmt.Sprintf("post-%d", f.calls), nil
}

func (f *fakePoster) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePresenter struct {
	mu        sync.Mutex
	err       error
	rendered  []models.PollSnapshot
	announced []FinalizeResult
}

func (f *fakePresenter) RenderPoll(_ context.Context, poll models.PollSnapshot) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.rendered = append(f.rendered, poll)
	return fmt.Sprintf("msg-%d", len(f.rendered)), nil
}

func (f *fakePresenter) AnnounceResult(_ context.Context, result FinalizeResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, result)
	return nil
}

type fakeEvents struct {
	mu    sync.Mutex
	types []string
}

func (f *fakeEvents) Publish(_ context.Context, eventType string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, eventType)
	return nil
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeBroadcaster) BroadcastToPoll(pollID, msgType string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, pollID+":"+msgType)
}

func (f *fakeBroadcaster) joined() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.msgs, ",")
}

// flakyPoints fails every call while fail is set.
type flakyPoints struct {
	repository.PointsRepository
	fail bool
}

func (f *flakyPoints) Increment(ctx context.Context, userID, username string, amount int64, at time.Time) (int64, error) {
	if f.fail {
		return 0, errors.New("database is locked")
	}
	return f.PointsRepository.Increment(ctx, userID, username, amount, at)
}

func (f *flakyPoints) Decrement(ctx context.Context, userID, username string, at time.Time) (int64, error) {
	if f.fail {
		return 0, errors.New("database is locked")
	}
	return f.PointsRepository.Decrement(ctx, userID, username, at)
}

type testEnv struct {
	clock       *testutil.FakeClock
	records     *repository.GormRecordRepository
	journal     *repository.GormVoteEventRepository
	points      *repository.GormPointsRepository
	engine      *PollEngine
	ledger      *PointsLedger
	poster      *fakePoster
	presenter   *fakePresenter
	events      *fakeEvents
	broadcaster *fakeBroadcaster
	publisher   *ResultPublisher
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)

	env := &testEnv{
		clock:       testutil.NewFakeClock(now),
		records:     repository.NewRecordRepository(db),
		journal:     repository.NewVoteEventRepository(db),
		points:      repository.NewPointsRepository(db),
		poster:      &fakePoster{},
		presenter:   &fakePresenter{},
		events:      &fakeEvents{},
		broadcaster: &fakeBroadcaster{},
	}
	env.engine = NewPollEngine(NewVoteStore(), env.journal, env.clock)
	env.ledger = NewPointsLedger(env.points, nil, env.clock)
	env.publisher = env.newPublisher(env.engine)
	return env
}

// restart simulates a new process sharing the same database.
func (e *testEnv) restart() {
	e.engine = NewPollEngine(NewVoteStore(), e.journal, e.clock)
	e.publisher = e.newPublisher(e.engine)
}

func (e *testEnv) newPublisher(engine *PollEngine) *ResultPublisher {
	p := NewResultPublisher(PublisherDeps{
		Records:     e.records,
		Engine:      engine,
		Poster:      e.poster,
		Events:      e.events,
		Broadcaster: e.broadcaster,
		Clock:       e.clock,
	})
	p.SetPresenter(e.presenter)
	return p
}

func (e *testEnv) newScheduler(images ImageSupplier) *DailyScheduler {
	s := NewDailyScheduler(SchedulerConfig{
		Location:         time.UTC,
		Hour:             12,
		Entries:          4,
		ImageConcurrency: 2,
		CheckInterval:    time.Minute,
		RetryDelay:       15 * time.Minute,
	}, SchedulerDeps{
		Records:   e.records,
		Engine:    e.engine,
		Publisher: e.publisher,
		Prompts:   fakePrompts{},
		Images:    images,
		Events:    e.events,
		Clock:     e.clock,
	})
	s.SetPresenter(e.presenter)
	return s
}

// startPoll persists an active record for dayKey and registers its poll
// under messageID, ending at endTime.
func (e *testEnv) startPoll(t *testing.T, dayKey, messageID string, endTime time.Time, entries int) *models.DailyVoteRecord {
	t.Helper()
	ctx := context.Background()

	inputs := make([]EntryInput, 0, entries)
	for i := 1; i <= entries; i++ {
		inputs = append(inputs, EntryInput{
			ImageRef: fmt.Sprintf("https://img.test/%d.png", i),
			Prompt:   fmt.Sprintf("prompt-%d", i),
			Caption:  fmt.Sprintf("caption %d", i),
		})
	}
	poll, err := e.engine.CreatePoll(inputs, endTime)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}

	started := e.clock.Now()
	rec := &models.DailyVoteRecord{
		DayKey:     dayKey,
		IsActive:   true,
		StartedAt:  &started,
		FinalizeAt: &endTime,
		Entries:    e.engine.SnapshotOf(poll).Entries,
	}
	if err := e.records.Create(ctx, rec); err != nil {
		t.Fatalf("create record: %v", err)
	}
	poll.RecordID = rec.ID
	if err := e.engine.Register(poll, messageID); err != nil {
		t.Fatalf("register poll: %v", err)
	}
	if err := e.records.SetPresentationID(ctx, rec.ID, messageID); err != nil {
		t.Fatalf("set presentation id: %v", err)
	}
	rec.PresentationMessageID = &messageID
	return rec
}

// vote applies counts[i] distinct votes to entry i+1.
func vote(t *testing.T, engine *PollEngine, pollID string, counts ...int) {
	t.Helper()
	for i, n := range counts {
		for j := 0; j < n; j++ {
			res := engine.RecordVote(context.Background(), pollID, i+1, fmt.Sprintf("user-%d-%d", i+1, j))
			if !res.Accepted {
				t.Fatalf("vote on entry %d rejected: %s", i+1, res.Reason)
			}
		}
	}
}
