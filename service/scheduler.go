package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"dailyvote-bot/models"
	"dailyvote-bot/repository"

	"golang.org/x/sync/errgroup"
)

const generateLockExpiry = 10 * time.Minute

// SchedulerState is the phase of the daily cycle.
type SchedulerState string

const (
	StateIdle       SchedulerState = "idle"
	StateScheduled  SchedulerState = "scheduled"
	StateGenerating SchedulerState = "generating"
	StatePosted     SchedulerState = "posted"
	StateFinalizing SchedulerState = "finalizing"
)

// SchedulerConfig controls when and how daily polls are created.
type SchedulerConfig struct {
	Location         *time.Location
	Hour             int
	Minute           int
	Entries          int
	ImageConcurrency int
	CheckInterval    time.Duration
	RetryDelay       time.Duration
}

// SchedulerDeps are the collaborators of a DailyScheduler.
// Events and Locker may be nil.
type SchedulerDeps struct {
	Records   repository.RecordRepository
	Engine    *PollEngine
	Publisher *ResultPublisher
	Prompts   PromptSource
	Images    ImageSupplier
	Events    EventPublisher
	Locker    Locker
	Clock     Clock
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	State      SchedulerState `json:"state"`
	NextCheck  time.Time      `json:"next_check"`
	RetryAt    *time.Time     `json:"retry_at,omitempty"`
	Generating bool           `json:"generating"`
	LastError  string         `json:"last_error,omitempty"`
}

// DailyScheduler drives the create and finalize cycle of daily polls.
//
// Every wake-up re-derives the next action from the persisted records, so a
// restart or a missed timer never skips or doubles a day.
type DailyScheduler struct {
	cfg  SchedulerConfig
	deps SchedulerDeps

	generating atomic.Bool

	mu        sync.Mutex
	presenter Presenter
	state     SchedulerState
	nextCheck time.Time
	retryAt   time.Time
	lastErr   string
	cancel    context.CancelFunc
	done      chan struct{}

	wake chan struct{}
}

// NewDailyScheduler creates a scheduler. Missing config values get defaults.
func NewDailyScheduler(cfg SchedulerConfig, deps SchedulerDeps) *DailyScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Entries <= 0 {
		cfg.Entries = 4
	}
	if cfg.Entries > models.MaxEntries {
		cfg.Entries = models.MaxEntries
	}
	if cfg.ImageConcurrency <= 0 {
		cfg.ImageConcurrency = 1
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 15 * time.Minute
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	return &DailyScheduler{
		cfg:   cfg,
		deps:  deps,
		state: StateIdle,
		wake:  make(chan struct{}, 1),
	}
}

// SetPresenter attaches the layer that renders new polls. Call before Start.
func (s *DailyScheduler) SetPresenter(presenter Presenter) {
	s.mu.Lock()
	s.presenter = presenter
	s.mu.Unlock()
}

// Start recovers persisted state and runs the loop until Stop.
func (s *DailyScheduler) Start(ctx context.Context) {
	if err := s.Recover(ctx); err != nil {
		log.Printf("scheduler: recovery failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.Run(runCtx)
	}()
	log.Printf("scheduler: started, daily poll at %02d:%02d %s", s.cfg.Hour, s.cfg.Minute, s.cfg.Location)
}

// Stop cancels the loop and waits for it to exit.
func (s *DailyScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.setState(StateIdle)
	log.Println("scheduler: stopped")
}

// Wake makes the loop re-check immediately.
func (s *DailyScheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Recover reconciles the active record after a restart: an overdue record is
// finalized now, a running one gets its poll rebuilt from the vote journal.
func (s *DailyScheduler) Recover(ctx context.Context) error {
	rec, err := s.deps.Records.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("load active record: %w", err)
	}
	if rec == nil {
		log.Println("scheduler: no active daily vote to recover")
		return nil
	}

	now := s.deps.Clock.Now()
	if s.finalizeDue(rec, now) {
		log.Printf("scheduler: active record %s (%s) is overdue, finalizing now", rec.ID, rec.DayKey)
		s.setState(StateFinalizing)
		_, err := s.deps.Publisher.Finalize(ctx, rec.ID)
		s.setState(StateIdle)
		return err
	}

	s.setState(StatePosted)
	return s.ensureLive(ctx, rec)
}

// Run loops until ctx is cancelled.
func (s *DailyScheduler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		next := s.Tick(ctx)
		wait := next.Sub(s.deps.Clock.Now())
		if wait > s.cfg.CheckInterval {
			wait = s.cfg.CheckInterval
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Tick performs whatever the persisted state says is due and returns when
// the next action is due. It never panics on collaborator failures.
func (s *DailyScheduler) Tick(ctx context.Context) time.Time {
	now := s.deps.Clock.Now()

	rec, err := s.deps.Records.GetActive(ctx)
	if err != nil {
		return s.backoff(now, fmt.Errorf("load active record: %w", err))
	}

	if rec != nil {
		if s.finalizeDue(rec, now) {
			s.setState(StateFinalizing)
			if _, err := s.deps.Publisher.Finalize(ctx, rec.ID); err != nil {
				s.setState(StatePosted)
				return s.backoff(now, fmt.Errorf("finalize record %s: %w", rec.ID, err))
			}
			s.setState(StateIdle)
			s.clearError()
			return s.schedule(now)
		}

		if err := s.ensureLive(ctx, rec); err != nil {
			log.Printf("scheduler: %v", err)
		}
		s.setState(StatePosted)
		return s.schedule(s.deadline(rec))
	}

	today := DayKey(now, s.cfg.Location)
	existing, err := s.deps.Records.GetByDay(ctx, today)
	if err != nil {
		return s.backoff(now, fmt.Errorf("load record for %s: %w", today, err))
	}
	if existing != nil || now.Before(s.creationTime(now)) {
		s.setState(StateScheduled)
		return s.schedule(s.nextOccurrence(now))
	}

	if retry := s.retryTime(); now.Before(retry) {
		s.setState(StateScheduled)
		return s.schedule(retry)
	}

	if err := s.generateAndStartVote(ctx); err != nil {
		if errors.Is(err, ErrGenerationInProgress) {
			return s.schedule(now.Add(s.cfg.CheckInterval))
		}
		s.setState(StateScheduled)
		retry := s.backoff(now, fmt.Errorf("start daily vote: %w", err))
		s.mu.Lock()
		s.retryAt = retry
		s.mu.Unlock()
		return retry
	}
	s.clearError()
	return s.schedule(now)
}

// FinalizeNow ends the poll rendered as messageID ahead of its deadline.
func (s *DailyScheduler) FinalizeNow(ctx context.Context, messageID string) (FinalizeResult, error) {
	s.setState(StateFinalizing)
	res, err := s.deps.Publisher.FinalizeByMessage(ctx, messageID)
	s.setState(StateIdle)
	s.Wake()
	return res, err
}

// FinalizeActive ends the current daily vote ahead of its deadline.
func (s *DailyScheduler) FinalizeActive(ctx context.Context) (FinalizeResult, error) {
	rec, err := s.deps.Records.GetActive(ctx)
	if err != nil {
		return FinalizeResult{}, err
	}
	if rec == nil {
		return FinalizeResult{}, ErrNoActivePoll
	}
	s.setState(StateFinalizing)
	res, err := s.deps.Publisher.Finalize(ctx, rec.ID)
	s.setState(StateIdle)
	s.Wake()
	return res, err
}

// State returns the current phase.
func (s *DailyScheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot for health reporting.
func (s *DailyScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SchedulerStatus{
		State:      s.state,
		NextCheck:  s.nextCheck,
		Generating: s.generating.Load(),
		LastError:  s.lastErr,
	}
	if !s.retryAt.IsZero() {
		retry := s.retryAt
		st.RetryAt = &retry
	}
	return st
}

func (s *DailyScheduler) generateAndStartVote(ctx context.Context) error {
	if !s.generating.CompareAndSwap(false, true) {
		return ErrGenerationInProgress
	}
	defer s.generating.Store(false)

	s.setState(StateGenerating)
	return withLock(ctx, s.deps.Locker, "daily-vote:generate", generateLockExpiry, func() error {
		return s.startVote(ctx)
	})
}

func (s *DailyScheduler) startVote(ctx context.Context) error {
	s.mu.Lock()
	presenter := s.presenter
	s.mu.Unlock()
	if presenter == nil {
		return ErrNoPresenter
	}

	now := s.deps.Clock.Now()
	dayKey := DayKey(now, s.cfg.Location)

	// another instance may have won the lock first
	existing, err := s.deps.Records.GetByDay(ctx, dayKey)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("scheduler: daily vote for %s already exists (%s)", dayKey, existing.ID)
		return nil
	}

	prompts, err := s.deps.Prompts.Prompts(ctx, s.cfg.Entries)
	if err != nil {
		return fmt.Errorf("choose prompts: %w", err)
	}
	inputs := s.requestImages(ctx, prompts)
	if len(inputs) == 0 {
		return ErrNoImages
	}

	finalizeAt := s.nextOccurrence(now)
	poll, err := s.deps.Engine.CreatePoll(inputs, finalizeAt)
	if err != nil {
		return err
	}

	rec := &models.DailyVoteRecord{
		DayKey:     dayKey,
		IsActive:   true,
		StartedAt:  &now,
		FinalizeAt: &finalizeAt,
		Entries:    s.deps.Engine.SnapshotOf(poll).Entries,
	}
	if err := s.deps.Records.Create(ctx, rec); err != nil {
		return fmt.Errorf("persist daily vote: %w", err)
	}
	poll.RecordID = rec.ID

	messageID, err := presenter.RenderPoll(ctx, s.deps.Engine.SnapshotOf(poll))
	if err != nil {
		// the record cannot be voted on, end it so the day is not left hanging
		if _, ferr := s.deps.Publisher.Finalize(ctx, rec.ID); ferr != nil {
			log.Printf("scheduler: finalize unrendered record %s failed: %v", rec.ID, ferr)
		}
		return fmt.Errorf("render poll: %w", err)
	}
	if err := s.deps.Engine.Register(poll, messageID); err != nil {
		return err
	}
	if err := s.deps.Records.SetPresentationID(ctx, rec.ID, messageID); err != nil {
		log.Printf("scheduler: store message id %s on record %s failed: %v", messageID, rec.ID, err)
	}

	s.setState(StatePosted)
	log.Printf("scheduler: started daily vote %s for %s with %d entries, message %s, ends %s",
		rec.ID, dayKey, len(inputs), messageID, finalizeAt.Format(time.RFC3339))

	if s.deps.Events != nil {
		payload := map[string]interface{}{
			"record_id":   rec.ID,
			"message_id":  messageID,
			"day_key":     dayKey,
			"finalize_at": finalizeAt,
			"entries":     rec.Entries,
		}
		if err := s.deps.Events.Publish(ctx, EventPollStarted, payload); err != nil {
			log.Printf("scheduler: publish %s event failed: %v", EventPollStarted, err)
		}
	}
	return nil
}

// requestImages fetches one image per prompt; failed prompts are skipped.
func (s *DailyScheduler) requestImages(ctx context.Context, prompts []Prompt) []EntryInput {
	results := make([]*EntryInput, len(prompts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ImageConcurrency)
	for i, p := range prompts {
		i, p := i, p
		g.Go(func() error {
			ref, err := s.deps.Images.RequestImage(gctx, p.Text)
			if err != nil {
				log.Printf("scheduler: image for prompt %q failed, skipping: %v", p.Caption, err)
				return nil
			}
			results[i] = &EntryInput{ImageRef: ref, Prompt: p.Text, Caption: p.Caption}
			return nil
		})
	}
	_ = g.Wait()

	inputs := make([]EntryInput, 0, len(results))
	for _, r := range results {
		if r != nil {
			inputs = append(inputs, *r)
		}
	}
	return inputs
}

// ensureLive re-registers a running poll this process does not hold.
func (s *DailyScheduler) ensureLive(ctx context.Context, rec *models.DailyVoteRecord) error {
	if rec.PresentationMessageID == nil {
		return nil
	}
	messageID := *rec.PresentationMessageID
	if _, ok := s.deps.Engine.Store().Get(messageID); ok {
		return nil
	}

	poll, replayed, err := s.deps.Engine.Rebuild(ctx, rec)
	if err != nil {
		return fmt.Errorf("rebuild poll %s: %w", messageID, err)
	}
	if err := s.deps.Engine.Register(poll, messageID); err != nil {
		return err
	}
	log.Printf("scheduler: restored poll %s of record %s with %d journaled votes", messageID, rec.ID, replayed)
	return nil
}

// finalizeDue reports whether rec has reached its end. Records without a
// stored deadline end with their day; any record older than yesterday is overdue.
func (s *DailyScheduler) finalizeDue(rec *models.DailyVoteRecord, now time.Time) bool {
	today := DayKey(now, s.cfg.Location)
	if rec.FinalizeAt == nil {
		return rec.DayKey < today
	}
	if !now.Before(*rec.FinalizeAt) {
		return true
	}
	yesterday := DayKey(now.In(s.cfg.Location).AddDate(0, 0, -1), s.cfg.Location)
	return rec.DayKey < yesterday
}

func (s *DailyScheduler) deadline(rec *models.DailyVoteRecord) time.Time {
	if rec.FinalizeAt != nil {
		return *rec.FinalizeAt
	}
	return s.nextOccurrence(rec.CreatedAt)
}

func (s *DailyScheduler) creationTime(now time.Time) time.Time {
	local := now.In(s.cfg.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, s.cfg.Location)
}

// nextOccurrence is the first daily creation time strictly after t.
func (s *DailyScheduler) nextOccurrence(t time.Time) time.Time {
	next := s.creationTime(t)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *DailyScheduler) schedule(at time.Time) time.Time {
	s.mu.Lock()
	s.nextCheck = at
	s.mu.Unlock()
	return at
}

func (s *DailyScheduler) backoff(now time.Time, err error) time.Time {
	log.Printf("scheduler: %v, retrying in %s", err, s.cfg.RetryDelay)
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	return s.schedule(now.Add(s.cfg.RetryDelay))
}

func (s *DailyScheduler) retryTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryAt
}

func (s *DailyScheduler) clearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.retryAt = time.Time{}
	s.mu.Unlock()
}

func (s *DailyScheduler) setState(state SchedulerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// DayKey is the calendar day of t in loc, formatted YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
