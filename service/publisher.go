package service

import (
	"context"
	"log"
	"sync"
	"time"

	"dailyvote-bot/models"
	"dailyvote-bot/repository"
)

const finalizeLockExpiry = 2 * time.Minute

// FinalizeResult describes how a daily vote ended.
type FinalizeResult struct {
	RecordID   string                `json:"record_id"`
	MessageID  string                `json:"message_id,omitempty"`
	Winners    []int                 `json:"winners,omitempty"`
	Winner     *models.EntrySnapshot `json:"winner,omitempty"`
	TotalVotes int                   `json:"total_votes"`
	Counts     []models.EntryCount   `json:"counts,omitempty"`
	Posted     bool                  `json:"posted"`
	PostID     string                `json:"post_id,omitempty"`
	PostStatus models.PostStatus     `json:"post_status"`
	// AlreadyFinalized is set when the record had ended before this call.
	AlreadyFinalized bool `json:"already_finalized"`
}

// PublisherDeps are the collaborators of a ResultPublisher.
// Records and Engine are required, the rest may be nil.
type PublisherDeps struct {
	Records     repository.RecordRepository
	Engine      *PollEngine
	Poster      SocialPoster
	Events      EventPublisher
	Broadcaster Broadcaster
	Locker      Locker
	Clock       Clock
}

// ResultPublisher finalizes daily votes and publishes their winner.
type ResultPublisher struct {
	mu        sync.Mutex
	deps      PublisherDeps
	presenter Presenter
}

// NewResultPublisher creates a publisher.
func NewResultPublisher(deps PublisherDeps) *ResultPublisher {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	return &ResultPublisher{deps: deps}
}

// SetPresenter attaches the layer that announces results. Call before use.
func (p *ResultPublisher) SetPresenter(presenter Presenter) {
	p.mu.Lock()
	p.presenter = presenter
	p.mu.Unlock()
}

// FinalizeByMessage finalizes the record rendered as messageID.
func (p *ResultPublisher) FinalizeByMessage(ctx context.Context, messageID string) (FinalizeResult, error) {
	rec, err := p.deps.Records.GetByMessageID(ctx, messageID)
	if err != nil {
		return FinalizeResult{MessageID: messageID}, err
	}
	return p.Finalize(ctx, rec.ID)
}

// Finalize ends the record's vote once. Later calls return the stored
// outcome with AlreadyFinalized set and never post again.
func (p *ResultPublisher) Finalize(ctx context.Context, recordID string) (FinalizeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result FinalizeResult
	err := withLock(ctx, p.deps.Locker, "daily-vote:finalize:"+recordID, finalizeLockExpiry, func() error {
		var ferr error
		result, ferr = p.finalize(ctx, recordID)
		return ferr
	})
	if err != nil {
		return result, err
	}
	if !result.AlreadyFinalized {
		p.notify(ctx, result)
	}
	return result, nil
}

func (p *ResultPublisher) finalize(ctx context.Context, recordID string) (FinalizeResult, error) {
	rec, err := p.deps.Records.GetByID(ctx, recordID)
	if err != nil {
		return FinalizeResult{RecordID: recordID}, err
	}
	if !rec.IsActive {
		return storedResult(rec), nil
	}

	result := FinalizeResult{RecordID: rec.ID, PostStatus: models.PostStatusNone}
	outcome := repository.Outcome{EndedAt: p.deps.Clock.Now(), PostStatus: models.PostStatusNone}

	var poll *models.Poll
	if rec.PresentationMessageID != nil {
		result.MessageID = *rec.PresentationMessageID
		poll = p.takePoll(ctx, rec)
	} else {
		log.Printf("publisher: record %s was never rendered, finalizing without winner", rec.ID)
	}

	if poll != nil {
		snap := p.deps.Engine.SnapshotOf(poll)
		result.Counts = snap.Counts
		result.TotalVotes = snap.TotalVotes
		result.Winners = p.deps.Engine.DetermineWinner(poll)

		switch {
		case result.TotalVotes == 0:
			log.Printf("publisher: record %s had no votes", rec.ID)
		case len(result.Winners) != 1:
			log.Printf("publisher: record %s tied between entries %v, nothing posted", rec.ID, result.Winners)
		default:
			entry, _ := poll.Entry(result.Winners[0])
			result.Winner = &models.EntrySnapshot{
				Number:   entry.Number,
				ImageRef: entry.ImageRef,
				Prompt:   entry.Prompt,
				Caption:  entry.Caption,
			}
			outcome.WinnerNumber = &entry.Number
			outcome.WinnerImageRef = &result.Winner.ImageRef
			outcome.WinnerCaption = &result.Winner.Caption
			p.post(ctx, rec, &result, &outcome)
		}
	}

	ok, err := p.deps.Records.Finalize(ctx, rec.ID, outcome)
	if err != nil {
		return result, err
	}
	if !ok {
		// another instance ended it between our read and write
		latest, gerr := p.deps.Records.GetByID(ctx, rec.ID)
		if gerr != nil {
			return result, gerr
		}
		return storedResult(latest), nil
	}

	log.Printf("publisher: finalized record %s (message %s), winners %v, %d votes, post status %q",
		rec.ID, result.MessageID, result.Winners, result.TotalVotes, result.PostStatus)
	return result, nil
}

// takePoll evicts the live poll, or rebuilds it when this process no
// longer holds it.
func (p *ResultPublisher) takePoll(ctx context.Context, rec *models.DailyVoteRecord) *models.Poll {
	messageID := *rec.PresentationMessageID
	if poll, ok := p.deps.Engine.Evict(messageID); ok {
		return poll
	}
	poll, replayed, err := p.deps.Engine.Rebuild(ctx, rec)
	if err != nil {
		log.Printf("publisher: rebuild poll %s failed: %v", messageID, err)
		return nil
	}
	log.Printf("publisher: rebuilt poll %s from %d journaled votes", messageID, replayed)
	return poll
}

func (p *ResultPublisher) post(ctx context.Context, rec *models.DailyVoteRecord, result *FinalizeResult, outcome *repository.Outcome) {
	recordID := rec.ID
	if rec.PostStatus == models.PostStatusPosted && rec.PostID != nil {
		// an earlier attempt posted but could not finalize
		log.Printf("publisher: record %s already posted as %s", recordID, *rec.PostID)
		markPosted(result, outcome, *rec.PostID)
		return
	}
	if p.deps.Poster == nil {
		log.Printf("publisher: no social poster configured, winner of %s not posted", recordID)
		return
	}

	claimed, err := p.deps.Records.MarkPosting(ctx, recordID)
	if err != nil {
		log.Printf("publisher: claim post for %s failed: %v", recordID, err)
		outcome.PostStatus = models.PostStatusFailed
		result.PostStatus = outcome.PostStatus
		return
	}
	if !claimed {
		log.Printf("publisher: post for %s was claimed by an earlier attempt, not posting again", recordID)
		outcome.PostStatus = models.PostStatusFailed
		result.PostStatus = outcome.PostStatus
		return
	}

	postID, err := p.deps.Poster.Post(ctx, recordID, result.Winner.Caption, result.Winner.ImageRef)
	if err != nil {
		log.Printf("publisher: social post for %s failed: %v", recordID, err)
		outcome.PostStatus = models.PostStatusFailed
		result.PostStatus = outcome.PostStatus
		return
	}
	if err := p.deps.Records.SetPosted(ctx, recordID, postID); err != nil {
		log.Printf("publisher: store post id %s for %s failed: %v", postID, recordID, err)
	}
	markPosted(result, outcome, postID)
}

func markPosted(result *FinalizeResult, outcome *repository.Outcome, postID string) {
	outcome.PostID = &postID
	outcome.PostStatus = models.PostStatusPosted
	result.Posted = true
	result.PostID = postID
	result.PostStatus = outcome.PostStatus
}

func (p *ResultPublisher) notify(ctx context.Context, result FinalizeResult) {
	if p.presenter != nil {
		if err := p.presenter.AnnounceResult(ctx, result); err != nil {
			log.Printf("publisher: announce result of %s failed: %v", result.RecordID, err)
		}
	}
	if p.deps.Events != nil {
		if err := p.deps.Events.Publish(ctx, EventPollFinalized, result); err != nil {
			log.Printf("publisher: publish %s event failed: %v", EventPollFinalized, err)
		}
	}
	if p.deps.Broadcaster != nil && result.MessageID != "" {
		p.deps.Broadcaster.BroadcastToPoll(result.MessageID, MsgPollResult, result)
	}
}

func storedResult(rec *models.DailyVoteRecord) FinalizeResult {
	result := FinalizeResult{
		RecordID:         rec.ID,
		PostStatus:       rec.PostStatus,
		AlreadyFinalized: true,
	}
	if rec.PresentationMessageID != nil {
		result.MessageID = *rec.PresentationMessageID
	}
	if rec.WinnerNumber != nil {
		result.Winners = []int{*rec.WinnerNumber}
		result.Winner = &models.EntrySnapshot{Number: *rec.WinnerNumber}
		if rec.WinnerImageRef != nil {
			result.Winner.ImageRef = *rec.WinnerImageRef
		}
		if rec.WinnerCaption != nil {
			result.Winner.Caption = *rec.WinnerCaption
		}
	}
	if rec.PostID != nil {
		result.PostID = *rec.PostID
		result.Posted = true
	}
	return result
}
