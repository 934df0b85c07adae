package service

import (
	"context"
	"errors"
	"time"

	"dailyvote-bot/models"
)

var (
	// ErrInvalidEntryCount a poll needs between 1 and 9 entries
	ErrInvalidEntryCount = errors.New("poll must have between 1 and 9 entries")
	// ErrMissingPresentationID a poll cannot be registered without its message id
	ErrMissingPresentationID = errors.New("presentation id is required")
	// ErrNoImages every image request of a cycle failed
	ErrNoImages = errors.New("no images could be generated")
	// ErrGenerationInProgress another poll creation is running
	ErrGenerationInProgress = errors.New("poll generation already in progress")
	// ErrNoActivePoll there is no active daily poll to finalize
	ErrNoActivePoll = errors.New("no active daily poll")
	// ErrNoPresenter polls cannot be started before a presenter is attached
	ErrNoPresenter = errors.New("no presenter attached")
)

// Clock abstracts time for the engine and scheduler.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Prompt is one image request with the caption shown to voters.
type Prompt struct {
	Text    string
	Caption string
}

// PromptSource chooses the prompts of a daily poll.
type PromptSource interface {
	Prompts(ctx context.Context, n int) ([]Prompt, error)
}

// ImageSupplier turns a prompt into an opaque image reference.
type ImageSupplier interface {
	RequestImage(ctx context.Context, prompt string) (string, error)
}

// SocialPoster publishes a winner externally and returns the post id.
// Calls for the same recordID describe the same post.
type SocialPoster interface {
	Post(ctx context.Context, recordID, caption, imageRef string) (string, error)
}

// Presenter renders polls and results for users.
type Presenter interface {
	// RenderPoll shows a new poll and returns its message id.
	RenderPoll(ctx context.Context, poll models.PollSnapshot) (string, error)
	AnnounceResult(ctx context.Context, result FinalizeResult) error
}

// EventPublisher emits poll lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// Broadcaster pushes live updates to watchers of a poll.
type Broadcaster interface {
	BroadcastToPoll(pollID string, msgType string, payload interface{})
}

// Locker serializes work across bot instances.
type Locker interface {
	WithLock(ctx context.Context, lockName string, expiry time.Duration, action func() error) error
}

// VoteJournal persists accepted votes in apply order.
type VoteJournal interface {
	Append(ctx context.Context, ev *models.VoteEvent) error
	ListByMessage(ctx context.Context, messageID string) ([]models.VoteEvent, error)
}

// Event types published on the lifecycle topic.
const (
	EventPollStarted   = "poll.started"
	EventPollFinalized = "poll.finalized"
)

// Websocket message types.
const (
	MsgVoteUpdate = "VOTE_UPDATE"
	MsgPollResult = "POLL_RESULT"
)

func withLock(ctx context.Context, l Locker, name string, expiry time.Duration, action func() error) error {
	if l == nil {
		return action()
	}
	return l.WithLock(ctx, name, expiry, action)
}
