package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"dailyvote-bot/models"
)

// Rejection reasons returned by RecordVote.
const (
	ReasonNotFound     = "not_found"
	ReasonExpired      = "expired"
	ReasonInvalidEntry = "invalid_entry"
)

// EntryInput describes one candidate when creating a poll.
type EntryInput struct {
	ImageRef string
	Prompt   string
	Caption  string
}

// VoteResult is the outcome of one vote click.
type VoteResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	// IsNewVote is true only on the user's first accepted vote in the poll.
	IsNewVote bool `json:"is_new_vote"`
	// Retracted is true when the click removed the user's vote.
	Retracted bool `json:"retracted"`
	// Reclaimed is true when the retraction takes back the first-vote point.
	Reclaimed bool `json:"reclaimed"`
	// Changed is true when the vote moved from another entry.
	Changed     bool                `json:"changed"`
	EntryNumber int                 `json:"entry_number"`
	Counts      []models.EntryCount `json:"counts,omitempty"`
}

// PollEngine owns every mutation of live poll state.
// All voter-set reads and writes happen under mu.
type PollEngine struct {
	mu      sync.Mutex
	store   *VoteStore
	journal VoteJournal
	clock   Clock
}

// NewPollEngine creates an engine over store. journal may be nil.
func NewPollEngine(store *VoteStore, journal VoteJournal, clock Clock) *PollEngine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &PollEngine{store: store, journal: journal, clock: clock}
}

// Store returns the engine's vote store.
func (e *PollEngine) Store() *VoteStore {
	return e.store
}

// CreatePoll builds an unregistered poll numbered 1..N.
func (e *PollEngine) CreatePoll(entries []EntryInput, endTime time.Time) (*models.Poll, error) {
	if len(entries) < 1 || len(entries) > models.MaxEntries {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidEntryCount, len(entries))
	}

	poll := &models.Poll{
		Entries:    make([]*models.PollEntry, 0, len(entries)),
		EndTime:    endTime,
		VotedUsers: make(map[string]struct{}),
		Credited:   make(map[string]struct{}),
	}
	for i, in := range entries {
		poll.Entries = append(poll.Entries, &models.PollEntry{
			Number:   i + 1,
			ImageRef: in.ImageRef,
			Prompt:   in.Prompt,
			Caption:  in.Caption,
			Voters:   make(map[string]struct{}),
		})
	}
	return poll, nil
}

// Register assigns the presentation id and makes the poll votable.
func (e *PollEngine) Register(poll *models.Poll, messageID string) error {
	if messageID == "" {
		return ErrMissingPresentationID
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	poll.ID = messageID
	e.store.Set(messageID, poll)
	return nil
}

// Evict removes a poll from the store.
func (e *PollEngine) Evict(pollID string) (*models.Poll, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Remove(pollID)
}

// RecordVote applies a click on entryNumber by userID.
//
// Clicking the entry the user already votes for retracts the vote; clicking
// another entry moves it. Expired polls are evicted and reject the vote.
func (e *PollEngine) RecordVote(ctx context.Context, pollID string, entryNumber int, userID string) VoteResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	poll, ok := e.store.Get(pollID)
	if !ok {
		return VoteResult{Reason: ReasonNotFound, EntryNumber: entryNumber}
	}
	if poll.Expired(e.clock.Now()) {
		e.store.Remove(pollID)
		log.Printf("engine: poll %s expired, evicted on vote", pollID)
		return VoteResult{Reason: ReasonExpired, EntryNumber: entryNumber}
	}
	entry, ok := poll.Entry(entryNumber)
	if !ok {
		return VoteResult{Reason: ReasonInvalidEntry, EntryNumber: entryNumber}
	}

	res := applyVote(poll, entry, userID)

	if e.journal != nil {
		ev := &models.VoteEvent{MessageID: pollID, UserID: userID, EntryNumber: entryNumber, CreatedAt: e.clock.Now()}
		if err := e.journal.Append(ctx, ev); err != nil {
			log.Printf("engine: journal vote on poll %s failed: %v", pollID, err)
		}
	}

	res.Counts = tally(poll)
	return res
}

func applyVote(poll *models.Poll, entry *models.PollEntry, userID string) VoteResult {
	res := VoteResult{Accepted: true, EntryNumber: entry.Number}

	if entry.HasVoter(userID) {
		delete(entry.Voters, userID)
		res.Retracted = true
		if _, ok := poll.Credited[userID]; ok {
			delete(poll.Credited, userID)
			res.Reclaimed = true
		}
		return res
	}

	for _, other := range poll.Entries {
		if other != entry && other.HasVoter(userID) {
			delete(other.Voters, userID)
			res.Changed = true
		}
	}
	entry.Voters[userID] = struct{}{}

	if _, seen := poll.VotedUsers[userID]; !seen {
		poll.VotedUsers[userID] = struct{}{}
		poll.Credited[userID] = struct{}{}
		res.IsNewVote = true
	}
	return res
}

// Restore rebuilds an unregistered poll from a record snapshot and replays
// its journaled votes through the same state machine.
func (e *PollEngine) Restore(rec *models.DailyVoteRecord, events []models.VoteEvent) (*models.Poll, error) {
	inputs := make([]EntryInput, 0, len(rec.Entries))
	for _, s := range rec.Entries {
		inputs = append(inputs, EntryInput{ImageRef: s.ImageRef, Prompt: s.Prompt, Caption: s.Caption})
	}

	var end time.Time
	if rec.FinalizeAt != nil {
		end = *rec.FinalizeAt
	}
	poll, err := e.CreatePoll(inputs, end)
	if err != nil {
		return nil, err
	}
	poll.RecordID = rec.ID
	if rec.PresentationMessageID != nil {
		poll.ID = *rec.PresentationMessageID
	}

	for _, ev := range events {
		if entry, ok := poll.Entry(ev.EntryNumber); ok {
			applyVote(poll, entry, ev.UserID)
		}
	}
	return poll, nil
}

// Rebuild restores rec's poll from the vote journal and returns it with the
// number of replayed events. Without a journal the poll has no votes.
func (e *PollEngine) Rebuild(ctx context.Context, rec *models.DailyVoteRecord) (*models.Poll, int, error) {
	var events []models.VoteEvent
	if e.journal != nil && rec.PresentationMessageID != nil {
		var err error
		events, err = e.journal.ListByMessage(ctx, *rec.PresentationMessageID)
		if err != nil {
			return nil, 0, fmt.Errorf("load journal: %w", err)
		}
	}
	poll, err := e.Restore(rec, events)
	if err != nil {
		return nil, 0, err
	}
	return poll, len(events), nil
}

// DetermineWinner returns every entry number sharing the highest count.
// With no votes at all every entry ties.
func (e *PollEngine) DetermineWinner(poll *models.Poll) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return winners(poll)
}

func winners(poll *models.Poll) []int {
	best := -1
	var out []int
	for _, entry := range poll.Entries {
		n := entry.VoteCount()
		switch {
		case n > best:
			best = n
			out = []int{entry.Number}
		case n == best:
			out = append(out, entry.Number)
		}
	}
	return out
}

// TotalVotes counts the votes currently placed in the poll.
func (e *PollEngine) TotalVotes(poll *models.Poll) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return totalVotes(poll)
}

func totalVotes(poll *models.Poll) int {
	total := 0
	for _, entry := range poll.Entries {
		total += entry.VoteCount()
	}
	return total
}

func tally(poll *models.Poll) []models.EntryCount {
	counts := make([]models.EntryCount, 0, len(poll.Entries))
	for _, entry := range poll.Entries {
		counts = append(counts, models.EntryCount{Number: entry.Number, Caption: entry.Caption, Votes: entry.VoteCount()})
	}
	return counts
}

// Snapshot copies a registered poll's public state.
func (e *PollEngine) Snapshot(pollID string) (models.PollSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	poll, ok := e.store.Get(pollID)
	if !ok {
		return models.PollSnapshot{}, false
	}
	return snapshot(poll), true
}

// SnapshotOf copies any poll's public state.
func (e *PollEngine) SnapshotOf(poll *models.Poll) models.PollSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(poll)
}

// Snapshots copies every registered poll.
func (e *PollEngine) Snapshots() []models.PollSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.store.All()
	out := make([]models.PollSnapshot, 0, len(all))
	for _, p := range all {
		out = append(out, snapshot(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out
}

func snapshot(poll *models.Poll) models.PollSnapshot {
	entries := make([]models.EntrySnapshot, 0, len(poll.Entries))
	for _, entry := range poll.Entries {
		entries = append(entries, models.EntrySnapshot{
			Number:   entry.Number,
			ImageRef: entry.ImageRef,
			Prompt:   entry.Prompt,
			Caption:  entry.Caption,
		})
	}
	return models.PollSnapshot{
		ID:         poll.ID,
		RecordID:   poll.RecordID,
		EndTime:    poll.EndTime,
		Entries:    entries,
		Counts:     tally(poll),
		TotalVotes: totalVotes(poll),
		Voters:     len(poll.VotedUsers),
	}
}
