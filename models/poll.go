package models

import (
	"time"
)

// MaxEntries is the largest number of candidates a single poll may carry.
const MaxEntries = 9

// PollEntry is one candidate image within a poll.
type PollEntry struct {
	Number   int    `json:"number"` // 1-based, stable for the poll's lifetime
	ImageRef string `json:"image_ref"`
	Prompt   string `json:"prompt"`
	Caption  string `json:"caption"`

	// Voters holds the users whose vote currently sits on this entry.
	Voters map[string]struct{} `json:"-"`
}

// VoteCount returns the number of users currently voting for the entry.
func (e *PollEntry) VoteCount() int {
	return len(e.Voters)
}

// HasVoter reports whether userID currently votes for the entry.
func (e *PollEntry) HasVoter(userID string) bool {
	_, ok := e.Voters[userID]
	return ok
}

// Poll is a live voting round keyed by its presentation message id.
type Poll struct {
	ID       string       `json:"id"`
	RecordID string       `json:"record_id,omitempty"`
	Entries  []*PollEntry `json:"entries"`
	EndTime  time.Time    `json:"end_time"`

	// VotedUsers is every user that ever had an accepted vote in this poll.
	// Retracting a vote does not remove the user.
	VotedUsers map[string]struct{} `json:"-"`

	// Credited holds the users still holding the point their first vote
	// earned. A retraction takes the point back once and clears the entry.
	Credited map[string]struct{} `json:"-"`
}

// Entry returns the entry with the given display number.
func (p *Poll) Entry(number int) (*PollEntry, bool) {
	for _, e := range p.Entries {
		if e.Number == number {
			return e, true
		}
	}
	return nil, false
}

// Expired reports whether now is past the poll deadline.
func (p *Poll) Expired(now time.Time) bool {
	return now.After(p.EndTime)
}

// EntryCount is the tally of one entry, used to re-render the poll.
type EntryCount struct {
	Number  int    `json:"number"`
	Caption string `json:"caption"`
	Votes   int    `json:"votes"`
}

// PollSnapshot is an immutable copy of a poll's public state.
type PollSnapshot struct {
	ID         string          `json:"id"`
	RecordID   string          `json:"record_id,omitempty"`
	EndTime    time.Time       `json:"end_time"`
	Entries    []EntrySnapshot `json:"entries"`
	Counts     []EntryCount    `json:"counts"`
	TotalVotes int             `json:"total_votes"`
	Voters     int             `json:"voters"`
}
