package service

import (
	"sync"

	"dailyvote-bot/models"
)

// VoteStore is the in-memory registry of live polls keyed by message id.
// It has no persistence; the scheduler rebuilds entries after a restart.
type VoteStore struct {
	mu    sync.RWMutex
	polls map[string]*models.Poll
}

// NewVoteStore creates an empty store.
func NewVoteStore() *VoteStore {
	return &VoteStore{polls: make(map[string]*models.Poll)}
}

// Set registers or replaces a poll.
func (s *VoteStore) Set(id string, poll *models.Poll) {
	s.mu.Lock()
	s.polls[id] = poll
	s.mu.Unlock()
}

// Get looks up a poll.
func (s *VoteStore) Get(id string) (*models.Poll, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.polls[id]
	return p, ok
}

// Remove evicts a poll and returns it.
func (s *VoteStore) Remove(id string) (*models.Poll, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if ok {
		delete(s.polls, id)
	}
	return p, ok
}

// All returns a copy of the id to poll mapping.
func (s *VoteStore) All() map[string]*models.Poll {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Poll, len(s.polls))
	for id, p := range s.polls {
		out[id] = p
	}
	return out
}

// Len returns the number of live polls.
func (s *VoteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.polls)
}
