package service

import (
	"context"

	"dailyvote-bot/cache"
)

// User-facing rejection messages.
const (
	MsgVoteEnded     = "This vote has ended."
	MsgInvalidEntry  = "That entry is not part of this vote."
	MsgThrottled     = "You are voting too fast, try again in a moment."
	MsgVoteRecorded  = "Your vote has been recorded."
	MsgVoteRetracted = "Your vote has been removed."
	MsgVoteChanged   = "Your vote has been changed."
)

// CastResult is what a presentation layer needs to answer a vote click.
type CastResult struct {
	VoteResult
	Throttled bool          `json:"throttled"`
	Points    *PointsResult `json:"points,omitempty"`
	Message   string        `json:"message"`
}

// VoteService ties a vote click to the engine, the ledger and live watchers.
type VoteService struct {
	engine      *PollEngine
	ledger      *PointsLedger
	limiter     *cache.UserRateLimiter
	broadcaster Broadcaster
}

// NewVoteService creates a vote service. limiter and broadcaster may be nil.
func NewVoteService(engine *PollEngine, ledger *PointsLedger, limiter *cache.UserRateLimiter, broadcaster Broadcaster) *VoteService {
	return &VoteService{
		engine:      engine,
		ledger:      ledger,
		limiter:     limiter,
		broadcaster: broadcaster,
	}
}

// Cast records a click on entryNumber of the poll rendered as pollID.
func (s *VoteService) Cast(ctx context.Context, pollID string, entryNumber int, userID, username string) CastResult {
	if s.limiter != nil && !s.limiter.Allow(userID) {
		return CastResult{
			VoteResult: VoteResult{EntryNumber: entryNumber},
			Throttled:  true,
			Message:    MsgThrottled,
		}
	}

	res := CastResult{VoteResult: s.engine.RecordVote(ctx, pollID, entryNumber, userID)}
	if !res.Accepted {
		switch res.Reason {
		case ReasonInvalidEntry:
			res.Message = MsgInvalidEntry
		default:
			res.Message = MsgVoteEnded
		}
		return res
	}

	switch {
	case res.Retracted:
		res.Message = MsgVoteRetracted
		if res.Reclaimed && s.ledger != nil {
			p := s.ledger.RemovePoint(ctx, userID, username)
			res.Points = &p
		}
	case res.IsNewVote:
		res.Message = MsgVoteRecorded
		if s.ledger != nil {
			p := s.ledger.AddPoints(ctx, userID, username, 1)
			res.Points = &p
		}
	case res.Changed:
		res.Message = MsgVoteChanged
	default:
		res.Message = MsgVoteRecorded
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToPoll(pollID, MsgVoteUpdate, map[string]interface{}{
			"poll_id": pollID,
			"counts":  res.Counts,
		})
	}
	return res
}
