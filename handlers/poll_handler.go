package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"dailyvote-bot/models"
	"dailyvote-bot/repository"

	"github.com/gin-gonic/gin"
)

// PollResponse is either a live poll or the stored record of an ended one.
type PollResponse struct {
	Live   bool                    `json:"live"`
	Poll   *models.PollSnapshot    `json:"poll,omitempty"`
	Record *models.DailyVoteRecord `json:"record,omitempty"`
}

// ListPolls returns the live polls with their current counts.
func (c *Controller) ListPolls(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.deps.Engine.Snapshots())
}

// GetPoll looks up a poll by its message id, live first.
func (c *Controller) GetPoll(ctx *gin.Context) {
	id := ctx.Param("id")
	if snap, ok := c.deps.Engine.Snapshot(id); ok {
		ctx.JSON(http.StatusOK, PollResponse{Live: true, Poll: &snap})
		return
	}

	rec, err := c.deps.Records.GetByMessageID(ctx.Request.Context(), id)
	if errors.Is(err, repository.ErrRecordNotFound) {
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "Poll not found"})
		return
	}
	if err != nil {
		log.Printf("handlers: get poll %s failed: %v", id, err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load poll"})
		return
	}
	ctx.JSON(http.StatusOK, PollResponse{Record: rec})
}

// FinalizePoll ends a poll ahead of its deadline and posts the winner.
func (c *Controller) FinalizePoll(ctx *gin.Context) {
	id := ctx.Param("id")

	fctx, cancel := context.WithTimeout(ctx.Request.Context(), finalizeTimeout)
	defer cancel()

	res, err := c.deps.Scheduler.FinalizeNow(fctx, id)
	if errors.Is(err, repository.ErrRecordNotFound) {
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "Poll not found"})
		return
	}
	if err != nil {
		log.Printf("handlers: finalize %s failed: %v", id, err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to finalize poll: " + err.Error()})
		return
	}

	status := http.StatusOK
	if res.AlreadyFinalized {
		status = http.StatusConflict
	}
	ctx.JSON(status, res)
}

// ListRecords returns the most recent daily vote records.
func (c *Controller) ListRecords(ctx *gin.Context) {
	limit, ok := queryLimit(ctx)
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit"})
		return
	}

	recs, err := c.deps.Records.ListRecent(ctx.Request.Context(), limit)
	if err != nil {
		log.Printf("handlers: list records failed: %v", err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list records"})
		return
	}
	ctx.JSON(http.StatusOK, recs)
}
