package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Leaderboard returns the users with the most points.
func (c *Controller) Leaderboard(ctx *gin.Context) {
	limit, ok := queryLimit(ctx)
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit"})
		return
	}

	entries, err := c.deps.Ledger.Leaderboard(ctx.Request.Context(), limit)
	if err != nil {
		log.Printf("handlers: leaderboard failed: %v", err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load leaderboard"})
		return
	}
	ctx.JSON(http.StatusOK, entries)
}

// UserPoints returns one user's balance. Unknown users have zero.
func (c *Controller) UserPoints(ctx *gin.Context) {
	userID := ctx.Param("id")
	points, err := c.deps.Ledger.Balance(ctx.Request.Context(), userID)
	if err != nil {
		log.Printf("handlers: balance for %s failed: %v", userID, err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load points"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user_id": userID, "points": points})
}
