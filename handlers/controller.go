// Package handlers serves the admin and read-only HTTP API of the bot.
package handlers

import (
	"context"
	"strconv"
	"time"

	"dailyvote-bot/cache"
	"dailyvote-bot/repository"
	"dailyvote-bot/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	finalizeTimeout  = 2 * time.Minute
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Scheduler is the part of the daily scheduler the API exposes.
type Scheduler interface {
	Status() service.SchedulerStatus
	FinalizeNow(ctx context.Context, messageID string) (service.FinalizeResult, error)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	DB         *gorm.DB
	Engine     *service.PollEngine
	Records    repository.RecordRepository
	Ledger     *service.PointsLedger
	Scheduler  Scheduler
	Limiter    *cache.UserRateLimiter // optional, keyed by client IP
	AdminToken string
}

// Controller handles the /api routes.
type Controller struct {
	deps      Deps
	startTime time.Time
}

// NewController creates a controller.
func NewController(deps Deps) *Controller {
	return &Controller{deps: deps, startTime: time.Now()}
}

// RegisterRoutes mounts the API on router.
func (c *Controller) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	if c.deps.Limiter != nil {
		api.Use(RateLimitMiddleware(c.deps.Limiter))
	}
	{
		api.GET("/health", c.HealthCheck)
		api.GET("/status", c.SystemStatus)

		polls := api.Group("/polls")
		{
			polls.GET("", c.ListPolls)
			polls.GET("/:id", c.GetPoll)
			polls.POST("/:id/finalize", AdminAuth(c.deps.AdminToken), c.FinalizePoll)
		}

		api.GET("/records", c.ListRecords)
		api.GET("/leaderboard", c.Leaderboard)
		api.GET("/users/:id/points", c.UserPoints)
	}
}

// queryLimit reads ?limit=, clamped to [1, maxListLimit].
func queryLimit(ctx *gin.Context) (int, bool) {
	raw := ctx.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}
