package handlers

import (
	"net/http"
	"runtime"
	"time"

	"dailyvote-bot/database"
	"dailyvote-bot/service"

	"github.com/gin-gonic/gin"
)

// SystemInfo contains basic process metrics and the daily cycle state.
type SystemInfo struct {
	Status       string                   `json:"status"`
	Version      string                   `json:"version"`
	Uptime       string                   `json:"uptime"`
	StartTime    time.Time                `json:"start_time"`
	CurrentTime  time.Time                `json:"current_time"`
	GoVersion    string                   `json:"go_version"`
	NumGoroutine int                      `json:"num_goroutine"`
	DBStatus     string                   `json:"db_status"`
	ActivePolls  int                      `json:"active_polls"`
	Scheduler    *service.SchedulerStatus `json:"scheduler,omitempty"`
}

var version = "0.1.0" // set with -ldflags at build time

// HealthCheck is the liveness probe.
func (c *Controller) HealthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus reports database health, live polls and the scheduler.
func (c *Controller) SystemStatus(ctx *gin.Context) {
	info := SystemInfo{
		Status:       "ok",
		Version:      version,
		Uptime:       time.Since(c.startTime).Round(time.Second).String(),
		StartTime:    c.startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		DBStatus:     "ok",
	}

	if c.deps.DB == nil || database.Ping(c.deps.DB) != nil {
		info.DBStatus = "error"
		info.Status = "degraded"
	}
	if c.deps.Engine != nil {
		info.ActivePolls = c.deps.Engine.Store().Len()
	}
	if c.deps.Scheduler != nil {
		st := c.deps.Scheduler.Status()
		info.Scheduler = &st
		if st.LastError != "" {
			info.Status = "degraded"
		}
	}

	ctx.JSON(http.StatusOK, info)
}
