package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dailyvote-bot/repository"
	"dailyvote-bot/service"
	"dailyvote-bot/testutil"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "s3cret"

var base = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	status    service.SchedulerStatus
	result    service.FinalizeResult
	err       error
	finalized []string
}

func (f *fakeScheduler) Status() service.SchedulerStatus { return f.status }

func (f *fakeScheduler) FinalizeNow(_ context.Context, messageID string) (service.FinalizeResult, error) {
	f.finalized = append(f.finalized, messageID)
	return f.result, f.err
}

type testEnv struct {
	router    *gin.Engine
	engine    *service.PollEngine
	records   repository.RecordRepository
	ledger    *service.PointsLedger
	scheduler *fakeScheduler
}

// SetupTestEnvironment builds the router over an in-memory SQLite database.
func SetupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	clock := testutil.NewFakeClock(base)
	env := &testEnv{
		engine:    service.NewPollEngine(service.NewVoteStore(), nil, clock),
		records:   repository.NewRecordRepository(db),
		ledger:    service.NewPointsLedger(repository.NewPointsRepository(db), nil, clock),
		scheduler: &fakeScheduler{status: service.SchedulerStatus{State: service.StatePosted}},
	}

	router := gin.New()
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	router.Use(cors.New(config))

	NewController(Deps{
		DB:         db,
		Engine:     env.engine,
		Records:    env.records,
		Ledger:     env.ledger,
		Scheduler:  env.scheduler,
		AdminToken: testAdminToken,
	}).RegisterRoutes(router)
	env.router = router
	return env
}

func (e *testEnv) startPoll(t *testing.T, messageID string, entries int) {
	t.Helper()
	inputs := make([]service.EntryInput, entries)
	for i := range inputs {
		inputs[i] = service.EntryInput{ImageRef: "https://img.test/x.png", Caption: "caption"}
	}
	poll, err := e.engine.CreatePoll(inputs, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, e.engine.Register(poll, messageID))
}

func (e *testEnv) do(method, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(""))
	for k, v := range header {
		req.Header[k] = v
	}
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
