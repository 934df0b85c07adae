package discord

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"dailyvote-bot/models"
	"dailyvote-bot/repository"
	"dailyvote-bot/service"
	"dailyvote-bot/testutil"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	sent   []api.SendMessageData
	edited []api.EditMessageData
}

func (f *fakeMessenger) SendMessageComplex(_ discord.ChannelID, data api.SendMessageData) (*discord.Message, error) {
	f.sent = append(f.sent, data)
	return &discord.Message{ID: discord.MessageID(1000 + len(f.sent))}, nil
}

func (f *fakeMessenger) EditMessageComplex(_ discord.ChannelID, id discord.MessageID, data api.EditMessageData) (*discord.Message, error) {
	f.edited = append(f.edited, data)
	return &discord.Message{ID: id}, nil
}

type fakeFinalizer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFinalizer) FinalizeActive(context.Context) (service.FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return service.FinalizeResult{RecordID: "rec-1"}, nil
}

func (f *fakeFinalizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	bot       *Bot
	api       *fakeMessenger
	engine    *service.PollEngine
	ledger    *service.PointsLedger
	finalizer *fakeFinalizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	clock := testutil.NewFakeClock(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC))

	engine := service.NewPollEngine(service.NewVoteStore(), nil, clock)
	ledger := service.NewPointsLedger(repository.NewPointsRepository(db), nil, clock)
	votes := service.NewVoteService(engine, ledger, nil, nil)

	f := &fixture{api: &fakeMessenger{}, engine: engine, ledger: ledger, finalizer: &fakeFinalizer{}}
	f.bot = newBot(f.api, discord.ChannelID(42), []string{"7"}, votes, ledger, f.finalizer)
	return f
}

func (f *fixture) startPoll(t *testing.T, entries int) string {
	t.Helper()
	inputs := make([]service.EntryInput, entries)
	for i := range inputs {
		inputs[i] = service.EntryInput{ImageRef: "https://img.test/x.png", Caption: "caption"}
	}
	poll, err := f.engine.CreatePoll(inputs, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	id, err := f.bot.RenderPoll(context.Background(), f.engine.SnapshotOf(poll))
	require.NoError(t, err)
	require.NoError(t, f.engine.Register(poll, id))
	return id
}

func buttons(t *testing.T, rows discord.ContainerComponents) []*discord.ButtonComponent {
	t.Helper()
	var out []*discord.ButtonComponent
	for _, c := range rows {
		row, ok := c.(*discord.ActionRowComponent)
		require.True(t, ok)
		for _, ic := range *row {
			btn, ok := ic.(*discord.ButtonComponent)
			require.True(t, ok)
			out = append(out, btn)
		}
	}
	return out
}

func TestParseVoteID(t *testing.T) {
	tests := []struct {
		id     discord.ComponentID
		want   int
		wantOK bool
	}{
		{id: "vote:1", want: 1, wantOK: true},
		{id: "vote:9", want: 9, wantOK: true},
		{id: voteID(4), want: 4, wantOK: true},
		{id: "vote:0"},
		{id: "vote:10"},
		{id: "vote:x"},
		{id: "role:1"},
	}
	for _, tt := range tests {
		n, ok := parseVoteID(tt.id)
		assert.Equal(t, tt.wantOK, ok, string(tt.id))
		assert.Equal(t, tt.want, n, string(tt.id))
	}
}

func TestVoteButtons_Layout(t *testing.T) {
	counts := make([]models.EntryCount, 9)
	for i := range counts {
		counts[i] = models.EntryCount{Number: i + 1, Votes: i}
	}

	rows := voteButtons(counts, false)
	require.Len(t, rows, 2)
	assert.Len(t, *rows[0].(*discord.ActionRowComponent), 5)
	assert.Len(t, *rows[1].(*discord.ActionRowComponent), 4)

	btns := buttons(t, rows)
	assert.Equal(t, "#3 (2)", btns[2].Label)
	assert.Equal(t, discord.ComponentID("vote:9"), btns[8].CustomID)
	assert.False(t, btns[0].Disabled)
}

func TestRenderPoll(t *testing.T) {
	f := newFixture(t)
	id := f.startPoll(t, 4)
	assert.Equal(t, "1001", id)

	require.Len(t, f.api.sent, 1)
	msg := f.api.sent[0]
	assert.Len(t, msg.Embeds, 4)
	assert.Equal(t, "#2", msg.Embeds[1].Title)
	require.NotNil(t, msg.Embeds[1].Image)
	assert.Equal(t, "https://img.test/x.png", msg.Embeds[1].Image.URL)
	assert.Contains(t, msg.Content, "<t:1792324800:R>")
	assert.Len(t, buttons(t, msg.Components), 4)
}

func TestHandleVote(t *testing.T) {
	f := newFixture(t)
	id := f.startPoll(t, 3)
	alice := discord.User{ID: 11, Username: "alice"}
	ctx := context.Background()

	resp := f.bot.handleVote(ctx, id, "vote:2", alice)
	assert.Equal(t, api.UpdateMessage, resp.Type)
	require.NotNil(t, resp.Data.Components)
	btns := buttons(t, *resp.Data.Components)
	assert.Equal(t, "#2 (1)", btns[1].Label)

	points, err := f.ledger.Balance(ctx, "11")
	require.NoError(t, err)
	assert.Equal(t, int64(1), points)

	resp = f.bot.handleVote(ctx, "999", "vote:1", alice)
	assert.Equal(t, api.MessageInteractionWithSource, resp.Type)
	assert.Equal(t, discord.EphemeralMessage, resp.Data.Flags)
	assert.Equal(t, service.MsgVoteEnded, resp.Data.Content.Val)

	resp = f.bot.handleVote(ctx, id, "bogus", alice)
	assert.Equal(t, discord.EphemeralMessage, resp.Data.Flags)
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := discord.User{ID: 7, Username: "admin"}
	bob := discord.User{ID: 12, Username: "bob"}

	f.ledger.AddPoints(ctx, "12", "bob", 3)
	f.ledger.AddPoints(ctx, "13", "carol", 5)

	resp := f.bot.handleCommand(ctx, &discord.CommandInteraction{Name: "points"}, bob)
	assert.Equal(t, "<@12> has 3 vote points.", resp.Data.Content.Val)

	resp = f.bot.handleCommand(ctx, &discord.CommandInteraction{Name: "leaderboard"}, bob)
	lines := strings.Split(strings.TrimSpace(resp.Data.Content.Val), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1. carol: 5", lines[1])
	assert.Equal(t, "2. bob: 3", lines[2])

	resp = f.bot.handleCommand(ctx, &discord.CommandInteraction{Name: "finalize"}, bob)
	assert.Equal(t, discord.EphemeralMessage, resp.Data.Flags)
	assert.Contains(t, resp.Data.Content.Val, "Only bot admins")

	f.bot.handleCommand(ctx, &discord.CommandInteraction{Name: "finalize"}, admin)
	assert.Eventually(t, func() bool { return f.finalizer.Calls() == 1 }, time.Second, 10*time.Millisecond)
}

func TestAnnounceResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.bot.AnnounceResult(ctx, service.FinalizeResult{
		MessageID:  "1001",
		Winners:    []int{2},
		Winner:     &models.EntrySnapshot{Number: 2, ImageRef: "https://img.test/2.png", Caption: "Moon cat"},
		TotalVotes: 3,
		Counts:     []models.EntryCount{{Number: 1, Votes: 1}, {Number: 2, Votes: 2}},
	})
	require.NoError(t, err)

	require.Len(t, f.api.edited, 1)
	for _, btn := range buttons(t, *f.api.edited[0].Components) {
		assert.True(t, btn.Disabled)
	}
	require.Len(t, f.api.sent, 1)
	embed := f.api.sent[0].Embeds[0]
	assert.Equal(t, "Winner: #2", embed.Title)
	assert.Equal(t, "Moon cat", embed.Description)

	require.NoError(t, f.bot.AnnounceResult(ctx, service.FinalizeResult{Winners: []int{1, 2}, TotalVotes: 4}))
	assert.Equal(t, "No winner today", f.api.sent[1].Embeds[0].Title)
	assert.Contains(t, f.api.sent[1].Embeds[0].Description, "#1, #2")
}
