// Package discord renders daily polls in a Discord channel and turns button
// clicks and slash commands into service calls.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dailyvote-bot/models"
	"dailyvote-bot/service"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/state"
)

const (
	interactionTimeout = 5 * time.Second
	finalizeTimeout    = 2 * time.Minute
)

var commands = []api.CreateCommandData{
	{
		Name:        "points",
		Description: "Show how many vote points you or another user have.",
		Options: []discord.CommandOption{
			&discord.UserOption{
				OptionName:  "user",
				Description: "User to look up",
			},
		},
	},
	{
		Name:        "leaderboard",
		Description: "Show the users with the most vote points.",
	},
	{
		Name:        "finalize",
		Description: "End today's vote now (bot admins only).",
	},
}

// messenger is the part of the Discord REST client the bot posts with.
type messenger interface {
	SendMessageComplex(channelID discord.ChannelID, data api.SendMessageData) (*discord.Message, error)
	EditMessageComplex(channelID discord.ChannelID, messageID discord.MessageID, data api.EditMessageData) (*discord.Message, error)
}

// Finalizer ends the active daily vote on demand.
type Finalizer interface {
	FinalizeActive(ctx context.Context) (service.FinalizeResult, error)
}

// Options configure the bot.
type Options struct {
	Token     string
	ChannelID string
	AdminIDs  []string
}

// Bot is the Discord presentation layer of the daily vote.
type Bot struct {
	state     *state.State
	api       messenger
	channelID discord.ChannelID
	admins    map[string]bool

	votes     *service.VoteService
	ledger    *service.PointsLedger
	finalizer Finalizer
}

// New creates a bot. Call Open to connect to the gateway.
func New(opts Options, votes *service.VoteService, ledger *service.PointsLedger, finalizer Finalizer) (*Bot, error) {
	if opts.Token == "" {
		return nil, errors.New("discord token is required")
	}
	channel, err := discord.ParseSnowflake(opts.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("invalid discord channel id %q: %w", opts.ChannelID, err)
	}

	s := state.New("Bot " + opts.Token)
	b := newBot(s, discord.ChannelID(channel), opts.AdminIDs, votes, ledger, finalizer)
	b.state = s
	return b, nil
}

func newBot(m messenger, channel discord.ChannelID, admins []string, votes *service.VoteService, ledger *service.PointsLedger, finalizer Finalizer) *Bot {
	b := &Bot{
		api:       m,
		channelID: channel,
		admins:    make(map[string]bool, len(admins)),
		votes:     votes,
		ledger:    ledger,
		finalizer: finalizer,
	}
	for _, id := range admins {
		b.admins[id] = true
	}
	return b
}

// Open connects to the gateway and registers the slash commands.
func (b *Bot) Open(ctx context.Context) error {
	app, err := b.state.CurrentApplication()
	if err != nil {
		return fmt.Errorf("get application id: %w", err)
	}
	b.state.AddHandler(b.HandleInteractionCreateEvent)
	b.state.AddIntents(gateway.IntentGuilds)
	b.state.AddIntents(gateway.IntentGuildMessages)

	if err := b.state.Open(ctx); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	if _, err := b.state.BulkOverwriteCommands(app.ID, commands); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	log.Printf("discord: connected, posting to channel %s", b.channelID)
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	if b.state == nil {
		return nil
	}
	return b.state.Close()
}

// RenderPoll posts a new poll and returns its message id.
func (b *Bot) RenderPoll(_ context.Context, poll models.PollSnapshot) (string, error) {
	msg, err := b.api.SendMessageComplex(b.channelID, api.SendMessageData{
		Content:    pollContent(poll),
		Embeds:     pollEmbeds(poll),
		Components: voteButtons(poll.Counts, false),
	})
	if err != nil {
		return "", fmt.Errorf("send poll message: %w", err)
	}
	return msg.ID.String(), nil
}

// AnnounceResult locks the poll buttons and posts the outcome.
func (b *Bot) AnnounceResult(_ context.Context, res service.FinalizeResult) error {
	if res.MessageID != "" && len(res.Counts) > 0 {
		if id, err := discord.ParseSnowflake(res.MessageID); err == nil {
			rows := voteButtons(res.Counts, true)
			_, err := b.api.EditMessageComplex(b.channelID, discord.MessageID(id), api.EditMessageData{
				Components: &rows,
			})
			if err != nil {
				log.Printf("discord: disable buttons on %s failed: %v", res.MessageID, err)
			}
		}
	}

	_, err := b.api.SendMessageComplex(b.channelID, api.SendMessageData{
		Embeds: []discord.Embed{resultEmbed(res)},
	})
	if err != nil {
		return fmt.Errorf("send result message: %w", err)
	}
	return nil
}

// HandleInteractionCreateEvent answers button clicks and slash commands.
func (b *Bot) HandleInteractionCreateEvent(e *gateway.InteractionCreateEvent) {
	user := sender(&e.InteractionEvent)
	if user == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	var resp api.InteractionResponse
	switch data := e.Data.(type) {
	case *discord.CommandInteraction:
		resp = b.handleCommand(ctx, data, *user)
	case discord.ComponentInteraction:
		if e.Message == nil {
			return
		}
		resp = b.handleVote(ctx, e.Message.ID.String(), data.ID(), *user)
	default:
		return
	}

	if err := b.state.RespondInteraction(e.ID, e.Token, resp); err != nil {
		log.Println("discord: failed to send interaction callback:", err)
	}
}

func sender(e *discord.InteractionEvent) *discord.User {
	if e.Member != nil {
		return &e.Member.User
	}
	return e.User
}

func (b *Bot) handleVote(ctx context.Context, messageID string, id discord.ComponentID, user discord.User) api.InteractionResponse {
	entry, ok := parseVoteID(id)
	if !ok {
		return ephemeralResp("Unknown button.")
	}

	res := b.votes.Cast(ctx, messageID, entry, user.ID.String(), user.Username)
	if !res.Accepted {
		return ephemeralResp(res.Message)
	}
	return updateButtonsResp(res.Counts)
}

func (b *Bot) handleCommand(ctx context.Context, data *discord.CommandInteraction, user discord.User) api.InteractionResponse {
	switch data.Name {
	case "points":
		target := user.ID
		if opt := data.Options.Find("user"); opt.Name != "" {
			sf, err := discord.ParseSnowflake(opt.String())
			if err != nil {
				return ephemeralResp("That is not a valid user.")
			}
			target = discord.UserID(sf)
		}
		points, err := b.ledger.Balance(ctx, target.String())
		if err != nil {
			log.Printf("discord: balance for %s failed: %v", target, err)
			return ephemeralResp("Could not load points right now.")
		}
		return messageResp(fmt.Sprintf("%s has %d vote points.", target.Mention(), points))

	case "leaderboard":
		entries, err := b.ledger.Leaderboard(ctx, 10)
		if err != nil {
			log.Printf("discord: leaderboard failed: %v", err)
			return ephemeralResp("Could not load the leaderboard right now.")
		}
		return messageResp(leaderboardText(entries))

	case "finalize":
		if !b.admins[user.ID.String()] {
			return ephemeralResp("Only bot admins can end the daily vote.")
		}
		// the social post can outlive the interaction deadline
		go func() {
			fctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
			defer cancel()
			res, err := b.finalizer.FinalizeActive(fctx)
			if err != nil {
				log.Printf("discord: finalize requested by %s failed: %v", user.ID, err)
				return
			}
			log.Printf("discord: %s finalized record %s", user.ID, res.RecordID)
		}()
		return ephemeralResp("Ending today's vote, the result will be posted shortly.")

	default:
		return ephemeralResp("Unknown command: " + data.Name)
	}
}
