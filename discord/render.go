package discord

import (
	"fmt"
	"strconv"
	"strings"

	"dailyvote-bot/cache"
	"dailyvote-bot/models"
	"dailyvote-bot/service"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/utils/json/option"
)

const (
	votePrefix    = "vote:"
	buttonsPerRow = 5
	embedColor    = discord.Color(0x5865F2)
	winnerColor   = discord.Color(0xF1C40F)
)

// voteID is the custom id of the button for entry n.
func voteID(n int) discord.ComponentID {
	return discord.ComponentID(votePrefix + strconv.Itoa(n))
}

// parseVoteID returns the entry number encoded in a vote button id.
func parseVoteID(id discord.ComponentID) (int, bool) {
	s, ok := strings.CutPrefix(string(id), votePrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > models.MaxEntries {
		return 0, false
	}
	return n, true
}

func pollContent(poll models.PollSnapshot) string {
	return fmt.Sprintf("**Daily image vote!** Pick your favourite below, voting ends <t:%d:R>.", poll.EndTime.Unix())
}

func pollEmbeds(poll models.PollSnapshot) []discord.Embed {
	embeds := make([]discord.Embed, 0, len(poll.Entries))
	for _, e := range poll.Entries {
		embed := discord.Embed{
			Title:       fmt.Sprintf("#%d", e.Number),
			Description: e.Caption,
			Color:       embedColor,
		}
		if e.ImageRef != "" {
			embed.Image = &discord.EmbedImage{URL: e.ImageRef}
		}
		embeds = append(embeds, embed)
	}
	return embeds
}

// voteButtons lays out one button per entry, five per row.
func voteButtons(counts []models.EntryCount, disabled bool) discord.ContainerComponents {
	var rows discord.ContainerComponents
	var row discord.ActionRowComponent
	for _, c := range counts {
		row = append(row, &discord.ButtonComponent{
			CustomID: voteID(c.Number),
			Label:    fmt.Sprintf("#%d (%d)", c.Number, c.Votes),
			Style:    discord.SecondaryButtonStyle(),
			Disabled: disabled,
		})
		if len(row) == buttonsPerRow {
			r := row
			rows = append(rows, &r)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, &row)
	}
	return rows
}

func resultEmbed(res service.FinalizeResult) discord.Embed {
	if res.Winner == nil {
		desc := "Nobody voted today."
		if res.TotalVotes > 0 {
			desc = fmt.Sprintf("It's a tie between %s, no winner today.", joinEntries(res.Winners))
		}
		return discord.Embed{Title: "No winner today", Description: desc, Color: embedColor}
	}

	embed := discord.Embed{
		Title:       fmt.Sprintf("Winner: #%d", res.Winner.Number),
		Description: res.Winner.Caption,
		Color:       winnerColor,
		Footer:      &discord.EmbedFooter{Text: fmt.Sprintf("%d votes in total", res.TotalVotes)},
	}
	if res.Winner.ImageRef != "" {
		embed.Image = &discord.EmbedImage{URL: res.Winner.ImageRef}
	}
	return embed
}

func joinEntries(numbers []int) string {
	parts := make([]string, 0, len(numbers))
	for _, n := range numbers {
		parts = append(parts, "#"+strconv.Itoa(n))
	}
	return strings.Join(parts, ", ")
}

func leaderboardText(entries []cache.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "Nobody has points yet."
	}
	var sb strings.Builder
	sb.WriteString("**Leaderboard**\n")
	for i, e := range entries {
		name := e.Username
		if name == "" {
			name = "<@" + e.UserID + ">"
		}
		fmt.Fprintf(&sb, "%d. %s: %d\n", i+1, name, e.Points)
	}
	return sb.String()
}

func messageResp(msg string) api.InteractionResponse {
	return api.InteractionResponse{
		Type: api.MessageInteractionWithSource,
		Data: &api.InteractionResponseData{
			Content: option.NewNullableString(msg),
		},
	}
}

func ephemeralResp(msg string) api.InteractionResponse {
	return api.InteractionResponse{
		Type: api.MessageInteractionWithSource,
		Data: &api.InteractionResponseData{
			Content: option.NewNullableString(msg),
			Flags:   discord.EphemeralMessage,
		},
	}
}

func updateButtonsResp(counts []models.EntryCount) api.InteractionResponse {
	rows := voteButtons(counts, false)
	return api.InteractionResponse{
		Type: api.UpdateMessage,
		Data: &api.InteractionResponseData{
			Components: &rows,
		},
	}
}
