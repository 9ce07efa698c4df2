package notifier

import (
	"fmt"
	"html"
	"strings"

	"volowatch/internal/activity"
)

const (
	perSportLimit = 5
	embedLimit    = 10
	colorNew      = 0x00FF00
)

var sportEmoji = map[string]string{
	"Volleyball": "\U0001F3D0",
	"Soccer":     "⚽",
	"Basketball": "\U0001F3C0",
	"Softball":   "\U0001F94E",
	"Pickleball": "\U0001F3D3",
}

func emojiFor(sport string) string {
	if e, ok := sportEmoji[sport]; ok {
		return e
	}
	return "\U0001F3C3"
}

type sportGroup struct {
	Sport string
	Items []activity.Activity
}

// groupBySport groups as by sport in order of first appearance.
func groupBySport(as []activity.Activity) []sportGroup {
	var out []sportGroup
	idx := map[string]int{}
	for _, a := range as {
		i, ok := idx[a.Sport]
		if !ok {
			i = len(out)
			idx[a.Sport] = i
			out = append(out, sportGroup{Sport: a.Sport})
		}
		out[i].Items = append(out[i].Items, a)
	}
	return out
}

func sportLabel(s string) string {
	if s == "" {
		return "Other"
	}
	return s
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "?"
	}
	return s
}

func when(a activity.Activity) string {
	return fmt.Sprintf("%s @ %s - %s", orUnknown(a.Date), orUnknown(a.StartTime), orUnknown(a.EndTime))
}

type discordPayload struct {
	Username string         `json:"username"`
	Content  string         `json:"content,omitempty"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func discordEmbedFor(a activity.Activity) discordEmbed {
	name := a.Name
	if name == "" {
		name = "Activity"
	}
	typ := a.Type
	if typ == "" {
		typ = "ACTIVITY"
	}
	return discordEmbed{
		Title:       emojiFor(a.Sport) + " " + name,
		Description: fmt.Sprintf("**%s** - %s", typ, a.SpotsLabel()),
		URL:         a.URL,
		Color:       colorNew,
		Fields: []discordField{
			{Name: "\U0001F4C5 When", Value: when(a), Inline: true},
			{Name: "\U0001F4CD Where", Value: orUnknown(a.Venue) + "\n" + a.Neighborhood, Inline: true},
		},
	}
}

// buildDiscordPayload renders one webhook message: a summary line with
// per-sport counts, and up to five embeds per sport (ten in total).
func buildDiscordPayload(username string, as []activity.Activity) discordPayload {
	groups := groupBySport(as)
	var b strings.Builder
	fmt.Fprintf(&b, "**%d new activities found!**", len(as))
	var embeds []discordEmbed
	for _, g := range groups {
		fmt.Fprintf(&b, "\n%s %d %s", emojiFor(g.Sport), len(g.Items), sportLabel(g.Sport))
		for i, a := range g.Items {
			if i >= perSportLimit || len(embeds) >= embedLimit {
				break
			}
			embeds = append(embeds, discordEmbedFor(a))
		}
	}
	return discordPayload{Username: username, Content: b.String(), Embeds: embeds}
}

// formatTelegramHTML renders the same batch as a Telegram HTML message.
// Every activity is listed; long messages are split by the sender.
func formatTelegramHTML(as []activity.Activity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%d new activities found!</b>\n", len(as))
	for _, g := range groupBySport(as) {
		fmt.Fprintf(&b, "\n%s <b>%s</b> (%d)\n", emojiFor(g.Sport), html.EscapeString(sportLabel(g.Sport)), len(g.Items))
		for _, a := range g.Items {
			name := html.EscapeString(orUnknown(a.Name))
			if a.URL != "" {
				name = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(a.URL), name)
			}
			fmt.Fprintf(&b, "• %s [%s] %s\n  %s, %s\n",
				name,
				html.EscapeString(a.Type),
				html.EscapeString(a.SpotsLabel()),
				html.EscapeString(when(a)),
				html.EscapeString(orUnknown(a.Venue)),
			)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
