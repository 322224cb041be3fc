package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/joebot/archmon/internal/monitor"
	"github.com/joebot/archmon/internal/store"
)

// Command is the contract every slash command implements. Commands handle
// their own replies; a returned error produces the generic failure reply.
type Command interface {
	Name() string
	Description() string
	Options() []*discordgo.ApplicationCommandOption
	Execute(ctx context.Context, ic *discordgo.InteractionCreate) error
	Autocomplete(ic *discordgo.InteractionCreate) []*discordgo.ApplicationCommandOptionChoice
}

func commandList(g *Gateway) []Command {
	return []Command{
		&pingCommand{g: g},
		&monitorCommand{g: g},
		&unmonitorCommand{g: g},
		&linkCommand{g: g},
		&unlinkCommand{g: g},
		&linksCommand{g: g},
	}
}

// noAutocomplete is embedded by commands without autocomplete options.
type noAutocomplete struct{}

func (noAutocomplete) Autocomplete(*discordgo.InteractionCreate) []*discordgo.ApplicationCommandOptionChoice {
	return nil
}

func optionMap(ic *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := ic.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// mentionFlagOptions are the optional per-category mention toggles shared
// by /monitor and /link.
func mentionFlagOptions() []*discordgo.ApplicationCommandOption {
	names := []struct{ name, desc string }{
		{"mention_join_leave", "Mention on join/leave notifications"},
		{"mention_item_finder", "Mention when this player finds an item"},
		{"mention_item_receiver", "Mention when this player receives an item"},
		{"mention_completion", "Mention on goal completion"},
		{"mention_hints", "Mention on hints"},
	}
	opts := make([]*discordgo.ApplicationCommandOption, len(names))
	for i, n := range names {
		opts[i] = &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        n.name,
			Description: n.desc,
		}
	}
	return opts
}

func mentionFlagsFrom(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, defaults store.MentionFlags) store.MentionFlags {
	flags := defaults
	if o, ok := opts["mention_join_leave"]; ok {
		flags.JoinLeave = o.BoolValue()
	}
	if o, ok := opts["mention_item_finder"]; ok {
		flags.ItemFinder = o.BoolValue()
	}
	if o, ok := opts["mention_item_receiver"]; ok {
		flags.ItemReceiver = o.BoolValue()
	}
	if o, ok := opts["mention_completion"]; ok {
		flags.Completion = o.BoolValue()
	}
	if o, ok := opts["mention_hints"]; ok {
		flags.Hints = o.BoolValue()
	}
	return flags
}

// --- ping ---

type pingCommand struct {
	noAutocomplete
	g *Gateway
}

func (c *pingCommand) Name() string        { return "ping" }
func (c *pingCommand) Description() string { return "Test the bot's responsiveness by a ping." }
func (c *pingCommand) Options() []*discordgo.ApplicationCommandOption {
	return nil
}

func (c *pingCommand) Execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	return c.g.replyEphemeral(ic, "Pong!")
}

// --- monitor ---

// hostPattern accepts domain names such as archipelago.gg.
var hostPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9][a-z0-9-]{0,61}[a-z0-9]$`)

type monitorCommand struct {
	noAutocomplete
	g *Gateway
}

func (c *monitorCommand) Name() string        { return "monitor" }
func (c *monitorCommand) Description() string { return "Start tracking an archipelago session." }

func (c *monitorCommand) Options() []*discordgo.ApplicationCommandOption {
	opts := []*discordgo.ApplicationCommandOption{
		{Type: discordgo.ApplicationCommandOptionString, Name: "host", Description: "The host to use", Required: true},
		{Type: discordgo.ApplicationCommandOptionInteger, Name: "port", Description: "The port to use", Required: true},
		{Type: discordgo.ApplicationCommandOptionString, Name: "game", Description: "The game to monitor", Required: true},
		{Type: discordgo.ApplicationCommandOptionString, Name: "player", Description: "The player to monitor", Required: true},
		{
			Type: discordgo.ApplicationCommandOptionChannel, Name: "channel",
			Description:  "The channel to send messages to",
			Required:     true,
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
		},
	}
	return append(opts, mentionFlagOptions()...)
}

func (c *monitorCommand) Execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if ic.GuildID == "" {
		return c.g.replyEphemeral(ic, "This command can only be used in a server.")
	}
	opts := optionMap(ic)

	host := opts["host"].StringValue()
	if !hostPattern.MatchString(host) {
		return c.g.replyEphemeral(ic, "Invalid host name format. Please use domain name (e.g: archipelago.gg)")
	}

	conn := store.Connection{
		Host:     host,
		Port:     int(opts["port"].IntValue()),
		Game:     opts["game"].StringValue(),
		Player:   opts["player"].StringValue(),
		Channel:  opts["channel"].ChannelValue(nil).ID,
		Mentions: mentionFlagsFrom(opts, store.DefaultConnectionFlags()),
	}

	// One monitor per host/port, checked before anything else happens.
	if c.g.registry.Has(conn.Key()) {
		return c.g.replyEphemeral(ic, "Already monitoring that host!")
	}

	// The channel must be a text channel in this guild.
	guildID, err := c.g.ResolveChannel(conn.Channel)
	if err != nil || guildID != ic.GuildID {
		return c.g.replyEphemeral(ic, "Could not find the specified channel or it is not text-based.")
	}

	c.g.sendText(conn.Channel, "This monitor will now track Archipelago on this channel.")
	if err := c.g.replyEphemeral(ic, fmt.Sprintf("Now monitoring Archipelago on %s.", conn.Key())); err != nil {
		return err
	}

	// Connecting can take a while; do it off the interaction path and
	// follow up only on failure.
	go func() {
		if _, err := c.g.registry.Make(context.Background(), conn, c.g.ResolveChannel); err != nil {
			slog.Error("monitor creation failed", "key", conn.Key(), "err", err)
			c.g.followupEphemeral(ic, "Failed to connect to Archipelago. Please check host and port.")
			return
		}
		if err := c.g.store.AddConnection(context.Background(), &conn); err != nil {
			slog.Error("persisting connection failed", "key", conn.Key(), "err", err)
		}
	}()
	return nil
}

// --- unmonitor ---

type unmonitorCommand struct {
	g *Gateway
}

func (c *unmonitorCommand) Name() string        { return "unmonitor" }
func (c *unmonitorCommand) Description() string { return "Stop tracking an archipelago session." }

func (c *unmonitorCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type: discordgo.ApplicationCommandOptionString, Name: "uri",
			Description:  "The URI of the archipelago room to remove.",
			Required:     true,
			Autocomplete: true,
		},
	}
}

func (c *unmonitorCommand) Execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	uri := optionMap(ic)["uri"].StringValue()

	err := c.g.registry.Remove(ctx, uri, true)
	if errors.Is(err, monitor.ErrNotFound) {
		return c.g.replyEphemeral(ic, fmt.Sprintf("There is no active monitor on %s.", uri))
	}
	if err != nil {
		return err
	}
	return c.g.replyEphemeral(ic, fmt.Sprintf("The tracker will no longer track %s.", uri))
}

func (c *unmonitorCommand) Autocomplete(ic *discordgo.InteractionCreate) []*discordgo.ApplicationCommandOptionChoice {
	if ic.GuildID == "" {
		return nil
	}
	monitors := c.g.registry.Guild(ic.GuildID)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(monitors))
	for i, m := range monitors {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: m.Key(), Value: m.Key()}
	}
	return choices
}

// --- link ---

type linkCommand struct {
	noAutocomplete
	g *Gateway
}

func (c *linkCommand) Name() string { return "link" }
func (c *linkCommand) Description() string {
	return "Link an Archipelago player name to a Discord user."
}

func (c *linkCommand) Options() []*discordgo.ApplicationCommandOption {
	opts := []*discordgo.ApplicationCommandOption{
		{Type: discordgo.ApplicationCommandOptionString, Name: "player", Description: "The Archipelago player name", Required: true},
		{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "The Discord user to link (defaults to you)"},
	}
	return append(opts, mentionFlagOptions()...)
}

func (c *linkCommand) Execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if ic.GuildID == "" {
		return c.g.replyEphemeral(ic, "This command can only be used in a server.")
	}
	opts := optionMap(ic)

	player := opts["player"].StringValue()
	userID := interactionUserID(ic)
	if o, ok := opts["user"]; ok {
		userID = o.UserValue(nil).ID
	}
	flags := mentionFlagsFrom(opts, store.DefaultLinkFlags())

	if err := c.g.store.LinkUser(ctx, ic.GuildID, player, userID, flags); err != nil {
		slog.Error("link failed", "player", player, "err", err)
		return c.g.replyEphemeral(ic, "Failed to link user in database.")
	}
	return c.g.replyEphemeral(ic, fmt.Sprintf(
		"Linked Archipelago player **%s** to <@%s>. Notifications involving this player will now mention them.",
		player, userID))
}

// --- unlink ---

type unlinkCommand struct {
	noAutocomplete
	g *Gateway
}

func (c *unlinkCommand) Name() string { return "unlink" }
func (c *unlinkCommand) Description() string {
	return "Unlink an Archipelago player name from a Discord user."
}

func (c *unlinkCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{Type: discordgo.ApplicationCommandOptionString, Name: "player", Description: "The Archipelago player name to unlink", Required: true},
	}
}

func (c *unlinkCommand) Execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if ic.GuildID == "" {
		return c.g.replyEphemeral(ic, "This command can only be used in a server.")
	}
	player := optionMap(ic)["player"].StringValue()

	if err := c.g.store.UnlinkUser(ctx, ic.GuildID, player); err != nil {
		slog.Error("unlink failed", "player", player, "err", err)
		return c.g.replyEphemeral(ic, "Failed to unlink user in database.")
	}
	return c.g.replyEphemeral(ic, fmt.Sprintf("Unlinked Archipelago player **%s**.", player))
}

// --- links ---

type linksCommand struct {
	noAutocomplete
	g *Gateway
}

func (c *linksCommand) Name() string { return "links" }
func (c *linksCommand) Description() string {
	return "Show all linked Archipelago players in this server."
}

func (c *linksCommand) Options() []*discordgo.ApplicationCommandOption {
	return nil
}

func (c *linksCommand) Execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if ic.GuildID == "" {
		return c.g.replyEphemeral(ic, "This command can only be used in a server.")
	}

	links, err := c.g.store.Links(ctx, ic.GuildID)
	if err != nil {
		slog.Error("links lookup failed", "guild", ic.GuildID, "err", err)
		return c.g.replyEphemeral(ic, "Failed to retrieve links from database.")
	}
	if len(links) == 0 {
		return c.g.replyEphemeral(ic, "No players are currently linked in this server.")
	}

	lines := make([]string, len(links))
	for i, l := range links {
		lines[i] = fmt.Sprintf("**%s**: <@%s>", l.Player, l.DiscordID)
	}
	return c.g.replyEmbed(ic, &discordgo.MessageEmbed{
		Title:       "Linked Archipelago Players",
		Description: strings.Join(lines, "\n"),
		Color:       0x0099ff,
	})
}
