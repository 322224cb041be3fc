package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/joebot/archmon/internal/bus"
	"github.com/joebot/archmon/internal/config"
	"github.com/joebot/archmon/internal/monitor"
	"github.com/joebot/archmon/internal/store"
)

// session is the subset of discordgo.Session the gateway uses, so tests
// can substitute a fake.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var errNotGuildText = errors.New("channel is not a guild text channel")

// Gateway owns the Discord session: it delivers outbound notifications
// from the bus, registers the slash commands and dispatches interactions.
type Gateway struct {
	s   session
	raw *discordgo.Session

	cfg      config.DiscordConfig
	store    *store.Store
	registry *monitor.Registry
	commands []Command
}

// New creates a gateway and subscribes it to the notification bus.
func New(cfg config.DiscordConfig, st *store.Store, reg *monitor.Registry, b *bus.Bus) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord bot token not configured")
	}
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	g := &Gateway{s: dg, raw: dg, cfg: cfg, store: st, registry: reg}
	g.commands = commandList(g)
	b.Subscribe(g.deliver)
	return g, nil
}

// Start opens the session and registers the slash commands.
func (g *Gateway) Start(ctx context.Context) error {
	g.raw.AddHandler(g.handleReady)
	g.raw.AddHandler(g.handleInteraction)
	g.raw.AddHandler(g.handleGuildCreate)
	g.raw.AddHandler(g.handleGuildDelete)

	if err := g.raw.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	appID := g.raw.State.User.ID
	defs := make([]*discordgo.ApplicationCommand, len(g.commands))
	for i, c := range g.commands {
		defs[i] = &discordgo.ApplicationCommand{
			Name:        c.Name(),
			Description: c.Description(),
			Options:     c.Options(),
		}
	}
	if _, err := g.s.ApplicationCommandBulkOverwrite(appID, "", defs); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	// Guild-scoped registration propagates instantly; useful while testing.
	if g.cfg.DebugGuildID != "" {
		if _, err := g.s.ApplicationCommandBulkOverwrite(appID, g.cfg.DebugGuildID, defs); err != nil {
			slog.Warn("debug guild command registration failed", "guild", g.cfg.DebugGuildID, "err", err)
		}
	}
	return nil
}

// Stop closes the session.
func (g *Gateway) Stop() error {
	return g.s.Close()
}

// ResolveChannel validates a notification channel and returns its guild.
// Used by the monitor registry as its channel resolver.
func (g *Gateway) ResolveChannel(channelID string) (string, error) {
	ch, err := g.s.Channel(channelID)
	if err != nil {
		return "", fmt.Errorf("lookup channel: %w", err)
	}
	if ch.GuildID == "" || ch.Type != discordgo.ChannelTypeGuildText {
		return "", errNotGuildText
	}
	return ch.GuildID, nil
}

// deliver sends one bus notification to its channel.
func (g *Gateway) deliver(ctx context.Context, n *bus.Notification) error {
	embeds := make([]*discordgo.MessageEmbed, len(n.Embeds))
	for i, e := range n.Embeds {
		fields := make([]*discordgo.MessageEmbedField, len(e.Fields))
		for j, f := range e.Fields {
			fields[j] = &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value}
		}
		embeds[i] = &discordgo.MessageEmbed{Title: e.Title, Description: e.Description, Fields: fields}
	}
	_, err := g.s.ChannelMessageSendComplex(n.ChannelID, &discordgo.MessageSend{
		Content: n.Content,
		Embeds:  embeds,
	})
	return err
}

func (g *Gateway) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	slog.Info("discord session ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (g *Gateway) handleGuildCreate(_ *discordgo.Session, gc *discordgo.GuildCreate) {
	g.store.Log(context.Background(), gc.ID, "0", "Added to guild")
	if g.cfg.LogChannelID != "" {
		g.sendText(g.cfg.LogChannelID, "Added to guild "+gc.Name)
	}
}

func (g *Gateway) handleGuildDelete(_ *discordgo.Session, gd *discordgo.GuildDelete) {
	g.store.Log(context.Background(), gd.ID, "0", "Removed from guild")
}

func (g *Gateway) handleInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		data := ic.ApplicationCommandData()
		cmd := g.command(data.Name)
		if cmd == nil {
			return
		}
		g.store.Log(context.Background(), ic.GuildID, interactionUserID(ic), "Executed command "+data.Name)
		if err := cmd.Execute(context.Background(), ic); err != nil {
			slog.Error("command failed", "command", data.Name, "err", err)
			g.replyError(ic)
		}

	case discordgo.InteractionApplicationCommandAutocomplete:
		cmd := g.command(ic.ApplicationCommandData().Name)
		if cmd == nil {
			return
		}
		choices := cmd.Autocomplete(ic)
		err := g.s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionApplicationCommandAutocompleteResult,
			Data: &discordgo.InteractionResponseData{Choices: choices},
		})
		if err != nil {
			slog.Warn("autocomplete respond failed", "err", err)
		}
	}
}

func (g *Gateway) command(name string) Command {
	for _, c := range g.commands {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// replyError tells the invoker their command failed. If the command
// already replied, the initial response is taken, so fall back to a
// followup.
func (g *Gateway) replyError(ic *discordgo.InteractionCreate) {
	const msg = "There was an error while executing this command!"
	if err := g.replyEphemeral(ic, msg); err != nil {
		g.followupEphemeral(ic, msg)
	}
}

func (g *Gateway) replyEphemeral(ic *discordgo.InteractionCreate, content string) error {
	return g.s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (g *Gateway) replyEmbed(ic *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return g.s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

func (g *Gateway) followupEphemeral(ic *discordgo.InteractionCreate, content string) {
	_, err := g.s.FollowupMessageCreate(ic.Interaction, false, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		slog.Warn("followup failed", "err", err)
	}
}

func (g *Gateway) sendText(channelID, content string) {
	if _, err := g.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: content}); err != nil {
		slog.Warn("channel message failed", "channel", channelID, "err", err)
	}
}

func interactionUserID(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.ID
	}
	if ic.User != nil {
		return ic.User.ID
	}
	return "0"
}
