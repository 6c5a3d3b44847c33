// Package discord connects the command dispatcher to a Discord bot account.
package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/PabloGalante/gpt-relay/internal/app/dispatch"
	"github.com/PabloGalante/gpt-relay/internal/domain"
	"github.com/PabloGalante/gpt-relay/internal/observability"
)

const (
	// fieldLimit is Discord's maximum embed field value length.
	fieldLimit = 1024

	colorSuccess = 0x2ECC71
	colorError   = 0xE67E22
)

// CommandHandler is satisfied by *dispatch.Dispatcher.
type CommandHandler interface {
	Handle(ctx context.Context, cmd dispatch.Command) dispatch.Reply
	Prefix() string
}

type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Gateway struct {
	session  *discordgo.Session
	commands CommandHandler
	timeout  time.Duration
}

// NewGateway prepares a bot session. Nothing connects until Run.
func NewGateway(token string, commands CommandHandler, timeout time.Duration) (*Gateway, error) {
	if token == "" {
		return nil, errors.New("discord token is empty")
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	return &Gateway{session: s, commands: commands, timeout: timeout}, nil
}

// Run connects, serves messages until ctx is cancelled, then disconnects.
func (g *Gateway) Run(ctx context.Context) error {
	log := observability.WithFields("surface", "discord")

	removeReady := g.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info("discord session ready", "user", r.User.Username, "guilds", len(r.Guilds))
		if err := s.UpdateListeningStatus(g.commands.Prefix() + "help"); err != nil {
			log.Warn("failed to update presence", "error", err)
		}
	})
	defer removeReady()

	removeMessage := g.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		var selfID domain.UserID
		if s.State != nil && s.State.User != nil {
			selfID = domain.UserID(s.State.User.ID)
		}
		g.handleMessage(ctx, s, selfID, m)
	})
	defer removeMessage()

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	log.Info("discord gateway connected")

	<-ctx.Done()

	log.Info("discord gateway shutting down")
	if err := g.session.Close(); err != nil {
		return fmt.Errorf("closing discord session: %w", err)
	}
	return nil
}

// handleMessage runs on discordgo's event goroutine, so commands from
// different users dispatch concurrently.
func (g *Gateway) handleMessage(ctx context.Context, out embedSender, selfID domain.UserID, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	cmd, ok := dispatch.Route(dispatch.Incoming{
		ServerID: domain.ServerID(m.GuildID),
		AuthorID: domain.UserID(m.Author.ID),
		Content:  m.Content,
	}, selfID, g.commands.Prefix())
	if !ok {
		return
	}

	ctx = observability.WithRequestID(ctx, m.ID)
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	reply := g.commands.Handle(ctx, cmd)
	if _, err := out.ChannelMessageSendEmbed(m.ChannelID, toEmbed(reply)); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to send reply",
			"channel", m.ChannelID,
			"command", cmd.Verb,
			"error", err,
		)
	}
}

func toEmbed(r dispatch.Reply) *discordgo.MessageEmbed {
	color := colorSuccess
	if r.IsError() {
		color = colorError
	}

	value := r.Value
	if value == "" {
		value = "\u200b"
	}

	return &discordgo.MessageEmbed{
		Title: r.Title,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: r.Field, Value: dispatch.Truncate(value, fieldLimit)},
		},
	}
}
