// Package bot adapts Discord gateway events to the link and config services.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/metrics"
	"github.com/daladal/discord-bot/internal/reqctx"
	"github.com/daladal/discord-bot/internal/service"
)

// Intents are the gateway intents the bot needs to read prefixed commands.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// DefaultCommandTimeout bounds the store and verifier I/O of one command.
const DefaultCommandTimeout = 15 * time.Second

var (
	errUsage = fmt.Errorf("%w: usage", errs.ErrValidation)
	errPanic = errors.New("command panicked")
)

// Messenger delivers replies. *discordgo.Session implements it.
type Messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type handler func(ctx context.Context, m *discordgo.Message, args []string) (string, error)

// Bot routes prefixed chat commands. Every command runs in the goroutine
// discordgo spawned for its event.
type Bot struct {
	links   service.LinkService
	configs service.ConfigService
	out     Messenger
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	commands map[string]handler

	// guilds announced in Ready; their GuildCreate is a reconnect, not a join
	mu    sync.Mutex
	known map[string]struct{}
}

// Option customizes a Bot.
type Option func(*Bot)

// WithMetrics records per-command counters and latencies.
func WithMetrics(m *metrics.Metrics) Option { return func(b *Bot) { b.metrics = m } }

// WithTimeout overrides DefaultCommandTimeout.
func WithTimeout(d time.Duration) Option { return func(b *Bot) { b.timeout = d } }

// New constructs a Bot that replies through out.
func New(links service.LinkService, configs service.ConfigService, out Messenger, log *zap.Logger, opts ...Option) *Bot {
	b := &Bot{
		links:   links,
		configs: configs,
		out:     out,
		log:     log,
		timeout: DefaultCommandTimeout,
		known:   make(map[string]struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	b.commands = map[string]handler{
		"ping":   b.ping,
		"help":   b.help,
		"prefix": b.prefix,
		"link":   b.link,
		"unlink": b.unlink,
		"me":     b.me,
	}
	return b
}

// Register installs the event handlers on s.
func (b *Bot) Register(s *discordgo.Session) {
	s.AddHandler(b.OnReady)
	s.AddHandler(b.OnGuildCreate)
	s.AddHandler(b.OnMessageCreate)
}

// OnReady remembers the guilds the bot already belongs to.
func (b *Bot) OnReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	for _, g := range r.Guilds {
		b.known[g.ID] = struct{}{}
	}
	b.mu.Unlock()

	user := ""
	if r.User != nil {
		user = r.User.Username
	}
	b.log.Info("bot is ready", zap.String("user", user), zap.Int("guilds", len(r.Guilds)))
}

// OnGuildCreate reloads the config of a guild the bot just joined.
func (b *Bot) OnGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil {
		return
	}
	b.mu.Lock()
	_, known := b.known[g.ID]
	delete(b.known, g.ID)
	b.mu.Unlock()
	if known {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.configs.Reload(ctx, g.ID); err != nil {
		b.log.Warn("reload guild config", zap.String("guild_id", g.ID), zap.Error(err))
		return
	}
	b.log.Info("joined guild", zap.String("guild_id", g.ID), zap.String("name", g.Name))
}

// OnMessageCreate handles one chat message.
func (b *Bot) OnMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil {
		return
	}
	b.handle(context.Background(), m.Message)
}

func (b *Bot) handle(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	prefix := b.configs.Prefix(m.GuildID)
	if !strings.HasPrefix(m.Content, prefix) {
		return
	}
	args := ParseArgs(m.Content[len(prefix):])
	if len(args) == 0 {
		return
	}
	name := strings.ToLower(args[0])
	h, ok := b.commands[name]
	if !ok {
		return
	}

	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.Nil
	}
	ctx = reqctx.WithRequestID(ctx, id)
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	reply, err := b.run(ctx, name, h, m, args[1:])
	took := time.Since(start)
	b.metrics.Command(name, err, took)

	fields := []zap.Field{
		zap.String("request_id", id.String()),
		zap.String("command", name),
		zap.String("guild_id", m.GuildID),
		zap.String("user_id", m.Author.ID),
		zap.String("outcome", errs.Code(err)),
		zap.Duration("dur", took),
	}
	switch {
	case err == nil, errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrUpstreamNotFound), errors.Is(err, errs.ErrCommandThrottled):
		b.log.Info("command", fields...)
	case errs.IsTransient(err):
		b.log.Warn("command", append(fields, zap.Error(err))...)
	default:
		b.log.Error("command", append(fields, zap.Error(err))...)
	}

	if _, err := b.out.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.log.Warn("send reply", zap.String("request_id", id.String()), zap.Error(err))
	}
}

func (b *Bot) run(ctx context.Context, name string, h handler, m *discordgo.Message, args []string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
				zap.String("command", name),
			)
			reply, err = msgInternal, errPanic
		}
	}()
	return h(ctx, m, args)
}

func (b *Bot) ping(context.Context, *discordgo.Message, []string) (string, error) {
	return msgPong, nil
}

func (b *Bot) help(_ context.Context, m *discordgo.Message, _ []string) (string, error) {
	return helpText(b.configs.Prefix(m.GuildID)), nil
}

func (b *Bot) prefix(ctx context.Context, m *discordgo.Message, args []string) (string, error) {
	if m.GuildID == "" {
		return msgGuildOnly, errUsage
	}
	if len(args) == 0 {
		return fmt.Sprintf("Current prefix: `%s`", b.configs.Prefix(m.GuildID)), nil
	}
	err := b.configs.SetPrefix(ctx, m.GuildID, args[0])
	return describePrefix(args[0], err), err
}

func (b *Bot) link(ctx context.Context, m *discordgo.Message, args []string) (string, error) {
	if len(args) < 2 {
		return msgLinkUsage, errUsage
	}
	name, tag, err := ParseRiotID(args[0])
	if err != nil {
		return msgBadRiotID, err
	}
	rec, err := b.links.Link(ctx, m.Author.ID, name, tag, args[1])
	return describeLink(rec, args[1], name+"#"+tag, err), err
}

func (b *Bot) unlink(ctx context.Context, m *discordgo.Message, _ []string) (string, error) {
	err := b.links.Unlink(ctx, m.Author.ID)
	return describeUnlink(err), err
}

func (b *Bot) me(ctx context.Context, m *discordgo.Message, _ []string) (string, error) {
	rec, err := b.links.Lookup(ctx, m.Author.ID)
	return describeLookup(rec, err), err
}
