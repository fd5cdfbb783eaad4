package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	logger "github.com/sirupsen/logrus"
)

// maxMessageLen is the Telegram limit for one text message.
const maxMessageLen = 4096

var ErrNoChat = errors.New("no chat to notify yet")

// Bot is the operator channel: it delivers notifications to the owner and
// answers the owner's commands.
type Bot struct {
	cfg Config
	bot *bot.Bot

	mu         sync.Mutex
	chatID     int64
	dispatcher *Dispatcher

	// send is replaced in tests.
	send func(ctx context.Context, chatID int64, text string) error
	log  *logger.Entry
}

func New(cfg Config) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := newBot(cfg)
	tb, err := bot.New(cfg.BotToken, bot.WithDefaultHandler(b.handle))
	if err != nil {
		return nil, err
	}
	b.bot = tb
	b.send = func(ctx context.Context, chatID int64, text string) error {
		_, err := tb.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
		return err
	}
	return b, nil
}

func newBot(cfg Config) *Bot {
	return &Bot{
		cfg:    cfg,
		chatID: cfg.ChatID,
		log:    logger.WithField("component", "telegram"),
	}
}

// Attach enables commands once the runner exists.
func (b *Bot) Attach(d *Dispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatcher = d
}

// Start registers the command list and polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	b.mu.Lock()
	d := b.dispatcher
	b.mu.Unlock()
	if d != nil {
		var cmds []models.BotCommand
		for _, name := range d.Names() {
			cmds = append(cmds, models.BotCommand{Command: name, Description: d.Purpose(name)})
		}
		if _, err := b.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: cmds}); err != nil {
			b.log.WithError(err).Warn("could not set bot commands")
		}
	}
	b.log.WithField("owner", b.cfg.Owner).Info("Telegram bot started")
	b.bot.Start(ctx)
}

// Notify sends msg to the owner chat. It never blocks the trading path on a
// failure.
func (b *Bot) Notify(ctx context.Context, msg string) bool {
	b.mu.Lock()
	chatID := b.chatID
	b.mu.Unlock()
	if chatID == 0 {
		b.log.WithError(ErrNoChat).Debug("notification dropped")
		return false
	}
	if err := b.send(ctx, chatID, truncate(msg)); err != nil {
		b.log.WithError(err).Error("could not send notification (ignored)")
		return false
	}
	return true
}

func (b *Bot) isOwner(username string) bool {
	owner := strings.TrimPrefix(b.cfg.Owner, "@")
	return owner != "" && strings.EqualFold(username, owner)
}

func (b *Bot) handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	sender := msg.From.Username
	if !b.isOwner(sender) {
		b.log.WithFields(map[string]interface{}{
			"sender":  sender,
			"message": msg.Text,
		}).Warn("received message from non-owner (ignored)")
		return
	}

	b.mu.Lock()
	if b.chatID != msg.Chat.ID {
		b.log.WithField("chat_id", msg.Chat.ID).Info("owner chat registered")
		b.chatID = msg.Chat.ID
	}
	d := b.dispatcher
	b.mu.Unlock()

	reply := "starting up, commands are not available yet"
	if d != nil {
		out, err := d.Handle(ctx, msg.Text)
		if err != nil {
			b.log.WithError(err).WithField("command", msg.Text).Warn("command failed")
			out = err.Error()
		}
		reply = out
	}
	if err := b.send(ctx, msg.Chat.ID, truncate(reply)); err != nil {
		b.log.WithError(err).Error("could not reply to owner (ignored)")
	}
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxMessageLen {
		return s
	}
	return string(runes[:maxMessageLen-4]) + "\n..."
}
