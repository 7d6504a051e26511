// Package bot serves the interactive chat commands: /start, /settings and
// /price.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/kjannette/dolarbot/internal/cache"
	"github.com/kjannette/dolarbot/internal/message"
	"github.com/kjannette/dolarbot/internal/metrics"
	"github.com/kjannette/dolarbot/internal/models"
	"github.com/kjannette/dolarbot/internal/notifications"
)

const (
	DefaultErrorMessage = "Oops, something went wrong"
	SlowPriceMessage    = "The price source is slow right now, please try again in a moment"
	NoCurrencyMessage   = "Please, set your currency first using the /settings command"

	defaultReplyTimeout = 10 * time.Second
)

var ErrPrivateOnly = errors.New("private chat only")

type Directory interface {
	GetByChatID(ctx context.Context, chatID int64) (*models.Subscriber, error)
	UpsertReminder(ctx context.Context, s models.Subscriber) (*models.Subscriber, error)
}

type PriceQuerier interface {
	Quotes() []string
	Tracks(iso string) bool
	FetchPrice(ctx context.Context, iso string) (models.Snapshot, error)
}

// Deps wires a Bot. Cache and Metrics are optional.
type Deps struct {
	API          notifications.Messenger
	Directory    Directory
	Prices       PriceQuerier
	Cache        cache.Store
	Metrics      *metrics.Recorder
	Log          zerolog.Logger
	Name         string
	ReplyTimeout time.Duration
}

type Bot struct {
	api          notifications.Messenger
	dir          Directory
	prices       PriceQuerier
	cache        cache.Store
	metrics      *metrics.Recorder
	log          zerolog.Logger
	name         string
	replyTimeout time.Duration
	sessions     *sessions
}

func New(d Deps) *Bot {
	if d.ReplyTimeout <= 0 {
		d.ReplyTimeout = defaultReplyTimeout
	}
	if d.Name == "" {
		d.Name = "dolarBOT"
	}
	return &Bot{
		api:          d.API,
		dir:          d.Directory,
		prices:       d.Prices,
		cache:        d.Cache,
		metrics:      d.Metrics,
		log:          d.Log,
		name:         d.Name,
		replyTimeout: d.ReplyTimeout,
		sessions:     newSessions(),
	}
}

// RegisterCommands publishes the command list shown by chat clients.
func (b *Bot) RegisterCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "price", Description: "get the current price of the dollar in your target currency"},
		tgbotapi.BotCommand{Command: "settings", Description: "set your settings"},
	)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

// Serve handles updates until ctx is done or the channel closes, then waits
// for in-flight handlers.
func (b *Bot) Serve(ctx context.Context, updates <-chan tgbotapi.Update) {
	var wg sync.WaitGroup
	defer wg.Wait()

	b.log.Info().Msg("serving updates")
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handle(ctx, upd)
			}()
		}
	}
}

// handle runs one update behind a recover and error guard. Failures are logged
// and, in private chats, answered with the default error message.
func (b *Bot) handle(ctx context.Context, upd tgbotapi.Update) {
	start := time.Now()
	log := b.log.With().Int("update_id", upd.UpdateID).Logger()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			log.Error().Err(err).Msg("update failed")
			b.replyError(upd)
		}
		log.Debug().Dur("took", time.Since(start)).Msg("update processed")
	}()

	switch {
	case upd.Message != nil && upd.Message.IsCommand():
		err = b.command(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		err = b.callback(ctx, upd.CallbackQuery)
	}
}

func (b *Bot) replyError(upd tgbotapi.Update) {
	var chat *tgbotapi.Chat
	var replyTo int
	switch {
	case upd.Message != nil:
		chat, replyTo = upd.Message.Chat, upd.Message.MessageID
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil:
		chat = upd.CallbackQuery.Message.Chat
	}
	if chat == nil || !chat.IsPrivate() {
		return
	}
	msg := tgbotapi.NewMessage(chat.ID, DefaultErrorMessage)
	msg.ReplyToMessageID = replyTo
	msg.AllowSendingWithoutReply = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chat.ID).Msg("send error reply")
	}
}

func (b *Bot) command(ctx context.Context, m *tgbotapi.Message) error {
	name := m.Command()
	var err error
	switch name {
	case "start":
		err = b.start(ctx, m)
	case "settings":
		err = b.settings(ctx, m)
	case "price":
		err = b.price(ctx, m)
	default:
		return nil
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	b.metrics.Command(name, outcome)
	return err
}

func (b *Bot) start(ctx context.Context, m *tgbotapi.Message) error {
	if !m.Chat.IsPrivate() {
		return fmt.Errorf("/start in chat %d: %w", m.Chat.ID, ErrPrivateOnly)
	}
	greeting := fmt.Sprintf("Hi. I'm the %s. You can use me to get the current USD prices at your target currency.", b.name)
	msg := tgbotapi.NewMessage(m.Chat.ID, greeting)
	msg.ReplyToMessageID = m.MessageID
	msg.AllowSendingWithoutReply = true
	if err := b.send(msg); err != nil {
		return err
	}
	return b.enterSettings(ctx, m.Chat.ID, userID(m.From))
}

func (b *Bot) settings(ctx context.Context, m *tgbotapi.Message) error {
	if !m.Chat.IsPrivate() {
		return fmt.Errorf("/settings in chat %d: %w", m.Chat.ID, ErrPrivateOnly)
	}
	return b.enterSettings(ctx, m.Chat.ID, userID(m.From))
}

func (b *Bot) price(ctx context.Context, m *tgbotapi.Message) error {
	s := b.session(ctx, sessionKey{chatID: m.Chat.ID, userID: userID(m.From)})
	iso := s.currency
	s.mu.Unlock()

	if iso == "" {
		return b.send(tgbotapi.NewMessage(m.Chat.ID, NoCurrencyMessage))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, b.replyTimeout)
	defer cancel()

	snap, err := b.fetchWithin(fetchCtx, iso)
	if err != nil {
		if fetchCtx.Err() == nil {
			return fmt.Errorf("fetch %s: %w", iso, err)
		}
		b.log.Warn().Err(err).Str("iso", iso).Dur("timeout", b.replyTimeout).Msg("price reply timed out")
		return b.send(b.fallback(ctx, m.Chat.ID, iso))
	}

	if b.cache != nil {
		if err := b.cache.Put(ctx, snap); err != nil {
			b.log.Warn().Err(err).Str("iso", iso).Msg("cache snapshot")
		}
	}
	return b.send(htmlMessage(m.Chat.ID, message.Render(snap)))
}

type fetchResult struct {
	snap models.Snapshot
	err  error
}

// fetchWithin returns as soon as ctx is done, even when the price source is
// still busy with the pair. The fetch itself is left to finish on its own.
func (b *Bot) fetchWithin(ctx context.Context, iso string) (models.Snapshot, error) {
	done := make(chan fetchResult, 1)
	go func() {
		var res fetchResult
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("panic: %v", r)
			}
			done <- res
		}()
		res.snap, res.err = b.prices.FetchPrice(ctx, iso)
	}()

	select {
	case res := <-done:
		return res.snap, res.err
	case <-ctx.Done():
		return models.Snapshot{}, ctx.Err()
	}
}

// fallback answers from the snapshot cache, or with a constant message when
// nothing is cached.
func (b *Bot) fallback(ctx context.Context, chatID int64, iso string) tgbotapi.MessageConfig {
	if b.cache != nil {
		snap, ok, err := b.cache.Get(ctx, iso)
		if err != nil {
			b.log.Warn().Err(err).Str("iso", iso).Msg("read cached snapshot")
		}
		if ok {
			return htmlMessage(chatID, message.Render(snap))
		}
	}
	return tgbotapi.NewMessage(chatID, SlowPriceMessage)
}

func (b *Bot) send(c tgbotapi.Chattable) error {
	if _, err := b.api.Send(c); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func htmlMessage(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return msg
}

func userID(u *tgbotapi.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

func displayName(u *tgbotapi.User) (name, username string) {
	if u == nil {
		return "", ""
	}
	return strings.TrimSpace(u.FirstName), u.UserName
}
