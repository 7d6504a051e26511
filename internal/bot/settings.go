package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kjannette/dolarbot/internal/models"
)

const (
	actionCurrency = "!currency="
	actionInterval = "!interval="
	actionConfirm  = "!confirm="

	expiredMessage = "This menu has expired, use /settings to start again"
)

// enterSettings resets the wizard and asks for the target currency.
func (b *Bot) enterSettings(ctx context.Context, chatID, uid int64) error {
	s := b.session(ctx, sessionKey{chatID: chatID, userID: uid})
	s.step = stepCurrency
	s.draft = models.Reminder{}
	s.mu.Unlock()

	return b.askCurrency(chatID)
}

func (b *Bot) askCurrency(chatID int64) error {
	var row []tgbotapi.InlineKeyboardButton
	for _, iso := range b.prices.Quotes() {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(iso, actionCurrency+iso))
	}
	msg := tgbotapi.NewMessage(chatID, "What is your target currency?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	return b.send(msg)
}

func (b *Bot) askInterval(chatID int64) error {
	var row []tgbotapi.InlineKeyboardButton
	for _, iv := range models.Intervals {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(iv.String(), actionInterval+iv.String()))
	}
	msg := tgbotapi.NewMessage(chatID, "How often do you want to receive updates?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	return b.send(msg)
}

func (b *Bot) askConfirmation(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "Apply settings?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Yes", actionConfirm+"yes"),
		tgbotapi.NewInlineKeyboardButtonData("No", actionConfirm+"no"),
	))
	return b.send(msg)
}

// callback advances the settings wizard. A button from a step the chat is no
// longer on is answered with a notice and otherwise ignored.
func (b *Bot) callback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.Message == nil || q.Message.Chat == nil {
		return nil
	}
	chat := q.Message.Chat
	if !chat.IsPrivate() {
		return fmt.Errorf("callback in chat %d: %w", chat.ID, ErrPrivateOnly)
	}

	var (
		want  step
		value string
	)
	switch {
	case strings.HasPrefix(q.Data, actionCurrency):
		want, value = stepCurrency, strings.TrimPrefix(q.Data, actionCurrency)
	case strings.HasPrefix(q.Data, actionInterval):
		want, value = stepInterval, strings.TrimPrefix(q.Data, actionInterval)
	case strings.HasPrefix(q.Data, actionConfirm):
		want, value = stepConfirm, strings.TrimPrefix(q.Data, actionConfirm)
	default:
		return fmt.Errorf("unknown callback data %q", q.Data)
	}

	s := b.session(ctx, sessionKey{chatID: chat.ID, userID: userID(q.From)})
	defer s.mu.Unlock()

	if s.step != want {
		b.answer(q, expiredMessage)
		return nil
	}
	b.answer(q, "")

	switch want {
	case stepCurrency:
		iso := models.NormalizeISO(value)
		if !b.prices.Tracks(iso) {
			return fmt.Errorf("currency %q is not tracked", value)
		}
		s.draft.Currency = iso
		s.step = stepInterval
		if err := b.send(tgbotapi.NewMessage(chat.ID, "You chose "+iso)); err != nil {
			return err
		}
		return b.askInterval(chat.ID)

	case stepInterval:
		iv, err := models.ParseInterval(value)
		if err != nil {
			return err
		}
		s.draft.Interval = iv
		s.step = stepConfirm
		return b.askConfirmation(chat.ID)

	default:
		return b.confirm(ctx, s, chat.ID, q.From, value)
	}
}

// confirm persists the draft on "yes" and restarts the wizard on "no".
// Caller holds s.mu.
func (b *Bot) confirm(ctx context.Context, s *session, chatID int64, from *tgbotapi.User, value string) error {
	switch value {
	case "yes":
		name, username := displayName(from)
		reminder := s.draft
		if _, err := b.dir.UpsertReminder(ctx, models.Subscriber{
			ChatID:   chatID,
			Name:     name,
			Username: username,
			Reminder: &reminder,
		}); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		s.currency = reminder.Currency
		s.step = stepIdle
		s.draft = models.Reminder{}
		b.log.Info().
			Int64("chat_id", chatID).
			Str("currency", reminder.Currency).
			Str("interval", reminder.Interval.String()).
			Msg("settings saved")
		return b.send(tgbotapi.NewMessage(chatID, "Goodbye!"))

	case "no":
		s.step = stepCurrency
		s.draft = models.Reminder{}
		return b.askCurrency(chatID)
	}
	return fmt.Errorf("unknown confirmation %q", value)
}

func (b *Bot) answer(q *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, text)); err != nil {
		b.log.Warn().Err(err).Msg("answer callback")
	}
}
