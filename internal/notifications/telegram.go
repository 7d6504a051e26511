package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

const chatNotFound = "chat not found"

// Messenger is the subset of *tgbotapi.BotAPI used for outbound messages.
type Messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// DeliveryError describes a failed outbound message. Permanent failures mean
// the chat no longer exists and retrying is pointless.
type DeliveryError struct {
	ChatID    int64
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("deliver to chat %d (%s): %v", e.ChatID, kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsChatGone reports whether err means the recipient chat was not found.
func IsChatGone(err error) bool {
	if err == nil {
		return false
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Permanent
	}
	return apiSaysChatNotFound(err)
}

func apiSaysChatNotFound(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return strings.Contains(strings.ToLower(apiErr.Message), chatNotFound)
	}
	var apiVal tgbotapi.Error
	if errors.As(err, &apiVal) {
		return strings.Contains(strings.ToLower(apiVal.Message), chatNotFound)
	}
	return false
}

// Telegram delivers HTML messages through the Bot API, throttled by a token
// bucket shared across all callers.
type Telegram struct {
	api     Messenger
	limiter *rate.Limiter
}

// NewTelegram builds a sender. A non-positive rate disables throttling.
func NewTelegram(api Messenger, perSecond float64, burst int) *Telegram {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Telegram{api: api, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return &DeliveryError{ChatID: chatID, Err: err}
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		return &DeliveryError{ChatID: chatID, Permanent: apiSaysChatNotFound(err), Err: err}
	}
	return nil
}
