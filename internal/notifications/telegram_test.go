package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeMessenger) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeMessenger) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestTelegramSend_UsesHTML(t *testing.T) {
	m := &fakeMessenger{}
	s := NewTelegram(m, 0, 1)

	require.NoError(t, s.Send(context.Background(), 42, "<b>USD</b>"))
	require.Len(t, m.sent, 1)
	assert.Equal(t, int64(42), m.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, m.sent[0].ParseMode)
	assert.Equal(t, "<b>USD</b>", m.sent[0].Text)
}

func TestTelegramSend_ChatNotFoundIsPermanent(t *testing.T) {
	m := &fakeMessenger{err: &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}}
	s := NewTelegram(m, 0, 1)

	err := s.Send(context.Background(), 7, "hi")
	require.Error(t, err)

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.Permanent)
	assert.Equal(t, int64(7), de.ChatID)
	assert.True(t, IsChatGone(err))
}

func TestTelegramSend_OtherFailuresAreTransient(t *testing.T) {
	cases := []error{
		&tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 5"},
		&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"},
		errors.New("connection reset by peer"),
	}
	for _, c := range cases {
		s := NewTelegram(&fakeMessenger{err: c}, 0, 1)
		err := s.Send(context.Background(), 1, "hi")
		require.Error(t, err)
		assert.False(t, IsChatGone(err), c.Error())
	}
}

func TestIsChatGone_RawAPIError(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", &tgbotapi.Error{Message: "Bad Request: chat not found"})
	assert.True(t, IsChatGone(wrapped))
	assert.False(t, IsChatGone(nil))
}

func TestTelegramSend_CancelledContext(t *testing.T) {
	s := NewTelegram(&fakeMessenger{}, 0.001, 1)
	require.NoError(t, s.Send(context.Background(), 1, "first"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Send(ctx, 1, "second")
	require.Error(t, err)
	assert.False(t, IsChatGone(err))
}
