package bot

import (
	"context"
	"sync"

	"github.com/kjannette/dolarbot/internal/models"
)

type step int

const (
	stepIdle step = iota
	stepCurrency
	stepInterval
	stepConfirm
)

func (s step) String() string {
	switch s {
	case stepCurrency:
		return "awaiting_currency"
	case stepInterval:
		return "awaiting_interval"
	case stepConfirm:
		return "awaiting_confirmation"
	}
	return "idle"
}

type sessionKey struct {
	chatID int64
	userID int64
}

// session is the in-memory state of one user in one chat.
type session struct {
	mu       sync.Mutex
	loaded   bool
	currency string
	step     step
	draft    models.Reminder
}

type sessions struct {
	mu sync.Mutex
	m  map[sessionKey]*session
}

func newSessions() *sessions {
	return &sessions{m: make(map[sessionKey]*session)}
}

// session returns the session for key, restoring the saved currency from the
// directory the first time the session is seen. The session is returned locked.
func (b *Bot) session(ctx context.Context, key sessionKey) *session {
	b.sessions.mu.Lock()
	s, ok := b.sessions.m[key]
	if !ok {
		s = &session{}
		b.sessions.m[key] = s
	}
	b.sessions.mu.Unlock()

	s.mu.Lock()
	if !s.loaded {
		s.loaded = true
		sub, err := b.dir.GetByChatID(ctx, key.userID)
		if err != nil {
			b.log.Error().Err(err).Int64("user_id", key.userID).Msg("restore session")
		} else if sub != nil && sub.Reminder != nil {
			s.currency = sub.Reminder.Currency
		}
	}
	return s
}
