package broadcast

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kjannette/dolarbot/internal/metrics"
)

type Deleter interface {
	DeleteByChatID(ctx context.Context, chatID int64) error
}

// Reaper removes subscribers whose chat no longer exists.
type Reaper struct {
	dir     Deleter
	log     zerolog.Logger
	metrics *metrics.Recorder
}

func NewReaper(dir Deleter, log zerolog.Logger, m *metrics.Recorder) *Reaper {
	return &Reaper{dir: dir, log: log, metrics: m}
}

// Reap deletes the subscriber for chatID. Reaping an unknown chat succeeds.
func (r *Reaper) Reap(ctx context.Context, chatID int64) error {
	if err := r.dir.DeleteByChatID(ctx, chatID); err != nil {
		return fmt.Errorf("reap chat %d: %w", chatID, err)
	}
	r.log.Info().Int64("chat_id", chatID).Msg("reaped subscriber, chat not found")
	r.metrics.Reaped()
	return nil
}
