package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/dolarbot/internal/models"
)

const userColumns = `id, telegram_id, name, username,
	reminder_interval, reminder_currency, latest_remind,
	created_at, updated_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// GetByChatID returns nil when no subscriber has the chat id.
func (r *UserRepo) GetByChatID(ctx context.Context, chatID int64) (*models.Subscriber, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`,
		chatID,
	)
	s, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %d: %w", chatID, err)
	}
	return s, nil
}

func (r *UserRepo) ListByInterval(ctx context.Context, interval models.Interval) ([]models.Subscriber, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE reminder_interval = $1
		 ORDER BY id ASC`,
		string(interval),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s subscribers: %w", interval, err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// UpsertReminder creates or replaces the subscriber keyed by chat id.
func (r *UserRepo) UpsertReminder(ctx context.Context, s models.Subscriber) (*models.Subscriber, error) {
	if s.Reminder == nil {
		return nil, errors.New("upsert reminder: reminder is required")
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (telegram_id, name, username, reminder_interval, reminder_currency)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (telegram_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     username = EXCLUDED.username,
		     reminder_interval = EXCLUDED.reminder_interval,
		     reminder_currency = EXCLUDED.reminder_currency,
		     updated_at = NOW()
		 RETURNING `+userColumns,
		s.ChatID, s.Name, s.Username,
		string(s.Reminder.Interval), models.NormalizeISO(s.Reminder.Currency),
	)
	out, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user %d: %w", s.ChatID, err)
	}
	return out, nil
}

// DeleteByChatID removes the subscriber. Deleting an absent record succeeds.
func (r *UserRepo) DeleteByChatID(ctx context.Context, chatID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE telegram_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete user %d: %w", chatID, err)
	}
	return nil
}

func (r *UserRepo) MarkReminded(ctx context.Context, chatID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET latest_remind = $2 WHERE telegram_id = $1`,
		chatID, at,
	)
	if err != nil {
		return fmt.Errorf("mark reminded %d: %w", chatID, err)
	}
	return nil
}

func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanUser(row scannable) (*models.Subscriber, error) {
	var (
		s        models.Subscriber
		interval *string
		currency *string
		latest   *time.Time
	)
	err := row.Scan(
		&s.ID, &s.ChatID, &s.Name, &s.Username,
		&interval, &currency, &latest,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if interval != nil && currency != nil {
		s.Reminder = &models.Reminder{
			Interval:     models.Interval(*interval),
			Currency:     *currency,
			LatestRemind: latest,
		}
	}
	return &s, nil
}

func collectUsers(rows rowsIter) ([]models.Subscriber, error) {
	var out []models.Subscriber
	for rows.Next() {
		s, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
