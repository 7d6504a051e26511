package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/dolarbot/internal/httputil"
)

// Alerter posts operator notices to a Slack or Discord webhook. Every notice
// is also logged, so a disabled Alerter still leaves a trace.
type Alerter struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	log        zerolog.Logger
}

func NewAlerter(webhookURL, botName string, log zerolog.Logger) *Alerter {
	if botName == "" {
		botName = "dolarBOT"
	}
	return &Alerter{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
			Log:         &log,
		},
		log: log,
	}
}

func (a *Alerter) Alert(ctx context.Context, msg string) {
	if a == nil {
		return
	}
	formatted := fmt.Sprintf("[%s] %s", a.botName, msg)
	a.log.Info().Str("alert", msg).Msg("ops alert")

	if a.webhookURL == "" {
		return
	}

	body, err := json.Marshal(a.formatPayload(formatted))
	if err != nil {
		a.log.Error().Err(err).Msg("marshal alert payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, a.httpClient, a.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		a.log.Error().Err(err).Msg("alert webhook failed after retries")
		return
	}
	resp.Body.Close()
}

func (a *Alerter) formatPayload(msg string) map[string]string {
	if strings.Contains(a.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": a.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": a.botName,
	}
}

func (a *Alerter) Enabled() bool {
	return a != nil && a.webhookURL != ""
}
