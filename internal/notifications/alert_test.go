package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestAlert_NoWebhook(t *testing.T) {
	a := NewAlerter("", "TestBot", zerolog.Nop())
	if a.Enabled() {
		t.Fatal("should not be enabled with empty URL")
	}
	a.Alert(context.Background(), "hello from test")
}

func TestAlert_SlackFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(srv.URL, "TestBot", zerolog.Nop())
	if !a.Enabled() {
		t.Fatal("should be enabled")
	}

	a.Alert(context.Background(), "hourly batch: 1 pair failed")

	if received["username"] != "TestBot" {
		t.Fatalf("username: got %s", received["username"])
	}
	if received["text"] != "`[TestBot] hourly batch: 1 pair failed`" {
		t.Fatalf("text: got %q", received["text"])
	}
}

func TestAlert_DiscordFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(srv.URL+"/discord/webhook", "dolarBOT", zerolog.Nop())
	a.Alert(context.Background(), "reaped 2 subscribers")

	if received["content"] == "" {
		t.Fatal("content should not be empty for Discord")
	}
	if _, hasText := received["text"]; hasText {
		t.Fatal("Discord payload should not have 'text' field")
	}
}

func TestAlert_WebhookError(t *testing.T) {
	a := NewAlerter("http://localhost:1/bogus", "TestBot", zerolog.Nop())
	a.retry.BaseDelay = 0
	a.Alert(context.Background(), "this will fail gracefully")
}

func TestAlert_NilSafe(t *testing.T) {
	var a *Alerter
	if a.Enabled() {
		t.Fatal("nil alerter should not be enabled")
	}
	a.Alert(context.Background(), "ignored")
}

func TestDefaultBotName(t *testing.T) {
	a := NewAlerter("", "", zerolog.Nop())
	if a.botName != "dolarBOT" {
		t.Fatalf("expected default bot name, got %s", a.botName)
	}
}
