package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return New(Config{
		BotToken:       "123:TOKEN",
		WebhookURL:     "https://gateway.example/webhook/telegram",
		AppURL:         "https://app.example",
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		BaseURL:        serverURL,
	}, nil)
}

func TestRegisterWebhookRetriesUntilSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:TOKEN/setWebhook" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if got := gjson.GetBytes(body, "url").String(); got != "https://gateway.example/webhook/telegram" {
			t.Errorf("webhook url = %q", got)
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	if err := newTestClient(t, server.URL).RegisterWebhook(context.Background()); err != nil {
		t.Fatalf("RegisterWebhook() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestRegisterWebhookGivesUpAfterAttemptCeiling(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"ok":false,"description":"bad webhook"}`))
	}))
	defer server.Close()

	err := newTestClient(t, server.URL).RegisterWebhook(context.Background())
	if err == nil {
		t.Fatal("RegisterWebhook() succeeded, want error after exhausting attempts")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestRegisterWebhookRequiresURL(t *testing.T) {
	client := New(Config{BotToken: "123:TOKEN"}, nil)
	if err := client.RegisterWebhook(context.Background()); err == nil {
		t.Fatal("RegisterWebhook() succeeded without a webhook URL")
	}
}

func TestHandleUpdateStartCommand(t *testing.T) {
	var sent []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:TOKEN/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		sent, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	update := `{"update_id":1,"message":{"text":"/start","chat":{"id":777},"from":{"first_name":"Ada"}}}`
	if err := newTestClient(t, server.URL).HandleUpdate(context.Background(), []byte(update)); err != nil {
		t.Fatalf("HandleUpdate() error = %v", err)
	}

	if got := gjson.GetBytes(sent, "chat_id").Int(); got != 777 {
		t.Fatalf("chat_id = %d", got)
	}
	if text := gjson.GetBytes(sent, "text").String(); !strings.Contains(text, "Ada") {
		t.Fatalf("greeting = %q, want it to address Ada", text)
	}
	if got := gjson.GetBytes(sent, "reply_markup.inline_keyboard.0.0.web_app.url").String(); got != "https://app.example" {
		t.Fatalf("web_app url = %q", got)
	}
}

func TestHandleUpdateIgnoresOtherMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected bot API call")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	for _, raw := range []string{
		`{"update_id":2,"message":{"text":"hello","chat":{"id":777}}}`,
		`{"update_id":3}`,
	} {
		if err := client.HandleUpdate(context.Background(), []byte(raw)); err != nil {
			t.Fatalf("HandleUpdate(%s) error = %v", raw, err)
		}
	}
}

func TestHandleUpdateRejectsMalformedPayload(t *testing.T) {
	client := New(Config{BotToken: "123:TOKEN"}, nil)
	if err := client.HandleUpdate(context.Background(), []byte("not json")); err == nil {
		t.Fatal("HandleUpdate() accepted malformed payload")
	}
}
