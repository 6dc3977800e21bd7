package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func lowBalanceNote() Notification {
	return Notification{
		Kind:         KindLowBalance,
		Wallet:       "wallet123",
		BalanceSOL:   decimal.NewFromFloat(0.05),
		ThresholdSOL: decimal.NewFromFloat(0.1),
		SlotHeight:   42,
		FetchedAt:    time.Now(),
		Channels:     []string{"telegram"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), lowBalanceNote()); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id incorrect: %#v", received)
	}
	if !strings.Contains(received["text"], "wallet123") {
		t.Fatalf("message should name the wallet: %q", received["text"])
	}
	if !strings.Contains(received["text"], "0.0500") {
		t.Fatalf("message should carry the balance: %q", received["text"])
	}
}

func TestTelegramNotifierNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), lowBalanceNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), lowBalanceNote()); err == nil {
		t.Fatal("HTTP 502 应报错")
	}
}

func TestRenderRefreshFailureMessage(t *testing.T) {
	msg := renderMessage(Notification{
		Kind:    KindRefreshFailure,
		Message: "network error: connection refused",
	})
	if !strings.Contains(msg, "Refresh failure") {
		t.Fatalf("unexpected message: %q", msg)
	}
	if !strings.Contains(msg, "connection refused") {
		t.Fatalf("detail missing from message: %q", msg)
	}
}
