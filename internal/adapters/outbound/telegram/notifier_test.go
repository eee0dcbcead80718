package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{BotToken: "t"}); err == nil {
		t.Error("New accepted missing chat id")
	}
	if _, err := New(Config{ChatID: "c"}); err == nil {
		t.Error("New accepted missing bot token")
	}
}

func TestNotifyPostsSendMessage(t *testing.T) {
	var gotPath atomic.Value
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := New(Config{BotToken: "token123", ChatID: "42", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n.Notify(context.Background(), "liquidation mined")

	if gotPath.Load() != "/bottoken123/sendMessage" {
		t.Errorf("path = %v, want /bottoken123/sendMessage", gotPath.Load())
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(gotBody.Load().(string)), &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload["chat_id"] != "42" || payload["text"] != "liquidation mined" {
		t.Errorf("payload = %v", payload)
	}
}

func TestNotifyRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := New(Config{BotToken: "t", ChatID: "c", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n.Notify(context.Background(), "retry me")

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestHourlyReport(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := New(Config{BotToken: "t", ChatID: "c", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n.AccumulateAttempt(true, 12.5)
	n.AccumulateAttempt(false, 0)

	// Not due yet.
	n.MaybeSendHourlyReport(context.Background())
	if len(bodies) != 0 {
		t.Fatalf("report sent early: %v", bodies)
	}

	// Force the report due.
	n.mu.Lock()
	n.lastReport = time.Now().Add(-2 * time.Hour)
	n.mu.Unlock()

	n.MaybeSendHourlyReport(context.Background())
	if len(bodies) != 1 {
		t.Fatalf("reports = %d, want 1", len(bodies))
	}
	if !strings.Contains(bodies[0], "attempted=2") || !strings.Contains(bodies[0], "completed=1") {
		t.Errorf("report body = %s", bodies[0])
	}
	if !strings.Contains(bodies[0], "12.50") {
		t.Errorf("report body missing profit: %s", bodies[0])
	}

	// A second call right after must not send again.
	n.MaybeSendHourlyReport(context.Background())
	if len(bodies) != 1 {
		t.Errorf("reports = %d, want still 1", len(bodies))
	}
}
