package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const txHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

func acceptingServer(t *testing.T, auth *atomic.Value) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil {
			auth.Store(r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "eth_sendRawTransaction") {
			t.Errorf("unexpected payload: %s", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": txHash})
	}))
}

func rejectingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]any{"code": -32000, "message": "nonce too low"},
		})
	}))
}

func TestNewSenderValidation(t *testing.T) {
	if _, err := NewSender(nil, nil, 0, nil); err == nil {
		t.Error("NewSender accepted zero endpoints")
	}
	if _, err := NewSender([]string{"a", "b"}, []string{"x", "y", "z"}, 0, nil); err == nil {
		t.Error("NewSender accepted mismatched auth header count")
	}
}

func TestSendRawTransaction_FirstAcceptanceWins(t *testing.T) {
	ok := acceptingServer(t, nil)
	defer ok.Close()
	bad := rejectingServer(t)
	defer bad.Close()

	s, err := NewSender([]string{bad.URL, ok.URL}, nil, 0, nil)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	hash, err := s.SendRawTransaction(context.Background(), "0x02deadbeef")
	if err != nil {
		t.Fatalf("SendRawTransaction: %v", err)
	}
	if hash != common.HexToHash(txHash) {
		t.Errorf("hash = %v, want %s", hash, txHash)
	}
}

func TestSendRawTransaction_AllRejected(t *testing.T) {
	bad1 := rejectingServer(t)
	defer bad1.Close()
	bad2 := rejectingServer(t)
	defer bad2.Close()

	s, err := NewSender([]string{bad1.URL, bad2.URL}, nil, 0, nil)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	if _, err := s.SendRawTransaction(context.Background(), "0x02deadbeef"); err == nil {
		t.Error("SendRawTransaction succeeded with all relays rejecting")
	} else if !strings.Contains(err.Error(), "all private relays failed") {
		t.Errorf("err = %v", err)
	}
}

func TestSendRawTransaction_SharedAuthHeader(t *testing.T) {
	var got atomic.Value
	ok := acceptingServer(t, &got)
	defer ok.Close()

	s, err := NewSender([]string{ok.URL}, []string{"Bearer relay-key"}, 0, nil)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	if _, err := s.SendRawTransaction(context.Background(), "0x02deadbeef"); err != nil {
		t.Fatalf("SendRawTransaction: %v", err)
	}
	if got.Load() != "Bearer relay-key" {
		t.Errorf("Authorization = %v, want Bearer relay-key", got.Load())
	}
}
