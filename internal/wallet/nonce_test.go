package wallet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
)

func startNonceServer(t *testing.T, healthy *atomic.Bool, calls *atomic.Int64) *chainrpc.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		_ = json.Unmarshal(body, &req)
		if req.Method != "eth_getTransactionCount" {
			t.Errorf("unexpected method %s", req.Method)
		}
		calls.Add(1)
		if !healthy.Load() {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32000, "message": "node syncing"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID, "result": "0x10",
		})
	}))
	t.Cleanup(srv.Close)

	rpc, err := chainrpc.NewClient(chainrpc.Config{HTTPURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return rpc
}

func TestNonceManager_SeedsOnceThenCounts(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	var calls atomic.Int64
	rpc := startNonceServer(t, &healthy, &calls)

	m := NewNonceManager(rpc, common.HexToAddress("0x1"), nil)

	for want := uint64(16); want < 19; want++ {
		got, err := m.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Errorf("Next = %d, want %d", got, want)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("seed RPC calls = %d, want 1", calls.Load())
	}
}

func TestNonceManager_Reset(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	var calls atomic.Int64
	rpc := startNonceServer(t, &healthy, &calls)

	m := NewNonceManager(rpc, common.HexToAddress("0x1"), nil)
	m.Reset(5)

	got, err := m.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != 5 {
		t.Errorf("Next after Reset = %d, want 5", got)
	}
	if calls.Load() != 0 {
		t.Errorf("seed RPC calls after Reset = %d, want 0", calls.Load())
	}
}

func TestNonceManager_SeedFailureIsRecoverable(t *testing.T) {
	var healthy atomic.Bool
	var calls atomic.Int64
	rpc := startNonceServer(t, &healthy, &calls)

	m := NewNonceManager(rpc, common.HexToAddress("0x1"), nil)

	if _, err := m.Next(context.Background()); err == nil {
		t.Fatal("Next succeeded against an unhealthy node")
	}

	healthy.Store(true)
	got, err := m.Next(context.Background())
	if err != nil {
		t.Fatalf("Next after recovery: %v", err)
	}
	if got != 16 {
		t.Errorf("Next = %d, want 16", got)
	}
}
