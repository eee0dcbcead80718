// Package relay broadcasts signed transactions to a set of private relays.
// All relays receive the payload concurrently and the first acceptance wins.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const defaultTimeout = 5 * time.Second

// Sender posts eth_sendRawTransaction to every configured endpoint.
type Sender struct {
	httpClient  *http.Client
	endpoints   []string
	authHeaders []string // empty, a single shared value, or one per endpoint
	logger      *slog.Logger
}

// NewSender creates a Sender. authHeaders holds Authorization values: none,
// one shared by all endpoints, or exactly one per endpoint.
func NewSender(endpoints, authHeaders []string, timeout time.Duration, logger *slog.Logger) (*Sender, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("relay: no endpoints configured")
	}
	if len(authHeaders) > 1 && len(authHeaders) != len(endpoints) {
		return nil, fmt.Errorf("relay: %d auth headers for %d endpoints", len(authHeaders), len(endpoints))
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		httpClient:  &http.Client{Timeout: timeout},
		endpoints:   endpoints,
		authHeaders: authHeaders,
		logger:      logger,
	}, nil
}

// SendRawTransaction broadcasts the signed payload and returns the hash from
// the first relay that accepts it. It fails only when every relay rejects.
func (s *Sender) SendRawTransaction(ctx context.Context, rawTx string) (common.Hash, error) {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "eth_sendRawTransaction",
		"params":  []string{rawTx},
		"id":      1,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding payload: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		endpoint string
		hash     common.Hash
		err      error
	}
	results := make(chan result, len(s.endpoints))
	for i, endpoint := range s.endpoints {
		go func(endpoint, auth string) {
			hash, err := s.post(ctx, endpoint, auth, payload)
			results <- result{endpoint: endpoint, hash: hash, err: err}
		}(endpoint, s.authFor(i))
	}

	var errs []error
	for range s.endpoints {
		r := <-results
		if r.err == nil {
			return r.hash, nil
		}
		s.logger.Debug("relay rejected transaction", "endpoint", r.endpoint, "err", r.err)
		errs = append(errs, fmt.Errorf("%s: %w", r.endpoint, r.err))
	}
	return common.Hash{}, fmt.Errorf("all private relays failed: %w", errors.Join(errs...))
}

func (s *Sender) authFor(i int) string {
	switch {
	case len(s.authHeaders) == 0:
		return ""
	case len(s.authHeaders) == 1:
		return s.authHeaders[0]
	default:
		return s.authHeaders[i]
	}
}

func (s *Sender) post(ctx context.Context, endpoint, auth string, payload []byte) (common.Hash, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return common.Hash{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return common.Hash{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return common.Hash{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.Hash{}, err
	}
	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return common.Hash{}, fmt.Errorf("parsing response: %w", err)
	}
	if rpcResp.Error != nil {
		return common.Hash{}, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return common.HexToHash(rpcResp.Result), nil
}
