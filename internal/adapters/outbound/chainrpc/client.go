// Package chainrpc implements the JSON-RPC client the agent uses for all
// HTTP node traffic: contract reads, fee queries, filter management and raw
// transaction submission, with an optional second endpoint for private
// submission.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/pkg/hexutil"
)

// ErrNotFound signals a null JSON-RPC result, e.g. a receipt that is not
// mined yet.
var ErrNotFound = errors.New("not found")

// Client is a JSON-RPC client over HTTP POST.
type Client struct {
	config     Config
	httpClient *http.Client
	nextID     atomic.Int64
}

// EthCall is one element of a batched eth_call request.
type EthCall struct {
	To   common.Address
	Data []byte
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chainrpc config: %w", err)
	}
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Endpoint returns the public endpoint URL.
func (c *Client) Endpoint() string {
	return c.config.HTTPURL
}

// HasPrivate reports whether a private submission endpoint is configured.
func (c *Client) HasPrivate() bool {
	return c.config.PrivateURL != ""
}

// Call issues a single JSON-RPC request against the public endpoint and
// returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      int(c.nextID.Add(1)),
		Method:  method,
		Params:  params,
	}
	resp, err := c.post(ctx, c.config.HTTPURL, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, ErrNotFound
	}
	return resp.Result, nil
}

// EthCall performs eth_call against to with data at the given block tag and
// returns the raw return data.
func (c *Client) EthCall(ctx context.Context, to common.Address, data []byte, block string) ([]byte, error) {
	if block == "" {
		block = "latest"
	}
	msg := callMsg{To: strings.ToLower(to.Hex()), Data: "0x" + hex.EncodeToString(data)}
	result, err := c.Call(ctx, "eth_call", msg, block)
	if err != nil {
		return nil, err
	}
	var out string
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("failed to parse eth_call result: %w", err)
	}
	return hex.DecodeString(strings.TrimPrefix(out, "0x"))
}

// BatchEthCall issues one JSON-RPC batch of eth_calls. Requests are keyed by
// array index; the returned slice is parallel to calls, with nil entries for
// elements that errored. The outer error covers transport and envelope
// failures only.
func (c *Client) BatchEthCall(ctx context.Context, calls []EthCall, block string) ([][]byte, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if block == "" {
		block = "latest"
	}

	reqs := make([]jsonRPCRequest, len(calls))
	for i, call := range calls {
		reqs[i] = jsonRPCRequest{
			JSONRPC: "2.0",
			ID:      i,
			Method:  "eth_call",
			Params: []any{
				callMsg{To: strings.ToLower(call.To.Hex()), Data: "0x" + hex.EncodeToString(call.Data)},
				block,
			},
		}
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}
	raw, err := c.postRaw(ctx, c.config.HTTPURL, body)
	if err != nil {
		return nil, err
	}

	var resps []jsonRPCResponse
	if err := json.Unmarshal(raw, &resps); err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}

	// Responses may arrive in any order; the id is the request index.
	results := make([][]byte, len(calls))
	for _, resp := range resps {
		if resp.ID < 0 || resp.ID >= len(calls) || resp.Error != nil {
			continue
		}
		var out string
		if err := json.Unmarshal(resp.Result, &out); err != nil {
			continue
		}
		decoded, err := hex.DecodeString(strings.TrimPrefix(out, "0x"))
		if err != nil {
			continue
		}
		results[resp.ID] = decoded
	}
	return results, nil
}

// BlockNumber returns the current head number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	var out string
	if err := json.Unmarshal(result, &out); err != nil {
		return 0, fmt.Errorf("failed to parse eth_blockNumber result: %w", err)
	}
	return hexutil.ParseUint64(out)
}

// LatestBaseFee reads baseFeePerGas from the latest block header.
func (c *Client) LatestBaseFee(ctx context.Context) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_getBlockByNumber", "latest", false)
	if err != nil {
		return nil, err
	}
	var header blockHeader
	if err := json.Unmarshal(result, &header); err != nil {
		return nil, fmt.Errorf("failed to parse block header: %w", err)
	}
	if header.BaseFeePerGas == "" {
		return nil, fmt.Errorf("block header carries no baseFeePerGas")
	}
	return hexutil.ParseBig(header.BaseFeePerGas)
}

// MaxPriorityFeePerGas returns the node's suggested tip.
func (c *Client) MaxPriorityFeePerGas(ctx context.Context) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_maxPriorityFeePerGas")
	if err != nil {
		return nil, err
	}
	var out string
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("failed to parse eth_maxPriorityFeePerGas result: %w", err)
	}
	return hexutil.ParseBig(out)
}

// TransactionCount returns the account nonce at the given block tag
// ("pending" seeds the nonce manager).
func (c *Client) TransactionCount(ctx context.Context, addr common.Address, block string) (uint64, error) {
	result, err := c.Call(ctx, "eth_getTransactionCount", strings.ToLower(addr.Hex()), block)
	if err != nil {
		return 0, err
	}
	var out string
	if err := json.Unmarshal(result, &out); err != nil {
		return 0, fmt.Errorf("failed to parse eth_getTransactionCount result: %w", err)
	}
	return hexutil.ParseUint64(out)
}

// SendRawTransaction submits a signed transaction. With private set and a
// private endpoint configured, the request goes to the private URL with an
// identical JSON-RPC body; otherwise to the public one.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx string, private bool) (common.Hash, error) {
	url := c.config.HTTPURL
	if private && c.HasPrivate() {
		url = c.config.PrivateURL
	}

	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      int(c.nextID.Add(1)),
		Method:  "eth_sendRawTransaction",
		Params:  []any{rawTx},
	}
	resp, err := c.post(ctx, url, req)
	if err != nil {
		return common.Hash{}, err
	}
	if resp.Error != nil {
		return common.Hash{}, resp.Error
	}
	var hash string
	if err := json.Unmarshal(resp.Result, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("failed to parse eth_sendRawTransaction result: %w", err)
	}
	return common.HexToHash(hash), nil
}

// TransactionReceipt fetches the receipt of hash. Returns ErrNotFound while
// the transaction is unmined.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", hash.Hex())
	if err != nil {
		return nil, err
	}
	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("failed to parse receipt: %w", err)
	}
	return &receipt, nil
}

// NewBlockFilter installs a block filter and returns its id.
func (c *Client) NewBlockFilter(ctx context.Context) (string, error) {
	result, err := c.Call(ctx, "eth_newBlockFilter")
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(result, &id); err != nil {
		return "", fmt.Errorf("failed to parse eth_newBlockFilter result: %w", err)
	}
	return id, nil
}

// GetFilterChanges polls a filter for new entries (block hashes for a block
// filter).
func (c *Client) GetFilterChanges(ctx context.Context, filterID string) ([]string, error) {
	result, err := c.Call(ctx, "eth_getFilterChanges", filterID)
	if err != nil {
		return nil, err
	}
	var hashes []string
	if err := json.Unmarshal(result, &hashes); err != nil {
		return nil, fmt.Errorf("failed to parse eth_getFilterChanges result: %w", err)
	}
	return hashes, nil
}

// UninstallFilter removes a filter.
func (c *Client) UninstallFilter(ctx context.Context, filterID string) error {
	_, err := c.Call(ctx, "eth_uninstallFilter", filterID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// post sends one JSON-RPC request and decodes the envelope.
func (c *Client) post(ctx context.Context, url string, req jsonRPCRequest) (*jsonRPCResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	raw, err := c.postRaw(ctx, url, body)
	if err != nil {
		return nil, err
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

func (c *Client) postRaw(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.AuthHeaderName != "" && c.config.AuthHeaderValue != "" {
		httpReq.Header.Set(c.config.AuthHeaderName, c.config.AuthHeaderValue)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP status %d: %s", httpResp.StatusCode, truncateBody(respBytes))
	}
	return respBytes, nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
