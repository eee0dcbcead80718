// types.go defines JSON-RPC request/response types for node communication.
package chainrpc

import (
	"encoding/json"
	"fmt"
)

// jsonRPCRequest represents a JSON-RPC 2.0 request.
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// jsonRPCResponse represents a JSON-RPC 2.0 response.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a JSON-RPC 2.0 response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// callMsg is the eth_call / eth_estimateGas parameter object.
type callMsg struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// Receipt is the subset of a transaction receipt the agent consumes.
type Receipt struct {
	TransactionHash   string `json:"transactionHash"`
	BlockNumber       string `json:"blockNumber"`
	Status            string `json:"status"`
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice"`
}

// blockHeader is the subset of eth_getBlockByNumber output the agent reads.
type blockHeader struct {
	Number        string `json:"number"`
	BaseFeePerGas string `json:"baseFeePerGas"`
}
