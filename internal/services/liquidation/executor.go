package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
	"github.com/archon-research/liquidator/internal/adapters/outbound/relay"
	"github.com/archon-research/liquidator/internal/domain/entity"
	"github.com/archon-research/liquidator/internal/gas"
	"github.com/archon-research/liquidator/internal/pkg/hexutil"
	"github.com/archon-research/liquidator/internal/ports/outbound"
	"github.com/archon-research/liquidator/internal/services/mev_guard"
	"github.com/archon-research/liquidator/internal/wallet"
)

const receiptPollInterval = 200 * time.Millisecond

// ExecutorConfig carries the submission parameters.
type ExecutorConfig struct {
	ChainID uint64

	// Executor is the on-chain contract every planned transaction targets.
	Executor common.Address

	// ReceiptTimeout is how long each attempt waits for inclusion before
	// the fees are bumped.
	ReceiptTimeout time.Duration

	Events outbound.EventSink
	Logger *slog.Logger
}

// Executor signs planned transactions and drives them to inclusion with
// replace-by-fee escalation. It owns the nonce: a plan only consumes one
// when it reaches submission.
type Executor struct {
	config    ExecutorConfig
	rpc       *chainrpc.Client
	signer    *wallet.Signer
	nonces    *wallet.NonceManager
	escalator *gas.Escalator
	protector *mev_guard.Protector
	relays    *relay.Sender // optional fan-out for private submission
	events    outbound.EventSink
	logger    *slog.Logger
}

// NewExecutor validates the wiring and returns an Executor. relays may be
// nil; private submission then uses the RPC client's private endpoint.
func NewExecutor(config ExecutorConfig, rpc *chainrpc.Client, signer *wallet.Signer, nonces *wallet.NonceManager, escalator *gas.Escalator, protector *mev_guard.Protector, relays *relay.Sender) (*Executor, error) {
	if rpc == nil {
		return nil, errors.New("liquidation: rpc client is required")
	}
	if signer == nil {
		return nil, errors.New("liquidation: signer is required")
	}
	if nonces == nil {
		return nil, errors.New("liquidation: nonce manager is required")
	}
	if escalator == nil {
		return nil, errors.New("liquidation: gas escalator is required")
	}
	if protector == nil {
		return nil, errors.New("liquidation: mev protector is required")
	}
	if config.ReceiptTimeout <= 0 {
		config.ReceiptTimeout = 3 * time.Second
	}
	if config.Events == nil {
		config.Events = outbound.NopSink{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		config:    config,
		rpc:       rpc,
		signer:    signer,
		nonces:    nonces,
		escalator: escalator,
		protector: protector,
		relays:    relays,
		events:    config.Events,
		logger:    logger.With("component", "liquidation_executor"),
	}, nil
}

// Submit signs planned and drives it on-chain: submit, wait for a receipt,
// bump both fees and replace, up to the escalator's bump budget. The result
// carries the last submitted hash even when every attempt times out.
func (e *Executor) Submit(ctx context.Context, planned *PlannedTx) entity.ExecutionResult {
	nonce, err := e.nonces.Next(ctx)
	if err != nil {
		return entity.ExecutionResult{Err: fmt.Errorf("acquiring nonce: %w", err)}
	}

	fields := entity.TransactionFields{
		ChainID:              e.config.ChainID,
		Nonce:                nonce,
		GasLimit:             planned.GasLimit,
		MaxFeePerGas:         planned.Gas.MaxFeePerGas,
		MaxPriorityFeePerGas: planned.Gas.MaxPriorityFeePerGas,
		To:                   e.config.Executor,
		Value:                new(big.Int),
		Data:                 planned.Calldata,
	}

	quote := planned.Gas
	var lastHash common.Hash
	for attempt := 0; attempt <= e.escalator.MaxBumps(); attempt++ {
		fields.MaxFeePerGas = quote.MaxFeePerGas
		fields.MaxPriorityFeePerGas = quote.MaxPriorityFeePerGas

		raw, _, err := e.signer.SignTx(fields)
		if err != nil {
			return entity.ExecutionResult{TxHash: lastHash, Err: fmt.Errorf("signing attempt %d: %w", attempt, err)}
		}

		hash, submitKind, err := e.send(ctx, raw)
		if err != nil {
			// Transient submission failures ride the same escalation
			// loop as missing receipts.
			e.logger.Warn("submission failed",
				"nonce", nonce, "attempt", attempt, "error", err)
		} else {
			lastHash = hash
			e.events.Emit("tx_submitted", map[string]any{
				"tx_hash":          lastHash.Hex(),
				"nonce":            nonce,
				"submit_kind":      submitKind,
				"rbf_index":        attempt,
				"max_fee_per_gas":  fields.MaxFeePerGas,
				"max_priority_fee": fields.MaxPriorityFeePerGas,
			})
			if receipt := e.waitForReceipt(ctx, lastHash); receipt != nil {
				e.events.Emit("tx_receipt", map[string]any{
					"tx_hash":      lastHash.Hex(),
					"status":       receipt.Status,
					"block_number": receipt.BlockNumber,
					"gas_used":     receipt.GasUsed,
				})
				return receiptResult(lastHash, receipt)
			}
		}

		if attempt == e.escalator.MaxBumps() {
			break
		}
		previous := lastHash
		quote = e.escalator.Next(quote)
		e.events.Emit("tx_rbf_bump", map[string]any{
			"tx_hash_prev": previous.Hex(),
			"nonce":        nonce,
			"bump_index":   attempt + 1,
			"new_fees": map[string]any{
				"max_fee":  quote.MaxFeePerGas,
				"max_prio": quote.MaxPriorityFeePerGas,
			},
		})
		select {
		case <-ctx.Done():
			return entity.ExecutionResult{TxHash: lastHash, Err: ctx.Err()}
		case <-time.After(e.escalator.Interval()):
		}
	}

	return entity.ExecutionResult{
		TxHash: lastHash,
		Err:    fmt.Errorf("no receipt after %d attempts", e.escalator.MaxBumps()+1),
	}
}

// send submits the raw transaction, privately when configured and a private
// path exists; it reports which kind of submission happened.
func (e *Executor) send(ctx context.Context, raw string) (common.Hash, string, error) {
	if e.protector.UsePrivateTx() {
		if e.relays != nil {
			e.pauseBeforePrivateSend(ctx)
			hash, err := e.relays.SendRawTransaction(ctx, raw)
			return hash, "private", err
		}
		if e.rpc.HasPrivate() {
			e.pauseBeforePrivateSend(ctx)
			hash, err := e.rpc.SendRawTransaction(ctx, raw, true)
			return hash, "private", err
		}
	}
	hash, err := e.rpc.SendRawTransaction(ctx, raw, false)
	return hash, "public", err
}

// pauseBeforePrivateSend applies the randomized submit delay that keeps
// private submissions from clustering at block boundaries.
func (e *Executor) pauseBeforePrivateSend(ctx context.Context) {
	delay := e.protector.SubmitDelay()
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// waitForReceipt polls until the receipt shows up or the per-attempt budget
// runs out.
func (e *Executor) waitForReceipt(ctx context.Context, hash common.Hash) *chainrpc.Receipt {
	deadline := time.Now().Add(e.config.ReceiptTimeout)
	for {
		receipt, err := e.rpc.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt
		}
		if err != nil && !errors.Is(err, chainrpc.ErrNotFound) {
			e.logger.Debug("receipt poll failed", "tx_hash", hash, "error", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		wait := receiptPollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func receiptResult(hash common.Hash, receipt *chainrpc.Receipt) entity.ExecutionResult {
	result := entity.ExecutionResult{Success: true, TxHash: hash}
	if n, err := hexutil.ParseUint64(receipt.BlockNumber); err == nil {
		result.BlockNumber = n
	}
	if g, err := hexutil.ParseUint64(receipt.GasUsed); err == nil {
		result.GasUsed = g
	}
	return result
}
