// Package csvlog appends liquidation attempts to a fixed 21-column CSV file
// used for accounting. Records are buffered and flushed in batches.
package csvlog

import (
	"bufio"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"
)

const header = "Timestamp,TX_Hash,User_Address,Debt_Asset,Collateral_Asset," +
	"Debt_Amount,Collateral_Amount,Debt_Amount_USD,Collateral_Amount_USD," +
	"Liquidation_Premium,Gas_Cost_Wei,Gas_Cost_USD,Profit_USDC,Profit_EUR," +
	"Execution_Status,Chain_ID,Executor_Address,Gas_Strategy,MEV_Protection," +
	"RPC_Endpoint,Dry_Run"

const (
	bufferRecords = 100
	flushInterval = 5 * time.Second

	// Fixed conversion for the Profit_EUR column; accounting-grade rates are
	// applied downstream.
	usdToEURRate = 0.85
)

// Record carries one liquidation attempt. Execution status and timestamp are
// filled in by the logging methods.
type Record struct {
	TxHash              string
	UserAddress         string
	DebtAsset           string
	CollateralAsset     string
	DebtAmount          float64
	CollateralAmount    float64
	DebtAmountUSD       float64
	CollateralAmountUSD float64
	LiquidationPremium  float64
	GasCostWei          *big.Int
	GasCostUSD          float64
	ProfitUSDC          float64
	ChainID             int64
	ExecutorAddress     string
	GasStrategy         string
	MEVProtection       string
	RPCEndpoint         string
	DryRun              bool
}

// Logger writes records to an append-only CSV file. The header is written
// once, when the file is new or does not start with one. Records buffer up
// to bufferRecords and reach disk on the size threshold, the periodic
// flusher, or Close.
type Logger struct {
	logger *slog.Logger
	done   chan struct{}

	mu     sync.Mutex
	file   *os.File
	buf    []string
	closed bool
}

// New opens (or creates) the CSV file at path and starts the flusher.
func New(path string, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	needHeader := true
	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		if scanner.Scan() {
			first := scanner.Text()
			needHeader = !strings.Contains(first, "Timestamp") || !strings.Contains(first, "TX_Hash")
		}
		existing.Close()
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening csv log: %w", err)
	}

	l := &Logger{logger: logger, file: file, done: make(chan struct{})}
	if needHeader {
		if _, err := file.WriteString(header + "\n"); err != nil {
			file.Close()
			return nil, fmt.Errorf("writing csv header: %w", err)
		}
	}
	go l.flushLoop()
	return l, nil
}

// LogAttempt records a liquidation being submitted.
func (l *Logger) LogAttempt(rec Record) {
	l.write(rec, "ATTEMPT")
}

// LogSuccess records a mined, successful liquidation.
func (l *Logger) LogSuccess(rec Record) {
	l.write(rec, "SUCCESS")
}

// LogFailure records a failed liquidation with the reason appended to the
// status column.
func (l *Logger) LogFailure(rec Record, reason string) {
	status := "FAILED"
	if reason != "" {
		status = "FAILED: " + reason
	}
	l.write(rec, status)
}

func (l *Logger) write(rec Record, status string) {
	line := formatLine(rec, status, time.Now().UTC())

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.buf = append(l.buf, line)
	if len(l.buf) >= bufferRecords {
		l.flushLocked()
	}
}

// flushLoop pushes buffered records to disk on a timer, so the last records
// of a quiet period do not wait for the next attempt.
func (l *Logger) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.Flush()
		}
	}
}

// Flush writes any buffered records to disk.
func (l *Logger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
}

// Close stops the flusher, flushes and closes the file. Safe to call more
// than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	l.flushLocked()
	return l.file.Close()
}

func (l *Logger) flushLocked() {
	if len(l.buf) == 0 {
		return
	}
	if _, err := l.file.WriteString(strings.Join(l.buf, "")); err != nil {
		l.logger.Error("writing csv records", "records", len(l.buf), "err", err)
	}
	l.buf = l.buf[:0]
}

func formatLine(rec Record, status string, now time.Time) string {
	gasWei := "0"
	if rec.GasCostWei != nil {
		gasWei = rec.GasCostWei.String()
	}
	return fmt.Sprintf("%q,%q,%q,%q,%q,%.18f,%.18f,%.2f,%.2f,%.2f,%s,%.2f,%.2f,%.2f,%q,%q,%q,%q,%q,%q,%t\n",
		now.Format("2006-01-02 15:04:05.000")+" UTC",
		rec.TxHash,
		rec.UserAddress,
		rec.DebtAsset,
		rec.CollateralAsset,
		rec.DebtAmount,
		rec.CollateralAmount,
		rec.DebtAmountUSD,
		rec.CollateralAmountUSD,
		rec.LiquidationPremium,
		gasWei,
		rec.GasCostUSD,
		rec.ProfitUSDC,
		rec.ProfitUSDC*usdToEURRate,
		status,
		fmt.Sprintf("%d", rec.ChainID),
		rec.ExecutorAddress,
		rec.GasStrategy,
		rec.MEVProtection,
		rec.RPCEndpoint,
		rec.DryRun,
	)
}
