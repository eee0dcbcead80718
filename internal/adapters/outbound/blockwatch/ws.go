package blockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
	"github.com/archon-research/liquidator/internal/pkg/hexutil"
)

const (
	subscribeRequestID = 1
	pingRequestID      = 999

	headChannelSize = 64
)

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// wsMessage covers both request replies and subscription notifications.
type wsMessage struct {
	ID     int                `json:"id"`
	Method string             `json:"method"`
	Result json.RawMessage    `json:"result"`
	Error  *chainrpc.RPCError `json:"error"`
	Params *wsNotification    `json:"params"`
}

type wsNotification struct {
	Subscription string `json:"subscription"`
	Result       struct {
		Number string `json:"number"`
	} `json:"result"`
}

// runWebsocket cycles through the configured endpoints until the context is
// cancelled. A lost connection restarts the list after ReconnectDelay; a
// full pass without a single subscription waits AllFailedDelay.
func (w *Watcher) runWebsocket(ctx context.Context) {
	for ctx.Err() == nil {
		established := false
		for i, endpoint := range w.config.Endpoints {
			if ctx.Err() != nil {
				return
			}

			w.logger.Info("connecting websocket", "endpoint_index", i)
			ok, err := w.streamHeads(ctx, endpoint)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				w.logger.Warn("websocket endpoint failed",
					"endpoint_index", i, "established", ok, "error", err)
			}
			if ok {
				established = true
				break
			}
		}

		wait := w.config.AllFailedDelay
		if established {
			wait = w.config.ReconnectDelay
		} else {
			w.logger.Warn("all websocket endpoints failed", "wait", wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// streamHeads dials one endpoint, subscribes to newHeads and dispatches
// heads until the connection dies. The bool reports whether the
// subscription was ever confirmed, which decides the retry delay.
func (w *Watcher) streamHeads(ctx context.Context, endpoint string) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	header := http.Header{}
	if w.config.AuthHeaderName != "" {
		header.Set(w.config.AuthHeaderName, w.config.AuthHeaderValue)
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return false, fmt.Errorf("dialing websocket: %w", err)
	}
	defer conn.Close()

	if err := w.subscribe(conn); err != nil {
		return false, err
	}
	w.logger.Info("newHeads subscription confirmed")

	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	heads := make(chan uint64, headChannelSize)
	readErr := make(chan error, 1)
	go w.readLoop(connCtx, conn, heads, readErr)

	pingTicker := time.NewTicker(w.config.PingInterval)
	defer pingTicker.Stop()
	healthTicker := time.NewTicker(w.config.HealthCheckInterval)
	defer healthTicker.Stop()

	lastHead := time.Now()
	for {
		select {
		case <-ctx.Done():
			return true, nil

		case err := <-readErr:
			return true, err

		case blockNumber := <-heads:
			lastHead = time.Now()
			w.dispatch(blockNumber)

		case <-pingTicker.C:
			// Application-level keep-alive; the reply is matched by ID and
			// discarded in the read loop.
			ping := wsRequest{JSONRPC: "2.0", ID: pingRequestID, Method: "eth_blockNumber", Params: []any{}}
			if err := conn.WriteJSON(ping); err != nil {
				return true, fmt.Errorf("sending keep-alive: %w", err)
			}

		case <-healthTicker.C:
			if time.Since(lastHead) > w.config.StaleAfter {
				return true, fmt.Errorf("no new heads for %s", w.config.StaleAfter)
			}
		}
	}
}

// subscribe sends the newHeads subscription request and waits for the node
// to acknowledge it.
func (w *Watcher) subscribe(conn *websocket.Conn) error {
	req := wsRequest{JSONRPC: "2.0", ID: subscribeRequestID, Method: "eth_subscribe", Params: []any{"newHeads"}}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("sending subscribe request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(w.config.SubscribeTimeout)); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("awaiting subscribe confirmation: %w", err)
		}
		if msg.ID != subscribeRequestID {
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("subscribe rejected: %w", msg.Error)
		}
		if len(msg.Result) == 0 {
			return fmt.Errorf("subscribe confirmation missing result")
		}
		return nil
	}
}

// readLoop parses frames off the connection and forwards head numbers. It
// exits when the connection errors or the connection context is cancelled.
func (w *Watcher) readLoop(ctx context.Context, conn *websocket.Conn, heads chan<- uint64, readErr chan<- error) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(w.config.StaleAfter + w.config.HealthCheckInterval)); err != nil {
			select {
			case readErr <- err:
			case <-ctx.Done():
			}
			return
		}

		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case readErr <- err:
			case <-ctx.Done():
			}
			return
		}

		switch {
		case msg.Method == "eth_subscription" && msg.Params != nil:
			blockNumber, err := hexutil.ParseUint64(msg.Params.Result.Number)
			if err != nil {
				w.logger.Debug("malformed head notification", "error", err)
				continue
			}
			select {
			case heads <- blockNumber:
			case <-ctx.Done():
				return
			}

		case msg.ID == pingRequestID:
			// Keep-alive reply.
		}
	}
}
