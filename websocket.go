package marketsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

const (
	// Heartbeat interval
	HeartbeatInterval = 30 * time.Second

	// Reconnect settings
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// WebSocket action types
const (
	wsActionHeartbeat   = "HEARTBEAT"
	wsActionSubscribe   = "SUBSCRIBE"
	wsActionUnsubscribe = "UNSUBSCRIBE"
)

const wsChannelReceipts = "chain.receipts"

type wsSubscribeMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
	TxHash  string `json:"txnHash"`
}

type wsHeartbeatMessage struct {
	Action string `json:"action"`
}

type wsReceiptMessage struct {
	TxHash string `json:"txnHash"`
	Status string `json:"status"`
}

// ReceiptStreamConfig holds configuration for the receipt stream
type ReceiptStreamConfig struct {
	Endpoint             string
	APIKey               string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	OnError              func(err error)
	OnConnect            func()
	OnDisconnect         func()
}

// ReceiptStream pushes transaction confirmations from the indexer so the
// status monitor does not have to rely on polling alone.
type ReceiptStream struct {
	config ReceiptStreamConfig

	mu               sync.RWMutex
	conn             *websocket.Conn
	isConnected      bool
	parent           context.Context
	ctx              context.Context
	cancel           context.CancelFunc
	heartbeatTicker  *time.Ticker
	reconnectAttempt int

	subMu sync.RWMutex
	subs  map[common.Hash][]chan TransactionStatus
}

// NewReceiptStream creates a new receipt stream client
func NewReceiptStream(config ReceiptStreamConfig) *ReceiptStream {
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	return &ReceiptStream{
		config: config,
		subs:   make(map[common.Hash][]chan TransactionStatus),
	}
}

// Connect establishes the WebSocket connection
func (ws *ReceiptStream) Connect(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.isConnected {
		return nil
	}

	// Reconnects derive from the same parent so cancelling the original
	// context stops the stream for good.
	ws.parent = ctx
	ws.ctx, ws.cancel = context.WithCancel(ctx)

	u, err := url.Parse(ws.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse WebSocket endpoint: %w", err)
	}
	q := u.Query()
	q.Set("apikey", ws.config.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ws.ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	ws.conn = conn
	ws.isConnected = true
	ws.reconnectAttempt = 0

	ws.startHeartbeat()
	go ws.readLoop()

	if ws.config.OnConnect != nil {
		go ws.config.OnConnect()
	}

	return nil
}

// Disconnect closes the WebSocket connection
func (ws *ReceiptStream) Disconnect() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.isConnected {
		return nil
	}

	ws.isConnected = false

	if ws.cancel != nil {
		ws.cancel()
	}
	if ws.heartbeatTicker != nil {
		ws.heartbeatTicker.Stop()
	}

	var err error
	if ws.conn != nil {
		err = ws.conn.Close()
		ws.conn = nil
	}

	if ws.config.OnDisconnect != nil {
		go ws.config.OnDisconnect()
	}

	return err
}

// IsConnected returns the current connection status
func (ws *ReceiptStream) IsConnected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.isConnected
}

// Subscribe registers for confirmations of a transaction. The returned
// channel receives the terminal status; the cancel function must be called
// when the caller stops listening.
func (ws *ReceiptStream) Subscribe(hash common.Hash) (<-chan TransactionStatus, func(), error) {
	msg := wsSubscribeMessage{
		Action:  wsActionSubscribe,
		Channel: wsChannelReceipts,
		TxHash:  hash.Hex(),
	}
	if err := ws.sendMessage(msg); err != nil {
		return nil, nil, err
	}

	ch := make(chan TransactionStatus, 1)
	ws.subMu.Lock()
	ws.subs[hash] = append(ws.subs[hash], ch)
	ws.subMu.Unlock()

	unsubscribe := func() {
		ws.subMu.Lock()
		channels := ws.subs[hash]
		for i, c := range channels {
			if c == ch {
				ws.subs[hash] = append(channels[:i], channels[i+1:]...)
				break
			}
		}
		remaining := len(ws.subs[hash])
		if remaining == 0 {
			delete(ws.subs, hash)
		}
		ws.subMu.Unlock()

		if remaining == 0 {
			_ = ws.sendMessage(wsSubscribeMessage{
				Action:  wsActionUnsubscribe,
				Channel: wsChannelReceipts,
				TxHash:  hash.Hex(),
			})
		}
	}
	return ch, unsubscribe, nil
}

// sendMessage sends a message over the WebSocket connection
func (ws *ReceiptStream) sendMessage(msg interface{}) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	if !ws.isConnected || ws.conn == nil {
		return fmt.Errorf("WebSocket not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// startHeartbeat starts the heartbeat ticker
func (ws *ReceiptStream) startHeartbeat() {
	ws.heartbeatTicker = time.NewTicker(HeartbeatInterval)

	go func() {
		for {
			select {
			case <-ws.heartbeatTicker.C:
				if err := ws.sendMessage(wsHeartbeatMessage{Action: wsActionHeartbeat}); err != nil {
					if ws.config.OnError != nil {
						ws.config.OnError(fmt.Errorf("heartbeat failed: %w", err))
					}
				}
			case <-ws.ctx.Done():
				return
			}
		}
	}()
}

// readLoop continuously reads messages from the WebSocket
func (ws *ReceiptStream) readLoop() {
	for {
		select {
		case <-ws.ctx.Done():
			return
		default:
			ws.mu.RLock()
			conn := ws.conn
			ws.mu.RUnlock()

			if conn == nil {
				return
			}

			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ws.config.OnError != nil {
					ws.config.OnError(fmt.Errorf("read error: %w", err))
				}
				ws.handleDisconnect()
				return
			}

			ws.dispatch(data)
		}
	}
}

// dispatch routes a receipt message to its subscribers
func (ws *ReceiptStream) dispatch(data []byte) {
	var msg wsReceiptMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.TxHash == "" {
		return
	}

	var status TransactionStatus
	switch strings.ToUpper(msg.Status) {
	case "SUCCESS":
		status = StatusSuccess
	case "FAILED":
		status = StatusFailed
	default:
		return
	}

	hash := common.HexToHash(msg.TxHash)
	ws.subMu.RLock()
	channels := ws.subs[hash]
	ws.subMu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- status:
		default:
		}
	}
}

// handleDisconnect handles disconnection and attempts reconnection
func (ws *ReceiptStream) handleDisconnect() {
	ws.mu.Lock()
	wasConnected := ws.isConnected
	ws.isConnected = false
	if ws.heartbeatTicker != nil {
		ws.heartbeatTicker.Stop()
	}
	ws.mu.Unlock()

	if wasConnected && ws.config.OnDisconnect != nil {
		ws.config.OnDisconnect()
	}

	go ws.attemptReconnect()
}

// attemptReconnect attempts to reconnect to the WebSocket
func (ws *ReceiptStream) attemptReconnect() {
	for ws.reconnectAttempt < ws.config.MaxReconnectAttempts {
		ws.reconnectAttempt++

		select {
		case <-ws.ctx.Done():
			return
		case <-time.After(ws.config.ReconnectInterval):
		}

		ws.mu.RLock()
		parent := ws.parent
		ws.mu.RUnlock()
		if parent == nil {
			parent = context.Background()
		}

		if err := ws.Connect(parent); err != nil {
			if ws.config.OnError != nil {
				ws.config.OnError(fmt.Errorf("reconnect attempt %d failed: %w", ws.reconnectAttempt, err))
			}
			continue
		}

		ws.resubscribe()
		return
	}

	if ws.config.OnError != nil {
		ws.config.OnError(fmt.Errorf("max reconnect attempts (%d) reached", ws.config.MaxReconnectAttempts))
	}
}

// resubscribe resubscribes to all tracked transaction hashes
func (ws *ReceiptStream) resubscribe() {
	ws.subMu.RLock()
	defer ws.subMu.RUnlock()

	for hash := range ws.subs {
		msg := wsSubscribeMessage{
			Action:  wsActionSubscribe,
			Channel: wsChannelReceipts,
			TxHash:  hash.Hex(),
		}
		if err := ws.sendMessage(msg); err != nil {
			if ws.config.OnError != nil {
				ws.config.OnError(fmt.Errorf("resubscribe failed: %w", err))
			}
		}
	}
}
