package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// Commitment is requested for every subscription.
	Commitment Commitment
	// OnNotification, if set, is called with the method of every notification received.
	OnNotification func(method string)
	// Logger receives connection and protocol errors.
	Logger logrus.FieldLogger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Commitment:        DefaultCommitment,
	}
}

// subscription is one live server-side subscription. notify runs on the read
// loop only; shutdown may run from any goroutine.
type subscription struct {
	method      string // e.g. "accountSubscribe"
	unsubscribe string // e.g. "accountUnsubscribe"
	params      []interface{}
	oneShot     bool

	notify  func(slot uint64, value json.RawMessage, stop <-chan struct{})
	closeCh func()

	mu       sync.Mutex
	stopped  bool
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *subscription) dispatch(slot uint64, value json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.notify(slot, value, s.stop)
}

func (s *subscription) shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		s.stopped = true
		s.closeCh()
		s.mu.Unlock()
	})
}

// pendingSub waits for the server to assign a subscription ID.
type pendingSub struct {
	sub *subscription
	ch  chan int64
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	log      logrus.FieldLogger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps server subscription ID to subscription
	subs   map[int64]*subscription
	subsMu sync.RWMutex

	// pendingSubs maps request ID to a subscription waiting for its ID
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 30 * time.Second
	}
	if cfg.Commitment == "" {
		cfg.Commitment = DefaultCommitment
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		log:         log.WithField("type", "solana/ws"),
		subs:        make(map[int64]*subscription),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeSignature subscribes to the confirmation of a single transaction.
func (c *WSClientImpl) SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error) {
	ch := make(chan SignatureNotification, 1)

	sub := &subscription{
		method:      "signatureSubscribe",
		unsubscribe: "signatureUnsubscribe",
		params: []interface{}{
			signature,
			map[string]interface{}{"commitment": c.config.Commitment},
		},
		oneShot: true,
		stop:    make(chan struct{}),
		closeCh: func() { close(ch) },
	}
	sub.notify = func(slot uint64, value json.RawMessage, stop <-chan struct{}) {
		var v wsSignatureValue
		if err := json.Unmarshal(value, &v); err != nil {
			c.log.WithError(err).Warn("failure decoding signature notification")
			return
		}
		n := SignatureNotification{Signature: signature, Slot: slot, Err: v.Err}
		select {
		case ch <- n:
		case <-stop:
		case <-c.done:
		}
	}

	if err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	return ch, nil
}

// SubscribeAccount subscribes to changes of an account's data and lamports.
func (c *WSClientImpl) SubscribeAccount(ctx context.Context, pubkey string) (<-chan AccountNotification, error) {
	// Buffer absorbs bursts; blocking send below never drops a change.
	ch := make(chan AccountNotification, 64)

	sub := &subscription{
		method:      "accountSubscribe",
		unsubscribe: "accountUnsubscribe",
		params: []interface{}{
			pubkey,
			map[string]interface{}{
				"encoding":   "base64",
				"commitment": c.config.Commitment,
			},
		},
		stop:    make(chan struct{}),
		closeCh: func() { close(ch) },
	}
	sub.notify = func(slot uint64, value json.RawMessage, stop <-chan struct{}) {
		n := AccountNotification{Pubkey: pubkey, Slot: slot}
		if len(value) > 0 && string(value) != "null" {
			var acc rpcAccount
			if err := json.Unmarshal(value, &acc); err != nil {
				c.log.WithError(err).Warn("failure decoding account notification")
				return
			}
			info, err := acc.toAccountInfo()
			if err != nil {
				c.log.WithError(err).Warn("failure decoding account data")
				return
			}
			n.Account = info
		}
		select {
		case ch <- n:
		case <-stop:
		case <-c.done:
		}
	}

	if err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	return ch, nil
}

// subscribe registers sub with the server and ties its lifetime to ctx.
func (c *WSClientImpl) subscribe(ctx context.Context, sub *subscription) error {
	if _, err := c.subscribeInternal(ctx, sub); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			c.cancel(sub)
		case <-sub.stop:
		case <-c.done:
		}
	}()

	return nil
}

// subscribeInternal sends the subscribe request and waits for its ID. The read
// loop registers sub under the ID before signalling, so no notification is lost.
func (c *WSClientImpl) subscribeInternal(ctx context.Context, sub *subscription) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  sub.method,
		Params:  sub.params,
	}

	pending := &pendingSub{sub: sub, ch: make(chan int64, 1)}
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = pending
	c.pendingSubsMu.Unlock()

	dropPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	if err := c.write(req); err != nil {
		dropPending()
		return 0, err
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case subID, ok := <-pending.ch:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		return subID, nil
	case <-timer.C:
		dropPending()
		return 0, fmt.Errorf("%s timeout after %s", sub.method, c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		dropPending()
		return 0, ctx.Err()
	}
}

// cancel removes sub, tells the server, and closes the subscriber's channel.
func (c *WSClientImpl) cancel(sub *subscription) {
	subID, ok := c.removeSub(sub)
	if ok && !c.closed.Load() {
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      c.requestID.Add(1),
			Method:  sub.unsubscribe,
			Params:  []interface{}{subID},
		}
		if err := c.write(req); err != nil {
			c.log.WithError(err).WithField("method", sub.unsubscribe).Debug("failure unsubscribing")
		}
	}
	sub.shutdown()
}

func (c *WSClientImpl) removeSub(sub *subscription) (int64, bool) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for id, s := range c.subs {
		if s == sub {
			delete(c.subs, id)
			return id, true
		}
	}
	return 0, false
}

func (c *WSClientImpl) write(req wsRequest) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	return nil
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	// Close all subscription channels
	c.subsMu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for id, s := range c.subs {
		subs = append(subs, s)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
	for _, s := range subs {
		s.shutdown()
	}

	// Close pending subscription channels
	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				c.log.WithError(err).Warn("websocket read failed, reconnecting")
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	// Close existing connection
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		c.log.WithError(err).Warn("websocket reconnect failed")
		return
	}

	c.resubscribeAll()
}

// resubscribeAll re-registers every live subscription after reconnect.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.RLock()
	old := make(map[int64]*subscription, len(c.subs))
	for id, s := range c.subs {
		old[id] = s
	}
	c.subsMu.RUnlock()

	for oldSubID, sub := range old {
		// Drop the stale ID first; the read loop registers the new one.
		c.subsMu.Lock()
		delete(c.subs, oldSubID)
		c.subsMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := c.subscribeInternal(ctx, sub)
		cancel()

		if err != nil {
			c.log.WithError(err).WithField("method", sub.method).Warn("failure resubscribing")
			c.subsMu.Lock()
			c.subs[oldSubID] = sub
			c.subsMu.Unlock()
		}
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	// Try to parse as subscription response first
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID > 0 && resp.Result != nil {
		c.handleSubscribeResponse(resp.ID, *resp.Result)
		return
	}

	// Try to parse as notification
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method != "" && notif.Params != nil {
		c.handleNotification(&notif)
		return
	}

	var errResp struct {
		ID    uint64 `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// The pending subscription, if any, will time out.
		c.log.WithFields(logrus.Fields{
			"id":   errResp.ID,
			"code": errResp.Error.Code,
		}).Warn(errResp.Error.Message)
	}
}

// handleSubscribeResponse registers the pending subscription under its server ID.
func (c *WSClientImpl) handleSubscribeResponse(reqID uint64, subID int64) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}

	c.subsMu.Lock()
	c.subs[subID] = p.sub
	c.subsMu.Unlock()

	select {
	case p.ch <- subID:
	default:
	}
}

// handleNotification dispatches a notification to its subscriber.
func (c *WSClientImpl) handleNotification(notif *wsNotification) {
	if c.config.OnNotification != nil {
		c.config.OnNotification(notif.Method)
	}

	subID := notif.Params.Subscription

	c.subsMu.RLock()
	sub, ok := c.subs[subID]
	c.subsMu.RUnlock()

	if !ok {
		return
	}

	var slot uint64
	if notif.Params.Result.Context != nil {
		slot = notif.Params.Result.Context.Slot
	}

	sub.dispatch(slot, notif.Params.Result.Value)

	if sub.oneShot {
		// The server drops signature subscriptions after the first notification.
		c.removeSub(sub)
		sub.shutdown()
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
					c.log.WithError(err).Debug("ping failed")
				}
			}
			c.connMu.Unlock()
		}
	}
}

var _ WSClient = (*WSClientImpl)(nil)

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  *int64 `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext      `json:"context"`
	Value   json.RawMessage `json:"value"`
}

type wsContext struct {
	Slot uint64 `json:"slot"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}
