package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer upgrades the connection and hands it to serve.
func wsServer(t *testing.T, serve func(c *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func readRequest(t *testing.T, c *websocket.Conn) (wsRequest, bool) {
	t.Helper()
	_, msg, err := c.ReadMessage()
	if err != nil {
		return wsRequest{}, false
	}
	var req wsRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		t.Errorf("unmarshal request: %v", err)
		return wsRequest{}, false
	}
	return req, true
}

func confirm(c *websocket.Conn, reqID uint64, subID int64) error {
	return c.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"result":  subID,
	})
}

func notify(c *websocket.Conn, method string, subID int64, slot uint64, value interface{}) error {
	return c.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params": map[string]interface{}{
			"subscription": subID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value":   value,
			},
		},
	})
}

func TestWSClient_Connect(t *testing.T) {
	server, wsURL := wsServer(t, drain)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SubscribeSignature(t *testing.T) {
	server, wsURL := wsServer(t, func(c *websocket.Conn) {
		req, ok := readRequest(t, c)
		if !ok {
			return
		}

		if req.Method != "signatureSubscribe" {
			t.Errorf("expected signatureSubscribe, got %s", req.Method)
		}
		if req.Params[0] != "testsig" {
			t.Errorf("unexpected signature param: %v", req.Params[0])
		}

		// Notification right behind the confirmation must not be lost.
		if err := confirm(c, req.ID, 7); err != nil {
			t.Errorf("write response: %v", err)
			return
		}
		if err := notify(c, "signatureNotification", 7, 100, map[string]interface{}{"err": nil}); err != nil {
			t.Errorf("write notification: %v", err)
			return
		}

		drain(c)
	})
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeSignature(context.Background(), "testsig")
	if err != nil {
		t.Fatalf("SubscribeSignature: %v", err)
	}

	select {
	case n := <-ch:
		if n.Signature != "testsig" {
			t.Errorf("expected testsig, got %s", n.Signature)
		}
		if n.Slot != 100 {
			t.Errorf("expected slot 100, got %d", n.Slot)
		}
		if n.Err != nil {
			t.Errorf("expected no error, got %v", n.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}

	// One-shot: channel closes after the notification.
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestWSClient_SubscribeAccount(t *testing.T) {
	unsubscribed := make(chan struct{})

	server, wsURL := wsServer(t, func(c *websocket.Conn) {
		req, ok := readRequest(t, c)
		if !ok {
			return
		}

		if req.Method != "accountSubscribe" {
			t.Errorf("expected accountSubscribe, got %s", req.Method)
		}

		if err := confirm(c, req.ID, 42); err != nil {
			return
		}

		time.Sleep(20 * time.Millisecond)
		notify(c, "accountNotification", 42, 55, map[string]interface{}{
			"lamports": uint64(10),
			"owner":    "program111",
			"data":     []string{base64.StdEncoding.EncodeToString([]byte("sale")), "base64"},
		})

		req, ok = readRequest(t, c)
		if !ok {
			return
		}
		if req.Method == "accountUnsubscribe" {
			close(unsubscribed)
		}
		drain(c)
	})
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := client.SubscribeAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("SubscribeAccount: %v", err)
	}

	select {
	case n := <-ch:
		if n.Pubkey != "acct1" || n.Slot != 55 {
			t.Errorf("unexpected notification: %+v", n)
		}
		if n.Account == nil || string(n.Account.Data) != "sale" {
			t.Errorf("unexpected account: %+v", n.Account)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	select {
	case <-unsubscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw accountUnsubscribe")
	}
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	server, wsURL := wsServer(t, drain)
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.SubscribeTimeout = 50 * time.Millisecond

	client, err := NewWSClient(context.Background(), wsURL, &cfg)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	_, err = client.SubscribeSignature(context.Background(), "sig")
	if err == nil {
		t.Fatal("expected timeout error")
	}

	client.pendingSubsMu.Lock()
	pending := len(client.pendingSubs)
	client.pendingSubsMu.Unlock()
	if pending != 0 {
		t.Errorf("expected no pending subscriptions, got %d", pending)
	}
}

func TestWSClient_Close(t *testing.T) {
	server, wsURL := wsServer(t, drain)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	err = client.Close()
	if err != nil {
		t.Errorf("Close: %v", err)
	}

	if !client.closed.Load() {
		t.Error("client should be closed")
	}

	// Double close should be safe
	err = client.Close()
	if err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	server, wsURL := wsServer(t, drain)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	client.Close()

	_, err = client.SubscribeAccount(context.Background(), "acct")
	if err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestWSClient_CustomConfig(t *testing.T) {
	server, wsURL := wsServer(t, drain)
	defer server.Close()

	config := &WSClientConfig{
		ReconnectDelay:    100 * time.Millisecond,
		MaxReconnectDelay: 1 * time.Second,
		PingInterval:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	client, err := NewWSClient(context.Background(), wsURL, config)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.config.PingInterval != 5*time.Second {
		t.Errorf("expected PingInterval 5s, got %v", client.config.PingInterval)
	}

	if client.config.Commitment != CommitmentConfirmed {
		t.Errorf("expected default commitment, got %s", client.config.Commitment)
	}
}
