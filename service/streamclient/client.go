// Package streamclient holds the upstream subscription: a long-lived
// websocket connection that receives one notification per transaction
// touching the target account.
package streamclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solwatch/accountwatch/service/apperr"
)

const pingInterval = 30 * time.Second

// SubscribeRequest is the outbound subscribe frame, sent once immediately
// after the connection opens.
type SubscribeRequest struct {
	Accounts     AccountsFilter     `json:"accounts"`
	Transactions TransactionsFilter `json:"transactions"`
	Commitment   string             `json:"commitment"`
}

type AccountsFilter struct {
	Target []string `json:"target"`
}

type TransactionsFilter struct {
	Target TransactionsTarget `json:"target"`
}

type TransactionsTarget struct {
	AccountInclude []string `json:"account_include"`
	Vote           bool     `json:"vote"`
	Failed         bool     `json:"failed"`
}

// Notification is one inbound message. Signature is the only field every
// notification is guaranteed to carry; a richer Detail payload is read
// opportunistically when the upstream includes one.
type Notification struct {
	Signature string          `json:"signature"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// Client holds one subscription to the upstream stream.
type Client struct {
	endpoint      string
	bearerToken   string
	targetAccount string

	conn *websocket.Conn
}

// New constructs a Client. Connect must be called before Notifications.
// Whether failed transactions get dropped is an ingestion-loop decision
// (INCLUDE_FAILED); the subscribe request always asks upstream for them.
func New(endpoint, bearerToken, targetAccount string) *Client {
	return &Client{
		endpoint:      endpoint,
		bearerToken:   bearerToken,
		targetAccount: targetAccount,
	}
}

// Connect dials the upstream endpoint and sends the subscribe frame. The
// caller owns the returned error's retry/backoff decision.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.bearerToken != "" {
		header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return &apperr.StreamError{Cause: fmt.Errorf("dial: %w", err)}
	}

	req := SubscribeRequest{
		Accounts: AccountsFilter{Target: []string{c.targetAccount}},
		Transactions: TransactionsFilter{
			Target: TransactionsTarget{
				AccountInclude: []string{c.targetAccount},
				Vote:           false,
				Failed:         true,
			},
		},
		Commitment: "confirmed",
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return &apperr.StreamError{Cause: fmt.Errorf("send subscribe request: %w", err)}
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	})

	c.conn = conn
	return nil
}

// Close closes the underlying connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Notifications streams inbound notifications on the returned channel until
// the connection closes or ctx is cancelled. The channel is closed when the
// goroutine exits; the caller should treat closure as a StreamError and
// reconnect.
func (c *Client) Notifications(ctx context.Context) (<-chan Notification, <-chan error) {
	out := make(chan Notification)
	errc := make(chan error, 1)

	go c.pingLoop(ctx)

	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				errc <- ctx.Err()
				return
			}
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				errc <- &apperr.StreamError{Cause: err}
				return
			}

			var n Notification
			if err := json.Unmarshal(data, &n); err != nil {
				// malformed frame from upstream: skip it, the stream itself is fine.
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return out, errc
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
