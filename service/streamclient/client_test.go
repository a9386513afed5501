package streamclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUpstream(t *testing.T, onSubscribe func(SubscribeRequest), sendNotifications []Notification) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var req SubscribeRequest
		require.NoError(t, conn.ReadJSON(&req))
		if onSubscribe != nil {
			onSubscribe(req)
		}

		for _, n := range sendNotifications {
			data, _ := json.Marshal(n)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}

		// keep the connection open briefly so the client's read loop observes
		// the notifications before the server tears down.
		time.Sleep(100 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestConnect_SendsSubscribeRequestWithTargetAccount(t *testing.T) {
	var gotReq SubscribeRequest
	srv := newTestUpstream(t, func(req SubscribeRequest) { gotReq = req }, nil)

	c := New(wsURL(srv.URL), "test-token", "TargetAcct111")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"TargetAcct111"}, gotReq.Accounts.Target)
	assert.Equal(t, "confirmed", gotReq.Commitment)
	assert.True(t, gotReq.Transactions.Target.Failed)
}

func TestNotifications_DeliversSignatures(t *testing.T) {
	srv := newTestUpstream(t, nil, []Notification{
		{Signature: "AAA...001"},
		{Signature: "AAA...002"},
	})

	c := New(wsURL(srv.URL), "", "TargetAcct111")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	notifications, errc := c.Notifications(ctx)

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case n := <-notifications:
			got = append(got, n.Signature)
		case err := <-errc:
			t.Fatalf("unexpected error: %v", err)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for notification")
		}
	}

	assert.Equal(t, []string{"AAA...001", "AAA...002"}, got)
}
