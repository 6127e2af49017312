package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hypermemetic/plexus-substrate/internal/activation"
	"github.com/hypermemetic/plexus-substrate/internal/plexus"
	"github.com/hypermemetic/plexus-substrate/internal/schema"
	"github.com/hypermemetic/plexus-substrate/internal/telemetry"
)

type echoActivation struct {
	ns      string
	handler activation.HandlerFunc
	bidi    bool
}

func (a *echoActivation) Namespace() string   { return a.ns }
func (a *echoActivation) Description() string { return "test activation" }
func (a *echoActivation) Methods() []activation.Method {
	return []activation.Method{{
		Describe: schema.Method{Name: "run", Description: "run it", Returns: "Result", Bidirectional: a.bidi},
		Handler:  a.handler,
	}}
}

// testServer starts an httptest server backed by the ws Adapter and returns a
// dialed client connection plus a teardown func.
func testServer(t *testing.T, act *echoActivation) (*websocket.Conn, func()) {
	t.Helper()
	d := plexus.New(telemetry.NewNoopTracer(), telemetry.NewNoopLogger())
	require.NoError(t, d.Register(act))
	adapter := NewAdapter(d, telemetry.NewNoopLogger(), telemetry.NewNoopTracer(), 0)

	srv := httptest.NewServer(http.HandlerFunc(adapter.ServeHTTP))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readNotificationsUntilDone(t *testing.T, conn *websocket.Conn) []map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var notes []map[string]any
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if _, hasResult := msg["result"]; hasResult {
			continue // the plexus_call subscription-id response
		}
		params, ok := msg["params"].(map[string]any)
		require.True(t, ok)
		result, ok := params["result"].(map[string]any)
		require.True(t, ok)
		notes = append(notes, msg)
		if result["type"] == "done" {
			return notes
		}
	}
}

func TestWebSocketCallDeliversSubscriptionEventsInOrder(t *testing.T) {
	t.Parallel()

	act := &echoActivation{ns: "echo", handler: func(ctx context.Context, rc *activation.RunContext, params json.RawMessage) error {
		if err := rc.Data(ctx, "echo.one", json.RawMessage(`{"n":1}`)); err != nil {
			return err
		}
		return rc.Data(ctx, "echo.two", json.RawMessage(`{"n":2}`))
	}}
	conn, teardown := testServer(t, act)
	defer teardown()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "method": "echo_run", "params": map[string]any{}, "id": 1,
	}))

	notes := readNotificationsUntilDone(t, conn)
	require.GreaterOrEqual(t, len(notes), 3)

	contentTypes := make([]string, 0, len(notes))
	for _, n := range notes {
		params := n["params"].(map[string]any)
		result := params["result"].(map[string]any)
		if ct, ok := result["content_type"]; ok {
			contentTypes = append(contentTypes, ct.(string))
		}
	}
	require.Equal(t, []string{"echo.one", "echo.two"}, contentTypes)
}

func TestWebSocketSchemaRequestExposesHash(t *testing.T) {
	t.Parallel()

	act := &echoActivation{ns: "echo", handler: func(ctx context.Context, rc *activation.RunContext, params json.RawMessage) error {
		return nil
	}}
	conn, teardown := testServer(t, act)
	defer teardown()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "method": "plexus_schema", "params": map[string]any{}, "id": 2,
	}))

	notes := readNotificationsUntilDone(t, conn)
	found := false
	for _, n := range notes {
		params := n["params"].(map[string]any)
		result := params["result"].(map[string]any)
		data, ok := result["data"].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := data["hash"]; ok {
			found = true
		}
	}
	require.True(t, found, "plexus_schema notification must carry a hash field on the schema node")
}

func TestWebSocketRespondResumesBidirectionalChannel(t *testing.T) {
	t.Parallel()

	act := &echoActivation{ns: "echo", bidi: true, handler: func(ctx context.Context, rc *activation.RunContext, params json.RawMessage) error {
		req := []byte(`{"type":"confirm","message":"ok?"}`)
		resp, err := rc.Channel().Request(ctx, req, 5*time.Second)
		if err != nil {
			return rc.Data(ctx, "echo.failed", json.RawMessage(`{}`))
		}
		return rc.Data(ctx, "echo.answer", resp)
	}}
	conn, teardown := testServer(t, act)
	defer teardown()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "method": "echo_run", "params": map[string]any{}, "id": 3,
	}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var requestID string
	var subscriptionID float64
	for requestID == "" {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if resultMap, ok := msg["result"].(map[string]any); ok {
			if subID, ok := resultMap["subscription"]; ok {
				subscriptionID = subID.(float64)
			}
			continue
		}
		params, ok := msg["params"].(map[string]any)
		if !ok {
			continue
		}
		result, ok := params["result"].(map[string]any)
		if !ok {
			continue
		}
		if rid, ok := result["request_id"].(string); ok {
			requestID = rid
		}
	}

	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "method": "plexus_respond",
		"params": map[string]any{
			"subscription_id": subscriptionID,
			"request_id":      requestID,
			"response":        map[string]any{"confirmed": true},
		},
		"id": 4,
	}))

	notes := readNotificationsUntilDone(t, conn)
	var sawAnswer bool
	for _, n := range notes {
		params := n["params"].(map[string]any)
		result := params["result"].(map[string]any)
		if result["content_type"] == "echo.answer" {
			sawAnswer = true
		}
	}
	require.True(t, sawAnswer)
}
