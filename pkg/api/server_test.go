package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/gateway"
	"github.com/devharness/harnessd/pkg/protocol"
	"github.com/devharness/harnessd/pkg/session"
	"github.com/devharness/harnessd/pkg/store"
)

const bridgeToken = "bridge-test-token"

func newBridge(t *testing.T) *Server {
	t.Helper()
	mux := events.NewMultiplexer()
	st := store.New(store.WithPublisher(mux))
	planner := session.NewCommandPlanner(map[string]session.AgentCommand{
		"shell": {Command: "/bin/sh", Args: []string{"-c", "exec sleep 60"}},
	})
	reg := session.NewRegistry(planner, session.PayloadReducer{}, st, session.Config{})
	gw := gateway.NewServer(st, reg, mux, bridgeToken)
	t.Cleanup(func() { gw.Shutdown(time.Second) })
	return NewServer(gw, reg, mux)
}

func TestHealthz(t *testing.T) {
	s := newBridge(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
}

func TestStatusEndpoint(t *testing.T) {
	s := newBridge(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Version)
	assert.Equal(t, 0, body.LiveSessions)
	assert.Equal(t, 0, body.ActiveSubscriptions)
	assert.Equal(t, 0, body.ActiveConnections)
	assert.Equal(t, int64(0), body.EventHighwater)
	assert.GreaterOrEqual(t, body.UptimeSeconds, int64(0))
}

func TestSecurityHeaders(t *testing.T) {
	s := newBridge(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

// The WebSocket endpoint tunnels the stream protocol: auth happens in-stream
// exactly as it does over a raw socket.
func TestWebSocketTunnel(t *testing.T) {
	s := newBridge(t)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	wc, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer wc.Close(websocket.StatusNormalClosure, "")

	nc := websocket.NetConn(ctx, wc, websocket.MessageText)
	sc := bufio.NewScanner(nc)

	line, err := protocol.EncodeClient(protocol.Auth{Token: bridgeToken})
	require.NoError(t, err)
	_, err = nc.Write(line)
	require.NoError(t, err)

	require.True(t, sc.Scan(), "expected auth reply: %v", sc.Err())
	require.IsType(t, protocol.AuthOK{}, protocol.ParseServerEnvelope(sc.Bytes()))

	line, err = protocol.EncodeClient(protocol.Command{CommandID: "c1", Cmd: protocol.SessionListCmd{}})
	require.NoError(t, err)
	_, err = nc.Write(line)
	require.NoError(t, err)

	require.True(t, sc.Scan())
	assert.Equal(t, protocol.CommandAccepted{CommandID: "c1"}, protocol.ParseServerEnvelope(sc.Bytes()))

	require.True(t, sc.Scan())
	done, ok := protocol.ParseServerEnvelope(sc.Bytes()).(protocol.CommandCompleted)
	require.True(t, ok)
	assert.Equal(t, "c1", done.CommandID)
}
