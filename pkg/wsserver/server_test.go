package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gwebsocket "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"appgen/pkg/config"
	"appgen/pkg/ratelimit"
	"appgen/pkg/registry"
	"appgen/pkg/session"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	factory := func(agentID string) *session.Agent {
		return session.NewAgent(agentID, session.Deps{})
	}
	reg, err := registry.New(factory, 0, "*/5 * * * *")
	require.NoError(t, err)
	return reg
}

func testGate() *ratelimit.Gate {
	return ratelimit.New(config.RateLimitCfg{RequestsPerMinute: 6000, Burst: 100})
}

func TestHandleCreateAgentReturnsAgentIDAndTemplate(t *testing.T) {
	reg := testRegistry(t)
	srv := New(reg, testGate(), nil, "http://localhost:8080")
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/agent", "application/json", strings.NewReader(`{"query":"build a todo app","agentMode":"deterministic"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dec := json.NewDecoder(resp.Body)
	var last map[string]any
	for {
		var line map[string]any
		if err := dec.Decode(&line); err != nil {
			break
		}
		last = line
	}
	require.NotNil(t, last)
	require.NotEmpty(t, last["agentId"])
	require.Contains(t, last["websocketUrl"], "/ws")
}

func TestHandleCreateAgentRejectsEmptyQuery(t *testing.T) {
	reg := testRegistry(t)
	srv := New(reg, testGate(), nil, "http://localhost:8080")
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/agent", "application/json", strings.NewReader(`{"query":""}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCreateAgentEnforcesRateLimit(t *testing.T) {
	reg := testRegistry(t)
	gate := ratelimit.New(config.RateLimitCfg{RequestsPerMinute: 1, Burst: 1})
	srv := New(reg, gate, nil, "http://localhost:8080")
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	body := `{"query":"build a todo app"}`
	resp1, err := http.Post(ts.URL+"/api/agent", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp1.Body.Close()

	resp2, err := http.Post(ts.URL+"/api/agent", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp2.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&payload))
	errObj, ok := payload["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "requests_per_minute", errObj["limitType"])
}

func TestHandleConnectRequiresValidToken(t *testing.T) {
	reg := testRegistry(t)
	srv := New(reg, testGate(), nil, "http://localhost:8080")
	agent := reg.GetOrCreate("agent-1")
	_, err := agent.Initialize(context.Background(), "q")
	require.NoError(t, err)
	correctToken, err := srv.issueOwnerToken("agent-1")
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/agent/agent-1/connect?token=wrong-token")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/agent/agent-1/connect?token=" + correctToken)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&payload))
	require.Equal(t, "agent-1", payload["agentId"])
}

func TestHandleConnectUnknownAgentNotFound(t *testing.T) {
	reg := testRegistry(t)
	srv := New(reg, testGate(), nil, "http://localhost:8080")
	token, err := srv.issueOwnerToken("missing")
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/agent/missing/connect?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleWebSocketUpgradesAndDeliversSnapshot(t *testing.T) {
	reg := testRegistry(t)
	srv := New(reg, testGate(), nil, "http://localhost:8080")
	agent := reg.GetOrCreate("agent-ws")
	_, err := agent.Initialize(context.Background(), "build a todo app")
	require.NoError(t, err)
	token, err := srv.issueOwnerToken("agent-ws")
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/agent/agent-ws/ws?token=" + token
	conn, resp, err := gwebsocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	var env map[string]any
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, "cf_agent_state", env["type"])
}

func TestHandleWebSocketRejectsBadToken(t *testing.T) {
	reg := testRegistry(t)
	srv := New(reg, testGate(), nil, "http://localhost:8080")
	agent := reg.GetOrCreate("agent-ws2")
	_, err := agent.Initialize(context.Background(), "q")
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/agent/agent-ws2/ws?token=wrong"
	_, resp, err := gwebsocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebsocketBaseRewritesScheme(t *testing.T) {
	srv := New(nil, nil, nil, "https://example.com")
	require.Equal(t, "wss://example.com", srv.websocketBase())

	srv2 := New(nil, nil, nil, "http://example.com")
	require.Equal(t, "ws://example.com", srv2.websocketBase())
}

func TestClientIdentityPrefersForwardedFor(t *testing.T) {
	r, err := http.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, err)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	require.Equal(t, "203.0.113.5", clientIdentity(r))

	r2, err := http.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, err)
	r2.RemoteAddr = "10.0.0.2:5555"
	require.Equal(t, "10.0.0.2:5555", clientIdentity(r2))
}
