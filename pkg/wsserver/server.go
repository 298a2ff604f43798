// Package wsserver implements the control-plane HTTP surface and the
// per-agent WebSocket transport: POST /api/agent, GET /api/agent/:id/ws,
// /connect, /preview. Grounded on the teacher's pkg/webui.Server (a plain
// net/http.ServeMux, RegisterRoutes, path-prefix-trimmed handlers) for
// routing shape, and on codeready-toolchain-tarsy's pkg/api WSHub (a
// gorilla/websocket Upgrader plus a read pump for keepalive/commands) for
// the upgrade and pump pattern.
package wsserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/scrypt"

	"appgen/pkg/logx"
	"appgen/pkg/ratelimit"
	"appgen/pkg/registry"
	"appgen/pkg/session"
	"appgen/pkg/wire"
)

// Owner-token derivation parameters. Scaled well below the teacher's
// password-hashing cost (pkg/config/secrets.go uses N=32768 for
// human-entered passwords) since this derives a per-agent capability
// token from a high-entropy process secret, not a low-entropy password,
// and runs once per WebSocket/HTTP handshake rather than once at login.
const (
	ownerTokenScryptN = 1024
	ownerTokenScryptR = 8
	ownerTokenScryptP = 1
	ownerTokenKeyLen  = 32
)

// upgrader promotes an inbound HTTP request to a WebSocket connection. As
// in the teacher's pattern, CheckOrigin is permissive here; a reverse
// proxy in front of this service is expected to enforce origin policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// writeWait bounds how long a single WebSocket write may block before the
// connection is considered dead.
const writeWait = 10 * time.Second

// Preview deploys one agent's current generatedFilesMap to a preview
// target, satisfying GET /api/agent/:id/preview.
type Preview interface {
	DeployPreview(ctx context.Context, state *session.AgentState) (previewURL, tunnelURL string, err error)
}

// Server is the HTTP/WebSocket front door onto the Agent Registry. One
// Server instance owns the process's entire control-plane surface.
type Server struct {
	registry    *registry.Registry
	gate        *ratelimit.Gate
	preview     Preview
	logger      *logx.Logger
	publicURL   string // base URL clients use to reach this process, e.g. "ws://localhost:8080"
	ownerSecret []byte // process-wide secret seeding per-agent owner-token derivation
}

// New constructs a Server. publicURL is the externally reachable base URL
// (scheme+host[:port]) used to build websocketUrl/httpStatusUrl in
// responses; it does not have to match the listener's bind address. A
// fresh random owner-token secret is generated for the process lifetime;
// tokens issued by one process are never valid against another.
func New(reg *registry.Registry, gate *ratelimit.Gate, preview Preview, publicURL string) *Server {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	return &Server{
		registry:    reg,
		gate:        gate,
		preview:     preview,
		logger:      logx.NewLogger("wsserver"),
		publicURL:   publicURL,
		ownerSecret: secret,
	}
}

// RegisterRoutes wires the control-plane surface onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/agent", s.handleCreateAgent)
	mux.HandleFunc("/api/agent/", s.handleAgentSubroute)
}

// handleAgentSubroute dispatches GET /api/agent/:id/{ws,connect,preview}
// by trimming the shared prefix, mirroring the teacher's
// strings.TrimPrefix(r.URL.Path, "/api/agent/") convention.
func (s *Server) handleAgentSubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/agent/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "agent id and subresource required", http.StatusBadRequest)
		return
	}
	agentID, subresource := parts[0], parts[1]

	switch subresource {
	case "ws":
		s.handleWebSocket(w, r, agentID)
	case "connect":
		s.handleConnect(w, r, agentID)
	case "preview":
		s.handlePreview(w, r, agentID)
	default:
		http.Error(w, "unknown agent subresource", http.StatusNotFound)
	}
}

// createAgentRequest is the POST /api/agent body, per spec.md §6.1.
type createAgentRequest struct {
	Query            string   `json:"query"`
	Language         string   `json:"language,omitempty"`
	Frameworks       []string `json:"frameworks,omitempty"`
	SelectedTemplate string   `json:"selectedTemplate,omitempty"`
	AgentMode        string   `json:"agentMode"` // "deterministic" | "smart"
}

type createAgentChunk struct {
	Chunk string `json:"chunk"`
}

type createAgentResult struct {
	AgentID         string             `json:"agentId"`
	WebsocketURL    string             `json:"websocketUrl"`
	HTTPStatusURL   string             `json:"httpStatusUrl"`
	Template        createAgentTemplate `json:"template"`
}

type createAgentTemplate struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// handleCreateAgent implements POST /api/agent: it mints a new agent,
// kicks off generation, and streams blueprint chunks back as NDJSON until
// bootstrapping/blueprinting completes, per spec.md §6.1.
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientKey := clientIdentity(r)
	if err := s.gate.Allow(clientKey); err != nil {
		writeRateLimitError(w, err)
		return
	}

	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	agentID := uuid.NewString()
	ownerToken, err := s.issueOwnerToken(agentID)
	if err != nil {
		http.Error(w, fmt.Sprintf("issue owner token: %v", err), http.StatusInternalServerError)
		return
	}

	agent := s.registry.GetOrCreate(agentID)
	if _, err := agent.Initialize(r.Context(), req.Query); err != nil {
		http.Error(w, fmt.Sprintf("initialize agent: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Agent-Owner-Token", ownerToken)
	flusher, _ := w.(http.Flusher)

	envelopes, unsubscribe := agent.Subscribe("http-create-" + agentID)
	defer unsubscribe()

	agent.Command(wire.TypeGenerateAll, nil)

	// Relay blueprint-chunk and lifecycle events until the first phase
	// starts implementing (blueprinting is done) or generation terminates
	// early, then close out with the final creation result.
streamLoop:
	for {
		select {
		case env := <-envelopes:
			switch env.Type {
			case wire.TypePhaseGenerating:
				var payload wire.PhaseGeneratingPayload
				if err := wire.Decode(env, &payload); err == nil {
					writeNDJSON(w, flusher, createAgentChunk{Chunk: payload.Message})
				}
			case wire.TypePhaseImplementing, wire.TypeGenerationComplete, wire.TypeError:
				break streamLoop
			}
		case <-r.Context().Done():
			return
		case <-time.After(2 * time.Minute):
			break streamLoop
		}
	}

	state := agent.GetFullState()
	result := createAgentResult{
		AgentID:       agentID,
		WebsocketURL:  fmt.Sprintf("%s/api/agent/%s/ws", s.websocketBase(), agentID),
		HTTPStatusURL: fmt.Sprintf("%s/api/agent/%s/connect", s.publicURL, agentID),
		Template: createAgentTemplate{
			Name:  state.TemplateDetails.Name,
			Files: state.TemplateDetails.Files,
		},
	}
	writeNDJSON(w, flusher, result)
}

func (s *Server) websocketBase() string {
	base := s.publicURL
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base
}

func writeNDJSON(w http.ResponseWriter, flusher http.Flusher, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
	if flusher != nil {
		flusher.Flush()
	}
}

// handleConnect implements GET /api/agent/:id/connect.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(r, agentID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if _, ok := s.registry.Get(agentID); !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		WebsocketURL string `json:"websocketUrl"`
		AgentID      string `json:"agentId"`
	}{
		WebsocketURL: fmt.Sprintf("%s/api/agent/%s/ws", s.websocketBase(), agentID),
		AgentID:      agentID,
	})
}

// handlePreview implements GET /api/agent/:id/preview.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(r, agentID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	agent, ok := s.registry.Get(agentID)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	if s.preview == nil {
		http.Error(w, "preview deploys not configured", http.StatusServiceUnavailable)
		return
	}

	state := agent.GetFullState()
	previewURL, tunnelURL, err := s.preview.DeployPreview(r.Context(), state)
	if err != nil {
		http.Error(w, fmt.Sprintf("preview deploy failed: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		PreviewURL string `json:"previewURL"`
		TunnelURL  string `json:"tunnelURL,omitempty"`
	}{PreviewURL: previewURL, TunnelURL: tunnelURL})
}

// issueOwnerToken derives a per-agent capability token from the process's
// random ownerSecret via scrypt, so the same agentID always yields the
// same token for this process's lifetime without needing a separate
// issued-tokens table.
func (s *Server) issueOwnerToken(agentID string) (string, error) {
	derived, err := scrypt.Key(s.ownerSecret, []byte(agentID), ownerTokenScryptN, ownerTokenScryptR, ownerTokenScryptP, ownerTokenKeyLen)
	if err != nil {
		return "", fmt.Errorf("derive owner token: %w", err)
	}
	return hex.EncodeToString(derived), nil
}

// authorize checks the caller's owner token against the one derived for
// agentID, per spec.md §6.1's "owner-only" / "validated against the
// chat's owner" requirement. The token travels as a bearer header or a
// "token" query parameter (WebSocket upgrade requests can't set custom
// headers from a browser, so the query fallback is the common case).
// Comparison is constant-time so response latency can't leak the token.
func (s *Server) authorize(r *http.Request, agentID string) bool {
	want, err := s.issueOwnerToken(agentID)
	if err != nil {
		return false
	}

	got := r.URL.Query().Get("token")
	if got == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			got = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}

func writeRateLimitError(w http.ResponseWriter, err error) {
	var denied *ratelimit.Denied
	detail := wire.RateLimitDetail{
		Message:     err.Error(),
		LimitType:   "requests_per_minute",
		Suggestions: ratelimit.Suggestions(),
	}
	if errors.As(err, &denied) {
		detail.LimitType = denied.LimitType
		detail.Limit = denied.Limit
		detail.Period = denied.Period
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(wire.RateLimitErrorPayload{Error: detail})
}

// handleWebSocket implements GET /api/agent/:id/ws: upgrades the
// connection, then runs a write pump (agent broadcast -> socket) and a
// read pump (socket -> agent.Command) concurrently until either side
// closes, mirroring the teacher-adjacent WSHub register/read-loop shape.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, agentID string) {
	if !s.authorize(r, agentID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	agent, ok := s.registry.Get(agentID)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed for %s: %v", agentID, err)
		return
	}
	defer conn.Close()

	subID := "ws-" + uuid.NewString()
	envelopes, unsubscribe := agent.Subscribe(subID)
	defer unsubscribe()

	done := make(chan struct{})
	go s.readPump(conn, agent, done)
	s.writePump(conn, envelopes, done)
}

// writePump relays every envelope broadcast to this subscriber onto the
// WebSocket connection until the read pump signals done or a write fails.
func (s *Server) writePump(conn *websocket.Conn, envelopes <-chan wire.Envelope, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case env := <-envelopes:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}
}

// readPump decodes client -> agent commands per spec.md §6.3 and forwards
// them to the agent; it exits (closing done) on any read error, including
// a clean client-initiated close.
func (s *Server) readPump(conn *websocket.Conn, agent *session.Agent, done chan struct{}) {
	defer close(done)
	for {
		var env wire.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error: %v", err)
			}
			return
		}

		switch env.Type {
		case wire.TypeGenerateAll, wire.TypeStopGeneration, wire.TypeResumeGeneration, wire.TypePreview:
			agent.Command(env.Type, nil)
		case wire.TypeDeploy:
			var payload wire.DeployPayload
			if err := wire.Decode(env, &payload); err == nil {
				agent.Command(env.Type, payload)
			}
		case wire.TypeUserMessage:
			var payload wire.UserMessagePayload
			if err := wire.Decode(env, &payload); err == nil {
				agent.Command(env.Type, payload)
			}
		case wire.TypeClientErrorReport:
			var payload wire.ClientErrorReportPayload
			if err := wire.Decode(env, &payload); err == nil {
				agent.Command(env.Type, payload)
			}
		default:
			s.logger.Debug("unhandled client message: %s", env.Type)
		}
	}
}
