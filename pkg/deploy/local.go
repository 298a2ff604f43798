// Package deploy implements the deploy-target contract the session agent
// and control-plane surface need (spec.md §4.1's deployToSandbox, §6.1's
// GET /api/agent/:id/preview): pushing a bootstrapped sandbox session's
// generated files to a reachable URL and smoke-checking it before
// broadcasting deployment_completed.
//
// LocalPreview is grounded on the teacher's pattern of serving generated
// artifacts straight off the sandbox's own working directory rather than
// shelling out to a cloud provider SDK: no example repo in the retrieval
// pack wires a Cloudflare/Vercel/Netlify deploy client, so the deploy
// target here is an in-process static file server over the sandbox
// session's directory, fronted by the same go-rod smoke-check
// (pkg/sandbox.CheckPreview) the control plane already uses to validate a
// deployed preview before telling subscribers it's ready.
package deploy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"appgen/pkg/logx"
	"appgen/pkg/sandbox"
	"appgen/pkg/session"
)

// sessionDirer is the one LocalClient capability this package depends on.
type sessionDirer interface {
	SessionDir(sessionID string) (string, bool)
}

// LocalPreview serves each deployed agent's sandbox directory under its
// own path prefix on one shared listener, then verifies reachability with
// a headless-browser navigation before reporting success.
type LocalPreview struct {
	sandbox      sessionDirer
	baseURL      string
	checkTimeout time.Duration
	logger       *logx.Logger
	check        func(ctx context.Context, url string, timeout time.Duration) (sandbox.PreviewCheckResult, error)

	mu      sync.Mutex
	mux     *http.ServeMux
	mounted map[string]bool
}

// NewLocalPreview starts a background HTTP listener on addr (e.g.
// "127.0.0.1:0" to pick a free port) serving deployed sessions, and
// returns a LocalPreview whose DeployPreview/DeployPermanent register new
// agents onto it as they deploy. baseURL is the externally reachable
// origin clients should use to reach that listener (not necessarily the
// same as addr, e.g. behind a reverse proxy).
func NewLocalPreview(addr, baseURL string, sandboxClient sessionDirer) (*LocalPreview, error) {
	mux := http.NewServeMux()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("deploy: listen on %s: %w", addr, err)
	}

	p := &LocalPreview{
		sandbox:      sandboxClient,
		baseURL:      baseURL,
		checkTimeout: 10 * time.Second,
		logger:       logx.NewLogger("deploy.local"),
		check:        sandbox.CheckPreview,
		mux:          mux,
		mounted:      map[string]bool{},
	}

	go func() {
		if err := http.Serve(listener, mux); err != nil {
			p.logger.Warn("preview listener stopped: %v", err)
		}
	}()

	return p, nil
}

// DeployPreview implements session.Deployer and wsserver.Preview: it
// mounts the agent's current sandbox directory under /preview/<agentID>/
// and confirms it loads before returning the URL.
func (p *LocalPreview) DeployPreview(ctx context.Context, state *session.AgentState) (string, string, error) {
	return p.deploy(ctx, state, "preview/"+state.AgentID)
}

// DeployPermanent mounts the same directory under a stable instance path
// instead of the agent's own id, so a "permanent" deploy survives the
// originating chat being cloned or evicted.
func (p *LocalPreview) DeployPermanent(ctx context.Context, state *session.AgentState, instanceID string) (string, string, error) {
	return p.deploy(ctx, state, "app/"+instanceID)
}

func (p *LocalPreview) deploy(ctx context.Context, state *session.AgentState, urlPath string) (string, string, error) {
	if state.SandboxSessionID == "" {
		return "", "", fmt.Errorf("deploy: agent %s has no sandbox session", state.AgentID)
	}
	dir, ok := p.sandbox.SessionDir(state.SandboxSessionID)
	if !ok {
		return "", "", fmt.Errorf("deploy: unknown sandbox session %q", state.SandboxSessionID)
	}

	prefix := "/" + urlPath + "/"
	p.mu.Lock()
	if !p.mounted[prefix] {
		p.mux.Handle(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(dir))))
		p.mounted[prefix] = true
	}
	p.mu.Unlock()

	previewURL := p.baseURL + prefix
	result, err := p.check(ctx, previewURL, p.checkTimeout)
	if err != nil {
		return "", "", fmt.Errorf("deploy: smoke-check %s: %w", previewURL, err)
	}
	if !result.Reachable {
		return "", "", fmt.Errorf("deploy: %s did not become reachable", previewURL)
	}

	p.logger.Info("deployed agent %s to %s (title=%q)", state.AgentID, previewURL, result.Title)
	return previewURL, "", nil
}
