package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"appgen/pkg/sandbox"
	"appgen/pkg/session"
)

type fakeSessionDirer struct {
	dirs map[string]string
}

func (f fakeSessionDirer) SessionDir(sessionID string) (string, bool) {
	dir, ok := f.dirs[sessionID]
	return dir, ok
}

func fakeCheck(reachable bool, err error) func(context.Context, string, time.Duration) (sandbox.PreviewCheckResult, error) {
	return func(_ context.Context, _ string, _ time.Duration) (sandbox.PreviewCheckResult, error) {
		if err != nil {
			return sandbox.PreviewCheckResult{}, err
		}
		return sandbox.PreviewCheckResult{Reachable: reachable}, nil
	}
}

func TestDeployPreviewMountsSessionDirAndReturnsURL(t *testing.T) {
	p, err := NewLocalPreview("127.0.0.1:0", "http://example.test", fakeSessionDirer{dirs: map[string]string{"sess-1": t.TempDir()}})
	require.NoError(t, err)
	p.check = fakeCheck(true, nil)

	url, tunnel, err := p.DeployPreview(context.Background(), &session.AgentState{AgentID: "agent-1", SandboxSessionID: "sess-1"})
	require.NoError(t, err)
	require.Equal(t, "http://example.test/preview/agent-1/", url)
	require.Empty(t, tunnel)
}

func TestDeployPreviewFailsWhenUnreachable(t *testing.T) {
	p, err := NewLocalPreview("127.0.0.1:0", "http://example.test", fakeSessionDirer{dirs: map[string]string{"sess-1": t.TempDir()}})
	require.NoError(t, err)
	p.check = fakeCheck(false, nil)

	_, _, err = p.DeployPreview(context.Background(), &session.AgentState{AgentID: "agent-1", SandboxSessionID: "sess-1"})
	require.Error(t, err)
}

func TestDeployPreviewRejectsMissingSandboxSession(t *testing.T) {
	p, err := NewLocalPreview("127.0.0.1:0", "http://example.test", fakeSessionDirer{})
	require.NoError(t, err)

	_, _, err = p.DeployPreview(context.Background(), &session.AgentState{AgentID: "agent-2"})
	require.Error(t, err)
}

func TestDeployPermanentUsesInstanceIDPath(t *testing.T) {
	p, err := NewLocalPreview("127.0.0.1:0", "http://example.test", fakeSessionDirer{dirs: map[string]string{"sess-1": t.TempDir()}})
	require.NoError(t, err)
	p.check = fakeCheck(true, nil)

	url, _, err := p.DeployPermanent(context.Background(), &session.AgentState{AgentID: "agent-1", SandboxSessionID: "sess-1"}, "inst-1")
	require.NoError(t, err)
	require.Equal(t, "http://example.test/app/inst-1/", url)
}

func TestDeployPreviewRemountIsIdempotent(t *testing.T) {
	p, err := NewLocalPreview("127.0.0.1:0", "http://example.test", fakeSessionDirer{dirs: map[string]string{"sess-1": t.TempDir()}})
	require.NoError(t, err)
	p.check = fakeCheck(true, nil)

	state := &session.AgentState{AgentID: "agent-1", SandboxSessionID: "sess-1"}
	_, _, err = p.DeployPreview(context.Background(), state)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		_, _, err := p.DeployPreview(context.Background(), state)
		require.NoError(t, err)
	})
}
