package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"appgen/pkg/session"
)

func testFactory() Factory {
	return func(agentID string) *session.Agent {
		return session.NewAgent(agentID, session.Deps{})
	}
}

func TestNewRejectsInvalidSweepSchedule(t *testing.T) {
	_, err := New(testFactory(), time.Minute, "not a cron expression")
	require.Error(t, err)
}

func TestNewRejectsEmptySweepSchedule(t *testing.T) {
	_, err := New(testFactory(), time.Minute, "")
	require.Error(t, err)
}

func TestGetOrCreateReturnsSameInstanceForSameID(t *testing.T) {
	r, err := New(testFactory(), time.Minute, "*/5 * * * *")
	require.NoError(t, err)

	a1 := r.GetOrCreate("agent-1")
	a2 := r.GetOrCreate("agent-1")
	require.Same(t, a1, a2)
	require.Equal(t, 1, r.Len())
}

func TestGetReturnsNotFoundForUnknownAgent(t *testing.T) {
	r, err := New(testFactory(), time.Minute, "*/5 * * * *")
	require.NoError(t, err)

	_, ok := r.Get("missing")
	require.False(t, ok)
}

func TestCloneSeedsNewAgentFromSourceState(t *testing.T) {
	r, err := New(testFactory(), time.Minute, "*/5 * * * *")
	require.NoError(t, err)

	source := r.GetOrCreate("source")
	_, err = source.Initialize(context.Background(), "build a todo app")
	require.NoError(t, err)

	cloned, err := r.Clone(context.Background(), "source", "clone-1")
	require.NoError(t, err)
	require.Equal(t, "clone-1", cloned.AgentID)
	require.Equal(t, "build a todo app", cloned.Query)
	require.False(t, cloned.ShouldBeGenerating)
	require.Empty(t, cloned.SandboxSessionID)

	target, ok := r.Get("clone-1")
	require.True(t, ok)
	require.Equal(t, "clone-1", target.GetFullState().AgentID)
}

func TestCloneFailsForUnknownSource(t *testing.T) {
	r, err := New(testFactory(), time.Minute, "*/5 * * * *")
	require.NoError(t, err)

	_, err = r.Clone(context.Background(), "does-not-exist", "clone-1")
	require.Error(t, err)
}

func TestEvictIdleRemovesAgentsPastTimeout(t *testing.T) {
	r, err := New(testFactory(), 10*time.Millisecond, "*/5 * * * *")
	require.NoError(t, err)

	r.GetOrCreate("stale")
	require.Equal(t, 1, r.Len())

	time.Sleep(20 * time.Millisecond)
	r.evictIdle()
	require.Equal(t, 0, r.Len())
}

func TestEvictIdleKeepsRecentlyAccessedAgents(t *testing.T) {
	r, err := New(testFactory(), time.Hour, "*/5 * * * *")
	require.NoError(t, err)

	r.GetOrCreate("fresh")
	r.evictIdle()
	require.Equal(t, 1, r.Len())
}

func TestStartStopSweepIsIdempotent(t *testing.T) {
	r, err := New(testFactory(), time.Hour, "*/5 * * * *")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.StartSweep(ctx)
	r.StartSweep(ctx) // second call is a no-op
	r.StopSweep()
	r.StopSweep() // second call is a no-op
}
