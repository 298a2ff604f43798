// Package registry implements the Agent Registry (C8): a key-addressed
// directory mapping an agent id to its live session.Agent instance across
// shards, guaranteeing at-most-one live writer per id, plus Clone support
// and an idle-eviction sweep. Grounded on the teacher's
// internal/supervisor.Supervisor (an agent-id-keyed map guarded by a
// mutex, tracking lifecycle) and internal/kernel (owns the set of
// long-lived goroutines a process needs to shut down cleanly).
package registry

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"appgen/pkg/logx"
	"appgen/pkg/session"
)

// shardCount mirrors the "jurisdictional shards" language in spec.md
// §4.2: agents are distributed across a fixed number of independently
// locked buckets so one busy agent's lock contention never blocks lookups
// for an unrelated agent.
const shardCount = 16

// Factory constructs a freshly wired, uninitialized session.Agent for a
// new agent id. Supplied by the caller (cmd/appgen), which owns the
// concrete Deps (Store, Bootstrapper, Blueprinter, PhaseRunner, Deployer).
type Factory func(agentID string) *session.Agent

type entry struct {
	agent      *session.Agent
	lastAccess time.Time
}

type shard struct {
	mu     sync.Mutex
	agents map[string]*entry
}

// Registry is the single authoritative directory for live agent instances.
// Get/GetOrCreate/Clone are safe for concurrent use from multiple
// goroutines (typically one per inbound WebSocket connection).
type Registry struct {
	shards  [shardCount]*shard
	factory Factory
	logger  *logx.Logger

	idleTimeout   time.Duration
	sweepInterval time.Duration

	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// New constructs a Registry. sweepSchedule is a cron expression (e.g.
// "*/5 * * * *"); it is validated eagerly so a misconfigured schedule fails
// at startup, but it does not drive the sweep: the sweep runs on the fixed
// interval sweepCheckInterval derives from idleTimeout. idleTimeout is how
// long an agent may go unaccessed before a sweep evicts it.
func New(factory Factory, idleTimeout time.Duration, sweepSchedule string) (*Registry, error) {
	if sweepSchedule == "" {
		return nil, fmt.Errorf("registry: sweep schedule must not be empty")
	}
	if !gronx.IsValid(sweepSchedule) {
		return nil, fmt.Errorf("registry: invalid sweep schedule %q", sweepSchedule)
	}

	r := &Registry{
		factory:       factory,
		logger:        logx.NewLogger("registry"),
		idleTimeout:   idleTimeout,
		sweepInterval: sweepCheckInterval(idleTimeout),
	}
	for i := range r.shards {
		r.shards[i] = &shard{agents: map[string]*entry{}}
	}
	return r, nil
}

// sweepCheckInterval polls at roughly a quarter of the idle timeout, never
// faster than one second and never slower than one minute, so eviction
// latency stays bounded without busy-polling short timeouts.
func sweepCheckInterval(idleTimeout time.Duration) time.Duration {
	interval := idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}

func (r *Registry) shardFor(agentID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return r.shards[h.Sum32()%shardCount]
}

// Get returns the live instance for agentID, probing its shard only; it
// never constructs one. The second return value reports whether one was
// found.
func (r *Registry) Get(agentID string) (*session.Agent, bool) {
	sh := r.shardFor(agentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.agents[agentID]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	return e.agent, true
}

// GetOrCreate returns the live instance for agentID, constructing and
// registering one via the Registry's Factory if none exists yet. The
// shard lock serializes concurrent GetOrCreate calls for the same id,
// guaranteeing at-most-one Agent is ever constructed per id.
func (r *Registry) GetOrCreate(agentID string) *session.Agent {
	sh := r.shardFor(agentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.agents[agentID]; ok {
		e.lastAccess = time.Now()
		return e.agent
	}
	a := r.factory(agentID)
	sh.agents[agentID] = &entry{agent: a, lastAccess: time.Now()}
	return a
}

// Clone deep-copies sourceAgentID's state onto a freshly registered
// newAgentID agent, per spec.md §4.2: sandbox-instance references and
// transient fields are reset (session.AgentState.Clone already does this)
// and shouldBeGenerating is forced false.
func (r *Registry) Clone(ctx context.Context, sourceAgentID, newAgentID string) (*session.AgentState, error) {
	src, ok := r.Get(sourceAgentID)
	if !ok {
		return nil, fmt.Errorf("registry: source agent %q not found", sourceAgentID)
	}
	sourceState := src.GetFullState()
	if sourceState == nil {
		return nil, fmt.Errorf("registry: source agent %q has no state yet", sourceAgentID)
	}

	cloned := sourceState.Clone(newAgentID)
	target := r.GetOrCreate(newAgentID)
	if err := target.SetState(ctx, cloned); err != nil {
		return nil, fmt.Errorf("registry: seed clone %q: %w", newAgentID, err)
	}
	return cloned, nil
}

// StartSweep launches the idle-eviction goroutine. Calling it more than
// once without an intervening StopSweep is a no-op.
func (r *Registry) StartSweep(ctx context.Context) {
	if r.stopSweep != nil {
		return
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	r.stopSweep = cancel
	r.sweepDone = make(chan struct{})
	go r.sweepLoop(sweepCtx)
}

// StopSweep halts the idle-eviction goroutine and waits for it to exit.
func (r *Registry) StopSweep() {
	if r.stopSweep == nil {
		return
	}
	r.stopSweep()
	<-r.sweepDone
	r.stopSweep = nil
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer close(r.sweepDone)
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

// evictIdle closes and removes every agent whose shard entry has gone
// unaccessed longer than idleTimeout. Each shard is locked independently
// and only for the duration of its own scan.
func (r *Registry) evictIdle() {
	cutoff := time.Now().Add(-r.idleTimeout)
	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, e := range sh.agents {
			if e.lastAccess.Before(cutoff) {
				e.agent.Close()
				delete(sh.agents, id)
				r.logger.Info("evicted idle agent %s", id)
			}
		}
		sh.mu.Unlock()
	}
}

// Len reports the total number of live agents across all shards, for
// metrics and tests.
func (r *Registry) Len() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		total += len(sh.agents)
		sh.mu.Unlock()
	}
	return total
}
