package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"appgen/pkg/logx"
	"appgen/pkg/metrics"
	"appgen/pkg/wire"
)

// ErrInvalidTransition is returned when a requested state transition is not
// listed in the agent's TransitionTable.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// ErrAlreadyInitialized is returned by SetState when the agent has already
// left StateIdle; fork/clone targets must be freshly created.
var ErrAlreadyInitialized = errors.New("session: setState requires target currentDevState = Idle")

// subscriberBacklog is the high-water mark described in spec.md §4.1: past
// this many queued messages, a subscriber starts dropping non-essential
// streaming chunks rather than blocking the broadcast loop.
const subscriberBacklog = 64

// maxClientReportedErrors bounds clientReportedErrors as a ring buffer so a
// chatty preview session can't grow AgentState without limit.
const maxClientReportedErrors = 256

// maxPhaseRetries bounds how many times the session re-enters RunPhase for
// the same phase after it comes back with IssuesFound, mirroring the
// sandbox call retry bound in spec.md §4.1 ("up to 3 attempts... on
// persistent failure remain in current state, manual resume required").
// MaxReviewCycles/MaxValidateIterations in pkg/phase only bound iterations
// inside one RunPhase call; this bounds re-entrant calls across the
// session's own phase loop.
const maxPhaseRetries = 3

// Store persists and restores AgentState, mirroring the teacher's
// StateStore contract (Save/Load by key).
type Store interface {
	SaveAgentState(ctx context.Context, state *AgentState) error
	LoadAgentState(ctx context.Context, agentID string) (*AgentState, error)
}

// Bootstrapper installs the seed template before blueprinting begins.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, query string) (TemplateDetails, error)
}

// Blueprinter produces the structured generation plan, optionally
// streaming raw chunks to onChunk as they arrive.
type Blueprinter interface {
	Blueprint(ctx context.Context, query string, onChunk func(chunk string)) (Blueprint, error)
}

// PhaseOutcome is the result of driving one blueprint phase to completion.
type PhaseOutcome struct {
	Completed      bool
	StaticAnalysis []wire.StaticAnalysisIssue
	IssuesFound    bool
}

// PhaseRunner drives the implement → validate → fix cycle for one phase,
// emitting wire events through emit as it progresses.
type PhaseRunner interface {
	RunPhase(ctx context.Context, state *AgentState, phase BlueprintPhase, emit func(wire.Envelope)) (PhaseOutcome, error)
}

// Deployer pushes the current generatedFilesMap to a preview or permanent
// deployment target.
type Deployer interface {
	DeployPreview(ctx context.Context, state *AgentState) (previewURL, tunnelURL string, err error)
	DeployPermanent(ctx context.Context, state *AgentState, instanceID string) (previewURL, tunnelURL string, err error)
}

// ConversationTurn is one user message to process, mirroring
// conversation.Turn without importing pkg/conversation's inference.Message
// shape directly into session.
type ConversationTurn struct {
	UserMessage  string
	PastMessages []ConversationMessage
}

// ConversationResult is the outcome of running one ConversationTurn.
type ConversationResult struct {
	RateLimited          bool
	AssistantMessage     string
	ModificationRequest  string
}

// ConversationProcessor runs one user chat turn against inference,
// optionally streaming partial assistant text to streamCallback.
type ConversationProcessor interface {
	ProcessTurn(ctx context.Context, turn ConversationTurn, streamCallback func(chunk string)) ConversationResult
}

// Deps bundles the session agent's collaborators. Every field is a narrow
// interface so tests can substitute fakes for any one of them.
type Deps struct {
	Store        Store
	Bootstrap    Bootstrapper
	Blueprint    Blueprinter
	Phases       PhaseRunner
	Deploy       Deployer
	Conversation ConversationProcessor
	Metrics      metrics.Recorder
}

// command is a typed instruction from a subscriber, decoded from the raw
// client -> agent wire envelope by Agent.Command.
type command struct {
	kind    string
	payload any
}

// subscriber is one connected client's outbound queue.
type subscriber struct {
	id   string
	ch   chan wire.Envelope
	done chan struct{}
}

// essentialTypes are never dropped under backpressure: lifecycle and
// terminal events the client needs to reconstruct state correctly.
var essentialTypes = map[string]bool{
	wire.TypeAgentState:            true,
	wire.TypeFileGenerated:         true,
	wire.TypeFileRegenerated:       true,
	wire.TypeGenerationStarted:     true,
	wire.TypeGenerationComplete:    true,
	wire.TypeGenerationStopped:     true,
	wire.TypeGenerationResumed:     true,
	wire.TypePhaseImplementing:     true,
	wire.TypePhaseValidating:       true,
	wire.TypePhaseValidated:        true,
	wire.TypePhaseImplemented:      true,
	wire.TypeCodeReviewed:          true,
	wire.TypeDeploymentStarted:     true,
	wire.TypeDeploymentCompleted:   true,
	wire.TypeError:                 true,
	wire.TypeRateLimitError:        true,
	wire.TypeCloudflareDeployStart: true,
	wire.TypeCloudflareDeployDone:  true,
	wire.TypeCloudflareDeployError: true,
}

// Agent is the single-writer owner of one chat's AgentState. All mutation
// and all outbound broadcast happen inside its run loop; callers interact
// through the exported methods, which hand work to that loop via cmdCh.
type Agent struct {
	id    string
	table TransitionTable
	deps  Deps

	logger *logx.Logger

	mu    sync.Mutex
	state *AgentState

	subsMu sync.Mutex
	subs   map[string]*subscriber

	cmdCh chan command
	ctx   context.Context
	stop  context.CancelFunc

	initOnce sync.Once
	initErr  error
}

// NewAgent constructs an Agent for id with the given collaborators. The
// agent does not start its run loop until Initialize is called.
func NewAgent(id string, deps Deps) *Agent {
	ctx, stop := context.WithCancel(context.Background())
	return &Agent{
		id:     id,
		table:  ValidTransitions,
		deps:   deps,
		logger: logx.NewLogger(id),
		subs:   make(map[string]*subscriber),
		cmdCh:  make(chan command, subscriberBacklog),
		ctx:    ctx,
		stop:   stop,
	}
}

// Initialize is idempotent: the first call creates (or restores) AgentState
// and starts the run loop; subsequent calls return the existing state.
func (a *Agent) Initialize(ctx context.Context, query string) (*AgentState, error) {
	a.initOnce.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		if a.deps.Store != nil {
			restored, err := a.deps.Store.LoadAgentState(ctx, a.id)
			if err != nil {
				a.initErr = fmt.Errorf("load agent state: %w", err)
				return
			}
			if restored != nil {
				a.state = restored
				go a.run()
				return
			}
		}

		a.state = NewAgentState(a.id, query)
		if err := a.persistLocked(ctx); err != nil {
			a.initErr = err
			return
		}
		go a.run()
	})
	if a.initErr != nil {
		return nil, a.initErr
	}
	return a.GetFullState(), nil
}

// IsInitialized reports whether Initialize has completed successfully.
func (a *Agent) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state != nil
}

// GetFullState returns a snapshot copy of the current AgentState.
func (a *Agent) GetFullState() *AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == nil {
		return nil
	}
	cp := *a.state
	return &cp
}

// SetState installs newState wholesale, used by Registry.Clone to seed a
// freshly minted agent. The target must not already be initialized past
// Idle, matching spec.md's "requires currentDevState = Idle at target".
func (a *Agent) SetState(ctx context.Context, newState *AgentState) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != nil && a.state.CurrentDevState != StateIdle {
		return ErrAlreadyInitialized
	}
	if newState.CurrentDevState != StateIdle {
		return ErrAlreadyInitialized
	}

	a.state = newState
	if err := a.persistLocked(ctx); err != nil {
		return err
	}
	a.initOnce.Do(func() { go a.run() })
	return nil
}

// Subscribe registers a new client for the event stream and immediately
// sends a cf_agent_state snapshot, per spec.md §4.3/§5.
func (a *Agent) Subscribe(id string) (<-chan wire.Envelope, func()) {
	sub := &subscriber{id: id, ch: make(chan wire.Envelope, subscriberBacklog), done: make(chan struct{})}

	a.subsMu.Lock()
	a.subs[id] = sub
	a.subsMu.Unlock()

	if snapshot, err := a.snapshotEnvelope(); err == nil {
		sub.ch <- snapshot
	}

	unsubscribe := func() {
		a.subsMu.Lock()
		delete(a.subs, id)
		a.subsMu.Unlock()
		close(sub.done)
	}
	return sub.ch, unsubscribe
}

func (a *Agent) snapshotEnvelope() (wire.Envelope, error) {
	state := a.GetFullState()
	if state == nil {
		return wire.Envelope{}, fmt.Errorf("agent %s not initialized", a.id)
	}
	raw, err := wireMarshalState(state)
	if err != nil {
		return wire.Envelope{}, err
	}
	return wire.Encode(wire.TypeAgentState, wire.AgentStatePayload{State: raw})
}

// Command accepts a typed client -> agent instruction, per spec.md §6.3.
// Handling happens asynchronously on the run loop; Command never blocks on
// agent logic, only on cmdCh's buffer.
func (a *Agent) Command(kind string, payload any) {
	select {
	case a.cmdCh <- command{kind: kind, payload: payload}:
	case <-a.ctx.Done():
	}
}

// ReportClientErrors appends deduplicated browser-side errors, evicting the
// oldest entries once maxClientReportedErrors is exceeded.
func (a *Agent) ReportClientErrors(errs []ClientReportedError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == nil {
		return
	}
	for _, e := range errs {
		a.state.AddClientReportedError(e)
	}
	if over := len(a.state.ClientReportedErrors) - maxClientReportedErrors; over > 0 {
		a.state.ClientReportedErrors = a.state.ClientReportedErrors[over:]
	}
}

// Close stops the run loop. Subscribers stay registered and their channels
// are not closed; each is removed only by its own unsubscribe func.
func (a *Agent) Close() {
	a.stop()
}

// transitionTo validates and applies a state change, persisting afterward
// per the "agent persists after every transition" suspend/resume contract.
func (a *Agent) transitionTo(ctx context.Context, newState DevState) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == nil {
		return fmt.Errorf("agent %s not initialized", a.id)
	}
	from := a.state.CurrentDevState
	if !a.table.IsValidTransition(from, newState) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, newState)
	}

	a.state.CurrentDevState = newState
	a.state.UpdatedAt = time.Now()

	if a.deps.Metrics != nil {
		a.deps.Metrics.ObservePhaseTransition(currentPhaseName(a.state), string(from), string(newState))
	}
	a.logger.Info("state transition: %s -> %s", from, newState)

	return a.persistLocked(ctx)
}

// logEvent records a session-level log line both locally and to subscribers
// as a server_log event, the session-agent counterpart of pkg/phase's own
// logEvent.
func (a *Agent) logEvent(level, message string) {
	switch level {
	case "warn":
		a.logger.Warn(message)
	case "error":
		a.logger.Error(message)
	default:
		a.logger.Info(message)
	}
	a.broadcast(must(wire.Encode(wire.TypeServerLog, wire.ServerLogPayload{
		Message:   message,
		Level:     level,
		Timestamp: time.Now().Unix(),
		Source:    "session",
	})))
}

func currentPhaseName(s *AgentState) string {
	for i := len(s.GeneratedPhases) - 1; i >= 0; i-- {
		if !s.GeneratedPhases[i].Completed {
			return s.GeneratedPhases[i].Name
		}
	}
	return ""
}

func (a *Agent) persistLocked(ctx context.Context) error {
	if a.deps.Store == nil {
		return nil
	}
	if err := a.deps.Store.SaveAgentState(ctx, a.state); err != nil {
		return fmt.Errorf("persist agent state: %w", err)
	}
	return nil
}

// broadcast fans env out to every subscriber, applying the backpressure
// drop policy from spec.md §4.1/§5: essential messages always get through,
// dropping the oldest queued message to make room if necessary; other
// message types are simply dropped for a full subscriber.
func (a *Agent) broadcast(env wire.Envelope) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()

	essential := essentialTypes[env.Type]
	for _, sub := range a.subs {
		select {
		case sub.ch <- env:
			continue
		default:
		}

		if !essential {
			continue
		}

		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- env:
		default:
		}
	}
}

// run is the agent's single goroutine: the only writer of AgentState and
// the only broadcaster of wire events, per the at-most-one-live-writer
// invariant.
func (a *Agent) run() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case cmd := <-a.cmdCh:
			a.handleCommand(cmd)
		}
	}
}

func (a *Agent) handleCommand(cmd command) {
	ctx := a.ctx
	switch cmd.kind {
	case wire.TypeGenerateAll, wire.TypeResumeGeneration:
		a.mu.Lock()
		a.state.ShouldBeGenerating = true
		a.mu.Unlock()
		a.broadcast(must(wire.Encode(wire.TypeGenerationResumed, struct{}{})))
		go a.driveGeneration(ctx)

	case wire.TypeStopGeneration:
		a.mu.Lock()
		a.state.ShouldBeGenerating = false
		a.mu.Unlock()
		if err := a.transitionTo(ctx, StatePaused); err != nil {
			a.logger.Warn("stop_generation transition failed: %v", err)
		}
		a.broadcast(must(wire.Encode(wire.TypeGenerationStopped, struct{}{})))

	case wire.TypePreview:
		go a.deployPreview(ctx)

	case wire.TypeDeploy:
		payload, _ := cmd.payload.(wire.DeployPayload)
		go a.deployPermanent(ctx, payload.InstanceID)

	case wire.TypeClientErrorReport:
		payload, _ := cmd.payload.(wire.ClientErrorReportPayload)
		errs := make([]ClientReportedError, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			errs = append(errs, ClientReportedError{Message: e.Message, StackHash: e.StackHash})
		}
		a.ReportClientErrors(errs)

	case wire.TypeUserMessage:
		payload, _ := cmd.payload.(wire.UserMessagePayload)
		go a.processUserMessage(ctx, payload.Message)

	default:
		a.logger.Debug("unhandled command: %s", cmd.kind)
	}
}

func (a *Agent) deployPreview(ctx context.Context) {
	if a.deps.Deploy == nil {
		return
	}
	a.broadcast(must(wire.Encode(wire.TypeDeploymentStarted, struct{}{})))
	start := time.Now()
	state := a.GetFullState()
	previewURL, tunnelURL, err := a.deps.Deploy.DeployPreview(ctx, state)
	if a.deps.Metrics != nil {
		a.deps.Metrics.ObserveDeploy("preview", time.Since(start), err == nil)
	}
	if err != nil {
		a.broadcast(must(wire.Encode(wire.TypeCloudflareDeployError, wire.ErrorPayload{Error: wire.ErrorDetail{Message: err.Error()}})))
		return
	}
	a.mu.Lock()
	a.state.LatestPreviewURL = previewURL
	a.mu.Unlock()
	a.broadcast(must(wire.Encode(wire.TypeDeploymentCompleted, wire.DeploymentCompletedPayload{PreviewURL: previewURL, TunnelURL: tunnelURL})))
}

func (a *Agent) deployPermanent(ctx context.Context, instanceID string) {
	if a.deps.Deploy == nil {
		return
	}
	a.broadcast(must(wire.Encode(wire.TypeCloudflareDeployStart, struct{}{})))
	start := time.Now()
	state := a.GetFullState()
	previewURL, tunnelURL, err := a.deps.Deploy.DeployPermanent(ctx, state, instanceID)
	if a.deps.Metrics != nil {
		a.deps.Metrics.ObserveDeploy("permanent", time.Since(start), err == nil)
	}
	if err != nil {
		a.broadcast(must(wire.Encode(wire.TypeCloudflareDeployError, wire.ErrorPayload{Error: wire.ErrorDetail{Message: err.Error()}})))
		return
	}
	a.broadcast(must(wire.Encode(wire.TypeDeploymentCompleted, wire.DeploymentCompletedPayload{PreviewURL: previewURL, TunnelURL: tunnelURL})))
}

// processUserMessage runs one conversation turn per spec.md §4.8/§6.3's
// user_message routing, appends both sides to conversationMessages, and
// queues any edit_app modification request onto pendingUserInputs for the
// next phase-loop iteration to pick up.
func (a *Agent) processUserMessage(ctx context.Context, userMessage string) {
	if a.deps.Conversation == nil {
		return
	}

	a.mu.Lock()
	conversationID := a.id
	past := append([]ConversationMessage(nil), a.state.ConversationMessages...)
	a.state.ConversationMessages = append(a.state.ConversationMessages, ConversationMessage{
		Role: "user", Content: userMessage, ConversationID: conversationID,
	})
	a.mu.Unlock()

	stream := func(chunk string) {
		a.broadcast(must(wire.Encode(wire.TypeConversationResponse, wire.ConversationResponsePayload{
			ConversationID: conversationID, Message: chunk, IsStreaming: true,
		})))
	}
	result := a.deps.Conversation.ProcessTurn(ctx, ConversationTurn{UserMessage: userMessage, PastMessages: past}, stream)

	a.mu.Lock()
	a.state.ConversationMessages = append(a.state.ConversationMessages, ConversationMessage{
		Role: "assistant", Content: result.AssistantMessage, ConversationID: conversationID,
	})
	if result.ModificationRequest != "" {
		a.state.PendingUserInputs = append(a.state.PendingUserInputs, result.ModificationRequest)
	}
	persistErr := a.persistLocked(ctx)
	a.mu.Unlock()
	if persistErr != nil {
		a.logger.Warn("persist after conversation turn: %v", persistErr)
	}

	if result.RateLimited {
		a.broadcast(must(wire.Encode(wire.TypeRateLimitError, wire.RateLimitErrorPayload{Error: wire.RateLimitDetail{
			Message: result.AssistantMessage, LimitType: "inference_rate_limit",
		}})))
		return
	}
	a.broadcast(must(wire.Encode(wire.TypeConversationResponse, wire.ConversationResponsePayload{
		ConversationID: conversationID, Message: result.AssistantMessage, IsStreaming: false,
	})))
}

// driveGeneration advances the state machine from its current state
// through Bootstrapping/Blueprinting/PhaseLoop, stopping if
// shouldBeGenerating flips false or a phase fails terminally.
func (a *Agent) driveGeneration(ctx context.Context) {
	for {
		a.mu.Lock()
		if !a.state.ShouldBeGenerating {
			a.mu.Unlock()
			return
		}
		current := a.state.CurrentDevState
		a.mu.Unlock()

		var err error
		switch current {
		case StateIdle, StatePaused:
			err = a.runBootstrap(ctx)
		case StateBootstrapping:
			err = a.runBlueprint(ctx)
		case StateBlueprinting, StateImplementing, StateValidating, StateFixing:
			err = a.runNextPhase(ctx)
		case StateTerminal:
			return
		default:
			return
		}

		if err != nil {
			a.logger.Error("generation step failed: %v", err)
			_ = a.transitionTo(ctx, StateTerminal)
			a.broadcast(must(wire.Encode(wire.TypeError, wire.ErrorPayload{Error: wire.ErrorDetail{Message: err.Error()}})))
			return
		}
	}
}

func (a *Agent) runBootstrap(ctx context.Context) error {
	if err := a.transitionTo(ctx, StateBootstrapping); err != nil {
		return err
	}
	if a.deps.Bootstrap == nil {
		return nil
	}
	tmpl, err := a.deps.Bootstrap.Bootstrap(ctx, a.state.Query)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	a.mu.Lock()
	a.state.TemplateDetails = tmpl
	// The sandbox session id is opaque to this package; using the agent's
	// own id keeps it stable across restarts without a second identifier
	// to persist and restore.
	a.state.SandboxSessionID = a.id
	a.mu.Unlock()
	return nil
}

func (a *Agent) runBlueprint(ctx context.Context) error {
	if err := a.transitionTo(ctx, StateBlueprinting); err != nil {
		return err
	}
	if a.deps.Blueprint == nil {
		return nil
	}
	onChunk := func(chunk string) {
		a.broadcast(must(wire.Encode(wire.TypePhaseGenerating, wire.PhaseGeneratingPayload{Message: chunk})))
	}
	bp, err := a.deps.Blueprint.Blueprint(ctx, a.state.Query, onChunk)
	if err != nil {
		return fmt.Errorf("blueprint: %w", err)
	}
	totalFiles := 0
	a.mu.Lock()
	a.state.Blueprint = bp
	for _, p := range bp.Phases {
		a.state.GeneratedPhases = append(a.state.GeneratedPhases, GeneratedPhase{
			Name: p.Name, Description: p.Description, Files: p.Files,
		})
		totalFiles += len(p.Files)
	}
	a.mu.Unlock()

	a.broadcast(must(wire.Encode(wire.TypeGenerationStarted, wire.GenerationStartedPayload{TotalFiles: totalFiles})))
	return a.transitionTo(ctx, StateImplementing)
}

// runNextPhase drains pendingUserInputs into the phase context, executes
// the next incomplete phase via the PhaseRunner, and advances the phase
// pointer on success, per spec.md §4.1's phase-loop step.
func (a *Agent) runNextPhase(ctx context.Context) error {
	a.mu.Lock()
	idx := -1
	for i, p := range a.state.GeneratedPhases {
		if !p.Completed {
			idx = i
			break
		}
	}
	if idx == -1 {
		a.mu.Unlock()
		_ = a.transitionTo(ctx, StateTerminal)
		a.mu.Lock()
		a.state.ShouldBeGenerating = false
		a.mu.Unlock()
		a.broadcast(must(wire.Encode(wire.TypeGenerationComplete, struct{}{})))
		return nil
	}
	phase := a.state.GeneratedPhases[idx]
	a.state.PendingUserInputs = nil
	a.mu.Unlock()

	if err := a.transitionTo(ctx, StateImplementing); err != nil {
		return err
	}
	a.broadcast(must(wire.Encode(wire.TypePhaseImplementing, wire.PhaseImplementingPayload{
		Message: "implementing " + phase.Name,
		Phase:   toWirePhase(phase),
	})))

	if a.deps.Phases == nil {
		return a.completePhase(ctx, idx)
	}

	bp := BlueprintPhase{Name: phase.Name, Description: phase.Description, Files: phase.Files}
	outcome, err := a.deps.Phases.RunPhase(ctx, a.GetFullState(), bp, a.broadcast)
	if err != nil {
		return fmt.Errorf("run phase %s: %w", phase.Name, err)
	}

	if !outcome.Completed {
		if outcome.IssuesFound {
			a.mu.Lock()
			a.state.GeneratedPhases[idx].RetryCount++
			retries := a.state.GeneratedPhases[idx].RetryCount
			a.mu.Unlock()

			if retries >= maxPhaseRetries {
				a.mu.Lock()
				a.state.ShouldBeGenerating = false
				a.mu.Unlock()
				if err := a.transitionTo(ctx, StatePaused); err != nil {
					return err
				}
				a.logEvent("warn", fmt.Sprintf("phase %s exceeded %d retries, pausing for manual resume", phase.Name, maxPhaseRetries))
				return nil
			}
		}
		return a.transitionTo(ctx, StateValidating)
	}

	return a.completePhase(ctx, idx)
}

func (a *Agent) completePhase(ctx context.Context, idx int) error {
	a.mu.Lock()
	a.state.GeneratedPhases[idx].Completed = true
	phase := a.state.GeneratedPhases[idx]
	a.mu.Unlock()

	a.broadcast(must(wire.Encode(wire.TypePhaseImplemented, wire.PhaseImplementedPayload{
		Message: "completed " + phase.Name,
		Phase:   toWirePhase(phase),
	})))
	return a.transitionTo(ctx, StateImplementing)
}

func toWirePhase(p GeneratedPhase) wire.PhaseConcept {
	files := make([]wire.PhaseFileRef, 0, len(p.Files))
	for _, f := range p.Files {
		files = append(files, wire.PhaseFileRef{Path: f.Path, Purpose: f.Purpose})
	}
	return wire.PhaseConcept{Name: p.Name, Description: p.Description, Files: files}
}

func must(env wire.Envelope, err error) wire.Envelope {
	if err != nil {
		return wire.Envelope{Type: wire.TypeError}
	}
	return env
}
