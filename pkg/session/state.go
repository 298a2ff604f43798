// Package session implements the session agent: a single-writer,
// cooperatively-scheduled state machine that owns one chat's AgentState,
// drives the phase-generation pipeline, and fans out wire events to
// subscribed clients.
package session

import (
	"encoding/json"
	"time"
)

// DevState is the session agent's high-level lifecycle state.
type DevState string

// The full set of states in the session agent's state machine.
const (
	StateIdle          DevState = "Idle"
	StateBootstrapping DevState = "Bootstrapping"
	StateBlueprinting  DevState = "Blueprinting"
	StateImplementing  DevState = "Implementing"
	StateValidating    DevState = "Validating"
	StateFixing        DevState = "Fixing"
	StateDeploying     DevState = "Deploying"
	StatePaused        DevState = "Paused"
	StateTerminal      DevState = "Terminal"
)

// String satisfies fmt.Stringer for log output.
func (s DevState) String() string { return string(s) }

// TransitionTable enumerates, for each state, the states it may move to.
// Generalizes the teacher's per-coder TransitionTable to the session
// agent's Idle/Bootstrapping/Blueprinting/PhaseLoop/Paused/Terminal shape.
type TransitionTable map[DevState][]DevState

// ValidTransitions is the default transition table for the session agent,
// encoding the state diagram in spec.md §4.1.
var ValidTransitions = TransitionTable{
	StateIdle: {
		StateBootstrapping,
	},
	StateBootstrapping: {
		StateBlueprinting,
		StateTerminal,
		StatePaused,
	},
	StateBlueprinting: {
		StateImplementing,
		StateTerminal,
		StatePaused,
	},
	StateImplementing: {
		StateValidating,
		StateTerminal,
		StatePaused,
	},
	StateValidating: {
		StateFixing,
		StateImplementing, // next phase, no issues
		StateTerminal,
		StatePaused,
	},
	StateFixing: {
		StateImplementing,
		StateValidating,
		StateTerminal,
		StatePaused,
	},
	StateDeploying: {
		StateImplementing,
		StateValidating,
		StateTerminal,
		StatePaused,
	},
	StatePaused: {
		StateBootstrapping,
		StateBlueprinting,
		StateImplementing,
		StateValidating,
		StateFixing,
	},
	StateTerminal: {},
}

// IsValidTransition reports whether moving from `from` to `to` is allowed.
// Terminal is always reachable (fatal-error escape hatch from any state).
func (t TransitionTable) IsValidTransition(from, to DevState) bool {
	if to == StateTerminal || to == StatePaused {
		return true
	}
	// Re-entering the same state is always allowed: the phase loop
	// transitions to Implementing at the start of every phase, including
	// phases after the first, where the machine is already there.
	if from == to {
		return true
	}
	for _, candidate := range t[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Blueprint is the structured generation plan produced by the Blueprinting
// state, mirroring spec.md §3's `blueprint` field.
type Blueprint struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Frameworks  []string        `json:"frameworks"`
	Phases      []BlueprintPhase `json:"phases"`
}

// BlueprintPhase is one planned unit of generation work.
type BlueprintPhase struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Files       []BlueprintFileSpec `json:"files"`
}

// BlueprintFileSpec names one file a phase intends to produce.
type BlueprintFileSpec struct {
	Path    string `json:"path"`
	Purpose string `json:"purpose"`
}

// TemplateDetails describes the seed files installed during Bootstrapping.
type TemplateDetails struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// GeneratedFile is one entry of generatedFilesMap: a file's current
// contents and the name of the phase that most recently wrote it.
type GeneratedFile struct {
	Contents      string `json:"contents"`
	LastPhaseName string `json:"lastPhaseName"`
}

// GeneratedPhase is one completed-or-in-flight entry of generatedPhases.
type GeneratedPhase struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Files       []BlueprintFileSpec `json:"files"`
	Completed   bool                `json:"completed"`
	// RetryCount counts how many times this phase has come back from
	// RunPhase with IssuesFound set, bounding the phase loop the way
	// sandbox calls are already bounded (spec.md §4.1's 3-attempt retry).
	RetryCount int `json:"retryCount,omitempty"`
}

// ConversationMessage is one entry of conversationMessages.
type ConversationMessage struct {
	Role           string `json:"role"` // "user" | "assistant" | "system"
	Content        string `json:"content"`
	ConversationID string `json:"conversationId"`
}

// ClientReportedError is one deduplicated browser-side runtime error.
type ClientReportedError struct {
	Message   string `json:"message"`
	StackHash string `json:"stackHash"`
}

func (e ClientReportedError) key() string { return e.Message + "\x00" + e.StackHash }

// AgentState is the full persistent state owned exclusively by one
// session agent, per spec.md §3.
type AgentState struct {
	AgentID  string `json:"agentId"`
	Query    string `json:"query"`

	Blueprint       Blueprint         `json:"blueprint"`
	TemplateDetails TemplateDetails   `json:"templateDetails"`

	GeneratedFilesMap map[string]GeneratedFile `json:"generatedFilesMap"`
	GeneratedPhases   []GeneratedPhase         `json:"generatedPhases"`

	ConversationMessages []ConversationMessage `json:"conversationMessages"`
	PendingUserInputs    []string              `json:"pendingUserInputs"`

	ShouldBeGenerating bool     `json:"shouldBeGenerating"`
	CurrentDevState    DevState `json:"currentDevState"`

	SandboxSessionID string `json:"sandboxSessionId,omitempty"`

	ClientReportedErrors []ClientReportedError `json:"clientReportedErrors"`

	LatestPreviewURL string `json:"latestPreviewURL,omitempty"`

	InferenceContext map[string]any `json:"inferenceContext,omitempty"`

	// SchemaVersion and UpdatedAt are infrastructure fields for migration
	// and staleness diagnostics, stripped from the cf_agent_state wire
	// projection.
	SchemaVersion int       `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

// NewAgentState returns a fresh, Idle AgentState for agentID.
func NewAgentState(agentID, query string) *AgentState {
	return &AgentState{
		AgentID:              agentID,
		Query:                query,
		GeneratedFilesMap:    make(map[string]GeneratedFile),
		ConversationMessages: nil,
		PendingUserInputs:    nil,
		ShouldBeGenerating:   false,
		CurrentDevState:      StateIdle,
		ClientReportedErrors: nil,
		InferenceContext:     make(map[string]any),
		SchemaVersion:        1,
		UpdatedAt:            time.Now(),
	}
}

// AddClientReportedError appends err, deduplicated by (message, stackHash).
func (s *AgentState) AddClientReportedError(err ClientReportedError) {
	key := err.key()
	for _, existing := range s.ClientReportedErrors {
		if existing.key() == key {
			return
		}
	}
	s.ClientReportedErrors = append(s.ClientReportedErrors, err)
}

// SetGeneratedFile records or overwrites a file's contents for a phase,
// upholding invariant 2 (append-or-replace by path) and invariant 3 (every
// file is attributed to exactly its most recent writing phase).
func (s *AgentState) SetGeneratedFile(path, contents, phaseName string) {
	s.GeneratedFilesMap[path] = GeneratedFile{Contents: contents, LastPhaseName: phaseName}
}

// Clone produces a deep copy of s suitable for Registry.Clone: sandbox and
// transient fields are reset per spec.md §4.2.
func (s *AgentState) Clone(newAgentID string) *AgentState {
	cp := *s
	cp.AgentID = newAgentID
	cp.ShouldBeGenerating = false
	cp.CurrentDevState = StateIdle
	cp.SandboxSessionID = ""
	cp.PendingUserInputs = nil
	cp.ClientReportedErrors = nil

	cp.GeneratedFilesMap = make(map[string]GeneratedFile, len(s.GeneratedFilesMap))
	for k, v := range s.GeneratedFilesMap {
		cp.GeneratedFilesMap[k] = v
	}
	cp.GeneratedPhases = append([]GeneratedPhase(nil), s.GeneratedPhases...)
	cp.ConversationMessages = append([]ConversationMessage(nil), s.ConversationMessages...)

	cp.Blueprint.Phases = append([]BlueprintPhase(nil), s.Blueprint.Phases...)
	cp.Blueprint.Frameworks = append([]string(nil), s.Blueprint.Frameworks...)

	cp.InferenceContext = make(map[string]any, len(s.InferenceContext))
	for k, v := range s.InferenceContext {
		cp.InferenceContext[k] = v
	}

	cp.UpdatedAt = time.Now()
	return &cp
}

// wireMarshalState projects an AgentState to the JSON shape sent as the
// cf_agent_state snapshot: SchemaVersion and UpdatedAt are tagged `json:"-"`
// and so are already excluded by the struct's own tags.
func wireMarshalState(s *AgentState) (json.RawMessage, error) {
	return json.Marshal(s)
}
