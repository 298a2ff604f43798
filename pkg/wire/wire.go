// Package wire defines the JSON discriminated-union message set exchanged
// between a session agent and its subscribed clients over the WebSocket
// transport (pkg/wsserver). Every message carries a "type" tag; payloads
// are typed structs marshaled/unmarshaled through Envelope.
package wire

import (
	"encoding/json"
	"fmt"
)

// Message type tags, agent → client.
const (
	TypeAgentState             = "cf_agent_state"
	TypeFileGenerating         = "file_generating"
	TypeFileChunkGenerated     = "file_chunk_generated"
	TypeFileGenerated          = "file_generated"
	TypeFileRegenerating       = "file_regenerating"
	TypeFileRegenerated        = "file_regenerated"
	TypeGenerationStarted      = "generation_started"
	TypeGenerationComplete     = "generation_complete"
	TypeGenerationStopped      = "generation_stopped"
	TypeGenerationResumed      = "generation_resumed"
	TypePhaseImplementing      = "phase_implementing"
	TypePhaseValidating        = "phase_validating"
	TypePhaseValidated         = "phase_validated"
	TypePhaseImplemented       = "phase_implemented"
	TypePhaseGenerating        = "phase_generating"
	TypePhaseGenerated         = "phase_generated"
	TypeCodeReviewing          = "code_reviewing"
	TypeCodeReviewed           = "code_reviewed"
	TypeDeploymentStarted      = "deployment_started"
	TypeDeploymentCompleted    = "deployment_completed"
	TypeRuntimeErrorFound      = "runtime_error_found"
	TypeConversationResponse   = "conversation_response"
	TypeTerminalOutput         = "terminal_output"
	TypeServerLog              = "server_log"
	TypeError                  = "error"
	TypeRateLimitError         = "rate_limit_error"
	TypeCloudflareDeployStart  = "cloudflare_deployment_started"
	TypeCloudflareDeployDone   = "cloudflare_deployment_completed"
	TypeCloudflareDeployError  = "cloudflare_deployment_error"
)

// Message type tags, client → agent.
const (
	TypeGenerateAll       = "generate_all"
	TypeStopGeneration    = "stop_generation"
	TypeResumeGeneration  = "resume_generation"
	TypePreview           = "preview"
	TypeDeploy            = "deploy"
	TypeUserMessage       = "user_message"
	TypeClientErrorReport = "client_error_report"
)

// Envelope is the wire shape every message is framed in: a type
// discriminator plus a raw payload decoded according to that type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps a payload value into an Envelope with the given type tag.
func Encode(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// Decode unmarshals an Envelope's payload into dst, which must be a pointer.
func Decode(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return nil
}

// PhaseConcept is the phase descriptor embedded in phase lifecycle events,
// mirroring AgentState.blueprint.phases[i].
type PhaseConcept struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Files       []PhaseFileRef `json:"files"`
}

// PhaseFileRef names one file a phase intends to produce or touch.
type PhaseFileRef struct {
	Path    string `json:"path"`
	Purpose string `json:"purpose"`
}

// GeneratedFile is a completed file's path and final contents.
type GeneratedFile struct {
	FilePath     string `json:"filePath"`
	FileContents string `json:"fileContents"`
}

// --- agent -> client payloads ---

// AgentStatePayload carries a snapshot projection of AgentState, sent as
// the first message to every new subscriber.
type AgentStatePayload struct {
	State json.RawMessage `json:"state"`
}

// FileGeneratingPayload announces the start of streaming one file's output.
type FileGeneratingPayload struct {
	FilePath string `json:"filePath"`
}

// FileChunkGeneratedPayload carries one streamed chunk of a file in progress.
type FileChunkGeneratedPayload struct {
	FilePath string `json:"filePath"`
	Chunk    string `json:"chunk"`
}

// FileGeneratedPayload announces a completed file.
type FileGeneratedPayload struct {
	File GeneratedFile `json:"file"`
}

// FileRegeneratingPayload mirrors FileGeneratingPayload for a rewrite pass.
type FileRegeneratingPayload struct {
	FilePath string `json:"filePath"`
}

// FileRegeneratedPayload mirrors FileGeneratedPayload for a rewrite pass.
type FileRegeneratedPayload struct {
	File GeneratedFile `json:"file"`
}

// GenerationStartedPayload announces the total file count for a run.
type GenerationStartedPayload struct {
	TotalFiles int `json:"totalFiles"`
}

// PhaseImplementingPayload announces a phase entering Implementing.
type PhaseImplementingPayload struct {
	Message string       `json:"message"`
	Phase   PhaseConcept `json:"phase"`
}

// PhaseValidatingPayload announces a phase entering Validating.
type PhaseValidatingPayload struct {
	Message string `json:"message"`
}

// PhaseValidatedPayload announces successful validation of a phase.
type PhaseValidatedPayload struct {
	Message string `json:"message"`
}

// PhaseImplementedPayload announces a phase's completion.
type PhaseImplementedPayload struct {
	Message string       `json:"message"`
	Phase   PhaseConcept `json:"phase"`
}

// PhaseGeneratingPayload announces code generation in progress for a phase.
type PhaseGeneratingPayload struct {
	Message string `json:"message"`
}

// PhaseGeneratedPayload announces code generation completed for a phase.
type PhaseGeneratedPayload struct {
	Message string `json:"message"`
}

// StaticAnalysisIssue is one lint/typecheck diagnostic.
type StaticAnalysisIssue struct {
	RuleID   string `json:"ruleId"`
	Message  string `json:"message"`
	FilePath string `json:"filePath,omitempty"`
}

// CodeReviewingPayload reports the inputs to a review/fix cycle.
type CodeReviewingPayload struct {
	StaticAnalysis []StaticAnalysisIssue `json:"staticAnalysis"`
	RuntimeErrors  []string              `json:"runtimeErrors"`
	ClientErrors   []string              `json:"clientErrors"`
}

// ReviewResult summarizes a completed review/fix cycle.
type ReviewResult struct {
	IssuesFound bool     `json:"issuesFound"`
	FilesToFix  []string `json:"filesToFix"`
}

// CodeReviewedPayload reports the outcome of a review/fix cycle.
type CodeReviewedPayload struct {
	Review ReviewResult `json:"review"`
}

// DeploymentCompletedPayload carries the resulting preview/tunnel URLs.
type DeploymentCompletedPayload struct {
	PreviewURL string `json:"previewURL"`
	TunnelURL  string `json:"tunnelURL,omitempty"`
}

// RuntimeError is one deduplicated client- or sandbox-reported error.
type RuntimeError struct {
	Message   string `json:"message"`
	FilePath  string `json:"filePath,omitempty"`
	StackHash string `json:"stackHash,omitempty"`
}

// RuntimeErrorFoundPayload reports newly observed runtime errors.
type RuntimeErrorFoundPayload struct {
	Count  int            `json:"count"`
	Errors []RuntimeError `json:"errors"`
}

// ConversationResponsePayload streams or finalizes one conversation turn.
type ConversationResponsePayload struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	IsStreaming    bool   `json:"isStreaming"`
}

// TerminalOutputPayload relays one line of sandboxed process output.
type TerminalOutputPayload struct {
	Output     string `json:"output"`
	OutputType string `json:"outputType"` // "stdout" | "stderr" | "info"
	Timestamp  int64  `json:"timestamp"`
}

// ServerLogPayload relays a structured log line to the client console.
type ServerLogPayload struct {
	Message   string `json:"message"`
	Level     string `json:"level"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source,omitempty"`
}

// ErrorDetail is the structured body of a generic error message.
type ErrorDetail struct {
	Message string `json:"message"`
}

// ErrorPayload reports a generic, non-rate-limit error.
type ErrorPayload struct {
	Error ErrorDetail `json:"error"`
}

// RateLimitDetail describes a denied request and how the client can react.
type RateLimitDetail struct {
	Message     string   `json:"message"`
	LimitType   string   `json:"limitType"`
	Limit       int      `json:"limit,omitempty"`
	Period      string   `json:"period,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// RateLimitErrorPayload is the structured 429 / rate_limit_error body.
type RateLimitErrorPayload struct {
	Error RateLimitDetail `json:"error"`
}

// --- client -> agent payloads ---

// DeployPayload requests a permanent deployment targeting instanceId.
type DeployPayload struct {
	InstanceID string `json:"instanceId"`
}

// UserMessagePayload routes free text to the conversation processor.
type UserMessagePayload struct {
	Message string `json:"message"`
}

// ClientErrorReportPayload relays browser-observed runtime errors.
type ClientErrorReportPayload struct {
	Errors []RuntimeError `json:"errors"`
}
