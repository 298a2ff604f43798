// Package phase implements the Phase Executor (C5): the
// implement → validate → fix cycle for a single blueprint phase.
// Generalizes the teacher's pkg/coder/coding.go / code_review.go
// implement→test→fix cycle to spec.md §4.5, with MAX_VALIDATE_ITERATIONS
// and MAX_REVIEW_CYCLES as named constants mirroring the teacher's
// DefaultMaxRetries bound in pkg/agent/state_machine.go.
package phase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"appgen/pkg/fixer"
	"appgen/pkg/inference"
	"appgen/pkg/logx"
	"appgen/pkg/sandbox"
	"appgen/pkg/sentinel"
	"appgen/pkg/session"
	"appgen/pkg/wire"
)

// MaxValidateIterations bounds the number of deterministic-fixer +
// re-validate passes attempted before escalating to a model-based fix
// turn, per spec.md §4.5 step 5.
const MaxValidateIterations = 3

// MaxReviewCycles bounds the total number of validate/fix iterations
// (deterministic or model-based) attempted before a phase returns with
// issues surfaced rather than looping forever, per spec.md §4.5 step 7.
const MaxReviewCycles = 10

// Executor drives one phase to completion, wiring the Inference Client
// (file generation and model-based fix turns), the Sandbox Client (file
// I/O and static analysis), and the Code Fixer (deterministic repair).
type Executor struct {
	inference inference.Client
	sandbox   sandbox.Client
	logger    *logx.Logger
}

// New constructs an Executor.
func New(inferenceClient inference.Client, sandboxClient sandbox.Client) *Executor {
	return &Executor{
		inference: inferenceClient,
		sandbox:   sandboxClient,
		logger:    logx.NewLogger("phase"),
	}
}

// fileEdit is one file the model produced or amended for a phase.
type fileEdit struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

// generationResponse is the StructuredOutput schema for phase
// implementation: the model may add files beyond phase.Files but may
// never delete one, per spec.md §4.5 step 1.
type generationResponse struct {
	Files []fileEdit `json:"files"`
}

var generationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"files": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":     map[string]any{"type": "string"},
					"contents": map[string]any{"type": "string"},
				},
				"required": []string{"path", "contents"},
			},
		},
	},
	"required": []string{"files"},
}

// codeFixEdit is one literal search/replace edit the model proposes
// against a named file, per spec.md §4.5 step 6.
type codeFixEdit struct {
	FilePath    string `json:"filePath"`
	Search      string `json:"search"`
	Replacement string `json:"replacement"`
}

type fixTurnResponse struct {
	Edits []codeFixEdit `json:"edits"`
}

var fixTurnSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"edits": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filePath":    map[string]any{"type": "string"},
					"search":      map[string]any{"type": "string"},
					"replacement": map[string]any{"type": "string"},
				},
				"required": []string{"filePath", "search", "replacement"},
			},
		},
	},
	"required": []string{"edits"},
}

// RunPhase implements session.PhaseRunner.
func (e *Executor) RunPhase(ctx context.Context, state *session.AgentState, phase session.BlueprintPhase, emit func(wire.Envelope)) (session.PhaseOutcome, error) {
	sessionID := state.SandboxSessionID
	if sessionID == "" {
		return session.PhaseOutcome{}, fmt.Errorf("phase: agent state has no sandbox session")
	}

	emit(must(wire.Encode(wire.TypePhaseGenerating, wire.PhaseGeneratingPayload{
		Message: "generating " + phase.Name,
	})))

	existing := make(map[string]string, len(state.GeneratedFilesMap))
	for path, gf := range state.GeneratedFilesMap {
		existing[path] = gf.Contents
	}

	files, err := e.implement(ctx, sessionID, phase, existing, emit)
	if err != nil {
		return session.PhaseOutcome{}, fmt.Errorf("implement phase %s: %w", phase.Name, err)
	}
	for path, contents := range files {
		state.SetGeneratedFile(path, contents, phase.Name)
	}

	emit(must(wire.Encode(wire.TypePhaseGenerated, wire.PhaseGeneratedPayload{
		Message: "generated " + phase.Name,
	})))
	emit(must(wire.Encode(wire.TypePhaseValidating, wire.PhaseValidatingPayload{
		Message: "validating " + phase.Name,
	})))

	diags, cycles, err := e.validateAndFix(ctx, sessionID, files, state, emit)
	if err != nil {
		return session.PhaseOutcome{}, fmt.Errorf("validate phase %s: %w", phase.Name, err)
	}

	issueWire := toWireIssues(diags)
	emit(must(wire.Encode(wire.TypeCodeReviewed, wire.CodeReviewedPayload{
		Review: wire.ReviewResult{IssuesFound: len(diags) > 0, FilesToFix: filePathsOf(diags)},
	})))

	if len(diags) > 0 {
		e.logEvent(emit, "info", fmt.Sprintf("phase %s finished with %d unresolved static-analysis issues after %d cycles", phase.Name, len(diags), cycles))
		return session.PhaseOutcome{Completed: false, StaticAnalysis: issueWire, IssuesFound: true}, nil
	}

	// Static analysis is clean; fold in runtime + client-reported errors
	// accumulated since the phase started, per spec.md §4.5 step 3's "pull
	// accumulated runtime + client-reported errors" and the sentinel's
	// (§4.6) none/code_review/phase_loop verdict over them.
	sentinelResult, err := e.classifyRuntimeErrors(ctx, sessionID, state, emit)
	if err != nil {
		return session.PhaseOutcome{}, fmt.Errorf("classify runtime errors for phase %s: %w", phase.Name, err)
	}
	if sentinelResult.Decision != sentinel.DecisionNone {
		e.logEvent(emit, "info", fmt.Sprintf("phase %s sentinel verdict %s over %d runtime error(s)", phase.Name, sentinelResult.Decision, len(sentinelResult.Errors)))
		return session.PhaseOutcome{Completed: false, StaticAnalysis: append(issueWire, toWireIssuesFromSentinel(sentinelResult.Errors)...), IssuesFound: true}, nil
	}

	emit(must(wire.Encode(wire.TypePhaseValidated, wire.PhaseValidatedPayload{
		Message: "validated " + phase.Name,
	})))
	return session.PhaseOutcome{Completed: true, StaticAnalysis: issueWire, IssuesFound: false}, nil
}

// implement requests structured code for each file phase.Files names
// (the model may amend the list with additional files, never delete
// one) and writes every produced file into the sandbox and the
// returned map, streaming chunks to subscribers as it goes. existing
// holds the current contents of every path already present in
// state.GeneratedFilesMap, used to tell a first write from a rewrite.
func (e *Executor) implement(ctx context.Context, sessionID string, phase session.BlueprintPhase, existing map[string]string, emit func(wire.Envelope)) (map[string]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement the following phase: %s\n%s\nFiles:\n", phase.Name, phase.Description)
	for _, f := range phase.Files {
		fmt.Fprintf(&b, "- %s: %s\n", f.Path, f.Purpose)
	}

	var accumulated strings.Builder
	currentPath := ""
	onChunk := func(chunk string) {
		accumulated.WriteString(chunk)
		if path, ok := latestPathMarker(accumulated.String()); ok {
			currentPath = path
		}
		if currentPath == "" {
			return
		}
		emit(must(wire.Encode(wire.TypeFileChunkGenerated, wire.FileChunkGeneratedPayload{
			FilePath: currentPath,
			Chunk:    chunk,
		})))
	}

	result, err := e.inference.StructuredOutput(ctx, b.String(), generationSchema, onChunk)
	if err != nil {
		return nil, err
	}

	var parsed generationResponse
	if err := json.Unmarshal(result.Raw, &parsed); err != nil {
		return nil, fmt.Errorf("phase: parse generation response: %w", err)
	}

	written := make(map[string]string, len(parsed.Files))
	for _, f := range parsed.Files {
		_, regenerating := existing[f.Path]
		if regenerating {
			emit(must(wire.Encode(wire.TypeFileRegenerating, wire.FileRegeneratingPayload{FilePath: f.Path})))
		} else {
			emit(must(wire.Encode(wire.TypeFileGenerating, wire.FileGeneratingPayload{FilePath: f.Path})))
		}

		if err := e.sandbox.WriteFile(ctx, sessionID, f.Path, f.Contents); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Path, err)
		}
		written[f.Path] = f.Contents

		generated := wire.GeneratedFile{FilePath: f.Path, FileContents: f.Contents}
		if regenerating {
			emit(must(wire.Encode(wire.TypeFileRegenerated, wire.FileRegeneratedPayload{File: generated})))
		} else {
			emit(must(wire.Encode(wire.TypeFileGenerated, wire.FileGeneratedPayload{File: generated})))
		}
	}
	return written, nil
}

// latestPathMarker returns the most recent complete `"path":"..."` field
// value in the accumulating generationResponse JSON text, used to attribute
// in-flight streaming chunks to the file currently being produced. The
// model streams one combined {"files":[...]} document rather than one call
// per file, so chunk-to-path attribution has to be recovered from the raw
// text as it arrives rather than from a per-file callback.
func latestPathMarker(buf string) (string, bool) {
	const marker = `"path":"`
	idx := strings.LastIndex(buf, marker)
	if idx == -1 {
		return "", false
	}
	start := idx + len(marker)
	end := strings.IndexByte(buf[start:], '"')
	if end == -1 {
		return "", false
	}
	return buf[start : start+end], true
}

// validateAndFix runs static analysis and, while issues remain, applies
// the deterministic Code Fixer (up to MaxValidateIterations rounds) and
// then a model-based fix turn, re-validating after each attempt, until
// either no issues remain or MaxReviewCycles total iterations are spent.
func (e *Executor) validateAndFix(ctx context.Context, sessionID string, files map[string]string, state *session.AgentState, emit func(wire.Envelope)) ([]sandbox.Diagnostic, int, error) {
	diags, err := e.sandbox.StaticAnalysis(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	emit(must(wire.Encode(wire.TypeCodeReviewing, wire.CodeReviewingPayload{
		StaticAnalysis: toWireIssues(diags),
		ClientErrors:   clientErrorMessages(state.ClientReportedErrors),
	})))
	if len(diags) > 0 {
		emit(must(wire.Encode(wire.TypeTerminalOutput, wire.TerminalOutputPayload{
			Output:     diagnosticsOutput(diags),
			OutputType: "stderr",
			Timestamp:  time.Now().Unix(),
		})))
	}

	cycle := 0
	for len(diags) > 0 && cycle < MaxReviewCycles {
		cycle++

		if cycle <= MaxValidateIterations {
			fixed, changed, err := e.runDeterministicFixer(ctx, sessionID, files, diags)
			if err != nil {
				return nil, cycle, err
			}
			if changed {
				files = fixed
				diags, err = e.sandbox.StaticAnalysis(ctx, sessionID)
				if err != nil {
					return nil, cycle, err
				}
				continue
			}
		}

		changed, err := e.runModelFixTurn(ctx, sessionID, files, diags)
		if err != nil {
			return nil, cycle, err
		}
		if !changed {
			break
		}
		diags, err = e.sandbox.StaticAnalysis(ctx, sessionID)
		if err != nil {
			return nil, cycle, err
		}
	}
	return diags, cycle, nil
}

// runDeterministicFixer applies fixer.FixProjectIssues against the
// in-memory file map, then writes every changed file back to the
// sandbox. Returns the updated file map and whether anything changed.
func (e *Executor) runDeterministicFixer(ctx context.Context, sessionID string, files map[string]string, diags []sandbox.Diagnostic) (map[string]string, bool, error) {
	issues := make([]fixer.Issue, 0, len(diags))
	for _, d := range diags {
		issues = append(issues, fixer.Issue{RuleID: d.RuleID, Message: d.Message, FilePath: d.FilePath, Line: d.Line})
	}

	fetcher := func(modulePath string) (string, bool) {
		if src, ok := files[modulePath]; ok {
			return src, true
		}
		src, ok, err := e.sandbox.ReadFile(ctx, sessionID, modulePath)
		if err != nil || !ok {
			return "", false
		}
		return src, true
	}

	result, err := fixer.FixProjectIssues(files, issues, fetcher)
	if err != nil {
		return files, false, err
	}
	if len(result.ModifiedFiles) == 0 {
		return files, false, nil
	}

	updated := make(map[string]string, len(files))
	for path, src := range files {
		updated[path] = src
	}
	for path, src := range result.ModifiedFiles {
		updated[path] = src
		if err := e.sandbox.WriteFile(ctx, sessionID, path, src); err != nil {
			return files, false, fmt.Errorf("write fixed %s: %w", path, err)
		}
	}
	return updated, true, nil
}

// runModelFixTurn packages remaining issues and asks the model for
// literal search/replace edits, applying each as a plain string
// replacement against the named file's sandbox contents.
func (e *Executor) runModelFixTurn(ctx context.Context, sessionID string, files map[string]string, diags []sandbox.Diagnostic) (bool, error) {
	var b strings.Builder
	b.WriteString("The following static analysis issues remain; propose a minimal search/replace edit for each:\n")
	for _, d := range diags {
		fmt.Fprintf(&b, "- %s:%d [%s] %s\n", d.FilePath, d.Line, d.RuleID, d.Message)
	}

	result, err := e.inference.StructuredOutput(ctx, b.String(), fixTurnSchema, nil)
	if err != nil {
		return false, err
	}

	var parsed fixTurnResponse
	if err := json.Unmarshal(result.Raw, &parsed); err != nil {
		return false, fmt.Errorf("phase: parse fix turn response: %w", err)
	}
	if len(parsed.Edits) == 0 {
		return false, nil
	}

	applied := false
	for _, edit := range parsed.Edits {
		src, ok := files[edit.FilePath]
		if !ok {
			var err error
			src, ok, err = e.sandbox.ReadFile(ctx, sessionID, edit.FilePath)
			if err != nil || !ok {
				continue
			}
		}
		if !strings.Contains(src, edit.Search) {
			continue
		}
		rewritten := strings.Replace(src, edit.Search, edit.Replacement, 1)
		if err := e.sandbox.WriteFile(ctx, sessionID, edit.FilePath, rewritten); err != nil {
			return applied, fmt.Errorf("write model fix to %s: %w", edit.FilePath, err)
		}
		files[edit.FilePath] = rewritten
		applied = true
	}
	return applied, nil
}

// clientErrorMessages projects ClientReportedErrors to the plain message
// strings CodeReviewingPayload.ClientErrors carries.
func clientErrorMessages(errs []session.ClientReportedError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Message)
	}
	return out
}

// diagnosticsOutput renders diags as a tsc-style terminal transcript, so
// subscribers see the same report the deterministic fixer and model fix
// turn are about to act on.
func diagnosticsOutput(diags []sandbox.Diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&b, "%s(%d): error %s: %s\n", d.FilePath, d.Line, d.RuleID, d.Message)
	}
	return b.String()
}

// logEvent records a phase-level log line both locally and to subscribers
// as a server_log event.
func (e *Executor) logEvent(emit func(wire.Envelope), level, message string) {
	switch level {
	case "warn":
		e.logger.Warn(message)
	case "error":
		e.logger.Error(message)
	default:
		e.logger.Info(message)
	}
	emit(must(wire.Encode(wire.TypeServerLog, wire.ServerLogPayload{
		Message:   message,
		Level:     level,
		Timestamp: time.Now().Unix(),
		Source:    "phase",
	})))
}

func toWireIssues(diags []sandbox.Diagnostic) []wire.StaticAnalysisIssue {
	out := make([]wire.StaticAnalysisIssue, 0, len(diags))
	for _, d := range diags {
		out = append(out, wire.StaticAnalysisIssue{RuleID: d.RuleID, Message: d.Message, FilePath: d.FilePath})
	}
	return out
}

func filePathsOf(diags []sandbox.Diagnostic) []string {
	seen := map[string]bool{}
	var paths []string
	for _, d := range diags {
		if d.FilePath == "" || seen[d.FilePath] {
			continue
		}
		seen[d.FilePath] = true
		paths = append(paths, d.FilePath)
	}
	return paths
}

// classifyRuntimeErrors drains the sandbox's accumulated runtime errors
// (from this phase's own execution and from previews/browser reports
// surfaced via the client) together with the agent's client-reported
// errors, and hands both to the sentinel (C6) for a none/code_review/
// phase_loop verdict.
func (e *Executor) classifyRuntimeErrors(ctx context.Context, sessionID string, state *session.AgentState, emit func(wire.Envelope)) (sentinel.Result, error) {
	runtimeErrs, err := e.sandbox.RuntimeErrors(ctx, sessionID)
	if err != nil {
		return sentinel.Result{}, err
	}

	errs := make([]sentinel.RuntimeError, 0, len(runtimeErrs)+len(state.ClientReportedErrors))
	for _, re := range runtimeErrs {
		errs = append(errs, sentinel.RuntimeError{Message: re.Message, FilePath: re.File})
	}
	for _, ce := range state.ClientReportedErrors {
		errs = append(errs, sentinel.RuntimeError{Message: ce.Message, StackHash: ce.StackHash})
	}

	result := sentinel.Classify(errs)
	if len(result.Errors) > 0 {
		emit(must(wire.Encode(wire.TypeRuntimeErrorFound, wire.RuntimeErrorFoundPayload{
			Count:  len(result.Errors),
			Errors: toWireRuntimeErrors(result.Errors),
		})))
	}
	return result, nil
}

func toWireIssuesFromSentinel(errs []sentinel.SummarizedError) []wire.StaticAnalysisIssue {
	out := make([]wire.StaticAnalysisIssue, 0, len(errs))
	for _, e := range errs {
		out = append(out, wire.StaticAnalysisIssue{RuleID: "runtime_error", Message: e.Summary, FilePath: e.FilePath})
	}
	return out
}

func toWireRuntimeErrors(errs []sentinel.SummarizedError) []wire.RuntimeError {
	out := make([]wire.RuntimeError, 0, len(errs))
	for _, e := range errs {
		out = append(out, wire.RuntimeError{Message: e.Summary, FilePath: e.FilePath})
	}
	return out
}

func must(env wire.Envelope, err error) wire.Envelope {
	if err != nil {
		return wire.Envelope{Type: wire.TypeError}
	}
	return env
}
