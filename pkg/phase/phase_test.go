package phase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"appgen/pkg/inference"
	"appgen/pkg/sandbox"
	"appgen/pkg/session"
	"appgen/pkg/wire"
)

// fakeInference lets tests script successive StructuredOutput calls: the
// first satisfies phase implementation, later ones (if any) satisfy
// model-based fix turns.
type fakeInference struct {
	responses []string // raw JSON, consumed in order
	calls     int
	// streamChunkSize, if non-zero, makes StructuredOutput replay the
	// response to onChunk in fixed-size slices instead of delivering it
	// whole, simulating token-by-token streaming.
	streamChunkSize int
}

func (f *fakeInference) StructuredOutput(ctx context.Context, prompt string, schema map[string]any, onChunk func(string)) (inference.StructuredResult, error) {
	if f.calls >= len(f.responses) {
		return inference.StructuredResult{Raw: []byte(`{"edits":[]}`)}, nil
	}
	raw := f.responses[f.calls]
	f.calls++
	if onChunk != nil && f.streamChunkSize > 0 {
		for i := 0; i < len(raw); i += f.streamChunkSize {
			end := i + f.streamChunkSize
			if end > len(raw) {
				end = len(raw)
			}
			onChunk(raw[i:end])
		}
	}
	return inference.StructuredResult{Raw: []byte(raw)}, nil
}

func (f *fakeInference) ChatWithTools(ctx context.Context, messages []inference.Message, tools []inference.ToolDefinition, onChunk func(string)) (inference.ChatResult, error) {
	return inference.ChatResult{}, nil
}

func (f *fakeInference) ModelName() string { return "fake" }

// fakeSandbox is a minimal in-memory Client: files live in a map keyed by
// session, and StaticAnalysis replays a scripted sequence of diagnostic
// sets so tests can drive the validate/fix loop deterministically.
type fakeSandbox struct {
	files       map[string]string
	diagSeq     [][]sandbox.Diagnostic
	analysisIdx int
	runtimeErrs []sandbox.RuntimeError
}

func newFakeSandbox(diagSeq [][]sandbox.Diagnostic) *fakeSandbox {
	return &fakeSandbox{files: map[string]string{}, diagSeq: diagSeq}
}

func (f *fakeSandbox) Bootstrap(ctx context.Context, sessionID, selectedTemplate, query string) (sandbox.BootstrapResult, error) {
	return sandbox.BootstrapResult{}, nil
}

func (f *fakeSandbox) WriteFile(ctx context.Context, sessionID, path, contents string) error {
	f.files[path] = contents
	return nil
}

func (f *fakeSandbox) ReadFile(ctx context.Context, sessionID, path string) (string, bool, error) {
	src, ok := f.files[path]
	return src, ok, nil
}

func (f *fakeSandbox) Exec(ctx context.Context, sessionID string, cmd []string) (string, string, int, error) {
	return "", "", 0, nil
}

func (f *fakeSandbox) StaticAnalysis(ctx context.Context, sessionID string) ([]sandbox.Diagnostic, error) {
	if f.analysisIdx >= len(f.diagSeq) {
		return nil, nil
	}
	diags := f.diagSeq[f.analysisIdx]
	f.analysisIdx++
	return diags, nil
}

func (f *fakeSandbox) RuntimeErrors(ctx context.Context, sessionID string) ([]sandbox.RuntimeError, error) {
	return f.runtimeErrs, nil
}

func testPhase() session.BlueprintPhase {
	return session.BlueprintPhase{
		Name:        "auth",
		Description: "add login page",
		Files:       []session.BlueprintFileSpec{{Path: "src/Login.tsx", Purpose: "login form"}},
	}
}

func collectEnvelopes() (func(wire.Envelope), *[]wire.Envelope) {
	var got []wire.Envelope
	return func(e wire.Envelope) { got = append(got, e) }, &got
}

func TestRunPhaseCompletesCleanlyWithNoIssues(t *testing.T) {
	llm := &fakeInference{responses: []string{`{"files":[{"path":"src/Login.tsx","contents":"export default function Login() {}"}]}`}}
	sb := newFakeSandbox([][]sandbox.Diagnostic{{}})
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build a login page")
	state.SandboxSessionID = "sess-1"

	emit, got := collectEnvelopes()
	outcome, err := exec.RunPhase(context.Background(), state, testPhase(), emit)
	require.NoError(t, err)
	require.True(t, outcome.Completed)
	require.False(t, outcome.IssuesFound)
	require.Equal(t, "export default function Login() {}", sb.files["src/Login.tsx"])

	var sawValidated bool
	for _, e := range *got {
		if e.Type == wire.TypePhaseValidated {
			sawValidated = true
		}
	}
	require.True(t, sawValidated)
}

func TestRunPhaseRequiresSandboxSession(t *testing.T) {
	llm := &fakeInference{}
	sb := newFakeSandbox(nil)
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build something")
	emit, _ := collectEnvelopes()
	_, err := exec.RunPhase(context.Background(), state, testPhase(), emit)
	require.Error(t, err)
}

func TestRunPhaseAppliesDeterministicFixerBeforeModelTurn(t *testing.T) {
	llm := &fakeInference{responses: []string{
		`{"files":[{"path":"src/App.tsx","contents":"import { Button } from 'components/ui/button';\nexport default function App() { return null; }"}]}`,
	}}
	// First analysis: a fixable TS2307 module-not-found issue that the
	// deterministic fixer resolves by prefixing the "@/" alias; second
	// analysis (post-fix) reports no remaining issues.
	sb := newFakeSandbox([][]sandbox.Diagnostic{
		{{RuleID: "TS2307", Message: "Cannot find module 'components/ui/button'.", FilePath: "src/App.tsx", Line: 1}},
		{},
	})
	sb.files["@/components/ui/button"] = "export const Button = () => null;"
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build app")
	state.SandboxSessionID = "sess-1"

	emit, _ := collectEnvelopes()
	outcome, err := exec.RunPhase(context.Background(), state, session.BlueprintPhase{
		Name:  "app",
		Files: []session.BlueprintFileSpec{{Path: "src/App.tsx", Purpose: "root component"}},
	}, emit)
	require.NoError(t, err)
	require.True(t, outcome.Completed)
	require.Equal(t, 1, llm.calls) // only the implementation call; no model fix turn needed
	require.Contains(t, sb.files["src/App.tsx"], "from '@/components/ui/button';")
}

func TestRunPhaseFallsBackToModelFixTurnWhenUnfixable(t *testing.T) {
	llm := &fakeInference{responses: []string{
		`{"files":[{"path":"src/App.tsx","contents":"const x: number = 'oops';"}]}`,
		`{"edits":[{"filePath":"src/App.tsx","search":"const x: number = 'oops';","replacement":"const x: number = 1;"}]}`,
	}}
	sb := newFakeSandbox([][]sandbox.Diagnostic{
		{{RuleID: "TS2322", Message: "Type 'string' is not assignable to type 'number'", FilePath: "src/App.tsx", Line: 1}},
		{},
	})
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build app")
	state.SandboxSessionID = "sess-1"

	emit, _ := collectEnvelopes()
	outcome, err := exec.RunPhase(context.Background(), state, session.BlueprintPhase{
		Name:  "app",
		Files: []session.BlueprintFileSpec{{Path: "src/App.tsx", Purpose: "root component"}},
	}, emit)
	require.NoError(t, err)
	require.True(t, outcome.Completed)
	require.Equal(t, "const x: number = 1;", sb.files["src/App.tsx"])
}

func TestRunPhaseSurfacesRemainingIssuesAfterReviewCycles(t *testing.T) {
	llm := &fakeInference{} // every StructuredOutput call for fix turns returns no edits
	diagSeq := make([][]sandbox.Diagnostic, 0, MaxReviewCycles+1)
	stuckIssue := []sandbox.Diagnostic{{RuleID: "TS9999", Message: "unrecognized", FilePath: "src/App.tsx", Line: 1}}
	for i := 0; i <= MaxReviewCycles; i++ {
		diagSeq = append(diagSeq, stuckIssue)
	}
	sb := newFakeSandbox(diagSeq)
	// seed the implementation response separately since fakeInference
	// consumes responses in call order and this test needs the first call
	// (implementation) to succeed before the fix-turn calls return nothing.
	llm.responses = []string{`{"files":[{"path":"src/App.tsx","contents":"broken"}]}`}
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build app")
	state.SandboxSessionID = "sess-1"

	emit, _ := collectEnvelopes()
	outcome, err := exec.RunPhase(context.Background(), state, session.BlueprintPhase{
		Name:  "app",
		Files: []session.BlueprintFileSpec{{Path: "src/App.tsx", Purpose: "root component"}},
	}, emit)
	require.NoError(t, err)
	require.False(t, outcome.Completed)
	require.True(t, outcome.IssuesFound)
	require.NotEmpty(t, outcome.StaticAnalysis)
}

func TestRunPhaseLoopsOnSystemicRuntimeErrors(t *testing.T) {
	llm := &fakeInference{responses: []string{`{"files":[{"path":"src/App.tsx","contents":"export default function App() {}"}]}`}}
	sb := newFakeSandbox([][]sandbox.Diagnostic{{}})
	sb.runtimeErrs = []sandbox.RuntimeError{
		{Message: "failed to compile: cannot find module 'react-dom'", File: "src/main.tsx"},
	}
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build app")
	state.SandboxSessionID = "sess-1"

	emit, _ := collectEnvelopes()
	outcome, err := exec.RunPhase(context.Background(), state, testPhase(), emit)
	require.NoError(t, err)
	require.False(t, outcome.Completed)
	require.True(t, outcome.IssuesFound)
	require.NotEmpty(t, outcome.StaticAnalysis)
}

func TestRunPhaseQueuesCodeReviewOnLocalizedRuntimeError(t *testing.T) {
	llm := &fakeInference{responses: []string{`{"files":[{"path":"src/App.tsx","contents":"export default function App() {}"}]}`}}
	sb := newFakeSandbox([][]sandbox.Diagnostic{{}})
	sb.runtimeErrs = []sandbox.RuntimeError{
		{Message: "TypeError: cannot read property 'map' of undefined", File: "src/App.tsx"},
	}
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build app")
	state.SandboxSessionID = "sess-1"

	emit, _ := collectEnvelopes()
	outcome, err := exec.RunPhase(context.Background(), state, testPhase(), emit)
	require.NoError(t, err)
	require.False(t, outcome.Completed)
	require.True(t, outcome.IssuesFound)
	require.Equal(t, "src/App.tsx", outcome.StaticAnalysis[0].FilePath)
}

func TestRunPhaseStreamsFileChunksAttributedToPath(t *testing.T) {
	llm := &fakeInference{
		responses:       []string{`{"files":[{"path":"src/Login.tsx","contents":"export default function Login() {}"}]}`},
		streamChunkSize: 12,
	}
	sb := newFakeSandbox([][]sandbox.Diagnostic{{}})
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build a login page")
	state.SandboxSessionID = "sess-1"

	emit, got := collectEnvelopes()
	_, err := exec.RunPhase(context.Background(), state, testPhase(), emit)
	require.NoError(t, err)

	var chunkCount int
	for _, e := range *got {
		if e.Type == wire.TypeFileChunkGenerated {
			var payload wire.FileChunkGeneratedPayload
			require.NoError(t, wire.Decode(e, &payload))
			require.Equal(t, "src/Login.tsx", payload.FilePath)
			chunkCount++
		}
	}
	require.Positive(t, chunkCount)
}

func TestRunPhaseEmitsRegenerationEventsForExistingFile(t *testing.T) {
	llm := &fakeInference{responses: []string{`{"files":[{"path":"src/Login.tsx","contents":"export default function Login() { return null; }"}]}`}}
	sb := newFakeSandbox([][]sandbox.Diagnostic{{}})
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build a login page")
	state.SandboxSessionID = "sess-1"
	state.SetGeneratedFile("src/Login.tsx", "export default function Login() {}", "auth")

	emit, got := collectEnvelopes()
	_, err := exec.RunPhase(context.Background(), state, testPhase(), emit)
	require.NoError(t, err)

	var sawRegenerating, sawRegenerated, sawGenerating bool
	for _, e := range *got {
		switch e.Type {
		case wire.TypeFileRegenerating:
			sawRegenerating = true
		case wire.TypeFileRegenerated:
			sawRegenerated = true
		case wire.TypeFileGenerating:
			sawGenerating = true
		}
	}
	require.True(t, sawRegenerating)
	require.True(t, sawRegenerated)
	require.False(t, sawGenerating)
}

func TestRunPhaseEmitsCodeReviewingAndRuntimeErrorFound(t *testing.T) {
	llm := &fakeInference{responses: []string{`{"files":[{"path":"src/App.tsx","contents":"export default function App() {}"}]}`}}
	sb := newFakeSandbox([][]sandbox.Diagnostic{{}})
	sb.runtimeErrs = []sandbox.RuntimeError{
		{Message: "TypeError: cannot read property 'map' of undefined", File: "src/App.tsx"},
	}
	exec := New(llm, sb)

	state := session.NewAgentState("agent-1", "build app")
	state.SandboxSessionID = "sess-1"

	emit, got := collectEnvelopes()
	_, err := exec.RunPhase(context.Background(), state, session.BlueprintPhase{
		Name:  "app",
		Files: []session.BlueprintFileSpec{{Path: "src/App.tsx", Purpose: "root component"}},
	}, emit)
	require.NoError(t, err)

	var sawReviewing, sawRuntimeErrorFound bool
	for _, e := range *got {
		switch e.Type {
		case wire.TypeCodeReviewing:
			sawReviewing = true
		case wire.TypeRuntimeErrorFound:
			sawRuntimeErrorFound = true
		}
	}
	require.True(t, sawReviewing)
	require.True(t, sawRuntimeErrorFound)
}

func TestGenerationResponseRoundTrips(t *testing.T) {
	raw := []byte(`{"files":[{"path":"a.tsx","contents":"x"}]}`)
	var parsed generationResponse
	require.NoError(t, json.Unmarshal(raw, &parsed))
	require.Len(t, parsed.Files, 1)
	require.Equal(t, "a.tsx", parsed.Files[0].Path)
}
