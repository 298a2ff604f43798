package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"appgen/pkg/inference"
)

var errBoom = errors.New("boom")

type fakeInference struct {
	raw []byte
	err error
}

func (f *fakeInference) StructuredOutput(_ context.Context, _ string, _ map[string]any, onChunk func(string)) (inference.StructuredResult, error) {
	if onChunk != nil {
		onChunk("planning phases")
	}
	if f.err != nil {
		return inference.StructuredResult{}, f.err
	}
	return inference.StructuredResult{Raw: f.raw}, nil
}

func (f *fakeInference) ChatWithTools(context.Context, []inference.Message, []inference.ToolDefinition, func(string)) (inference.ChatResult, error) {
	return inference.ChatResult{}, nil
}

func (f *fakeInference) ModelName() string { return "fake" }

func TestBlueprintParsesPhasesAndStreamsChunks(t *testing.T) {
	raw := []byte(`{
		"title": "todo app",
		"description": "a simple todo list",
		"frameworks": ["react"],
		"phases": [
			{"name": "setup", "files": [{"path": "src/main.tsx", "purpose": "entrypoint"}]},
			{"name": "feature", "files": [{"path": "src/App.tsx", "purpose": "app shell"}]}
		]
	}`)
	client := &fakeInference{raw: raw}
	b := NewBlueprint(client)

	var chunks []string
	bp, err := b.Blueprint(context.Background(), "build a todo app", func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)
	require.Equal(t, "todo app", bp.Title)
	require.Len(t, bp.Phases, 2)
	require.Equal(t, "src/main.tsx", bp.Phases[0].Files[0].Path)
	require.NotEmpty(t, chunks)
}

func TestBlueprintRejectsEmptyPhaseList(t *testing.T) {
	client := &fakeInference{raw: []byte(`{"title": "empty", "phases": []}`)}
	b := NewBlueprint(client)

	_, err := b.Blueprint(context.Background(), "q", nil)
	require.Error(t, err)
}

func TestBlueprintPropagatesInferenceError(t *testing.T) {
	client := &fakeInference{err: errBoom}
	b := NewBlueprint(client)

	_, err := b.Blueprint(context.Background(), "q", nil)
	require.Error(t, err)
}
