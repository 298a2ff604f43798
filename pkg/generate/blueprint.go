package generate

import (
	"context"
	"encoding/json"
	"fmt"

	"appgen/pkg/inference"
	"appgen/pkg/logx"
	"appgen/pkg/session"
)

// blueprintFile mirrors session.BlueprintFileSpec as the StructuredOutput
// schema's wire shape.
type blueprintFile struct {
	Path    string `json:"path"`
	Purpose string `json:"purpose"`
}

type blueprintPhase struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Files       []blueprintFile `json:"files"`
}

type blueprintResponse struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Frameworks  []string         `json:"frameworks"`
	Phases      []blueprintPhase `json:"phases"`
}

var blueprintSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":       map[string]any{"type": "string"},
		"description": map[string]any{"type": "string"},
		"frameworks": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"phases": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"files": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"path":    map[string]any{"type": "string"},
								"purpose": map[string]any{"type": "string"},
							},
							"required": []string{"path", "purpose"},
						},
					},
				},
				"required": []string{"name", "files"},
			},
		},
	},
	"required": []string{"title", "phases"},
}

// Blueprint produces the structured generation plan for one query,
// following the same StructuredOutput-then-json.Unmarshal shape
// pkg/phase.Executor.implement uses for file generation.
type Blueprint struct {
	inference inference.Client
	logger    *logx.Logger
}

// NewBlueprint constructs a session.Blueprinter backed by client.
func NewBlueprint(client inference.Client) *Blueprint {
	return &Blueprint{inference: client, logger: logx.NewLogger("generate.blueprint")}
}

// Blueprint implements session.Blueprinter.
func (b *Blueprint) Blueprint(ctx context.Context, query string, onChunk func(chunk string)) (session.Blueprint, error) {
	prompt := fmt.Sprintf("Produce a phased implementation blueprint for the following application request:\n%s", query)

	result, err := b.inference.StructuredOutput(ctx, prompt, blueprintSchema, onChunk)
	if err != nil {
		return session.Blueprint{}, fmt.Errorf("generate: request blueprint: %w", err)
	}

	var parsed blueprintResponse
	if err := json.Unmarshal(result.Raw, &parsed); err != nil {
		return session.Blueprint{}, fmt.Errorf("generate: parse blueprint response: %w", err)
	}
	if len(parsed.Phases) == 0 {
		return session.Blueprint{}, fmt.Errorf("generate: blueprint response named no phases")
	}

	phases := make([]session.BlueprintPhase, 0, len(parsed.Phases))
	for _, p := range parsed.Phases {
		files := make([]session.BlueprintFileSpec, 0, len(p.Files))
		for _, f := range p.Files {
			files = append(files, session.BlueprintFileSpec{Path: f.Path, Purpose: f.Purpose})
		}
		phases = append(phases, session.BlueprintPhase{Name: p.Name, Description: p.Description, Files: files})
	}

	b.logger.Info("blueprint %q planned %d phases", parsed.Title, len(phases))
	return session.Blueprint{
		Title:       parsed.Title,
		Description: parsed.Description,
		Frameworks:  parsed.Frameworks,
		Phases:      phases,
	}, nil
}
