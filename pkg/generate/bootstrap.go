// Package generate implements the Bootstrapping and Blueprinting steps of
// the session agent's state machine (spec.md §4.1): installing a seed
// template into a fresh sandbox session, then asking the Inference Client
// for a structured phase-by-phase plan. Both satisfy the narrow
// session.Bootstrapper/session.Blueprinter contracts so pkg/session never
// needs to import pkg/sandbox or pkg/inference directly.
package generate

import (
	"context"
	"fmt"

	"appgen/pkg/sandbox"
	"appgen/pkg/session"
)

// Bootstrap installs a template into one agent's sandbox session, using
// the agent's own id as the sandbox's opaque session id (set on
// AgentState.SandboxSessionID by the caller) and the client-selected
// template name, if any, captured at construction.
type Bootstrap struct {
	sandbox          sandbox.Client
	sessionID        string
	selectedTemplate string
}

// NewBootstrap constructs a session.Bootstrapper bound to one sandbox
// session. sessionID must match the agentID the session agent will later
// assign to AgentState.SandboxSessionID.
func NewBootstrap(sandboxClient sandbox.Client, sessionID, selectedTemplate string) *Bootstrap {
	return &Bootstrap{sandbox: sandboxClient, sessionID: sessionID, selectedTemplate: selectedTemplate}
}

// Bootstrap implements session.Bootstrapper.
func (b *Bootstrap) Bootstrap(ctx context.Context, query string) (session.TemplateDetails, error) {
	result, err := b.sandbox.Bootstrap(ctx, b.sessionID, b.selectedTemplate, query)
	if err != nil {
		return session.TemplateDetails{}, fmt.Errorf("generate: bootstrap sandbox session %s: %w", b.sessionID, err)
	}

	files := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		files = append(files, f.Path)
	}
	return session.TemplateDetails{Name: result.Name, Files: files}, nil
}
