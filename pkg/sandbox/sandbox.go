// Package sandbox defines the thin contract the session agent and phase
// executor use to bootstrap a project, read/write generated files, run
// commands, and collect static and runtime diagnostics. The sandbox runtime
// itself is an external collaborator per spec.md §1; this package owns only
// the contract and a local-exec-backed implementation suitable for driving
// that contract end to end.
package sandbox

import "context"

// Diagnostic is one static-analysis finding, shaped to feed directly into
// pkg/fixer.Issue (RuleID/Message/FilePath/Line line up one-to-one).
type Diagnostic struct {
	RuleID   string
	Message  string
	FilePath string
	Line     int
}

// RuntimeError is one error observed while the generated app actually ran,
// either in the sandbox process or reported back by a browser preview.
type RuntimeError struct {
	Message string
	File    string
}

// BootstrapResult mirrors spec.md §3's templateDetails: the installed
// template's name and the seed files written.
type BootstrapResult struct {
	Name  string
	Files []SeedFile
}

// Client is the contract the phase executor and session agent depend on.
// SessionID is chosen by the caller, passed to Bootstrap, and threaded
// back through every subsequent call for that agent.
type Client interface {
	// Bootstrap installs a template into a fresh sandbox namespace and
	// returns its identity plus the seed files installed.
	Bootstrap(ctx context.Context, sessionID, selectedTemplate, query string) (BootstrapResult, error)

	// WriteFile writes or overwrites a single generated file by path.
	WriteFile(ctx context.Context, sessionID, path, contents string) error

	// ReadFile returns a file's current contents, or ok=false if absent.
	ReadFile(ctx context.Context, sessionID, path string) (contents string, ok bool, err error)

	// Exec runs an arbitrary command inside the sandbox's working directory.
	Exec(ctx context.Context, sessionID string, cmd []string) (stdout, stderr string, exitCode int, err error)

	// StaticAnalysis runs lint + typecheck and returns parsed diagnostics.
	StaticAnalysis(ctx context.Context, sessionID string) ([]Diagnostic, error)

	// RuntimeErrors drains runtime errors accumulated since the last call.
	RuntimeErrors(ctx context.Context, sessionID string) ([]RuntimeError, error)
}
