package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"appgen/pkg/exec"
	"appgen/pkg/logx"
	"appgen/pkg/utils"
)

// LocalClient implements Client by running each session in its own
// directory under root and driving node/npx tooling through the
// teacher's pkg/exec.LocalExec, which does the capture-stdout/stderr-
// then-inspect-ExitError work this method used to duplicate.
type LocalClient struct {
	root     string
	logger   *logx.Logger
	executor exec.Executor

	mu       sync.Mutex
	sessions map[string]string // sessionID -> working directory
	runtime  map[string][]RuntimeError
}

// execTimeout bounds how long a single sandboxed command (npm install, tsc,
// a build step) may run before it's killed.
const execTimeout = 3 * time.Minute

// NewLocalClient constructs a Client rooted at root, creating it if needed.
func NewLocalClient(root string) (*LocalClient, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create root: %w", err)
	}
	return &LocalClient{
		root:     root,
		logger:   logx.NewLogger("sandbox.local"),
		executor: exec.NewLocalExec(),
		sessions: map[string]string{},
		runtime:  map[string][]RuntimeError{},
	}, nil
}

func (c *LocalClient) Bootstrap(ctx context.Context, sessionID, selectedTemplate, query string) (BootstrapResult, error) {
	tpl := ResolveTemplate(selectedTemplate, query)
	// sessionID traces back to a client-controlled agent id (see
	// pkg/registry); sanitize it the same way the teacher sanitizes
	// container/directory names before it becomes a path component.
	workDir := filepath.Join(c.root, utils.SanitizeIdentifier(sessionID))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return BootstrapResult{}, fmt.Errorf("sandbox: create session dir: %w", err)
	}
	// Re-bootstrapping an existing session (a regenerate request) starts
	// from a clean slate; the directory itself is kept rather than
	// recreated so any bind-mounted preview stays attached to the same
	// inode.
	if err := utils.CleanDirectoryContents(workDir); err != nil {
		return BootstrapResult{}, fmt.Errorf("sandbox: clean session dir: %w", err)
	}

	for _, f := range tpl.Files {
		if err := c.writeFileAt(workDir, f.Path, f.Content); err != nil {
			return BootstrapResult{}, err
		}
	}

	c.mu.Lock()
	c.sessions[sessionID] = workDir
	c.mu.Unlock()

	c.logger.Info("bootstrapped session %s with template %s", sessionID, tpl.Name)
	return BootstrapResult{Name: tpl.Name, Files: tpl.Files}, nil
}

func (c *LocalClient) WriteFile(ctx context.Context, sessionID, path, contents string) error {
	workDir, ok := c.dirFor(sessionID)
	if !ok {
		return fmt.Errorf("sandbox: unknown session %q", sessionID)
	}
	return c.writeFileAt(workDir, path, contents)
}

func (c *LocalClient) writeFileAt(workDir, path, contents string) error {
	full := filepath.Join(workDir, path)
	if !strings.HasPrefix(full, filepath.Clean(workDir)+string(filepath.Separator)) {
		return fmt.Errorf("sandbox: path %q escapes session root", path)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("sandbox: mkdir: %w", err)
	}
	return os.WriteFile(full, []byte(contents), 0o644)
}

func (c *LocalClient) ReadFile(ctx context.Context, sessionID, path string) (string, bool, error) {
	workDir, ok := c.dirFor(sessionID)
	if !ok {
		return "", false, fmt.Errorf("sandbox: unknown session %q", sessionID)
	}
	full := filepath.Join(workDir, path)
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (c *LocalClient) Exec(ctx context.Context, sessionID string, cmd []string) (string, string, int, error) {
	workDir, ok := c.dirFor(sessionID)
	if !ok {
		return "", "", -1, fmt.Errorf("sandbox: unknown session %q", sessionID)
	}

	opts := exec.DefaultExecOpts()
	opts.WorkDir = workDir
	opts.Timeout = execTimeout

	result, err := c.executor.Run(ctx, cmd, &opts)
	if err != nil {
		return "", "", -1, err
	}
	return result.Stdout, result.Stderr, result.ExitCode, nil
}

// StaticAnalysis runs `tsc --noEmit` and parses its diagnostic lines; no
// lint pass is run, so only typecheck diagnostics are reported. It never
// returns an error for a non-zero exit: a failed typecheck is the
// expected, information-bearing case this method exists to report.
func (c *LocalClient) StaticAnalysis(ctx context.Context, sessionID string) ([]Diagnostic, error) {
	stdout, stderr, _, err := c.Exec(ctx, sessionID, []string{"npx", "tsc", "--noEmit", "--pretty", "false"})
	if err != nil {
		return nil, fmt.Errorf("sandbox: run typecheck: %w", err)
	}
	diags := parseTSDiagnostics(stdout + stderr)
	c.logger.Debug("static analysis for session %s found %d diagnostics", sessionID, len(diags))
	return diags, nil
}

func (c *LocalClient) RuntimeErrors(ctx context.Context, sessionID string) ([]RuntimeError, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := c.runtime[sessionID]
	c.runtime[sessionID] = nil
	return errs, nil
}

// ReportRuntimeError lets a preview smoke-check or client error report feed
// an observed error into the next RuntimeErrors drain.
func (c *LocalClient) ReportRuntimeError(sessionID string, e RuntimeError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runtime[sessionID] = append(c.runtime[sessionID], e)
}

func (c *LocalClient) dirFor(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.sessions[sessionID]
	return d, ok
}

// SessionDir exposes a bootstrapped session's working directory so a
// deploy target can serve its generated files directly off disk.
func (c *LocalClient) SessionDir(sessionID string) (string, bool) {
	return c.dirFor(sessionID)
}
