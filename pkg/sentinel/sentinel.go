// Package sentinel classifies a batch of runtime errors into a decision
// about how the session agent should react: ignore them, queue a code
// review, or loop the whole phase.
package sentinel

import "strings"

// Decision is the sentinel's three-way verdict.
type Decision string

const (
	DecisionNone       Decision = "none"
	DecisionCodeReview Decision = "code_review"
	DecisionPhaseLoop  Decision = "phase_loop"
)

// RuntimeError is one observed error, optionally attributed to a file.
type RuntimeError struct {
	Message   string
	FilePath  string
	StackHash string
}

// SummarizedError is one entry of a Result's Errors list.
type SummarizedError struct {
	Summary  string
	FilePath string
}

// Result is the sentinel's verdict and the errors it based that verdict on.
type Result struct {
	Decision Decision
	Errors   []SummarizedError
}

// systemicKeywords mark errors that tend to indicate a problem spanning
// multiple modules or blocking the application from starting at all, which
// warrants re-running the whole phase rather than a local patch.
var systemicKeywords = []string{
	"cannot find module", "module not found", "failed to compile",
	"bootstrap", "out of memory", "panic:", "segmentation fault",
	"build failed", "dependency", "circular import",
}

// Classify deduplicates errs by (message, filePath|stackHash) and decides
// whether the session agent should ignore them, queue a code-review cycle,
// or loop the current phase, per spec.md §4.6.
func Classify(errs []RuntimeError) Result {
	deduped := dedupe(errs)
	if len(deduped) == 0 {
		return Result{Decision: DecisionNone}
	}

	summarized := make([]SummarizedError, 0, len(deduped))
	touchedFiles := make(map[string]bool)
	systemic := false

	for _, e := range deduped {
		summarized = append(summarized, SummarizedError{Summary: e.Message, FilePath: e.FilePath})
		if e.FilePath != "" {
			touchedFiles[e.FilePath] = true
		}
		if isSystemic(e.Message) {
			systemic = true
		}
	}

	switch {
	case systemic || len(touchedFiles) > 1:
		return Result{Decision: DecisionPhaseLoop, Errors: summarized}
	default:
		return Result{Decision: DecisionCodeReview, Errors: summarized}
	}
}

func isSystemic(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range systemicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func dedupe(errs []RuntimeError) []RuntimeError {
	seen := make(map[string]bool, len(errs))
	out := make([]RuntimeError, 0, len(errs))
	for _, e := range errs {
		key := e.Message + "\x00" + e.FilePath + "\x00" + e.StackHash
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
