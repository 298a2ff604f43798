// Package fixer implements deterministic, rule-based repair of generated
// TypeScript/JavaScript source against a fixed table of compiler diagnostic
// codes. It never calls a model: every rewrite is a pure function of the
// diagnostic code, the offending file's text, and (for cross-file rules) the
// text of the module the diagnostic points at. Grounded on the parse →
// typed-element-list → targeted-rewrite → re-emit pipeline in
// theRebelliousNerd-codenerd's internal/world/go_parser.go, adapted from
// go/ast onto the minimal import model in imports.go since no TS/JS parser
// exists anywhere in the retrieval pack.
package fixer

import (
	"sort"
	"strings"
)

// Issue is one compiler diagnostic to attempt to fix.
type Issue struct {
	RuleID   string // e.g. "TS2307"
	Message  string
	FilePath string
	Line     int
}

// FixResult is the outcome of a FixProjectIssues run.
type FixResult struct {
	FixedIssues     []Issue
	UnfixableIssues []Issue
	ModifiedFiles   map[string]string // final content, keyed by path
}

// FileFetcher resolves a module specifier seen in an import statement (e.g.
// "@/components/ui/button") to the source of the file it refers to, or
// ("", false) if it doesn't exist or can't be read. Implementations may
// cache; FixProjectIssues calls it at most once per distinct specifier.
type FileFetcher func(modulePath string) (src string, ok bool)

// fixerFunc attempts to fix a single issue against the current content of
// its file, returning the rewritten content and whether it changed anything.
// fetcher is passed through for rules that need to read another file: the
// imported module's exports (TS2613, TS2305, TS2614), the conventional
// component module (TS2304), or whether a rewritten import path resolves
// (TS2307). The TS2724 rule does not use it.
type fixerFunc func(src string, issue Issue, fetcher FileFetcher) (fixed string, ok bool)

// registry maps a diagnostic code to the deterministic rule that handles it,
// per spec.md §4.7's fixer contract table.
var registry = map[string]fixerFunc{
	"TS2307": fixModuleNotFound,
	"TS2613": fixNoDefaultExport,
	"TS2304": fixNameNotFound,
	"TS2305": fixNoExportedMember,
	"TS2614": fixNoExportedMember, // same shape as TS2305: named import doesn't exist
	"TS2724": fixDidYouMeanExport,
}

// protectedPrefixes are paths the fixer refuses to touch even when a rule
// would otherwise rewrite them: generated scaffolding and lockfiles are
// owned by the bootstrap template, not by issue-driven repair.
var protectedPrefixes = []string{
	"node_modules/",
	"package-lock.json",
	"pnpm-lock.yaml",
	".git/",
}

func canModifyFile(path string) bool {
	for _, p := range protectedPrefixes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}

// FixProjectIssues applies every fixable issue against files, using fetcher
// to resolve cross-file lookups. Issues are processed in file-then-line
// order for determinism; within one file, fixes apply in sequence against
// the file's progressively updated content, last-write-wins. Files are
// copied, never mutated in place, so the caller's map is untouched.
func FixProjectIssues(files map[string]string, issues []Issue, fetcher FileFetcher) (FixResult, error) {
	working := make(map[string]string, len(files))
	for path, src := range files {
		working[path] = src
	}
	fetcher = cachingFetcher(fetcher)

	ordered := make([]Issue, len(issues))
	copy(ordered, issues)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].FilePath != ordered[j].FilePath {
			return ordered[i].FilePath < ordered[j].FilePath
		}
		return ordered[i].Line < ordered[j].Line
	})

	result := FixResult{ModifiedFiles: map[string]string{}}

	for _, issue := range ordered {
		if !canModifyFile(issue.FilePath) {
			result.UnfixableIssues = append(result.UnfixableIssues, issue)
			continue
		}
		rule, known := registry[issue.RuleID]
		if !known {
			result.UnfixableIssues = append(result.UnfixableIssues, issue)
			continue
		}
		src, exists := working[issue.FilePath]
		if !exists {
			result.UnfixableIssues = append(result.UnfixableIssues, issue)
			continue
		}
		fixed, ok := rule(src, issue, fetcher)
		if !ok {
			result.UnfixableIssues = append(result.UnfixableIssues, issue)
			continue
		}
		working[issue.FilePath] = fixed
		result.ModifiedFiles[issue.FilePath] = fixed
		result.FixedIssues = append(result.FixedIssues, issue)
	}

	return result, nil
}

func cachingFetcher(fetcher FileFetcher) FileFetcher {
	cache := map[string]string{}
	ok := map[string]bool{}
	return func(modulePath string) (string, bool) {
		if v, hit := cache[modulePath]; hit {
			return v, ok[modulePath]
		}
		src, found := fetcher(modulePath)
		cache[modulePath] = src
		ok[modulePath] = found
		return src, found
	}
}
