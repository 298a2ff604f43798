package fixer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func noopFetcher(string) (string, bool) { return "", false }

func TestFixDidYouMeanRewritesSonnerToast(t *testing.T) {
	// spec.md §8 scenario: generated code imports `toast` from
	// '@/components/ui/sonner', but that module only re-exports `Toaster`.
	src := `import { toast } from '@/components/ui/sonner';

function Notify() {
  toast("saved");
  return null;
}
`
	sonnerModule := `export { Toaster } from './toaster';`

	fetcher := func(mod string) (string, bool) {
		if mod == "@/components/ui/sonner" {
			return sonnerModule, true
		}
		return "", false
	}

	issue := Issue{
		RuleID:   "TS2724",
		Message:  "Module '\"@/components/ui/sonner\"' has no exported member named 'toast'. Did you mean 'Toaster'?",
		FilePath: "src/App.tsx",
		Line:     1,
	}

	result, err := FixProjectIssues(map[string]string{"src/App.tsx": src}, []Issue{issue}, fetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)
	require.Empty(t, result.UnfixableIssues)

	fixed := result.ModifiedFiles["src/App.tsx"]
	require.Contains(t, fixed, "import { Toaster } from '@/components/ui/sonner';")
	require.NotContains(t, fixed, "toast(")
}

func TestFixNameNotFoundInjectsStubWhenNoModuleResolves(t *testing.T) {
	// spec.md §8 scenario: JSX references <Widget prop="x"/> but nothing
	// declares or imports Widget, and no conventional module resolves it.
	src := `function Page() {
  return <Widget prop="x" />;
}
`
	issue := Issue{RuleID: "TS2304", Message: "Cannot find name 'Widget'.", FilePath: "src/Page.tsx", Line: 2}

	result, err := FixProjectIssues(map[string]string{"src/Page.tsx": src}, []Issue{issue}, noopFetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)

	fixed := result.ModifiedFiles["src/Page.tsx"]
	require.Contains(t, fixed, "function Widget(props)")
}

func TestFixNameNotFoundInjectsStubAfterImportsNotAtEnd(t *testing.T) {
	src := `import React from 'react';
import { useState } from 'react';

function Page() {
  return <Widget prop="x" />;
}
`
	issue := Issue{RuleID: "TS2304", Message: "Cannot find name 'Widget'.", FilePath: "src/Page.tsx", Line: 5}

	result, err := FixProjectIssues(map[string]string{"src/Page.tsx": src}, []Issue{issue}, noopFetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)

	fixed := result.ModifiedFiles["src/Page.tsx"]
	importEnd := strings.Index(fixed, "function Page")
	stubIdx := strings.Index(fixed, "function Widget(props)")
	require.Greater(t, stubIdx, 0)
	require.Less(t, stubIdx, importEnd)
}

func TestFixNameNotFoundSkipsKnownGlobals(t *testing.T) {
	src := `function Page() {
  console.log("hi");
  return null;
}
`
	issue := Issue{RuleID: "TS2304", Message: "Cannot find name 'console'.", FilePath: "src/Page.tsx", Line: 2}

	result, err := FixProjectIssues(map[string]string{"src/Page.tsx": src}, []Issue{issue}, noopFetcher)
	require.NoError(t, err)
	require.Empty(t, result.FixedIssues)
	require.Len(t, result.UnfixableIssues, 1)
}

func TestFixNameNotFoundInjectsCallableStubForLowercaseFunctionCall(t *testing.T) {
	src := `function Page() {
  return formatPrice(10);
}
`
	issue := Issue{RuleID: "TS2304", Message: "Cannot find name 'formatPrice'.", FilePath: "src/Page.tsx", Line: 2}

	result, err := FixProjectIssues(map[string]string{"src/Page.tsx": src}, []Issue{issue}, noopFetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)
	require.Contains(t, result.ModifiedFiles["src/Page.tsx"], "function formatPrice(...args)")
}

func TestFixNameNotFoundInjectsClassStubForNewExpression(t *testing.T) {
	src := `function make() {
  return new Widget();
}
`
	issue := Issue{RuleID: "TS2304", Message: "Cannot find name 'Widget'.", FilePath: "src/make.ts", Line: 2}

	result, err := FixProjectIssues(map[string]string{"src/make.ts": src}, []Issue{issue}, noopFetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)
	require.Contains(t, result.ModifiedFiles["src/make.ts"], "class Widget {}")
}

func TestFixNameNotFoundInjectsVarStubForMemberAccess(t *testing.T) {
	src := `function Page() {
  return config.apiUrl;
}
`
	issue := Issue{RuleID: "TS2304", Message: "Cannot find name 'config'.", FilePath: "src/Page.tsx", Line: 2}

	result, err := FixProjectIssues(map[string]string{"src/Page.tsx": src}, []Issue{issue}, noopFetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)
	require.Contains(t, result.ModifiedFiles["src/Page.tsx"], "var config: any;")
}

func TestFixNameNotFoundInjectsTypeAliasForTypePosition(t *testing.T) {
	src := `function handle(x: Config) {
  return x;
}
`
	issue := Issue{RuleID: "TS2304", Message: "Cannot find name 'Config'.", FilePath: "src/handle.ts", Line: 1}

	result, err := FixProjectIssues(map[string]string{"src/handle.ts": src}, []Issue{issue}, noopFetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)
	require.Contains(t, result.ModifiedFiles["src/handle.ts"], "type Config = any;")
}

func TestFixNameNotFoundImportsConventionalModule(t *testing.T) {
	src := `function Page() {
  return <Card prop="x" />;
}
`
	cardModule := `export default function Card() { return null; }`
	fetcher := func(mod string) (string, bool) {
		if mod == "@/components/Card" {
			return cardModule, true
		}
		return "", false
	}
	issue := Issue{RuleID: "TS2304", Message: "Cannot find name 'Card'.", FilePath: "src/Page.tsx", Line: 2}

	result, err := FixProjectIssues(map[string]string{"src/Page.tsx": src}, []Issue{issue}, fetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)
	fixed := result.ModifiedFiles["src/Page.tsx"]
	require.Contains(t, fixed, "import Card from '@/components/Card';")
}

func TestFixNoDefaultExportRewritesToNamedImport(t *testing.T) {
	src := `import Button from '@/components/ui/button';
`
	buttonModule := `export const Button = () => null;`
	fetcher := func(mod string) (string, bool) {
		if mod == "@/components/ui/button" {
			return buttonModule, true
		}
		return "", false
	}
	issue := Issue{RuleID: "TS2613", Message: "Module '\"@/components/ui/button\"' has no default export.", FilePath: "a.tsx"}

	result, err := FixProjectIssues(map[string]string{"a.tsx": src}, []Issue{issue}, fetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)
	require.Contains(t, result.ModifiedFiles["a.tsx"], "import { Button } from '@/components/ui/button';")
}

func TestFixNoExportedMemberDropsUnmatchedSpecifier(t *testing.T) {
	src := `import { Button, Ghost } from '@/components/ui/button';
`
	buttonModule := `export const Button = () => null;`
	fetcher := func(string) (string, bool) { return buttonModule, true }
	issue := Issue{RuleID: "TS2305", Message: "Module '\"@/components/ui/button\"' has no exported member 'Ghost'.", FilePath: "a.tsx"}

	result, err := FixProjectIssues(map[string]string{"a.tsx": src}, []Issue{issue}, fetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)
	fixed := result.ModifiedFiles["a.tsx"]
	require.Contains(t, fixed, "{ Button }")
	require.NotContains(t, fixed, "Ghost")
}

func TestFixModuleNotFoundAddsAliasPrefix(t *testing.T) {
	src := `import { Button } from 'components/ui/button';
`
	fetcher := func(mod string) (string, bool) {
		if mod == "@/components/ui/button" {
			return `export const Button = () => null;`, true
		}
		return "", false
	}
	issue := Issue{RuleID: "TS2307", Message: "Cannot find module 'components/ui/button'.", FilePath: "a.tsx"}

	result, err := FixProjectIssues(map[string]string{"a.tsx": src}, []Issue{issue}, fetcher)
	require.NoError(t, err)
	require.Len(t, result.FixedIssues, 1)
	require.Contains(t, result.ModifiedFiles["a.tsx"], "from '@/components/ui/button';")
}

func TestUnknownRuleIsUnfixable(t *testing.T) {
	issue := Issue{RuleID: "TS9999", FilePath: "a.tsx"}
	result, err := FixProjectIssues(map[string]string{"a.tsx": "const x = 1;"}, []Issue{issue}, noopFetcher)
	require.NoError(t, err)
	require.Empty(t, result.FixedIssues)
	require.Len(t, result.UnfixableIssues, 1)
}

func TestProtectedPathsAreNeverModified(t *testing.T) {
	issue := Issue{RuleID: "TS2724", FilePath: "node_modules/pkg/index.tsx"}
	result, err := FixProjectIssues(map[string]string{"node_modules/pkg/index.tsx": "x"}, []Issue{issue}, noopFetcher)
	require.NoError(t, err)
	require.Empty(t, result.FixedIssues)
	require.Len(t, result.UnfixableIssues, 1)
}

func TestFixIsDeterministicAndIdempotent(t *testing.T) {
	src := `import { toast } from '@/components/ui/sonner';
toast("x");
`
	sonnerModule := `export { Toaster } from './toaster';`
	fetcher := func(string) (string, bool) { return sonnerModule, true }
	issue := Issue{
		RuleID:   "TS2724",
		Message:  "Module '\"@/components/ui/sonner\"' has no exported member named 'toast'. Did you mean 'Toaster'?",
		FilePath: "a.tsx",
	}

	first, err := FixProjectIssues(map[string]string{"a.tsx": src}, []Issue{issue}, fetcher)
	require.NoError(t, err)

	second, err := FixProjectIssues(map[string]string{"a.tsx": src}, []Issue{issue}, fetcher)
	require.NoError(t, err)

	require.Equal(t, first.ModifiedFiles["a.tsx"], second.ModifiedFiles["a.tsx"])

	// Re-running against the already-fixed file with the same issue finds
	// nothing left to rewrite (toast no longer appears), confirming the
	// rewrite reached a fixed point rather than oscillating.
	third, err := FixProjectIssues(map[string]string{"a.tsx": first.ModifiedFiles["a.tsx"]}, []Issue{issue}, fetcher)
	require.NoError(t, err)
	require.Empty(t, third.FixedIssues)
}
